/*
 * Nuts mobile signer
 * Copyright (C) 2020. Nuts community
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package bku

import (
	"strings"
	"unicode/utf8"

	"github.com/nuts-foundation/nuts-mobile-signer/pkg/prompt"
	"github.com/pkg/errors"
)

const (
	// MinPasswordLength is the minimal length of a signature password.
	MinPasswordLength = 6
	// MaxPasswordLength is the maximal length of a signature password.
	MaxPasswordLength = 20
)

// ErrMobileNumberMissing is shown to the user when no mobile number was entered.
var ErrMobileNumberMissing = errors.New("mobile number missing")

// NormalizeMobileNumber brings a mobile number into international format. Austrian numbers
// without country code get +43.
func NormalizeMobileNumber(number string) string {
	n := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '/', '(', ')':
			return -1
		}
		return r
	}, number)
	switch {
	case n == "", strings.HasPrefix(n, "+"):
		return n
	case strings.HasPrefix(n, "00"):
		return "+" + n[2:]
	case strings.HasPrefix(n, "0"):
		return "+43" + n[1:]
	default:
		return "+43" + n
	}
}

// ValidateCredentials normalizes the mobile number and checks the password length, so obviously
// wrong credentials never reach the signing authority.
func ValidateCredentials(c prompt.Credentials) (prompt.Credentials, error) {
	c.MobileNumber = NormalizeMobileNumber(c.MobileNumber)
	if c.MobileNumber == "" {
		return c, ErrMobileNumberMissing
	}
	switch n := utf8.RuneCountInString(c.Password); {
	case n < MinPasswordLength:
		return c, ErrPasswordTooShort
	case n > MaxPasswordLength:
		return c, ErrPasswordTooLong
	}
	return c, nil
}
