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
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/transport"
	"github.com/pkg/errors"
)

// ErrUserCancelled is the cause of a SignatureError when the user aborted the run.
var ErrUserCancelled = errors.New("signing cancelled by user")

// ErrTriesExhausted is the cause of a SignatureError when the signing authority refuses any
// further attempt.
var ErrTriesExhausted = errors.New("no tries left")

// ErrSecondFactorDegraded is logged when the FIDO2 second factor failed and the run falls back to
// TAN entry. It never ends a run.
var ErrSecondFactorDegraded = errors.New("FIDO2 second factor failed, falling back to TAN")

// ErrPasswordTooShort is shown to the user when the password has less than MinPasswordLength characters.
var ErrPasswordTooShort = errors.New("password too short")

// ErrPasswordTooLong is shown to the user when the password has more than MaxPasswordLength characters.
var ErrPasswordTooLong = errors.New("password too long")

// ErrNoResponse is the cause of a SignatureError when a round ended without signature response.
var ErrNoResponse = errors.New("signing authority did not return a signature response")

// ProtocolError is an alias of the transport level protocol error, so callers only need this package.
type ProtocolError = transport.ProtocolError

// SignatureError is the only error HandleSLRequest returns. Its cause classifies the failure.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return "signature creation failed: " + e.Err.Error()
}

// Unwrap returns the cause
func (e *SignatureError) Unwrap() error {
	return e.Err
}

// Cause returns the cause, for github.com/pkg/errors
func (e *SignatureError) Cause() error {
	return e.Err
}

// Cancelled reports whether err is the result of a user cancellation, which is not a failure to report.
func Cancelled(err error) bool {
	return errors.Is(err, ErrUserCancelled)
}
