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

package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// Error is returned for connection failures, timeouts and malformed responses.
type Error struct {
	Op  string
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Cause returns the underlying error, for github.com/pkg/errors
func (e *Error) Cause() error {
	return e.Err
}

// Timeout reports whether the failure was caused by a timeout.
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// ProtocolError is returned when the signing authority answers in a way the protocol does not
// allow: an unexpected status code, a redirect without target or an unparsable page.
type ProtocolError struct {
	// StatusCode is the offending HTTP status, zero when the failure is not status related.
	StatusCode int
	Message    string
	Err        error
}

// NewProtocolError creates a ProtocolError with the given message.
func NewProtocolError(message string) *ProtocolError {
	return &ProtocolError{Message: message}
}

// WrapProtocolError creates a ProtocolError caused by err.
func WrapProtocolError(err error, message string) *ProtocolError {
	return &ProtocolError{Message: message, Err: err}
}

func (e *ProtocolError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error, if any
func (e *ProtocolError) Unwrap() error {
	return e.Err
}
