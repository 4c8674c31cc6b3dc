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

package session

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// SessionIDParam is the query parameter carrying the signing authority's session identifier.
const SessionIDParam = "sid"

const (
	// TanTriesExhausted marks that the signing authority refuses further attempts. It is terminal.
	TanTriesExhausted = -1
	// TanTriesRestart marks that the credential round has to start over from the SL request.
	TanTriesRestart = -2
)

// State is the mutable record of a single signing attempt. It is owned by one run and must not
// be shared between concurrent runs.
type State struct {
	// BaseURL is the signing authority url without query string, set when the SL request is posted.
	BaseURL string
	// Server is the last observed server identity header, empty when the server did not send one.
	Server string
	// SessionID is the first session identifier seen in a url of this run.
	SessionID string
	// ErrorMessage is set when the current step was rejected and has to be retried.
	ErrorMessage string
	// TanTries counts rejected attempts; negative values are TanTriesExhausted and TanTriesRestart.
	TanTries int
}

// New returns an empty State.
func New() *State {
	return &State{}
}

// Retry reports whether the current step has to be repeated.
func (s *State) Retry() bool {
	return s.ErrorMessage != ""
}

// Reject records a retryable rejection of the current step.
func (s *State) Reject(message string) {
	if message == "" {
		message = "rejected"
	}
	s.ErrorMessage = message
}

// Accept clears a pending rejection.
func (s *State) Accept() {
	s.ErrorMessage = ""
}

// Exhausted reports whether the signing authority refused any further attempt.
func (s *State) Exhausted() bool {
	return s.TanTries == TanTriesExhausted
}

// RestartRequested reports whether the whole credential round has to be repeated.
func (s *State) RestartRequested() bool {
	return s.TanTries == TanTriesRestart
}

// Terminate marks the run as exhausted. A pending rejection is dropped, retrying is pointless.
func (s *State) Terminate() {
	s.TanTries = TanTriesExhausted
	s.ErrorMessage = ""
}

// RequestRestart marks the credential round for restart.
func (s *State) RequestRestart() {
	s.TanTries = TanTriesRestart
	s.ErrorMessage = ""
}

// ResetRound prepares the state for a new credential round. The base url and the session
// identifier survive, everything else is cleared.
func (s *State) ResetRound() {
	*s = State{BaseURL: s.BaseURL, SessionID: s.SessionID}
}

// ObserveURL records the session identifier of the given url if none is known yet.
func (s *State) ObserveURL(rawURL string) {
	if s.SessionID != "" {
		return
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	if sid := u.Query().Get(SessionIDParam); sid != "" {
		s.SessionID = sid
	}
}

// EnsureSessionID returns the url with the session identifier merged into its query. URLs which
// already carry a session identifier are returned unchanged. A url seen before any session
// identifier is known is used to learn it.
func (s *State) EnsureSessionID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid url %q", rawURL)
	}
	if s.SessionID == "" {
		s.ObserveURL(rawURL)
		return rawURL, nil
	}
	if u.Query().Get(SessionIDParam) != "" {
		return rawURL, nil
	}
	param := SessionIDParam + "=" + url.QueryEscape(s.SessionID)
	if u.RawQuery == "" {
		u.RawQuery = param
	} else {
		u.RawQuery = strings.TrimSuffix(u.RawQuery, "&") + "&" + param
	}
	return u.String(), nil
}

// StripQueryString returns the url without its query string and fragment.
func StripQueryString(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i != -1 {
		return rawURL[:i]
	}
	return rawURL
}
