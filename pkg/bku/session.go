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
	"net/url"

	"github.com/nuts-foundation/nuts-mobile-signer/pkg/prompt"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/session"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/sl"
)

// Session is the context of one signing run. It embeds the protocol state and adds what the
// pages of the signing authority told so far.
type Session struct {
	*session.State

	Flow Flow
	// Response is set once the signing authority returned the SL response.
	Response *sl.Response
	// TANField is set when the last page asked for a TAN.
	TANField         bool
	SMSAvailable     bool
	FIDO2Available   bool
	RefValue         string
	SignatureDataURL string
	// PollURL is the absolute url of the undecided status, empty when there is nothing to poll.
	PollURL string

	// action and hidden are the target and hidden fields of the form of the last page.
	action string
	hidden url.Values

	// credentials survive a round restart.
	credentials *prompt.Credentials
}

func newSession() *Session {
	return &Session{State: session.New()}
}

// resetRound clears everything but the base url, the session identifier and the credentials.
func (s *Session) resetRound() {
	credentials := s.credentials
	s.State.ResetRound()
	*s = Session{State: s.State, credentials: credentials}
}
