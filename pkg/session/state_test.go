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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_EnsureSessionID(t *testing.T) {
	t.Run("ok - appended to url without query", func(t *testing.T) {
		s := &State{SessionID: "abc"}

		u, err := s.EnsureSessionID("https://bku.example.com/mobile/sign.aspx")

		require.NoError(t, err)
		assert.Equal(t, "https://bku.example.com/mobile/sign.aspx?sid=abc", u)
	})

	t.Run("ok - merged into existing query", func(t *testing.T) {
		s := &State{SessionID: "abc"}

		u, err := s.EnsureSessionID("https://bku.example.com/mobile/sign.aspx?step=2")

		require.NoError(t, err)
		assert.Equal(t, "https://bku.example.com/mobile/sign.aspx?step=2&sid=abc", u)
	})

	t.Run("ok - url already carrying a session id is unchanged", func(t *testing.T) {
		s := &State{SessionID: "abc"}

		u, err := s.EnsureSessionID("https://bku.example.com/mobile/sign.aspx?sid=abc")

		require.NoError(t, err)
		assert.Equal(t, "https://bku.example.com/mobile/sign.aspx?sid=abc", u)
	})

	t.Run("ok - unknown session id is learned from the url", func(t *testing.T) {
		s := New()

		u, err := s.EnsureSessionID("https://bku.example.com/mobile/identification.aspx?sid=xyz")

		require.NoError(t, err)
		assert.Equal(t, "https://bku.example.com/mobile/identification.aspx?sid=xyz", u)
		assert.Equal(t, "xyz", s.SessionID)
	})

	t.Run("ok - first session id wins", func(t *testing.T) {
		s := &State{SessionID: "abc"}

		s.ObserveURL("https://bku.example.com/?sid=other")

		assert.Equal(t, "abc", s.SessionID)
	})

	t.Run("error - invalid url", func(t *testing.T) {
		s := &State{SessionID: "abc"}

		_, err := s.EnsureSessionID("http://[::1")

		assert.Error(t, err)
	})
}

func TestState_ResetRound(t *testing.T) {
	s := &State{
		BaseURL:      "https://bku.example.com/mobile/default.aspx",
		Server:       "node-1",
		SessionID:    "abc",
		ErrorMessage: "wrong tan",
		TanTries:     TanTriesRestart,
	}

	s.ResetRound()

	assert.Equal(t, State{BaseURL: "https://bku.example.com/mobile/default.aspx", SessionID: "abc"}, *s)
}

func TestState_Transitions(t *testing.T) {
	t.Run("reject and accept", func(t *testing.T) {
		s := New()
		s.Reject("")
		assert.True(t, s.Retry())
		assert.Equal(t, "rejected", s.ErrorMessage)
		s.Accept()
		assert.False(t, s.Retry())
	})

	t.Run("terminate drops pending rejection", func(t *testing.T) {
		s := New()
		s.Reject("wrong tan")
		s.Terminate()
		assert.True(t, s.Exhausted())
		assert.False(t, s.Retry())
	})

	t.Run("restart drops pending rejection", func(t *testing.T) {
		s := New()
		s.Reject("session expired")
		s.RequestRestart()
		assert.True(t, s.RestartRequested())
		assert.False(t, s.Retry())
	})
}

func TestStripQueryString(t *testing.T) {
	assert.Equal(t, "https://bku.example.com/mobile/default.aspx", StripQueryString("https://bku.example.com/mobile/default.aspx?a=b"))
	assert.Equal(t, "https://bku.example.com/mobile/", StripQueryString("https://bku.example.com/mobile/#top"))
	assert.Equal(t, "https://bku.example.com", StripQueryString("https://bku.example.com"))
}
