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
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/nuts-foundation/nuts-mobile-signer/pkg/sl"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/transport"
	"github.com/nuts-foundation/nuts-mobile-signer/test/fakebku"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_PostSLRequest(t *testing.T) {
	request := &sl.Request{XML: "<xml/>", SignatureData: []byte("%PDF")}

	t.Run("ok - form without signature data", func(t *testing.T) {
		client := &scriptedBKU{pages: []string{"ok"}}
		s := newSession()

		body, err := NewHandler(client, HandlerConfig{URL: bkuURL + "?x=1"}).PostSLRequest(context.Background(), s, &sl.Request{XML: "<xml/>"})

		require.NoError(t, err)
		assert.Equal(t, "ok", body)
		assert.Equal(t, bkuURL, s.BaseURL)
		assert.Equal(t, "bku-1", s.Server)
		assert.Equal(t, transport.ContentForm, client.sent()[0].Body.Kind())
	})

	t.Run("ok - multipart", func(t *testing.T) {
		client := &scriptedBKU{pages: []string{"ok"}}

		_, err := NewHandler(client, HandlerConfig{URL: bkuURL}).PostSLRequest(context.Background(), newSession(), request)

		require.NoError(t, err)
		body, ok := client.sent()[0].Body.(transport.MultipartBody)
		require.True(t, ok)
		assert.Equal(t, fieldXMLRequest, body.Fields[0].Name)
		require.Len(t, body.Files, 1)
		assert.Equal(t, fieldFileUpload, body.Files[0].Name)
		assert.Equal(t, []byte("%PDF"), body.Files[0].Data)
	})

	t.Run("ok - base64", func(t *testing.T) {
		client := &scriptedBKU{pages: []string{"ok"}}

		_, err := NewHandler(client, HandlerConfig{URL: bkuURL, Base64: true}).PostSLRequest(context.Background(), newSession(), request)

		require.NoError(t, err)
		body, ok := client.sent()[0].Body.(transport.Base64FieldBody)
		require.True(t, ok)
		assert.Equal(t, fieldFileUpload, body.Field)
		assert.Equal(t, "<xml/>", body.Values.Get(fieldXMLRequest))
	})
}

func TestHandler_HandleTANResponse(t *testing.T) {
	h := NewHandler(&scriptedBKU{}, HandlerConfig{URL: bkuURL})

	t.Run("ok - rejection counts a try", func(t *testing.T) {
		s := newSession()

		require.NoError(t, h.HandleTANResponse(s, tanPage(tanError), true))

		assert.True(t, s.Retry())
		assert.Equal(t, 1, s.TanTries)
	})

	t.Run("ok - rejection of a confirmation does not count", func(t *testing.T) {
		s := newSession()

		require.NoError(t, h.HandleTANResponse(s, tanPage(tanError), false))

		assert.True(t, s.Retry())
		assert.Equal(t, 0, s.TanTries)
	})

	t.Run("ok - credential form requests a restart", func(t *testing.T) {
		s := newSession()
		s.TanTries = 2

		require.NoError(t, h.HandleTANResponse(s, credentialsPage(noop), true))

		assert.True(t, s.RestartRequested())
		assert.False(t, s.Retry())
	})

	t.Run("ok - response resets tries", func(t *testing.T) {
		s := newSession()
		s.TanTries = 2
		s.Reject("TAN ungültig")

		require.NoError(t, h.HandleTANResponse(s, fakebku.SignatureResponse("c2ln"), true))

		require.NotNil(t, s.Response)
		assert.Equal(t, 0, s.TanTries)
		assert.False(t, s.Retry())
	})

	t.Run("error - exhausted", func(t *testing.T) {
		s := newSession()

		err := h.HandleTANResponse(s, fakebku.ExhaustedPage(), true)

		assert.Equal(t, ErrTriesExhausted, err)
		assert.True(t, s.Exhausted())
	})
}

type statusClient struct {
	status int
	body   string
}

func (c statusClient) Send(context.Context, *transport.Request) (*transport.Response, error) {
	return &transport.Response{StatusCode: c.status, Header: http.Header{}, Body: []byte(c.body)}, nil
}

func TestHandler_WaitForConfirmation(t *testing.T) {
	config := HandlerConfig{URL: bkuURL, PollInterval: time.Millisecond}
	pollURL := "https://bku.example.com/mobile/undecided.aspx?sid=s1"

	t.Run("ok", func(t *testing.T) {
		client := &scriptedBKU{}

		err := NewHandler(client, config).WaitForConfirmation(context.Background(), pollURL)

		assert.NoError(t, err)
		assert.Equal(t, 1, client.polls)
	})

	t.Run("error - cancelled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := NewHandler(&scriptedBKU{pollBody: `{"Fin":false}`}, config).WaitForConfirmation(ctx, pollURL)

		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})

	t.Run("error - status", func(t *testing.T) {
		err := NewHandler(statusClient{status: http.StatusNotAcceptable}, config).WaitForConfirmation(context.Background(), pollURL)

		var protocolErr *ProtocolError
		require.True(t, errors.As(err, &protocolErr))
		assert.Equal(t, http.StatusNotAcceptable, protocolErr.StatusCode)
	})

	t.Run("error - invalid body", func(t *testing.T) {
		err := NewHandler(statusClient{status: http.StatusOK, body: "<html/>"}, config).WaitForConfirmation(context.Background(), pollURL)

		var protocolErr *ProtocolError
		assert.True(t, errors.As(err, &protocolErr))
	})
}

func TestHandler_ObservePage(t *testing.T) {
	undecided := fakebku.UndecidedPage(fakebku.PageOptions{
		Action:   "../signature.aspx",
		RefValue: "ab12",
		PollURL:  "../undecided.aspx?sid=s1",
	})

	t.Run("ok - links are qualified against the base url", func(t *testing.T) {
		s := newSession()
		s.BaseURL = bkuURL
		s.SessionID = "s1"

		err := NewHandler(&scriptedBKU{}, HandlerConfig{URL: "https://other.example.com/sl"}).ObservePage(s, undecided)

		require.NoError(t, err)
		assert.Equal(t, "https://bku.example.com/mobile/signature.aspx", s.action)
		assert.Equal(t, signatureData, s.SignatureDataURL)
		assert.Equal(t, "https://bku.example.com/mobile/undecided.aspx?sid=s1", s.PollURL)
	})

	t.Run("ok - configured url without base url", func(t *testing.T) {
		s := newSession()

		err := NewHandler(&scriptedBKU{}, HandlerConfig{URL: bkuURL + "?x=1"}).ObservePage(s, undecided)

		require.NoError(t, err)
		assert.Equal(t, "https://bku.example.com/mobile/signature.aspx", s.action)
	})

	t.Run("error - exhausted page terminates", func(t *testing.T) {
		s := newSession()

		err := NewHandler(&scriptedBKU{}, HandlerConfig{URL: bkuURL}).ObservePage(s, fakebku.ExhaustedPage())

		assert.True(t, errors.Is(err, ErrTriesExhausted))
		assert.True(t, s.Exhausted())
	})
}
