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

package bku_test

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nuts-foundation/nuts-mobile-signer/pkg/bku"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/prompt"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/sl"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/transport"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/webauthn"
	"github.com/nuts-foundation/nuts-mobile-signer/test/fakebku"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuthenticator struct{}

func (stubAuthenticator) Available() bool {
	return true
}

func (stubAuthenticator) GetAssertion(_ context.Context, origin string, options *webauthn.RequestOptions) (*webauthn.Credential, error) {
	clientData, _, err := webauthn.ClientDataJSON(options.Challenge, origin)
	if err != nil {
		return nil, err
	}
	return &webauthn.Credential{
		ID:                "Y3JlZA",
		RawID:             []byte("cred"),
		Type:              "public-key",
		AuthenticatorData: []byte{1, 2, 3},
		ClientDataJSON:    clientData,
		Signature:         []byte{4, 5, 6},
	}, nil
}

type integrationContext struct {
	bku       *fakebku.Server
	server    *httptest.Server
	out       *bytes.Buffer
	connector *bku.Connector
}

// createIntegrationContext starts a fake signing authority and a connector talking HTTP to it.
// The terminal reads input and then blocks, as a user that does not type anything.
func createIntegrationContext(t *testing.T, config fakebku.Config, base64 bool, input string, opts ...bku.Option) *integrationContext {
	config.MobileNumber = "+436601234567"
	config.Password = "secret1"
	config.TAN = "123456"
	fake := fakebku.New(config)
	server := httptest.NewServer(fake)
	reader, writer := io.Pipe()
	t.Cleanup(func() {
		_ = writer.Close()
		server.Close()
	})

	out := &bytes.Buffer{}
	terminal := prompt.NewTerminal(io.MultiReader(strings.NewReader(input), reader), out)
	client := transport.NewHTTPClient(transport.Config{Timeout: 5 * time.Second})
	connector := bku.NewConnector(client, terminal, bku.Config{
		HandlerConfig: bku.HandlerConfig{
			URL:          server.URL + fakebku.SLEndpoint,
			Base64:       base64,
			MaxRedirects: 10,
			PollInterval: 5 * time.Millisecond,
		},
	}, opts...)
	return &integrationContext{bku: fake, server: server, out: out, connector: connector}
}

func (ctx *integrationContext) sign(t *testing.T, detached bool) (*sl.Response, error) {
	request, err := sl.NewRequest(sl.RequestParams{Document: []byte("%PDF-1.4"), Detached: detached, Description: "Befund"})
	require.NoError(t, err)
	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return ctx.connector.HandleSLRequest(c, request)
}

func TestConnector_Integration(t *testing.T) {
	t.Run("ok - password and TAN", func(t *testing.T) {
		ctx := createIntegrationContext(t, fakebku.Config{Mode: fakebku.ModePassword}, false, "0660 1234567\nsecret1\n123456\n")

		response, err := ctx.sign(t, true)

		require.NoError(t, err)
		assert.Equal(t, "c2lnbmF0dXJl", response.SignatureValue)
		assert.Equal(t, []string{
			"POST " + fakebku.SLEndpoint,
			"GET /mobile/identification.aspx?sid=sid1",
			"POST /mobile/identification.aspx?sid=sid1",
			"GET /mobile/signature.aspx?sid=sid1",
			"POST /mobile/signature.aspx?sid=sid1",
		}, ctx.bku.Requests())
		slRequests := ctx.bku.SLRequests()
		require.Len(t, slRequests, 1)
		assert.True(t, slRequests[0].Multipart)
		assert.Equal(t, []byte("%PDF-1.4"), slRequests[0].Document)
		assert.Contains(t, slRequests[0].XML, sl.DetachedReference)
		assert.Contains(t, ctx.out.String(), "Reference value: ab12")
	})

	t.Run("ok - document as base64 field", func(t *testing.T) {
		ctx := createIntegrationContext(t, fakebku.Config{Mode: fakebku.ModePassword}, true, "0660 1234567\nsecret1\n123456\n")

		_, err := ctx.sign(t, true)

		require.NoError(t, err)
		slRequests := ctx.bku.SLRequests()
		require.Len(t, slRequests, 1)
		assert.False(t, slRequests[0].Multipart)
		assert.Equal(t, []byte("%PDF-1.4"), slRequests[0].Document)
	})

	t.Run("ok - embedded document", func(t *testing.T) {
		ctx := createIntegrationContext(t, fakebku.Config{Mode: fakebku.ModePassword}, false, "0660 1234567\nsecret1\n123456\n")

		_, err := ctx.sign(t, false)

		require.NoError(t, err)
		slRequests := ctx.bku.SLRequests()
		require.Len(t, slRequests, 1)
		assert.Empty(t, slRequests[0].Document)
		assert.Contains(t, slRequests[0].XML, "<sl:Base64Content>JVBERi0xLjQ=</sl:Base64Content>")
	})

	t.Run("ok - wrong password is asked again", func(t *testing.T) {
		ctx := createIntegrationContext(t, fakebku.Config{Mode: fakebku.ModePassword}, false, "0660 1234567\nwrong12\n\nsecret1\n123456\n")

		_, err := ctx.sign(t, true)

		require.NoError(t, err)
		assert.Contains(t, ctx.out.String(), "Error: Handynummer oder Signaturpasswort ungültig")
		assert.Contains(t, ctx.out.String(), "Mobile number [+436601234567]")
	})

	t.Run("ok - SMS TAN", func(t *testing.T) {
		ctx := createIntegrationContext(t, fakebku.Config{Mode: fakebku.ModeSMS}, false, "0660 1234567\nsecret1\n123456\n")

		response, err := ctx.sign(t, true)

		require.NoError(t, err)
		assert.Equal(t, "c2lnbmF0dXJl", response.SignatureValue)
		for _, r := range ctx.bku.Requests() {
			assert.NotContains(t, r, "undecided.aspx")
		}
	})

	t.Run("ok - confirmation in the app", func(t *testing.T) {
		ctx := createIntegrationContext(t, fakebku.Config{Mode: fakebku.ModeApp, ConfirmAfterPolls: 2}, false, "0660 1234567\nsecret1\n")

		response, err := ctx.sign(t, true)

		require.NoError(t, err)
		assert.Equal(t, "c2lnbmF0dXJl", response.SignatureValue)
		requests := ctx.bku.Requests()
		assert.Contains(t, requests, "GET /mobile/undecided.aspx?sid=sid1")
		assert.Equal(t, "GET /mobile/signature.aspx?sid=sid1", requests[len(requests)-1])
	})

	t.Run("ok - QR code", func(t *testing.T) {
		ctx := createIntegrationContext(t, fakebku.Config{Mode: fakebku.ModeQR, ConfirmAfterPolls: 1}, false, "0660 1234567\nsecret1\n")

		response, err := ctx.sign(t, true)

		require.NoError(t, err)
		assert.Equal(t, "c2lnbmF0dXJl", response.SignatureValue)
		assert.Contains(t, ctx.out.String(), "Scan the QR code")
	})

	t.Run("ok - FIDO2", func(t *testing.T) {
		ctx := createIntegrationContext(t, fakebku.Config{Mode: fakebku.ModeFIDO2, FIDO2Options: `{"challenge":"AQID","rpId":"a-trust.at"}`},
			false, "0660 1234567\nsecret1\n", bku.WithAuthenticator(stubAuthenticator{}))

		response, err := ctx.sign(t, true)

		require.NoError(t, err)
		assert.Equal(t, "c2lnbmF0dXJl", response.SignatureValue)
		assert.Contains(t, ctx.bku.Requests(), "POST /mobile/fido.aspx?sid=sid1")
	})

	t.Run("ok - FIDO2 without authenticator falls back to SMS", func(t *testing.T) {
		ctx := createIntegrationContext(t, fakebku.Config{Mode: fakebku.ModeFIDO2, FIDO2Options: `{"challenge":"AQID"}`},
			false, "0660 1234567\nsecret1\ns\n123456\n")

		response, err := ctx.sign(t, true)

		require.NoError(t, err)
		assert.Equal(t, "c2lnbmF0dXJl", response.SignatureValue)
		assert.NotContains(t, ctx.bku.Requests(), "POST /mobile/fido.aspx?sid=sid1")
	})

	t.Run("error - tries exhausted", func(t *testing.T) {
		ctx := createIntegrationContext(t, fakebku.Config{Mode: fakebku.ModePassword, MaxTANTries: 1}, false, "0660 1234567\nsecret1\n000000\n")

		_, err := ctx.sign(t, true)

		assert.True(t, errors.Is(err, bku.ErrTriesExhausted))
		requests := ctx.bku.Requests()
		assert.Equal(t, "POST /mobile/signature.aspx?sid=sid1", requests[len(requests)-1])
	})

	t.Run("error - cancelled", func(t *testing.T) {
		ctx := createIntegrationContext(t, fakebku.Config{Mode: fakebku.ModePassword}, false, "q\n")

		_, err := ctx.sign(t, true)

		assert.True(t, bku.Cancelled(err))
	})
}
