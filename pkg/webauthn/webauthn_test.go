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

package webauthn

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestOptions(t *testing.T) {
	t.Run("ok - plain options", func(t *testing.T) {
		options, err := ParseRequestOptions(`{"challenge":"AQID","rpId":"a-trust.at","timeout":60000,"userVerification":"preferred","allowCredentials":[{"type":"public-key","id":"_-8"}]}`)

		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, []byte(options.Challenge))
		assert.Equal(t, "a-trust.at", options.RelyingPartyID)
		assert.Equal(t, 60000, options.Timeout)
		assert.Equal(t, protocol.VerificationPreferred, options.UserVerification)
		require.Len(t, options.AllowedCredentials, 1)
		assert.Equal(t, []byte{0xff, 0xef}, []byte(options.AllowedCredentials[0].CredentialID))
	})

	t.Run("ok - wrapped in publicKey", func(t *testing.T) {
		options, err := ParseRequestOptions(`{"publicKey":{"challenge":"AQID==","rpId":"a-trust.at"}}`)

		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, []byte(options.Challenge))
		assert.Equal(t, "a-trust.at", options.RelyingPartyID)
	})

	t.Run("error - no json", func(t *testing.T) {
		_, err := ParseRequestOptions("not json")

		assert.Error(t, err)
	})

	t.Run("error - missing challenge", func(t *testing.T) {
		_, err := ParseRequestOptions(`{"rpId":"a-trust.at"}`)

		assert.EqualError(t, err, "webauthn request options without challenge")
	})
}

func TestEncodeCredential(t *testing.T) {
	credential := &Credential{
		ID:                "cred",
		RawID:             []byte{1},
		Type:              "public-key",
		AuthenticatorData: []byte{2},
		ClientDataJSON:    []byte("{}"),
		Signature:         []byte{3},
	}

	t.Run("ok - missing user handle is null", func(t *testing.T) {
		encoded, err := EncodeCredential(credential)

		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"cred","rawId":"AQ==","type":"public-key","extensions":{},"response":{"authenticatorData":"Ag==","clientDataJson":"e30=","signature":"Aw==","userHandle":null}}`, encoded)
		assert.Contains(t, encoded, `"userHandle":null`)
	})

	t.Run("ok - user handle", func(t *testing.T) {
		withHandle := *credential
		withHandle.UserHandle = []byte{4}

		encoded, err := EncodeCredential(&withHandle)

		require.NoError(t, err)
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(encoded), &decoded))
		assert.Equal(t, "BA==", decoded["response"].(map[string]interface{})["userHandle"])
	})
}

func TestClientDataJSON(t *testing.T) {
	data, hash, err := ClientDataJSON([]byte{1, 2, 3}, DefaultOrigin)

	require.NoError(t, err)
	var collected protocol.CollectedClientData
	require.NoError(t, json.Unmarshal(data, &collected))
	assert.Equal(t, protocol.AssertCeremony, collected.Type)
	assert.Equal(t, "AQID", collected.Challenge)
	assert.Equal(t, DefaultOrigin, collected.Origin)
	expected := sha256.Sum256(data)
	assert.Equal(t, expected[:], hash)
}

func TestUnavailable(t *testing.T) {
	var a Authenticator = Unavailable{}

	assert.False(t, a.Available())
	_, err := a.GetAssertion(context.Background(), DefaultOrigin, &RequestOptions{})
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestDecodeAuthenticatorData(t *testing.T) {
	t.Run("ok - short", func(t *testing.T) {
		b, err := decodeAuthenticatorData([]byte{0x43, 1, 2, 3})

		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, b)
	})

	t.Run("ok - authenticator data length", func(t *testing.T) {
		payload := make([]byte, 37)
		payload[32] = 0x05
		encoded, err := cbor.Marshal(payload)
		require.NoError(t, err)

		b, err := decodeAuthenticatorData(encoded)

		require.NoError(t, err)
		assert.Equal(t, payload, b)
	})

	t.Run("error - empty", func(t *testing.T) {
		_, err := decodeAuthenticatorData(nil)

		assert.EqualError(t, err, "empty authenticator data")
	})

	t.Run("error - not a byte string", func(t *testing.T) {
		_, err := decodeAuthenticatorData([]byte{0xa0})

		assert.Error(t, err)
	})

	t.Run("error - truncated", func(t *testing.T) {
		_, err := decodeAuthenticatorData([]byte{0x45, 1})

		assert.Error(t, err)
	})
}
