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
	"encoding/base64"
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/pkg/errors"
)

// DefaultOrigin is the origin the mobile signing authority registers its credentials for.
const DefaultOrigin = "https://service.a-trust.at"

// ErrUnavailable is returned when no platform authenticator can be used.
var ErrUnavailable = errors.New("webauthn is not available on this platform")

// RequestOptions are the server supplied PublicKeyCredentialRequestOptions.
type RequestOptions = protocol.PublicKeyCredentialRequestOptions

// ParseRequestOptions parses request options in their JSON transport encoding. Options wrapped
// in a "publicKey" member are accepted as well.
func ParseRequestOptions(data string) (*RequestOptions, error) {
	var assertion protocol.CredentialAssertion
	if err := json.Unmarshal([]byte(data), &assertion); err != nil {
		return nil, errors.Wrap(err, "unable to parse webauthn request options")
	}
	options := &assertion.Response
	if len(options.Challenge) == 0 {
		options = &RequestOptions{}
		if err := json.Unmarshal([]byte(data), options); err != nil {
			return nil, errors.Wrap(err, "unable to parse webauthn request options")
		}
	}
	if len(options.Challenge) == 0 {
		return nil, errors.New("webauthn request options without challenge")
	}
	return options, nil
}

// decodeAuthenticatorData unwraps the CBOR byte string in which authenticators return the
// authenticator data.
func decodeAuthenticatorData(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty authenticator data")
	}
	var authData []byte
	if err := cbor.Unmarshal(data, &authData); err != nil {
		return nil, errors.Wrap(err, "invalid authenticator data")
	}
	return authData, nil
}

// Credential is a PublicKeyCredential carrying an assertion response.
type Credential struct {
	ID                string
	RawID             []byte
	Type              string
	AuthenticatorData []byte
	ClientDataJSON    []byte
	Signature         []byte
	// UserHandle is nil when the authenticator did not return one.
	UserHandle []byte
}

type encodedResponse struct {
	AuthenticatorData string  `json:"authenticatorData"`
	ClientDataJSON    string  `json:"clientDataJson"`
	Signature         string  `json:"signature"`
	UserHandle        *string `json:"userHandle"`
}

type encodedCredential struct {
	ID         string                 `json:"id"`
	RawID      string                 `json:"rawId"`
	Type       string                 `json:"type"`
	Extensions map[string]interface{} `json:"extensions"`
	Response   encodedResponse        `json:"response"`
}

// EncodeCredential renders the credential in the form the signing authority expects as FIDO2
// result. Binary fields are standard base64, a missing user handle is an explicit null.
func EncodeCredential(c *Credential) (string, error) {
	enc := base64.StdEncoding
	out := encodedCredential{
		ID:         c.ID,
		RawID:      enc.EncodeToString(c.RawID),
		Type:       c.Type,
		Extensions: map[string]interface{}{},
		Response: encodedResponse{
			AuthenticatorData: enc.EncodeToString(c.AuthenticatorData),
			ClientDataJSON:    enc.EncodeToString(c.ClientDataJSON),
			Signature:         enc.EncodeToString(c.Signature),
		},
	}
	if c.UserHandle != nil {
		handle := enc.EncodeToString(c.UserHandle)
		out.Response.UserHandle = &handle
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ClientDataJSON builds the collected client data of a webauthn.get ceremony and its SHA-256
// hash, which is what the authenticator signs.
func ClientDataJSON(challenge []byte, origin string) ([]byte, []byte, error) {
	data, err := json.Marshal(protocol.CollectedClientData{
		Type:      protocol.AssertCeremony,
		Challenge: protocol.URLEncodedBase64(challenge).String(),
		Origin:    origin,
	})
	if err != nil {
		return nil, nil, err
	}
	hash := sha256.Sum256(data)
	return data, hash[:], nil
}

// Authenticator produces assertions for request options.
type Authenticator interface {
	// Available reports whether assertions can be requested at all.
	Available() bool
	// GetAssertion runs the assertion ceremony for the given origin.
	GetAssertion(ctx context.Context, origin string, options *RequestOptions) (*Credential, error)
}

// Unavailable is the Authenticator of platforms without FIDO2 support.
type Unavailable struct{}

// Available returns false
func (Unavailable) Available() bool {
	return false
}

// GetAssertion always fails with ErrUnavailable
func (Unavailable) GetAssertion(context.Context, string, *RequestOptions) (*Credential, error) {
	return nil, ErrUnavailable
}
