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

//go:build libfido2

package webauthn

import (
	"context"
	"net/url"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/keys-pub/go-libfido2"
	"github.com/nuts-foundation/nuts-mobile-signer/logging"
	"github.com/pkg/errors"
)

// DeviceAuthenticator requests assertions from the first connected FIDO2 device.
type DeviceAuthenticator struct {
	PIN string
}

// Platform returns the authenticator of this build.
func Platform(pin string) Authenticator {
	return &DeviceAuthenticator{PIN: pin}
}

// Available reports whether a FIDO2 device is connected
func (a *DeviceAuthenticator) Available() bool {
	locations, err := libfido2.DeviceLocations()
	if err != nil {
		logging.Log().WithError(err).Debug("Unable to list FIDO2 devices")
		return false
	}
	return len(locations) > 0
}

type assertionResult struct {
	assertion *libfido2.Assertion
	err       error
}

// GetAssertion asks the first connected device for an assertion. The user has to touch the device.
func (a *DeviceAuthenticator) GetAssertion(ctx context.Context, origin string, options *RequestOptions) (*Credential, error) {
	locations, err := libfido2.DeviceLocations()
	if err != nil {
		return nil, errors.Wrap(err, "unable to list FIDO2 devices")
	}
	if len(locations) == 0 {
		return nil, ErrUnavailable
	}
	device, err := libfido2.NewDevice(locations[0].Path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open FIDO2 device %s", locations[0].Path)
	}

	clientDataJSON, clientDataHash, err := ClientDataJSON(options.Challenge, origin)
	if err != nil {
		return nil, err
	}
	rpID := options.RelyingPartyID
	if rpID == "" {
		if u, err := url.Parse(origin); err == nil {
			rpID = u.Hostname()
		}
	}
	var credentialIDs [][]byte
	for _, c := range options.AllowedCredentials {
		credentialIDs = append(credentialIDs, c.CredentialID)
	}
	opts := &libfido2.AssertionOpts{UP: libfido2.True}
	if options.UserVerification == protocol.VerificationRequired {
		opts.UV = libfido2.True
	}

	done := make(chan assertionResult, 1)
	go func() {
		assertion, err := device.Assertion(rpID, clientDataHash, credentialIDs, a.PIN, opts)
		done <- assertionResult{assertion, err}
	}()
	var result assertionResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result = <-done:
	}
	if result.err != nil {
		return nil, errors.Wrap(result.err, "FIDO2 assertion failed")
	}

	authData, err := decodeAuthenticatorData(result.assertion.AuthDataCBOR)
	if err != nil {
		return nil, err
	}
	rawID := result.assertion.CredentialID
	if len(rawID) == 0 && len(credentialIDs) == 1 {
		rawID = credentialIDs[0]
	}
	credential := &Credential{
		ID:                protocol.URLEncodedBase64(rawID).String(),
		RawID:             rawID,
		Type:              "public-key",
		AuthenticatorData: authData,
		ClientDataJSON:    clientDataJSON,
		Signature:         result.assertion.Sig,
	}
	if len(result.assertion.User.ID) > 0 {
		credential.UserHandle = result.assertion.User.ID
	}
	return credential, nil
}
