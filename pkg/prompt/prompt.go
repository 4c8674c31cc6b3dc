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

// Package prompt defines the port through which a signing run asks the user for input and shows
// information. Presentation is up to the implementation.
package prompt

//go:generate mockgen -destination=../../mock/prompt/mock.go -package=prompt -source=prompt.go

import "context"

// Outcome is the user's decision at a prompt.
type Outcome int

const (
	// Continue proceeds with the entered values.
	Continue Outcome = iota
	// Retry asks for the current step to be repeated. At the TAN prompt it resends the SMS.
	Retry
	// Cancelled aborts the signing run.
	Cancelled
	// SendSMS switches to a one-time code sent by SMS.
	SendSMS
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Retry:
		return "retry"
	case Cancelled:
		return "cancelled"
	case SendSMS:
		return "sms"
	default:
		return "unknown"
	}
}

// Credentials are the mobile number and signature password of the signer.
type Credentials struct {
	MobileNumber string
	Password     string
}

// CredentialsRequest is shown when credentials are needed.
type CredentialsRequest struct {
	// MobileNumber is the last used number, as a default.
	MobileNumber string
	// ErrorMessage explains why previous credentials were rejected, empty on the first prompt.
	ErrorMessage string
}

// TANRequest is shown when a one-time code is needed.
type TANRequest struct {
	RefValue         string
	SignatureDataURL string
	ErrorMessage     string
	// Tries is the number of rejected codes so far.
	Tries int
}

// OpenAppInfo is shown while the signing authority waits for confirmation in the mobile app.
type OpenAppInfo struct {
	SMSAvailable bool
}

// QRInfo is shown while the signing authority waits for the QR code to be scanned.
type QRInfo struct {
	ImageURL         string
	Content          string
	RefValue         string
	SignatureDataURL string
	SMSAvailable     bool
}

// FingerprintInfo is shown while the signing authority waits for confirmation of the signature
// fingerprint in the mobile app.
type FingerprintInfo struct {
	RefValue         string
	SignatureDataURL string
	ErrorMessage     string
	SMSAvailable     bool
}

// Port is the user facing side of a signing run. All calls block until the user acts. The Show
// calls also return, with Continue, as soon as ctx is done; the signing run cancels ctx when the
// signing authority reports completion on its own.
type Port interface {
	Credentials(ctx context.Context, request CredentialsRequest) (Credentials, Outcome, error)
	TAN(ctx context.Context, request TANRequest) (string, Outcome, error)
	ShowOpenApp(ctx context.Context, info OpenAppInfo) (Outcome, error)
	ShowQR(ctx context.Context, info QRInfo) (Outcome, error)
	ShowFingerprint(ctx context.Context, info FingerprintInfo) (Outcome, error)
}
