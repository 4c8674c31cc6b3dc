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
)

// Kind discriminates the credential flows.
type Kind int

const (
	// KindPassword is a static signature password followed by a TAN or app confirmation.
	KindPassword Kind = iota
	// KindSMSTan sends the TAN by SMS.
	KindSMSTan
	// KindQRPoll confirms by scanning a QR code with the signature app.
	KindQRPoll
	// KindFIDO2 confirms with a FIDO2/WebAuthn assertion.
	KindFIDO2
)

func (k Kind) String() string {
	switch k {
	case KindPassword:
		return "password"
	case KindSMSTan:
		return "sms-tan"
	case KindQRPoll:
		return "qr-poll"
	case KindFIDO2:
		return "fido2"
	default:
		return "unknown"
	}
}

// Flow is the credential mechanism of a round. Exactly one of *PasswordFlow, *SMSTanFlow,
// *QRPollFlow and *FIDO2Flow.
type Flow interface {
	Kind() Kind
	// absorb takes the variant specific values from a page of the signing authority.
	absorb(p *Page)
}

// PasswordFlow has no state of its own.
type PasswordFlow struct{}

// Kind returns KindPassword
func (*PasswordFlow) Kind() Kind { return KindPassword }

func (*PasswordFlow) absorb(*Page) {}

// SMSTanFlow tracks whether an SMS was requested in the current round.
type SMSTanFlow struct {
	SMSRequested bool
}

// Kind returns KindSMSTan
func (*SMSTanFlow) Kind() Kind { return KindSMSTan }

func (f *SMSTanFlow) absorb(p *Page) {
	if p.TANField() {
		f.SMSRequested = true
	}
}

// QRPollFlow holds the QR code the signature app has to scan. An empty code means the
// signing authority withdrew it, for instance after falling back to SMS.
type QRPollFlow struct {
	ImageURL string
	Content  string
}

// Kind returns KindQRPoll
func (*QRPollFlow) Kind() Kind { return KindQRPoll }

func (f *QRPollFlow) absorb(p *Page) {
	f.ImageURL = p.QRImageURL
	f.Content = p.QRContent
}

// Pending reports whether a QR code is waiting to be scanned.
func (f *QRPollFlow) Pending() bool {
	return f.ImageURL != "" || f.Content != ""
}

// FIDO2Flow holds the FIDO2 form once it was requested from the signing authority.
type FIDO2Flow struct {
	// Action is the target of the FIDO2 form.
	Action string
	// Options are the form fields of the FIDO2 form, nil until fetched.
	Options url.Values
	// OptionsKey names the field holding the request options.
	OptionsKey string
	// ResultKey names the field the encoded credential is returned in.
	ResultKey string
	// Degraded is set once an assertion failed; the round continues with TAN entry.
	Degraded bool
}

// Kind returns KindFIDO2
func (*FIDO2Flow) Kind() Kind { return KindFIDO2 }

func (f *FIDO2Flow) absorb(p *Page) {
	if p.fido2Form == nil {
		return
	}
	fields := url.Values{}
	for k, v := range p.fido2Form.hidden {
		fields[k] = append([]string(nil), v...)
	}
	f.Action = p.fido2Form.action
	f.Options = fields
	f.OptionsKey = p.fido2Form.hiddenIDs[idFIDO2Options]
	f.ResultKey = p.fido2Form.hiddenIDs[idFIDO2Result]
	if f.ResultKey == "" {
		f.ResultKey = idFIDO2Result
	}
}

// RequestOptions returns the encoded request options, empty when not fetched yet.
func (f *FIDO2Flow) RequestOptions() string {
	if f.Options == nil || f.OptionsKey == "" {
		return ""
	}
	return f.Options.Get(f.OptionsKey)
}

// selectFlow picks the flow for a round from the capabilities the signing authority declares on
// its response to the SL request. FIDO2 wins over QR, QR over SMS, and SMS over a plain password.
func selectFlow(p *Page) Flow {
	switch {
	case p.Has(buttonFIDO2) || p.fido2Form != nil:
		f := &FIDO2Flow{}
		f.absorb(p)
		return f
	case p.QRImageURL != "" || p.QRContent != "" || p.Has(buttonQR):
		f := &QRPollFlow{}
		f.absorb(p)
		return f
	case p.Has(buttonSMS):
		return &SMSTanFlow{}
	default:
		return &PasswordFlow{}
	}
}
