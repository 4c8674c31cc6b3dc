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

package fakebku

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// PageOptions describes a page of the fake signing authority.
type PageOptions struct {
	// Action is the target of the page's form.
	Action string
	Hidden map[string]string
	Error  string
	// Buttons adds SmsButton, FidoButton or QrButton.
	SMS   bool
	FIDO2 bool
	QR    bool
	// RefValue is shown as vergleichswert, with a LinkList link to the signature data.
	RefValue string
	// PollURL adds the undecided status url to the page.
	PollURL string
}

func (o PageOptions) form(inner string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<form method="post" action="%s">`, html.EscapeString(o.Action))
	keys := make([]string, 0, len(o.Hidden))
	for k := range o.Hidden {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, `<input type="hidden" name="%s" id="%s" value="%s"/>`, html.EscapeString(k), html.EscapeString(k), html.EscapeString(o.Hidden[k]))
	}
	sb.WriteString(inner)
	if o.SMS {
		sb.WriteString(`<input type="submit" name="SmsButton" id="SmsButton" value="SMS"/>`)
	}
	if o.FIDO2 {
		sb.WriteString(`<input type="submit" name="FidoButton" id="FidoButton" value="FIDO"/>`)
	}
	if o.QR {
		sb.WriteString(`<input type="submit" name="QrButton" id="QrButton" value="QR"/>`)
	}
	sb.WriteString(`</form>`)
	return sb.String()
}

func (o PageOptions) extras() string {
	var sb strings.Builder
	if o.Error != "" {
		fmt.Fprintf(&sb, `<span id="Label1" class="ErrorClass">%s</span>`, html.EscapeString(o.Error))
	}
	if o.RefValue != "" {
		fmt.Fprintf(&sb, `<span id="vergleichswert">%s</span><a id="LinkList" href="../signaturedata.aspx">Signaturdaten</a>`, html.EscapeString(o.RefValue))
	}
	if o.PollURL != "" {
		fmt.Fprintf(&sb, `<script>var pollUrl = '%s';</script>`, o.PollURL)
	}
	return sb.String()
}

func page(title, body string) string {
	return `<!DOCTYPE html><html><head><title>` + title + `</title></head><body>` + body + `</body></html>`
}

// CredentialsPage asks for mobile number and signature password.
func CredentialsPage(o PageOptions) string {
	return page("Identifikation", o.extras()+o.form(
		`<input type="text" name="handynummer" id="handynummer"/>`+
			`<input type="password" name="signaturpasswort" id="signaturpasswort"/>`+
			`<input type="submit" name="Button_Identification" value="Identifizieren"/>`))
}

// TANPage asks for the TAN.
func TANPage(o PageOptions) string {
	return page("TAN", o.extras()+o.form(
		`<input type="text" name="input_tan" id="input_tan"/>`+
			`<input type="submit" name="SignButton" id="SignButton" value="Signieren"/>`))
}

// UndecidedPage waits for confirmation in the signature app.
func UndecidedPage(o PageOptions) string {
	return page("Bitte bestätigen", o.extras()+o.form(""))
}

// FingerprintPage shows the reference value while waiting for confirmation in the app.
func FingerprintPage(o PageOptions) string {
	return page("Signatur bestätigen", o.extras()+o.form(""))
}

// QRPage shows a QR code to scan with the signature app.
func QRPage(o PageOptions, imageURL, content string) string {
	img := fmt.Sprintf(`<img id="qrimage" src="%s" data-qr-content="%s"/>`, html.EscapeString(imageURL), html.EscapeString(content))
	return page("QR", img+o.extras()+o.form(""))
}

// FIDO2Page carries the FIDO2 request options.
func FIDO2Page(o PageOptions, fidoAction, options string) string {
	fido := fmt.Sprintf(`<form id="fidoform" method="post" action="%s">`+
		`<input type="hidden" name="FidoOptions" id="fido2Options" value="%s"/>`+
		`<input type="hidden" name="FidoResult" id="fido2Result" value=""/></form>`,
		html.EscapeString(fidoAction), html.EscapeString(options))
	return page("FIDO2", o.extras()+o.form("")+fido)
}

// ExhaustedPage reports that no more attempts are allowed.
func ExhaustedPage() string {
	return page("Gesperrt", `<div id="tanTriesExhausted">Zu viele Fehlversuche</div>`)
}

// MetaRefreshPage redirects to target the way the signing authority does.
func MetaRefreshPage(target string) string {
	return `<html><head><meta http-equiv="refresh" content="0; URL=&#39;` + target + `&#39;"></head><body></body></html>`
}

// SignatureResponse is a successful SL response carrying signatureValue.
func SignatureResponse(signatureValue string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<sl:CreateXMLSignatureResponse xmlns:sl="http://www.buergerkarte.at/namespaces/securitylayer/1.2#">` +
		`<dsig:Signature xmlns:dsig="http://www.w3.org/2000/09/xmldsig#"><dsig:SignatureValue>` + signatureValue +
		`</dsig:SignatureValue></dsig:Signature></sl:CreateXMLSignatureResponse>`
}

// ErrorResponse is an SL error response.
func ErrorResponse(code, info string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<sl:ErrorResponse xmlns:sl="http://www.buergerkarte.at/namespaces/securitylayer/1.2#">` +
		`<sl:ErrorCode>` + code + `</sl:ErrorCode><sl:Info>` + info + `</sl:Info></sl:ErrorResponse>`
}
