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
	"regexp"
	"strings"

	"github.com/nuts-foundation/nuts-mobile-signer/pkg/transport"
	"golang.org/x/net/html"
)

// Names and ids of the elements of the signing authority's pages.
const (
	fieldMobileNumber    = "handynummer"
	fieldPassword        = "signaturpasswort"
	fieldTAN             = "input_tan"
	buttonSign           = "SignButton"
	buttonSMS            = "SmsButton"
	buttonFIDO2          = "FidoButton"
	buttonIdentification = "Button_Identification"
	buttonQR             = "QrButton"
	idErrorLabel         = "Label1"
	classError           = "ErrorClass"
	idRefValue           = "vergleichswert"
	idSignatureData      = "LinkList"
	idQRImage            = "qrimage"
	attrQRContent        = "data-qr-content"
	idFIDO2Form          = "fidoform"
	idFIDO2Options       = "fido2Options"
	idFIDO2Result        = "fido2Result"
	idTriesExhausted     = "tanTriesExhausted"
)

// PollMarker is contained in pages for which the signing authority awaits an asynchronous
// confirmation.
const PollMarker = "undecided.aspx?sid="

var pollURLPattern = regexp.MustCompile(`[^"'\s<>]*undecided\.aspx\?sid=[^"'\s<>&]*`)

// form is a scraped html form.
type form struct {
	id     string
	action string
	hidden url.Values
	// names of hidden inputs by id
	hiddenIDs map[string]string
}

// Page is what the engine needs to know of a page of the signing authority.
type Page struct {
	Body string
	// form is the first form of the page, nil when there is none.
	form      *form
	fido2Form *form
	// fields holds the names and ids of all inputs and buttons.
	fields map[string]bool

	ErrorMessage     string
	RefValue         string
	SignatureDataURL string
	QRImageURL       string
	QRContent        string
	TriesExhausted   bool
	// PollURL is the possibly relative url of the undecided status, empty when not awaiting confirmation.
	PollURL string
}

// ParsePage scrapes a page of the signing authority.
func ParsePage(body string) (*Page, error) {
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, transport.WrapProtocolError(err, "unparsable page")
	}
	p := &Page{Body: body, fields: map[string]bool{}}
	p.walk(root, nil)
	if strings.Contains(body, PollMarker) {
		p.PollURL = html.UnescapeString(pollURLPattern.FindString(body))
	}
	return p, nil
}

// Has reports whether the page contains an input or button with the given name or id.
func (p *Page) Has(field string) bool {
	return p.fields[field]
}

// CredentialForm reports whether the page asks for mobile number and password.
func (p *Page) CredentialForm() bool {
	return p.Has(fieldMobileNumber) || p.Has(fieldPassword)
}

// TANField reports whether the page asks for a TAN.
func (p *Page) TANField() bool {
	return p.Has(fieldTAN)
}

func (p *Page) walk(n *html.Node, current *form) {
	if n.Type == html.ElementNode {
		id := attr(n, "id")
		switch n.Data {
		case "form":
			f := &form{id: id, action: attr(n, "action"), hidden: url.Values{}, hiddenIDs: map[string]string{}}
			if p.form == nil {
				p.form = f
			}
			if id == idFIDO2Form {
				p.fido2Form = f
			}
			current = f
		case "input", "button", "select", "textarea":
			p.input(n, id, current)
		case "img":
			if id == idQRImage {
				p.QRImageURL = attr(n, "src")
				p.QRContent = attr(n, attrQRContent)
			}
		case "a":
			if id == idSignatureData && p.SignatureDataURL == "" {
				p.SignatureDataURL = attr(n, "href")
			}
		}
		switch {
		case id == idTriesExhausted:
			p.TriesExhausted = true
		case id == idErrorLabel || hasClass(n, classError):
			if msg := text(n); msg != "" && p.ErrorMessage == "" {
				p.ErrorMessage = msg
			}
		case id == idRefValue:
			p.RefValue = text(n)
		case id == idSignatureData && n.Data != "a" && p.SignatureDataURL == "":
			if a := find(n, "a"); a != nil {
				p.SignatureDataURL = attr(a, "href")
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c, current)
	}
}

func (p *Page) input(n *html.Node, id string, current *form) {
	name := attr(n, "name")
	if name != "" {
		p.fields[name] = true
	}
	if id != "" {
		p.fields[id] = true
	}
	if current == nil || n.Data != "input" || !strings.EqualFold(attr(n, "type"), "hidden") || name == "" {
		return
	}
	current.hidden.Add(name, attr(n, "value"))
	if id != "" {
		current.hiddenIDs[id] = name
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func text(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func find(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
		if found := find(c, tag); found != nil {
			return found
		}
	}
	return nil
}
