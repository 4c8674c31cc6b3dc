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

package sl

import (
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow(t *testing.T) {
	NowFunc = func() time.Time {
		return time.Date(2020, time.March, 2, 14, 30, 0, 0, time.UTC)
	}
	t.Cleanup(func() {
		NowFunc = time.Now
	})
}

func TestNewRequest(t *testing.T) {
	t.Run("ok - embedded document", func(t *testing.T) {
		fixedNow(t)

		request, err := NewRequest(RequestParams{Document: []byte("pdf"), Description: "Contract"})

		require.NoError(t, err)
		assert.Nil(t, request.SignatureData)
		assert.Contains(t, request.XML, `Structure="enveloping"`)
		assert.Contains(t, request.XML, "<sl:Base64Content>cGRm</sl:Base64Content>")
		assert.Contains(t, request.XML, "<sl:KeyboxIdentifier>SecureSignatureKeypair</sl:KeyboxIdentifier>")
		assert.Contains(t, request.XML, "<sl:MimeType>application/pdf</sl:MimeType>")
		assert.Contains(t, request.XML, "Contract (Montag 2 März 2020 14:30)")
	})

	t.Run("ok - detached document", func(t *testing.T) {
		fixedNow(t)

		request, err := NewRequest(RequestParams{Document: []byte("pdf"), Detached: true, Locale: "en_US"})

		require.NoError(t, err)
		assert.Equal(t, []byte("pdf"), request.SignatureData)
		assert.Contains(t, request.XML, `Reference="formdata:fileupload"`)
		assert.NotContains(t, request.XML, "Base64Content")
		assert.Contains(t, request.XML, "Monday 2 March 2020 14:30")
	})

	t.Run("ok - description is escaped", func(t *testing.T) {
		request, err := NewRequest(RequestParams{Document: []byte("pdf"), Description: "A & <B>"})

		require.NoError(t, err)
		assert.Contains(t, request.XML, "A &amp; &lt;B&gt;")
	})

	t.Run("error - empty document", func(t *testing.T) {
		_, err := NewRequest(RequestParams{})

		assert.True(t, errors.Is(err, ErrEmptyDocument))
	})
}

const signatureResponse = `<?xml version="1.0" encoding="UTF-8"?>
<sl:CreateXMLSignatureResponse xmlns:sl="http://www.buergerkarte.at/namespaces/securitylayer/1.2#">
<dsig:Signature xmlns:dsig="http://www.w3.org/2000/09/xmldsig#"><dsig:SignatureValue>
c2lnbmF0dXJl
</dsig:SignatureValue></dsig:Signature>
</sl:CreateXMLSignatureResponse>`

func TestParseResponse(t *testing.T) {
	t.Run("ok - signature response", func(t *testing.T) {
		assert.True(t, IsResponse(signatureResponse))

		response, err := ParseResponse(signatureResponse)

		require.NoError(t, err)
		assert.Equal(t, "c2lnbmF0dXJl", response.SignatureValue)
		assert.True(t, strings.Contains(response.XML, "CreateXMLSignatureResponse"))
	})

	t.Run("ok - response embedded in a page", func(t *testing.T) {
		body := "<html><body>" + strings.TrimPrefix(signatureResponse, `<?xml version="1.0" encoding="UTF-8"?>`) + "</body></html>"

		response, err := ParseResponse(body)

		require.NoError(t, err)
		assert.Equal(t, "c2lnbmF0dXJl", response.SignatureValue)
	})

	t.Run("ok - namespaces declared around the response are kept", func(t *testing.T) {
		body := `<!DOCTYPE html><html><head><meta charset="utf-8"></head><body>` +
			`<p xmlns:x="urn:sibling">closed</p>` +
			`<div xmlns:sl="` + Namespace + `" xmlns:dsig="urn:outer"><span xmlns:dsig="http://www.w3.org/2000/09/xmldsig#">` +
			`<sl:CreateXMLSignatureResponse><dsig:Signature><dsig:SignatureValue>c2ln</dsig:SignatureValue></dsig:Signature>` +
			`</sl:CreateXMLSignatureResponse></span></div></body></html>`

		response, err := ParseResponse(body)

		require.NoError(t, err)
		assert.Equal(t, "c2ln", response.SignatureValue)
		doc := etree.NewDocument()
		require.NoError(t, doc.ReadFromString(response.XML))
		root := doc.Root()
		assert.Equal(t, Namespace, root.NamespaceURI())
		assert.Equal(t, "http://www.w3.org/2000/09/xmldsig#", root.SelectAttrValue("xmlns:dsig", ""))
		assert.Nil(t, root.SelectAttr("xmlns:x"))
	})

	t.Run("ok - own declaration wins over the enclosing one", func(t *testing.T) {
		body := `<div xmlns:sl="urn:outer"><sl:CreateXMLSignatureResponse xmlns:sl="` + Namespace + `"></sl:CreateXMLSignatureResponse></div>`

		response, err := ParseResponse(body)

		require.NoError(t, err)
		assert.Contains(t, response.XML, `xmlns:sl="`+Namespace+`"`)
		assert.NotContains(t, response.XML, "urn:outer")
	})

	t.Run("ok - CMS signature", func(t *testing.T) {
		body := `<sl:CreateCMSSignatureResponse xmlns:sl="x"><sl:CMSSignature>Y21z</sl:CMSSignature></sl:CreateCMSSignatureResponse>`

		response, err := ParseResponse(body)

		require.NoError(t, err)
		assert.Equal(t, "Y21z", response.SignatureValue)
	})

	t.Run("error - error response", func(t *testing.T) {
		body := `<sl:ErrorResponse xmlns:sl="x"><sl:ErrorCode>6001</sl:ErrorCode><sl:Info>Abbruch durch den Benutzer</sl:Info></sl:ErrorResponse>`
		assert.True(t, IsResponse(body))

		_, err := ParseResponse(body)

		var slErr *ErrorResponse
		require.True(t, errors.As(err, &slErr))
		assert.Equal(t, "6001", slErr.Code)
		assert.Equal(t, "Abbruch durch den Benutzer", slErr.Info)
		assert.Equal(t, "security layer error 6001: Abbruch durch den Benutzer", err.Error())
	})

	t.Run("error - plain page", func(t *testing.T) {
		assert.False(t, IsResponse("<html><form></form></html>"))

		_, err := ParseResponse("<html></html>")

		assert.Error(t, err)
	})
}
