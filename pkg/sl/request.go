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
	"encoding/base64"
	"time"

	"github.com/cbroglie/mustache"
	"github.com/goodsign/monday"
	"github.com/pkg/errors"
)

// Namespace is the security layer 1.2 xml namespace.
const Namespace = "http://www.buergerkarte.at/namespaces/securitylayer/1.2#"

// DetachedReference refers to the document uploaded next to the request in the multipart
// encoding.
const DetachedReference = "formdata:fileupload"

const signingTimeLayout = "Monday 2 January 2006 15:04"

// Request is the SL request posted to the signing authority. It is read-only to the connector.
type Request struct {
	// XML is the CreateXMLSignatureRequest document.
	XML string
	// SignatureData is the optional binary content sent as the fileupload part.
	SignatureData []byte
}

// RequestParams holds the values rendered into a CreateXMLSignatureRequest.
type RequestParams struct {
	KeyboxIdentifier string
	MimeType         string
	Description      string
	// Document is sent detached when Detached is set, otherwise it is embedded as base64 content.
	Document []byte
	Detached bool
	// Locale of the signing time in the description, for example "de_DE". Defaults to de_DE.
	Locale string
}

// NowFunc returns the signing time. It can be replaced in tests.
var NowFunc = time.Now

// ErrEmptyDocument is returned when a request is built without document.
var ErrEmptyDocument = errors.New("document to sign is empty")

const requestTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<sl:CreateXMLSignatureRequest xmlns:sl="{{namespace}}">
<sl:KeyboxIdentifier>{{keybox}}</sl:KeyboxIdentifier>
<sl:DataObjectInfo Structure="{{structure}}">
<sl:DataObject{{#detached}} Reference="{{reference}}"{{/detached}}>{{^detached}}<sl:Base64Content>{{content}}</sl:Base64Content>{{/detached}}</sl:DataObject>
<sl:TransformsInfo><sl:FinalDataMetaInfo><sl:MimeType>{{mimeType}}</sl:MimeType><sl:Description>{{description}} ({{signingTime}})</sl:Description></sl:FinalDataMetaInfo></sl:TransformsInfo>
</sl:DataObjectInfo>
</sl:CreateXMLSignatureRequest>`

// NewRequest renders a CreateXMLSignatureRequest for the given document.
func NewRequest(params RequestParams) (*Request, error) {
	if len(params.Document) == 0 {
		return nil, ErrEmptyDocument
	}
	if params.KeyboxIdentifier == "" {
		params.KeyboxIdentifier = "SecureSignatureKeypair"
	}
	if params.MimeType == "" {
		params.MimeType = "application/pdf"
	}
	locale := monday.Locale(monday.LocaleDeDE)
	if params.Locale != "" {
		locale = monday.Locale(params.Locale)
	}

	vars := map[string]interface{}{
		"namespace":   Namespace,
		"keybox":      params.KeyboxIdentifier,
		"structure":   "enveloping",
		"detached":    params.Detached,
		"reference":   DetachedReference,
		"mimeType":    params.MimeType,
		"description": params.Description,
		"signingTime": monday.Format(NowFunc(), signingTimeLayout, locale),
	}
	if params.Detached {
		vars["structure"] = "detached"
	} else {
		vars["content"] = base64.StdEncoding.EncodeToString(params.Document)
	}

	xml, err := mustache.Render(requestTemplate, vars)
	if err != nil {
		return nil, errors.Wrap(err, "could not render SL request")
	}

	request := &Request{XML: xml}
	if params.Detached {
		request.SignatureData = params.Document
	}
	return request, nil
}
