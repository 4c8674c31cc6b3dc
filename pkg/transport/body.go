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

package transport

import (
	"bytes"
	"encoding/base64"
	"mime/multipart"
	"net/textproto"
	"net/url"

	"github.com/pkg/errors"
)

// ContentKind identifies how a request body is encoded on the wire.
type ContentKind int

const (
	// ContentForm is an application/x-www-form-urlencoded body
	ContentForm ContentKind = iota + 1
	// ContentMultipart is a multipart/form-data body with text fields and binary attachments
	ContentMultipart
	// ContentBase64Field is a form body in which one field carries base64 encoded binary content
	ContentBase64Field
)

func (k ContentKind) String() string {
	switch k {
	case ContentForm:
		return "form"
	case ContentMultipart:
		return "multipart"
	case ContentBase64Field:
		return "base64"
	}
	return "unknown"
}

// Body is a request body which knows its own encoding.
type Body interface {
	Kind() ContentKind
	// Encode returns the content type and the encoded bytes of the body.
	Encode() (string, []byte, error)
}

const formContentType = "application/x-www-form-urlencoded"

// FormBody is a URL form encoded body.
type FormBody struct {
	Values url.Values
}

// Kind returns ContentForm
func (b FormBody) Kind() ContentKind {
	return ContentForm
}

// Encode encodes the form values.
func (b FormBody) Encode() (string, []byte, error) {
	return formContentType, []byte(b.Values.Encode()), nil
}

// Field is a single text part of a multipart body.
type Field struct {
	Name  string
	Value string
}

// File is a binary part of a multipart body.
type File struct {
	Name        string
	FileName    string
	ContentType string
	Data        []byte
}

// MultipartBody holds text fields followed by file attachments, in order.
type MultipartBody struct {
	Fields []Field
	Files  []File
}

// Kind returns ContentMultipart
func (b MultipartBody) Kind() ContentKind {
	return ContentMultipart
}

// Encode writes all parts using a fresh boundary.
func (b MultipartBody) Encode() (string, []byte, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for _, f := range b.Fields {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+escapeQuotes(f.Name)+`"`)
		h.Set("Content-Type", "text/plain; charset=UTF-8")
		part, err := w.CreatePart(h)
		if err != nil {
			return "", nil, errors.Wrapf(err, "could not create multipart field %s", f.Name)
		}
		if _, err := part.Write([]byte(f.Value)); err != nil {
			return "", nil, errors.Wrapf(err, "could not write multipart field %s", f.Name)
		}
	}

	for _, f := range b.Files {
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+escapeQuotes(f.Name)+`"; filename="`+escapeQuotes(f.FileName)+`"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return "", nil, errors.Wrapf(err, "could not create multipart file %s", f.Name)
		}
		if _, err := part.Write(f.Data); err != nil {
			return "", nil, errors.Wrapf(err, "could not write multipart file %s", f.Name)
		}
	}

	if err := w.Close(); err != nil {
		return "", nil, errors.Wrap(err, "could not close multipart body")
	}
	return w.FormDataContentType(), buf.Bytes(), nil
}

// Base64FieldBody is a form body where Field holds Data as standard base64, next to the plain Values.
type Base64FieldBody struct {
	Field  string
	Data   []byte
	Values url.Values
}

// Kind returns ContentBase64Field
func (b Base64FieldBody) Kind() ContentKind {
	return ContentBase64Field
}

// Encode embeds the binary content and form encodes the result.
func (b Base64FieldBody) Encode() (string, []byte, error) {
	if b.Field == "" {
		return "", nil, errors.New("base64 body without field name")
	}
	values := url.Values{}
	for k, v := range b.Values {
		values[k] = append([]string(nil), v...)
	}
	values.Set(b.Field, base64.StdEncoding.EncodeToString(b.Data))
	return formContentType, []byte(values.Encode()), nil
}

func escapeQuotes(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '"' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
