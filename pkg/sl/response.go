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
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"github.com/pkg/errors"
)

var responseStart = regexp.MustCompile(`<(?:([\w.-]+):)?(CreateXMLSignatureResponse|CreateCMSSignatureResponse|ErrorResponse)[\s/>]`)

// Response is the terminal result of a signing run: the SL response document of the signing
// authority.
type Response struct {
	// XML is the response element serialized as a standalone document.
	XML string
	// SignatureValue is the text of the first SignatureValue or CMSSignature element, if any.
	SignatureValue string
}

// ErrorResponse is an SL ErrorResponse returned by the signing authority.
type ErrorResponse struct {
	Code string
	Info string
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("security layer error %s: %s", e.Code, e.Info)
}

// IsResponse reports whether the body carries an SL response.
func IsResponse(body string) bool {
	return responseStart.MatchString(body)
}

// ParseResponse extracts the SL response from the body. An SL ErrorResponse is returned as
// *ErrorResponse error.
func ParseResponse(body string) (*Response, error) {
	loc := responseStart.FindStringSubmatchIndex(body)
	if loc == nil {
		return nil, errors.New("no SL response found")
	}
	fragment := body[loc[0]:]
	name := body[loc[4]:loc[5]]
	closing := "</" + name + ">"
	if loc[2] != -1 {
		closing = "</" + body[loc[2]:loc[3]] + ":" + name + ">"
	}
	if end := strings.LastIndex(fragment, closing); end != -1 {
		fragment = fragment[:end+len(closing)]
	}

	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromString(fragment); err != nil {
		return nil, errors.Wrap(err, "unable to parse SL response")
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New("empty SL response")
	}

	if root.Tag == "ErrorResponse" {
		return nil, &ErrorResponse{
			Code: childText(root, "ErrorCode"),
			Info: childText(root, "Info"),
		}
	}

	inheritNamespaces(root, body[:loc[0]])
	serialized, err := doc.WriteToString()
	if err != nil {
		return nil, errors.Wrap(err, "unable to serialize SL response")
	}
	response := &Response{XML: serialized}
	for _, path := range []string{".//SignatureValue", ".//CMSSignature"} {
		if el := root.FindElement(path); el != nil {
			response.SignatureValue = strings.TrimSpace(el.Text())
			break
		}
	}
	return response, nil
}

// inheritNamespaces declares on root the namespaces it inherits from the markup enclosing it, so
// the extracted response stays a namespace-well-formed document.
func inheritNamespaces(root *etree.Element, enclosing string) {
	scope := enclosingNamespaces(enclosing)
	prefixes := make([]string, 0, len(scope))
	for prefix := range scope {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		key := "xmlns"
		if prefix != "" {
			key += ":" + prefix
		}
		if root.SelectAttr(key) == nil {
			root.CreateAttr(key, scope[prefix])
		}
	}
}

// enclosingNamespaces returns the namespace declarations of the elements still open at the end of
// markup. Inner declarations shadow outer ones.
func enclosingNamespaces(markup string) map[string]string {
	dec := xml.NewDecoder(strings.NewReader(markup))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	var open []map[string]string
	for {
		token, err := dec.Token()
		if err != nil {
			break
		}
		switch t := token.(type) {
		case xml.StartElement:
			declared := map[string]string{}
			for _, a := range t.Attr {
				switch {
				case a.Name.Space == "xmlns":
					declared[a.Name.Local] = a.Value
				case a.Name.Space == "" && a.Name.Local == "xmlns":
					declared[""] = a.Value
				}
			}
			open = append(open, declared)
		case xml.EndElement:
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
		}
	}
	scope := map[string]string{}
	for _, declared := range open {
		for prefix, uri := range declared {
			scope[prefix] = uri
		}
	}
	return scope
}

func childText(el *etree.Element, tag string) string {
	if child := el.FindElement(".//" + tag); child != nil {
		return strings.TrimSpace(child.Text())
	}
	return ""
}
