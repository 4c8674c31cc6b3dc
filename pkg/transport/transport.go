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
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/nuts-foundation/nuts-mobile-signer/logging"
	"github.com/sirupsen/logrus"
)

// Client sends a single HTTP request and returns the raw response. It never retries and never
// follows redirects; both are the responsibility of its callers.
type Client interface {
	Send(ctx context.Context, request *Request) (*Response, error)
}

// Request is an outbound HTTP request.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   Body
}

// Get creates a GET request for the given url.
func Get(rawURL string) *Request {
	return &Request{Method: http.MethodGet, URL: rawURL, Header: http.Header{}}
}

// Post creates a POST request for the given url and body.
func Post(rawURL string, body Body) *Request {
	return &Request{Method: http.MethodPost, URL: rawURL, Header: http.Header{}, Body: body}
}

// Response is the status, headers and fully read body of an HTTP response.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// Config configures the HTTP backed Client.
type Config struct {
	// Timeout bounds every single request including reading the body. Zero disables the timeout.
	Timeout time.Duration
	// ProxyURL is used for all requests when set, otherwise the proxy from the environment applies.
	ProxyURL *url.URL
	// Client is an optional pre-configured client, for instance with a custom TLS trust store.
	// Its redirect policy is overridden.
	Client *http.Client
}

// HTTPClient is the net/http implementation of Client.
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPClient creates a Client from the given config.
func NewHTTPClient(config Config) *HTTPClient {
	var client http.Client
	if config.Client != nil {
		client = *config.Client
	} else {
		proxy := http.ProxyFromEnvironment
		if config.ProxyURL != nil {
			proxy = http.ProxyURL(config.ProxyURL)
		}
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.Proxy = proxy
		client.Transport = base
	}
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &HTTPClient{client: &client, timeout: config.Timeout}
}

// Send executes the request. Any status code is a successful Send; only transport level failures
// result in an *Error.
func (c *HTTPClient) Send(ctx context.Context, request *Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		reader      io.Reader
		contentType string
	)
	if request.Body != nil {
		ct, data, err := request.Body.Encode()
		if err != nil {
			return nil, &Error{Op: "encode", URL: request.URL, Err: err}
		}
		contentType = ct
		reader = bytes.NewReader(data)
		logRequest(request, data)
	} else {
		logging.Log().Debugf("%s %s", request.Method, request.URL)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, request.Method, request.URL, reader)
	if err != nil {
		return nil, &Error{Op: request.Method, URL: request.URL, Err: err}
	}
	for name, values := range request.Header {
		for _, v := range values {
			httpRequest.Header.Add(name, v)
		}
	}
	if contentType != "" {
		httpRequest.Header.Set("Content-Type", contentType)
	}

	httpResponse, err := c.client.Do(httpRequest)
	if err != nil {
		return nil, &Error{Op: request.Method, URL: request.URL, Err: err}
	}
	defer httpResponse.Body.Close()

	data, err := ioutil.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, &Error{Op: "read", URL: request.URL, Err: err}
	}

	return &Response{
		StatusCode: httpResponse.StatusCode,
		Status:     httpResponse.Status,
		Header:     httpResponse.Header,
		Body:       data,
	}, nil
}

const maxLoggedBodySize = 1024

var redactions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`passwort=[^&]*`), "passwort=******"},
	{regexp.MustCompile(`:pwd=[^&]*`), ":pwd=******"},
}

// DescribeBody renders an encoded body for diagnostic logging. Password fields are redacted and
// large bodies are only reported by size.
func DescribeBody(data []byte) string {
	if len(data) >= maxLoggedBodySize {
		return fmt.Sprintf("%d bytes", len(data))
	}
	s := string(data)
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

func logRequest(request *Request, data []byte) {
	logger := logging.Log()
	if !logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	logger.Debugf("Posting to %s: %s", request.URL, DescribeBody(data))
}
