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

package redirect

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/nuts-foundation/nuts-mobile-signer/logging"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/session"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/transport"
	"github.com/pkg/errors"
)

// DefaultServerHeader is the response header naming the responding server instance.
const DefaultServerHeader = "Server"

var metaRefreshPattern = regexp.MustCompile(`<meta [^>]*http-equiv="refresh" [^>]*content="([^"]*)"`)

// Follower sends requests and chases HTTP and meta-refresh redirects until a terminal page is
// reached.
type Follower struct {
	client       transport.Client
	serverHeader string
	maxRedirects int
}

// Option configures a Follower
type Option func(f *Follower)

// WithServerHeader sets the header used to identify the responding server.
func WithServerHeader(header string) Option {
	return func(f *Follower) {
		if header != "" {
			f.serverHeader = header
		}
	}
}

// WithMaxRedirects bounds the number of followed redirects per call. Zero means unbounded, in
// which case the transport timeout is the only limit.
func WithMaxRedirects(max int) Option {
	return func(f *Follower) {
		if max >= 0 {
			f.maxRedirects = max
		}
	}
}

// NewFollower creates a Follower on top of the given client.
func NewFollower(client transport.Client, opts ...Option) *Follower {
	f := &Follower{client: client, serverHeader: DefaultServerHeader}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Result is the terminal page of a redirect chain.
type Result struct {
	Body string
	// Server is the server identity observed along the chain, empty when never sent.
	Server string
	// URL is the url of the request which produced Body.
	URL string
}

// Follow sends the request and follows 301/302 and meta-refresh redirects with GET requests.
// Every followed url carries the session identifier of the state once it is known, and every hop
// updates the server identity of the state.
func (f *Follower) Follow(ctx context.Context, request *transport.Request, state *session.State) (*Result, error) {
	state.ObserveURL(request.URL)
	current := request
	hops := 0

	for {
		response, err := f.client.Send(ctx, current)
		if err != nil {
			return nil, err
		}

		var location string
		switch response.StatusCode {
		case http.StatusMovedPermanently, http.StatusFound:
			f.observeServer(response, state)
			location = response.Header.Get("Location")
			if location == "" {
				return nil, &transport.ProtocolError{StatusCode: response.StatusCode, Message: "missing redirect location"}
			}
		case http.StatusOK:
			f.observeServer(response, state)
			body := string(response.Body)
			target, found, err := MetaRefreshTarget(body)
			if err != nil {
				return nil, err
			}
			if !found {
				if state.Server != "" {
					logging.Log().Debugf("Server: %s", state.Server)
				}
				return &Result{Body: body, Server: state.Server, URL: current.URL}, nil
			}
			location = target
		default:
			return nil, &transport.ProtocolError{StatusCode: response.StatusCode, Message: statusText(response)}
		}

		hops++
		if f.maxRedirects > 0 && hops > f.maxRedirects {
			return nil, transport.NewProtocolError("too many redirects")
		}

		next, err := Resolve(current.URL, location)
		if err != nil {
			return nil, transport.WrapProtocolError(err, "invalid redirect location")
		}
		if next, err = state.EnsureSessionID(next); err != nil {
			return nil, transport.WrapProtocolError(err, "invalid redirect location")
		}
		logging.Log().Debugf("Redirected to %s", next)
		current = transport.Get(next)
	}
}

func (f *Follower) observeServer(response *transport.Response, state *session.State) {
	if server := response.Header.Get(f.serverHeader); server != "" {
		state.Server = server
	}
}

// MetaRefreshTarget extracts the redirect target of an HTML meta-refresh tag. The target starts
// nine characters after "URL=" and ends five characters before the end of the content attribute,
// which strips the HTML escaped quotes the signing authority wraps it in. found is false when
// there is no tag or the tag carries no URL.
func MetaRefreshTarget(body string) (target string, found bool, err error) {
	match := metaRefreshPattern.FindStringSubmatch(body)
	if match == nil {
		return "", false, nil
	}
	content := match[1]
	start := strings.Index(content, "URL=")
	if start == -1 {
		return "", false, nil
	}
	start += 9
	end := len(content) - 5
	if start > end {
		return "", false, transport.NewProtocolError("malformed meta refresh: " + content)
	}
	return content[start:end], true, nil
}

// Resolve qualifies a possibly relative location against the url of the previous request.
func Resolve(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrapf(err, "invalid base url %q", base)
	}
	ref, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return "", errors.Wrapf(err, "invalid location %q", location)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

func statusText(response *transport.Response) string {
	if text := http.StatusText(response.StatusCode); text != "" {
		return text
	}
	return response.Status
}
