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
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/nuts-foundation/nuts-mobile-signer/logging"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/prompt"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/redirect"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/session"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/sl"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/transport"
	"github.com/pkg/errors"
)

const (
	fieldXMLRequest = "XMLRequest"
	fieldFileUpload = "fileupload"
)

// DefaultPollInterval is the time between two polls of the undecided status.
const DefaultPollInterval = time.Second

// HandlerConfig configures the requests to the signing authority.
type HandlerConfig struct {
	// URL is the SL endpoint of the signing authority.
	URL string
	// Base64 embeds the document as base64 form field instead of sending it as multipart attachment.
	Base64       bool
	ServerHeader string
	// MaxRedirects bounds a redirect chain, zero leaves it unbounded.
	MaxRedirects int
	PollInterval time.Duration
}

// Handler performs the protocol steps against the signing authority and interprets its pages.
// It holds no state of a run; everything it learns goes into the Session.
type Handler struct {
	client       transport.Client
	follower     *redirect.Follower
	url          string
	base64       bool
	pollInterval time.Duration
	metrics      *Metrics
}

// NewHandler creates a Handler sending through client.
func NewHandler(client transport.Client, config HandlerConfig) *Handler {
	h := &Handler{
		client: client,
		follower: redirect.NewFollower(client,
			redirect.WithServerHeader(config.ServerHeader),
			redirect.WithMaxRedirects(config.MaxRedirects)),
		url:          config.URL,
		base64:       config.Base64,
		pollInterval: config.PollInterval,
	}
	if h.pollInterval <= 0 {
		h.pollInterval = DefaultPollInterval
	}
	return h
}

// PostSLRequest posts the SL request and returns the page the signing authority answers with.
func (h *Handler) PostSLRequest(ctx context.Context, s *Session, request *sl.Request) (string, error) {
	var body transport.Body
	switch {
	case request.SignatureData == nil:
		body = transport.FormBody{Values: url.Values{fieldXMLRequest: {request.XML}}}
	case h.base64:
		body = transport.Base64FieldBody{
			Field:  fieldFileUpload,
			Data:   request.SignatureData,
			Values: url.Values{fieldXMLRequest: {request.XML}},
		}
	default:
		body = transport.MultipartBody{
			Fields: []transport.Field{{Name: fieldXMLRequest, Value: request.XML}},
			Files: []transport.File{{
				Name:        fieldFileUpload,
				FileName:    "document.pdf",
				ContentType: "application/pdf",
				Data:        request.SignatureData,
			}},
		}
	}
	logging.Log().Tracef("SL request (%s): %s", body.Kind(), request.XML)

	s.BaseURL = session.StripQueryString(h.url)
	return h.send(ctx, s, stepSLRequest, transport.Post(h.url, body))
}

// HandleSLRequestResponse selects the credential flow from the response to the SL request.
func (h *Handler) HandleSLRequestResponse(s *Session, body string) error {
	if sl.IsResponse(body) {
		return h.absorbResponse(s, body)
	}
	p, err := ParsePage(body)
	if err != nil {
		return err
	}
	if p.TriesExhausted {
		s.Terminate()
		return ErrTriesExhausted
	}
	if p.form == nil {
		return transport.NewProtocolError("response to SL request contains no form")
	}
	s.Flow = selectFlow(p)
	h.observe(s, p)
	if p.ErrorMessage != "" {
		logging.Log().Warnf("Signing authority reports: %s", p.ErrorMessage)
	}
	return nil
}

// PostCredentials submits mobile number and password.
func (h *Handler) PostCredentials(ctx context.Context, s *Session, credentials prompt.Credentials) (string, error) {
	return h.post(ctx, s, stepCredentials, url.Values{
		fieldMobileNumber:    {credentials.MobileNumber},
		fieldPassword:        {credentials.Password},
		buttonIdentification: {"Identifizieren"},
	})
}

// HandleCredentialsResponse interprets the answer to submitted credentials or to an SMS request.
func (h *Handler) HandleCredentialsResponse(s *Session, body string) error {
	if sl.IsResponse(body) {
		return h.absorbResponse(s, body)
	}
	p, err := h.page(s, body)
	if err != nil {
		return err
	}
	switch {
	case p.ErrorMessage != "":
		s.Reject(p.ErrorMessage)
	case p.CredentialForm():
		s.Reject("credentials rejected")
	default:
		s.Accept()
	}
	return nil
}

// ObservePage takes form, poll url and flow details from a page without judging it.
func (h *Handler) ObservePage(s *Session, body string) error {
	_, err := h.page(s, body)
	return err
}

// PostTAN submits the TAN.
func (h *Handler) PostTAN(ctx context.Context, s *Session, tan string) (string, error) {
	return h.post(ctx, s, stepTAN, url.Values{
		fieldTAN:   {tan},
		buttonSign: {"Signieren"},
	})
}

// HandleTANResponse interprets the answer to a second factor. When countTry is set a rejection
// counts as a failed TAN attempt.
func (h *Handler) HandleTANResponse(s *Session, body string, countTry bool) error {
	if sl.IsResponse(body) {
		return h.absorbResponse(s, body)
	}
	p, err := h.page(s, body)
	if err != nil {
		return err
	}
	switch {
	case p.CredentialForm():
		s.RequestRestart()
	case p.ErrorMessage != "":
		s.Reject(p.ErrorMessage)
		if countTry {
			s.TanTries++
		}
	default:
		s.Accept()
	}
	return nil
}

// PostSMSRequest asks the signing authority to send a TAN by SMS.
func (h *Handler) PostSMSRequest(ctx context.Context, s *Session) (string, error) {
	return h.post(ctx, s, stepSMS, url.Values{buttonSMS: {"SMS"}})
}

// PostFIDO2Request asks the signing authority for the FIDO2 form.
func (h *Handler) PostFIDO2Request(ctx context.Context, s *Session) (string, error) {
	return h.post(ctx, s, stepFIDO2Options, url.Values{buttonFIDO2: {"FIDO"}})
}

// PostFIDO2Result returns the encoded credential in the FIDO2 form.
func (h *Handler) PostFIDO2Result(ctx context.Context, s *Session, f *FIDO2Flow, result string) (string, error) {
	values := url.Values{}
	for k, v := range f.Options {
		values[k] = append([]string(nil), v...)
	}
	values.Set(f.ResultKey, result)
	action := s.action
	if f.Action != "" {
		action = h.resolve(s, f.Action)
	}
	return h.submit(ctx, s, stepFIDO2Result, action, values)
}

// FetchResult loads the page the signing authority shows after an asynchronous confirmation.
func (h *Handler) FetchResult(ctx context.Context, s *Session) (string, error) {
	if s.action == "" {
		return "", transport.NewProtocolError("no page to continue from")
	}
	target, err := s.EnsureSessionID(s.action)
	if err != nil {
		return "", transport.WrapProtocolError(err, "invalid result url")
	}
	return h.send(ctx, s, stepResult, transport.Get(target))
}

type pollStatus struct {
	Fin bool `json:"Fin"`
}

// WaitForConfirmation polls pollURL until the signing authority reports the confirmation as
// finished or ctx is done.
func (h *Handler) WaitForConfirmation(ctx context.Context, pollURL string) error {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	for {
		finished, err := h.poll(ctx, pollURL)
		if err != nil {
			return err
		}
		if finished {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *Handler) poll(ctx context.Context, pollURL string) (bool, error) {
	request := transport.Get(pollURL)
	request.Header.Set("Accept", "application/json")
	h.metrics.incRoundTrip(stepPoll)
	response, err := h.client.Send(ctx, request)
	if err != nil {
		return false, err
	}
	if response.StatusCode != http.StatusOK {
		return false, &transport.ProtocolError{StatusCode: response.StatusCode, Message: "polling failed"}
	}
	var status pollStatus
	if err := json.Unmarshal(response.Body, &status); err != nil {
		return false, transport.WrapProtocolError(err, "unparsable poll status")
	}
	return status.Fin, nil
}

func (h *Handler) post(ctx context.Context, s *Session, step string, fields url.Values) (string, error) {
	if s.action == "" {
		return "", transport.NewProtocolError("no form to post to")
	}
	values := url.Values{}
	for k, v := range s.hidden {
		values[k] = append([]string(nil), v...)
	}
	for k, v := range fields {
		values[k] = v
	}
	return h.submit(ctx, s, step, s.action, values)
}

func (h *Handler) submit(ctx context.Context, s *Session, step, action string, values url.Values) (string, error) {
	target, err := s.EnsureSessionID(action)
	if err != nil {
		return "", transport.WrapProtocolError(err, "invalid form action")
	}
	return h.send(ctx, s, step, transport.Post(target, transport.FormBody{Values: values}))
}

func (h *Handler) send(ctx context.Context, s *Session, step string, request *transport.Request) (string, error) {
	h.metrics.incRoundTrip(step)
	result, err := h.follower.Follow(ctx, request, s.State)
	if err != nil {
		return "", err
	}
	return result.Body, nil
}

// page parses a page, stops on exhausted tries and records what it shows.
func (h *Handler) page(s *Session, body string) (*Page, error) {
	p, err := ParsePage(body)
	if err != nil {
		return nil, err
	}
	if p.TriesExhausted {
		s.Terminate()
		return nil, ErrTriesExhausted
	}
	h.observe(s, p)
	return p, nil
}

func (h *Handler) observe(s *Session, p *Page) {
	if p.form != nil {
		s.action = h.resolve(s, p.form.action)
		s.hidden = p.form.hidden
	}
	s.TANField = p.TANField()
	s.SMSAvailable = p.Has(buttonSMS)
	s.FIDO2Available = p.Has(buttonFIDO2)
	s.RefValue = p.RefValue
	s.SignatureDataURL = ""
	if p.SignatureDataURL != "" {
		s.SignatureDataURL = h.resolve(s, p.SignatureDataURL)
	}
	s.PollURL = ""
	if p.PollURL != "" {
		if pollURL, err := s.EnsureSessionID(h.resolve(s, p.PollURL)); err == nil {
			s.PollURL = pollURL
		}
	}
	if s.Flow != nil {
		s.Flow.absorb(p)
	}
}

// resolve qualifies a link scraped from a page against the base url of the run.
// Redirects are resolved by the follower against the request that caused them.
func (h *Handler) resolve(s *Session, ref string) string {
	base := s.BaseURL
	if base == "" {
		base = h.url
	}
	resolved, err := redirect.Resolve(base, ref)
	if err != nil {
		return ref
	}
	return resolved
}

func (h *Handler) absorbResponse(s *Session, body string) error {
	response, err := sl.ParseResponse(body)
	if err != nil {
		var slErr *sl.ErrorResponse
		if errors.As(err, &slErr) {
			return err
		}
		return transport.WrapProtocolError(err, "invalid SL response")
	}
	s.Response = response
	s.TanTries = 0
	s.Accept()
	return nil
}
