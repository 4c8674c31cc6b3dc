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
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nuts-foundation/nuts-mobile-signer/logging"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/prompt"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/sl"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/transport"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/webauthn"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config configures a Connector.
type Config struct {
	HandlerConfig
	// Origin is the origin FIDO2 assertions are made for.
	Origin string
	// MobileNumber and Password are used for the first attempt of every run when both are set.
	MobileNumber string
	Password     string
}

// Connector drives the mobile signing authority from SL request to SL response.
type Connector struct {
	handler       *Handler
	port          prompt.Port
	authenticator webauthn.Authenticator
	origin        string
	metrics       *Metrics

	mu       sync.Mutex
	defaults prompt.Credentials
}

// Option configures a Connector.
type Option func(c *Connector)

// WithAuthenticator sets the FIDO2 authenticator. The default is webauthn.Unavailable.
func WithAuthenticator(a webauthn.Authenticator) Option {
	return func(c *Connector) {
		if a != nil {
			c.authenticator = a
		}
	}
}

// WithMetrics makes the Connector count runs and requests.
func WithMetrics(m *Metrics) Option {
	return func(c *Connector) {
		c.metrics = m
	}
}

// NewConnector creates a Connector. Concurrent runs are allowed when client is safe for
// concurrent use; the port is called from the goroutine calling HandleSLRequest.
func NewConnector(client transport.Client, port prompt.Port, config Config, opts ...Option) *Connector {
	c := &Connector{
		handler:       NewHandler(client, config.HandlerConfig),
		port:          port,
		authenticator: webauthn.Unavailable{},
		origin:        config.Origin,
		defaults:      prompt.Credentials{MobileNumber: config.MobileNumber, Password: config.Password},
	}
	if c.origin == "" {
		c.origin = webauthn.DefaultOrigin
	}
	for _, opt := range opts {
		opt(c)
	}
	c.handler.metrics = c.metrics
	return c
}

// HandleSLRequest runs the mobile signing protocol for request. It returns either the SL
// response or a *SignatureError; use Cancelled to tell a user abort from a failure.
func (c *Connector) HandleSLRequest(ctx context.Context, request *sl.Request) (*sl.Response, error) {
	log := logging.Log().WithField("run", uuid.New().String())
	s := newSession()
	s.credentials = c.defaultCredentials()

	response, err := c.run(ctx, log, s, request)
	if interrupted(err) {
		err = ErrUserCancelled
	}
	switch {
	case err == nil:
		c.metrics.incRun(outcomeSuccess)
		log.Info("Signature created")
		return response, nil
	case errors.Is(err, ErrUserCancelled):
		c.metrics.incRun(outcomeCancelled)
		log.Info("Signing cancelled by user")
	case errors.Is(err, ErrTriesExhausted), s.Exhausted():
		c.metrics.incRun(outcomeExhausted)
		log.Warn("Signing authority refuses further attempts")
	default:
		c.metrics.incRun(outcomeFailed)
		log.WithError(err).Error("Signing failed")
	}
	return nil, &SignatureError{Err: err}
}

func (c *Connector) run(ctx context.Context, log *logrus.Entry, s *Session, request *sl.Request) (*sl.Response, error) {
	for {
		s.resetRound()

		body, err := c.handler.PostSLRequest(ctx, s, request)
		if err != nil {
			return nil, errors.Wrap(err, "posting SL request failed")
		}
		if err := c.handler.HandleSLRequestResponse(s, body); err != nil {
			return nil, err
		}
		if s.Response != nil {
			return s.Response, nil
		}
		log.WithField("flow", s.Flow.Kind()).Debug("Credential flow selected")

		if err := c.credentialsRound(ctx, log, s); err != nil {
			return nil, err
		}
		if s.Response != nil {
			return s.Response, nil
		}

		if err := c.secondFactorRound(ctx, log, s); err != nil {
			return nil, err
		}
		if s.RestartRequested() {
			c.metrics.incRestart()
			log.Info("Signing authority requested a new round")
			continue
		}
		if s.Response == nil {
			return nil, ErrNoResponse
		}
		return s.Response, nil
	}
}

func (c *Connector) credentialsRound(ctx context.Context, log *logrus.Entry, s *Session) error {
	for {
		credentials, err := c.credentials(ctx, s)
		if err != nil {
			return err
		}
		body, err := c.handler.PostCredentials(ctx, s, credentials)
		if err != nil {
			return errors.Wrap(err, "posting credentials failed")
		}
		if strings.Contains(body, PollMarker) {
			err = c.undecided(ctx, s, body)
		} else {
			err = c.handler.HandleCredentialsResponse(s, body)
		}
		if err != nil {
			return err
		}
		if !s.Retry() {
			return nil
		}
		log.Infof("Credentials rejected: %s", s.ErrorMessage)
	}
}

// credentials returns the cached credentials, or asks for new ones when there are none or the
// last ones were rejected.
func (c *Connector) credentials(ctx context.Context, s *Session) (prompt.Credentials, error) {
	if s.credentials != nil && !s.Retry() {
		return *s.credentials, nil
	}
	request := prompt.CredentialsRequest{MobileNumber: c.defaultNumber(), ErrorMessage: s.ErrorMessage}
	for {
		entered, outcome, err := c.port.Credentials(ctx, request)
		if promptCancelled(outcome, err) {
			return prompt.Credentials{}, ErrUserCancelled
		}
		if err != nil {
			return prompt.Credentials{}, errors.Wrap(err, "credentials prompt failed")
		}
		valid, err := ValidateCredentials(entered)
		if err != nil {
			request = prompt.CredentialsRequest{MobileNumber: entered.MobileNumber, ErrorMessage: err.Error()}
			continue
		}
		s.credentials = &valid
		s.Accept()
		c.rememberNumber(valid.MobileNumber)
		return valid, nil
	}
}

// undecided handles a credentials response for which the signing authority awaits confirmation.
// A pending QR code or FIDO2 option is left to the second factor step.
func (c *Connector) undecided(ctx context.Context, s *Session, body string) error {
	if err := c.handler.ObservePage(s, body); err != nil {
		return err
	}
	switch f := s.Flow.(type) {
	case *SMSTanFlow:
		if f.SMSRequested {
			s.Accept()
			return nil
		}
		return c.requestSMS(ctx, s)
	case *QRPollFlow:
		if f.Pending() {
			s.Accept()
			return nil
		}
	case *FIDO2Flow:
		if s.FIDO2Available || f.RequestOptions() != "" {
			s.Accept()
			return nil
		}
	}
	outcome, err := c.awaitConfirmation(ctx, s, func(ctx context.Context) (prompt.Outcome, error) {
		return c.port.ShowOpenApp(ctx, prompt.OpenAppInfo{SMSAvailable: s.SMSAvailable})
	})
	if err != nil {
		return err
	}
	switch outcome {
	case prompt.Cancelled:
		return ErrUserCancelled
	case prompt.SendSMS:
		return c.requestSMS(ctx, s)
	}
	body, err = c.handler.FetchResult(ctx, s)
	if err != nil {
		return errors.Wrap(err, "fetching confirmation result failed")
	}
	return c.handler.HandleCredentialsResponse(s, body)
}

func (c *Connector) secondFactorRound(ctx context.Context, log *logrus.Entry, s *Session) error {
	for {
		if err := c.secondFactor(ctx, log, s); err != nil {
			return err
		}
		if s.Exhausted() {
			return ErrTriesExhausted
		}
		if s.Response != nil || !s.Retry() {
			return nil
		}
		log.Infof("Second factor rejected (%d): %s", s.TanTries, s.ErrorMessage)
	}
}

func (c *Connector) secondFactor(ctx context.Context, log *logrus.Entry, s *Session) error {
	enterTAN := true
	var err error
	switch f := s.Flow.(type) {
	case *FIDO2Flow:
		enterTAN, err = c.fido2(ctx, log, s, f)
	case *QRPollFlow:
		enterTAN, err = c.qr(ctx, s, f)
	case *SMSTanFlow, *PasswordFlow:
	}
	if err != nil {
		return err
	}
	if s.Response != nil || s.RestartRequested() {
		return nil
	}
	if enterTAN && !s.TANField {
		if enterTAN, err = c.fingerprint(ctx, s); err != nil {
			return err
		}
	}
	if !enterTAN || s.Response != nil || s.RestartRequested() {
		return nil
	}
	return c.tan(ctx, s)
}

// fido2 runs the FIDO2 assertion. It reports whether the run has to continue with TAN entry,
// which is the case whenever the assertion is unavailable or failed.
func (c *Connector) fido2(ctx context.Context, log *logrus.Entry, s *Session, f *FIDO2Flow) (bool, error) {
	if f.Degraded {
		return true, nil
	}
	if f.Options == nil && s.FIDO2Available {
		body, err := c.handler.PostFIDO2Request(ctx, s)
		if err != nil {
			return false, errors.Wrap(err, "requesting FIDO2 options failed")
		}
		if err := c.handler.HandleCredentialsResponse(s, body); err != nil {
			return false, err
		}
		if s.Response != nil {
			return false, nil
		}
	}
	options := f.RequestOptions()
	if options == "" {
		return true, nil
	}
	if !c.authenticator.Available() {
		log.Info("No FIDO2 authenticator available")
		return true, nil
	}

	result, err := c.assert(ctx, options)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		f.Degraded = true
		c.metrics.incDegraded()
		log.WithError(err).Warn(ErrSecondFactorDegraded.Error())
		return true, nil
	}
	body, err := c.handler.PostFIDO2Result(ctx, s, f, result)
	if err != nil {
		return false, errors.Wrap(err, "posting FIDO2 result failed")
	}
	return false, c.handler.HandleTANResponse(s, body, false)
}

func (c *Connector) assert(ctx context.Context, encodedOptions string) (string, error) {
	options, err := webauthn.ParseRequestOptions(encodedOptions)
	if err != nil {
		return "", err
	}
	credential, err := c.authenticator.GetAssertion(ctx, c.origin, options)
	if err != nil {
		return "", err
	}
	return webauthn.EncodeCredential(credential)
}

// qr shows the QR code until it is scanned. Falling back to SMS, or a withdrawn QR code with a
// TAN field, continues with TAN entry.
func (c *Connector) qr(ctx context.Context, s *Session, f *QRPollFlow) (bool, error) {
	if !f.Pending() {
		return true, nil
	}
	outcome, err := c.awaitConfirmation(ctx, s, func(ctx context.Context) (prompt.Outcome, error) {
		return c.port.ShowQR(ctx, prompt.QRInfo{
			ImageURL:         f.ImageURL,
			Content:          f.Content,
			RefValue:         s.RefValue,
			SignatureDataURL: s.SignatureDataURL,
			SMSAvailable:     s.SMSAvailable,
		})
	})
	if err != nil {
		return false, err
	}
	switch outcome {
	case prompt.Cancelled:
		return false, ErrUserCancelled
	case prompt.SendSMS:
		return true, c.requestSMS(ctx, s)
	}
	if err := c.confirmed(ctx, s); err != nil {
		return false, err
	}
	return s.TANField && !f.Pending(), nil
}

// fingerprint shows the reference value for confirmation in the app. The user may ask for an
// SMS instead, which continues with TAN entry.
func (c *Connector) fingerprint(ctx context.Context, s *Session) (bool, error) {
	outcome, err := c.awaitConfirmation(ctx, s, func(ctx context.Context) (prompt.Outcome, error) {
		return c.port.ShowFingerprint(ctx, prompt.FingerprintInfo{
			RefValue:         s.RefValue,
			SignatureDataURL: s.SignatureDataURL,
			ErrorMessage:     s.ErrorMessage,
			SMSAvailable:     s.SMSAvailable,
		})
	})
	if err != nil {
		return false, err
	}
	switch outcome {
	case prompt.Cancelled:
		return false, ErrUserCancelled
	case prompt.SendSMS:
		return true, c.requestSMS(ctx, s)
	}
	if err := c.confirmed(ctx, s); err != nil {
		return false, err
	}
	return s.TANField, nil
}

func (c *Connector) tan(ctx context.Context, s *Session) error {
	var tan string
	for {
		entered, outcome, err := c.port.TAN(ctx, prompt.TANRequest{
			RefValue:         s.RefValue,
			SignatureDataURL: s.SignatureDataURL,
			ErrorMessage:     s.ErrorMessage,
			Tries:            s.TanTries,
		})
		if promptCancelled(outcome, err) {
			return ErrUserCancelled
		}
		if err != nil {
			return errors.Wrap(err, "TAN prompt failed")
		}
		if outcome == prompt.Retry || outcome == prompt.SendSMS {
			if err := c.requestSMS(ctx, s); err != nil {
				return err
			}
			if s.Response != nil {
				return nil
			}
			continue
		}
		tan = entered
		break
	}
	body, err := c.handler.PostTAN(ctx, s, tan)
	if err != nil {
		return errors.Wrap(err, "posting TAN failed")
	}
	return c.handler.HandleTANResponse(s, body, true)
}

func (c *Connector) requestSMS(ctx context.Context, s *Session) error {
	body, err := c.handler.PostSMSRequest(ctx, s)
	if err != nil {
		return errors.Wrap(err, "requesting SMS failed")
	}
	return c.handler.HandleCredentialsResponse(s, body)
}

// confirmed loads and handles the page following an asynchronous confirmation.
func (c *Connector) confirmed(ctx context.Context, s *Session) error {
	body, err := c.handler.FetchResult(ctx, s)
	if err != nil {
		return errors.Wrap(err, "fetching confirmation result failed")
	}
	return c.handler.HandleTANResponse(s, body, false)
}

// awaitConfirmation shows a prompt while polling the undecided status. The prompt is closed when
// polling finishes, polling stops when the user decides. A finished poll reports Continue unless
// the user cancelled.
func (c *Connector) awaitConfirmation(ctx context.Context, s *Session, show func(context.Context) (prompt.Outcome, error)) (prompt.Outcome, error) {
	if s.PollURL == "" {
		outcome, err := show(ctx)
		if promptCancelled(outcome, err) || interrupted(ctx.Err()) {
			return prompt.Cancelled, nil
		}
		if err != nil {
			return outcome, errors.Wrap(err, "confirmation prompt failed")
		}
		return outcome, nil
	}

	showCtx, closePrompt := context.WithCancel(ctx)
	defer closePrompt()
	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()

	pollURL := s.PollURL
	finished := make(chan error, 1)
	go func() {
		err := c.handler.WaitForConfirmation(pollCtx, pollURL)
		closePrompt()
		finished <- err
	}()

	outcome, err := show(showCtx)
	stopPolling()
	pollErr := <-finished

	switch {
	case outcome == prompt.Cancelled, interrupted(ctx.Err()):
		return prompt.Cancelled, nil
	case err != nil && showCtx.Err() == nil:
		return outcome, errors.Wrap(err, "confirmation prompt failed")
	case pollErr == nil:
		return prompt.Continue, nil
	case outcome == prompt.SendSMS:
		return prompt.SendSMS, nil
	case ctx.Err() != nil:
		return outcome, ctx.Err()
	case errors.Is(pollErr, context.Canceled):
		return outcome, nil
	default:
		return outcome, errors.Wrap(pollErr, "polling confirmation failed")
	}
}

// promptCancelled reports whether a prompt ended by user choice or by an interrupt while it was open.
func promptCancelled(outcome prompt.Outcome, err error) bool {
	if err != nil {
		return interrupted(err)
	}
	return outcome == prompt.Cancelled
}

// interrupted reports whether err stems from a cancelled context.
func interrupted(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

func (c *Connector) defaultCredentials() *prompt.Credentials {
	c.mu.Lock()
	defaults := c.defaults
	c.mu.Unlock()
	if defaults.Password == "" {
		return nil
	}
	valid, err := ValidateCredentials(defaults)
	if err != nil {
		logging.Log().WithError(err).Warn("Ignoring configured credentials")
		return nil
	}
	return &valid
}

func (c *Connector) defaultNumber() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaults.MobileNumber
}

func (c *Connector) rememberNumber(number string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaults.MobileNumber = number
}
