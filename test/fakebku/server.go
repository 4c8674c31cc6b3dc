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

// Package fakebku is an in-memory mobile signing authority for tests. It speaks the page
// contract of the real service: redirects, meta refresh, session ids in urls, hidden form
// fields and undecided polling.
package fakebku

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
)

// Mode is the credential flow the fake signing authority offers.
type Mode int

const (
	// ModePassword answers correct credentials with a TAN page.
	ModePassword Mode = iota
	// ModeSMS answers correct credentials with an undecided page and sends the TAN on request.
	ModeSMS
	// ModeApp waits for confirmation in the signature app.
	ModeApp
	// ModeQR shows a QR code and waits for it to be scanned.
	ModeQR
	// ModeFIDO2 offers FIDO2 next to SMS.
	ModeFIDO2
)

// SLEndpoint is the path the SL request is posted to. Links on the pages are relative to it,
// redirects are relative to the request that caused them.
const SLEndpoint = "/mobile/https-security-layer-request/default.aspx"

// Config configures the fake signing authority.
type Config struct {
	Mode         Mode
	MobileNumber string
	Password     string
	TAN          string
	// MaxTANTries is the number of wrong TANs after which no more tries are allowed, zero is unlimited.
	MaxTANTries int
	// ConfirmAfterPolls is the number of polls after which the app confirmation is reported finished.
	ConfirmAfterPolls int
	ServerName        string
	SignatureValue    string
	FIDO2Options      string
}

// SLRequest is a received SL request.
type SLRequest struct {
	XML      string
	Document []byte
	// Multipart is set when the document was an attachment, otherwise it was a base64 field.
	Multipart bool
}

type sessionState struct {
	smsSent   bool
	wrongTANs int
	polls     int
	confirmed bool
}

// Server is the fake signing authority.
type Server struct {
	config Config
	echo   *echo.Echo

	mu         sync.Mutex
	sessions   map[string]*sessionState
	counter    int
	requests   []string
	slRequests []SLRequest
}

// New creates a Server.
func New(config Config) *Server {
	if config.ServerName == "" {
		config.ServerName = "fakebku-1"
	}
	if config.SignatureValue == "" {
		config.SignatureValue = "c2lnbmF0dXJl"
	}
	s := &Server{config: config, echo: echo.New(), sessions: map[string]*sessionState{}}
	s.echo.HideBanner = true
	s.echo.Use(s.record)
	s.echo.POST(SLEndpoint, s.postSLRequest)
	s.echo.GET("/mobile/identification.aspx", s.getIdentification)
	s.echo.POST("/mobile/identification.aspx", s.postIdentification)
	s.echo.GET("/mobile/signature.aspx", s.getSignature)
	s.echo.POST("/mobile/signature.aspx", s.postSignature)
	s.echo.POST("/mobile/fido.aspx", s.postFIDO2)
	s.echo.GET("/mobile/undecided.aspx", s.getUndecided)
	return s
}

// ServeHTTP makes the Server usable with httptest.NewServer.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Requests returns method and request uri of all received requests.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// SLRequests returns the received SL requests.
func (s *Server) SLRequests() []SLRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SLRequest(nil), s.slRequests...)
}

func (s *Server) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.mu.Lock()
		s.requests = append(s.requests, c.Request().Method+" "+c.Request().RequestURI)
		s.mu.Unlock()
		c.Response().Header().Set("Server", s.config.ServerName)
		return next(c)
	}
}

func (s *Server) postSLRequest(c echo.Context) error {
	request := SLRequest{XML: c.FormValue("XMLRequest")}
	if file, err := c.FormFile("fileupload"); err == nil {
		f, err := file.Open()
		if err != nil {
			return err
		}
		defer f.Close()
		if request.Document, err = ioutil.ReadAll(f); err != nil {
			return err
		}
		request.Multipart = true
	} else if encoded := c.FormValue("fileupload"); encoded != "" {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid fileupload")
		}
		request.Document = data
	}
	if request.XML == "" {
		return c.String(http.StatusBadRequest, "missing XMLRequest")
	}

	s.mu.Lock()
	s.counter++
	sid := fmt.Sprintf("sid%d", s.counter)
	s.sessions[sid] = &sessionState{}
	s.slRequests = append(s.slRequests, request)
	s.mu.Unlock()

	return c.Redirect(http.StatusFound, "../identification.aspx?sid="+sid)
}

func (s *Server) session(c echo.Context) (string, *sessionState, error) {
	sid := c.QueryParam("sid")
	s.mu.Lock()
	state, ok := s.sessions[sid]
	s.mu.Unlock()
	if !ok {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "unknown session")
	}
	return sid, state, nil
}

func (s *Server) options(sid string) PageOptions {
	return PageOptions{Hidden: map[string]string{"__VIEWSTATE": "vs-" + sid}}
}

func (s *Server) getIdentification(c echo.Context) error {
	sid, _, err := s.session(c)
	if err != nil {
		return err
	}
	return c.HTML(http.StatusOK, CredentialsPage(s.credentialOptions(sid, "")))
}

func (s *Server) credentialOptions(sid, errorMessage string) PageOptions {
	o := s.options(sid)
	o.Action = "../identification.aspx"
	o.Error = errorMessage
	switch s.config.Mode {
	case ModeSMS:
		o.SMS = true
	case ModeQR:
		o.QR = true
		o.SMS = true
	case ModeFIDO2:
		o.FIDO2 = true
		o.SMS = true
	}
	return o
}

func (s *Server) postIdentification(c echo.Context) error {
	sid, _, err := s.session(c)
	if err != nil {
		return err
	}
	if c.FormValue("__VIEWSTATE") != "vs-"+sid {
		return c.String(http.StatusBadRequest, "missing view state")
	}
	if c.FormValue("handynummer") != s.config.MobileNumber || c.FormValue("signaturpasswort") != s.config.Password {
		return c.HTML(http.StatusOK, CredentialsPage(s.credentialOptions(sid, "Handynummer oder Signaturpasswort ungültig")))
	}

	o := s.options(sid)
	o.Action = "../signature.aspx"
	o.RefValue = "ab12"
	switch s.config.Mode {
	case ModePassword:
		return c.HTML(http.StatusOK, MetaRefreshPage("signature.aspx"))
	case ModeSMS:
		o.SMS = true
		o.PollURL = "../undecided.aspx?sid=" + sid
		return c.HTML(http.StatusOK, UndecidedPage(o))
	case ModeApp:
		o.PollURL = "../undecided.aspx?sid=" + sid
		return c.HTML(http.StatusOK, UndecidedPage(o))
	case ModeQR:
		o.SMS = true
		o.PollURL = "../undecided.aspx?sid=" + sid
		return c.HTML(http.StatusOK, QRPage(o, "../qr.aspx?sid="+sid, "https://fakebku/qr/"+sid))
	default:
		o.SMS = true
		o.FIDO2 = true
		o.PollURL = "../undecided.aspx?sid=" + sid
		return c.HTML(http.StatusOK, FingerprintPage(o))
	}
}

func (s *Server) getSignature(c echo.Context) error {
	sid, state, err := s.session(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	confirmed := state.confirmed
	s.mu.Unlock()
	if confirmed {
		return c.Blob(http.StatusOK, "text/xml", []byte(SignatureResponse(s.config.SignatureValue)))
	}
	o := s.options(sid)
	o.Action = "../signature.aspx"
	o.RefValue = "ab12"
	o.SMS = s.config.Mode != ModePassword
	return c.HTML(http.StatusOK, TANPage(o))
}

func (s *Server) postSignature(c echo.Context) error {
	sid, state, err := s.session(c)
	if err != nil {
		return err
	}
	if c.FormValue("__VIEWSTATE") != "vs-"+sid {
		return c.String(http.StatusBadRequest, "missing view state")
	}
	o := s.options(sid)
	o.Action = "../signature.aspx"
	o.RefValue = "ab12"
	o.SMS = true

	switch {
	case c.FormValue("SmsButton") != "":
		s.mu.Lock()
		state.smsSent = true
		s.mu.Unlock()
		return c.HTML(http.StatusOK, TANPage(o))
	case c.FormValue("FidoButton") != "":
		return c.HTML(http.StatusOK, FIDO2Page(o, "../fido.aspx", s.config.FIDO2Options))
	case c.FormValue("SignButton") != "":
		if c.FormValue("input_tan") == s.config.TAN {
			return c.Blob(http.StatusOK, "text/xml", []byte(SignatureResponse(s.config.SignatureValue)))
		}
		s.mu.Lock()
		state.wrongTANs++
		exhausted := s.config.MaxTANTries > 0 && state.wrongTANs >= s.config.MaxTANTries
		s.mu.Unlock()
		if exhausted {
			return c.HTML(http.StatusOK, ExhaustedPage())
		}
		o.Error = "TAN ungültig"
		return c.HTML(http.StatusOK, TANPage(o))
	}
	return c.String(http.StatusBadRequest, "unknown action")
}

func (s *Server) postFIDO2(c echo.Context) error {
	if _, _, err := s.session(c); err != nil {
		return err
	}
	var credential struct {
		ID       string                     `json:"id"`
		Response map[string]json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal([]byte(c.FormValue("FidoResult")), &credential); err != nil || credential.ID == "" {
		return c.String(http.StatusBadRequest, "invalid FIDO2 result")
	}
	if _, ok := credential.Response["userHandle"]; !ok {
		return c.String(http.StatusBadRequest, "userHandle missing")
	}
	return c.Blob(http.StatusOK, "text/xml", []byte(SignatureResponse(s.config.SignatureValue)))
}

func (s *Server) getUndecided(c echo.Context) error {
	_, state, err := s.session(c)
	if err != nil {
		return err
	}
	if !strings.Contains(c.Request().Header.Get("Accept"), "application/json") {
		return c.String(http.StatusNotAcceptable, "json only")
	}
	s.mu.Lock()
	state.polls++
	if state.polls >= s.config.ConfirmAfterPolls {
		state.confirmed = true
	}
	confirmed := state.confirmed
	s.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]bool{"Fin": confirmed})
}
