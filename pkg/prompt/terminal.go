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

package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mdp/qrterminal/v3"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

type lineResult struct {
	line string
	err  error
}

// Terminal is a Port on a text terminal. Passwords are read without echo when the input is a
// terminal.
type Terminal struct {
	out    io.Writer
	reader *bufio.Reader
	fd     int

	mu      sync.Mutex
	pending chan lineResult
}

// NewTerminal creates a Terminal reading from in and writing to out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	t := &Terminal{out: out, reader: bufio.NewReader(in), fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		t.fd = int(f.Fd())
	}
	return t
}

// Credentials asks for the mobile number and the signature password.
func (t *Terminal) Credentials(ctx context.Context, request CredentialsRequest) (Credentials, Outcome, error) {
	if request.ErrorMessage != "" {
		t.printf("Error: %s\n", request.ErrorMessage)
	}
	if request.MobileNumber != "" {
		t.printf("Mobile number [%s] (q to cancel): ", request.MobileNumber)
	} else {
		t.printf("Mobile number (q to cancel): ")
	}
	number, err := t.readLine(ctx)
	if err != nil {
		return Credentials{}, Cancelled, err
	}
	if number == "q" {
		return Credentials{}, Cancelled, nil
	}
	if number == "" {
		number = request.MobileNumber
	}

	t.printf("Signature password: ")
	password, err := t.readSecret(ctx)
	if err != nil {
		return Credentials{}, Cancelled, err
	}
	return Credentials{MobileNumber: number, Password: password}, Continue, nil
}

// TAN asks for the one-time code. An empty line requests a new SMS.
func (t *Terminal) TAN(ctx context.Context, request TANRequest) (string, Outcome, error) {
	if request.ErrorMessage != "" {
		t.printf("Error: %s\n", request.ErrorMessage)
	}
	t.printReference(request.RefValue, request.SignatureDataURL)
	t.printf("TAN (empty to resend, q to cancel): ")
	tan, err := t.readLine(ctx)
	if err != nil {
		return "", Cancelled, err
	}
	switch tan {
	case "q":
		return "", Cancelled, nil
	case "":
		return "", Retry, nil
	}
	return tan, Continue, nil
}

// ShowOpenApp asks the user to confirm in the mobile app.
func (t *Terminal) ShowOpenApp(ctx context.Context, info OpenAppInfo) (Outcome, error) {
	t.printf("Open the signature app on your phone and confirm the signature.\n")
	return t.waitForChoice(ctx, info.SMSAvailable)
}

// ShowQR renders the QR code on the terminal.
func (t *Terminal) ShowQR(ctx context.Context, info QRInfo) (Outcome, error) {
	if info.Content != "" {
		qrterminal.Generate(info.Content, qrterminal.L, t.out)
	} else {
		t.printf("QR code: %s\n", info.ImageURL)
	}
	t.printReference(info.RefValue, info.SignatureDataURL)
	t.printf("Scan the QR code with the signature app.\n")
	return t.waitForChoice(ctx, info.SMSAvailable)
}

// ShowFingerprint shows the reference value to compare in the mobile app.
func (t *Terminal) ShowFingerprint(ctx context.Context, info FingerprintInfo) (Outcome, error) {
	if info.ErrorMessage != "" {
		t.printf("Error: %s\n", info.ErrorMessage)
	}
	t.printReference(info.RefValue, info.SignatureDataURL)
	t.printf("Compare the reference value and confirm in the signature app.\n")
	return t.waitForChoice(ctx, info.SMSAvailable)
}

func (t *Terminal) waitForChoice(ctx context.Context, sms bool) (Outcome, error) {
	if sms {
		t.printf("[s] send SMS instead, [q] cancel: ")
	} else {
		t.printf("[q] cancel: ")
	}
	for {
		line, err := t.readLine(ctx)
		if ctx.Err() != nil {
			return Continue, nil
		}
		if err != nil {
			return Cancelled, err
		}
		switch {
		case line == "q":
			return Cancelled, nil
		case line == "s" && sms:
			return SendSMS, nil
		}
	}
}

func (t *Terminal) printReference(refValue, signatureDataURL string) {
	if refValue != "" {
		t.printf("Reference value: %s\n", refValue)
	}
	if signatureDataURL != "" {
		t.printf("Signature data: %s\n", signatureDataURL)
	}
}

func (t *Terminal) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(t.out, format, args...)
}

// readLine waits for the next input line or for ctx to be done. A read interrupted by ctx stays
// pending and delivers its line to the next call.
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	t.mu.Lock()
	if t.pending == nil {
		ch := make(chan lineResult, 1)
		t.pending = ch
		go func() {
			line, err := t.reader.ReadString('\n')
			if err == io.EOF && line != "" {
				err = nil
			}
			ch <- lineResult{strings.TrimSpace(line), err}
		}()
	}
	ch := t.pending
	t.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		t.mu.Lock()
		t.pending = nil
		t.mu.Unlock()
		if r.err != nil {
			return "", errors.Wrap(r.err, "unable to read input")
		}
		return r.line, nil
	}
}

func (t *Terminal) readSecret(ctx context.Context) (string, error) {
	t.mu.Lock()
	busy := t.pending != nil
	t.mu.Unlock()
	if t.fd < 0 || busy {
		return t.readLine(ctx)
	}
	secret, err := term.ReadPassword(t.fd)
	t.printf("\n")
	if err != nil {
		return "", errors.Wrap(err, "unable to read password")
	}
	return string(secret), nil
}
