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

package engine

import (
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/nuts-foundation/nuts-mobile-signer/configuration"
	"github.com/nuts-foundation/nuts-mobile-signer/logging"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/bku"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/prompt"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/sl"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/transport"
	"github.com/nuts-foundation/nuts-mobile-signer/pkg/webauthn"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Version is set at build time.
var Version = "development"

// Engine wires configuration, transport, prompt and connector of the command line signer.
type Engine struct {
	Cmd     *cobra.Command
	FlagSet *pflag.FlagSet
	Config  *configuration.Config
	Name    string

	// In and Err carry the user dialog, Out receives the SL response unless written to a file.
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// NewSignEngine creates the engine of the mobilebku command.
func NewSignEngine() *Engine {
	e := &Engine{
		FlagSet: configuration.FlagSet(),
		Name:    "MobileBKU",
		In:      os.Stdin,
		Out:     os.Stdout,
		Err:     os.Stderr,
	}
	e.Cmd = e.cmd()
	return e
}

// Configure loads the configuration and applies the log level.
func (e *Engine) Configure() error {
	if err := configuration.Initialize(e.FlagSet); err != nil {
		return err
	}
	config, err := configuration.GetInstance()
	if err != nil {
		return err
	}
	e.Config = config
	logrus.SetLevel(config.Level())
	logging.Log().WithFields(config.Fields()).Debug("Configuration loaded")
	return nil
}

// Connector creates a connector for the configured signing authority.
func (e *Engine) Connector(port prompt.Port, reg prometheus.Registerer) *bku.Connector {
	c := e.Config
	client := transport.NewHTTPClient(transport.Config{Timeout: c.Timeout, ProxyURL: c.ProxyURL()})
	return bku.NewConnector(client, port, bku.Config{
		HandlerConfig: bku.HandlerConfig{
			URL:          c.MobileBKUURL,
			Base64:       c.Base64(),
			ServerHeader: c.ServerHeader,
			MaxRedirects: c.MaxRedirects,
			PollInterval: c.PollInterval,
		},
		Origin:       c.FIDO2Origin,
		MobileNumber: c.MobileNumber,
		Password:     c.MobilePassword,
	}, bku.WithAuthenticator(webauthn.Platform("")), bku.WithMetrics(bku.NewMetrics(reg)))
}

type signOptions struct {
	request     string
	document    string
	detached    bool
	description string
	mimeType    string
	out         string
}

func (e *Engine) cmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mobilebku",
		Short:         "Sign documents with the Austrian mobile signature",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().AddFlagSet(e.FlagSet)

	var opts signOptions
	sign := &cobra.Command{
		Use:   "sign",
		Short: "Send an SL request to the mobile signing authority and write the SL response",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return e.Configure()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return e.sign(ctx, opts)
		},
	}
	sign.Flags().StringVar(&opts.request, "request", "", "Path of a CreateXMLSignatureRequest to send")
	sign.Flags().StringVar(&opts.document, "document", "", "Path of a document to sign, instead of --request")
	sign.Flags().BoolVar(&opts.detached, "detached", true, "Send the document next to the request instead of embedding it")
	sign.Flags().StringVar(&opts.description, "description", "", "Description of the document shown to the signer")
	sign.Flags().StringVar(&opts.mimeType, "mimeType", "application/pdf", "Mime type of the document")
	sign.Flags().StringVar(&opts.out, "out", "", "Path to write the SL response to, standard output when empty")
	root.AddCommand(sign)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(Version)
		},
	})

	return root
}

func (e *Engine) sign(ctx context.Context, opts signOptions) error {
	request, err := e.slRequest(opts)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	if e.Config.MetricsAddress != "" {
		server := newMetricsServer(reg)
		go func() {
			if err := server.Start(e.Config.MetricsAddress); err != nil && err != http.ErrServerClosed {
				logging.Log().WithError(err).Error("Metrics server stopped")
			}
		}()
		defer server.Close()
	}

	response, err := e.Connector(prompt.NewTerminal(e.In, e.Err), reg).HandleSLRequest(ctx, request)
	if bku.Cancelled(err) {
		logging.Log().Info("Signing cancelled")
		return nil
	}
	if err != nil {
		return err
	}

	if opts.out == "" {
		_, err = io.WriteString(e.Out, response.XML)
		return err
	}
	return errors.Wrap(ioutil.WriteFile(opts.out, []byte(response.XML), 0600), "unable to write SL response")
}

func (e *Engine) slRequest(opts signOptions) (*sl.Request, error) {
	switch {
	case opts.request != "" && opts.document != "":
		return nil, errors.New("--request and --document are mutually exclusive")
	case opts.request != "":
		data, err := ioutil.ReadFile(opts.request)
		if err != nil {
			return nil, errors.Wrap(err, "unable to read SL request")
		}
		return &sl.Request{XML: string(data)}, nil
	case opts.document != "":
		data, err := ioutil.ReadFile(opts.document)
		if err != nil {
			return nil, errors.Wrap(err, "unable to read document")
		}
		return sl.NewRequest(sl.RequestParams{
			MimeType:    opts.mimeType,
			Description: opts.description,
			Document:    data,
			Detached:    opts.detached,
			Locale:      e.Config.SignLocale,
		})
	default:
		return nil, errors.New("either --request or --document is required")
	}
}

func newMetricsServer(gatherer prometheus.Gatherer) *echo.Echo {
	server := echo.New()
	server.HideBanner = true
	server.HidePort = true
	server.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return server
}
