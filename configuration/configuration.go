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

package configuration

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nuts-foundation/nuts-mobile-signer/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables overriding configuration keys, e.g. MOBILEBKU_MOBILENUMBER.
const EnvPrefix = "MOBILEBKU"

// Configuration keys, also used as command line flag names.
const (
	ConfConfigFile      = "config"
	ConfMobileBKUURL    = "mobileBkuUrl"
	ConfRequestEncoding = "requestEncoding"
	ConfMobileNumber    = "mobileNumber"
	ConfMobilePassword  = "mobilePassword"
	ConfProxyHost       = "proxyHost"
	ConfProxyPort       = "proxyPort"
	ConfProxyUser       = "proxyUser"
	ConfProxyPass       = "proxyPass"
	ConfServerHeader    = "serverHeader"
	ConfTimeout         = "timeout"
	ConfMaxRedirects    = "maxRedirects"
	ConfPollInterval    = "pollInterval"
	ConfFIDO2Origin     = "fido2Origin"
	ConfSignLocale      = "signLocale"
	ConfLogLevel        = "logLevel"
	ConfMetricsAddress  = "metricsAddress"
)

// Request encodings of the document sent next to the SL request.
const (
	EncodingMultipart = "multipart"
	EncodingBase64    = "base64"
)

// DefaultMobileBKUURL is the SL endpoint of the A-Trust mobile signature service.
const DefaultMobileBKUURL = "https://www.a-trust.at/mobile/https-security-layer-request/default.aspx"

// Config is the configuration of the mobile signer.
type Config struct {
	MobileBKUURL    string        `mapstructure:"mobileBkuUrl"`
	RequestEncoding string        `mapstructure:"requestEncoding"`
	MobileNumber    string        `mapstructure:"mobileNumber"`
	MobilePassword  string        `mapstructure:"mobilePassword"`
	ProxyHost       string        `mapstructure:"proxyHost"`
	ProxyPort       int           `mapstructure:"proxyPort"`
	ProxyUser       string        `mapstructure:"proxyUser"`
	ProxyPass       string        `mapstructure:"proxyPass"`
	ServerHeader    string        `mapstructure:"serverHeader"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRedirects    int           `mapstructure:"maxRedirects"`
	PollInterval    time.Duration `mapstructure:"pollInterval"`
	FIDO2Origin     string        `mapstructure:"fido2Origin"`
	SignLocale      string        `mapstructure:"signLocale"`
	LogLevel        string        `mapstructure:"logLevel"`
	MetricsAddress  string        `mapstructure:"metricsAddress"`
}

var config *Config

// GetInstance returns the initialized configuration. It returns an error when Initialize was not called.
func GetInstance() (*Config, error) {
	if config == nil {
		return nil, errors.New("cannot get instance of uninitialized config")
	}
	return config, nil
}

// Initialize loads the configuration from flags and makes it available through GetInstance.
func Initialize(flags *pflag.FlagSet) (err error) {
	config, err = Load(flags)
	return
}

// FlagSet returns the command line flags for all configuration keys. Their defaults are the
// configuration defaults.
func FlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("mobilebku", pflag.ContinueOnError)

	flags.String(ConfConfigFile, "", "Path of a yaml config file")
	flags.String(ConfMobileBKUURL, DefaultMobileBKUURL, "SL endpoint of the mobile signing authority")
	flags.String(ConfRequestEncoding, EncodingMultipart, "Encoding of the document next to the SL request: multipart or base64")
	flags.String(ConfMobileNumber, "", "Mobile number, asked for when empty")
	flags.String(ConfMobilePassword, "", "Signature password, asked for when empty")
	flags.String(ConfProxyHost, "", "HTTP proxy host")
	flags.Int(ConfProxyPort, 0, "HTTP proxy port (1-65535)")
	flags.String(ConfProxyUser, "", "HTTP proxy user")
	flags.String(ConfProxyPass, "", "HTTP proxy password")
	flags.String(ConfServerHeader, "Server", "Response header identifying the server instance")
	flags.Duration(ConfTimeout, 30*time.Second, "Timeout of a single request")
	flags.Int(ConfMaxRedirects, 20, "Maximum length of a redirect chain, 0 is unbounded")
	flags.Duration(ConfPollInterval, time.Second, "Interval of polling for a confirmation in the app")
	flags.String(ConfFIDO2Origin, "https://service.a-trust.at", "Origin FIDO2 assertions are made for")
	flags.String(ConfSignLocale, "de_DE", "Locale of the signing time in the signature description")
	flags.String(ConfLogLevel, "info", "Log level (trace, debug, info, warn, error)")
	flags.String(ConfMetricsAddress, "", "Address to expose prometheus metrics on while signing, disabled when empty")

	return flags
}

// Load reads the configuration. Command line flags win over environment variables, which win
// over the config file; unset keys take the flag defaults.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, errors.Wrap(err, "unable to bind flags")
	}

	if path := v.GetString(ConfConfigFile); path != "" {
		logging.Log().Infof("Loading config from %s", path)
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "unable to read config file %s", path)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, errors.Wrap(err, "unable to parse config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration. An out of range proxy port is logged and dropped instead of
// failing, as the proxy then is used on its default port.
func (c *Config) Validate() error {
	u, err := url.Parse(c.MobileBKUURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Errorf("invalid %s: %q", ConfMobileBKUURL, c.MobileBKUURL)
	}
	switch c.RequestEncoding {
	case EncodingMultipart, EncodingBase64:
	default:
		return errors.Errorf("invalid %s: %q, expected %s or %s", ConfRequestEncoding, c.RequestEncoding, EncodingMultipart, EncodingBase64)
	}
	if c.ProxyPort != 0 && (c.ProxyPort < 1 || c.ProxyPort > 65535) {
		logging.Log().Warnf("Ignoring %s %d, not in 1-65535", ConfProxyPort, c.ProxyPort)
		c.ProxyPort = 0
	}
	if c.MaxRedirects < 0 {
		return errors.Errorf("invalid %s: %d", ConfMaxRedirects, c.MaxRedirects)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(err, "invalid %s", ConfLogLevel)
	}
	return nil
}

// Base64 reports whether the document is sent as base64 form field.
func (c *Config) Base64() bool {
	return c.RequestEncoding == EncodingBase64
}

// Level returns the configured log level, info when it cannot be parsed.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// ProxyURL returns the url of the configured proxy, nil when there is none.
func (c *Config) ProxyURL() *url.URL {
	if c.ProxyHost == "" {
		return nil
	}
	host := c.ProxyHost
	if c.ProxyPort != 0 {
		host = net.JoinHostPort(c.ProxyHost, strconv.Itoa(c.ProxyPort))
	}
	u := &url.URL{Scheme: "http", Host: host}
	if c.ProxyUser != "" {
		u.User = url.UserPassword(c.ProxyUser, c.ProxyPass)
	}
	return u
}

// Fields returns the configuration as log fields with passwords masked.
func (c *Config) Fields() logrus.Fields {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "******"
	}
	return logrus.Fields{
		ConfMobileBKUURL:    c.MobileBKUURL,
		ConfRequestEncoding: c.RequestEncoding,
		ConfMobileNumber:    c.MobileNumber,
		ConfMobilePassword:  mask(c.MobilePassword),
		ConfProxyHost:       c.ProxyHost,
		ConfProxyPort:       c.ProxyPort,
		ConfProxyUser:       c.ProxyUser,
		ConfProxyPass:       mask(c.ProxyPass),
		ConfServerHeader:    c.ServerHeader,
		ConfTimeout:         c.Timeout,
		ConfMaxRedirects:    c.MaxRedirects,
		ConfPollInterval:    c.PollInterval,
		ConfFIDO2Origin:     c.FIDO2Origin,
		ConfSignLocale:      c.SignLocale,
		ConfLogLevel:        c.LogLevel,
		ConfMetricsAddress:  c.MetricsAddress,
	}
}
