/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package tlsconfig builds and atomically replaces the process-wide
// *tls.Config the TLS Conn variant dials and accepts with. It follows the
// certificates package's model: a validated DTO describes the desired
// configuration, a builder turns it into a usable *tls.Config, and a
// configurator swaps the live pointer only once the new one is fully built.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/go-playground/validator/v10"
)

// Config is the DTO form of a TLS setup: file paths and name lists rather
// than parsed material, so it can come straight out of a config file.
type Config struct {
	CertFile   string     `mapstructure:"cert_file" json:"cert_file" yaml:"cert_file" toml:"cert_file" validate:"required_with=KeyFile"`
	KeyFile    string     `mapstructure:"key_file" json:"key_file" yaml:"key_file" toml:"key_file" validate:"required_with=CertFile"`
	CAFile     string     `mapstructure:"ca_file" json:"ca_file" yaml:"ca_file" toml:"ca_file"`
	DHParamFile string    `mapstructure:"dh_param_file" json:"dh_param_file" yaml:"dh_param_file" toml:"dh_param_file"`
	ClientAuth ClientAuth `mapstructure:"client_auth" json:"client_auth" yaml:"client_auth" toml:"client_auth"`
	CipherList []Cipher   `mapstructure:"cipher_list" json:"cipher_list" yaml:"cipher_list" toml:"cipher_list" validate:"dive"`
	CurveList  []Curves   `mapstructure:"curve_list" json:"curve_list" yaml:"curve_list" toml:"curve_list" validate:"dive"`
	VersionMin Version    `mapstructure:"version_min" json:"version_min" yaml:"version_min" toml:"version_min"`
	VersionMax Version    `mapstructure:"version_max" json:"version_max" yaml:"version_max" toml:"version_max"`
}

// Validate checks the DTO's shape (not whether the files it names exist or
// parse - Configure discovers that while building).
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return CodeValidation.Error(err)
	}
	for _, ci := range c.CipherList {
		if !ci.Check() {
			return CodeValidation.Error(nil)
		}
	}
	for _, cv := range c.CurveList {
		if !cv.Check() {
			return CodeValidation.Error(nil)
		}
	}
	return nil
}

// build turns a validated Config into a fresh *tls.Config. It never mutates
// any config that might already be live; the configurator decides when (and
// whether) to swap the result in.
func build(c Config) (*tls.Config, error) {
	out := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if v, ok := c.VersionMin.id(); ok {
		out.MinVersion = v
	}
	if v, ok := c.VersionMax.id(); ok {
		out.MaxVersion = v
	}

	if len(c.CipherList) > 0 {
		var ids []uint16
		for _, ci := range c.CipherList {
			if id, ok := ci.id(); ok {
				ids = append(ids, id)
			}
		}
		out.CipherSuites = ids
	}

	if len(c.CurveList) > 0 {
		var ids []tls.CurveID
		for _, cv := range c.CurveList {
			if id, ok := cv.id(); ok {
				ids = append(ids, id)
			}
		}
		out.CurvePreferences = ids
	}

	if c.CertFile != "" {
		cert, err := loadCertPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, err
		}
		out.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		pool, err := loadCAPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		out.ClientCAs = pool
		out.RootCAs = pool
	}

	// An unset ClientAuth must not silently mean "don't verify": configure()
	// requires peer verification by default, the same way the original
	// context always set VERIFY_PEER | FAIL_IF_NO_PEER_CERT. Relaxing that is
	// a per-accepted-connection decision (Configurator.ForAccepted), never
	// the base config's default.
	if c.ClientAuth == "" {
		out.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		out.ClientAuth = c.ClientAuth.id()
	}

	// crypto/tls has no SSL_CTX_set_tmp_dh equivalent: DH parameters only
	// ever governed classic DHE cipher suites, which TLS 1.2+'s ECDHE-only
	// suite list (and TLS 1.3's fixed set) has no room for. A DH params file
	// is still accepted, read and checked to be non-empty so a misconfigured
	// path is caught early; its contents are not parsed, and nothing in
	// *tls.Config consumes it.
	if c.DHParamFile != "" {
		if err := validateDHParamFile(c.DHParamFile); err != nil {
			return nil, err
		}
	}

	if len(out.Certificates) == 0 {
		return nil, CodeNoCertificate.Error(nil)
	}

	return out, nil
}

func loadCertPair(certFile, keyFile string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, CodeCertParse.Error(err)
	}
	return cert, nil
}

func loadCAPool(caFile string) (*x509.CertPool, error) {
	raw, err := os.ReadFile(caFile)
	if err != nil {
		return nil, CodeFileRead.Error(err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, CodeCAAppend.Error(nil)
	}
	return pool, nil
}

func validateDHParamFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return CodeFileRead.Error(err)
	}
	if len(raw) == 0 {
		return CodeDHParse.Error(nil)
	}
	return nil
}
