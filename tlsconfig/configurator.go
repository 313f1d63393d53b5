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

package tlsconfig

import (
	"crypto/tls"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Configurator owns the process-wide *tls.Config every accepted TLS
// connection inherits by default. Configure builds a brand new config from
// scratch and only swaps the live pointer in on complete success - a bad
// cert, an unreadable CA file or a failed validation leaves whatever was
// already live completely untouched, exactly like the C original's
// tlsConfigure never freeing the running SSL_CTX until its replacement is
// fully built.
type Configurator struct {
	live atomic.Pointer[tls.Config]
	log  *logrus.Entry
}

// NewConfigurator builds a Configurator with no live config yet; Current
// returns nil until the first successful Configure call.
func NewConfigurator(log *logrus.Entry) *Configurator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Configurator{log: log}
}

// Configure validates cfg, builds a fresh *tls.Config from it, and swaps it
// in as Current. On any failure the previously live config (if any) is left
// exactly as it was.
func (k *Configurator) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		k.log.WithError(err).Warn("tls configuration rejected")
		return err
	}

	built, err := build(cfg)
	if err != nil {
		k.log.WithError(err).Warn("tls configuration build failed")
		return err
	}

	k.live.Store(built)
	k.log.Info("tls configuration swapped in")
	return nil
}

// Current returns the live *tls.Config, or nil if Configure never succeeded.
func (k *Configurator) Current() *tls.Config {
	return k.live.Load()
}

// ForAccepted clones Current and applies a per-connection client-auth
// override, matching the original's per-accepted-socket require_auth flag:
// a listener can run with optional client certificates by default and still
// demand one for a specific accepted connection (or vice-versa) without
// touching the shared configuration.
func (k *Configurator) ForAccepted(requireClientAuth bool) *tls.Config {
	base := k.live.Load()
	if base == nil {
		return nil
	}
	out := base.Clone()
	if requireClientAuth {
		out.ClientAuth = tls.RequireAndVerifyClientCert
	} else if out.ClientAuth == tls.RequireAndVerifyClientCert {
		out.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return out
}
