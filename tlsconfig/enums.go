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
	"strings"
)

// Cipher names one TLS 1.2 cipher suite this package is willing to offer.
// TLS 1.3 suites are not listed: crypto/tls always negotiates those itself
// and gives callers no knob to restrict them.
type Cipher string

const (
	CipherECDHE_RSA_AES128_GCM_SHA256   Cipher = "ECDHE-RSA-AES128-GCM-SHA256"
	CipherECDHE_RSA_AES256_GCM_SHA384   Cipher = "ECDHE-RSA-AES256-GCM-SHA384"
	CipherECDHE_ECDSA_AES128_GCM_SHA256 Cipher = "ECDHE-ECDSA-AES128-GCM-SHA256"
	CipherECDHE_ECDSA_AES256_GCM_SHA384 Cipher = "ECDHE-ECDSA-AES256-GCM-SHA384"
	CipherECDHE_RSA_CHACHA20_POLY1305   Cipher = "ECDHE-RSA-CHACHA20-POLY1305"
	CipherECDHE_ECDSA_CHACHA20_POLY1305 Cipher = "ECDHE-ECDSA-CHACHA20-POLY1305"
)

var cipherIDs = map[Cipher]uint16{
	CipherECDHE_RSA_AES128_GCM_SHA256:   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	CipherECDHE_RSA_AES256_GCM_SHA384:   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	CipherECDHE_ECDSA_AES128_GCM_SHA256: tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	CipherECDHE_ECDSA_AES256_GCM_SHA384: tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	CipherECDHE_RSA_CHACHA20_POLY1305:   tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	CipherECDHE_ECDSA_CHACHA20_POLY1305: tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
}

// Check reports whether c names a cipher this package recognizes.
func (c Cipher) Check() bool {
	_, ok := cipherIDs[Cipher(strings.ToUpper(string(c)))]
	return ok
}

func (c Cipher) id() (uint16, bool) {
	v, ok := cipherIDs[Cipher(strings.ToUpper(string(c)))]
	return v, ok
}

// Curves names an elliptic curve preference.
type Curves string

const (
	CurveX25519 Curves = "X25519"
	CurveP256   Curves = "P256"
	CurveP384   Curves = "P384"
	CurveP521   Curves = "P521"
)

var curveIDs = map[Curves]tls.CurveID{
	CurveX25519: tls.X25519,
	CurveP256:   tls.CurveP256,
	CurveP384:   tls.CurveP384,
	CurveP521:   tls.CurveP521,
}

func (c Curves) Check() bool {
	_, ok := curveIDs[Curves(strings.ToUpper(string(c)))]
	return ok
}

func (c Curves) id() (tls.CurveID, bool) {
	v, ok := curveIDs[Curves(strings.ToUpper(string(c)))]
	return v, ok
}

// Version names a minimum/maximum TLS protocol version bound.
type Version string

const (
	VersionTLS12 Version = "TLS1.2"
	VersionTLS13 Version = "TLS1.3"
)

var versionIDs = map[Version]uint16{
	VersionTLS12: tls.VersionTLS12,
	VersionTLS13: tls.VersionTLS13,
}

func (v Version) Check() bool {
	_, ok := versionIDs[Version(strings.ToUpper(string(v)))]
	return ok
}

func (v Version) id() (uint16, bool) {
	val, ok := versionIDs[Version(strings.ToUpper(string(v)))]
	return val, ok
}

// ClientAuth names the client certificate requirement for a server config.
type ClientAuth string

const (
	ClientAuthNone          ClientAuth = "none"
	ClientAuthRequest       ClientAuth = "request"
	ClientAuthVerifyGiven   ClientAuth = "verify"
	ClientAuthRequireAny    ClientAuth = "require"
	ClientAuthStrict        ClientAuth = "strict"
)

var clientAuthIDs = map[ClientAuth]tls.ClientAuthType{
	ClientAuthNone:        tls.NoClientCert,
	ClientAuthRequest:     tls.RequestClientCert,
	ClientAuthVerifyGiven: tls.VerifyClientCertIfGiven,
	ClientAuthRequireAny:  tls.RequireAnyClientCert,
	ClientAuthStrict:      tls.RequireAndVerifyClientCert,
}

func (a ClientAuth) id() tls.ClientAuthType {
	if v, ok := clientAuthIDs[ClientAuth(strings.ToLower(string(a)))]; ok {
		return v
	}
	return tls.NoClientCert
}
