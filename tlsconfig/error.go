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
	liberr "github.com/nabbar/goconn/errors"
)

const (
	CodeFileRead liberr.CodeKind = iota + liberr.CodeKind(liberr.MinPkgTLSConfig)
	CodeCertParse
	CodeCAAppend
	CodeDHParse
	CodeValidation
	CodeNoCertificate
)

func init() {
	liberr.RegisterMessage(liberr.MinPkgTLSConfig, message)
}

func message(code liberr.CodeError) string {
	switch liberr.CodeKind(code) {
	case CodeFileRead:
		return "cannot read pem file"
	case CodeCertParse:
		return "cannot parse certificate/key pair"
	case CodeCAAppend:
		return "cannot append CA certificate"
	case CodeDHParse:
		return "cannot parse dh parameters"
	case CodeValidation:
		return "configuration validation failed"
	case CodeNoCertificate:
		return "no certificate pair configured"
	default:
		return ""
	}
}
