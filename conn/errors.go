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

package conn

import (
	liberr "github.com/nabbar/goconn/errors"
)

const (
	CodeConnectFailed liberr.CodeKind = iota + liberr.CodeKind(liberr.MinPkgConn)
	CodeHandshakeFailed
	CodePeerClosed
	CodeIoFatal
	CodeWouldBlock
	CodeTimeout
	CodeConfigurationFailed
)

func init() {
	liberr.RegisterMessage(liberr.MinPkgConn, message)
}

func message(code liberr.CodeError) string {
	switch liberr.CodeKind(code) {
	case CodeConnectFailed:
		return "connect failed"
	case CodeHandshakeFailed:
		return "tls handshake failed"
	case CodePeerClosed:
		return "peer closed the connection"
	case CodeIoFatal:
		return "fatal i/o error"
	case CodeWouldBlock:
		return "operation would block"
	case CodeTimeout:
		return "operation timed out"
	case CodeConfigurationFailed:
		return "tls configuration failed"
	default:
		return ""
	}
}

// ErrWouldBlock is returned by Read/Write when no data could be moved
// without blocking. It is not a fatal condition: state stays StateConnected.
var ErrWouldBlock = CodeWouldBlock.Error(nil)

// ErrPeerClosed is returned by Read when the peer performed an orderly close.
var ErrPeerClosed = CodePeerClosed.Error(nil)

// ErrClosed is returned by Read and Write on a Conn that is not in
// StateConnected: closed, failed, or not yet connected.
var ErrClosed = CodeIoFatal.Error(nil)
