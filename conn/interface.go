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

// Package conn gives TCP and TLS sockets a single polymorphic shape so a
// caller driving an event loop never needs to know which one it holds. Both
// variants plug into the same loop.Loop for readiness, expose the same
// handler-based dispatch, and carry the same state machine; only the wire
// mechanics underneath differ.
package conn

import (
	"time"

	"github.com/nabbar/goconn/loop"
)

// State is a connection's position in its lifecycle. Kept as distinct
// members (rather than reusing one value for two meanings) so Accepting and
// Connected are never confused by a caller switching on State.
type State uint8

const (
	StateNone State = iota
	StateConnecting
	StateAccepting
	StateConnected
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAccepting:
		return "accepting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "none"
	}
}

// Kind identifies the wire variant behind a Conn.
type Kind uint8

const (
	KindTCP Kind = iota + 1
	KindTLS
)

func (k Kind) String() string {
	if k == KindTLS {
		return "tls"
	}
	return "tcp"
}

// Handler is invoked from the owning loop goroutine when the condition it was
// registered for fires. The one-shot connect/accept handler is cleared before
// it runs, so it is free to install a new one (including itself) without
// racing its own invocation; read and write handlers stay installed until they
// are replaced or cleared.
type Handler func(c Conn)

// Conn is the uniform operation set both variants implement. Every method is
// meant to be called only from the goroutine that drives the Loop a given
// Conn is registered with, so callers take no lock around a Conn. The TLS
// variant locks internally only to exchange data with its own background
// goroutines.
type Conn interface {
	// Kind reports which wire variant this Conn is.
	Kind() Kind
	// State reports the current lifecycle position.
	State() State
	// Fd returns the underlying file descriptor, or -1 once closed.
	Fd() int
	// ID returns a identifier assigned once at construction, stable for the
	// life of the Conn. It has no meaning to the wire protocol; it exists so
	// a host can correlate log lines and metrics across a connection's
	// lifetime without reusing the fd number, which the OS may recycle the
	// moment Close returns.
	ID() string

	// Connect starts a non-blocking connect to addr:port, optionally bound to
	// srcAddr, invoking done exactly once when the outcome (success or
	// failure) is known.
	Connect(addr string, port int, srcAddr string, done Handler) error
	// BlockingConnect connects synchronously, honoring timeout.
	BlockingConnect(addr string, port int, timeout time.Duration) error

	// SetReadHandler installs or clears (nil) the handler invoked when data
	// is readable. A no-op if h is already the installed handler.
	SetReadHandler(h Handler)
	// SetWriteHandler installs or clears (nil) the handler invoked when the
	// socket is writable.
	SetWriteHandler(h Handler)
	HasReadHandler() bool
	HasWriteHandler() bool

	// Read performs one non-blocking read into p. It returns (0, ErrWouldBlock)
	// rather than blocking when no data is available yet.
	Read(p []byte) (int, error)
	// Write performs one non-blocking write of p. It may return a short count
	// with a nil error; the caller retries with the remainder. It returns
	// (0, ErrWouldBlock) if nothing could be accepted right now.
	Write(p []byte) (int, error)

	// SyncSetTimeout bounds every subsequent Sync* call.
	SyncSetTimeout(timeout time.Duration)
	SyncWrite(p []byte) (int, error)
	SyncRead(p []byte) (int, error)
	SyncReadLine(maxLen int) (string, error)

	// GetLastError returns the error that moved this Conn into StateError,
	// or nil if it never did.
	GetLastError() error
	// GetSocketError reads (and clears) SO_ERROR on the underlying fd.
	GetSocketError() error
	// PeerToString renders "ip:port" for the remote end.
	PeerToString() string

	// Shutdown half-closes the connection (no further writes).
	Shutdown() error
	// Close tears the connection down and releases its fd.
	Close() error
}
