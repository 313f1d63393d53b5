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
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/nabbar/goconn/loop"
	"github.com/nabbar/goconn/netutil"
)

// tcpConn is the plain-TCP variant: the fd's own readable/writable readiness
// is exactly what Read/Write/handlers need, so there is no layer between the
// loop and the socket.
type tcpConn struct {
	id   string
	lp   loop.Loop
	fd   int
	st   State
	last error

	connHandler  Handler
	readHandler  Handler
	writeHandler Handler

	syncTimeout time.Duration
}

// NewTCP builds an unconnected TCP Conn driven by lp.
func NewTCP(lp loop.Loop) Conn {
	return &tcpConn{id: uuid.NewString(), lp: lp, fd: -1, st: StateNone}
}

// NewAcceptedTCP wraps an fd returned by a host's accept() loop. TCP accept
// completes the handshake at the kernel level, so the connection starts
// CONNECTED, with no ACCEPTING phase.
func NewAcceptedTCP(lp loop.Loop, fd int) Conn {
	_ = netutil.NonBlock(fd)
	return &tcpConn{id: uuid.NewString(), lp: lp, fd: fd, st: StateConnected}
}

func (c *tcpConn) Kind() Kind   { return KindTCP }
func (c *tcpConn) State() State { return c.st }
func (c *tcpConn) Fd() int      { return c.fd }
func (c *tcpConn) ID() string   { return c.id }

func (c *tcpConn) Connect(addr string, port int, srcAddr string, done Handler) error {
	if c.st != StateNone {
		return CodeConnectFailed.Error(nil)
	}

	fd, err := netutil.NonBlockConnect(addr, port, srcAddr)
	if err != nil {
		c.st = StateError
		c.last = CodeConnectFailed.Error(err)
		return c.last
	}

	c.fd = fd
	c.st = StateConnecting
	c.connHandler = done
	return c.lp.CreateFileEvent(c.fd, loop.Writable, c.onEvent)
}

func (c *tcpConn) BlockingConnect(addr string, port int, timeout time.Duration) error {
	if c.st != StateNone {
		return CodeConnectFailed.Error(nil)
	}

	fd, err := netutil.BlockingConnect(addr, port, timeout)
	if err != nil {
		c.st = StateError
		c.last = CodeConnectFailed.Error(err)
		return c.last
	}

	_ = netutil.NonBlock(fd)
	c.fd = fd
	c.st = StateConnected
	return nil
}

// onEvent is the single loop callback for this fd across its whole
// lifetime. It is only ever invoked on the goroutine driving c.lp.
func (c *tcpConn) onEvent(_ int, mask loop.Mask) {
	if c.st == StateConnecting && mask&loop.Writable != 0 {
		c.lp.DeleteFileEvent(c.fd, loop.Writable)

		h := c.connHandler
		c.connHandler = nil

		if errno, _ := netutil.SocketError(c.fd); errno != 0 {
			c.st = StateError
			c.last = CodeConnectFailed.Error(unix.Errno(errno))
		} else {
			c.st = StateConnected
			c.refreshInterest()
		}

		if h != nil {
			h(c)
		}
		return
	}

	if c.st != StateConnected {
		return
	}

	if mask&loop.Readable != 0 && c.readHandler != nil {
		c.readHandler(c)
	}
	if c.st == StateConnected && mask&loop.Writable != 0 && c.writeHandler != nil {
		c.writeHandler(c)
	}
}

func (c *tcpConn) refreshInterest() {
	var want loop.Mask
	if c.readHandler != nil {
		want |= loop.Readable
	}
	if c.writeHandler != nil {
		want |= loop.Writable
	}

	have := c.lp.FileEvents(c.fd)
	if add := want &^ have; add != 0 {
		_ = c.lp.CreateFileEvent(c.fd, add, c.onEvent)
	}
	if rm := have &^ want; rm != 0 {
		c.lp.DeleteFileEvent(c.fd, rm)
	}
}

func (c *tcpConn) SetReadHandler(h Handler) {
	c.readHandler = h
	if c.st == StateConnected {
		c.refreshInterest()
	}
}

func (c *tcpConn) SetWriteHandler(h Handler) {
	c.writeHandler = h
	if c.st == StateConnected {
		c.refreshInterest()
	}
}

func (c *tcpConn) HasReadHandler() bool  { return c.readHandler != nil }
func (c *tcpConn) HasWriteHandler() bool { return c.writeHandler != nil }

func (c *tcpConn) Read(p []byte) (int, error) {
	if c.st != StateConnected {
		return 0, ErrClosed
	}
	n, err := unix.Read(c.fd, p)
	return c.classifyIOResult(n, err)
}

func (c *tcpConn) Write(p []byte) (int, error) {
	if c.st != StateConnected {
		return 0, ErrClosed
	}
	n, err := unix.Write(c.fd, p)
	return c.classifyIOResult(n, err)
}

func (c *tcpConn) classifyIOResult(n int, err error) (int, error) {
	if err == nil {
		if n == 0 {
			c.st = StateClosed
			return 0, ErrPeerClosed
		}
		return n, nil
	}
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
		return 0, ErrWouldBlock
	}
	c.st = StateError
	c.last = CodeIoFatal.Error(err)
	return 0, c.last
}

func (c *tcpConn) SyncSetTimeout(timeout time.Duration) {
	c.syncTimeout = timeout
}

func (c *tcpConn) SyncWrite(p []byte) (int, error) {
	if err := c.withBlockingTimeout(netutil.SendTimeout); err != nil {
		return 0, err
	}
	defer c.clearSyncMode()

	total := 0
	for total < len(p) {
		n, err := unix.Write(c.fd, p[total:])
		if err != nil {
			c.st = StateError
			c.last = CodeIoFatal.Error(err)
			return total, c.last
		}
		total += n
	}
	return total, nil
}

func (c *tcpConn) SyncRead(p []byte) (int, error) {
	if err := c.withBlockingTimeout(netutil.RecvTimeout); err != nil {
		return 0, err
	}
	defer c.clearSyncMode()

	n, err := unix.Read(c.fd, p)
	if err != nil {
		c.st = StateError
		c.last = CodeIoFatal.Error(err)
		return 0, c.last
	}
	if n == 0 {
		c.st = StateClosed
		return 0, ErrPeerClosed
	}
	return n, nil
}

func (c *tcpConn) SyncReadLine(maxLen int) (string, error) {
	if err := c.withBlockingTimeout(netutil.RecvTimeout); err != nil {
		return "", err
	}
	defer c.clearSyncMode()

	buf := make([]byte, 0, 64)
	one := make([]byte, 1)
	for len(buf) < maxLen {
		n, err := unix.Read(c.fd, one)
		if err != nil {
			c.st = StateError
			c.last = CodeIoFatal.Error(err)
			return "", c.last
		}
		if n == 0 {
			c.st = StateClosed
			return "", ErrPeerClosed
		}
		if one[0] == '\n' {
			break
		}
		if one[0] != '\r' {
			buf = append(buf, one[0])
		}
	}
	return string(buf), nil
}

func (c *tcpConn) withBlockingTimeout(setTimeout func(fd int, ms int64) error) error {
	if err := netutil.Block(c.fd); err != nil {
		return CodeIoFatal.Error(err)
	}
	ms := c.syncTimeout.Milliseconds()
	return setTimeout(c.fd, ms)
}

func (c *tcpConn) clearSyncMode() {
	_ = netutil.NonBlock(c.fd)
}

func (c *tcpConn) GetLastError() error { return c.last }

func (c *tcpConn) GetSocketError() error {
	errno, err := netutil.SocketError(c.fd)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}

func (c *tcpConn) PeerToString() string {
	return netutil.FormatPeer(c.fd)
}

func (c *tcpConn) Shutdown() error {
	if c.fd < 0 {
		return nil
	}
	return unix.Shutdown(c.fd, unix.SHUT_WR)
}

func (c *tcpConn) Close() error {
	if c.fd < 0 {
		return nil
	}
	c.lp.DeleteFileEvent(c.fd, loop.Readable|loop.Writable)
	err := unix.Close(c.fd)
	c.fd = -1
	c.st = StateClosed
	return err
}
