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

// Package netutil wraps the low-level, non-blocking socket primitives the
// conn package needs: best-effort bind+connect, blocking-mode toggles,
// TCP_NODELAY, keepalive, send/recv timeouts, SO_ERROR and peer-name
// formatting. Listen/accept management and address resolution beyond what a
// single dial needs are out of scope here; callers bring their own listener.
package netutil

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// NonBlockConnect resolves addr:port, optionally binds to srcAddr, issues a
// non-blocking connect and returns the raw fd immediately - the caller drives
// completion from the event loop by waiting for writability.
func NonBlockConnect(addr string, port int, srcAddr string) (int, error) {
	return dial(addr, port, srcAddr, false, 0)
}

// BlockingConnect behaves like NonBlockConnect but waits for the connection
// to complete (or fail) before returning, honoring timeout.
func BlockingConnect(addr string, port int, timeout time.Duration) (int, error) {
	return dial(addr, port, "", true, timeout)
}

func dial(addr string, port int, srcAddr string, blocking bool, timeout time.Duration) (int, error) {
	ra, err := resolveTCP4(addr, port)
	if err != nil {
		return -1, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}

	if srcAddr != "" {
		sa, e := resolveTCP4(srcAddr, 0)
		if e == nil {
			_ = unix.Bind(fd, &unix.SockaddrInet4{Addr: sa})
		}
	}

	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}

	sa := &unix.SockaddrInet4{Port: port, Addr: ra}
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return -1, err
	}

	if blocking && err == unix.EINPROGRESS {
		if werr := waitWritable(fd, timeout); werr != nil {
			_ = unix.Close(fd)
			return -1, werr
		}
		if serr, _ := SocketError(fd); serr != 0 {
			_ = unix.Close(fd)
			return -1, unix.Errno(serr)
		}
	}

	return fd, nil
}

func resolveTCP4(addr string, port int) ([4]byte, error) {
	var out [4]byte

	host := addr
	if host == "" {
		host = "0.0.0.0"
	}

	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return out, fmt.Errorf("netutil: cannot resolve %s: %w", addr, err)
	}

	v4 := ips[0].To4()
	for _, ip := range ips {
		if v4b := ip.To4(); v4b != nil {
			v4 = v4b
			break
		}
	}
	if v4 == nil {
		return out, fmt.Errorf("netutil: %s has no IPv4 address", addr)
	}

	copy(out[:], v4)
	_ = port
	return out, nil
}

func waitWritable(fd int, timeout time.Duration) error {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	ms := -1
	if timeout > 0 {
		ms = int(timeout.Milliseconds())
	}
	n, err := unix.Poll(pfd, ms)
	if err != nil {
		return err
	}
	if n == 0 {
		return unix.ETIMEDOUT
	}
	return nil
}

// Block puts fd into blocking mode.
func Block(fd int) error {
	return unix.SetNonblock(fd, false)
}

// NonBlock puts fd into non-blocking mode.
func NonBlock(fd int) error {
	return unix.SetNonblock(fd, true)
}

// EnableTCPNoDelay disables Nagle's algorithm on fd.
func EnableTCPNoDelay(fd int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
}

// DisableTCPNoDelay re-enables Nagle's algorithm on fd.
func DisableTCPNoDelay(fd int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 0)
}

// KeepAlive enables SO_KEEPALIVE and, where supported, sets the idle
// interval in seconds before the first probe is sent.
func KeepAlive(fd int, intervalSeconds int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return err
	}
	if intervalSeconds <= 0 {
		return nil
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, intervalSeconds)
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, intervalSeconds)
	return nil
}

// SendTimeout sets SO_SNDTIMEO in milliseconds; zero clears the timeout.
func SendTimeout(fd int, ms int64) error {
	tv := msToTimeval(ms)
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv)
}

// RecvTimeout sets SO_RCVTIMEO in milliseconds; zero clears the timeout.
func RecvTimeout(fd int, ms int64) error {
	tv := msToTimeval(ms)
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

func msToTimeval(ms int64) unix.Timeval {
	return unix.Timeval{
		Sec:  ms / 1000,
		Usec: (ms % 1000) * 1000,
	}
}

// SocketError reads and clears SO_ERROR on fd.
func SocketError(fd int) (int, error) {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// PeerToString returns the peer IP and port for a connected fd.
func PeerToString(fd int) (ip string, port int, err error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return "", 0, err
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(a.Addr[:]).String(), a.Port, nil
	case *unix.SockaddrInet6:
		return net.IP(a.Addr[:]).String(), a.Port, nil
	default:
		return "", 0, fmt.Errorf("netutil: unsupported sockaddr type")
	}
}

// FormatPeer renders "ip:port" for a connected fd.
func FormatPeer(fd int) string {
	ip, port, err := PeerToString(fd)
	if err != nil {
		return "?:0"
	}
	return net.JoinHostPort(ip, strconv.Itoa(port))
}
