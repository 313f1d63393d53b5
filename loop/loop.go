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

// Package loop is the single-threaded, level-triggered readiness dispatcher
// that the conn package registers fd interest with. It is intentionally
// small: one goroutine owns the epoll instance and every callback it fires
// runs on that same goroutine, so a connection's state is only ever touched
// from one place at a time, matching the cooperative scheduling model the
// conn package assumes.
package loop

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Mask is a bitset of readiness directions, mirroring AE_READABLE/AE_WRITABLE.
type Mask uint8

const (
	Readable Mask = 1 << iota
	Writable
)

// Callback is invoked once per matching readiness event, on the loop's
// goroutine. mask reports which directions fired on this tick.
type Callback func(fd int, mask Mask)

// Loop is the event loop contract the conn package consumes. A concrete
// Loop is created with New and must be driven by repeatedly calling Wait
// (normally from a single dedicated goroutine).
type Loop interface {
	// CreateFileEvent registers interest in mask for fd, invoking cb when it
	// fires. Calling it again for the same fd adds to, not replaces, the
	// existing interest.
	CreateFileEvent(fd int, mask Mask, cb Callback) error
	// DeleteFileEvent removes interest in mask for fd. It is a no-op if the
	// interest was not registered.
	DeleteFileEvent(fd int, mask Mask)
	// FileEvents reports the mask currently registered for fd.
	FileEvents(fd int) Mask
	// Wait blocks up to timeoutMS (negative means forever) for at least one
	// registered fd to become ready, dispatching callbacks for all that are.
	// It returns the number of fds serviced.
	Wait(timeoutMS int) (int, error)
	// Close releases the underlying epoll fd.
	Close() error
}

type registration struct {
	mask Mask
	cb   Callback
}

type epollLoop struct {
	mu   sync.Mutex
	efd  int
	regs map[int]*registration
}

// New creates an epoll-backed Loop. It is only valid on Linux.
func New() (Loop, error) {
	efd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollLoop{efd: efd, regs: make(map[int]*registration)}, nil
}

func toEpollEvents(m Mask) uint32 {
	var ev uint32
	if m&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if m&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (l *epollLoop) CreateFileEvent(fd int, mask Mask, cb Callback) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, exists := l.regs[fd]
	if !exists {
		r = &registration{}
		l.regs[fd] = r
	}
	r.mask |= mask
	r.cb = cb

	ev := unix.EpollEvent{Events: toEpollEvents(r.mask), Fd: int32(fd)}
	op := unix.EPOLL_CTL_MOD
	if !exists {
		op = unix.EPOLL_CTL_ADD
	}
	return unix.EpollCtl(l.efd, op, fd, &ev)
}

func (l *epollLoop) DeleteFileEvent(fd int, mask Mask) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.regs[fd]
	if !ok {
		return
	}
	r.mask &^= mask

	if r.mask == 0 {
		delete(l.regs, fd)
		_ = unix.EpollCtl(l.efd, unix.EPOLL_CTL_DEL, fd, nil)
		return
	}

	ev := unix.EpollEvent{Events: toEpollEvents(r.mask), Fd: int32(fd)}
	_ = unix.EpollCtl(l.efd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (l *epollLoop) FileEvents(fd int) Mask {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.regs[fd]; ok {
		return r.mask
	}
	return 0
}

func (l *epollLoop) Wait(timeoutMS int) (int, error) {
	events := make([]unix.EpollEvent, 64)
	n, err := unix.EpollWait(l.efd, events, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	serviced := 0
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		var mask Mask
		if events[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			mask |= Readable
		}
		if events[i].Events&unix.EPOLLOUT != 0 {
			mask |= Writable
		}
		if mask == 0 {
			continue
		}

		l.mu.Lock()
		r, ok := l.regs[fd]
		l.mu.Unlock()
		if !ok || r.cb == nil {
			continue
		}

		r.cb(fd, mask&r.mask)
		serviced++
	}
	return serviced, nil
}

func (l *epollLoop) Close() error {
	return unix.Close(l.efd)
}
