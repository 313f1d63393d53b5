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

// Package embedded drives a host application's own command dispatcher
// in-process, without a real socket: a pseudo-client feeds it requests and
// captures whatever it writes back into chunks the caller drains one at a
// time, the way an embedded Redis client issues commands straight into the
// server's command table using a fd of -1 standing in for a socket.
package embedded

import liberr "github.com/nabbar/goconn/errors"

const (
	CodeNoDispatcher liberr.CodeKind = iota + liberr.CodeKind(liberr.MinPkgEmbedded)
	CodeNoRequest
)

func init() {
	liberr.RegisterMessage(liberr.MinPkgEmbedded, message)
}

func message(code liberr.CodeError) string {
	switch liberr.CodeKind(code) {
	case CodeNoDispatcher:
		return "no dispatcher configured"
	case CodeNoRequest:
		return "execute called with no prepared request"
	default:
		return ""
	}
}

// Dispatcher is the host application's command table. Execute receives the
// argument vector of one request and returns the raw reply bytes it would
// otherwise have written back over a socket.
type Dispatcher interface {
	Execute(args [][]byte) ([]byte, error)
}

// DefaultChunkSize bounds how much of a reply ReadReplyChunk hands back per
// call, mirroring the inline client buffer size a real connection would use
// before spilling into additional chunks.
const DefaultChunkSize = 16 * 1024

// Adapter owns a Dispatcher and mints Client values bound to it.
type Adapter struct {
	dispatcher Dispatcher
	chunkSize  int
}

// New builds an Adapter. chunkSize <= 0 falls back to DefaultChunkSize.
func New(dispatcher Dispatcher, chunkSize int) *Adapter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Adapter{dispatcher: dispatcher, chunkSize: chunkSize}
}

// CreateClient mints a pseudo-client bound to this Adapter's dispatcher.
func (a *Adapter) CreateClient() (*Client, error) {
	if a.dispatcher == nil {
		return nil, CodeNoDispatcher.Error(nil)
	}
	return &Client{dispatcher: a.dispatcher, chunkSize: a.chunkSize}, nil
}

// Client is one pseudo-connection: a request in flight and, once executed,
// a reply being drained chunk by chunk.
type Client struct {
	dispatcher Dispatcher
	chunkSize  int

	args  [][]byte
	reply []byte
	pos   int
}

// PrepareRequest stores the argument vector for the next Execute call,
// discarding whatever reply the previous request left unread.
func (c *Client) PrepareRequest(args [][]byte) {
	cp := make([][]byte, len(args))
	for i, a := range args {
		b := make([]byte, len(a))
		copy(b, a)
		cp[i] = b
	}
	c.args = cp
	c.reply = nil
	c.pos = 0
}

// Execute runs the prepared request through the dispatcher and buffers its
// reply for ReadReplyChunk.
func (c *Client) Execute() error {
	if c.args == nil {
		return CodeNoRequest.Error(nil)
	}
	reply, err := c.dispatcher.Execute(c.args)
	if err != nil {
		return err
	}
	c.reply = reply
	c.pos = 0
	return nil
}

// ReadReplyChunk returns the next slice of the buffered reply, up to
// chunkSize bytes, and false once the reply is exhausted - callers keep
// calling it until it reports false, exactly like walking the inline buffer
// and then the overflow list of a real reply.
func (c *Client) ReadReplyChunk() ([]byte, bool) {
	if c.pos >= len(c.reply) {
		return nil, false
	}
	end := c.pos + c.chunkSize
	if end > len(c.reply) {
		end = len(c.reply)
	}
	chunk := c.reply[c.pos:end]
	c.pos = end
	return chunk, true
}

// FreeClient drops this Client's buffered state so it can be reused for a
// new request.
func (c *Client) FreeClient() {
	c.args = nil
	c.reply = nil
	c.pos = 0
}
