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

// Package errors provides coded errors with optional parent chaining.
//
// It mirrors the conventions used across the rest of this module: a package
// reserves a range of CodeError values, registers a message function for that
// range, and returns Error values instead of bare errors so callers can test
// on a numeric code instead of string-matching.
package errors

import (
	"fmt"
	"strings"
)

// CodeError is a numeric error classification, similar in spirit to an HTTP
// status code. Each package that wants coded errors reserves a contiguous
// block of the range below via the MinPkg* constants.
type CodeError uint16

// UnknownError is returned when no code applies.
const UnknownError CodeError = 0

// Package code ranges. Each package using this module reserves 100 codes.
const (
	MinPkgConn CodeError = (iota + 1) * 100
	MinPkgTLSConfig
	MinPkgEmbedded
	MinPkgLoop
)

// Message renders a human-readable string for a CodeError.
type Message func(code CodeError) string

var registry = make(map[CodeError]Message)

// RegisterMessage associates a message function with the package range that
// minCode belongs to. It is meant to be called once, from a package's init().
func RegisterMessage(minCode CodeError, fn Message) {
	registry[minCode] = fn
}

func messageFor(code CodeError) string {
	// messages are registered per range-floor; find the floor that owns code.
	var floor CodeError
	for k := range registry {
		if code >= k && (floor == 0 || k > floor) {
			floor = k
		}
	}
	if fn, ok := registry[floor]; ok {
		if m := fn(code); m != "" {
			return m
		}
	}
	return "unknown error"
}

// Error is a coded error that may wrap a parent error for additional context.
type Error interface {
	error

	// Code returns the numeric classification of this error.
	Code() CodeError
	// IsCode reports whether this error (or one of its parents) carries code.
	IsCode(code CodeError) bool
	// Parent returns the wrapped error, or nil.
	Parent() error
	// Unwrap supports errors.Is / errors.As against the parent chain.
	Unwrap() error
}

type coded struct {
	code   CodeError
	parent error
}

// New builds an Error for code, optionally wrapping parent.
func New(code CodeError, parent error) Error {
	return &coded{code: code, parent: parent}
}

func (e *coded) Code() CodeError { return e.code }

func (e *coded) IsCode(code CodeError) bool {
	if e.code == code {
		return true
	}
	if p, ok := e.parent.(Error); ok {
		return p.IsCode(code)
	}
	return false
}

func (e *coded) Parent() error { return e.parent }
func (e *coded) Unwrap() error { return e.parent }

func (e *coded) Error() string {
	msg := messageFor(e.code)
	if e.parent == nil {
		return fmt.Sprintf("[error #%d] %s", e.code, msg)
	}
	return fmt.Sprintf("[error #%d] %s (%s)", e.code, msg, e.parent.Error())
}

// CodeKind is a convenience constructor type: declaring a const of this kind
// per error condition lets call sites write MyCode.Error(parent) instead of
// errors.New(MyCode, parent).
type CodeKind CodeError

func (c CodeKind) Error(parent error) Error {
	return New(CodeError(c), parent)
}

func (c CodeKind) Code() CodeError {
	return CodeError(c)
}

// Join flattens a set of errors into a single description, skipping nils.
func Join(errs ...error) error {
	var msgs []string
	for _, e := range errs {
		if e != nil {
			msgs = append(msgs, e.Error())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
