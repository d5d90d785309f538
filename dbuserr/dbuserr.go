// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package dbuserr defines the error kinds this bridge distinguishes at
// its boundaries: invalid signatures, codec coercion failures, arity
// mismatches, transport failures, remote method errors, publisher
// errors and malformed introspection.
package dbuserr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	// InvalidSignature reports a signature-grammar parse failure.
	InvalidSignature Kind = iota
	// InvalidArgument reports a codec coercion failure, a bad object
	// path, or a bad signature string.
	InvalidArgument
	// ArityMismatch reports a wrong struct field count or method call
	// argument count.
	ArityMismatch
	// BusTransport reports a lost connection or a failed match
	// install/remove.
	BusTransport
	// BusMethodError reports a remote method call returning an error.
	BusMethodError
	// PublisherError reports a duplicate publication path or exhausted
	// publisher resources.
	PublisherError
	// IntrospectionError reports malformed introspection XML.
	IntrospectionError
)

func (k Kind) String() string {
	switch k {
	case InvalidSignature:
		return "InvalidSignature"
	case InvalidArgument:
		return "InvalidArgument"
	case ArityMismatch:
		return "ArityMismatch"
	case BusTransport:
		return "BusTransport"
	case BusMethodError:
		return "BusMethodError"
	case PublisherError:
		return "PublisherError"
	case IntrospectionError:
		return "IntrospectionError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the bridge's single error type: a Kind, a human-readable
// message, and an optional wrapped cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, dbuserr.New(dbuserr.InvalidArgument, "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New builds an *Error of the given kind with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Of reports the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func Of(err error) (kind Kind, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
