// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package publish defines the pub/sub publication surface this bridge
// requires from the external publication service: publish a path at an
// initial value and get back a handle; update that handle inside a
// batch; start and commit batches; and register remotely invocable
// procedures keyed by path, parameter list and handler.
//
// There is no Go client for the real external service (it is netidx, a
// Rust-only project with no Go binding anywhere in this repo's reference
// corpus), so this package also carries the one implementation this
// repo needs: an in-process publisher that realizes the "--bind local"
// mode, which in the real service means exactly this — an unadvertised,
// in-process-only publisher.
package publish

import (
	"context"

	"github.com/estokes/netidx-dbus/netvalue"
)

// Val is a handle to one published value.
type Val interface {
	// Update schedules v as the new value for this handle within batch.
	Update(batch Batch, v netvalue.Value)
	// Path returns the published path this handle was created with.
	Path() string
}

// Batch groups a set of Val updates so subscribers observe them
// atomically.
type Batch interface {
	// Commit flushes all updates scheduled in this batch, blocking if
	// downstream subscribers are slow to consume.
	Commit(ctx context.Context) error
}

// Param describes one parameter of a registered Procedure: its name, a
// default value, and the D-Bus signature string the caller's supplied
// value must ultimately decode against.
type Param struct {
	Name       string
	Default    netvalue.Value
	Annotation string // printed dbustype.Type, e.g. "a{sv}"
}

// Args is the mapping from parameter name to supplied value sequence a
// Handler receives. A parameter absent from a call, or present with
// zero values, are both representable and must be distinguished by a
// Method Proxy.
type Args map[string][]netvalue.Value

// Handler implements one registered Procedure.
type Handler func(ctx context.Context, args Args) netvalue.Value

// Publisher is the external publication service's client surface.
type Publisher interface {
	// Publish registers path at initial value init and returns a handle
	// to it. It fails with a *dbuserr.Error of kind PublisherError if
	// path is already published: no two live publications share a path.
	Publish(path string, init netvalue.Value) (Val, error)
	// Unpublish releases path, freeing it for reuse.
	Unpublish(path string)
	// StartBatch begins a new Batch.
	StartBatch() Batch
	// RegisterProcedure registers a remotely invocable procedure at
	// path with the given human-readable description, parameter schema
	// and handler.
	RegisterProcedure(path, description string, params []Param, handler Handler) error
}
