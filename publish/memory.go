// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package publish

import (
	"context"
	"sync"
	"time"

	"github.com/estokes/netidx-dbus/dbuserr"
	"github.com/estokes/netidx-dbus/netvalue"
)

// Options configures a MemoryPublisher.
type Options struct {
	// ConsumeTimeout, when non-zero, is the deadline put on the context
	// of every procedure handler run through Call. Commit applies its
	// updates at once and does not consult it. Zero means no deadline.
	// Set from the bridge's --timeout flag.
	ConsumeTimeout time.Duration
}

// MemoryPublisher is an in-process Publisher: the concrete behavior of
// the real publication service's "local" bind mode, an unadvertised
// publisher with no network resolver.
type MemoryPublisher struct {
	opts Options

	mu         sync.Mutex
	values     map[string]*memVal
	procedures map[string]*registeredProcedure
}

type registeredProcedure struct {
	description string
	params      []Param
	handler     Handler
}

// NewMemoryPublisher constructs a MemoryPublisher.
func NewMemoryPublisher(opts Options) *MemoryPublisher {
	return &MemoryPublisher{
		opts:       opts,
		values:     make(map[string]*memVal),
		procedures: make(map[string]*registeredProcedure),
	}
}

func (p *MemoryPublisher) Publish(path string, init netvalue.Value) (Val, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.values[path]; exists {
		return nil, dbuserr.New(dbuserr.PublisherError, "path already published: "+path)
	}
	v := &memVal{pub: p, path: path, current: init}
	p.values[path] = v
	return v, nil
}

func (p *MemoryPublisher) Unpublish(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, path)
}

func (p *MemoryPublisher) StartBatch() Batch {
	return &memBatch{pub: p}
}

func (p *MemoryPublisher) RegisterProcedure(path, description string, params []Param, handler Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.procedures[path]; exists {
		return dbuserr.New(dbuserr.PublisherError, "procedure already registered: "+path)
	}
	p.procedures[path] = &registeredProcedure{description: description, params: params, handler: handler}
	return nil
}

// Call invokes the procedure registered at path with args exactly as
// given; parameters that args omits are not filled in from their
// Default, so the handler sees them as absent. It is exported so
// tests (and a future real transport bridging remote calls in) can drive
// registered procedures without depending on MemoryPublisher internals.
func (p *MemoryPublisher) Call(ctx context.Context, path string, args Args) (netvalue.Value, bool) {
	p.mu.Lock()
	proc, ok := p.procedures[path]
	p.mu.Unlock()
	if !ok {
		return netvalue.Value{}, false
	}
	if p.opts.ConsumeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.ConsumeTimeout)
		defer cancel()
	}
	return proc.handler(ctx, args), true
}

// CurrentValue returns the live value at path, for tests to assert
// against after a PropertiesChanged-driven update.
func (p *MemoryPublisher) CurrentValue(path string) (netvalue.Value, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[path]
	if !ok {
		return netvalue.Value{}, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current, true
}

type memVal struct {
	pub  *MemoryPublisher
	path string

	mu      sync.Mutex
	current netvalue.Value
}

func (v *memVal) Path() string { return v.path }

func (v *memVal) Update(batch Batch, val netvalue.Value) {
	b := batch.(*memBatch)
	b.mu.Lock()
	b.pending = append(b.pending, pendingUpdate{v: v, val: val})
	b.mu.Unlock()
}

type pendingUpdate struct {
	v   *memVal
	val netvalue.Value
}

type memBatch struct {
	pub *MemoryPublisher

	mu      sync.Mutex
	pending []pendingUpdate
}

// Commit applies every queued update atomically with respect to readers
// of CurrentValue: each target Val's lock is held only long enough to
// swap in the new value, but the batch as a whole is applied without
// yielding to another goroutine's Commit in between.
func (b *memBatch) Commit(ctx context.Context) error {
	b.pub.mu.Lock()
	defer b.pub.mu.Unlock()

	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, u := range pending {
		u.v.mu.Lock()
		u.v.current = u.val
		u.v.mu.Unlock()
	}
	return nil
}
