// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package supervisor tracks one Object Tree per owned bus name: builds
// one for every non-unique name present at startup, then reacts to
// NameOwnerChanged to build or tear down trees as names come and go.
package supervisor

import (
	"context"
	"strings"
	"sync"

	"github.com/estokes/netidx-dbus/busconn"
	"github.com/estokes/netidx-dbus/publish"
	"github.com/estokes/netidx-dbus/tree"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Supervisor owns one Object Tree Handle per live, non-unique bus name.
type Supervisor struct {
	base string
	pub  publish.Publisher
	conn busconn.Conn

	mu      sync.Mutex
	handles map[string]*tree.Handle
	wg      sync.WaitGroup
}

// New constructs a Supervisor publishing under base.
func New(base string, pub publish.Publisher, conn busconn.Conn) *Supervisor {
	return &Supervisor{
		base:    base,
		pub:     pub,
		conn:    conn,
		handles: make(map[string]*tree.Handle),
	}
}

// Run builds the initial set of Object Trees and then reacts to
// NameOwnerChanged signals until ctx is done. On return every remaining
// handle has been closed.
func (s *Supervisor) Run(ctx context.Context) error {
	names, err := s.conn.ListNames(ctx)
	if err != nil {
		return err
	}
	activatable, err := s.conn.ListActivatableNames(ctx)
	if err != nil {
		return err
	}

	seed := make(map[string]bool)
	for _, n := range names {
		if !isUniqueName(n) {
			seed[n] = true
		}
	}
	for _, n := range activatable {
		if !isUniqueName(n) {
			seed[n] = true
		}
	}

	var g errgroup.Group
	for name := range seed {
		name := name
		g.Go(func() error {
			s.buildAndInsert(ctx, name)
			return nil
		})
	}
	g.Wait()

	changes, unsub, err := s.conn.SubscribeNameOwnerChanged(ctx)
	if err != nil {
		s.shutdown()
		return err
	}
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case change, ok := <-changes:
			if !ok {
				s.shutdown()
				return nil
			}
			s.handleNameOwnerChanged(ctx, change)
		}
	}
}

func (s *Supervisor) handleNameOwnerChanged(ctx context.Context, change busconn.NameOwnerChanged) {
	switch {
	case change.NewOwner == "":
		s.drop(change.Name)
	case change.OldOwner == "" && !isUniqueName(change.Name):
		s.buildAndInsert(ctx, change.Name)
	default:
		// Both owners present, or a unique name: nothing to do.
	}
}

func (s *Supervisor) buildAndInsert(ctx context.Context, name string) {
	handle, err := tree.Build(ctx, s.base+"/"+name, name, "/", s.pub, s.conn, &s.wg)
	if err != nil {
		logrus.WithField("name", name).WithError(err).Warn("failed to build object tree")
		return
	}
	s.mu.Lock()
	if existing, ok := s.handles[name]; ok {
		existing.Close()
	}
	s.handles[name] = handle
	s.mu.Unlock()
}

func (s *Supervisor) drop(name string) {
	s.mu.Lock()
	handle, ok := s.handles[name]
	delete(s.handles, name)
	s.mu.Unlock()
	if ok {
		handle.Close()
	}
}

func (s *Supervisor) shutdown() {
	s.mu.Lock()
	handles := s.handles
	s.handles = make(map[string]*tree.Handle)
	s.mu.Unlock()
	for _, h := range handles {
		h.Close()
	}
	s.wg.Wait()
}

func isUniqueName(name string) bool {
	return strings.HasPrefix(name, ":")
}
