// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package busconn is the external collaborator boundary onto the system
// (or session) bus: introspection, property reads, method calls, name
// listing, and the two signal streams the rest of this bridge
// subscribes to (PropertiesChanged, NameOwnerChanged).
package busconn

import (
	"context"

	"github.com/estokes/netidx-dbus/introspect"
)

// Conn is the bus surface this bridge depends on. It exists so
// methodproxy, propmirror, tree and supervisor can be tested against a
// fake without a real bus connection.
type Conn interface {
	// Introspect fetches and parses the introspection XML for an object.
	Introspect(ctx context.Context, destination, path string) (introspect.Node, error)

	// GetAllProperties fetches every property of one interface on one
	// object, keyed by property name, as raw bus values (each an
	// interface{} produced by the underlying transport — a
	// dbus.Variant's payload for the real implementation).
	GetAllProperties(ctx context.Context, destination, path, iface string) (map[string]interface{}, error)

	// Call issues a method call and returns the reply's positional args
	// as raw bus values, one per out-arg.
	Call(ctx context.Context, destination, path, iface, method string, args []interface{}) ([]interface{}, error)

	// ListNames returns every currently owned bus name.
	ListNames(ctx context.Context) ([]string, error)

	// ListActivatableNames returns every bus-activatable name, whether
	// or not it currently has an owner.
	ListActivatableNames(ctx context.Context) ([]string, error)

	// SubscribePropertiesChanged streams PropertiesChanged signals for
	// one object. The returned channel is closed, and the returned
	// cancel func released, when ctx is done or Unsubscribe is called.
	SubscribePropertiesChanged(ctx context.Context, destination, path string) (<-chan PropertiesChanged, Unsubscribe, error)

	// SubscribeNameOwnerChanged streams every NameOwnerChanged signal
	// the bus daemon emits.
	SubscribeNameOwnerChanged(ctx context.Context) (<-chan NameOwnerChanged, Unsubscribe, error)
}

// Unsubscribe releases a signal match installed by one of the Subscribe*
// methods above.
type Unsubscribe func()

// PropertiesChanged mirrors org.freedesktop.DBus.Properties'
// PropertiesChanged signal: which interface changed, its new property
// values (still raw bus values, typed per the object's introspection),
// and which properties were invalidated rather than carrying a new value
// inline.
type PropertiesChanged struct {
	Interface   string
	Changed     map[string]interface{}
	Invalidated []string
}

// NameOwnerChanged mirrors org.freedesktop.DBus's NameOwnerChanged
// signal. OldOwner/NewOwner are empty strings when the name had no
// previous owner / has no new owner, matching the wire signal's own
// convention of an empty unique-name string.
type NameOwnerChanged struct {
	Name     string
	OldOwner string
	NewOwner string
}
