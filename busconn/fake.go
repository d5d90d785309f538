// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package busconn

import (
	"context"
	"fmt"
	"sync"

	"github.com/estokes/netidx-dbus/dbuserr"
	"github.com/estokes/netidx-dbus/introspect"
)

// Fake is a hand-rolled in-memory Conn for tests, in the style of this
// corpus's own hand-rolled bus fakes rather than a generated mock.
type Fake struct {
	mu sync.Mutex

	Nodes       map[objectKey]introspect.Node
	Properties  map[ifaceKey]map[string]interface{}
	CallResults map[callKey]CallResult
	Names       []string
	Activatable []string

	propSubs map[objectKey][]chan PropertiesChanged
	nameSubs []chan NameOwnerChanged
}

type objectKey struct{ destination, path string }
type ifaceKey struct {
	destination, path, iface string
}
type callKey struct {
	destination, path, iface, method string
}

// CallResult is a canned method call outcome for Fake.
type CallResult struct {
	Reply []interface{}
	Err   error
}

// NewFake constructs an empty Fake.
func NewFake() *Fake {
	return &Fake{
		Nodes:       make(map[objectKey]introspect.Node),
		Properties:  make(map[ifaceKey]map[string]interface{}),
		CallResults: make(map[callKey]CallResult),
		propSubs:    make(map[objectKey][]chan PropertiesChanged),
	}
}

// SetNode registers the introspection result for one object.
func (f *Fake) SetNode(destination, path string, node introspect.Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Nodes[objectKey{destination, path}] = node
}

// SetProperties registers the GetAll result for one object's interface.
func (f *Fake) SetProperties(destination, path, iface string, props map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Properties[ifaceKey{destination, path, iface}] = props
}

// SetCallResult registers the outcome of a method call.
func (f *Fake) SetCallResult(destination, path, iface, method string, result CallResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CallResults[callKey{destination, path, iface, method}] = result
}

// EmitPropertiesChanged delivers pc to every subscriber of (destination, path).
func (f *Fake) EmitPropertiesChanged(destination, path string, pc PropertiesChanged) {
	f.mu.Lock()
	subs := append([]chan PropertiesChanged(nil), f.propSubs[objectKey{destination, path}]...)
	f.mu.Unlock()
	for _, ch := range subs {
		ch <- pc
	}
}

// EmitNameOwnerChanged delivers noc to every NameOwnerChanged subscriber.
func (f *Fake) EmitNameOwnerChanged(noc NameOwnerChanged) {
	f.mu.Lock()
	subs := append([]chan NameOwnerChanged(nil), f.nameSubs...)
	f.mu.Unlock()
	for _, ch := range subs {
		ch <- noc
	}
}

func (f *Fake) Introspect(ctx context.Context, destination, path string) (introspect.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	node, ok := f.Nodes[objectKey{destination, path}]
	if !ok {
		return introspect.Node{}, dbuserr.New(dbuserr.BusTransport, fmt.Sprintf("fake: no node registered for %s %s", destination, path))
	}
	return node, nil
}

func (f *Fake) GetAllProperties(ctx context.Context, destination, path, iface string) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	props, ok := f.Properties[ifaceKey{destination, path, iface}]
	if !ok {
		return nil, dbuserr.New(dbuserr.BusTransport, fmt.Sprintf("fake: no properties registered for %s %s %s", destination, path, iface))
	}
	return props, nil
}

func (f *Fake) Call(ctx context.Context, destination, path, iface, method string, args []interface{}) ([]interface{}, error) {
	f.mu.Lock()
	result, ok := f.CallResults[callKey{destination, path, iface, method}]
	f.mu.Unlock()
	if !ok {
		return nil, dbuserr.New(dbuserr.BusTransport, fmt.Sprintf("fake: no call result registered for %s %s %s.%s", destination, path, iface, method))
	}
	if result.Err != nil {
		return nil, dbuserr.Wrap(dbuserr.BusMethodError, result.Err.Error(), result.Err)
	}
	return result.Reply, nil
}

func (f *Fake) ListNames(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Names...), nil
}

func (f *Fake) ListActivatableNames(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Activatable...), nil
}

func (f *Fake) SubscribePropertiesChanged(ctx context.Context, destination, path string) (<-chan PropertiesChanged, Unsubscribe, error) {
	ch := make(chan PropertiesChanged, 8)
	key := objectKey{destination, path}
	f.mu.Lock()
	f.propSubs[key] = append(f.propSubs[key], ch)
	f.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			f.mu.Lock()
			subs := f.propSubs[key]
			for i, c := range subs {
				if c == ch {
					f.propSubs[key] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			f.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return ch, unsub, nil
}

func (f *Fake) SubscribeNameOwnerChanged(ctx context.Context) (<-chan NameOwnerChanged, Unsubscribe, error) {
	ch := make(chan NameOwnerChanged, 8)
	f.mu.Lock()
	f.nameSubs = append(f.nameSubs, ch)
	f.mu.Unlock()

	unsub := func() {
		f.mu.Lock()
		for i, c := range f.nameSubs {
			if c == ch {
				f.nameSubs = append(f.nameSubs[:i], f.nameSubs[i+1:]...)
				break
			}
		}
		f.mu.Unlock()
		close(ch)
	}
	return ch, unsub, nil
}

var _ Conn = (*Fake)(nil)
var _ Conn = (*GodbusConn)(nil)
