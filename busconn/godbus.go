// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package busconn

import (
	"context"
	"fmt"

	"github.com/estokes/netidx-dbus/dbuserr"
	"github.com/estokes/netidx-dbus/introspect"
	"github.com/godbus/dbus/v5"
)

const introspectInterface = "org.freedesktop.DBus.Introspectable"
const propertiesInterface = "org.freedesktop.DBus.Properties"
const busInterface = "org.freedesktop.DBus"
const busObjectPath = "/org/freedesktop/DBus"

// GodbusConn is the github.com/godbus/dbus/v5-backed Conn.
type GodbusConn struct {
	conn *dbus.Conn
}

// Dial connects to the session bus, matching the original implementation's
// own Connection::session() bring-up.
func Dial(ctx context.Context) (*GodbusConn, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, dbuserr.Wrap(dbuserr.BusTransport, "failed to connect to session bus", err)
	}
	return &GodbusConn{conn: conn}, nil
}

// Close releases the underlying bus connection.
func (c *GodbusConn) Close() error {
	return c.conn.Close()
}

func (c *GodbusConn) Introspect(ctx context.Context, destination, path string) (introspect.Node, error) {
	obj := c.conn.Object(destination, dbus.ObjectPath(path))
	var xmlStr string
	err := obj.CallWithContext(ctx, introspectInterface+".Introspect", 0).Store(&xmlStr)
	if err != nil {
		return introspect.Node{}, dbuserr.Wrap(dbuserr.BusTransport, fmt.Sprintf("introspect %s %s", destination, path), err)
	}
	node, err := introspect.Parse([]byte(xmlStr))
	if err != nil {
		return introspect.Node{}, dbuserr.Wrap(dbuserr.IntrospectionError, fmt.Sprintf("parse introspection xml for %s %s", destination, path), err)
	}
	return node, nil
}

func (c *GodbusConn) GetAllProperties(ctx context.Context, destination, path, iface string) (map[string]interface{}, error) {
	obj := c.conn.Object(destination, dbus.ObjectPath(path))
	var props map[string]dbus.Variant
	err := obj.CallWithContext(ctx, propertiesInterface+".GetAll", 0, iface).Store(&props)
	if err != nil {
		return nil, dbuserr.Wrap(dbuserr.BusTransport, fmt.Sprintf("GetAll %s on %s %s", iface, destination, path), err)
	}
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		out[k] = v.Value()
	}
	return out, nil
}

func (c *GodbusConn) Call(ctx context.Context, destination, path, iface, method string, args []interface{}) ([]interface{}, error) {
	obj := c.conn.Object(destination, dbus.ObjectPath(path))
	call := obj.CallWithContext(ctx, iface+"."+method, 0, args...)
	if call.Err != nil {
		return nil, dbuserr.Wrap(dbuserr.BusMethodError, call.Err.Error(), call.Err)
	}
	return call.Body, nil
}

func (c *GodbusConn) ListNames(ctx context.Context) ([]string, error) {
	var names []string
	obj := c.conn.Object(busInterface, dbus.ObjectPath(busObjectPath))
	err := obj.CallWithContext(ctx, busInterface+".ListNames", 0).Store(&names)
	if err != nil {
		return nil, dbuserr.Wrap(dbuserr.BusTransport, "ListNames", err)
	}
	return names, nil
}

func (c *GodbusConn) ListActivatableNames(ctx context.Context) ([]string, error) {
	var names []string
	obj := c.conn.Object(busInterface, dbus.ObjectPath(busObjectPath))
	err := obj.CallWithContext(ctx, busInterface+".ListActivatableNames", 0).Store(&names)
	if err != nil {
		return nil, dbuserr.Wrap(dbuserr.BusTransport, "ListActivatableNames", err)
	}
	return names, nil
}

func (c *GodbusConn) SubscribePropertiesChanged(ctx context.Context, destination, path string) (<-chan PropertiesChanged, Unsubscribe, error) {
	matchOpts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(dbus.ObjectPath(path)),
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchSender(destination),
	}
	if err := c.conn.AddMatchSignalContext(ctx, matchOpts...); err != nil {
		return nil, nil, dbuserr.Wrap(dbuserr.BusTransport, fmt.Sprintf("install PropertiesChanged match for %s %s", destination, path), err)
	}

	signals := make(chan *dbus.Signal, 32)
	c.conn.Signal(signals)

	out := make(chan PropertiesChanged)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if sig == nil || sig.Name != propertiesInterface+".PropertiesChanged" {
					continue
				}
				if sig.Path != dbus.ObjectPath(path) {
					continue
				}
				pc, ok := decodePropertiesChanged(sig)
				if !ok {
					continue
				}
				select {
				case out <- pc:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			}
		}
	}()

	unsub := func() {
		close(done)
		c.conn.RemoveSignal(signals)
		_ = c.conn.RemoveMatchSignal(matchOpts...)
	}
	return out, unsub, nil
}

func decodePropertiesChanged(sig *dbus.Signal) (PropertiesChanged, bool) {
	if len(sig.Body) != 3 {
		return PropertiesChanged{}, false
	}
	iface, ok := sig.Body[0].(string)
	if !ok {
		return PropertiesChanged{}, false
	}
	changedRaw, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return PropertiesChanged{}, false
	}
	invalidated, ok := sig.Body[2].([]string)
	if !ok {
		return PropertiesChanged{}, false
	}
	changed := make(map[string]interface{}, len(changedRaw))
	for k, v := range changedRaw {
		changed[k] = v.Value()
	}
	return PropertiesChanged{Interface: iface, Changed: changed, Invalidated: invalidated}, true
}

func (c *GodbusConn) SubscribeNameOwnerChanged(ctx context.Context) (<-chan NameOwnerChanged, Unsubscribe, error) {
	matchOpts := []dbus.MatchOption{
		dbus.WithMatchInterface(busInterface),
		dbus.WithMatchMember("NameOwnerChanged"),
	}
	if err := c.conn.AddMatchSignalContext(ctx, matchOpts...); err != nil {
		return nil, nil, dbuserr.Wrap(dbuserr.BusTransport, "install NameOwnerChanged match", err)
	}

	signals := make(chan *dbus.Signal, 32)
	c.conn.Signal(signals)

	out := make(chan NameOwnerChanged)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if sig == nil || sig.Name != busInterface+".NameOwnerChanged" {
					continue
				}
				noc, ok := decodeNameOwnerChanged(sig)
				if !ok {
					continue
				}
				select {
				case out <- noc:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			}
		}
	}()

	unsub := func() {
		close(done)
		c.conn.RemoveSignal(signals)
		_ = c.conn.RemoveMatchSignal(matchOpts...)
	}
	return out, unsub, nil
}

func decodeNameOwnerChanged(sig *dbus.Signal) (NameOwnerChanged, bool) {
	if len(sig.Body) != 3 {
		return NameOwnerChanged{}, false
	}
	name, ok := sig.Body[0].(string)
	if !ok {
		return NameOwnerChanged{}, false
	}
	oldOwner, ok := sig.Body[1].(string)
	if !ok {
		return NameOwnerChanged{}, false
	}
	newOwner, ok := sig.Body[2].(string)
	if !ok {
		return NameOwnerChanged{}, false
	}
	return NameOwnerChanged{Name: name, OldOwner: oldOwner, NewOwner: newOwner}, true
}
