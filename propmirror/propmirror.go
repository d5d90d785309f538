// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package propmirror publishes and keeps live one object's properties:
// install the PropertiesChanged match before reading anything, snapshot
// every property-bearing interface's current values, then apply changes
// as they arrive until the mirror is told to stop.
package propmirror

import (
	"context"
	"fmt"
	"sync"

	"github.com/estokes/netidx-dbus/busconn"
	"github.com/estokes/netidx-dbus/codec"
	"github.com/estokes/netidx-dbus/dbustype"
	"github.com/estokes/netidx-dbus/dbuserr"
	"github.com/estokes/netidx-dbus/introspect"
	"github.com/estokes/netidx-dbus/publish"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Mirror tracks the published Vals for every property of every
// property-bearing interface of one object.
type Mirror struct {
	pub         publish.Publisher
	conn        busconn.Conn
	base        string
	destination string
	objectPath  string
	node        introspect.Node

	// propTypes[iface][property] is the declared signature of that
	// property, needed to decode future PropertiesChanged payloads
	// (bus values carry no self-describing type outside a Variant).
	propTypes map[string]map[string]dbustype.Type
	vals      map[string]map[string]publish.Val
}

// New constructs a Mirror for one object. node must be the object's own
// introspection result, shared with the Method Proxy registration loop
// that builds out the rest of the object's tree node.
func New(pub publish.Publisher, conn busconn.Conn, base, destination, objectPath string, node introspect.Node) (*Mirror, error) {
	propTypes := make(map[string]map[string]dbustype.Type)
	for _, iface := range node.Interfaces {
		if !iface.HasProperties() {
			continue
		}
		types := make(map[string]dbustype.Type, len(iface.Properties))
		for _, p := range iface.Properties {
			t, err := dbustype.ParseAll(p.Type)
			if err != nil {
				return nil, dbuserr.Wrap(dbuserr.InvalidSignature, fmt.Sprintf("property %s.%s", iface.Name, p.Name), err)
			}
			types[p.Name] = t
		}
		propTypes[iface.Name] = types
	}
	return &Mirror{
		pub:         pub,
		conn:        conn,
		base:        base,
		destination: destination,
		objectPath:  objectPath,
		node:        node,
		propTypes:   propTypes,
		vals:        make(map[string]map[string]publish.Val),
	}, nil
}

// Run installs the PropertiesChanged match, publishes an initial
// snapshot of every property, and then applies changes until ctx is
// done. A failure to install the match or open the signal stream is
// fatal to the mirror; a failure to GetAll one interface is logged and
// that interface is dropped from the snapshot. On the way out, every
// path this mirror ever published is unpublished so the object leaves
// no trace behind once its bus name is gone.
func (m *Mirror) Run(ctx context.Context) error {
	changes, unsub, err := m.conn.SubscribePropertiesChanged(ctx, m.destination, m.objectPath)
	if err != nil {
		return dbuserr.Wrap(dbuserr.BusTransport, "install PropertiesChanged match", err)
	}
	defer unsub()
	defer m.unpublishAll()

	var g errgroup.Group
	var mu sync.Mutex
	for iface, types := range m.propTypes {
		iface, types := iface, types
		g.Go(func() error {
			props, err := m.conn.GetAllProperties(ctx, m.destination, m.objectPath, iface)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"interface": iface, "path": m.objectPath,
				}).WithError(err).Warn("failed to GetAll properties on interface")
				return nil
			}
			ifaceVals := make(map[string]publish.Val, len(props))
			for name, raw := range props {
				t, ok := types[name]
				if !ok {
					continue
				}
				v, err := codec.DecodeValue(t, raw)
				if err != nil {
					logrus.WithFields(logrus.Fields{
						"interface": iface, "property": name,
					}).WithError(err).Warn("failed to decode property value")
					continue
				}
				path := fmt.Sprintf("%s/interfaces/%s/properties/%s", m.base, iface, name)
				val, err := m.pub.Publish(path, v)
				if err != nil {
					logrus.WithFields(logrus.Fields{"path": path}).WithError(err).Warn("failed to publish property")
					continue
				}
				ifaceVals[name] = val
			}
			mu.Lock()
			m.vals[iface] = ifaceVals
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			m.applyChange(ctx, change)
		}
	}
}

// unpublishAll removes every property this mirror currently holds
// published. Called once on the way out of Run so a dropped bus name
// leaves none of its property rows behind.
func (m *Mirror) unpublishAll() {
	for iface, ifaceVals := range m.vals {
		for _, val := range ifaceVals {
			m.pub.Unpublish(val.Path())
		}
		delete(m.vals, iface)
	}
}

func (m *Mirror) applyChange(ctx context.Context, change busconn.PropertiesChanged) {
	ifaceVals, ok := m.vals[change.Interface]
	if !ok {
		ifaceVals = make(map[string]publish.Val)
		m.vals[change.Interface] = ifaceVals
	}
	types := m.propTypes[change.Interface]

	batch := m.pub.StartBatch()
	for _, name := range change.Invalidated {
		if val, ok := ifaceVals[name]; ok {
			m.pub.Unpublish(val.Path())
			delete(ifaceVals, name)
		}
	}
	for name, raw := range change.Changed {
		t, ok := types[name]
		if !ok {
			continue
		}
		v, err := codec.DecodeValue(t, raw)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"interface": change.Interface, "property": name,
			}).WithError(err).Warn("failed to decode changed property value")
			continue
		}
		if val, ok := ifaceVals[name]; ok {
			val.Update(batch, v)
		} else {
			path := fmt.Sprintf("%s/interfaces/%s/properties/%s", m.base, change.Interface, name)
			val, err := m.pub.Publish(path, v)
			if err != nil {
				logrus.WithFields(logrus.Fields{"path": path}).WithError(err).Warn("failed to publish property")
				continue
			}
			ifaceVals[name] = val
		}
	}
	if len(ifaceVals) == 0 {
		delete(m.vals, change.Interface)
	}
	if err := batch.Commit(ctx); err != nil {
		logrus.WithError(err).Warn("failed to commit property batch")
	}
}
