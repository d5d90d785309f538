// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package tree builds an Object Tree for one bus name: introspect the
// root, recurse into children concurrently, detach a Property Mirror
// for every object that has properties, and register a Method Proxy for
// every exported method.
package tree

import (
	"context"
	"fmt"
	"time"

	"github.com/estokes/netidx-dbus/busconn"
	"github.com/estokes/netidx-dbus/introspect"
	"github.com/estokes/netidx-dbus/methodproxy"
	"github.com/estokes/netidx-dbus/propmirror"
	"github.com/estokes/netidx-dbus/publish"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// introspectTimeout bounds each object's introspection call.
const introspectTimeout = 30 * time.Second

// Handle is a live Object Tree's root. Close tears the subtree's
// Property Mirrors down: every Property Mirror spawned anywhere under
// this root shares the handle's context and exits once it is canceled.
// Method Proxies are not unregistered: their procedures stay registered
// after Close, and a later Build that registers the same procedure path
// gets a duplicate-path error, which is logged and skipped.
type Handle struct {
	cancel context.CancelFunc
}

// Close tears down this Object Tree's background work.
func (h *Handle) Close() {
	h.cancel()
}

// Build introspects objectPath on destination and recursively builds the
// rest of the tree beneath it, publishing under base. wg is incremented
// once per detached Property Mirror goroutine so callers (tests, or a
// supervisor awaiting full shutdown) can wait for them to exit after
// canceling.
func Build(
	ctx context.Context,
	base string,
	destination, objectPath string,
	pub publish.Publisher,
	conn busconn.Conn,
	wg waitGroup,
) (*Handle, error) {
	subCtx, cancel := context.WithCancel(ctx)
	if err := build(subCtx, base, destination, objectPath, pub, conn, wg); err != nil {
		cancel()
		return nil, err
	}
	return &Handle{cancel: cancel}, nil
}

// waitGroup is the subset of *sync.WaitGroup this package needs, so
// tests can pass a real one without importing sync in the public API.
type waitGroup interface {
	Add(int)
	Done()
}

func build(
	ctx context.Context,
	base string,
	destination, objectPath string,
	pub publish.Publisher,
	conn busconn.Conn,
	wg waitGroup,
) error {
	introCtx, cancel := context.WithTimeout(ctx, introspectTimeout)
	node, err := conn.Introspect(introCtx, destination, objectPath)
	cancel()
	if err != nil {
		return err
	}

	if node.HasPropertiesInterface() {
		mirror, err := propmirror.New(pub, conn, base, destination, objectPath, node)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"destination": destination, "path": objectPath,
			}).WithError(err).Warn("failed to construct property mirror")
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := mirror.Run(ctx); err != nil {
					logrus.WithFields(logrus.Fields{
						"destination": destination, "path": objectPath,
					}).WithError(err).Warn("property mirror exited with an error")
				}
			}()
		}
	}

	for _, iface := range node.Interfaces {
		for _, method := range iface.Methods {
			err := methodproxy.Register(pub, conn, base, destination, objectPath, iface.Name, method)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"destination": destination, "path": objectPath,
					"interface": iface.Name, "method": method.Name,
				}).WithError(err).Warn("failed to register method proxy")
			}
		}
	}

	var g errgroup.Group
	for _, child := range node.Children {
		child := child
		childPath := childObjectPath(objectPath, child)
		g.Go(func() error {
			if err := build(ctx, base, destination, childPath, pub, conn, wg); err != nil {
				logrus.WithFields(logrus.Fields{
					"destination": destination, "path": childPath,
				}).WithError(err).Warn("failed to build object subtree")
			}
			return nil
		})
	}
	return g.Wait()
}

func childObjectPath(parent string, child introspect.Node) string {
	if !child.HasName() {
		return parent
	}
	if parent == "/" {
		return "/" + child.Name
	}
	return fmt.Sprintf("%s/%s", parent, child.Name)
}
