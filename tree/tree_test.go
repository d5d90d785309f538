// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package tree_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/estokes/netidx-dbus/busconn"
	"github.com/estokes/netidx-dbus/introspect"
	"github.com/estokes/netidx-dbus/netvalue"
	"github.com/estokes/netidx-dbus/publish"
	"github.com/estokes/netidx-dbus/tree"
)

func TestBuildRegistersMethodAndRecursesChildren(t *testing.T) {
	fake := busconn.NewFake()
	fake.SetNode("org.example.A", "/", introspect.Node{
		Interfaces: []introspect.Interface{
			{
				Name: "org.example.Root",
				Methods: []introspect.Method{
					{Name: "Ping", Args: []introspect.MethodArg{{Name: "out", Type: "s", Direction: "out"}}},
				},
			},
		},
		Children: []introspect.Node{{Name: "child"}},
	})
	fake.SetNode("org.example.A", "/child", introspect.Node{
		Interfaces: []introspect.Interface{
			{
				Name:       "org.freedesktop.DBus.Properties",
				Properties: nil,
			},
			{
				Name: "org.example.Child",
				Properties: []introspect.Property{
					{Name: "State", Type: "i", Access: "read"},
				},
			},
		},
	})
	fake.SetProperties("org.example.A", "/child", "org.example.Child", map[string]interface{}{"State": int32(1)})
	fake.SetCallResult("org.example.A", "/", "org.example.Root", "Ping", busconn.CallResult{
		Reply: []interface{}{"pong"},
	})

	pub := publish.NewMemoryPublisher(publish.Options{})
	var wg sync.WaitGroup
	ctx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	handle, err := tree.Build(ctx, "/local/dbus/org.example.A", "org.example.A", "/", pub, fake, &wg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer handle.Close()

	got, ok := pub.Call(context.Background(), "/local/dbus/org.example.A/interfaces/org.example.Root/methods/Ping", publish.Args{})
	if !ok {
		t.Fatal("expected Ping procedure to be registered")
	}
	if got.Kind() != netvalue.KindString || got.StringValue() != "pong" {
		t.Fatalf("Ping() = %v, want string(pong)", got)
	}

	path := "/local/dbus/org.example.A/interfaces/org.example.Child/properties/State"
	deadline := time.After(time.Second)
	for {
		if v, ok := pub.CurrentValue(path); ok {
			if v.I32Value() != 1 {
				t.Fatalf("CurrentValue(%q) = %v, want i32(1)", path, v)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for child property at %q", path)
		default:
			time.Sleep(time.Millisecond)
		}
	}

	handle.Close()
	wg.Wait()
}

func TestBuildFailsOnRootIntrospectionFailure(t *testing.T) {
	fake := busconn.NewFake()
	pub := publish.NewMemoryPublisher(publish.Options{})
	var wg sync.WaitGroup

	_, err := tree.Build(context.Background(), "/local/dbus/org.example.A", "org.example.A", "/", pub, fake, &wg)
	if err == nil {
		t.Fatal("expected Build to fail when root introspection is unavailable")
	}
}
