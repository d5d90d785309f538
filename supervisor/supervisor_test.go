// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package supervisor_test

import (
	"context"
	"testing"
	"time"

	"github.com/estokes/netidx-dbus/busconn"
	"github.com/estokes/netidx-dbus/introspect"
	"github.com/estokes/netidx-dbus/publish"
	"github.com/estokes/netidx-dbus/supervisor"
)

func TestNameDropThenReacquirePublishesAgain(t *testing.T) {
	fake := busconn.NewFake()
	fake.Names = []string{"org.example.A"}
	fake.SetNode("org.example.A", "/", introspect.Node{
		Interfaces: []introspect.Interface{
			{
				Name:       "org.freedesktop.DBus.Properties",
				Properties: nil,
			},
			{
				Name: "org.example.Thing",
				Properties: []introspect.Property{
					{Name: "State", Type: "i", Access: "read"},
				},
			},
		},
	})
	fake.SetProperties("org.example.A", "/", "org.example.Thing", map[string]interface{}{"State": int32(1)})

	pub := publish.NewMemoryPublisher(publish.Options{})
	sup := supervisor.New("/local/dbus", pub, fake)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	path := "/local/dbus/org.example.A/interfaces/org.example.Thing/properties/State"
	deadline := time.After(time.Second)
	for {
		if _, ok := pub.CurrentValue(path); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for initial property publication")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// The name is lost: its tree's Property Mirror must unpublish State.
	fake.EmitNameOwnerChanged(busconn.NameOwnerChanged{Name: "org.example.A", OldOwner: ":1.1"})

	deadline = time.After(time.Second)
	for {
		if _, ok := pub.CurrentValue(path); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for property to be unpublished after name drop")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// The name is reacquired: a fresh tree must be able to republish the
	// same path without hitting a duplicate-path PublisherError.
	fake.EmitNameOwnerChanged(busconn.NameOwnerChanged{Name: "org.example.A", NewOwner: ":1.2"})

	deadline = time.After(time.Second)
	for {
		if v, ok := pub.CurrentValue(path); ok {
			if v.I32Value() != 1 {
				t.Fatalf("CurrentValue(%q) = %v, want i32(1)", path, v)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for property to be republished after name reacquisition")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for supervisor shutdown")
	}
}

func TestRunBuildsInitialTreesAndReactsToNameOwnerChanged(t *testing.T) {
	fake := busconn.NewFake()
	fake.Names = []string{"org.example.A", ":1.1"}
	fake.SetNode("org.example.A", "/", introspect.Node{
		Interfaces: []introspect.Interface{
			{Name: "org.example.Root", Methods: []introspect.Method{{Name: "Ping"}}},
		},
	})

	pub := publish.NewMemoryPublisher(publish.Options{})
	sup := supervisor.New("/local/dbus", pub, fake)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	procPath := "/local/dbus/org.example.A/interfaces/org.example.Root/methods/Ping"
	deadline := time.After(time.Second)
	for {
		if _, ok := pub.Call(context.Background(), procPath, publish.Args{}); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for initial tree to register its method proxy")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	fake.SetNode("org.example.B", "/", introspect.Node{
		Interfaces: []introspect.Interface{
			{Name: "org.example.Other", Methods: []introspect.Method{{Name: "Echo"}}},
		},
	})
	fake.EmitNameOwnerChanged(busconn.NameOwnerChanged{Name: "org.example.B", NewOwner: ":1.9"})

	echoPath := "/local/dbus/org.example.B/interfaces/org.example.Other/methods/Echo"
	deadline = time.After(time.Second)
	for {
		if _, ok := pub.Call(context.Background(), echoPath, publish.Args{}); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for acquired name's tree to register")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	fake.EmitNameOwnerChanged(busconn.NameOwnerChanged{Name: "org.example.A", OldOwner: ":1.1"})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for supervisor shutdown")
	}
}
