// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package methodproxy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/estokes/netidx-dbus/busconn"
	"github.com/estokes/netidx-dbus/introspect"
	"github.com/estokes/netidx-dbus/methodproxy"
	"github.com/estokes/netidx-dbus/netvalue"
	"github.com/estokes/netidx-dbus/publish"
	"github.com/google/go-cmp/cmp"
)

func method() introspect.Method {
	return introspect.Method{
		Name: "Add",
		Args: []introspect.MethodArg{
			{Name: "a", Type: "i", Direction: "in"},
			{Name: "b", Type: "i", Direction: "in"},
			{Name: "sum", Type: "i", Direction: "out"},
		},
	}
}

func TestRegisterAndCallSuccess(t *testing.T) {
	fake := busconn.NewFake()
	fake.SetCallResult("org.example.A", "/obj", "org.example.Calc", "Add", busconn.CallResult{
		Reply: []interface{}{int32(7)},
	})
	pub := publish.NewMemoryPublisher(publish.Options{})

	err := methodproxy.Register(pub, fake, "/local/dbus/org.example.A", "org.example.A", "/obj", "org.example.Calc", method())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	procPath := "/local/dbus/org.example.A/interfaces/org.example.Calc/methods/Add"
	got, ok := pub.Call(context.Background(), procPath, publish.Args{
		"a": {netvalue.I32(3)},
		"b": {netvalue.I32(4)},
	})
	if !ok {
		t.Fatal("expected procedure to be registered")
	}
	if diff := cmp.Diff(netvalue.I32(7), got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestMissingArgumentFails(t *testing.T) {
	fake := busconn.NewFake()
	pub := publish.NewMemoryPublisher(publish.Options{})
	if err := methodproxy.Register(pub, fake, "/local/dbus/org.example.A", "org.example.A", "/obj", "org.example.Calc", method()); err != nil {
		t.Fatal(err)
	}

	procPath := "/local/dbus/org.example.A/interfaces/org.example.Calc/methods/Add"
	got, ok := pub.Call(context.Background(), procPath, publish.Args{"a": {netvalue.I32(3)}})
	if !ok {
		t.Fatal("expected procedure to be registered")
	}
	if got.Kind() != netvalue.KindError {
		t.Fatalf("got %v, want an error value", got.Kind())
	}
}

func TestEmptyArgumentFails(t *testing.T) {
	fake := busconn.NewFake()
	pub := publish.NewMemoryPublisher(publish.Options{})
	if err := methodproxy.Register(pub, fake, "/local/dbus/org.example.A", "org.example.A", "/obj", "org.example.Calc", method()); err != nil {
		t.Fatal(err)
	}

	procPath := "/local/dbus/org.example.A/interfaces/org.example.Calc/methods/Add"
	got, ok := pub.Call(context.Background(), procPath, publish.Args{
		"a": {netvalue.I32(3)},
		"b": {},
	})
	if !ok {
		t.Fatal("expected procedure to be registered")
	}
	if got.Kind() != netvalue.KindError {
		t.Fatalf("got %v, want an error value", got.Kind())
	}
}

func TestBusErrorBecomesErrorValue(t *testing.T) {
	fake := busconn.NewFake()
	fake.SetCallResult("org.example.A", "/obj", "org.example.Calc", "Add", busconn.CallResult{
		Err: errors.New("org.freedesktop.DBus.Error.Failed: boom"),
	})
	pub := publish.NewMemoryPublisher(publish.Options{})
	if err := methodproxy.Register(pub, fake, "/local/dbus/org.example.A", "org.example.A", "/obj", "org.example.Calc", method()); err != nil {
		t.Fatal(err)
	}

	procPath := "/local/dbus/org.example.A/interfaces/org.example.Calc/methods/Add"
	got, ok := pub.Call(context.Background(), procPath, publish.Args{
		"a": {netvalue.I32(1)},
		"b": {netvalue.I32(2)},
	})
	if !ok {
		t.Fatal("expected procedure to be registered")
	}
	if got.Kind() != netvalue.KindError {
		t.Fatalf("got %v, want an error value", got.Kind())
	}
}
