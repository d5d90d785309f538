// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package busconn

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/google/go-cmp/cmp"
)

func TestDecodePropertiesChanged(t *testing.T) {
	sig := &dbus.Signal{
		Name: propertiesInterface + ".PropertiesChanged",
		Path: "/foo",
		Body: []interface{}{
			"org.example.Thing",
			map[string]dbus.Variant{"Speed": dbus.MakeVariant(int32(5))},
			[]string{"Color"},
		},
	}
	got, ok := decodePropertiesChanged(sig)
	if !ok {
		t.Fatal("expected a decodable signal")
	}
	want := PropertiesChanged{
		Interface:   "org.example.Thing",
		Changed:     map[string]interface{}{"Speed": int32(5)},
		Invalidated: []string{"Color"},
	}
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b dbus.Variant) bool { return a.String() == b.String() })); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodePropertiesChangedWrongShape(t *testing.T) {
	if _, ok := decodePropertiesChanged(&dbus.Signal{Body: []interface{}{"only one"}}); ok {
		t.Fatal("expected decode to fail on wrong body shape")
	}
}

func TestDecodeNameOwnerChanged(t *testing.T) {
	sig := &dbus.Signal{
		Name: busInterface + ".NameOwnerChanged",
		Body: []interface{}{"org.example.Thing", "", ":1.42"},
	}
	got, ok := decodeNameOwnerChanged(sig)
	if !ok {
		t.Fatal("expected a decodable signal")
	}
	want := NameOwnerChanged{Name: "org.example.Thing", OldOwner: "", NewOwner: ":1.42"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
