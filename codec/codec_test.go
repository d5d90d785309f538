// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package codec_test

import (
	"testing"

	"github.com/estokes/netidx-dbus/codec"
	"github.com/estokes/netidx-dbus/dbustype"
	"github.com/estokes/netidx-dbus/netvalue"
	"github.com/godbus/dbus/v5"
	"github.com/google/go-cmp/cmp"
)

func mustType(t *testing.T, s string) dbustype.Type {
	t.Helper()
	ty, err := dbustype.ParseAll(s)
	if err != nil {
		t.Fatalf("ParseAll(%q): %v", s, err)
	}
	return ty
}

func TestDecodeWideningIntegers(t *testing.T) {
	cases := []struct {
		sig  string
		raw  interface{}
		want netvalue.Value
	}{
		{"y", byte(255), netvalue.U32(255)},
		{"n", int16(-1), netvalue.I32(-1)},
		{"q", uint16(65535), netvalue.U32(65535)},
		{"i", int32(-7), netvalue.I32(-7)},
		{"u", uint32(7), netvalue.U32(7)},
		{"x", int64(-7), netvalue.I64(-7)},
		{"t", uint64(7), netvalue.U64(7)},
		{"d", float64(1.5), netvalue.F64(1.5)},
		{"b", true, netvalue.Bool(true)},
		{"s", "hi", netvalue.String("hi")},
		{"o", dbus.ObjectPath("/a/b"), netvalue.String("/a/b")},
		{"h", dbus.UnixFD(3), netvalue.String("<unix-fd>")},
	}
	for _, tc := range cases {
		got, err := codec.DecodeValue(mustType(t, tc.sig), tc.raw)
		if err != nil {
			t.Errorf("sig %q: %v", tc.sig, err)
			continue
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("sig %q mismatch (-want +got):\n%s", tc.sig, diff)
		}
	}
}

func TestDecodeArrayOrderPreserved(t *testing.T) {
	got, err := codec.DecodeValue(mustType(t, "ai"), []interface{}{int32(1), int32(2), int32(3)})
	if err != nil {
		t.Fatal(err)
	}
	want := netvalue.Array([]netvalue.Value{netvalue.I32(1), netvalue.I32(2), netvalue.I32(3)})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeDictFlattensEntries(t *testing.T) {
	got, err := codec.DecodeValue(mustType(t, "a{si}"), map[string]int32{"k": 1})
	if err != nil {
		t.Fatal(err)
	}
	want := netvalue.Array([]netvalue.Value{
		netvalue.Array([]netvalue.Value{netvalue.String("k"), netvalue.I32(1)}),
	})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeVariantUnwraps(t *testing.T) {
	got, err := codec.DecodeValue(mustType(t, "v"), dbus.MakeVariant(int32(42)))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(netvalue.I32(42), got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeArgsUnification(t *testing.T) {
	zero, err := codec.DecodeArgs(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(netvalue.Null(), zero); diff != "" {
		t.Errorf("zero-arg mismatch (-want +got):\n%s", diff)
	}

	one, err := codec.DecodeArgs([]dbustype.Type{mustType(t, "i")}, []interface{}{int32(5)})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(netvalue.I32(5), one); diff != "" {
		t.Errorf("one-arg mismatch (-want +got):\n%s", diff)
	}

	many, err := codec.DecodeArgs(
		[]dbustype.Type{mustType(t, "i"), mustType(t, "s")},
		[]interface{}{int32(5), "x"},
	)
	if err != nil {
		t.Fatal(err)
	}
	want := netvalue.Array([]netvalue.Value{netvalue.I32(5), netvalue.String("x")})
	if diff := cmp.Diff(want, many); diff != "" {
		t.Errorf("many-arg mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeWidthCastOutOfRangeFails(t *testing.T) {
	_, err := codec.EncodeValue(mustType(t, "y"), netvalue.I32(256))
	if err == nil {
		t.Fatal("expected out-of-range cast to fail")
	}
}

func TestEncodeUnixFdAlwaysFails(t *testing.T) {
	_, err := codec.EncodeValue(mustType(t, "h"), netvalue.I32(3))
	if err == nil {
		t.Fatal("expected unix-fd target to fail")
	}
}

func TestEncodeBytesAsVariantFails(t *testing.T) {
	_, err := codec.EncodeValue(mustType(t, "v"), netvalue.Bytes([]byte{1, 2, 3}))
	if err == nil {
		t.Fatal("expected byte sequence encoded as variant to fail")
	}
}

func TestEncodeVariantInfersIntWidth(t *testing.T) {
	got, err := codec.EncodeValue(mustType(t, "v"), netvalue.I64(42))
	if err != nil {
		t.Fatal(err)
	}
	v, ok := got.(dbus.Variant)
	if !ok {
		t.Fatalf("expected dbus.Variant, got %T", got)
	}
	if v.Signature().String() != "x" {
		t.Errorf("signature = %q, want %q", v.Signature().String(), "x")
	}
}

func TestEncodeStructArityMismatch(t *testing.T) {
	_, err := codec.EncodeValue(mustType(t, "(ii)"), netvalue.Array([]netvalue.Value{netvalue.I32(1)}))
	if err == nil {
		t.Fatal("expected arity mismatch to fail")
	}
}

func TestEncodeDictRoundTrip(t *testing.T) {
	pairs := netvalue.Array([]netvalue.Value{
		netvalue.Array([]netvalue.Value{netvalue.String("k"), netvalue.I32(1)}),
	})
	raw, err := codec.EncodeValue(mustType(t, "a{si}"), pairs)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := raw.(map[string]int32)
	if !ok {
		t.Fatalf("expected map[string]int32, got %T", raw)
	}
	if m["k"] != 1 {
		t.Errorf("m[%q] = %d, want 1", "k", m["k"])
	}
}

func TestEncodeInvalidObjectPathFails(t *testing.T) {
	_, err := codec.EncodeValue(mustType(t, "o"), netvalue.String("not-a-path"))
	if err == nil {
		t.Fatal("expected invalid object path to fail")
	}
}
