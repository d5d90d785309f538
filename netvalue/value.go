// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package netvalue models the pub/sub value lattice the external
// publication service traffics in: a tagged variant with numeric width
// variants, boolean constants, null, string, byte sequence,
// duration, date-time and untyped arrays. Arrays carry no element-type
// metadata, matching the real netidx subscriber value this package
// reproduces (see original_source/src/main.rs's dbus_value_to_netidx_value).
package netvalue

import (
	"fmt"
	"time"
)

// Kind identifies the shape of a Value.
type Kind int

const (
	KindU32 Kind = iota
	KindI32
	KindU64
	KindI64
	KindF32
	KindF64
	KindTrue
	KindFalse
	KindOk
	KindError
	KindNull
	KindString
	KindBytes
	KindDuration
	KindDateTime
	KindArray
)

// Value is an owning, recursively nested pub/sub value. The zero Value
// has kind KindU32 and reads as U32(0); Null() returns the null value.
type Value struct {
	kind     Kind
	u        uint64
	i        int64
	f        float64
	s        string
	bytes    []byte
	dur      time.Duration
	datetime time.Time
	array    []Value
}

func (v Value) Kind() Kind { return v.kind }

// Constructors, one per variant.

func U32(n uint32) Value { return Value{kind: KindU32, u: uint64(n)} }
func I32(n int32) Value  { return Value{kind: KindI32, i: int64(n)} }
func U64(n uint64) Value { return Value{kind: KindU64, u: n} }
func I64(n int64) Value  { return Value{kind: KindI64, i: n} }
func F32(n float32) Value { return Value{kind: KindF32, f: float64(n)} }
func F64(n float64) Value { return Value{kind: KindF64, f: n} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Bytes(b []byte) Value {
	return Value{kind: KindBytes, bytes: append([]byte(nil), b...)}
}
func Duration(d time.Duration) Value { return Value{kind: KindDuration, dur: d} }
func DateTime(t time.Time) Value     { return Value{kind: KindDateTime, datetime: t} }
func Array(vs []Value) Value {
	return Value{kind: KindArray, array: append([]Value(nil), vs...)}
}

var (
	trueVal  = Value{kind: KindTrue}
	falseVal = Value{kind: KindFalse}
	okVal    = Value{kind: KindOk}
	nullVal  = Value{kind: KindNull}
)

// Bool returns True or False.
func Bool(b bool) Value {
	if b {
		return trueVal
	}
	return falseVal
}

// Ok returns the "ok" boolean-like constant.
func Ok() Value { return okVal }

// Err returns an error-with-message value.
func Err(msg string) Value { return Value{kind: KindError, s: msg} }

// Null returns the null constant.
func Null() Value { return nullVal }

// U32Value, I32Value, etc. extract the underlying scalar. Each panics if
// v is not of the matching Kind; callers should check Kind first.

func (v Value) U32Value() uint32 { v.mustBe(KindU32); return uint32(v.u) }
func (v Value) I32Value() int32  { v.mustBe(KindI32); return int32(v.i) }
func (v Value) U64Value() uint64 { v.mustBe(KindU64); return v.u }
func (v Value) I64Value() int64  { v.mustBe(KindI64); return v.i }
func (v Value) F32Value() float32 { v.mustBe(KindF32); return float32(v.f) }
func (v Value) F64Value() float64 { v.mustBe(KindF64); return v.f }
func (v Value) StringValue() string {
	if v.kind != KindString && v.kind != KindError {
		panic(fmt.Sprintf("netvalue: StringValue called on %v", v.kind))
	}
	return v.s
}
func (v Value) BytesValue() []byte            { v.mustBe(KindBytes); return v.bytes }
func (v Value) DurationValue() time.Duration  { v.mustBe(KindDuration); return v.dur }
func (v Value) DateTimeValue() time.Time      { v.mustBe(KindDateTime); return v.datetime }
func (v Value) ArrayValue() []Value           { v.mustBe(KindArray); return v.array }

func (v Value) mustBe(k Kind) {
	if v.kind != k {
		panic(fmt.Sprintf("netvalue: expected %v, got %v", k, v.kind))
	}
}

// IsTruthy reports the boolean-like reading of v used when coercing into
// a D-Bus Bool: Ok and True are true, everything else — Error, Null,
// False — is false.
func (v Value) IsTruthy() bool {
	switch v.kind {
	case KindTrue, KindOk:
		return true
	default:
		return false
	}
}

// Equal reports whether v and other carry the same kind and payload. It
// lets tests compare Values with cmp.Diff (cmp dispatches to an Equal
// method when one is present) without exporting internal fields.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindU32, KindU64:
		return v.u == other.u
	case KindI32, KindI64:
		return v.i == other.i
	case KindF32, KindF64:
		return v.f == other.f
	case KindString, KindError:
		return v.s == other.s
	case KindBytes:
		if len(v.bytes) != len(other.bytes) {
			return false
		}
		for i := range v.bytes {
			if v.bytes[i] != other.bytes[i] {
				return false
			}
		}
		return true
	case KindDuration:
		return v.dur == other.dur
	case KindDateTime:
		return v.datetime.Equal(other.datetime)
	case KindArray:
		if len(v.array) != len(other.array) {
			return false
		}
		for i := range v.array {
			if !v.array[i].Equal(other.array[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (k Kind) String() string {
	switch k {
	case KindU32:
		return "u32"
	case KindI32:
		return "i32"
	case KindU64:
		return "u64"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindTrue:
		return "true"
	case KindFalse:
		return "false"
	case KindOk:
		return "ok"
	case KindError:
		return "error"
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindDuration:
		return "duration"
	case KindDateTime:
		return "date-time"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}
