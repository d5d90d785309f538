// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package codec converts between wire-level D-Bus values and pub/sub
// values. The two directions are asymmetric by design:
// decoding from the bus is driven entirely by the signature the bus
// itself reports (authoritative), while encoding toward the bus takes a
// pub/sub value plus a target dbustype.Type and coerces the value to
// fit, failing with a dbuserr of kind InvalidArgument when it cannot.
package codec

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/estokes/netidx-dbus/dbustype"
	"github.com/estokes/netidx-dbus/dbuserr"
	"github.com/estokes/netidx-dbus/netvalue"
	"github.com/godbus/dbus/v5"
)

const unixFDPlaceholder = "<unix-fd>"

// DecodeValue converts a single raw bus value, typed by t, into a
// pub/sub Value.
func DecodeValue(t dbustype.Type, raw interface{}) (netvalue.Value, error) {
	switch t.Kind() {
	case dbustype.KindByte:
		b, ok := raw.(byte)
		if !ok {
			return netvalue.Value{}, typeErr(t, raw)
		}
		return netvalue.U32(uint32(b)), nil

	case dbustype.KindBool:
		b, ok := raw.(bool)
		if !ok {
			return netvalue.Value{}, typeErr(t, raw)
		}
		return netvalue.Bool(b), nil

	case dbustype.KindInt16:
		n, ok := raw.(int16)
		if !ok {
			return netvalue.Value{}, typeErr(t, raw)
		}
		return netvalue.I32(int32(n)), nil

	case dbustype.KindUInt16:
		n, ok := raw.(uint16)
		if !ok {
			return netvalue.Value{}, typeErr(t, raw)
		}
		return netvalue.U32(uint32(n)), nil

	case dbustype.KindInt32:
		n, ok := raw.(int32)
		if !ok {
			return netvalue.Value{}, typeErr(t, raw)
		}
		return netvalue.I32(n), nil

	case dbustype.KindUInt32:
		n, ok := raw.(uint32)
		if !ok {
			return netvalue.Value{}, typeErr(t, raw)
		}
		return netvalue.U32(n), nil

	case dbustype.KindInt64:
		n, ok := raw.(int64)
		if !ok {
			return netvalue.Value{}, typeErr(t, raw)
		}
		return netvalue.I64(n), nil

	case dbustype.KindUInt64:
		n, ok := raw.(uint64)
		if !ok {
			return netvalue.Value{}, typeErr(t, raw)
		}
		return netvalue.U64(n), nil

	case dbustype.KindDouble:
		f, ok := raw.(float64)
		if !ok {
			return netvalue.Value{}, typeErr(t, raw)
		}
		return netvalue.F64(f), nil

	case dbustype.KindString:
		s, ok := raw.(string)
		if !ok {
			return netvalue.Value{}, typeErr(t, raw)
		}
		return netvalue.String(s), nil

	case dbustype.KindObjectPath:
		p, ok := raw.(dbus.ObjectPath)
		if !ok {
			return netvalue.Value{}, typeErr(t, raw)
		}
		return netvalue.String(string(p)), nil

	case dbustype.KindSignature:
		sig, ok := raw.(dbus.Signature)
		if !ok {
			return netvalue.Value{}, typeErr(t, raw)
		}
		return netvalue.String(sig.String()), nil

	case dbustype.KindUnixFD:
		return netvalue.String(unixFDPlaceholder), nil

	case dbustype.KindVariant:
		return decodeVariant(raw)

	case dbustype.KindArray:
		elem := t.Elem()
		if elem.Kind() == dbustype.KindDict {
			return decodeDict(elem, raw)
		}
		return decodeSequence(elem, raw)

	case dbustype.KindDict:
		return decodeDict(t, raw)

	case dbustype.KindStruct:
		return decodeStruct(t, raw)

	default:
		return netvalue.Value{}, dbuserr.New(dbuserr.InvalidArgument, fmt.Sprintf("codec: unhandled signature kind %v", t.Kind()))
	}
}

func decodeVariant(raw interface{}) (netvalue.Value, error) {
	v, ok := raw.(dbus.Variant)
	if !ok {
		return netvalue.Value{}, dbuserr.New(dbuserr.InvalidArgument, fmt.Sprintf("codec: expected dbus.Variant, got %T", raw))
	}
	sig := v.Signature().String()
	if sig == "" {
		return netvalue.Null(), nil
	}
	t, err := dbustype.ParseAll(sig)
	if err != nil {
		return netvalue.Value{}, dbuserr.Wrap(dbuserr.InvalidSignature, "codec: invalid variant signature", err)
	}
	return DecodeValue(t, v.Value())
}

func decodeSequence(elem dbustype.Type, raw interface{}) (netvalue.Value, error) {
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return netvalue.Value{}, dbuserr.New(dbuserr.InvalidArgument, fmt.Sprintf("codec: expected a sequence, got %T", raw))
	}
	out := make([]netvalue.Value, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		v, err := DecodeValue(elem, rv.Index(i).Interface())
		if err != nil {
			return netvalue.Value{}, err
		}
		out[i] = v
	}
	return netvalue.Array(out), nil
}

func decodeStruct(t dbustype.Type, raw interface{}) (netvalue.Value, error) {
	fields := t.Fields()
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() != len(fields) {
			return netvalue.Value{}, dbuserr.New(dbuserr.ArityMismatch, fmt.Sprintf("codec: struct %s has %d fields, got %d", t, len(fields), rv.Len()))
		}
		out := make([]netvalue.Value, len(fields))
		for i, f := range fields {
			v, err := DecodeValue(f, rv.Index(i).Interface())
			if err != nil {
				return netvalue.Value{}, err
			}
			out[i] = v
		}
		return netvalue.Array(out), nil
	case reflect.Struct:
		if rv.NumField() != len(fields) {
			return netvalue.Value{}, dbuserr.New(dbuserr.ArityMismatch, fmt.Sprintf("codec: struct %s has %d fields, got %d", t, len(fields), rv.NumField()))
		}
		out := make([]netvalue.Value, len(fields))
		for i, f := range fields {
			v, err := DecodeValue(f, rv.Field(i).Interface())
			if err != nil {
				return netvalue.Value{}, err
			}
			out[i] = v
		}
		return netvalue.Array(out), nil
	default:
		return netvalue.Value{}, dbuserr.New(dbuserr.InvalidArgument, fmt.Sprintf("codec: expected a struct, got %T", raw))
	}
}

func decodeDict(dict dbustype.Type, raw interface{}) (netvalue.Value, error) {
	key, val := dict.KeyVal()
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Map {
		return netvalue.Value{}, dbuserr.New(dbuserr.InvalidArgument, fmt.Sprintf("codec: expected a map, got %T", raw))
	}
	out := make([]netvalue.Value, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := DecodeValue(key, iter.Key().Interface())
		if err != nil {
			return netvalue.Value{}, err
		}
		v, err := DecodeValue(val, iter.Value().Interface())
		if err != nil {
			return netvalue.Value{}, err
		}
		out = append(out, netvalue.Array([]netvalue.Value{k, v}))
	}
	return netvalue.Array(out), nil
}

// DecodeArgs decodes a method reply's positional args, unifying them:
// zero args yields null, one arg yields that value, more than one
// yields an array.
func DecodeArgs(sigs []dbustype.Type, raws []interface{}) (netvalue.Value, error) {
	if len(sigs) != len(raws) {
		return netvalue.Value{}, dbuserr.New(dbuserr.ArityMismatch, fmt.Sprintf("codec: %d declared args, got %d", len(sigs), len(raws)))
	}
	vs := make([]netvalue.Value, len(sigs))
	for i, t := range sigs {
		v, err := DecodeValue(t, raws[i])
		if err != nil {
			return netvalue.Value{}, err
		}
		vs[i] = v
	}
	return unify(vs), nil
}

func unify(vs []netvalue.Value) netvalue.Value {
	switch len(vs) {
	case 0:
		return netvalue.Null()
	case 1:
		return vs[0]
	default:
		return netvalue.Array(vs)
	}
}

func typeErr(t dbustype.Type, raw interface{}) error {
	return dbuserr.New(dbuserr.InvalidArgument, fmt.Sprintf("codec: signature %s does not match value of type %T", t, raw))
}

// EncodeValue coerces a pub/sub value to the Go representation the bus
// expects for target type t.
func EncodeValue(t dbustype.Type, v netvalue.Value) (interface{}, error) {
	switch t.Kind() {
	case dbustype.KindByte:
		u, err := toUint64(v)
		if err != nil {
			return nil, err
		}
		if u > math.MaxUint8 {
			return nil, rangeErr(t, v)
		}
		return byte(u), nil

	case dbustype.KindBool:
		b, err := toBool(v)
		if err != nil {
			return nil, err
		}
		return b, nil

	case dbustype.KindInt16:
		i, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if i < math.MinInt16 || i > math.MaxInt16 {
			return nil, rangeErr(t, v)
		}
		return int16(i), nil

	case dbustype.KindUInt16:
		u, err := toUint64(v)
		if err != nil {
			return nil, err
		}
		if u > math.MaxUint16 {
			return nil, rangeErr(t, v)
		}
		return uint16(u), nil

	case dbustype.KindInt32:
		i, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, rangeErr(t, v)
		}
		return int32(i), nil

	case dbustype.KindUInt32:
		u, err := toUint64(v)
		if err != nil {
			return nil, err
		}
		if u > math.MaxUint32 {
			return nil, rangeErr(t, v)
		}
		return uint32(u), nil

	case dbustype.KindInt64:
		i, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return i, nil

	case dbustype.KindUInt64:
		u, err := toUint64(v)
		if err != nil {
			return nil, err
		}
		return u, nil

	case dbustype.KindDouble:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		return f, nil

	case dbustype.KindString:
		s, err := toString(v)
		if err != nil {
			return nil, err
		}
		return s, nil

	case dbustype.KindObjectPath:
		s, err := toString(v)
		if err != nil {
			return nil, err
		}
		if !validObjectPath(s) {
			return nil, dbuserr.New(dbuserr.InvalidArgument, fmt.Sprintf("codec: %q is not a valid object path", s))
		}
		return dbus.ObjectPath(s), nil

	case dbustype.KindSignature:
		s, err := toString(v)
		if err != nil {
			return nil, err
		}
		if err := validSignatureString(s); err != nil {
			return nil, dbuserr.Wrap(dbuserr.InvalidArgument, fmt.Sprintf("codec: %q is not a valid signature", s), err)
		}
		sig, err := dbus.ParseSignature(s)
		if err != nil {
			return nil, dbuserr.Wrap(dbuserr.InvalidArgument, fmt.Sprintf("codec: %q is not a valid signature", s), err)
		}
		return sig, nil

	case dbustype.KindUnixFD:
		return nil, dbuserr.New(dbuserr.InvalidArgument, "codec: cannot encode a value as a unix file descriptor")

	case dbustype.KindVariant:
		return encodeVariant(v)

	case dbustype.KindArray:
		if elem := t.Elem(); elem.Kind() == dbustype.KindDict {
			return encodeDict(elem, v)
		}
		return encodeArray(t, v)

	case dbustype.KindStruct:
		return encodeStruct(t, v)

	case dbustype.KindDict:
		return encodeDict(t, v)

	default:
		return nil, dbuserr.New(dbuserr.InvalidArgument, fmt.Sprintf("codec: unhandled signature kind %v", t.Kind()))
	}
}

func toInt64(v netvalue.Value) (int64, error) {
	switch v.Kind() {
	case netvalue.KindI32:
		return int64(v.I32Value()), nil
	case netvalue.KindI64:
		return v.I64Value(), nil
	case netvalue.KindU32:
		return int64(v.U32Value()), nil
	case netvalue.KindU64:
		u := v.U64Value()
		if u > math.MaxInt64 {
			return 0, castErr(v)
		}
		return int64(u), nil
	case netvalue.KindF32:
		f := v.F32Value()
		if f != math.Trunc(f) {
			return 0, castErr(v)
		}
		return int64(f), nil
	case netvalue.KindF64:
		f := v.F64Value()
		if f != math.Trunc(f) {
			return 0, castErr(v)
		}
		return int64(f), nil
	default:
		return 0, castErr(v)
	}
}

func toUint64(v netvalue.Value) (uint64, error) {
	switch v.Kind() {
	case netvalue.KindU32:
		return uint64(v.U32Value()), nil
	case netvalue.KindU64:
		return v.U64Value(), nil
	case netvalue.KindI32:
		i := v.I32Value()
		if i < 0 {
			return 0, castErr(v)
		}
		return uint64(i), nil
	case netvalue.KindI64:
		i := v.I64Value()
		if i < 0 {
			return 0, castErr(v)
		}
		return uint64(i), nil
	case netvalue.KindF32:
		f := v.F32Value()
		if f < 0 || f != math.Trunc(f) {
			return 0, castErr(v)
		}
		return uint64(f), nil
	case netvalue.KindF64:
		f := v.F64Value()
		if f < 0 || f != math.Trunc(f) {
			return 0, castErr(v)
		}
		return uint64(f), nil
	default:
		return 0, castErr(v)
	}
}

func toFloat64(v netvalue.Value) (float64, error) {
	switch v.Kind() {
	case netvalue.KindF32:
		return float64(v.F32Value()), nil
	case netvalue.KindF64:
		return v.F64Value(), nil
	case netvalue.KindI32:
		return float64(v.I32Value()), nil
	case netvalue.KindI64:
		return float64(v.I64Value()), nil
	case netvalue.KindU32:
		return float64(v.U32Value()), nil
	case netvalue.KindU64:
		return float64(v.U64Value()), nil
	default:
		return 0, castErr(v)
	}
}

func toBool(v netvalue.Value) (bool, error) {
	switch v.Kind() {
	case netvalue.KindTrue:
		return true, nil
	case netvalue.KindFalse:
		return false, nil
	default:
		return false, castErr(v)
	}
}

func toString(v netvalue.Value) (string, error) {
	if v.Kind() != netvalue.KindString {
		return "", castErr(v)
	}
	return v.StringValue(), nil
}

func castErr(v netvalue.Value) error {
	return dbuserr.New(dbuserr.InvalidArgument, fmt.Sprintf("codec: cannot encode a %s value here", v.Kind()))
}

func rangeErr(t dbustype.Type, v netvalue.Value) error {
	return dbuserr.New(dbuserr.InvalidArgument, fmt.Sprintf("codec: %s value out of range for %s", v.Kind(), t))
}

func validObjectPath(s string) bool {
	if s == "/" {
		return true
	}
	if len(s) == 0 || s[0] != '/' || s[len(s)-1] == '/' {
		return false
	}
	for _, seg := range splitSegments(s[1:]) {
		if seg == "" {
			return false
		}
		for _, c := range seg {
			if !(c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
				return false
			}
		}
	}
	return true
}

func splitSegments(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func validSignatureString(s string) error {
	for s != "" {
		_, tail, err := dbustype.ParseOne(s)
		if err != nil {
			return err
		}
		s = tail
	}
	return nil
}

// encodeVariant infers the target type from v's kind and wraps the
// recursively encoded value in a dbus.Variant.
func encodeVariant(v netvalue.Value) (interface{}, error) {
	var inner dbustype.Type
	switch v.Kind() {
	case netvalue.KindI32:
		inner = dbustype.NewBasic(dbustype.KindInt32)
	case netvalue.KindI64:
		inner = dbustype.NewBasic(dbustype.KindInt64)
	case netvalue.KindU32:
		inner = dbustype.NewBasic(dbustype.KindUInt32)
	case netvalue.KindU64:
		inner = dbustype.NewBasic(dbustype.KindUInt64)
	case netvalue.KindF32, netvalue.KindF64:
		inner = dbustype.NewBasic(dbustype.KindDouble)
	case netvalue.KindTrue, netvalue.KindFalse, netvalue.KindOk, netvalue.KindError, netvalue.KindNull:
		raw, err := EncodeValue(dbustype.NewBasic(dbustype.KindBool), netvalue.Bool(v.IsTruthy()))
		if err != nil {
			return nil, err
		}
		return dbus.MakeVariant(raw), nil
	case netvalue.KindString:
		inner = dbustype.NewBasic(dbustype.KindString)
	case netvalue.KindDuration:
		raw, err := EncodeValue(dbustype.NewBasic(dbustype.KindString), netvalue.String(v.DurationValue().String()))
		if err != nil {
			return nil, err
		}
		return dbus.MakeVariant(raw), nil
	case netvalue.KindDateTime:
		raw, err := EncodeValue(dbustype.NewBasic(dbustype.KindString), netvalue.String(v.DateTimeValue().Format(time.RFC3339Nano)))
		if err != nil {
			return nil, err
		}
		return dbus.MakeVariant(raw), nil
	case netvalue.KindArray:
		elems := v.ArrayValue()
		out := make([]dbus.Variant, len(elems))
		for i, e := range elems {
			raw, err := encodeVariant(e)
			if err != nil {
				return nil, err
			}
			out[i] = raw.(dbus.Variant)
		}
		return dbus.MakeVariant(out), nil
	case netvalue.KindBytes:
		return nil, dbuserr.New(dbuserr.InvalidArgument, "codec: cannot encode a byte sequence as a variant")
	default:
		return nil, castErr(v)
	}
	raw, err := EncodeValue(inner, v)
	if err != nil {
		return nil, err
	}
	return dbus.MakeVariant(raw), nil
}

func encodeArray(t dbustype.Type, v netvalue.Value) (interface{}, error) {
	if v.Kind() != netvalue.KindArray {
		return nil, castErr(v)
	}
	elem := t.Elem()
	elems := v.ArrayValue()
	goElemType := goTypeFor(elem)
	out := reflect.MakeSlice(reflect.SliceOf(goElemType), len(elems), len(elems))
	for i, e := range elems {
		raw, err := EncodeValue(elem, e)
		if err != nil {
			return nil, err
		}
		out.Index(i).Set(reflect.ValueOf(raw))
	}
	return out.Interface(), nil
}

func encodeStruct(t dbustype.Type, v netvalue.Value) (interface{}, error) {
	if v.Kind() != netvalue.KindArray {
		return nil, castErr(v)
	}
	fields := t.Fields()
	elems := v.ArrayValue()
	if len(elems) != len(fields) {
		return nil, dbuserr.New(dbuserr.ArityMismatch, fmt.Sprintf("codec: struct %s wants %d fields, got %d", t, len(fields), len(elems)))
	}
	structFields := make([]reflect.StructField, len(fields))
	values := make([]interface{}, len(fields))
	for i, f := range fields {
		raw, err := EncodeValue(f, elems[i])
		if err != nil {
			return nil, err
		}
		values[i] = raw
		structFields[i] = reflect.StructField{Name: fmt.Sprintf("F%d", i), Type: goTypeFor(f)}
	}
	structType := reflect.StructOf(structFields)
	out := reflect.New(structType).Elem()
	for i, raw := range values {
		out.Field(i).Set(reflect.ValueOf(raw))
	}
	return out.Interface(), nil
}

func encodeDict(t dbustype.Type, v netvalue.Value) (interface{}, error) {
	if v.Kind() != netvalue.KindArray {
		return nil, castErr(v)
	}
	key, val := t.KeyVal()
	pairs := v.ArrayValue()
	out := reflect.MakeMapWithSize(reflect.MapOf(goTypeFor(key), goTypeFor(val)), len(pairs))
	for _, pair := range pairs {
		if pair.Kind() != netvalue.KindArray || len(pair.ArrayValue()) != 2 {
			return nil, dbuserr.New(dbuserr.InvalidArgument, "codec: dict entry must be a [key, value] pair")
		}
		kv := pair.ArrayValue()
		rk, err := EncodeValue(key, kv[0])
		if err != nil {
			return nil, err
		}
		rv, err := EncodeValue(val, kv[1])
		if err != nil {
			return nil, err
		}
		out.SetMapIndex(reflect.ValueOf(rk), reflect.ValueOf(rv))
	}
	return out.Interface(), nil
}

// goTypeFor returns the Go representation EncodeValue produces for t, used
// to build slice, map and struct container types via reflection.
func goTypeFor(t dbustype.Type) reflect.Type {
	switch t.Kind() {
	case dbustype.KindByte:
		return reflect.TypeOf(byte(0))
	case dbustype.KindBool:
		return reflect.TypeOf(false)
	case dbustype.KindInt16:
		return reflect.TypeOf(int16(0))
	case dbustype.KindUInt16:
		return reflect.TypeOf(uint16(0))
	case dbustype.KindInt32:
		return reflect.TypeOf(int32(0))
	case dbustype.KindUInt32:
		return reflect.TypeOf(uint32(0))
	case dbustype.KindInt64:
		return reflect.TypeOf(int64(0))
	case dbustype.KindUInt64:
		return reflect.TypeOf(uint64(0))
	case dbustype.KindDouble:
		return reflect.TypeOf(float64(0))
	case dbustype.KindString:
		return reflect.TypeOf("")
	case dbustype.KindObjectPath:
		return reflect.TypeOf(dbus.ObjectPath(""))
	case dbustype.KindSignature:
		return reflect.TypeOf(dbus.Signature{})
	case dbustype.KindUnixFD:
		return reflect.TypeOf(dbus.UnixFD(0))
	case dbustype.KindVariant:
		return reflect.TypeOf(dbus.Variant{})
	case dbustype.KindArray:
		if t.Elem().Kind() == dbustype.KindDict {
			return goTypeFor(t.Elem())
		}
		return reflect.SliceOf(goTypeFor(t.Elem()))
	case dbustype.KindDict:
		key, val := t.KeyVal()
		return reflect.MapOf(goTypeFor(key), goTypeFor(val))
	case dbustype.KindStruct:
		fields := t.Fields()
		structFields := make([]reflect.StructField, len(fields))
		for i, f := range fields {
			structFields[i] = reflect.StructField{Name: fmt.Sprintf("F%d", i), Type: goTypeFor(f)}
		}
		return reflect.StructOf(structFields)
	default:
		return reflect.TypeOf((*interface{})(nil)).Elem()
	}
}
