// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package dbustype parses and prints D-Bus type signatures: the prefix
// coded type grammar built out of single-character leaves (y, b, n, q, i,
// u, x, t, d, s, o, g, v, h) and the container forms a<T>, (T...) and
// {K V}.
package dbustype

import (
	"fmt"
	"strings"
)

// Kind identifies the shape of a Type.
type Kind int

// The D-Bus basic and container kinds.
const (
	KindByte Kind = iota
	KindBool
	KindInt16
	KindUInt16
	KindInt32
	KindUInt32
	KindInt64
	KindUInt64
	KindDouble
	KindUnixFD
	KindString
	KindObjectPath
	KindSignature
	KindVariant
	KindArray
	KindStruct
	KindDict
)

var kindNames = map[Kind]string{
	KindByte:       "byte",
	KindBool:       "bool",
	KindInt16:      "int16",
	KindUInt16:     "uint16",
	KindInt32:      "int32",
	KindUInt32:     "uint32",
	KindInt64:      "int64",
	KindUInt64:     "uint64",
	KindDouble:     "double",
	KindUnixFD:     "unix-fd",
	KindString:     "string",
	KindObjectPath: "object-path",
	KindSignature:  "signature",
	KindVariant:    "variant",
	KindArray:      "array",
	KindStruct:     "struct",
	KindDict:       "dict",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("dbustype.Kind(%d)", int(k))
}

// maxDepth bounds container nesting, per spec: implementations may cap
// recursion; 32 matches the D-Bus specification's own container depth
// limit.
const maxDepth = 32

// leafChars maps a single signature character to its basic Kind.
var leafChars = map[byte]Kind{
	'y': KindByte,
	'b': KindBool,
	'n': KindInt16,
	'q': KindUInt16,
	'i': KindInt32,
	'u': KindUInt32,
	'x': KindInt64,
	't': KindUInt64,
	'd': KindDouble,
	's': KindString,
	'o': KindObjectPath,
	'g': KindSignature,
	'v': KindVariant,
	'h': KindUnixFD,
}

var kindChars = func() map[Kind]byte {
	m := make(map[Kind]byte, len(leafChars))
	for c, k := range leafChars {
		m[k] = c
	}
	return m
}()

// Type is an owning, recursively nested D-Bus type. The zero Type is not
// valid; construct one via ParseOne/ParseAll or the New* helpers.
type Type struct {
	kind   Kind
	elem   *Type   // KindArray
	key    *Type   // KindDict
	val    *Type   // KindDict
	fields []Type  // KindStruct
}

// NewBasic returns the Type for a basic (non-container) Kind. It panics if
// kind is a container kind.
func NewBasic(kind Kind) Type {
	if kind == KindArray || kind == KindStruct || kind == KindDict {
		panic("dbustype: NewBasic called with a container kind")
	}
	return Type{kind: kind}
}

// NewArray returns Array(elem).
func NewArray(elem Type) Type {
	e := elem
	return Type{kind: KindArray, elem: &e}
}

// NewStruct returns Struct(fields...). It panics if fields is empty.
func NewStruct(fields ...Type) Type {
	if len(fields) == 0 {
		panic("dbustype: NewStruct requires at least one field")
	}
	return Type{kind: KindStruct, fields: append([]Type(nil), fields...)}
}

// NewDict returns Dict(key, val).
func NewDict(key, val Type) Type {
	k, v := key, val
	return Type{kind: KindDict, key: &k, val: &v}
}

// Kind reports the shape of t.
func (t Type) Kind() Kind { return t.kind }

// Elem returns the element type of an Array Type. It panics otherwise.
func (t Type) Elem() Type {
	if t.kind != KindArray {
		panic("dbustype: Elem called on non-array Type")
	}
	return *t.elem
}

// KeyVal returns the key and value types of a Dict Type. It panics
// otherwise.
func (t Type) KeyVal() (Type, Type) {
	if t.kind != KindDict {
		panic("dbustype: KeyVal called on non-dict Type")
	}
	return *t.key, *t.val
}

// Fields returns the field types of a Struct Type. It panics otherwise.
func (t Type) Fields() []Type {
	if t.kind != KindStruct {
		panic("dbustype: Fields called on non-struct Type")
	}
	return t.fields
}

// IsBasic reports whether t is a type the D-Bus grammar allows as a dict
// entry key: byte, bool, any integer width, double, string, object path
// or signature.
func (t Type) IsBasic() bool {
	switch t.kind {
	case KindByte, KindBool, KindInt16, KindUInt16, KindInt32, KindUInt32,
		KindInt64, KindUInt64, KindDouble, KindString, KindObjectPath,
		KindSignature:
		return true
	default:
		return false
	}
}

// Equal reports whether t and other are structurally identical.
func (t Type) Equal(other Type) bool {
	return t.String() == other.String()
}

// String returns the canonical D-Bus signature string for t.
func (t Type) String() string {
	var b strings.Builder
	t.print(&b)
	return b.String()
}

func (t Type) print(b *strings.Builder) {
	if c, ok := kindChars[t.kind]; ok {
		b.WriteByte(c)
		return
	}
	switch t.kind {
	case KindArray:
		b.WriteByte('a')
		t.elem.print(b)
	case KindStruct:
		b.WriteByte('(')
		for _, f := range t.fields {
			f.print(b)
		}
		b.WriteByte(')')
	case KindDict:
		b.WriteByte('{')
		t.key.print(b)
		t.val.print(b)
		b.WriteByte('}')
	}
}

// ParseAll parses s as a single complete D-Bus type, failing if any
// trailing characters remain.
func ParseAll(s string) (Type, error) {
	t, tail, err := ParseOne(s)
	if err != nil {
		return Type{}, err
	}
	if tail != "" {
		return Type{}, &ParseError{Input: s, Reason: fmt.Sprintf("trailing garbage %q after complete type", tail)}
	}
	return t, nil
}

// ParseOne consumes the minimal prefix of s describing one complete D-Bus
// type, returning that Type and the unconsumed tail.
func ParseOne(s string) (Type, string, error) {
	return parseOne(s, 0)
}

// ParseError reports a failure to parse a D-Bus signature.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid dbus signature %q: %s", e.Input, e.Reason)
}

func parseOne(s string, depth int) (Type, string, error) {
	if s == "" {
		return Type{}, "", &ParseError{Input: s, Reason: "empty signature"}
	}
	if depth > maxDepth {
		return Type{}, "", &ParseError{Input: s, Reason: "container nesting too deep"}
	}

	c := s[0]
	if kind, ok := leafChars[c]; ok {
		return Type{kind: kind}, s[1:], nil
	}

	switch c {
	case 'a':
		elem, tail, err := parseOne(s[1:], depth+1)
		if err != nil {
			return Type{}, "", err
		}
		return NewArray(elem), tail, nil

	case '(':
		var fields []Type
		tail := s[1:]
		for {
			if tail == "" {
				return Type{}, "", &ParseError{Input: s, Reason: "unterminated struct, missing )"}
			}
			if tail[0] == ')' {
				break
			}
			var (
				field Type
				err   error
			)
			field, tail, err = parseOne(tail, depth+1)
			if err != nil {
				return Type{}, "", err
			}
			fields = append(fields, field)
		}
		if len(fields) == 0 {
			return Type{}, "", &ParseError{Input: s, Reason: "struct must have at least one field"}
		}
		return NewStruct(fields...), tail[1:], nil

	case '{':
		tail := s[1:]
		if tail == "" || tail[0] == '}' {
			return Type{}, "", &ParseError{Input: s, Reason: "dict entry requires exactly one key and one value type"}
		}
		key, tail2, err := parseOne(tail, depth+1)
		if err != nil {
			return Type{}, "", err
		}
		if !key.IsBasic() {
			return Type{}, "", &ParseError{Input: s, Reason: fmt.Sprintf("dict entry key %q must be a basic type", key)}
		}
		if tail2 == "" || tail2[0] == '}' {
			return Type{}, "", &ParseError{Input: s, Reason: "dict entry requires exactly one key and one value type"}
		}
		val, tail3, err := parseOne(tail2, depth+1)
		if err != nil {
			return Type{}, "", err
		}
		if tail3 == "" || tail3[0] != '}' {
			return Type{}, "", &ParseError{Input: s, Reason: "dict entry has more than one value type or is missing }"}
		}
		return NewDict(key, val), tail3[1:], nil

	case ')', '}':
		return Type{}, "", &ParseError{Input: s, Reason: fmt.Sprintf("unexpected %q with no matching opener", c)}

	default:
		return Type{}, "", &ParseError{Input: s, Reason: fmt.Sprintf("unknown type character %q", c)}
	}
}
