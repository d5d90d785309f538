// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package introspect models a D-Bus introspection document: the
// recursive node/interface/method/property tree returned by
// org.freedesktop.DBus.Introspectable.Introspect, and the XML parsing
// that produces it.
package introspect

import "encoding/xml"

// Direction classifies a method argument.
type Direction string

// The three directions a MethodArg's "direction" attribute can carry.
// DirectionUnset (an empty attribute) is treated as an in-arg, matching
// the D-Bus specification's default.
const (
	DirectionIn     Direction = "in"
	DirectionOut    Direction = "out"
	DirectionUnset  Direction = ""
)

// MethodArg is one argument or return value of a Method.
type MethodArg struct {
	XMLName   xml.Name `xml:"arg"`
	Name      string   `xml:"name,attr"`
	Type      string   `xml:"type,attr"`
	Direction string   `xml:"direction,attr"`
}

// IsIn reports whether arg should be supplied by a caller: an explicit
// "in" direction, or no direction attribute at all.
func (a MethodArg) IsIn() bool {
	return Direction(a.Direction) == DirectionIn || Direction(a.Direction) == DirectionUnset
}

// Method is one method exported by an Interface.
type Method struct {
	XMLName xml.Name    `xml:"method"`
	Name    string      `xml:"name,attr"`
	Args    []MethodArg `xml:"arg"`
}

// InputArguments returns the args a caller supplies, in declared order.
func (m Method) InputArguments() []MethodArg {
	var out []MethodArg
	for _, a := range m.Args {
		if a.IsIn() {
			out = append(out, a)
		}
	}
	return out
}

// OutputArguments returns the args a call returns, in declared order.
func (m Method) OutputArguments() []MethodArg {
	var out []MethodArg
	for _, a := range m.Args {
		if Direction(a.Direction) == DirectionOut {
			out = append(out, a)
		}
	}
	return out
}

// Property is one property exported by an Interface.
type Property struct {
	XMLName xml.Name `xml:"property"`
	Name    string   `xml:"name,attr"`
	Type    string   `xml:"type,attr"`
	Access  string   `xml:"access,attr"`
}

// Interface is a named bundle of methods and properties on a Node.
// Signals are part of the D-Bus wire format but are not proxied by this
// bridge — only PropertiesChanged and NameOwnerChanged are consumed
// directly by the components that need them — so they are not modeled
// here.
type Interface struct {
	XMLName    xml.Name   `xml:"interface"`
	Name       string     `xml:"name,attr"`
	Methods    []Method   `xml:"method"`
	Properties []Property `xml:"property"`
}

// HasProperties reports whether iface exports at least one property.
func (i Interface) HasProperties() bool {
	return len(i.Properties) > 0
}

// Node is one object in an introspection tree: an optional name, the
// interfaces it implements, and its child nodes.
type Node struct {
	XMLName    xml.Name    `xml:"node"`
	Name       string      `xml:"name,attr"`
	Interfaces []Interface `xml:"interface"`
	Children   []Node      `xml:"node"`
}

// HasName reports whether n carries an explicit name attribute. Child
// nodes without one inherit their parent's object path.
func (n Node) HasName() bool { return n.Name != "" }

// HasPropertiesInterface reports whether n implements
// org.freedesktop.DBus.Properties, i.e. whether a Property Mirror should
// be started for it.
func (n Node) HasPropertiesInterface() bool {
	for _, iface := range n.Interfaces {
		if iface.Name == PropertiesInterface {
			return true
		}
	}
	return false
}

// PropertiesInterface is the well-known interface name whose presence on
// a node's introspection triggers a Property Mirror.
const PropertiesInterface = "org.freedesktop.DBus.Properties"
