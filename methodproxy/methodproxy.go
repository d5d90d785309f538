// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package methodproxy registers one remote procedure per exported bus
// method: a procedure whose parameter schema mirrors the method's
// in-args and whose handler marshals caller-supplied values through
// codec, issues the bus call, and unmarshals the reply.
package methodproxy

import (
	"context"
	"fmt"
	"time"

	"github.com/estokes/netidx-dbus/busconn"
	"github.com/estokes/netidx-dbus/codec"
	"github.com/estokes/netidx-dbus/dbustype"
	"github.com/estokes/netidx-dbus/dbuserr"
	"github.com/estokes/netidx-dbus/introspect"
	"github.com/estokes/netidx-dbus/netvalue"
	"github.com/estokes/netidx-dbus/publish"
	"github.com/sirupsen/logrus"
)

// callTimeout bounds a proxied method call.
const callTimeout = 30 * time.Second

// Register builds and registers the procedure for one method of one
// interface on one object, at path
// "<base>/interfaces/<iface>/methods/<method>".
func Register(
	pub publish.Publisher,
	conn busconn.Conn,
	base string,
	destination, objectPath, iface string,
	method introspect.Method,
) error {
	inArgs := method.InputArguments()
	names := introspect.NamedInArgs(inArgs)

	inTypes := make([]dbustype.Type, len(inArgs))
	params := make([]publish.Param, len(inArgs))
	for i, a := range inArgs {
		t, err := dbustype.ParseAll(a.Type)
		if err != nil {
			return dbuserr.Wrap(dbuserr.InvalidSignature, fmt.Sprintf("method %s.%s arg %s", iface, method.Name, names[i]), err)
		}
		inTypes[i] = t
		params[i] = publish.Param{Name: names[i], Default: netvalue.Null(), Annotation: a.Type}
	}

	outArgs := method.OutputArguments()
	outTypes := make([]dbustype.Type, len(outArgs))
	outSigs := make([]string, len(outArgs))
	for i, a := range outArgs {
		t, err := dbustype.ParseAll(a.Type)
		if err != nil {
			return dbuserr.Wrap(dbuserr.InvalidSignature, fmt.Sprintf("method %s.%s return %d", iface, method.Name, i), err)
		}
		outTypes[i] = t
		outSigs[i] = a.Type
	}

	procPath := fmt.Sprintf("%s/interfaces/%s/methods/%s", base, iface, method.Name)
	description := fmt.Sprintf("%s.%s, returns %v", iface, method.Name, outSigs)

	nameSet := make(map[string]bool, len(names))
	for _, n := range names {
		nameSet[n] = true
	}

	handler := func(ctx context.Context, args publish.Args) netvalue.Value {
		for name := range args {
			if !nameSet[name] {
				logrus.WithFields(logrus.Fields{
					"interface": iface, "method": method.Name, "arg": name,
				}).Warn("ignoring extra caller-supplied argument")
			}
		}

		callArgs := make([]interface{}, len(names))
		for i, name := range names {
			vs, ok := args[name]
			if !ok {
				return netvalue.Err("failed to construct dbus args: missing argument")
			}
			if len(vs) == 0 {
				return netvalue.Err("failed to construct dbus args: empty argument")
			}
			raw, err := codec.EncodeValue(inTypes[i], vs[0])
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"interface": iface, "method": method.Name, "arg": name,
				}).WithError(err).Warn("failed to encode method argument")
				return netvalue.Err(err.Error())
			}
			callArgs[i] = raw
		}

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		reply, err := conn.Call(callCtx, destination, objectPath, iface, method.Name, callArgs)
		if err != nil {
			if kind, ok := dbuserr.Of(err); ok && kind != dbuserr.BusMethodError {
				logrus.WithFields(logrus.Fields{
					"interface": iface, "method": method.Name, "kind": kind,
				}).WithError(err).Warn("bus call failed before reaching the remote method")
			}
			return netvalue.Err(err.Error())
		}

		result, err := codec.DecodeArgs(outTypes, reply)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"interface": iface, "method": method.Name,
			}).WithError(err).Warn("failed to decode method reply")
			return netvalue.Err(err.Error())
		}
		return result
	}

	return pub.RegisterProcedure(procPath, description, params, handler)
}
