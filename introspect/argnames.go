// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package introspect

import "fmt"

// NamedInArgs assigns a usable, unique name to every in-argument of args
// (which should be the result of Method.InputArguments): unnamed args get
// "anon0", "anon1", ... in positional order, then any name colliding with
// an earlier one gets trailing underscores appended until it is unique.
// This is the naming scheme a Method Proxy uses to build its parameter
// schema.
func NamedInArgs(args []MethodArg) []string {
	names := make([]string, len(args))
	seen := make(map[string]bool, len(args))
	anon := 0
	for i, a := range args {
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("anon%d", anon)
			anon++
		}
		for seen[name] {
			name += "_"
		}
		seen[name] = true
		names[i] = name
	}
	return names
}
