// Copyright 2024 The Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package introspect

import (
	"encoding/xml"
	"fmt"
)

// Parse converts an introspection XML document into a Node.
func Parse(content []byte) (Node, error) {
	var n Node
	if err := xml.Unmarshal(content, &n); err != nil {
		return Node{}, fmt.Errorf("parsing introspection xml: %w", err)
	}
	return n, nil
}
