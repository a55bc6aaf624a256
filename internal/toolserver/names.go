// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package toolserver

import "strings"

// Separator joins a server name and a tool name in the catalog.
const Separator = "__"

// Namespace returns the catalog name for tool on server.
func Namespace(server, tool string) string {
	return server + Separator + tool
}

// ParseName splits a catalog name on the first separator. A name without
// one maps to itself on both sides.
func ParseName(name string) (server, tool string) {
	if s, t, ok := strings.Cut(name, Separator); ok {
		return s, t
	}
	return name, name
}
