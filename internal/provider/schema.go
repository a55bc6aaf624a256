// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package provider

import "encoding/json"

// SchemaObject decodes a tool input schema for SDKs that want a map. An
// empty or undecodable schema yields an empty object schema.
func SchemaObject(raw json.RawMessage) map[string]any {
	schema := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &schema)
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema
}

// InputObject decodes tool-call arguments. Anything other than a JSON object
// becomes an empty map.
func InputObject(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil || args == nil {
			return map[string]any{}
		}
	}
	return args
}
