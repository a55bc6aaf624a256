// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package toolserver

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"

	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
)

// compileSchema compiles an advertised input schema. A nil schema with no
// error means the tool accepts any input.
func compileSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(raw) == "null" {
		return nil, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("input.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("input.json")
}

// validateInput checks input against schema. Empty input is treated as an
// empty object.
func validateInput(schema *jsonschema.Schema, input json.RawMessage) error {
	if schema == nil {
		return nil
	}
	if len(bytes.TrimSpace(input)) == 0 {
		input = json.RawMessage("{}")
	}

	payload, err := jsonschema.UnmarshalJSON(bytes.NewReader(input))
	if err != nil {
		return aoserr.Wrap(err, aoserr.CodeToolServerInputInvalid, "tool input is not valid JSON")
	}
	if err := schema.Validate(payload); err != nil {
		return aoserr.Wrap(err, aoserr.CodeToolServerInputInvalid, "tool input does not match schema")
	}
	return nil
}
