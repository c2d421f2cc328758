package core

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a compiled JSON Schema document.
type Schema struct {
	compiled *jsonschema.Schema
}

// CompileSchema compiles a JSON Schema document. An empty document yields
// a nil Schema, which accepts every payload.
func CompileSchema(name string, doc json.RawMessage) (*Schema, error) {
	if len(doc) == 0 {
		return nil, nil
	}

	var schemaDoc any
	if err := json.Unmarshal(doc, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	url := name + ".json"
	if err := c.AddResource(url, schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{compiled: compiled}, nil
}

// Validate checks payload against the schema. Go values are normalized
// through a JSON round trip first so typed structs, ints and nested maps
// validate the same way decoded JSON does.
func (s *Schema) Validate(payload any) error {
	if s == nil {
		return nil
	}
	normalized, err := normalizeJSON(payload)
	if err != nil {
		return err
	}
	return s.compiled.Validate(normalized)
}

func normalizeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("payload is not JSON-serializable: %w", err)
	}
	out, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("normalize payload: %w", err)
	}
	return out, nil
}
