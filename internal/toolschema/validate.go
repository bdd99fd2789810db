// Package toolschema validates a tool's declared JSON Schema and a
// strict-parsed tool-call arguments object against it, extending spec
// §4.2's "strict parse at toolcall_end" requirement with schema
// conformance.
package toolschema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var compiledCache sync.Map // schema text -> *jsonschema.Schema

// Validate compiles schema (a tool's declared JSON Schema, cached by its
// exact text) and validates args against it. args must already be
// strict-parseable JSON; a parse failure here is reported as a schema
// violation rather than silently accepted.
func Validate(schema json.RawMessage, args json.RawMessage) error {
	compiled, err := compile(schema)
	if err != nil {
		return fmt.Errorf("toolschema: compile: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("toolschema: arguments are not valid JSON: %w", err)
	}

	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("toolschema: arguments do not conform to schema: %w", err)
	}
	return nil
}

func compile(schema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := compiledCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	compiledCache.Store(key, compiled)
	return compiled, nil
}
