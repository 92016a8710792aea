package tms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// createResponseSchema accepts {"protocolo":[int,...]}.
func createResponseSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"protocolo"},
		"properties": map[string]any{
			"protocolo": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "integer"},
			},
		},
	}
}

// recoverResponseSchema accepts {"embarque":{"oidEmbarque":int}}; other keys pass through.
func recoverResponseSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"embarque"},
		"properties": map[string]any{
			"embarque": map[string]any{
				"type":     "object",
				"required": []string{"oidEmbarque"},
				"properties": map[string]any{
					"oidEmbarque": map[string]any{"type": "integer"},
				},
			},
		},
	}
}

var (
	createSchema  = sync.OnceValues(func() (*jsonschema.Schema, error) { return compileSchema("criar.json", createResponseSchema()) })
	recoverSchema = sync.OnceValues(func() (*jsonschema.Schema, error) { return compileSchema("recuperar.json", recoverResponseSchema()) })
)

func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateJSON checks data against a compiled schema.
func validateJSON(load func() (*jsonschema.Schema, error), data []byte) error {
	schema, err := load()
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
