package mcpgate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolDescriptor is a server-advertised tool: its name, the capability it is
// bound to for enforcement purposes, and its declared JSON Schema input
// shape.
type ToolDescriptor struct {
	Name         string
	CapabilityID string
	InputSchema  map[string]any
}

// compileInputSchema compiles a tool's declared input schema; it is called
// on every tool call and nothing is cached. A compilation failure fails the
// call closed (ToolsCall reports it as ErrSchemaValidation), since an
// uncompilable schema cannot be validated against at all.
func compileInputSchema(toolName string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("mcpgate: marshal input schema for %s: %w", toolName, err)
	}
	resourceName := "tool:" + toolName
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("mcpgate: add input schema resource for %s: %w", toolName, err)
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("mcpgate: compile input schema for %s: %w", toolName, err)
	}
	return compiled, nil
}

// validateArguments checks args against the tool's declared input schema.
func validateArguments(toolName string, schema map[string]any, args map[string]any) error {
	compiled, err := compileInputSchema(toolName, schema)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("mcpgate: marshal call arguments for %s: %w", toolName, err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("mcpgate: decode call arguments for %s: %w", toolName, err)
	}
	if err := compiled.Validate(instance); err != nil {
		return fmt.Errorf("mcpgate: schema validation failed for %s: %w", toolName, err)
	}
	return nil
}
