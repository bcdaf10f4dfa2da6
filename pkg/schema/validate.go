package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks JSON documents against a compiled schema.
type Validator struct {
	compiled *jsonschema.Schema
	raw      map[string]any
}

// NewValidator compiles schemaMap for validation.
func NewValidator(schemaMap map[string]any) (*Validator, error) {
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const schemaURL = "https://reins.schemas.local/output.schema.json"
	if err := c.AddResource(schemaURL, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{compiled: compiled, raw: schemaMap}, nil
}

// NewValidatorFor generates and compiles the schema for v in one step.
func NewValidatorFor(v any) (*Validator, error) {
	schemaMap, err := Generate(v)
	if err != nil {
		return nil, err
	}
	return NewValidator(schemaMap)
}

// Schema returns the schema map the validator was built from.
func (v *Validator) Schema() map[string]any {
	return v.raw
}

// Validate checks that data is valid JSON conforming to the schema.
func (v *Validator) Validate(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("output is not valid JSON: %w", err)
	}
	if err := v.compiled.Validate(doc); err != nil {
		return fmt.Errorf("output does not match schema: %w", err)
	}
	return nil
}

// ExtractJSON returns the JSON object embedded in content. Models wrap
// structured output in markdown fences or prose often enough that the
// object is taken from the first '{' to the last '}'.
func ExtractJSON(content string) (string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || start >= end {
		return "", fmt.Errorf("no JSON object found in output")
	}
	return content[start : end+1], nil
}

// Output decodes model replies into T after schema validation.
type Output[T any] struct {
	validator *Validator
}

// For builds the schema and validator for T.
func For[T any]() (*Output[T], error) {
	validator, err := NewValidatorFor(new(T))
	if err != nil {
		return nil, err
	}
	return &Output[T]{validator: validator}, nil
}

// Schema returns the JSON Schema for T, shaped for use as a response
// schema in a model request.
func (o *Output[T]) Schema() map[string]any {
	return o.validator.Schema()
}

// Decode validates content against T's schema and unmarshals it.
func (o *Output[T]) Decode(content string) (*T, error) {
	raw, err := ExtractJSON(content)
	if err != nil {
		return nil, err
	}
	if err := o.validator.Validate([]byte(raw)); err != nil {
		return nil, err
	}

	out := new(T)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return nil, fmt.Errorf("failed to decode output: %w", err)
	}
	return out, nil
}
