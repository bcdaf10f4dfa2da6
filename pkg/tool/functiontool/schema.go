package functiontool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// generateSchema derives a JSON schema from a Go type's struct tags.
//
// Supported tags:
//   - json:"name" - parameter name
//   - json:",omitempty" - optional parameter
//   - jsonschema:"required" - explicitly mark as required
//   - jsonschema:"description=..." - parameter description
//   - jsonschema:"default=..." - default value
//   - jsonschema:"enum=a,enum=b" - allowed values
//   - jsonschema:"minimum=N,maximum=M" - numeric constraints
func generateSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,

		// Inline definitions instead of emitting $ref.
		ExpandedStruct: true,

		// No $schema / $id headers.
		DoNotReference: true,
	}

	schema := reflector.Reflect(new(T))

	schemaMap, err := schemaToMap(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema to map: %w", err)
	}

	// Function-calling APIs expect a bare object schema: type, properties,
	// required, and nothing else.
	if schemaMap["type"] == "object" {
		out := map[string]any{"type": "object"}
		if props, ok := schemaMap["properties"]; ok {
			out["properties"] = props
		}
		if req, ok := schemaMap["required"]; ok {
			out["required"] = req
		}
		if addProps, ok := schemaMap["additionalProperties"]; ok {
			out["additionalProperties"] = addProps
		}
		return out, nil
	}
	return schemaMap, nil
}

// schemaToMap converts a jsonschema.Schema to map[string]any through a
// JSON round-trip, which normalizes all nested schema types.
func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	delete(result, "$schema")
	delete(result, "$id")
	return result, nil
}
