// Copyright 2026 The Reins Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package schema turns Go types into JSON Schemas and checks model output
// against them.
//
// Agents with a typed output send the generated schema as the response
// schema and decode the reply through a Validator, so malformed output is
// rejected before it reaches the caller:
//
//	output, _ := schema.For[StockAnalysis]()
//	req.Config.ResponseSchema = output.Schema()
//	...
//	analysis, err := output.Decode(resp.Content)
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Generate reflects a JSON Schema from v's struct tags. Definitions are
// inlined so the result can be sent to providers that reject $ref.
//
// Supported tags:
//   - json:"name" - property name
//   - jsonschema:"required" - mark as required
//   - jsonschema:"description=..." - property description
//   - jsonschema:"enum=a,enum=b" - allowed values
func Generate(v any) (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,

		// Inline definitions instead of emitting $ref.
		ExpandedStruct: true,

		DoNotReference: true,
	}

	schema := reflector.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	// Providers reject schema headers inside a response schema.
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}
