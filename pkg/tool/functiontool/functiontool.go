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

// Package functiontool creates tools from typed Go functions.
//
// A function tool wraps a plain function into a tool.CallableTool with a
// JSON schema generated from struct tags, so handlers stay type safe and
// free of map plumbing. Whether the tool needs human approval is declared
// at construction time through Config.RequiresApproval; the approval gate
// reads that flag on every invocation.
//
// # Basic Usage
//
//	type SaveLearningArgs struct {
//	    Title    string `json:"title" jsonschema:"required,description=Title of the learning"`
//	    Learning string `json:"learning" jsonschema:"required,description=The learning content"`
//	}
//
//	saveTool, err := functiontool.New(
//	    functiontool.Config{
//	        Name:             "save_learning",
//	        Description:      "Save a learning to the database",
//	        RequiresApproval: true,
//	    },
//	    func(ctx tool.Context, args SaveLearningArgs) (map[string]any, error) {
//	        if args.Title == "" {
//	            return nil, fmt.Errorf("cannot save: title is required")
//	        }
//	        // persist...
//	        return map[string]any{"saved": args.Title}, nil
//	    },
//	)
//
// For streaming or stateful tools, implement tool.CallableTool or
// tool.StreamingTool directly.
package functiontool

import (
	"fmt"

	"github.com/reins-ai/reins/pkg/tool"
)

// Config defines the configuration for a function tool.
type Config struct {
	// Name is the unique identifier for this tool (required).
	Name string

	// Description explains what the tool does (required). It is shown to
	// the model to help it decide when to use the tool.
	Description string

	// RequiresApproval marks the tool as gated: invocations suspend into a
	// pending requirement until a human approves or rejects them.
	RequiresApproval bool
}

// New creates a CallableTool from a typed function.
//
// The function signature must be:
//
//	func(tool.Context, Args) (map[string]any, error)
//
// where Args is a struct whose json and jsonschema tags define the
// parameters.
func New[Args any](cfg Config, fn func(tool.Context, Args) (map[string]any, error)) (tool.CallableTool, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("tool function is required")
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}

	return &functionTool[Args]{
		config: cfg,
		fn:     fn,
		schema: schema,
	}, nil
}

// NewWithValidation creates a CallableTool whose arguments pass through a
// custom validation function before the handler runs. Use it for checks
// struct tags cannot express:
//
//	functiontool.NewWithValidation(cfg, deleteFile,
//	    func(args DeleteArgs) error {
//	        if strings.Contains(args.Path, "..") {
//	            return fmt.Errorf("path traversal not allowed")
//	        }
//	        return nil
//	    },
//	)
func NewWithValidation[Args any](
	cfg Config,
	fn func(tool.Context, Args) (map[string]any, error),
	validate func(Args) error,
) (tool.CallableTool, error) {
	base, err := New(cfg, fn)
	if err != nil {
		return nil, err
	}
	return &validatingFunctionTool[Args]{
		functionTool: base.(*functionTool[Args]),
		validate:     validate,
	}, nil
}

// functionTool implements tool.CallableTool by wrapping a typed function.
type functionTool[Args any] struct {
	config Config
	fn     func(tool.Context, Args) (map[string]any, error)
	schema map[string]any
}

func (t *functionTool[Args]) Name() string        { return t.config.Name }
func (t *functionTool[Args]) Description() string { return t.config.Description }

// RequiresApproval reports the gating flag supplied at construction time.
func (t *functionTool[Args]) RequiresApproval() bool { return t.config.RequiresApproval }

// Schema returns the JSON schema for the tool's parameters.
func (t *functionTool[Args]) Schema() map[string]any { return t.schema }

// Call decodes args into the typed struct and invokes the function.
func (t *functionTool[Args]) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	var typed Args
	if err := mapToStruct(args, &typed); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", t.config.Name, err)
	}
	return t.fn(ctx, typed)
}

// validatingFunctionTool runs a custom validation before the handler.
type validatingFunctionTool[Args any] struct {
	*functionTool[Args]
	validate func(Args) error
}

func (t *validatingFunctionTool[Args]) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	var typed Args
	if err := mapToStruct(args, &typed); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", t.config.Name, err)
	}
	if t.validate != nil {
		if err := t.validate(typed); err != nil {
			return nil, fmt.Errorf("validation failed for %s: %w", t.config.Name, err)
		}
	}
	return t.fn(ctx, typed)
}

func validateConfig(cfg Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if cfg.Description == "" {
		return fmt.Errorf("tool description is required")
	}
	return nil
}

// Verify interface compliance at compile time
var _ tool.CallableTool = (*functionTool[struct{}])(nil)
var _ tool.CallableTool = (*validatingFunctionTool[struct{}])(nil)
