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

// Package tool defines the interfaces for tools that agents can invoke.
//
// Tools are capabilities attached to an agent: saving a note, deleting a
// file, placing an order. A tool declares whether it is safe to run
// unattended via RequiresApproval:
//
//   - RequiresApproval() == false: the tool executes as soon as the agent
//     calls it.
//   - RequiresApproval() == true: the call is intercepted by the approval
//     gate. Execution suspends, a pending requirement is recorded, and the
//     tool runs only after an explicit approve decision (or is skipped
//     after a reject). See the approval package.
//
// # Creating Tools
//
// Most tools are plain functions wrapped with functiontool:
//
//	del, _ := functiontool.New(functiontool.Config{
//	    Name:             "delete_file",
//	    Description:      "Deletes a file from the filesystem",
//	    RequiresApproval: true,
//	}, deleteFile)
//
// Toolsets (for example mcptoolset) group tools that are resolved
// dynamically from an external source.
package tool

import (
	"context"
	"iter"
)

// Tool is the base interface for a tool.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description returns a human-readable description of what the tool
	// does. Models use it to decide when to call the tool.
	Description() string

	// RequiresApproval reports whether a human decision is required before
	// the tool may execute. Gated tools never run ahead of an approval.
	RequiresApproval() bool
}

// CallableTool extends Tool with synchronous execution.
type CallableTool interface {
	Tool

	// Call executes the tool with the given arguments and blocks until it
	// completes. The returned map is the tool's structured result.
	Call(ctx Context, args map[string]any) (map[string]any, error)

	// Schema returns the JSON schema for the tool's parameters, or nil if
	// the tool takes none.
	Schema() map[string]any
}

// StreamingTool extends Tool with incremental output. Each yielded Result
// is a chunk; the final chunk has Streaming set to false.
type StreamingTool interface {
	Tool

	CallStreaming(ctx Context, args map[string]any) iter.Seq2[*Result, error]

	// Schema returns the JSON schema for the tool's parameters.
	Schema() map[string]any
}

// Result is one unit of tool output, used by streaming tools.
type Result struct {
	// Content is the output content, typically a string or structured data.
	Content any

	// Streaming marks an intermediate chunk; false means final result.
	Streaming bool

	// Error is set if an error occurred while producing this chunk.
	Error string

	// Metadata carries optional additional data about this result.
	Metadata map[string]any
}

// State is the mutable key-value store a tool may read and write during a
// call. Session-backed runs pass the session state here; the zero
// implementation used for bare invocations is an empty in-memory map.
type State interface {
	Get(key string) (any, error)
	Set(key string, val any) error
	Delete(key string) error
	All() iter.Seq2[string, any]
}

// Context carries the invocation environment into a tool handler. It is a
// context.Context, so handlers pass it to outbound calls directly.
type Context interface {
	context.Context

	// CallID returns the unique ID of this tool invocation.
	CallID() string

	// RunID returns the ID of the run this invocation belongs to, or ""
	// for bare invocations outside a run.
	RunID() string

	// State returns the session state visible to this invocation. Never
	// nil; bare invocations see an ephemeral empty state.
	State() State
}

// ContextOptions configures NewContext.
type ContextOptions struct {
	CallID string
	RunID  string
	State  State
}

type toolContext struct {
	context.Context
	callID string
	runID  string
	state  State
}

func (c *toolContext) CallID() string { return c.callID }
func (c *toolContext) RunID() string  { return c.runID }
func (c *toolContext) State() State   { return c.state }

// NewContext builds a tool Context on top of parent. A nil State is
// replaced with an empty ephemeral one.
func NewContext(parent context.Context, opts ContextOptions) Context {
	state := opts.State
	if state == nil {
		state = NewMemoryState(nil)
	}
	return &toolContext{
		Context: parent,
		callID:  opts.CallID,
		runID:   opts.RunID,
		state:   state,
	}
}

// WithApproval returns t with its approval requirement overridden.
// Configuration uses it to gate a tool that ships ungated, or to exempt
// a trusted tool from review. The wrapped tool is otherwise unchanged.
func WithApproval(t CallableTool, required bool) CallableTool {
	return &approvalOverride{CallableTool: t, required: required}
}

type approvalOverride struct {
	CallableTool
	required bool
}

func (t *approvalOverride) RequiresApproval() bool { return t.required }

// Toolset groups related tools and resolves them dynamically. Toolsets
// enable lazy loading: tools are discovered only when listed.
type Toolset interface {
	// Name returns the name of this toolset.
	Name() string

	// Tools returns the currently available tools.
	Tools(ctx context.Context) ([]Tool, error)

	// Close releases any resources held by the toolset.
	Close() error
}

// Predicate decides whether a tool is visible to an agent.
type Predicate func(t Tool) bool

// StringPredicate creates a Predicate that allows only the named tools.
func StringPredicate(allowed []string) Predicate {
	set := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		set[name] = true
	}
	return func(t Tool) bool { return set[t.Name()] }
}

// AllowAll returns a Predicate that allows every tool.
func AllowAll() Predicate {
	return func(Tool) bool { return true }
}

// DenyAll returns a Predicate that denies every tool.
func DenyAll() Predicate {
	return func(Tool) bool { return false }
}

// Combine combines predicates with AND logic.
func Combine(predicates ...Predicate) Predicate {
	return func(t Tool) bool {
		for _, p := range predicates {
			if !p(t) {
				return false
			}
		}
		return true
	}
}

// Or combines predicates with OR logic.
func Or(predicates ...Predicate) Predicate {
	return func(t Tool) bool {
		for _, p := range predicates {
			if p(t) {
				return true
			}
		}
		return false
	}
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return func(t Tool) bool { return !p(t) }
}

// Definition is a tool definition for LLM function calling.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToDefinition converts a tool to a Definition, including the parameter
// schema when the tool exposes one.
func ToDefinition(t Tool) Definition {
	def := Definition{
		Name:        t.Name(),
		Description: t.Description(),
	}
	switch tt := t.(type) {
	case CallableTool:
		def.Parameters = tt.Schema()
	case StreamingTool:
		def.Parameters = tt.Schema()
	}
	return def
}

// Call represents a model's request to invoke a tool.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// CallResult is the outcome of a tool invocation, ready to be appended to
// the conversation history. Name repeats the tool name because some
// providers require it when reporting function results.
type CallResult struct {
	CallID   string
	Name     string
	Content  string
	Error    string
	Metadata map[string]any
}
