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

// Package model defines the LLM interface for Reins.
//
// Providers implement a single Generate method that serves both streaming
// and non-streaming callers:
//   - stream=false yields exactly one complete Response
//   - stream=true yields partial Responses (Partial=true) followed by one
//     aggregated Response (Partial=false) suitable for persistence
package model

import (
	"context"
	"iter"

	"github.com/reins-ai/reins/pkg/tool"
)

// LLM is the interface for language models.
type LLM interface {
	// Name returns the model identifier.
	Name() string

	// Provider returns the provider type (e.g., "gemini", "ollama").
	Provider() Provider

	// Generate produces responses for the given request.
	//
	// When stream=false it yields exactly one Response with complete
	// content. When stream=true it yields partial Responses for real-time
	// display, then a final aggregated Response with Partial=false.
	Generate(ctx context.Context, req *Request, stream bool) iter.Seq2[*Response, error]

	// Close releases any resources held by the LLM.
	Close() error
}

// Provider identifies the LLM provider.
type Provider string

const (
	// ProviderGemini represents Google Gemini models.
	ProviderGemini Provider = "gemini"

	// ProviderOllama represents Ollama local models.
	ProviderOllama Provider = "ollama"

	// ProviderUnknown for unrecognized providers.
	ProviderUnknown Provider = "unknown"
)

// Role identifies the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation.
//
// Assistant messages may carry ToolCalls; tool messages carry exactly one
// ToolResult answering a previous call.
type Message struct {
	// Role identifies the sender.
	Role Role `json:"role"`

	// Content is the message text.
	Content string `json:"content,omitempty"`

	// ToolCalls requested by the assistant.
	ToolCalls []tool.Call `json:"tool_calls,omitempty"`

	// ToolResult answers a previous tool call (role=tool).
	ToolResult *tool.CallResult `json:"tool_result,omitempty"`

	// Metadata holds additional message data.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// NewToolResultMessage creates a tool message carrying one call result.
func NewToolResultMessage(result tool.CallResult) *Message {
	return &Message{Role: RoleTool, ToolResult: &result}
}

// Request contains the input for an LLM call.
type Request struct {
	// Messages is the conversation history.
	Messages []*Message

	// Tools available for the model to call.
	Tools []tool.Definition

	// Config contains generation configuration.
	Config *GenerateConfig

	// SystemInstruction is prepended to the conversation.
	SystemInstruction string
}

// GenerateConfig contains configuration for generation.
type GenerateConfig struct {
	// Temperature controls randomness (0-2).
	Temperature *float64

	// MaxTokens limits the response length.
	MaxTokens *int

	// TopP controls nucleus sampling.
	TopP *float64

	// TopK controls top-k sampling.
	TopK *int

	// StopSequences terminates generation.
	StopSequences []string

	// ResponseMIMEType for structured output (e.g., "application/json").
	ResponseMIMEType string

	// ResponseSchema constrains output to a JSON schema.
	ResponseSchema map[string]any

	// Metadata contains additional key-value pairs for providers.
	Metadata map[string]string
}

// Clone creates a deep copy of the GenerateConfig.
func (c *GenerateConfig) Clone() *GenerateConfig {
	if c == nil {
		return nil
	}

	clone := *c

	if c.Temperature != nil {
		temp := *c.Temperature
		clone.Temperature = &temp
	}
	if c.MaxTokens != nil {
		maxTok := *c.MaxTokens
		clone.MaxTokens = &maxTok
	}
	if c.TopP != nil {
		topP := *c.TopP
		clone.TopP = &topP
	}
	if c.TopK != nil {
		topK := *c.TopK
		clone.TopK = &topK
	}
	if c.StopSequences != nil {
		clone.StopSequences = make([]string, len(c.StopSequences))
		copy(clone.StopSequences, c.StopSequences)
	}
	if c.ResponseSchema != nil {
		clone.ResponseSchema = deepCopyMap(c.ResponseSchema)
	}
	if c.Metadata != nil {
		clone.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			clone.Metadata[k] = v
		}
	}

	return &clone
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			result[k] = deepCopyMap(val)
		case []any:
			result[k] = deepCopySlice(val)
		default:
			result[k] = v
		}
	}
	return result
}

func deepCopySlice(s []any) []any {
	if s == nil {
		return nil
	}
	result := make([]any, len(s))
	for i, v := range s {
		switch val := v.(type) {
		case map[string]any:
			result[i] = deepCopyMap(val)
		case []any:
			result[i] = deepCopySlice(val)
		default:
			result[i] = v
		}
	}
	return result
}

// Response contains the result of an LLM call.
type Response struct {
	// Content is the generated text. In streaming mode partial responses
	// carry only the delta; the final aggregated response carries the
	// full text.
	Content string

	// Partial indicates whether this is a streaming chunk (true) or the
	// final response (false).
	Partial bool

	// TurnComplete indicates whether the model has finished its turn.
	TurnComplete bool

	// ToolCalls requested by the model.
	ToolCalls []tool.Call

	// Usage statistics.
	Usage *Usage

	// FinishReason indicates why generation stopped.
	FinishReason FinishReason
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// FinishReason indicates why generation stopped.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonContent   FinishReason = "content_filter"
	FinishReasonError     FinishReason = "error"
)

// HasToolCalls returns whether the response contains tool calls.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// ToMessage converts a Response to an assistant Message.
func (r *Response) ToMessage() *Message {
	if r == nil {
		return nil
	}
	return &Message{
		Role:      RoleAssistant,
		Content:   r.Content,
		ToolCalls: r.ToolCalls,
	}
}
