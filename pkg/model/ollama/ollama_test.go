package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reins-ai/reins/pkg/model"
	"github.com/reins-ai/reins/pkg/tool"
)

func TestNew_Defaults(t *testing.T) {
	client, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if client.Name() != defaultModel {
		t.Errorf("Name() = %q, want %q", client.Name(), defaultModel)
	}
	if client.Provider() != model.ProviderOllama {
		t.Errorf("Provider() = %q, want ollama", client.Provider())
	}
	if client.baseURL != defaultBaseURL {
		t.Errorf("baseURL = %q, want %q", client.baseURL, defaultBaseURL)
	}
}

func TestGenerate_NonStreaming(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(chatResponse{
			Model:           gotReq.Model,
			Message:         &chatMessage{Role: "assistant", Content: "4"},
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 20,
			EvalCount:       1,
		})
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, Model: "llama3.2"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	req := &model.Request{
		Messages:          []*model.Message{model.NewUserMessage("What is 2+2?")},
		SystemInstruction: "You are terse.",
	}

	var responses []*model.Response
	for resp, err := range client.Generate(context.Background(), req, false) {
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		responses = append(responses, resp)
	}

	if len(responses) != 1 {
		t.Fatalf("Generate() yielded %d responses, want 1", len(responses))
	}
	resp := responses[0]
	if resp.Partial {
		t.Error("non-streaming response must have Partial=false")
	}
	if resp.Content != "4" {
		t.Errorf("content = %q, want %q", resp.Content, "4")
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 21 {
		t.Errorf("usage = %+v, want total 21", resp.Usage)
	}

	// The system instruction becomes the first wire message.
	if len(gotReq.Messages) != 2 {
		t.Fatalf("wire messages = %d, want 2", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" || gotReq.Messages[0].Content != "You are terse." {
		t.Errorf("first wire message = %+v", gotReq.Messages[0])
	}
	if gotReq.Messages[1].Role != "user" {
		t.Errorf("second wire message role = %q, want user", gotReq.Messages[1].Role)
	}
	if gotReq.Stream {
		t.Error("stream flag should be false")
	}
}

func TestGenerate_ToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "get_weather" {
			t.Errorf("wire tools = %+v", req.Tools)
		}
		_ = json.NewEncoder(w).Encode(chatResponse{
			Message: &chatMessage{
				Role: "assistant",
				ToolCalls: []*toolCall{
					{Function: &functionCall{Name: "get_weather", Arguments: map[string]any{"city": "Oslo"}}},
				},
			},
			Done:       true,
			DoneReason: "stop",
		})
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	req := &model.Request{
		Messages: []*model.Message{model.NewUserMessage("Weather in Oslo?")},
		Tools: []tool.Definition{
			{Name: "get_weather", Description: "Get weather", Parameters: map[string]any{"type": "object"}},
		},
	}

	for resp, err := range client.Generate(context.Background(), req, false) {
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if !resp.HasToolCalls() {
			t.Fatal("expected tool calls in response")
		}
		tc := resp.ToolCalls[0]
		if tc.Name != "get_weather" || tc.Args["city"] != "Oslo" {
			t.Errorf("tool call = %+v", tc)
		}
		if resp.FinishReason != model.FinishReasonToolCalls {
			t.Errorf("finish reason = %q, want tool_calls", resp.FinishReason)
		}
	}
}

func TestGenerate_Streaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("expected stream=true on the wire")
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		_ = enc.Encode(chatResponse{Message: &chatMessage{Role: "assistant", Content: "Hel"}})
		_ = enc.Encode(chatResponse{Message: &chatMessage{Role: "assistant", Content: "lo"}})
		_ = enc.Encode(chatResponse{
			Message:         &chatMessage{Role: "assistant"},
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 5,
			EvalCount:       2,
		})
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	req := &model.Request{Messages: []*model.Message{model.NewUserMessage("Say hello")}}

	var partials []string
	var final *model.Response
	for resp, err := range client.Generate(context.Background(), req, true) {
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if resp.Partial {
			partials = append(partials, resp.Content)
		} else {
			final = resp
		}
	}

	if len(partials) != 2 || partials[0] != "Hel" || partials[1] != "lo" {
		t.Errorf("partials = %v", partials)
	}
	if final == nil {
		t.Fatal("missing aggregated final response")
	}
	if final.Content != "Hello" {
		t.Errorf("final content = %q, want %q", final.Content, "Hello")
	}
	if final.Usage == nil || final.Usage.TotalTokens != 7 {
		t.Errorf("final usage = %+v, want total 7", final.Usage)
	}
}

func TestGenerate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model not found"}`)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	req := &model.Request{Messages: []*model.Message{model.NewUserMessage("hi")}}
	for _, err := range client.Generate(context.Background(), req, false) {
		if err == nil {
			t.Fatal("expected API error")
		}
	}
}

func TestConvertMessage(t *testing.T) {
	toolMsg := model.NewToolResultMessage(tool.CallResult{
		CallID:  "call_0",
		Name:    "get_weather",
		Content: "sunny",
	})
	wire := convertMessage(toolMsg)
	if wire.Role != "tool" || wire.Content != "sunny" || wire.ToolName != "get_weather" {
		t.Errorf("tool message = %+v", wire)
	}

	errMsg := model.NewToolResultMessage(tool.CallResult{
		CallID: "call_1",
		Name:   "get_weather",
		Error:  "city not found",
	})
	wire = convertMessage(errMsg)
	if wire.Content != "Error: city not found" {
		t.Errorf("error tool message content = %q", wire.Content)
	}

	asst := &model.Message{
		Role:      model.RoleAssistant,
		ToolCalls: []tool.Call{{ID: "call_0", Name: "get_time", Args: map[string]any{}}},
	}
	wire = convertMessage(asst)
	if wire == nil || len(wire.ToolCalls) != 1 {
		t.Errorf("assistant tool-call message = %+v", wire)
	}

	if convertMessage(&model.Message{Role: model.RoleUser}) != nil {
		t.Error("empty user message should convert to nil")
	}
}
