// Package ollama provides an Ollama LLM implementation over the Chat API
// (/api/chat), including tool calling and NDJSON streaming.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/reins-ai/reins/pkg/httpclient"
	"github.com/reins-ai/reins/pkg/model"
	"github.com/reins-ai/reins/pkg/tool"
)

const (
	defaultBaseURL   = "http://localhost:11434"
	defaultModel     = "llama3.2"
	defaultTimeout   = 300 * time.Second // first request may pull the model
	defaultKeepAlive = "5m"
)

// Config configures the Ollama client.
type Config struct {
	// BaseURL is the Ollama server URL (default: http://localhost:11434)
	BaseURL string

	// Model is the model name (e.g., "llama3.2", "mistral")
	Model string

	// Temperature controls randomness (0-2)
	Temperature *float64

	// TopP for nucleus sampling
	TopP *float64

	// TopK for top-k sampling
	TopK *int

	// NumPredict limits the number of tokens to predict
	NumPredict *int

	// NumCtx sets the context window size
	NumCtx *int

	// Seed for reproducible outputs
	Seed *int

	// KeepAlive controls how long the model stays loaded (default: "5m")
	KeepAlive string

	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxRetries for HTTP requests with retry/backoff
	MaxRetries int
}

// Client is an Ollama LLM implementation.
type Client struct {
	httpClient  *httpclient.Client
	baseURL     string
	modelName   string
	temperature *float64
	topP        *float64
	topK        *int
	numPredict  *int
	numCtx      *int
	seed        *int
	keepAlive   string
}

// New creates a new Ollama client.
func New(cfg Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	keepAlive := cfg.KeepAlive
	if keepAlive == "" {
		keepAlive = defaultKeepAlive
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	hc := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		httpclient.WithMaxRetries(maxRetries),
		httpclient.WithBaseDelay(2*time.Second),
	)

	return &Client{
		httpClient:  hc,
		baseURL:     baseURL,
		modelName:   modelName,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		topK:        cfg.TopK,
		numPredict:  cfg.NumPredict,
		numCtx:      cfg.NumCtx,
		seed:        cfg.Seed,
		keepAlive:   keepAlive,
	}, nil
}

// Name returns the model identifier.
func (c *Client) Name() string {
	return c.modelName
}

// Provider returns the provider type.
func (c *Client) Provider() model.Provider {
	return model.ProviderOllama
}

// Generate produces responses for the given request.
func (c *Client) Generate(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	if stream {
		return c.generateStream(ctx, req)
	}

	return func(yield func(*model.Response, error) bool) {
		resp, err := c.generate(ctx, req)
		yield(resp, err)
	}
}

// Close releases resources.
func (c *Client) Close() error {
	return nil
}

func (c *Client) generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	apiReq := c.buildRequest(req, false)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return c.parseResponse(&apiResp), nil
}

func (c *Client) generateStream(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	aggregator := model.NewStreamingAggregator()

	return func(yield func(*model.Response, error) bool) {
		apiReq := c.buildRequest(req, true)

		body, err := json.Marshal(apiReq)
		if err != nil {
			yield(nil, fmt.Errorf("failed to marshal request: %w", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			yield(nil, fmt.Errorf("failed to create request: %w", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			yield(nil, fmt.Errorf("request failed: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			yield(nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes)))
			return
		}

		reader := bufio.NewReader(resp.Body)
		var finalUsage *model.Usage

		// Tool calls accumulate by index so parallel calls merge correctly.
		pendingCalls := make(map[int]*tool.Call)

		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err == io.EOF {
					break
				}
				yield(nil, fmt.Errorf("stream read error: %w", err))
				return
			}

			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}

			var chunk chatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue // skip malformed chunks
			}

			for resp, err := range c.processStreamChunk(&chunk, aggregator, pendingCalls) {
				if !yield(resp, err) {
					return
				}
			}

			if chunk.Done {
				finalUsage = &model.Usage{
					PromptTokens:     chunk.PromptEvalCount,
					CompletionTokens: chunk.EvalCount,
					TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
				}

				for resp, err := range flushToolCalls(pendingCalls, aggregator) {
					if !yield(resp, err) {
						return
					}
				}
			}
		}

		if finalUsage != nil {
			aggregator.SetUsage(finalUsage)
		}

		if final := aggregator.Close(); final != nil {
			yield(final, nil)
		}
	}
}

func (c *Client) processStreamChunk(chunk *chatResponse, agg *model.StreamingAggregator, pendingCalls map[int]*tool.Call) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		if chunk.Message == nil {
			return
		}

		if chunk.Message.Content != "" {
			for resp, err := range agg.ProcessTextDelta(chunk.Message.Content) {
				if !yield(resp, err) {
					return
				}
			}
		}

		for _, tc := range chunk.Message.ToolCalls {
			if tc.Function == nil {
				continue
			}

			idx := tc.Function.Index
			if idx < 0 {
				idx = len(pendingCalls)
			}

			if existing, exists := pendingCalls[idx]; exists {
				// Merge streamed argument fragments.
				if len(tc.Function.Arguments) > 0 {
					if existing.Args == nil {
						existing.Args = make(map[string]any)
					}
					for k, v := range tc.Function.Arguments {
						existing.Args[k] = v
					}
				}
			} else {
				args := tc.Function.Arguments
				if args == nil {
					args = make(map[string]any)
				}
				pendingCalls[idx] = &tool.Call{
					ID:   fmt.Sprintf("call_%d", idx),
					Name: tc.Function.Name,
					Args: args,
				}
			}
		}

		if chunk.Done {
			reason := model.FinishReasonStop
			if chunk.DoneReason == "length" {
				reason = model.FinishReasonLength
			}
			agg.SetFinishReason(reason)
		}
	}
}

// flushToolCalls hands accumulated tool calls to the aggregator in index
// order once the stream reports done.
func flushToolCalls(pendingCalls map[int]*tool.Call, agg *model.StreamingAggregator) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		maxIdx := -1
		for idx := range pendingCalls {
			if idx > maxIdx {
				maxIdx = idx
			}
		}

		for i := 0; i <= maxIdx; i++ {
			if tc, exists := pendingCalls[i]; exists {
				for resp, err := range agg.ProcessToolCall(*tc) {
					if !yield(resp, err) {
						return
					}
				}
			}
		}
	}
}

// buildRequest creates an API request from model.Request.
func (c *Client) buildRequest(req *model.Request, stream bool) *chatRequest {
	apiReq := &chatRequest{
		Model:     c.modelName,
		Stream:    stream,
		KeepAlive: c.keepAlive,
	}

	options := make(map[string]any)

	if c.temperature != nil {
		options["temperature"] = *c.temperature
	} else if req.Config != nil && req.Config.Temperature != nil {
		options["temperature"] = *req.Config.Temperature
	}

	if c.topP != nil {
		options["top_p"] = *c.topP
	} else if req.Config != nil && req.Config.TopP != nil {
		options["top_p"] = *req.Config.TopP
	}

	if c.topK != nil {
		options["top_k"] = *c.topK
	} else if req.Config != nil && req.Config.TopK != nil {
		options["top_k"] = *req.Config.TopK
	}

	if c.numPredict != nil {
		options["num_predict"] = *c.numPredict
	} else if req.Config != nil && req.Config.MaxTokens != nil {
		options["num_predict"] = *req.Config.MaxTokens
	}

	if c.numCtx != nil {
		options["num_ctx"] = *c.numCtx
	}

	if c.seed != nil {
		options["seed"] = *c.seed
	}

	if req.Config != nil && len(req.Config.StopSequences) > 0 {
		options["stop"] = req.Config.StopSequences
	}

	if len(options) > 0 {
		apiReq.Options = options
	}

	// Structured output: a schema constrains the response, otherwise a
	// JSON MIME type requests free-form JSON.
	if req.Config != nil && req.Config.ResponseSchema != nil {
		apiReq.Format = req.Config.ResponseSchema
	} else if req.Config != nil && req.Config.ResponseMIMEType == "application/json" {
		apiReq.Format = "json"
	}

	for _, msg := range req.Messages {
		if ollamaMsg := convertMessage(msg); ollamaMsg != nil {
			apiReq.Messages = append(apiReq.Messages, ollamaMsg)
		}
	}

	if req.SystemInstruction != "" {
		systemMsg := &chatMessage{
			Role:    "system",
			Content: req.SystemInstruction,
		}
		apiReq.Messages = append([]*chatMessage{systemMsg}, apiReq.Messages...)
	}

	if len(req.Tools) > 0 {
		apiReq.Tools = convertTools(req.Tools)
	}

	return apiReq
}

func convertMessage(msg *model.Message) *chatMessage {
	if msg == nil {
		return nil
	}

	switch msg.Role {
	case model.RoleSystem:
		if msg.Content == "" {
			return nil
		}
		return &chatMessage{Role: "system", Content: msg.Content}

	case model.RoleUser:
		if msg.Content == "" {
			return nil
		}
		return &chatMessage{Role: "user", Content: msg.Content}

	case model.RoleAssistant:
		out := &chatMessage{Role: "assistant", Content: msg.Content}
		for _, tc := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, &toolCall{
				Function: &functionCall{
					Name:      tc.Name,
					Arguments: tc.Args,
				},
			})
		}
		if out.Content == "" && len(out.ToolCalls) == 0 {
			return nil
		}
		return out

	case model.RoleTool:
		if msg.ToolResult == nil {
			return nil
		}
		content := msg.ToolResult.Content
		if msg.ToolResult.Error != "" {
			content = "Error: " + msg.ToolResult.Error
		}
		return &chatMessage{
			Role:     "tool",
			Content:  content,
			ToolName: msg.ToolResult.Name,
		}
	}

	return nil
}

func convertTools(tools []tool.Definition) []*apiTool {
	result := make([]*apiTool, len(tools))
	for i, t := range tools {
		result[i] = &apiTool{
			Type: "function",
			Function: &functionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// parseResponse converts an API response to model.Response.
func (c *Client) parseResponse(resp *chatResponse) *model.Response {
	result := &model.Response{
		Partial:      false,
		TurnComplete: true,
		FinishReason: model.FinishReasonStop,
	}

	if resp.DoneReason == "length" {
		result.FinishReason = model.FinishReasonLength
	}

	if resp.Message != nil {
		result.Content = resp.Message.Content

		for i, tc := range resp.Message.ToolCalls {
			if tc.Function == nil {
				continue
			}
			result.ToolCalls = append(result.ToolCalls, tool.Call{
				ID:   fmt.Sprintf("call_%d", i),
				Name: tc.Function.Name,
				Args: tc.Function.Arguments,
			})
		}
		if len(result.ToolCalls) > 0 {
			result.FinishReason = model.FinishReasonToolCalls
		}
	}

	if resp.PromptEvalCount > 0 || resp.EvalCount > 0 {
		result.Usage = &model.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		}
	}

	return result
}

// API types

type chatRequest struct {
	Model     string         `json:"model"`
	Messages  []*chatMessage `json:"messages"`
	Tools     []*apiTool     `json:"tools,omitempty"`
	Format    any            `json:"format,omitempty"` // "json" or JSON schema
	Options   map[string]any `json:"options,omitempty"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive,omitempty"`
}

type chatMessage struct {
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	ToolCalls []*toolCall `json:"tool_calls,omitempty"`
	ToolName  string      `json:"tool_name,omitempty"`
}

type toolCall struct {
	Function *functionCall `json:"function,omitempty"`
}

type functionCall struct {
	Index     int            `json:"index,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type apiTool struct {
	Type     string       `json:"type"`
	Function *functionDef `json:"function"`
}

type functionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatResponse struct {
	Model           string       `json:"model"`
	CreatedAt       string       `json:"created_at"`
	Message         *chatMessage `json:"message,omitempty"`
	Done            bool         `json:"done"`
	DoneReason      string       `json:"done_reason,omitempty"`
	PromptEvalCount int          `json:"prompt_eval_count,omitempty"`
	EvalCount       int          `json:"eval_count,omitempty"`
}

var _ model.LLM = (*Client)(nil)
