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

// Package mcptoolset exposes tools from MCP (Model Context Protocol)
// servers as a tool.Toolset.
//
// The connection is established lazily on the first Tools call. Two
// transports are supported:
//   - stdio: subprocess communication through the mcp-go client
//   - sse, streamable-http: JSON-RPC over HTTP through pkg/httpclient
//
// Remote tools execute code this process does not control, so every MCP
// tool requires approval unless its name is listed in Config.Unattended.
package mcptoolset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/reins-ai/reins/pkg/httpclient"
	"github.com/reins-ai/reins/pkg/tool"
)

const (
	protocolVersion = "2024-11-05"
	clientName      = "reins"
	clientVersion   = "0.1.0"

	// DefaultSSETimeout bounds SSE response reads. Five minutes covers
	// long-running remote tools.
	DefaultSSETimeout = 5 * time.Minute
)

// Config configures an MCP toolset.
type Config struct {
	// Name identifies this toolset.
	Name string

	// URL is the MCP server URL (for HTTP transports).
	URL string

	// Transport selects the MCP transport (stdio, sse, streamable-http).
	// Defaults to stdio when Command is set, streamable-http otherwise.
	Transport string

	// Command starts a subprocess server (stdio transport).
	Command string

	// Args are passed to Command.
	Args []string

	// Env is the subprocess environment (stdio transport).
	Env map[string]string

	// Filter limits which tools are exposed. Empty means all.
	Filter []string

	// Unattended lists tool names that may run without approval. Every
	// other tool from this server is gated.
	Unattended []string

	// MaxRetries for HTTP requests (default: 3).
	MaxRetries int

	// SSETimeout bounds SSE response reads (default: 5m).
	SSETimeout time.Duration

	// InsecureSkipVerify disables TLS verification for HTTP transports.
	// Development only.
	InsecureSkipVerify bool

	// CACertificate is a path to a PEM bundle for servers signed by a
	// private CA (HTTP transports).
	CACertificate string
}

// Toolset is an MCP-backed toolset with lazy connection.
type Toolset struct {
	cfg Config

	mu         sync.Mutex
	client     *client.Client
	httpClient *httpclient.Client
	tools      []tool.Tool
	connected  bool

	sessionMu sync.RWMutex
	sessionID string

	filterSet     map[string]bool
	unattendedSet map[string]bool
}

// New creates an MCP toolset. The server is not contacted until Tools
// is called.
func New(cfg Config) (*Toolset, error) {
	if cfg.URL == "" && cfg.Command == "" {
		return nil, fmt.Errorf("either url or command is required")
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SSETimeout == 0 {
		cfg.SSETimeout = DefaultSSETimeout
	}

	return &Toolset{
		cfg:           cfg,
		filterSet:     nameSet(cfg.Filter),
		unattendedSet: nameSet(cfg.Unattended),
	}, nil
}

func nameSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

// Name returns the toolset name.
func (t *Toolset) Name() string {
	return t.cfg.Name
}

// Tools returns the available tools, connecting on first use.
func (t *Toolset) Tools(ctx context.Context) ([]tool.Tool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		if err := t.connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to MCP server %q: %w", t.cfg.Name, err)
		}
	}

	return t.tools, nil
}

// Close closes the MCP connection. A closed toolset reconnects on the
// next Tools call.
func (t *Toolset) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	if t.client != nil {
		err = t.client.Close()
		t.client = nil
	}
	t.httpClient = nil
	t.connected = false
	t.tools = nil
	return err
}

func (t *Toolset) connect(ctx context.Context) error {
	if t.cfg.Command != "" || t.cfg.Transport == "stdio" {
		return t.connectStdio(ctx)
	}
	return t.connectHTTP(ctx)
}

// connectStdio starts the subprocess server through mcp-go.
func (t *Toolset) connectStdio(ctx context.Context) error {
	mcpClient, err := client.NewStdioMCPClient(t.cfg.Command, envSlice(t.cfg.Env), t.cfg.Args...)
	if err != nil {
		return fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = protocolVersion
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize MCP session: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to list tools: %w", err)
	}

	var tools []tool.Tool
	for _, mcpTool := range listResp.Tools {
		if t.filterSet != nil && !t.filterSet[mcpTool.Name] {
			continue
		}
		tools = append(tools, &remoteTool{
			toolset:  t,
			name:     mcpTool.Name,
			desc:     mcpTool.Description,
			schema:   schemaMap(mcpTool.InputSchema),
			gated:    !t.unattendedSet[mcpTool.Name],
			useStdio: true,
		})
	}

	t.client = mcpClient
	t.tools = tools
	t.connected = true

	slog.Info("Connected to MCP server",
		"name", t.cfg.Name,
		"transport", "stdio",
		"command", t.cfg.Command,
		"tools", len(tools))
	return nil
}

// connectHTTP speaks JSON-RPC over HTTP, handling both plain JSON and
// SSE-framed responses.
func (t *Toolset) connectHTTP(ctx context.Context) error {
	opts := []httpclient.Option{
		httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		httpclient.WithMaxRetries(t.cfg.MaxRetries),
		httpclient.WithBaseDelay(2 * time.Second),
	}
	if t.cfg.InsecureSkipVerify || t.cfg.CACertificate != "" {
		if t.cfg.InsecureSkipVerify {
			slog.Warn("TLS certificate verification disabled for MCP server", "name", t.cfg.Name)
		}
		opts = append(opts, httpclient.WithTLSConfig(&httpclient.TLSConfig{
			InsecureSkipVerify: t.cfg.InsecureSkipVerify,
			CACertificate:      t.cfg.CACertificate,
		}))
	}
	t.httpClient = httpclient.New(opts...)

	initResp, err := t.rpc(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
		"capabilities": map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize MCP session: %w", err)
	}
	if initResp.Error != nil {
		return fmt.Errorf("MCP initialize error: %s", initResp.Error.Message)
	}

	listResp, err := t.rpc(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}
	if listResp.Error != nil {
		return fmt.Errorf("MCP tools/list error: %s", listResp.Error.Message)
	}

	resultMap, ok := listResp.Result.(map[string]any)
	if !ok {
		return fmt.Errorf("unexpected result type from tools/list")
	}
	toolsList, ok := resultMap["tools"].([]any)
	if !ok {
		return fmt.Errorf("missing tools in tools/list response")
	}

	var tools []tool.Tool
	for _, raw := range toolsList {
		toolMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		name, _ := toolMap["name"].(string)
		desc, _ := toolMap["description"].(string)
		if t.filterSet != nil && !t.filterSet[name] {
			continue
		}

		var schema map[string]any
		if inputSchema, ok := toolMap["inputSchema"].(map[string]any); ok {
			schema = inputSchema
		}

		tools = append(tools, &remoteTool{
			toolset: t,
			name:    name,
			desc:    desc,
			schema:  schema,
			gated:   !t.unattendedSet[name],
		})
	}

	t.tools = tools
	t.connected = true

	slog.Info("Connected to MCP server",
		"name", t.cfg.Name,
		"transport", "http",
		"url", t.cfg.URL,
		"tools", len(tools))
	return nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpc sends one JSON-RPC request over HTTP.
func (t *Toolset) rpc(ctx context.Context, method string, params any) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")

	// streamable-http servers key the session off this header.
	t.sessionMu.RLock()
	sessionID := t.sessionID
	t.sessionMu.RUnlock()
	if sessionID != "" {
		httpReq.Header.Set("mcp-session-id", sessionID)
	}

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if newSessionID := httpResp.Header.Get("mcp-session-id"); newSessionID != "" {
		t.sessionMu.Lock()
		t.sessionID = newSessionID
		t.sessionMu.Unlock()
	}

	if httpResp.StatusCode != http.StatusOK {
		responseBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("HTTP %d from MCP server: %s", httpResp.StatusCode, string(responseBody))
	}

	if strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		return t.readSSEResponse(httpResp)
	}

	responseBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp rpcResponse
	if err := json.Unmarshal(responseBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// readSSEResponse reads the first complete JSON-RPC message from an SSE
// stream.
func (t *Toolset) readSSEResponse(httpResp *http.Response) (*rpcResponse, error) {
	type result struct {
		response *rpcResponse
		err      error
	}
	resultChan := make(chan result, 1)

	go func() {
		reader := bufio.NewReader(httpResp.Body)
		var data strings.Builder

		flush := func() *rpcResponse {
			if data.Len() == 0 {
				return nil
			}
			var resp rpcResponse
			if err := json.Unmarshal([]byte(data.String()), &resp); err != nil {
				data.Reset()
				return nil
			}
			return &resp
		}

		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				break
			}

			lineStr := strings.TrimSpace(string(line))
			if lineStr == "" {
				if resp := flush(); resp != nil {
					resultChan <- result{response: resp}
					return
				}
				continue
			}
			if rest, ok := strings.CutPrefix(lineStr, "data:"); ok {
				data.WriteString(strings.TrimSpace(rest))
			}
		}

		if resp := flush(); resp != nil {
			resultChan <- result{response: resp}
			return
		}
		resultChan <- result{err: fmt.Errorf("SSE stream ended without a complete message")}
	}()

	select {
	case res := <-resultChan:
		return res.response, res.err
	case <-time.After(t.cfg.SSETimeout):
		return nil, fmt.Errorf("timeout reading SSE response after %v", t.cfg.SSETimeout)
	}
}

func envSlice(env map[string]string) []string {
	if env == nil {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// remoteTool adapts one MCP tool to tool.CallableTool.
type remoteTool struct {
	toolset  *Toolset
	name     string
	desc     string
	schema   map[string]any
	gated    bool
	useStdio bool
}

func (w *remoteTool) Name() string        { return w.name }
func (w *remoteTool) Description() string { return w.desc }

// RequiresApproval reports whether this tool is gated. Remote tools are
// gated unless the toolset config marks them unattended.
func (w *remoteTool) RequiresApproval() bool { return w.gated }

func (w *remoteTool) Schema() map[string]any { return w.schema }

func (w *remoteTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	if w.useStdio {
		return w.callStdio(ctx, args)
	}
	return w.callHTTP(ctx, args)
}

func (w *remoteTool) callStdio(ctx tool.Context, args map[string]any) (map[string]any, error) {
	w.toolset.mu.Lock()
	mcpClient := w.toolset.client
	w.toolset.mu.Unlock()

	if mcpClient == nil {
		return nil, fmt.Errorf("MCP client not connected")
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = w.name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("MCP call failed: %w", err)
	}

	return decodeCallResult(resp), nil
}

func (w *remoteTool) callHTTP(ctx tool.Context, args map[string]any) (map[string]any, error) {
	resp, err := w.toolset.rpc(ctx, "tools/call", map[string]any{
		"name":      w.name,
		"arguments": args,
	})
	if err != nil {
		return nil, fmt.Errorf("MCP call failed: %w", err)
	}

	if resp.Error != nil {
		return map[string]any{"error": resp.Error.Message}, nil
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return map[string]any{"result": resp.Result}, nil
	}

	result := make(map[string]any)
	texts := contentTexts(resultMap["content"])

	if isError, _ := resultMap["isError"].(bool); isError {
		if len(texts) > 0 {
			result["error"] = texts[0]
		} else {
			result["error"] = "unknown error"
		}
		return result, nil
	}

	switch len(texts) {
	case 0:
	case 1:
		result["result"] = texts[0]
	default:
		result["results"] = texts
	}
	return result, nil
}

// contentTexts pulls the text entries out of an MCP content array.
func contentTexts(content any) []string {
	items, ok := content.([]any)
	if !ok {
		return nil
	}
	var texts []string
	for _, c := range items {
		cm, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if cm["type"] != "text" {
			continue
		}
		if text, ok := cm["text"].(string); ok {
			texts = append(texts, text)
		}
	}
	return texts
}

// decodeCallResult converts a typed mcp-go result into a tool result map.
func decodeCallResult(resp *mcp.CallToolResult) map[string]any {
	result := make(map[string]any)

	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}

	if resp.IsError {
		if len(texts) > 0 {
			result["error"] = texts[0]
		} else {
			result["error"] = "unknown error"
		}
		return result
	}

	switch len(texts) {
	case 0:
	case 1:
		result["result"] = texts[0]
	default:
		result["results"] = texts
	}
	return result
}

// schemaMap converts a typed MCP schema to a plain map.
func schemaMap(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// Ensure interfaces are implemented.
var (
	_ tool.Toolset      = (*Toolset)(nil)
	_ tool.CallableTool = (*remoteTool)(nil)
)
