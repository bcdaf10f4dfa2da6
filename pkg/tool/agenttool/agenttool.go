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

// Package agenttool wraps an agent as a callable tool, so one agent can
// delegate a request to another.
//
// The tool is named after the wrapped agent and takes a single "request"
// string. Each call runs the sub-agent on a fresh session seeded with a
// copy of the caller's session-scoped state, so the sub-agent sees the
// conversation's facts but cannot write back into the parent session.
package agenttool

import (
	"fmt"
	"strings"

	"github.com/reins-ai/reins/pkg/agent"
	"github.com/reins-ai/reins/pkg/tool"
)

// Config adjusts how the wrapped agent is exposed.
type Config struct {
	// RequireApproval gates the delegation itself: the sub-agent does
	// not start until a human approves the call. The sub-agent's own
	// gated tools are gated regardless.
	RequireApproval bool
}

type agentTool struct {
	agent *agent.Agent
	gated bool
}

var _ tool.CallableTool = (*agentTool)(nil)

// New wraps ag as a tool. A nil cfg exposes the agent ungated.
func New(ag *agent.Agent, cfg *Config) (tool.CallableTool, error) {
	if ag == nil {
		return nil, fmt.Errorf("agent is required")
	}
	t := &agentTool{agent: ag}
	if cfg != nil {
		t.gated = cfg.RequireApproval
	}
	return t, nil
}

// Name is the wrapped agent's name, so the model addresses the agent
// directly rather than through a call_ prefix.
func (t *agentTool) Name() string {
	return t.agent.Name()
}

func (t *agentTool) Description() string {
	if d := t.agent.Description(); d != "" {
		return d
	}
	return fmt.Sprintf("Delegates a request to the %s agent", t.agent.Name())
}

func (t *agentTool) RequiresApproval() bool {
	return t.gated
}

func (t *agentTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"request": map[string]any{
				"type":        "string",
				"description": "The task or question for the " + t.agent.Name() + " agent",
			},
		},
		"required": []string{"request"},
	}
}

// Call runs the sub-agent to completion on an isolated session. A
// sub-run that pauses for approval cannot prompt anyone from inside a
// tool call, so the pause is returned as the result: the requirement IDs
// let the caller decide and continue the sub-run out of band.
func (t *agentTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	request, ok := args["request"].(string)
	if !ok || request == "" {
		return nil, fmt.Errorf("request parameter must be a non-empty string")
	}

	out, err := t.agent.Run(ctx, request, agent.WithState(callerState(ctx)))
	if err != nil {
		return nil, fmt.Errorf("%s agent failed: %w", t.agent.Name(), err)
	}

	result := map[string]any{
		"agent":  t.agent.Name(),
		"run_id": out.RunID,
	}
	if out.Paused() {
		reqs := make([]map[string]any, len(out.Requirements))
		for i, r := range out.Requirements {
			reqs[i] = map[string]any{
				"id":   r.ID,
				"tool": r.Action.Tool,
				"args": r.Action.Args,
			}
		}
		result["status"] = "input_required"
		result["requirements"] = reqs
		result["result"] = fmt.Sprintf(
			"%s agent is waiting for approval before it can finish", t.agent.Name())
		return result, nil
	}

	answer := out.Content
	if answer == "" {
		answer = fmt.Sprintf("Task completed by %s agent", t.agent.Name())
	}
	result["result"] = answer
	if out.Structured != nil {
		result["structured"] = out.Structured
	}
	return result, nil
}

// callerState copies the caller's session-scoped keys as the sub-agent's
// session seed. Prefixed keys stay behind: app- and user-scoped state
// belongs to the caller's app, and temp keys never leave an invocation.
func callerState(ctx tool.Context) map[string]any {
	state := make(map[string]any)
	for k, v := range ctx.State().All() {
		if strings.Contains(k, ":") || strings.HasPrefix(k, "_") {
			continue
		}
		state[k] = v
	}
	return state
}
