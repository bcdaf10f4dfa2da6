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

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"

	"github.com/reins-ai/reins/pkg/agent"
	"github.com/reins-ai/reins/pkg/approval"
	"github.com/reins-ai/reins/pkg/config"
	"github.com/reins-ai/reins/pkg/runtime"
)

// Status-line colors, kept apart from the conversation text.
const (
	colorDim   = "\033[90m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
)

// ChatCmd runs an interactive terminal chat against a configured agent.
type ChatCmd struct {
	Agent string `arg:"" optional:"" help:"Agent to chat with (defaults to the only configured agent)."`

	// Zero-config options
	Provider string `help:"LLM provider (gemini, ollama)."`
	Model    string `help:"Model name."`
	APIKey   string `name:"api-key" help:"API key (defaults to environment variable)."`
	BaseURL  string `name:"base-url" help:"Custom API base URL."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	if err := ensureZeroConfigFlagsUnused(cli.Config, c.Provider, c.Model, c.APIKey, c.BaseURL); err != nil {
		return err
	}

	ctx := context.Background()

	if cli.Config != "" {
		if _, err := os.Stat(cli.Config); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		_ = config.LoadDotEnvForConfig(cli.Config)
	}

	rt, err := runtime.New(ctx, runtime.Options{
		ConfigFile: cli.Config,
		Provider:   c.Provider,
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		Model:      c.Model,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	ag, err := pickAgent(rt, c.Agent)
	if err != nil {
		return err
	}

	return chatLoop(ctx, ag)
}

// pickAgent resolves the agent to chat with. With a single configured
// agent the name is optional.
func pickAgent(rt *runtime.Runtime, name string) (*agent.Agent, error) {
	agents := rt.Agents()
	if name != "" {
		ag, ok := rt.Agent(name)
		if !ok {
			return nil, fmt.Errorf("agent %q not found (available: %s)", name, strings.Join(agentNames(agents), ", "))
		}
		return ag, nil
	}
	if len(agents) == 1 {
		for _, ag := range agents {
			return ag, nil
		}
	}
	return nil, fmt.Errorf("multiple agents configured, pick one: reins chat <agent> (available: %s)", strings.Join(agentNames(agents), ", "))
}

func agentNames(agents map[string]*agent.Agent) []string {
	names := make([]string, 0, len(agents))
	for name := range agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// chatLoop reads user messages until /quit or EOF, resuming paused runs
// through the approval prompt.
func chatLoop(ctx context.Context, ag *agent.Agent) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("\nChatting with %s%s%s. Type /quit to exit, /clear to start over.\n\n", colorBrand, ag.Name(), colorReset)

	var sessionID string
	for {
		fmt.Print("You: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			switch input {
			case "/quit", "/exit":
				fmt.Println("Chat session ended")
				return nil
			case "/clear":
				sessionID = ""
				fmt.Println("Conversation cleared")
				continue
			default:
				fmt.Printf("Unknown command: %s\n", input)
				continue
			}
		}

		var opts []agent.RunOption
		if sessionID != "" {
			opts = append(opts, agent.WithSession(sessionID))
		}
		out, err := ag.Run(ctx, input, opts...)
		if err != nil {
			printRunError(err)
			continue
		}
		sessionID = out.SessionID

		out, err = resolveApprovals(ctx, ag, reader, out)
		if err != nil {
			printRunError(err)
			continue
		}

		fmt.Printf("\n%s: %s\n\n", ag.Name(), out.Content)
	}
}

// printRunError distinguishes guardrail rejections from real failures.
func printRunError(err error) {
	var inputErr *agent.InputError
	if errors.As(err, &inputErr) {
		fmt.Printf("%s✗ %v%s\n\n", colorRed, inputErr, colorReset)
		return
	}
	fmt.Printf("%sError: %v%s\n\n", colorRed, err, colorReset)
}

// resolveApprovals drives a paused run to completion. Each pending
// requirement is decided at the prompt; without a terminal everything
// is rejected so the run cannot hang waiting on a pipe.
func resolveApprovals(ctx context.Context, ag *agent.Agent, reader *bufio.Reader, out *agent.RunOutput) (*agent.RunOutput, error) {
	for out.Paused() {
		for _, req := range out.Requirements {
			if req.Status != approval.StatusPending {
				continue
			}

			approved := false
			if isTerminal(os.Stdin) {
				approved = promptDecision(reader, req)
			} else {
				fmt.Printf("%s[INFO] No terminal attached, rejecting %s%s\n", colorDim, req.Action.Tool, colorReset)
			}
			if err := ag.Approvals().Decide(ctx, req.ID, approved); err != nil {
				return nil, fmt.Errorf("failed to record decision: %w", err)
			}
			if approved {
				fmt.Printf("%s✓ approved %s%s\n", colorGreen, req.Action.Tool, colorReset)
			} else {
				fmt.Printf("%s✗ rejected %s%s\n", colorRed, req.Action.Tool, colorReset)
			}
		}

		next, err := ag.ContinueRun(ctx, out.RunID)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}

// promptDecision shows one gated tool call and asks for a y/n answer.
// Rejection is the default so Enter alone never runs a tool.
func promptDecision(reader *bufio.Reader, req *approval.Requirement) bool {
	fmt.Printf("\n%sApproval required%s\n", colorBrand, colorReset)
	fmt.Printf("  Tool: %s\n", req.Action.Tool)
	if len(req.Action.Args) > 0 {
		if args, err := json.Marshal(req.Action.Args); err == nil {
			fmt.Printf("  Args: %s\n", args)
		}
	}
	for {
		fmt.Print("Approve? [y/N]: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		case "", "n", "no":
			return false
		}
		fmt.Println("Please answer y or n.")
	}
}

// isTerminal reports whether f is connected to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
