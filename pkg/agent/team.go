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

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Team fans one request out to several agents in parallel and combines
// their answers. Members run concurrently on isolated sessions; a leader,
// when configured, synthesizes the member answers into one response,
// otherwise the answers are concatenated.
type Team struct {
	name        string
	description string
	members     []*Agent
	leader      *Agent
}

// TeamConfig describes a team.
type TeamConfig struct {
	// Name identifies the team.
	Name string

	// Description says what the team is for.
	Description string

	// Members answer every request, in parallel.
	Members []*Agent

	// Leader synthesizes member answers into the final response.
	// Optional; without one the member answers are joined as sections.
	Leader *Agent
}

// MemberOutput is one member's contribution to a team run.
type MemberOutput struct {
	// Agent is the member name.
	Agent string `json:"agent"`

	// Output is the member's run output. Nil when the member failed.
	Output *RunOutput `json:"output,omitempty"`

	// Err is the member's failure, empty on success.
	Err string `json:"error,omitempty"`
}

// TeamOutput is the result of a team run.
type TeamOutput struct {
	// Content is the combined answer.
	Content string `json:"content"`

	// Members are the individual contributions, in member order.
	Members []MemberOutput `json:"members"`
}

// NewTeam builds a team from cfg.
func NewTeam(cfg TeamConfig) (*Team, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("team name is required")
	}
	if len(cfg.Members) == 0 {
		return nil, fmt.Errorf("team %q: at least one member is required", cfg.Name)
	}
	return &Team{
		name:        cfg.Name,
		description: cfg.Description,
		members:     cfg.Members,
		leader:      cfg.Leader,
	}, nil
}

// Name returns the team name.
func (t *Team) Name() string { return t.name }

// Description returns the team description.
func (t *Team) Description() string { return t.description }

// Run sends input to every member in parallel and combines the answers.
// A failed member is recorded in the output rather than sinking the team;
// Run fails only when no member produced an answer or when the leader
// fails.
func (t *Team) Run(ctx context.Context, input string, opts ...RunOption) (*TeamOutput, error) {
	outputs := make([]*RunOutput, len(t.members))
	errs := make([]error, len(t.members))

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range t.members {
		g.Go(func() error {
			out, err := m.Run(gctx, input, opts...)
			outputs[i], errs[i] = out, err
			if err != nil {
				slog.Warn("Team member failed",
					"team", t.name, "member", m.Name(), "error", err)
			}
			return nil
		})
	}
	// Member errors are collected, not returned, so Wait cannot fail.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &TeamOutput{Members: make([]MemberOutput, len(t.members))}
	answered := 0
	for i, m := range t.members {
		mo := MemberOutput{Agent: m.Name(), Output: outputs[i]}
		if errs[i] != nil {
			mo.Err = errs[i].Error()
		} else {
			answered++
		}
		result.Members[i] = mo
	}
	if answered == 0 {
		return nil, fmt.Errorf("team %q: every member failed", t.name)
	}

	if t.leader == nil {
		result.Content = joinMemberAnswers(result.Members)
		return result, nil
	}

	lead, err := t.leader.Run(ctx, synthesisPrompt(input, result.Members), opts...)
	if err != nil {
		return nil, fmt.Errorf("team %q: leader failed: %w", t.name, err)
	}
	result.Content = lead.Content
	return result, nil
}

func memberAnswer(mo MemberOutput) string {
	switch {
	case mo.Err != "":
		return fmt.Sprintf("[failed: %s]", mo.Err)
	case mo.Output == nil:
		return "[no answer]"
	case mo.Output.Paused():
		return fmt.Sprintf("[no answer: run %s is waiting for tool approval]", mo.Output.RunID)
	default:
		return mo.Output.Content
	}
}

func joinMemberAnswers(members []MemberOutput) string {
	var b strings.Builder
	for i, mo := range members {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s", mo.Agent, memberAnswer(mo))
	}
	return b.String()
}

func synthesisPrompt(input string, members []MemberOutput) string {
	var b strings.Builder
	b.WriteString("Each team member answered the request below independently.\n\n")
	fmt.Fprintf(&b, "Request: %s\n", input)
	for _, mo := range members {
		fmt.Fprintf(&b, "\n[%s]\n%s\n", mo.Agent, memberAnswer(mo))
	}
	b.WriteString("\nCombine the answers into a single response to the request.")
	return b.String()
}
