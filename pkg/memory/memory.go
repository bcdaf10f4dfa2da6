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

// Package memory manages what conversation history fits into a model
// request.
//
// A Window trims history to a token budget, always preserving the most
// recent messages. Trimmed messages are not lost: a Summarizer can fold
// them into a rolling summary that Compose re-injects as context.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reins-ai/reins/pkg/model"
)

// Default window settings.
const (
	DefaultMaxTokens      = 8000
	DefaultPreserveRecent = 5
)

// Config holds window settings.
type Config struct {
	// MaxTokens is the token budget for conversation history.
	// Default 8000.
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens"`

	// PreserveRecent is the minimum number of recent messages to keep
	// even when they exceed the budget. Default 5.
	PreserveRecent int `yaml:"preserve_recent" mapstructure:"preserve_recent"`

	// Model selects the tokenizer encoding. Without it the window
	// falls back to character-based estimation.
	Model string `yaml:"model" mapstructure:"model"`
}

// Window keeps conversation history within a token budget, working
// backwards from the most recent messages.
type Window struct {
	maxTokens      int
	preserveRecent int
	counter        *TokenCounter
}

// NewWindow builds a window from cfg. A tokenizer failure is not
// fatal; the window degrades to estimation.
func NewWindow(cfg Config) *Window {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	preserveRecent := cfg.PreserveRecent
	if preserveRecent <= 0 {
		preserveRecent = DefaultPreserveRecent
	}

	var counter *TokenCounter
	if cfg.Model != "" {
		var err error
		counter, err = NewTokenCounter(cfg.Model)
		if err != nil {
			slog.Warn("Failed to create token counter, using estimation",
				"model", cfg.Model,
				"error", err)
		}
	}

	return &Window{
		maxTokens:      maxTokens,
		preserveRecent: preserveRecent,
		counter:        counter,
	}
}

// Budget returns the configured token budget.
func (w *Window) Budget() int {
	return w.maxTokens
}

// Split partitions history into the overflow that no longer fits and
// the recent window that does. At least PreserveRecent messages stay
// in the window regardless of budget.
func (w *Window) Split(msgs []*model.Message) (overflow, recent []*model.Message) {
	if len(msgs) == 0 {
		return nil, msgs
	}

	keep := 0
	used := replyPrimingTokens
	for i := len(msgs) - 1; i >= 0; i-- {
		cost := w.messageTokens(msgs[i])
		if used+cost > w.maxTokens {
			break
		}
		used += cost
		keep++
	}

	if keep < w.preserveRecent {
		keep = min(w.preserveRecent, len(msgs))
	}

	cut := len(msgs) - keep
	if cut == 0 {
		return nil, msgs
	}
	return msgs[:cut], msgs[cut:]
}

// Fit returns the suffix of msgs that fits the budget.
func (w *Window) Fit(msgs []*model.Message) []*model.Message {
	_, recent := w.Split(msgs)
	return recent
}

func (w *Window) messageTokens(m *model.Message) int {
	if w.counter != nil {
		return w.counter.CountMessage(m)
	}
	return estimateMessageTokens(m)
}

// Compose builds the prompt-ready history: when a rolling summary
// exists it leads as a system message, followed by the window.
func Compose(summary string, window []*model.Message) []*model.Message {
	if summary == "" {
		return window
	}
	out := make([]*model.Message, 0, len(window)+1)
	out = append(out, model.NewSystemMessage("Summary of the earlier conversation:\n"+summary))
	return append(out, window...)
}

const defaultSummaryPrompt = `You are a conversation summarizer. Create a concise summary of the conversation history that preserves the key information, decisions made, and context needed for continuing the conversation.

Guidelines:
- Focus on key facts, decisions, and context
- Preserve important details like names, dates, numbers
- Keep the summary concise but comprehensive
- Write in a neutral, factual tone
- Do not add information not present in the conversation

Conversation to summarize:
%s

Please provide a concise summary:`

// Summarizer folds trimmed history into a rolling summary using an
// LLM.
type Summarizer struct {
	llm    model.LLM
	prompt string
}

// SummarizerConfig configures a Summarizer.
type SummarizerConfig struct {
	// LLM is the model used for summarization. Required.
	LLM model.LLM

	// Prompt overrides the summarization prompt. Use %s as the
	// placeholder for the conversation text.
	Prompt string
}

// NewSummarizer creates an LLM-backed summarizer.
func NewSummarizer(cfg SummarizerConfig) (*Summarizer, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("llm is required for summarization")
	}
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = defaultSummaryPrompt
	}
	return &Summarizer{llm: cfg.LLM, prompt: prompt}, nil
}

// Summarize produces a new rolling summary covering the previous
// summary plus the overflow messages. Empty input returns the previous
// summary unchanged.
func (s *Summarizer) Summarize(ctx context.Context, previous string, overflow []*model.Message) (string, error) {
	transcript := buildTranscript(previous, overflow)
	if transcript == "" {
		return previous, nil
	}

	req := &model.Request{
		Messages: []*model.Message{
			model.NewUserMessage(fmt.Sprintf(s.prompt, transcript)),
		},
	}

	var summary strings.Builder
	for resp, err := range s.llm.Generate(ctx, req, false) {
		if err != nil {
			return "", fmt.Errorf("summarization failed: %w", err)
		}
		summary.WriteString(resp.Content)
	}
	return strings.TrimSpace(summary.String()), nil
}

// buildTranscript renders messages as "[role]: text" lines, leading
// with the previous summary so it is carried forward. Returns "" when
// there is nothing new to fold in.
func buildTranscript(previous string, msgs []*model.Message) string {
	var lines strings.Builder
	for _, m := range msgs {
		text := m.Content
		if text == "" && m.ToolResult != nil {
			text = m.ToolResult.Content
		}
		if text == "" {
			continue
		}
		fmt.Fprintf(&lines, "[%s]: %s\n\n", m.Role, text)
	}
	if lines.Len() == 0 {
		return ""
	}

	var b strings.Builder
	if previous != "" {
		fmt.Fprintf(&b, "[summary so far]: %s\n\n", previous)
	}
	b.WriteString(lines.String())
	return b.String()
}
