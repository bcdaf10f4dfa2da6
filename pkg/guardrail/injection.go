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

package guardrail

import (
	"context"
	"strings"
)

// defaultInjectionPatterns are matched case-insensitively as
// substrings of the input.
var defaultInjectionPatterns = []string{
	"ignore previous instructions",
	"ignore your instructions",
	"disregard your instructions",
	"forget your instructions",
	"new instructions",
	"you are now",
	"pretend you are",
	"act as if you are",
	"roleplay as",
	"jailbreak",
	"developer mode",
	"dan mode",
	"bypass your",
	"override your",
	"reveal your system prompt",
	"show me your system prompt",
}

// PromptInjection blocks inputs that try to rewrite the agent's
// instructions.
type PromptInjection struct {
	patterns []string
}

// NewPromptInjection builds a guardrail with the default pattern list.
func NewPromptInjection() *PromptInjection {
	return NewPromptInjectionWithPatterns(defaultInjectionPatterns)
}

// NewPromptInjectionWithPatterns builds a guardrail matching the given
// substrings. Matching is case-insensitive.
func NewPromptInjectionWithPatterns(patterns []string) *PromptInjection {
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &PromptInjection{patterns: lowered}
}

func (g *PromptInjection) Name() string {
	return "prompt_injection"
}

func (g *PromptInjection) Check(ctx context.Context, input *Input) error {
	content := strings.ToLower(input.Content)
	for _, p := range g.patterns {
		if strings.Contains(content, p) {
			return &CheckError{
				Message:   "potential prompt injection detected: " + p,
				Trigger:   TriggerPromptInjection,
				Guardrail: g.Name(),
			}
		}
	}
	return nil
}

var _ Guardrail = (*PromptInjection)(nil)
