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

// Package guardrail validates run input before an agent processes it.
//
// Guardrails run as pre-hooks: each one inspects (and may rewrite) the
// input, and blocks the run by returning a *CheckError. Built-in
// guardrails cover PII detection, prompt injection, and spam; custom
// checks implement the Guardrail interface.
package guardrail

import (
	"context"
	"fmt"
)

// Guardrail checks run input. Implementations may rewrite input.Content
// (e.g. masking) and block the run by returning a *CheckError.
type Guardrail interface {
	// Name identifies the guardrail in logs and errors.
	Name() string

	// Check validates the input. A *CheckError return blocks the run.
	Check(ctx context.Context, input *Input) error
}

// Input is the user input under inspection. Content is mutable so
// guardrails can mask rather than block.
type Input struct {
	// Content is the input text.
	Content string

	// SessionID identifies the conversation, for rate-style checks.
	SessionID string

	// Metadata carries additional request data.
	Metadata map[string]any
}

// Trigger identifies which class of check blocked an input.
type Trigger string

const (
	TriggerPII             Trigger = "pii_detected"
	TriggerPromptInjection Trigger = "prompt_injection"
	TriggerSpam            Trigger = "spam"
	TriggerCustom          Trigger = "custom"
)

// CheckError blocks an input.
type CheckError struct {
	// Message explains why the input was blocked.
	Message string

	// Trigger identifies the check class.
	Trigger Trigger

	// Guardrail names the guardrail that fired.
	Guardrail string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("input blocked by %s: %s", e.Guardrail, e.Message)
}

// Chain runs guardrails in order. The first blocking error stops the
// chain; rewrites from earlier guardrails are visible to later ones.
type Chain []Guardrail

// Check runs every guardrail against the input.
func (c Chain) Check(ctx context.Context, input *Input) error {
	for _, g := range c {
		if err := g.Check(ctx, input); err != nil {
			return err
		}
	}
	return nil
}

// CheckFunc adapts a function to the Guardrail interface.
type CheckFunc struct {
	// CheckName identifies the guardrail.
	CheckName string

	// Fn is the check implementation.
	Fn func(ctx context.Context, input *Input) error
}

func (f CheckFunc) Name() string {
	return f.CheckName
}

func (f CheckFunc) Check(ctx context.Context, input *Input) error {
	return f.Fn(ctx, input)
}
