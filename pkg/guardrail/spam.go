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
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SpamDetection blocks shouty, low-signal input: too many capital
// letters or too many exclamation marks.
type SpamDetection struct {
	maxCapsRatio    float64
	maxExclamations int
}

// NewSpamDetection builds a guardrail with the default thresholds:
// at most 70% capitals and at most 3 exclamation marks.
func NewSpamDetection() *SpamDetection {
	return NewSpamDetectionWithLimits(0.7, 3)
}

// NewSpamDetectionWithLimits builds a guardrail with explicit
// thresholds. Inputs exceeding either limit are blocked.
func NewSpamDetectionWithLimits(maxCapsRatio float64, maxExclamations int) *SpamDetection {
	return &SpamDetection{
		maxCapsRatio:    maxCapsRatio,
		maxExclamations: maxExclamations,
	}
}

func (g *SpamDetection) Name() string {
	return "spam_detection"
}

func (g *SpamDetection) Check(ctx context.Context, input *Input) error {
	content := input.Content

	// Very short inputs ("OK", "NYC") are all caps legitimately, so
	// the ratio check only applies past a minimum length.
	if utf8.RuneCountInString(content) > 10 {
		if ratio := capsRatio(content); ratio > g.maxCapsRatio {
			return &CheckError{
				Message:   fmt.Sprintf("excessive capitalization (%.0f%% of input)", ratio*100),
				Trigger:   TriggerSpam,
				Guardrail: g.Name(),
			}
		}
	}

	if n := strings.Count(content, "!"); n > g.maxExclamations {
		return &CheckError{
			Message:   fmt.Sprintf("excessive exclamation marks (%d)", n),
			Trigger:   TriggerSpam,
			Guardrail: g.Name(),
		}
	}
	return nil
}

func capsRatio(s string) float64 {
	total := utf8.RuneCountInString(s)
	if total == 0 {
		return 0
	}
	upper := 0
	for _, r := range s {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return float64(upper) / float64(total)
}

var _ Guardrail = (*SpamDetection)(nil)
