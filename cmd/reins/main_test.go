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
	"strings"
	"testing"

	"github.com/reins-ai/reins/pkg/approval"
)

func TestEnsureZeroConfigFlagsUnused(t *testing.T) {
	if err := ensureZeroConfigFlagsUnused("", "gemini", "", "", ""); err != nil {
		t.Errorf("expected no error without --config, got %v", err)
	}
	if err := ensureZeroConfigFlagsUnused("reins.yaml", "", "", "", ""); err != nil {
		t.Errorf("expected no error with --config alone, got %v", err)
	}
	if err := ensureZeroConfigFlagsUnused("reins.yaml", "gemini", "", "", ""); err == nil {
		t.Error("expected error when mixing --config with --provider")
	}
}

func TestShouldSkipBanner(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"reins"}, false},
		{[]string{"reins", "serve"}, false},
		{[]string{"reins", "chat"}, false},
		{[]string{"reins", "validate", "reins.yaml"}, true},
		{[]string{"reins", "info"}, true},
		{[]string{"reins", "version"}, true},
	}
	for _, tt := range tests {
		if got := shouldSkipBanner(tt.args); got != tt.want {
			t.Errorf("shouldSkipBanner(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestPromptDecision(t *testing.T) {
	req := &approval.Requirement{
		ID: "req-1",
		Action: approval.Action{
			Tool: "get_stock_price",
			Args: map[string]any{"symbol": "AAPL"},
		},
	}

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"yes word", "yes\n", true},
		{"no", "n\n", false},
		{"enter defaults to no", "\n", false},
		{"garbage then no", "maybe\nno\n", false},
		{"eof defaults to no", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := bufio.NewReader(strings.NewReader(tt.input))
			if got := promptDecision(reader, req); got != tt.want {
				t.Errorf("promptDecision(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
