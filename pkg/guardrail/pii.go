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
	"regexp"
	"strings"
)

var (
	ssnPattern        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	creditCardPattern = regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`)
	emailPattern      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern      = regexp.MustCompile(`\b(?:\+?1[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`)
)

// PIIConfig selects which kinds of personal data to detect.
type PIIConfig struct {
	// SSN enables social security number detection.
	SSN bool `yaml:"ssn" mapstructure:"ssn"`

	// CreditCard enables credit card number detection.
	CreditCard bool `yaml:"credit_card" mapstructure:"credit_card"`

	// Email enables email address detection.
	Email bool `yaml:"email" mapstructure:"email"`

	// Phone enables phone number detection.
	Phone bool `yaml:"phone" mapstructure:"phone"`

	// Mask replaces detected PII with asterisks instead of blocking.
	Mask bool `yaml:"mask" mapstructure:"mask"`
}

// PIIDetection finds personal data in input. By default detection
// blocks the run; with Mask set it rewrites the input in place and
// lets the run continue.
type PIIDetection struct {
	cfg PIIConfig
}

// NewPIIDetection builds a guardrail that checks every supported PII
// kind. Use NewPIIDetectionWithConfig to narrow the checks or enable
// masking.
func NewPIIDetection() *PIIDetection {
	return NewPIIDetectionWithConfig(PIIConfig{
		SSN:        true,
		CreditCard: true,
		Email:      true,
		Phone:      true,
	})
}

// NewPIIDetectionWithConfig builds a guardrail from cfg.
func NewPIIDetectionWithConfig(cfg PIIConfig) *PIIDetection {
	return &PIIDetection{cfg: cfg}
}

func (g *PIIDetection) Name() string {
	return "pii_detection"
}

// Check scans the input for enabled PII kinds. With masking on, every
// match is replaced and no error is returned.
func (g *PIIDetection) Check(ctx context.Context, input *Input) error {
	type check struct {
		kind    string
		pattern *regexp.Regexp
	}
	checks := make([]check, 0, 4)
	if g.cfg.SSN {
		checks = append(checks, check{"SSN", ssnPattern})
	}
	if g.cfg.CreditCard {
		checks = append(checks, check{"credit card number", creditCardPattern})
	}
	if g.cfg.Email {
		checks = append(checks, check{"email address", emailPattern})
	}
	if g.cfg.Phone {
		checks = append(checks, check{"phone number", phonePattern})
	}

	for _, c := range checks {
		if !c.pattern.MatchString(input.Content) {
			continue
		}
		if g.cfg.Mask {
			input.Content = c.pattern.ReplaceAllStringFunc(input.Content, maskMatch)
			continue
		}
		return &CheckError{
			Message:   fmt.Sprintf("potential %s detected in input", c.kind),
			Trigger:   TriggerPII,
			Guardrail: g.Name(),
		}
	}
	return nil
}

// maskMatch keeps separators so masked values stay readable, e.g.
// "123-45-6789" becomes "***-**-****".
func maskMatch(match string) string {
	var b strings.Builder
	b.Grow(len(match))
	for _, r := range match {
		switch r {
		case '-', ' ', '.', '(', ')', '@', '+':
			b.WriteRune(r)
		default:
			b.WriteRune('*')
		}
	}
	return b.String()
}

var _ Guardrail = (*PIIDetection)(nil)
