package config

import "fmt"

// GuardrailType identifies a guardrail check.
type GuardrailType string

const (
	GuardrailPII             GuardrailType = "pii"
	GuardrailPromptInjection GuardrailType = "prompt_injection"
	GuardrailSpam            GuardrailType = "spam"
)

// GuardrailConfig configures an input guardrail.
//
// Guardrails screen user input before it reaches the model; a violation
// fails the run without a model call.
//
// Example:
//
//	guardrails:
//	  no_pii:
//	    type: pii
//	    mask: true
//
//	  no_injection:
//	    type: prompt_injection
type GuardrailConfig struct {
	// Type of guardrail (pii, prompt_injection, spam).
	Type GuardrailType `yaml:"type" json:"type" mapstructure:"type"`

	// PII detection toggles. All default to true when the type is pii.
	SSN        *bool `yaml:"ssn,omitempty" json:"ssn,omitempty" mapstructure:"ssn"`
	CreditCard *bool `yaml:"credit_card,omitempty" json:"credit_card,omitempty" mapstructure:"credit_card"`
	Email      *bool `yaml:"email,omitempty" json:"email,omitempty" mapstructure:"email"`
	Phone      *bool `yaml:"phone,omitempty" json:"phone,omitempty" mapstructure:"phone"`

	// Mask replaces detected PII with asterisks instead of failing the run.
	Mask bool `yaml:"mask,omitempty" json:"mask,omitempty" mapstructure:"mask"`

	// Patterns overrides the built-in prompt-injection substrings.
	Patterns []string `yaml:"patterns,omitempty" json:"patterns,omitempty" mapstructure:"patterns"`

	// MaxCapsRatio is the all-caps ratio a message may reach before it
	// counts as spam (default: 0.7).
	MaxCapsRatio float64 `yaml:"max_caps_ratio,omitempty" json:"max_caps_ratio,omitempty" mapstructure:"max_caps_ratio"`

	// MaxExclamations is the number of exclamation marks allowed before
	// a message counts as spam (default: 3).
	MaxExclamations int `yaml:"max_exclamations,omitempty" json:"max_exclamations,omitempty" mapstructure:"max_exclamations"`
}

// SetDefaults applies default values.
func (c *GuardrailConfig) SetDefaults() {
	if c.Type == GuardrailPII {
		if c.SSN == nil {
			c.SSN = BoolPtr(true)
		}
		if c.CreditCard == nil {
			c.CreditCard = BoolPtr(true)
		}
		if c.Email == nil {
			c.Email = BoolPtr(true)
		}
		if c.Phone == nil {
			c.Phone = BoolPtr(true)
		}
	}

	if c.Type == GuardrailSpam {
		if c.MaxCapsRatio == 0 {
			c.MaxCapsRatio = 0.7
		}
		if c.MaxExclamations == 0 {
			c.MaxExclamations = 3
		}
	}
}

// Validate checks the guardrail configuration.
func (c *GuardrailConfig) Validate() error {
	switch c.Type {
	case GuardrailPII, GuardrailPromptInjection, GuardrailSpam:
	default:
		return fmt.Errorf("invalid guardrail type %q (valid: pii, prompt_injection, spam)", c.Type)
	}

	if c.MaxCapsRatio < 0 || c.MaxCapsRatio > 1 {
		return fmt.Errorf("max_caps_ratio must be between 0 and 1")
	}
	if c.MaxExclamations < 0 {
		return fmt.Errorf("max_exclamations must be non-negative")
	}
	return nil
}
