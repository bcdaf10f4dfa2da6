package agent

import (
	"fmt"

	"github.com/reins-ai/reins/pkg/guardrail"
)

// Error is a typed agent error.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrRunNotPaused is returned by ContinueRun when the run is not
	// waiting for input. A run that already resumed past a suspension
	// point cannot be continued through it again.
	ErrRunNotPaused = &Error{Code: "run_not_paused", Message: "run is not paused for input"}

	// ErrWrongAgent is returned by ContinueRun when the run belongs to a
	// different agent.
	ErrWrongAgent = &Error{Code: "wrong_agent", Message: "run belongs to a different agent"}

	// ErrEmptyInput is returned by Run for blank input.
	ErrEmptyInput = &Error{Code: "empty_input", Message: "input is required"}
)

// InputError reports input blocked by a guardrail before any model call.
// The run is never created; there is nothing to resume.
type InputError struct {
	Check *guardrail.CheckError
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input rejected: %s", e.Check.Error())
}

func (e *InputError) Unwrap() error {
	return e.Check
}
