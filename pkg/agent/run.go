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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/reins-ai/reins/pkg/approval"
	"github.com/reins-ai/reins/pkg/guardrail"
	"github.com/reins-ai/reins/pkg/instruction"
	"github.com/reins-ai/reins/pkg/knowledge"
	"github.com/reins-ai/reins/pkg/memory"
	"github.com/reins-ai/reins/pkg/model"
	"github.com/reins-ai/reins/pkg/observability"
	"github.com/reins-ai/reins/pkg/run"
	"github.com/reins-ai/reins/pkg/schema"
	"github.com/reins-ai/reins/pkg/session"
	"github.com/reins-ai/reins/pkg/tool"
)

// RunOptions are the per-run settings.
type RunOptions struct {
	// UserID attributes the run. Defaults to DefaultUserID.
	UserID string

	// SessionID continues an existing conversation. Empty starts a new
	// session; a named session that does not exist yet is created under
	// that ID.
	SessionID string

	// State is merged into the session state when the run creates the
	// session. Ignored for existing sessions.
	State map[string]any
}

// RunOption configures a single run.
type RunOption func(*RunOptions)

// WithUser attributes the run to a user.
func WithUser(userID string) RunOption {
	return func(o *RunOptions) { o.UserID = userID }
}

// WithSession continues the named session.
func WithSession(sessionID string) RunOption {
	return func(o *RunOptions) { o.SessionID = sessionID }
}

// WithState seeds session state for a new session.
func WithState(state map[string]any) RunOption {
	return func(o *RunOptions) { o.State = state }
}

// RunOutput is the result of Run or ContinueRun. It is only produced for
// runs that completed or paused; failures are reported as errors with the
// failure also recorded on the run.
type RunOutput struct {
	// RunID identifies the run, for polling and for ContinueRun.
	RunID string `json:"run_id"`

	// SessionID names the conversation the run extended.
	SessionID string `json:"session_id"`

	// State is completed or input_required.
	State run.State `json:"state"`

	// Content is the final answer. Empty while paused.
	Content string `json:"content,omitempty"`

	// Structured is the decoded answer when an output schema is
	// configured.
	Structured map[string]any `json:"structured,omitempty"`

	// Requirements are the approvals the run is paused on.
	Requirements []*approval.Requirement `json:"requirements,omitempty"`

	// Usage is the token usage accumulated across model calls.
	Usage model.Usage `json:"usage"`
}

// Paused reports whether the run stopped to wait for approval decisions.
func (o *RunOutput) Paused() bool {
	return o.State == run.StateInputRequired
}

// Run executes one user message to completion or suspension.
//
// Input is screened by the guardrails first; a blocked input fails with
// *InputError before any session or run is touched. Otherwise the message
// is appended to the session and the model loop starts. The returned
// output either carries the final answer (state completed) or the approval
// requirements the run is paused on (state input_required).
func (a *Agent) Run(ctx context.Context, input string, opts ...RunOption) (*RunOutput, error) {
	o := RunOptions{UserID: DefaultUserID}
	for _, opt := range opts {
		opt(&o)
	}
	if o.UserID == "" {
		o.UserID = DefaultUserID
	}
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}

	gin := &guardrail.Input{Content: input, SessionID: o.SessionID}
	if err := a.guardrails.Check(ctx, gin); err != nil {
		var ce *guardrail.CheckError
		if errors.As(err, &ce) {
			slog.Info("Input blocked by guardrail",
				"agent", a.name, "guardrail", ce.Guardrail, "trigger", ce.Trigger)
			return nil, &InputError{Check: ce}
		}
		return nil, fmt.Errorf("guardrail check failed: %w", err)
	}
	// Guardrails may rewrite rather than block (masking).
	input = gin.Content

	sess, err := a.openSession(ctx, &o)
	if err != nil {
		return nil, err
	}

	r, err := a.runs.Create(ctx, sess.ID, a.name)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	r.Metadata[metaAppName] = sess.AppName
	r.Metadata[metaUserID] = sess.UserID

	a.track(r.ID, sess)
	defer a.untrack(r.ID)
	a.resolveToolsets(ctx)

	userMsg := model.NewUserMessage(input)
	if err := a.sessions.AppendMessages(ctx, sess, userMsg); err != nil {
		return nil, fmt.Errorf("failed to record user message: %w", err)
	}
	r.AppendHistory(userMsg)
	r.SetStatus(run.StateWorking, "", "")
	if err := a.runs.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to update run: %w", err)
	}

	slog.Info("Run started", "agent", a.name, "run", r.ID, "session", sess.ID)
	return a.loop(ctx, r, sess)
}

// ContinueRun resumes a run paused in input_required.
//
// Every decided requirement is resumed through the approval service and
// its result appended as a tool message: an executed result carries the
// tool's value, a rejection reads "skipped by user", a handler failure
// carries the reason. If some requirements are still undecided the run
// stays paused on them; once all are resolved the model loop re-enters
// with the results in history. Continuing a run that is not paused fails
// with ErrRunNotPaused, which is what makes a second continue of the same
// suspension point an error.
func (a *Agent) ContinueRun(ctx context.Context, runID string) (*RunOutput, error) {
	r, err := a.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if r.AgentName != a.name {
		return nil, ErrWrongAgent
	}
	if !r.Status.State.IsPaused() {
		return nil, ErrRunNotPaused
	}

	sess, err := a.attachRun(ctx, r)
	if err != nil {
		return nil, err
	}

	a.track(r.ID, sess)
	defer a.untrack(r.ID)
	a.resolveToolsets(ctx)

	var waiting []*approval.Requirement
	resolved := 0
	for _, id := range slices.Clone(r.PendingRequirements) {
		req, err := a.approvals.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load requirement %s: %w", id, err)
		}

		res, err := a.approvals.Resume(ctx, id)
		switch {
		case errors.Is(err, approval.ErrNotDecided):
			waiting = append(waiting, req)
			continue
		case errors.Is(err, approval.ErrResolved):
			// Resolved outside this loop, through the approval service
			// directly. The stored outcome still answers the tool call.
			req, err = a.approvals.Get(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("failed to load requirement %s: %w", id, err)
			}
			if !req.Status.IsTerminal() {
				return nil, fmt.Errorf("requirement %s: resume in flight", id)
			}
			res = &approval.Result{
				RequirementID: req.ID,
				Status:        req.Status,
				Value:         req.Value,
				Reason:        req.Reason,
			}
		case err != nil:
			return nil, fmt.Errorf("failed to resume requirement %s: %w", id, err)
		}

		callID := req.Action.CallID
		if callID == "" {
			callID = req.ID
		}
		msg := resultMessage(callID, req.Action.Tool, res)
		if err := a.sessions.AppendMessages(ctx, sess, msg); err != nil {
			return nil, fmt.Errorf("failed to record tool result: %w", err)
		}
		r.AppendHistory(msg)
		r.ClearRequirement(id)
		resolved++
	}

	if len(waiting) > 0 {
		if err := a.runs.Update(ctx, r); err != nil {
			return nil, fmt.Errorf("failed to update run: %w", err)
		}
		slog.Info("Run still waiting on approvals",
			"agent", a.name, "run", r.ID, "resolved", resolved, "waiting", len(waiting))
		return &RunOutput{
			RunID:        r.ID,
			SessionID:    sess.ID,
			State:        run.StateInputRequired,
			Requirements: waiting,
		}, nil
	}

	r.SetStatus(run.StateWorking, "", "")
	if err := a.runs.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to update run: %w", err)
	}

	slog.Info("Run resumed", "agent", a.name, "run", r.ID, "resolved", resolved)
	return a.loop(ctx, r, sess)
}

// loop is the model loop. Each iteration sends the conversation to the
// model and either finishes on a text answer, executes the requested
// tools and goes around again, or parks the run when a tool needs
// approval.
func (a *Agent) loop(ctx context.Context, r *run.Run, sess *session.Session) (*RunOutput, error) {
	out := &RunOutput{RunID: r.ID, SessionID: sess.ID}

	for i := 0; i < a.maxIter; i++ {
		if err := ctx.Err(); err != nil {
			r.SetStatus(run.StateCanceled, "", err.Error())
			a.persistRun(ctx, r)
			return nil, err
		}

		req, err := a.buildRequest(ctx, sess)
		if err != nil {
			return nil, a.fail(ctx, r, err)
		}

		resp, err := a.generate(ctx, req)
		if err != nil {
			return nil, a.fail(ctx, r, fmt.Errorf("model call failed: %w", err))
		}
		if resp.Usage != nil {
			out.Usage.PromptTokens += resp.Usage.PromptTokens
			out.Usage.CompletionTokens += resp.Usage.CompletionTokens
			out.Usage.TotalTokens += resp.Usage.TotalTokens
		}

		asst := resp.ToMessage()
		if err := a.sessions.AppendMessages(ctx, sess, asst); err != nil {
			return nil, a.fail(ctx, r, fmt.Errorf("failed to record assistant message: %w", err))
		}
		r.AppendHistory(asst)

		if !resp.HasToolCalls() {
			return a.complete(ctx, r, sess, resp, out)
		}

		pending, err := a.dispatchCalls(ctx, r, sess, resp.ToolCalls)
		if err != nil {
			return nil, a.fail(ctx, r, err)
		}
		if len(pending) > 0 {
			ids := make([]string, len(pending))
			for n, p := range pending {
				ids[n] = p.ID
			}
			r.RequireInput(ids...)
			if err := a.runs.Update(ctx, r); err != nil {
				return nil, fmt.Errorf("failed to update run: %w", err)
			}
			slog.Info("Run paused for approval",
				"agent", a.name, "run", r.ID, "requirements", len(pending))
			out.State = run.StateInputRequired
			out.Requirements = pending
			observability.Global().RecordRun(ctx, a.name, string(out.State),
				time.Since(r.CreatedAt), out.Usage.TotalTokens)
			return out, nil
		}
	}

	return nil, a.fail(ctx, r, &Error{
		Code:    "max_iterations",
		Message: fmt.Sprintf("model loop did not finish within %d iterations", a.maxIter),
	})
}

// dispatchCalls invokes each requested tool through the approval gate.
// Immediate results, including handler failures, become tool messages;
// suspended calls are returned as pending requirements. An unknown tool is
// reported back to the model as a failed call rather than aborting the
// run, since the model can usually recover by choosing another tool.
func (a *Agent) dispatchCalls(ctx context.Context, r *run.Run, sess *session.Session, calls []tool.Call) ([]*approval.Requirement, error) {
	var pending []*approval.Requirement
	for _, call := range calls {
		inv, err := a.approvals.Invoke(ctx, r.ID, call.Name, call.Args, approval.WithCallID(call.ID))
		if err != nil {
			slog.Warn("Tool invocation rejected",
				"agent", a.name, "run", r.ID, "tool", call.Name, "error", err)
			msg := model.NewToolResultMessage(tool.CallResult{
				CallID: call.ID,
				Name:   call.Name,
				Error:  err.Error(),
			})
			if aerr := a.sessions.AppendMessages(ctx, sess, msg); aerr != nil {
				return nil, fmt.Errorf("failed to record tool result: %w", aerr)
			}
			r.AppendHistory(msg)
			continue
		}

		if inv.Suspended() {
			slog.Info("Tool call awaiting approval",
				"agent", a.name, "run", r.ID, "tool", call.Name,
				"requirement", inv.Requirement.ID)
			pending = append(pending, inv.Requirement)
			continue
		}

		msg := resultMessage(call.ID, call.Name, inv.Result)
		if err := a.sessions.AppendMessages(ctx, sess, msg); err != nil {
			return nil, fmt.Errorf("failed to record tool result: %w", err)
		}
		r.AppendHistory(msg)
	}
	return pending, nil
}

// complete finalizes a run on a text answer.
func (a *Agent) complete(ctx context.Context, r *run.Run, sess *session.Session, resp *model.Response, out *RunOutput) (*RunOutput, error) {
	out.Content = resp.Content

	if a.output != nil {
		raw, err := schema.ExtractJSON(resp.Content)
		if err != nil {
			return nil, a.fail(ctx, r, fmt.Errorf("structured output: %w", err))
		}
		if err := a.output.Validate([]byte(raw)); err != nil {
			return nil, a.fail(ctx, r, fmt.Errorf("structured output: %w", err))
		}
		var structured map[string]any
		if err := json.Unmarshal([]byte(raw), &structured); err != nil {
			return nil, a.fail(ctx, r, fmt.Errorf("structured output: %w", err))
		}
		out.Structured = structured
	}

	if a.outputKey != "" {
		var val any = resp.Content
		if out.Structured != nil {
			val = out.Structured
		}
		if err := a.sessions.UpdateState(ctx, sess, map[string]any{a.outputKey: val}); err != nil {
			slog.Warn("Failed to store output key",
				"agent", a.name, "run", r.ID, "key", a.outputKey, "error", err)
		}
	}

	r.SetStatus(run.StateCompleted, resp.Content, "")
	if err := a.runs.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to update run: %w", err)
	}

	slog.Info("Run completed", "agent", a.name, "run", r.ID)
	out.State = run.StateCompleted
	observability.Global().RecordRun(ctx, a.name, string(out.State),
		time.Since(r.CreatedAt), out.Usage.TotalTokens)
	return out, nil
}

// buildRequest assembles the model request: instruction rendered against
// current session state, retrieved knowledge, and the history trimmed to
// the memory window.
func (a *Agent) buildRequest(ctx context.Context, sess *session.Session) (*model.Request, error) {
	var sys []string
	if a.instruction != "" {
		rendered, err := instruction.InjectState(sess.State, a.instruction)
		if err != nil {
			return nil, fmt.Errorf("failed to render instruction: %w", err)
		}
		sys = append(sys, rendered)
	}

	if a.knowledge != nil {
		if query := latestUserContent(sess.Messages); query != "" {
			results, err := a.knowledge.Search(ctx, query, a.knowledgeTop)
			if err != nil {
				slog.Warn("Knowledge search failed", "agent", a.name, "error", err)
			} else if len(results) > 0 {
				sys = append(sys, knowledgeContext(results))
			}
		}
	}

	if a.output != nil {
		sys = append(sys, "Respond with a single JSON object that conforms to the required schema. Do not include any text outside the JSON object.")
	}

	history := sess.Messages
	if a.window != nil {
		overflow, recent := a.window.Split(history)
		if len(overflow) > 0 && a.summarizer != nil {
			summary, err := a.summarizer.Summarize(ctx, sess.Summary, overflow)
			if err != nil {
				slog.Warn("History summarization failed", "agent", a.name, "error", err)
			} else if summary != sess.Summary {
				if err := a.sessions.UpdateSummary(ctx, sess, summary); err != nil {
					slog.Warn("Failed to store summary", "agent", a.name, "error", err)
				}
			}
		}
		history = memory.Compose(sess.Summary, recent)
	}

	req := &model.Request{
		Messages:          history,
		Tools:             a.registry.Definitions(nil),
		Config:            a.genConfig.Clone(),
		SystemInstruction: strings.Join(sys, "\n\n"),
	}
	if a.output != nil {
		if req.Config == nil {
			req.Config = &model.GenerateConfig{}
		}
		req.Config.ResponseMIMEType = "application/json"
		req.Config.ResponseSchema = a.output.Schema()
	}
	return req, nil
}

// generate runs one non-streaming model call.
func (a *Agent) generate(ctx context.Context, req *model.Request) (resp *model.Response, err error) {
	start := time.Now()
	defer func() {
		var prompt, completion int
		if resp != nil && resp.Usage != nil {
			prompt = resp.Usage.PromptTokens
			completion = resp.Usage.CompletionTokens
		}
		observability.Global().RecordModelCall(ctx, a.model.Name(), time.Since(start), prompt, completion, err)
	}()

	var final *model.Response
	for r, rerr := range a.model.Generate(ctx, req, false) {
		if rerr != nil {
			return nil, rerr
		}
		if r != nil && !r.Partial {
			final = r
		}
	}
	if final == nil {
		return nil, fmt.Errorf("model returned no response")
	}
	return final, nil
}

// fail marks the run failed and returns err. The status write uses a
// detached context so a failure caused by cancellation is still recorded.
func (a *Agent) fail(ctx context.Context, r *run.Run, err error) error {
	r.SetStatus(run.StateFailed, "", err.Error())
	a.persistRun(ctx, r)
	observability.Global().RecordRun(ctx, a.name, string(run.StateFailed),
		time.Since(r.CreatedAt), 0)
	slog.Error("Run failed", "agent", a.name, "run", r.ID, "error", err)
	return err
}

func (a *Agent) persistRun(ctx context.Context, r *run.Run) {
	if uerr := a.runs.Update(context.WithoutCancel(ctx), r); uerr != nil {
		slog.Warn("Failed to persist run status", "agent", a.name, "run", r.ID, "error", uerr)
	}
}

// resultMessage converts a resolved approval result into the tool message
// the model sees. The call ID pairs the message with the model's request;
// without it the model cannot tell which call was answered.
func resultMessage(callID, name string, res *approval.Result) *model.Message {
	cr := tool.CallResult{CallID: callID, Name: name}
	switch res.Status {
	case approval.StatusExecuted:
		cr.Content = encodeResultValue(res.Value)
	case approval.StatusSkipped:
		cr.Content = "skipped by user"
	case approval.StatusFailed:
		cr.Error = res.Reason
	default:
		cr.Error = fmt.Sprintf("unexpected result status %q", res.Status)
	}
	return model.NewToolResultMessage(cr)
}

func encodeResultValue(value map[string]any) string {
	if len(value) == 0 {
		return "{}"
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

func latestUserContent(msgs []*model.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser && msgs[i].Content != "" {
			return msgs[i].Content
		}
	}
	return ""
}

func knowledgeContext(results []knowledge.Result) string {
	var b strings.Builder
	b.WriteString("Relevant knowledge:\n")
	for _, res := range results {
		fmt.Fprintf(&b, "- [%s] %s\n", res.Source, res.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
