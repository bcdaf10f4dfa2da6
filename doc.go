// Package reins provides a confirmation-gated runtime for AI agents.
//
// Reins lets you attach tools to conversational agents and mark the
// dangerous ones as requiring human approval. When an agent decides to
// call a gated tool, the run suspends with a pending requirement instead
// of executing; a human (or a policy) approves or rejects the requirement,
// and the run resumes with the tool executed exactly once or skipped.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/reins-ai/reins/cmd/reins@latest
//
// Create an agent configuration:
//
//	agents:
//	  assistant:
//	    name: "Assistant"
//	    llm: gemini
//	    instruction: "You are a careful operations assistant."
//	    tools: [files]
//
//	llms:
//	  gemini:
//	    provider: gemini
//	    model: gemini-2.0-flash
//	    api_key: ${GEMINI_API_KEY}
//
//	tools:
//	  files:
//	    type: builtin
//	    handler: files
//
// write_file and delete_file from the files handler are gated out of the
// box; read_file runs unattended.
//
// Chat with approval prompts:
//
//	reins chat --config reins.yaml assistant
//
// Or serve the REST API and decide requirements over HTTP:
//
//	reins serve --config reins.yaml
//
// # Library Use
//
// The confirmation workflow is a plain library surface and does not
// require the CLI or the server:
//
//	svc := approval.NewService(registry, approval.NewMemoryStore())
//	inv, _ := svc.Invoke(ctx, runID, "delete_file", map[string]any{"path": "/tmp/x"})
//	if inv.Requirement != nil {
//	    _ = svc.Approve(ctx, inv.Requirement.ID)
//	    res, _ := svc.Resume(ctx, inv.Requirement.ID)
//	    _ = res // executed exactly once
//	}
//
// See the examples directory for complete programs.
package reins
