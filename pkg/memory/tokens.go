package memory

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/reins-ai/reins/pkg/model"
)

// TokenCounter counts tokens for a specific model's encoding.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	// Encodings are expensive to build, cache per model.
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewTokenCounter creates a counter for the given model. Models the
// tokenizer doesn't know fall back to the cl100k_base encoding, which
// is close enough for budgeting.
func NewTokenCounter(modelName string) (*TokenCounter, error) {
	cacheMu.RLock()
	cached, ok := encodingCache[modelName]
	cacheMu.RUnlock()
	if ok {
		return &TokenCounter{encoding: cached, model: modelName}, nil
	}

	encoding, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[modelName] = encoding
	cacheMu.Unlock()

	return &TokenCounter{encoding: encoding, model: modelName}, nil
}

// Model returns the model name this counter was built for.
func (tc *TokenCounter) Model() string {
	return tc.model
}

// Count returns the token count for text.
func (tc *TokenCounter) Count(text string) int {
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountMessage returns the token cost of one message, including the
// per-message format overhead and any tool call payloads.
func (tc *TokenCounter) CountMessage(m *model.Message) int {
	// <|start|>role<|message|>...<|end|>
	tokens := messageOverheadTokens
	tokens += tc.Count(string(m.Role))
	tokens += tc.Count(m.Content)
	for _, call := range m.ToolCalls {
		tokens += tc.Count(call.Name)
		if args, err := json.Marshal(call.Args); err == nil {
			tokens += tc.Count(string(args))
		}
	}
	if m.ToolResult != nil {
		tokens += tc.Count(m.ToolResult.Content)
		tokens += tc.Count(m.ToolResult.Error)
	}
	return tokens
}

// CountMessages returns the token cost of a message list, including
// the priming overhead of the model's reply.
func (tc *TokenCounter) CountMessages(msgs []*model.Message) int {
	total := replyPrimingTokens
	for _, m := range msgs {
		total += tc.CountMessage(m)
	}
	return total
}

// Token overheads of the chat message format.
const (
	messageOverheadTokens = 3
	replyPrimingTokens    = 3
)

// estimateMessageTokens approximates the cost of a message at ~4
// characters per token, for when no counter is available.
func estimateMessageTokens(m *model.Message) int {
	chars := len(m.Role) + len(m.Content)
	for _, call := range m.ToolCalls {
		chars += len(call.Name)
		if args, err := json.Marshal(call.Args); err == nil {
			chars += len(args)
		}
	}
	if m.ToolResult != nil {
		chars += len(m.ToolResult.Content) + len(m.ToolResult.Error)
	}
	return chars/4 + messageOverheadTokens
}
