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

package model

import (
	"iter"

	"github.com/reins-ai/reins/pkg/tool"
)

// StreamingAggregator aggregates partial streaming responses.
//
// It accumulates content from partial responses and generates:
//   - partial responses for real-time display (Partial=true)
//   - one aggregated response for persistence (Partial=false)
//
// Usage:
//
//	agg := NewStreamingAggregator()
//	for chunk := range provider.Stream(ctx, req) {
//	    for resp, err := range agg.ProcessTextDelta(chunk.Text) {
//	        yield(resp, err)
//	    }
//	}
//	if final := agg.Close(); final != nil {
//	    yield(final, nil)
//	}
type StreamingAggregator struct {
	text         string
	toolCalls    []tool.Call
	usage        *Usage
	finishReason FinishReason
}

// NewStreamingAggregator creates a new streaming aggregator.
func NewStreamingAggregator() *StreamingAggregator {
	return &StreamingAggregator{}
}

// ProcessTextDelta processes a text delta chunk and yields a partial
// response carrying only the delta.
func (s *StreamingAggregator) ProcessTextDelta(text string) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		if text == "" {
			return
		}

		s.text += text

		yield(&Response{
			Content: text,
			Partial: true,
		}, nil)
	}
}

// ProcessToolCall processes a complete tool call and yields a partial
// response carrying it.
func (s *StreamingAggregator) ProcessToolCall(tc tool.Call) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		s.toolCalls = append(s.toolCalls, tc)

		yield(&Response{
			Partial:   true,
			ToolCalls: []tool.Call{tc},
		}, nil)
	}
}

// SetUsage sets the usage statistics (typically from the done event).
func (s *StreamingAggregator) SetUsage(usage *Usage) {
	s.usage = usage
}

// SetFinishReason sets the finish reason.
func (s *StreamingAggregator) SetFinishReason(reason FinishReason) {
	s.finishReason = reason
}

// Close generates the final aggregated response, or nil when nothing was
// accumulated. The returned response has Partial=false.
func (s *StreamingAggregator) Close() *Response {
	if s.text == "" && len(s.toolCalls) == 0 {
		return nil
	}

	resp := &Response{
		Content:      s.text,
		Partial:      false,
		TurnComplete: true,
		ToolCalls:    s.toolCalls,
		Usage:        s.usage,
		FinishReason: s.finishReason,
	}

	s.text = ""
	s.toolCalls = nil
	s.usage = nil
	s.finishReason = ""

	return resp
}
