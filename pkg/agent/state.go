package agent

import (
	"context"
	"iter"

	"github.com/reins-ai/reins/pkg/session"
	"github.com/reins-ai/reins/pkg/tool"
)

// persistedState exposes a session's state as a tool.State that writes
// through to the session service. Reads come from the in-memory snapshot;
// every Set and Delete is persisted as a single-key delta so state written
// by a tool survives the process, including tools resumed long after the
// suspending invocation.
//
// The wrapper carries the invocation context because the State interface
// has no context parameter.
type persistedState struct {
	ctx  context.Context
	svc  session.Service
	sess *session.Session
}

var _ tool.State = (*persistedState)(nil)

func (s *persistedState) Get(key string) (any, error) {
	return s.sess.State.Get(key)
}

func (s *persistedState) Set(key string, val any) error {
	return s.svc.UpdateState(s.ctx, s.sess, map[string]any{key: val})
}

// Delete persists a nil value, which the service treats as a deletion.
func (s *persistedState) Delete(key string) error {
	return s.svc.UpdateState(s.ctx, s.sess, map[string]any{key: nil})
}

func (s *persistedState) All() iter.Seq2[string, any] {
	return s.sess.State.All()
}
