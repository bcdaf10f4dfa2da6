package tool

import (
	"errors"
	"iter"
	"sync"
)

// ErrStateKeyNotExist is returned when a state key doesn't exist.
var ErrStateKeyNotExist = errors.New("state key does not exist")

// memoryState is a mutex-guarded map implementing State. It backs bare
// invocations and tests; session-backed runs provide their own State.
type memoryState struct {
	data map[string]any
	mu   sync.RWMutex
}

// NewMemoryState returns an in-memory State seeded with initial.
func NewMemoryState(initial map[string]any) State {
	data := make(map[string]any)
	for k, v := range initial {
		data[k] = v
	}
	return &memoryState{data: data}
}

func (s *memoryState) Get(key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[key]
	if !ok {
		return nil, ErrStateKeyNotExist
	}
	return val, nil
}

func (s *memoryState) Set(key string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = val
	return nil
}

func (s *memoryState) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memoryState) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for k, v := range s.data {
			if !yield(k, v) {
				return
			}
		}
	}
}

var _ State = (*memoryState)(nil)
