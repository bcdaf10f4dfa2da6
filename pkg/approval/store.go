package approval

import (
	"context"
	"sort"
	"sync"
)

// ErrStatusConflict is returned by Store.Transition when the requirement is
// not in the expected source status. The Service maps it onto the
// appropriate domain error for the call site.
var ErrStatusConflict = &Error{Code: "status_conflict", Message: "requirement is not in the expected status"}

// Store persists requirements. Transition is the only mutation primitive
// and must be atomic: the status moves from one value to another exactly
// once, or not at all.
type Store interface {
	// Put stores a new requirement.
	Put(ctx context.Context, r *Requirement) error

	// Get returns a snapshot of the requirement, or ErrNotFound.
	Get(ctx context.Context, id string) (*Requirement, error)

	// Transition atomically moves the requirement from status from to
	// status to, applying update to the record first. On a status
	// mismatch it returns the current snapshot together with
	// ErrStatusConflict and leaves the record untouched.
	Transition(ctx context.Context, id string, from, to Status, update func(*Requirement)) (*Requirement, error)

	// ListPending returns all pending requirements for a run, oldest
	// first. An empty runID matches every run.
	ListPending(ctx context.Context, runID string) ([]*Requirement, error)

	// Close releases store resources.
	Close() error
}

// MemoryStore is the in-memory Store used for tests, the CLI, and
// single-process deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	reqs map[string]*Requirement
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reqs: make(map[string]*Requirement)}
}

func (s *MemoryStore) Put(ctx context.Context, r *Requirement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reqs[r.ID]; exists {
		return &Error{Code: "requirement_exists", Message: "requirement already stored"}
	}
	s.reqs[r.ID] = r.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reqs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) Transition(ctx context.Context, id string, from, to Status, update func(*Requirement)) (*Requirement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reqs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != from {
		return r.Clone(), ErrStatusConflict
	}

	next := r.Clone()
	if update != nil {
		update(next)
	}
	next.Status = to
	s.reqs[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) ListPending(ctx context.Context, runID string) ([]*Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Requirement
	for _, r := range s.reqs {
		if r.Status != StatusPending {
			continue
		}
		if runID != "" && r.RunID != runID {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
