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

package approval

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Awaiter coordinates blocking waits for decisions. One goroutine waits on
// a requirement while another (CLI prompt, HTTP handler) provides the
// decision. Requirements decided through the Service directly never need
// an Awaiter; it exists for interactive flows.
type Awaiter struct {
	waiters map[string]chan *Decision
	mu      sync.RWMutex

	defaultTimeout time.Duration
}

// Decision is a human decision delivered to a waiting requirement.
type Decision struct {
	// Approved records the decision: true to approve, false to reject.
	Approved bool

	// Message optionally explains the decision.
	Message string
}

// Awaiter errors.
var (
	ErrDecisionTimeout = errors.New("decision timeout")
	ErrNoWaiter        = errors.New("no waiter for requirement")
	ErrWaiterFull      = errors.New("waiter channel full")
)

// NewAwaiter creates an awaiter. A zero defaultTimeout means 5 minutes.
func NewAwaiter(defaultTimeout time.Duration) *Awaiter {
	if defaultTimeout == 0 {
		defaultTimeout = 5 * time.Minute
	}
	return &Awaiter{
		waiters:        make(map[string]chan *Decision),
		defaultTimeout: defaultTimeout,
	}
}

// Wait blocks until a decision arrives for the requirement, the context is
// canceled, or the timeout elapses (zero timeout uses the default).
func (a *Awaiter) Wait(ctx context.Context, requirementID string, timeout time.Duration) (*Decision, error) {
	ch := make(chan *Decision, 1)
	a.mu.Lock()
	a.waiters[requirementID] = ch
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.waiters, requirementID)
		a.mu.Unlock()
	}()

	if timeout == 0 {
		timeout = a.defaultTimeout
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, ErrDecisionTimeout
	case d := <-ch:
		return d, nil
	}
}

// Provide delivers a decision to a waiting requirement. It does not block:
// if nothing is waiting, ErrNoWaiter is returned.
func (a *Awaiter) Provide(requirementID string, d *Decision) error {
	a.mu.RLock()
	ch, ok := a.waiters[requirementID]
	a.mu.RUnlock()

	if !ok {
		return ErrNoWaiter
	}

	select {
	case ch <- d:
		return nil
	default:
		return ErrWaiterFull
	}
}

// IsWaiting reports whether a requirement has a blocked waiter.
func (a *Awaiter) IsWaiting(requirementID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.waiters[requirementID]
	return ok
}

// Await blocks on a decision for the requirement, records it, and resumes.
// A timeout is treated as an implicit reject: the requirement is rejected
// and ErrDecisionTimeout is returned; a subsequent Resume yields skipped.
func (s *Service) Await(ctx context.Context, a *Awaiter, requirementID string, timeout time.Duration) (*Result, error) {
	d, err := a.Wait(ctx, requirementID, timeout)
	if errors.Is(err, ErrDecisionTimeout) {
		if rerr := s.Reject(ctx, requirementID); rerr != nil {
			return nil, rerr
		}
		return nil, ErrDecisionTimeout
	}
	if err != nil {
		return nil, err
	}

	if err := s.Decide(ctx, requirementID, d.Approved); err != nil {
		return nil, err
	}
	return s.Resume(ctx, requirementID)
}
