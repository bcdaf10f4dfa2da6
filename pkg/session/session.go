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

// Package session manages conversation sessions.
//
// A session is a series of interactions between a user and agents. Each
// session has a unique identifier, an owning app and user, a key-value
// state store with scope prefixes, a message history, and an optional
// rolling summary.
//
// State keys are scoped by prefix: "app:" keys are shared across all
// users of an app, "user:" keys are shared across one user's sessions,
// "temp:" keys live only for the current invocation, and unprefixed
// keys belong to the session itself.
package session

import (
	"context"
	"iter"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reins-ai/reins/pkg/model"
	"github.com/reins-ai/reins/pkg/tool"
)

// State key prefixes.
const (
	// KeyPrefixApp scopes a key to the app, shared across users.
	KeyPrefixApp = "app:"

	// KeyPrefixUser scopes a key to the user, shared across sessions.
	KeyPrefixUser = "user:"

	// KeyPrefixTemp marks a key as invocation-local. Temp keys are
	// never persisted.
	KeyPrefixTemp = "temp:"
)

var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = &Error{Code: "session_not_found", Message: "session not found"}

	// ErrSessionExists is returned when creating a session whose ID is
	// already taken.
	ErrSessionExists = &Error{Code: "session_exists", Message: "session already exists"}

	// ErrInvalidRequest is returned when required request fields are
	// missing.
	ErrInvalidRequest = &Error{Code: "invalid_request", Message: "app name and user id are required"}
)

// Error is a typed session error.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Session is a detached snapshot of one conversation. Mutations made
// through State stay local until the caller persists them with
// Service.UpdateState.
type Session struct {
	// ID is the unique session identifier.
	ID string

	// AppName is the owning application.
	AppName string

	// UserID is the owning user.
	UserID string

	// State is the merged key-value state visible to this session,
	// including app- and user-scoped keys under their prefixes.
	State *State

	// Messages is the conversation history, oldest first.
	Messages []*model.Message

	// Summary is a rolling summary of trimmed history, maintained by
	// the memory layer.
	Summary string

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	// UpdatedAt is when the session was last modified.
	UpdatedAt time.Time
}

// Service manages session lifecycle and persistence.
type Service interface {
	// Create creates a new session. A missing SessionID is generated.
	Create(ctx context.Context, req *CreateRequest) (*Session, error)

	// Get retrieves a session with its merged state and message
	// history.
	Get(ctx context.Context, req *GetRequest) (*Session, error)

	// AppendMessages appends messages to the session history and to
	// sess.Messages.
	AppendMessages(ctx context.Context, sess *Session, msgs ...*model.Message) error

	// UpdateState persists a state delta, routing each key to its
	// scope by prefix. A nil value deletes the key; temp keys are
	// dropped.
	UpdateState(ctx context.Context, sess *Session, delta map[string]any) error

	// UpdateSummary replaces the session summary.
	UpdateSummary(ctx context.Context, sess *Session, summary string) error

	// List returns sessions for an app, optionally narrowed to one
	// user. Listed sessions carry no message history.
	List(ctx context.Context, req *ListRequest) ([]*Session, error)

	// Delete removes a session and its history.
	Delete(ctx context.Context, req *DeleteRequest) error

	// Close releases resources held by the service.
	Close() error
}

// CreateRequest contains parameters for creating a session.
type CreateRequest struct {
	AppName   string
	UserID    string
	SessionID string // optional, generated if empty

	// State seeds the session state. Prefixed keys are routed to
	// their scopes.
	State map[string]any
}

// GetRequest contains parameters for retrieving a session.
type GetRequest struct {
	AppName   string
	UserID    string
	SessionID string

	// NumRecentMessages keeps only the N most recent messages.
	// Zero means all.
	NumRecentMessages int

	// After keeps only messages recorded at or after the given time.
	// Zero means no filter.
	After time.Time
}

// ListRequest contains parameters for listing sessions.
type ListRequest struct {
	AppName string
	UserID  string // optional
}

// DeleteRequest contains parameters for deleting a session.
type DeleteRequest struct {
	AppName   string
	UserID    string
	SessionID string
}

// State is a mutex-guarded key-value store that records which keys
// changed so the owning service can persist just the delta. It
// satisfies the state interface tools read and write through.
type State struct {
	mu    sync.RWMutex
	data  map[string]any
	delta map[string]any
}

// NewState returns a State seeded with initial.
func NewState(initial map[string]any) *State {
	data := make(map[string]any, len(initial))
	maps.Copy(data, initial)
	return &State{
		data:  data,
		delta: make(map[string]any),
	}
}

func (s *State) Get(key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[key]
	if !ok {
		return nil, tool.ErrStateKeyNotExist
	}
	return val, nil
}

func (s *State) Set(key string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = val
	s.delta[key] = val
	return nil
}

// Delete removes a key. The deletion is recorded in the delta as a nil
// value.
func (s *State) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	s.delta[key] = nil
	return nil
}

func (s *State) All() iter.Seq2[string, any] {
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

// Len returns the number of keys.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.data))
	maps.Copy(out, s.data)
	return out
}

// TakeDelta returns the keys changed since the last call and resets
// the tracker. Deleted keys map to nil.
func (s *State) TakeDelta() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	delta := s.delta
	s.delta = make(map[string]any)
	return delta
}

// ClearTemp removes all keys with the temp: prefix. Called after each
// invocation completes.
func (s *State) ClearTemp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.data {
		if strings.HasPrefix(key, KeyPrefixTemp) {
			delete(s.data, key)
			delete(s.delta, key)
		}
	}
}

// apply folds a delta into the state without recording it as a new
// change. Nil values delete.
func (s *State) apply(delta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range delta {
		if v == nil {
			delete(s.data, k)
			continue
		}
		s.data[k] = v
	}
}

// extractScopes splits a delta by key prefix into app, user, and
// session parts. Temp keys are dropped.
func extractScopes(delta map[string]any) (appDelta, userDelta, sessionDelta map[string]any) {
	appDelta = make(map[string]any)
	userDelta = make(map[string]any)
	sessionDelta = make(map[string]any)

	for key, value := range delta {
		switch {
		case strings.HasPrefix(key, KeyPrefixApp):
			appDelta[strings.TrimPrefix(key, KeyPrefixApp)] = value
		case strings.HasPrefix(key, KeyPrefixUser):
			userDelta[strings.TrimPrefix(key, KeyPrefixUser)] = value
		case strings.HasPrefix(key, KeyPrefixTemp):
			// invocation-local, never persisted
		default:
			sessionDelta[key] = value
		}
	}
	return
}

// mergeScopes combines app, user, and session state into one map with
// scope prefixes restored.
func mergeScopes(appState, userState, sessionState map[string]any) map[string]any {
	merged := make(map[string]any, len(appState)+len(userState)+len(sessionState))
	maps.Copy(merged, sessionState)
	for k, v := range appState {
		merged[KeyPrefixApp+k] = v
	}
	for k, v := range userState {
		merged[KeyPrefixUser+k] = v
	}
	return merged
}

// applyScopeDelta folds a scope-local delta into a scope map, deleting
// keys whose value is nil.
func applyScopeDelta(state, delta map[string]any) {
	for k, v := range delta {
		if v == nil {
			delete(state, k)
			continue
		}
		state[k] = v
	}
}

// NewInMemoryService returns an in-memory session service. Useful for
// tests, development, and the CLI's default configuration.
func NewInMemoryService() Service {
	return &inMemoryService{
		appStates:  make(map[string]map[string]any),
		userStates: make(map[string]map[string]any),
		sessions:   make(map[string]*storedSession),
	}
}

type inMemoryService struct {
	mu         sync.RWMutex
	appStates  map[string]map[string]any
	userStates map[string]map[string]any
	sessions   map[string]*storedSession
}

type storedSession struct {
	id        string
	appName   string
	userID    string
	state     map[string]any
	messages  []*model.Message
	recorded  []time.Time
	summary   string
	createdAt time.Time
	updatedAt time.Time
}

func sessionKey(appName, userID, sessionID string) string {
	return appName + ":" + userID + ":" + sessionID
}

func (s *inMemoryService) Create(ctx context.Context, req *CreateRequest) (*Session, error) {
	if req.AppName == "" || req.UserID == "" {
		return nil, ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	key := sessionKey(req.AppName, req.UserID, sessionID)
	if _, ok := s.sessions[key]; ok {
		return nil, ErrSessionExists
	}

	appDelta, userDelta, sessionState := extractScopes(req.State)
	applyScopeDelta(s.appState(req.AppName), appDelta)
	applyScopeDelta(s.userState(req.AppName, req.UserID), userDelta)

	now := time.Now()
	s.sessions[key] = &storedSession{
		id:        sessionID,
		appName:   req.AppName,
		userID:    req.UserID,
		state:     sessionState,
		createdAt: now,
		updatedAt: now,
	}

	return s.assembleLocked(s.sessions[key], 0, time.Time{}), nil
}

func (s *inMemoryService) Get(ctx context.Context, req *GetRequest) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[sessionKey(req.AppName, req.UserID, req.SessionID)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.assembleLocked(stored, req.NumRecentMessages, req.After), nil
}

func (s *inMemoryService) AppendMessages(ctx context.Context, sess *Session, msgs ...*model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[sessionKey(sess.AppName, sess.UserID, sess.ID)]
	if !ok {
		return ErrSessionNotFound
	}

	now := time.Now()
	for _, m := range msgs {
		stored.messages = append(stored.messages, m)
		stored.recorded = append(stored.recorded, now)
	}
	stored.updatedAt = now

	sess.Messages = append(sess.Messages, msgs...)
	sess.UpdatedAt = now
	return nil
}

func (s *inMemoryService) UpdateState(ctx context.Context, sess *Session, delta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[sessionKey(sess.AppName, sess.UserID, sess.ID)]
	if !ok {
		return ErrSessionNotFound
	}

	appDelta, userDelta, sessionDelta := extractScopes(delta)
	applyScopeDelta(s.appState(sess.AppName), appDelta)
	applyScopeDelta(s.userState(sess.AppName, sess.UserID), userDelta)
	applyScopeDelta(stored.state, sessionDelta)
	stored.updatedAt = time.Now()

	if sess.State != nil {
		sess.State.apply(delta)
	}
	sess.UpdatedAt = stored.updatedAt
	return nil
}

func (s *inMemoryService) UpdateSummary(ctx context.Context, sess *Session, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[sessionKey(sess.AppName, sess.UserID, sess.ID)]
	if !ok {
		return ErrSessionNotFound
	}

	stored.summary = summary
	stored.updatedAt = time.Now()

	sess.Summary = summary
	sess.UpdatedAt = stored.updatedAt
	return nil
}

func (s *inMemoryService) List(ctx context.Context, req *ListRequest) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []*Session
	for _, stored := range s.sessions {
		if stored.appName != req.AppName {
			continue
		}
		if req.UserID != "" && stored.userID != req.UserID {
			continue
		}
		sess := s.assembleLocked(stored, 0, time.Time{})
		sess.Messages = nil
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (s *inMemoryService) Delete(ctx context.Context, req *DeleteRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(req.AppName, req.UserID, req.SessionID))
	return nil
}

func (s *inMemoryService) Close() error {
	return nil
}

// appState returns the app-scoped state map, creating it on first use.
// Callers must hold the write lock.
func (s *inMemoryService) appState(appName string) map[string]any {
	state, ok := s.appStates[appName]
	if !ok {
		state = make(map[string]any)
		s.appStates[appName] = state
	}
	return state
}

func (s *inMemoryService) userState(appName, userID string) map[string]any {
	key := appName + ":" + userID
	state, ok := s.userStates[key]
	if !ok {
		state = make(map[string]any)
		s.userStates[key] = state
	}
	return state
}

// assembleLocked builds a detached Session from stored data. Callers
// must hold at least the read lock.
func (s *inMemoryService) assembleLocked(stored *storedSession, numRecent int, after time.Time) *Session {
	merged := mergeScopes(
		s.appStates[stored.appName],
		s.userStates[stored.appName+":"+stored.userID],
		stored.state,
	)

	var msgs []*model.Message
	for i, m := range stored.messages {
		if !after.IsZero() && stored.recorded[i].Before(after) {
			continue
		}
		msgs = append(msgs, m)
	}
	if numRecent > 0 && len(msgs) > numRecent {
		msgs = msgs[len(msgs)-numRecent:]
	}

	return &Session{
		ID:        stored.id,
		AppName:   stored.appName,
		UserID:    stored.userID,
		State:     NewState(merged),
		Messages:  msgs,
		Summary:   stored.summary,
		CreatedAt: stored.createdAt,
		UpdatedAt: stored.updatedAt,
	}
}

var (
	_ tool.State = (*State)(nil)
	_ Service    = (*inMemoryService)(nil)
)
