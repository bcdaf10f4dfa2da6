package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reins-ai/reins/pkg/config"
	"github.com/reins-ai/reins/pkg/model"
	"github.com/reins-ai/reins/pkg/tool"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLService implements Service on a SQL database. Concurrency is
// handled by database transactions, not Go locks, so multiple
// processes can share one database.
type SQLService struct {
	db      *sql.DB
	dialect string
	ownsDB  bool
}

const createSessionsTableSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    app_name VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    id VARCHAR(255) NOT NULL,
    state TEXT,
    summary TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (app_name, user_id, id)
)`

const createSessionsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(app_name, user_id)`

const createAppStatesTableSQL = `
CREATE TABLE IF NOT EXISTS app_states (
    app_name VARCHAR(255) PRIMARY KEY,
    state TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

const createUserStatesTableSQL = `
CREATE TABLE IF NOT EXISTS user_states (
    app_name VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    state TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (app_name, user_id)
)`

const createMessagesTableSQL = `
CREATE TABLE IF NOT EXISTS session_messages (
    app_name VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    session_id VARCHAR(255) NOT NULL,
    sequence_num INTEGER NOT NULL,
    role VARCHAR(50) NOT NULL,
    content TEXT,
    tool_calls TEXT,
    tool_result TEXT,
    metadata TEXT,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (app_name, user_id, session_id, sequence_num)
)`

const createMessagesIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON session_messages(app_name, user_id, session_id, created_at)`

// NewSQLService creates a SQL-backed session service and initializes
// the schema. Supported dialects: postgres, mysql, sqlite.
func NewSQLService(db *sql.DB, dialect string) (*SQLService, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite", "sqlite3":
		if dialect == "sqlite3" {
			dialect = "sqlite"
		}
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLService{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// NewSQLServiceFromConfig opens the configured database and builds a
// service that owns the connection.
func NewSQLServiceFromConfig(cfg *config.DatabaseConfig) (*SQLService, error) {
	db, _, err := config.OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}

	s, err := NewSQLService(db, cfg.Driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

func (s *SQLService) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// One statement per Exec for SQLite compatibility.
	statements := []string{
		createSessionsTableSQL,
		createSessionsIndexSQL,
		createAppStatesTableSQL,
		createUserStatesTableSQL,
		createMessagesTableSQL,
		createMessagesIndexSQL,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLService) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 1
	for _, c := range query {
		if c == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (s *SQLService) Create(ctx context.Context, req *CreateRequest) (*Session, error) {
	if req.AppName == "" || req.UserID == "" {
		return nil, ErrInvalidRequest
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	appDelta, userDelta, sessionState := extractScopes(req.State)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(appDelta) > 0 {
		if err := s.upsertScopeTx(ctx, tx, s.upsertAppStateQuery(), appDelta,
			s.selectAppStateQuery(), []any{req.AppName}, []any{req.AppName}); err != nil {
			return nil, fmt.Errorf("failed to save app state: %w", err)
		}
	}
	if len(userDelta) > 0 {
		if err := s.upsertScopeTx(ctx, tx, s.upsertUserStateQuery(), userDelta,
			s.selectUserStateQuery(), []any{req.AppName, req.UserID}, []any{req.AppName, req.UserID}); err != nil {
			return nil, fmt.Errorf("failed to save user state: %w", err)
		}
	}

	stateJSON, err := json.Marshal(sessionState)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}

	now := time.Now().UTC()
	query := s.rebind(`
		INSERT INTO sessions (app_name, user_id, id, state, summary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, query, req.AppName, req.UserID, sessionID, string(stateJSON), "", now, now); err != nil {
		if isDuplicateKey(err) {
			return nil, ErrSessionExists
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.Get(ctx, &GetRequest{AppName: req.AppName, UserID: req.UserID, SessionID: sessionID})
}

func (s *SQLService) Get(ctx context.Context, req *GetRequest) (*Session, error) {
	query := s.rebind(`
		SELECT id, state, summary, created_at, updated_at
		FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`)

	var (
		id, stateJSON, summary string
		createdAt, updatedAt   time.Time
	)
	err := s.db.QueryRowContext(ctx, query, req.AppName, req.UserID, req.SessionID).
		Scan(&id, &stateJSON, &summary, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	sessionState, err := unmarshalState(stateJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal session state: %w", err)
	}

	appState, err := s.scopeState(ctx, s.selectAppStateQuery(), req.AppName)
	if err != nil {
		return nil, fmt.Errorf("failed to get app state: %w", err)
	}
	userState, err := s.scopeState(ctx, s.selectUserStateQuery(), req.AppName, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user state: %w", err)
	}

	msgs, err := s.messages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	return &Session{
		ID:        id,
		AppName:   req.AppName,
		UserID:    req.UserID,
		State:     NewState(mergeScopes(appState, userState, sessionState)),
		Messages:  msgs,
		Summary:   summary,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func (s *SQLService) AppendMessages(ctx context.Context, sess *Session, msgs ...*model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seq, err := s.nextSequenceTx(ctx, tx, sess.AppName, sess.UserID, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to get sequence number: %w", err)
	}

	now := time.Now().UTC()
	insert := s.rebind(`
		INSERT INTO session_messages (app_name, user_id, session_id, sequence_num,
			role, content, tool_calls, tool_result, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for i, m := range msgs {
		toolCalls, toolResult, metadata, err := marshalMessageFields(m)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, insert,
			sess.AppName, sess.UserID, sess.ID, seq+i,
			string(m.Role), m.Content, toolCalls, toolResult, metadata, now)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := s.touchSessionTx(ctx, tx, sess, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	sess.Messages = append(sess.Messages, msgs...)
	sess.UpdatedAt = now
	return nil
}

func (s *SQLService) UpdateState(ctx context.Context, sess *Session, delta map[string]any) error {
	appDelta, userDelta, sessionDelta := extractScopes(delta)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(appDelta) > 0 {
		if err := s.upsertScopeTx(ctx, tx, s.upsertAppStateQuery(), appDelta,
			s.selectAppStateQuery(), []any{sess.AppName}, []any{sess.AppName}); err != nil {
			return fmt.Errorf("failed to save app state: %w", err)
		}
	}
	if len(userDelta) > 0 {
		if err := s.upsertScopeTx(ctx, tx, s.upsertUserStateQuery(), userDelta,
			s.selectUserStateQuery(), []any{sess.AppName, sess.UserID}, []any{sess.AppName, sess.UserID}); err != nil {
			return fmt.Errorf("failed to save user state: %w", err)
		}
	}
	if len(sessionDelta) > 0 {
		if err := s.updateSessionStateTx(ctx, tx, sess, sessionDelta); err != nil {
			return fmt.Errorf("failed to update session state: %w", err)
		}
	}

	now := time.Now().UTC()
	if err := s.touchSessionTx(ctx, tx, sess, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if sess.State != nil {
		sess.State.apply(delta)
	}
	sess.UpdatedAt = now
	return nil
}

func (s *SQLService) UpdateSummary(ctx context.Context, sess *Session, summary string) error {
	now := time.Now().UTC()
	query := s.rebind(`
		UPDATE sessions SET summary = ?, updated_at = ?
		WHERE app_name = ? AND user_id = ? AND id = ?`)

	res, err := s.db.ExecContext(ctx, query, summary, now, sess.AppName, sess.UserID, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}

	sess.Summary = summary
	sess.UpdatedAt = now
	return nil
}

func (s *SQLService) List(ctx context.Context, req *ListRequest) ([]*Session, error) {
	query := `SELECT id, user_id, state, summary, created_at, updated_at
	          FROM sessions WHERE app_name = ?`
	args := []any{req.AppName}
	if req.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, req.UserID)
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var (
			id, userID, stateJSON, summary string
			createdAt, updatedAt           time.Time
		)
		if err := rows.Scan(&id, &userID, &stateJSON, &summary, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		state, err := unmarshalState(stateJSON)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, &Session{
			ID:        id,
			AppName:   req.AppName,
			UserID:    userID,
			State:     NewState(state),
			Summary:   summary,
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		})
	}
	return sessions, rows.Err()
}

func (s *SQLService) Delete(ctx context.Context, req *DeleteRequest) error {
	// Messages first, then the session row.
	msgQuery := s.rebind(`DELETE FROM session_messages WHERE app_name = ? AND user_id = ? AND session_id = ?`)
	if _, err := s.db.ExecContext(ctx, msgQuery, req.AppName, req.UserID, req.SessionID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	query := s.rebind(`DELETE FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`)
	if _, err := s.db.ExecContext(ctx, query, req.AppName, req.UserID, req.SessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLService) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// scopeState loads one scope's state map, empty if absent.
func (s *SQLService) scopeState(ctx context.Context, query string, args ...any) (map[string]any, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return make(map[string]any), nil
	}
	if err != nil {
		return nil, err
	}
	return unmarshalState(stateJSON)
}

// upsertScopeTx merges a delta into a scope row inside tx. selectArgs
// identify the existing row; upsertArgs prefix the upsert parameters
// before the state JSON and timestamp.
func (s *SQLService) upsertScopeTx(ctx context.Context, tx *sql.Tx, upsertQuery string, delta map[string]any, selectQuery string, selectArgs, upsertArgs []any) error {
	var stateJSON string
	err := tx.QueryRowContext(ctx, selectQuery, selectArgs...).Scan(&stateJSON)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	existing := make(map[string]any)
	if stateJSON != "" {
		if err := json.Unmarshal([]byte(stateJSON), &existing); err != nil {
			return err
		}
	}
	applyScopeDelta(existing, delta)

	merged, err := json.Marshal(existing)
	if err != nil {
		return err
	}

	args := append(append([]any{}, upsertArgs...), string(merged), time.Now().UTC())
	_, err = tx.ExecContext(ctx, upsertQuery, args...)
	return err
}

func (s *SQLService) updateSessionStateTx(ctx context.Context, tx *sql.Tx, sess *Session, delta map[string]any) error {
	query := s.rebind(`SELECT state FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`)

	var stateJSON string
	err := tx.QueryRowContext(ctx, query, sess.AppName, sess.UserID, sess.ID).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}

	existing, err := unmarshalState(stateJSON)
	if err != nil {
		return err
	}
	applyScopeDelta(existing, delta)

	merged, err := json.Marshal(existing)
	if err != nil {
		return err
	}

	update := s.rebind(`UPDATE sessions SET state = ? WHERE app_name = ? AND user_id = ? AND id = ?`)
	_, err = tx.ExecContext(ctx, update, string(merged), sess.AppName, sess.UserID, sess.ID)
	return err
}

func (s *SQLService) touchSessionTx(ctx context.Context, tx *sql.Tx, sess *Session, now time.Time) error {
	query := s.rebind(`UPDATE sessions SET updated_at = ? WHERE app_name = ? AND user_id = ? AND id = ?`)
	res, err := tx.ExecContext(ctx, query, now, sess.AppName, sess.UserID, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLService) nextSequenceTx(ctx context.Context, tx *sql.Tx, appName, userID, sessionID string) (int, error) {
	query := s.rebind(`
		SELECT COALESCE(MAX(sequence_num), 0) + 1 FROM session_messages
		WHERE app_name = ? AND user_id = ? AND session_id = ?`)

	var seq int
	if err := tx.QueryRowContext(ctx, query, appName, userID, sessionID).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *SQLService) messages(ctx context.Context, req *GetRequest) ([]*model.Message, error) {
	cols := `role, content, tool_calls, tool_result, metadata`

	var (
		query string
		args  []any
	)
	if req.NumRecentMessages > 0 {
		// Subquery keeps the N most recent rows in chronological order
		// without loading the whole history.
		query = `SELECT ` + cols + ` FROM (
			SELECT ` + cols + `, sequence_num FROM session_messages
			WHERE app_name = ? AND user_id = ? AND session_id = ?`
		args = []any{req.AppName, req.UserID, req.SessionID}
		if !req.After.IsZero() {
			query += " AND created_at >= ?"
			args = append(args, req.After.UTC())
		}
		query += ` ORDER BY sequence_num DESC LIMIT ?
		) sub ORDER BY sequence_num ASC`
		args = append(args, req.NumRecentMessages)
	} else {
		query = `SELECT ` + cols + ` FROM session_messages
		         WHERE app_name = ? AND user_id = ? AND session_id = ?`
		args = []any{req.AppName, req.UserID, req.SessionID}
		if !req.After.IsZero() {
			query += " AND created_at >= ?"
			args = append(args, req.After.UTC())
		}
		query += " ORDER BY sequence_num ASC"
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		var role, content, toolCalls, toolResult, metadata string
		if err := rows.Scan(&role, &content, &toolCalls, &toolResult, &metadata); err != nil {
			return nil, err
		}
		m, err := unmarshalMessage(role, content, toolCalls, toolResult, metadata)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *SQLService) selectAppStateQuery() string {
	return s.rebind(`SELECT state FROM app_states WHERE app_name = ?`)
}

func (s *SQLService) selectUserStateQuery() string {
	return s.rebind(`SELECT state FROM user_states WHERE app_name = ? AND user_id = ?`)
}

func (s *SQLService) upsertAppStateQuery() string {
	switch s.dialect {
	case "postgres":
		return `INSERT INTO app_states (app_name, state, updated_at)
		        VALUES ($1, $2, $3)
		        ON CONFLICT (app_name) DO UPDATE SET state = $2, updated_at = $3`
	case "mysql":
		return `INSERT INTO app_states (app_name, state, updated_at)
		        VALUES (?, ?, ?)
		        ON DUPLICATE KEY UPDATE state = VALUES(state), updated_at = VALUES(updated_at)`
	default: // sqlite
		return `INSERT INTO app_states (app_name, state, updated_at)
		        VALUES (?, ?, ?)
		        ON CONFLICT (app_name) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`
	}
}

func (s *SQLService) upsertUserStateQuery() string {
	switch s.dialect {
	case "postgres":
		return `INSERT INTO user_states (app_name, user_id, state, updated_at)
		        VALUES ($1, $2, $3, $4)
		        ON CONFLICT (app_name, user_id) DO UPDATE SET state = $3, updated_at = $4`
	case "mysql":
		return `INSERT INTO user_states (app_name, user_id, state, updated_at)
		        VALUES (?, ?, ?, ?)
		        ON DUPLICATE KEY UPDATE state = VALUES(state), updated_at = VALUES(updated_at)`
	default: // sqlite
		return `INSERT INTO user_states (app_name, user_id, state, updated_at)
		        VALUES (?, ?, ?, ?)
		        ON CONFLICT (app_name, user_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`
	}
}

func unmarshalState(stateJSON string) (map[string]any, error) {
	state := make(map[string]any)
	if stateJSON != "" && stateJSON != "null" {
		if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
			return nil, err
		}
	}
	return state, nil
}

func marshalMessageFields(m *model.Message) (toolCalls, toolResult, metadata string, err error) {
	if len(m.ToolCalls) > 0 {
		b, err := json.Marshal(m.ToolCalls)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to marshal tool calls: %w", err)
		}
		toolCalls = string(b)
	}
	if m.ToolResult != nil {
		b, err := json.Marshal(m.ToolResult)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to marshal tool result: %w", err)
		}
		toolResult = string(b)
	}
	if len(m.Metadata) > 0 {
		b, err := json.Marshal(m.Metadata)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = string(b)
	}
	return toolCalls, toolResult, metadata, nil
}

func unmarshalMessage(role, content, toolCalls, toolResult, metadata string) (*model.Message, error) {
	m := &model.Message{
		Role:    model.Role(role),
		Content: content,
	}
	if toolCalls != "" {
		var calls []tool.Call
		if err := json.Unmarshal([]byte(toolCalls), &calls); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tool calls: %w", err)
		}
		m.ToolCalls = calls
	}
	if toolResult != "" {
		var result tool.CallResult
		if err := json.Unmarshal([]byte(toolResult), &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tool result: %w", err)
		}
		m.ToolResult = &result
	}
	if metadata != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(metadata), &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		m.Metadata = meta
	}
	return m, nil
}

// isDuplicateKey reports whether err looks like a primary key
// violation, with enough coverage for the supported drivers.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

var _ Service = (*SQLService)(nil)
