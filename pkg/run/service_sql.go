package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/reins-ai/reins/pkg/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLService implements Service with a SQL backend. It supports
// PostgreSQL, MySQL, and SQLite via database/sql.
type SQLService struct {
	db      *sql.DB
	dialect string
	ownsDB  bool
}

// runRow is the database shape of a run. History, pending requirements,
// and metadata travel as JSON columns.
type runRow struct {
	ID            string
	SessionID     string
	AgentName     string
	State         string
	StatusMessage string
	StatusError   string
	History       string
	Pending       string
	Metadata      string
	StatusAt      time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const createRunsTableSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id VARCHAR(255) PRIMARY KEY,
    session_id VARCHAR(255) NOT NULL,
    agent_name VARCHAR(255) NOT NULL,
    state VARCHAR(50) NOT NULL,
    status_message TEXT,
    status_error TEXT,
    history TEXT,
    pending TEXT,
    metadata TEXT,
    status_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_session_id ON runs(session_id);
CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
CREATE INDEX IF NOT EXISTS idx_runs_updated_at ON runs(updated_at);
`

// NewSQLService creates a SQL-backed run service on an open connection.
func NewSQLService(db *sql.DB, dialect string) (*SQLService, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLService{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// NewSQLServiceFromConfig opens a database from configuration and creates
// a SQL run service owning the connection.
func NewSQLServiceFromConfig(cfg *config.DatabaseConfig) (*SQLService, error) {
	db, dialect, err := config.OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}

	s, err := NewSQLService(db, dialect)
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

	if _, err := s.db.ExecContext(ctx, createRunsTableSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders for postgres.
func (s *SQLService) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// Create creates a new run.
func (s *SQLService) Create(ctx context.Context, sessionID, agentName string) (*Run, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	r := New(sessionID, agentName)
	row, err := runToRow(r)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize run: %w", err)
	}

	query := s.rebind(`
INSERT INTO runs (id, session_id, agent_name, state, status_message, status_error, history, pending, metadata, status_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = s.db.ExecContext(ctx, query,
		row.ID, row.SessionID, row.AgentName, row.State,
		row.StatusMessage, row.StatusError,
		row.History, row.Pending, row.Metadata,
		row.StatusAt, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	return r, nil
}

// Get retrieves a run by ID.
func (s *SQLService) Get(ctx context.Context, runID string) (*Run, error) {
	query := s.rebind(`
SELECT id, session_id, agent_name, state, status_message, status_error, history, pending, metadata, status_at, created_at, updated_at
FROM runs
WHERE id = ?`)

	var row runRow
	err := s.db.QueryRowContext(ctx, query, runID).Scan(
		&row.ID, &row.SessionID, &row.AgentName, &row.State,
		&row.StatusMessage, &row.StatusError,
		&row.History, &row.Pending, &row.Metadata,
		&row.StatusAt, &row.CreatedAt, &row.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	return rowToRun(&row)
}

// Update saves run changes, replacing the stored row.
func (s *SQLService) Update(ctx context.Context, run *Run) error {
	run.UpdatedAt = time.Now()
	row, err := runToRow(run)
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}

	query := s.rebind(`
UPDATE runs
SET state = ?, status_message = ?, status_error = ?, history = ?, pending = ?, metadata = ?, status_at = ?, updated_at = ?
WHERE id = ?`)

	res, err := s.db.ExecContext(ctx, query,
		row.State, row.StatusMessage, row.StatusError,
		row.History, row.Pending, row.Metadata,
		row.StatusAt, row.UpdatedAt, row.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Cancel cancels a non-terminal run.
func (s *SQLService) Cancel(ctx context.Context, runID string) error {
	r, err := s.Get(ctx, runID)
	if err != nil {
		return err
	}
	if r.Status.State.IsTerminal() {
		return ErrRunTerminal
	}

	r.SetStatus(StateCanceled, "", "")
	return s.Update(ctx, r)
}

// List lists runs for a session, newest first.
func (s *SQLService) List(ctx context.Context, sessionID string) ([]*Run, error) {
	query := s.rebind(`
SELECT id, session_id, agent_name, state, status_message, status_error, history, pending, metadata, status_at, created_at, updated_at
FROM runs
WHERE session_id = ?
ORDER BY created_at DESC, id DESC`)

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var result []*Run
	for rows.Next() {
		var row runRow
		err := rows.Scan(
			&row.ID, &row.SessionID, &row.AgentName, &row.State,
			&row.StatusMessage, &row.StatusError,
			&row.History, &row.Pending, &row.Metadata,
			&row.StatusAt, &row.CreatedAt, &row.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r, err := rowToRun(&row)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize run: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Close closes the database when this service owns it.
func (s *SQLService) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func runToRow(r *Run) (*runRow, error) {
	historyData := []byte("[]")
	if len(r.History) > 0 {
		var err error
		historyData, err = json.Marshal(r.History)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal history: %w", err)
		}
	}

	pendingData := []byte("[]")
	if len(r.PendingRequirements) > 0 {
		var err error
		pendingData, err = json.Marshal(r.PendingRequirements)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pending requirements: %w", err)
		}
	}

	metadataData, err := json.Marshal(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return &runRow{
		ID:            r.ID,
		SessionID:     r.SessionID,
		AgentName:     r.AgentName,
		State:         string(r.Status.State),
		StatusMessage: r.Status.Message,
		StatusError:   r.Status.Error,
		History:       string(historyData),
		Pending:       string(pendingData),
		Metadata:      string(metadataData),
		StatusAt:      r.Status.Timestamp,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

func rowToRun(row *runRow) (*Run, error) {
	r := &Run{
		ID:        row.ID,
		SessionID: row.SessionID,
		AgentName: row.AgentName,
		Status: Status{
			State:     State(row.State),
			Message:   row.StatusMessage,
			Error:     row.StatusError,
			Timestamp: row.StatusAt,
		},
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}

	if row.History != "" && row.History != "[]" {
		if err := json.Unmarshal([]byte(row.History), &r.History); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history: %w", err)
		}
	}
	if row.Pending != "" && row.Pending != "[]" {
		if err := json.Unmarshal([]byte(row.Pending), &r.PendingRequirements); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending requirements: %w", err)
		}
	}
	if row.Metadata != "" && row.Metadata != "null" {
		if err := json.Unmarshal([]byte(row.Metadata), &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}

	return r, nil
}

var _ Service = (*SQLService)(nil)
