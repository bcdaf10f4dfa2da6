package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/reins-ai/reins/pkg/config"

	// Database drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore persists requirements in PostgreSQL, MySQL, or SQLite via
// database/sql. Status transitions are compare-and-set updates, so the
// at-most-once execution guarantee holds across processes sharing a
// database.
type SQLStore struct {
	db      *sql.DB
	dialect string // "postgres", "mysql", or "sqlite"
	ownsDB  bool
}

const createRequirementsTableSQL = `
CREATE TABLE IF NOT EXISTS requirements (
    id VARCHAR(255) PRIMARY KEY,
    run_id VARCHAR(255) NOT NULL,
    tool VARCHAR(255) NOT NULL,
    call_id VARCHAR(255) NOT NULL DEFAULT '',
    args TEXT,
    status VARCHAR(50) NOT NULL,
    value TEXT,
    reason TEXT,
    created_at TIMESTAMP NOT NULL,
    decided_at TIMESTAMP NULL,
    resolved_at TIMESTAMP NULL
);

CREATE INDEX IF NOT EXISTS idx_requirements_run_id ON requirements(run_id);
CREATE INDEX IF NOT EXISTS idx_requirements_status ON requirements(status);
`

// NewSQLStore creates a requirement store over an existing connection.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// NewSQLStoreFromConfig opens a connection from configuration and creates
// the store. The store owns the connection and closes it on Close.
func NewSQLStoreFromConfig(cfg *config.DatabaseConfig) (*SQLStore, error) {
	db, dialect, err := config.OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}

	s, err := NewSQLStore(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, createRequirementsTableSQL)
	return err
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

func (s *SQLStore) Put(ctx context.Context, r *Requirement) error {
	args, err := json.Marshal(r.Action.Args)
	if err != nil {
		return fmt.Errorf("failed to serialize args: %w", err)
	}

	query := s.rebind(`
INSERT INTO requirements (id, run_id, tool, call_id, args, status, value, reason, created_at, decided_at, resolved_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.RunID, r.Action.Tool, r.Action.CallID, string(args), string(r.Status),
		"", r.Reason, r.CreatedAt, nullTime(r.DecidedAt), nullTime(r.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert requirement: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Requirement, error) {
	query := s.rebind(`
SELECT id, run_id, tool, call_id, args, status, value, reason, created_at, decided_at, resolved_at
FROM requirements
WHERE id = ?
`)
	row := s.db.QueryRowContext(ctx, query, id)
	r, err := scanRequirement(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query requirement: %w", err)
	}
	return r, nil
}

func (s *SQLStore) Transition(ctx context.Context, id string, from, to Status, update func(*Requirement)) (*Requirement, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != from {
		return current, ErrStatusConflict
	}

	next := current.Clone()
	if update != nil {
		update(next)
	}
	next.Status = to

	value, err := json.Marshal(next.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize value: %w", err)
	}

	query := s.rebind(`
UPDATE requirements
SET status = ?, value = ?, reason = ?, decided_at = ?, resolved_at = ?
WHERE id = ? AND status = ?
`)
	res, err := s.db.ExecContext(ctx, query,
		string(to), string(value), next.Reason,
		nullTime(next.DecidedAt), nullTime(next.ResolvedAt),
		id, string(from),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update requirement: %w", err)
	}

	// Zero rows means another writer won the transition.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		current, gerr := s.Get(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return current, ErrStatusConflict
	}
	return next, nil
}

func (s *SQLStore) ListPending(ctx context.Context, runID string) ([]*Requirement, error) {
	query := `
SELECT id, run_id, tool, call_id, args, status, value, reason, created_at, decided_at, resolved_at
FROM requirements
WHERE status = ?
`
	args := []any{string(StatusPending)}
	if runID != "" {
		query += " AND run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requirements: %w", err)
	}
	defer rows.Close()

	var out []*Requirement
	for rows.Next() {
		r, err := scanRequirement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan requirement: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRequirement(sc scanner) (*Requirement, error) {
	var (
		r          Requirement
		argsJSON   string
		valueJSON  string
		status     string
		decidedAt  sql.NullTime
		resolvedAt sql.NullTime
	)
	err := sc.Scan(&r.ID, &r.RunID, &r.Action.Tool, &r.Action.CallID, &argsJSON, &status,
		&valueJSON, &r.Reason, &r.CreatedAt, &decidedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	r.Status = Status(status)
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &r.Action.Args); err != nil {
			return nil, fmt.Errorf("failed to deserialize args: %w", err)
		}
	}
	if valueJSON != "" && valueJSON != "null" {
		if err := json.Unmarshal([]byte(valueJSON), &r.Value); err != nil {
			return nil, fmt.Errorf("failed to deserialize value: %w", err)
		}
	}
	if decidedAt.Valid {
		r.DecidedAt = decidedAt.Time
	}
	if resolvedAt.Valid {
		r.ResolvedAt = resolvedAt.Time
	}
	return &r, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

var _ Store = (*SQLStore)(nil)
