package config

import (
	"sync"

	"database/sql"
)

// DBPool shares database connections between stores configured with the
// same DSN, so the session, run, and requirement stores of one deployment
// use a single pool.
type DBPool struct {
	mu    sync.Mutex
	pools map[string]*sql.DB
}

// NewDBPool creates a new database pool manager.
func NewDBPool() *DBPool {
	return &DBPool{pools: make(map[string]*sql.DB)}
}

// Get returns the shared connection for the config, opening it on first
// use. The returned dialect is normalized for query building.
func (p *DBPool) Get(cfg *DatabaseConfig) (*sql.DB, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dsn := cfg.DSN()
	if db, ok := p.pools[dsn]; ok {
		return db, cfg.Dialect(), nil
	}

	db, dialect, err := OpenDatabase(cfg)
	if err != nil {
		return nil, "", err
	}
	p.pools[dsn] = db
	return db, dialect, nil
}

// Close closes all pooled connections.
func (p *DBPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for dsn, db := range p.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.pools, dsn)
	}
	return firstErr
}
