// Package sqlite persists usage counters in SQLite via Grove ORM.
package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tally/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
	ns  string
	now func() time.Time
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB, opts ...store.Option) *Store {
	cfg := store.NewConfig(opts...)
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
		ns:  cfg.Namespace,
		now: time.Now,
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Namespace returns the namespace this store reads and writes.
func (s *Store) Namespace() string { return s.ns }

// Migrate creates the usage table using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("tally/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tally/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReadAll implements usage.Store.
func (s *Store) ReadAll(ctx context.Context) (map[string]int64, error) {
	var models []usageModel
	err := s.sdb.NewSelect(&models).
		Where("namespace = ?", s.ns).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/sqlite: read usage: %w", err)
	}

	out := make(map[string]int64, len(models))
	for _, m := range models {
		out[m.Key] = m.Value
	}
	return out, nil
}

// Writes are absolute, so a conflicting row takes the new value.
const (
	upsertConflict     = "(namespace, usage_key) DO UPDATE"
	upsertSetValue     = "value = EXCLUDED.value"
	upsertSetUpdatedAt = "updated_at = EXCLUDED.updated_at"
)

// Write implements usage.Store.
func (s *Store) Write(ctx context.Context, key string, value int64) error {
	m := toUsageModel(s.ns, key, value, s.now().UTC())
	_, err := s.sdb.NewInsert(m).
		OnConflict(upsertConflict).
		Set(upsertSetValue).
		Set(upsertSetUpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/sqlite: write %s: %w", key, err)
	}
	return nil
}
