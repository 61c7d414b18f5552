// Package postgres persists usage counters in PostgreSQL via Grove ORM.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tally/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db  *grove.DB
	pg  *pgdriver.PgDB
	ns  string
	now func() time.Time
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB, opts ...store.Option) *Store {
	cfg := store.NewConfig(opts...)
	return &Store{
		db:  db,
		pg:  pgdriver.Unwrap(db),
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
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("tally/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tally/postgres: migration failed: %w", err)
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
	err := s.pg.NewSelect(&models).
		Where("namespace = $1", s.ns).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: read usage: %w", err)
	}

	out := make(map[string]int64, len(models))
	for _, m := range models {
		out[m.Key] = m.Value
	}
	return out, nil
}

// Write implements usage.Store. The upsert stores the absolute value, so a
// retried write converges on the same row.
func (s *Store) Write(ctx context.Context, key string, value int64) error {
	m := toUsageModel(s.ns, key, value, s.now().UTC())
	_, err := s.pg.NewInsert(m).
		OnConflict("(namespace, usage_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: write %s: %w", key, err)
	}
	return nil
}
