// Package mongo persists usage counters in MongoDB via Grove ORM.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tally/store"
)

const colUsage = "tally_usage"

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
	ns  string
	now func() time.Time
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB, opts ...store.Option) *Store {
	cfg := store.NewConfig(opts...)
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
		ns:  cfg.Namespace,
		now: time.Now,
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Namespace returns the namespace this store reads and writes.
func (s *Store) Namespace() string { return s.ns }

// Migrate creates the usage collection indexes.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.mdb.Collection(colUsage).Indexes().CreateMany(ctx, migrationIndexes())
	if err != nil {
		return fmt.Errorf("tally/mongo: migrate %s indexes: %w", colUsage, err)
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
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"namespace": s.ns}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: read usage: %w", err)
	}

	out := make(map[string]int64, len(models))
	for _, m := range models {
		out[m.Key] = m.Value
	}
	return out, nil
}

// Write implements usage.Store.
func (s *Store) Write(ctx context.Context, key string, value int64) error {
	m := toUsageModel(s.ns, key, value, s.now().UTC())

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.DocID}).
		SetUpdate(bson.M{"$set": bson.M{
			"namespace":  m.Namespace,
			"usage_key":  m.Key,
			"value":      m.Value,
			"updated_at": m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: write %s: %w", key, err)
	}
	return nil
}

func migrationIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "namespace", Value: 1}, {Key: "usage_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "namespace", Value: 1}, {Key: "updated_at", Value: -1}}},
	}
}
