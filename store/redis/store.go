// Package redis persists usage counters in a Redis hash, one hash per
// namespace.
package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/tally/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store on a Redis hash at tally:{namespace}:usage.
type Store struct {
	client goredis.UniversalClient
	ns     string
	key    string
}

// New creates a Redis store. The store owns client and closes it on Close.
func New(client goredis.UniversalClient, opts ...store.Option) *Store {
	cfg := store.NewConfig(opts...)
	return &Store{
		client: client,
		ns:     cfg.Namespace,
		key:    HashKey(cfg.Namespace),
	}
}

// HashKey returns the hash holding the counters of ns.
func HashKey(ns string) string {
	return "tally:{" + ns + "}:usage"
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient { return s.client }

// Namespace returns the namespace this store reads and writes.
func (s *Store) Namespace() string { return s.ns }

// Migrate is a no-op; the hash is created on first write.
func (s *Store) Migrate(context.Context) error { return nil }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("tally/redis: ping: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// ReadAll implements usage.Store. Fields that do not hold an integer are
// skipped.
func (s *Store) ReadAll(ctx context.Context) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("tally/redis: read usage: %w", err)
	}

	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// Write implements usage.Store.
func (s *Store) Write(ctx context.Context, key string, value int64) error {
	if err := s.client.HSet(ctx, s.key, key, value).Err(); err != nil {
		return fmt.Errorf("tally/redis: write %s: %w", key, err)
	}
	return nil
}
