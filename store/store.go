// Package store defines the unified persistence interface implemented by the
// storage backends under store/.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/tally/usage"
)

// Store is a usage.Store with lifecycle management.
type Store interface {
	usage.Store

	// Migrate creates the tables, indexes or keys the backend needs.
	Migrate(ctx context.Context) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases the backend's resources.
	Close() error
}

// DefaultNamespace is used when no namespace is configured.
const DefaultNamespace = "default"

// Config holds the options shared by every backend.
type Config struct {
	// Namespace partitions one database between several usage profiles.
	Namespace string
}

// Option configures a backend.
type Option func(*Config)

// WithNamespace stores counters under ns instead of DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(c *Config) { c.Namespace = ns }
}

// NewConfig applies opts over the defaults.
func NewConfig(opts ...Option) Config {
	c := Config{Namespace: DefaultNamespace}
	for _, opt := range opts {
		opt(&c)
	}
	c.Namespace = strings.TrimSpace(c.Namespace)
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	return c
}

// ValidateNamespace rejects namespaces that cannot be embedded in a key.
func ValidateNamespace(ns string) error {
	if ns == "" {
		return errors.New("store: namespace is empty")
	}
	if strings.ContainsAny(ns, " \t\n{}") {
		return fmt.Errorf("store: namespace %q contains whitespace or braces", ns)
	}
	return nil
}
