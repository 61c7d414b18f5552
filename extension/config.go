package extension

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/tally"
	"github.com/xraph/tally/store"
)

// Backend names accepted in Config.Backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the tally extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tally" or "tally" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Period is the counting window, "monthly" (default) or "yearly".
	Period string `json:"period" mapstructure:"period" yaml:"period" validate:"omitempty,oneof=monthly yearly"`

	// ApproachingThreshold is the share of a limit at which a feature counts
	// as approaching it, in (0, 1]. Zero means the default of 0.8.
	ApproachingThreshold float64 `json:"approaching_threshold" mapstructure:"approaching_threshold" yaml:"approaching_threshold" validate:"omitempty,gt=0,lte=1"`

	// PersistTimeout bounds each write to the store (default: 5s).
	PersistTimeout time.Duration `json:"persist_timeout" mapstructure:"persist_timeout" yaml:"persist_timeout" validate:"gte=0"`

	// PolicyFile is a YAML, JSON or TOML file holding the limit table. The
	// built-in table is used when empty.
	PolicyFile string `json:"policy_file" mapstructure:"policy_file" yaml:"policy_file" validate:"omitempty,file"`

	// Namespace partitions the store between usage profiles (default: "default").
	Namespace string `json:"namespace" mapstructure:"namespace" yaml:"namespace"`

	// Backend selects the store built when none is set programmatically.
	Backend string `json:"backend" mapstructure:"backend" yaml:"backend" validate:"omitempty,oneof=memory redis"`

	// RedisAddr is the host:port of the Redis server for the redis backend.
	RedisAddr string `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr" validate:"required_if=Backend redis"`

	// LenientFeatures treats unknown features as denied instead of failing.
	LenientFeatures bool `json:"lenient_features" mapstructure:"lenient_features" yaml:"lenient_features"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Period:               "monthly",
		ApproachingThreshold: tally.DefaultApproachingThreshold,
		PersistTimeout:       5 * time.Second,
		Namespace:            store.DefaultNamespace,
		Backend:              BackendMemory,
	}
}

// Validate checks the struct tags and the namespace. Every problem is
// reported as a tally.ValidationError inside a tally.MultiError.
func (c Config) Validate() error {
	var errs tally.MultiError

	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs.Add(tally.ValidationError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("failed %q check (value %v)", fe.Tag(), fe.Value()),
			})
		}
	}

	if c.Namespace != "" {
		if err := store.ValidateNamespace(c.Namespace); err != nil {
			errs.Add(tally.ValidationError{Field: "Namespace", Message: err.Error()})
		}
	}

	return errs.ErrOrNil()
}
