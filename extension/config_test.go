package extension

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/policy"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/store/redis"
	"github.com/xraph/tally/tier"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"period", func(c *Config) { c.Period = "weekly" }, "Period"},
		{"threshold", func(c *Config) { c.ApproachingThreshold = 1.5 }, "ApproachingThreshold"},
		{"negative threshold", func(c *Config) { c.ApproachingThreshold = -0.2 }, "ApproachingThreshold"},
		{"timeout", func(c *Config) { c.PersistTimeout = -time.Second }, "PersistTimeout"},
		{"backend", func(c *Config) { c.Backend = "etcd" }, "Backend"},
		{"redis addr", func(c *Config) { c.Backend = BackendRedis }, "RedisAddr"},
		{"namespace", func(c *Config) { c.Namespace = "a b" }, "Namespace"},
		{"policy file", func(c *Config) { c.PolicyFile = filepath.Join(t.TempDir(), "missing.yaml") }, "PolicyFile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mut(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tally.ErrInvalidInput)

			var verr tally.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestUnsetThresholdUsesDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApproachingThreshold = 0
	require.NoError(t, cfg.Validate())

	e := New(WithConfig(cfg))
	e.config = mergeWithDefaults(e.config)
	require.NoError(t, e.build())
	assert.Equal(t, tally.DefaultApproachingThreshold, e.Tracker().Threshold())
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{Namespace: "user-1"})

	assert.Equal(t, "monthly", cfg.Period)
	assert.Equal(t, tally.DefaultApproachingThreshold, cfg.ApproachingThreshold)
	assert.Equal(t, 5*time.Second, cfg.PersistTimeout)
	assert.Equal(t, "user-1", cfg.Namespace)
	assert.Equal(t, BackendMemory, cfg.Backend)
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{Period: "yearly", Namespace: "from-file"}
	prog := Config{
		Period:          "monthly",
		Namespace:       "from-code",
		PolicyFile:      "limits.yaml",
		DisableMigrate:  true,
		LenientFeatures: true,
		Backend:         BackendRedis,
		RedisAddr:       "localhost:6379",
	}

	cfg := mergeConfigurations(yaml, prog)

	assert.Equal(t, "yearly", cfg.Period)
	assert.Equal(t, "from-file", cfg.Namespace)
	assert.Equal(t, "limits.yaml", cfg.PolicyFile)
	assert.True(t, cfg.DisableMigrate)
	assert.True(t, cfg.LenientFeatures)
	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestBuildWithDefaults(t *testing.T) {
	e := New()
	e.config = mergeWithDefaults(e.config)
	require.NoError(t, e.build())

	require.NotNil(t, e.Tracker())
	assert.IsType(t, &memory.Store{}, e.store)

	ctx := context.Background()
	require.NoError(t, e.Tracker().Start(ctx))
	t.Cleanup(func() { _ = e.Tracker().Stop(ctx) })

	ok, err := e.Tracker().IsWithinLimit(ctx, tier.Seeker, policy.FeatureReadings)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, e.Health(ctx))
}

func TestBuildRedisBackend(t *testing.T) {
	e := New(WithRedis("127.0.0.1:6379"), WithNamespace("user-1"))
	e.config = mergeWithDefaults(e.config)
	require.NoError(t, e.build())

	s, ok := e.store.(*redis.Store)
	require.True(t, ok)
	assert.Equal(t, "user-1", s.Namespace())
	_ = s.Close()
}

func TestBuildLoadsPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`limits:
  seeker:
    readings: 2
  mystic:
    readings: -1
  oracle:
    readings: -1
`), 0o600))

	e := New(WithPolicyFile(path), WithApproachingThreshold(0.5))
	e.config = mergeWithDefaults(e.config)
	require.NoError(t, e.build())

	assert.Equal(t, []string{policy.FeatureReadings}, e.Tracker().Policy().Features())
	assert.Equal(t, 0.5, e.Tracker().Threshold())
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	e := New(WithApproachingThreshold(2))
	e.config = mergeWithDefaults(e.config)
	assert.ErrorIs(t, e.build(), tally.ErrInvalidInput)
	assert.Nil(t, e.Tracker())
}

func TestStartBeforeRegister(t *testing.T) {
	assert.Error(t, New().Start(context.Background()))
	assert.Error(t, New().Health(context.Background()))
}
