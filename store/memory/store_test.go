package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/memory"
)

func TestReadWrite(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	all, err := s.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, s.Write(ctx, "readings", 3))
	require.NoError(t, s.Write(ctx, "readings", 4))
	require.NoError(t, s.Write(ctx, "manual_interpretations", 1))

	all, err = s.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"readings": 4, "manual_interpretations": 1}, all)
	assert.Equal(t, store.DefaultNamespace, s.Namespace())
}

func TestCloseAndReopen(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Write(ctx, "readings", 2))
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(ctx), tally.ErrStoreClosed)
	assert.ErrorIs(t, s.Write(ctx, "readings", 3), tally.ErrStoreClosed)

	s.Reopen()
	v, ok := s.Get("readings")
	require.True(t, ok)
	assert.Equal(t, int64(2), v)
	assert.NoError(t, s.Ping(ctx))
}

func TestFailWith(t *testing.T) {
	ctx := context.Background()
	s := memory.New(store.WithNamespace("profile-a"))
	boom := errors.New("boom")

	s.FailWith(boom)
	_, err := s.ReadAll(ctx)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Write(ctx, "readings", 1), boom)

	s.FailWith(nil)
	assert.NoError(t, s.Write(ctx, "readings", 1))
}
