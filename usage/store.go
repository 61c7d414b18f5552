package usage

import "context"

// LastResetKey is the reserved key holding the last-reset period start as Unix
// seconds. Feature keys may never start with an underscore.
const LastResetKey = "_last_reset"

// Store is the key-value persistence collaborator of a Ledger. Values are
// absolute counts, so replaying a write is harmless.
type Store interface {
	// ReadAll returns every persisted key, including LastResetKey when set.
	ReadAll(ctx context.Context) (map[string]int64, error)
	// Write stores value under key, replacing any previous value.
	Write(ctx context.Context, key string, value int64) error
}
