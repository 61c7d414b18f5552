package usage

import (
	"errors"
	"fmt"
)

// ErrPersistence is matched by every PersistenceError.
var ErrPersistence = errors.New("tally: persistence failure")

// PersistenceError wraps a failed read or write against the Store. The
// in-memory ledger remains authoritative when one occurs.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("tally: persistence %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("tally: persistence %s %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrPersistence) succeed.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
