// Package id defines the TypeID-based identifiers used by tally.
//
// IDs are K-sortable (UUIDv7-based) and render as "prefix_suffix", so an
// event ID read from a log line says what kind of thing it names.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the kind of thing an ID names.
type Prefix string

const (
	PrefixUsageEvent Prefix = "uevt"  // Change notification
	PrefixObserver   Prefix = "obs"   // Event subscription handle
	PrefixAudit      Prefix = "audit" // Audit record
)

// ID wraps a TypeID. The zero value is Nil.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates an ID with the given prefix. It panics on an invalid prefix.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses "prefix_suffix" into an ID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and rejects it unless its prefix is expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

// NewUsageEventID generates an event ID.
func NewUsageEventID() ID { return New(PrefixUsageEvent) }

// NewObserverID generates a subscription handle ID.
func NewObserverID() ID { return New(PrefixObserver) }

// NewAuditID generates an audit record ID.
func NewAuditID() ID { return New(PrefixAudit) }

// ParseUsageEventID parses s and validates the "uevt" prefix.
func ParseUsageEventID(s string) (ID, error) { return ParseWithPrefix(s, PrefixUsageEvent) }

// ParseObserverID parses s and validates the "obs" prefix.
func ParseObserverID(s string) (ID, error) { return ParseWithPrefix(s, PrefixObserver) }

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
