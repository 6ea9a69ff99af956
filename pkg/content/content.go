// Package content resolves display text for chosen actions. Text authoring
// lives outside the engine; this package only defines the lookup contract.
package content

import "sync"

// Bucket is a coarse band of resistance.
type Bucket string

const (
	BucketHigh   Bucket = "high"
	BucketMedium Bucket = "medium"
	BucketLow    Bucket = "low"
)

// Any matches every location or bucket in a Table.
const Any = "*"

// BucketFor maps a normalized resistance to its bucket.
func BucketFor(resistance float64) Bucket {
	switch {
	case resistance > 0.8:
		return BucketHigh
	case resistance > 0.3:
		return BucketMedium
	default:
		return BucketLow
	}
}

// Key identifies one piece of text.
type Key struct {
	ActionID string `json:"action_id" yaml:"action"`
	Location string `json:"location" yaml:"location"`
	Bucket   Bucket `json:"bucket" yaml:"bucket"`
}

// Provider returns text for a key. Implementations never fail; unknown keys
// resolve to some non-empty placeholder.
type Provider interface {
	Text(key Key) string
}

// Null returns the action id as text.
type Null struct{}

func (Null) Text(key Key) string {
	return key.ActionID
}

var _ Provider = Null{}

// Table is an in-memory provider with wildcard fallbacks. Lookups try the
// exact key, then any location, then any location and bucket, then the
// action id itself.
type Table struct {
	mu      sync.RWMutex
	entries map[Key]string
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[Key]string)}
}

// Set stores text for a key. Empty location or bucket mean Any.
func (t *Table) Set(key Key, text string) {
	if key.Location == "" {
		key.Location = Any
	}
	if key.Bucket == "" {
		key.Bucket = Any
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = text
}

// Len returns the number of stored entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Table) Text(key Key) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	candidates := []Key{
		key,
		{ActionID: key.ActionID, Location: Any, Bucket: key.Bucket},
		{ActionID: key.ActionID, Location: key.Location, Bucket: Any},
		{ActionID: key.ActionID, Location: Any, Bucket: Any},
	}
	for _, k := range candidates {
		if text, ok := t.entries[k]; ok {
			return text
		}
	}
	return key.ActionID
}

var _ Provider = (*Table)(nil)
