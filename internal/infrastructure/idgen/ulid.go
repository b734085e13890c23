// Package idgen issues identifiers for journal entries, movements, open
// items and outbox rows.
package idgen

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULID issues lexically sortable IDs. IDs from one generator strictly
// increase, even within a millisecond or when the clock steps back.
type ULID struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy *ulid.MonotonicEntropy
	last    uint64
}

// NewULID creates a generator on the wall clock and crypto/rand.
func NewULID() *ULID {
	return NewULIDWithSource(time.Now, rand.Reader)
}

// NewULIDWithSource creates a generator on the given clock and entropy.
func NewULIDWithSource(now func() time.Time, entropy io.Reader) *ULID {
	return &ULID{now: now, entropy: ulid.Monotonic(entropy, 0)}
}

// Generate returns a new 26 character ID.
func (g *ULID) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := max(ulid.Timestamp(g.now()), g.last)
	g.last = ms
	return ulid.MustNew(ms, g.entropy).String()
}

// Time returns the creation time encoded in id.
func Time(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
