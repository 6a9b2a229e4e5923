package model

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDSource generates event IDs. IDs are ULIDs: a millisecond timestamp
// followed by random bits, monotonic within the same millisecond.
type IDSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewIDSource creates an IDSource reading the wall clock.
func NewIDSource() *IDSource {
	return &IDSource{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// New returns a fresh ID.
func (s *IDSource) New() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}
