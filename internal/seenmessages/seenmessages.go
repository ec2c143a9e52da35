// Package seenmessages implements the bounded LRU set of recently observed
// broadcast message ids used to deduplicate re-broadcast traffic.
package seenmessages

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/google/uuid"
)

// Size is the 128-bit message id width in bytes.
const Size = 16

// ID is a broadcast message identifier. Its width matches a UUID exactly,
// so a freshly originated broadcast gets its id from NewID rather than a
// hand-rolled random source.
type ID [Size]byte

// NewID mints a fresh random message id (UUIDv4 bit layout, used here only
// for its 128 bits of entropy).
func NewID() ID {
	return ID(uuid.New())
}

// DefaultCapacity is the recommended LRU size (spec §3, §9 open question).
const DefaultCapacity = 16384

// Set is a thread-safe bounded LRU of message ids.
type Set struct {
	cache *lru.Cache[ID, struct{}]
}

// New builds a Set with the given capacity. capacity <= 0 uses DefaultCapacity.
func New(capacity int) *Set {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New[ID, struct{}](capacity)
	if err != nil {
		// Only returns an error for a non-positive size, which we already
		// guarded against above.
		panic(err)
	}
	return &Set{cache: c}
}

// Contains reports whether id has already been seen.
func (s *Set) Contains(id ID) bool {
	return s.cache.Contains(id)
}

// Insert records id as seen. It returns true if this is the first time the
// id has been observed, i.e. the caller should process/forward the message.
func (s *Set) Insert(id ID) bool {
	if s.cache.Contains(id) {
		s.cache.Get(id) // bump recency
		return false
	}
	s.cache.Add(id, struct{}{})
	return true
}

// Len reports the current number of tracked ids.
func (s *Set) Len() int { return s.cache.Len() }
