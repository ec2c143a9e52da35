// Package nodeid implements the 256-bit node identifiers used to address
// peers and to compute Kademlia XOR distance between them.
package nodeid

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/bits"
	"time"
)

// Size is the length of a NodeId in bytes (256 bits).
const Size = 32

// ID is an opaque 256-bit peer identifier.
type ID [Size]byte

// Generate derives a fresh ID from per-boot entropy: a 32-byte random seed
// followed by the current wall-clock time in nanoseconds, hashed with
// SHA-256. It is not meant to be predictable or reproducible across runs.
func Generate() (ID, error) {
	var seed [40]byte
	if _, err := rand.Read(seed[:32]); err != nil {
		return ID{}, fmt.Errorf("nodeid: read entropy: %w", err)
	}
	binary.BigEndian.PutUint64(seed[32:], uint64(time.Now().UnixNano()))
	return ID(sha256.Sum256(seed[:])), nil
}

// FromHex parses the 64-hex-character rendering of an ID.
func FromHex(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("nodeid: %w", err)
	}
	if len(b) != Size {
		return ID{}, fmt.Errorf("nodeid: want %d bytes, got %d", Size, len(b))
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

// FromBytes copies a 32-byte slice into an ID.
func FromBytes(b []byte) (ID, error) {
	if len(b) != Size {
		return ID{}, fmt.Errorf("nodeid: want %d bytes, got %d", Size, len(b))
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

func (id ID) String() string { return hex.EncodeToString(id[:]) }

// Short renders the first 8 hex characters, for log lines.
func (id ID) Short() string { return hex.EncodeToString(id[:4]) }

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id == ID{} }

// Distance returns the bitwise XOR of a and b, interpreted as the
// Kademlia distance metric.
func Distance(a, b ID) ID {
	var d ID
	for i := range d {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// BucketIndex returns floor(log2(distance(a, b))) in [0, 255]. Identical
// ids have no defined bucket and BucketIndex returns -1.
func BucketIndex(a, b ID) int {
	d := Distance(a, b)
	for i, byt := range d {
		if byt == 0 {
			continue
		}
		// byte i holds the highest set bit; bit position within the byte is
		// bits.Len8(byt)-1, counting from the most significant byte.
		return (Size-1-i)*8 + bits.Len8(byt) - 1
	}
	return -1
}

// Less reports whether distance(self, a) < distance(self, b), i.e. a is
// closer to self than b is.
func Less(self, a, b ID) bool {
	da, db := Distance(self, a), Distance(self, b)
	for i := range da {
		if da[i] != db[i] {
			return da[i] < db[i]
		}
	}
	return false
}
