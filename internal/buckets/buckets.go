// Package buckets implements the Kademlia-style routing table: 256 buckets
// indexed by XOR distance from the local node id, each holding up to B
// peers ordered by recency of verification.
//
// Derived from the bucket bookkeeping in the klaytn fork of
// go-ethereum's p2p/discover/table.go, adapted from a UDP-bonded discovery
// table to the TCP-handshake-verified admission model of spec §4.7.
package buckets

import (
	"sort"
	"sync"
	"time"

	"github.com/paseka1/Concordium/internal/nodeid"
	"github.com/paseka1/Concordium/internal/peer"
)

// K is the number of buckets (one per possible XOR-distance bit length).
const K = 256

// B is the maximum number of entries held in a single bucket.
const B = 20

// Entry is one routing-table row.
type Entry struct {
	Peer       peer.Peer
	Networks   peer.NetworkSet
	InsertedAt time.Time
	LastSeen   time.Time
}

// Table is the reader-writer-locked Kademlia routing table for a local
// node identified by Self.
type Table struct {
	self Self

	mu      sync.RWMutex
	buckets [K][]*Entry
}

// Self reports the local node id the table measures distance against.
type Self interface {
	ID() nodeid.ID
}

type staticSelf nodeid.ID

func (s staticSelf) ID() nodeid.ID { return nodeid.ID(s) }

// New builds an empty table for the given local id.
func New(self nodeid.ID) *Table {
	return &Table{self: staticSelf(self)}
}

func (t *Table) bucketIndex(id nodeid.ID) int {
	idx := nodeid.BucketIndex(t.self.ID(), id)
	if idx < 0 {
		// Distance to self: not routable, park in bucket 0 rather than panic.
		return 0
	}
	return idx
}

// Insert admits p into its bucket. If the bucket is full, the
// least-recently-seen entry is evicted if stale (older than staleAfter);
// otherwise the new peer is dropped. Returns true if p was admitted.
func (t *Table) Insert(p peer.Peer, networks peer.NetworkSet, now time.Time, staleAfter time.Duration) bool {
	idx := t.bucketIndex(p.ID)

	t.mu.Lock()
	defer t.mu.Unlock()

	list := t.buckets[idx]
	for i, e := range list {
		if e.Peer.ID == p.ID {
			e.Peer = p
			e.Networks = networks
			e.LastSeen = now
			t.bump(idx, i)
			return true
		}
	}

	entry := &Entry{Peer: p, Networks: networks, InsertedAt: now, LastSeen: now}
	if len(list) < B {
		t.buckets[idx] = append(list, entry)
		return true
	}

	front := list[0]
	if now.Sub(front.LastSeen) > staleAfter {
		list[0] = entry
		t.bump(idx, 0)
		return true
	}
	return false
}

// bump moves the entry at position i to the back (most-recently-verified
// end) of the bucket list; callers must hold t.mu.
func (t *Table) bump(idx, i int) {
	list := t.buckets[idx]
	e := list[i]
	copy(list[i:], list[i+1:])
	list[len(list)-1] = e
}

// Remove drops the entry for id, if present.
func (t *Table) Remove(id nodeid.ID) {
	idx := t.bucketIndex(id)

	t.mu.Lock()
	defer t.mu.Unlock()

	list := t.buckets[idx]
	for i, e := range list {
		if e.Peer.ID == id {
			t.buckets[idx] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Touch refreshes the last-seen timestamp of id without altering its
// bucket position ordering expectations beyond moving it to the back.
func (t *Table) Touch(id nodeid.ID, now time.Time) {
	idx := t.bucketIndex(id)

	t.mu.Lock()
	defer t.mu.Unlock()

	list := t.buckets[idx]
	for i, e := range list {
		if e.Peer.ID == id {
			e.LastSeen = now
			t.bump(idx, i)
			return
		}
	}
}

// Closest returns up to k peers ordered by ascending XOR distance to
// target, starting from target's own bucket and expanding outward.
func (t *Table) Closest(target nodeid.ID, k int) []peer.Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	center := t.bucketIndex(target)
	var candidates []peer.Peer

	for radius := 0; radius <= K && len(candidates) < k*4; radius++ {
		if radius == 0 {
			candidates = append(candidates, peersOf(t.buckets[center])...)
			continue
		}
		if center-radius >= 0 {
			candidates = append(candidates, peersOf(t.buckets[center-radius])...)
		}
		if center+radius < K {
			candidates = append(candidates, peersOf(t.buckets[center+radius])...)
		}
		if center-radius < 0 && center+radius >= K {
			break
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return nodeid.Less(target, candidates[i].ID, candidates[j].ID)
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

func peersOf(list []*Entry) []peer.Peer {
	out := make([]peer.Peer, len(list))
	for i, e := range list {
		out[i] = e.Peer
	}
	return out
}

// CleanStale evicts entries whose LastSeen is older than threshold,
// subject to leaving at least minPerBucket entries in any bucket
// (bootstrapper-only operation per spec §4.7).
func (t *Table) CleanStale(now time.Time, threshold time.Duration, minPerBucket int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for i, list := range t.buckets {
		if len(list) <= minPerBucket {
			continue
		}
		removable := len(list) - minPerBucket

		byAge := append([]*Entry(nil), list...)
		sort.Slice(byAge, func(a, b int) bool { return byAge[a].LastSeen.Before(byAge[b].LastSeen) })

		toEvict := make(map[*Entry]struct{}, removable)
		for _, e := range byAge {
			if len(toEvict) >= removable {
				break
			}
			if now.Sub(e.LastSeen) > threshold {
				toEvict[e] = struct{}{}
			}
		}
		if len(toEvict) == 0 {
			continue
		}
		kept := list[:0:0]
		for _, e := range list {
			if _, drop := toEvict[e]; drop {
				evicted++
				continue
			}
			kept = append(kept, e)
		}
		t.buckets[i] = kept
	}
	return evicted
}

// Len returns the total number of entries across all buckets.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, list := range t.buckets {
		n += len(list)
	}
	return n
}

// All returns a snapshot of every entry's peer, for maintenance sweeps.
func (t *Table) All() []peer.Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []peer.Peer
	for _, list := range t.buckets {
		out = append(out, peersOf(list)...)
	}
	return out
}
