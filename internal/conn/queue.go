package conn

import (
	"sync"

	"github.com/paseka1/Concordium/internal/p2perr"
)

// DefaultOutboundBytesCap is the default backpressure threshold (spec §4.4).
const DefaultOutboundBytesCap = 64 * 1024 * 1024

// OutboundQueue is the per-connection two-priority FIFO deque pair. High
// priority fully drains before Normal is touched; FIFO order is preserved
// within each priority class.
type OutboundQueue struct {
	mu        sync.Mutex
	high      [][]byte
	normal    [][]byte
	totalSize int
	cap       int
}

// NewOutboundQueue builds a queue with the given total byte cap; capacity
// <= 0 uses DefaultOutboundBytesCap.
func NewOutboundQueue(capacity int) *OutboundQueue {
	if capacity <= 0 {
		capacity = DefaultOutboundBytesCap
	}
	return &OutboundQueue{cap: capacity}
}

// Enqueue appends data to the back of the deque selected by priority. It
// returns a Backpressure error if the total queued bytes would exceed the
// cap; the caller must then drop or defer the write.
func (q *OutboundQueue) Enqueue(data []byte, priority Priority) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.totalSize+len(data) > q.cap {
		return p2perr.New(p2perr.Backpressure, "conn.OutboundQueue.Enqueue", nil)
	}
	switch priority {
	case High:
		q.high = append(q.high, data)
	default:
		q.normal = append(q.normal, data)
	}
	q.totalSize += len(data)
	return nil
}

// Dequeue pops the next buffer to write: the front of high if non-empty,
// otherwise the front of normal. Returns ok=false when both are empty.
func (q *OutboundQueue) Dequeue() (data []byte, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.high) > 0 {
		data, q.high = q.high[0], q.high[1:]
	} else if len(q.normal) > 0 {
		data, q.normal = q.normal[0], q.normal[1:]
	} else {
		return nil, false
	}
	q.totalSize -= len(data)
	return data, true
}

// Len reports the total number of queued buffers across both priorities.
func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high) + len(q.normal)
}

// Bytes reports the total queued byte count.
func (q *OutboundQueue) Bytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalSize
}
