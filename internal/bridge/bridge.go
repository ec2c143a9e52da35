// Package bridge implements the priority-tiered bounded channels that
// decouple the network I/O goroutines from the consensus executor
// (spec §4.9).
package bridge

import (
	"sync"

	"github.com/paseka1/Concordium/internal/p2perr"
)

// Default channel capacities (spec §4.9).
const (
	DefaultInHi  = 16
	DefaultInLo  = 64
	DefaultOutHi = 16
	DefaultOutLo = 64
)

// QueueDepth bounds how many high-priority items a consumer drains per
// pass before yielding to a single low-priority item.
const QueueDepth = 8

// FullPolicy controls producer behavior when a channel is full.
type FullPolicy int

const (
	// Block makes the producer wait for room.
	Block FullPolicy = iota
	// Shed drops the item and increments a metric instead of blocking.
	Shed
)

// Envelope is one item travelling across the bridge.
type Envelope struct {
	HighPriority bool
	Payload      interface{}
}

// Queue is a two-tier bounded channel pair with condition-variable-style
// wakeup, draining QueueDepth high-priority items per pass before a single
// low-priority item, per spec §4.9.
type Queue struct {
	hi, lo chan Envelope
	policy FullPolicy

	mu     sync.Mutex
	shed   uint64
	closed bool
	stopCh chan struct{}
}

// NewQueue builds a Queue with the given capacities and full-channel
// policy.
func NewQueue(hiCap, loCap int, policy FullPolicy) *Queue {
	return &Queue{
		hi:     make(chan Envelope, hiCap),
		lo:     make(chan Envelope, loCap),
		policy: policy,
		stopCh: make(chan struct{}),
	}
}

// Push enqueues an item on the appropriate tier. Under Block policy it
// blocks until room is available or Stop is called; under Shed it drops
// the item and increments the shed counter when the channel is full.
func (q *Queue) Push(e Envelope) error {
	ch := q.lo
	if e.HighPriority {
		ch = q.hi
	}

	switch q.policy {
	case Shed:
		select {
		case ch <- e:
			return nil
		default:
			q.mu.Lock()
			q.shed++
			q.mu.Unlock()
			return p2perr.New(p2perr.QueueFull, "bridge.Queue.Push", nil)
		}
	default:
		select {
		case ch <- e:
			return nil
		case <-q.stopCh:
			return p2perr.New(p2perr.QueueFull, "bridge.Queue.Push", nil)
		}
	}
}

// ShedCount reports how many items were dropped under the Shed policy.
func (q *Queue) ShedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shed
}

// Stop unblocks pending Push calls and makes Run return; it is safe to
// call more than once.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.stopCh)
	}
}

// Run drains the queue on the calling goroutine until Stop is called,
// invoking handle for each item. Per pass it drains up to QueueDepth
// high-priority items, then at most one low-priority item, then blocks
// until more work or Stop arrives.
func (q *Queue) Run(handle func(Envelope)) {
	for {
		drained := 0
		for drained < QueueDepth {
			select {
			case e := <-q.hi:
				handle(e)
				drained++
				continue
			default:
			}
			break
		}

		select {
		case e := <-q.lo:
			handle(e)
			continue
		default:
		}

		select {
		case e := <-q.hi:
			handle(e)
		case e := <-q.lo:
			handle(e)
		case <-q.stopCh:
			return
		}
	}
}
