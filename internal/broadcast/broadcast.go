// Package broadcast implements message-id deduplication and the fan-out
// re-broadcast rule of spec §4.6.
package broadcast

import (
	"github.com/sirupsen/logrus"

	"github.com/paseka1/Concordium/internal/conn"
	"github.com/paseka1/Concordium/internal/peer"
	"github.com/paseka1/Concordium/internal/seenmessages"
	"github.com/paseka1/Concordium/internal/wire"
)

// Peers abstracts the connection set the engine fans broadcasts out over,
// so this package does not need to import node (which imports this one).
type Peers interface {
	// ForEachPostHandshake calls fn for every live PostHandshake
	// connection. fn must not block on network I/O.
	ForEachPostHandshake(fn func(c *conn.Connection))
	IsBanned(id [32]byte) bool
}

// Engine implements broadcast dedup and re-send.
type Engine struct {
	seen                 *seenmessages.Set
	peers                Peers
	blindTrustedBroadcast bool
	undeliverable        uint64
	log                  *logrus.Entry
}

// New builds a broadcast Engine. blindTrusted, when true, skips
// network-set filtering on re-broadcast (spec §4.6, for closed trusted
// fleets such as a bootstrapper mesh).
func New(seen *seenmessages.Set, peers Peers, blindTrusted bool, log *logrus.Entry) *Engine {
	return &Engine{seen: seen, peers: peers, blindTrustedBroadcast: blindTrusted, log: log}
}

// HandleBroadcast implements the receive-side of spec §4.6: dedup, then
// forward to the local consensus queue (via forward) and re-broadcast to
// every eligible connection except the sender.
func (e *Engine) HandleBroadcast(from *conn.Connection, pkt *wire.Packet, forward func(*wire.Packet)) {
	if e.seen.Contains(pkt.MessageID) {
		return
	}
	if !e.seen.Insert(pkt.MessageID) {
		return
	}

	forward(pkt)
	e.rebroadcast(from, pkt)
}

func (e *Engine) rebroadcast(from *conn.Connection, pkt *wire.Packet) {
	senderID := pkt.Sender.ID
	e.peers.ForEachPostHandshake(func(c *conn.Connection) {
		if c == from {
			return
		}
		remote := c.RemotePeer()
		if remote.ID == senderID {
			return
		}
		if e.peers.IsBanned(remote.ID) {
			return
		}
		if !e.blindTrustedBroadcast {
			nets := c.RemoteNetworks()
			if !nets.Contains(pkt.NetworkID) {
				return
			}
		}
		msg := &wire.Message{Tag: wire.TagPacket, Packet: pkt}
		if err := c.Enqueue(msg, conn.Normal); err != nil && e.log != nil {
			e.log.WithField("remote", remote).WithError(err).Warn("rebroadcast enqueue failed")
		}
	})
}

// SendDirect delivers pkt to the single connection whose remote id
// matches receiver. If absent, the packet is dropped and counted as
// undeliverable (spec §4.6).
func (e *Engine) SendDirect(receiver peer.Peer, pkt *wire.Packet) bool {
	delivered := false
	e.peers.ForEachPostHandshake(func(c *conn.Connection) {
		if delivered {
			return
		}
		if c.RemotePeer().ID != receiver.ID {
			return
		}
		msg := &wire.Message{Tag: wire.TagPacket, Packet: pkt}
		if err := c.Enqueue(msg, conn.Normal); err == nil {
			delivered = true
		}
	})
	if !delivered {
		e.undeliverable++
	}
	return delivered
}

// UndeliverableCount reports how many direct packets found no matching
// connection.
func (e *Engine) UndeliverableCount() uint64 { return e.undeliverable }
