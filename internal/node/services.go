package node

import (
	"github.com/paseka1/Concordium/internal/conn"
	"github.com/paseka1/Concordium/internal/nodeid"
	"github.com/paseka1/Concordium/internal/peer"
	"github.com/paseka1/Concordium/internal/wire"
)

// Server implements processor.Services directly; its Self/SelfID methods
// already live in server.go.

// Closest returns up to k peers nearest target, drawn from the routing
// table rather than live connections, per spec §4.5's FindNode handler.
func (s *Server) Closest(target nodeid.ID, k int) []peer.Peer {
	return s.buckets.Closest(target, k)
}

// PeersInNetworks returns the distinct remote peers of every live
// PostHandshake connection that shares at least one of the requested
// networks (or all of them, if networks is empty).
func (s *Server) PeersInNetworks(networks []peer.NetworkID) []peer.Peer {
	want := peer.NewNetworkSet(networks...)
	var out []peer.Peer
	s.ForEachPostHandshake(func(c *conn.Connection) {
		if len(want) == 0 || c.RemoteNetworks().Intersects(want) {
			out = append(out, c.RemotePeer())
		}
	})
	return out
}

// IsBaker reports whether this node participates in consensus, gating
// JoinNetwork/LeaveNetwork forwarding to the control bridge (spec §4.9).
func (s *Server) IsBaker() bool { return s.cfg.IsBaker }

// Ban adds p to the ban list and persists it.
func (s *Server) Ban(p peer.Peer) error {
	s.mu.Lock()
	s.banned[p.ID] = struct{}{}
	s.mu.Unlock()
	if s.store != nil {
		return s.store.Ban(p)
	}
	return nil
}

// Unban removes p from the ban list and persistence.
func (s *Server) Unban(p peer.Peer) error {
	s.mu.Lock()
	delete(s.banned, p.ID)
	s.mu.Unlock()
	if s.store != nil {
		return s.store.Unban(p.ID)
	}
	return nil
}

// CloseConnectionsTo closes every live connection identifying as id.
func (s *Server) CloseConnectionsTo(id nodeid.ID) {
	for _, c := range s.Connections() {
		if c.RemotePeer().ID == id {
			c.Close(nil)
		}
	}
}

// ForwardControl pushes a consensus-relevant control message (join/leave
// network) onto the high-priority inbound bridge queue.
func (s *Server) ForwardControl(c *conn.Connection, m *wire.Message) {
	_ = s.controlIn.Push(bridgeEnvelope(true, controlEvent{from: c.RemotePeer(), msg: m}))
}

// ForwardPacket implements the spec §4.6 receive path: Direct packets are
// handed straight to consensus, Broadcast packets go through the
// dedup/rebroadcast engine first.
func (s *Server) ForwardPacket(c *conn.Connection, pkt *wire.Packet) {
	switch pkt.Tag {
	case wire.PacketDirect:
		s.deliverToConsensus(pkt)
	case wire.PacketBroadcast:
		s.broadcastEngine.HandleBroadcast(c, pkt, s.deliverToConsensus)
	}
}

func (s *Server) deliverToConsensus(pkt *wire.Packet) {
	high := pkt.Tag == wire.PacketDirect
	if err := s.consensusIn.Push(bridgeEnvelope(high, pkt)); err != nil {
		s.log.WithError(err).Warn("consensus inbound queue full")
	}
}

type controlEvent struct {
	from peer.Peer
	msg  *wire.Message
}

// serverPeers adapts Server to broadcast.Peers without exposing the rest
// of Server's surface to package broadcast.
type serverPeers struct{ s *Server }

func (p serverPeers) ForEachPostHandshake(fn func(c *conn.Connection)) { p.s.ForEachPostHandshake(fn) }
func (p serverPeers) IsBanned(id [32]byte) bool                       { return p.s.isBanned(nodeid.ID(id)) }

// ForEachPostHandshake calls fn for every live PostHandshake connection.
func (s *Server) ForEachPostHandshake(fn func(c *conn.Connection)) {
	for _, c := range s.Connections() {
		if c.Status() == conn.PostHandshake {
			fn(c)
		}
	}
}
