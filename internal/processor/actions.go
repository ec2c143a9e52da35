package processor

import (
	"time"

	"github.com/paseka1/Concordium/internal/conn"
	"github.com/paseka1/Concordium/internal/nodeid"
	"github.com/paseka1/Concordium/internal/p2perr"
	"github.com/paseka1/Concordium/internal/peer"
	"github.com/paseka1/Concordium/internal/wire"
)

// Services is the set of node-level collaborators the default
// post-handshake actions need. Implemented by package node; kept as an
// interface here so processor does not import node (which imports
// processor to build its pipelines).
type Services interface {
	Self() peer.Peer
	SelfID() nodeid.ID
	Closest(target nodeid.ID, k int) []peer.Peer
	PeersInNetworks(networks []peer.NetworkID) []peer.Peer
	IsBaker() bool
	Ban(p peer.Peer) error
	Unban(p peer.Peer) error
	CloseConnectionsTo(id nodeid.ID)
	ForwardControl(c *conn.Connection, m *wire.Message)
	ForwardPacket(c *conn.Connection, pkt *wire.Packet)
}

// ClosestK is the number of peers returned from a FindNode response
// (spec §4.5, reusing buckets.B as the Kademlia bucket size).
const ClosestK = 20

// PingAction responds to a Ping with a Pong carrying the same timestamp
// semantics described in spec §4.3, then touches last_seen.
func PingAction(svc Services) Action {
	return func(c *conn.Connection, m *wire.Message) error {
		return c.Enqueue(&wire.Message{
			Tag: wire.TagResponse,
			Response: &wire.Response{
				Tag:    wire.RespPong,
				Sender: svc.Self(),
				Pong:   &wire.PongPayload{Timestamp: uint64(time.Now().UnixMilli())},
			},
		}, conn.High)
	}
}

// FindNodeAction responds with up to ClosestK peers nearest the requested
// target.
func FindNodeAction(svc Services) Action {
	return func(c *conn.Connection, m *wire.Message) error {
		target := m.Request.FindNode.Target
		closest := svc.Closest(target, ClosestK)
		return c.Enqueue(&wire.Message{
			Tag: wire.TagResponse,
			Response: &wire.Response{
				Tag:      wire.RespFindNode,
				Sender:   svc.Self(),
				FindNode: closest,
			},
		}, conn.Normal)
	}
}

// GetPeersAction responds with a PeerList filtered by the requested
// networks.
func GetPeersAction(svc Services) Action {
	return func(c *conn.Connection, m *wire.Message) error {
		peers := svc.PeersInNetworks(m.Request.GetPeers)
		return c.Enqueue(&wire.Message{
			Tag: wire.TagResponse,
			Response: &wire.Response{
				Tag:      wire.RespPeerList,
				Sender:   svc.Self(),
				PeerList: peers,
			},
		}, conn.Normal)
	}
}

// JoinNetworkAction updates the remote's network set and, if this node is
// a baker, forwards the event to the consensus control path.
func JoinNetworkAction(svc Services) Action {
	return func(c *conn.Connection, m *wire.Message) error {
		n := m.Request.JoinNetwork
		c.UpdateRemoteNetworks(func(s peer.NetworkSet) { s[n] = struct{}{} })
		if svc.IsBaker() {
			svc.ForwardControl(c, m)
		}
		return nil
	}
}

// LeaveNetworkAction mirrors JoinNetworkAction for network departure.
func LeaveNetworkAction(svc Services) Action {
	return func(c *conn.Connection, m *wire.Message) error {
		n := m.Request.LeaveNetwork
		c.UpdateRemoteNetworks(func(s peer.NetworkSet) { delete(s, n) })
		if svc.IsBaker() {
			svc.ForwardControl(c, m)
		}
		return nil
	}
}

// BanNodeAction updates the local ban list and closes any existing
// connection to the banned peer.
func BanNodeAction(svc Services) Action {
	return func(c *conn.Connection, m *wire.Message) error {
		target := *m.Request.BanNode
		if err := svc.Ban(target); err != nil {
			return err
		}
		svc.CloseConnectionsTo(target.ID)
		return nil
	}
}

// UnbanNodeAction reverses BanNodeAction.
func UnbanNodeAction(svc Services) Action {
	return func(c *conn.Connection, m *wire.Message) error {
		return svc.Unban(*m.Request.UnbanNode)
	}
}

// DuplicateHandshakeAction enforces the spec §4.3 rule that receiving a
// Handshake on an already-PostHandshake connection is a protocol
// violation, not a silent re-init: it closes the connection.
func DuplicateHandshakeAction() Action {
	return func(c *conn.Connection, m *wire.Message) error {
		err := p2perr.New(p2perr.ProtocolViolation, "processor.DuplicateHandshakeAction", nil)
		c.Close(err)
		return err
	}
}

// PacketAction hands a Direct or Broadcast packet to Services.ForwardPacket;
// dedup and fan-out of broadcasts happen there (package node runs them
// through the broadcast engine), not in this action.
func PacketAction(svc Services) Action {
	return func(c *conn.Connection, m *wire.Message) error {
		svc.ForwardPacket(c, m.Packet)
		return nil
	}
}
