package node

import (
	"github.com/paseka1/Concordium/internal/conn"
	"github.com/paseka1/Concordium/internal/nodeid"
	"github.com/paseka1/Concordium/internal/peer"
	"github.com/paseka1/Concordium/internal/processor"
	"github.com/paseka1/Concordium/internal/wire"
)

// buildPipelines wires the pre- and post-handshake dispatch tables (spec
// §4.5). Handshake itself is intercepted in serverHandler before either
// pipeline runs, so neither registers a Handshake action; a Handshake
// arriving on an already-PostHandshake connection is instead caught by
// admitHandshake's explicit status check.
func (s *Server) buildPipelines() (pre, post *processor.Pipeline) {
	banFilter := processor.BanFilterByID(func(id [32]byte) bool { return s.isBanned(nodeid.ID(id)) })

	pre = processor.New(s.log)
	pre.AddFilter(banFilter)
	pre.OnInvalid(dropInvalid(s))

	post = processor.New(s.log)
	post.AddFilter(banFilter)
	post.OnRequest(wire.ReqPing, processor.PingAction(s))
	post.OnRequest(wire.ReqFindNode, processor.FindNodeAction(s))
	post.OnRequest(wire.ReqGetPeers, processor.GetPeersAction(s))
	post.OnRequest(wire.ReqJoinNetwork, processor.JoinNetworkAction(s))
	post.OnRequest(wire.ReqLeaveNetwork, processor.LeaveNetworkAction(s))
	post.OnRequest(wire.ReqBanNode, processor.BanNodeAction(s))
	post.OnRequest(wire.ReqUnbanNode, processor.UnbanNodeAction(s))
	post.OnRequest(wire.ReqRetransmit, retransmitAction(s))
	post.OnPacket(wire.PacketDirect, processor.PacketAction(s))
	post.OnPacket(wire.PacketBroadcast, processor.PacketAction(s))
	post.OnInvalid(dropInvalid(s))
	return pre, post
}

func dropInvalid(s *Server) processor.Action {
	return func(c *conn.Connection, m *wire.Message) error {
		s.log.WithField("remote", c.RemoteAddr()).Debug("dropping malformed or unhandled message")
		return nil
	}
}

// retransmitAction forwards a catch-up request to the consensus layer
// through the inbound control queue (spec §6); the consensus layer itself decides what, if
// anything, to send back. Catch-up requests and bulk responses are
// low-priority traffic (spec §4.9); only FinalizationMessage,
// FinalizationRecord and Block are high priority.
func retransmitAction(s *Server) processor.Action {
	return func(c *conn.Connection, m *wire.Message) error {
		s.controlIn.Push(bridgeEnvelope(false, retransmitRequest{from: c.RemotePeer(), payload: m.Request.Retransmit}))
		return nil
	}
}

type retransmitRequest struct {
	from    peer.Peer
	payload *wire.RetransmitPayload
}
