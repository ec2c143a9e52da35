package node

import (
	"github.com/paseka1/Concordium/internal/bridge"
	"github.com/paseka1/Concordium/internal/peer"
	"github.com/paseka1/Concordium/internal/seenmessages"
	"github.com/paseka1/Concordium/internal/wire"
)

func bridgeEnvelope(highPriority bool, payload interface{}) bridge.Envelope {
	return bridge.Envelope{HighPriority: highPriority, Payload: payload}
}

// OutboundPacket is what the consensus layer pushes onto consensusOut to
// have it delivered over the overlay (spec §4.9's outbound direction).
type OutboundPacket struct {
	Broadcast bool
	Receiver  peer.Peer // ignored when Broadcast is true
	Packet    *wire.Packet
}

// PublishFromConsensus enqueues a packet originated by the consensus
// layer onto the outbound bridge queue (spec §4.9).
func (s *Server) PublishFromConsensus(out OutboundPacket, highPriority bool) error {
	return s.consensusOut.Push(bridgeEnvelope(highPriority, out))
}

// Broadcast originates a fresh broadcast packet on behalf of the local
// node: it mints a new message id so downstream SeenMessages dedup
// treats it like any peer-relayed packet.
func (s *Server) Broadcast(network peer.NetworkID, payload []byte, highPriority bool) error {
	pkt := &wire.Packet{
		Tag:       wire.PacketBroadcast,
		Sender:    s.Self(),
		MessageID: seenmessages.NewID(),
		NetworkID: network,
		Payload:   payload,
	}
	return s.PublishFromConsensus(OutboundPacket{Broadcast: true, Packet: pkt}, highPriority)
}

func (s *Server) handleConsensusOutbound(e bridge.Envelope) {
	out, ok := e.Payload.(OutboundPacket)
	if !ok {
		return
	}
	if out.Broadcast {
		// A nil sender connection matches no live connection, so
		// HandleBroadcast's rebroadcast step reaches every eligible peer;
		// Insert marks the id seen so an echo back from a peer is dropped.
		s.broadcastEngine.HandleBroadcast(nil, out.Packet, func(*wire.Packet) {})
		return
	}
	s.broadcastEngine.SendDirect(out.Receiver, out.Packet)
}
