package node

import (
	"github.com/paseka1/Concordium/internal/peer"
	"github.com/paseka1/Concordium/internal/wire"
)

func pingRequest(self peer.Peer) *wire.Message {
	return &wire.Message{
		Tag: wire.TagRequest,
		Request: &wire.Request{
			Tag:    wire.ReqPing,
			Sender: self,
		},
	}
}

func handshakeRequest(self peer.Peer, networks peer.NetworkSet, version string) *wire.Message {
	return &wire.Message{
		Tag: wire.TagRequest,
		Request: &wire.Request{
			Tag:    wire.ReqHandshake,
			Sender: self,
			Handshake: &wire.HandshakePayload{
				NodeID:   self.ID,
				Port:     self.Addr.Port,
				Networks: networkList(networks),
				PeerType: self.Type,
				Version:  version,
			},
		},
	}
}

func handshakeResponse(self peer.Peer, networks peer.NetworkSet, version string) *wire.Message {
	return &wire.Message{
		Tag: wire.TagResponse,
		Response: &wire.Response{
			Tag:    wire.RespHandshake,
			Sender: self,
			Handshake: &wire.HandshakePayload{
				NodeID:   self.ID,
				Port:     self.Addr.Port,
				Networks: networkList(networks),
				PeerType: self.Type,
				Version:  version,
			},
		},
	}
}

func networkList(s peer.NetworkSet) []peer.NetworkID {
	out := make([]peer.NetworkID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}
