package wire

import (
	"bufio"
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paseka1/Concordium/internal/nodeid"
	"github.com/paseka1/Concordium/internal/peer"
	"github.com/paseka1/Concordium/internal/seenmessages"
)

func samplePeer(t *testing.T) peer.Peer {
	t.Helper()
	id, err := nodeid.Generate()
	require.NoError(t, err)
	return peer.Peer{Type: peer.Node, ID: id, Addr: peer.Addr{IP: net.IPv4(127, 0, 0, 1), Port: 8888}}
}

func roundTrip(t *testing.T, m *Message) *Message {
	t.Helper()
	body, err := Encode(m)
	require.NoError(t, err)
	decoded, err := Decode(body)
	require.NoError(t, err)
	return decoded
}

func TestPingRoundTrip(t *testing.T) {
	sender := samplePeer(t)
	m := &Message{Tag: TagRequest, Request: &Request{Tag: ReqPing, Sender: sender}}
	out := roundTrip(t, m)
	assert.Equal(t, ReqPing, out.Request.Tag)
}

func TestFindNodeRoundTrip(t *testing.T) {
	target, err := nodeid.Generate()
	require.NoError(t, err)
	m := &Message{Tag: TagRequest, Request: &Request{
		Tag: ReqFindNode, Sender: samplePeer(t), FindNode: &FindNodePayload{Target: target},
	}}
	out := roundTrip(t, m)
	assert.Equal(t, target, out.Request.FindNode.Target)
}

func TestHandshakeRoundTrip(t *testing.T) {
	self := samplePeer(t)
	hs := &HandshakePayload{
		NodeID:   self.ID,
		Port:     8888,
		Networks: []peer.NetworkID{1, 2, 3},
		PeerType: peer.Node,
		Version:  "1.0.0",
	}
	m := &Message{Tag: TagRequest, Request: &Request{Tag: ReqHandshake, Sender: self, Handshake: hs}}
	out := roundTrip(t, m)
	require.NotNil(t, out.Request.Handshake)
	assert.Equal(t, hs.NodeID, out.Request.Handshake.NodeID)
	assert.Equal(t, hs.Networks, out.Request.Handshake.Networks)
	assert.Equal(t, hs.Version, out.Request.Handshake.Version)
}

func TestPongRoundTrip(t *testing.T) {
	m := &Message{Tag: TagResponse, Response: &Response{
		Tag: RespPong, Sender: samplePeer(t), Pong: &PongPayload{Timestamp: 123456789},
	}}
	out := roundTrip(t, m)
	assert.Equal(t, uint64(123456789), out.Response.Pong.Timestamp)
}

func TestPeerListRoundTrip(t *testing.T) {
	peers := []peer.Peer{samplePeer(t), samplePeer(t)}
	m := &Message{Tag: TagResponse, Response: &Response{
		Tag: RespPeerList, Sender: samplePeer(t), PeerList: peers,
	}}
	out := roundTrip(t, m)
	require.Len(t, out.Response.PeerList, 2)
	assert.Equal(t, peers[0].ID, out.Response.PeerList[0].ID)
}

func TestDirectPacketRoundTrip(t *testing.T) {
	receiver, err := nodeid.Generate()
	require.NoError(t, err)
	pkt := &Packet{
		Tag:       PacketDirect,
		Sender:    samplePeer(t),
		Receiver:  &receiver,
		MessageID: seenmessages.NewID(),
		NetworkID: 42,
		Payload:   []byte("hello"),
	}
	m := &Message{Tag: TagPacket, Packet: pkt}
	out := roundTrip(t, m)
	assert.Equal(t, receiver, *out.Packet.Receiver)
	assert.Equal(t, []byte("hello"), out.Packet.Payload)
	assert.Equal(t, peer.NetworkID(42), out.Packet.NetworkID)
}

func TestBroadcastPacketRoundTrip(t *testing.T) {
	pkt := &Packet{
		Tag:       PacketBroadcast,
		Sender:    samplePeer(t),
		MessageID: seenmessages.NewID(),
		NetworkID: 7,
		Payload:   []byte{1, 2, 3},
	}
	m := &Message{Tag: TagPacket, Packet: pkt}
	out := roundTrip(t, m)
	assert.Nil(t, out.Packet.Receiver)
	assert.Equal(t, pkt.MessageID, out.Packet.MessageID)
}

func TestRetransmitByHashRoundTrip(t *testing.T) {
	var hash [32]byte
	hash[0] = 0xAB
	m := &Message{Tag: TagRequest, Request: &Request{
		Tag: ReqRetransmit, Sender: samplePeer(t),
		Retransmit: &RetransmitPayload{BlockHash: &hash, Delta: 99},
	}}
	out := roundTrip(t, m)
	require.NotNil(t, out.Request.Retransmit.BlockHash)
	assert.Equal(t, hash, *out.Request.Retransmit.BlockHash)
	assert.Equal(t, uint64(99), out.Request.Retransmit.Delta)
}

func TestRetransmitByFinalizationIndexRoundTrip(t *testing.T) {
	idx := uint64(555)
	m := &Message{Tag: TagRequest, Request: &Request{
		Tag: ReqRetransmit, Sender: samplePeer(t),
		Retransmit: &RetransmitPayload{FinalizationIndex: &idx},
	}}
	out := roundTrip(t, m)
	require.Nil(t, out.Request.Retransmit.BlockHash)
	require.NotNil(t, out.Request.Retransmit.FinalizationIndex)
	assert.Equal(t, idx, *out.Request.Retransmit.FinalizationIndex)
}

func TestDecodeRejectsEmptyBody(t *testing.T) {
	_, err := Decode(nil)
	assert.Error(t, err)
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	_, err := Decode([]byte{0xFF})
	assert.Error(t, err)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("some application frame")
	require.NoError(t, WriteFrame(&buf, payload))

	out, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestReadFrameRejectsOversizedDeclaredLength(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	hdr[0] = 0xFF // declares a length far past MaxFrameLen
	buf.Write(hdr[:])

	_, err := ReadFrame(bufio.NewReader(&buf))
	assert.Error(t, err)
}

func TestSessionIDRoundTrip(t *testing.T) {
	var hash [32]byte
	hash[5] = 0x42
	s := SessionID{GenesisBlockHash: hash, Incarnation: 7}
	parsed, err := ParseSessionID(s.Bytes())
	require.NoError(t, err)
	assert.Equal(t, s, parsed)
}

func TestParseSessionIDRejectsWrongLength(t *testing.T) {
	_, err := ParseSessionID([]byte{1, 2, 3})
	assert.Error(t, err)
}
