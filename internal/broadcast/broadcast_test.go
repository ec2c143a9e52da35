package broadcast

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paseka1/Concordium/internal/conn"
	"github.com/paseka1/Concordium/internal/nodeid"
	"github.com/paseka1/Concordium/internal/peer"
	"github.com/paseka1/Concordium/internal/seenmessages"
	"github.com/paseka1/Concordium/internal/wire"
)

type fakePeers struct {
	conns   []*conn.Connection
	bannedm map[[32]byte]bool
}

func (f *fakePeers) ForEachPostHandshake(fn func(c *conn.Connection)) {
	for _, c := range f.conns {
		if c.Status() == conn.PostHandshake {
			fn(c)
		}
	}
}

func (f *fakePeers) IsBanned(id [32]byte) bool { return f.bannedm[id] }

func newHandshakenConn(t *testing.T, remote peer.Peer, networks peer.NetworkSet) (*conn.Connection, net.Conn) {
	t.Helper()
	local, remoteSock := net.Pipe()
	t.Cleanup(func() { local.Close() })
	selfID, err := nodeid.Generate()
	require.NoError(t, err)
	c := conn.New(conn.Config{Socket: local, LocalPeer: peer.Peer{ID: selfID}, OutboundCap: 1 << 20})
	require.NoError(t, c.CompleteHandshake(remote, networks))
	return c, remoteSock
}

func samplePacket(t *testing.T, sender peer.Peer, network peer.NetworkID) *wire.Packet {
	t.Helper()
	return &wire.Packet{
		Tag: wire.PacketBroadcast, Sender: sender,
		MessageID: seenmessages.NewID(), NetworkID: network, Payload: []byte("payload"),
	}
}

func TestHandleBroadcastForwardsOnFirstSight(t *testing.T) {
	peers := &fakePeers{bannedm: map[[32]byte]bool{}}
	e := New(seenmessages.New(16), peers, true, nil)

	sender := peer.Peer{ID: nodeid.ID{0x01}}
	pkt := samplePacket(t, sender, 1)

	var forwarded *wire.Packet
	e.HandleBroadcast(nil, pkt, func(p *wire.Packet) { forwarded = p })
	assert.Same(t, pkt, forwarded)
}

func TestHandleBroadcastDropsDuplicateMessageID(t *testing.T) {
	peers := &fakePeers{bannedm: map[[32]byte]bool{}}
	e := New(seenmessages.New(16), peers, true, nil)

	sender := peer.Peer{ID: nodeid.ID{0x01}}
	pkt := samplePacket(t, sender, 1)

	calls := 0
	e.HandleBroadcast(nil, pkt, func(p *wire.Packet) { calls++ })
	e.HandleBroadcast(nil, pkt, func(p *wire.Packet) { calls++ })
	assert.Equal(t, 1, calls)
}

func TestHandleBroadcastRebroadcastsExcludingSenderAndOrigin(t *testing.T) {
	senderID := nodeid.ID{0x01}
	otherID := nodeid.ID{0x02}

	fromConn, fromSock := newHandshakenConn(t, peer.Peer{ID: senderID}, peer.NewNetworkSet(5))
	defer fromSock.Close()
	otherConn, otherSock := newHandshakenConn(t, peer.Peer{ID: otherID}, peer.NewNetworkSet(5))
	defer otherSock.Close()
	originConn, originSock := newHandshakenConn(t, peer.Peer{ID: senderID}, peer.NewNetworkSet(5))
	defer originSock.Close()

	peers := &fakePeers{conns: []*conn.Connection{fromConn, otherConn, originConn}, bannedm: map[[32]byte]bool{}}
	e := New(seenmessages.New(16), peers, true, nil)

	pkt := samplePacket(t, peer.Peer{ID: senderID}, 5)
	e.HandleBroadcast(fromConn, pkt, func(*wire.Packet) {})

	assert.Zero(t, fromConn.OutboundBytes(), "the connection the packet arrived on must be skipped")
	assert.Zero(t, originConn.OutboundBytes(), "a connection sharing the sender's id must be skipped")
	assert.NotZero(t, otherConn.OutboundBytes(), "an unrelated eligible connection must receive the rebroadcast")
}

func TestHandleBroadcastSkipsBannedPeers(t *testing.T) {
	bannedID := nodeid.ID{0x09}
	bannedConn, bannedSock := newHandshakenConn(t, peer.Peer{ID: bannedID}, peer.NewNetworkSet(1))
	defer bannedSock.Close()

	peers := &fakePeers{conns: []*conn.Connection{bannedConn}, bannedm: map[[32]byte]bool{bannedID: true}}
	e := New(seenmessages.New(16), peers, true, nil)

	pkt := samplePacket(t, peer.Peer{ID: nodeid.ID{0x01}}, 1)
	e.HandleBroadcast(nil, pkt, func(*wire.Packet) {})

	assert.Zero(t, bannedConn.OutboundBytes())
}

func TestHandleBroadcastRespectsNetworkFilterWhenNotBlindTrusted(t *testing.T) {
	mismatched, mismatchedSock := newHandshakenConn(t, peer.Peer{ID: nodeid.ID{0x04}}, peer.NewNetworkSet(99))
	defer mismatchedSock.Close()

	peers := &fakePeers{conns: []*conn.Connection{mismatched}, bannedm: map[[32]byte]bool{}}
	e := New(seenmessages.New(16), peers, false, nil)

	pkt := samplePacket(t, peer.Peer{ID: nodeid.ID{0x01}}, 1)
	e.HandleBroadcast(nil, pkt, func(*wire.Packet) {})

	assert.Zero(t, mismatched.OutboundBytes())
}

func TestSendDirectCountsUndeliverable(t *testing.T) {
	peers := &fakePeers{bannedm: map[[32]byte]bool{}}
	e := New(seenmessages.New(16), peers, true, nil)

	pkt := &wire.Packet{Tag: wire.PacketDirect, Payload: []byte("x")}
	delivered := e.SendDirect(peer.Peer{ID: nodeid.ID{0x01}}, pkt)
	assert.False(t, delivered)
	assert.Equal(t, uint64(1), e.UndeliverableCount())
}

func TestSendDirectDeliversToMatchingConnection(t *testing.T) {
	targetID := nodeid.ID{0x07}
	target, targetSock := newHandshakenConn(t, peer.Peer{ID: targetID}, peer.NewNetworkSet())
	defer targetSock.Close()

	peers := &fakePeers{conns: []*conn.Connection{target}, bannedm: map[[32]byte]bool{}}
	e := New(seenmessages.New(16), peers, true, nil)

	pkt := &wire.Packet{Tag: wire.PacketDirect, Payload: []byte("hi"), MessageID: seenmessages.NewID()}
	delivered := e.SendDirect(peer.Peer{ID: targetID}, pkt)
	assert.True(t, delivered)
	assert.Equal(t, uint64(0), e.UndeliverableCount())
}
