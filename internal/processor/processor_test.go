package processor

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paseka1/Concordium/internal/conn"
	"github.com/paseka1/Concordium/internal/nodeid"
	"github.com/paseka1/Concordium/internal/peer"
	"github.com/paseka1/Concordium/internal/wire"
)

func newTestConn(t *testing.T) *conn.Connection {
	t.Helper()
	client, _ := net.Pipe()
	t.Cleanup(func() { client.Close() })
	id, err := nodeid.Generate()
	require.NoError(t, err)
	return conn.New(conn.Config{Socket: client, LocalPeer: peer.Peer{ID: id}})
}

func TestPipelineDispatchesRegisteredAction(t *testing.T) {
	p := New(nil)
	var called bool
	p.OnRequest(wire.ReqPing, func(c *conn.Connection, m *wire.Message) error {
		called = true
		return nil
	})

	c := newTestConn(t)
	p.Run(c, &wire.Message{Tag: wire.TagRequest, Request: &wire.Request{Tag: wire.ReqPing}})
	assert.True(t, called)
}

func TestPipelineRunsUnknownWhenNoSubTagRegistered(t *testing.T) {
	p := New(nil)
	var unknownCalled bool
	p.OnUnknown(func(c *conn.Connection, m *wire.Message) error {
		unknownCalled = true
		return nil
	})

	c := newTestConn(t)
	p.Run(c, &wire.Message{Tag: wire.TagRequest, Request: &wire.Request{Tag: wire.ReqPing}})
	assert.True(t, unknownCalled)
}

func TestPipelineRunsInvalidWhenVariantMissing(t *testing.T) {
	p := New(nil)
	var invalidCalled bool
	p.OnInvalid(func(c *conn.Connection, m *wire.Message) error {
		invalidCalled = true
		return nil
	})

	c := newTestConn(t)
	p.Run(c, &wire.Message{Tag: wire.TagRequest, Request: nil})
	assert.True(t, invalidCalled)
}

func TestPipelineFilterDropShortCircuitsDispatch(t *testing.T) {
	p := New(nil)
	p.AddFilter(func(c *conn.Connection, m *wire.Message) FilterResult { return Drop })
	var called bool
	p.OnRequest(wire.ReqPing, func(c *conn.Connection, m *wire.Message) error {
		called = true
		return nil
	})

	c := newTestConn(t)
	p.Run(c, &wire.Message{Tag: wire.TagRequest, Request: &wire.Request{Tag: wire.ReqPing}})
	assert.False(t, called)
	assert.Equal(t, uint64(1), p.DroppedCount())
}

func TestPipelineActionErrorDoesNotHaltRemaining(t *testing.T) {
	p := New(nil)
	var secondCalled bool
	p.OnRequest(wire.ReqPing,
		func(c *conn.Connection, m *wire.Message) error { return errors.New("boom") },
		func(c *conn.Connection, m *wire.Message) error { secondCalled = true; return nil },
	)

	c := newTestConn(t)
	p.Run(c, &wire.Message{Tag: wire.TagRequest, Request: &wire.Request{Tag: wire.ReqPing}})
	assert.True(t, secondCalled)
}

func TestPipelineNotifiesAfterDispatch(t *testing.T) {
	p := New(nil)
	var notified bool
	p.Notify(func(c *conn.Connection, m *wire.Message) { notified = true })

	c := newTestConn(t)
	p.Run(c, &wire.Message{Tag: wire.TagRequest, Request: &wire.Request{Tag: wire.ReqPing}})
	assert.True(t, notified)
}

func TestBanFilterByIDDropsBannedRemote(t *testing.T) {
	banned := nodeid.ID{0xAA}
	filter := BanFilterByID(func(id [32]byte) bool { return id == banned })

	c := newTestConn(t)
	require.NoError(t, c.CompleteHandshake(peer.Peer{ID: banned}, peer.NewNetworkSet()))

	result := filter(c, &wire.Message{})
	assert.Equal(t, Drop, result)
	assert.Equal(t, conn.Closed, c.Status())
}

func TestBanFilterByIDPassesUnbannedRemote(t *testing.T) {
	filter := BanFilterByID(func(id [32]byte) bool { return false })

	c := newTestConn(t)
	require.NoError(t, c.CompleteHandshake(peer.Peer{ID: nodeid.ID{0x01}}, peer.NewNetworkSet()))

	assert.Equal(t, Pass, filter(c, &wire.Message{}))
}

func TestBanFilterByIDPassesPreHandshakeZeroID(t *testing.T) {
	filter := BanFilterByID(func(id [32]byte) bool { return true })
	c := newTestConn(t)
	assert.Equal(t, Pass, filter(c, &wire.Message{}))
}
