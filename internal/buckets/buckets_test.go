package buckets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paseka1/Concordium/internal/nodeid"
	"github.com/paseka1/Concordium/internal/peer"
)

func randID(t *testing.T) nodeid.ID {
	t.Helper()
	id, err := nodeid.Generate()
	require.NoError(t, err)
	return id
}

func TestInsertAndClosest(t *testing.T) {
	self := randID(t)
	table := New(self)

	var inserted []peer.Peer
	now := time.Now()
	for i := 0; i < 5; i++ {
		p := peer.Peer{ID: randID(t)}
		require.True(t, table.Insert(p, peer.NewNetworkSet(), now, time.Minute))
		inserted = append(inserted, p)
	}

	assert.Equal(t, 5, table.Len())
	closest := table.Closest(inserted[0].ID, 3)
	assert.LessOrEqual(t, len(closest), 3)
}

func TestInsertUpdatesExisting(t *testing.T) {
	self := randID(t)
	table := New(self)
	p := peer.Peer{ID: randID(t), Addr: peer.Addr{Port: 1}}
	now := time.Now()

	require.True(t, table.Insert(p, peer.NewNetworkSet(), now, time.Minute))
	p.Addr.Port = 2
	require.True(t, table.Insert(p, peer.NewNetworkSet(), now.Add(time.Second), time.Minute))

	assert.Equal(t, 1, table.Len())
}

func TestRemove(t *testing.T) {
	self := randID(t)
	table := New(self)
	p := peer.Peer{ID: randID(t)}
	table.Insert(p, peer.NewNetworkSet(), time.Now(), time.Minute)
	require.Equal(t, 1, table.Len())

	table.Remove(p.ID)
	assert.Equal(t, 0, table.Len())
}

func TestCleanStaleRespectsFloor(t *testing.T) {
	self := nodeid.ID{}
	table := New(self)

	old := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		id := nodeid.ID{}
		id[0] = 0x80 // forces the same bucket regardless of the trailing byte
		id[31] = byte(i + 1)
		table.Insert(peer.Peer{ID: id}, peer.NewNetworkSet(), old, 0)
	}
	require.Equal(t, 4, table.Len())

	evicted := table.CleanStale(time.Now(), time.Minute, 2)
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 2, table.Len())
}

func TestCleanStaleNoOpWhenFresh(t *testing.T) {
	self := randID(t)
	table := New(self)
	table.Insert(peer.Peer{ID: randID(t)}, peer.NewNetworkSet(), time.Now(), 0)

	evicted := table.CleanStale(time.Now(), time.Hour, 0)
	assert.Equal(t, 0, evicted)
	assert.Equal(t, 1, table.Len())
}
