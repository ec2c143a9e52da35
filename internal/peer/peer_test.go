package peer

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkSetContains(t *testing.T) {
	s := NewNetworkSet(1, 2, 3)
	assert.True(t, s.Contains(2))
	assert.False(t, s.Contains(9))
}

func TestNetworkSetIntersects(t *testing.T) {
	a := NewNetworkSet(1, 2)
	b := NewNetworkSet(2, 3)
	c := NewNetworkSet(9)
	assert.True(t, a.Intersects(b))
	assert.False(t, a.Intersects(c))
}

func TestNetworkSetCloneIsIndependent(t *testing.T) {
	a := NewNetworkSet(1)
	clone := a.Clone()
	clone[2] = struct{}{}
	assert.False(t, a.Contains(2))
	assert.True(t, clone.Contains(2))
}

func TestAddrString(t *testing.T) {
	a := Addr{IP: net.IPv4(127, 0, 0, 1), Port: 8888}
	assert.Equal(t, "127.0.0.1:8888", a.String())
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "node", Node.String())
	assert.Equal(t, "bootstrapper", Bootstrapper.String())
}
