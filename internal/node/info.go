package node

import (
	"time"

	"github.com/paseka1/Concordium/internal/conn"
)

// NodeInfo is a point-in-time introspection snapshot, modeled on the
// teacher's p2p.Server.NodeInfo: identity, listen address and a handful
// of aggregate counters useful to an operator or a metrics scraper.
type NodeInfo struct {
	ID              string
	ListenAddr      string
	PeerType        string
	Networks        []uint16
	Uptime          time.Duration
	PeerCount       int
	PostHandshake   int
	BucketEntries   int
	Banned          int
	ConsensusShed   uint64
	ControlShed     uint64
	Undeliverable   uint64
}

// NodeInfo reports the current snapshot.
func (s *Server) NodeInfo() NodeInfo {
	s.mu.RLock()
	nets := make([]uint16, 0, len(s.localNets))
	for n := range s.localNets {
		nets = append(nets, uint16(n))
	}
	banned := len(s.banned)
	s.mu.RUnlock()

	var postHandshake int
	for _, c := range s.Connections() {
		if c.Status() == conn.PostHandshake {
			postHandshake++
		}
	}

	addr := ""
	if s.listener != nil {
		addr = s.listener.Addr().String()
	}

	return NodeInfo{
		ID:            s.cfg.ID.String(),
		ListenAddr:    addr,
		PeerType:      s.cfg.PeerType.String(),
		Networks:      nets,
		Uptime:        time.Since(s.startedAt),
		PeerCount:     s.ConnectionCount(),
		PostHandshake: postHandshake,
		BucketEntries: s.buckets.Len(),
		Banned:        banned,
		ConsensusShed: s.consensusIn.ShedCount() + s.consensusOut.ShedCount(),
		ControlShed:   s.controlIn.ShedCount(),
		Undeliverable: s.broadcastEngine.UndeliverableCount(),
	}
}

// PeerInfo is a single entry of PeersInfo, mirroring the teacher's
// p2p.PeerInfo shape for the fields that carry over to this overlay.
type PeerInfo struct {
	ID          string
	RemoteAddr  string
	PeerType    string
	Networks    []uint16
	LatencyMs   int64
	LastSeen    time.Time
	MsgsSent    uint64
	MsgsRecv    uint64
	FailedPkts  uint64
}

// PeersInfo reports one PeerInfo per live PostHandshake connection.
func (s *Server) PeersInfo() []PeerInfo {
	var out []PeerInfo
	s.ForEachPostHandshake(func(c *conn.Connection) {
		remote := c.RemotePeer()
		nets := c.RemoteNetworks()
		ids := make([]uint16, 0, len(nets))
		for n := range nets {
			ids = append(ids, uint16(n))
		}
		sent, recv, failed := c.Stats()
		out = append(out, PeerInfo{
			ID:         remote.ID.String(),
			RemoteAddr: c.RemoteAddr().String(),
			PeerType:   remote.Type.String(),
			Networks:   ids,
			LatencyMs:  c.LastLatencyMs(),
			LastSeen:   c.LastSeen(),
			MsgsSent:   sent,
			MsgsRecv:   recv,
			FailedPkts: failed,
		})
	})
	return out
}
