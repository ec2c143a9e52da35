package node

import (
	"net"
	"time"

	"github.com/paseka1/Concordium/internal/conn"
	"github.com/paseka1/Concordium/internal/nodeid"
	"github.com/paseka1/Concordium/internal/p2perr"
	"github.com/paseka1/Concordium/internal/peer"
	"github.com/paseka1/Concordium/internal/wire"
)

// serverHandler adapts Server to conn.Handler, routing each decoded
// message through the appropriate pipeline and reacting to connection
// close by dropping the registry entry and the bucket entry (spec §4.7).
type serverHandler struct{ s *Server }

func (h serverHandler) HandleMessage(c *conn.Connection, m *wire.Message) {
	s := h.s

	if m.Tag == wire.TagRequest && m.Request.Tag == wire.ReqHandshake {
		s.onHandshakeRequest(c, m)
		return
	}
	if m.Tag == wire.TagResponse && m.Response.Tag == wire.RespHandshake {
		s.onHandshakeResponse(c, m)
		return
	}
	if m.Tag == wire.TagResponse && m.Response.Tag == wire.RespPong {
		c.ObservePong(m.Response.Pong.Timestamp)
	}

	if c.Status() != conn.PostHandshake {
		s.prePipeline.Run(c, m)
		return
	}
	s.postPipeline.Run(c, m)
}

func (h serverHandler) HandleClose(c *conn.Connection, err error) {
	s := h.s
	s.mu.Lock()
	delete(s.connections, c.Token)
	s.mu.Unlock()

	remote := c.RemotePeer()
	if !remote.ID.IsZero() {
		s.buckets.Remove(remote.ID)
	}
}

// onHandshakeRequest completes the responder side of the Noise-then-app
// handshake exchange (spec §4.3): the Noise transcript has already
// authenticated the channel, and this app-level message carries the
// peer's logical identity, port and network memberships.
func (s *Server) onHandshakeRequest(c *conn.Connection, m *wire.Message) {
	if err := s.admitHandshake(c, m.Request.Handshake); err != nil {
		c.Close(err)
		return
	}
	if err := c.Enqueue(handshakeResponse(s.Self(), s.localNets, s.cfg.Version), conn.High); err != nil {
		c.Close(err)
	}
}

func (s *Server) onHandshakeResponse(c *conn.Connection, m *wire.Message) {
	if err := s.admitHandshake(c, m.Response.Handshake); err != nil {
		c.Close(err)
	}
}

func (s *Server) admitHandshake(c *conn.Connection, hs *wire.HandshakePayload) error {
	if c.Status() == conn.PostHandshake {
		return p2perr.New(p2perr.ProtocolViolation, "node.admitHandshake", nil)
	}
	if s.isBanned(hs.NodeID) {
		return p2perr.New(p2perr.Banned, "node.admitHandshake", nil)
	}
	if hs.NodeID == s.cfg.ID {
		return p2perr.New(p2perr.ProtocolViolation, "node.admitHandshake", nil)
	}
	if s.dupConnection(hs.NodeID, c.Token) {
		return p2perr.New(p2perr.DuplicatePeer, "node.admitHandshake", nil)
	}

	remote := peer.Peer{
		Type: hs.PeerType,
		ID:   hs.NodeID,
		Addr: peer.Addr{IP: tcpIP(c.RemoteAddr()), Port: hs.Port},
	}
	networks := peer.NewNetworkSet(hs.Networks...)
	if err := c.CompleteHandshake(remote, networks); err != nil {
		return err
	}
	s.buckets.Insert(remote, networks, time.Now(), StaleThreshold)
	return nil
}

// dupConnection reports whether another PostHandshake connection already
// identifies as id. admitHandshake then refuses the newer connection with
// DuplicatePeer, so the older connection is kept and the newer one closes.
func (s *Server) dupConnection(id nodeid.ID, exclude uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for token, c := range s.connections {
		if token == exclude {
			continue
		}
		if c.Status() == conn.PostHandshake && c.RemotePeer().ID == id {
			return true
		}
	}
	return false
}

func (s *Server) isBanned(id nodeid.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.banned[id]
	return ok
}

func tcpIP(addr net.Addr) net.IP {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return net.IPv4zero
	}
	return net.ParseIP(host)
}
