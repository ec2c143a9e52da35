// Package node implements the acceptor/dialer, the connection registry,
// the ban list and the maintenance loop described in spec §4.8 and §2
// (components 7-8). It is the "TLS server" of spec §2, renamed because
// this implementation secures connections with Noise, not TLS.
package node

import (
	"fmt"
	"net"
	"sync"
	"time"

	gnoise "github.com/flynn/noise"
	"github.com/sirupsen/logrus"

	"github.com/paseka1/Concordium/internal/bootstrap"
	"github.com/paseka1/Concordium/internal/bridge"
	"github.com/paseka1/Concordium/internal/broadcast"
	"github.com/paseka1/Concordium/internal/buckets"
	"github.com/paseka1/Concordium/internal/conn"
	"github.com/paseka1/Concordium/internal/nodeid"
	"github.com/paseka1/Concordium/internal/p2perr"
	"github.com/paseka1/Concordium/internal/peer"
	"github.com/paseka1/Concordium/internal/processor"
	"github.com/paseka1/Concordium/internal/seenmessages"
	"github.com/paseka1/Concordium/internal/store"
)

// Config configures a Server.
type Config struct {
	ID            nodeid.ID
	ListenAddress string
	ListenPort    uint16
	ExternalIP    net.IP
	ExternalPort  uint16
	PeerType      peer.Type
	Networks      []peer.NetworkID
	Version       string

	MaxAllowedNodes int
	OutboundBytesCap int

	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PingTimeout      time.Duration
	IdleTimeout      time.Duration

	NoTrustBroadcasts bool
	IsBaker           bool

	PSK [32]byte

	Log *logrus.Entry
}

// Server owns the listening socket, the live connection set, the ban
// list and the local network membership (spec §2 item 7).
type Server struct {
	cfg       Config
	staticKey gnoise.DHKey
	log       *logrus.Entry

	listener net.Listener

	mu          sync.RWMutex
	connections map[uint64]*conn.Connection
	nextToken   uint64
	localNets   peer.NetworkSet
	banned      map[nodeid.ID]struct{}
	untrusted   map[string]time.Time // addr -> backoff expiry

	buckets *buckets.Table
	seen    *seenmessages.Set
	store   *store.Store

	broadcastEngine *broadcast.Engine
	prePipeline     *processor.Pipeline
	postPipeline    *processor.Pipeline

	consensusIn  *bridge.Queue
	consensusOut *bridge.Queue
	controlIn    *bridge.Queue

	startedAt time.Time

	closeOnce sync.Once
	quit      chan struct{}
	wg        sync.WaitGroup
}

// New builds a Server. It does not start listening; call Start for that.
func New(cfg Config, st *store.Store) (*Server, error) {
	staticKey, err := conn.GenerateStaticKey()
	if err != nil {
		return nil, p2perr.New(p2perr.ConfigInvalid, "node.New", err)
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		cfg:         cfg,
		staticKey:   staticKey,
		log:         cfg.Log.WithField("component", "node"),
		connections: make(map[uint64]*conn.Connection),
		localNets:   peer.NewNetworkSet(cfg.Networks...),
		banned:      make(map[nodeid.ID]struct{}),
		untrusted:   make(map[string]time.Time),
		buckets:     buckets.New(cfg.ID),
		seen:        seenmessages.New(seenmessages.DefaultCapacity),
		store:       st,
		consensusIn: bridge.NewQueue(bridge.DefaultInHi, bridge.DefaultInLo, bridge.Block),
		consensusOut: bridge.NewQueue(bridge.DefaultOutHi, bridge.DefaultOutLo, bridge.Block),
		controlIn:   bridge.NewQueue(bridge.DefaultInHi, bridge.DefaultInLo, bridge.Shed),
		quit:        make(chan struct{}),
	}
	s.broadcastEngine = broadcast.New(s.seen, serverPeers{s}, !cfg.NoTrustBroadcasts, s.log)
	s.prePipeline, s.postPipeline = s.buildPipelines()

	if st != nil {
		if bans, err := st.LoadBans(); err == nil {
			for _, id := range bans {
				s.banned[id] = struct{}{}
			}
		}
	}
	return s, nil
}

// Self returns the local peer identity.
func (s *Server) Self() peer.Peer {
	ip := s.cfg.ExternalIP
	if ip == nil {
		ip = net.IPv4zero
	}
	port := s.cfg.ExternalPort
	if port == 0 {
		port = s.cfg.ListenPort
	}
	return peer.Peer{Type: s.cfg.PeerType, ID: s.cfg.ID, Addr: peer.Addr{IP: ip, Port: port}}
}

// SelfID returns the local node id.
func (s *Server) SelfID() nodeid.ID { return s.cfg.ID }

// Start opens the listening socket and launches the accept loop plus the
// maintenance loop. Each accepted/dialed connection gets its own read,
// write and ping goroutines (the idiomatic-Go substitution for the single
// poller thread of spec §2, permitted by spec §9).
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.ListenAddress, portString(s.cfg.ListenPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return p2perr.New(p2perr.ConfigInvalid, "node.Server.Start", err)
	}
	s.listener = ln
	s.startedAt = time.Now()

	s.wg.Add(1)
	go s.acceptLoop()

	s.wg.Add(1)
	go s.maintenanceLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.consensusOut.Run(s.handleConsensusOutbound)
	}()

	s.log.WithField("addr", ln.Addr()).Info("p2p server listening")
	return nil
}

// Stop closes the listener, every live connection, and the bridge queues,
// then waits for all owned goroutines to exit.
func (s *Server) Stop() {
	s.closeOnce.Do(func() {
		close(s.quit)
		if s.listener != nil {
			s.listener.Close()
		}
		s.consensusIn.Stop()
		s.consensusOut.Stop()
		s.controlIn.Stop()

		s.mu.RLock()
		conns := make([]*conn.Connection, 0, len(s.connections))
		for _, c := range s.connections {
			conns = append(conns, c)
		}
		s.mu.RUnlock()
		for _, c := range conns {
			c.Close(nil)
		}
	})
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		fd, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.log.WithError(err).Warn("accept failed")
				return
			}
		}
		if s.atCapacity() && s.cfg.PeerType != peer.Bootstrapper {
			fd.Close()
			continue
		}
		s.spawnConnection(fd, false, peer.Peer{})
	}
}

func (s *Server) atCapacity() bool {
	return s.ConnectionCount() >= s.cfg.MaxAllowedNodes
}

// Connect dials addr and runs the connection as an initiator. If
// expectedID is non-nil and the remote's handshake id mismatches, the
// connection is closed and the address is marked untrusted for
// reconnectBackoff (spec §4.8).
func (s *Server) Connect(addr peer.Addr, expectedID *nodeid.ID, reconnectBackoff time.Duration) error {
	key := addr.String()
	s.mu.RLock()
	until, blocked := s.untrusted[key]
	s.mu.RUnlock()
	if blocked && time.Now().Before(until) {
		return p2perr.New(p2perr.Banned, "node.Server.Connect", fmt.Errorf("address %s in reconnect backoff", key))
	}

	fd, err := net.DialTimeout("tcp", addr.String(), 15*time.Second)
	if err != nil {
		return p2perr.New(p2perr.Io, "node.Server.Connect", err)
	}

	var expected peer.Peer
	if expectedID != nil {
		expected.ID = *expectedID
	}
	c := s.spawnConnection(fd, true, expected)
	if expectedID != nil {
		go s.enforceExpectedID(c, *expectedID, key, reconnectBackoff)
	}
	return nil
}

func (s *Server) enforceExpectedID(c *conn.Connection, expected nodeid.ID, addrKey string, backoff time.Duration) {
	select {
	case <-c.Done():
		return
	case <-time.After(s.handshakeTimeout() + time.Second):
	}
	if c.Status() != conn.PostHandshake {
		return
	}
	if c.RemotePeer().ID != expected {
		c.Close(p2perr.New(p2perr.ProtocolViolation, "node.enforceExpectedID", fmt.Errorf("unexpected identity")))
		s.mu.Lock()
		s.untrusted[addrKey] = time.Now().Add(backoff)
		s.mu.Unlock()
	}
}

func (s *Server) handshakeTimeout() time.Duration {
	if s.cfg.HandshakeTimeout > 0 {
		return s.cfg.HandshakeTimeout
	}
	return conn.DefaultHandshakeTimeout
}

func (s *Server) spawnConnection(fd net.Conn, initiator bool, _ peer.Peer) *conn.Connection {
	s.mu.Lock()
	token := s.nextToken
	s.nextToken++
	s.mu.Unlock()

	c := conn.New(conn.Config{
		Token:         token,
		Socket:        fd,
		InitiatedByMe: initiator,
		LocalPeer:     s.Self(),
		LocalNetworks: s.localNets.Clone(),
		BootstrapMode: s.cfg.PeerType == peer.Bootstrapper,
		OutboundCap:   s.cfg.OutboundBytesCap,
		Handler:       serverHandler{s},
		Log:           s.log,
	})

	s.mu.Lock()
	s.connections[token] = c
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runConnection(c)
	}()
	return c
}

func (s *Server) runConnection(c *conn.Connection) {
	if err := c.RunHandshake(s.staticKey, s.cfg.PSK, s.handshakeTimeout()); err != nil {
		s.log.WithField("remote", c.RemoteAddr()).WithError(err).Warn("handshake failed")
		return
	}
	if c.InitiatedByMe {
		if err := c.Enqueue(handshakeRequest(s.Self(), s.localNets, s.cfg.Version), conn.High); err != nil {
			c.Close(err)
			return
		}
	}

	go c.RunWriteLoop()
	go c.RunPingLoop(s.cfg.PingInterval, s.cfg.PingTimeout, func() error {
		return c.Enqueue(pingRequest(s.Self()), conn.High)
	})
	c.RunReadLoop()
}

// ConnectionCount returns the number of tracked connections (including
// those still in PreHandshake).
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// Connections returns a snapshot of every tracked connection.
func (s *Server) Connections() []*conn.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*conn.Connection, 0, len(s.connections))
	for _, c := range s.connections {
		out = append(out, c)
	}
	return out
}

func portString(p uint16) string { return fmt.Sprintf("%d", p) }

// BootstrapAll resolves and connects to every configured bootstrap source.
func (s *Server) BootstrapAll(staticNodes []string, dnsDomain string, useDNS, dnssecRequired bool, reconnectBackoff time.Duration) {
	entries, err := bootstrap.Static(staticNodes)
	if err != nil {
		s.log.WithError(err).Warn("static bootstrap parse failed")
	}
	if useDNS {
		dnsEntries, err := bootstrap.ResolveDNS(dnsDomain, dnssecRequired, 5*time.Second)
		if err != nil {
			s.log.WithError(err).Warn("dns bootstrap resolution failed")
		} else {
			entries = append(entries, dnsEntries...)
		}
	}
	for _, e := range entries {
		if err := s.Connect(e.Addr, e.ExpectedID, reconnectBackoff); err != nil {
			s.log.WithField("addr", e.Addr).WithError(err).Warn("bootstrap connect failed")
		}
	}
}
