package conn

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"

	gnoise "github.com/flynn/noise"
	"github.com/sirupsen/logrus"

	"github.com/paseka1/Concordium/internal/noise"
	"github.com/paseka1/Concordium/internal/p2perr"
	"github.com/paseka1/Concordium/internal/peer"
	"github.com/paseka1/Concordium/internal/wire"
)

// Handler receives decoded messages and close notifications for a
// Connection. Implemented by the message processor / node layer so that
// this package stays free of dispatch logic (spec §4.5 lives above us).
type Handler interface {
	HandleMessage(c *Connection, m *wire.Message)
	HandleClose(c *Connection, err error)
}

// Connection is the per-peer state described in spec §3. Unlike the
// single poller-thread model in spec §2, each Connection here is driven
// by goroutines it owns: one blocking on socket reads, one draining the
// outbound queue and one running the ping loop — the idiomatic Go substitution permitted
// by spec §9. No other goroutine mutates Connection state directly.
type Connection struct {
	Token uint64

	socket net.Conn
	reader *bufio.Reader
	noise  *noise.Session

	InitiatedByMe bool

	status int32 // Status, accessed atomically

	mu             sync.RWMutex
	localPeer      peer.Peer
	remotePeer     peer.Peer
	localNetworks  peer.NetworkSet
	remoteNetworks peer.NetworkSet
	lastSeen       time.Time
	sentHandshake  time.Time
	sentPing       time.Time
	lastLatencyMs  int64
	bootstrapMode  bool

	messagesSent     uint64
	messagesReceived uint64
	failedPackets    uint64

	outbound *OutboundQueue
	writeCh  chan struct{}

	handler Handler
	log     *logrus.Entry

	closeOnce sync.Once
	closed    chan struct{}
}

// Config bundles the construction parameters for a new Connection.
type Config struct {
	Token         uint64
	Socket        net.Conn
	InitiatedByMe bool
	LocalPeer     peer.Peer
	LocalNetworks peer.NetworkSet
	BootstrapMode bool
	OutboundCap   int
	Handler       Handler
	Log           *logrus.Entry
}

// New builds a PreHandshake connection around an already-accepted or
// already-dialed socket. The caller must call RunHandshake before any
// application traffic can flow.
func New(cfg Config) *Connection {
	c := &Connection{
		Token:         cfg.Token,
		socket:        cfg.Socket,
		reader:        bufio.NewReaderSize(cfg.Socket, 16*1024),
		InitiatedByMe: cfg.InitiatedByMe,
		status:        int32(PreHandshake),
		localPeer:     cfg.LocalPeer,
		localNetworks: cfg.LocalNetworks,
		bootstrapMode: cfg.BootstrapMode,
		outbound:      NewOutboundQueue(cfg.OutboundCap),
		writeCh:       make(chan struct{}, 1),
		handler:       cfg.Handler,
		log:           cfg.Log,
		closed:        make(chan struct{}),
	}
	if c.localNetworks == nil {
		c.localNetworks = peer.NewNetworkSet()
	}
	c.remoteNetworks = peer.NewNetworkSet()
	c.lastSeen = time.Now()
	return c
}

// Status returns the current lifecycle state.
func (c *Connection) Status() Status { return Status(atomic.LoadInt32(&c.status)) }

func (c *Connection) setStatus(s Status) { atomic.StoreInt32(&c.status, int32(s)) }

// RemoteAddr is the underlying socket's remote address.
func (c *Connection) RemoteAddr() net.Addr { return c.socket.RemoteAddr() }

// RemotePeer returns the identified remote peer; zero-valued pre-handshake.
func (c *Connection) RemotePeer() peer.Peer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remotePeer
}

// RemoteNetworks returns a snapshot of the remote's network memberships.
func (c *Connection) RemoteNetworks() peer.NetworkSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remoteNetworks.Clone()
}

// LastSeen returns the last-activity timestamp.
func (c *Connection) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

// touchLastSeen advances last_seen to now, unless this is a
// bootstrapper-mode connection (spec §3 invariant).
func (c *Connection) touchLastSeen() {
	if c.bootstrapMode {
		return
	}
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// LastLatencyMs returns the most recently measured round-trip ping latency.
func (c *Connection) LastLatencyMs() int64 { return atomic.LoadInt64(&c.lastLatencyMs) }

// Stats returns the current message/error counters.
func (c *Connection) Stats() (sent, received, failed uint64) {
	return atomic.LoadUint64(&c.messagesSent), atomic.LoadUint64(&c.messagesReceived), atomic.LoadUint64(&c.failedPackets)
}

// CompleteHandshake records the remote identity and network set, admitting
// the connection to PostHandshake (spec §4.3). It is a ProtocolViolation
// to call this twice.
func (c *Connection) CompleteHandshake(remote peer.Peer, networks peer.NetworkSet) error {
	if c.Status() == PostHandshake {
		return p2perr.New(p2perr.ProtocolViolation, "conn.CompleteHandshake", nil)
	}
	c.mu.Lock()
	c.remotePeer = remote
	c.remoteNetworks = networks
	c.mu.Unlock()
	c.setStatus(PostHandshake)
	c.touchLastSeen()
	return nil
}

// UpdateRemoteNetworks applies a Join/LeaveNetwork update.
func (c *Connection) UpdateRemoteNetworks(fn func(peer.NetworkSet)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.remoteNetworks)
}

// MarkPingSent records the timestamp of an outbound ping.
func (c *Connection) MarkPingSent(t time.Time) {
	c.mu.Lock()
	c.sentPing = t
	c.mu.Unlock()
}

// PingSentAt returns the last ping send time, zero if none was sent.
func (c *Connection) PingSentAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sentPing
}

// ObservePong records measured latency given the echoed timestamp.
func (c *Connection) ObservePong(sentAtMs uint64) {
	nowMs := uint64(time.Now().UnixMilli())
	if nowMs >= sentAtMs {
		atomic.StoreInt64(&c.lastLatencyMs, int64(nowMs-sentAtMs))
	}
	c.touchLastSeen()
}

// Enqueue encodes m, encrypts it once the noise session is established,
// queues it for the write goroutine to drain and signals that goroutine.
func (c *Connection) Enqueue(m *wire.Message, priority Priority) error {
	body, err := wire.Encode(m)
	if err != nil {
		return err
	}
	return c.enqueueBody(body, priority)
}

func (c *Connection) enqueueBody(body []byte, priority Priority) error {
	var payload []byte
	if c.noise != nil {
		enc, err := c.noise.EncryptMessage(body)
		if err != nil {
			return err
		}
		payload = enc
	} else {
		payload = body
	}
	if err := c.outbound.Enqueue(payload, priority); err != nil {
		return err
	}
	select {
	case c.writeCh <- struct{}{}:
	default:
	}
	return nil
}

// OutboundBytes reports the current backlog, for metrics/backpressure.
func (c *Connection) OutboundBytes() int { return c.outbound.Bytes() }

// Close moves the connection through Closing to Closed, tears down the
// socket and notifies the handler; it is safe to call multiple times.
func (c *Connection) Close(cause error) {
	c.closeOnce.Do(func() {
		c.setStatus(Closing)
		close(c.closed)
		c.socket.Close()
		c.setStatus(Closed)
		if c.handler != nil {
			c.handler.HandleClose(c, cause)
		}
	})
}

// Done returns a channel closed once the connection has started closing.
func (c *Connection) Done() <-chan struct{} { return c.closed }

// GenerateStaticKey produces the per-connection noise static keypair.
func GenerateStaticKey() (gnoise.DHKey, error) { return noise.GenerateStaticKey() }
