package conn

import (
	"time"

	gnoise "github.com/flynn/noise"

	"github.com/paseka1/Concordium/internal/noise"
	"github.com/paseka1/Concordium/internal/p2perr"
)

// DefaultHandshakeTimeout bounds how long the noise handshake may take
// before the connection is closed (spec §4.3).
const DefaultHandshakeTimeout = 10 * time.Second

// RunHandshake drives the noise XX handshake over the raw socket. On the
// initiator side this is message 1 then 3; on the responder side, message
// 2. A failure here is fatal to the connection per spec §4.2.
func (c *Connection) RunHandshake(staticKey gnoise.DHKey, psk [noise.PSKSize]byte, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	c.socket.SetDeadline(time.Now().Add(timeout))
	defer c.socket.SetDeadline(time.Time{})

	var (
		session *noise.Session
		err     error
	)
	if c.InitiatedByMe {
		session, err = noise.DoInitiator(c.reader, c.socket, staticKey, psk)
	} else {
		session, err = noise.DoResponder(c.reader, c.socket, staticKey, psk)
	}
	if err != nil {
		c.Close(err)
		return err
	}
	c.noise = session
	c.mu.Lock()
	c.sentHandshake = time.Now()
	c.mu.Unlock()
	return nil
}

// checkNotAlreadyHandshaken enforces the spec §4.3 rule that receiving a
// Handshake request/response on an already-PostHandshake connection is a
// protocol violation.
func (c *Connection) checkNotAlreadyHandshaken() error {
	if c.Status() == PostHandshake {
		return p2perr.New(p2perr.ProtocolViolation, "conn.checkNotAlreadyHandshaken", nil)
	}
	return nil
}
