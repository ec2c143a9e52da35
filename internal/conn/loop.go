package conn

import (
	"sync/atomic"
	"time"

	"github.com/paseka1/Concordium/internal/p2perr"
	"github.com/paseka1/Concordium/internal/wire"
)

// RunReadLoop blocks reading frames until the connection closes or a fatal
// error occurs, decoding each into a wire.Message and handing it to the
// Handler. It is meant to run on its own goroutine.
func (c *Connection) RunReadLoop() {
	for {
		select {
		case <-c.closed:
			return
		default:
		}

		body, err := wire.ReadFrame(c.reader)
		if err != nil {
			c.Close(err)
			return
		}

		plain := body
		if c.noise != nil {
			plain, err = c.noise.DecryptMessage(body)
			if err != nil {
				atomic.AddUint64(&c.failedPackets, 1)
				c.Close(err)
				return
			}
		}

		msg, err := wire.Decode(plain)
		if err != nil {
			atomic.AddUint64(&c.failedPackets, 1)
			c.Close(err)
			return
		}

		atomic.AddUint64(&c.messagesReceived, 1)
		c.touchLastSeen()
		if c.handler != nil {
			c.handler.HandleMessage(c, msg)
		}
	}
}

// RunWriteLoop drains the outbound queue onto the socket whenever it is
// signalled, high priority first, preserving FIFO within a priority class.
func (c *Connection) RunWriteLoop() {
	for {
		select {
		case <-c.closed:
			return
		case <-c.writeCh:
		}

		for {
			data, ok := c.outbound.Dequeue()
			if !ok {
				break
			}
			if err := wire.WriteFrame(c.socket, data); err != nil {
				c.Close(err)
				return
			}
			atomic.AddUint64(&c.messagesSent, 1)
		}
	}
}

// RunPingLoop sends periodic pings and enforces the pong timeout (spec
// §4.3). Meant to run on its own goroutine; exits when the connection
// closes.
func (c *Connection) RunPingLoop(interval, timeout time.Duration, sendPing func() error) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 3 * interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			idle := time.Since(c.LastSeen())
			if idle < interval {
				continue
			}
			pingAt := c.PingSentAt()
			if !pingAt.IsZero() && time.Since(pingAt) > timeout {
				c.Close(p2perr.New(p2perr.Timeout, "conn.RunPingLoop", nil))
				return
			}
			if pingAt.IsZero() || time.Since(pingAt) >= interval {
				if err := sendPing(); err != nil {
					c.Close(err)
					return
				}
				c.MarkPingSent(time.Now())
			}
		}
	}
}
