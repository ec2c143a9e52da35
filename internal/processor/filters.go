package processor

import (
	"github.com/paseka1/Concordium/internal/conn"
	"github.com/paseka1/Concordium/internal/wire"
)

// BanFilterByID drops messages from connections whose remote id is
// currently banned (spec §4.6 broadcast re-send condition, and §7 "Banned:
// ... if detected post-handshake, close immediately").
func BanFilterByID(isBanned func(id [32]byte) bool) Filter {
	return func(c *conn.Connection, m *wire.Message) FilterResult {
		remote := c.RemotePeer()
		if remote.ID.IsZero() {
			return Pass
		}
		if isBanned(remote.ID) {
			c.Close(nil)
			return Drop
		}
		return Pass
	}
}
