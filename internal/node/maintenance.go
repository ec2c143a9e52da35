package node

import (
	"time"

	"github.com/paseka1/Concordium/internal/conn"
	"github.com/paseka1/Concordium/internal/peer"
)

// MaintenanceInterval is how often the housekeeping sweep runs.
const MaintenanceInterval = 30 * time.Second

// StaleThreshold is how long a bucket entry may go unverified before it
// becomes eligible for eviction by CleanStale (bootstrapper-only, spec
// §4.7).
const StaleThreshold = 10 * time.Minute

// minPerBucket is the floor CleanStale leaves untouched even when every
// entry in a bucket looks stale, so a partition never empties a bucket.
const minPerBucket = 2

func (s *Server) maintenanceLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(MaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.runMaintenance()
		}
	}
}

func (s *Server) runMaintenance() {
	s.closeDeadConnections()
	if s.cfg.PeerType == peer.Bootstrapper {
		evicted := s.buckets.CleanStale(time.Now(), StaleThreshold, minPerBucket)
		if evicted > 0 {
			s.log.WithField("evicted", evicted).Debug("bucket cleanup evicted stale entries")
		}
	}
}

// closeDeadConnections closes any connection that has been idle well past
// the configured idle timeout, a backstop for the per-connection ping loop
// (spec §4.3). Bootstrapper-mode connections never advance LastSeen (spec
// §3), so this sweep does not apply to them (spec §4.8) — running it there
// would force-close every connection on a fixed cadence regardless of
// liveness.
func (s *Server) closeDeadConnections() {
	if s.cfg.PeerType == peer.Bootstrapper {
		return
	}
	deadline := s.idleTimeout()
	for _, c := range s.Connections() {
		if c.Status() != conn.PostHandshake {
			continue
		}
		if time.Since(c.LastSeen()) > deadline {
			c.Close(nil)
		}
	}
}

func (s *Server) idleTimeout() time.Duration {
	if s.cfg.IdleTimeout > 0 {
		return s.cfg.IdleTimeout
	}
	return 120 * time.Second
}
