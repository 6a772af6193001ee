package session

import "github.com/dkeye/Relay/internal/metrics"

var pingPayload = []byte("PING")

// touch records liveness evidence from the peer.
func (s *Session) touch() {
	s.lastHeartbeat.Store(s.clock.Now())
}

// heartbeat runs on every tick. A peer that has been silent for longer than
// the client timeout is dropped without a ping; otherwise it is pinged.
func (s *Session) heartbeat() {
	elapsed := s.clock.Since(s.lastHeartbeat.Load())
	if elapsed > s.cfg.ClientTimeout {
		s.logger.Warn().Dur("silent_for", elapsed).Msg("disconnecting failed heartbeat")
		metrics.HeartbeatTimeouts.Inc()
		s.teardown(ErrHeartbeatTimeout, s.tr.Abort)
		return
	}
	if err := s.tr.SendPing(pingPayload); err != nil {
		s.logger.Debug().Err(err).Msg("heartbeat ping not sent")
	}
}
