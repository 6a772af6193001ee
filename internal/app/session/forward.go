package session

import (
	"time"

	"github.com/dkeye/Relay/internal/metrics"
)

// Directory calls run on a forwarder goroutine so a slow directory can never
// hold up the event loop. Text keeps its order and Leave always comes last.

// relay queues text for the directory. Text is dropped when the queue is full.
func (s *Session) relay(text string) {
	if s.State() != StateActive {
		return
	}
	s.startForwarder()
	select {
	case s.relays <- text:
	default:
		metrics.MessagesDropped.Inc()
		s.logger.Warn().Int("bytes", len(text)).Msg("directory busy, text dropped")
	}
}

func (s *Session) startForwarder() {
	s.forward.Do(func() { go s.forwardLoop() })
}

func (s *Session) forwardLoop() {
	defer close(s.left)
	for text := range s.relays {
		s.dir.Relay(s.id, s.room, text)
	}
	s.dir.Leave(s.id, s.room)
}

// leave ends the relay queue and waits up to LeaveTimeout for the forwarder
// to deliver it along with the Leave.
func (s *Session) leave() {
	s.startForwarder()
	close(s.relays)

	timer := time.NewTimer(s.cfg.LeaveTimeout)
	defer timer.Stop()
	select {
	case <-s.left:
	case <-timer.C:
		s.logger.Warn().Dur("waited", s.cfg.LeaveTimeout).Msg("directory did not take leave in time")
	}
}
