package session

import (
	"github.com/cockroachdb/errors"

	"github.com/dkeye/Relay/internal/metrics"
)

var (
	ErrJoinFailed        = errors.New("join failed")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrHeartbeatTimeout  = errors.New("heartbeat timeout")
	ErrTransport         = errors.New("transport error")

	ErrSessionClosed  = errors.New("session closed")
	ErrMisaddressed   = errors.New("message addressed to another session")
	ErrMailboxFull    = errors.New("mailbox full")
	ErrAlreadyStarted = errors.New("session already started")
)

// causeLabel maps a termination cause to its metrics label.
// A nil cause comes from the peer closing or the server stopping the session.
func causeLabel(cause error, shutdown bool) string {
	switch {
	case cause == nil && shutdown:
		return metrics.CauseShutdown
	case cause == nil:
		return metrics.CausePeerClosed
	case errors.Is(cause, ErrJoinFailed):
		return metrics.CauseJoinFailed
	case errors.Is(cause, ErrProtocolViolation):
		return metrics.CauseProtocolError
	case errors.Is(cause, ErrHeartbeatTimeout):
		return metrics.CauseHeartbeatTimeout
	default:
		return metrics.CauseTransportError
	}
}
