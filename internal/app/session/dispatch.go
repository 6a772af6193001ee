package session

import (
	"github.com/cockroachdb/errors"

	"github.com/dkeye/Relay/internal/core"
)

var continuationReason = core.CloseReason{Code: core.CloseProtocolError, Text: "continuation frames are not supported"}

// dispatch handles one inbound frame while the session is active.
func (s *Session) dispatch(f core.Frame) {
	switch f.Kind {
	case core.FramePing:
		s.touch()
		if err := s.tr.SendPong(f.Payload); err != nil {
			s.logger.Debug().Err(err).Msg("pong not sent")
		}
	case core.FramePong:
		s.touch()
	case core.FrameBinary:
		if err := s.tr.SendBinary(f.Payload); err != nil {
			s.logger.Debug().Err(err).Msg("binary echo not sent")
		}
	case core.FrameClose:
		reason := core.CloseReason{Code: core.CloseNoStatus}
		if f.Close != nil {
			reason = *f.Close
		}
		s.teardown(nil, s.closeWith(reason))
	case core.FrameContinuation:
		s.teardown(errors.Wrap(ErrProtocolViolation, "continuation frame"), s.closeWith(continuationReason))
	case core.FrameNop:
	case core.FrameText:
		s.relay(string(f.Payload))
	case core.FrameError:
		s.teardown(errors.Wrapf(ErrTransport, "inbound frame: %v", f.Err), s.tr.Abort)
	default:
		s.teardown(errors.Wrapf(ErrProtocolViolation, "unknown frame kind %d", int(f.Kind)), s.closeWith(core.CloseReason{Code: core.CloseProtocolError}))
	}
}
