// Package session implements the per-connection chat session: registration
// with the room directory, inbound frame dispatch, outbound delivery and the
// heartbeat monitor.
//
// A Session is driven by exactly one goroutine (Run). Everything that can end
// it, a peer close, a protocol error, a heartbeat timeout, Close or the
// parent context, is funnelled into that goroutine and torn down once.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/metrics"
)

const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultClientTimeout     = 10 * time.Second
	DefaultJoinTimeout       = 5 * time.Second
	DefaultLeaveTimeout      = time.Second
	DefaultMailboxSize       = 64
)

type State int32

const (
	StateActive State = iota
	StateClosing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

type Config struct {
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration
	JoinTimeout       time.Duration
	// LeaveTimeout bounds how long teardown waits for the directory to
	// take the queued text and the deregistration. Measured on the wall clock.
	LeaveTimeout time.Duration
	// MailboxSize is the capacity of both the outbound mailbox and the
	// queue of text waiting to be relayed.
	MailboxSize int

	// Clock defaults to the wall clock.
	Clock clockwork.Clock
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: DefaultHeartbeatInterval,
		ClientTimeout:     DefaultClientTimeout,
		JoinTimeout:       DefaultJoinTimeout,
		LeaveTimeout:      DefaultLeaveTimeout,
		MailboxSize:       DefaultMailboxSize,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.ClientTimeout <= 0 {
		c.ClientTimeout = def.ClientTimeout
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = def.JoinTimeout
	}
	if c.LeaveTimeout <= 0 {
		c.LeaveTimeout = def.LeaveTimeout
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = def.MailboxSize
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = &log.Logger
	}
	return c
}

// Session is the live state of one client connection.
type Session struct {
	id   domain.SessionID
	room domain.RoomID
	dir  core.Directory
	tr   core.Transport

	cfg    Config
	clock  clockwork.Clock
	logger zerolog.Logger

	lastHeartbeat *atomic.Time
	state         *atomic.Int32
	started       *atomic.Bool

	mailbox  chan core.OutboundMessage
	relays   chan string
	forward  sync.Once
	left     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// cause is written once during teardown, before done is closed.
	cause    error
	shutdown bool
}

// New builds a session for room with a freshly minted identity.
// Nothing is sent anywhere until Run is called.
func New(room domain.RoomID, dir core.Directory, tr core.Transport, cfg Config) *Session {
	cfg = cfg.withDefaults()
	id := domain.NewSessionID()
	return &Session{
		id:            id,
		room:          room,
		dir:           dir,
		tr:            tr,
		cfg:           cfg,
		clock:         cfg.Clock,
		logger:        cfg.Logger.With().Str("module", "session").Str("sid", string(id)).Str("room", string(room)).Logger(),
		lastHeartbeat: atomic.NewTime(cfg.Clock.Now()),
		state:         atomic.NewInt32(int32(StateActive)),
		started:       atomic.NewBool(false),
		mailbox:       make(chan core.OutboundMessage, cfg.MailboxSize),
		relays:        make(chan string, cfg.MailboxSize),
		left:          make(chan struct{}),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

func (s *Session) ID() domain.SessionID { return s.id }

func (s *Session) Room() domain.RoomID { return s.room }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) LastHeartbeat() time.Time { return s.lastHeartbeat.Load() }

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the termination cause. Only meaningful after Done is closed.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.cause
	default:
		return nil
	}
}

// Close asks the session to end with a normal closure. Safe to call from
// any goroutine, any number of times.
func (s *Session) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Deliver implements core.Mailbox. It never blocks.
func (s *Session) Deliver(msg core.OutboundMessage) error {
	if msg.To != s.id {
		return ErrMisaddressed
	}
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.mailbox <- msg:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrMailboxFull
	}
}

// Run starts the heartbeat, joins the room and processes events until the
// session ends. It returns the termination cause, nil for a normal closure.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	ticker := s.clock.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	if err := s.join(ctx); err != nil {
		s.logger.Error().Err(err).Msg("join failed, aborting connection")
		s.teardown(err, s.tr.Abort)
		return s.cause
	}
	s.logger.Info().Msg("session started")

	inbound := s.tr.Inbound()
	for s.State() == StateActive {
		select {
		case <-ctx.Done():
			s.shutdown = true
			s.teardown(nil, s.closeWith(core.CloseReason{Code: core.CloseGoingAway, Text: "server shutting down"}))
		case <-s.stop:
			s.teardown(nil, s.closeWith(core.CloseReason{Code: core.CloseNormal}))
		case f, ok := <-inbound:
			if !ok {
				s.teardown(errors.Wrap(ErrTransport, "inbound stream ended"), s.tr.Abort)
				continue
			}
			s.dispatch(f)
		case msg := <-s.mailbox:
			s.onOutbound(msg)
		case <-ticker.Chan():
			s.heartbeat()
		}
	}
	return s.cause
}

func (s *Session) join(ctx context.Context) error {
	joinCtx, cancel := context.WithTimeout(ctx, s.cfg.JoinTimeout)
	defer cancel()
	if err := s.dir.Join(joinCtx, s.id, s.room, s); err != nil {
		return errors.Wrapf(ErrJoinFailed, "room %s: %v", s.room, err)
	}
	return nil
}

// onOutbound relays a directory message verbatim.
func (s *Session) onOutbound(msg core.OutboundMessage) {
	if err := s.tr.SendText(msg.Text); err != nil {
		s.logger.Warn().Err(err).Msg("outbound text dropped")
	}
}

func (s *Session) closeWith(reason core.CloseReason) func() error {
	return func() error { return s.tr.SendClose(reason) }
}

// teardown runs at most once per session: it deregisters from the
// directory, closes the transport with closeFn and marks the session done.
func (s *Session) teardown(cause error, closeFn func() error) {
	if !s.state.CompareAndSwap(int32(StateActive), int32(StateClosing)) {
		return
	}
	s.cause = cause

	s.leave()
	if err := closeFn(); err != nil {
		s.logger.Debug().Err(err).Msg("transport close")
	}

	s.state.Store(int32(StateTerminated))
	close(s.done)

	label := causeLabel(cause, s.shutdown)
	metrics.SessionsTerminated.WithLabelValues(label).Inc()
	if cause != nil {
		s.logger.Warn().Err(cause).Str("cause", label).Msg("session terminated")
		return
	}
	s.logger.Info().Str("cause", label).Msg("session closed")
}
