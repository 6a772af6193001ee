// Package ws adapts a gorilla websocket connection to core.Transport.
//
// A Conn runs two pumps. The read pump turns every websocket frame,
// control frames included, into a core.Frame on Inbound. The write pump is
// the only writer on the socket; ping and pong frames go through a separate
// control queue that is drained ahead of queued data, so a backlog of text
// never delays a heartbeat ping.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Relay/internal/core"
)

const (
	DefaultWriteWait  = 5 * time.Second
	DefaultReadLimit  = 32768
	DefaultSendBuffer = 32

	controlBuffer = 4
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	WriteWait  time.Duration
	ReadLimit  int64
	SendBuffer int
	Logger     *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.WriteWait <= 0 {
		o.WriteWait = DefaultWriteWait
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = DefaultReadLimit
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.Logger == nil {
		o.Logger = &log.Logger
	}
	return o
}

type outFrame struct {
	messageType int
	data        []byte
}

// Conn is a transport endpoint over one websocket.
// It implements core.Transport.
type Conn struct {
	conn   *websocket.Conn
	opts   Options
	logger zerolog.Logger

	inbound chan core.Frame
	send    chan outFrame
	control chan outFrame

	closeOnce sync.Once
	closed    chan struct{}
	closing   sync.Once
}

var _ core.Transport = (*Conn)(nil)

func NewConn(conn *websocket.Conn, opts Options) *Conn {
	opts = opts.withDefaults()
	return &Conn{
		conn:    conn,
		opts:    opts,
		logger:  opts.Logger.With().Str("module", "adapters.ws").Str("remote", conn.RemoteAddr().String()).Logger(),
		inbound: make(chan core.Frame),
		send:    make(chan outFrame, opts.SendBuffer),
		control: make(chan outFrame, controlBuffer),
		closed:  make(chan struct{}),
	}
}

// Run pumps frames in both directions until the connection is closed.
// Cancelling ctx aborts the connection.
func (c *Conn) Run(ctx context.Context) {
	var wg conc.WaitGroup
	wg.Go(c.readPump)
	wg.Go(c.writePump)
	wg.Go(func() {
		select {
		case <-ctx.Done():
			_ = c.Abort()
		case <-c.closed:
		}
	})
	wg.Wait()
}

func (c *Conn) Inbound() <-chan core.Frame { return c.inbound }

func (c *Conn) SendText(text string) error {
	return c.enqueue(c.send, outFrame{messageType: websocket.TextMessage, data: []byte(text)})
}

func (c *Conn) SendBinary(data []byte) error {
	return c.enqueue(c.send, outFrame{messageType: websocket.BinaryMessage, data: data})
}

func (c *Conn) SendPing(payload []byte) error {
	return c.enqueue(c.control, outFrame{messageType: websocket.PingMessage, data: payload})
}

func (c *Conn) SendPong(payload []byte) error {
	return c.enqueue(c.control, outFrame{messageType: websocket.PongMessage, data: payload})
}

// SendClose writes a close frame and then shuts the socket. If the close
// frame cannot be queued the socket is aborted instead.
func (c *Conn) SendClose(reason core.CloseReason) error {
	var err error
	c.closing.Do(func() {
		err = c.enqueue(c.control, outFrame{
			messageType: websocket.CloseMessage,
			data:        websocket.FormatCloseMessage(reason.Code, reason.Text),
		})
		if err != nil {
			_ = c.Abort()
		}
	})
	return err
}

// Abort closes the socket without a closing handshake. Idempotent.
func (c *Conn) Abort() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) enqueue(q chan outFrame, f outFrame) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case q <- f:
		return nil
	case <-c.closed:
		return ErrConnClosed
	default:
		return ErrBackpressure
	}
}

// push hands a frame to the session; it gives up once the socket is closed.
func (c *Conn) push(f core.Frame) bool {
	select {
	case c.inbound <- f:
		return true
	case <-c.closed:
		return false
	}
}

func (c *Conn) readPump() {
	defer close(c.inbound)

	c.conn.SetReadLimit(c.opts.ReadLimit)
	// Control frames are surfaced to the session instead of being answered
	// here, so liveness and close echo stay in one place.
	c.conn.SetPingHandler(func(appData string) error {
		c.push(core.Frame{Kind: core.FramePing, Payload: []byte(appData)})
		return nil
	})
	c.conn.SetPongHandler(func(appData string) error {
		c.push(core.Frame{Kind: core.FramePong, Payload: []byte(appData)})
		return nil
	})
	c.conn.SetCloseHandler(func(int, string) error { return nil })

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			c.push(classifyReadError(err))
			c.logger.Debug().Err(err).Msg("readPump closing")
			return
		}
		kind := core.FrameText
		if mt == websocket.BinaryMessage {
			kind = core.FrameBinary
		}
		if !c.push(core.Frame{Kind: kind, Payload: data}) {
			return
		}
	}
}

// classifyReadError maps a read failure to a frame. Gorilla reports a peer
// that vanished without a close frame as a 1006 close error; that is a
// transport failure, not a closing handshake.
func classifyReadError(err error) core.Frame {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
		return core.Frame{Kind: core.FrameClose, Close: &core.CloseReason{Code: ce.Code, Text: ce.Text}}
	}
	return core.Frame{Kind: core.FrameError, Err: err}
}

func (c *Conn) writePump() {
	defer func() { _ = c.Abort() }()

	for {
		// control frames first
		select {
		case f := <-c.control:
			if !c.write(f) {
				return
			}
			continue
		default:
		}

		select {
		case <-c.closed:
			return
		case f := <-c.control:
			if !c.write(f) {
				return
			}
		case f := <-c.send:
			if !c.write(f) {
				return
			}
		}
	}
}

// write puts one frame on the wire. It reports false once the pump should stop.
func (c *Conn) write(f outFrame) bool {
	deadline := time.Now().Add(c.opts.WriteWait)
	var err error
	switch f.messageType {
	case websocket.PingMessage, websocket.PongMessage:
		err = c.conn.WriteControl(f.messageType, f.data, deadline)
	case websocket.CloseMessage:
		err = c.conn.WriteControl(f.messageType, f.data, deadline)
		if err != nil {
			c.logger.Debug().Err(err).Msg("writePump close frame")
		}
		return false
	default:
		if err = c.conn.SetWriteDeadline(deadline); err == nil {
			err = c.conn.WriteMessage(f.messageType, f.data)
		}
	}
	if err != nil {
		c.logger.Debug().Err(err).Msg("writePump write error")
		return false
	}
	return true
}
