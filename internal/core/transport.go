package core

// FrameKind classifies one inbound transport frame.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
	FramePing
	FramePong
	FrameClose
	FrameContinuation
	FrameNop
	FrameError
)

var frameKindNames = map[FrameKind]string{
	FrameText:         "text",
	FrameBinary:       "binary",
	FramePing:         "ping",
	FramePong:         "pong",
	FrameClose:        "close",
	FrameContinuation: "continuation",
	FrameNop:          "nop",
	FrameError:        "error",
}

func (k FrameKind) String() string {
	if name, ok := frameKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Close codes used by the session, RFC 6455 section 7.4.1.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseProtocolError = 1002
	CloseNoStatus      = 1005
)

// CloseReason is the code and text carried by a close frame.
type CloseReason struct {
	Code int
	Text string
}

// Frame is one discrete inbound unit delivered by the transport adapter.
// Close is set for FrameClose, Err for FrameError.
type Frame struct {
	Kind    FrameKind
	Payload []byte
	Close   *CloseReason
	Err     error
}

// Transport abstracts a framed, bidirectional client connection.
// Owned by the adapter; the session only reads Inbound and issues writes.
// Inbound is closed by the adapter once the peer side is gone.
type Transport interface {
	Inbound() <-chan Frame

	SendText(text string) error
	SendBinary(data []byte) error
	SendPing(payload []byte) error
	SendPong(payload []byte) error
	// SendClose queues a close frame and shuts the connection once it is written.
	SendClose(reason CloseReason) error
	// Abort drops the connection without a closing handshake.
	Abort() error
}
