package core

import (
	"context"

	"github.com/dkeye/Relay/internal/domain"
)

// OutboundMessage is text the directory addresses to exactly one session.
type OutboundMessage struct {
	To   domain.SessionID
	Text string
}

// Mailbox is the return address a session hands to the directory on join.
// Deliver must not block the caller.
type Mailbox interface {
	Deliver(msg OutboundMessage) error
}

// Directory is the session-facing API of the room registry.
// It is safe for concurrent use by many sessions and never reaches
// into session state; it only talks back through a Mailbox.
type Directory interface {
	Join(ctx context.Context, id domain.SessionID, room domain.RoomID, mb Mailbox) error
	// Leave is best-effort and idempotent.
	Leave(id domain.SessionID, room domain.RoomID)
	Relay(from domain.SessionID, room domain.RoomID, text string)
}

// RoomInfo is a read-only view for APIs.
type RoomInfo struct {
	Name        domain.RoomID `json:"name"`
	MemberCount int           `json:"client_count"`
}
