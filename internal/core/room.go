package core

import (
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// PublishResult reports delivery stats to the directory.
type PublishResult struct {
	SendTo  int
	Dropped []domain.SessionID
}

// Room is the membership set of one room.
// It is not safe for concurrent use; the directory goroutine owns it.
type Room struct {
	id      domain.RoomID
	members map[domain.SessionID]Mailbox
}

func NewRoom(id domain.RoomID) *Room {
	return &Room{
		id:      id,
		members: make(map[domain.SessionID]Mailbox),
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) MemberCount() int { return len(r.members) }

func (r *Room) Has(sid domain.SessionID) bool {
	_, ok := r.members[sid]
	return ok
}

func (r *Room) AddMember(sid domain.SessionID, mb Mailbox) {
	r.members[sid] = mb
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(sid)).Msg("member added")
}

// RemoveMember reports whether sid was a member.
func (r *Room) RemoveMember(sid domain.SessionID) bool {
	if _, ok := r.members[sid]; !ok {
		return false
	}
	delete(r.members, sid)
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(sid)).Msg("member removed")
	return true
}

// Send delivers text to a single member.
func (r *Room) Send(to domain.SessionID, text string) error {
	mb, ok := r.members[to]
	if !ok {
		return nil
	}
	return mb.Deliver(OutboundMessage{To: to, Text: text})
}

// Broadcast delivers text to every member except from.
func (r *Room) Broadcast(from domain.SessionID, text string) PublishResult {
	res := PublishResult{}
	for sid, mb := range r.members {
		if sid == from {
			continue
		}
		if err := mb.Deliver(OutboundMessage{To: sid, Text: text}); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *Room) Members() []domain.SessionID {
	out := make([]domain.SessionID, 0, len(r.members))
	for sid := range r.members {
		out = append(out, sid)
	}
	return out
}
