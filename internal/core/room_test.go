package core

import (
	"errors"
	"testing"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailbox struct {
	got  []OutboundMessage
	fail bool
}

func (m *recordingMailbox) Deliver(msg OutboundMessage) error {
	if m.fail {
		return errors.New("full")
	}
	m.got = append(m.got, msg)
	return nil
}

func TestRoomBroadcastSkipsSender(t *testing.T) {
	r := NewRoom("r1")
	a, b, c := &recordingMailbox{}, &recordingMailbox{}, &recordingMailbox{fail: true}
	r.AddMember("a", a)
	r.AddMember("b", b)
	r.AddMember("c", c)

	res := r.Broadcast("a", "hello")

	assert.Equal(t, 1, res.SendTo)
	assert.Equal(t, []domain.SessionID{"c"}, res.Dropped)
	assert.Empty(t, a.got)
	require.Len(t, b.got, 1)
	assert.Equal(t, OutboundMessage{To: "b", Text: "hello"}, b.got[0])
}

func TestRoomAddRemove(t *testing.T) {
	r := NewRoom("r1")
	assert.Equal(t, domain.RoomID("r1"), r.ID())
	r.AddMember("a", &recordingMailbox{})
	assert.True(t, r.Has("a"))
	assert.Equal(t, 1, r.MemberCount())

	assert.True(t, r.RemoveMember("a"))
	assert.False(t, r.RemoveMember("a"))
	assert.Equal(t, 0, r.MemberCount())
}

func TestRoomSendToSingleMember(t *testing.T) {
	r := NewRoom("r1")
	a := &recordingMailbox{}
	r.AddMember("a", a)

	require.NoError(t, r.Send("a", "your id is a"))
	require.NoError(t, r.Send("ghost", "nobody"))
	assert.Equal(t, []OutboundMessage{{To: "a", Text: "your id is a"}}, a.got)
}

func TestFrameKindString(t *testing.T) {
	assert.Equal(t, "continuation", FrameContinuation.String())
	assert.Equal(t, "unknown", FrameKind(99).String())
}
