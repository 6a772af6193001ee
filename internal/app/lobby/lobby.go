// Package lobby is the room directory: it tracks which sessions belong to
// which room and fans text out to room members.
//
// All membership state is owned by the goroutine running Lobby.Run. Callers
// only ever send it commands, so the lobby is safe to share between
// sessions without locks.
package lobby

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/metrics"
)

const (
	DefaultBuffer       = 256
	DefaultLeaveTimeout = 5 * time.Second
)

var (
	ErrLobbyClosed   = errors.New("lobby closed")
	ErrLobbyBusy     = errors.New("lobby command queue full")
	ErrAlreadyJoined = errors.New("session already joined")
)

type Config struct {
	// Buffer is the capacity of the command queue.
	Buffer int
	// Announce enables the join/leave notices sent to room members.
	Announce bool
	// LeaveTimeout bounds how long Leave waits for queue space.
	LeaveTimeout time.Duration
	Logger       *zerolog.Logger
}

type Lobby struct {
	cmds   chan command
	done   chan struct{}
	logger zerolog.Logger
	cfg    Config

	// owned by Run
	rooms   map[domain.RoomID]*core.Room
	members map[domain.SessionID]domain.RoomID
}

var _ core.Directory = (*Lobby)(nil)

func New(cfg Config) *Lobby {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.LeaveTimeout <= 0 {
		cfg.LeaveTimeout = DefaultLeaveTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = &log.Logger
	}
	return &Lobby{
		cmds:    make(chan command, cfg.Buffer),
		done:    make(chan struct{}),
		logger:  cfg.Logger.With().Str("module", "app.lobby").Logger(),
		cfg:     cfg,
		rooms:   make(map[domain.RoomID]*core.Room),
		members: make(map[domain.SessionID]domain.RoomID),
	}
}

// Run processes commands until ctx is done. It must be called exactly once.
func (l *Lobby) Run(ctx context.Context) {
	defer close(l.done)
	l.logger.Info().Msg("lobby started")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Int("rooms", len(l.rooms)).Int("members", len(l.members)).Msg("lobby stopped")
			return
		case cmd := <-l.cmds:
			cmd.apply(l)
		}
	}
}

// Done is closed once Run has returned.
func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) Join(ctx context.Context, id domain.SessionID, room domain.RoomID, mb core.Mailbox) error {
	reply := make(chan error, 1)
	if err := l.send(ctx, joinCmd{id: id, room: room, mb: mb, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLobbyClosed
	}
}

// Leave waits at most LeaveTimeout for the command queue.
func (l *Lobby) Leave(id domain.SessionID, room domain.RoomID) {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.LeaveTimeout)
	defer cancel()
	if err := l.send(ctx, leaveCmd{id: id, room: room}); err != nil {
		l.logger.Warn().Err(err).Str("sid", string(id)).Str("room", string(room)).Msg("leave not delivered")
	}
}

// Relay never blocks: text is dropped when the command queue is full.
func (l *Lobby) Relay(from domain.SessionID, room domain.RoomID, text string) {
	if err := l.trySend(relayCmd{from: from, room: room, text: text}); err != nil {
		if errors.Is(err, ErrLobbyBusy) {
			metrics.MessagesDropped.Inc()
		}
		l.logger.Warn().Err(err).Str("sid", string(from)).Msg("relay not delivered")
	}
}

// Rooms lists the rooms that currently have members, sorted by name.
func (l *Lobby) Rooms(ctx context.Context) ([]core.RoomInfo, error) {
	reply := make(chan []core.RoomInfo, 1)
	if err := l.send(ctx, roomsCmd{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case rooms := <-reply:
		return rooms, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrLobbyClosed
	}
}

// Members lists the sessions in room, sorted. ok is false if the room has
// no members.
func (l *Lobby) Members(ctx context.Context, room domain.RoomID) (members []domain.SessionID, ok bool, err error) {
	reply := make(chan []domain.SessionID, 1)
	if err := l.send(ctx, membersCmd{room: room, reply: reply}); err != nil {
		return nil, false, err
	}
	select {
	case members = <-reply:
		return members, members != nil, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-l.done:
		return nil, false, ErrLobbyClosed
	}
}

func (l *Lobby) send(ctx context.Context, cmd command) error {
	select {
	case <-l.done:
		return ErrLobbyClosed
	default:
	}
	select {
	case l.cmds <- cmd:
		return nil
	case <-l.done:
		return ErrLobbyClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lobby) trySend(cmd command) error {
	select {
	case <-l.done:
		return ErrLobbyClosed
	default:
	}
	select {
	case l.cmds <- cmd:
		return nil
	default:
		return ErrLobbyBusy
	}
}

type command interface {
	apply(l *Lobby)
}

type joinCmd struct {
	id    domain.SessionID
	room  domain.RoomID
	mb    core.Mailbox
	reply chan<- error
}

func (c joinCmd) apply(l *Lobby) {
	if current, ok := l.members[c.id]; ok {
		c.reply <- errors.Wrapf(ErrAlreadyJoined, "sid %s in room %s", c.id, current)
		return
	}
	room, ok := l.rooms[c.room]
	if !ok {
		room = core.NewRoom(c.room)
		l.rooms[c.room] = room
		metrics.RoomsActive.Inc()
	}
	if l.cfg.Announce {
		l.publish(room, c.id, fmt.Sprintf("%s just joined!", c.id))
	}
	room.AddMember(c.id, c.mb)
	l.members[c.id] = c.room
	c.reply <- nil

	l.logger.Info().Str("sid", string(c.id)).Str("room", string(c.room)).Int("members", room.MemberCount()).Msg("joined")
	if l.cfg.Announce {
		l.deliver(room, c.id, fmt.Sprintf("your id is %s", c.id))
	}
}

type leaveCmd struct {
	id   domain.SessionID
	room domain.RoomID
}

func (c leaveCmd) apply(l *Lobby) {
	if current, ok := l.members[c.id]; !ok || current != c.room {
		return
	}
	delete(l.members, c.id)
	room := l.rooms[c.room]
	room.RemoveMember(c.id)
	l.logger.Info().Str("sid", string(c.id)).Str("room", string(c.room)).Int("members", room.MemberCount()).Msg("left")

	if room.MemberCount() == 0 {
		delete(l.rooms, c.room)
		metrics.RoomsActive.Dec()
		return
	}
	if l.cfg.Announce {
		l.publish(room, c.id, fmt.Sprintf("%s disconnected", c.id))
	}
}

type relayCmd struct {
	from domain.SessionID
	room domain.RoomID
	text string
}

func (c relayCmd) apply(l *Lobby) {
	room, ok := l.rooms[c.room]
	if !ok || !room.Has(c.from) {
		l.logger.Warn().Str("sid", string(c.from)).Str("room", string(c.room)).Msg("relay from non-member dropped")
		return
	}
	metrics.MessagesRelayed.Inc()
	l.publish(room, c.from, c.text)
}

type roomsCmd struct {
	reply chan<- []core.RoomInfo
}

func (c roomsCmd) apply(l *Lobby) {
	infos := lo.MapToSlice(l.rooms, func(id domain.RoomID, r *core.Room) core.RoomInfo {
		return core.RoomInfo{Name: id, MemberCount: r.MemberCount()}
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	c.reply <- infos
}

type membersCmd struct {
	room  domain.RoomID
	reply chan<- []domain.SessionID
}

func (c membersCmd) apply(l *Lobby) {
	room, ok := l.rooms[c.room]
	if !ok {
		c.reply <- nil
		return
	}
	members := room.Members()
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	c.reply <- members
}

// publish fans text out to every member of room but from.
func (l *Lobby) publish(room *core.Room, from domain.SessionID, text string) {
	res := room.Broadcast(from, text)
	metrics.MessagesDelivered.Add(float64(res.SendTo))
	if len(res.Dropped) == 0 {
		return
	}
	metrics.DeliveriesDropped.Add(float64(len(res.Dropped)))
	l.logger.Warn().
		Str("room", string(room.ID())).
		Strs("dropped", lo.Map(res.Dropped, func(sid domain.SessionID, _ int) string { return string(sid) })).
		Msg("deliveries dropped")
}

func (l *Lobby) deliver(room *core.Room, to domain.SessionID, text string) {
	if err := room.Send(to, text); err != nil {
		metrics.DeliveriesDropped.Inc()
		l.logger.Warn().Err(err).Str("sid", string(to)).Msg("delivery dropped")
		return
	}
	metrics.MessagesDelivered.Inc()
}
