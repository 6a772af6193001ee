package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

const testRoom domain.RoomID = "room-r"

type fakeTransport struct {
	in chan core.Frame

	mu       sync.Mutex
	texts    []string
	binaries [][]byte
	pings    [][]byte
	pongs    [][]byte
	closes   []core.CloseReason
	aborts   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan core.Frame)}
}

func (t *fakeTransport) Inbound() <-chan core.Frame { return t.in }

func (t *fakeTransport) SendText(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.texts = append(t.texts, text)
	return nil
}

func (t *fakeTransport) SendBinary(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.binaries = append(t.binaries, data)
	return nil
}

func (t *fakeTransport) SendPing(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pings = append(t.pings, payload)
	return nil
}

func (t *fakeTransport) SendPong(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pongs = append(t.pongs, payload)
	return nil
}

func (t *fakeTransport) SendClose(reason core.CloseReason) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes = append(t.closes, reason)
	return nil
}

func (t *fakeTransport) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aborts++
	return nil
}

func (t *fakeTransport) pingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pings)
}

func (t *fakeTransport) pingList() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.pings...)
}

func (t *fakeTransport) pongList() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.pongs...)
}

func (t *fakeTransport) textList() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.texts...)
}

func (t *fakeTransport) binaryList() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.binaries...)
}

func (t *fakeTransport) closeList() []core.CloseReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.CloseReason(nil), t.closes...)
}

func (t *fakeTransport) abortCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aborts
}

// feed hands a frame to the session unless it has already finished.
func (t *fakeTransport) feed(s *Session, f core.Frame) bool {
	select {
	case t.in <- f:
		return true
	case <-s.Done():
		return false
	}
}

type relayCall struct {
	From domain.SessionID
	Room domain.RoomID
	Text string
}

type fakeDirectory struct {
	joinErr    error
	blockJoin  bool
	blockRelay bool
	blockLeave bool

	// release unblocks every pending Relay and Leave.
	release     chan struct{}
	releaseOnce sync.Once

	mu     sync.Mutex
	joins  []domain.SessionID
	leaves []domain.SessionID
	relays []relayCall
	boxes  map[domain.SessionID]core.Mailbox
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		boxes:   make(map[domain.SessionID]core.Mailbox),
		release: make(chan struct{}),
	}
}

func (d *fakeDirectory) unblock() {
	d.releaseOnce.Do(func() { close(d.release) })
}

func (d *fakeDirectory) Join(ctx context.Context, id domain.SessionID, _ domain.RoomID, mb core.Mailbox) error {
	d.mu.Lock()
	d.joins = append(d.joins, id)
	d.boxes[id] = mb
	d.mu.Unlock()
	if d.blockJoin {
		<-ctx.Done()
		return ctx.Err()
	}
	return d.joinErr
}

func (d *fakeDirectory) Leave(id domain.SessionID, _ domain.RoomID) {
	d.mu.Lock()
	d.leaves = append(d.leaves, id)
	d.mu.Unlock()
	if d.blockLeave {
		<-d.release
	}
}

func (d *fakeDirectory) Relay(from domain.SessionID, room domain.RoomID, text string) {
	d.mu.Lock()
	d.relays = append(d.relays, relayCall{From: from, Room: room, Text: text})
	d.mu.Unlock()
	if d.blockRelay {
		<-d.release
	}
}

func (d *fakeDirectory) joinCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.joins)
}

func (d *fakeDirectory) leaveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.leaves)
}

func (d *fakeDirectory) relayList() []relayCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]relayCall(nil), d.relays...)
}

func (d *fakeDirectory) mailbox(id domain.SessionID) core.Mailbox {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.boxes[id]
}

func testConfig(clock clockwork.Clock) Config {
	nop := zerolog.Nop()
	return Config{
		HeartbeatInterval: 5 * time.Second,
		ClientTimeout:     10 * time.Second,
		JoinTimeout:       time.Second,
		LeaveTimeout:      100 * time.Millisecond,
		MailboxSize:       8,
		Clock:             clock,
		Logger:            &nop,
	}
}

type harness struct {
	s     *Session
	tr    *fakeTransport
	dir   *fakeDirectory
	clock *clockwork.FakeClock
	errc  chan error
}

// start runs a session and waits until it has joined.
func start(t *testing.T, ctx context.Context, dir *fakeDirectory) *harness {
	t.Helper()
	h := &harness{
		tr:    newFakeTransport(),
		dir:   dir,
		clock: clockwork.NewFakeClock(),
		errc:  make(chan error, 1),
	}
	h.s = New(testRoom, h.dir, h.tr, testConfig(h.clock))
	go func() { h.errc <- h.s.Run(ctx) }()
	require.Eventually(t, func() bool { return dir.joinCount() == 1 }, time.Second, time.Millisecond)
	return h
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
		return nil
	}
}
