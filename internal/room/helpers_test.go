// internal/room/helpers_test.go
package room

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/threes/internal/cache"
	"github.com/jason-s-yu/threes/internal/database"
	"github.com/jason-s-yu/threes/internal/game"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// sentEvent is one delivery seen by the mock notifier.
type sentEvent struct {
	To     uuid.UUID // uuid.Nil for broadcasts
	Except uuid.UUID
	Event  Event
}

// mockNotifier records deliveries instead of writing to connections.
type mockNotifier struct {
	mu       sync.Mutex
	events   []sentEvent
	attached map[string]map[uuid.UUID]Client
	released []string
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{attached: make(map[string]map[uuid.UUID]Client)}
}

func (n *mockNotifier) Attach(code string, id uuid.UUID, c Client) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.attached[code] == nil {
		n.attached[code] = make(map[uuid.UUID]Client)
	}
	n.attached[code][id] = c
}

func (n *mockNotifier) Detach(code string, id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.attached[code], id)
}

func (n *mockNotifier) Send(code string, id uuid.UUID, ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{To: id, Event: ev})
}

func (n *mockNotifier) Broadcast(code string, ev Event, except uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{Except: except, Event: ev})
}

func (n *mockNotifier) Release(code string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.attached, code)
	n.released = append(n.released, code)
}

func (n *mockNotifier) clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

func (n *mockNotifier) isAttached(code string, id uuid.UUID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.attached[code][id]
	return ok
}

// last returns the most recent delivery of type t, or nil.
func (n *mockNotifier) last(t EventType) *sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].Event.Type == t {
			ev := n.events[i]
			return &ev
		}
	}
	return nil
}

func (n *mockNotifier) count(t EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if ev.Event.Type == t {
			c++
		}
	}
	return c
}

func (n *mockNotifier) types() []EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]EventType, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Event.Type
	}
	return out
}

type nopClient struct{}

func (nopClient) Send(Event) bool { return true }
func (nopClient) Close(string)    {}

type mockHistory struct{ mock.Mock }

func (m *mockHistory) RecordGame(ctx context.Context, rec database.GameRecord) (int64, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(int64), args.Error(1)
}

type mockDirectory struct{ mock.Mock }

func (m *mockDirectory) UpsertPlayer(ctx context.Context, sessionID, nickname string) error {
	return m.Called(ctx, sessionID, nickname).Error(0)
}

type mockActionLog struct{ mock.Mock }

func (m *mockActionLog) Publish(ctx context.Context, rec cache.ActionRecord) error {
	return m.Called(ctx, rec).Error(0)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// faces returns a roller that always shows face.
func faces(face int) game.Roller {
	return game.RollerFunc(func() int { return face })
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// setupCoordinator builds a coordinator with a recording notifier, a fixed
// roller of all threes and a short pacing delay.
func setupCoordinator(t *testing.T, opts Options) (*Coordinator, *mockNotifier) {
	t.Helper()
	mn := newMockNotifier()
	opts.Notifier = mn
	if opts.Roller == nil {
		opts.Roller = faces(3)
	}
	if opts.TurnDelay == 0 {
		opts.TurnDelay = 5 * time.Millisecond
	}
	opts.Logger = quietLogger()
	c := NewCoordinator(opts)
	t.Cleanup(c.Shutdown)
	return c, mn
}

// setupRoom creates a room hosted by the first nickname and joins the rest.
func setupRoom(t *testing.T, c *Coordinator, nicknames ...string) []Membership {
	t.Helper()
	host, err := c.CreateRoom(nopClient{}, nicknames[0])
	require.NoError(t, err)
	members := []Membership{host}
	for _, name := range nicknames[1:] {
		m, err := c.JoinRoom(nopClient{}, host.Code, name)
		require.NoError(t, err)
		members = append(members, m)
	}
	return members
}

// roomState reads status and current turn index under the room lock.
func roomState(t *testing.T, c *Coordinator, code string) (Status, int) {
	t.Helper()
	r, ok := c.Registry().Get(code)
	require.True(t, ok, "room %s should exist", code)
	r.Mu.Lock()
	defer r.Mu.Unlock()
	turn := -1
	if r.Game != nil {
		turn = r.Game.CurrentPlayerIndex
	}
	return r.Status, turn
}

// playTurn rolls once and keeps every die, ending m's turn.
func playTurn(t *testing.T, c *Coordinator, m Membership) {
	t.Helper()
	require.NoError(t, c.Roll(m))
	require.NoError(t, c.Keep(m, []int{0, 1, 2, 3, 4}))
}

// playGame starts a game and plays every turn until the room is finished.
func playGame(t *testing.T, c *Coordinator, members []Membership) {
	t.Helper()
	require.NoError(t, c.StartGame(members[0]))
	for i, m := range members {
		require.Eventually(t, func() bool {
			_, turn := roomState(t, c, m.Code)
			return turn == i
		}, time.Second, time.Millisecond)
		playTurn(t, c, m)
	}
	require.Eventually(t, func() bool {
		st, _ := roomState(t, c, members[0].Code)
		return st == StatusFinished
	}, time.Second, time.Millisecond)
}
