// internal/room/sweep_test.go
package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepEvictsIdleRooms(t *testing.T) {
	clock := newFakeClock()
	c, mn := setupCoordinator(t, Options{Now: clock.Now, IdleTimeout: time.Minute})
	idle := setupRoom(t, c, "Alice")

	clock.Advance(45 * time.Second)
	busy := setupRoom(t, c, "Bob")

	assert.Equal(t, 0, c.Sweep(), "nothing has idled out yet")

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Registry().Len())

	closed := mn.last(EventRoomClosed)
	require.NotNil(t, closed)
	assert.Equal(t, ReasonInactivity, closed.Event.Reason)
	assert.Equal(t, idle[0].Code, closed.Event.RoomCode)
	assert.Contains(t, mn.released, idle[0].Code)

	assert.ErrorIs(t, c.Chat(idle[0], "anyone?"), ErrRoomNotFound)
	assert.NoError(t, c.Chat(busy[0], "still here"))
}

func TestSweepCancelsPacing(t *testing.T) {
	clock := newFakeClock()
	c, mn := setupCoordinator(t, Options{Now: clock.Now, TurnDelay: 30 * time.Millisecond})
	members := setupRoom(t, c, "Alice", "Bob")
	require.NoError(t, c.StartGame(members[0]))
	playTurn(t, c, members[0])

	clock.Advance(DefaultIdleTimeout + time.Second)
	require.Equal(t, 1, c.Sweep())

	time.Sleep(80 * time.Millisecond)
	assert.Nil(t, mn.last(EventTurnStarted), "a destroyed room must not advance")
}

func TestRunStopsWithContext(t *testing.T) {
	clock := newFakeClock()
	c, _ := setupCoordinator(t, Options{Now: clock.Now, IdleTimeout: time.Minute, SweepInterval: 5 * time.Millisecond})
	setupRoom(t, c, "Alice")
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.Registry().Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
