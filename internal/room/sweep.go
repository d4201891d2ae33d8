// internal/room/sweep.go
package room

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReasonInactivity is sent in room_closed when a room idles out.
const ReasonInactivity = "inactivity"

// Run evicts idle rooms every sweep interval until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.log.Infof("evicted %d idle rooms, %d remain", n, c.rooms.Len())
			}
		}
	}
}

// Sweep closes every room whose last activity is older than the idle timeout
// and returns how many were closed. Each room is re-checked under its own
// lock so an action that lands during the sweep keeps the room alive.
func (c *Coordinator) Sweep() int {
	evicted := 0
	for _, r := range c.rooms.Rooms() {
		r.Mu.Lock()
		if r.closed || c.now().Sub(r.LastActivity) <= c.idleTimeout {
			r.Mu.Unlock()
			continue
		}
		out := &outbox{}
		c.broadcast(r, out, uuid.Nil, Event{Type: EventRoomClosed, RoomCode: r.Code, Reason: ReasonInactivity}, uuid.Nil)
		c.destroy(r, out)
		c.commit(r, out)
		c.log.WithField("room", r.Code).Info("room closed due to inactivity")
		evicted++
	}
	return evicted
}

// Shutdown cancels pending turn pacing in every room and waits for background
// persistence to drain.
func (c *Coordinator) Shutdown() {
	for _, r := range c.rooms.Rooms() {
		r.Mu.Lock()
		r.stopPacing()
		r.Mu.Unlock()
	}
	c.Wait()
}
