// internal/room/rematch.go
package room

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestRematch records the caller's vote for another game. The first vote
// opens the poll; accepting twice is a no-op. The rematch starts once every
// connected player has voted.
func (c *Coordinator) RequestRematch(m Membership) error {
	r, idx, err := c.acquire(m)
	if err != nil {
		return err
	}
	out := &outbox{}
	err = c.voteRematch(r, idx, out)
	c.commit(r, out)
	return err
}

// AcceptRematch is RequestRematch under the name clients use to answer a poll.
func (c *Coordinator) AcceptRematch(m Membership) error {
	return c.RequestRematch(m)
}

func (c *Coordinator) voteRematch(r *Room, idx int, out *outbox) error {
	if r.Status != StatusFinished {
		return ErrGameNotFinished
	}
	p := r.Players[idx]
	if r.Rematch == nil {
		r.Rematch = &RematchVote{ProposedBy: p.ID, AcceptedBy: []uuid.UUID{p.ID}}
	} else if !r.Rematch.accepted(p.ID) {
		r.Rematch.AcceptedBy = append(r.Rematch.AcceptedBy, p.ID)
	}
	r.touch(c.now())

	c.broadcast(r, out, p.ID, Event{Type: EventRematchProposed, RematchInfo: r.rematchInfo()}, uuid.Nil)
	c.checkRematch(r, out)
	return nil
}

// checkRematch starts the rematch if the vote covers every connected player.
// Assumes r.Mu is held.
func (c *Coordinator) checkRematch(r *Room, out *outbox) {
	if r.Rematch == nil {
		return
	}
	connected := r.connected()
	if len(connected) == 0 {
		return
	}
	for _, p := range connected {
		if !r.Rematch.accepted(p.ID) {
			return
		}
	}
	c.beginGame(r, out, uuid.Nil, EventRematchStarted)
	c.log.WithFields(logrus.Fields{"room": r.Code, "players": len(r.Players)}).Info("rematch started")
}
