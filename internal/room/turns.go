// internal/room/turns.go
package room

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/threes/internal/database"
	"github.com/jason-s-yu/threes/internal/game"
	"github.com/sirupsen/logrus"
)

// StartGame moves a waiting room into play. Only the host may call it.
func (c *Coordinator) StartGame(m Membership) error {
	r, idx, err := c.acquire(m)
	if err != nil {
		return err
	}
	out := &outbox{}
	err = c.startGame(r, idx, out)
	c.commit(r, out)
	return err
}

func (c *Coordinator) startGame(r *Room, idx int, out *outbox) error {
	p := r.Players[idx]
	switch {
	case r.HostID != p.ID:
		return ErrNotHost
	case r.Status != StatusWaiting:
		return ErrGameInProgress
	case len(r.Players) == 0:
		return ErrNoPlayers
	}
	c.beginGame(r, out, p.ID, EventGameStarted)
	c.log.WithFields(logrus.Fields{"room": r.Code, "players": len(r.Players)}).Info("game started")
	return nil
}

// beginGame deals a fresh game in the current player order. Used for both the
// first game and rematches. Assumes r.Mu is held.
func (c *Coordinator) beginGame(r *Room, out *outbox, actor uuid.UUID, t EventType) {
	now := c.now()
	r.stopPacing()
	r.Game = game.NewGame(len(r.Players), now)
	r.Status = StatusPlaying
	r.Rematch = nil
	r.touch(now)

	c.broadcast(r, out, actor, Event{
		Type:     t,
		Players:  r.playerInfos(),
		TurnInfo: r.turnInfo(),
	}, uuid.Nil)
}

// Roll throws the caller's unkept dice.
func (c *Coordinator) Roll(m Membership) error {
	r, idx, err := c.acquire(m)
	if err != nil {
		return err
	}
	out := &outbox{}
	err = c.roll(r, idx, out)
	c.commit(r, out)
	return err
}

func (c *Coordinator) roll(r *Room, idx int, out *outbox) error {
	st, err := c.turnState(r, idx)
	if err != nil {
		return err
	}
	if err := game.ValidateRoll(st); err != nil {
		return err
	}

	res := game.ApplyRoll(st, c.roller)
	r.touch(c.now())
	if res.Ended {
		c.endTurn(r, idx, out)
		return nil
	}

	p := r.Players[idx]
	c.broadcast(r, out, p.ID, Event{
		Type:     EventDiceRolled,
		PlayerID: p.ID.String(),
		DiceInfo: diceInfo(st),
	}, uuid.Nil)
	return nil
}

// Keep locks in the caller's active dice at the given positions.
func (c *Coordinator) Keep(m Membership, indices []int) error {
	r, idx, err := c.acquire(m)
	if err != nil {
		return err
	}
	out := &outbox{}
	err = c.keep(r, idx, indices, out)
	c.commit(r, out)
	return err
}

func (c *Coordinator) keep(r *Room, idx int, indices []int, out *outbox) error {
	st, err := c.turnState(r, idx)
	if err != nil {
		return err
	}
	if err := game.ValidateKeep(st, indices); err != nil {
		return err
	}

	res := game.ApplyKeep(st, indices)
	r.touch(c.now())
	if res.Ended {
		c.endTurn(r, idx, out)
		return nil
	}

	p := r.Players[idx]
	c.broadcast(r, out, p.ID, Event{
		Type:     EventDiceKept,
		PlayerID: p.ID.String(),
		DiceInfo: diceInfo(st),
	}, uuid.Nil)
	return nil
}

// turnState returns the state of the player at idx if it is their turn.
func (c *Coordinator) turnState(r *Room, idx int) (*game.PlayerTurnState, error) {
	if r.Status != StatusPlaying || r.Game == nil {
		return nil, ErrGameNotInProgress
	}
	if r.Game.CurrentPlayerIndex != idx {
		return nil, ErrNotYourTurn
	}
	return r.Game.States[idx], nil
}

// endTurn announces the finished turn and schedules what follows it.
// Assumes r.Mu is held.
func (c *Coordinator) endTurn(r *Room, idx int, out *outbox) {
	p := r.Players[idx]
	st := r.Game.States[idx]
	c.broadcast(r, out, p.ID, Event{
		Type:     EventTurnEnded,
		PlayerID: p.ID.String(),
		Nickname: p.Nickname,
		TurnEnd: &TurnEnd{
			FinalScore: st.FinalScore,
			FinalDice:  append([]int{}, st.KeptDice...),
		},
	}, uuid.Nil)

	if r.Game.IsLastTurn() {
		c.schedule(r, c.endGame)
		return
	}
	c.schedule(r, c.advanceTurn)
}

// schedule runs fn on r after the pacing delay. Only the latest scheduled
// callback for a room runs, and never after the room is destroyed.
// Assumes r.Mu is held.
func (c *Coordinator) schedule(r *Room, fn func(r *Room, out *outbox)) {
	r.stopPacing()
	seq := r.pacingSeq
	r.pacing = time.AfterFunc(c.turnDelay, func() {
		r.Mu.Lock()
		if r.closed || r.pacingSeq != seq {
			r.Mu.Unlock()
			c.log.WithField("room", r.Code).Debug("stale pacing callback ignored")
			return
		}
		r.pacing = nil
		out := &outbox{}
		fn(r, out)
		c.commit(r, out)
	})
}

// advanceTurn hands the turn to the next player. Assumes r.Mu is held.
func (c *Coordinator) advanceTurn(r *Room, out *outbox) {
	if r.Status != StatusPlaying || r.Game == nil {
		return
	}
	if !r.Game.Advance() {
		c.endGame(r, out)
		return
	}
	turn := r.turnInfo()
	c.broadcast(r, out, uuid.Nil, Event{
		Type:     EventTurnStarted,
		TurnInfo: turn,
	}, uuid.Nil)
	// a disconnected player keeps their turn until they reconnect or the room idles out
	if !r.Players[r.Game.CurrentPlayerIndex].Connected {
		c.log.WithFields(logrus.Fields{"room": r.Code, "player": turn.CurrentPlayerID}).Info("turn passed to a disconnected player")
	}
}

// endGame finalizes standings and hands them to the history sink.
// Assumes r.Mu is held.
func (c *Coordinator) endGame(r *Room, out *outbox) {
	if r.Status != StatusPlaying || r.Game == nil {
		return
	}
	now := c.now()
	r.Status = StatusFinished
	r.Rematch = nil
	r.touch(now)

	winnerIdx, best := game.Standings(r.Game.States)
	isWinner := make(map[int]bool, len(winnerIdx))
	for _, i := range winnerIdx {
		isWinner[i] = true
	}

	summary := &GameSummary{
		Results:      make([]PlayerResult, len(r.Players)),
		Winners:      make([]Winner, 0, len(winnerIdx)),
		WinningScore: best,
	}
	rec := database.GameRecord{
		RoomCode:     r.Code,
		StartedAt:    r.Game.StartedAt,
		FinishedAt:   now,
		WinningScore: best,
		Participants: make([]database.ParticipantRecord, len(r.Players)),
	}
	var winnerNames []string
	for i, p := range r.Players {
		st := r.Game.States[i]
		dice := append([]int{}, st.KeptDice...)
		summary.Results[i] = PlayerResult{
			PlayerID: p.ID.String(),
			Nickname: p.Nickname,
			Score:    st.FinalScore,
			Dice:     dice,
			IsWinner: isWinner[i],
		}
		if isWinner[i] {
			summary.Winners = append(summary.Winners, Winner{ID: p.ID.String(), Nickname: p.Nickname})
			winnerNames = append(winnerNames, p.Nickname)
		}
		part := database.ParticipantRecord{
			Nickname:  p.Nickname,
			Score:     st.FinalScore,
			Dice:      dice,
			TurnOrder: i + 1,
			IsWinner:  isWinner[i],
		}
		if p.SessionBound {
			part.SessionID = p.SessionToken
		}
		rec.Participants[i] = part
	}
	rec.WinnerNickname = strings.Join(winnerNames, ", ")

	c.broadcast(r, out, uuid.Nil, Event{Type: EventGameEnded, GameSummary: summary}, uuid.Nil)
	c.log.WithFields(logrus.Fields{"room": r.Code, "winningScore": best, "winners": rec.WinnerNickname}).Info("game finished")

	if c.history != nil {
		c.goBackground(func(ctx context.Context) {
			id, err := c.history.RecordGame(ctx, rec)
			if err != nil {
				c.log.WithError(err).WithField("room", rec.RoomCode).Error("failed to record finished game")
				return
			}
			c.log.WithFields(logrus.Fields{"room": rec.RoomCode, "game": id}).Debug("recorded finished game")
		})
	}
}
