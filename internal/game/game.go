// internal/game/game.go
package game

import (
	"time"
)

// PlayerTurnState is one player's dice for the current game.
type PlayerTurnState struct {
	ActiveDice []int `json:"activeDice"`
	KeptDice   []int `json:"keptDice"`
	RollsLeft  int   `json:"rollsLeft"`
	FinalScore int   `json:"score"`
	Done       bool  `json:"done"` // set once the active set empties; FinalScore is valid from then on

	HasRolledThisRound bool `json:"hasRolledThisRound"`
	HasKeptThisRoll    bool `json:"hasKeptThisRoll"`
}

// NewPlayerTurnState returns a state with a full roll budget and no dice.
func NewPlayerTurnState() *PlayerTurnState {
	return &PlayerTurnState{
		ActiveDice: []int{},
		KeptDice:   []int{},
		RollsLeft:  MaxRolls,
	}
}

// Clone returns a deep copy of s.
func (s *PlayerTurnState) Clone() *PlayerTurnState {
	c := *s
	c.ActiveDice = append([]int{}, s.ActiveDice...)
	c.KeptDice = append([]int{}, s.KeptDice...)
	return &c
}

// Game holds turn progress for one round of play. States is parallel to the
// owning room's player list.
type Game struct {
	CurrentPlayerIndex int
	States             []*PlayerTurnState
	StartedAt          time.Time
}

// NewGame creates a game for n players starting with the first in order.
func NewGame(n int, startedAt time.Time) *Game {
	g := &Game{
		CurrentPlayerIndex: 0,
		States:             make([]*PlayerTurnState, n),
		StartedAt:          startedAt,
	}
	for i := range g.States {
		g.States[i] = NewPlayerTurnState()
	}
	return g
}

// Current returns the turn state of the player whose turn it is.
func (g *Game) Current() *PlayerTurnState {
	if g.CurrentPlayerIndex < 0 || g.CurrentPlayerIndex >= len(g.States) {
		return nil
	}
	return g.States[g.CurrentPlayerIndex]
}

// IsLastTurn reports whether the current player is last in turn order.
func (g *Game) IsLastTurn() bool {
	return g.CurrentPlayerIndex >= len(g.States)-1
}

// Advance moves the turn to the next player. It reports false when there is no
// next player.
func (g *Game) Advance() bool {
	if g.IsLastTurn() {
		return false
	}
	g.CurrentPlayerIndex++
	return true
}

// RemoveState drops the state at index i, keeping States aligned with a
// player list that just lost the same index.
func (g *Game) RemoveState(i int) {
	if i < 0 || i >= len(g.States) {
		return
	}
	g.States = append(g.States[:i], g.States[i+1:]...)
	if g.CurrentPlayerIndex > i || g.CurrentPlayerIndex >= len(g.States) {
		g.CurrentPlayerIndex--
	}
	if g.CurrentPlayerIndex < 0 {
		g.CurrentPlayerIndex = 0
	}
}
