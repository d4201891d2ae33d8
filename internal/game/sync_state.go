// internal/game/sync_state.go
package game

// GameState is the serializable view of a game sent to reconnecting players.
type GameState struct {
	CurrentPlayerIndex int                `json:"currentPlayerIndex"`
	PlayerStates       []*PlayerTurnState `json:"playerStates"`
	StartedAt          int64              `json:"startedAt"`
}

// Snapshot copies the game so it can be marshalled after the room lock is released.
func (g *Game) Snapshot() *GameState {
	states := make([]*PlayerTurnState, len(g.States))
	for i, s := range g.States {
		states[i] = s.Clone()
	}
	return &GameState{
		CurrentPlayerIndex: g.CurrentPlayerIndex,
		PlayerStates:       states,
		StartedAt:          g.StartedAt.UnixMilli(),
	}
}
