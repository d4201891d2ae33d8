// internal/game/engine_test.go
package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRoller returns faces in order, wrapping around when exhausted.
func scriptedRoller(faces ...int) Roller {
	i := 0
	return RollerFunc(func() int {
		f := faces[i%len(faces)]
		i++
		return f
	})
}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		dice []int
		want int
	}{
		{"threes count zero", []int{3, 3, 5, 2, 6}, 13},
		{"all threes", []int{3, 3, 3, 3, 3}, 0},
		{"no threes", []int{1, 2, 4, 5, 6}, 18},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.dice))
		})
	}
}

func TestFirstRollThrowsFiveDice(t *testing.T) {
	s := NewPlayerTurnState()
	require.True(t, RollIsLegal(s))

	res := ApplyRoll(s, scriptedRoller(1, 2, 4, 5, 6))
	assert.Equal(t, []int{1, 2, 4, 5, 6}, s.ActiveDice)
	assert.Equal(t, []int{1, 2, 4, 5, 6}, res.Rolled)
	assert.Empty(t, s.KeptDice)
	assert.Equal(t, MaxRolls-1, s.RollsLeft)
	assert.True(t, s.HasRolledThisRound)
	assert.False(t, s.HasKeptThisRoll)
	assert.False(t, res.Ended)
}

func TestRollWithoutKeepIsRejected(t *testing.T) {
	s := NewPlayerTurnState()
	ApplyRoll(s, scriptedRoller(2))

	assert.ErrorIs(t, ValidateRoll(s), ErrMustKeepFirst)
	assert.False(t, RollIsLegal(s))
}

func TestRerollOnlyThrowsActiveDice(t *testing.T) {
	s := NewPlayerTurnState()
	ApplyRoll(s, scriptedRoller(3, 6, 6, 6, 6))
	require.NoError(t, ValidateKeep(s, []int{0}))
	ApplyKeep(s, []int{0})
	require.Equal(t, []int{3}, s.KeptDice)
	require.Len(t, s.ActiveDice, 4)

	require.NoError(t, ValidateRoll(s))
	res := ApplyRoll(s, scriptedRoller(1))
	assert.Len(t, res.Rolled, 4)
	assert.Equal(t, []int{1, 1, 1, 1}, s.ActiveDice)
	assert.Equal(t, []int{3}, s.KeptDice)
}

func TestFiveRollsExhaustBudgetAndAutoResolve(t *testing.T) {
	s := NewPlayerTurnState()
	roller := scriptedRoller(4)

	for i := 0; i < MaxRolls; i++ {
		require.NoError(t, ValidateRoll(s), "roll %d", i+1)
		res := ApplyRoll(s, roller)
		if i < MaxRolls-1 {
			require.False(t, res.Ended)
			// keep one die each round so another roll is legal
			ApplyKeep(s, []int{0})
		} else {
			assert.True(t, res.Ended)
			assert.True(t, res.Forced)
		}
	}

	assert.Equal(t, 0, s.RollsLeft)
	assert.Empty(t, s.ActiveDice)
	assert.Len(t, s.KeptDice, DiceCount)
	assert.True(t, s.Done)
	assert.Equal(t, 20, s.FinalScore)
	assert.ErrorIs(t, ValidateRoll(s), ErrTurnOver)
}

func TestRollRejectedWithNoRollsLeft(t *testing.T) {
	s := &PlayerTurnState{ActiveDice: []int{2}, KeptDice: []int{1, 1, 1, 1}, RollsLeft: 0, HasRolledThisRound: true, HasKeptThisRoll: true}
	assert.ErrorIs(t, ValidateRoll(s), ErrNoRollsLeft)
}

func TestRollRejectedWhenAllDiceKept(t *testing.T) {
	s := &PlayerTurnState{ActiveDice: []int{}, KeptDice: []int{1, 2}, RollsLeft: 2, HasRolledThisRound: true, HasKeptThisRoll: true}
	assert.ErrorIs(t, ValidateRoll(s), ErrAllDiceKept)
}

func TestKeepValidation(t *testing.T) {
	fresh := NewPlayerTurnState()
	assert.ErrorIs(t, ValidateKeep(fresh, []int{0}), ErrMustRollFirst)

	s := NewPlayerTurnState()
	ApplyRoll(s, scriptedRoller(1, 2, 3, 4, 5))

	tests := []struct {
		name    string
		indices []int
		err     error
	}{
		{"empty selection", []int{}, ErrNoDiceSelected},
		{"negative index", []int{-1}, ErrInvalidDieIndex},
		{"index past end", []int{5}, ErrInvalidDieIndex},
		{"duplicate", []int{1, 1}, ErrDuplicateIndices},
		{"valid", []int{0, 4}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				assert.NoError(t, ValidateKeep(s, tt.indices))
				assert.True(t, KeepIsLegal(s, tt.indices))
				return
			}
			assert.ErrorIs(t, ValidateKeep(s, tt.indices), tt.err)
			assert.False(t, KeepIsLegal(s, tt.indices))
		})
	}
}

func TestKeepPartitionsByPosition(t *testing.T) {
	s := NewPlayerTurnState()
	ApplyRoll(s, scriptedRoller(6, 3, 5, 3, 1))

	res := ApplyKeep(s, []int{3, 1})
	assert.False(t, res.Ended)
	// kept in active order, not selection order
	assert.Equal(t, []int{3, 3}, s.KeptDice)
	assert.Equal(t, []int{6, 5, 1}, s.ActiveDice)
	assert.True(t, s.HasKeptThisRoll)
	assert.True(t, RollIsLegal(s))
}

func TestKeepingEverythingEndsTurn(t *testing.T) {
	s := NewPlayerTurnState()
	ApplyRoll(s, scriptedRoller(3, 3, 5, 2, 6))

	res := ApplyKeep(s, []int{0, 1, 2, 3, 4})
	assert.True(t, res.Ended)
	assert.True(t, s.Done)
	assert.Equal(t, 13, s.FinalScore)
	assert.Equal(t, MaxRolls-1, s.RollsLeft)
}

func TestStandings(t *testing.T) {
	states := []*PlayerTurnState{{FinalScore: 5}, {FinalScore: 5}, {FinalScore: 9}}
	winners, best := Standings(states)
	assert.Equal(t, []int{0, 1}, winners)
	assert.Equal(t, 5, best)

	single := []*PlayerTurnState{{FinalScore: 0}}
	winners, best = Standings(single)
	assert.Equal(t, []int{0}, winners)
	assert.Equal(t, 0, best)

	winners, _ = Standings(nil)
	assert.Nil(t, winners)
}

func TestGameAdvanceVisitsEveryPlayerOnce(t *testing.T) {
	g := NewGame(3, time.Time{})
	visited := []int{g.CurrentPlayerIndex}
	for g.Advance() {
		visited = append(visited, g.CurrentPlayerIndex)
	}
	assert.Equal(t, []int{0, 1, 2}, visited)
	assert.True(t, g.IsLastTurn())
}

func TestRemoveStateKeepsCurrentIndexInRange(t *testing.T) {
	g := NewGame(3, time.Time{})
	g.CurrentPlayerIndex = 2
	g.RemoveState(2)
	assert.Len(t, g.States, 2)
	assert.Equal(t, 1, g.CurrentPlayerIndex)

	g.RemoveState(0)
	assert.Len(t, g.States, 1)
	assert.Equal(t, 0, g.CurrentPlayerIndex)
}

func TestSnapshotIsDetached(t *testing.T) {
	g := NewGame(1, time.UnixMilli(1000))
	ApplyRoll(g.States[0], scriptedRoller(2))

	snap := g.Snapshot()
	g.States[0].ActiveDice[0] = 6

	assert.Equal(t, 2, snap.PlayerStates[0].ActiveDice[0])
	assert.Equal(t, int64(1000), snap.StartedAt)
}
