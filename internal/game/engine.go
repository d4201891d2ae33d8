// internal/game/engine.go
package game

import (
	"errors"
	"math/rand"
)

const (
	// DiceCount is the number of dice each player resolves per turn.
	DiceCount = 5
	// MaxRolls is the roll budget a player starts each turn with.
	MaxRolls = 5
	// ZeroFace is the face that scores nothing.
	ZeroFace = 3
)

// Roll and keep rejections.
var (
	ErrTurnOver         = errors.New("turn is already over")
	ErrNoRollsLeft      = errors.New("no rolls left")
	ErrMustKeepFirst    = errors.New("must keep at least one die before rolling again")
	ErrAllDiceKept      = errors.New("all dice already kept")
	ErrMustRollFirst    = errors.New("must roll before keeping")
	ErrNoDiceSelected   = errors.New("must select at least one die")
	ErrInvalidDieIndex  = errors.New("invalid die index")
	ErrDuplicateIndices = errors.New("duplicate indices")
)

// Roller produces a single die face in 1..6.
type Roller interface {
	Roll() int
}

// RollerFunc adapts a plain function to the Roller interface.
type RollerFunc func() int

// Roll calls f.
func (f RollerFunc) Roll() int { return f() }

// RandomRoller draws faces uniformly from the global math/rand source.
var RandomRoller Roller = RollerFunc(func() int { return rand.Intn(6) + 1 })

// TurnResult reports what an applied action did to the turn.
type TurnResult struct {
	Rolled []int // faces produced by a roll, nil for keeps
	Ended  bool  // the active set is empty and the final score is set
	Forced bool  // the roll used the last budget and the remainder was kept automatically
}

// ValidateRoll returns nil if s may roll, or the reason it may not.
func ValidateRoll(s *PlayerTurnState) error {
	switch {
	case s.Done:
		return ErrTurnOver
	case s.RollsLeft <= 0:
		return ErrNoRollsLeft
	case s.HasRolledThisRound && !s.HasKeptThisRoll:
		return ErrMustKeepFirst
	case len(s.ActiveDice) == 0 && len(s.KeptDice) > 0:
		return ErrAllDiceKept
	}
	return nil
}

// RollIsLegal reports whether s may roll.
func RollIsLegal(s *PlayerTurnState) bool {
	return ValidateRoll(s) == nil
}

// ValidateKeep returns nil if the active dice at indices may be kept.
func ValidateKeep(s *PlayerTurnState, indices []int) error {
	if s.Done {
		return ErrTurnOver
	}
	if !s.HasRolledThisRound {
		return ErrMustRollFirst
	}
	if len(indices) == 0 {
		return ErrNoDiceSelected
	}
	seen := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(s.ActiveDice) {
			return ErrInvalidDieIndex
		}
		if _, dup := seen[idx]; dup {
			return ErrDuplicateIndices
		}
		seen[idx] = struct{}{}
	}
	return nil
}

// KeepIsLegal reports whether the active dice at indices may be kept.
func KeepIsLegal(s *PlayerTurnState, indices []int) bool {
	return ValidateKeep(s, indices) == nil
}

// ApplyRoll rolls the unkept dice. Callers must check ValidateRoll first.
//
// The first roll of a turn throws all five dice; later rolls re-throw only the
// active set. When the roll spends the last of the budget, whatever is still
// active is moved to the kept set and the turn ends.
func ApplyRoll(s *PlayerTurnState, r Roller) TurnResult {
	n := len(s.ActiveDice)
	if n == 0 && len(s.KeptDice) == 0 {
		n = DiceCount
	}

	rolled := make([]int, n)
	for i := range rolled {
		rolled[i] = r.Roll()
	}

	s.ActiveDice = rolled
	s.RollsLeft--
	s.HasRolledThisRound = true
	s.HasKeptThisRoll = false

	res := TurnResult{Rolled: append([]int(nil), rolled...)}
	if s.RollsLeft == 0 && len(s.ActiveDice) > 0 {
		s.KeptDice = append(s.KeptDice, s.ActiveDice...)
		s.ActiveDice = []int{}
		res.Forced = true
	}
	if len(s.ActiveDice) == 0 {
		finishTurn(s)
		res.Ended = true
	}
	return res
}

// ApplyKeep moves the active dice at indices into the kept set. Callers must
// check ValidateKeep first.
func ApplyKeep(s *PlayerTurnState, indices []int) TurnResult {
	selected := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		selected[idx] = struct{}{}
	}

	remaining := make([]int, 0, len(s.ActiveDice))
	for i, face := range s.ActiveDice {
		if _, ok := selected[i]; ok {
			s.KeptDice = append(s.KeptDice, face)
			continue
		}
		remaining = append(remaining, face)
	}
	s.ActiveDice = remaining
	s.HasKeptThisRoll = true

	var res TurnResult
	if len(s.ActiveDice) == 0 {
		finishTurn(s)
		res.Ended = true
	}
	return res
}

func finishTurn(s *PlayerTurnState) {
	s.FinalScore = Score(s.KeptDice)
	s.Done = true
}

// Score sums the faces, with every three counting as zero.
func Score(dice []int) int {
	total := 0
	for _, face := range dice {
		if face == ZeroFace {
			continue
		}
		total += face
	}
	return total
}

// Standings returns the indices of every state tied at the lowest final score,
// along with that score. It returns nil and 0 for an empty slice.
func Standings(states []*PlayerTurnState) (winners []int, best int) {
	for i, s := range states {
		switch {
		case winners == nil || s.FinalScore < best:
			best = s.FinalScore
			winners = []int{i}
		case s.FinalScore == best:
			winners = append(winners, i)
		}
	}
	return winners, best
}
