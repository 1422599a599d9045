package pool

import (
	"errors"
	"slices"
)

var (
	ErrInvalidBall   = errors.New("INVALID_BALL: Ball number must be between 0 and 15")
	ErrAlreadyPotted = errors.New("ALREADY_POTTED: Ball is already in a hole")
	ErrInvalidSlot   = errors.New("INVALID_SLOT: Player slot must be 0 or 1")
	ErrMatchOver     = errors.New("MATCH_OVER: Match already has a winner")
)

// Match is the authoritative scoring state of one game between two player
// slots. It does no locking; the owning room serializes access.
type Match struct {
	Scores      [2]int      `json:"scores"`
	BallsInHole []int       `json:"ballsInHole"`
	PlayerTypes [2]BallType `json:"playerTypes"`
	Winner      *int        `json:"winner"`
}

type OutcomeKind string

const (
	OutcomeCueBall   OutcomeKind = "cue_ball"
	OutcomeEightBall OutcomeKind = "eight_ball"
	OutcomeAssigned  OutcomeKind = "types_assigned"
	OutcomeScored    OutcomeKind = "scored"
)

// Outcome describes what a pot changed. Scorer is the slot whose score went
// up, or -1. Winner is only meaningful for OutcomeEightBall.
type Outcome struct {
	Kind   OutcomeKind
	Ball   int
	Scorer int
	Winner int
}

func NewMatch() *Match {
	return &Match{
		BallsInHole: make([]int, 0, MaxBall+1),
	}
}

func (m *Match) Reset() {
	m.Scores = [2]int{}
	m.BallsInHole = m.BallsInHole[:0]
	m.PlayerTypes = [2]BallType{Unassigned, Unassigned}
	m.Winner = nil
}

func (m *Match) InHole(ball int) bool {
	return slices.Contains(m.BallsInHole, ball)
}

func (m *Match) IsOver() bool {
	return m.Winner != nil
}

func (m *Match) TypesAssigned() bool {
	return m.PlayerTypes[0] != Unassigned && m.PlayerTypes[1] != Unassigned
}

// ClearedSet reports whether every ball of the slot's assigned type is down.
// A slot without a type has nothing to clear and never counts as cleared.
func (m *Match) ClearedSet(slot int) bool {
	own := BallsOf(m.PlayerTypes[slot])
	if len(own) == 0 {
		return false
	}
	for _, b := range own {
		if !m.InHole(b) {
			return false
		}
	}
	return true
}

// Pot records ball as potted by the shooter slot and applies the scoring
// rules in priority order: cue ball, 8-ball, first type assignment, then
// regular own-type/opponent-type scoring.
func (m *Match) Pot(shooter, ball int) (Outcome, error) {
	if shooter != 0 && shooter != 1 {
		return Outcome{}, ErrInvalidSlot
	}
	if !ValidBall(ball) {
		return Outcome{}, ErrInvalidBall
	}
	if m.IsOver() {
		return Outcome{}, ErrMatchOver
	}
	if m.InHole(ball) {
		return Outcome{}, ErrAlreadyPotted
	}

	m.BallsInHole = append(m.BallsInHole, ball)
	other := 1 - shooter

	switch {
	case ball == CueBall:
		return Outcome{Kind: OutcomeCueBall, Ball: ball, Scorer: -1}, nil

	case ball == EightBall:
		winner := other
		if m.ClearedSet(shooter) {
			winner = shooter
		}
		m.Winner = &winner
		return Outcome{Kind: OutcomeEightBall, Ball: ball, Scorer: -1, Winner: winner}, nil

	case !m.TypesAssigned():
		t := Category(ball)
		m.PlayerTypes[shooter] = t
		m.PlayerTypes[other] = t.Opposite()
		m.Scores[shooter]++
		return Outcome{Kind: OutcomeAssigned, Ball: ball, Scorer: shooter}, nil
	}

	scorer := other
	if Category(ball) == m.PlayerTypes[shooter] {
		scorer = shooter
	}
	m.Scores[scorer]++
	return Outcome{Kind: OutcomeScored, Ball: ball, Scorer: scorer}, nil
}

// RespawnCueBall takes the cue ball back out of the hole set. It reports
// false when the cue ball was not potted.
func (m *Match) RespawnCueBall() bool {
	i := slices.Index(m.BallsInHole, CueBall)
	if i < 0 {
		return false
	}
	m.BallsInHole = slices.Delete(m.BallsInHole, i, i+1)
	return true
}

// Holes returns a copy of the potted set, safe to hand to an encoder after
// the room lock is released.
func (m *Match) Holes() []int {
	return slices.Clone(m.BallsInHole)
}
