package pool

type BallType string

const (
	Unassigned BallType = ""
	Solid      BallType = "solid"
	Striped    BallType = "striped"
)

const (
	CueBall   = 0
	EightBall = 8
	MaxBall   = 15

	// Balls in each player's own set.
	SetSize = 7
)

// Opposite returns the other assigned type. Unassigned stays unassigned.
func (t BallType) Opposite() BallType {
	switch t {
	case Solid:
		return Striped
	case Striped:
		return Solid
	default:
		return Unassigned
	}
}

func ValidBall(ball int) bool {
	return ball >= CueBall && ball <= MaxBall
}

// Category returns Solid for 1-7, Striped for 9-15 and Unassigned for the
// cue ball, the 8-ball and anything off the rack.
func Category(ball int) BallType {
	switch {
	case ball >= 1 && ball <= 7:
		return Solid
	case ball >= 9 && ball <= MaxBall:
		return Striped
	default:
		return Unassigned
	}
}

// BallsOf lists the numbered balls that make up a type's set.
func BallsOf(t BallType) []int {
	start := 0
	switch t {
	case Solid:
		start = 1
	case Striped:
		start = 9
	default:
		return nil
	}

	balls := make([]int, 0, SetSize)
	for b := start; b < start+SetSize; b++ {
		balls = append(balls, b)
	}
	return balls
}
