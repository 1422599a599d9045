package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategory(t *testing.T) {
	for b := 1; b <= 7; b++ {
		assert.Equal(t, Solid, Category(b), "ball %d", b)
	}
	for b := 9; b <= 15; b++ {
		assert.Equal(t, Striped, Category(b), "ball %d", b)
	}
	assert.Equal(t, Unassigned, Category(CueBall))
	assert.Equal(t, Unassigned, Category(EightBall))
	assert.Equal(t, Unassigned, Category(16))
}

func TestOpposite(t *testing.T) {
	assert.Equal(t, Striped, Solid.Opposite())
	assert.Equal(t, Solid, Striped.Opposite())
	assert.Equal(t, Unassigned, Unassigned.Opposite())
}

func TestBallsOf(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, BallsOf(Solid))
	assert.Equal(t, []int{9, 10, 11, 12, 13, 14, 15}, BallsOf(Striped))
	assert.Nil(t, BallsOf(Unassigned))
}

func TestValidBall(t *testing.T) {
	assert.True(t, ValidBall(0))
	assert.True(t, ValidBall(15))
	assert.False(t, ValidBall(-1))
	assert.False(t, ValidBall(16))
}
