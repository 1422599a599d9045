package server

import (
	"encoding/json"

	"pool-server/internal/pool"
)

// ============================================================================
// ERROR RESPONSES
// ============================================================================
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ============================================================================
// SHARED VIEWS
// ============================================================================
type PlayerView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}

type RoomView struct {
	ID          string           `json:"id"`
	Phase       Phase            `json:"phase"`
	CurrentTurn string           `json:"currentTurn"`
	Scores      [2]int           `json:"scores"`
	BallsInHole []int            `json:"ballsInHole"`
	PlayerTypes [2]pool.BallType `json:"playerTypes"`
	Winner      *int             `json:"winner"`
}

// ============================================================================
// JOIN GAME (joinGame -> roomJoined)
// ============================================================================
type JoinGameRequest struct {
	PlayerName string `json:"playerName"`
	RoomID     string `json:"roomId,omitempty"`
}

type RoomJoinedPayload struct {
	Room    RoomView     `json:"room"`
	Players []PlayerView `json:"players"`
}

// ============================================================================
// READY (playerReady -> playerReadyUpdate, gameStart)
// ============================================================================
type PlayerReadyRequest struct {
	IsReady bool `json:"isReady"`
}

type PlayerReadyUpdatePayload struct {
	Players  []PlayerView `json:"players"`
	AllReady bool         `json:"allReady"`
}

type GameStartPayload struct {
	Players     []PlayerView `json:"players"`
	CurrentTurn string       `json:"currentTurn"`
}

// ============================================================================
// SHOT (shot -> playerShot)
// ============================================================================
type ShotRequest struct {
	Force json.RawMessage `json:"force"`
}

type PlayerShotPayload struct {
	PlayerID string          `json:"playerId"`
	Force    json.RawMessage `json:"force"`
}

// ============================================================================
// BALL POSITION (ballPosition -> ballInHole, scoreUpdate, gameOver, respawnCueBall)
// ============================================================================
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type BallPositionRequest struct {
	BallNumber *int `json:"ballNumber"` // nil when missing
	Position   Vec3 `json:"position"`
}

type BallInHolePayload struct {
	BallNumber  int   `json:"ballNumber"`
	BallsInHole []int `json:"ballsInHole"`
}

type ScoreUpdatePayload struct {
	Scores      [2]int           `json:"scores"`
	BallsInHole []int            `json:"ballsInHole"`
	PlayerTypes [2]pool.BallType `json:"playerTypes"`
}

type GameOverPayload struct {
	Winner      int    `json:"winner"`
	WinnerID    string `json:"winnerId"`
	FinalScores [2]int `json:"finalScores"`
}

type RespawnCueBallPayload struct {
	BallsInHole []int `json:"ballsInHole"`
}

// ============================================================================
// DISCONNECT (playerLeft)
// ============================================================================
type PlayerLeftPayload struct {
	PlayerID string       `json:"playerId"`
	Players  []PlayerView `json:"players"`
}

// ============================================================================
// HEALTH
// ============================================================================
type HealthResponse struct {
	Status  string `json:"status"`
	Rooms   int    `json:"rooms"`
	Players int    `json:"players"`
}
