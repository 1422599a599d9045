package server

import "encoding/json"

type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Inbound event types
const (
	EventPing            = "ping"
	EventJoinGame        = "joinGame"
	EventPlayerReady     = "playerReady"
	EventRequestRematch  = "requestRematch"
	EventShot            = "shot"
	EventBallPosition    = "ballPosition"
	EventPhysicsSnapshot = "physicsSnapshot"
)

// Outbound event types
const (
	EventPong              = "pong"
	EventError             = "error"
	EventRoomJoined        = "roomJoined"
	EventPlayerReadyUpdate = "playerReadyUpdate"
	EventGameStart         = "gameStart"
	EventPlayerShot        = "playerShot"
	EventBallInHole        = "ballInHole"
	EventScoreUpdate       = "scoreUpdate"
	EventGameOver          = "gameOver"
	EventRespawnCueBall    = "respawnCueBall"
	EventPlayerLeft        = "playerLeft"
)
