package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"pool-server/internal/pool"
)

var ErrInvalidBall = pool.ErrInvalidBall

// Shot relays the shot to the opponent and hands them the turn. Turn
// ownership is not checked; every shot flips it.
func (rm *RoomManager) Shot(playerID string, force json.RawMessage) error {
	room, err := rm.lockPlayerRoom(playerID)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	opponent := room.opponent(playerID)
	if opponent == nil {
		return fmt.Errorf("shot: %w", ErrOpponentAbsent)
	}

	rm.gateway.BroadcastToRoom(room.ID, EventPlayerShot, PlayerShotPayload{
		PlayerID: playerID,
		Force:    force,
	}, playerID)
	room.CurrentTurn = opponent.ID

	rm.logger.Debug("Shot", "room", room.ID, "player", playerID, "turn", room.CurrentTurn)
	return nil
}

// BallPosition records a pot when the reported height is below the hole
// threshold. Reports above it, and repeats for a ball already down, change
// nothing.
func (rm *RoomManager) BallPosition(playerID string, ball int, position Vec3) error {
	if !pool.ValidBall(ball) {
		return fmt.Errorf("ball %d: %w", ball, ErrInvalidBall)
	}
	if position.Y >= rm.cfg.HoleThreshold {
		return nil
	}

	room, err := rm.lockPlayerRoom(playerID)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	if room.Phase != PhasePlaying {
		return fmt.Errorf("ball position in %s: %w", room.Phase, ErrInvalidPhase)
	}
	if len(room.Players) != MaxPlayers {
		return fmt.Errorf("ball position: %w", ErrOpponentAbsent)
	}

	outcome, err := room.Match.Pot(room.slotOf(playerID), ball)
	if errors.Is(err, pool.ErrAlreadyPotted) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pot ball %d: %w", ball, err)
	}

	switch outcome.Kind {
	case pool.OutcomeCueBall:
		rm.gateway.BroadcastToRoom(room.ID, EventBallInHole, BallInHolePayload{
			BallNumber:  ball,
			BallsInHole: room.Match.Holes(),
		})
		roomID, epoch := room.ID, room.epoch
		room.respawnTimer = rm.clock.AfterFunc(rm.cfg.RespawnDelay, func() {
			rm.respawnCueBall(roomID, epoch)
		})
		rm.gateway.BroadcastToRoom(room.ID, EventScoreUpdate, room.scorePayload())
		rm.logger.Info("Cue ball potted", "room", room.ID, "player", playerID, "respawnIn", rm.cfg.RespawnDelay)

	case pool.OutcomeEightBall:
		room.Phase = PhaseGameOver
		room.turnAtEnd = room.CurrentTurn
		winner := room.Players[outcome.Winner]
		rm.gateway.BroadcastToRoom(room.ID, EventGameOver, GameOverPayload{
			Winner:      outcome.Winner,
			WinnerID:    winner.ID,
			FinalScores: room.Match.Scores,
		})
		rm.logger.Info("Match over", "room", room.ID, "shooter", playerID, "winner", winner.ID, "scores", room.Match.Scores)

	default:
		rm.gateway.BroadcastToRoom(room.ID, EventScoreUpdate, room.scorePayload())
		rm.logger.Info("Ball potted", "room", room.ID, "player", playerID, "ball", ball,
			"kind", outcome.Kind, "scores", room.Match.Scores)
	}
	return nil
}

// respawnCueBall runs after RespawnDelay. A rematch or deletion in between
// makes it a no-op.
func (rm *RoomManager) respawnCueBall(roomID string, epoch int) {
	room := rm.lockRoom(roomID)
	if room == nil {
		return
	}
	defer room.mu.Unlock()

	if room.epoch != epoch {
		rm.logger.Debug("Stale cue ball respawn discarded", "room", roomID)
		return
	}
	room.respawnTimer = nil
	if !room.Match.RespawnCueBall() {
		return
	}

	rm.gateway.BroadcastToRoom(room.ID, EventRespawnCueBall, RespawnCueBallPayload{
		BallsInHole: room.Match.Holes(),
	})
	rm.logger.Debug("Cue ball respawned", "room", roomID)
}

// PhysicsSnapshot forwards snapshot verbatim to the sender's opponent, at most
// once per SnapshotWindow per sender.
func (rm *RoomManager) PhysicsSnapshot(playerID string, snapshot json.RawMessage) error {
	room, err := rm.lockPlayerRoom(playerID)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	if !rm.throttle.Allow(playerID) {
		return ErrThrottled
	}
	rm.gateway.BroadcastToRoom(room.ID, EventPhysicsSnapshot, snapshot, playerID)
	return nil
}
