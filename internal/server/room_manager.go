package server

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"pool-server/internal/config"
)

var (
	ErrRoomFull       = errors.New("ROOM_FULL: Requested room cannot take another player")
	ErrInvalidPhase   = errors.New("INVALID_PHASE: Event not allowed in the room's current phase")
	ErrOpponentAbsent = errors.New("OPPONENT_ABSENT: Room has no second player")
	ErrAlreadySeated  = errors.New("ALREADY_SEATED: Player is already in a room")
	ErrThrottled      = errors.New("THROTTLED: Snapshot inside the relay window")
)

// RoomManager owns the room table and the session directory. Lock order is
// always mu before a Room's mu; nothing that holds a room lock takes mu.
type RoomManager struct {
	rooms     map[string]*Room
	order     []string // room ids in creation order
	directory *SessionDirectory
	gateway   Gateway
	clock     clockwork.Clock
	cfg       config.GameConf
	throttle  *RateLimiter
	logger    *log.Logger
	mu        sync.RWMutex
}

func NewRoomManager(gateway Gateway, clock clockwork.Clock, cfg config.GameConf, logger *log.Logger) *RoomManager {
	return &RoomManager{
		rooms:     make(map[string]*Room),
		order:     make([]string, 0),
		directory: NewSessionDirectory(),
		gateway:   gateway,
		clock:     clock,
		cfg:       cfg,
		throttle:  NewSnapshotThrottle(cfg.SnapshotWindow, clock),
		logger:    logger.With("component", "rooms"),
	}
}

// JoinGame seats playerID. A valid requestedRoomID naming an open lobby is
// honoured first; otherwise the oldest open lobby is used, and failing that a
// new room is created. The whole room receives roomJoined.
func (rm *RoomManager) JoinGame(playerID, name, requestedRoomID string) (RoomView, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if roomID, err := rm.directory.RoomOf(playerID); err == nil {
		room := rm.rooms[roomID]
		room.mu.Lock()
		defer room.mu.Unlock()
		rm.gateway.Send(playerID, EventRoomJoined, room.joinedPayload())
		return room.view(), fmt.Errorf("join %s: %w", roomID, ErrAlreadySeated)
	}

	room := rm.findOpenRoom(playerID, requestedRoomID)
	if room == nil {
		room = rm.createRoom()
	} else {
		room.mu.Lock()
	}
	defer room.mu.Unlock()

	player := &Player{ID: playerID, Name: NormalizeName(name)}
	room.Players = append(room.Players, player)
	switch len(room.Players) {
	case 1:
		room.CurrentTurn = player.ID
	case MaxPlayers:
		room.CurrentTurn = room.Players[0].ID
	}

	rm.directory.Place(player, room.ID)
	rm.gateway.JoinRoom(playerID, room.ID)
	rm.gateway.BroadcastToRoom(room.ID, EventRoomJoined, room.joinedPayload())

	rm.logger.Info("Player joined room",
		"room", room.ID, "player", playerID, "name", player.Name, "seated", len(room.Players))
	return room.view(), nil
}

// findOpenRoom must be called with rm.mu held. The returned room is unlocked.
func (rm *RoomManager) findOpenRoom(playerID, requestedRoomID string) *Room {
	if requestedRoomID != "" {
		code := NormalizeRoomCode(requestedRoomID)
		if err := ValidateRoomCode(code); err != nil {
			rm.logger.Debug("Ignoring invalid room code", "player", playerID, "code", requestedRoomID, "err", err)
		} else if room, exists := rm.rooms[code]; exists && rm.isOpen(room) {
			return room
		} else {
			rm.logger.Info("Requested room unavailable, matchmaking instead",
				"player", playerID, "code", code, "err", ErrRoomFull)
		}
	}

	for _, id := range rm.order {
		if room := rm.rooms[id]; rm.isOpen(room) {
			return room
		}
	}
	return nil
}

func (rm *RoomManager) isOpen(room *Room) bool {
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.openForJoin()
}

// createRoom must be called with rm.mu held. The new room is returned locked.
func (rm *RoomManager) createRoom() *Room {
	room := newRoom(GenerateRoomCode(rm.rooms), rm.clock.Now())
	room.mu.Lock()
	rm.rooms[room.ID] = room
	rm.order = append(rm.order, room.ID)
	rm.logger.Info("Room created", "room", room.ID)
	return room
}

// deleteRoom must be called with rm.mu and room.mu held.
func (rm *RoomManager) deleteRoom(room *Room) {
	room.deleted = true
	room.stopTimers()
	delete(rm.rooms, room.ID)
	if i := slices.Index(rm.order, room.ID); i >= 0 {
		rm.order = slices.Delete(rm.order, i, i+1)
	}
	rm.logger.Info("Room deleted", "room", room.ID)
}

// lockPlayerRoom returns the player's room, locked, or ErrNotInRoom.
func (rm *RoomManager) lockPlayerRoom(playerID string) (*Room, error) {
	rm.mu.RLock()
	roomID, err := rm.directory.RoomOf(playerID)
	room := rm.rooms[roomID]
	rm.mu.RUnlock()

	if err != nil || room == nil {
		return nil, ErrNotInRoom
	}

	room.mu.Lock()
	if room.deleted || room.slotOf(playerID) < 0 {
		room.mu.Unlock()
		return nil, ErrNotInRoom
	}
	return room, nil
}

// lockRoom returns a live room by id, locked, or nil.
func (rm *RoomManager) lockRoom(roomID string) *Room {
	rm.mu.RLock()
	room := rm.rooms[roomID]
	rm.mu.RUnlock()

	if room == nil {
		return nil
	}
	room.mu.Lock()
	if room.deleted {
		room.mu.Unlock()
		return nil
	}
	return room
}

// SetReady updates the player's ready flag and broadcasts the roster. When
// both players are ready the match starts after the configured delay,
// provided nothing changed in the meantime.
func (rm *RoomManager) SetReady(playerID string, ready bool) error {
	room, err := rm.lockPlayerRoom(playerID)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	if room.Phase != PhaseLobby {
		return fmt.Errorf("ready in %s: %w", room.Phase, ErrInvalidPhase)
	}

	// A repeated flag leaves any pending start untouched.
	p := room.player(playerID)
	changed := p.Ready != ready
	if changed {
		p.Ready = ready
		room.cancelStart()
	}

	allReady := room.allReady()
	rm.gateway.BroadcastToRoom(room.ID, EventPlayerReadyUpdate, PlayerReadyUpdatePayload{
		Players:  room.playerViews(),
		AllReady: allReady,
	})

	if changed && allReady {
		roomID, epoch, seq := room.ID, room.epoch, room.startSeq
		room.startTimer = rm.clock.AfterFunc(rm.cfg.StartDelay, func() {
			rm.startMatch(roomID, epoch, seq)
		})
		rm.logger.Info("All players ready, match starting", "room", room.ID, "delay", rm.cfg.StartDelay)
	}
	return nil
}

func (rm *RoomManager) startMatch(roomID string, epoch, seq int) {
	room := rm.lockRoom(roomID)
	if room == nil {
		rm.logger.Debug("Start fired for deleted room", "room", roomID)
		return
	}
	defer room.mu.Unlock()

	if room.epoch != epoch || room.startSeq != seq || room.Phase != PhaseLobby || !room.allReady() {
		rm.logger.Debug("Stale match start discarded", "room", roomID, "phase", room.Phase)
		return
	}

	room.startTimer = nil
	room.Phase = PhasePlaying
	rm.gateway.BroadcastToRoom(room.ID, EventGameStart, GameStartPayload{
		Players:     room.playerViews(),
		CurrentTurn: room.CurrentTurn,
	})
	rm.logger.Info("Match started", "room", room.ID, "turn", room.CurrentTurn)
}

// RequestRematch recycles a finished room for a new match between the same
// two players. The player who was not on turn when the match ended breaks.
func (rm *RoomManager) RequestRematch(playerID string) error {
	room, err := rm.lockPlayerRoom(playerID)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	if room.Phase != PhaseGameOver {
		return fmt.Errorf("rematch in %s: %w", room.Phase, ErrInvalidPhase)
	}
	if len(room.Players) != MaxPlayers {
		return fmt.Errorf("rematch: %w", ErrOpponentAbsent)
	}

	room.stopTimers()
	room.epoch++
	room.Match.Reset()
	for _, p := range room.Players {
		p.Ready = false
	}
	room.Phase = PhaseLobby
	if next := room.opponent(room.turnAtEnd); next != nil {
		room.CurrentTurn = next.ID
	}
	room.turnAtEnd = ""

	rm.gateway.BroadcastToRoom(room.ID, EventRoomJoined, room.joinedPayload())
	rm.logger.Info("Rematch", "room", room.ID, "requestedBy", playerID, "turn", room.CurrentTurn)
	return nil
}

// Disconnect removes the player everywhere. An emptied room is deleted;
// otherwise the remaining player is told and the room keeps its phase.
func (rm *RoomManager) Disconnect(playerID string) error {
	rm.throttle.Remove(playerID)

	rm.mu.Lock()
	defer rm.mu.Unlock()

	roomID, err := rm.directory.RoomOf(playerID)
	rm.directory.Remove(playerID)
	if err != nil {
		return err
	}

	room, exists := rm.rooms[roomID]
	if !exists {
		return ErrNotInRoom
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	room.removePlayer(playerID)
	rm.gateway.LeaveRoom(playerID, roomID)
	rm.logger.Info("Player left room", "room", roomID, "player", playerID, "phase", room.Phase)

	if len(room.Players) == 0 {
		rm.deleteRoom(room)
		return nil
	}

	if room.CurrentTurn == playerID {
		room.CurrentTurn = room.Players[0].ID
	}
	if room.turnAtEnd == playerID {
		room.turnAtEnd = room.Players[0].ID
	}
	room.cancelStart()

	rm.gateway.BroadcastToRoom(room.ID, EventPlayerLeft, PlayerLeftPayload{
		PlayerID: playerID,
		Players:  room.playerViews(),
	})
	return nil
}

// Stats reports live room and player counts.
func (rm *RoomManager) Stats() (rooms, players int) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.rooms), rm.directory.Count()
}

// Room returns a snapshot of a room's state.
func (rm *RoomManager) Room(roomID string) (RoomView, []PlayerView, bool) {
	room := rm.lockRoom(roomID)
	if room == nil {
		return RoomView{}, nil, false
	}
	defer room.mu.Unlock()
	return room.view(), room.playerViews(), true
}

// RoomOf resolves the room a player is seated in.
func (rm *RoomManager) RoomOf(playerID string) (string, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.directory.RoomOf(playerID)
}

// Shutdown stops every pending deferred task.
func (rm *RoomManager) Shutdown() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for _, room := range rm.rooms {
		room.mu.Lock()
		room.stopTimers()
		room.mu.Unlock()
	}
}
