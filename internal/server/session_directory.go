package server

import (
	"errors"
	"sync"
)

var ErrNotInRoom = errors.New("NOT_IN_ROOM: Player is not seated in any room")

// Player is one connected participant. Its id is the connection id.
// RoomID is a back-reference only; the Room owns the seat.
type Player struct {
	ID     string
	Name   string
	RoomID string
	Ready  bool
}

// SessionDirectory answers "who is where". Mutations happen while the
// RoomManager holds its table lock, so placement and room creation or
// deletion are observed together.
type SessionDirectory struct {
	players map[string]*Player // playerID -> Player
	mu      sync.RWMutex
}

func NewSessionDirectory() *SessionDirectory {
	return &SessionDirectory{
		players: make(map[string]*Player),
	}
}

// Place records player as seated in roomID, updating the back-reference.
func (d *SessionDirectory) Place(player *Player, roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	player.RoomID = roomID
	d.players[player.ID] = player
}

func (d *SessionDirectory) RoomOf(playerID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	player, exists := d.players[playerID]
	if !exists || player.RoomID == "" {
		return "", ErrNotInRoom
	}
	return player.RoomID, nil
}

// Remove drops the player and clears its back-reference.
func (d *SessionDirectory) Remove(playerID string) (*Player, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	player, exists := d.players[playerID]
	if !exists {
		return nil, false
	}
	delete(d.players, playerID)
	player.RoomID = ""
	return player, true
}

func (d *SessionDirectory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.players)
}
