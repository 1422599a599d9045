package server

import (
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"pool-server/internal/pool"
)

type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhasePlaying  Phase = "playing"
	PhaseGameOver Phase = "gameOver"
)

const MaxPlayers = 2

// Room is one table: up to two seated players and the state of their match.
// Every field is guarded by mu. A deleted room is never reused; tasks that
// find one treat it as gone.
type Room struct {
	ID          string
	Phase       Phase
	Players     []*Player
	CurrentTurn string
	Match       *pool.Match
	CreatedAt   time.Time

	epoch        int // bumped on rematch
	startSeq     int // bumped on every ready change
	startTimer   clockwork.Timer
	respawnTimer clockwork.Timer
	turnAtEnd    string
	deleted      bool
	mu           sync.Mutex
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		ID:        id,
		Phase:     PhaseLobby,
		Players:   make([]*Player, 0, MaxPlayers),
		Match:     pool.NewMatch(),
		CreatedAt: now,
	}
}

func (r *Room) slotOf(playerID string) int {
	return slices.IndexFunc(r.Players, func(p *Player) bool { return p.ID == playerID })
}

func (r *Room) player(playerID string) *Player {
	if i := r.slotOf(playerID); i >= 0 {
		return r.Players[i]
	}
	return nil
}

// opponent returns the other seated player, or nil if playerID is alone.
func (r *Room) opponent(playerID string) *Player {
	for _, p := range r.Players {
		if p.ID != playerID {
			return p
		}
	}
	return nil
}

func (r *Room) isFull() bool {
	return len(r.Players) >= MaxPlayers
}

func (r *Room) openForJoin() bool {
	return !r.deleted && r.Phase == PhaseLobby && !r.isFull()
}

func (r *Room) allReady() bool {
	if len(r.Players) != MaxPlayers {
		return false
	}
	for _, p := range r.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

func (r *Room) removePlayer(playerID string) bool {
	i := r.slotOf(playerID)
	if i < 0 {
		return false
	}
	r.Players = slices.Delete(r.Players, i, i+1)
	return true
}

func (r *Room) cancelStart() {
	r.startSeq++
	if r.startTimer != nil {
		r.startTimer.Stop()
		r.startTimer = nil
	}
}

func (r *Room) stopTimers() {
	r.cancelStart()
	if r.respawnTimer != nil {
		r.respawnTimer.Stop()
		r.respawnTimer = nil
	}
}

func (r *Room) playerViews() []PlayerView {
	views := make([]PlayerView, 0, len(r.Players))
	for _, p := range r.Players {
		views = append(views, PlayerView{ID: p.ID, Name: p.Name, Ready: p.Ready})
	}
	return views
}

func (r *Room) view() RoomView {
	var winner *int
	if r.Match.Winner != nil {
		w := *r.Match.Winner
		winner = &w
	}
	return RoomView{
		ID:          r.ID,
		Phase:       r.Phase,
		CurrentTurn: r.CurrentTurn,
		Scores:      r.Match.Scores,
		BallsInHole: r.Match.Holes(),
		PlayerTypes: r.Match.PlayerTypes,
		Winner:      winner,
	}
}

func (r *Room) joinedPayload() RoomJoinedPayload {
	return RoomJoinedPayload{Room: r.view(), Players: r.playerViews()}
}

func (r *Room) scorePayload() ScoreUpdatePayload {
	return ScoreUpdatePayload{
		Scores:      r.Match.Scores,
		BallsInHole: r.Match.Holes(),
		PlayerTypes: r.Match.PlayerTypes,
	}
}
