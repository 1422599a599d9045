package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"pool-server/internal/config"
)

type Server struct {
	cfg         config.Config
	logger      *log.Logger
	hub         *Hub
	rooms       *RoomManager
	rateLimiter *RateLimiter
	clock       clockwork.Clock
	stopCleanup context.CancelFunc
}

// New wires the hub, room manager and inbound flood guard around clock.
func New(cfg config.Config, logger *log.Logger, clock clockwork.Clock) *Server {
	hub := NewHub(cfg.Limits.OutboxSize, logger)
	return &Server{
		cfg:         cfg,
		logger:      logger,
		hub:         hub,
		rooms:       NewRoomManager(hub, clock, cfg.Game, logger),
		rateLimiter: NewRateLimiter(cfg.Limits.MessagesPerSecond, time.Second, clock),
		clock:       clock,
	}
}

func NewServer(cfg config.Config, logger *log.Logger) (*Server, *http.Server) {
	s := New(cfg, logger, clockwork.NewRealClock())

	// Start background tasks
	ctx, cancel := context.WithCancel(context.Background())
	s.stopCleanup = cancel
	go s.RunCleanup(ctx, time.Minute)

	// Declare Server config. ReadTimeout and WriteTimeout must stay zero for
	// websocket connections.
	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.RegisterRoutes(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, server
}

// Shutdown cancels pending room timers and closes every websocket.
func (s *Server) Shutdown(ctx context.Context) error {
	rooms, players := s.rooms.Stats()
	s.logger.Info("Shutting down", "rooms", rooms, "players", players, "connections", s.hub.Count())

	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	s.rooms.Shutdown()
	s.hub.CloseAll(ctx, "Server shutting down")
	return ctx.Err()
}

// RunCleanup prunes idle rate limiter entries on every tick of the server
// clock until ctx is done.
func (s *Server) RunCleanup(ctx context.Context, every time.Duration) {
	ticker := s.clock.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.rateLimiter.Cleanup()
			s.rooms.throttle.Cleanup()
		}
	}
}
