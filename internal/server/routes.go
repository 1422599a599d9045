package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/arl/statsviz"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	// Register routes
	mux.HandleFunc("/", s.HelloWorldHandler)

	mux.HandleFunc("/health", s.healthHandler)

	mux.HandleFunc("/websocket", s.websocketHandler)

	if s.cfg.Debug {
		if err := statsviz.Register(mux); err != nil {
			s.logger.Error("Failed to register statsviz", "err", err)
		} else {
			s.logger.Info("Runtime metrics enabled", "path", "/debug/statsviz/")
		}
	}

	// Wrap the mux with CORS middleware
	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Credentials", "false")

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) string {
	if slices.Contains(s.cfg.AllowedOrigins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(s.cfg.AllowedOrigins, origin) {
		return origin
	}
	return ""
}

func (s *Server) HelloWorldHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"message": "Hello World"})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	rooms, players := s.rooms.Stats()
	s.writeJSON(w, HealthResponse{Status: "ok", Rooms: rooms, Players: players})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	resp, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(resp); err != nil {
		s.logger.Warn("Failed to write response", "err", err)
	}
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	connectionID := uuid.New().String()
	logger := s.logger.With("conn", connectionID)
	logger.Info("New connection", "remote", r.RemoteAddr)

	client := s.hub.Register(connectionID, socket)
	go client.WritePump(ctx, logger)

	defer func() {
		if err := s.rooms.Disconnect(connectionID); err != nil && !errors.Is(err, ErrNotInRoom) {
			logger.Warn("Disconnect cleanup failed", "err", err)
		}
		s.hub.Unregister(connectionID)
		s.rateLimiter.Remove(connectionID)
		logger.Info("Connection closed")
	}()

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			logger.Debug("Read ended", "err", err)
			return
		}

		if msgType != websocket.MessageText {
			logger.Debug("Non-text frame ignored")
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug("Invalid JSON", "err", err)
			s.sendError(connectionID, "INVALID_JSON: Message is not valid JSON")
			continue
		}

		if err := ValidateMessageType(msg.Type); err != nil {
			logger.Debug("Unknown message type", "type", msg.Type)
			s.sendError(connectionID, err.Error())
			continue
		}

		if !unmetered[msg.Type] && !s.rateLimiter.Allow(connectionID) {
			logger.Warn("Rate limit exceeded", "type", msg.Type)
			s.sendError(connectionID, "RATE_LIMITED: Too many messages")
			continue
		}

		s.dispatch(connectionID, msg)
	}
}

// unmetered events skip the flood guard. Snapshots have their own per-sender
// throttle; position reports above the hole threshold change nothing.
var unmetered = map[string]bool{
	EventPhysicsSnapshot: true,
	EventBallPosition:    true,
}

func (s *Server) dispatch(connectionID string, msg ClientMessage) {
	var err error

	switch msg.Type {
	case EventPing:
		s.hub.Send(connectionID, EventPong, struct{}{})

	case EventJoinGame:
		var req JoinGameRequest
		if !s.decode(connectionID, msg, &req) {
			return
		}
		_, err = s.rooms.JoinGame(connectionID, req.PlayerName, req.RoomID)

	case EventPlayerReady:
		var req PlayerReadyRequest
		if !s.decode(connectionID, msg, &req) {
			return
		}
		err = s.rooms.SetReady(connectionID, req.IsReady)

	case EventRequestRematch:
		err = s.rooms.RequestRematch(connectionID)

	case EventShot:
		var req ShotRequest
		if !s.decode(connectionID, msg, &req) {
			return
		}
		err = s.rooms.Shot(connectionID, req.Force)

	case EventBallPosition:
		var req BallPositionRequest
		if !s.decode(connectionID, msg, &req) {
			return
		}
		if req.BallNumber == nil {
			s.sendError(connectionID, "INVALID_PAYLOAD: ballNumber is required")
			return
		}
		err = s.rooms.BallPosition(connectionID, *req.BallNumber, req.Position)

	case EventPhysicsSnapshot:
		if len(msg.Payload) == 0 {
			return
		}
		err = s.rooms.PhysicsSnapshot(connectionID, msg.Payload)
	}

	s.logOutcome(connectionID, msg.Type, err)
}

// decode unmarshals the payload into v. A missing payload leaves v zeroed.
func (s *Server) decode(connectionID string, msg ClientMessage, v any) bool {
	if len(msg.Payload) == 0 || string(msg.Payload) == "null" {
		return true
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		s.logger.Debug("Invalid payload", "conn", connectionID, "type", msg.Type, "err", err)
		s.sendError(connectionID, fmt.Sprintf("INVALID_PAYLOAD: Invalid %s payload", msg.Type))
		return false
	}
	return true
}

// logOutcome records events that were ignored. None of them are reported
// back to the client.
func (s *Server) logOutcome(connectionID, event string, err error) {
	switch {
	case err == nil, errors.Is(err, ErrThrottled):
	case errors.Is(err, ErrNotInRoom),
		errors.Is(err, ErrInvalidPhase),
		errors.Is(err, ErrOpponentAbsent),
		errors.Is(err, ErrAlreadySeated),
		errors.Is(err, ErrInvalidBall):
		s.logger.Debug("Event ignored", "conn", connectionID, "type", event, "err", err)
	default:
		s.logger.Warn("Event failed", "conn", connectionID, "type", event, "err", err)
	}
}

func (s *Server) sendError(connectionID, msg string) {
	s.hub.Send(connectionID, EventError, ErrorMessage{Message: msg})
}
