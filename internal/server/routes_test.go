package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pool-server/internal/config"
	"pool-server/internal/logging"
)

func TestHandler(t *testing.T) {
	s, _, cleanup := setupTestServer()
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(s.HelloWorldHandler))
	defer server.Close()
	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("error making request to server. Err: %v", err)
	}
	defer resp.Body.Close()
	// Assertions
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status OK; got %v", resp.Status)
	}
	expected := "{\"message\":\"Hello World\"}"
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("error reading response body. Err: %v", err)
	}
	if expected != string(body) {
		t.Errorf("expected response body to be %v; got %v", expected, string(body))
	}
}

func TestHealthHandler(t *testing.T) {
	assert := assert.New(t)
	s, _, cleanup := setupTestServer()
	defer cleanup()

	s.rooms.JoinGame("a", "Alice", "")

	rec := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("application/json", rec.Header().Get("Content-Type"))
	var health HealthResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(HealthResponse{Status: "ok", Rooms: 1, Players: 1}, health)
}

func TestCORSPreflight(t *testing.T) {
	s, _, cleanup := setupTestServer()
	defer cleanup()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "https://pool.example")
	s.RegisterRoutes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowList(t *testing.T) {
	s := &Server{cfg: config.Config{AllowedOrigins: []string{"https://pool.example"}}}

	assert.Equal(t, "https://pool.example", s.allowOrigin("https://pool.example"))
	assert.Empty(t, s.allowOrigin("https://evil.example"))
	assert.Empty(t, s.allowOrigin(""))
}

func TestWebSocketPingPong(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	send(t, ctx, conn, EventPing, nil)

	msg := readEvent(t, ctx, conn, EventPong)
	assert.Equal(EventPong, msg.Type)
}

func TestWebSocketInvalidInput(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))
	errMsg := decodePayload[ErrorMessage](t, readEvent(t, ctx, conn, EventError))
	assert.Contains(errMsg.Message, "INVALID_JSON")

	send(t, ctx, conn, "create_game", nil)
	errMsg = decodePayload[ErrorMessage](t, readEvent(t, ctx, conn, EventError))
	assert.Contains(errMsg.Message, "INVALID_MESSAGE_TYPE")

	send(t, ctx, conn, EventBallPosition, map[string]any{"position": Vec3{}})
	errMsg = decodePayload[ErrorMessage](t, readEvent(t, ctx, conn, EventError))
	assert.Contains(errMsg.Message, "ballNumber is required")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"playerReady","payload":"yes"}`)))
	errMsg = decodePayload[ErrorMessage](t, readEvent(t, ctx, conn, EventError))
	assert.Contains(errMsg.Message, "INVALID_PAYLOAD")

	// Events from a player with no room are ignored; the connection stays usable.
	send(t, ctx, conn, EventShot, ShotRequest{Force: json.RawMessage(`{"x":1}`)})
	send(t, ctx, conn, EventPing, nil)
	readEvent(t, ctx, conn, EventPong)
}

func TestWebSocketRateLimit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, url, cleanup := setupTestServerWith(func(cfg *config.Config) {
		cfg.Limits.MessagesPerSecond = 3
	})
	defer cleanup()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	for range 5 {
		send(t, ctx, conn, EventPing, nil)
	}

	counts := map[string]int{}
	for range 5 {
		counts[readMessage(t, ctx, conn).Type]++
	}
	assert.Equal(t, 3, counts[EventPong])
	assert.Equal(t, 2, counts[EventError])
}

func TestWebSocketFullMatchFlow(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, url, cleanup := setupTestServer()
	defer cleanup()

	alice, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer alice.Close(websocket.StatusNormalClosure, "")
	bob, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer bob.Close(websocket.StatusNormalClosure, "")

	send(t, ctx, alice, EventJoinGame, JoinGameRequest{PlayerName: "Alice"})
	joined := decodePayload[RoomJoinedPayload](t, readEvent(t, ctx, alice, EventRoomJoined))
	aliceID := joined.Players[0].ID
	roomID := joined.Room.ID

	send(t, ctx, bob, EventJoinGame, JoinGameRequest{PlayerName: "Bob", RoomID: roomID})
	joined = decodePayload[RoomJoinedPayload](t, readEvent(t, ctx, bob, EventRoomJoined))
	assert.Equal(roomID, joined.Room.ID)
	require.Len(t, joined.Players, 2)
	bobID := joined.Players[1].ID
	readEvent(t, ctx, alice, EventRoomJoined)

	send(t, ctx, alice, EventPlayerReady, PlayerReadyRequest{IsReady: true})
	send(t, ctx, bob, EventPlayerReady, PlayerReadyRequest{IsReady: true})

	start := decodePayload[GameStartPayload](t, readEvent(t, ctx, bob, EventGameStart))
	assert.Equal(aliceID, start.CurrentTurn)
	readEvent(t, ctx, alice, EventGameStart)

	send(t, ctx, alice, EventShot, ShotRequest{Force: json.RawMessage(`{"x":0.5,"y":0,"z":2}`)})
	shot := decodePayload[PlayerShotPayload](t, readEvent(t, ctx, bob, EventPlayerShot))
	assert.Equal(aliceID, shot.PlayerID)
	assert.JSONEq(`{"x":0.5,"y":0,"z":2}`, string(shot.Force))

	send(t, ctx, alice, EventPhysicsSnapshot, map[string]any{"t": 1, "balls": []int{1, 2}})
	snap := readEvent(t, ctx, bob, EventPhysicsSnapshot)
	raw, _ := json.Marshal(snap.Payload)
	assert.JSONEq(`{"t":1,"balls":[1,2]}`, string(raw))

	ball := 3
	send(t, ctx, alice, EventBallPosition, BallPositionRequest{BallNumber: &ball, Position: Vec3{Y: 1}})
	score := decodePayload[ScoreUpdatePayload](t, readEvent(t, ctx, bob, EventScoreUpdate))
	assert.Equal([2]int{1, 0}, score.Scores)
	assert.Equal([]int{3}, score.BallsInHole)

	alice.Close(websocket.StatusNormalClosure, "bye")
	left := decodePayload[PlayerLeftPayload](t, readEvent(t, ctx, bob, EventPlayerLeft))
	assert.Equal(aliceID, left.PlayerID)
	require.Len(t, left.Players, 1)
	assert.Equal(bobID, left.Players[0].ID)

	rooms, players := s.rooms.Stats()
	assert.Equal(1, rooms)
	assert.Equal(1, players)
}

// startWebSocketMatch seats two clients in one room and reads up to gameStart.
func startWebSocketMatch(t *testing.T, ctx context.Context, url string) (alice, bob *websocket.Conn, aliceID string) {
	t.Helper()
	alice, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	bob, _, err = websocket.Dial(ctx, url, nil)
	require.NoError(t, err)

	send(t, ctx, alice, EventJoinGame, JoinGameRequest{PlayerName: "Alice"})
	joined := decodePayload[RoomJoinedPayload](t, readEvent(t, ctx, alice, EventRoomJoined))
	send(t, ctx, bob, EventJoinGame, JoinGameRequest{PlayerName: "Bob"})
	readEvent(t, ctx, bob, EventRoomJoined)

	send(t, ctx, alice, EventPlayerReady, PlayerReadyRequest{IsReady: true})
	send(t, ctx, bob, EventPlayerReady, PlayerReadyRequest{IsReady: true})
	readEvent(t, ctx, alice, EventGameStart)
	readEvent(t, ctx, bob, EventGameStart)

	return alice, bob, joined.Players[0].ID
}

// Test: Streaming position reports never starves shots and pots
func TestWebSocketPositionStreamNotRateLimited(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, url, cleanup := setupTestServer()
	defer cleanup()

	alice, bob, aliceID := startWebSocketMatch(t, ctx, url)
	defer alice.Close(websocket.StatusNormalClosure, "")
	defer bob.Close(websocket.StatusNormalClosure, "")

	// 16 balls for 8 frames, all on the table.
	for i := range 128 {
		ball := i % 16
		send(t, ctx, alice, EventBallPosition, BallPositionRequest{BallNumber: &ball, Position: Vec3{Y: 10}})
	}
	ball := 3
	send(t, ctx, alice, EventBallPosition, BallPositionRequest{BallNumber: &ball, Position: Vec3{Y: 1}})
	send(t, ctx, alice, EventShot, ShotRequest{Force: json.RawMessage(`{"x":1}`)})

	score := decodePayload[ScoreUpdatePayload](t, readEvent(t, ctx, bob, EventScoreUpdate))
	assert.Equal([2]int{1, 0}, score.Scores)
	shot := decodePayload[PlayerShotPayload](t, readEvent(t, ctx, bob, EventPlayerShot))
	assert.Equal(aliceID, shot.PlayerID)

	assert.Equal(EventScoreUpdate, readMessage(t, ctx, alice).Type, "sender saw no RATE_LIMITED errors")
}

func setupTestServer() (*Server, string, func()) {
	return setupTestServerWith(nil)
}

func setupTestServerWith(mutate func(*config.Config)) (*Server, string, func()) {
	cfg := config.Default()
	cfg.Game.StartDelay = 20 * time.Millisecond
	cfg.Game.RespawnDelay = 20 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	s := New(cfg, logging.Discard(), clockwork.NewRealClock())
	server := httptest.NewServer(s.RegisterRoutes())
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/websocket"

	cleanup := func() {
		server.Close()
		s.rooms.Shutdown()
	}

	return s, url, cleanup
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	msg := ClientMessage{Type: event}
	if payload != nil {
		msg.Payload = mustMarshal(payload)
	}
	require.NoError(t, conn.Write(ctx, websocket.MessageText, mustMarshal(msg)))
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) ServerMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// readEvent skips frames until one of the given type arrives.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) ServerMessage {
	t.Helper()
	for {
		if msg := readMessage(t, ctx, conn); msg.Type == event {
			return msg
		}
	}
}

func decodePayload[T any](t *testing.T, msg ServerMessage) T {
	t.Helper()
	var v T
	payloadBytes, err := json.Marshal(msg.Payload)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payloadBytes, &v))
	return v
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
