package server

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
)

// RateLimiter implements per-key rate limiting using a sliding window.
// Only allowed requests are recorded, so with maxRequests == 1 it enforces a
// minimum spacing of window between accepted requests.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	clock       clockwork.Clock
	requests    map[string][]time.Time // key -> timestamps of accepted requests
	mu          sync.Mutex
}

func NewRateLimiter(maxRequests int, window time.Duration, clock clockwork.Clock) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		clock:       clock,
		requests:    make(map[string][]time.Time),
	}
}

// NewSnapshotThrottle allows one request per window per key.
func NewSnapshotThrottle(window time.Duration, clock clockwork.Clock) *RateLimiter {
	return NewRateLimiter(1, window, clock)
}

// Allow reports whether key may send now, and records the request if so.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	cutoff := now.Add(-r.window)

	timestamps := r.requests[key]

	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= r.maxRequests {
		r.requests[key] = valid
		return false
	}

	r.requests[key] = append(valid, now)
	return true
}

// Cleanup removes keys with no requests inside the window.
func (r *RateLimiter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock.Now().Add(-r.window)

	for key, timestamps := range r.requests {
		allOld := true
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				allOld = false
				break
			}
		}
		if allOld {
			delete(r.requests, key)
		}
	}
}

// Remove forgets a key immediately, e.g. when its connection closes.
func (r *RateLimiter) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, key)
}

func (r *RateLimiter) tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

var validTypes = map[string]bool{
	EventPing:            true,
	EventJoinGame:        true,
	EventPlayerReady:     true,
	EventRequestRematch:  true,
	EventShot:            true,
	EventBallPosition:    true,
	EventPhysicsSnapshot: true,
}

// ValidateMessageType checks if a message type is recognized.
func ValidateMessageType(msgType string) error {
	if !validTypes[msgType] {
		return fmt.Errorf("INVALID_MESSAGE_TYPE: Unknown message type '%s'", msgType)
	}
	return nil
}

const (
	MaxNameLength = 20
	DefaultName   = "Player"
)

// NormalizeName trims a display name and caps it at MaxNameLength runes.
// Blank names fall back to DefaultName rather than failing the join.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}
	return name
}
