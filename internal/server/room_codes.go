package server

import (
	"errors"
	"math/rand/v2"
	"strings"
)

const RoomCodeLength = 6

// GenerateRoomCode returns a random code that is not a key of taken. The
// caller must hold whatever lock guards taken until the code is stored.
func GenerateRoomCode[T any](taken map[string]T) string {
	for {
		code := make([]byte, RoomCodeLength)
		for i := range code {
			code[i] = 'A' + byte(rand.IntN(26))
		}
		roomCode := string(code)

		if _, exists := taken[roomCode]; !exists {
			return roomCode
		}
	}
}

func ValidateRoomCode(code string) error {
	if len(code) != RoomCodeLength {
		return errors.New("Room code must be exactly 6 characters")
	}

	code = strings.ToUpper(code)
	for _, ch := range code {
		if ch < 'A' || ch > 'Z' {
			return errors.New("Room code must contain only letters A-Z")
		}
	}

	return nil
}

func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
