package random

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// GetUUID generates a UUID and returns it as a string without hyphens.
func GetUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// GetRequestID returns a canonical hyphenated UUIDv4 used as the request_id
// shared by every event of one invocation.
func GetRequestID() string {
	return uuid.NewString()
}

// GetSpanID returns 16 lowercase hex characters, the width of a W3C span id.
func GetSpanID() string {
	return randomHex(8)
}

// GetTraceID returns 32 lowercase hex characters, the width of a W3C trace id.
func GetTraceID() string {
	return GetUUID()
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(buf)
}
