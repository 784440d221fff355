// Package ident produces collision-checked random identifiers.
package ident

import (
	"crypto/rand"
	"fmt"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Lengths used across the server.
const (
	RoomIDLen        = 16
	ParticipantIDLen = 7
	ProbeTokenLen    = 6
)

// Generate draws a random alphanumeric string of length n, resampling while
// taken reports a collision. A nil predicate means the id is unscoped.
// The caller provides a predicate scoped to wherever the id must be unique
// (the room registry, a single room's directory). The alphabet space vastly
// exceeds expected population, so resampling terminates.
func Generate(n int, taken func(string) bool) string {
	for {
		id := randomString(n)
		if taken == nil || !taken(id) {
			return id
		}
	}
}

func randomString(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("ident: rand.Read: %v", err))
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf)
}
