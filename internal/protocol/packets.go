// Package protocol defines the JSON wire packets exchanged over the chat
// socket. Every packet carries a "type" discriminant; payloads are opaque
// ciphertext blobs the server relays without inspecting.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

const (
	TypeConnect = "CONNECT"
	TypeUsers   = "USERS"
	TypeJoin    = "JOIN"
	TypeDrop    = "DROP"
	TypeMsg     = "MSG"
	TypePing    = "PING"
	TypePong    = "PONG"
	TypeError   = "ERROR"
)

// Error ids reported to clients.
const (
	ErrIDConnect = "connecterror"
	ErrIDPing    = "pingerror"
)

var ErrMalformed = errors.New("malformed packet")

// Envelope is decoded first to pick the variant.
type Envelope struct {
	Type string `json:"type"`
}

// Connect is the admission request.
type Connect struct {
	Type   string `json:"type"`
	RoomID string `json:"roomid"`
	Data   string `json:"data"`
}

// UserEntry is one roster line in a Users snapshot.
type UserEntry struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Users is the full roster snapshot sent once at admission.
type Users struct {
	Type  string               `json:"type"`
	Users map[string]UserEntry `json:"users"`
}

// Join announces a new participant to the rest of the room.
type Join struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Drop announces a departure.
type Drop struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Msg is the chat payload. The server stamps ID with the sender's
// participant id on relay; whatever the client put there is discarded.
type Msg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Data string `json:"data"`
}

// Ping carries a single-use liveness nonce.
type Ping struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Pong echoes the nonce of the last Ping.
type Pong struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Error is an error notice. Die means the server will also close the
// transport.
type Error struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Data string `json:"data"`
	Die  bool   `json:"die"`
}

// Encode marshals a packet for the wire. All packet types marshal cleanly;
// a failure here is a programming error and yields an empty frame.
func Encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Str("module", "protocol").Err(err).Msg("encode failed")
		return nil
	}
	return b
}

// DecodeType extracts the discriminant of an inbound packet.
func DecodeType(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env.Type, nil
}

// Decode unmarshals an inbound packet into the chosen variant.
func Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
