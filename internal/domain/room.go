// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

// MinFishLen matches the fixed-length hash encoding clients produce.
const MinFishLen = 64

var (
	ErrFishEmpty    = errors.New("fish empty")
	ErrFishTooShort = errors.New("fish too short")

	ErrRoomNotFound = errors.New("room not found")
)

type RoomID string

// Room is an isolated broadcast domain. The fish is the opaque secret blob
// supplied at creation; the server stores it verbatim and only ever hands it
// back to admitting browsers.
type Room struct {
	ID   RoomID
	Fish string
}

// NewRoom validates the fish and keeps construction obvious in callers.
func NewRoom(id RoomID, fish string) (*Room, error) {
	if len(fish) == 0 {
		return nil, ErrFishEmpty
	}
	if len(fish) < MinFishLen {
		return nil, ErrFishTooShort
	}
	return &Room{ID: id, Fish: fish}, nil
}
