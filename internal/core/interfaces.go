package core

import (
	"time"

	"github.com/saucecode/kittencatroom/internal/domain"
)

// Frame is one encoded wire packet.
type Frame []byte

// Conn is the transport endpoint a session delivers frames to.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	// TrySend enqueues a frame without blocking. A full buffer or a closed
	// connection drops that recipient's copy only.
	TrySend(Frame) error
	Close()
}

// RoomService is the core-facing API of a room: the participant directory
// plus the broadcast engine. It owns the membership set but never touches
// transport resources.
type RoomService interface {
	Room() *domain.Room
	Count() int
	Get(id domain.ParticipantID) (*Session, bool)

	// Admit allocates a participant id, announces the newcomer to the
	// current members, inserts the new session, and returns it together
	// with the encoded roster snapshot to deliver to the new connection.
	Admit(name string, conn Conn) (*Session, Frame)

	// Remove deletes the session, cancels its prober, and announces the
	// departure to the remaining members. Reports whether the id was
	// present.
	Remove(id domain.ParticipantID) bool

	// Broadcast fans a frame out to every member in admission order,
	// skipping exclude when non-empty.
	Broadcast(frame Frame, exclude domain.ParticipantID)

	// IdleSince reports when the room last became empty; ok is false while
	// the room has members.
	IdleSince() (time.Time, bool)
}
