package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saucecode/kittencatroom/internal/domain"
	"github.com/saucecode/kittencatroom/internal/ident"
	"github.com/saucecode/kittencatroom/internal/protocol"
)

// roomImpl is a threadsafe in-memory room. One exclusive mutex serializes
// directory mutation and broadcast enumeration together, so a departure can
// never race a fan-out into a half-removed session and concurrent admissions
// observe announce-then-insert as a single step. All fan-out enqueues happen
// under the lock into per-connection FIFO buffers, which is what gives every
// recipient the same relative packet order for one room.
type roomImpl struct {
	room *domain.Room

	mu        sync.Mutex
	sessions  map[domain.ParticipantID]*Session
	order     []domain.ParticipantID
	idleSince time.Time
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:      room,
		sessions:  make(map[domain.ParticipantID]*Session),
		idleSince: time.Now(),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *roomImpl) Get(id domain.ParticipantID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *roomImpl) Admit(name string, conn Conn) (*Session, Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := domain.ParticipantID(ident.Generate(ident.ParticipantIDLen, func(s string) bool {
		_, taken := r.sessions[domain.ParticipantID(s)]
		return taken
	}))

	// Announce before inserting: the newcomer is not yet a recipient.
	join := Frame(protocol.Encode(protocol.Join{Type: protocol.TypeJoin, ID: string(id), Name: name}))
	for _, pid := range r.order {
		if err := r.sessions[pid].Deliver(join); err != nil {
			log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("to", string(pid)).Err(err).Msg("join announce dropped")
		}
	}

	sess := NewSession(domain.Participant{ID: id, Name: name}, r.room.ID, conn)
	r.sessions[id] = sess
	r.order = append(r.order, id)
	r.idleSince = time.Time{}

	roster := protocol.Users{Type: protocol.TypeUsers, Users: make(map[string]protocol.UserEntry, len(r.order))}
	for _, pid := range r.order {
		s := r.sessions[pid]
		roster.Users[string(pid)] = protocol.UserEntry{Name: s.Name(), ID: string(pid)}
	}

	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("participant", string(id)).Int("members", len(r.order)).Msg("participant admitted")
	return sess, Frame(protocol.Encode(roster))
}

func (r *roomImpl) Remove(id domain.ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return false
	}
	delete(r.sessions, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	sess.CancelProber()
	if len(r.sessions) == 0 {
		r.idleSince = time.Now()
	}

	drop := Frame(protocol.Encode(protocol.Drop{Type: protocol.TypeDrop, ID: string(id)}))
	for _, pid := range r.order {
		if err := r.sessions[pid].Deliver(drop); err != nil {
			log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("to", string(pid)).Err(err).Msg("drop announce dropped")
		}
	}

	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("participant", string(id)).Int("members", len(r.order)).Msg("participant removed")
	return true
}

func (r *roomImpl) Broadcast(frame Frame, exclude domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sent, dropped := 0, 0
	for _, pid := range r.order {
		if exclude != "" && pid == exclude {
			continue
		}
		if err := r.sessions[pid].Deliver(frame); err != nil {
			dropped++
			continue
		}
		sent++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Int("sent_to", sent).Int("dropped", dropped).Msg("broadcast result")
}

func (r *roomImpl) IdleSince() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) > 0 {
		return time.Time{}, false
	}
	return r.idleSince, true
}
