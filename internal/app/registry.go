package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saucecode/kittencatroom/internal/core"
	"github.com/saucecode/kittencatroom/internal/domain"
	"github.com/saucecode/kittencatroom/internal/ident"
)

// Registry owns the mapping from room id to room. Room ids are allocated
// here and are pairwise distinct among live rooms.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.RoomID]core.RoomService)}
}

// CreateRoom validates the fish, allocates a unique room id, and stores a new
// empty room. The fish is kept verbatim for the room's entire lifetime.
func (r *Registry) CreateRoom(fish string) (domain.RoomID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := domain.RoomID(ident.Generate(ident.RoomIDLen, func(s string) bool {
		_, taken := r.rooms[domain.RoomID(s)]
		return taken
	}))
	room, err := domain.NewRoom(id, fish)
	if err != nil {
		return "", err
	}
	r.rooms[id] = core.NewRoomService(room)
	log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room created")
	return id, nil
}

func (r *Registry) Get(id domain.RoomID) (core.RoomService, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Reap evicts rooms whose directory has been empty past the grace window and
// reports how many were removed.
func (r *Registry) Reap(grace time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, room := range r.rooms {
		since, idle := room.IdleSince()
		if !idle || time.Since(since) < grace {
			continue
		}
		delete(r.rooms, id)
		evicted++
		log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("idle room evicted")
	}
	return evicted
}

// StartReaper runs Reap on an interval until ctx is done.
func (r *Registry) StartReaper(ctx context.Context, every, grace time.Duration) {
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.Reap(grace)
			}
		}
	}()
}
