// internal/store/memory.go
//
// In-memory registry of live rooms.
// Rooms exist only while players are waiting or playing, so nothing here is
// durable; accounts and win counters live in SQLite (internal/users).
//
// Characteristics:
//   - Rooms keyed by room id, with a secondary index from match id to room.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - State is lost when the process restarts.
//   - Get/ByMatch return ErrNotFound for unknown ids.

package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/robalobadob/battleship/apps/go-server/internal/room"
)

// ErrNotFound is returned for unknown room or match ids.
var ErrNotFound = errors.New("not found")

// Store defines the registry interface for live rooms.
type Store interface {
	// Save adds or replaces a room. Once the room has a match it is also
	// indexed by match id.
	Save(ctx context.Context, r *room.Room) error

	// Get retrieves a room by room id.
	Get(ctx context.Context, id int64) (*room.Room, error)

	// ByMatch retrieves the room hosting match id.
	ByMatch(ctx context.Context, matchID int64) (*room.Room, error)

	// Delete removes a room and its match index entry.
	Delete(ctx context.Context, id int64) error

	// List returns every room ordered by id.
	List(ctx context.Context) []*room.Room
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu      sync.RWMutex         // guards both maps
	rooms   map[int64]*room.Room // keyed by Room.ID
	matches map[int64]int64      // match id -> room id
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{
		rooms:   make(map[int64]*room.Room),
		matches: make(map[int64]int64),
	}
}

func (m *memory) Save(ctx context.Context, r *room.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[r.ID] = r
	if mid := r.MatchID(); mid != 0 {
		m.matches[mid] = r.ID
	}
	return nil
}

func (m *memory) Get(ctx context.Context, id int64) (*room.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.rooms[id]; ok {
		return r, nil
	}
	return nil, ErrNotFound
}

func (m *memory) ByMatch(ctx context.Context, matchID int64) (*room.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.matches[matchID]; ok {
		if r, ok := m.rooms[id]; ok {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memory) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.rooms, id)
	for mid, rid := range m.matches {
		if rid == r.ID {
			delete(m.matches, mid)
		}
	}
	return nil
}

func (m *memory) List(ctx context.Context) []*room.Room {
	m.mu.RLock()
	out := make([]*room.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
