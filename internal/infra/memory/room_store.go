package memory

import (
	"sort"
	"sync"

	"live-quiz-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomStore. The map lock only
// guards membership; each room has its own lock so mutations of different rooms
// never wait on each other.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*roomSlot
}

type roomSlot struct {
	mu      sync.Mutex
	room    domain.Room
	deleted bool
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*roomSlot),
	}
}

func (s *RoomStore) Create(room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return domain.ErrRoomExists
	}
	s.rooms[room.Code] = &roomSlot{room: room.Clone()}
	return nil
}

func (s *RoomStore) Get(code string) (domain.Room, error) {
	slot, ok := s.slot(code)
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.deleted {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return slot.room.Clone(), nil
}

// Mutate runs fn with exclusive access to the room. A room that fn marks as
// closed is dropped before the room lock is released.
func (s *RoomStore) Mutate(code string, fn func(room *domain.Room) error) error {
	slot, ok := s.slot(code)
	if !ok {
		return domain.ErrRoomNotFound
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.deleted {
		return domain.ErrRoomNotFound
	}

	err := fn(&slot.room)
	if slot.room.Closed {
		slot.deleted = true
		s.mu.Lock()
		if s.rooms[code] == slot {
			delete(s.rooms, code)
		}
		s.mu.Unlock()
	}
	return err
}

func (s *RoomStore) Delete(code string) {
	s.mu.Lock()
	slot, ok := s.rooms[code]
	delete(s.rooms, code)
	s.mu.Unlock()
	if !ok {
		return
	}

	slot.mu.Lock()
	slot.deleted = true
	slot.mu.Unlock()
}

// Codes lists the live room codes in sorted order.
func (s *RoomStore) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := make([]string, 0, len(s.rooms))
	for code := range s.rooms {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (s *RoomStore) slot(code string) (*roomSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.rooms[code]
	return slot, ok
}
