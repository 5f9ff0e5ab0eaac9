package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

const opTimeout = 500 * time.Millisecond

// RoomStore is a Redis-aware implementation of app.RoomStore.
// Notes:
//   - Rooms live in a local memory.RoomStore; timers and connections are
//     process-local, so the in-process room is authoritative.
//   - Redis reserves room codes with SETNX so two instances never hand out the
//     same code, and holds a JSON snapshot of every room under quiz:room:{code}.
//   - Replication is best-effort: failures are logged and never roll back the
//     in-memory room.
type RoomStore struct {
	local  *memory.RoomStore
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRoomStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RoomStore {
	return &RoomStore{
		local:  memory.NewRoomStore(),
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (s *RoomStore) Create(room domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	ok, err := s.client.SetNX(ctx, roomKey(room.Code), data, s.ttl).Result()
	switch {
	case err != nil:
		s.logger.Warn("reserve room code in redis failed", zap.String("room", room.Code), zap.Error(err))
	case !ok:
		return domain.ErrRoomExists
	}
	return s.local.Create(room)
}

func (s *RoomStore) Get(code string) (domain.Room, error) {
	return s.local.Get(code)
}

// Mutate runs fn on the local room and replicates the result while the room
// lock is still held, so snapshots are written in mutation order.
func (s *RoomStore) Mutate(code string, fn func(room *domain.Room) error) error {
	return s.local.Mutate(code, func(room *domain.Room) error {
		err := fn(room)
		switch {
		case room.Closed:
			s.remove(code)
		case err == nil:
			s.replicate(room)
		}
		return err
	})
}

func (s *RoomStore) Delete(code string) {
	s.local.Delete(code)
	s.remove(code)
}

func (s *RoomStore) Codes() []string {
	return s.local.Codes()
}

// Snapshot reads the replicated copy of a room, which may live on another instance.
func (s *RoomStore) Snapshot(ctx context.Context, code string) (domain.Room, error) {
	data, err := s.client.Get(ctx, roomKey(code)).Bytes()
	if isMiss(err) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return domain.Room{}, fmt.Errorf("decode room %s: %w", code, err)
	}
	return room, nil
}

func (s *RoomStore) replicate(room *domain.Room) {
	data, err := json.Marshal(room)
	if err != nil {
		s.logger.Error("encode room snapshot failed", zap.String("room", room.Code), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.client.Set(ctx, roomKey(room.Code), data, s.ttl).Err(); err != nil {
		s.logger.Warn("replicate room snapshot failed", zap.String("room", room.Code), zap.Error(err))
	}
}

func (s *RoomStore) remove(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.client.Del(ctx, roomKey(code)).Err(); err != nil {
		s.logger.Warn("remove room snapshot failed", zap.String("room", code), zap.Error(err))
	}
}

func roomKey(code string) string {
	return "quiz:room:" + code
}
