package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"live-quiz-service/internal/domain"
)

func newRoomStore(t *testing.T) (*RoomStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return NewRoomStore(newClient(mr), time.Hour, zaptest.NewLogger(t)), mr
}

func testRoom(code string) domain.Room {
	return domain.Room{
		Code:        code,
		HostID:      "host",
		State:       domain.StateWaiting,
		Settings:    domain.Settings{TimeLimit: 30},
		Players:     []domain.Player{},
		Submissions: map[string]domain.Submission{},
	}
}

func TestRoomStoreReservesCodes(t *testing.T) {
	store, mr := newRoomStore(t)

	require.NoError(t, store.Create(testRoom("ABC234")))
	assert.True(t, mr.Exists("quiz:room:ABC234"))
	assert.Greater(t, mr.TTL("quiz:room:ABC234"), time.Duration(0))

	// a code held by another instance is a collision too
	require.NoError(t, mr.Set("quiz:room:XYZ789", "{}"))
	assert.ErrorIs(t, store.Create(testRoom("XYZ789")), domain.ErrRoomExists)
	_, err := store.Get("XYZ789")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRoomStoreReplicatesMutations(t *testing.T) {
	store, _ := newRoomStore(t)
	require.NoError(t, store.Create(testRoom("ABC234")))

	err := store.Mutate("ABC234", func(room *domain.Room) error {
		room.Join("Alice", "c1", time.Now())
		room.State = domain.StateCountdown
		return nil
	})
	require.NoError(t, err)

	snap, err := store.Snapshot(context.Background(), "ABC234")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCountdown, snap.State)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "Alice", snap.Players[0].Name)
}

func TestRoomStoreRemovesClosedRooms(t *testing.T) {
	store, mr := newRoomStore(t)
	require.NoError(t, store.Create(testRoom("ABC234")))

	require.NoError(t, store.Mutate("ABC234", func(room *domain.Room) error {
		room.Closed = true
		return nil
	}))

	assert.False(t, mr.Exists("quiz:room:ABC234"))
	_, err := store.Get("ABC234")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = store.Snapshot(context.Background(), "ABC234")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRoomStoreKeepsServingWhenRedisIsDown(t *testing.T) {
	store, mr := newRoomStore(t)
	mr.Close()

	require.NoError(t, store.Create(testRoom("ABC234")))
	require.NoError(t, store.Mutate("ABC234", func(room *domain.Room) error {
		room.State = domain.StateCountdown
		return nil
	}))
	room, err := store.Get("ABC234")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCountdown, room.State)
}
