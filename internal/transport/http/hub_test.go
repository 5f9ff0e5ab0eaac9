package http

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"live-quiz-service/internal/domain"
)

func receive(t *testing.T, ch <-chan []byte) domain.Event {
	t.Helper()
	select {
	case msg := <-ch:
		var ev domain.Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		return ev
	default:
		t.Fatal("expected a queued event")
		return domain.Event{}
	}
}

func assertQuiet(t *testing.T, ch <-chan []byte) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected event %s", msg)
	default:
	}
}

func TestHubBroadcastReachesRoomMembersOnly(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	a := hub.Register("a")
	b := hub.Register("b")
	c := hub.Register("c")
	hub.Subscribe("ROOM1", "a")
	hub.Subscribe("ROOM1", "b")
	hub.Subscribe("ROOM2", "c")

	hub.Broadcast("ROOM1", domain.Event{Type: domain.EventCountdown, Payload: domain.CountdownPayload{Count: 3}})
	assert.Equal(t, domain.EventCountdown, receive(t, a).Type)
	assert.Equal(t, domain.EventCountdown, receive(t, b).Type)
	assertQuiet(t, c)

	hub.Send("c", domain.Event{Type: domain.EventError})
	assert.Equal(t, domain.EventError, receive(t, c).Type)
	assertQuiet(t, a)
	assert.Equal(t, 2, hub.Members("ROOM1"))
}

func TestHubSubscribeMovesConnection(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	a := hub.Register("a")
	hub.Subscribe("ROOM1", "a")
	hub.Subscribe("ROOM2", "a")

	assert.Equal(t, "ROOM2", hub.RoomOf("a"))
	assert.Equal(t, 0, hub.Members("ROOM1"))
	hub.Broadcast("ROOM1", domain.Event{Type: domain.EventGameState})
	assertQuiet(t, a)

	hub.Unsubscribe("ROOM1", "a")
	assert.Equal(t, "ROOM2", hub.RoomOf("a"))
	hub.Unsubscribe("ROOM2", "a")
	assert.Empty(t, hub.RoomOf("a"))
}

func TestHubDropsEventsForSlowConnections(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	slow := hub.Register("slow")
	hub.Subscribe("ROOM1", "slow")

	for i := 0; i < sendBuffer+10; i++ {
		hub.Broadcast("ROOM1", domain.Event{Type: domain.EventTimeUpdate, Payload: domain.TimeUpdatePayload{TimeRemaining: i}})
	}
	assert.Len(t, slow, sendBuffer)
}

func TestHubCloseRoomAndUnregister(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	a := hub.Register("a")
	hub.Subscribe("ROOM1", "a")

	hub.CloseRoom("ROOM1")
	assert.Empty(t, hub.RoomOf("a"))
	assert.Equal(t, 0, hub.Members("ROOM1"))

	hub.Unregister("a")
	_, open := <-a
	assert.False(t, open)

	// unknown connections are ignored
	hub.Send("a", domain.Event{Type: domain.EventError})
	hub.Subscribe("ROOM1", "a")
	hub.Unregister("a")
	assert.Equal(t, 0, hub.Members("ROOM1"))
}
