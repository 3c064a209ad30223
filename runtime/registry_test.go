package runtime

import (
	"context"
	"testing"

	"campus-chat/domain/chat"
	"campus-chat/domain/event"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type Sink struct {
	name string
}

func (s Sink) Consume(ctx context.Context, e event.ChatEvent) error {
	return nil
}

func TestRegistry_Subscribe_One_Room_One_Participant(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connectionID := uuid.NewString()
	roomID := chat.RoomID("algorithms")
	sink := Sink{name: "alice"}

	// Given no user is connected
	// And no room exists
	req.Empty(registry.connections)
	req.Empty(registry.roomMembers)
	req.False(registry.IsConnected("alice"))

	// When a participant subscribes a room
	registry.Subscribe(connectionID, "alice", roomID, sink)

	// Then
	req.Len(registry.connections, 1)
	req.Len(registry.roomMembers, 1)
	req.Contains(registry.roomMembers[roomID], connectionID)
	req.True(registry.IsConnected("alice"))

	subscriptions := registry.GetSinksForRoom(roomID)
	req.Len(subscriptions, 1)
	req.Equal("alice", subscriptions[0].UserID)
	req.Equal(sink, subscriptions[0].Sink)
}

func TestRegistry_Subscribe_Several_Connections_Of_One_User(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given alice on a laptop and a phone, bob on one device
	registry.Subscribe("laptop", "alice", "algorithms", Sink{name: "laptop"})
	registry.Subscribe("phone", "alice", "algorithms", Sink{name: "phone"})
	registry.Subscribe("phone", "alice", "physics", Sink{name: "phone"})
	registry.Subscribe("bob-1", "bob", "algorithms", Sink{name: "bob"})

	// Then both connections of alice receive room events
	req.Len(registry.GetSinksForRoom("algorithms"), 3)
	req.Equal([]chat.RoomID{"algorithms", "physics"}, registry.RoomsOfUser("alice"))

	// When alice leaves algorithms
	registry.UnsubscribeUser("alice", "algorithms")

	// Then only bob listens there, alice keeps physics
	subscriptions := registry.GetSinksForRoom("algorithms")
	req.Len(subscriptions, 1)
	req.Equal("bob", subscriptions[0].UserID)
	req.Equal([]chat.RoomID{"physics"}, registry.RoomsOfUser("alice"))
	req.True(registry.IsConnected("alice"))
}

func TestRegistry_RemoveConnection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given a participant subscribed to two rooms
	registry.Subscribe("c1", "alice", "physics", Sink{})
	registry.Subscribe("c1", "alice", "algorithms", Sink{})

	// When the connection drops
	rooms := registry.RemoveConnection("c1")

	// Then the rooms it listened to are returned
	// And nothing is left behind
	req.Equal([]chat.RoomID{"algorithms", "physics"}, rooms)
	req.Empty(registry.connections)
	req.Empty(registry.roomMembers)
	req.Empty(registry.userConns)
	req.Nil(registry.GetSinksForRoom("physics"))
	req.False(registry.IsConnected("alice"))

	// And removing it twice is harmless
	req.Nil(registry.RemoveConnection("c1"))
}

func TestRegistry_UnSubscribe_One_Room_Multiple_Participant(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	roomID := chat.RoomID("algorithms")
	sink2 := Sink{name: "bob"}

	// When participants subscribe a room
	registry.Subscribe("c1", "alice", roomID, Sink{name: "alice"})
	registry.Subscribe("c2", "bob", roomID, sink2)

	// When a participant unsubscribe a room
	registry.Unsubscribe("c1", roomID)

	// Then only one participant left
	req.Len(registry.roomMembers[roomID], 1)
	subscriptions := registry.GetSinksForRoom(roomID)
	req.Len(subscriptions, 1)
	req.Equal(sink2, subscriptions[0].Sink)
}
