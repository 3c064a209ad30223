package runtime

import (
	"sort"
	"sync"

	"campus-chat/contract"
	"campus-chat/domain/chat"
)

type Set map[string]struct{}

type connection struct {
	userID string
	sink   contract.EventSink
	rooms  map[chat.RoomID]struct{}
}

// Registry maps live connections to the rooms they listen to.
// A user may hold several connections; each one is subscribed on its own.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*connection // map connection -> sink and rooms
	roomMembers map[chat.RoomID]Set    // map room to connections
	userConns   map[string]Set         // map user to connections
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*connection),
		roomMembers: make(map[chat.RoomID]Set),
		userConns:   make(map[string]Set),
	}
}

// GetSinksForRoom retrieves all active subscriptions for a specific room.
// It performs a two-step lookup:
// 1. Identifies connection IDs associated with the room via roomMembers.
// 2. Resolves those IDs into actual EventSinks using the connections map.
//
// Returns nil if the room has no listener.
func (r *Registry) GetSinksForRoom(roomID chat.RoomID) []contract.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[roomID]
	if !ok {
		return nil
	}
	subscriptions := make([]contract.Subscription, 0, len(members))
	for connID := range members {
		if conn, exists := r.connections[connID]; exists {
			subscriptions = append(subscriptions, contract.Subscription{
				ConnectionID: connID,
				UserID:       conn.userID,
				Sink:         conn.sink,
			})
		}
	}
	return subscriptions
}

// Subscribe registers a connection and assigns it to a room.
// Rooms are initialized on the fly.
func (r *Registry) Subscribe(connectionID, userID string, roomID chat.RoomID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[connectionID]
	if !ok {
		conn = &connection{userID: userID, rooms: make(map[chat.RoomID]struct{})}
		r.connections[connectionID] = conn
	}
	conn.sink = sink
	conn.rooms[roomID] = struct{}{}

	if _, ok := r.roomMembers[roomID]; !ok {
		r.roomMembers[roomID] = make(Set)
	}
	r.roomMembers[roomID][connectionID] = struct{}{}

	if _, ok := r.userConns[userID]; !ok {
		r.userConns[userID] = make(Set)
	}
	r.userConns[userID][connectionID] = struct{}{}
}

// Unsubscribe removes one connection from a room. The connection stays known
// until RemoveConnection.
func (r *Registry) Unsubscribe(connectionID string, roomID chat.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribe(connectionID, roomID)
}

// UnsubscribeUser removes every connection of a user from a room, used on
// leave, kick and ban.
func (r *Registry) UnsubscribeUser(userID string, roomID chat.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for connID := range r.userConns[userID] {
		r.unsubscribe(connID, roomID)
	}
}

// RemoveConnection forgets a dropped connection and returns the rooms it listened to.
func (r *Registry) RemoveConnection(connectionID string) []chat.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[connectionID]
	if !ok {
		return nil
	}
	rooms := make([]chat.RoomID, 0, len(conn.rooms))
	for roomID := range conn.rooms {
		rooms = append(rooms, roomID)
		r.unsubscribe(connectionID, roomID)
	}
	delete(r.connections, connectionID)
	if conns, ok := r.userConns[conn.userID]; ok {
		delete(conns, connectionID)
		if len(conns) == 0 {
			delete(r.userConns, conn.userID)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}

// RoomsOfUser lists the rooms any connection of the user listens to.
func (r *Registry) RoomsOfUser(userID string) []chat.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[chat.RoomID]struct{})
	for connID := range r.userConns[userID] {
		if conn, ok := r.connections[connID]; ok {
			for roomID := range conn.rooms {
				seen[roomID] = struct{}{}
			}
		}
	}
	rooms := make([]chat.RoomID, 0, len(seen))
	for roomID := range seen {
		rooms = append(rooms, roomID)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}

func (r *Registry) IsConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userConns[userID]) > 0
}

func (r *Registry) Stats() (connections, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections), len(r.userConns)
}

// unsubscribe expects the write lock. Empty rooms are dropped to prevent
// memory leaks over time.
func (r *Registry) unsubscribe(connectionID string, roomID chat.RoomID) {
	if conn, ok := r.connections[connectionID]; ok {
		delete(conn.rooms, roomID)
	}
	if members, ok := r.roomMembers[roomID]; ok {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(r.roomMembers, roomID)
		}
	}
}
