package sink

import (
	"context"
	"sort"
	"sync"
	"time"

	"campus-chat/contract"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"
)

var _ contract.EventSink = (*ConnectionSink)(nil)

// ConnectionSink buffers the events of one live connection. The fan-out
// calls Consume, the transport drains Events and writes them to the wire.
// Consume never waits: a full buffer drops the event and the rooms it
// belonged to are announced with a room:resync once the reader catches up.
type ConnectionSink struct {
	ConnectionID string
	UserID       string
	events       chan event.ChatEvent

	mu      sync.Mutex
	lagging map[chat.RoomID]struct{}
}

func NewConnectionSink(connectionID, userID string, bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		ConnectionID: connectionID,
		UserID:       userID,
		events:       make(chan event.ChatEvent, bufferSize),
		lagging:      make(map[chat.RoomID]struct{}),
	}
}

func (s *ConnectionSink) Consume(_ context.Context, e event.ChatEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lagging) > 0 {
		if !s.offer(s.resync(e.At)) {
			return s.drop(e)
		}
		s.lagging = make(map[chat.RoomID]struct{})
	}
	if !s.offer(e) {
		return s.drop(e)
	}
	return nil
}

func (s *ConnectionSink) Events() <-chan event.ChatEvent {
	return s.events
}

func (s *ConnectionSink) offer(e event.ChatEvent) bool {
	select {
	case s.events <- e:
		return true
	default:
		return false
	}
}

func (s *ConnectionSink) drop(e event.ChatEvent) error {
	if e.RoomID != "" {
		s.lagging[e.RoomID] = struct{}{}
	}
	return errors.Connection("connection "+s.ConnectionID+" is not draining", nil)
}

func (s *ConnectionSink) resync(at time.Time) event.ChatEvent {
	rooms := make([]chat.RoomID, 0, len(s.lagging))
	for id := range s.lagging {
		rooms = append(rooms, id)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return event.ChatEvent{Name: event.RoomResync, At: at, Data: event.Resync{RoomIDs: rooms}}
}
