//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"campus-chat/domain/chat"
	"campus-chat/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	// Spawn starts a worker under the running supervision context.
	Spawn(ctx context.Context, worker Worker) error
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives chat events for one connection or one permanent consumer.
type EventSink interface {
	Consume(ctx context.Context, e event.ChatEvent) error
}

// Subscription binds a connection of a user to a room.
type Subscription struct {
	ConnectionID string
	UserID       string
	Sink         EventSink
}

type IRegistry interface {
	GetSinksForRoom(roomID chat.RoomID) []Subscription
	Subscribe(connectionID, userID string, roomID chat.RoomID, sink EventSink)
	Unsubscribe(connectionID string, roomID chat.RoomID)
	UnsubscribeUser(userID string, roomID chat.RoomID)
	RemoveConnection(connectionID string) []chat.RoomID
	RoomsOfUser(userID string) []chat.RoomID
	IsConnected(userID string) bool
	Stats() (connections, users int)
}

// Publisher hands an envelope to the fan-out stage.
type Publisher interface {
	Publish(ctx context.Context, env event.Envelope) error
}

// Dispatcher delivers a command to the worker owning its room and waits for the reply.
type Dispatcher interface {
	Ask(ctx context.Context, cmd chat.Command) (any, error)
}

// ToxicityScorer returns a probability in [0,1] that the text is toxic.
type ToxicityScorer interface {
	Score(ctx context.Context, text string) (float64, error)
}

// PresenceReader exposes the aggregated presence read model.
type PresenceReader interface {
	Status(userID string) chat.PresenceStatus
}

// Task is a background job with a stable type and an opaque payload.
type Task struct {
	Type    string
	Payload []byte
}

// EnqueueOption controls enqueue behavior. Zero values mean "unspecified".
type EnqueueOption struct {
	Queue     string
	ProcessAt time.Time
	ProcessIn time.Duration
	MaxRetry  int
	UniqueTTL time.Duration
}

// NotificationQueue hands deliveries to the asynchronous notification backend.
type NotificationQueue interface {
	Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (string, error)
	Close() error
}
