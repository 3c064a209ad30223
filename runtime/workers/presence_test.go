package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"
	"campus-chat/mocks"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type presenceFixture struct {
	worker    *PresenceWorker
	publisher *mocks.MockPublisher
	registry  *mocks.MockIRegistry
	now       time.Time
	published []event.Envelope
}

func newPresenceFixture(t *testing.T) *presenceFixture {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	f := &presenceFixture{
		publisher: mocks.NewMockPublisher(ctrl),
		registry:  mocks.NewMockIRegistry(ctrl),
		now:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	f.worker = NewPresenceWorker(log, f.publisher, f.registry, 16, 3*time.Second, 5*time.Second, time.Second)
	f.worker.clock = func() time.Time { return f.now }
	f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, env event.Envelope) error {
			f.published = append(f.published, env)
			return nil
		}).AnyTimes()
	return f
}

func (f *presenceFixture) names() []event.Name {
	names := make([]event.Name, 0, len(f.published))
	for _, env := range f.published {
		names = append(names, env.Event.Name)
	}
	return names
}

func TestPresenceWorker_ConnectPublishesOnline(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture(t)
	ctx := context.Background()
	f.registry.EXPECT().RoomsOfUser("alice").Return([]chat.RoomID{"algorithms", "physics"}).AnyTimes()

	// When alice opens two connections
	connectCmd{userID: "alice", connectionID: "c1", at: f.now}.apply(f.worker, ctx)
	connectCmd{userID: "alice", connectionID: "c2", at: f.now}.apply(f.worker, ctx)

	// Then every room she belongs to hears about it once, without echoing to her
	req.Equal(chat.PresenceOnline, f.worker.Status("alice"))
	req.Len(f.published, 2)
	for _, env := range f.published {
		req.Equal(event.PresenceUpdate, env.Event.Name)
		req.False(env.Accepts("alice"))
		req.True(env.Accepts("bob"))
	}
}

func TestPresenceWorker_AggregatesConnections(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture(t)
	ctx := context.Background()
	f.registry.EXPECT().RoomsOfUser("alice").Return([]chat.RoomID{"algorithms"}).AnyTimes()

	// Given alice is away on her laptop and busy on her phone
	connectCmd{userID: "alice", connectionID: "laptop", at: f.now}.apply(f.worker, ctx)
	connectCmd{userID: "alice", connectionID: "phone", at: f.now}.apply(f.worker, ctx)
	updateCmd{userID: "alice", connectionID: "laptop", status: chat.PresenceAway, at: f.now.Add(time.Second)}.apply(f.worker, ctx)
	updateCmd{userID: "alice", connectionID: "phone", status: chat.PresenceBusy, at: f.now.Add(time.Second)}.apply(f.worker, ctx)

	// Then the strongest status wins
	req.Equal(chat.PresenceBusy, f.worker.Status("alice"))

	// When a stale update arrives for the phone
	updateCmd{userID: "alice", connectionID: "phone", status: chat.PresenceAway, at: f.now}.apply(f.worker, ctx)

	// Then it is ignored
	req.Equal(chat.PresenceBusy, f.worker.Status("alice"))
	last := f.published[len(f.published)-1].Event.Data.(chat.Presence)
	req.Equal(chat.PresenceBusy, last.Status)
}

func TestPresenceWorker_OfflineAfterGrace(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture(t)
	ctx := context.Background()
	f.registry.EXPECT().RoomsOfUser("alice").Return([]chat.RoomID{"algorithms"}).Times(1)
	f.registry.EXPECT().RoomsOfUser("alice").Return(nil).AnyTimes()

	connectCmd{userID: "alice", connectionID: "c1", at: f.now}.apply(f.worker, ctx)
	f.published = nil

	// When her last connection drops
	disconnectCmd{userID: "alice", connectionID: "c1", rooms: []chat.RoomID{"algorithms"}, at: f.now}.apply(f.worker, ctx)
	f.now = f.now.Add(2 * time.Second)
	f.worker.sweep(ctx)

	// Then nothing is announced during the grace period
	req.Empty(f.published)
	req.Equal(chat.PresenceOnline, f.worker.Status("alice"))

	// When the grace period ends
	f.now = f.now.Add(4 * time.Second)
	f.worker.sweep(ctx)

	// Then the rooms she was in see her offline
	req.Len(f.published, 1)
	req.Equal(chat.RoomID("algorithms"), f.published[0].Event.RoomID)
	req.Equal(chat.PresenceOffline, f.published[0].Event.Data.(chat.Presence).Status)
	req.Equal(chat.PresenceOffline, f.worker.Status("alice"))
}

func TestPresenceWorker_ReconnectWithinGrace(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture(t)
	ctx := context.Background()
	f.registry.EXPECT().RoomsOfUser("alice").Return([]chat.RoomID{"algorithms"}).AnyTimes()

	connectCmd{userID: "alice", connectionID: "c1", at: f.now}.apply(f.worker, ctx)
	f.published = nil

	// Given alice drops and comes back before the grace period ends
	disconnectCmd{userID: "alice", connectionID: "c1", at: f.now}.apply(f.worker, ctx)
	f.now = f.now.Add(time.Second)
	connectCmd{userID: "alice", connectionID: "c2", at: f.now}.apply(f.worker, ctx)
	f.now = f.now.Add(10 * time.Second)
	f.worker.sweep(ctx)

	// Then nobody ever saw her offline
	req.Empty(f.published)
	req.Equal(chat.PresenceOnline, f.worker.Status("alice"))
}

func TestPresenceWorker_TypingDebounceAndExpiry(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture(t)
	ctx := context.Background()
	key := typingKey{roomID: "algorithms", userID: "alice"}

	// When alice keeps typing
	typingCmd{key: key, start: true}.apply(f.worker, ctx)
	f.now = f.now.Add(2 * time.Second)
	typingCmd{key: key, start: true}.apply(f.worker, ctx)

	// Then only one start is broadcast and the indicator is extended
	req.Equal([]event.Name{event.TypingStart}, f.names())
	f.now = f.now.Add(2 * time.Second)
	f.worker.sweep(ctx)
	req.Len(f.published, 1)

	// When she stops without saying so
	f.now = f.now.Add(2 * time.Second)
	f.worker.sweep(ctx)

	// Then a stop is synthesized
	req.Equal([]event.Name{event.TypingStart, event.TypingStop}, f.names())
	req.False(f.published[1].Accepts("alice"))
	req.Equal(event.Typing{RoomID: "algorithms", UserID: "alice"}, f.published[1].Event.Data)
}

func TestPresenceWorker_StopWithoutStart(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture(t)

	// When a stop arrives for an indicator nobody saw
	typingCmd{key: typingKey{roomID: "algorithms", userID: "alice"}}.apply(f.worker, context.Background())

	// Then nothing is published
	req.Empty(f.published)
}

func TestPresenceWorker_Bulk(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture(t)
	f.registry.EXPECT().RoomsOfUser(gomock.Any()).Return(nil).AnyTimes()
	connectCmd{userID: "alice", connectionID: "c1", at: f.now}.apply(f.worker, context.Background())

	presences := f.worker.Bulk([]string{"alice", "bob", "alice"})

	req.Len(presences, 2)
	req.Equal(chat.PresenceOnline, presences[0].Status)
	req.Equal(chat.Presence{UserID: "bob", Status: chat.PresenceOffline}, presences[1])
}

func TestPresenceWorker_RejectsUnknownStatus(t *testing.T) {
	req := require.New(t)
	f := newPresenceFixture(t)

	err := f.worker.Update(context.Background(), "alice", "c1", chat.PresenceStatus("invisible"), time.Time{})

	req.ErrorIs(err, errors.ErrValidation)
}

func TestPresenceWorker_SendFailsWhenStopped(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	worker := NewPresenceWorker(log, mocks.NewMockPublisher(ctrl), mocks.NewMockIRegistry(ctrl), 0, time.Second, time.Second, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Given nobody drains the inbox
	err := worker.StartTyping(ctx, "algorithms", "alice")

	// Then the caller gets a connection error instead of blocking
	req.ErrorIs(err, errors.ErrConnection)
}
