package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"campus-chat/contract"
	"campus-chat/domain/event"
	"campus-chat/mocks"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanoutShard_Fanout(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	permanentSink := mocks.NewMockEventSink(ctrl)
	aliceSink := mocks.NewMockEventSink(ctrl)
	mutedSink := mocks.NewMockEventSink(ctrl)

	fanout := NewEventFanout(log, mockRegistry, []contract.EventSink{permanentSink}, 1, 10, time.Second)
	evt := event.ChatEvent{Name: event.MessageNew, RoomID: "algorithms"}

	// Given alice and a muted member are connected
	mockRegistry.EXPECT().GetSinksForRoom(gomock.Eq(evt.RoomID)).Return([]contract.Subscription{
		{ConnectionID: "c1", UserID: "alice", Sink: aliceSink},
		{ConnectionID: "c2", UserID: "muted", Sink: mutedSink},
	}).Times(1)
	// Then the permanent sink and alice consume the event, the muted member does not
	permanentSink.EXPECT().Consume(gomock.Any(), gomock.Eq(evt)).Return(nil).Times(1)
	aliceSink.EXPECT().Consume(gomock.Any(), gomock.Eq(evt)).Return(nil).Times(1)
	mutedSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Times(0)

	// When an envelope addressed to alice only is delivered
	fanout.shards[0].Fanout(context.Background(), event.ToUsers(evt, "alice"))
}

func TestEventFanoutShard_DetachAfterDelivery(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	bobSink := mocks.NewMockEventSink(ctrl)

	fanout := NewEventFanout(log, mockRegistry, nil, 1, 10, time.Second)
	evt := event.ChatEvent{Name: event.ModerationAction, RoomID: "algorithms"}

	// Given bob is banned by the event being delivered
	// Then bob receives it before his connections leave the room
	gomock.InOrder(
		mockRegistry.EXPECT().GetSinksForRoom(gomock.Eq(evt.RoomID)).Return([]contract.Subscription{
			{ConnectionID: "c1", UserID: "bob", Sink: bobSink},
		}),
		bobSink.EXPECT().Consume(gomock.Any(), gomock.Eq(evt)).Return(nil),
		mockRegistry.EXPECT().UnsubscribeUser("bob", evt.RoomID),
	)

	fanout.shards[0].Fanout(context.Background(), event.Envelope{Event: evt, Detach: []string{"bob"}})
}

func TestEventFanoutShard_SinkTimeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	slowSink := mocks.NewMockEventSink(ctrl)
	nextSink := mocks.NewMockEventSink(ctrl)

	sinkTimeout := 20 * time.Millisecond
	fanout := NewEventFanout(log, mockRegistry, nil, 1, 10, sinkTimeout)

	mockRegistry.EXPECT().GetSinksForRoom(gomock.Any()).Return([]contract.Subscription{
		{ConnectionID: "slow", UserID: "alice", Sink: slowSink},
		{ConnectionID: "next", UserID: "bob", Sink: nextSink},
	}).Times(1)
	// Given a sink blocking until its deadline
	slowSink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, evt event.ChatEvent) error {
			<-ctx.Done()
			return ctx.Err()
		}).Times(1)
	nextSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	// When an event is fanned out
	start := time.Now()
	fanout.shards[0].Fanout(context.Background(), event.ToAll(event.ChatEvent{Name: event.MessageNew, RoomID: "r1"}))

	// Then the slow sink only delays the next one by its timeout
	req.Less(time.Since(start), 500*time.Millisecond)
}

func TestEventFanout_PreservesRoomOrder(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	mockRegistry.EXPECT().GetSinksForRoom(gomock.Any()).Return(nil).AnyTimes()
	recorder := mocks.NewMockEventSink(ctrl)
	received := make(chan int64, 100)
	recorder.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, evt event.ChatEvent) error {
			received <- evt.Data.(int64)
			return nil
		}).AnyTimes()

	fanout := NewEventFanout(log, mockRegistry, []contract.EventSink{recorder}, 4, 100, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, w := range fanout.Workers() {
		go func(w contract.Worker) { _ = w.Run(ctx) }(w)
	}

	// When a room publishes 50 events
	for seq := int64(1); seq <= 50; seq++ {
		req.NoError(fanout.Publish(ctx, event.ToAll(event.ChatEvent{Name: event.MessageNew, RoomID: "algorithms", Data: seq})))
	}

	// Then they are consumed in publication order
	for want := int64(1); want <= 50; want++ {
		select {
		case got := <-received:
			req.Equal(want, got)
		case <-time.After(time.Second):
			req.FailNow("event not delivered", "seq %d", want)
		}
	}
}

func TestEventFanout_PublishGivesUpWhenShardIsFull(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// Given a single shard with room for one envelope and no consumer
	fanout := NewEventFanout(log, mocks.NewMockIRegistry(ctrl), nil, 1, 1, time.Second)
	env := event.ToAll(event.ChatEvent{Name: event.MessageNew, RoomID: "r1"})
	req.NoError(fanout.Publish(context.Background(), env))

	// When publishing again with a short deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := fanout.Publish(ctx, env)

	// Then a connection error is returned
	req.Error(err)
	req.Len(fanout.Channels(), 1)
}
