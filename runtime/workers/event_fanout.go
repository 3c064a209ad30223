package workers

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"campus-chat/contract"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"
)

var _ contract.Publisher = (*EventFanout)(nil)

// EventFanout routes envelopes to a fixed set of shards. A room always maps
// to the same shard and a shard delivers sequentially, so the events of a
// room reach every sink in the order the room worker produced them.
type EventFanout struct {
	log    *slog.Logger
	shards []*FanoutShard
}

// FanoutShard delivers envelopes to the permanent sinks, then to the
// connections subscribed to the room. Each sink call is bounded by sinkTimeout.
type FanoutShard struct {
	index          int
	log            *slog.Logger
	registry       contract.IRegistry
	permanentSinks []contract.EventSink
	envelopes      chan event.Envelope
	sinkTimeout    time.Duration
}

func NewEventFanout(log *slog.Logger, registry contract.IRegistry, permanentSinks []contract.EventSink,
	shardCount, bufferSize int, sinkTimeout time.Duration) *EventFanout {
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([]*FanoutShard, shardCount)
	for i := range shards {
		shards[i] = &FanoutShard{
			index:          i,
			log:            log.With("shard", i),
			registry:       registry,
			permanentSinks: permanentSinks,
			envelopes:      make(chan event.Envelope, bufferSize),
			sinkTimeout:    sinkTimeout,
		}
	}
	return &EventFanout{log: log, shards: shards}
}

// Workers returns one supervised worker per shard.
func (f *EventFanout) Workers() []contract.Worker {
	res := make([]contract.Worker, len(f.shards))
	for i, s := range f.shards {
		res[i] = s
	}
	return res
}

// Channels exposes the shard queues to the capacity sampler.
func (f *EventFanout) Channels() []NamedChannel {
	res := make([]NamedChannel, len(f.shards))
	for i, s := range f.shards {
		res[i] = NamedChannel{Name: fmt.Sprintf("fanout-%d", i), Channel: s.envelopes}
	}
	return res
}

// Publish blocks until the shard accepts the envelope or ctx is done.
func (f *EventFanout) Publish(ctx context.Context, env event.Envelope) error {
	shard := f.shards[f.shardOf(env.Event.RoomID)]
	select {
	case shard.envelopes <- env:
		return nil
	case <-ctx.Done():
		f.log.Warn("Fan-out shard full, envelope dropped", "room_id", env.Event.RoomID,
			"event", env.Event.Name, "shard", shard.index)
		return errors.Connection("fan-out unavailable", ctx.Err())
	}
}

func (f *EventFanout) shardOf(roomID chat.RoomID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return int(h.Sum32() % uint32(len(f.shards)))
}

func (w *FanoutShard) Run(ctx context.Context) error {
	for {
		select {
		case env := <-w.envelopes:
			w.Fanout(ctx, env)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fan-out shard")
			return nil
		}
	}
}

// Fanout One sink call for each permanent sink, then one per accepted subscription.
func (w *FanoutShard) Fanout(ctx context.Context, env event.Envelope) {
	for _, sink := range w.permanentSinks {
		w.consume(ctx, sink, env.Event, "permanent")
	}
	for _, sub := range w.registry.GetSinksForRoom(env.Event.RoomID) {
		if !env.Accepts(sub.UserID) {
			continue
		}
		w.consume(ctx, sub.Sink, env.Event, sub.ConnectionID)
	}
	for _, userID := range env.Detach {
		w.registry.UnsubscribeUser(userID, env.Event.RoomID)
	}
}

func (w *FanoutShard) consume(ctx context.Context, sink contract.EventSink, evt event.ChatEvent, target string) {
	sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()
	if err := sink.Consume(sinkCtx, evt); err != nil {
		w.log.Debug("Sink failed to consume event", "target", target, "event", evt.Name, "error", err)
	}
}
