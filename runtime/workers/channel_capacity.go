package workers

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"campus-chat/domain/chat"
	"campus-chat/domain/event"
)

type NamedChannel struct {
	Name    string
	RoomID  chat.RoomID
	Channel any
}

// ChannelCapacityWorker samples the length and capacity of the runtime
// queues. The list is read on every tick so lazily spawned room mailboxes
// are sampled too. Reading len and cap never blocks the owners of a channel.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       func() []NamedChannel
	telemetryChan  chan event.Event
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger,
	channels func() []NamedChannel, telemetryChan chan event.Event,
	metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		channels:       channels,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
	}
}

func (w ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping channel sampling")
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w ChannelCapacityWorker) sample() {
	for _, nc := range w.channels() {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		select {
		case w.telemetryChan <- toCapacityEvent(nc, v.Cap(), v.Len()):
		default:
			w.log.Debug("Observability telemetry event lost")
		}
	}
}

func toCapacityEvent(nc NamedChannel, capacity, length int) event.Event {
	return event.Event{
		Type:      event.ChannelCapacityType,
		CreatedAt: time.Now().UTC(),
		Payload: event.ChannelCapacity{
			ChannelName: nc.Name,
			RoomID:      nc.RoomID,
			Capacity:    capacity,
			Length:      length,
		},
	}
}
