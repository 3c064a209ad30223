package event

import (
	"log/slog"
	"sync"

	"campus-chat/errors"
)

// ChannelCapacityHandler watches the samples of room mailboxes, fan-out
// shards and worker inboxes. A room mailbox close to full means its commands
// are about to time out, so it is reported once when it saturates and once
// when it drains again.
type ChannelCapacityHandler struct {
	log                  *slog.Logger
	lowCapacityThreshold int
	mu                   sync.Mutex
	saturated            map[string]struct{}
}

func NewChannelCapacityHandler(log *slog.Logger, lowCapacityThreshold int) *ChannelCapacityHandler {
	return &ChannelCapacityHandler{
		log:                  log,
		lowCapacityThreshold: lowCapacityThreshold,
		saturated:            make(map[string]struct{}),
	}
}

func (h *ChannelCapacityHandler) Handle(event Event) {
	if event.Type != ChannelCapacityType {
		return
	}
	payload, ok := event.Payload.(ChannelCapacity)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}
	if payload.Capacity <= 0 {
		return
	}
	left := payload.Capacity - payload.Length
	attrs := []any{"channel", payload.ChannelName, "length", payload.Length, "capacity", payload.Capacity}
	if payload.RoomID != "" {
		attrs = append(attrs, "room_id", payload.RoomID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, wasSaturated := h.saturated[payload.ChannelName]
	switch {
	case left <= h.lowCapacityThreshold && !wasSaturated:
		h.saturated[payload.ChannelName] = struct{}{}
		if payload.RoomID != "" {
			h.log.Warn("Room mailbox backing up, commands may time out", attrs...)
		} else {
			h.log.Warn("Channel close to capacity", attrs...)
		}
	case left > h.lowCapacityThreshold && wasSaturated:
		delete(h.saturated, payload.ChannelName)
		h.log.Info("Channel drained", attrs...)
	default:
		h.log.Debug("Channel usage", attrs...)
	}
}

// Saturated reports whether the named channel is currently under its threshold.
func (h *ChannelCapacityHandler) Saturated(channelName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.saturated[channelName]
	return ok
}
