package event

import (
	"log/slog"
	"time"

	"campus-chat/errors"
)

// LatencyHandler measures the time between reception of a send and its persistence.
type LatencyHandler struct {
	log              *slog.Logger
	latencyThreshold time.Duration
	counter          *Counter
}

func NewLatencyHandler(log *slog.Logger, latencyThreshold time.Duration, counter *Counter) *LatencyHandler {
	return &LatencyHandler{log: log, latencyThreshold: latencyThreshold, counter: counter}
}

func (h *LatencyHandler) Handle(e Event) {
	if e.Type != MessageAcceptedType {
		return
	}
	payload, ok := e.Payload.(MessageAccepted)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}
	h.counter.Increment(MessageAcceptedType)
	leadTime := e.CreatedAt.Sub(payload.ReceivedAt)

	h.log.Debug("telemetry: pipeline latency",
		"room_id", payload.RoomID,
		"seq", payload.Seq,
		"lead_time_ms", leadTime.Milliseconds(),
	)
	if leadTime > h.latencyThreshold {
		h.log.Warn("high latency detected", "room_id", payload.RoomID, "lead_time", leadTime)
	}
}
