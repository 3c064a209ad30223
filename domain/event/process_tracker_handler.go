package event

import (
	"log/slog"
	"sync"

	"campus-chat/errors"
)

// ProcessTrackerHandler keeps the latest process snapshot and logs it with
// the room and connection load of the server.
type ProcessTrackerHandler struct {
	log  *slog.Logger
	mu   sync.Mutex
	last ProcessTracker
}

func NewProcessTrackerHandler(log *slog.Logger) *ProcessTrackerHandler {
	return &ProcessTrackerHandler{log: log}
}

func (h *ProcessTrackerHandler) Handle(event Event) {
	if event.Type != PIDTrackerType {
		return
	}
	payload, ok := event.Payload.(ProcessTracker)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}
	h.mu.Lock()
	h.last = payload
	h.mu.Unlock()
	h.log.Debug("Server load",
		"pid", payload.PID,
		"status", payload.Status,
		"cpu", payload.Cpu,
		"ram", payload.Ram,
		"goroutines", payload.Goroutines,
		"rooms", payload.Rooms,
		"connections", payload.Connections,
		"users", payload.Users)
}

func (h *ProcessTrackerHandler) Last() ProcessTracker {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}
