package event

import (
	"log/slog"
	"sync"

	"campus-chat/domain/chat"
	"campus-chat/errors"
)

// WorkerRestartedAfterPanicHandler counts supervisor restarts. Room workers
// reload their state from storage on restart, a room restarting over and
// over is logged as an error since its members keep losing requests.
type WorkerRestartedAfterPanicHandler struct {
	log          *slog.Logger
	mu           sync.Mutex
	counter      *Counter
	roomRestarts map[chat.RoomID]int
	alertAfter   int
}

func NewWorkerRestartedAfterPanicHandler(log *slog.Logger, counter *Counter, alertAfter int) *WorkerRestartedAfterPanicHandler {
	return &WorkerRestartedAfterPanicHandler{
		log:          log,
		counter:      counter,
		roomRestarts: make(map[chat.RoomID]int),
		alertAfter:   alertAfter,
	}
}

func (h *WorkerRestartedAfterPanicHandler) Handle(event Event) {
	if event.Type != RestartedAfterPanicType {
		return
	}
	payload, ok := event.Payload.(WorkerRestartedAfterPanic)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counter.Increment(RestartedAfterPanicType)
	total := h.counter.Get(RestartedAfterPanicType)
	if payload.RoomID == "" {
		h.log.Warn("Worker restarted after panic", "worker", payload.WorkerName, "cause", payload.Cause, "total", total)
		return
	}
	h.roomRestarts[payload.RoomID]++
	restarts := h.roomRestarts[payload.RoomID]
	if h.alertAfter > 0 && restarts >= h.alertAfter {
		h.log.Error("Room worker keeps crashing", "room_id", payload.RoomID, "cause", payload.Cause, "restarts", restarts)
		return
	}
	h.log.Warn("Room worker restarted after panic", "room_id", payload.RoomID, "cause", payload.Cause, "restarts", restarts)
}

func (h *WorkerRestartedAfterPanicHandler) RoomRestarts(roomID chat.RoomID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.roomRestarts[roomID]
}
