package event

import (
	"log/slog"
	"sync"

	"campus-chat/errors"
)

// ModerationHitHandler tallies blocked messages per rule and flagged toxicity scans.
type ModerationHitHandler struct {
	mu      sync.Mutex
	log     *slog.Logger
	counter *Counter
	hits    map[string]uint64
}

func NewModerationHitHandler(log *slog.Logger, counter *Counter) *ModerationHitHandler {
	return &ModerationHitHandler{log: log, counter: counter, hits: make(map[string]uint64)}
}

func (h *ModerationHitHandler) Handle(event Event) {
	switch event.Type {
	case ModerationHitType:
		payload, ok := event.Payload.(ModerationHit)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(ModerationHitType)
		h.mu.Lock()
		h.hits[payload.Rule]++
		h.mu.Unlock()
		h.log.Info("message blocked", "room_id", payload.RoomID, "user_id", payload.UserID,
			"rule", payload.Rule, "words", len(payload.Words))
	case ToxicityScannedType:
		payload, ok := event.Payload.(ToxicityScanned)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(ToxicityScannedType)
		if payload.TimedOut {
			h.log.Warn("toxicity scan exceeded its deadline", "message_id", payload.MessageID,
				"latency", payload.Latency)
		}
		if payload.Flagged {
			h.mu.Lock()
			h.hits["toxicity"]++
			h.mu.Unlock()
		}
	}
}

// Hits returns the number of blocks recorded for a rule.
func (h *ModerationHitHandler) Hits(rule string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[rule]
}
