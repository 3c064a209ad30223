package event

import (
	"time"

	"campus-chat/domain/chat"
)

const (
	RestartedAfterPanicType Type = "WORKER_RESTARTED_AFTER_PANIC"
	ChannelCapacityType     Type = "CHANNEL_CAPACITY"
	PIDTrackerType          Type = "PID_TRACKER"
	MessageAcceptedType     Type = "MESSAGE_ACCEPTED"
	ModerationHitType       Type = "MODERATION_HIT"
	ToxicityScannedType     Type = "TOXICITY_SCANNED"
)

// WorkerRestartedAfterPanic is reported by the supervisor. RoomID is set
// when the crashed worker owns a room.
type WorkerRestartedAfterPanic struct {
	WorkerName string
	RoomID     chat.RoomID
	Cause      string
}

// ChannelCapacity samples one runtime queue. RoomID is set for room mailboxes.
type ChannelCapacity struct {
	ChannelName string
	RoomID      chat.RoomID
	Capacity    int
	Length      int
}

// ProcessTracker is a snapshot of the server process and of the chat load it carries.
type ProcessTracker struct {
	PID         int32
	Status      string
	Cpu         float64
	Ram         float32
	Goroutines  int
	Rooms       int
	Connections int
	Users       int
}

// MessageAccepted is emitted once a message is persisted, for latency tracking.
type MessageAccepted struct {
	RoomID     chat.RoomID
	MessageID  string
	Seq        int64
	ReceivedAt time.Time
}

// ModerationHit is emitted for each deterministic rule that blocked a message.
type ModerationHit struct {
	RoomID chat.RoomID
	UserID string
	Rule   string
	Words  []string
}

type ToxicityScanned struct {
	RoomID    chat.RoomID
	MessageID string
	Score     float64
	Flagged   bool
	TimedOut  bool
	Latency   time.Duration
}
