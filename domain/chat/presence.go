package chat

import "time"

// PresenceStatus is ephemeral and never written to the durable roster.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceBusy    PresenceStatus = "busy"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

var presenceRank = map[PresenceStatus]int{
	PresenceOffline: 0,
	PresenceAway:    1,
	PresenceBusy:    2,
	PresenceOnline:  3,
}

func (s PresenceStatus) Valid() bool {
	_, ok := presenceRank[s]
	return ok
}

// Aggregate folds the states of every connection: online > busy > away > offline.
func Aggregate(states ...PresenceStatus) PresenceStatus {
	best := PresenceOffline
	for _, s := range states {
		if presenceRank[s] > presenceRank[best] {
			best = s
		}
	}
	return best
}

type Presence struct {
	UserID   string         `json:"userId"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"lastSeen"`
}

type TypingIndicator struct {
	RoomID    RoomID    `json:"roomId"`
	UserID    string    `json:"userId"`
	StartedAt time.Time `json:"startedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
