package chat

import "time"

// Thread is anchored to exactly one parent message. Its participant set only grows.
type Thread struct {
	ID              string     `json:"id" bson:"_id"`
	ParentMessageID string     `json:"parentMessageId" bson:"parent_message_id"`
	RoomID          RoomID     `json:"roomId" bson:"room_id"`
	CreatedBy       string     `json:"createdBy" bson:"created_by"`
	Participants    []string   `json:"participants" bson:"participants"`
	ReplyCount      int        `json:"replyCount" bson:"reply_count"`
	LastReplyAt     *time.Time `json:"lastReplyAt,omitempty" bson:"last_reply_at,omitempty"`
	LastReplyBy     string     `json:"lastReplyBy,omitempty" bson:"last_reply_by,omitempty"`
	IsResolved      bool       `json:"isResolved" bson:"is_resolved"`
	ResolvedBy      string     `json:"resolvedBy,omitempty" bson:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty" bson:"resolved_at,omitempty"`
	CreatedAt       time.Time  `json:"createdAt" bson:"created_at"`
}

func NewThread(id string, parent Message, createdBy string, at time.Time) Thread {
	t := Thread{
		ID:              id,
		ParentMessageID: parent.ID,
		RoomID:          parent.RoomID,
		CreatedBy:       createdBy,
		CreatedAt:       at,
	}
	t.addParticipant(parent.SenderID)
	t.addParticipant(createdBy)
	return t
}

func (t *Thread) AddReply(userID string, at time.Time) {
	t.ReplyCount++
	t.LastReplyAt = &at
	t.LastReplyBy = userID
	t.addParticipant(userID)
}

// Resolve is idempotent: the first resolution wins and later calls change nothing.
func (t *Thread) Resolve(resolverID string, at time.Time) bool {
	if t.IsResolved {
		return false
	}
	t.IsResolved = true
	t.ResolvedBy = resolverID
	t.ResolvedAt = &at
	return true
}

func (t *Thread) HasParticipant(userID string) bool {
	for _, p := range t.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

func (t *Thread) addParticipant(userID string) {
	if userID == "" || t.HasParticipant(userID) {
		return
	}
	t.Participants = append(t.Participants, userID)
}
