package event

import (
	"time"

	"campus-chat/domain/chat"
)

// Type identifies a telemetry event flowing to the TelemetryWorker.
type Type string

// Event is a technical fact about the runtime, never delivered to clients.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

// Name is the wire name of an event delivered over a persistent connection.
type Name string

const (
	RoomUserJoined     Name = "room:user_joined"
	RoomUserLeft       Name = "room:user_left"
	RoomUpdated        Name = "room:updated"
	RoomResync         Name = "room:resync"
	MessageNew         Name = "message:new"
	MessageEdit        Name = "message:edit"
	MessageDelete      Name = "message:delete"
	MessagePin         Name = "message:pin"
	MessageUnpin       Name = "message:unpin"
	MessageReact       Name = "message:react"
	MessageUnreact     Name = "message:unreact"
	ThreadCreate       Name = "thread:create"
	ThreadReply        Name = "thread:reply"
	ThreadResolve      Name = "thread:resolve"
	TypingStart        Name = "typing:start"
	TypingStop         Name = "typing:stop"
	FileUploadComplete Name = "file:upload:complete"
	FileUploadError    Name = "file:upload:error"
	ModerationAction   Name = "moderation:action"
	ModerationWarning  Name = "moderation:warning"
	PresenceUpdate     Name = "presence:update"
	PresenceBulk       Name = "presence:bulk"
)

// ChatEvent is a domain fact produced by a room worker or the presence worker.
type ChatEvent struct {
	Name   Name
	RoomID chat.RoomID
	At     time.Time
	Data   any
}

// Envelope addresses a ChatEvent. A nil Recipients set means every connected member.
// Detach lists users whose connections leave the room once the envelope is delivered.
type Envelope struct {
	Event      ChatEvent
	Recipients map[string]struct{}
	Exclude    string
	Detach     []string
}

// Accepts reports whether userID should receive the envelope.
func (e Envelope) Accepts(userID string) bool {
	if e.Exclude != "" && e.Exclude == userID {
		return false
	}
	if e.Recipients == nil {
		return true
	}
	_, ok := e.Recipients[userID]
	return ok
}

func ToAll(evt ChatEvent) Envelope {
	return Envelope{Event: evt}
}

func ToUsers(evt ChatEvent, userIDs ...string) Envelope {
	recipients := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		recipients[id] = struct{}{}
	}
	return Envelope{Event: evt, Recipients: recipients}
}

type UserJoined struct {
	RoomID      chat.RoomID `json:"roomId"`
	UserID      string      `json:"userId"`
	DisplayName string      `json:"displayName,omitempty"`
	Role        chat.Role   `json:"role"`
	Count       int         `json:"participantCount"`
}

type UserLeft struct {
	RoomID chat.RoomID `json:"roomId"`
	UserID string      `json:"userId"`
	Reason string      `json:"reason,omitempty"`
	Count  int         `json:"participantCount"`
}

type MessageDeleted struct {
	MessageID string `json:"messageId"`
	Seq       int64  `json:"seq"`
	DeletedBy string `json:"deletedBy"`
	Reason    string `json:"reason,omitempty"`
}

type MessagePinned struct {
	MessageID string `json:"messageId"`
	PinnedBy  string `json:"pinnedBy"`
}

type ReactionChanged struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"userId"`
	Count     int    `json:"count"`
}

type ThreadReplied struct {
	ThreadID   string    `json:"threadId"`
	MessageID  string    `json:"messageId"`
	ReplyCount int       `json:"replyCount"`
	RepliedBy  string    `json:"repliedBy"`
	At         time.Time `json:"at"`
}

type Typing struct {
	RoomID chat.RoomID `json:"roomId"`
	UserID string      `json:"userId"`
}

type Warning struct {
	UserID  string `json:"userId"`
	Reason  string `json:"reason"`
	Strikes int    `json:"strikes"`
}

// Resync lists the rooms whose events were dropped for a connection that
// fell behind. The client fetches them again with room:sync.
type Resync struct {
	RoomIDs []chat.RoomID `json:"roomIds"`
}

type UploadFailed struct {
	FileID string `json:"fileId"`
	Reason string `json:"reason"`
}
