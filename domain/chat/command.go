package chat

import (
	"time"
)

// Identity is supplied by the external identity provider on connect.
type Identity struct {
	UserID       string
	DisplayName  string
	PlatformRole string
}

// PlatformGuest is the identity-provider role that joins rooms as a guest.
const PlatformGuest = "guest"

func (i Identity) DefaultRole() Role {
	if i.PlatformRole == PlatformGuest {
		return RoleGuest
	}
	return RoleMember
}

// Command is addressed to the worker owning a room.
type Command interface {
	Room() RoomID
}

type JoinRoomCommand struct {
	RoomID     RoomID
	Identity   Identity
	Password   *string
	InviteCode *string
}

type LeaveRoomCommand struct {
	RoomID RoomID
	UserID string
}

type ChangeRoleCommand struct {
	RoomID   RoomID
	ActorID  string
	TargetID string
	Role     Role
}

type ModerateCommand struct {
	RoomID    RoomID
	ActorID   string
	TargetID  string
	Action    ActionType
	Severity  Severity
	Duration  *time.Duration
	Reason    string
	MessageID *string
}

type SendMessageCommand struct {
	RoomID   RoomID
	SenderID string
	Request  SendMessageRequest
}

type EditMessageCommand struct {
	RoomID    RoomID
	ActorID   string
	MessageID string
	Request   SendMessageRequest
}

type DeleteMessageCommand struct {
	RoomID    RoomID
	ActorID   string
	MessageID string
	Reason    string
}

type PinMessageCommand struct {
	RoomID    RoomID
	ActorID   string
	MessageID string
	Pinned    bool
}

type ReactCommand struct {
	RoomID    RoomID
	ActorID   string
	MessageID string
	Emoji     string
	Remove    bool
}

type MarkReadCommand struct {
	RoomID    RoomID
	UserID    string
	MessageID string
}

type GetMessagesCommand struct {
	RoomID RoomID
	UserID string
	Cursor *string
	Limit  int
}

type GetMessagesByIDCommand struct {
	RoomID RoomID
	UserID string
	IDs    []string
}

type SyncCommand struct {
	RoomID   RoomID
	UserID   string
	AfterSeq int64
	Limit    int
}

type CreateThreadCommand struct {
	RoomID          RoomID
	ActorID         string
	ParentMessageID string
}

type ResolveThreadCommand struct {
	RoomID   RoomID
	ActorID  string
	ThreadID string
}

// RetractMessageCommand is sent by the toxicity scan once a message is confirmed toxic.
type RetractMessageCommand struct {
	RoomID    RoomID
	MessageID string
	Score     float64
}

type FileAppealCommand struct {
	RoomID   RoomID
	UserID   string
	ActionID string
	Reason   string
}

type ResolveAppealCommand struct {
	RoomID     RoomID
	ReviewerID string
	AppealID   string
	Decision   AppealStatus
	Note       string
}

type UpdateSettingsCommand struct {
	RoomID             RoomID
	ActorID            string
	Settings           *Settings
	ModerationSettings *ModerationSettings
}

type UpdateNotificationsCommand struct {
	RoomID   RoomID
	UserID   string
	Settings NotificationSettings
}

type ArchiveRoomCommand struct {
	RoomID  RoomID
	ActorID string
}

type ListParticipantsCommand struct {
	RoomID  RoomID
	ActorID string
}

type RegisterFileCommand struct {
	RoomID  RoomID
	ActorID string
	File    FileUpload
	Sample  []byte
}

func (c JoinRoomCommand) Room() RoomID            { return c.RoomID }
func (c LeaveRoomCommand) Room() RoomID           { return c.RoomID }
func (c ChangeRoleCommand) Room() RoomID          { return c.RoomID }
func (c ModerateCommand) Room() RoomID            { return c.RoomID }
func (c SendMessageCommand) Room() RoomID         { return c.RoomID }
func (c EditMessageCommand) Room() RoomID         { return c.RoomID }
func (c DeleteMessageCommand) Room() RoomID       { return c.RoomID }
func (c PinMessageCommand) Room() RoomID          { return c.RoomID }
func (c ReactCommand) Room() RoomID               { return c.RoomID }
func (c MarkReadCommand) Room() RoomID            { return c.RoomID }
func (c GetMessagesCommand) Room() RoomID         { return c.RoomID }
func (c GetMessagesByIDCommand) Room() RoomID     { return c.RoomID }
func (c SyncCommand) Room() RoomID                { return c.RoomID }
func (c CreateThreadCommand) Room() RoomID        { return c.RoomID }
func (c ResolveThreadCommand) Room() RoomID       { return c.RoomID }
func (c RetractMessageCommand) Room() RoomID      { return c.RoomID }
func (c FileAppealCommand) Room() RoomID          { return c.RoomID }
func (c ResolveAppealCommand) Room() RoomID       { return c.RoomID }
func (c UpdateSettingsCommand) Room() RoomID      { return c.RoomID }
func (c UpdateNotificationsCommand) Room() RoomID { return c.RoomID }
func (c ArchiveRoomCommand) Room() RoomID         { return c.RoomID }
func (c ListParticipantsCommand) Room() RoomID    { return c.RoomID }
func (c RegisterFileCommand) Room() RoomID        { return c.RoomID }
