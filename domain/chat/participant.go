package chat

import (
	"fmt"
	"time"

	"campus-chat/errors"
)

type ParticipantStatus string

// Away and busy are presence states; the durable roster never stores them.
const (
	StatusActive   ParticipantStatus = "active"
	StatusInactive ParticipantStatus = "inactive"
	StatusBanned   ParticipantStatus = "banned"
	StatusMuted    ParticipantStatus = "muted"
	StatusAway     ParticipantStatus = "away"
	StatusBusy     ParticipantStatus = "busy"
)

// SanctionLevel is the moderation state machine: none -> warned -> muted -> banned.
type SanctionLevel string

const (
	SanctionNone   SanctionLevel = "none"
	SanctionWarned SanctionLevel = "warned"
	SanctionMuted  SanctionLevel = "muted"
	SanctionBanned SanctionLevel = "banned"
)

type Sanction struct {
	Level     SanctionLevel `json:"level" bson:"level"`
	ActionID  string        `json:"actionId,omitempty" bson:"action_id,omitempty"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty" bson:"expires_at,omitempty"`
}

type NotificationLevel string

const (
	NotifyAll      NotificationLevel = "all"
	NotifyMentions NotificationLevel = "mentions"
	NotifyNone     NotificationLevel = "none"
)

type QuietHours struct {
	Enabled  bool   `json:"enabled" bson:"enabled"`
	Start    string `json:"start" bson:"start"`
	End      string `json:"end" bson:"end"`
	Timezone string `json:"timezone" bson:"timezone"`
}

type NotificationCategories struct {
	Messages      bool `json:"messages" bson:"messages"`
	ThreadReplies bool `json:"threadReplies" bson:"thread_replies"`
	Announcements bool `json:"announcements" bson:"announcements"`
}

type NotificationSettings struct {
	Level      NotificationLevel      `json:"level" bson:"level"`
	Mentions   bool                   `json:"mentions" bson:"mentions"`
	Keywords   []string               `json:"keywords" bson:"keywords"`
	InApp      bool                   `json:"inApp" bson:"in_app"`
	Push       bool                   `json:"push" bson:"push"`
	Email      bool                   `json:"email" bson:"email"`
	DigestOnly bool                   `json:"digestOnly" bson:"digest_only"`
	Categories NotificationCategories `json:"categories" bson:"categories"`
	QuietHours QuietHours             `json:"quietHours" bson:"quiet_hours"`
}

func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Level:    NotifyAll,
		Mentions: true,
		InApp:    true,
		Push:     true,
		Categories: NotificationCategories{
			Messages:      true,
			ThreadReplies: true,
			Announcements: true,
		},
	}
}

type Participant struct {
	RoomID            RoomID               `json:"roomId" bson:"room_id"`
	UserID            string               `json:"userId" bson:"user_id"`
	DisplayName       string               `json:"displayName,omitempty" bson:"display_name,omitempty"`
	Role              Role                 `json:"role" bson:"role"`
	Status            ParticipantStatus    `json:"status" bson:"status"`
	UnreadCount       int64                `json:"unreadCount" bson:"unread_count"`
	LastReadMessageID string               `json:"lastReadMessageId,omitempty" bson:"last_read_message_id,omitempty"`
	LastReadSeq       int64                `json:"lastReadSeq" bson:"last_read_seq"`
	LastMessageAt     *time.Time           `json:"-" bson:"last_message_at,omitempty"`
	Strikes           int                  `json:"strikes" bson:"strikes"`
	Sanction          Sanction             `json:"sanction" bson:"sanction"`
	Notifications     NotificationSettings `json:"notificationSettings" bson:"notifications"`
	JoinedAt          time.Time            `json:"joinedAt" bson:"joined_at"`
	LeftAt            *time.Time           `json:"leftAt,omitempty" bson:"left_at,omitempty"`
}

func NewParticipant(roomID RoomID, identity Identity, role Role, lastSeq int64, at time.Time) *Participant {
	return &Participant{
		RoomID:        roomID,
		UserID:        identity.UserID,
		DisplayName:   identity.DisplayName,
		Role:          role,
		Status:        StatusActive,
		LastReadSeq:   lastSeq,
		Sanction:      Sanction{Level: SanctionNone},
		Notifications: DefaultNotificationSettings(),
		JoinedAt:      at,
	}
}

func (p *Participant) IsBanned() bool {
	return p.Status == StatusBanned || p.Sanction.Level == SanctionBanned
}

func (p *Participant) IsMuted() bool {
	return p.Status == StatusMuted || p.Sanction.Level == SanctionMuted
}

// ExpireSanction lazily lifts a mute or ban whose expiry has passed and
// returns the participant to active. The caller owns the seat check.
func (p *Participant) ExpireSanction(now time.Time) bool {
	if p.Sanction.ExpiresAt == nil || now.Before(*p.Sanction.ExpiresAt) {
		return false
	}
	switch p.Sanction.Level {
	case SanctionMuted, SanctionBanned:
		p.restore()
	default:
		return false
	}
	p.Sanction = Sanction{Level: SanctionNone}
	return true
}

func (p *Participant) restore() {
	switch p.Status {
	case StatusMuted:
		p.Status = StatusActive
	case StatusBanned:
		p.Status = StatusActive
		p.LeftAt = nil
	}
}

// LiftSanction clears the sanction carried by actionID, used by approved appeals.
func (p *Participant) LiftSanction(actionID string) bool {
	if p.Sanction.ActionID != actionID {
		return false
	}
	if p.Sanction.Level == SanctionMuted || p.Sanction.Level == SanctionBanned {
		p.restore()
	}
	p.Sanction = Sanction{Level: SanctionNone}
	if p.Strikes > 0 {
		p.Strikes--
	}
	return true
}

// ApplySanction moves the participant along the state machine for the given action.
func (p *Participant) ApplySanction(action ModerationAction, at time.Time) {
	switch action.Type {
	case ActionWarn:
		if p.Sanction.Level == SanctionNone {
			p.Sanction = Sanction{Level: SanctionWarned, ActionID: action.ID}
		}
	case ActionMute:
		p.Sanction = Sanction{Level: SanctionMuted, ActionID: action.ID, ExpiresAt: action.ExpiresAt}
		if p.Status != StatusInactive {
			p.Status = StatusMuted
		}
	case ActionBan:
		p.Sanction = Sanction{Level: SanctionBanned, ActionID: action.ID, ExpiresAt: action.ExpiresAt}
		p.Status = StatusBanned
		p.LeftAt = &at
	case ActionKick:
		p.Status = StatusInactive
		p.LeftAt = &at
	}
}

// CanSend applies the roster rules of the pipeline: membership, ban, mute and role.
func (p *Participant) CanSend() error {
	switch {
	case p.IsBanned():
		return errors.Permission("banned", "participant is banned")
	case p.IsMuted():
		return errors.Permission("muted", "participant is muted")
	case p.Status == StatusInactive:
		return errors.Permission("not_member", "participant left the room")
	}
	return Authorize(p.Role, PermSendMessage)
}

// AdvanceRead moves the read pointer forward; moving it backward is a conflict.
func (p *Participant) AdvanceRead(messageID string, seq int64) (bool, error) {
	if seq < p.LastReadSeq {
		return false, errors.Conflict("read_pointer_backward",
			fmt.Sprintf("read pointer at %d cannot move back to %d", p.LastReadSeq, seq))
	}
	if seq == p.LastReadSeq {
		return false, nil
	}
	p.LastReadSeq = seq
	p.LastReadMessageID = messageID
	return true, nil
}
