package chat

import (
	"time"

	"campus-chat/errors"
)

// SystemModerator is the moderator id of actions taken automatically.
const SystemModerator = "system"

type ActionType string

const (
	ActionWarn          ActionType = "warn"
	ActionMute          ActionType = "mute"
	ActionKick          ActionType = "kick"
	ActionBan           ActionType = "ban"
	ActionDeleteMessage ActionType = "delete_message"
	ActionEditMessage   ActionType = "edit_message"
)

// Permission returns what a moderator needs to take the action by hand.
func (a ActionType) Permission() (Permission, bool) {
	switch a {
	case ActionWarn:
		return PermWarn, true
	case ActionMute:
		return PermMute, true
	case ActionKick:
		return PermKick, true
	case ActionBan:
		return PermBan, true
	case ActionDeleteMessage, ActionEditMessage:
		return PermDeleteAnyMessage, true
	}
	return "", false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type ModerationAction struct {
	ID          string         `json:"id" bson:"_id"`
	RoomID      RoomID         `json:"roomId" bson:"room_id"`
	UserID      string         `json:"userId" bson:"user_id"`
	ModeratorID string         `json:"moderatorId" bson:"moderator_id"`
	Type        ActionType     `json:"actionType" bson:"type"`
	Severity    Severity       `json:"severity" bson:"severity"`
	Reason      string         `json:"reason" bson:"reason"`
	MessageID   *string        `json:"messageId,omitempty" bson:"message_id,omitempty"`
	Duration    *time.Duration `json:"duration,omitempty" bson:"duration,omitempty"`
	ExpiresAt   *time.Time     `json:"expiresAt,omitempty" bson:"expires_at,omitempty"`
	IsActive    bool           `json:"isActive" bson:"is_active"`
	CreatedAt   time.Time      `json:"createdAt" bson:"created_at"`
	RevokedAt   *time.Time     `json:"revokedAt,omitempty" bson:"revoked_at,omitempty"`
}

func (a *ModerationAction) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

func (a *ModerationAction) Revoke(at time.Time) {
	a.IsActive = false
	a.RevokedAt = &at
}

type AppealStatus string

const (
	AppealPending   AppealStatus = "pending"
	AppealApproved  AppealStatus = "approved"
	AppealRejected  AppealStatus = "rejected"
	AppealEscalated AppealStatus = "escalated"
)

func (s AppealStatus) Open() bool {
	return s == AppealPending || s == AppealEscalated
}

type Appeal struct {
	ID            string       `json:"id" bson:"_id"`
	RoomID        RoomID       `json:"roomId" bson:"room_id"`
	ActionID      string       `json:"actionId" bson:"action_id"`
	UserID        string       `json:"userId" bson:"user_id"`
	Reason        string       `json:"reason" bson:"reason"`
	Status        AppealStatus `json:"status" bson:"status"`
	ReviewerID    string       `json:"reviewerId,omitempty" bson:"reviewer_id,omitempty"`
	EscalatedFrom Role         `json:"escalatedFrom,omitempty" bson:"escalated_from,omitempty"`
	ReviewNote    string       `json:"reviewNote,omitempty" bson:"review_note,omitempty"`
	CreatedAt     time.Time    `json:"createdAt" bson:"created_at"`
	ResolvedAt    *time.Time   `json:"resolvedAt,omitempty" bson:"resolved_at,omitempty"`
}

// Review applies a reviewer decision to an open appeal.
// Pending appeals are reviewed by moderators and above; escalated ones need a
// reviewer holding PermReviewEscalatedAppeal who outranks the escalating role.
func (a *Appeal) Review(reviewerID string, reviewerRole Role, decision AppealStatus, note string, at time.Time) error {
	if !a.Status.Open() {
		return errors.Conflict("appeal_closed", "appeal is already "+string(a.Status))
	}
	switch a.Status {
	case AppealPending:
		if err := Authorize(reviewerRole, PermReviewAppeal); err != nil {
			return err
		}
	case AppealEscalated:
		if err := Authorize(reviewerRole, PermReviewEscalatedAppeal); err != nil {
			return err
		}
		if !reviewerRole.Outranks(a.EscalatedFrom) {
			return errors.Permission("insufficient_rank", "escalated appeals need a higher reviewer")
		}
	}
	switch decision {
	case AppealApproved, AppealRejected:
		a.ResolvedAt = &at
	case AppealEscalated:
		if a.Status == AppealEscalated {
			return errors.Conflict("appeal_escalated", "appeal is already escalated")
		}
		a.EscalatedFrom = reviewerRole
	default:
		return errors.Validation("invalid_decision", "decision must be approved, rejected or escalated")
	}
	a.Status = decision
	a.ReviewerID = reviewerID
	a.ReviewNote = note
	return nil
}
