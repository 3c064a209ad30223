package moderation

import (
	"time"

	"campus-chat/domain/chat"
	"campus-chat/errors"

	"github.com/google/uuid"
)

// Escalate adds a strike to the participant and applies the matching step
// of the ladder: warn, then mute at StrikesBeforeMute, then ban at StrikesBeforeBan.
func Escalate(p *chat.Participant, settings chat.ModerationSettings, rule string, messageID *string, now time.Time) chat.ModerationAction {
	p.Strikes++

	action := chat.ModerationAction{
		ID:          uuid.NewString(),
		RoomID:      p.RoomID,
		UserID:      p.UserID,
		ModeratorID: chat.SystemModerator,
		Type:        chat.ActionWarn,
		Severity:    chat.SeverityLow,
		Reason:      rule,
		MessageID:   messageID,
		IsActive:    true,
		CreatedAt:   now,
	}
	switch {
	case settings.StrikesBeforeBan > 0 && p.Strikes >= settings.StrikesBeforeBan:
		action.Type = chat.ActionBan
		action.Severity = chat.SeverityHigh
		withDuration(&action, settings.BanDuration, now)
	case settings.StrikesBeforeMute > 0 && p.Strikes >= settings.StrikesBeforeMute:
		action.Type = chat.ActionMute
		action.Severity = chat.SeverityMedium
		withDuration(&action, settings.MuteDuration, now)
	}
	p.ApplySanction(action, now)
	return action
}

// ManualAction checks a moderator request against the roster and builds the
// resulting action. Mutes and bans without an explicit duration use the room defaults.
func ManualAction(actor, target *chat.Participant, cmd chat.ModerateCommand, settings chat.ModerationSettings, now time.Time) (chat.ModerationAction, error) {
	perm, ok := cmd.Action.Permission()
	if !ok {
		return chat.ModerationAction{}, errors.Validation("invalid_action", "unknown moderation action "+string(cmd.Action))
	}
	if actor.Status == chat.StatusInactive || actor.IsBanned() {
		return chat.ModerationAction{}, errors.Permission("not_member", "actor is not an active member")
	}
	if err := chat.AuthorizeOver(actor.Role, target.Role, perm); err != nil {
		return chat.ModerationAction{}, err
	}
	if cmd.Duration != nil && *cmd.Duration < 0 {
		return chat.ModerationAction{}, errors.Validation("invalid_duration", "duration cannot be negative")
	}

	severity := cmd.Severity
	if severity == "" {
		severity = chat.SeverityMedium
	}
	action := chat.ModerationAction{
		ID:          uuid.NewString(),
		RoomID:      target.RoomID,
		UserID:      target.UserID,
		ModeratorID: actor.UserID,
		Type:        cmd.Action,
		Severity:    severity,
		Reason:      cmd.Reason,
		MessageID:   cmd.MessageID,
		IsActive:    true,
		CreatedAt:   now,
	}
	switch cmd.Action {
	case chat.ActionMute:
		withDuration(&action, durationOr(cmd.Duration, settings.MuteDuration), now)
	case chat.ActionBan:
		withDuration(&action, durationOr(cmd.Duration, settings.BanDuration), now)
	case chat.ActionWarn:
		target.Strikes++
	}
	return action, nil
}

func durationOr(d *time.Duration, fallback time.Duration) time.Duration {
	if d == nil {
		return fallback
	}
	return *d
}

// withDuration leaves the action permanent when d is zero.
func withDuration(action *chat.ModerationAction, d time.Duration, now time.Time) {
	if d <= 0 {
		return
	}
	expiresAt := now.Add(d)
	action.Duration = &d
	action.ExpiresAt = &expiresAt
}
