package workers

import (
	"context"
	"fmt"

	"campus-chat/auth"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"
	"campus-chat/moderation"
)

func (w *RoomWorker) join(ctx context.Context, cmd chat.JoinRoomCommand) (any, error) {
	tx := w.begin()
	if err := w.room.IsJoinable(); err != nil {
		return nil, err
	}

	p, known := w.participants[cmd.Identity.UserID]
	if known {
		w.expire(tx, p)
		switch {
		case p.IsBanned():
			return nil, w.reject(ctx, tx, errors.Permission("banned", "participant is banned from this room"))
		case p.Status != chat.StatusInactive:
			// Already inside, joining again is a no-op
			return *p, w.commit(ctx, tx)
		}
	} else {
		if cmd.Identity.DefaultRole() == chat.RoleGuest && !w.room.Settings.AllowAnonymous {
			return nil, errors.Permission("guests_not_allowed", "this room does not accept guests")
		}
		if err := w.checkCredentials(cmd); err != nil {
			return nil, err
		}
	}
	if !w.room.HasSeat(w.participants) {
		return nil, w.reject(ctx, tx, errors.Capacity(
			fmt.Sprintf("room %s is full (%d/%d)", w.id, chat.Seated(w.participants), w.room.MaxParticipants)))
	}

	if known {
		p.Status = chat.StatusActive
		if p.Sanction.Level == chat.SanctionMuted {
			p.Status = chat.StatusMuted
		}
		p.LeftAt = nil
		if cmd.Identity.DisplayName != "" {
			p.DisplayName = cmd.Identity.DisplayName
		}
	} else {
		p = chat.NewParticipant(w.id, cmd.Identity, cmd.Identity.DefaultRole(), w.room.LastSeq, tx.now)
		w.participants[p.UserID] = p
	}
	tx.touch(p)
	tx.recount = true
	w.room.Recount(w.participants)
	tx.publish(event.ToAll(w.emit(tx, event.RoomUserJoined, event.UserJoined{
		RoomID:      w.id,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Role:        p.Role,
		Count:       w.room.ParticipantCount,
	})))
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	w.log.Debug("Participant joined", "user_id", p.UserID, "count", w.room.ParticipantCount)
	return *p, nil
}

// checkCredentials guards private or password protected rooms for newcomers.
func (w *RoomWorker) checkCredentials(cmd chat.JoinRoomCommand) error {
	if !w.room.IsPrivate && w.room.PasswordHash == "" {
		return nil
	}
	if cmd.InviteCode != nil && w.room.InviteCode != "" && *cmd.InviteCode == w.room.InviteCode {
		return nil
	}
	if cmd.Password != nil && w.room.PasswordHash != "" {
		ok, err := auth.ComparePassword(*cmd.Password, w.room.PasswordHash)
		if err != nil {
			w.log.Error("Room password hash unreadable", "error", err)
			return errors.Internal("checking room password", err)
		}
		if ok {
			return nil
		}
	}
	return errors.Permission("invalid_credentials", "a valid invite code or password is required")
}

func (w *RoomWorker) leave(ctx context.Context, cmd chat.LeaveRoomCommand) (any, error) {
	tx := w.begin()
	p, err := w.activeMember(tx, cmd.UserID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	p.Status = chat.StatusInactive
	p.LeftAt = &tx.now
	tx.touch(p)
	tx.recount = true
	w.room.Recount(w.participants)

	left := event.ToAll(w.emit(tx, event.RoomUserLeft, event.UserLeft{
		RoomID: w.id, UserID: p.UserID, Reason: "left", Count: w.room.ParticipantCount,
	}))
	left.Detach = []string{p.UserID}
	tx.publish(left)
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	w.detach(p.UserID)
	return *p, nil
}

// detach forgets the ephemeral state of a user leaving the room.
func (w *RoomWorker) detach(userID string) {
	w.rules.Forget(userID)
	if w.deps.Typing != nil {
		w.deps.Typing.CancelTyping(w.id, userID)
	}
}

func (w *RoomWorker) changeRole(ctx context.Context, cmd chat.ChangeRoleCommand) (any, error) {
	tx := w.begin()
	actor, err := w.activeMember(tx, cmd.ActorID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	target, err := w.member(tx, cmd.TargetID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if !cmd.Role.Valid() || cmd.Role == chat.RoleOwner {
		return nil, w.reject(ctx, tx, errors.Validation("invalid_role", fmt.Sprintf("role %q cannot be assigned", cmd.Role)))
	}
	if err := chat.AuthorizeOver(actor.Role, target.Role, chat.PermChangeRole); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if !actor.Role.Outranks(cmd.Role) {
		return nil, w.reject(ctx, tx, errors.Permission("insufficient_rank",
			fmt.Sprintf("role %s cannot grant %s", actor.Role, cmd.Role)))
	}
	target.Role = cmd.Role
	tx.touch(target)
	tx.publish(event.ToAll(w.emit(tx, event.RoomUpdated, *target)))
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	return *target, nil
}

func (w *RoomWorker) moderate(ctx context.Context, cmd chat.ModerateCommand) (any, error) {
	tx := w.begin()
	actor, err := w.activeMember(tx, cmd.ActorID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	target, err := w.member(tx, cmd.TargetID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if actor.UserID == target.UserID {
		return nil, w.reject(ctx, tx, errors.Validation("self_moderation", "a moderator cannot sanction themselves"))
	}
	if cmd.Action == chat.ActionEditMessage {
		return nil, w.reject(ctx, tx, errors.Validation("invalid_action", "messages are only edited by their author"))
	}

	var msg chat.Message
	if cmd.Action == chat.ActionDeleteMessage {
		if cmd.MessageID == nil {
			return nil, w.reject(ctx, tx, errors.Validation("missing_message", "delete_message needs a message id"))
		}
		if msg, err = w.deps.Repos.Messages.GetMessage(w.id, *cmd.MessageID); err != nil {
			return nil, w.reject(ctx, tx, err)
		}
		if msg.SenderID != target.UserID {
			return nil, w.reject(ctx, tx, errors.Validation("wrong_author", "message was not sent by the target"))
		}
	}

	action, err := moderation.ManualAction(actor, target, cmd, w.room.ModerationSettings, tx.now)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if action.Type == chat.ActionDeleteMessage {
		if err := w.softDelete(tx, &msg, actor.UserID, cmd.Reason); err != nil {
			return nil, w.reject(ctx, tx, err)
		}
	}
	previous := target.Sanction.ActionID
	target.ApplySanction(action, tx.now)
	w.sanctioned(tx, target, action, previous)
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	if action.Type == chat.ActionKick || action.Type == chat.ActionBan {
		w.detach(target.UserID)
	}
	w.log.Info("Moderation action", "type", action.Type, "user_id", target.UserID, "moderator_id", actor.UserID)
	return action, nil
}

// sanctioned records an action taken against p and announces it. Kicked and
// banned users stop receiving room events once the announcement is delivered.
func (w *RoomWorker) sanctioned(tx *roomTx, p *chat.Participant, action chat.ModerationAction, previousActionID string) {
	tx.touch(p)
	tx.recount = true
	tx.batch.Actions = append(tx.batch.Actions, action)
	if previousActionID != "" && previousActionID != p.Sanction.ActionID {
		if prev, err := w.deps.Repos.Moderation.GetAction(w.id, previousActionID); err == nil && prev.IsActive {
			prev.IsActive = false
			tx.batch.Actions = append(tx.batch.Actions, prev)
		}
	}

	if action.Type == chat.ActionWarn {
		tx.publish(event.ToUsers(w.emit(tx, event.ModerationWarning, event.Warning{
			UserID: p.UserID, Reason: action.Reason, Strikes: p.Strikes,
		}), p.UserID))
		return
	}
	env := event.ToAll(w.emit(tx, event.ModerationAction, action))
	if action.Type == chat.ActionKick || action.Type == chat.ActionBan {
		env.Detach = []string{p.UserID}
	}
	tx.publish(env)
}

// strike escalates the sender of a blocked or retracted message.
func (w *RoomWorker) strike(tx *roomTx, p *chat.Participant, rule string, messageID *string) chat.ModerationAction {
	previous := p.Sanction.ActionID
	action := moderation.Escalate(p, w.room.ModerationSettings, rule, messageID, tx.now)
	w.sanctioned(tx, p, action, previous)
	return action
}

func (w *RoomWorker) listParticipants(ctx context.Context, cmd chat.ListParticipantsCommand) (any, error) {
	tx := w.begin()
	if _, err := w.activeMember(tx, cmd.ActorID); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	for _, p := range w.participants {
		w.expire(tx, p)
	}
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	return w.snapshot(), nil
}

func (w *RoomWorker) updateSettings(ctx context.Context, cmd chat.UpdateSettingsCommand) (any, error) {
	tx := w.begin()
	actor, err := w.activeMember(tx, cmd.ActorID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if err := chat.Authorize(actor.Role, chat.PermUpdateSettings); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	settings, modSettings := w.room.Settings, w.room.ModerationSettings
	if cmd.Settings != nil {
		settings = *cmd.Settings
	}
	if cmd.ModerationSettings != nil {
		modSettings = *cmd.ModerationSettings
	}
	if err := auth.Validate(settings); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if err := auth.Validate(modSettings); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if err := w.rules.Reconfigure(modSettings); err != nil {
		return nil, w.reject(ctx, tx, errors.Validation("invalid_blacklist", err.Error()))
	}
	w.room.Settings = settings
	w.room.ModerationSettings = modSettings
	tx.roomChanged = true
	tx.publish(event.ToAll(w.emit(tx, event.RoomUpdated, w.room)))
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	return w.room, nil
}

func (w *RoomWorker) updateNotifications(ctx context.Context, cmd chat.UpdateNotificationsCommand) (any, error) {
	tx := w.begin()
	p, err := w.member(tx, cmd.UserID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	switch cmd.Settings.Level {
	case chat.NotifyAll, chat.NotifyMentions, chat.NotifyNone:
	default:
		return nil, w.reject(ctx, tx, errors.Validation("invalid_level", fmt.Sprintf("unknown notification level %q", cmd.Settings.Level)))
	}
	p.Notifications = cmd.Settings
	tx.touch(p)
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	return *p, nil
}

func (w *RoomWorker) archive(ctx context.Context, cmd chat.ArchiveRoomCommand) (any, error) {
	tx := w.begin()
	actor, err := w.activeMember(tx, cmd.ActorID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if err := chat.Authorize(actor.Role, chat.PermArchiveRoom); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if w.room.Status == chat.RoomArchived {
		return w.room, w.commit(ctx, tx)
	}
	w.room.Status = chat.RoomArchived
	tx.roomChanged = true
	tx.publish(event.ToAll(w.emit(tx, event.RoomUpdated, w.room)))
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	w.log.Info("Room archived", "by", actor.UserID)
	return w.room, nil
}
