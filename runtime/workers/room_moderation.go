package workers

import (
	"context"
	"fmt"
	"strings"

	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"
	"campus-chat/moderation"

	"github.com/google/uuid"
)

// retract deletes a message the toxicity scan confirmed after delivery and
// strikes its sender.
func (w *RoomWorker) retract(ctx context.Context, cmd chat.RetractMessageCommand) (any, error) {
	tx := w.begin()
	msg, err := w.deps.Repos.Messages.GetMessage(w.id, cmd.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return msg, nil
	}
	score := cmd.Score
	msg.ToxicityScore = &score
	if err := w.softDelete(tx, &msg, chat.SystemModerator, "moderation"); err != nil {
		return nil, err
	}
	deletion := chat.ModerationAction{
		ID:          uuid.NewString(),
		RoomID:      w.id,
		UserID:      msg.SenderID,
		ModeratorID: chat.SystemModerator,
		Type:        chat.ActionDeleteMessage,
		Severity:    chat.SeverityMedium,
		Reason:      fmt.Sprintf("%s score %.2f", moderation.RuleToxicity, score),
		MessageID:   &msg.ID,
		IsActive:    true,
		CreatedAt:   tx.now,
	}
	tx.batch.Actions = append(tx.batch.Actions, deletion)
	tx.publish(event.ToAll(w.emit(tx, event.ModerationAction, deletion)))

	var sanction chat.ModerationAction
	if sender, ok := w.participants[msg.SenderID]; ok {
		w.expire(tx, sender)
		sanction = w.strike(tx, sender, moderation.RuleToxicity, &msg.ID)
	}
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	if sanction.Type == chat.ActionBan {
		w.detach(msg.SenderID)
	}
	w.telemetry(event.ModerationHitType, event.ModerationHit{RoomID: w.id, UserID: msg.SenderID, Rule: moderation.RuleToxicity})
	w.log.Info("Message retracted", "message_id", msg.ID, "score", score)
	return msg, nil
}

func (w *RoomWorker) fileAppeal(ctx context.Context, cmd chat.FileAppealCommand) (any, error) {
	tx := w.begin()
	p, err := w.member(tx, cmd.UserID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if strings.TrimSpace(cmd.Reason) == "" {
		return nil, w.reject(ctx, tx, errors.Validation("empty_reason", "an appeal needs a reason"))
	}
	action, err := w.deps.Repos.Moderation.GetAction(w.id, cmd.ActionID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if action.UserID != p.UserID {
		return nil, w.reject(ctx, tx, errors.Permission("not_own_action", "only the sanctioned user can appeal"))
	}
	if !action.IsActive || action.Expired(tx.now) {
		return nil, w.reject(ctx, tx, errors.Conflict("action_inactive", "the action is no longer in force"))
	}
	if _, open, err := w.deps.Repos.Moderation.OpenAppeal(action.ID); err != nil {
		return nil, w.reject(ctx, tx, err)
	} else if open {
		return nil, w.reject(ctx, tx, errors.Conflict("appeal_open", "an appeal is already open for this action"))
	}

	appeal := chat.Appeal{
		ID:        uuid.NewString(),
		RoomID:    w.id,
		ActionID:  action.ID,
		UserID:    p.UserID,
		Reason:    cmd.Reason,
		Status:    chat.AppealPending,
		CreatedAt: tx.now,
	}
	tx.batch.Appeals = append(tx.batch.Appeals, appeal)
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	return appeal, nil
}

// resolveAppeal applies a review. An approval revokes the action and lifts
// the sanction it carried.
func (w *RoomWorker) resolveAppeal(ctx context.Context, cmd chat.ResolveAppealCommand) (any, error) {
	tx := w.begin()
	reviewer, err := w.activeMember(tx, cmd.ReviewerID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	appeal, err := w.deps.Repos.Moderation.GetAppeal(cmd.AppealID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if appeal.RoomID != w.id {
		return nil, w.reject(ctx, tx, errors.NotFound("appeal_not_found", fmt.Sprintf("appeal %s does not exist", cmd.AppealID)))
	}
	if appeal.UserID == reviewer.UserID {
		return nil, w.reject(ctx, tx, errors.Permission("self_review", "an appeal cannot be reviewed by its author"))
	}
	if err := appeal.Review(reviewer.UserID, reviewer.Role, cmd.Decision, cmd.Note, tx.now); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	tx.batch.Appeals = append(tx.batch.Appeals, appeal)

	if appeal.Status == chat.AppealApproved {
		action, err := w.deps.Repos.Moderation.GetAction(w.id, appeal.ActionID)
		if err != nil {
			return nil, w.reject(ctx, tx, err)
		}
		action.Revoke(tx.now)
		tx.batch.Actions = append(tx.batch.Actions, action)
		if p, ok := w.participants[appeal.UserID]; ok {
			banned := p.Sanction.Level == chat.SanctionBanned
			if !p.LiftSanction(action.ID) && p.Strikes > 0 {
				p.Strikes--
			}
			if banned && !p.IsBanned() {
				w.reseat(p, tx.now)
			}
			tx.touch(p)
			tx.recount = true
		}
		tx.publish(event.ToAll(w.emit(tx, event.ModerationAction, action)))
	}
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	w.log.Info("Appeal reviewed", "appeal_id", appeal.ID, "status", appeal.Status, "reviewer_id", reviewer.UserID)
	return appeal, nil
}
