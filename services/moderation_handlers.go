package services

import (
	"context"
	"time"

	"campus-chat/domain/chat"
	"campus-chat/domain/event"

	"github.com/samber/lo"
)

type moderationRequest struct {
	RoomID     chat.RoomID     `json:"roomId" validate:"required,max=64"`
	UserID     string          `json:"userId" validate:"required"`
	Action     chat.ActionType `json:"action" validate:"required,oneof=warn mute kick ban delete_message"`
	Severity   chat.Severity   `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	DurationMs *int64          `json:"durationMs,omitempty" validate:"omitempty,gt=0"`
	Reason     string          `json:"reason" validate:"max=500"`
	MessageID  *string         `json:"messageId,omitempty"`
}

type appealRequest struct {
	RoomID   chat.RoomID `json:"roomId" validate:"required,max=64"`
	ActionID string      `json:"actionId" validate:"required"`
	Reason   string      `json:"reason" validate:"required,max=1000"`
}

type appealDecisionRequest struct {
	RoomID   chat.RoomID       `json:"roomId" validate:"required,max=64"`
	AppealID string            `json:"appealId" validate:"required"`
	Decision chat.AppealStatus `json:"decision" validate:"required,oneof=approved rejected escalated"`
	Note     string            `json:"note" validate:"max=1000"`
}

type presenceRequest struct {
	Status chat.PresenceStatus `json:"status" validate:"required"`
	At     *time.Time          `json:"at,omitempty"`
}

type bulkPresenceRequest struct {
	UserIDs []string `json:"userIds" validate:"required,min=1,max=500,dive,required"`
}

func (s *ChatService) moderate(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[moderationRequest](frame)
	if err != nil {
		return failure(err)
	}
	var duration *time.Duration
	if req.DurationMs != nil {
		duration = lo.ToPtr(time.Duration(*req.DurationMs) * time.Millisecond)
	}
	return s.ask(ctx, chat.ModerateCommand{
		RoomID:    req.RoomID,
		ActorID:   session.Identity.UserID,
		TargetID:  req.UserID,
		Action:    req.Action,
		Severity:  req.Severity,
		Duration:  duration,
		Reason:    req.Reason,
		MessageID: req.MessageID,
	})
}

func (s *ChatService) fileAppeal(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[appealRequest](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.FileAppealCommand{
		RoomID:   req.RoomID,
		UserID:   session.Identity.UserID,
		ActionID: req.ActionID,
		Reason:   req.Reason,
	})
}

func (s *ChatService) resolveAppeal(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[appealDecisionRequest](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.ResolveAppealCommand{
		RoomID:     req.RoomID,
		ReviewerID: session.Identity.UserID,
		AppealID:   req.AppealID,
		Decision:   req.Decision,
		Note:       req.Note,
	})
}

func typing(start bool) handler {
	return func(s *ChatService, ctx context.Context, session *Session, frame Frame) Response {
		req, err := decode[roomRef](frame)
		if err != nil {
			return failure(err)
		}
		if err := s.orchestrator.Typing(ctx, req.RoomID, session.Identity.UserID, start); err != nil {
			return failure(err)
		}
		return ok(nil)
	}
}

func (s *ChatService) updatePresence(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[presenceRequest](frame)
	if err != nil {
		return failure(err)
	}
	at := lo.FromPtr(req.At)
	if err := s.orchestrator.UpdatePresence(ctx, session.Identity.UserID, session.ConnectionID, req.Status, at); err != nil {
		return failure(err)
	}
	return ok(nil)
}

// bulkPresence answers the request and pushes the same snapshot as a presence:bulk event.
func (s *ChatService) bulkPresence(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[bulkPresenceRequest](frame)
	if err != nil {
		return failure(err)
	}
	presences := s.orchestrator.BulkPresence(req.UserIDs)
	pushCtx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()
	evt := event.ChatEvent{Name: event.PresenceBulk, At: time.Now().UTC(), Data: presences}
	if err := session.Sink.Consume(pushCtx, evt); err != nil {
		s.log.Debug("Presence snapshot not pushed", "connection_id", session.ConnectionID, "error", err)
	}
	return ok(presences)
}
