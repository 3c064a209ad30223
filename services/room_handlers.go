package services

import (
	"context"

	"campus-chat/domain/chat"
)

type roomRef struct {
	RoomID chat.RoomID `json:"roomId" validate:"required,max=64"`
}

// createdRoom discloses the invite code to the creator only.
type createdRoom struct {
	chat.Room
	InviteCode string `json:"inviteCode,omitempty"`
}

type joinedRoom struct {
	Room        chat.Room        `json:"room"`
	Participant chat.Participant `json:"participant"`
}

type syncRequest struct {
	RoomID   chat.RoomID `json:"roomId" validate:"required,max=64"`
	AfterSeq int64       `json:"afterSeq" validate:"gte=0"`
	Limit    int         `json:"limit" validate:"gte=0,lte=500"`
}

type roleRequest struct {
	RoomID chat.RoomID `json:"roomId" validate:"required,max=64"`
	UserID string      `json:"userId" validate:"required"`
	Role   chat.Role   `json:"role" validate:"required,oneof=owner admin moderator member guest"`
}

type settingsRequest struct {
	RoomID             chat.RoomID              `json:"roomId" validate:"required,max=64"`
	Settings           *chat.Settings           `json:"settings,omitempty"`
	ModerationSettings *chat.ModerationSettings `json:"moderationSettings,omitempty"`
}

type notificationsRequest struct {
	RoomID   chat.RoomID               `json:"roomId" validate:"required,max=64"`
	Settings chat.NotificationSettings `json:"settings"`
}

// createRoom subscribes the creator's connection right away, the creator being its first member.
func (s *ChatService) createRoom(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[chat.CreateRoomRequest](frame)
	if err != nil {
		return failure(err)
	}
	room, err := s.orchestrator.CreateRoom(ctx, session.Identity, req)
	if err != nil {
		return failure(err)
	}
	s.orchestrator.Subscribe(session.ConnectionID, session.Identity.UserID, room.ID, session.Sink)
	return ok(createdRoom{Room: room, InviteCode: room.InviteCode})
}

func (s *ChatService) listRooms(_ context.Context, _ *Session, _ Frame) Response {
	rooms, err := s.orchestrator.ListRooms()
	if err != nil {
		return failure(err)
	}
	return ok(rooms)
}

// joinRoom also serves reconnections: joining a room the user is already in
// only subscribes the new connection.
func (s *ChatService) joinRoom(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[chat.JoinRoomRequest](frame)
	if err != nil {
		return failure(err)
	}
	res, err := s.orchestrator.Ask(ctx, chat.JoinRoomCommand{
		RoomID:     req.RoomID,
		Identity:   session.Identity,
		Password:   req.Password,
		InviteCode: req.InviteCode,
	})
	if err != nil {
		return failure(err)
	}
	s.orchestrator.Subscribe(session.ConnectionID, session.Identity.UserID, req.RoomID, session.Sink)
	room, err := s.orchestrator.GetRoom(req.RoomID)
	if err != nil {
		return failure(err)
	}
	return ok(joinedRoom{Room: room, Participant: res.(chat.Participant)})
}

func (s *ChatService) leaveRoom(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[roomRef](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.LeaveRoomCommand{RoomID: req.RoomID, UserID: session.Identity.UserID})
}

func (s *ChatService) syncRoom(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[syncRequest](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.SyncCommand{
		RoomID:   req.RoomID,
		UserID:   session.Identity.UserID,
		AfterSeq: req.AfterSeq,
		Limit:    req.Limit,
	})
}

func (s *ChatService) participants(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[roomRef](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.ListParticipantsCommand{RoomID: req.RoomID, ActorID: session.Identity.UserID})
}

func (s *ChatService) changeRole(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[roleRequest](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.ChangeRoleCommand{
		RoomID:   req.RoomID,
		ActorID:  session.Identity.UserID,
		TargetID: req.UserID,
		Role:     req.Role,
	})
}

func (s *ChatService) updateSettings(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[settingsRequest](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.UpdateSettingsCommand{
		RoomID:             req.RoomID,
		ActorID:            session.Identity.UserID,
		Settings:           req.Settings,
		ModerationSettings: req.ModerationSettings,
	})
}

func (s *ChatService) updateNotifications(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[notificationsRequest](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.UpdateNotificationsCommand{
		RoomID:   req.RoomID,
		UserID:   session.Identity.UserID,
		Settings: req.Settings,
	})
}

func (s *ChatService) archiveRoom(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[roomRef](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.ArchiveRoomCommand{RoomID: req.RoomID, ActorID: session.Identity.UserID})
}
