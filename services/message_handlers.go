package services

import (
	"context"

	"campus-chat/domain/chat"
)

type sendRequest struct {
	RoomID chat.RoomID `json:"roomId" validate:"required,max=64"`
	chat.SendMessageRequest
}

type editRequest struct {
	RoomID    chat.RoomID `json:"roomId" validate:"required,max=64"`
	MessageID string      `json:"messageId" validate:"required"`
	chat.SendMessageRequest
}

type deleteRequest struct {
	RoomID    chat.RoomID `json:"roomId" validate:"required,max=64"`
	MessageID string      `json:"messageId" validate:"required"`
	Reason    string      `json:"reason" validate:"max=500"`
}

type messageRef struct {
	RoomID    chat.RoomID `json:"roomId" validate:"required,max=64"`
	MessageID string      `json:"messageId" validate:"required"`
}

type reactionRequest struct {
	RoomID    chat.RoomID `json:"roomId" validate:"required,max=64"`
	MessageID string      `json:"messageId" validate:"required"`
	Emoji     string      `json:"emoji" validate:"required,max=32"`
}

type historyRequest struct {
	RoomID chat.RoomID `json:"roomId" validate:"required,max=64"`
	Cursor *string     `json:"cursor,omitempty"`
	Limit  int         `json:"limit" validate:"gte=0,lte=500"`
}

type threadRequest struct {
	RoomID   chat.RoomID `json:"roomId" validate:"required,max=64"`
	ThreadID string      `json:"threadId" validate:"required"`
}

type threadReplyRequest struct {
	RoomID   chat.RoomID `json:"roomId" validate:"required,max=64"`
	ThreadID string      `json:"threadId" validate:"required"`
	chat.SendMessageRequest
}

type fileRequest struct {
	RoomID chat.RoomID     `json:"roomId" validate:"required,max=64"`
	File   chat.FileUpload `json:"file"`
	Sample []byte          `json:"sample,omitempty" validate:"max=4096"`
}

type searchRequest struct {
	RoomID chat.RoomID `json:"roomId" validate:"required,max=64"`
	Query  string      `json:"query" validate:"required,max=200"`
	Limit  int         `json:"limit" validate:"gte=0,lte=100"`
}

func (s *ChatService) sendMessage(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[sendRequest](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.SendMessageCommand{
		RoomID:   req.RoomID,
		SenderID: session.Identity.UserID,
		Request:  req.SendMessageRequest,
	})
}

func (s *ChatService) editMessage(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[editRequest](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.EditMessageCommand{
		RoomID:    req.RoomID,
		ActorID:   session.Identity.UserID,
		MessageID: req.MessageID,
		Request:   req.SendMessageRequest,
	})
}

func (s *ChatService) deleteMessage(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[deleteRequest](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.DeleteMessageCommand{
		RoomID:    req.RoomID,
		ActorID:   session.Identity.UserID,
		MessageID: req.MessageID,
		Reason:    req.Reason,
	})
}

func pin(pinned bool) handler {
	return func(s *ChatService, ctx context.Context, session *Session, frame Frame) Response {
		req, err := decode[messageRef](frame)
		if err != nil {
			return failure(err)
		}
		return s.ask(ctx, chat.PinMessageCommand{
			RoomID:    req.RoomID,
			ActorID:   session.Identity.UserID,
			MessageID: req.MessageID,
			Pinned:    pinned,
		})
	}
}

func react(remove bool) handler {
	return func(s *ChatService, ctx context.Context, session *Session, frame Frame) Response {
		req, err := decode[reactionRequest](frame)
		if err != nil {
			return failure(err)
		}
		return s.ask(ctx, chat.ReactCommand{
			RoomID:    req.RoomID,
			ActorID:   session.Identity.UserID,
			MessageID: req.MessageID,
			Emoji:     req.Emoji,
			Remove:    remove,
		})
	}
}

func (s *ChatService) markRead(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[messageRef](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.MarkReadCommand{RoomID: req.RoomID, UserID: session.Identity.UserID, MessageID: req.MessageID})
}

func (s *ChatService) history(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[historyRequest](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.GetMessagesCommand{
		RoomID: req.RoomID,
		UserID: session.Identity.UserID,
		Cursor: req.Cursor,
		Limit:  req.Limit,
	})
}

func (s *ChatService) createThread(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[messageRef](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.CreateThreadCommand{
		RoomID:          req.RoomID,
		ActorID:         session.Identity.UserID,
		ParentMessageID: req.MessageID,
	})
}

// replyThread is a regular send bound to a thread.
func (s *ChatService) replyThread(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[threadReplyRequest](frame)
	if err != nil {
		return failure(err)
	}
	request := req.SendMessageRequest
	request.ThreadID = &req.ThreadID
	return s.ask(ctx, chat.SendMessageCommand{
		RoomID:   req.RoomID,
		SenderID: session.Identity.UserID,
		Request:  request,
	})
}

func (s *ChatService) resolveThread(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[threadRequest](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.ResolveThreadCommand{RoomID: req.RoomID, ActorID: session.Identity.UserID, ThreadID: req.ThreadID})
}

func (s *ChatService) registerFile(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[fileRequest](frame)
	if err != nil {
		return failure(err)
	}
	return s.ask(ctx, chat.RegisterFileCommand{
		RoomID:  req.RoomID,
		ActorID: session.Identity.UserID,
		File:    req.File,
		Sample:  req.Sample,
	})
}

func (s *ChatService) search(ctx context.Context, session *Session, frame Frame) Response {
	req, err := decode[searchRequest](frame)
	if err != nil {
		return failure(err)
	}
	messages, err := s.orchestrator.Search(ctx, req.RoomID, session.Identity.UserID, req.Query, req.Limit)
	if err != nil {
		return failure(err)
	}
	return Response{Success: true, Data: messages, Pagination: &Pagination{Count: len(messages)}}
}
