//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"campus-chat/contract"
	"campus-chat/domain/chat"
	"campus-chat/errors"
	"campus-chat/sink"

	"github.com/google/uuid"
)

// IOrchestrator is the part of the runtime the transports reach through the service.
type IOrchestrator interface {
	contract.Dispatcher
	CreateRoom(ctx context.Context, creator chat.Identity, req chat.CreateRoomRequest) (chat.Room, error)
	GetRoom(roomID chat.RoomID) (chat.Room, error)
	ListRooms() ([]chat.Room, error)
	Subscribe(connectionID, userID string, roomID chat.RoomID, s contract.EventSink)
	Connect(ctx context.Context, connectionID, userID string) error
	Disconnect(ctx context.Context, connectionID, userID string) error
	UpdatePresence(ctx context.Context, userID, connectionID string, status chat.PresenceStatus, at time.Time) error
	BulkPresence(userIDs []string) []chat.Presence
	Typing(ctx context.Context, roomID chat.RoomID, userID string, start bool) error
	Search(ctx context.Context, roomID chat.RoomID, userID, text string, limit int) ([]chat.Message, error)
}

type IChatService interface {
	Open(ctx context.Context, identity chat.Identity) (*Session, error)
	Close(ctx context.Context, session *Session)
	Handle(ctx context.Context, session *Session, frame Frame) Response
}

// Session is one authenticated connection, whatever the transport.
type Session struct {
	Identity     chat.Identity
	ConnectionID string
	Sink         *sink.ConnectionSink
}

type handler func(s *ChatService, ctx context.Context, session *Session, frame Frame) Response

type ChatService struct {
	orchestrator         IOrchestrator
	log                  *slog.Logger
	connectionBufferSize int
	deliveryTimeout      time.Duration
	handlers             map[string]handler
}

func NewChatService(log *slog.Logger, orchestrator IOrchestrator, connectionBufferSize int, deliveryTimeout time.Duration) *ChatService {
	return &ChatService{
		orchestrator:         orchestrator,
		log:                  log,
		connectionBufferSize: connectionBufferSize,
		deliveryTimeout:      deliveryTimeout,
		handlers:             routes(),
	}
}

func routes() map[string]handler {
	return map[string]handler{
		"room:create":               (*ChatService).createRoom,
		"room:list":                 (*ChatService).listRooms,
		"room:join":                 (*ChatService).joinRoom,
		"room:leave":                (*ChatService).leaveRoom,
		"room:sync":                 (*ChatService).syncRoom,
		"room:participants":         (*ChatService).participants,
		"room:role":                 (*ChatService).changeRole,
		"room:settings":             (*ChatService).updateSettings,
		"room:notifications":        (*ChatService).updateNotifications,
		"room:archive":              (*ChatService).archiveRoom,
		"message:send":              (*ChatService).sendMessage,
		"message:edit":              (*ChatService).editMessage,
		"message:delete":            (*ChatService).deleteMessage,
		"message:pin":               pin(true),
		"message:unpin":             pin(false),
		"message:react":             react(false),
		"message:unreact":           react(true),
		"message:read":              (*ChatService).markRead,
		"message:history":           (*ChatService).history,
		"thread:create":             (*ChatService).createThread,
		"thread:reply":              (*ChatService).replyThread,
		"thread:resolve":            (*ChatService).resolveThread,
		"typing:start":              typing(true),
		"typing:stop":               typing(false),
		"file:upload":               (*ChatService).registerFile,
		"moderation:action":         (*ChatService).moderate,
		"moderation:appeal":         (*ChatService).fileAppeal,
		"moderation:appeal_resolve": (*ChatService).resolveAppeal,
		"presence:update":           (*ChatService).updatePresence,
		"presence:bulk":             (*ChatService).bulkPresence,
		"search:query":              (*ChatService).search,
	}
}

// Open registers a new connection for an authenticated identity.
func (s *ChatService) Open(ctx context.Context, identity chat.Identity) (*Session, error) {
	if identity.UserID == "" {
		return nil, errors.Permission("anonymous", "an identity is required")
	}
	connectionID := uuid.NewString()
	session := &Session{
		Identity:     identity,
		ConnectionID: connectionID,
		Sink:         sink.NewConnectionSink(connectionID, identity.UserID, s.connectionBufferSize),
	}
	if err := s.orchestrator.Connect(ctx, connectionID, identity.UserID); err != nil {
		return nil, err
	}
	s.log.Debug("Connection opened", "user_id", identity.UserID, "connection_id", connectionID)
	return session, nil
}

// Close drops every subscription of the session. Presence turns offline after its grace period.
func (s *ChatService) Close(ctx context.Context, session *Session) {
	if err := s.orchestrator.Disconnect(ctx, session.ConnectionID, session.Identity.UserID); err != nil {
		s.log.Warn("Disconnect not recorded", "user_id", session.Identity.UserID, "error", err)
	}
	s.log.Debug("Connection closed", "user_id", session.Identity.UserID, "connection_id", session.ConnectionID)
}

// Handle answers one inbound frame. Failures never escape as Go errors: they
// become unsuccessful responses carrying the error kind and reason.
func (s *ChatService) Handle(ctx context.Context, session *Session, frame Frame) Response {
	h, found := s.handlers[frame.Event]
	if !found {
		return failure(errors.Validation("unknown_event", fmt.Sprintf("unknown event %q", frame.Event)))
	}
	res := h(s, ctx, session, frame)
	if !res.Success && res.Error != nil && res.Error.Code == errors.KindInternal {
		s.log.Error("Request failed", "event", frame.Event, "user_id", session.Identity.UserID, "error", res.cause)
	}
	return res
}

// ask runs a room command and shapes the reply.
func (s *ChatService) ask(ctx context.Context, cmd chat.Command) Response {
	res, err := s.orchestrator.Ask(ctx, cmd)
	if err != nil {
		return failure(err)
	}
	if p, isPage := res.(chat.MessagePage); isPage {
		return page(p)
	}
	return ok(res)
}
