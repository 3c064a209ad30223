package server

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"time"

	"campus-chat/auth"
	"campus-chat/errors"
	"campus-chat/services"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type ChatServer struct {
	chatService          services.IChatService
	connectionBufferSize int
	log                  *slog.Logger
	startedAt            time.Time
}

func NewChatServer(log *slog.Logger, chatService services.IChatService, connectionBufferSize int) *ChatServer {
	return &ChatServer{
		chatService:          chatService,
		connectionBufferSize: connectionBufferSize,
		log:                  log,
		startedAt:            time.Now().UTC(),
	}
}

func (s *ChatServer) Health(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"status":    "serving",
		"startedAt": s.startedAt.Format(time.RFC3339),
		"uptimeSec": time.Since(s.startedAt).Seconds(),
	})
}

// Connect opens a chat session for the authenticated caller. Request frames
// are read on a dedicated goroutine; responses and fanned out events share
// the single sending loop below. The session is closed when the client hangs
// up or the stream breaks.
func (s *ChatServer) Connect(stream ChatService_ConnectServer) error {
	ctx := stream.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "identity is missing")
	}
	session, err := s.chatService.Open(ctx, identity)
	if err != nil {
		return errors.MapToGRPCError(err)
	}
	defer s.chatService.Close(context.Background(), session)
	s.log.Info("Stream connected", "user_id", identity.UserID, "connection_id", session.ConnectionID)

	responses := make(chan services.Frame, s.connectionBufferSize)
	recvErr := make(chan error, 1)
	go s.readLoop(ctx, stream, session, responses, recvErr)

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Stream context done", "user_id", identity.UserID, "error", ctx.Err())
			return nil
		case err := <-recvErr:
			if stderrors.Is(err, io.EOF) {
				return nil
			}
			return err
		case f := <-responses:
			if err := s.send(stream, f); err != nil {
				return err
			}
		case e := <-session.Sink.Events():
			f, err := services.EventFrame(e)
			if err != nil {
				s.log.Error("Event not serializable", "event", e.Name, "error", err)
				continue
			}
			if err := s.send(stream, f); err != nil {
				s.log.Error("Failed to push event to stream",
					"user_id", identity.UserID,
					"room_id", e.RoomID,
					"error", err)
				return err
			}
		}
	}
}

func (s *ChatServer) readLoop(ctx context.Context, stream ChatService_ConnectServer,
	session *services.Session, responses chan<- services.Frame, recvErr chan<- error) {
	for {
		msg, err := stream.Recv()
		if err != nil {
			recvErr <- err
			return
		}
		in, err := FromStruct(msg)
		var res services.Response
		if err != nil {
			res = services.Failure(errors.Wrap(errors.KindValidation, "malformed_frame", "frame is not a valid event", err))
		} else {
			res = s.chatService.Handle(ctx, session, in)
		}
		out, err := services.ResponseFrame(in.RequestID, res)
		if err != nil {
			s.log.Error("Response not serializable", "event", in.Event, "error", err)
			continue
		}
		select {
		case responses <- out:
		case <-ctx.Done():
			return
		}
	}
}

func (s *ChatServer) send(stream ChatService_ConnectServer, f services.Frame) error {
	msg, err := ToStruct(f)
	if err != nil {
		s.log.Error("Frame not convertible", "event", f.Event, "error", err)
		return nil
	}
	return stream.Send(msg)
}
