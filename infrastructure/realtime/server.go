// Package realtime serves the chat frames over websocket on /ws.
package realtime

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"campus-chat/auth"
	"campus-chat/errors"
	"campus-chat/services"

	"github.com/gorilla/websocket"
)

const (
	// Path is the websocket endpoint.
	Path          = "/ws"
	readLimit     = 1 << 20
	defaultBuffer = 128
)

type Config struct {
	BufferSize  int
	ReadTimeout time.Duration
	WriteWait   time.Duration
}

type Server struct {
	log      *slog.Logger
	service  services.IChatService
	tokens   auth.TokenIssuer
	upgrader websocket.Upgrader
	config   Config
}

func NewServer(log *slog.Logger, service services.IChatService, tokens auth.TokenIssuer, config Config) *Server {
	if config.BufferSize <= 0 {
		config.BufferSize = defaultBuffer
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 60 * time.Second
	}
	if config.WriteWait <= 0 {
		config.WriteWait = 10 * time.Second
	}
	return &Server{
		log:     log,
		service: service,
		tokens:  tokens,
		config:  config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.serve)
	return mux
}

// token reads the bearer token from the Authorization header, or from the
// token query parameter for browsers that cannot set headers on upgrade.
func token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	identity, err := s.tokens.ValidateToken(token(r))
	if err != nil {
		s.log.Debug("Websocket handshake refused", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client
		s.log.Debug("Websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session, err := s.service.Open(ctx, identity)
	if err != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "chat unavailable"), time.Now().Add(s.config.WriteWait))
		_ = ws.Close()
		return
	}
	conn := newConnection(ws, session, s.log, s.config.BufferSize, s.config.WriteWait, s.config.ReadTimeout*9/10)
	defer func() {
		s.service.Close(context.Background(), session)
		conn.close(websocket.CloseNormalClosure, "session closed")
	}()
	go conn.writeLoop()

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})
	s.log.Info("Websocket connected", "user_id", identity.UserID, "connection_id", session.ConnectionID)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
				!stderrors.Is(err, websocket.ErrCloseSent) {
				s.log.Debug("Websocket read failed", "user_id", identity.UserID, "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		var in services.Frame
		var res services.Response
		if err := json.Unmarshal(data, &in); err != nil {
			res = services.Failure(errors.Validation("malformed_frame", "frame is not valid JSON"))
		} else {
			res = s.service.Handle(ctx, session, in)
		}
		out, err := services.ResponseFrame(in.RequestID, res)
		if err != nil {
			s.log.Error("Response not serializable", "event", in.Event, "error", err)
			continue
		}
		conn.reply(out)
	}
}
