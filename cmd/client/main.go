// Command client is a terminal chat client speaking the gRPC frame stream.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"campus-chat/auth"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/infrastructure/grpc/client"
	"campus-chat/projection"
	"campus-chat/services"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/samber/lo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type Config struct {
	ServerAddr   string        `envconfig:"SERVER_ADDR" default:"localhost:50051"`
	JWTSecret    string        `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer    string        `envconfig:"JWT_ISSUER" default:"campus"`
	UserID       string        `envconfig:"CHAT_USER" required:"true"`
	DisplayName  string        `envconfig:"CHAT_NAME"`
	PlatformRole string        `envconfig:"CHAT_ROLE" default:"student"`
	Room         string        `envconfig:"CHAT_ROOM" default:"general"`
	TokenTTL     time.Duration `envconfig:"TOKEN_TTL" default:"1h"`
	Colours      bool          `envconfig:"CHAT_COLOURS" default:"true"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	color.Enable = config.Colours

	identity := chat.Identity{UserID: config.UserID, DisplayName: config.DisplayName, PlatformRole: config.PlatformRole}
	token, err := auth.NewTokenIssuer(config.JWTSecret, config.JWTIssuer).GenerateToken(identity, config.TokenTTL)
	if err != nil {
		return err
	}

	conn, err := grpc.NewClient(config.ServerAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	stream, err := client.NewChatClient(conn, token).Connect(ctx)
	if err != nil {
		return err
	}

	c := &chatClient{stream: stream, pending: make(map[string]string), timeline: projection.NewTimeline(chat.RoomID(config.Room))}
	if err := c.send("room:join", map[string]any{"roomId": config.Room}); err != nil {
		return err
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if text := scanner.Text(); text != "" {
				_ = c.send("message:send", map[string]any{"roomId": config.Room, "content": text})
			}
		}
		_ = stream.CloseSend()
	}()

	for {
		f, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.render(f)
	}
}

// chatClient serializes sends, the stream does not allow concurrent writers.
type chatClient struct {
	stream   *client.Stream
	mu       sync.Mutex
	pending  map[string]string
	timeline *projection.Timeline
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Reason string `json:"reason"`
	} `json:"error"`
}

type messageView struct {
	ID            string `json:"id"`
	Seq           int64  `json:"seq"`
	SenderID      string `json:"senderId"`
	SearchContent string `json:"searchContent"`
	IsDeleted     bool   `json:"isDeleted"`
}

func (c *chatClient) send(name string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[id] = name
	return c.stream.Send(services.Frame{Event: name, RequestID: id, Data: raw})
}

func (c *chatClient) render(f services.Frame) {
	switch f.Event {
	case services.ResponseEvent:
		c.mu.Lock()
		name := c.pending[f.RequestID]
		delete(c.pending, f.RequestID)
		c.mu.Unlock()

		var res response
		if err := json.Unmarshal(f.Data, &res); err != nil {
			return
		}
		if !res.Success {
			reason := ""
			if res.Error != nil {
				reason = res.Error.Reason
			}
			color.Red.Printf("! %s: %s (%s)\n", name, res.Message, reason)
			return
		}
		switch name {
		case "room:join":
			var joined struct {
				Room struct {
					LastSeq int64 `json:"lastSeq"`
				} `json:"room"`
			}
			if err := json.Unmarshal(res.Data, &joined); err == nil {
				c.timeline.Seek(joined.Room.LastSeq)
				color.Green.Printf("joined %s at #%d\n", c.timeline.Room, joined.Room.LastSeq)
			}
		case "room:sync":
			var messages []messageView
			if err := json.Unmarshal(res.Data, &messages); err == nil {
				for _, m := range messages {
					c.show(m)
				}
			}
		}
	case string(event.MessageNew):
		var m messageView
		if err := json.Unmarshal(f.Data, &m); err == nil {
			c.show(m)
		}
	case string(event.MessageDelete):
		var deleted struct {
			Seq int64 `json:"seq"`
		}
		if err := json.Unmarshal(f.Data, &deleted); err == nil && c.timeline.Delete(deleted.Seq) {
			color.Yellow.Printf("* #%d was removed\n", deleted.Seq)
		}
	case string(event.RoomResync):
		var resync event.Resync
		if err := json.Unmarshal(f.Data, &resync); err == nil && lo.Contains(resync.RoomIDs, c.timeline.Room) {
			_ = c.send("room:sync", map[string]any{"roomId": c.timeline.Room, "afterSeq": c.timeline.LastSeq()})
		}
	case string(event.ModerationAction), string(event.ModerationWarning):
		color.Yellow.Printf("* %s %s\n", f.Event, string(f.Data))
	default:
		color.Gray.Printf("- %s %s\n", f.Event, string(f.Data))
	}
}

// show prints a message once and asks for a sync when a sequence is missing.
func (c *chatClient) show(m messageView) {
	added, gap := c.timeline.Apply(projection.Entry{
		Seq: m.Seq, MessageID: m.ID, SenderID: m.SenderID, Text: m.SearchContent, Deleted: m.IsDeleted,
	})
	if added && !m.IsDeleted {
		color.Cyan.Printf("[%s #%d] ", c.timeline.Room, m.Seq)
		fmt.Printf("%s: %s\n", m.SenderID, m.SearchContent)
	}
	if gap {
		_ = c.send("room:sync", map[string]any{"roomId": c.timeline.Room, "afterSeq": c.timeline.LastSeq()})
	}
}
