package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"campus-chat/ai"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"
	"campus-chat/infrastructure/queue"
	"campus-chat/infrastructure/storage"
	"campus-chat/runtime/workers"
	"campus-chat/sink"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	prof  = chat.Identity{UserID: "prof", DisplayName: "Prof. Turing", PlatformRole: "teacher"}
	alice = chat.Identity{UserID: "alice", DisplayName: "Alice"}
	bob   = chat.Identity{UserID: "bob", DisplayName: "Bob"}
)

func testConfig() Config {
	return Config{
		BufferSize:             256,
		MailboxSize:            64,
		FanoutShards:           2,
		ModerationWorkers:      2,
		HistoryLimit:           500,
		SearchLimit:            20,
		PreviewLength:          80,
		LowCapacityThreshold:   10,
		DefaultMaxParticipants: 100,
		CensoredChar:           '*',
		SinkTimeout:            200 * time.Millisecond,
		RequestTimeout:         3 * time.Second,
		PublishTimeout:         time.Second,
		ToxicitySLA:            time.Second,
		TypingTimeout:          time.Second,
		PresenceGrace:          100 * time.Millisecond,
		DigestInterval:         time.Minute,
	}
}

type orchestratorFixture struct {
	t     *testing.T
	o     *Orchestrator
	queue *queue.LogQueue
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)

	telemetryChan := make(chan event.Event, 256)
	supervisor := workers.NewSupervisor(log, telemetryChan, 10*time.Millisecond)
	notifications := queue.NewLogQueue(log, 100)
	o := NewOrchestrator(log, testConfig(), supervisor, NewRegistry(),
		storage.NewRepositories(db, log, 500), storage.NewSearchIndex(writer, log),
		ai.NewDefaultScorer(), notifications, telemetryChan)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, o.Start(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = writer.Close()
		_ = db.Close()
	})
	// Start returns only on shutdown, wait for the dictionary before asking anything
	require.Eventually(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.dictionary != nil
	}, 2*time.Second, 5*time.Millisecond)
	return &orchestratorFixture{t: t, o: o, queue: notifications}
}

func (f *orchestratorFixture) room(name string) chat.Room {
	room, err := f.o.CreateRoom(context.Background(), prof, chat.CreateRoomRequest{Name: name, RoomType: chat.RoomCourse})
	require.NoError(f.t, err)
	return room
}

// enter joins the room and subscribes a fresh connection, as the transports do.
func (f *orchestratorFixture) enter(roomID chat.RoomID, who chat.Identity) *sink.ConnectionSink {
	ctx := context.Background()
	_, err := f.o.Ask(ctx, chat.JoinRoomCommand{RoomID: roomID, Identity: who})
	require.NoError(f.t, err)
	conn := sink.NewConnectionSink("conn-"+who.UserID, who.UserID, 512)
	require.NoError(f.t, f.o.Connect(ctx, conn.ConnectionID, who.UserID))
	f.o.Subscribe(conn.ConnectionID, who.UserID, roomID, conn)
	return conn
}

func (f *orchestratorFixture) send(roomID chat.RoomID, who chat.Identity, text string) chat.Message {
	res, err := f.o.Ask(context.Background(), chat.SendMessageCommand{
		RoomID: roomID, SenderID: who.UserID, Request: chat.SendMessageRequest{Content: text},
	})
	require.NoError(f.t, err)
	return res.(chat.Message)
}

// next waits for the next event with the given name, skipping the others.
func next(t *testing.T, conn *sink.ConnectionSink, name event.Name) event.ChatEvent {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case e := <-conn.Events():
			if e.Name == name {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event received by %s", name, conn.UserID)
			return event.ChatEvent{}
		}
	}
}

func TestOrchestrator_MessagesArriveInSequence(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)
	room := f.room("Algorithms 101")
	f.enter(room.ID, alice)
	bobConn := f.enter(room.ID, bob)

	// When alice sends three messages
	for i := 1; i <= 3; i++ {
		f.send(room.ID, alice, fmt.Sprintf("step %d of the proof", i))
	}

	// Then bob receives them in sequence order
	for i := int64(1); i <= 3; i++ {
		msg := next(t, bobConn, event.MessageNew).Data.(chat.Message)
		req.Equal(i, msg.Seq)
		req.Equal("alice", msg.SenderID)
	}
	stored, err := f.o.GetRoom(room.ID)
	req.NoError(err)
	req.Equal(int64(3), stored.LastSeq)
	req.Equal(3, stored.ParticipantCount)
}

func TestOrchestrator_SearchFindsIndexedMessages(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)
	room := f.room("Biology")
	f.enter(room.ID, alice)
	f.enter(room.ID, bob)
	wanted := f.send(room.ID, alice, "photosynthesis happens in the chloroplast")
	f.send(room.ID, bob, "see you at the lab tomorrow")

	// The search sink indexes behind the fan-out
	var found []chat.Message
	req.Eventually(func() bool {
		res, err := f.o.Search(context.Background(), room.ID, "bob", "photosynthesis", 10)
		found = res
		return err == nil && len(res) == 1
	}, 3*time.Second, 20*time.Millisecond)
	req.Equal(wanted.ID, found[0].ID)

	// A stranger cannot read the hits
	_, err := f.o.Search(context.Background(), room.ID, "mallory", "photosynthesis", 10)
	req.ErrorIs(err, errors.ErrPermission)
}

func TestOrchestrator_ToxicMessageIsRetracted(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)
	room := f.room("Ethics")
	f.enter(room.ID, alice)
	bobConn := f.enter(room.ID, bob)

	// When alice sends a message the blacklist lets through but the scorer flags
	msg := f.send(room.ID, alice, "your essay is pathetic trash")

	// Then everybody first sees it, then sees it retracted
	req.Equal(msg.ID, next(t, bobConn, event.MessageNew).Data.(chat.Message).ID)
	deleted := next(t, bobConn, event.MessageDelete).Data.(event.MessageDeleted)
	req.Equal(msg.ID, deleted.MessageID)
	req.Equal("moderation", deleted.Reason)

	res, err := f.o.Ask(context.Background(), chat.GetMessagesByIDCommand{RoomID: room.ID, UserID: "bob", IDs: []string{msg.ID}})
	req.NoError(err)
	req.Empty(res.([]chat.Message))
}

func TestOrchestrator_BlacklistRejectsSynchronously(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)
	room := f.room("Ethics")
	f.enter(room.ID, alice)

	_, err := f.o.Ask(context.Background(), chat.SendMessageCommand{
		RoomID: room.ID, SenderID: "alice", Request: chat.SendMessageRequest{Content: "what an idiot"},
	})

	req.ErrorIs(err, errors.ErrModerationBlock)
}

func TestOrchestrator_UnknownRoom(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)

	_, err := f.o.Ask(context.Background(), chat.JoinRoomCommand{RoomID: "nowhere", Identity: alice})

	req.ErrorIs(err, errors.ErrNotFound)
}

func TestOrchestrator_CreateRoom(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	// Given a private room with a password
	room, err := f.o.CreateRoom(ctx, prof, chat.CreateRoomRequest{
		Name: "  Staff room ", RoomType: chat.RoomPrivate, Password: lo.ToPtr("s3cret!"),
	})
	req.NoError(err)

	// Then defaults are applied and credentials are derived
	req.Equal("Staff room", room.Name)
	req.True(room.IsPrivate)
	req.Equal(100, room.MaxParticipants)
	req.NotEmpty(room.InviteCode)
	req.NotEqual("s3cret!", room.PasswordHash)
	req.Equal(chat.DefaultSettings(), room.Settings)

	// And it is hidden from listings
	f.room("Public square")
	rooms, err := f.o.ListRooms()
	req.NoError(err)
	req.Len(rooms, 1)
	req.Equal("Public square", rooms[0].Name)

	// And strangers need the password
	_, err = f.o.Ask(ctx, chat.JoinRoomCommand{RoomID: room.ID, Identity: alice, Password: lo.ToPtr("guess")})
	req.ErrorIs(err, errors.ErrPermission)
	_, err = f.o.Ask(ctx, chat.JoinRoomCommand{RoomID: room.ID, Identity: alice, Password: lo.ToPtr("s3cret!")})
	req.NoError(err)
}

func TestOrchestrator_CreateRoomRejections(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.o.CreateRoom(ctx, chat.Identity{UserID: "visitor", PlatformRole: chat.PlatformGuest},
		chat.CreateRoomRequest{Name: "Guest room", RoomType: chat.RoomGeneral})
	req.ErrorIs(err, errors.ErrPermission)

	_, err = f.o.CreateRoom(ctx, prof, chat.CreateRoomRequest{Name: "", RoomType: chat.RoomGeneral})
	req.ErrorIs(err, errors.ErrValidation)

	_, err = f.o.CreateRoom(ctx, prof, chat.CreateRoomRequest{Name: "Lounge", RoomType: "party"})
	req.ErrorIs(err, errors.ErrValidation)
}

func TestOrchestrator_TypingNeedsSubscription(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)
	room := f.room("Physics")
	f.enter(room.ID, alice)
	bobConn := f.enter(room.ID, bob)
	ctx := context.Background()

	req.ErrorIs(f.o.Typing(ctx, room.ID, "mallory", true), errors.ErrPermission)

	req.NoError(f.o.Typing(ctx, room.ID, "alice", true))
	typing := next(t, bobConn, event.TypingStart).Data.(event.Typing)
	req.Equal("alice", typing.UserID)
}

func TestOrchestrator_PresenceFollowsConnections(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)
	room := f.room("Physics")
	aliceConn := f.enter(room.ID, alice)
	bobConn := f.enter(room.ID, bob)
	ctx := context.Background()

	req.Eventually(func() bool {
		return f.o.BulkPresence([]string{"alice"})[0].Status == chat.PresenceOnline
	}, time.Second, 5*time.Millisecond)

	// When alice drops her only connection
	req.NoError(f.o.Disconnect(ctx, aliceConn.ConnectionID, "alice"))

	// Then bob sees her offline once the grace period is over
	req.Eventually(func() bool {
		select {
		case e := <-bobConn.Events():
			return e.Name == event.PresenceUpdate && e.Data.(chat.Presence).UserID == "alice" &&
				e.Data.(chat.Presence).Status == chat.PresenceOffline
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	req.Equal(chat.PresenceOffline, f.o.BulkPresence([]string{"alice"})[0].Status)
}

func TestOrchestrator_ConcurrentSendersKeepSequenceGapFree(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)
	room := f.room("Load")

	const senders, perSender = 10, 20
	users := make([]chat.Identity, senders)
	for i := range users {
		users[i] = chat.Identity{UserID: fmt.Sprintf("student-%02d", i)}
		f.enter(room.ID, users[i])
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u chat.Identity) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				_, err := f.o.Ask(context.Background(), chat.SendMessageCommand{
					RoomID:   room.ID,
					SenderID: u.UserID,
					Request:  chat.SendMessageRequest{Content: fmt.Sprintf("%s answer %d", u.UserID, j)},
				})
				assert.NoError(t, err)
			}
		}(u)
	}
	wg.Wait()

	res, err := f.o.Ask(context.Background(), chat.SyncCommand{RoomID: room.ID, UserID: "prof", Limit: senders * perSender})
	req.NoError(err)
	page := res.(chat.MessagePage)
	req.Len(page.Messages, senders*perSender)
	for i, msg := range page.Messages {
		req.Equal(int64(i+1), msg.Seq)
	}
	req.False(page.HasMore)
}

func TestOrchestrator_AskBeforeStart(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	o := NewOrchestrator(log, testConfig(), workers.NewSupervisor(log, nil, time.Millisecond), NewRegistry(),
		storage.Repositories{}, nil, ai.NewDefaultScorer(), queue.NewLogQueue(log, 1), nil)

	_, err := o.Ask(context.Background(), chat.JoinRoomCommand{RoomID: "algorithms", Identity: alice})

	req.ErrorIs(err, errors.ErrConnection)
}
