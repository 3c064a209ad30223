package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"
	"campus-chat/infrastructure/storage"
	"campus-chat/mocks"
	"campus-chat/moderation"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type roomFixture struct {
	t         *testing.T
	db        *badger.DB
	worker    *RoomWorker
	repos     storage.Repositories
	now       time.Time
	published []event.Envelope
	scans     chan ScanRequest
}

func newRoomFixture(t *testing.T, configure func(room *chat.Room)) *roomFixture {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	f := &roomFixture{
		t:     t,
		db:    db,
		repos: storage.NewRepositories(db, log, 50),
		now:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		scans: make(chan ScanRequest, 10),
	}
	room := chat.Room{
		ID:                 "algorithms",
		Name:               "Algorithms 101",
		Type:               chat.RoomCourse,
		Status:             chat.RoomActive,
		MaxParticipants:    10,
		CreatedBy:          "prof",
		CreatedAt:          f.now,
		UpdatedAt:          f.now,
		Settings:           chat.DefaultSettings(),
		ModerationSettings: chat.DefaultModerationSettings(),
	}
	if configure != nil {
		configure(&room)
	}
	owner := chat.NewParticipant(room.ID, chat.Identity{UserID: "prof", DisplayName: "Prof"}, chat.RoleOwner, 0, f.now)
	room.ParticipantCount = 1
	req.NoError(f.repos.Rooms.CreateRoom(room, *owner))

	dictionary, err := moderation.NewModerator([]string{"idiot"}, '*', log)
	req.NoError(err)
	publisher := mocks.NewMockPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, env event.Envelope) error {
			f.published = append(f.published, env)
			return nil
		}).AnyTimes()

	f.worker = NewRoomWorker(room.ID, make(chan RoomRequest, 1), RoomDeps{
		Repos:          f.repos,
		Publisher:      publisher,
		Dictionary:     dictionary,
		Scans:          f.scans,
		Clock:          func() time.Time { return f.now },
		CensoredChar:   '*',
		PublishTimeout: time.Second,
		HistoryLimit:   50,
	}, log)
	req.NoError(f.worker.load())
	return f
}

func (f *roomFixture) do(cmd chat.Command) (any, error) {
	return f.worker.handle(context.Background(), RoomRequest{Command: cmd, ReceivedAt: f.now})
}

func (f *roomFixture) join(userID string) chat.Participant {
	res, err := f.do(chat.JoinRoomCommand{RoomID: "algorithms", Identity: chat.Identity{UserID: userID, DisplayName: userID}})
	require.NoError(f.t, err)
	return res.(chat.Participant)
}

func (f *roomFixture) send(userID, text string) (chat.Message, error) {
	res, err := f.do(chat.SendMessageCommand{RoomID: "algorithms", SenderID: userID, Request: chat.SendMessageRequest{Content: text}})
	if err != nil {
		return chat.Message{}, err
	}
	return res.(chat.Message), nil
}

func (f *roomFixture) participant(userID string) chat.Participant {
	return *f.worker.participants[userID]
}

func (f *roomFixture) events(name event.Name) []event.Envelope {
	var res []event.Envelope
	for _, env := range f.published {
		if env.Event.Name == name {
			res = append(res, env)
		}
	}
	return res
}

func TestRoomWorker_SequenceIsGapFree(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("alice")
	f.join("bob")

	// When messages are accepted and one is rejected in between
	for i, text := range []string{"hello", "you idiot", "binary search", "heaps"} {
		f.now = f.now.Add(time.Second)
		_, err := f.send("alice", text)
		if i == 1 {
			req.ErrorIs(err, errors.ErrModerationBlock)
		} else {
			req.NoError(err)
		}
	}

	// Then sequences stay contiguous and the room counter matches storage
	res, err := f.do(chat.SyncCommand{RoomID: "algorithms", UserID: "bob", AfterSeq: 0})
	req.NoError(err)
	page := res.(chat.MessagePage)
	req.Len(page.Messages, 3)
	for i, msg := range page.Messages {
		req.Equal(int64(i+1), msg.Seq)
	}
	lastSeq, err := f.repos.Messages.LastSeq("algorithms")
	req.NoError(err)
	req.Equal(int64(3), lastSeq)
	stored, err := f.repos.Rooms.GetRoom("algorithms")
	req.NoError(err)
	req.Equal(int64(3), stored.LastSeq)
	req.Equal(int64(3), stored.MessageCount)

	// And bob has three unread messages while alice has none
	req.Equal(int64(3), f.participant("bob").UnreadCount)
	req.Equal(int64(0), f.participant("alice").UnreadCount)
	req.Len(f.events(event.MessageNew), 3)
}

func TestRoomWorker_JoinRespectsCapacity(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, func(room *chat.Room) { room.MaxParticipants = 2 })

	// Given the room holds its owner and alice
	f.join("alice")
	req.Equal(2, f.worker.room.ParticipantCount)

	// When bob tries to join
	_, err := f.do(chat.JoinRoomCommand{RoomID: "algorithms", Identity: chat.Identity{UserID: "bob"}})

	// Then he is turned away and the count is untouched
	req.ErrorIs(err, errors.ErrCapacity)
	req.Equal(2, f.worker.room.ParticipantCount)

	// When alice leaves, bob gets her seat
	_, err = f.do(chat.LeaveRoomCommand{RoomID: "algorithms", UserID: "alice"})
	req.NoError(err)
	f.join("bob")
	req.Equal(2, f.worker.room.ParticipantCount)

	left := f.events(event.RoomUserLeft)
	req.Len(left, 1)
	req.Equal([]string{"alice"}, left[0].Detach)
}

func TestRoomWorker_JoinIsIdempotent(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)

	first := f.join("alice")
	second := f.join("alice")

	req.Equal(first.JoinedAt, second.JoinedAt)
	req.Equal(2, f.worker.room.ParticipantCount)
	req.Len(f.events(event.RoomUserJoined), 1)
}

func TestRoomWorker_PrivateRoomNeedsCredentials(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, func(room *chat.Room) {
		room.IsPrivate = true
		room.InviteCode = "open-sesame"
	})

	_, err := f.do(chat.JoinRoomCommand{RoomID: "algorithms", Identity: chat.Identity{UserID: "alice"}})
	req.ErrorIs(err, errors.ErrPermission)

	code := "open-sesame"
	_, err = f.do(chat.JoinRoomCommand{RoomID: "algorithms", Identity: chat.Identity{UserID: "alice"}, InviteCode: &code})
	req.NoError(err)
}

func TestRoomWorker_StrikesEscalateToMute(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("alice")

	// When alice sends two blacklisted messages
	_, err := f.send("alice", "you idiot")
	req.ErrorIs(err, errors.ErrModerationBlock)
	req.Equal(chat.SanctionWarned, f.participant("alice").Sanction.Level)
	req.Len(f.events(event.ModerationWarning), 1)
	req.True(f.events(event.ModerationWarning)[0].Accepts("alice"))
	req.False(f.events(event.ModerationWarning)[0].Accepts("prof"))

	f.now = f.now.Add(time.Second)
	_, err = f.send("alice", "what an idiot")
	req.ErrorIs(err, errors.ErrModerationBlock)

	// Then she is muted and cannot send a clean message either
	alice := f.participant("alice")
	req.Equal(2, alice.Strikes)
	req.Equal(chat.StatusMuted, alice.Status)
	_, err = f.send("alice", "sorry")
	req.ErrorIs(err, errors.ErrPermission)

	// And the mute is persisted with its action
	actions, err := f.repos.Moderation.ListActions("algorithms", "alice")
	req.NoError(err)
	req.Len(actions, 2)

	// When the mute expires
	f.now = f.now.Add(chat.DefaultModerationSettings().MuteDuration + time.Second)
	_, err = f.send("alice", "sorry")

	// Then she may speak again
	req.NoError(err)
	req.Equal(chat.StatusActive, f.participant("alice").Status)
}

func TestRoomWorker_SlowMode(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, func(room *chat.Room) { room.Settings.SlowModeDelay = 10 * time.Second })
	f.join("alice")

	_, err := f.send("alice", "first")
	req.NoError(err)

	f.now = f.now.Add(3 * time.Second)
	_, err = f.send("alice", "second")
	req.ErrorIs(err, errors.ErrRateLimit)
	req.Equal(7*time.Second, errors.From(err).RetryAfter)

	f.now = f.now.Add(8 * time.Second)
	_, err = f.send("alice", "second")
	req.NoError(err)
}

func TestRoomWorker_RetractToxicMessage(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("alice")
	f.join("bob")

	// Given alice's message was delivered and handed to the scanner
	msg, err := f.send("alice", "a message the scorer dislikes")
	req.NoError(err)
	scan := <-f.scans
	req.Equal(msg.ID, scan.MessageID)
	req.Equal(int64(1), f.participant("bob").UnreadCount)

	// When the scan confirms it as toxic
	res, err := f.do(chat.RetractMessageCommand{RoomID: "algorithms", MessageID: msg.ID, Score: 0.93})
	req.NoError(err)

	// Then the message is soft deleted by the system and alice gets a strike
	retracted := res.(chat.Message)
	req.True(retracted.IsDeleted)
	req.Equal(chat.SystemModerator, retracted.DeletedBy)
	req.InDelta(0.93, *retracted.ToxicityScore, 1e-9)
	req.Equal(1, f.participant("alice").Strikes)
	req.Equal(int64(0), f.participant("bob").UnreadCount)
	req.Len(f.events(event.MessageDelete), 1)
	req.Len(f.events(event.ModerationWarning), 1)

	// And a second confirmation changes nothing
	_, err = f.do(chat.RetractMessageCommand{RoomID: "algorithms", MessageID: msg.ID, Score: 0.95})
	req.NoError(err)
	req.Equal(1, f.participant("alice").Strikes)
}

func TestRoomWorker_AppealLiftsMute(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("bob")

	// Given the owner mutes bob
	res, err := f.do(chat.ModerateCommand{RoomID: "algorithms", ActorID: "prof", TargetID: "bob", Action: chat.ActionMute, Reason: "off topic"})
	req.NoError(err)
	mute := res.(chat.ModerationAction)
	_, err = f.send("bob", "but why")
	req.ErrorIs(err, errors.ErrPermission)

	// When bob appeals twice
	res, err = f.do(chat.FileAppealCommand{RoomID: "algorithms", UserID: "bob", ActionID: mute.ID, Reason: "I was on topic"})
	req.NoError(err)
	appeal := res.(chat.Appeal)
	_, err = f.do(chat.FileAppealCommand{RoomID: "algorithms", UserID: "bob", ActionID: mute.ID, Reason: "again"})

	// Then only one appeal stays open
	req.ErrorIs(err, errors.ErrConflict)

	// When bob tries to review his own appeal
	_, err = f.do(chat.ResolveAppealCommand{RoomID: "algorithms", ReviewerID: "bob", AppealID: appeal.ID, Decision: chat.AppealApproved})
	req.ErrorIs(err, errors.ErrPermission)

	// When the owner approves it
	res, err = f.do(chat.ResolveAppealCommand{RoomID: "algorithms", ReviewerID: "prof", AppealID: appeal.ID, Decision: chat.AppealApproved})
	req.NoError(err)
	req.Equal(chat.AppealApproved, res.(chat.Appeal).Status)

	// Then the mute is revoked and bob can speak
	action, err := f.repos.Moderation.GetAction("algorithms", mute.ID)
	req.NoError(err)
	req.False(action.IsActive)
	req.NotNil(action.RevokedAt)
	req.Equal(chat.SanctionNone, f.participant("bob").Sanction.Level)
	_, err = f.send("bob", "thanks")
	req.NoError(err)
}

func TestRoomWorker_BanDetachesAndBlocksRejoin(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("bob")

	_, err := f.do(chat.ModerateCommand{RoomID: "algorithms", ActorID: "prof", TargetID: "bob", Action: chat.ActionBan, Reason: "spam"})
	req.NoError(err)

	actions := f.events(event.ModerationAction)
	req.Len(actions, 1)
	req.Equal([]string{"bob"}, actions[0].Detach)
	req.Equal(1, f.worker.room.ParticipantCount)

	_, err = f.do(chat.JoinRoomCommand{RoomID: "algorithms", Identity: chat.Identity{UserID: "bob"}})
	req.ErrorIs(err, errors.ErrPermission)
}

func TestRoomWorker_ModeratorCannotSanctionOwner(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("alice")
	_, err := f.do(chat.ChangeRoleCommand{RoomID: "algorithms", ActorID: "prof", TargetID: "alice", Role: chat.RoleModerator})
	req.NoError(err)

	_, err = f.do(chat.ModerateCommand{RoomID: "algorithms", ActorID: "alice", TargetID: "prof", Action: chat.ActionMute})

	req.ErrorIs(err, errors.ErrPermission)
	req.Equal(chat.StatusActive, f.participant("prof").Status)
}

func TestRoomWorker_ThreadReplies(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("alice")
	f.join("bob")
	parent, err := f.send("alice", "who understands dijkstra")
	req.NoError(err)

	// When bob opens a thread twice and replies in it
	res, err := f.do(chat.CreateThreadCommand{RoomID: "algorithms", ActorID: "bob", ParentMessageID: parent.ID})
	req.NoError(err)
	thread := res.(chat.Thread)
	again, err := f.do(chat.CreateThreadCommand{RoomID: "algorithms", ActorID: "alice", ParentMessageID: parent.ID})
	req.NoError(err)
	req.Equal(thread.ID, again.(chat.Thread).ID)

	f.now = f.now.Add(time.Second)
	_, err = f.do(chat.SendMessageCommand{RoomID: "algorithms", SenderID: "bob", Request: chat.SendMessageRequest{
		Content: "relax edges greedily", ThreadID: &thread.ID,
	}})
	req.NoError(err)

	// Then the thread counts the reply and the room sequence still advances
	stored, err := f.repos.Threads.GetThread(thread.ID)
	req.NoError(err)
	req.Equal(1, stored.ReplyCount)
	req.Equal(int64(2), f.worker.room.LastSeq)
	req.Len(f.events(event.ThreadReply), 1)
}

func TestRoomWorker_MarkReadCountsLiveMessages(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("alice")
	f.join("bob")

	var sent []chat.Message
	for _, text := range []string{"one", "two", "three"} {
		f.now = f.now.Add(time.Second)
		msg, err := f.send("alice", text)
		req.NoError(err)
		sent = append(sent, msg)
	}
	_, err := f.do(chat.DeleteMessageCommand{RoomID: "algorithms", ActorID: "alice", MessageID: sent[2].ID})
	req.NoError(err)
	req.Equal(int64(2), f.participant("bob").UnreadCount)

	res, err := f.do(chat.MarkReadCommand{RoomID: "algorithms", UserID: "bob", MessageID: sent[0].ID})
	req.NoError(err)
	req.Equal(int64(1), res.(chat.Participant).UnreadCount)

	// Moving the pointer back is refused
	_, err = f.do(chat.MarkReadCommand{RoomID: "algorithms", UserID: "bob", MessageID: sent[0].ID})
	req.NoError(err)
	f.worker.participants["bob"].LastReadSeq = 2
	_, err = f.do(chat.MarkReadCommand{RoomID: "algorithms", UserID: "bob", MessageID: sent[0].ID})
	req.ErrorIs(err, errors.ErrConflict)
}

func TestRoomWorker_CorruptedSequenceRefusesCommands(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)

	// Given a message stored beyond the room counter
	content := chat.TextContent{Body: "orphan"}
	req.NoError(f.repos.Rooms.Commit(storage.RoomBatch{Messages: []chat.Message{{
		ID: "orphan", RoomID: "algorithms", SenderID: "prof", Seq: 1,
		Type: chat.TypeText, Content: content, Status: chat.MessageSent, CreatedAt: f.now,
	}}}))

	// When the worker reloads
	req.NoError(f.worker.load())
	reply := make(chan RoomReply, 1)
	f.worker.serve(context.Background(), RoomRequest{Command: chat.ListParticipantsCommand{RoomID: "algorithms", ActorID: "prof"}, Reply: reply})

	// Then it refuses to serve rather than repair the sequence
	req.ErrorIs((<-reply).Err, errors.ErrInternal)
}

func TestRoomWorker_ExpiredRequestIsNotProcessed(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	reply := make(chan RoomReply, 1)

	f.worker.serve(context.Background(), RoomRequest{
		Command:  chat.JoinRoomCommand{RoomID: "algorithms", Identity: chat.Identity{UserID: "alice"}},
		Deadline: f.now.Add(-time.Second),
		Reply:    reply,
	})

	req.ErrorIs((<-reply).Err, errors.ErrConnection)
	_, joined := f.worker.participants["alice"]
	req.False(joined)
}

func TestRoomWorker_EditAndDelete(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("alice")
	f.join("bob")
	msg, err := f.send("alice", "helo")
	req.NoError(err)

	// When bob tries to edit alice's message
	_, err = f.do(chat.EditMessageCommand{RoomID: "algorithms", ActorID: "bob", MessageID: msg.ID,
		Request: chat.SendMessageRequest{Content: "hacked"}})
	req.ErrorIs(err, errors.ErrPermission)

	// When alice fixes her typo twice
	for _, text := range []string{"hello", "hello all"} {
		_, err = f.do(chat.EditMessageCommand{RoomID: "algorithms", ActorID: "alice", MessageID: msg.ID,
			Request: chat.SendMessageRequest{Content: text}})
		req.NoError(err)
	}

	// Then the first content is kept as the original
	stored, err := f.repos.Messages.GetMessage("algorithms", msg.ID)
	req.NoError(err)
	req.True(stored.IsEdited)
	req.Equal("hello all", stored.Content.Text())
	req.Equal("helo", stored.OriginalContent.Text())
	req.Len(f.events(event.MessageEdit), 2)
	req.Equal(int64(1), f.participant("bob").UnreadCount)

	// When alice deletes it, bob's unread count drops with it
	res, err := f.do(chat.DeleteMessageCommand{RoomID: "algorithms", ActorID: "alice", MessageID: msg.ID, Reason: "duplicate"})
	req.NoError(err)
	deleted := res.(chat.Message)
	req.True(deleted.IsDeleted)
	req.Equal(msg.Seq, deleted.Seq)
	req.Equal(int64(0), f.participant("bob").UnreadCount)
	req.Len(f.events(event.MessageDelete), 1)

	// Then a second delete and a late edit are conflicts
	_, err = f.do(chat.DeleteMessageCommand{RoomID: "algorithms", ActorID: "alice", MessageID: msg.ID})
	req.ErrorIs(err, errors.ErrConflict)
	_, err = f.do(chat.EditMessageCommand{RoomID: "algorithms", ActorID: "alice", MessageID: msg.ID,
		Request: chat.SendMessageRequest{Content: "again"}})
	req.ErrorIs(err, errors.ErrConflict)
}

func TestRoomWorker_MemberCannotDeleteOthers(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("alice")
	f.join("bob")
	msg, err := f.send("alice", "heaps are trees")
	req.NoError(err)

	_, err = f.do(chat.DeleteMessageCommand{RoomID: "algorithms", ActorID: "bob", MessageID: msg.ID})
	req.ErrorIs(err, errors.ErrPermission)

	// A moderator of the room can
	_, err = f.do(chat.DeleteMessageCommand{RoomID: "algorithms", ActorID: "prof", MessageID: msg.ID, Reason: "off topic"})
	req.NoError(err)
	deletes := f.events(event.MessageDelete)
	req.Len(deletes, 1)
	payload := deletes[0].Event.Data.(event.MessageDeleted)
	req.Equal("prof", payload.DeletedBy)
	req.Equal("off topic", payload.Reason)
}

func TestRoomWorker_PinAndReact(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("alice")
	msg, err := f.send("alice", "exam on friday")
	req.NoError(err)

	// Members cannot pin
	_, err = f.do(chat.PinMessageCommand{RoomID: "algorithms", ActorID: "alice", MessageID: msg.ID, Pinned: true})
	req.ErrorIs(err, errors.ErrPermission)

	// Pinning twice publishes once
	for range 2 {
		res, err := f.do(chat.PinMessageCommand{RoomID: "algorithms", ActorID: "prof", MessageID: msg.ID, Pinned: true})
		req.NoError(err)
		req.True(res.(chat.Message).IsPinned)
	}
	req.Len(f.events(event.MessagePin), 1)
	_, err = f.do(chat.PinMessageCommand{RoomID: "algorithms", ActorID: "prof", MessageID: msg.ID, Pinned: false})
	req.NoError(err)
	req.Len(f.events(event.MessageUnpin), 1)

	// Reactions are counted per user
	for _, user := range []string{"alice", "prof", "alice"} {
		_, err = f.do(chat.ReactCommand{RoomID: "algorithms", ActorID: user, MessageID: msg.ID, Emoji: "👍"})
		req.NoError(err)
	}
	res, err := f.do(chat.ReactCommand{RoomID: "algorithms", ActorID: "prof", MessageID: msg.ID, Emoji: "👍", Remove: true})
	req.NoError(err)
	req.Equal(1, res.(chat.Message).Reactions["👍"].Count)
	req.Equal([]string{"alice"}, res.(chat.Message).Reactions["👍"].Users)
	req.Len(f.events(event.MessageReact), 2)
	req.Len(f.events(event.MessageUnreact), 1)
}

func TestRoomWorker_RolesSettingsAndArchive(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("alice")
	f.join("bob")

	// The owner role is never granted
	_, err := f.do(chat.ChangeRoleCommand{RoomID: "algorithms", ActorID: "prof", TargetID: "alice", Role: chat.RoleOwner})
	req.ErrorIs(err, errors.ErrValidation)

	// An admin may promote below their own rank only
	res, err := f.do(chat.ChangeRoleCommand{RoomID: "algorithms", ActorID: "prof", TargetID: "alice", Role: chat.RoleAdmin})
	req.NoError(err)
	req.Equal(chat.RoleAdmin, res.(chat.Participant).Role)
	_, err = f.do(chat.ChangeRoleCommand{RoomID: "algorithms", ActorID: "alice", TargetID: "bob", Role: chat.RoleModerator})
	req.NoError(err)
	_, err = f.do(chat.ChangeRoleCommand{RoomID: "algorithms", ActorID: "alice", TargetID: "bob", Role: chat.RoleAdmin})
	req.ErrorIs(err, errors.ErrPermission)

	// A moderator cannot change settings
	settings := chat.DefaultSettings()
	settings.AllowReactions = false
	_, err = f.do(chat.UpdateSettingsCommand{RoomID: "algorithms", ActorID: "bob", Settings: &settings})
	req.ErrorIs(err, errors.ErrPermission)

	// When the owner disables reactions, reacting is refused
	res, err = f.do(chat.UpdateSettingsCommand{RoomID: "algorithms", ActorID: "prof", Settings: &settings})
	req.NoError(err)
	req.False(res.(chat.Room).Settings.AllowReactions)
	msg, err := f.send("bob", "graphs")
	req.NoError(err)
	_, err = f.do(chat.ReactCommand{RoomID: "algorithms", ActorID: "alice", MessageID: msg.ID, Emoji: "🎉"})
	req.ErrorIs(err, errors.ErrValidation)

	// Only the owner archives, and archiving twice is harmless
	_, err = f.do(chat.ArchiveRoomCommand{RoomID: "algorithms", ActorID: "alice"})
	req.ErrorIs(err, errors.ErrPermission)
	for range 2 {
		res, err = f.do(chat.ArchiveRoomCommand{RoomID: "algorithms", ActorID: "prof"})
		req.NoError(err)
		req.Equal(chat.RoomArchived, res.(chat.Room).Status)
	}

	// Then nobody new gets in and nothing more is sent
	_, err = f.do(chat.JoinRoomCommand{RoomID: "algorithms", Identity: chat.Identity{UserID: "carol"}})
	req.ErrorIs(err, errors.ErrPermission)
	_, err = f.send("bob", "hello?")
	req.Error(err)
}

func TestRoomWorker_FileUploadThenAttach(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("alice")

	// When alice registers a pdf
	pdf := chat.FileUpload{ID: "f1", Name: "notes.pdf", MimeType: "application/pdf", Size: 2048, URL: "https://files.campus.edu/f1"}
	res, err := f.do(chat.RegisterFileCommand{RoomID: "algorithms", ActorID: "alice", File: pdf, Sample: []byte("%PDF-1.4\n%âãÏÓ\n")})
	req.NoError(err)
	file := res.(chat.FileUpload)
	req.Equal("alice", file.UploadedBy)
	req.Equal(chat.RoomID("algorithms"), file.RoomID)

	// Then only alice is told it completed
	complete := f.events(event.FileUploadComplete)
	req.Len(complete, 1)
	req.True(complete[0].Accepts("alice"))
	req.False(complete[0].Accepts("prof"))

	// And the file can be attached to a message
	fileType := chat.TypeFile
	res, err = f.do(chat.SendMessageCommand{RoomID: "algorithms", SenderID: "alice", Request: chat.SendMessageRequest{
		MessageType: &fileType, Attachments: []string{"f1"},
	}})
	req.NoError(err)
	content, ok := res.(chat.Message).Content.(chat.FileContent)
	req.True(ok)
	req.Equal("notes.pdf", content.Name)

	// An oversized upload is refused and reported to the uploader
	big := chat.FileUpload{ID: "f2", Name: "lecture.png", MimeType: "image/png", Size: 50 << 20, URL: "https://files.campus.edu/f2"}
	_, err = f.do(chat.RegisterFileCommand{RoomID: "algorithms", ActorID: "alice", File: big})
	req.ErrorIs(err, errors.ErrValidation)
	failed := f.events(event.FileUploadError)
	req.Len(failed, 1)
	req.Equal("file_too_large", failed[0].Event.Data.(event.UploadFailed).Reason)
}

func TestRoomWorker_FilesDisabled(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, func(room *chat.Room) { room.Settings.AllowFileSharing = false })
	f.join("alice")

	file := chat.FileUpload{ID: "f1", Name: "notes.txt", MimeType: "text/plain", Size: 10, URL: "https://files.campus.edu/f1"}
	_, err := f.do(chat.RegisterFileCommand{RoomID: "algorithms", ActorID: "alice", File: file})

	req.Error(err)
	req.Equal("files_disabled", errors.From(err).Reason)
}

func TestRoomWorker_MutedMemberKeepsTheirSeat(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, func(room *chat.Room) { room.MaxParticipants = 2 })
	f.join("alice")

	// Given alice is muted for ten minutes
	d := 10 * time.Minute
	_, err := f.do(chat.ModerateCommand{RoomID: "algorithms", ActorID: "prof", TargetID: "alice", Action: chat.ActionMute, Duration: &d})
	req.NoError(err)
	req.Equal(1, f.worker.room.ParticipantCount)

	// When bob tries to take her seat
	_, err = f.do(chat.JoinRoomCommand{RoomID: "algorithms", Identity: chat.Identity{UserID: "bob"}})

	// Then the room is still full
	req.ErrorIs(err, errors.ErrCapacity)
	_, joined := f.worker.participants["bob"]
	req.False(joined)

	// When the mute expires, the count never goes past the capacity
	f.now = f.now.Add(d + time.Second)
	_, err = f.send("alice", "back")
	req.NoError(err)
	req.Equal(2, f.worker.room.ParticipantCount)
	req.LessOrEqual(f.worker.room.ParticipantCount, f.worker.room.MaxParticipants)
}

func TestRoomWorker_ModeratorBanExpires(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("mod")
	f.join("bob")
	_, err := f.do(chat.ChangeRoleCommand{RoomID: "algorithms", ActorID: "prof", TargetID: "mod", Role: chat.RoleModerator})
	req.NoError(err)

	// Given a moderator bans bob for 60 minutes
	d := 60 * time.Minute
	res, err := f.do(chat.ModerateCommand{RoomID: "algorithms", ActorID: "mod", TargetID: "bob", Action: chat.ActionBan, Duration: &d, Reason: "spam"})
	req.NoError(err)
	ban := res.(chat.ModerationAction)
	banned := f.now

	// When bob tries to come back before the expiry
	f.now = banned.Add(59 * time.Minute)
	_, err = f.do(chat.JoinRoomCommand{RoomID: "algorithms", Identity: chat.Identity{UserID: "bob"}})
	req.ErrorIs(err, errors.ErrPermission)
	_, err = f.send("bob", "let me in")
	req.ErrorIs(err, errors.ErrPermission)

	// When the expiry passes
	f.now = banned.Add(61 * time.Minute)
	res, err = f.do(chat.JoinRoomCommand{RoomID: "algorithms", Identity: chat.Identity{UserID: "bob"}})

	// Then bob is active again and the ban is closed in storage
	req.NoError(err)
	req.Equal(chat.StatusActive, res.(chat.Participant).Status)
	req.Equal(chat.SanctionNone, f.participant("bob").Sanction.Level)
	_, err = f.send("bob", "sorry")
	req.NoError(err)
	action, err := f.repos.Moderation.GetAction("algorithms", ban.ID)
	req.NoError(err)
	req.False(action.IsActive)
}

func TestRoomWorker_LiftedBanWithoutRejoinIsActive(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("bob")
	d := time.Hour
	_, err := f.do(chat.ModerateCommand{RoomID: "algorithms", ActorID: "prof", TargetID: "bob", Action: chat.ActionBan, Duration: &d})
	req.NoError(err)

	// When bob speaks once the ban is over, without joining again
	f.now = f.now.Add(d + time.Minute)
	_, err = f.send("bob", "hello again")

	// Then the lifted ban returned him to active
	req.NoError(err)
	req.Equal(chat.StatusActive, f.participant("bob").Status)
	req.Equal(2, f.worker.room.ParticipantCount)
}

func TestRoomWorker_LiftedBanFindsTheRoomFull(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, func(room *chat.Room) { room.MaxParticipants = 2 })
	f.join("bob")
	d := time.Hour
	_, err := f.do(chat.ModerateCommand{RoomID: "algorithms", ActorID: "prof", TargetID: "bob", Action: chat.ActionBan, Duration: &d})
	req.NoError(err)

	// Given carol took the seat bob lost
	f.join("carol")

	// When the ban expires
	f.now = f.now.Add(d + time.Minute)
	_, err = f.do(chat.JoinRoomCommand{RoomID: "algorithms", Identity: chat.Identity{UserID: "bob"}})

	// Then bob is no longer banned but waits for a seat
	req.ErrorIs(err, errors.ErrCapacity)
	bob := f.participant("bob")
	req.False(bob.IsBanned())
	req.Equal(chat.StatusInactive, bob.Status)
	req.Equal(2, f.worker.room.ParticipantCount)
}

func TestRoomWorker_MutedMemberCannotEdit(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("alice")
	msg, err := f.send("alice", "dijkstra is greedy")
	req.NoError(err)

	_, err = f.do(chat.ModerateCommand{RoomID: "algorithms", ActorID: "prof", TargetID: "alice", Action: chat.ActionMute})
	req.NoError(err)

	// When muted alice rewrites her message
	_, err = f.do(chat.EditMessageCommand{RoomID: "algorithms", ActorID: "alice", MessageID: msg.ID,
		Request: chat.SendMessageRequest{Content: "read my new message"}})

	// Then the edit is refused and nothing reaches the room
	req.ErrorIs(err, errors.ErrPermission)
	req.Equal("muted", errors.From(err).Reason)
	req.Empty(f.events(event.MessageEdit))
	stored, err := f.repos.Messages.GetMessage("algorithms", msg.ID)
	req.NoError(err)
	req.False(stored.IsEdited)
}

func TestRoomWorker_LostStateRefusesCommands(t *testing.T) {
	req := require.New(t)
	f := newRoomFixture(t, nil)
	f.join("alice")
	_, err := f.send("alice", "first")
	req.NoError(err)

	// Given the store goes away under the worker
	req.NoError(f.db.Close())

	// When a send cannot be committed nor the room reloaded
	_, err = f.send("alice", "second")
	req.Error(err)

	// Then the worker stops serving instead of skipping a sequence number
	req.ErrorIs(f.worker.corrupted, errors.ErrInternal)
	reply := make(chan RoomReply, 1)
	f.worker.serve(context.Background(), RoomRequest{Command: chat.SendMessageCommand{RoomID: "algorithms", SenderID: "alice",
		Request: chat.SendMessageRequest{Content: "third"}}, Reply: reply})
	req.ErrorIs((<-reply).Err, errors.ErrInternal)
}
