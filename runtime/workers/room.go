package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"campus-chat/contract"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"
	"campus-chat/infrastructure/storage"
	"campus-chat/moderation"
)

var _ contract.Worker = (*RoomWorker)(nil)

// RoomRequest is a command waiting for its reply. Requests whose deadline
// has passed before the worker reaches them are answered without being run.
type RoomRequest struct {
	Command    chat.Command
	ReceivedAt time.Time
	Deadline   time.Time
	Reply      chan RoomReply
}

type RoomReply struct {
	Value any
	Err   error
}

// typingCanceller stops the indicator of a user leaving a room.
type typingCanceller interface {
	CancelTyping(roomID chat.RoomID, userID string)
}

// RoomDeps groups what a room worker shares with the rest of the runtime.
type RoomDeps struct {
	Repos          storage.Repositories
	Publisher      contract.Publisher
	Typing         typingCanceller
	Dictionary     *moderation.Moderator
	Scans          chan<- ScanRequest
	Notifications  chan<- NotificationRequest
	TelemetryChan  chan event.Event
	Clock          func() time.Time
	CensoredChar   rune
	PublishTimeout time.Duration
	HistoryLimit   int
}

// RoomWorker is the single writer of one room. It owns the sequence counter
// and the roster; every mutation of the room goes through its mailbox and is
// persisted in one transaction before its events are published.
type RoomWorker struct {
	id      chat.RoomID
	mailbox chan RoomRequest
	deps    RoomDeps
	log     *slog.Logger

	room         chat.Room
	participants map[string]*chat.Participant
	rules        *moderation.RuleEngine
	corrupted    error
}

func NewRoomWorker(id chat.RoomID, mailbox chan RoomRequest, deps RoomDeps, log *slog.Logger) *RoomWorker {
	return &RoomWorker{
		id:      id,
		mailbox: mailbox,
		deps:    deps,
		log:     log.With("room_id", id),
	}
}

// Run reloads the room from storage, so a restart after a panic resumes
// from the last committed state.
func (w *RoomWorker) Room() chat.RoomID {
	return w.id
}

func (w *RoomWorker) Run(ctx context.Context) error {
	if err := w.load(); err != nil {
		return err
	}
	w.log.Debug("Room worker started", "last_seq", w.room.LastSeq, "participants", len(w.participants))
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping room worker")
			return nil
		case req := <-w.mailbox:
			w.serve(ctx, req)
		}
	}
}

func (w *RoomWorker) serve(ctx context.Context, req RoomRequest) {
	var reply RoomReply
	switch {
	case !req.Deadline.IsZero() && w.now().After(req.Deadline):
		reply.Err = errors.Connection("request expired before processing", context.DeadlineExceeded)
	case w.corrupted != nil:
		reply.Err = w.corrupted
	default:
		reply.Value, reply.Err = w.handle(ctx, req)
	}
	select {
	case req.Reply <- reply:
	default:
		w.log.Debug("Reply dropped, caller gone", "command", fmt.Sprintf("%T", req.Command))
	}
}

func (w *RoomWorker) handle(ctx context.Context, req RoomRequest) (any, error) {
	switch cmd := req.Command.(type) {
	case chat.JoinRoomCommand:
		return w.join(ctx, cmd)
	case chat.LeaveRoomCommand:
		return w.leave(ctx, cmd)
	case chat.ChangeRoleCommand:
		return w.changeRole(ctx, cmd)
	case chat.ModerateCommand:
		return w.moderate(ctx, cmd)
	case chat.ListParticipantsCommand:
		return w.listParticipants(ctx, cmd)
	case chat.UpdateSettingsCommand:
		return w.updateSettings(ctx, cmd)
	case chat.UpdateNotificationsCommand:
		return w.updateNotifications(ctx, cmd)
	case chat.ArchiveRoomCommand:
		return w.archive(ctx, cmd)
	case chat.SendMessageCommand:
		return w.send(ctx, cmd, req.ReceivedAt)
	case chat.EditMessageCommand:
		return w.edit(ctx, cmd)
	case chat.DeleteMessageCommand:
		return w.delete(ctx, cmd)
	case chat.PinMessageCommand:
		return w.pin(ctx, cmd)
	case chat.ReactCommand:
		return w.react(ctx, cmd)
	case chat.MarkReadCommand:
		return w.markRead(ctx, cmd)
	case chat.GetMessagesCommand:
		return w.history(cmd)
	case chat.GetMessagesByIDCommand:
		return w.messagesByID(cmd)
	case chat.SyncCommand:
		return w.sync(cmd)
	case chat.RegisterFileCommand:
		return w.registerFile(ctx, cmd)
	case chat.CreateThreadCommand:
		return w.createThread(ctx, cmd)
	case chat.ResolveThreadCommand:
		return w.resolveThread(ctx, cmd)
	case chat.RetractMessageCommand:
		return w.retract(ctx, cmd)
	case chat.FileAppealCommand:
		return w.fileAppeal(ctx, cmd)
	case chat.ResolveAppealCommand:
		return w.resolveAppeal(ctx, cmd)
	default:
		return nil, errors.Validation("unknown_command", fmt.Sprintf("unsupported command %T", cmd))
	}
}

// load reads the room and its roster, then checks that the room counter and
// the last persisted message agree. A mismatch is never repaired.
func (w *RoomWorker) load() error {
	room, err := w.deps.Repos.Rooms.GetRoom(w.id)
	if err != nil {
		w.log.Error("Room cannot be loaded", "error", err)
		return err
	}
	participants, err := w.deps.Repos.Rooms.ListParticipants(w.id)
	if err != nil {
		return fmt.Errorf("loading participants of %s: %w", w.id, err)
	}
	lastSeq, err := w.deps.Repos.Messages.LastSeq(w.id)
	if err != nil {
		return fmt.Errorf("reading last sequence of %s: %w", w.id, err)
	}
	rules, err := moderation.NewRuleEngine(w.log, w.deps.Dictionary, room.ModerationSettings, w.deps.CensoredChar)
	if err != nil {
		return err
	}

	w.room = room
	w.rules = rules
	w.participants = make(map[string]*chat.Participant, len(participants))
	for i := range participants {
		p := participants[i]
		w.participants[p.UserID] = &p
	}
	w.corrupted = nil
	if lastSeq != room.LastSeq {
		w.corrupted = errors.Internal(
			fmt.Sprintf("room %s counter at %d but last message at %d", w.id, room.LastSeq, lastSeq),
			errors.ErrCorruptedSequence)
		w.log.Error("Corrupted room sequence", "room_seq", room.LastSeq, "stored_seq", lastSeq)
	}
	return nil
}

func (w *RoomWorker) now() time.Time {
	if w.deps.Clock != nil {
		return w.deps.Clock()
	}
	return time.Now().UTC().Truncate(time.Millisecond)
}

// member returns the participant of userID, lazily lifting an expired sanction.
func (w *RoomWorker) member(tx *roomTx, userID string) (*chat.Participant, error) {
	p, ok := w.participants[userID]
	if !ok {
		return nil, errors.Permission("not_member", fmt.Sprintf("%s is not a member of %s", userID, w.id))
	}
	w.expire(tx, p)
	return p, nil
}

// activeMember additionally requires a participant who has not left and is not banned.
func (w *RoomWorker) activeMember(tx *roomTx, userID string) (*chat.Participant, error) {
	p, err := w.member(tx, userID)
	if err != nil {
		return nil, err
	}
	switch {
	case p.IsBanned():
		return nil, errors.Permission("banned", "participant is banned")
	case p.Status == chat.StatusInactive:
		return nil, errors.Permission("not_member", "participant left the room")
	}
	return p, nil
}

func (w *RoomWorker) expire(tx *roomTx, p *chat.Participant) {
	actionID, level := p.Sanction.ActionID, p.Sanction.Level
	if !p.ExpireSanction(tx.now) {
		return
	}
	if level == chat.SanctionBanned {
		w.reseat(p, tx.now)
	}
	tx.touch(p)
	tx.recount = true
	if actionID == "" {
		return
	}
	action, err := w.deps.Repos.Moderation.GetAction(w.id, actionID)
	if err != nil {
		w.log.Warn("Expired sanction without action record", "action_id", actionID, "error", err)
		return
	}
	action.IsActive = false
	tx.batch.Actions = append(tx.batch.Actions, action)
}

// reseat keeps a participant whose ban was lifted in the room only while a
// seat is free. Otherwise they are left inactive and go through join again.
func (w *RoomWorker) reseat(p *chat.Participant, at time.Time) {
	if p.Status != chat.StatusActive || w.room.MaxParticipants <= 0 {
		return
	}
	if chat.Seated(w.participants) > w.room.MaxParticipants {
		p.Status = chat.StatusInactive
		p.LeftAt = &at
		w.log.Info("Lifted ban found the room full", "user_id", p.UserID)
	}
}

// recipients lists the members a message is fanned out to: active members,
// muted and banned ones excluded.
func (w *RoomWorker) recipients() map[string]struct{} {
	res := make(map[string]struct{}, len(w.participants))
	for id, p := range w.participants {
		if p.Status == chat.StatusActive && !p.IsMuted() && !p.IsBanned() {
			res[id] = struct{}{}
		}
	}
	return res
}

func (w *RoomWorker) snapshot() []chat.Participant {
	res := make([]chat.Participant, 0, len(w.participants))
	for _, p := range w.participants {
		res = append(res, *p)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].JoinedAt.Equal(res[j].JoinedAt) {
			return res[i].UserID < res[j].UserID
		}
		return res[i].JoinedAt.Before(res[j].JoinedAt)
	})
	return res
}

func (w *RoomWorker) emit(tx *roomTx, name event.Name, data any) event.ChatEvent {
	return event.ChatEvent{Name: name, RoomID: w.id, At: tx.now, Data: data}
}

func (w *RoomWorker) telemetry(t event.Type, payload any) {
	if w.deps.TelemetryChan == nil {
		return
	}
	select {
	case w.deps.TelemetryChan <- event.Event{Type: t, CreatedAt: w.now(), Payload: payload}:
	default:
		w.log.Debug("Observability telemetry event lost")
	}
}
