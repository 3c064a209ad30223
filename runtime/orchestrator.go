// Package runtime wires the room workers, presence, moderation, notification
// and fan-out workers together. It holds no business rule of its own.
package runtime

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"campus-chat/auth"
	"campus-chat/contract"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/domain/search"
	"campus-chat/errors"
	"campus-chat/infrastructure/storage"
	"campus-chat/moderation"
	"campus-chat/notification"
	"campus-chat/runtime/workers"
	"campus-chat/sink"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

//go:embed censored/*
var censoredFolder embed.FS

var _ contract.Dispatcher = (*Orchestrator)(nil)

// roomRestartAlert is the number of restarts after which a crashing room is logged as an error.
const roomRestartAlert = 3

// Config groups the tunables of the runtime.
type Config struct {
	BufferSize             int
	MailboxSize            int
	FanoutShards           int
	ModerationWorkers      int
	HistoryLimit           int
	SearchLimit            int
	PreviewLength          int
	LowCapacityThreshold   int
	DefaultMaxParticipants int
	CensoredChar           rune
	SinkTimeout            time.Duration
	RequestTimeout         time.Duration
	PublishTimeout         time.Duration
	ToxicitySLA            time.Duration
	TypingTimeout          time.Duration
	PresenceGrace          time.Duration
	DigestInterval         time.Duration
	MetricInterval         time.Duration
	LatencyThreshold       time.Duration
}

type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	config         Config
	supervisor     contract.ISupervisor
	registry       contract.IRegistry
	repos          storage.Repositories
	search         storage.ISearchIndex
	scorer         contract.ToxicityScorer
	queue          contract.NotificationQueue
	fanout         *workers.EventFanout
	presence       *workers.PresenceWorker
	telemetryChan  chan event.Event
	scans          chan workers.ScanRequest
	notifications  chan workers.NotificationRequest
	mailboxes      map[chat.RoomID]chan workers.RoomRequest
	permanentSinks []contract.EventSink
	dictionary     *moderation.Moderator
	clock          func() time.Time
}

func NewOrchestrator(log *slog.Logger, config Config, supervisor contract.ISupervisor, registry contract.IRegistry,
	repos storage.Repositories, index storage.ISearchIndex, scorer contract.ToxicityScorer,
	queue contract.NotificationQueue, telemetryChan chan event.Event) *Orchestrator {
	o := &Orchestrator{
		log:           log,
		config:        config,
		supervisor:    supervisor,
		registry:      registry,
		repos:         repos,
		search:        index,
		scorer:        scorer,
		queue:         queue,
		telemetryChan: telemetryChan,
		scans:         make(chan workers.ScanRequest, config.BufferSize),
		notifications: make(chan workers.NotificationRequest, config.BufferSize),
		mailboxes:     make(map[chat.RoomID]chan workers.RoomRequest),
		clock:         func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
	if index != nil {
		o.permanentSinks = append(o.permanentSinks, sink.NewSearchSink(index, log))
	}
	o.fanout = workers.NewEventFanout(log, registry, o.permanentSinks, config.FanoutShards, config.BufferSize, config.SinkTimeout)
	o.presence = workers.NewPresenceWorker(log, o.fanout, registry, config.BufferSize,
		config.TypingTimeout, config.PresenceGrace, config.PublishTimeout)
	return o
}

// Start loads the global blacklist, registers the long-lived workers and
// blocks while the supervisor runs. Room workers are spawned on first use.
func (o *Orchestrator) Start(ctx context.Context) error {
	dictionary, err := o.prepareDictionary()
	if err != nil {
		return err
	}
	long := o.prepareWorkers()

	o.mu.Lock()
	o.dictionary = dictionary
	o.supervisor.Add(long...)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers", "workers", len(long))
	o.supervisor.Run(ctx)
	return nil
}

func (o *Orchestrator) prepareDictionary() (*moderation.Moderator, error) {
	data, err := NewCensoredLoader(censoredFolder).LoadAll("censored")
	if err != nil {
		return nil, fmt.Errorf("loading censored words: %w", err)
	}
	o.log.Info(fmt.Sprintf("%d censored files loaded [%s]", len(data.Languages), strings.Join(data.Languages, ",")))
	o.log.Info(fmt.Sprintf("%d unique censored words loaded", len(data.Words)))
	return moderation.NewModerator(data.Words, o.config.CensoredChar, o.log)
}

func (o *Orchestrator) prepareWorkers() []contract.Worker {
	res := o.fanout.Workers()
	res = append(res, o.presence)
	for i := 0; i < max(1, o.config.ModerationWorkers); i++ {
		res = append(res, workers.NewModerationWorker(o.scorer, o, o.scans, o.telemetryChan, o.config.ToxicitySLA, o.log))
	}
	router := notification.NewRouter(o.config.DigestInterval, o.config.PreviewLength)
	res = append(res, workers.NewNotificationWorker(router, o.presence, o.queue, o.notifications, o.log))

	if o.telemetryChan != nil {
		counter := event.NewCounter()
		handlers := []event.Handler{
			event.NewChannelCapacityHandler(o.log, o.config.LowCapacityThreshold),
			event.NewLatencyHandler(o.log, o.config.LatencyThreshold, counter),
			event.NewModerationHitHandler(o.log, counter),
			event.NewProcessTrackerHandler(o.log),
			event.NewWorkerRestartedAfterPanicHandler(o.log, counter, roomRestartAlert),
		}
		res = append(res, workers.NewTelemetryWorker(o.log, o.telemetryChan, handlers))
		if o.config.MetricInterval > 0 {
			res = append(res,
				workers.NewChannelCapacityWorker(o.log, o.Channels, o.telemetryChan, o.config.MetricInterval),
				workers.NewHealthMonitoringWorker(o.log, o.Load, o.telemetryChan, o.config.MetricInterval))
		}
	}
	return res
}

// Load reports how many room workers run and how many connections are open.
func (o *Orchestrator) Load() workers.Load {
	connections, users := o.registry.Stats()
	o.mu.Lock()
	defer o.mu.Unlock()
	return workers.Load{Rooms: len(o.mailboxes), Connections: connections, Users: users}
}

// Channels lists every mailbox of the runtime for capacity sampling.
func (o *Orchestrator) Channels() []workers.NamedChannel {
	res := o.fanout.Channels()
	res = append(res,
		o.presence.Inbox(),
		workers.NamedChannel{Name: "scans", Channel: o.scans},
		workers.NamedChannel{Name: "notifications", Channel: o.notifications},
	)
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, mailbox := range o.mailboxes {
		res = append(res, workers.NamedChannel{Name: "room-" + string(id), RoomID: id, Channel: mailbox})
	}
	return res
}

// Ask hands a command to the worker of its room and waits for the reply
// within RequestTimeout. A request still queued at its deadline is answered
// by the worker without being run.
func (o *Orchestrator) Ask(ctx context.Context, cmd chat.Command) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.RequestTimeout)
	defer cancel()

	mailbox, err := o.mailbox(ctx, cmd.Room())
	if err != nil {
		return nil, err
	}
	deadline, _ := ctx.Deadline()
	reply := make(chan workers.RoomReply, 1)
	req := workers.RoomRequest{Command: cmd, ReceivedAt: o.clock(), Deadline: deadline, Reply: reply}

	select {
	case mailbox <- req:
	case <-ctx.Done():
		o.log.Warn("Room mailbox full, request dropped", "room_id", cmd.Room(), "command", fmt.Sprintf("%T", cmd))
		return nil, errors.Connection("room is busy", ctx.Err())
	}
	select {
	case r := <-reply:
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, errors.Connection("room did not answer in time", ctx.Err())
	}
}

// mailbox returns the mailbox of a room, spawning its worker on first use.
func (o *Orchestrator) mailbox(ctx context.Context, roomID chat.RoomID) (chan workers.RoomRequest, error) {
	o.mu.Lock()
	if mailbox, ok := o.mailboxes[roomID]; ok {
		o.mu.Unlock()
		return mailbox, nil
	}
	if o.dictionary == nil {
		o.mu.Unlock()
		return nil, errors.Connection("runtime not started", errors.ErrMailboxUnavailable)
	}
	if _, err := o.repos.Rooms.GetRoom(roomID); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	mailbox := make(chan workers.RoomRequest, o.config.MailboxSize)
	worker := workers.NewRoomWorker(roomID, mailbox, o.roomDeps(), o.log)
	o.mailboxes[roomID] = mailbox
	o.mu.Unlock()

	if err := o.supervisor.Spawn(ctx, worker); err != nil {
		o.mu.Lock()
		delete(o.mailboxes, roomID)
		o.mu.Unlock()
		return nil, errors.Connection("room worker not started", err)
	}
	o.log.Debug("Room worker spawned", "room_id", roomID)
	return mailbox, nil
}

func (o *Orchestrator) roomDeps() workers.RoomDeps {
	return workers.RoomDeps{
		Repos:          o.repos,
		Publisher:      o.fanout,
		Typing:         o.presence,
		Dictionary:     o.dictionary,
		Scans:          o.scans,
		Notifications:  o.notifications,
		TelemetryChan:  o.telemetryChan,
		CensoredChar:   o.config.CensoredChar,
		PublishTimeout: o.config.PublishTimeout,
		HistoryLimit:   o.config.HistoryLimit,
	}
}

// CreateRoom validates the request, applies the defaults and stores the room
// with its creator as owner and first participant.
func (o *Orchestrator) CreateRoom(_ context.Context, creator chat.Identity, req chat.CreateRoomRequest) (chat.Room, error) {
	if err := auth.Validate(req); err != nil {
		return chat.Room{}, err
	}
	if creator.DefaultRole() == chat.RoleGuest {
		return chat.Room{}, errors.Permission("guests_cannot_create", "guests cannot create rooms")
	}
	settings := lo.FromPtrOr(req.Settings, chat.DefaultSettings())
	if err := auth.Validate(settings); err != nil {
		return chat.Room{}, err
	}
	moderationSettings := lo.FromPtrOr(req.ModerationSettings, chat.DefaultModerationSettings())
	if err := auth.Validate(moderationSettings); err != nil {
		return chat.Room{}, err
	}

	now := o.clock()
	room := chat.Room{
		ID:                 chat.RoomID(uuid.NewString()),
		Name:               strings.TrimSpace(req.Name),
		Description:        req.Description,
		Type:               req.RoomType,
		Status:             chat.RoomActive,
		CourseID:           req.CourseID,
		LessonID:           req.LessonID,
		IsPrivate:          lo.FromPtrOr(req.IsPrivate, req.RoomType == chat.RoomPrivate),
		MaxParticipants:    lo.FromPtrOr(req.MaxParticipants, o.config.DefaultMaxParticipants),
		ParticipantCount:   1,
		CreatedBy:          creator.UserID,
		CreatedAt:          now,
		UpdatedAt:          now,
		Settings:           settings,
		ModerationSettings: moderationSettings,
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			return chat.Room{}, errors.Internal("hashing room password", err)
		}
		room.PasswordHash = hash
	}
	if room.IsPrivate || room.PasswordHash != "" {
		room.InviteCode = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	owner := chat.NewParticipant(room.ID, creator, chat.RoleOwner, 0, now)
	if err := o.repos.Rooms.CreateRoom(room, *owner); err != nil {
		return chat.Room{}, err
	}
	o.log.Info("Room created", "room_id", room.ID, "type", room.Type, "created_by", creator.UserID)
	return room, nil
}

func (o *Orchestrator) GetRoom(roomID chat.RoomID) (chat.Room, error) {
	return o.repos.Rooms.GetRoom(roomID)
}

// ListRooms returns the public rooms, private ones only show up to their members.
func (o *Orchestrator) ListRooms() ([]chat.Room, error) {
	rooms, err := o.repos.Rooms.ListRooms()
	if err != nil {
		return nil, err
	}
	return lo.Filter(rooms, func(r chat.Room, _ int) bool { return !r.IsPrivate }), nil
}

// Subscribe attaches a connection to a room the user is a member of.
func (o *Orchestrator) Subscribe(connectionID, userID string, roomID chat.RoomID, s contract.EventSink) {
	o.registry.Subscribe(connectionID, userID, roomID, s)
}

func (o *Orchestrator) Connect(ctx context.Context, connectionID, userID string) error {
	return o.presence.Connect(ctx, userID, connectionID)
}

// Disconnect drops every subscription of the connection before presence
// learns about it, so no event is routed to a closed sink.
func (o *Orchestrator) Disconnect(ctx context.Context, connectionID, userID string) error {
	rooms := o.registry.RemoveConnection(connectionID)
	return o.presence.Disconnect(ctx, userID, connectionID, rooms)
}

func (o *Orchestrator) UpdatePresence(ctx context.Context, userID, connectionID string, status chat.PresenceStatus, at time.Time) error {
	return o.presence.Update(ctx, userID, connectionID, status, at)
}

func (o *Orchestrator) BulkPresence(userIDs []string) []chat.Presence {
	return o.presence.Bulk(userIDs)
}

// Typing only relays indicators of users listening to the room.
func (o *Orchestrator) Typing(ctx context.Context, roomID chat.RoomID, userID string, start bool) error {
	if !lo.Contains(o.registry.RoomsOfUser(userID), roomID) {
		return errors.Permission("not_member", "typing requires an active subscription to the room")
	}
	if start {
		return o.presence.StartTyping(ctx, roomID, userID)
	}
	return o.presence.StopTyping(ctx, roomID, userID)
}

// Search queries the index, then reads the hits through the room worker so
// that membership and deletions are honored.
func (o *Orchestrator) Search(ctx context.Context, roomID chat.RoomID, userID, text string, limit int) ([]chat.Message, error) {
	if o.search == nil {
		return nil, errors.Internal("search is not configured", nil)
	}
	q := search.Parse(text)
	if limit > 0 {
		q.Limit = limit
	}
	if q.Limit <= 0 || q.Limit > o.config.SearchLimit {
		q.Limit = o.config.SearchLimit
	}
	hits, err := o.search.Search(ctx, roomID, q)
	if err != nil {
		return nil, errors.Internal("searching messages", err)
	}
	res, err := o.Ask(ctx, chat.GetMessagesByIDCommand{
		RoomID: roomID,
		UserID: userID,
		IDs:    lo.Map(hits, func(h storage.SearchHit, _ int) string { return h.MessageID }),
	})
	if err != nil {
		return nil, err
	}
	return res.([]chat.Message), nil
}

// Stop cancels the supervision context; workers drain and exit.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
