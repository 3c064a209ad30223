package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"campus-chat/contract"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"

	"github.com/samber/lo"
)

var _ contract.PresenceReader = (*PresenceWorker)(nil)

type presenceCommand interface {
	apply(w *PresenceWorker, ctx context.Context)
}

type connState struct {
	status chat.PresenceStatus
	at     time.Time
}

type typingKey struct {
	roomID chat.RoomID
	userID string
}

// pendingOffline remembers where to announce a user who dropped their last
// connection once the grace period ends.
type pendingOffline struct {
	at    time.Time
	rooms []chat.RoomID
}

// PresenceWorker owns the ephemeral presence and typing state. Mutations go
// through its inbox; Status and Bulk read a snapshot guarded by a lock.
// Nothing it holds is ever persisted.
type PresenceWorker struct {
	log            *slog.Logger
	publisher      contract.Publisher
	registry       contract.IRegistry
	inbox          chan presenceCommand
	clock          func() time.Time
	typingTimeout  time.Duration
	grace          time.Duration
	sweepInterval  time.Duration
	publishTimeout time.Duration

	connections map[string]map[string]connState
	pending     map[string]pendingOffline
	typing      map[typingKey]time.Time

	mu   sync.RWMutex
	view map[string]chat.Presence
}

func NewPresenceWorker(log *slog.Logger, publisher contract.Publisher, registry contract.IRegistry,
	bufferSize int, typingTimeout, grace, publishTimeout time.Duration) *PresenceWorker {
	sweep := typingTimeout / 4
	if grace > 0 && grace/4 < sweep {
		sweep = grace / 4
	}
	if sweep < 10*time.Millisecond {
		sweep = 10 * time.Millisecond
	}
	return &PresenceWorker{
		log:            log,
		publisher:      publisher,
		registry:       registry,
		inbox:          make(chan presenceCommand, bufferSize),
		clock:          func() time.Time { return time.Now().UTC() },
		typingTimeout:  typingTimeout,
		grace:          grace,
		sweepInterval:  sweep,
		publishTimeout: publishTimeout,
		connections:    make(map[string]map[string]connState),
		pending:        make(map[string]pendingOffline),
		typing:         make(map[typingKey]time.Time),
		view:           make(map[string]chat.Presence),
	}
}

func (w *PresenceWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping presence worker")
			return nil
		case cmd := <-w.inbox:
			cmd.apply(w, ctx)
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Inbox exposes the mailbox to the capacity sampler.
func (w *PresenceWorker) Inbox() NamedChannel {
	return NamedChannel{Name: "presence", Channel: w.inbox}
}

func (w *PresenceWorker) Connect(ctx context.Context, userID, connectionID string) error {
	return w.send(ctx, connectCmd{userID: userID, connectionID: connectionID, at: w.clock()})
}

// Disconnect takes the rooms the connection was subscribed to, since the
// registry no longer knows them once the connection is gone.
func (w *PresenceWorker) Disconnect(ctx context.Context, userID, connectionID string, rooms []chat.RoomID) error {
	return w.send(ctx, disconnectCmd{userID: userID, connectionID: connectionID, rooms: rooms, at: w.clock()})
}

// Update applies a client reported status. Updates older than the last one
// seen on the same connection are ignored.
func (w *PresenceWorker) Update(ctx context.Context, userID, connectionID string, status chat.PresenceStatus, at time.Time) error {
	if !status.Valid() {
		return errors.Validation("invalid_status", "unknown presence status "+string(status))
	}
	if at.IsZero() {
		at = w.clock()
	}
	return w.send(ctx, updateCmd{userID: userID, connectionID: connectionID, status: status, at: at})
}

func (w *PresenceWorker) StartTyping(ctx context.Context, roomID chat.RoomID, userID string) error {
	return w.send(ctx, typingCmd{key: typingKey{roomID: roomID, userID: userID}, start: true})
}

func (w *PresenceWorker) StopTyping(ctx context.Context, roomID chat.RoomID, userID string) error {
	return w.send(ctx, typingCmd{key: typingKey{roomID: roomID, userID: userID}})
}

// CancelTyping is called by room workers and never blocks them.
func (w *PresenceWorker) CancelTyping(roomID chat.RoomID, userID string) {
	select {
	case w.inbox <- typingCmd{key: typingKey{roomID: roomID, userID: userID}}:
	default:
		w.log.Debug("Presence inbox full, typing indicator left to expire", "room_id", roomID, "user_id", userID)
	}
}

func (w *PresenceWorker) Status(userID string) chat.PresenceStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if p, ok := w.view[userID]; ok {
		return p.Status
	}
	return chat.PresenceOffline
}

func (w *PresenceWorker) Bulk(userIDs []string) []chat.Presence {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return lo.Map(lo.Uniq(userIDs), func(id string, _ int) chat.Presence {
		if p, ok := w.view[id]; ok {
			return p
		}
		return chat.Presence{UserID: id, Status: chat.PresenceOffline}
	})
}

func (w *PresenceWorker) send(ctx context.Context, cmd presenceCommand) error {
	select {
	case w.inbox <- cmd:
		return nil
	case <-ctx.Done():
		return errors.Connection("presence unavailable", ctx.Err())
	}
}

type connectCmd struct {
	userID, connectionID string
	at                   time.Time
}

func (c connectCmd) apply(w *PresenceWorker, ctx context.Context) {
	conns, ok := w.connections[c.userID]
	if !ok {
		conns = make(map[string]connState)
		w.connections[c.userID] = conns
	}
	conns[c.connectionID] = connState{status: chat.PresenceOnline, at: c.at}
	delete(w.pending, c.userID)
	w.refresh(ctx, c.userID, w.registry.RoomsOfUser(c.userID), c.at)
}

type disconnectCmd struct {
	userID, connectionID string
	rooms                []chat.RoomID
	at                   time.Time
}

func (c disconnectCmd) apply(w *PresenceWorker, ctx context.Context) {
	conns := w.connections[c.userID]
	delete(conns, c.connectionID)
	if len(conns) > 0 {
		w.refresh(ctx, c.userID, w.registry.RoomsOfUser(c.userID), c.at)
		return
	}
	delete(w.connections, c.userID)
	w.pending[c.userID] = pendingOffline{
		at:    c.at.Add(w.grace),
		rooms: lo.Uniq(append(c.rooms, w.registry.RoomsOfUser(c.userID)...)),
	}
}

type updateCmd struct {
	userID, connectionID string
	status               chat.PresenceStatus
	at                   time.Time
}

func (c updateCmd) apply(w *PresenceWorker, ctx context.Context) {
	conns, ok := w.connections[c.userID]
	if !ok {
		w.log.Debug("Presence update without connection ignored", "user_id", c.userID)
		return
	}
	if current, ok := conns[c.connectionID]; ok && c.at.Before(current.at) {
		return
	}
	conns[c.connectionID] = connState{status: c.status, at: c.at}
	w.refresh(ctx, c.userID, w.registry.RoomsOfUser(c.userID), c.at)
}

type typingCmd struct {
	key   typingKey
	start bool
}

// apply extends an indicator already shown instead of broadcasting it again.
func (c typingCmd) apply(w *PresenceWorker, ctx context.Context) {
	now := w.clock()
	_, active := w.typing[c.key]
	if c.start {
		w.typing[c.key] = now.Add(w.typingTimeout)
		if !active {
			w.publishTyping(ctx, event.TypingStart, c.key, now)
		}
		return
	}
	if active {
		delete(w.typing, c.key)
		w.publishTyping(ctx, event.TypingStop, c.key, now)
	}
}

// sweep expires typing indicators and confirms pending offline transitions.
func (w *PresenceWorker) sweep(ctx context.Context) {
	now := w.clock()
	for key, expiresAt := range w.typing {
		if !now.Before(expiresAt) {
			delete(w.typing, key)
			w.publishTyping(ctx, event.TypingStop, key, now)
		}
	}
	for userID, p := range w.pending {
		if now.Before(p.at) {
			continue
		}
		delete(w.pending, userID)
		w.refresh(ctx, userID, p.rooms, now)
	}
}

// refresh recomputes the aggregate of a user and announces a change.
func (w *PresenceWorker) refresh(ctx context.Context, userID string, rooms []chat.RoomID, at time.Time) {
	states := make([]chat.PresenceStatus, 0, len(w.connections[userID]))
	for _, s := range w.connections[userID] {
		states = append(states, s.status)
	}
	status := chat.Aggregate(states...)

	w.mu.Lock()
	previous, known := w.view[userID]
	changed := !known && status != chat.PresenceOffline || known && previous.Status != status
	presence := chat.Presence{UserID: userID, Status: status, LastSeen: at}
	if status == chat.PresenceOffline {
		delete(w.view, userID)
	} else {
		w.view[userID] = presence
	}
	w.mu.Unlock()

	if !changed {
		return
	}
	for _, roomID := range rooms {
		w.publish(ctx, event.Envelope{
			Event:   event.ChatEvent{Name: event.PresenceUpdate, RoomID: roomID, At: at, Data: presence},
			Exclude: userID,
		})
	}
}

func (w *PresenceWorker) publishTyping(ctx context.Context, name event.Name, key typingKey, at time.Time) {
	w.publish(ctx, event.Envelope{
		Event:   event.ChatEvent{Name: name, RoomID: key.roomID, At: at, Data: event.Typing{RoomID: key.roomID, UserID: key.userID}},
		Exclude: key.userID,
	})
}

func (w *PresenceWorker) publish(ctx context.Context, env event.Envelope) {
	pubCtx, cancel := context.WithTimeout(ctx, w.publishTimeout)
	defer cancel()
	if err := w.publisher.Publish(pubCtx, env); err != nil {
		w.log.Debug("Presence event dropped", "event", env.Event.Name, "error", err)
	}
}
