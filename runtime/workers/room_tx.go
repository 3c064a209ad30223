package workers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"
	"campus-chat/infrastructure/storage"
)

// roomTx collects the records and envelopes of one command. Nothing leaves
// the worker until the batch is committed: a failed commit reloads the room
// and drops the envelopes. When the reload fails too the worker refuses
// every command until it is restarted.
type roomTx struct {
	now          time.Time
	roomChanged  bool
	recount      bool
	participants map[string]*chat.Participant
	batch        storage.RoomBatch
	envelopes    []event.Envelope
}

func (w *RoomWorker) begin() *roomTx {
	return &roomTx{now: w.now(), participants: make(map[string]*chat.Participant)}
}

func (tx *roomTx) touch(participants ...*chat.Participant) {
	for _, p := range participants {
		tx.participants[p.UserID] = p
	}
}

func (tx *roomTx) publish(envelopes ...event.Envelope) {
	tx.envelopes = append(tx.envelopes, envelopes...)
}

func (w *RoomWorker) commit(ctx context.Context, tx *roomTx) error {
	if tx.recount {
		w.room.Recount(w.participants)
		tx.roomChanged = true
	}
	if tx.roomChanged {
		w.room.UpdatedAt = tx.now
		room := w.room
		tx.batch.Room = &room
	}
	ids := make([]string, 0, len(tx.participants))
	for id := range tx.participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		tx.batch.Participants = append(tx.batch.Participants, *tx.participants[id])
	}

	if err := w.deps.Repos.Rooms.Commit(tx.batch); err != nil {
		w.log.Error("Commit failed, reloading room", "error", err)
		if reloadErr := w.load(); reloadErr != nil {
			w.log.Error("Reload after failed commit failed", "error", reloadErr)
			w.corrupted = errors.Internal(fmt.Sprintf("room %s state lost after a failed commit", w.id), reloadErr)
		}
		return err
	}

	for _, env := range tx.envelopes {
		w.publish(ctx, env)
	}
	return nil
}

func (w *RoomWorker) publish(ctx context.Context, env event.Envelope) {
	pubCtx := ctx
	if w.deps.PublishTimeout > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(ctx, w.deps.PublishTimeout)
		defer cancel()
	}
	if err := w.deps.Publisher.Publish(pubCtx, env); err != nil {
		w.log.Warn("Event not published", "event", env.Event.Name, "error", err)
	}
}

// reject fails a command while keeping what it legitimately changed on the
// way, such as a lifted sanction or a strike for a blocked message.
func (w *RoomWorker) reject(ctx context.Context, tx *roomTx, err error) error {
	if commitErr := w.commit(ctx, tx); commitErr != nil {
		w.log.Error("Side effects of a rejected command were not persisted", "error", commitErr)
	}
	return err
}
