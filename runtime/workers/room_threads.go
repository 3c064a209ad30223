package workers

import (
	"context"

	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"

	"github.com/google/uuid"
)

// createThread returns the thread already anchored to the parent, if any.
func (w *RoomWorker) createThread(ctx context.Context, cmd chat.CreateThreadCommand) (any, error) {
	tx := w.begin()
	if !w.room.Settings.AllowThreads {
		return nil, errors.Validation("threads_disabled", "threads are disabled in this room")
	}
	actor, err := w.activeMember(tx, cmd.ActorID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if err := chat.Authorize(actor.Role, chat.PermCreateThread); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	parent, err := w.deps.Repos.Messages.GetMessage(w.id, cmd.ParentMessageID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	existing, ok, err := w.deps.Repos.Threads.ThreadOf(parent.ID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if ok {
		return existing, w.commit(ctx, tx)
	}
	if parent.IsDeleted {
		return nil, w.reject(ctx, tx, errors.Conflict("message_deleted", "cannot open a thread on a deleted message"))
	}
	if parent.ThreadID != nil {
		return nil, w.reject(ctx, tx, errors.Validation("nested_thread", "a thread reply cannot anchor a thread"))
	}

	thread := chat.NewThread(uuid.NewString(), parent, actor.UserID, tx.now)
	tx.batch.Threads = append(tx.batch.Threads, thread)
	tx.publish(event.Envelope{Event: w.emit(tx, event.ThreadCreate, thread), Recipients: w.recipients()})
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	return thread, nil
}

// resolveThread is allowed to the thread creator, the parent author and moderators.
func (w *RoomWorker) resolveThread(ctx context.Context, cmd chat.ResolveThreadCommand) (any, error) {
	tx := w.begin()
	actor, err := w.activeMember(tx, cmd.ActorID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	thread, err := w.thread(cmd.ThreadID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if !w.mayResolve(actor, thread) {
		return nil, w.reject(ctx, tx, errors.Permission("insufficient_role", "only the thread owner or a moderator can resolve it"))
	}
	if !thread.Resolve(actor.UserID, tx.now) {
		return thread, w.commit(ctx, tx)
	}
	tx.batch.Threads = append(tx.batch.Threads, thread)
	tx.publish(event.ToAll(w.emit(tx, event.ThreadResolve, thread)))
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	return thread, nil
}

func (w *RoomWorker) mayResolve(actor *chat.Participant, thread chat.Thread) bool {
	if actor.UserID == thread.CreatedBy || actor.Role.Can(chat.PermResolveAnyThread) {
		return true
	}
	parent, err := w.deps.Repos.Messages.GetMessage(w.id, thread.ParentMessageID)
	return err == nil && parent.SenderID == actor.UserID
}
