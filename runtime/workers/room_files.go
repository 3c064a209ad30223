package workers

import (
	"context"

	"campus-chat/auth"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/domain/mimetypes"
	"campus-chat/errors"
)

// registerFile records an upload reported by the file service so that later
// sends can reference it. The uploader is told the outcome either way.
func (w *RoomWorker) registerFile(ctx context.Context, cmd chat.RegisterFileCommand) (any, error) {
	tx := w.begin()
	actor, err := w.activeMember(tx, cmd.ActorID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	file := cmd.File
	file.RoomID = w.id
	file.UploadedBy = actor.UserID
	if file.UploadedAt.IsZero() {
		file.UploadedAt = tx.now
	}

	if err := w.checkUpload(actor, &file, cmd.Sample); err != nil {
		tx.publish(event.ToUsers(w.emit(tx, event.FileUploadError, event.UploadFailed{
			FileID: file.ID, Reason: errors.From(err).Reason,
		}), actor.UserID))
		return nil, w.reject(ctx, tx, err)
	}
	if err := w.deps.Repos.Files.SaveFile(file); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	tx.publish(event.ToUsers(w.emit(tx, event.FileUploadComplete, file), actor.UserID))
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	return file, nil
}

func (w *RoomWorker) checkUpload(actor *chat.Participant, file *chat.FileUpload, sample []byte) error {
	if !w.room.Settings.AllowFileSharing {
		return errors.Validation("files_disabled", "file sharing is disabled in this room")
	}
	if err := chat.Authorize(actor.Role, chat.PermShareFiles); err != nil {
		return err
	}
	if err := auth.Validate(*file); err != nil {
		return err
	}
	mimeType, matched := mimetypes.Reconcile(file.MimeType, sample)
	if !matched {
		w.log.Warn("Declared file type does not match its content",
			"file_id", file.ID, "declared", file.MimeType, "detected", mimeType)
	}
	file.MimeType = mimeType
	return w.checkFile(*file)
}
