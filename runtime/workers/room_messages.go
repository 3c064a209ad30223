package workers

import (
	"context"
	"fmt"
	"time"

	"campus-chat/ai"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"

	"github.com/google/uuid"
)

func (w *RoomWorker) send(ctx context.Context, cmd chat.SendMessageCommand, receivedAt time.Time) (any, error) {
	tx := w.begin()
	if err := w.room.AcceptsMessages(); err != nil {
		return nil, err
	}
	sender, err := w.member(tx, cmd.SenderID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if err := sender.CanSend(); err != nil {
		return nil, w.reject(ctx, tx, err)
	}

	req := cmd.Request
	msgType := req.Type()
	if !msgType.Valid() {
		return nil, w.reject(ctx, tx, errors.Validation("invalid_type", fmt.Sprintf("unknown message type %q", msgType)))
	}
	if msgType == chat.TypeAnnouncement || w.room.Type == chat.RoomAnnouncements {
		if err := chat.Authorize(sender.Role, chat.PermAnnounce); err != nil {
			return nil, w.reject(ctx, tx, err)
		}
	}
	if err := chat.ValidateContent(req, w.room.Settings.MaxMessageLength); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if len(req.Mentions) > 0 && !w.room.Settings.AllowMentions {
		return nil, w.reject(ctx, tx, errors.Validation("mentions_disabled", "mentions are disabled in this room"))
	}
	files, err := w.attachments(sender, req.Attachments)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if req.ReplyToID != nil {
		if _, err := w.deps.Repos.Messages.GetMessage(w.id, *req.ReplyToID); err != nil {
			return nil, w.reject(ctx, tx, err)
		}
	}
	var thread *chat.Thread
	if req.ThreadID != nil {
		if !w.room.Settings.AllowThreads {
			return nil, w.reject(ctx, tx, errors.Validation("threads_disabled", "threads are disabled in this room"))
		}
		t, err := w.thread(*req.ThreadID)
		if err != nil {
			return nil, w.reject(ctx, tx, err)
		}
		thread = &t
	}
	content, err := chat.BuildContent(req, files)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}

	text := content.Text()
	if v := w.rules.Check(sender.UserID, text, sender.LastMessageAt, w.room.Settings.SlowModeDelay, tx.now); v != nil {
		w.telemetry(event.ModerationHitType, event.ModerationHit{RoomID: w.id, UserID: sender.UserID, Rule: v.Rule, Words: v.Words})
		if v.Strike {
			if action := w.strike(tx, sender, v.Rule, nil); action.Type == chat.ActionBan {
				defer w.detach(sender.UserID)
			}
		}
		return nil, w.reject(ctx, tx, v.Err)
	}

	id := uuid.NewString()
	msg := chat.Message{
		ID:            id,
		RoomID:        w.id,
		SenderID:      sender.UserID,
		Seq:           w.room.Advance(id, sender.UserID, tx.now),
		Type:          msgType,
		Content:       content,
		Status:        chat.MessageSent,
		ReplyToID:     req.ReplyToID,
		ThreadID:      req.ThreadID,
		Mentions:      req.Mentions,
		Attachments:   req.Attachments,
		SearchContent: chat.SearchText(content),
		Language:      ai.DetectLanguage(text),
		CreatedAt:     tx.now,
	}
	tx.roomChanged = true
	tx.batch.Messages = append(tx.batch.Messages, msg)

	sender.LastMessageAt = &tx.now
	sender.LastReadSeq = msg.Seq
	sender.LastReadMessageID = msg.ID
	sender.UnreadCount = 0
	tx.touch(sender)
	for _, p := range w.participants {
		if p.UserID == sender.UserID {
			continue
		}
		p.UnreadCount++
		tx.touch(p)
	}

	recipients := w.recipients()
	tx.publish(event.Envelope{Event: w.emit(tx, event.MessageNew, msg), Recipients: recipients})
	if thread != nil {
		thread.AddReply(sender.UserID, tx.now)
		tx.batch.Threads = append(tx.batch.Threads, *thread)
		tx.publish(event.Envelope{Event: w.emit(tx, event.ThreadReply, event.ThreadReplied{
			ThreadID:   thread.ID,
			MessageID:  msg.ID,
			ReplyCount: thread.ReplyCount,
			RepliedBy:  sender.UserID,
			At:         tx.now,
		}), Recipients: recipients})
	}

	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	w.rules.Record(sender.UserID, text, tx.now)
	w.telemetry(event.MessageAcceptedType, event.MessageAccepted{RoomID: w.id, MessageID: msg.ID, Seq: msg.Seq, ReceivedAt: receivedAt})
	w.handOff(msg, sender.Role)
	return msg, nil
}

// attachments resolves the file records of a send against the room file rules.
func (w *RoomWorker) attachments(sender *chat.Participant, ids []string) ([]chat.FileUpload, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if !w.room.Settings.AllowFileSharing {
		return nil, errors.Validation("files_disabled", "file sharing is disabled in this room")
	}
	if err := chat.Authorize(sender.Role, chat.PermShareFiles); err != nil {
		return nil, err
	}
	files := make([]chat.FileUpload, 0, len(ids))
	for _, id := range ids {
		f, err := w.deps.Repos.Files.GetFile(id)
		if err != nil {
			return nil, err
		}
		if err := w.checkFile(f); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func (w *RoomWorker) checkFile(f chat.FileUpload) error {
	if !w.room.Settings.AllowsFileType(f.MimeType) {
		return errors.Validation("file_type", fmt.Sprintf("%s files are not allowed in this room", f.MimeType))
	}
	if maxSize := w.room.Settings.MaxFileSize; maxSize > 0 && f.Size > maxSize {
		return errors.Validation("file_too_large", fmt.Sprintf("file exceeds %d bytes", maxSize))
	}
	return nil
}

func (w *RoomWorker) thread(id string) (chat.Thread, error) {
	t, err := w.deps.Repos.Threads.GetThread(id)
	if err != nil {
		return chat.Thread{}, err
	}
	if t.RoomID != w.id {
		return chat.Thread{}, errors.NotFound("thread_not_found", fmt.Sprintf("thread %s does not exist", id))
	}
	return t, nil
}

// handOff queues the asynchronous work of an accepted message. Both queues
// are best effort: a full queue never delays the room.
func (w *RoomWorker) handOff(msg chat.Message, senderRole chat.Role) {
	if w.deps.Notifications != nil {
		select {
		case w.deps.Notifications <- NotificationRequest{Message: msg, SenderRole: senderRole, Participants: w.snapshot()}:
		default:
			w.log.Warn("Notification queue full, message not routed", "message_id", msg.ID)
		}
	}
	threshold := w.room.ModerationSettings.ToxicityThreshold
	if w.deps.Scans == nil || threshold <= 0 || msg.SearchContent == "" {
		return
	}
	select {
	case w.deps.Scans <- ScanRequest{RoomID: w.id, MessageID: msg.ID, Text: msg.Content.Text(), Threshold: threshold, AcceptedAt: msg.CreatedAt}:
	default:
		w.log.Warn("Toxicity queue full, message not scanned", "message_id", msg.ID)
	}
}

func (w *RoomWorker) edit(ctx context.Context, cmd chat.EditMessageCommand) (any, error) {
	tx := w.begin()
	actor, err := w.activeMember(tx, cmd.ActorID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	msg, err := w.deps.Repos.Messages.GetMessage(w.id, cmd.MessageID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if msg.IsDeleted {
		return nil, w.reject(ctx, tx, errors.Conflict("message_deleted", "cannot edit a deleted message"))
	}
	if msg.SenderID != actor.UserID {
		return nil, w.reject(ctx, tx, errors.Permission("not_author", "only the author can edit a message"))
	}
	if actor.IsMuted() {
		return nil, w.reject(ctx, tx, errors.Permission("muted", "participant is muted"))
	}
	if err := chat.Authorize(actor.Role, chat.PermEditOwnMessage); err != nil {
		return nil, w.reject(ctx, tx, err)
	}

	var content chat.Content
	switch c := msg.Content.(type) {
	case chat.MediaContent:
		c.Caption = cmd.Request.Content
		content = c
	case chat.FileContent:
		c.Caption = cmd.Request.Content
		content = c
	}
	switch content.(type) {
	case chat.MediaContent, chat.FileContent:
		if cmd.Request.Content != "" {
			if err := chat.ValidateLength(cmd.Request.Content, w.room.Settings.MaxMessageLength); err != nil {
				return nil, w.reject(ctx, tx, err)
			}
		}
	default:
		req := cmd.Request
		req.MessageType = &msg.Type
		if err := chat.ValidateContent(req, w.room.Settings.MaxMessageLength); err != nil {
			return nil, w.reject(ctx, tx, err)
		}
		if content, err = chat.BuildContent(req, nil); err != nil {
			return nil, w.reject(ctx, tx, err)
		}
	}
	if v := w.rules.CheckContent(content.Text()); v != nil {
		w.telemetry(event.ModerationHitType, event.ModerationHit{RoomID: w.id, UserID: actor.UserID, Rule: v.Rule, Words: v.Words})
		if action := w.strike(tx, actor, v.Rule, &msg.ID); action.Type == chat.ActionBan {
			defer w.detach(actor.UserID)
		}
		return nil, w.reject(ctx, tx, v.Err)
	}
	if err := msg.Edit(content, tx.now); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	msg.Language = ai.DetectLanguage(content.Text())
	tx.batch.Messages = append(tx.batch.Messages, msg)
	tx.publish(event.Envelope{Event: w.emit(tx, event.MessageEdit, msg), Recipients: w.recipients()})
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	return msg, nil
}

func (w *RoomWorker) delete(ctx context.Context, cmd chat.DeleteMessageCommand) (any, error) {
	tx := w.begin()
	actor, err := w.activeMember(tx, cmd.ActorID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	msg, err := w.deps.Repos.Messages.GetMessage(w.id, cmd.MessageID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	perm := chat.PermDeleteAnyMessage
	if msg.SenderID == actor.UserID {
		perm = chat.PermDeleteOwnMessage
	}
	if err := chat.Authorize(actor.Role, perm); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if err := w.softDelete(tx, &msg, actor.UserID, cmd.Reason); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	return msg, nil
}

// softDelete flags msg, keeps its sequence and takes it out of the unread
// counts of everyone who had not read it yet.
func (w *RoomWorker) softDelete(tx *roomTx, msg *chat.Message, by, reason string) error {
	if err := msg.SoftDelete(by, reason, tx.now); err != nil {
		return err
	}
	for _, p := range w.participants {
		if p.UserID != msg.SenderID && p.LastReadSeq < msg.Seq && p.UnreadCount > 0 {
			p.UnreadCount--
			tx.touch(p)
		}
	}
	tx.batch.Messages = append(tx.batch.Messages, *msg)
	tx.publish(event.ToAll(w.emit(tx, event.MessageDelete, event.MessageDeleted{
		MessageID: msg.ID, Seq: msg.Seq, DeletedBy: by, Reason: reason,
	})))
	return nil
}

func (w *RoomWorker) pin(ctx context.Context, cmd chat.PinMessageCommand) (any, error) {
	tx := w.begin()
	actor, err := w.activeMember(tx, cmd.ActorID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if err := chat.Authorize(actor.Role, chat.PermPinMessage); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	msg, err := w.deps.Repos.Messages.GetMessage(w.id, cmd.MessageID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if msg.IsPinned == cmd.Pinned {
		return msg, w.commit(ctx, tx)
	}
	if err := msg.SetPinned(cmd.Pinned, actor.UserID); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	name := event.MessageUnpin
	if cmd.Pinned {
		name = event.MessagePin
	}
	tx.batch.Messages = append(tx.batch.Messages, msg)
	tx.publish(event.ToAll(w.emit(tx, name, event.MessagePinned{MessageID: msg.ID, PinnedBy: actor.UserID})))
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	return msg, nil
}

func (w *RoomWorker) react(ctx context.Context, cmd chat.ReactCommand) (any, error) {
	tx := w.begin()
	if !w.room.Settings.AllowReactions {
		return nil, errors.Validation("reactions_disabled", "reactions are disabled in this room")
	}
	actor, err := w.activeMember(tx, cmd.ActorID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if err := chat.Authorize(actor.Role, chat.PermReact); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	msg, err := w.deps.Repos.Messages.GetMessage(w.id, cmd.MessageID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}

	var (
		reaction chat.Reaction
		changed  bool
		name     = event.MessageReact
	)
	if cmd.Remove {
		name = event.MessageUnreact
		reaction, changed = msg.Unreact(cmd.Emoji, actor.UserID)
	} else if reaction, changed, err = msg.React(cmd.Emoji, actor.UserID); err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if !changed {
		return msg, w.commit(ctx, tx)
	}
	tx.batch.Messages = append(tx.batch.Messages, msg)
	tx.publish(event.Envelope{Event: w.emit(tx, name, event.ReactionChanged{
		MessageID: msg.ID, Emoji: cmd.Emoji, UserID: actor.UserID, Count: reaction.Count,
	}), Recipients: w.recipients()})
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	return msg, nil
}

// markRead moves the read pointer and recomputes the unread count from the
// live messages after it.
func (w *RoomWorker) markRead(ctx context.Context, cmd chat.MarkReadCommand) (any, error) {
	tx := w.begin()
	p, err := w.member(tx, cmd.UserID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if p.IsBanned() {
		return nil, w.reject(ctx, tx, errors.Permission("banned", "participant is banned"))
	}
	msg, err := w.deps.Repos.Messages.GetMessage(w.id, cmd.MessageID)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	moved, err := p.AdvanceRead(msg.ID, msg.Seq)
	if err != nil {
		return nil, w.reject(ctx, tx, err)
	}
	if moved {
		unread, err := w.deps.Repos.Messages.CountLiveAfter(w.id, p.LastReadSeq)
		if err != nil {
			return nil, w.reject(ctx, tx, err)
		}
		p.UnreadCount = unread
		tx.touch(p)
	}
	if err := w.commit(ctx, tx); err != nil {
		return nil, err
	}
	return *p, nil
}

func (w *RoomWorker) reader(userID string) error {
	p, ok := w.participants[userID]
	if !ok {
		return errors.Permission("not_member", fmt.Sprintf("%s is not a member of %s", userID, w.id))
	}
	if p.IsBanned() {
		return errors.Permission("banned", "participant is banned")
	}
	return chat.Authorize(p.Role, chat.PermReadMessages)
}

// history pages backwards from the cursor, newest first.
func (w *RoomWorker) history(cmd chat.GetMessagesCommand) (any, error) {
	if err := w.reader(cmd.UserID); err != nil {
		return nil, err
	}
	messages, next, err := w.deps.Repos.Messages.GetMessages(w.id, cmd.Cursor, w.limit(cmd.Limit))
	if err != nil {
		return nil, err
	}
	return chat.MessagePage{Messages: messages, NextCursor: next, HasMore: next != nil}, nil
}

// sync returns the messages a reconnecting client missed after AfterSeq.
func (w *RoomWorker) sync(cmd chat.SyncCommand) (any, error) {
	if err := w.reader(cmd.UserID); err != nil {
		return nil, err
	}
	if cmd.AfterSeq < 0 || cmd.AfterSeq > w.room.LastSeq {
		return nil, errors.Validation("invalid_sequence",
			fmt.Sprintf("sequence %d is outside [0, %d]", cmd.AfterSeq, w.room.LastSeq))
	}
	limit := w.limit(cmd.Limit)
	messages, err := w.deps.Repos.Messages.MessagesAfter(w.id, cmd.AfterSeq, limit)
	if err != nil {
		return nil, err
	}
	page := chat.MessagePage{Messages: messages}
	if n := len(messages); n > 0 && messages[n-1].Seq < w.room.LastSeq {
		cursor := fmt.Sprintf("%d", messages[n-1].Seq)
		page.NextCursor = &cursor
		page.HasMore = true
	}
	return page, nil
}

// messagesByID resolves search hits; deleted or foreign messages are skipped.
func (w *RoomWorker) messagesByID(cmd chat.GetMessagesByIDCommand) (any, error) {
	if err := w.reader(cmd.UserID); err != nil {
		return nil, err
	}
	res := make([]chat.Message, 0, len(cmd.IDs))
	for _, id := range cmd.IDs {
		msg, err := w.deps.Repos.Messages.GetMessage(w.id, id)
		if errors.KindOf(err) == errors.KindNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !msg.IsDeleted {
			res = append(res, msg)
		}
	}
	return res, nil
}

func (w *RoomWorker) limit(requested int) int {
	maxLimit := w.deps.HistoryLimit
	if maxLimit <= 0 {
		maxLimit = 50
	}
	if requested <= 0 || requested > maxLimit {
		return maxLimit
	}
	return requested
}
