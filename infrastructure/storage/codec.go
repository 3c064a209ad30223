package storage

import (
	"fmt"
	"time"

	"campus-chat/domain/chat"

	"go.mongodb.org/mongo-driver/bson"
)

// messageRecord is the on-disk shape of a message. The content variant is
// stored as a raw sub-document discriminated by Type.
type messageRecord struct {
	ID              string                   `bson:"_id"`
	RoomID          string                   `bson:"room_id"`
	SenderID        string                   `bson:"sender_id"`
	Seq             int64                    `bson:"seq"`
	Type            string                   `bson:"type"`
	Content         bson.Raw                 `bson:"content,omitempty"`
	Status          string                   `bson:"status"`
	ReplyToID       *string                  `bson:"reply_to_id,omitempty"`
	ThreadID        *string                  `bson:"thread_id,omitempty"`
	Mentions        []string                 `bson:"mentions,omitempty"`
	Attachments     []string                 `bson:"attachments,omitempty"`
	Reactions       map[string]chat.Reaction `bson:"reactions,omitempty"`
	IsEdited        bool                     `bson:"is_edited"`
	OriginalContent bson.Raw                 `bson:"original_content,omitempty"`
	EditedAt        *time.Time               `bson:"edited_at,omitempty"`
	IsDeleted       bool                     `bson:"is_deleted"`
	DeletedAt       *time.Time               `bson:"deleted_at,omitempty"`
	DeletedBy       string                   `bson:"deleted_by,omitempty"`
	DeleteReason    string                   `bson:"delete_reason,omitempty"`
	IsPinned        bool                     `bson:"is_pinned"`
	PinnedBy        string                   `bson:"pinned_by,omitempty"`
	SearchContent   string                   `bson:"search_content"`
	Language        string                   `bson:"language,omitempty"`
	ToxicityScore   *float64                 `bson:"toxicity_score,omitempty"`
	CreatedAt       time.Time                `bson:"created_at"`
}

func encodeMessage(m chat.Message) ([]byte, error) {
	content, err := encodeContent(m.Content)
	if err != nil {
		return nil, err
	}
	original, err := encodeContent(m.OriginalContent)
	if err != nil {
		return nil, err
	}
	return bson.Marshal(messageRecord{
		ID:              m.ID,
		RoomID:          string(m.RoomID),
		SenderID:        m.SenderID,
		Seq:             m.Seq,
		Type:            string(m.Type),
		Content:         content,
		Status:          string(m.Status),
		ReplyToID:       m.ReplyToID,
		ThreadID:        m.ThreadID,
		Mentions:        m.Mentions,
		Attachments:     m.Attachments,
		Reactions:       m.Reactions,
		IsEdited:        m.IsEdited,
		OriginalContent: original,
		EditedAt:        m.EditedAt,
		IsDeleted:       m.IsDeleted,
		DeletedAt:       m.DeletedAt,
		DeletedBy:       m.DeletedBy,
		DeleteReason:    m.DeleteReason,
		IsPinned:        m.IsPinned,
		PinnedBy:        m.PinnedBy,
		SearchContent:   m.SearchContent,
		Language:        m.Language,
		ToxicityScore:   m.ToxicityScore,
		CreatedAt:       m.CreatedAt,
	})
}

func decodeMessage(data []byte) (chat.Message, error) {
	var rec messageRecord
	if err := bson.Unmarshal(data, &rec); err != nil {
		return chat.Message{}, fmt.Errorf("decoding message: %w", err)
	}
	msgType := chat.MessageType(rec.Type)
	content, err := decodeContent(msgType, rec.Content)
	if err != nil {
		return chat.Message{}, fmt.Errorf("decoding message %s: %w", rec.ID, err)
	}
	original, err := decodeContent(msgType, rec.OriginalContent)
	if err != nil {
		return chat.Message{}, fmt.Errorf("decoding original content of %s: %w", rec.ID, err)
	}
	return chat.Message{
		ID:              rec.ID,
		RoomID:          chat.RoomID(rec.RoomID),
		SenderID:        rec.SenderID,
		Seq:             rec.Seq,
		Type:            msgType,
		Content:         content,
		Status:          chat.MessageStatus(rec.Status),
		ReplyToID:       rec.ReplyToID,
		ThreadID:        rec.ThreadID,
		Mentions:        rec.Mentions,
		Attachments:     rec.Attachments,
		Reactions:       rec.Reactions,
		IsEdited:        rec.IsEdited,
		OriginalContent: original,
		EditedAt:        rec.EditedAt,
		IsDeleted:       rec.IsDeleted,
		DeletedAt:       rec.DeletedAt,
		DeletedBy:       rec.DeletedBy,
		DeleteReason:    rec.DeleteReason,
		IsPinned:        rec.IsPinned,
		PinnedBy:        rec.PinnedBy,
		SearchContent:   rec.SearchContent,
		Language:        rec.Language,
		ToxicityScore:   rec.ToxicityScore,
		CreatedAt:       rec.CreatedAt,
	}, nil
}

func encodeContent(c chat.Content) (bson.Raw, error) {
	if c == nil {
		return nil, nil
	}
	data, err := bson.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding %s content: %w", c.Kind(), err)
	}
	return data, nil
}

func decodeContent(t chat.MessageType, raw bson.Raw) (chat.Content, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	switch t {
	case chat.TypeText:
		return unmarshalContent[chat.TextContent](raw)
	case chat.TypeImage, chat.TypeVideo, chat.TypeAudio:
		return unmarshalContent[chat.MediaContent](raw)
	case chat.TypeFile:
		return unmarshalContent[chat.FileContent](raw)
	case chat.TypeLink:
		return unmarshalContent[chat.LinkContent](raw)
	case chat.TypeCode:
		return unmarshalContent[chat.CodeContent](raw)
	case chat.TypeSystem:
		return unmarshalContent[chat.SystemContent](raw)
	case chat.TypeAnnouncement:
		return unmarshalContent[chat.AnnouncementContent](raw)
	case chat.TypePoll:
		return unmarshalContent[chat.PollContent](raw)
	}
	return nil, fmt.Errorf("unknown message type %q", t)
}

func unmarshalContent[T chat.Content](raw bson.Raw) (chat.Content, error) {
	var c T
	if err := bson.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return c, nil
}

func encode(v any) ([]byte, error) {
	return bson.Marshal(v)
}

func decode[T any](data []byte) (T, error) {
	var v T
	err := bson.Unmarshal(data, &v)
	return v, err
}
