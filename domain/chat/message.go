package chat

import (
	"sort"
	"strings"
	"time"

	"campus-chat/errors"
)

type MessageType string

const (
	TypeText         MessageType = "text"
	TypeImage        MessageType = "image"
	TypeVideo        MessageType = "video"
	TypeAudio        MessageType = "audio"
	TypeFile         MessageType = "file"
	TypeLink         MessageType = "link"
	TypeCode         MessageType = "code"
	TypeSystem       MessageType = "system"
	TypeAnnouncement MessageType = "announcement"
	TypePoll         MessageType = "poll"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeVideo, TypeAudio, TypeFile, TypeLink,
		TypeCode, TypeSystem, TypeAnnouncement, TypePoll:
		return true
	}
	return false
}

func (t MessageType) IsMedia() bool {
	return t == TypeImage || t == TypeVideo || t == TypeAudio
}

type MessageStatus string

const (
	MessageSending   MessageStatus = "sending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
	MessageDeleted   MessageStatus = "deleted"
)

// Content is a tagged variant keyed by MessageType.
type Content interface {
	Kind() MessageType
	// Text returns the searchable text of the payload.
	Text() string
}

type TextContent struct {
	Body string `json:"text" bson:"text"`
}

type MediaContent struct {
	MediaType MessageType `json:"mediaType" bson:"media_type"`
	FileID    string      `json:"fileId" bson:"file_id"`
	MimeType  string      `json:"mimeType" bson:"mime_type"`
	Caption   string      `json:"caption,omitempty" bson:"caption,omitempty"`
}

type FileContent struct {
	FileID   string `json:"fileId" bson:"file_id"`
	Name     string `json:"name" bson:"name"`
	MimeType string `json:"mimeType" bson:"mime_type"`
	Size     int64  `json:"size" bson:"size"`
	Caption  string `json:"caption,omitempty" bson:"caption,omitempty"`
}

type LinkContent struct {
	URL   string `json:"url" bson:"url"`
	Title string `json:"title,omitempty" bson:"title,omitempty"`
}

type CodeContent struct {
	Code     string `json:"code" bson:"code"`
	Language string `json:"language,omitempty" bson:"language,omitempty"`
}

type SystemContent struct {
	Body string `json:"text" bson:"text"`
}

type AnnouncementContent struct {
	Body string `json:"text" bson:"text"`
}

type PollContent struct {
	Question string   `json:"question" bson:"question"`
	Options  []string `json:"options" bson:"options"`
}

func (c TextContent) Kind() MessageType         { return TypeText }
func (c TextContent) Text() string              { return c.Body }
func (c MediaContent) Kind() MessageType        { return c.MediaType }
func (c MediaContent) Text() string             { return c.Caption }
func (c FileContent) Kind() MessageType         { return TypeFile }
func (c FileContent) Text() string              { return strings.TrimSpace(c.Name + " " + c.Caption) }
func (c LinkContent) Kind() MessageType         { return TypeLink }
func (c LinkContent) Text() string              { return strings.TrimSpace(c.Title + " " + c.URL) }
func (c CodeContent) Kind() MessageType         { return TypeCode }
func (c CodeContent) Text() string              { return c.Code }
func (c SystemContent) Kind() MessageType       { return TypeSystem }
func (c SystemContent) Text() string            { return c.Body }
func (c AnnouncementContent) Kind() MessageType { return TypeAnnouncement }
func (c AnnouncementContent) Text() string      { return c.Body }
func (c PollContent) Kind() MessageType         { return TypePoll }
func (c PollContent) Text() string {
	return strings.TrimSpace(c.Question + " " + strings.Join(c.Options, " "))
}

type Reaction struct {
	Users []string `json:"users" bson:"users"`
	Count int      `json:"count" bson:"count"`
}

type Message struct {
	ID              string              `json:"id"`
	RoomID          RoomID              `json:"roomId"`
	SenderID        string              `json:"senderId"`
	Seq             int64               `json:"seq"`
	Type            MessageType         `json:"messageType"`
	Content         Content             `json:"content"`
	Status          MessageStatus       `json:"status"`
	ReplyToID       *string             `json:"replyToId,omitempty"`
	ThreadID        *string             `json:"threadId,omitempty"`
	Mentions        []string            `json:"mentions,omitempty"`
	Attachments     []string            `json:"attachments,omitempty"`
	Reactions       map[string]Reaction `json:"reactions,omitempty"`
	IsEdited        bool                `json:"isEdited"`
	OriginalContent Content             `json:"originalContent,omitempty"`
	EditedAt        *time.Time          `json:"editedAt,omitempty"`
	IsDeleted       bool                `json:"isDeleted"`
	DeletedAt       *time.Time          `json:"deletedAt,omitempty"`
	DeletedBy       string              `json:"deletedBy,omitempty"`
	DeleteReason    string              `json:"deleteReason,omitempty"`
	IsPinned        bool                `json:"isPinned"`
	PinnedBy        string              `json:"pinnedBy,omitempty"`
	SearchContent   string              `json:"searchContent"`
	Language        string              `json:"language,omitempty"`
	ToxicityScore   *float64            `json:"toxicityScore,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// Edit replaces the content; the original is captured on the first edit only.
func (m *Message) Edit(content Content, at time.Time) error {
	if m.IsDeleted {
		return errors.Conflict("message_deleted", "cannot edit a deleted message")
	}
	if content.Kind() != m.Type {
		return errors.Validation("type_mismatch", "an edit cannot change the message type")
	}
	if !m.IsEdited {
		m.OriginalContent = m.Content
		m.IsEdited = true
	}
	m.Content = content
	m.EditedAt = &at
	m.SearchContent = SearchText(content)
	return nil
}

// SoftDelete flags the message; its sequence number is kept.
func (m *Message) SoftDelete(by, reason string, at time.Time) error {
	if m.IsDeleted {
		return errors.Conflict("message_deleted", "message already deleted")
	}
	m.IsDeleted = true
	m.Status = MessageDeleted
	m.DeletedAt = &at
	m.DeletedBy = by
	m.DeleteReason = reason
	return nil
}

func (m *Message) SetPinned(pinned bool, by string) error {
	if m.IsDeleted {
		return errors.Conflict("message_deleted", "cannot pin a deleted message")
	}
	if m.IsPinned == pinned {
		return nil
	}
	m.IsPinned = pinned
	m.PinnedBy = ""
	if pinned {
		m.PinnedBy = by
	}
	return nil
}

// React adds userID to the emoji set; repeated reactions are ignored.
func (m *Message) React(emoji, userID string) (Reaction, bool, error) {
	if m.IsDeleted {
		return Reaction{}, false, errors.Conflict("message_deleted", "cannot react to a deleted message")
	}
	if strings.TrimSpace(emoji) == "" {
		return Reaction{}, false, errors.Validation("empty_emoji", "emoji is required")
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string]Reaction)
	}
	r := m.Reactions[emoji]
	idx := sort.SearchStrings(r.Users, userID)
	if idx < len(r.Users) && r.Users[idx] == userID {
		return r, false, nil
	}
	r.Users = append(r.Users, "")
	copy(r.Users[idx+1:], r.Users[idx:])
	r.Users[idx] = userID
	r.Count = len(r.Users)
	m.Reactions[emoji] = r
	return r, true, nil
}

func (m *Message) Unreact(emoji, userID string) (Reaction, bool) {
	r, ok := m.Reactions[emoji]
	if !ok {
		return Reaction{}, false
	}
	idx := sort.SearchStrings(r.Users, userID)
	if idx >= len(r.Users) || r.Users[idx] != userID {
		return r, false
	}
	r.Users = append(r.Users[:idx], r.Users[idx+1:]...)
	r.Count = len(r.Users)
	if r.Count == 0 {
		delete(m.Reactions, emoji)
	} else {
		m.Reactions[emoji] = r
	}
	return r, true
}

// MentionsUser reports a direct or broadcast mention of userID.
func (m Message) MentionsUser(userID string) bool {
	for _, mention := range m.Mentions {
		if mention == userID {
			return true
		}
	}
	return false
}

func (m Message) MentionsEveryone() bool {
	for _, mention := range m.Mentions {
		if mention == MentionEveryone || mention == MentionHere {
			return true
		}
	}
	return false
}

const (
	MentionEveryone = "@everyone"
	MentionHere     = "@here"
)

// SearchText produces the normalized text consumed by the search index.
func SearchText(c Content) string {
	if c == nil {
		return ""
	}
	return strings.Join(strings.Fields(strings.ToLower(c.Text())), " ")
}

// MessagePage is one page of history. A nil NextCursor means the history is exhausted.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor *string   `json:"nextCursor,omitempty"`
	HasMore    bool      `json:"hasMore"`
}
