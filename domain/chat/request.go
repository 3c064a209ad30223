package chat

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"campus-chat/errors"
)

type CreateRoomRequest struct {
	Name               string              `json:"name" validate:"required,max=100"`
	Description        string              `json:"description" validate:"max=1000"`
	RoomType           RoomType            `json:"roomType" validate:"required,oneof=general course lesson study_group office_hours help_desk announcements private public"`
	CourseID           *string             `json:"courseId,omitempty" validate:"omitempty,max=64"`
	LessonID           *string             `json:"lessonId,omitempty" validate:"omitempty,max=64"`
	IsPrivate          *bool               `json:"isPrivate,omitempty"`
	MaxParticipants    *int                `json:"maxParticipants,omitempty" validate:"omitempty,min=1,max=100000"`
	Password           *string             `json:"password,omitempty" validate:"omitempty,min=4,max=72"`
	Settings           *Settings           `json:"settings,omitempty"`
	ModerationSettings *ModerationSettings `json:"moderationSettings,omitempty"`
}

type JoinRoomRequest struct {
	RoomID     RoomID  `json:"roomId" validate:"required"`
	Password   *string `json:"password,omitempty"`
	InviteCode *string `json:"inviteCode,omitempty"`
}

type SendMessageRequest struct {
	Content     string       `json:"content"`
	MessageType *MessageType `json:"messageType,omitempty"`
	ReplyToID   *string      `json:"replyToId,omitempty"`
	ThreadID    *string      `json:"threadId,omitempty"`
	Mentions    []string     `json:"mentions,omitempty" validate:"max=50"`
	Attachments []string     `json:"attachments,omitempty" validate:"max=10"`
	Language    string       `json:"language,omitempty"`
	Title       string       `json:"title,omitempty"`
	PollOptions []string     `json:"pollOptions,omitempty" validate:"omitempty,min=2,max=10"`
}

func (r SendMessageRequest) Type() MessageType {
	if r.MessageType == nil || *r.MessageType == "" {
		return TypeText
	}
	return *r.MessageType
}

// ValidateLength checks the textual payload against the room limit.
func ValidateLength(text string, maxLength int) error {
	if strings.TrimSpace(text) == "" {
		return errors.Validation("empty_content", "content is empty")
	}
	if maxLength > 0 && utf8.RuneCountInString(text) > maxLength {
		return errors.Validation("content_too_long",
			fmt.Sprintf("content exceeds %d characters", maxLength))
	}
	return nil
}

// BuildContent turns a send request into its tagged variant.
// files holds the records of every attachment, already checked against the room settings.
func BuildContent(req SendMessageRequest, files []FileUpload) (Content, error) {
	switch t := req.Type(); t {
	case TypeText:
		return TextContent{Body: req.Content}, nil
	case TypeCode:
		return CodeContent{Code: req.Content, Language: req.Language}, nil
	case TypeAnnouncement:
		return AnnouncementContent{Body: req.Content}, nil
	case TypeLink:
		u, err := url.ParseRequestURI(strings.TrimSpace(req.Content))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, errors.Validation("invalid_link", "content must be an http(s) url")
		}
		return LinkContent{URL: u.String(), Title: req.Title}, nil
	case TypePoll:
		if len(req.PollOptions) < 2 {
			return nil, errors.Validation("invalid_poll", "a poll needs at least two options")
		}
		return PollContent{Question: req.Content, Options: req.PollOptions}, nil
	case TypeImage, TypeVideo, TypeAudio:
		if len(files) == 0 {
			return nil, errors.Validation("missing_attachment", fmt.Sprintf("%s messages need an attachment", t))
		}
		f := files[0]
		if !strings.HasPrefix(f.MimeType, string(t)+"/") {
			return nil, errors.Validation("attachment_type",
				fmt.Sprintf("attachment %s is %s, not %s", f.ID, f.MimeType, t))
		}
		return MediaContent{MediaType: t, FileID: f.ID, MimeType: f.MimeType, Caption: req.Content}, nil
	case TypeFile:
		if len(files) == 0 {
			return nil, errors.Validation("missing_attachment", "file messages need an attachment")
		}
		f := files[0]
		return FileContent{FileID: f.ID, Name: f.Name, MimeType: f.MimeType, Size: f.Size, Caption: req.Content}, nil
	case TypeSystem:
		return nil, errors.Permission("system_message", "system messages are server generated")
	default:
		return nil, errors.Validation("invalid_type", fmt.Sprintf("unknown message type %q", t))
	}
}

// ValidateContent applies the length rule; attachments may come without a caption.
func ValidateContent(req SendMessageRequest, maxLength int) error {
	t := req.Type()
	if (t.IsMedia() || t == TypeFile) && req.Content == "" {
		return nil
	}
	return ValidateLength(req.Content, maxLength)
}
