// Package chat contains the core concepts of the classroom messaging system.
// No runtime, network, or storage logic should be added here.
package chat

import (
	"fmt"
	"strings"
	"time"

	"campus-chat/errors"
)

type RoomID string

type RoomType string

const (
	RoomGeneral       RoomType = "general"
	RoomCourse        RoomType = "course"
	RoomLesson        RoomType = "lesson"
	RoomStudyGroup    RoomType = "study_group"
	RoomOfficeHours   RoomType = "office_hours"
	RoomHelpDesk      RoomType = "help_desk"
	RoomAnnouncements RoomType = "announcements"
	RoomPrivate       RoomType = "private"
	RoomPublic        RoomType = "public"
)

type RoomStatus string

const (
	RoomActive      RoomStatus = "active"
	RoomInactive    RoomStatus = "inactive"
	RoomArchived    RoomStatus = "archived"
	RoomLocked      RoomStatus = "locked"
	RoomMaintenance RoomStatus = "maintenance"
)

type Settings struct {
	AllowFileSharing bool          `json:"allowFileSharing" bson:"allow_file_sharing"`
	AllowedFileTypes []string      `json:"allowedFileTypes" bson:"allowed_file_types" validate:"max=50,dive,mimepattern"`
	MaxFileSize      int64         `json:"maxFileSize" bson:"max_file_size" validate:"gte=0"`
	AllowReactions   bool          `json:"allowReactions" bson:"allow_reactions"`
	AllowThreads     bool          `json:"allowThreads" bson:"allow_threads"`
	AllowMentions    bool          `json:"allowMentions" bson:"allow_mentions"`
	MaxMessageLength int           `json:"maxMessageLength" bson:"max_message_length" validate:"gt=0,lte=20000"`
	RetentionDays    int           `json:"retentionDays" bson:"retention_days" validate:"gte=0"`
	SlowModeDelay    time.Duration `json:"slowModeDelay" bson:"slow_mode_delay" validate:"gte=0"`
	AllowAnonymous   bool          `json:"allowAnonymous" bson:"allow_anonymous"`
}

type ModerationSettings struct {
	AutoModeration       bool          `json:"autoModeration" bson:"auto_moderation"`
	WordBlacklist        []string      `json:"wordBlacklist" bson:"word_blacklist" validate:"max=1000,dive,required"`
	SpamThreshold        int           `json:"spamThreshold" bson:"spam_threshold" validate:"gte=0"`
	ToxicityThreshold    float64       `json:"toxicityThreshold" bson:"toxicity_threshold" validate:"gte=0,lte=1"`
	MaxMessagesPerMinute int           `json:"maxMessagesPerMinute" bson:"max_messages_per_minute" validate:"gte=0"`
	MuteDuration         time.Duration `json:"muteDuration" bson:"mute_duration" validate:"gte=0"`
	BanDuration          time.Duration `json:"banDuration" bson:"ban_duration" validate:"gte=0"`
	StrikesBeforeMute    int           `json:"strikesBeforeMute" bson:"strikes_before_mute" validate:"gte=0"`
	StrikesBeforeBan     int           `json:"strikesBeforeBan" bson:"strikes_before_ban" validate:"gte=0"`
}

func DefaultSettings() Settings {
	return Settings{
		AllowFileSharing: true,
		AllowedFileTypes: []string{"image/*", "application/pdf", "text/plain"},
		MaxFileSize:      10 << 20,
		AllowReactions:   true,
		AllowThreads:     true,
		AllowMentions:    true,
		MaxMessageLength: 2000,
		RetentionDays:    365,
	}
}

func DefaultModerationSettings() ModerationSettings {
	return ModerationSettings{
		AutoModeration:       true,
		SpamThreshold:        3,
		ToxicityThreshold:    0.8,
		MaxMessagesPerMinute: 30,
		MuteDuration:         10 * time.Minute,
		BanDuration:          24 * time.Hour,
		StrikesBeforeMute:    2,
		StrikesBeforeBan:     4,
	}
}

type Room struct {
	ID                 RoomID             `json:"id" bson:"_id"`
	Name               string             `json:"name" bson:"name"`
	Description        string             `json:"description,omitempty" bson:"description"`
	Type               RoomType           `json:"roomType" bson:"type"`
	Status             RoomStatus         `json:"status" bson:"status"`
	CourseID           *string            `json:"courseId,omitempty" bson:"course_id,omitempty"`
	LessonID           *string            `json:"lessonId,omitempty" bson:"lesson_id,omitempty"`
	IsPrivate          bool               `json:"isPrivate" bson:"is_private"`
	PasswordHash       string             `json:"-" bson:"password_hash,omitempty"`
	InviteCode         string             `json:"-" bson:"invite_code,omitempty"`
	MaxParticipants    int                `json:"maxParticipants" bson:"max_participants"`
	ParticipantCount   int                `json:"participantCount" bson:"participant_count"`
	MessageCount       int64              `json:"messageCount" bson:"message_count"`
	LastSeq            int64              `json:"lastSeq" bson:"last_seq"`
	LastMessageID      string             `json:"lastMessageId,omitempty" bson:"last_message_id,omitempty"`
	LastMessageAt      *time.Time         `json:"lastMessageAt,omitempty" bson:"last_message_at,omitempty"`
	LastMessageBy      string             `json:"lastMessageBy,omitempty" bson:"last_message_by,omitempty"`
	CreatedBy          string             `json:"createdBy" bson:"created_by"`
	CreatedAt          time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt          time.Time          `json:"updatedAt" bson:"updated_at"`
	Settings           Settings           `json:"settings" bson:"settings"`
	ModerationSettings ModerationSettings `json:"moderationSettings" bson:"moderation_settings"`
}

// IsJoinable reports whether new members may enter.
func (r Room) IsJoinable() error {
	switch r.Status {
	case RoomActive, RoomInactive:
		return nil
	default:
		return errors.Permission("room_unavailable", fmt.Sprintf("room is %s", r.Status))
	}
}

// AcceptsMessages reports whether the pipeline may append to the room.
func (r Room) AcceptsMessages() error {
	if r.Status != RoomActive && r.Status != RoomInactive {
		return errors.Permission("room_unavailable", fmt.Sprintf("room is %s", r.Status))
	}
	return nil
}

// Advance records an accepted message and returns its sequence number.
func (r *Room) Advance(messageID, senderID string, at time.Time) int64 {
	r.LastSeq++
	r.MessageCount++
	r.LastMessageID = messageID
	r.LastMessageAt = &at
	r.LastMessageBy = senderID
	r.UpdatedAt = at
	if r.Status == RoomInactive {
		r.Status = RoomActive
	}
	return r.LastSeq
}

// Seated counts the participants holding a seat: everyone who has not left
// and is not banned. Muted members keep their seat.
func Seated(participants map[string]*Participant) int {
	count := 0
	for _, p := range participants {
		if p.Status != StatusInactive && !p.IsBanned() {
			count++
		}
	}
	return count
}

// HasSeat reports whether one more participant fits in the room.
func (r Room) HasSeat(participants map[string]*Participant) bool {
	return r.MaxParticipants <= 0 || Seated(participants) < r.MaxParticipants
}

// Recount enforces participantCount == number of active participants.
func (r *Room) Recount(participants map[string]*Participant) {
	count := 0
	for _, p := range participants {
		if p.Status == StatusActive {
			count++
		}
	}
	r.ParticipantCount = count
}

// AllowsFileType matches a MIME type against AllowedFileTypes, supporting "type/*" patterns.
func (s Settings) AllowsFileType(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	for _, pattern := range s.AllowedFileTypes {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		switch {
		case pattern == "*/*" || pattern == mime:
			return true
		case strings.HasSuffix(pattern, "/*") &&
			strings.HasPrefix(mime, strings.TrimSuffix(pattern, "*")):
			return true
		}
	}
	return false
}
