// Package notification decides, for every accepted message, who is told
// about it, on which channel and when.
package notification

import (
	"strings"
	"time"

	"campus-chat/domain/chat"
)

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
)

type Timing string

const (
	Instant Timing = "instant"
	Digest  Timing = "digest"
)

type Reason string

const (
	ReasonMention Reason = "mention"
	ReasonKeyword Reason = "keyword"
	ReasonMessage Reason = "message"
)

// Delivery is one notification for one recipient.
type Delivery struct {
	UserID    string      `json:"userId"`
	RoomID    chat.RoomID `json:"roomId"`
	MessageID string      `json:"messageId"`
	SenderID  string      `json:"senderId"`
	Preview   string      `json:"preview"`
	Channel   Channel     `json:"channel"`
	Timing    Timing      `json:"timing"`
	Reason    Reason      `json:"reason"`
	DeliverAt time.Time   `json:"deliverAt"`
}

// Recipient is a roster entry with its connectivity at routing time.
type Recipient struct {
	Participant chat.Participant
	Online      bool
}

// Router is a pure decision function over a message and its audience.
type Router struct {
	digestInterval time.Duration
	previewLength  int
}

func NewRouter(digestInterval time.Duration, previewLength int) Router {
	return Router{digestInterval: digestInterval, previewLength: previewLength}
}

// Route returns the deliveries for msg. The sender, banned or departed
// members and members with level none are skipped.
func (r Router) Route(msg chat.Message, senderRole chat.Role, recipients []Recipient, now time.Time) []Delivery {
	var deliveries []Delivery
	broadcast := msg.MentionsEveryone() && senderRole.Can(chat.PermMentionEveryone)

	for _, rcpt := range recipients {
		p := rcpt.Participant
		settings := p.Notifications
		if p.UserID == msg.SenderID || p.IsBanned() || p.Status == chat.StatusInactive ||
			settings.Level == chat.NotifyNone {
			continue
		}
		base := Delivery{
			UserID:    p.UserID,
			RoomID:    msg.RoomID,
			MessageID: msg.ID,
			SenderID:  msg.SenderID,
			Preview:   r.preview(msg),
		}
		quiet, quietEnd := QuietUntil(settings.QuietHours, now)

		if reason, ok := r.highlighted(msg, settings, p.UserID, broadcast); ok {
			base.Reason = reason
			deliveries = append(deliveries, base.with(ChannelInApp, Instant, now))
			if !rcpt.Online && settings.Push {
				if quiet {
					deliveries = append(deliveries, base.with(ChannelPush, Digest, quietEnd))
				} else {
					deliveries = append(deliveries, base.with(ChannelPush, Instant, now))
				}
			}
			continue
		}

		if rcpt.Online || settings.Level != chat.NotifyAll || !categoryEnabled(msg, settings.Categories) {
			continue
		}
		base.Reason = ReasonMessage
		switch {
		case quiet:
			deliveries = append(deliveries, base.with(digestChannel(settings), Digest, quietEnd))
		case settings.DigestOnly:
			deliveries = append(deliveries, base.with(ChannelEmail, Digest, r.nextDigest(now)))
		case settings.Push:
			deliveries = append(deliveries, base.with(ChannelPush, Instant, now))
		case settings.InApp:
			deliveries = append(deliveries, base.with(ChannelInApp, Instant, now))
		}
	}
	return deliveries
}

func (r Router) highlighted(msg chat.Message, settings chat.NotificationSettings, userID string, broadcast bool) (Reason, bool) {
	if settings.Mentions && (broadcast || msg.MentionsUser(userID)) {
		return ReasonMention, true
	}
	text := msg.SearchContent
	for _, kw := range settings.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return ReasonKeyword, true
		}
	}
	return "", false
}

func (r Router) nextDigest(now time.Time) time.Time {
	if r.digestInterval <= 0 {
		return now
	}
	return now.Truncate(r.digestInterval).Add(r.digestInterval)
}

func (r Router) preview(msg chat.Message) string {
	if msg.Content == nil {
		return ""
	}
	text := msg.Content.Text()
	if r.previewLength > 0 {
		if runes := []rune(text); len(runes) > r.previewLength {
			return string(runes[:r.previewLength]) + "…"
		}
	}
	return text
}

func categoryEnabled(msg chat.Message, c chat.NotificationCategories) bool {
	switch {
	case msg.Type == chat.TypeAnnouncement:
		return c.Announcements
	case msg.ThreadID != nil:
		return c.ThreadReplies
	default:
		return c.Messages
	}
}

func digestChannel(s chat.NotificationSettings) Channel {
	if s.Email || s.DigestOnly {
		return ChannelEmail
	}
	return ChannelInApp
}

func (d Delivery) with(channel Channel, timing Timing, at time.Time) Delivery {
	d.Channel = channel
	d.Timing = timing
	d.DeliverAt = at
	return d
}
