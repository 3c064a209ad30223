package storage

import (
	"fmt"
	"strings"

	"campus-chat/domain/chat"

	"github.com/mama165/sdk-go/database"
)

// InspectMapper renders badger records for the debug inspector.
func InspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, messagePrefix):
		row.Type = "MESSAGE"
		msg, err := decodeMessage(val)
		if err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Detail = fmt.Sprintf("#%d %s: %s", msg.Seq, msg.SenderID, msg.SearchContent)
		if msg.IsDeleted {
			row.Detail = fmt.Sprintf("#%d deleted by %s (%s)", msg.Seq, msg.DeletedBy, msg.DeleteReason)
		}
		if msg.ToxicityScore != nil {
			row.Scores = fmt.Sprintf("toxicity:%.2f", *msg.ToxicityScore)
		}
	case strings.HasPrefix(key, roomPrefix):
		row.Type = "ROOM"
		if room, err := decode[chat.Room](val); err == nil {
			row.Detail = fmt.Sprintf("%s (%s) seq=%d members=%d/%d",
				room.Name, room.Status, room.LastSeq, room.ParticipantCount, room.MaxParticipants)
		}
	case strings.HasPrefix(key, participantPrefix):
		row.Type = "PARTICIPANT"
		if p, err := decode[chat.Participant](val); err == nil {
			row.Detail = fmt.Sprintf("%s %s read=%d", p.UserID, p.Role, p.LastReadSeq)
		}
	case strings.HasPrefix(key, threadPrefix):
		row.Type = "THREAD"
	case strings.HasPrefix(key, actionPrefix):
		row.Type = "MODERATION"
		if a, err := decode[chat.ModerationAction](val); err == nil {
			row.Detail = fmt.Sprintf("%s %s: %s", a.Type, a.UserID, a.Reason)
		}
	case strings.HasPrefix(key, appealPrefix):
		row.Type = "APPEAL"
	case strings.HasPrefix(key, filePrefix):
		row.Type = "FILE"
	default:
		row.Type = "INDEX"
	}
	return row
}
