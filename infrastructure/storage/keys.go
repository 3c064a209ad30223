package storage

import (
	"fmt"
	"strconv"
	"strings"

	"campus-chat/domain/chat"
)

// Key layout. Sequences are zero padded to 19 digits so that the
// lexicographical order of badger keys is the numeric order.
//
//	room:{room}                       room record
//	participant:{room}:{user}         roster entry
//	msg:{room}:{seq}                  message record
//	msgid:{message}                   -> msg key
//	thread:{thread}                   thread record
//	thread_parent:{message}           -> thread id
//	modaction:{room}:{action}         moderation action
//	appeal:{appeal}                   appeal record
//	appeal_open:{action}              -> open appeal id
//	file:{file}                       file upload record
const (
	roomPrefix         = "room:"
	participantPrefix  = "participant:"
	messagePrefix      = "msg:"
	messageIDPrefix    = "msgid:"
	threadPrefix       = "thread:"
	threadParentPrefix = "thread_parent:"
	actionPrefix       = "modaction:"
	appealPrefix       = "appeal:"
	openAppealPrefix   = "appeal_open:"
	filePrefix         = "file:"

	maxSeq = "9999999999999999999"
)

func roomKey(id chat.RoomID) []byte {
	return []byte(roomPrefix + string(id))
}

func participantKey(room chat.RoomID, userID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", participantPrefix, room, userID))
}

func roomParticipantsPrefix(room chat.RoomID) []byte {
	return []byte(participantPrefix + string(room) + ":")
}

func messageKey(room chat.RoomID, seq int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d", messagePrefix, room, seq))
}

func roomMessagesPrefix(room chat.RoomID) []byte {
	return []byte(messagePrefix + string(room) + ":")
}

func messageIDKey(id string) []byte {
	return []byte(messageIDPrefix + id)
}

func threadKey(id string) []byte {
	return []byte(threadPrefix + id)
}

func threadParentKey(messageID string) []byte {
	return []byte(threadParentPrefix + messageID)
}

func actionKey(room chat.RoomID, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", actionPrefix, room, id))
}

func roomActionsPrefix(room chat.RoomID) []byte {
	return []byte(actionPrefix + string(room) + ":")
}

func appealKey(id string) []byte {
	return []byte(appealPrefix + id)
}

func openAppealKey(actionID string) []byte {
	return []byte(openAppealPrefix + actionID)
}

func fileKey(id string) []byte {
	return []byte(filePrefix + id)
}

// seqFromKey extracts the sequence of a msg key.
func seqFromKey(key []byte) (int64, error) {
	s := string(key)
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return 0, fmt.Errorf("malformed message key %q", s)
	}
	return strconv.ParseInt(s[idx+1:], 10, 64)
}
