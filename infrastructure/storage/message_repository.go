package storage

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"campus-chat/domain/chat"
	"campus-chat/errors"

	"github.com/dgraph-io/badger/v4"
)

type IMessageRepository interface {
	GetMessage(room chat.RoomID, id string) (chat.Message, error)
	GetMessages(room chat.RoomID, cursor *string, limit int) ([]chat.Message, *string, error)
	MessagesAfter(room chat.RoomID, afterSeq int64, limit int) ([]chat.Message, error)
	CountLiveAfter(room chat.RoomID, afterSeq int64) (int64, error)
	LastSeq(room chat.RoomID) (int64, error)
}

type MessageRepository struct {
	db           *badger.DB
	log          *slog.Logger
	defaultLimit int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, defaultLimit int) *MessageRepository {
	return &MessageRepository{db: db, log: log, defaultLimit: defaultLimit}
}

// GetMessage resolves a message id through its pointer key. A message of
// another room is reported as missing.
func (m MessageRepository) GetMessage(room chat.RoomID, id string) (chat.Message, error) {
	var msg chat.Message
	err := m.db.View(func(txn *badger.Txn) error {
		ptr, err := txn.Get(messageIDKey(id))
		if err != nil {
			return err
		}
		key, err := ptr.ValueCopy(nil)
		if err != nil {
			return err
		}
		if !strings.HasPrefix(string(key), string(roomMessagesPrefix(room))) {
			return badger.ErrKeyNotFound
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			msg, err = decodeMessage(val)
			return err
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return chat.Message{}, errors.NotFound("message_not_found", fmt.Sprintf("message %s not found", id))
	}
	return msg, err
}

// GetMessages pages backward from the newest message. The cursor is the
// padded sequence of the last message returned; a nil next cursor means the
// history is exhausted.
func (m MessageRepository) GetMessages(room chat.RoomID, cursor *string, limit int) ([]chat.Message, *string, error) {
	if limit <= 0 {
		limit = m.defaultLimit
	}
	var messages []chat.Message
	var lastKey string
	var more bool
	prefix := roomMessagesPrefix(room)

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Start after the newest possible key and walk back
			seekKey = append(append([]byte{}, prefix...), []byte(maxSeq)...)
		default:
			seekKey = append(append([]byte{}, prefix...), []byte(*cursor)...)
		}
		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == string(seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				more = true
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			err := item.Value(func(val []byte) error {
				msg, err := decodeMessage(val)
				if err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if !more {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// MessagesAfter returns up to limit messages with a sequence above afterSeq, ascending.
func (m MessageRepository) MessagesAfter(room chat.RoomID, afterSeq int64, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = m.defaultLimit
	}
	var messages []chat.Message
	err := m.forwardFrom(room, afterSeq, func(msg chat.Message) bool {
		messages = append(messages, msg)
		return len(messages) < limit
	})
	return messages, err
}

// CountLiveAfter counts the non deleted messages above afterSeq.
func (m MessageRepository) CountLiveAfter(room chat.RoomID, afterSeq int64) (int64, error) {
	var count int64
	err := m.forwardFrom(room, afterSeq, func(msg chat.Message) bool {
		if !msg.IsDeleted {
			count++
		}
		return true
	})
	return count, err
}

// LastSeq reads the highest persisted sequence of a room, zero when empty.
func (m MessageRepository) LastSeq(room chat.RoomID) (int64, error) {
	var seq int64
	prefix := roomMessagesPrefix(room)
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		it.Seek(append(append([]byte{}, prefix...), []byte(maxSeq)...))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		var err error
		seq, err = seqFromKey(it.Item().Key())
		return err
	})
	return seq, err
}

func (m MessageRepository) forwardFrom(room chat.RoomID, afterSeq int64, visit func(chat.Message) bool) error {
	prefix := roomMessagesPrefix(room)
	return m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(messageKey(room, afterSeq+1)); it.ValidForPrefix(prefix); it.Next() {
			var msg chat.Message
			err := it.Item().Value(func(val []byte) error {
				var err error
				msg, err = decodeMessage(val)
				return err
			})
			if err != nil {
				return err
			}
			if !visit(msg) {
				return nil
			}
		}
		return nil
	})
}
