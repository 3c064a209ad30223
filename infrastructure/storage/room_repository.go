package storage

import (
	stderrors "errors"
	"fmt"
	"log/slog"

	"campus-chat/domain/chat"
	"campus-chat/errors"

	"github.com/dgraph-io/badger/v4"
)

// RoomBatch is every record touched by one room command. It is written in a
// single badger transaction so that a sequence, its message and the counters
// derived from it are never observed apart.
type RoomBatch struct {
	Room         *chat.Room
	Participants []chat.Participant
	Messages     []chat.Message
	Threads      []chat.Thread
	Actions      []chat.ModerationAction
	Appeals      []chat.Appeal
}

func (b RoomBatch) Empty() bool {
	return b.Room == nil && len(b.Participants) == 0 && len(b.Messages) == 0 &&
		len(b.Threads) == 0 && len(b.Actions) == 0 && len(b.Appeals) == 0
}

type IRoomRepository interface {
	CreateRoom(room chat.Room, owner chat.Participant) error
	GetRoom(id chat.RoomID) (chat.Room, error)
	ListRooms() ([]chat.Room, error)
	ListParticipants(id chat.RoomID) ([]chat.Participant, error)
	Commit(batch RoomBatch) error
}

type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) *RoomRepository {
	return &RoomRepository{db: db, log: log}
}

// CreateRoom stores a new room with its owner. An existing id is a conflict.
func (r RoomRepository) CreateRoom(room chat.Room, owner chat.Participant) error {
	roomBytes, err := encode(room)
	if err != nil {
		return err
	}
	ownerBytes, err := encode(owner)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(roomKey(room.ID))
		switch {
		case err == nil:
			return errors.Conflict("room_exists", fmt.Sprintf("room %s already exists", room.ID))
		case !stderrors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err := txn.Set(roomKey(room.ID), roomBytes); err != nil {
			return err
		}
		return txn.Set(participantKey(room.ID, owner.UserID), ownerBytes)
	})
}

func (r RoomRepository) GetRoom(id chat.RoomID) (chat.Room, error) {
	var room chat.Room
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			room, err = decode[chat.Room](val)
			return err
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return chat.Room{}, errors.NotFound("room_not_found", fmt.Sprintf("room %s does not exist", id))
	}
	return room, err
}

func (r RoomRepository) ListRooms() ([]chat.Room, error) {
	return scan[chat.Room](r.db, []byte(roomPrefix))
}

func (r RoomRepository) ListParticipants(id chat.RoomID) ([]chat.Participant, error) {
	return scan[chat.Participant](r.db, roomParticipantsPrefix(id))
}

// Commit writes a batch atomically.
func (r RoomRepository) Commit(batch RoomBatch) error {
	if batch.Empty() {
		return nil
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		if batch.Room != nil {
			if err := set(txn, roomKey(batch.Room.ID), *batch.Room); err != nil {
				return err
			}
		}
		for _, p := range batch.Participants {
			if err := set(txn, participantKey(p.RoomID, p.UserID), p); err != nil {
				return err
			}
		}
		for _, m := range batch.Messages {
			data, err := encodeMessage(m)
			if err != nil {
				return err
			}
			key := messageKey(m.RoomID, m.Seq)
			if err := txn.Set(key, data); err != nil {
				return err
			}
			if err := txn.Set(messageIDKey(m.ID), key); err != nil {
				return err
			}
		}
		for _, t := range batch.Threads {
			if err := set(txn, threadKey(t.ID), t); err != nil {
				return err
			}
			if err := txn.Set(threadParentKey(t.ParentMessageID), []byte(t.ID)); err != nil {
				return err
			}
		}
		for _, a := range batch.Actions {
			if err := set(txn, actionKey(a.RoomID, a.ID), a); err != nil {
				return err
			}
		}
		for _, a := range batch.Appeals {
			if err := set(txn, appealKey(a.ID), a); err != nil {
				return err
			}
			if a.Status.Open() {
				if err := txn.Set(openAppealKey(a.ActionID), []byte(a.ID)); err != nil {
					return err
				}
			} else if err := txn.Delete(openAppealKey(a.ActionID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.log.Error("room batch commit failed", "error", err)
		return errors.Internal("persisting room state", err)
	}
	return nil
}

func set(txn *badger.Txn, key []byte, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// scan decodes every value under prefix in key order.
func scan[T any](db *badger.DB, prefix []byte) ([]T, error) {
	var out []T
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				v, err := decode[T](val)
				if err != nil {
					return err
				}
				out = append(out, v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}
