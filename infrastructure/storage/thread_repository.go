package storage

import (
	stderrors "errors"
	"fmt"
	"log/slog"

	"campus-chat/domain/chat"
	"campus-chat/errors"

	"github.com/dgraph-io/badger/v4"
)

type IThreadRepository interface {
	GetThread(id string) (chat.Thread, error)
	ThreadOf(parentMessageID string) (chat.Thread, bool, error)
}

type ThreadRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewThreadRepository(db *badger.DB, log *slog.Logger) *ThreadRepository {
	return &ThreadRepository{db: db, log: log}
}

func (r ThreadRepository) GetThread(id string) (chat.Thread, error) {
	thread, err := get[chat.Thread](r.db, threadKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return chat.Thread{}, errors.NotFound("thread_not_found", fmt.Sprintf("thread %s not found", id))
	}
	return thread, err
}

// ThreadOf returns the thread hanging off a parent message, if any.
func (r ThreadRepository) ThreadOf(parentMessageID string) (chat.Thread, bool, error) {
	threadID, err := pointer(r.db, threadParentKey(parentMessageID))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return chat.Thread{}, false, nil
	}
	if err != nil {
		return chat.Thread{}, false, err
	}
	thread, err := r.GetThread(threadID)
	return thread, err == nil, err
}

// get decodes the single record stored under key.
func get[T any](db *badger.DB, key []byte) (T, error) {
	var v T
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, err = decode[T](val)
			return err
		})
	})
	return v, err
}

// pointer reads a key whose value is the id of another record.
func pointer(db *badger.DB, key []byte) (string, error) {
	var id string
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	return id, err
}
