package storage

import (
	stderrors "errors"
	"fmt"
	"log/slog"

	"campus-chat/domain/chat"
	"campus-chat/errors"

	"github.com/dgraph-io/badger/v4"
)

type IFileRepository interface {
	SaveFile(file chat.FileUpload) error
	GetFile(id string) (chat.FileUpload, error)
}

type FileRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewFileRepository(db *badger.DB, log *slog.Logger) *FileRepository {
	return &FileRepository{db: db, log: log}
}

// SaveFile registers an upload record produced by the file service.
func (r FileRepository) SaveFile(file chat.FileUpload) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return set(txn, fileKey(file.ID), file)
	})
}

func (r FileRepository) GetFile(id string) (chat.FileUpload, error) {
	file, err := get[chat.FileUpload](r.db, fileKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return chat.FileUpload{}, errors.NotFound("file_not_found", fmt.Sprintf("file %s not found", id))
	}
	return file, err
}
