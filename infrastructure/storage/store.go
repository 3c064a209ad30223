package storage

import (
	"context"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// Repositories groups the badger backed repositories handed to the runtime.
type Repositories struct {
	Rooms      IRoomRepository
	Messages   IMessageRepository
	Threads    IThreadRepository
	Moderation IModerationRepository
	Files      IFileRepository
}

func NewRepositories(db *badger.DB, log *slog.Logger, historyLimit int) Repositories {
	return Repositories{
		Rooms:      NewRoomRepository(db, log),
		Messages:   NewMessageRepository(db, log, historyLimit),
		Threads:    NewThreadRepository(db, log),
		Moderation: NewModerationRepository(db, log),
		Files:      NewFileRepository(db, log),
	}
}

// BadgerOptions mirrors the log level of the service in badger's own logger.
func BadgerOptions(ctx context.Context, path string, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(path)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
