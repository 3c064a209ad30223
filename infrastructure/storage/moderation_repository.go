package storage

import (
	stderrors "errors"
	"fmt"
	"log/slog"

	"campus-chat/domain/chat"
	"campus-chat/errors"

	"github.com/dgraph-io/badger/v4"
)

type IModerationRepository interface {
	GetAction(room chat.RoomID, id string) (chat.ModerationAction, error)
	ListActions(room chat.RoomID, userID string) ([]chat.ModerationAction, error)
	GetAppeal(id string) (chat.Appeal, error)
	OpenAppeal(actionID string) (chat.Appeal, bool, error)
}

type ModerationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewModerationRepository(db *badger.DB, log *slog.Logger) *ModerationRepository {
	return &ModerationRepository{db: db, log: log}
}

func (r ModerationRepository) GetAction(room chat.RoomID, id string) (chat.ModerationAction, error) {
	action, err := get[chat.ModerationAction](r.db, actionKey(room, id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return chat.ModerationAction{}, errors.NotFound("action_not_found", fmt.Sprintf("moderation action %s not found", id))
	}
	return action, err
}

// ListActions returns the actions of a room, restricted to one user when userID is set.
func (r ModerationRepository) ListActions(room chat.RoomID, userID string) ([]chat.ModerationAction, error) {
	actions, err := scan[chat.ModerationAction](r.db, roomActionsPrefix(room))
	if err != nil || userID == "" {
		return actions, err
	}
	filtered := actions[:0]
	for _, a := range actions {
		if a.UserID == userID {
			filtered = append(filtered, a)
		}
	}
	return filtered, nil
}

func (r ModerationRepository) GetAppeal(id string) (chat.Appeal, error) {
	appeal, err := get[chat.Appeal](r.db, appealKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return chat.Appeal{}, errors.NotFound("appeal_not_found", fmt.Sprintf("appeal %s not found", id))
	}
	return appeal, err
}

// OpenAppeal returns the pending or escalated appeal filed against an action.
func (r ModerationRepository) OpenAppeal(actionID string) (chat.Appeal, bool, error) {
	appealID, err := pointer(r.db, openAppealKey(actionID))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return chat.Appeal{}, false, nil
	}
	if err != nil {
		return chat.Appeal{}, false, err
	}
	appeal, err := r.GetAppeal(appealID)
	return appeal, err == nil, err
}
