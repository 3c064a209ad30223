package sink

import (
	"context"
	"fmt"
	"log/slog"

	"campus-chat/contract"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/infrastructure/storage"
)

var _ contract.EventSink = SearchSink{}

// SearchSink keeps the full-text index in step with the message stream.
type SearchSink struct {
	index storage.ISearchIndex
	log   *slog.Logger
}

func NewSearchSink(index storage.ISearchIndex, log *slog.Logger) SearchSink {
	return SearchSink{index: index, log: log}
}

func (s SearchSink) Consume(_ context.Context, e event.ChatEvent) error {
	switch e.Name {
	case event.MessageNew, event.MessageEdit:
		msg, ok := e.Data.(chat.Message)
		if !ok {
			return fmt.Errorf("%s carries %T", e.Name, e.Data)
		}
		return s.index.Index(msg)
	case event.MessageDelete:
		deleted, ok := e.Data.(event.MessageDeleted)
		if !ok {
			return fmt.Errorf("%s carries %T", e.Name, e.Data)
		}
		return s.index.Remove(deleted.MessageID)
	default:
		return nil
	}
}
