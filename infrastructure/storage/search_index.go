//go:generate go run go.uber.org/mock/mockgen -source=search_index.go -destination=../../mocks/mock_search_index.go -package=mocks
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"campus-chat/domain/chat"
	"campus-chat/domain/search"

	"github.com/blugelabs/bluge"
)

const (
	fieldRoom     = "room_id"
	fieldSender   = "sender_id"
	fieldContent  = "content"
	fieldSeq      = "seq"
	fieldLanguage = "language"
)

// SearchHit is one matching message, most relevant first.
type SearchHit struct {
	MessageID string  `json:"messageId"`
	Seq       int64   `json:"seq"`
	Score     float64 `json:"score"`
}

type ISearchIndex interface {
	Index(msg chat.Message) error
	Remove(messageID string) error
	Search(ctx context.Context, room chat.RoomID, q search.Query) ([]SearchHit, error)
}

// SearchIndex keeps a bluge full-text index of the processed SearchContent of messages.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

// Index adds or replaces the document of a message. Deleted messages are removed.
func (s *SearchIndex) Index(msg chat.Message) error {
	if msg.IsDeleted {
		return s.Remove(msg.ID)
	}
	doc := bluge.NewDocument(msg.ID).
		AddField(bluge.NewKeywordField(fieldRoom, string(msg.RoomID)).StoreValue()).
		AddField(bluge.NewKeywordField(fieldSender, msg.SenderID)).
		AddField(bluge.NewTextField(fieldContent, msg.SearchContent)).
		AddField(bluge.NewNumericField(fieldSeq, float64(msg.Seq)).StoreValue())
	if msg.Language != "" {
		doc.AddField(bluge.NewKeywordField(fieldLanguage, msg.Language))
	}
	if err := s.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("indexing message %s: %w", msg.ID, err)
	}
	return nil
}

func (s *SearchIndex) Remove(messageID string) error {
	if err := s.writer.Delete(bluge.Identifier(messageID)); err != nil {
		return fmt.Errorf("removing message %s from index: %w", messageID, err)
	}
	return nil
}

// Search runs the query on one room. Terms are matched on the content,
// sender and language filter on keyword fields.
func (s *SearchIndex) Search(ctx context.Context, room chat.RoomID, q search.Query) ([]SearchHit, error) {
	if q.Empty() {
		return nil, nil
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("opening index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("closing index reader", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(room)).SetField(fieldRoom))
	if terms := strings.TrimSpace(q.Terms); terms != "" {
		query.AddMust(bluge.NewMatchQuery(terms).SetField(fieldContent))
	}
	if q.Sender != "" {
		query.AddMust(bluge.NewTermQuery(q.Sender).SetField(fieldSender))
	}
	if q.Language != "" {
		query.AddMust(bluge.NewTermQuery(q.Language).SetField(fieldLanguage))
	}
	request := bluge.NewTopNSearch(q.Limit, query)

	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("searching room %s: %w", room, err)
	}

	var hits []SearchHit
	match, err := matches.Next()
	for err == nil && match != nil {
		hit := SearchHit{Score: match.Score}
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case fieldSeq:
				if seq, decodeErr := bluge.DecodeNumericFloat64(value); decodeErr == nil {
					hit.Seq = int64(seq)
				}
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		hits = append(hits, hit)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return hits, nil
}
