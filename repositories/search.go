//go:generate go run go.uber.org/mock/mockgen -source=search.go -destination=../mocks/mock_search_index.go -package=mocks
package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"

	errs "salon-chat/errors"
)

// ISearchIndex is the full-text facility over message content.
// Deleted messages are deindexed so they can never surface in results.
type ISearchIndex interface {
	Index(ctx context.Context, id uuid.UUID, chatID, content string) error
	Deindex(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, term, chatID string, limit int) ([]uuid.UUID, error)
}

type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) SearchIndex {
	return SearchIndex{writer: writer, log: log}
}

// Index upserts the document for a message. Called after Send and Edit so
// the index always reflects the current content.
func (s SearchIndex) Index(ctx context.Context, id uuid.UUID, chatID, content string) error {
	if err := ctx.Err(); err != nil {
		return mapContextErr(err)
	}
	doc := bluge.NewDocument(id.String()).
		AddField(bluge.NewTextField("content", content)).
		AddField(bluge.NewKeywordField("chat", chatID))

	if err := s.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("%w: index message: %v", errs.ErrStorage, err)
	}
	return nil
}

// Deindex removes a message from the index, typically after a soft delete.
func (s SearchIndex) Deindex(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return mapContextErr(err)
	}
	if err := s.writer.Delete(bluge.Identifier(id.String())); err != nil {
		return fmt.Errorf("%w: deindex message: %v", errs.ErrStorage, err)
	}
	return nil
}

// Search returns the IDs of messages whose content matches the term,
// optionally restricted to one chat. An empty term would match everything
// in Bluge, so callers are expected to skip the index for termless queries.
func (s SearchIndex) Search(ctx context.Context, term, chatID string, limit int) ([]uuid.UUID, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("%w: open index reader: %v", errs.ErrStorage, err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("closing index reader failed", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(term).SetField("content"))
	if chatID != "" {
		query.AddMust(bluge.NewTermQuery(chatID).SetField("chat"))
	}

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", mapStorageErr(err), err)
	}

	var ids []uuid.UUID
	match, err := iterator.Next()
	for err == nil && match != nil {
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field != "_id" {
				return true
			}
			id, parseErr := uuid.Parse(string(value))
			if parseErr != nil {
				s.log.Warn("skipping non-uuid document", "raw", string(value))
				return true
			}
			ids = append(ids, id)
			return true
		})
		if visitErr != nil {
			return nil, fmt.Errorf("%w: visit stored fields: %v", errs.ErrStorage, visitErr)
		}
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: iterate matches: %v", mapStorageErr(err), err)
	}
	return ids, nil
}

func mapStorageErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.ErrTimeout
	}
	return errs.ErrStorage
}
