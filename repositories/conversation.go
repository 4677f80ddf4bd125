//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_link.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"salon-chat/domain"
	errs "salon-chat/errors"
)

// IConversationLink is the contract towards the conversation aggregate.
// The latest-message pointer is advisory: last writer wins, and callers
// treat a failed update as non-fatal.
type IConversationLink interface {
	SetLatestMessage(ctx context.Context, chatID string, summary domain.MessageSummary) error
	LatestMessage(ctx context.Context, chatID string) (domain.MessageSummary, error)
}

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) ConversationRepository {
	return ConversationRepository{db: db, log: log}
}

type diskSummary struct {
	ID        uuid.UUID `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func latestKey(chatID string) []byte {
	return fmt.Appendf(nil, "chat:latest:%s", chatID)
}

// SetLatestMessage overwrites the conversation's latest-message pointer.
func (r ConversationRepository) SetLatestMessage(ctx context.Context, chatID string, summary domain.MessageSummary) error {
	if err := ctx.Err(); err != nil {
		return mapContextErr(err)
	}
	bytes, err := json.Marshal(diskSummary{
		ID:        summary.ID,
		Sender:    summary.Sender,
		Content:   summary.Content,
		CreatedAt: summary.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal summary: %v", errs.ErrStorage, err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(latestKey(chatID), bytes)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return nil
}

// LatestMessage reads the pointer back for conversation previews.
func (r ConversationRepository) LatestMessage(ctx context.Context, chatID string) (domain.MessageSummary, error) {
	if err := ctx.Err(); err != nil {
		return domain.MessageSummary{}, mapContextErr(err)
	}
	var ds diskSummary
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(latestKey(chatID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errs.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &ds)
		})
	})
	if errors.Is(err, errs.ErrNotFound) {
		return domain.MessageSummary{}, err
	}
	if err != nil {
		return domain.MessageSummary{}, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}
	return domain.MessageSummary{
		ID:        ds.ID,
		Sender:    ds.Sender,
		Content:   ds.Content,
		CreatedAt: ds.CreatedAt,
	}, nil
}
