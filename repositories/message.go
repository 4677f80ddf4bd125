//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"salon-chat/domain"
	"salon-chat/domain/search"
	errs "salon-chat/errors"
)

// Predicate is evaluated against the durable state inside the update
// transaction. When it returns false the mutation is abandoned.
type Predicate func(domain.Message) bool

// Mutator applies the in-place change once the predicate held.
type Mutator func(*domain.Message)

type IMessageRepository interface {
	Insert(ctx context.Context, message domain.Message) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Message, error)
	ConditionalUpdate(ctx context.Context, id uuid.UUID, predicate Predicate, mutate Mutator) (domain.Message, error)
	Query(ctx context.Context, filters search.Filters, order search.Sort, limit int) ([]domain.Message, error)
	Count(ctx context.Context, filters search.Filters) (int, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	retryAttempts int
	retryDelay    time.Duration
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, retryAttempts int, retryDelay time.Duration) MessageRepository {
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return MessageRepository{db: db, log: log, retryAttempts: retryAttempts, retryDelay: retryDelay}
}

// diskMessage is the on-disk shape of a message record.
type diskMessage struct {
	ID          uuid.UUID          `json:"id"`
	Sender      string             `json:"sender"`
	Chat        string             `json:"chat"`
	Content     string             `json:"content"`
	ReadBy      []string           `json:"read_by"`
	ReplyTo     *uuid.UUID         `json:"reply_to,omitempty"`
	IsPinned    bool               `json:"is_pinned"`
	IsEdited    bool               `json:"is_edited"`
	IsDeleted   bool               `json:"is_deleted"`
	DeletedAt   *time.Time         `json:"deleted_at,omitempty"`
	EditHistory []diskEditRevision `json:"edit_history,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type diskEditRevision struct {
	PreviousContent string    `json:"previous_content"`
	EditedAt        time.Time `json:"edited_at"`
}

// messageKey builds the primary key "msg:{chat}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting per chat using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using the UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
func messageKey(chat string, createdAt time.Time, id uuid.UUID) []byte {
	return fmt.Appendf(nil, "msg:%s:%019d:%s", chat, createdAt.UnixNano(), id)
}

// indexKey maps a message ID to its primary key for by-ID access.
func indexKey(id uuid.UUID) []byte {
	return fmt.Appendf(nil, "idx:msg:%s", id)
}

func chatPrefix(chat string) []byte {
	return fmt.Appendf(nil, "msg:%s:", chat)
}

// Insert persists a new message and its ID index in one transaction.
// An ID is assigned when the caller left it zero.
func (r MessageRepository) Insert(ctx context.Context, message domain.Message) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, mapContextErr(err)
	}
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}

	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: marshal message: %v", errs.ErrStorage, err)
	}

	key := messageKey(message.Chat, message.CreatedAt, message.ID)
	err = r.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(indexKey(message.ID)); err == nil {
			return errs.ErrConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(indexKey(message.ID), key)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return message.ID, nil
}

// Get returns the message stored under the given ID.
func (r MessageRepository) Get(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, mapContextErr(err)
	}
	var message domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		found, err := r.readByID(txn, id)
		if err != nil {
			return err
		}
		message = found
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// ConditionalUpdate atomically reads the current state, evaluates the
// predicate and, when it holds, applies the mutator and persists the result.
// Badger's serializable transactions make this the single race-free
// read-modify-write point: a losing writer gets ErrPreconditionFailed, never
// a silent overwrite. Transaction conflicts are retried with a bounded delay.
func (r MessageRepository) ConditionalUpdate(ctx context.Context, id uuid.UUID, predicate Predicate, mutate Mutator) (domain.Message, error) {
	var updated domain.Message
	err := r.update(ctx, func(txn *badger.Txn) error {
		message, err := r.readByID(txn, id)
		if err != nil {
			return err
		}
		if !predicate(message) {
			return errs.ErrPreconditionFailed
		}
		mutate(&message)

		bytes, err := json.Marshal(fromMessage(message))
		if err != nil {
			return fmt.Errorf("%w: marshal message: %v", errs.ErrStorage, err)
		}
		// Chat, CreatedAt and ID are immutable, so the primary key is stable.
		if err := txn.Set(messageKey(message.Chat, message.CreatedAt, message.ID), bytes); err != nil {
			return err
		}
		updated = message
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return updated, nil
}

// Query returns messages matching the filters, ordered by creation time.
// When a chat is given the composite key makes the scan naturally sorted;
// cross-chat scans are sorted in memory. limit <= 0 means unbounded.
func (r MessageRepository) Query(ctx context.Context, filters search.Filters, order search.Sort, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapContextErr(err)
	}
	var messages []domain.Message

	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("msg:")
		options := badger.DefaultIteratorOptions
		scanSorted := filters.Chat != ""
		if scanSorted {
			prefix = chatPrefix(filters.Chat)
			options.Reverse = order == search.SortCreatedDesc
		}

		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := prefix
		if options.Reverse {
			// Jump past the newest possible key, then walk backwards.
			seekKey = append(chatPrefix(filters.Chat), []byte("9999999999999999999")...)
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if scanSorted && limit > 0 && len(messages) == limit {
				r.log.Debug("query limit reached", "limit", limit)
				break
			}
			var message domain.Message
			err := it.Item().Value(func(value []byte) error {
				found, err := UnmarshalMessage(value)
				if err != nil {
					return err
				}
				message = found
				return nil
			})
			if err != nil {
				return err
			}
			if matches(filters, message) {
				messages = append(messages, message)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStorage, err)
	}

	if filters.Chat == "" {
		sort.Slice(messages, func(i, j int) bool {
			if order == search.SortCreatedDesc {
				return messages[i].CreatedAt.After(messages[j].CreatedAt)
			}
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		})
		if limit > 0 && len(messages) > limit {
			messages = messages[:limit]
		}
	}
	return messages, nil
}

// Count returns the number of messages matching the filters.
func (r MessageRepository) Count(ctx context.Context, filters search.Filters) (int, error) {
	messages, err := r.Query(ctx, filters, search.SortCreatedAsc, 0)
	if err != nil {
		return 0, err
	}
	return len(messages), nil
}

// readByID resolves the secondary index and loads the record inside txn.
func (r MessageRepository) readByID(txn *badger.Txn, id uuid.UUID) (domain.Message, error) {
	item, err := txn.Get(indexKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, errs.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	primaryKey, err := item.ValueCopy(nil)
	if err != nil {
		return domain.Message{}, err
	}
	item, err = txn.Get(primaryKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, errs.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return domain.Message{}, err
	}
	return UnmarshalMessage(value)
}

// update runs fn in a write transaction, retrying bounded times on
// transaction conflicts before surfacing a storage error. Terminal domain
// errors (not found, precondition, conflict on insert) are never retried.
func (r MessageRepository) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var terminal error
	_, _, retryErr := lo.AttemptWithDelay(r.retryAttempts, r.retryDelay, func(attempt int, _ time.Duration) error {
		if err := ctx.Err(); err != nil {
			terminal = mapContextErr(err)
			return nil
		}
		err := r.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) {
			r.log.Debug("transaction conflict, retrying", "attempt", attempt)
			return err
		}
		terminal = err
		return nil
	})
	if terminal != nil {
		if isDomainErr(terminal) {
			return terminal
		}
		return fmt.Errorf("%w: %v", errs.ErrStorage, terminal)
	}
	if retryErr != nil {
		return fmt.Errorf("%w: retries exhausted: %v", errs.ErrStorage, retryErr)
	}
	return nil
}

func isDomainErr(err error) bool {
	return errors.Is(err, errs.ErrNotFound) ||
		errors.Is(err, errs.ErrPreconditionFailed) ||
		errors.Is(err, errs.ErrConflict) ||
		errors.Is(err, errs.ErrTimeout) ||
		errors.Is(err, errs.ErrStorage)
}

func mapContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", errs.ErrTimeout, err)
	}
	return err
}

// matches applies the closed filter set to a single record. The chat
// comparison is exact: the key prefix scan is only a narrowing optimization,
// and a chat ID containing the key separator would otherwise satisfy a
// shorter chat's prefix.
func matches(f search.Filters, m domain.Message) bool {
	if f.Chat != "" && m.Chat != f.Chat {
		return false
	}
	if f.Sender != "" && m.Sender != f.Sender {
		return false
	}
	if f.NotSender != "" && m.Sender == f.NotSender {
		return false
	}
	if f.UnreadBy != "" && m.WasReadBy(f.UnreadBy) {
		return false
	}
	if f.IsPinned != nil && m.IsPinned != *f.IsPinned {
		return false
	}
	if f.IsDeleted != nil && m.IsDeleted != *f.IsDeleted {
		return false
	}
	if f.From != nil && m.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && m.CreatedAt.After(*f.To) {
		return false
	}
	if f.Term != "" && !strings.Contains(strings.ToLower(m.Content), strings.ToLower(f.Term)) {
		return false
	}
	return true
}

// UnmarshalMessage decodes a stored record. Exported for the inspector CLI.
func UnmarshalMessage(value []byte) (domain.Message, error) {
	var dm diskMessage
	if err := json.Unmarshal(value, &dm); err != nil {
		return domain.Message{}, err
	}
	return toMessage(dm), nil
}

func fromMessage(m domain.Message) diskMessage {
	return diskMessage{
		ID:      m.ID,
		Sender:  m.Sender,
		Chat:    m.Chat,
		Content: m.Content,
		ReadBy:  m.ReadBy,
		ReplyTo: m.ReplyTo,
		EditHistory: lo.Map(m.EditHistory, func(rev domain.EditRevision, _ int) diskEditRevision {
			return diskEditRevision{PreviousContent: rev.PreviousContent, EditedAt: rev.EditedAt}
		}),
		IsPinned:  m.IsPinned,
		IsEdited:  m.IsEdited,
		IsDeleted: m.IsDeleted,
		DeletedAt: m.DeletedAt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func toMessage(dm diskMessage) domain.Message {
	return domain.Message{
		ID:      dm.ID,
		Sender:  dm.Sender,
		Chat:    dm.Chat,
		Content: dm.Content,
		ReadBy:  dm.ReadBy,
		ReplyTo: dm.ReplyTo,
		EditHistory: lo.Map(dm.EditHistory, func(rev diskEditRevision, _ int) domain.EditRevision {
			return domain.EditRevision{PreviousContent: rev.PreviousContent, EditedAt: rev.EditedAt}
		}),
		IsPinned:  dm.IsPinned,
		IsEdited:  dm.IsEdited,
		IsDeleted: dm.IsDeleted,
		DeletedAt: dm.DeletedAt,
		CreatedAt: dm.CreatedAt,
		UpdatedAt: dm.UpdatedAt,
	}
}
