package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"salon-chat/domain"
	"salon-chat/domain/search"
	errs "salon-chat/errors"
	"salon-chat/repositories"
)

// ContentFilter censors forbidden terms before a message is persisted.
type ContentFilter interface {
	Apply(text string) string
}

type IMessageService interface {
	Send(ctx context.Context, cmd domain.SendCommand) (domain.Message, error)
	Edit(ctx context.Context, messageID uuid.UUID, actorID, newContent string) (domain.Message, error)
	Delete(ctx context.Context, messageID uuid.UUID, actorID string) (domain.Message, error)
	MarkRead(ctx context.Context, messageID uuid.UUID, userID string) (domain.Message, error)
	TogglePin(ctx context.Context, messageID uuid.UUID, actorID string) (domain.Message, error)
	Search(ctx context.Context, query search.Query) ([]domain.Message, error)
	ListForChat(ctx context.Context, chatID string) ([]domain.MessageView, error)
	UnseenCount(ctx context.Context, chatID, userID string) (int, error)
}

type MessageService struct {
	messages      repositories.IMessageRepository
	index         repositories.ISearchIndex
	conversations repositories.IConversationLink
	filter        ContentFilter
	log           *slog.Logger
	maxContentLen int
	searchLimit   int
	now           func() time.Time
}

func NewMessageService(
	messages repositories.IMessageRepository,
	index repositories.ISearchIndex,
	conversations repositories.IConversationLink,
	filter ContentFilter,
	log *slog.Logger,
	maxContentLen, searchLimit int,
) *MessageService {
	return &MessageService{
		messages:      messages,
		index:         index,
		conversations: conversations,
		filter:        filter,
		log:           log,
		maxContentLen: maxContentLen,
		searchLimit:   searchLimit,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Send creates a message in the active state, indexes its content and then
// updates the conversation's latest-message pointer. The pointer update is
// best-effort: the message is already durable, so a failure there is logged
// and the send still succeeds.
func (s *MessageService) Send(ctx context.Context, cmd domain.SendCommand) (domain.Message, error) {
	// 1. Structural validation before touching storage.
	cmd.Content = strings.TrimSpace(cmd.Content)
	if err := cmd.Validate(); err != nil {
		return domain.Message{}, err
	}
	if err := s.checkLength(cmd.Content); err != nil {
		return domain.Message{}, err
	}

	// 2. Moderation pass on the raw content.
	if s.filter != nil {
		cmd.Content = s.filter.Apply(cmd.Content)
	}

	// 3. Persist, then index.
	message := domain.NewMessage(cmd.Sender, cmd.Chat, cmd.Content, cmd.ReplyTo, s.now())
	if _, err := s.messages.Insert(ctx, message); err != nil {
		return domain.Message{}, err
	}
	if err := s.index.Index(ctx, message.ID, message.Chat, message.Content); err != nil {
		return domain.Message{}, err
	}

	// 4. Advisory pointer update, last writer wins.
	if err := s.conversations.SetLatestMessage(ctx, message.Chat, message.Summary()); err != nil {
		s.log.Warn("latest-message pointer update failed",
			"chat", message.Chat, "message", message.ID, "error", err)
	}
	return message, nil
}

// Edit replaces the content of an active message authored by the actor,
// pushing the previous content onto the history. The deleted-state check is
// enforced by the store's conditional update, which closes the race against
// a concurrent Delete: the loser sees InvalidState, never lost data.
func (s *MessageService) Edit(ctx context.Context, messageID uuid.UUID, actorID, newContent string) (domain.Message, error) {
	newContent = strings.TrimSpace(newContent)
	if newContent == "" {
		return domain.Message{}, fmt.Errorf("%w: content must not be empty", errs.ErrInvalidArgument)
	}
	if err := s.checkLength(newContent); err != nil {
		return domain.Message{}, err
	}
	if s.filter != nil {
		newContent = s.filter.Apply(newContent)
	}

	if err := s.authorize(ctx, messageID, actorID, "edit"); err != nil {
		return domain.Message{}, err
	}

	now := s.now()
	updated, err := s.messages.ConditionalUpdate(ctx, messageID,
		func(m domain.Message) bool { return !m.IsDeleted },
		func(m *domain.Message) { m.ApplyEdit(newContent, now) },
	)
	if errors.Is(err, errs.ErrPreconditionFailed) {
		return domain.Message{}, fmt.Errorf("%w: cannot edit a deleted message", errs.ErrInvalidState)
	}
	if err != nil {
		return domain.Message{}, err
	}

	if err := s.index.Index(ctx, updated.ID, updated.Chat, updated.Content); err != nil {
		return domain.Message{}, err
	}
	return updated, nil
}

// Delete soft-deletes a message authored by the actor. The transition is
// idempotent and monotone, so the predicate is always true and deleting an
// already-deleted message just returns its current state.
func (s *MessageService) Delete(ctx context.Context, messageID uuid.UUID, actorID string) (domain.Message, error) {
	if err := s.authorizeDelete(ctx, messageID, actorID); err != nil {
		return domain.Message{}, err
	}

	now := s.now()
	updated, err := s.messages.ConditionalUpdate(ctx, messageID,
		func(domain.Message) bool { return true },
		func(m *domain.Message) { m.ApplyDelete(now) },
	)
	if err != nil {
		return domain.Message{}, err
	}

	if err := s.index.Deindex(ctx, updated.ID); err != nil {
		return domain.Message{}, err
	}
	return updated, nil
}

// MarkRead adds the user to the message's read set. Set semantics make the
// operation idempotent and commutative, so no authorization beyond message
// existence is required.
func (s *MessageService) MarkRead(ctx context.Context, messageID uuid.UUID, userID string) (domain.Message, error) {
	if userID == "" {
		return domain.Message{}, fmt.Errorf("%w: user is required", errs.ErrInvalidArgument)
	}
	now := s.now()
	return s.messages.ConditionalUpdate(ctx, messageID,
		func(domain.Message) bool { return true },
		func(m *domain.Message) { m.MarkReadBy(userID, now) },
	)
}

// TogglePin flips the pinned flag. Participant or role checks belong to the
// collaborator that authenticates the caller, not to this core.
func (s *MessageService) TogglePin(ctx context.Context, messageID uuid.UUID, actorID string) (domain.Message, error) {
	now := s.now()
	updated, err := s.messages.ConditionalUpdate(ctx, messageID,
		func(domain.Message) bool { return true },
		func(m *domain.Message) { m.FlipPin(now) },
	)
	if err != nil {
		return domain.Message{}, err
	}
	s.log.Debug("pin toggled", "message", messageID, "actor", actorID, "pinned", updated.IsPinned)
	return updated, nil
}

// Search returns non-deleted messages ordered by creation time descending.
// With a term present the full-text index drives the candidate set and the
// remaining filters are applied on the hydrated records; without one it is a
// plain recency query on the store, unbounded so it stays consistent with
// the chat listing. The limit only caps index-driven lookups.
func (s *MessageService) Search(ctx context.Context, query search.Query) ([]domain.Message, error) {
	query = query.Normalize()
	filters := query.Filters()

	if query.Term == "" {
		return s.messages.Query(ctx, filters, search.SortCreatedDesc, 0)
	}

	ids, err := s.index.Search(ctx, query.Term, query.Chat, s.searchLimit)
	if err != nil {
		return nil, err
	}

	var results []domain.Message
	for _, id := range ids {
		message, err := s.messages.Get(ctx, id)
		if errors.Is(err, errs.ErrNotFound) {
			// The index can briefly lag the store, a missing record is not fatal.
			s.log.Debug("indexed message absent from store", "message", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		// The term already matched in the index, drop it before re-filtering.
		remaining := filters
		remaining.Term = ""
		if matchesFilters(remaining, message) {
			results = append(results, message)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

// ListForChat returns every non-deleted message of a chat in ascending
// creation order, with reply references resolved for display. A reply target
// that was soft-deleted is still returned, flagged deleted; one that is
// physically absent resolves to nil instead of failing the listing.
func (s *MessageService) ListForChat(ctx context.Context, chatID string) ([]domain.MessageView, error) {
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat is required", errs.ErrInvalidArgument)
	}
	deleted := false
	messages, err := s.messages.Query(ctx,
		search.Filters{Chat: chatID, IsDeleted: &deleted},
		search.SortCreatedAsc, 0)
	if err != nil {
		return nil, err
	}

	views := make([]domain.MessageView, 0, len(messages))
	for _, message := range messages {
		view := domain.MessageView{Message: message}
		if message.ReplyTo != nil {
			target, err := s.messages.Get(ctx, *message.ReplyTo)
			switch {
			case err == nil:
				view.ReplyTarget = &target
			case errors.Is(err, errs.ErrNotFound):
				view.ReplyTarget = nil
			default:
				return nil, err
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// UnseenCount counts the messages of a chat the user has neither sent nor
// read, excluding deleted ones.
func (s *MessageService) UnseenCount(ctx context.Context, chatID, userID string) (int, error) {
	if chatID == "" || userID == "" {
		return 0, fmt.Errorf("%w: chat and user are required", errs.ErrInvalidArgument)
	}
	return s.messages.Count(ctx, search.Filters{
		Chat:      chatID,
		NotSender: userID,
		UnreadBy:  userID,
		IsDeleted: lo.ToPtr(false),
	})
}

// authorize loads the message and verifies authorship for mutating
// operations. Sender is immutable, so checking it outside the conditional
// update is race-free.
func (s *MessageService) authorize(ctx context.Context, messageID uuid.UUID, actorID, op string) error {
	message, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if message.Sender != actorID {
		return fmt.Errorf("%w: can only %s your own messages", errs.ErrForbidden, op)
	}
	if message.IsDeleted && op == "edit" {
		return fmt.Errorf("%w: cannot edit a deleted message", errs.ErrInvalidState)
	}
	return nil
}

func (s *MessageService) authorizeDelete(ctx context.Context, messageID uuid.UUID, actorID string) error {
	message, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if message.Sender != actorID {
		return fmt.Errorf("%w: can only delete your own messages", errs.ErrForbidden)
	}
	return nil
}

func (s *MessageService) checkLength(content string) error {
	if s.maxContentLen > 0 && len(content) > s.maxContentLen {
		return fmt.Errorf("%w: content exceeds %d bytes", errs.ErrInvalidArgument, s.maxContentLen)
	}
	return nil
}

// matchesFilters re-applies the non-term filters on an index hit.
func matchesFilters(f search.Filters, m domain.Message) bool {
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
	return true
}
