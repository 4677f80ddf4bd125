package repositories

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"salon-chat/domain"
	"salon-chat/domain/search"
	errs "salon-chat/errors"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestRepository(t *testing.T) MessageRepository {
	return NewMessageRepository(newTestDB(t), slog.Default(), 3, 5*time.Millisecond)
}

func Test_Insert_And_Get_Roundtrip(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t)
	ctx := context.Background()

	replyTo := uuid.New()
	at := time.Now().UTC().Truncate(time.Microsecond)
	message := domain.NewMessage("alice", "chat-1", "bonjour", &replyTo, at)
	message.ApplyEdit("bonjour à tous", at.Add(time.Minute))

	id, err := repository.Insert(ctx, message)
	req.NoError(err)
	req.Equal(message.ID, id)

	fetched, err := repository.Get(ctx, id)
	req.NoError(err)
	req.Equal(message.Content, fetched.Content)
	req.Equal(message.ReadBy, fetched.ReadBy)
	req.Equal(&replyTo, fetched.ReplyTo)
	req.True(fetched.IsEdited)
	req.Len(fetched.EditHistory, 1)
	req.Equal("bonjour", fetched.EditHistory[0].PreviousContent)
}

func Test_Insert_Rejects_Duplicate_ID(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t)
	ctx := context.Background()

	message := domain.NewMessage("alice", "chat-1", "once", nil, time.Now().UTC())
	_, err := repository.Insert(ctx, message)
	req.NoError(err)

	_, err = repository.Insert(ctx, message)
	req.ErrorIs(err, errs.ErrConflict)
}

func Test_Get_Unknown_Message_Is_NotFound(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t)

	_, err := repository.Get(context.Background(), uuid.New())
	req.ErrorIs(err, errs.ErrNotFound)
}

func Test_ConditionalUpdate_Applies_Mutation_When_Predicate_Holds(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t)
	ctx := context.Background()

	at := time.Now().UTC()
	message := domain.NewMessage("alice", "chat-1", "draft", nil, at)
	_, err := repository.Insert(ctx, message)
	req.NoError(err)

	updated, err := repository.ConditionalUpdate(ctx, message.ID,
		func(m domain.Message) bool { return !m.IsDeleted },
		func(m *domain.Message) { m.ApplyEdit("final", at.Add(time.Minute)) },
	)
	req.NoError(err)
	req.Equal("final", updated.Content)
	req.True(updated.IsEdited)

	fetched, err := repository.Get(ctx, message.ID)
	req.NoError(err)
	req.Equal("final", fetched.Content)
}

func Test_ConditionalUpdate_Fails_Without_Side_Effects_When_Predicate_Fails(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t)
	ctx := context.Background()

	at := time.Now().UTC()
	message := domain.NewMessage("alice", "chat-1", "original", nil, at)
	message.ApplyDelete(at.Add(time.Second))
	_, err := repository.Insert(ctx, message)
	req.NoError(err)

	_, err = repository.ConditionalUpdate(ctx, message.ID,
		func(m domain.Message) bool { return !m.IsDeleted },
		func(m *domain.Message) { m.ApplyEdit("tampered", at.Add(time.Minute)) },
	)
	req.ErrorIs(err, errs.ErrPreconditionFailed)

	fetched, err := repository.Get(ctx, message.ID)
	req.NoError(err)
	req.Equal(domain.DeletedContent, fetched.Content)
	req.Empty(fetched.EditHistory)
}

func Test_ConditionalUpdate_Unknown_Message_Is_NotFound(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t)

	_, err := repository.ConditionalUpdate(context.Background(), uuid.New(),
		func(domain.Message) bool { return true },
		func(*domain.Message) {},
	)
	req.ErrorIs(err, errs.ErrNotFound)
}

func Test_Query_Orders_By_Creation_Time(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t)
	ctx := context.Background()
	at := time.Now().UTC()

	authors := []string{"alice", "bob", "clara"}
	for i, author := range authors {
		message := domain.NewMessage(author, "chat-1", "message "+author, nil, at.Add(time.Duration(i)*time.Minute))
		_, err := repository.Insert(ctx, message)
		req.NoError(err)
	}
	// Noise in another chat must not leak in.
	_, err := repository.Insert(ctx, domain.NewMessage("mallory", "chat-2", "other room", nil, at))
	req.NoError(err)

	ascending, err := repository.Query(ctx, search.Filters{Chat: "chat-1"}, search.SortCreatedAsc, 0)
	req.NoError(err)
	req.Equal(authors, lo.Map(ascending, func(m domain.Message, _ int) string { return m.Sender }))

	descending, err := repository.Query(ctx, search.Filters{Chat: "chat-1"}, search.SortCreatedDesc, 0)
	req.NoError(err)
	req.Equal([]string{"clara", "bob", "alice"}, lo.Map(descending, func(m domain.Message, _ int) string { return m.Sender }))

	limited, err := repository.Query(ctx, search.Filters{Chat: "chat-1"}, search.SortCreatedDesc, 2)
	req.NoError(err)
	req.Len(limited, 2)
	req.Equal("clara", limited[0].Sender)
}

func Test_Query_Applies_Filters(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t)
	ctx := context.Background()
	at := time.Now().UTC()

	pinned := domain.NewMessage("alice", "chat-1", "pinned announcement", nil, at)
	pinned.FlipPin(at)
	deleted := domain.NewMessage("bob", "chat-1", "was here", nil, at.Add(time.Minute))
	deleted.ApplyDelete(at.Add(2 * time.Minute))
	plain := domain.NewMessage("bob", "chat-1", "regular chatter", nil, at.Add(3*time.Minute))

	for _, message := range []domain.Message{pinned, deleted, plain} {
		_, err := repository.Insert(ctx, message)
		req.NoError(err)
	}

	onlyPinned, err := repository.Query(ctx, search.Filters{Chat: "chat-1", IsPinned: lo.ToPtr(true)}, search.SortCreatedAsc, 0)
	req.NoError(err)
	req.Len(onlyPinned, 1)
	req.Equal(pinned.ID, onlyPinned[0].ID)

	notDeleted, err := repository.Query(ctx, search.Filters{Chat: "chat-1", IsDeleted: lo.ToPtr(false)}, search.SortCreatedAsc, 0)
	req.NoError(err)
	req.Len(notDeleted, 2)

	bySender, err := repository.Query(ctx, search.Filters{Chat: "chat-1", Sender: "bob"}, search.SortCreatedAsc, 0)
	req.NoError(err)
	req.Len(bySender, 2)

	byTerm, err := repository.Query(ctx, search.Filters{Chat: "chat-1", Term: "ANNOUNCEMENT"}, search.SortCreatedAsc, 0)
	req.NoError(err)
	req.Len(byTerm, 1)
	req.Equal(pinned.ID, byTerm[0].ID)

	inRange, err := repository.Query(ctx, search.Filters{
		Chat: "chat-1",
		From: lo.ToPtr(at.Add(30 * time.Second)),
		To:   lo.ToPtr(at.Add(90 * time.Second)),
	}, search.SortCreatedAsc, 0)
	req.NoError(err)
	req.Len(inRange, 1)
	req.Equal(deleted.ID, inRange[0].ID)
}

func Test_Query_Chat_Filter_Is_Exact_Not_A_Prefix(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t)
	ctx := context.Background()
	at := time.Now().UTC()

	// "a:b" shares the key prefix of chat "a", it must never leak into it.
	inA := domain.NewMessage("alice", "a", "in chat a", nil, at)
	inAB := domain.NewMessage("mallory", "a:b", "smuggled", nil, at.Add(time.Minute))
	for _, message := range []domain.Message{inA, inAB} {
		_, err := repository.Insert(ctx, message)
		req.NoError(err)
	}

	scoped, err := repository.Query(ctx, search.Filters{Chat: "a"}, search.SortCreatedAsc, 0)
	req.NoError(err)
	req.Equal([]string{"in chat a"},
		lo.Map(scoped, func(m domain.Message, _ int) string { return m.Content }))

	count, err := repository.Count(ctx, search.Filters{Chat: "a"})
	req.NoError(err)
	req.Equal(1, count)

	// The unscoped scan walks the whole message keyspace, index entries
	// included, and still sees exactly the two records.
	all, err := repository.Query(ctx, search.Filters{}, search.SortCreatedAsc, 0)
	req.NoError(err)
	req.Len(all, 2)
}

func Test_Count_Supports_Unseen_Semantics(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t)
	ctx := context.Background()
	at := time.Now().UTC()

	// A(sender=u1, readBy={u1}), B(sender=u2, readBy={u2,u1})
	a := domain.NewMessage("u1", "chat-1", "first", nil, at)
	b := domain.NewMessage("u2", "chat-1", "second", nil, at.Add(time.Minute))
	b.MarkReadBy("u1", at.Add(2*time.Minute))
	for _, message := range []domain.Message{a, b} {
		_, err := repository.Insert(ctx, message)
		req.NoError(err)
	}

	unseen := func(user string) int {
		count, err := repository.Count(ctx, search.Filters{
			Chat:      "chat-1",
			NotSender: user,
			UnreadBy:  user,
			IsDeleted: lo.ToPtr(false),
		})
		req.NoError(err)
		return count
	}

	req.Equal(0, unseen("u1"))
	req.Equal(1, unseen("u2"))
}

func Test_Concurrent_Edit_And_Delete_Resolve_Deterministically(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t)
	ctx := context.Background()
	at := time.Now().UTC()

	message := domain.NewMessage("alice", "chat-1", "contested", nil, at)
	_, err := repository.Insert(ctx, message)
	req.NoError(err)

	var wg sync.WaitGroup
	var editErr, deleteErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, editErr = repository.ConditionalUpdate(ctx, message.ID,
			func(m domain.Message) bool { return !m.IsDeleted },
			func(m *domain.Message) { m.ApplyEdit("edited", at.Add(time.Second)) },
		)
	}()
	go func() {
		defer wg.Done()
		_, deleteErr = repository.ConditionalUpdate(ctx, message.ID,
			func(domain.Message) bool { return true },
			func(m *domain.Message) { m.ApplyDelete(at.Add(time.Second)) },
		)
	}()
	wg.Wait()

	// Delete is monotone, it must always win eventually.
	req.NoError(deleteErr)
	// The edit either landed before the delete or lost the race cleanly.
	if editErr != nil {
		req.ErrorIs(editErr, errs.ErrPreconditionFailed)
	}

	final, err := repository.Get(ctx, message.ID)
	req.NoError(err)
	req.True(final.IsDeleted)
	req.Equal(domain.DeletedContent, final.Content)
	if editErr == nil {
		req.Len(final.EditHistory, 1)
	} else {
		req.Empty(final.EditHistory)
	}
}

func Test_Expired_Context_Reports_Timeout(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := repository.Get(ctx, uuid.New())
	req.ErrorIs(err, errs.ErrTimeout)

	_, err = repository.Insert(ctx, domain.NewMessage("alice", "chat-1", "late", nil, time.Now().UTC()))
	req.ErrorIs(err, errs.ErrTimeout)
}
