// Package domain contains core concepts of the chat system.
// This file defines the Message aggregate and its lifecycle rules.
// Mutation helpers are pure: they touch the receiver only, persistence
// and serialization live in the repositories.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// DeletedContent replaces the body of a soft-deleted message.
const DeletedContent = "This message has been deleted"

// EditRevision is one snapshot of the content as it was before an edit.
type EditRevision struct {
	PreviousContent string
	EditedAt        time.Time
}

// Message represents a chat message owned by a single conversation.
// Sender, Chat and ReplyTo are immutable after creation.
type Message struct {
	ID          uuid.UUID
	Sender      string
	Chat        string
	Content     string
	ReadBy      []string
	ReplyTo     *uuid.UUID
	IsPinned    bool
	IsEdited    bool
	IsDeleted   bool
	DeletedAt   *time.Time
	EditHistory []EditRevision
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewMessage builds a fresh message in the active state.
// The sender has implicitly read their own message.
func NewMessage(sender, chat, content string, replyTo *uuid.UUID, now time.Time) Message {
	return Message{
		ID:        uuid.New(),
		Sender:    sender,
		Chat:      chat,
		Content:   content,
		ReadBy:    []string{sender},
		ReplyTo:   replyTo,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// WasReadBy reports whether the given user already observed the message.
func (m Message) WasReadBy(user string) bool {
	return lo.Contains(m.ReadBy, user)
}

// MarkReadBy adds user to the read set. The set only grows, marking twice
// is a no-op, which makes concurrent read receipts commutative.
func (m *Message) MarkReadBy(user string, now time.Time) bool {
	if m.WasReadBy(user) {
		return false
	}
	m.ReadBy = append(m.ReadBy, user)
	m.UpdatedAt = now
	return true
}

// ApplyEdit snapshots the current content into the history and installs the
// new one. Callers must guarantee the message is not deleted; the repository
// predicate enforces it against durable state.
func (m *Message) ApplyEdit(newContent string, now time.Time) {
	m.EditHistory = append(m.EditHistory, EditRevision{
		PreviousContent: m.Content,
		EditedAt:        now,
	})
	m.Content = newContent
	m.IsEdited = true
	m.UpdatedAt = now
}

// ApplyDelete performs the one-way transition to the deleted state.
// Already-deleted messages are left untouched so DeletedAt is set exactly
// once and the edit history survives for audit.
func (m *Message) ApplyDelete(now time.Time) {
	if m.IsDeleted {
		return
	}
	m.IsDeleted = true
	m.DeletedAt = lo.ToPtr(now)
	m.Content = DeletedContent
	m.UpdatedAt = now
}

// FlipPin toggles the pinned flag, independent of authorship.
func (m *Message) FlipPin(now time.Time) {
	m.IsPinned = !m.IsPinned
	m.UpdatedAt = now
}

// MessageSummary is the compact projection a conversation keeps as its
// latest-message pointer.
type MessageSummary struct {
	ID        uuid.UUID
	Sender    string
	Content   string
	CreatedAt time.Time
}

// Summary projects the message into its conversation-pointer form.
func (m Message) Summary() MessageSummary {
	return MessageSummary{
		ID:        m.ID,
		Sender:    m.Sender,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// MessageView is a message together with its resolved reply target.
// The target is included even when soft-deleted; a dangling reference
// (target physically absent) leaves ReplyTarget nil.
type MessageView struct {
	Message
	ReplyTarget *Message
}
