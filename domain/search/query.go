// Package search defines the structured query surface of the message store.
// It decouples caller input from the storage and index engines: filters are a
// closed set of fields, there is no arbitrary-field pass-through.
package search

import (
	"strings"
	"time"
)

// Sort orders query results by creation time.
type Sort int

const (
	SortCreatedAsc Sort = iota
	SortCreatedDesc
)

// Query is the caller-facing search surface: free-text term, owning chat,
// pinned flag and creation-time range. Deleted messages are always excluded.
type Query struct {
	Term     string
	Chat     string
	IsPinned *bool
	From     *time.Time
	To       *time.Time
}

// Normalize trims the free-text term so whitespace-only input behaves like
// an absent term.
func (q Query) Normalize() Query {
	q.Term = strings.TrimSpace(q.Term)
	return q
}

// Filters is the storage-level filter set. On top of the caller-facing
// fields it carries the sender match and the exclusion fields the unseen
// counter needs.
type Filters struct {
	Chat      string
	Sender    string
	NotSender string
	UnreadBy  string
	Term      string
	IsPinned  *bool
	IsDeleted *bool
	From      *time.Time
	To        *time.Time
}

// Filters lowers the caller query onto the storage filter set,
// pinning the deleted flag to false.
func (q Query) Filters() Filters {
	deleted := false
	return Filters{
		Chat:      q.Chat,
		Term:      q.Term,
		IsPinned:  q.IsPinned,
		IsDeleted: &deleted,
		From:      q.From,
		To:        q.To,
	}
}
