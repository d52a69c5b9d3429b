// Package store holds the journal entities the assistant can reference
// and the stores that persist them.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an entity does not exist or is not visible
// to the caller.
var ErrNotFound = errors.New("entity not found")

// Kind is a referenceable entity type.
type Kind string

const (
	KindTrade    Kind = "trade"
	KindNote     Kind = "note"
	KindStrategy Kind = "strategy"
)

// Kinds lists every referenceable kind in a stable order.
var Kinds = []Kind{KindTrade, KindNote, KindStrategy}

// Owned reports whether entities of this kind belong to a single user and
// must be looked up scoped to the caller.
func (k Kind) Owned() bool {
	return k == KindTrade || k == KindNote
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

type Trade struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Symbol     string     `json:"symbol"`
	Side       string     `json:"side"`
	Quantity   float64    `json:"quantity"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	PnL        *float64   `json:"pnl,omitempty"`
	StrategyID string     `json:"strategy_id,omitempty"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TradeID   string    `json:"trade_id,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Strategy is a shared playbook entry, visible to every user.
type Strategy struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Memory is the free-form profile the assistant keeps per user.
type Memory struct {
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntityStore answers existence and fetch queries for referenceable
// entities. ownerID scopes owned kinds; it is ignored for shared kinds.
type EntityStore interface {
	Exists(ctx context.Context, kind Kind, id, ownerID string) (bool, error)
	Fetch(ctx context.Context, kind Kind, id, ownerID string) (any, error)
}

// NoteStore manages a user's notes.
type NoteStore interface {
	CreateNote(ctx context.Context, n Note) (Note, error)
	UpdateNote(ctx context.Context, n Note) (Note, error)
	ListNotes(ctx context.Context, userID string, limit int) ([]Note, error)
	DeleteNote(ctx context.Context, userID, id string) error
}

// MemoryStore manages per-user memory.
type MemoryStore interface {
	GetMemory(ctx context.Context, userID string) (Memory, error)
	UpdateMemory(ctx context.Context, userID, content string) (Memory, error)
}

// Store is everything the assistant needs from persistence.
type Store interface {
	EntityStore
	NoteStore
	MemoryStore
	Close()
}
