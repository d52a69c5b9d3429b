package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process Store used for local runs and tests.
type MemStore struct {
	mu         sync.RWMutex
	trades     map[string]Trade
	notes      map[string]Note
	strategies map[string]Strategy
	memories   map[string]Memory
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		trades:     make(map[string]Trade),
		notes:      make(map[string]Note),
		strategies: make(map[string]Strategy),
		memories:   make(map[string]Memory),
	}
}

// PutTrade inserts or replaces a trade.
func (s *MemStore) PutTrade(t Trade) {
	s.mu.Lock()
	s.trades[t.ID] = t
	s.mu.Unlock()
}

// PutStrategy inserts or replaces a strategy.
func (s *MemStore) PutStrategy(st Strategy) {
	s.mu.Lock()
	s.strategies[st.ID] = st
	s.mu.Unlock()
}

// PutNote inserts or replaces a note without touching timestamps.
func (s *MemStore) PutNote(n Note) {
	s.mu.Lock()
	s.notes[n.ID] = n
	s.mu.Unlock()
}

func (s *MemStore) Exists(ctx context.Context, kind Kind, id, ownerID string) (bool, error) {
	_, err := s.Fetch(ctx, kind, id, ownerID)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *MemStore) Fetch(_ context.Context, kind Kind, id, ownerID string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case KindTrade:
		if t, ok := s.trades[id]; ok && t.UserID == ownerID {
			return t, nil
		}
	case KindNote:
		if n, ok := s.notes[id]; ok && n.UserID == ownerID {
			return n, nil
		}
	case KindStrategy:
		if st, ok := s.strategies[id]; ok {
			return st, nil
		}
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	return nil, ErrNotFound
}

func (s *MemStore) CreateNote(_ context.Context, n Note) (Note, error) {
	if n.UserID == "" {
		return Note{}, fmt.Errorf("note owner is required")
	}
	if strings.TrimSpace(n.Body) == "" && strings.TrimSpace(n.Title) == "" {
		return Note{}, fmt.Errorf("note is empty")
	}
	now := time.Now().UTC()
	n.ID = uuid.NewString()
	n.CreatedAt, n.UpdatedAt = now, now
	s.mu.Lock()
	s.notes[n.ID] = n
	s.mu.Unlock()
	return n, nil
}

func (s *MemStore) UpdateNote(_ context.Context, n Note) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.notes[n.ID]
	if !ok || cur.UserID != n.UserID {
		return Note{}, ErrNotFound
	}
	if n.Title != "" {
		cur.Title = n.Title
	}
	if n.Body != "" {
		cur.Body = n.Body
	}
	if n.TradeID != "" {
		cur.TradeID = n.TradeID
	}
	cur.UpdatedAt = time.Now().UTC()
	s.notes[cur.ID] = cur
	return cur, nil
}

func (s *MemStore) ListNotes(_ context.Context, userID string, limit int) ([]Note, error) {
	s.mu.RLock()
	out := make([]Note, 0)
	for _, n := range s.notes {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) DeleteNote(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	delete(s.notes, id)
	return nil
}

func (s *MemStore) GetMemory(_ context.Context, userID string) (Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[userID]
	if !ok {
		return Memory{UserID: userID}, nil
	}
	return m, nil
}

func (s *MemStore) UpdateMemory(_ context.Context, userID, content string) (Memory, error) {
	m := Memory{UserID: userID, Content: content, UpdatedAt: time.Now().UTC()}
	s.mu.Lock()
	s.memories[userID] = m
	s.mu.Unlock()
	return m, nil
}

func (s *MemStore) Close() {}
