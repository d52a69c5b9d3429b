package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreScoping(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	s.PutTrade(Trade{ID: "t1", UserID: "alice", Symbol: "AAPL"})
	s.PutStrategy(Strategy{ID: "breakout", Name: "Breakout"})

	tests := []struct {
		kind  Kind
		id    string
		owner string
		want  bool
	}{
		{KindTrade, "t1", "alice", true},
		{KindTrade, "t1", "bob", false},
		{KindTrade, "missing", "alice", false},
		{KindStrategy, "breakout", "bob", true},
		{KindStrategy, "breakout", "", true},
	}
	for _, tt := range tests {
		got, err := s.Exists(ctx, tt.kind, tt.id, tt.owner)
		require.NoError(t, err)
		if got != tt.want {
			t.Errorf("Exists(%s, %q, %q) = %v, want %v", tt.kind, tt.id, tt.owner, got, tt.want)
		}
	}

	_, err := s.Exists(ctx, Kind("widget"), "x", "alice")
	assert.Error(t, err)
}

func TestMemStoreNotes(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	n, err := s.CreateNote(ctx, Note{UserID: "alice", Title: "FOMC", Body: "sized down"})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)

	_, err = s.CreateNote(ctx, Note{UserID: "alice"})
	assert.Error(t, err, "empty note rejected")

	upd, err := s.UpdateNote(ctx, Note{ID: n.ID, UserID: "alice", Body: "sized down, held overnight"})
	require.NoError(t, err)
	assert.Equal(t, "FOMC", upd.Title)
	assert.Equal(t, "sized down, held overnight", upd.Body)

	_, err = s.UpdateNote(ctx, Note{ID: n.ID, UserID: "bob", Body: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.ListNotes(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, s.DeleteNote(ctx, "bob", n.ID), ErrNotFound)
	require.NoError(t, s.DeleteNote(ctx, "alice", n.ID))
	ok, err := s.Exists(ctx, KindNote, n.ID, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemStoreMemory(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	m, err := s.GetMemory(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, m.Content)

	_, err = s.UpdateMemory(ctx, "alice", "prefers swing trades")
	require.NoError(t, err)
	m, err = s.GetMemory(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "prefers swing trades", m.Content)
}

func TestKind(t *testing.T) {
	assert.True(t, KindTrade.Owned())
	assert.True(t, KindNote.Owned())
	assert.False(t, KindStrategy.Owned())
	assert.True(t, KindStrategy.Valid())
	assert.False(t, Kind("widget").Valid())
}
