package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	loggerv2 "journalagent/logger/v2"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger loggerv2.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects, pings and creates the journal tables if needed.
func NewPostgresStore(ctx context.Context, connURL string, logger loggerv2.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	logger.Info("postgres store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS journal_trades (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			side        TEXT NOT NULL,
			quantity    DOUBLE PRECISION NOT NULL DEFAULT 0,
			entry_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			exit_price  DOUBLE PRECISION,
			pnl         DOUBLE PRECISION,
			strategy_id TEXT NOT NULL DEFAULT '',
			opened_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			closed_at   TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_journal_trades_user ON journal_trades (user_id);

		CREATE TABLE IF NOT EXISTS journal_notes (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			trade_id   TEXT NOT NULL DEFAULT '',
			title      TEXT NOT NULL DEFAULT '',
			body       TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_journal_notes_user ON journal_notes (user_id, updated_at DESC);

		CREATE TABLE IF NOT EXISTS journal_strategies (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS journal_memories (
			user_id    TEXT PRIMARY KEY,
			content    TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) Exists(ctx context.Context, kind Kind, id, ownerID string) (bool, error) {
	var q string
	args := []any{id}
	switch kind {
	case KindTrade:
		q = `SELECT EXISTS (SELECT 1 FROM journal_trades WHERE id = $1 AND user_id = $2)`
		args = append(args, ownerID)
	case KindNote:
		q = `SELECT EXISTS (SELECT 1 FROM journal_notes WHERE id = $1 AND user_id = $2)`
		args = append(args, ownerID)
	case KindStrategy:
		q = `SELECT EXISTS (SELECT 1 FROM journal_strategies WHERE id = $1)`
	default:
		return false, fmt.Errorf("unknown kind %q", kind)
	}
	var ok bool
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("exists %s: %w", kind, err)
	}
	return ok, nil
}

func (s *PostgresStore) Fetch(ctx context.Context, kind Kind, id, ownerID string) (any, error) {
	var (
		v   any
		err error
	)
	switch kind {
	case KindTrade:
		var t Trade
		err = s.pool.QueryRow(ctx, `
			SELECT id, user_id, symbol, side, quantity, entry_price, exit_price, pnl, strategy_id, opened_at, closed_at
			FROM journal_trades WHERE id = $1 AND user_id = $2`, id, ownerID).
			Scan(&t.ID, &t.UserID, &t.Symbol, &t.Side, &t.Quantity, &t.EntryPrice, &t.ExitPrice, &t.PnL, &t.StrategyID, &t.OpenedAt, &t.ClosedAt)
		v = t
	case KindNote:
		var n Note
		err = s.pool.QueryRow(ctx, `
			SELECT id, user_id, trade_id, title, body, created_at, updated_at
			FROM journal_notes WHERE id = $1 AND user_id = $2`, id, ownerID).
			Scan(&n.ID, &n.UserID, &n.TradeID, &n.Title, &n.Body, &n.CreatedAt, &n.UpdatedAt)
		v = n
	case KindStrategy:
		var st Strategy
		err = s.pool.QueryRow(ctx, `
			SELECT id, name, description, created_at FROM journal_strategies WHERE id = $1`, id).
			Scan(&st.ID, &st.Name, &st.Description, &st.CreatedAt)
		v = st
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", kind, err)
	}
	return v, nil
}

func (s *PostgresStore) CreateNote(ctx context.Context, n Note) (Note, error) {
	if n.UserID == "" {
		return Note{}, fmt.Errorf("note owner is required")
	}
	if strings.TrimSpace(n.Body) == "" && strings.TrimSpace(n.Title) == "" {
		return Note{}, fmt.Errorf("note is empty")
	}
	n.ID = uuid.NewString()
	err := s.pool.QueryRow(ctx, `
		INSERT INTO journal_notes (id, user_id, trade_id, title, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`, n.ID, n.UserID, n.TradeID, n.Title, n.Body).
		Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return Note{}, fmt.Errorf("create note: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) UpdateNote(ctx context.Context, n Note) (Note, error) {
	var out Note
	err := s.pool.QueryRow(ctx, `
		UPDATE journal_notes SET
			title = COALESCE(NULLIF($3, ''), title),
			body = COALESCE(NULLIF($4, ''), body),
			trade_id = COALESCE(NULLIF($5, ''), trade_id),
			updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, trade_id, title, body, created_at, updated_at`,
		n.ID, n.UserID, n.Title, n.Body, n.TradeID).
		Scan(&out.ID, &out.UserID, &out.TradeID, &out.Title, &out.Body, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, fmt.Errorf("update note: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListNotes(ctx context.Context, userID string, limit int) ([]Note, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, trade_id, title, body, created_at, updated_at
		FROM journal_notes WHERE user_id = $1
		ORDER BY updated_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	notes := make([]Note, 0)
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.UserID, &n.TradeID, &n.Title, &n.Body, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (s *PostgresStore) DeleteNote(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM journal_notes WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetMemory(ctx context.Context, userID string) (Memory, error) {
	m := Memory{UserID: userID}
	err := s.pool.QueryRow(ctx, `SELECT content, updated_at FROM journal_memories WHERE user_id = $1`, userID).
		Scan(&m.Content, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, nil
	}
	if err != nil {
		return Memory{}, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) UpdateMemory(ctx context.Context, userID, content string) (Memory, error) {
	m := Memory{UserID: userID, Content: content}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO journal_memories (user_id, content) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()
		RETURNING updated_at`, userID, content).Scan(&m.UpdatedAt)
	if err != nil {
		return Memory{}, fmt.Errorf("update memory: %w", err)
	}
	return m, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
