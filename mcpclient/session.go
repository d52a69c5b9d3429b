package mcpclient

import (
	"context"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	loggerv2 "journalagent/logger/v2"
	"journalagent/mcpcache/ttl"
)

// DefaultSessionTTL is how long a gateway session is reused before a new
// handshake is performed.
const DefaultSessionTTL = 10 * time.Minute

// Session is an established gateway session.
type Session struct {
	ID            string
	EstablishedAt time.Time
	conn          Conn
	closeOnce     sync.Once
}

func (s *Session) close() (err error) {
	s.closeOnce.Do(func() { err = s.conn.Close() })
	return err
}

// CallResult is the unwrapped outcome of a gateway tool call.
type CallResult struct {
	Text    string
	IsError bool
}

// SessionManager owns the process-wide gateway session. Readers share the
// cached session; handshakes are serialised.
type SessionManager struct {
	dialer Dialer
	cell   *ttl.Cell[*Session]
	logger loggerv2.Logger

	mu   sync.Mutex
	last *Session
	// retireAfter delays closing a replaced session so in-flight calls finish.
	retireAfter time.Duration
}

// NewSessionManager creates a manager. A zero ttl uses DefaultSessionTTL.
func NewSessionManager(dialer Dialer, sessionTTL time.Duration, logger loggerv2.Logger) *SessionManager {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	if logger == nil {
		logger = loggerv2.NewNoop()
	}
	return &SessionManager{
		dialer:      dialer,
		cell:        ttl.New[*Session](sessionTTL),
		logger:      logger.With(loggerv2.String("component", "gateway")),
		retireAfter: time.Minute,
	}
}

// EnsureSession returns the cached session or performs a new handshake.
// It returns nil when the handshake fails.
func (m *SessionManager) EnsureSession(ctx context.Context) *Session {
	if e, ok := m.cell.Get(); ok {
		return e.Value
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// another caller may have completed the handshake while we waited
	if e, ok := m.cell.Get(); ok {
		return e.Value
	}

	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		m.logger.Error("gateway handshake failed", err)
		return nil
	}
	s := &Session{ID: conn.SessionID(), EstablishedAt: time.Now(), conn: conn}
	m.cell.Set(s)
	if m.last != nil {
		m.retire(m.last, m.retireAfter)
	}
	m.last = s
	m.logger.Info("gateway session established", loggerv2.String("session_id", s.ID))
	return s
}

// Invalidate drops s from the cache if it is still current. The connection
// is closed after the retire delay so sibling calls already running on it
// can finish.
func (m *SessionManager) Invalidate(s *Session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.cell.Peek(); e != nil && e.Value == s {
		m.cell.Invalidate(e)
	}
	if m.last == s {
		m.last = nil
	}
	m.retire(s, m.retireAfter)
}

func (m *SessionManager) retire(s *Session, after time.Duration) {
	closeConn := func() {
		if err := s.close(); err != nil {
			m.logger.Debug("closing retired session", loggerv2.String("session_id", s.ID), loggerv2.Error(err))
		}
	}
	if after <= 0 {
		closeConn()
		return
	}
	time.AfterFunc(after, closeConn)
}

// ListTools lists the gateway's tools.
func (m *SessionManager) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return withSession(ctx, m, func(s *Session) ([]mcp.Tool, error) {
		return s.conn.ListTools(ctx)
	})
}

// CallTool invokes a gateway tool. A stale session is replaced and the
// call retried exactly once.
func (m *SessionManager) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	return withSession(ctx, m, func(s *Session) (*CallResult, error) {
		res, err := s.conn.CallTool(ctx, name, args)
		if err != nil {
			return nil, err
		}
		return &CallResult{Text: ResultText(res), IsError: res.IsError}, nil
	})
}

func withSession[T any](ctx context.Context, m *SessionManager, fn func(*Session) (T, error)) (T, error) {
	var zero T
	s := m.EnsureSession(ctx)
	if s == nil {
		return zero, ErrNoSession
	}
	out, err := fn(s)
	if err == nil || !IsStaleSessionError(err) {
		return out, err
	}

	m.logger.Warn("gateway session stale, re-initializing",
		loggerv2.String("session_id", s.ID), loggerv2.Error(err))
	m.Invalidate(s)
	s = m.EnsureSession(ctx)
	if s == nil {
		return zero, ErrNoSession
	}
	return fn(s)
}

// Close closes the current session.
func (m *SessionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last != nil {
		_ = m.last.close()
		m.last = nil
	}
	m.cell.Invalidate(nil)
}
