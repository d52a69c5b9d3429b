package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     string
	callFn func(name string, args map[string]any) (*mcp.CallToolResult, error)
	tools  []mcp.Tool
	closed atomic.Bool
}

func (c *fakeConn) SessionID() string { return c.id }
func (c *fakeConn) ListTools(context.Context) ([]mcp.Tool, error) {
	return c.tools, nil
}
func (c *fakeConn) CallTool(_ context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return c.callFn(name, args)
}
func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	dials int
	fail  bool
	conns []*fakeConn
	make  func(n int) *fakeConn
}

func (d *fakeDialer) Dial(context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail {
		return nil, errors.New("connection refused")
	}
	c := d.make(d.dials)
	d.conns = append(d.conns, c)
	return c, nil
}

func textResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: s}}}
}

func TestEnsureSessionCaches(t *testing.T) {
	d := &fakeDialer{make: func(n int) *fakeConn { return &fakeConn{id: fmt.Sprintf("s%d", n)} }}
	m := NewSessionManager(d, 0, nil)

	s1 := m.EnsureSession(context.Background())
	s2 := m.EnsureSession(context.Background())
	require.NotNil(t, s1)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, d.dials)
}

func TestEnsureSessionConcurrentSingleHandshake(t *testing.T) {
	d := &fakeDialer{make: func(n int) *fakeConn { return &fakeConn{id: fmt.Sprintf("s%d", n)} }}
	m := NewSessionManager(d, 0, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotNil(t, m.EnsureSession(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, d.dials)
}

func TestEnsureSessionHandshakeFailure(t *testing.T) {
	m := NewSessionManager(&fakeDialer{fail: true}, 0, nil)
	assert.Nil(t, m.EnsureSession(context.Background()))

	_, err := m.CallTool(context.Background(), "list_trades", nil)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestCallToolRetriesOnceOnStaleSession(t *testing.T) {
	d := &fakeDialer{make: func(n int) *fakeConn {
		return &fakeConn{id: fmt.Sprintf("s%d", n), callFn: func(string, map[string]any) (*mcp.CallToolResult, error) {
			if n == 1 {
				return nil, transport.ErrSessionTerminated
			}
			return textResult(`{"trades":[]}`), nil
		}}
	}}
	m := NewSessionManager(d, 0, nil)
	m.retireAfter = 10 * time.Millisecond

	res, err := m.CallTool(context.Background(), "list_trades", map[string]any{"limit": 5})
	require.NoError(t, err)
	assert.Equal(t, `{"trades":[]}`, res.Text)
	assert.False(t, res.IsError)
	assert.Equal(t, 2, d.dials)
	assert.Eventually(t, d.conns[0].closed.Load, time.Second, 5*time.Millisecond, "stale session closed")
}

func TestInvalidateLetsSiblingCallsFinish(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	d := &fakeDialer{}
	d.make = func(n int) *fakeConn {
		c := &fakeConn{id: fmt.Sprintf("s%d", n)}
		c.callFn = func(name string, _ map[string]any) (*mcp.CallToolResult, error) {
			if n == 1 && name == "slow" {
				close(started)
				<-release
				if c.closed.Load() {
					return nil, errors.New("transport closed")
				}
				return textResult("slow done"), nil
			}
			if n == 1 {
				return nil, transport.ErrSessionTerminated
			}
			return textResult("fresh"), nil
		}
		return c
	}
	m := NewSessionManager(d, 0, nil)
	m.retireAfter = 50 * time.Millisecond

	var wg sync.WaitGroup
	var slow *CallResult
	var slowErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		slow, slowErr = m.CallTool(context.Background(), "slow", nil)
	}()
	<-started

	res, err := m.CallTool(context.Background(), "list_trades", nil)
	require.NoError(t, err)
	assert.Equal(t, "fresh", res.Text)
	assert.False(t, d.conns[0].closed.Load(), "still open for the sibling call")

	close(release)
	wg.Wait()
	require.NoError(t, slowErr)
	assert.Equal(t, "slow done", slow.Text)
	assert.Eventually(t, d.conns[0].closed.Load, time.Second, 5*time.Millisecond)
	m.Close()
}

func TestCallToolDoesNotRetryTwice(t *testing.T) {
	d := &fakeDialer{make: func(n int) *fakeConn {
		return &fakeConn{id: fmt.Sprintf("s%d", n), callFn: func(string, map[string]any) (*mcp.CallToolResult, error) {
			return nil, errors.New("session not found")
		}}
	}}
	m := NewSessionManager(d, 0, nil)

	_, err := m.CallTool(context.Background(), "list_trades", nil)
	assert.Error(t, err)
	assert.Equal(t, 2, d.dials)
}

func TestCallToolNonStaleErrorNotRetried(t *testing.T) {
	d := &fakeDialer{make: func(n int) *fakeConn {
		return &fakeConn{id: "s", callFn: func(string, map[string]any) (*mcp.CallToolResult, error) {
			return nil, errors.New("bad arguments")
		}}
	}}
	m := NewSessionManager(d, 0, nil)
	_, err := m.CallTool(context.Background(), "list_trades", nil)
	assert.EqualError(t, err, "bad arguments")
	assert.Equal(t, 1, d.dials)
}

func TestIsStaleSessionError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{transport.ErrSessionTerminated, true},
		{fmt.Errorf("call: %w", transport.ErrSessionTerminated), true},
		{errors.New("Invalid session ID"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("tool returned 500"), false},
	}
	for _, tt := range tests {
		if got := IsStaleSessionError(tt.err); got != tt.want {
			t.Errorf("IsStaleSessionError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
