package mcpcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journalagent/llm"
	"journalagent/tools"
)

type stubTool struct{ name string }

func (s stubTool) Schema() llm.ToolSchema {
	return llm.ToolSchema{Name: s.name, Parameters: &llm.Schema{Type: "object"}}
}
func (s stubTool) Execute(context.Context, map[string]any, tools.Context) tools.Result {
	return tools.Result{Text: s.name}
}

type stubLister struct {
	mu    sync.Mutex
	calls int
	tools []mcp.Tool
	err   error
	// release, when set, blocks ListTools until closed
	release chan struct{}
	delay   time.Duration
}

func (l *stubLister) ListTools(context.Context) ([]mcp.Tool, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if l.release != nil {
		<-l.release
	}
	time.Sleep(l.delay)
	return l.tools, l.err
}

func (l *stubLister) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func remoteTool(name string) mcp.Tool {
	return mcp.Tool{Name: name, InputSchema: mcp.ToolInputSchema{Type: "object"}}
}

func TestGetToolsMergesAndCaches(t *testing.T) {
	lister := &stubLister{tools: []mcp.Tool{remoteTool("list_trades"), remoteTool("drop_table"), remoteTool("web_search")}}
	r, err := NewRegistry(lister, []tools.Tool{stubTool{"web_search"}, stubTool{"generate_chart"}},
		[]string{"list_trades", "web_search"}, 0, nil)
	require.NoError(t, err)

	ts := r.GetTools(context.Background())
	names := make([]string, 0, len(ts.Schemas))
	for _, s := range ts.Schemas {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"web_search", "generate_chart", "list_trades"}, names)

	h, ok := ts.Lookup("web_search")
	require.True(t, ok)
	assert.Equal(t, HandlerLocal, h.Kind, "local tool is never overridden")
	h, _ = ts.Lookup("list_trades")
	assert.Equal(t, HandlerRemote, h.Kind)
	_, ok = ts.Lookup("drop_table")
	assert.False(t, ok, "not allow-listed")

	assert.Same(t, ts, r.GetTools(context.Background()))
	assert.Equal(t, 1, lister.callCount())

	r.Refresh(context.Background())
	assert.Equal(t, 2, lister.callCount())
}

func TestGetToolsGatewayDown(t *testing.T) {
	lister := &stubLister{err: errors.New("gateway session unavailable")}
	r, err := NewRegistry(lister, []tools.Tool{stubTool{"web_search"}}, nil, 0, nil)
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	r.cell.WithClock(func() time.Time { return now })

	ts := r.GetTools(context.Background())
	assert.True(t, ts.Degraded)
	require.Len(t, ts.Schemas, 1)

	r.GetTools(context.Background())
	assert.Equal(t, 1, lister.callCount(), "degraded set served during the retry window")

	now = now.Add(DefaultDegradedTTL)
	lister.err = nil
	lister.tools = []mcp.Tool{remoteTool("list_trades")}
	ts = r.GetTools(context.Background())
	assert.Equal(t, 2, lister.callCount())
	assert.False(t, ts.Degraded)
	assert.Len(t, ts.Schemas, 2)
}

func TestConcurrentMissesShareOneListing(t *testing.T) {
	lister := &stubLister{err: errors.New("dial timeout"), delay: 200 * time.Millisecond}
	r, err := NewRegistry(lister, []tools.Tool{stubTool{"web_search"}}, nil, 0, nil)
	require.NoError(t, err)

	start := time.Now()
	var wg sync.WaitGroup
	results := make([]*ToolSet, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.GetTools(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, lister.callCount())
	assert.Less(t, time.Since(start), 800*time.Millisecond)
	for _, ts := range results {
		require.NotNil(t, ts)
		assert.True(t, ts.Degraded)
	}
}

func TestGetToolsHonoursContextWhileWaiting(t *testing.T) {
	lister := &stubLister{tools: []mcp.Tool{remoteTool("list_trades")}, release: make(chan struct{})}
	r, err := NewRegistry(lister, []tools.Tool{stubTool{"web_search"}}, nil, 0, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ts := r.GetTools(ctx)
	assert.True(t, ts.Degraded)
	require.Len(t, ts.Schemas, 1)
	assert.Equal(t, "web_search", ts.Schemas[0].Name)

	close(lister.release)
	require.Eventually(t, func() bool {
		e, ok := r.cell.Get()
		return ok && !e.Value.Degraded
	}, time.Second, 5*time.Millisecond, "the shared listing still completes and is cached")
	assert.Len(t, r.GetTools(context.Background()).Schemas, 2)
}

func TestDuplicateLocalToolsRejected(t *testing.T) {
	_, err := NewRegistry(nil, []tools.Tool{stubTool{"a"}, stubTool{"a"}}, nil, 0, nil)
	assert.Error(t, err)
}

func TestSubsetOnlyLocal(t *testing.T) {
	lister := &stubLister{tools: []mcp.Tool{remoteTool("list_trades")}}
	r, err := NewRegistry(lister, []tools.Tool{stubTool{"web_search"}, stubTool{"generate_chart"}}, nil, 0, nil)
	require.NoError(t, err)

	sub := r.GetTools(context.Background()).Subset([]string{"generate_chart", "list_trades", "missing"})
	require.Len(t, sub, 1)
	assert.Equal(t, "generate_chart", sub[0].Name)
}
