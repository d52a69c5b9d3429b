package mcpcache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/singleflight"

	"journalagent/llm"
	loggerv2 "journalagent/logger/v2"
	"journalagent/mcpcache/ttl"
	"journalagent/mcpclient"
	"journalagent/tools"
)

// DefaultTTL is how long a merged tool set is served before the gateway is
// asked again.
const DefaultTTL = 5 * time.Minute

// DefaultDegradedTTL is how long a local-only set built during a gateway
// outage is served before the gateway is tried again.
const DefaultDegradedTTL = 15 * time.Second

const refreshKey = "tools"

// HandlerKind says where a tool runs.
type HandlerKind int

const (
	HandlerLocal HandlerKind = iota
	HandlerRemote
)

func (k HandlerKind) String() string {
	if k == HandlerRemote {
		return "remote"
	}
	return "local"
}

// Handler resolves a tool name to its implementation.
type Handler struct {
	Kind  HandlerKind
	Local tools.Tool
	Name  string
}

// ToolSet is an immutable snapshot of every tool offered to the model.
type ToolSet struct {
	Schemas   []llm.ToolSchema
	Handlers  map[string]Handler
	FetchedAt time.Time
	// Degraded is set when the gateway could not be reached and only local
	// tools are present.
	Degraded bool
}

// Lookup returns the handler for name.
func (ts *ToolSet) Lookup(name string) (Handler, bool) {
	h, ok := ts.Handlers[name]
	return h, ok
}

// Subset returns the schemas of the named local tools, in set order.
func (ts *ToolSet) Subset(names []string) []llm.ToolSchema {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make([]llm.ToolSchema, 0, len(names))
	for _, s := range ts.Schemas {
		if want[s.Name] && ts.Handlers[s.Name].Kind == HandlerLocal {
			out = append(out, s)
		}
	}
	return out
}

// RemoteLister lists the gateway's tools.
type RemoteLister interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
}

// Registry builds and caches the merged tool set.
type Registry struct {
	remote RemoteLister
	local  []tools.Tool
	allow  map[string]bool
	cell   *ttl.Cell[*ToolSet]
	logger loggerv2.Logger

	degradedTTL time.Duration
	group       singleflight.Group
}

// NewRegistry creates a registry. allow lists the remote tools that may be
// offered; an empty list offers every remote tool. Local tools must have
// unique names.
func NewRegistry(remote RemoteLister, local []tools.Tool, allow []string, cacheTTL time.Duration, logger loggerv2.Logger) (*Registry, error) {
	if cacheTTL <= 0 {
		cacheTTL = DefaultTTL
	}
	if logger == nil {
		logger = loggerv2.NewNoop()
	}
	seen := make(map[string]bool, len(local))
	for _, t := range local {
		name := t.Schema().Name
		if seen[name] {
			return nil, fmt.Errorf("duplicate local tool %q", name)
		}
		seen[name] = true
	}
	r := &Registry{
		remote: remote,
		local:  local,
		cell:   ttl.New[*ToolSet](cacheTTL),
		logger: logger.With(loggerv2.String("component", "tool_registry")),

		degradedTTL: min(DefaultDegradedTTL, cacheTTL),
	}
	if len(allow) > 0 {
		r.allow = make(map[string]bool, len(allow))
		for _, n := range allow {
			r.allow[n] = true
		}
	}
	return r, nil
}

// GetTools returns the cached tool set, refreshing it when expired.
// It never fails: without a gateway the local tools are returned.
// Concurrent callers share one refresh, and a caller whose ctx ends while
// waiting gets the local tools.
func (r *Registry) GetTools(ctx context.Context) *ToolSet {
	if e, ok := r.cell.Get(); ok {
		return e.Value
	}
	return r.load(ctx)
}

// Refresh rebuilds the tool set regardless of age.
func (r *Registry) Refresh(ctx context.Context) *ToolSet {
	r.cell.Invalidate(nil)
	return r.load(ctx)
}

func (r *Registry) load(ctx context.Context) *ToolSet {
	// the shared refresh outlives any single caller
	fctx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(refreshKey, func() (any, error) {
		if e, ok := r.cell.Get(); ok {
			return e.Value, nil
		}
		return r.build(fctx), nil
	})
	select {
	case res := <-ch:
		return res.Val.(*ToolSet)
	case <-ctx.Done():
		r.logger.Warn("gave up waiting for the tool set, serving local tools only",
			loggerv2.String("reason", ctx.Err().Error()))
		return r.localOnly()
	}
}

func (r *Registry) localOnly() *ToolSet {
	ts := &ToolSet{Handlers: make(map[string]Handler), Degraded: true}
	for _, t := range r.local {
		s := t.Schema()
		ts.Schemas = append(ts.Schemas, s)
		ts.Handlers[s.Name] = Handler{Kind: HandlerLocal, Local: t, Name: s.Name}
	}
	ts.FetchedAt = time.Now()
	return ts
}

func (r *Registry) build(ctx context.Context) *ToolSet {
	start := time.Now()
	ts := r.localOnly()
	ts.Degraded = false

	var remote []mcp.Tool
	var err error
	if r.remote != nil {
		remote, err = r.remote.ListTools(ctx)
	}
	if err != nil {
		r.logger.Error("gateway tool listing failed, serving local tools only", err,
			loggerv2.Duration("retry_after", r.degradedTTL))
		ts.Degraded = true
		ts.FetchedAt = time.Now()
		r.cell.SetFor(ts, r.degradedTTL)
		return ts
	}

	sort.Slice(remote, func(i, j int) bool { return remote[i].Name < remote[j].Name })
	skipped := 0
	for _, t := range remote {
		if r.allow != nil && !r.allow[t.Name] {
			skipped++
			continue
		}
		if h, dup := ts.Handlers[t.Name]; dup {
			r.logger.Error("remote tool shadows an existing tool, dropped",
				fmt.Errorf("duplicate tool name %q", t.Name),
				loggerv2.String("existing", h.Kind.String()))
			continue
		}
		ts.Schemas = append(ts.Schemas, mcpclient.ToolSchemaFromMCP(t))
		ts.Handlers[t.Name] = Handler{Kind: HandlerRemote, Name: t.Name}
	}
	ts.FetchedAt = time.Now()
	r.cell.Set(ts)

	r.logger.Info("tool set refreshed",
		loggerv2.Int("local", len(r.local)),
		loggerv2.Int("remote", len(ts.Schemas)-len(r.local)),
		loggerv2.Int("not_allowed", skipped),
		loggerv2.Duration("took", time.Since(start)))
	return ts
}
