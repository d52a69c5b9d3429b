package refs

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	loggerv2 "journalagent/logger/v2"
	"journalagent/store"
)

// Resolver fetches the entities referenced by a text.
type Resolver struct {
	store  store.EntityStore
	logger loggerv2.Logger
}

// NewResolver creates a resolver over s.
func NewResolver(s store.EntityStore, logger loggerv2.Logger) *Resolver {
	if logger == nil {
		logger = loggerv2.NewNoop()
	}
	return &Resolver{store: s, logger: logger}
}

// Resolve returns kind -> id -> entity for every reference in text that
// exists for ownerID. Kinds with no resolved entity are omitted.
func (r *Resolver) Resolve(ctx context.Context, text, ownerID string) map[store.Kind]map[string]any {
	out := make(map[store.Kind]map[string]any)
	unique := Unique(Parse(text))
	if len(unique) == 0 {
		return out
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for kind, ids := range unique {
		owner := ""
		if kind.Owned() {
			owner = ownerID
		}
		for _, id := range ids {
			g.Go(func() error {
				v, err := r.store.Fetch(gctx, kind, id, owner)
				if err != nil {
					if !errors.Is(err, store.ErrNotFound) {
						r.logger.Warn("embedded data fetch failed",
							loggerv2.String("kind", string(kind)),
							loggerv2.String("id", id),
							loggerv2.Error(err))
					}
					return nil
				}
				mu.Lock()
				if out[kind] == nil {
					out[kind] = make(map[string]any)
				}
				out[kind][id] = v
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()
	return out
}
