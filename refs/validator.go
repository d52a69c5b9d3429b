package refs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	loggerv2 "journalagent/logger/v2"
	"journalagent/store"
)

// ValidationResult splits the references in a text into ids that exist
// for the caller and ids that do not.
type ValidationResult struct {
	Valid   map[store.Kind][]string
	Invalid map[store.Kind][]string
}

// HasInvalid reports whether any reference failed validation.
func (r ValidationResult) HasInvalid() bool {
	for _, ids := range r.Invalid {
		if len(ids) > 0 {
			return true
		}
	}
	return false
}

// InvalidCount returns the number of distinct invalid ids.
func (r ValidationResult) InvalidCount() int {
	n := 0
	for _, ids := range r.Invalid {
		n += len(ids)
	}
	return n
}

// Validator checks references against an EntityStore.
type Validator struct {
	store       store.EntityStore
	logger      loggerv2.Logger
	concurrency int
}

// NewValidator creates a validator. concurrency bounds in-flight lookups.
func NewValidator(s store.EntityStore, logger loggerv2.Logger, concurrency int) *Validator {
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = loggerv2.NewNoop()
	}
	return &Validator{store: s, logger: logger, concurrency: concurrency}
}

// Validate checks every distinct reference in text. Owned kinds are
// looked up for ownerID only. A lookup error counts as invalid so an
// unverified tag never reaches the caller.
func (v *Validator) Validate(ctx context.Context, text, ownerID string) ValidationResult {
	res := ValidationResult{
		Valid:   make(map[store.Kind][]string),
		Invalid: make(map[store.Kind][]string),
	}
	unique := Unique(Parse(text))
	if len(unique) == 0 {
		return res
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for kind, ids := range unique {
		owner := ""
		if kind.Owned() {
			owner = ownerID
		}
		for _, id := range ids {
			g.Go(func() error {
				ok, err := v.store.Exists(gctx, kind, id, owner)
				if err != nil {
					v.logger.Warn("reference lookup failed",
						loggerv2.String("kind", string(kind)),
						loggerv2.String("id", id),
						loggerv2.Error(err))
				}
				mu.Lock()
				defer mu.Unlock()
				if ok && err == nil {
					res.Valid[kind] = append(res.Valid[kind], id)
				} else {
					res.Invalid[kind] = append(res.Invalid[kind], id)
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	for _, m := range []map[store.Kind][]string{res.Valid, res.Invalid} {
		for k := range m {
			sort.Strings(m[k])
		}
	}
	return res
}

// CorrectionPrompt builds the internal instruction asking the model to
// rewrite its answer without the invalid references.
func CorrectionPrompt(r ValidationResult) string {
	var sb strings.Builder
	sb.WriteString("Your previous answer referenced records that do not exist for this user:\n")
	for _, k := range store.Kinds {
		for _, id := range r.Invalid[k] {
			fmt.Fprintf(&sb, "- %s %q\n", k, id)
		}
	}
	if len(r.Valid) > 0 {
		sb.WriteString("These references were verified and may be kept:\n")
		for _, k := range store.Kinds {
			for _, id := range r.Valid[k] {
				fmt.Fprintf(&sb, "- %s %q\n", k, id)
			}
		}
	}
	sb.WriteString("Rewrite the full answer. Only reference records whose ids you obtained from a tool result; " +
		"look them up with the available tools if needed, otherwise drop the reference. " +
		"Do not mention this correction.")
	return sb.String()
}
