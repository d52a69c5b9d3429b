package agent

import (
	"context"
	"time"
)

// TruncateString shortens s to at most maxLen bytes, cut at a rune
// boundary, marking the cut.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return ExtractFirstNCharacters(s, maxLen) + "..."
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
