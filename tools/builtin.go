package tools

import (
	"net/http"

	"journalagent/store"
)

// Config configures the built-in tools.
type Config struct {
	Search       SearchConfig
	Quotes       QuoteConfig
	ChartBaseURL string
}

// Builtin constructs every local tool.
func Builtin(cfg Config, client *http.Client, s interface {
	store.NoteStore
	store.MemoryStore
}) ([]Tool, error) {
	if client == nil {
		client = http.DefaultClient
	}
	ctors := []func() (Tool, error){
		func() (Tool, error) { return NewWebSearch(cfg.Search, client) },
		func() (Tool, error) { return NewStockPrice(cfg.Quotes, client) },
		func() (Tool, error) { return NewChart(cfg.ChartBaseURL) },
		func() (Tool, error) { return NewNotes(s) },
		func() (Tool, error) { return NewMemory(s) },
		NewAnalyzeImage,
	}
	out := make([]Tool, 0, len(ctors))
	for _, c := range ctors {
		t, err := c()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
