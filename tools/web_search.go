package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// WebSearchName is the tool name exposed to the model.
const WebSearchName = "web_search"

// SearchConfig points web_search at a search API that accepts
// {"api_key","query","max_results"} and answers {"answer","results":[{"title","url","content"}]}.
type SearchConfig struct {
	Endpoint   string
	APIKey     string
	MaxResults int
}

type webSearchArgs struct {
	Query      string `json:"query" jsonschema:"what to search the web for"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"number of results to return, 1 to 10"`
}

// NewWebSearch creates the web_search tool.
func NewWebSearch(cfg SearchConfig, client *http.Client) (Tool, error) {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	return newTool(WebSearchName,
		"Search the web for market news, earnings, macro events or any fact not in the user's journal. Returns sources.",
		nil,
		func(ctx context.Context, a webSearchArgs, _ Context) Result {
			return webSearch(ctx, client, cfg, a)
		})
}

func webSearch(ctx context.Context, client *http.Client, cfg SearchConfig, a webSearchArgs) Result {
	query := strings.TrimSpace(a.Query)
	if query == "" {
		return Failure("query is empty")
	}
	if cfg.Endpoint == "" {
		return Failure("web search is not configured")
	}
	n := a.MaxResults
	if n <= 0 || n > 10 {
		n = cfg.MaxResults
	}

	payload, _ := json.Marshal(map[string]any{
		"api_key":        cfg.APIKey,
		"query":          query,
		"max_results":    n,
		"include_answer": true,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return Failure("search request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := doRequest(client, req)
	if err != nil {
		return Failure("search failed: %v", err)
	}

	var sb strings.Builder
	if answer := gjson.GetBytes(body, "answer").String(); answer != "" {
		fmt.Fprintf(&sb, "Summary: %s\n\n", answer)
	}
	var cites []Citation
	gjson.GetBytes(body, "results").ForEach(func(_, r gjson.Result) bool {
		c := Citation{
			Title:   r.Get("title").String(),
			URL:     r.Get("url").String(),
			Snippet: truncate(r.Get("content").String(), 400),
		}
		if c.URL == "" {
			return true
		}
		cites = append(cites, c)
		fmt.Fprintf(&sb, "[%d] %s (%s)\n%s\n\n", len(cites), c.Title, c.URL, c.Snippet)
		return len(cites) < n
	})
	if len(cites) == 0 && sb.Len() == 0 {
		return Result{Text: fmt.Sprintf("No results found for %q.", query)}
	}
	return Result{Text: strings.TrimSpace(sb.String()), Citations: cites}
}

// doRequest performs req and returns the body of a 2xx response.
func doRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
