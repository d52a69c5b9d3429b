package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ChartName is the tool name exposed to the model.
const ChartName = "generate_chart"

// DefaultChartBaseURL renders Chart.js configurations as images.
const DefaultChartBaseURL = "https://quickchart.io/chart"

type chartSeries struct {
	Label  string    `json:"label" jsonschema:"series name"`
	Values []float64 `json:"values" jsonschema:"one value per label"`
}

type chartArgs struct {
	Type   string        `json:"type" jsonschema:"chart type"`
	Title  string        `json:"title,omitempty" jsonschema:"chart title"`
	Labels []string      `json:"labels" jsonschema:"x-axis labels or pie slice names"`
	Series []chartSeries `json:"series" jsonschema:"data series to plot"`
}

// NewChart creates the generate_chart tool. The rendered chart is returned
// as an image marker so the model can see it.
func NewChart(baseURL string) (Tool, error) {
	if baseURL == "" {
		baseURL = DefaultChartBaseURL
	}
	return newTool(ChartName,
		"Render a chart (equity curve, P&L by month, win rate by setup...) from data you already have.",
		map[string][]string{"type": {"line", "bar", "pie", "doughnut"}},
		func(_ context.Context, a chartArgs, _ Context) Result {
			u, err := chartURL(baseURL, a)
			if err != nil {
				return Failure("%v", err)
			}
			return Result{
				Text:     fmt.Sprintf("Chart generated: %s", u),
				ImageURL: u,
			}
		})
}

func chartURL(baseURL string, a chartArgs) (string, error) {
	if len(a.Labels) == 0 || len(a.Series) == 0 {
		return "", fmt.Errorf("chart needs labels and at least one series")
	}
	datasets := make([]map[string]any, 0, len(a.Series))
	for _, s := range a.Series {
		if len(s.Values) != len(a.Labels) {
			return "", fmt.Errorf("series %q has %d values for %d labels", s.Label, len(s.Values), len(a.Labels))
		}
		datasets = append(datasets, map[string]any{"label": s.Label, "data": s.Values})
	}
	cfg := map[string]any{
		"type": strings.ToLower(a.Type),
		"data": map[string]any{"labels": a.Labels, "datasets": datasets},
	}
	if a.Title != "" {
		cfg["options"] = map[string]any{"title": map[string]any{"display": true, "text": a.Title}}
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return baseURL + "?w=800&h=450&c=" + url.QueryEscape(string(data)), nil
}
