package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// StockPriceName is the tool name exposed to the model.
const StockPriceName = "get_stock_price"

// QuoteConfig points get_stock_price at a quote API of the form
// {Endpoint}/{SYMBOL}?apikey=KEY returning a JSON array of quotes.
type QuoteConfig struct {
	Endpoint string
	APIKey   string
}

type stockPriceArgs struct {
	Symbol string `json:"symbol" jsonschema:"ticker symbol, for example AAPL or BTCUSD"`
}

// NewStockPrice creates the get_stock_price tool.
func NewStockPrice(cfg QuoteConfig, client *http.Client) (Tool, error) {
	return newTool(StockPriceName,
		"Get the latest market quote for a ticker: price, daily change, range and volume.",
		nil,
		func(ctx context.Context, a stockPriceArgs, _ Context) Result {
			symbol := strings.ToUpper(strings.TrimSpace(a.Symbol))
			if symbol == "" {
				return Failure("symbol is empty")
			}
			if cfg.Endpoint == "" {
				return Failure("price feed is not configured")
			}
			u := strings.TrimRight(cfg.Endpoint, "/") + "/" + url.PathEscape(symbol)
			if cfg.APIKey != "" {
				u += "?apikey=" + url.QueryEscape(cfg.APIKey)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return Failure("quote request: %v", err)
			}
			body, err := doRequest(client, req)
			if err != nil {
				return Failure("quote lookup for %s failed: %v", symbol, err)
			}
			q := gjson.GetBytes(body, "0")
			if !q.Exists() || !q.Get("price").Exists() {
				return Failure("no quote found for %s", symbol)
			}
			return Result{Text: fmt.Sprintf(
				"%s (%s): price %.2f, change %.2f (%.2f%%), day range %.2f-%.2f, volume %d",
				symbol, q.Get("name").String(),
				q.Get("price").Float(), q.Get("change").Float(), q.Get("changesPercentage").Float(),
				q.Get("dayLow").Float(), q.Get("dayHigh").Float(), q.Get("volume").Int(),
			)}
		})
}
