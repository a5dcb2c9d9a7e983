package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"YieldVault/internal/oracle"
)

const defaultChartURL = "https://query1.finance.yahoo.com"

// ChartFeed reads the last market price from a Yahoo Finance style chart
// endpoint. The float quote is converted to a fixed-point integer with
// Decimals places.
type ChartFeed struct {
	FeedID   string
	Symbol   string
	Decimals uint8
	BaseURL  string
	Client   *http.Client
}

// NewChartFeed creates a chart feed for symbol.
func NewChartFeed(feedID, symbol string, decimals uint8, baseURL, proxyURL string) *ChartFeed {
	if baseURL == "" {
		baseURL = defaultChartURL
	}
	return &ChartFeed{
		FeedID:   feedID,
		Symbol:   symbol,
		Decimals: decimals,
		BaseURL:  baseURL,
		Client:   newHTTPClient(proxyURL),
	}
}

func (f *ChartFeed) ID() string { return f.FeedID }

// chartResponse is the subset of the chart API response we consume.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string      `json:"currency"`
				RegularMarketPrice json.Number `json:"regularMarketPrice"`
				RegularMarketTime  int64       `json:"regularMarketTime"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (f *ChartFeed) Read(ctx context.Context) (oracle.Reading, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1m&range=1d", f.BaseURL, url.PathEscape(f.Symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return oracle.Reading{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return oracle.Reading{}, fmt.Errorf("chart fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return oracle.Reading{}, fmt.Errorf("chart read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return oracle.Reading{}, fmt.Errorf("chart: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return oracle.Reading{}, fmt.Errorf("chart decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return oracle.Reading{}, fmt.Errorf("chart api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return oracle.Reading{}, fmt.Errorf("chart: no data returned")
	}
	meta := chart.Chart.Result[0].Meta
	if meta.Currency != "" && meta.Currency != "USD" {
		return oracle.Reading{}, fmt.Errorf("chart: %s quoted in %s, want USD", f.Symbol, meta.Currency)
	}

	price, err := decimal.NewFromString(meta.RegularMarketPrice.String())
	if err != nil {
		return oracle.Reading{}, fmt.Errorf("chart price %q: %w", meta.RegularMarketPrice, err)
	}
	if price.IsNegative() {
		return oracle.Reading{}, fmt.Errorf("chart: negative price %s", price)
	}
	return oracle.Reading{
		Value:     math.NewIntFromBigInt(price.Shift(int32(f.Decimals)).Truncate(0).BigInt()),
		Decimals:  f.Decimals,
		Timestamp: time.Unix(meta.RegularMarketTime, 0),
	}, nil
}
