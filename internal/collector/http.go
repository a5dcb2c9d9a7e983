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

	"YieldVault/internal/oracle"
)

// HTTPFeed reads a price from a JSON price API.
type HTTPFeed struct {
	FeedID  string
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPFeed creates a new feed with optional proxy support.
func NewHTTPFeed(feedID, baseURL, apiKey, proxyURL string) *HTTPFeed {
	return &HTTPFeed{
		FeedID:  feedID,
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  newHTTPClient(proxyURL),
	}
}

func (f *HTTPFeed) ID() string { return f.FeedID }

// priceResponse is the expected JSON shape from the price API. Value is a
// decimal integer string so 18-decimal prices survive the trip.
type priceResponse struct {
	FeedID      string `json:"feed_id"`
	Value       string `json:"value"`
	Decimals    uint8  `json:"decimals"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func (f *HTTPFeed) Read(ctx context.Context) (oracle.Reading, error) {
	endpoint := fmt.Sprintf("%s/api/v1/price?feed=%s", f.BaseURL, url.QueryEscape(f.FeedID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return oracle.Reading{}, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return oracle.Reading{}, fmt.Errorf("fetch price: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return oracle.Reading{}, fmt.Errorf("fetch price: status %d, body: %s", resp.StatusCode, string(body))
	}

	var pr priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return oracle.Reading{}, fmt.Errorf("decode price: %w", err)
	}
	if pr.FeedID != "" && pr.FeedID != f.FeedID {
		return oracle.Reading{}, fmt.Errorf("price api answered for feed %q, asked %q", pr.FeedID, f.FeedID)
	}
	value, ok := math.NewIntFromString(pr.Value)
	if !ok {
		return oracle.Reading{}, fmt.Errorf("decode price: bad value %q", pr.Value)
	}
	return oracle.Reading{
		Value:     value,
		Decimals:  pr.Decimals,
		Timestamp: time.UnixMilli(pr.TimestampMs),
	}, nil
}
