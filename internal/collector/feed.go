package collector

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"cosmossdk.io/math"

	"YieldVault/internal/oracle"
)

// StaticFeed returns a controllable fixed reading for development and testing.
type StaticFeed struct {
	FeedID string
	// Clock, if set, stamps every reading with the read time so a fixed
	// price never ages.
	Clock func() time.Time

	mu      sync.Mutex
	reading oracle.Reading
	err     error
}

// NewStaticFeed creates a feed that reports value at the given decimals.
func NewStaticFeed(id string, value math.Int, decimals uint8, ts time.Time) *StaticFeed {
	return &StaticFeed{
		FeedID:  id,
		reading: oracle.Reading{Value: value, Decimals: decimals, Timestamp: ts},
	}
}

func (f *StaticFeed) ID() string { return f.FeedID }

func (f *StaticFeed) Read(_ context.Context) (oracle.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.reading
	if f.Clock != nil {
		r.Timestamp = f.Clock()
	}
	return r, f.err
}

// Set replaces the reading returned by subsequent reads.
func (f *StaticFeed) Set(value math.Int, ts time.Time) {
	f.mu.Lock()
	f.reading.Value = value
	f.reading.Timestamp = ts
	f.err = nil
	f.mu.Unlock()
}

// Fail makes subsequent reads return err.
func (f *StaticFeed) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func newHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}
