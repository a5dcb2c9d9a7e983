package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"YieldVault/internal/oracle"
)

// Binding ties an oracle cache key to the feed that refreshes it.
type Binding struct {
	Key  string
	Feed oracle.Feed
}

// Result is the outcome of refreshing one key.
type Result struct {
	Key   string
	Entry oracle.Entry
	Err   error
}

// Collector pulls every bound feed into the price cache.
type Collector struct {
	bindings []Binding
	log      *zap.Logger
}

// NewCollector creates a new Collector.
func NewCollector(log *zap.Logger, bindings ...Binding) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{bindings: bindings, log: log}
}

// Bindings returns the configured bindings.
func (c *Collector) Bindings() []Binding {
	return append([]Binding(nil), c.bindings...)
}

// Refresh updates every bound key at now. A failing feed does not stop the
// others; all failures are joined into the returned error.
func (c *Collector) Refresh(ctx context.Context, cache *oracle.Cache, now time.Time) ([]Result, error) {
	results := make([]Result, 0, len(c.bindings))
	var errs []error
	for _, b := range c.bindings {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		entry, err := cache.Update(ctx, b.Key, b.Feed, now)
		results = append(results, Result{Key: b.Key, Entry: entry, Err: err})
		if err != nil {
			c.log.Warn("oracle refresh failed", zap.String("asset_key", b.Key), zap.Error(err))
			errs = append(errs, fmt.Errorf("refresh %s: %w", b.Key, err))
			continue
		}
		c.log.Info("oracle refreshed",
			zap.String("asset_key", b.Key),
			zap.String("raw", entry.RawPrice.String()),
			zap.Uint8("feed_decimals", entry.FeedDecimals))
	}
	return results, errors.Join(errs...)
}
