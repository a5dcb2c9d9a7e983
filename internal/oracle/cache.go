// Package oracle caches per-asset USD prices pulled from external feeds.
//
// A cached price is usable only while two windows hold: the cache window
// (time since the price was stored) and the feed window (time since the
// upstream feed produced it). Concurrent updates for the same key are last
// writer wins.
package oracle

import (
	"context"
	"sort"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"go.uber.org/zap"

	"YieldVault/internal/calculator"
	"YieldVault/internal/model"
)

// Reading is a single observation from a price feed.
type Reading struct {
	Value     math.Int
	Decimals  uint8
	Timestamp time.Time
}

// Feed is an upstream price source.
type Feed interface {
	ID() string
	Read(ctx context.Context) (Reading, error)
}

// Asset configures one cache key.
type Asset struct {
	Key           string
	FeedID        string
	AssetDecimals uint8
	MaxFeedAge    time.Duration
}

// Entry is the cached state for one asset.
type Entry struct {
	Asset
	FeedDecimals uint8
	RawPrice     math.Int
	Price        math.Int // calculator.Decimals scale
	CachedAt     time.Time
	SourceTime   time.Time
}

// Cache is the PriceOracleCache.
type Cache struct {
	mu           sync.RWMutex
	entries      map[string]*Entry
	maxStaleness time.Duration
	log          *zap.Logger
}

// NewCache creates a cache whose entries expire maxStaleness after they were stored.
func NewCache(maxStaleness time.Duration, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		entries:      make(map[string]*Entry),
		maxStaleness: maxStaleness,
		log:          log,
	}
}

// MaxStaleness returns the cache window.
func (c *Cache) MaxStaleness() time.Duration { return c.maxStaleness }

// AddAsset registers a key bound to a specific feed.
func (c *Cache) AddAsset(a Asset) error {
	if a.Key == "" || a.FeedID == "" {
		return errorsmod.Wrap(model.ErrInvalidArgument, "asset key and feed id are required")
	}
	if a.AssetDecimals > calculator.MaxDecimals {
		return errorsmod.Wrapf(model.ErrInvalidArgument, "asset decimals %d out of range", a.AssetDecimals)
	}
	if a.MaxFeedAge <= 0 {
		return errorsmod.Wrap(model.ErrInvalidArgument, "max feed age must be positive")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[a.Key]; ok {
		return errorsmod.Wrapf(model.ErrInvalidArgument, "asset %s already registered", a.Key)
	}
	c.entries[a.Key] = &Entry{Asset: a}
	return nil
}

// RemoveAsset drops a key.
func (c *Cache) RemoveAsset(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Update pulls the latest reading from feed and stores it under key. The
// feed must be the one the key was registered with and its reading must be
// fresh under the feed's own window.
func (c *Cache) Update(ctx context.Context, key string, feed Feed, now time.Time) (Entry, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	var asset Asset
	if ok {
		asset = e.Asset
	}
	c.mu.RUnlock()
	if !ok {
		return Entry{}, errorsmod.Wrapf(model.ErrNotFound, "oracle asset %s", key)
	}
	if feed == nil || feed.ID() != asset.FeedID {
		return Entry{}, errorsmod.Wrapf(model.ErrUnauthorized, "feed does not match %s registered for %s", asset.FeedID, key)
	}

	reading, err := feed.Read(ctx)
	if err != nil {
		return Entry{}, errorsmod.Wrapf(err, "read feed %s", asset.FeedID)
	}
	if reading.Value.IsNil() || reading.Value.IsNegative() {
		return Entry{}, errorsmod.Wrapf(model.ErrInvariant, "feed %s returned invalid value", asset.FeedID)
	}
	if reading.Timestamp.After(now) {
		return Entry{}, errorsmod.Wrapf(model.ErrInvariant, "feed %s timestamp %s is ahead of %s", asset.FeedID, reading.Timestamp, now)
	}
	if age := now.Sub(reading.Timestamp); age >= asset.MaxFeedAge {
		return Entry{}, errorsmod.Wrapf(model.ErrStale, "feed %s reading is %s old, limit %s", asset.FeedID, age, asset.MaxFeedAge)
	}
	price, err := calculator.Rescale(reading.Value, reading.Decimals, calculator.Decimals)
	if err != nil {
		return Entry{}, err
	}

	next := &Entry{
		Asset:        asset,
		FeedDecimals: reading.Decimals,
		RawPrice:     reading.Value,
		Price:        price,
		CachedAt:     now,
		SourceTime:   reading.Timestamp,
	}
	c.mu.Lock()
	if _, still := c.entries[key]; !still {
		c.mu.Unlock()
		return Entry{}, errorsmod.Wrapf(model.ErrNotFound, "oracle asset %s removed during update", key)
	}
	c.entries[key] = next
	c.mu.Unlock()

	c.log.Debug("oracle price cached",
		zap.String("asset_key", key),
		zap.String("price", price.String()),
		zap.Time("source_time", reading.Timestamp))
	return *next, nil
}

// Read returns the Decimals-scaled price for key at now.
func (c *Cache) Read(key string, now time.Time) (math.Int, error) {
	e, err := c.fresh(key, now)
	if err != nil {
		return math.Int{}, err
	}
	return e.Price, nil
}

// Normalize rescales a raw reading in the key's native feed decimals onto
// the canonical price scale.
func (c *Cache) Normalize(key string, raw math.Int) (math.Int, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	var decimals uint8
	var cached bool
	if ok {
		decimals = e.FeedDecimals
		cached = !e.CachedAt.IsZero()
	}
	c.mu.RUnlock()
	if !ok {
		return math.Int{}, errorsmod.Wrapf(model.ErrNotFound, "oracle asset %s", key)
	}
	if !cached {
		return math.Int{}, errorsmod.Wrapf(model.ErrStale, "oracle asset %s has no reading yet", key)
	}
	return calculator.Rescale(raw, decimals, calculator.Decimals)
}

// Value prices amount native units of key at now.
func (c *Cache) Value(key string, amount math.Int, now time.Time) (math.Int, error) {
	e, err := c.fresh(key, now)
	if err != nil {
		return math.Int{}, err
	}
	return calculator.ValueOf(amount, e.Price, e.AssetDecimals)
}

// Entry returns a copy of the cached entry.
func (c *Cache) Entry(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Keys lists registered assets in order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// At binds the cache to one evaluation instant.
func (c *Cache) At(now time.Time) View {
	return View{cache: c, now: now}
}

func (c *Cache) fresh(key string, now time.Time) (Entry, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	var snap Entry
	if ok {
		snap = *e
	}
	c.mu.RUnlock()
	if !ok {
		return Entry{}, errorsmod.Wrapf(model.ErrNotFound, "oracle asset %s", key)
	}
	if snap.CachedAt.IsZero() {
		return Entry{}, errorsmod.Wrapf(model.ErrStale, "oracle asset %s has no reading yet", key)
	}
	if age := now.Sub(snap.CachedAt); age >= c.maxStaleness {
		return Entry{}, errorsmod.Wrapf(model.ErrStale, "cached price for %s is %s old, limit %s", key, age, c.maxStaleness)
	}
	if age := now.Sub(snap.SourceTime); age >= snap.MaxFeedAge {
		return Entry{}, errorsmod.Wrapf(model.ErrStale, "feed reading for %s is %s old, limit %s", key, age, snap.MaxFeedAge)
	}
	return snap, nil
}

// View is a cache pinned to a single evaluation instant.
type View struct {
	cache *Cache
	now   time.Time
}

// Price returns the canonical price of key.
func (v View) Price(key string) (math.Int, error) { return v.cache.Read(key, v.now) }

// Value prices amount native units of key.
func (v View) Value(key string, amount math.Int) (math.Int, error) {
	return v.cache.Value(key, amount, v.now)
}

// Decimals returns the native decimals of the asset behind key.
func (v View) Decimals(key string) (uint8, error) {
	e, ok := v.cache.Entry(key)
	if !ok {
		return 0, errorsmod.Wrapf(model.ErrNotFound, "oracle asset %s", key)
	}
	return e.AssetDecimals, nil
}

// Now is the instant the view is pinned to.
func (v View) Now() time.Time { return v.now }
