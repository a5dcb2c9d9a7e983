package main

import (
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"YieldVault/internal/adaptor"
	"YieldVault/internal/api"
	"YieldVault/internal/collector"
	"YieldVault/internal/config"
	"YieldVault/internal/fund"
	"YieldVault/internal/metrics"
	"YieldVault/internal/oracle"
	"YieldVault/internal/recorder"
	"YieldVault/internal/vault"
)

func vaultParams(cfg *config.Config) (vault.Params, error) {
	bps, err := cfg.LossToleranceBps()
	if err != nil {
		return vault.Params{}, err
	}
	p := vault.Params{
		LossToleranceBps:       bps,
		DepositFeeBps:          cfg.Vault.DepositFeeBps,
		WithdrawFeeBps:         cfg.Vault.WithdrawFeeBps,
		EpochDuration:          cfg.Vault.EpochDuration,
		LockingTimeForWithdraw: cfg.Vault.LockingTimeForWithdraw,
		LockingTimeForCancel:   cfg.Vault.LockingTimeForCancel,
		EscapeHatchDelay:       cfg.Vault.EscapeHatchDelay,
	}
	return p, p.Validate()
}

func vaultID(cfg *config.Config) (uuid.UUID, error) {
	if cfg.Vault.ID == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(cfg.Vault.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("vault.id: %w", err)
	}
	return id, nil
}

// buildOracle registers every configured asset in a new cache and returns
// the collector that refreshes them.
func buildOracle(cfg *config.Config, log *zap.Logger) (*oracle.Cache, *collector.Collector, error) {
	cache := oracle.NewCache(cfg.Oracle.MaxStaleness, log.Named("oracle"))
	bindings := make([]collector.Binding, 0, len(cfg.Oracle.Feeds))
	for _, f := range cfg.Oracle.Feeds {
		if err := cache.AddAsset(oracle.Asset{
			Key:           f.Key,
			FeedID:        f.FeedID,
			AssetDecimals: f.AssetDecimals,
			MaxFeedAge:    f.MaxFeedAge,
		}); err != nil {
			return nil, nil, fmt.Errorf("oracle asset %s: %w", f.Key, err)
		}
		feed, err := buildFeed(f, cfg.Proxy)
		if err != nil {
			return nil, nil, err
		}
		bindings = append(bindings, collector.Binding{Key: f.Key, Feed: feed})
		log.Info("oracle feed configured",
			zap.String("asset_key", f.Key),
			zap.String("source", f.Source),
			zap.String("feed_id", f.FeedID))
	}
	return cache, collector.NewCollector(log.Named("collector"), bindings...), nil
}

func buildFeed(f config.Feed, proxy string) (oracle.Feed, error) {
	switch f.Source {
	case config.SourceHTTP:
		return collector.NewHTTPFeed(f.FeedID, f.URL, f.APIKey, proxy), nil
	case config.SourceChart:
		return collector.NewChartFeed(f.FeedID, f.Symbol, f.FeedDecimals, f.URL, proxy), nil
	case config.SourceStatic:
		raw, err := f.StaticRaw()
		if err != nil {
			return nil, err
		}
		feed := collector.NewStaticFeed(f.FeedID, math.NewIntFromBigInt(raw.BigInt()), f.FeedDecimals, time.Now())
		feed.Clock = time.Now
		return feed, nil
	default:
		return nil, fmt.Errorf("oracle feed %s: unknown source %q", f.Key, f.Source)
	}
}

func buildAdaptors(cfg *config.Config) *adaptor.Set {
	return adaptor.NewSet(
		adaptor.BalanceAdaptor{},
		adaptor.LendingAdaptor{},
		adaptor.AMMAdaptor{SlippageBps: cfg.Adaptor.SlippageBps},
	)
}

func buildRecorder(cfg *config.Config, log *zap.Logger) recorder.Recorder {
	if cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log.Named("recorder"))
	if err != nil {
		log.Warn("init sqlite recorder failed, using noop", zap.Error(err))
		return recorder.NewNoopRecorder()
	}
	return sr
}

// buildRouter serves /metrics and, when api.token is set, the vault API
// acting with the daemon's admin and operator capabilities.
func buildRouter(cfg *config.Config, fm *fund.Manager, admin *vault.AdminCap, op *vault.OperatorCap, log *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	if cfg.API.Token == "" {
		log.Warn("api.token not set, vault API disabled")
		return router
	}
	api.New(fm, admin, op, cfg.API.Token, log.Named("api")).Register(router)
	log.Info("vault API enabled", zap.String("prefix", "/v1"))
	return router
}
