package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"YieldVault/internal/auth"
	"YieldVault/internal/config"
	"YieldVault/internal/fund"
	"YieldVault/internal/notifier"
	"YieldVault/internal/scheduler"
	"YieldVault/internal/vault"
)

var (
	cfgPath string
	verbose bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vaultd",
	Short: "vaultd - custodial yield vault daemon",
	Long: `vaultd hosts a custodial yield vault: it keeps the price oracle fresh,
journals every request and operation, serves the vault API next to Prometheus
metrics and alerts over Telegram when an operation runs too long.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the vault daemon until interrupted",
	RunE:  runDaemon,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Load and validate the configuration",
	RunE:  checkConfig,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the last vault checkpoint",
	RunE:  printStatus,
}

func init() {
	defaultPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(runCmd, checkConfigCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func checkConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	params, err := vaultParams(cfg)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "principal asset: %s\n", cfg.Vault.PrincipalAsset)
	fmt.Fprintf(out, "loss tolerance: %d bps per %s epoch\n", params.LossToleranceBps, params.EpochDuration)
	fmt.Fprintf(out, "fees: deposit %d bps, withdraw %d bps\n", params.DepositFeeBps, params.WithdrawFeeBps)
	fmt.Fprintf(out, "escape hatch after: %s\n", params.EscapeHatchDelay)
	for _, f := range cfg.Oracle.Feeds {
		fmt.Fprintf(out, "feed %s: %s %s (max age %s)\n", f.Key, f.Source, f.FeedID, f.MaxFeedAge)
	}
	fmt.Fprintln(out, "config OK")
	return nil
}

func printStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	s, err := fund.LoadCheckpoint(cfg.StateFile)
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	if s == nil {
		return fmt.Errorf("no checkpoint at %s", cfg.StateFile)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func runDaemon(_ *cobra.Command, _ []string) error {
	logger.Info("vaultd starting...")
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	params, err := vaultParams(cfg)
	if err != nil {
		return err
	}
	id, err := vaultID(cfg)
	if err != nil {
		return err
	}

	cache, col, err := buildOracle(cfg, logger)
	if err != nil {
		return err
	}

	authority, admin := auth.New(logger.Named("auth"))
	v, err := vault.New(vault.Config{
		ID:             id,
		PrincipalAsset: cfg.Vault.PrincipalAsset,
		Params:         params,
		Authority:      authority,
		Oracle:         cache,
		Adaptors:       buildAdaptors(cfg),
		Logger:         logger.Named("vault"),
	})
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}
	op, err := v.CreateOperatorCap(admin)
	if err != nil {
		return fmt.Errorf("issue operator cap: %w", err)
	}
	logger.Info("vault ready",
		zap.String("vault_id", v.ID().String()),
		zap.String("operator", op.ID().String()))

	rec := buildRecorder(cfg, logger)
	defer rec.Close()

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger.Named("telegram"))
	}

	fm, err := fund.NewManager(fund.Options{
		Vault:     v,
		Oracle:    cache,
		Collector: col,
		Recorder:  rec,
		StateFile: cfg.StateFile,
		Logger:    logger.Named("fund"),
		Keeper:    op,
		OnOperation: func(res vault.OperationResult, aborted bool) {
			if tn == nil {
				return
			}
			text := notifier.FormatOperationResult(res, aborted)
			go func() {
				if err := tn.SendWithRetry(ctx, text, 3); err != nil {
					logger.Error("send operation result", zap.Error(err))
				}
			}()
		},
	})
	if err != nil {
		return fmt.Errorf("init fund manager: %w", err)
	}

	var n scheduler.Notifier
	if tn != nil {
		n = tn
	}
	sched := scheduler.NewScheduler(ctx, fm, n, cfg.Vault.MaxOperationDuration, logger.Named("scheduler"))
	if err := sched.RegisterAll(cfg.Schedule.OracleCron, cfg.Schedule.WatchdogCron, cfg.Schedule.ReportCron); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	sched.RunRefreshNow()
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		logger.Info("telegram polling started")
	}

	router := buildRouter(cfg, fm, admin, op, logger)
	srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", zap.Error(err))
		}
	}()
	logger.Info("http listening", zap.String("addr", cfg.Metrics.Listen))

	logger.Info("vaultd is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping...")
	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	logger.Info("vaultd stopped")
	return nil
}
