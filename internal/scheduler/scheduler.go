package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"YieldVault/internal/fund"
	"YieldVault/internal/notifier"
)

// Notifier delivers alert text.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

type alertState struct {
	stuck bool
	hatch bool
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Fund     *fund.Manager
	Notifier Notifier // optional
	Ctx      context.Context

	// MaxOperationDuration is how long an operation may run before the
	// watchdog alerts.
	MaxOperationDuration time.Duration

	log     *zap.Logger
	mu      sync.Mutex
	alerted map[uint64]alertState
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, fm *fund.Manager, n Notifier, maxOperation time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		Cron:                 cron.New(cron.WithSeconds()),
		Fund:                 fm,
		Notifier:             n,
		Ctx:                  ctx,
		MaxOperationDuration: maxOperation,
		log:                  log,
		alerted:              make(map[uint64]alertState),
	}
}

// RegisterAll registers the oracle refresh, watchdog and daily report tasks.
func (s *Scheduler) RegisterAll(refreshCron, watchdogCron, reportCron string) error {
	if _, err := s.Cron.AddFunc(refreshCron, s.refreshOracle); err != nil {
		return fmt.Errorf("register oracle refresh: %w", err)
	}
	if _, err := s.Cron.AddFunc(watchdogCron, s.watchdog); err != nil {
		return fmt.Errorf("register watchdog: %w", err)
	}
	if _, err := s.Cron.AddFunc(reportCron, s.dailyReport); err != nil {
		return fmt.Errorf("register daily report: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunRefreshNow refreshes the oracle immediately.
func (s *Scheduler) RunRefreshNow() {
	s.refreshOracle()
}

func (s *Scheduler) refreshOracle() {
	results, err := s.Fund.RefreshOracle(s.Ctx)
	if err != nil {
		s.log.Error("oracle refresh", zap.Int("feeds", len(results)), zap.Error(err))
		return
	}
	s.log.Debug("oracle refreshed", zap.Int("feeds", len(results)))
}

func (s *Scheduler) watchdog() {
	alert := s.Fund.CheckOperation(s.Ctx, s.MaxOperationDuration)

	s.mu.Lock()
	if alert == nil {
		s.alerted = make(map[uint64]alertState)
		s.mu.Unlock()
		return
	}
	id := alert.Operation.ID
	st := s.alerted[id]
	send := !st.stuck || (alert.EscapeHatchOpen && !st.hatch)
	st.stuck = true
	st.hatch = st.hatch || alert.EscapeHatchOpen
	s.alerted[id] = st
	s.mu.Unlock()

	s.log.Warn("operation running long",
		zap.Uint64("operation_id", id),
		zap.String("phase", alert.Operation.Phase),
		zap.Duration("running", alert.Running),
		zap.Bool("escape_hatch_open", alert.EscapeHatchOpen))
	if send {
		s.trySend(notifier.FormatOperationAlert(alert))
	}
}

func (s *Scheduler) dailyReport() {
	summary, err := s.Fund.Snapshot(s.Ctx)
	if err != nil {
		s.log.Error("daily snapshot", zap.Error(err))
		s.trySend(fmt.Sprintf("❌ Daily snapshot failed: %v", err))
		return
	}
	s.trySend(notifier.FormatDailyReport(summary))
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	var name string
	if fields := strings.Fields(command); len(fields) > 0 {
		name = fields[0]
	}
	switch name {
	case "/status":
		return notifier.FormatSummary(s.Fund.Summary(ctx))
	case "/value":
		return notifier.FormatValueAges(s.Fund.ValueAges(ctx))
	case "/report":
		s.dailyReport()
		return ""
	default:
		return "Commands:\n• /status\n• /value\n• /report"
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.log.Error("send notification", zap.Error(err))
	}
}
