// Package fund serialises access to a vault and fans every successful call
// out to the checkpoint file, the journal and the metrics.
package fund

import (
	"context"
	"errors"
	"sync"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"YieldVault/internal/collector"
	"YieldVault/internal/metrics"
	"YieldVault/internal/model"
	"YieldVault/internal/oracle"
	"YieldVault/internal/recorder"
	"YieldVault/internal/vault"
)

// Options wires a Manager.
type Options struct {
	Vault     *vault.Vault
	Oracle    *oracle.Cache
	Collector *collector.Collector // optional
	Recorder  recorder.Recorder    // optional
	StateFile string               // optional
	Clock     func() time.Time
	Logger    *zap.Logger

	// Keeper, if set, revalues positions for calls that carry no
	// capability of their own, such as Snapshot.
	Keeper *vault.OperatorCap

	// OnOperation, if set, is called with every completed or aborted
	// operation while the manager's lock is held. It must not call back
	// into the Manager.
	OnOperation func(res vault.OperationResult, aborted bool)
}

// Manager runs one vault call at a time. Every call is stamped with a single
// evaluation instant unless the caller pinned one with vault.WithEvalTime.
type Manager struct {
	mu        sync.Mutex
	vault     *vault.Vault
	oracle    *oracle.Cache
	collector *collector.Collector
	recorder  recorder.Recorder
	keeper    *vault.OperatorCap
	filePath  string
	clock     func() time.Time
	log       *zap.Logger
	onOp      func(vault.OperationResult, bool)
}

// NewManager creates a Manager and writes an initial checkpoint. A previous
// checkpoint, if any, is only logged: custody items live in external
// protocols and are re-registered by the operator.
func NewManager(opts Options) (*Manager, error) {
	if opts.Vault == nil || opts.Oracle == nil {
		return nil, errors.New("fund: vault and oracle are required")
	}
	if opts.Recorder == nil {
		opts.Recorder = recorder.NewNoopRecorder()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	m := &Manager{
		vault:     opts.Vault,
		oracle:    opts.Oracle,
		collector: opts.Collector,
		recorder:  opts.Recorder,
		keeper:    opts.Keeper,
		filePath:  opts.StateFile,
		clock:     opts.Clock,
		log:       opts.Logger,
		onOp:      opts.OnOperation,
	}
	if m.filePath != "" {
		prev, err := LoadCheckpoint(m.filePath)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			m.log.Info("previous checkpoint found",
				zap.String("vault_id", prev.VaultID),
				zap.String("status", prev.Status),
				zap.String("total_shares", prev.TotalShares.String()),
				zap.Time("evaluated_at", prev.EvaluatedAt))
			if prev.Operation != nil {
				m.log.Warn("previous run stopped during an operation",
					zap.Uint64("operation_id", prev.Operation.ID),
					zap.String("phase", prev.Operation.Phase))
			}
		}
	}
	ctx := vault.WithEvalTime(context.Background(), m.clock())
	if err := m.save(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Do runs fn as one serialised call. Every vault method fn invokes sees the
// same evaluation instant, so revaluation and the call that needs it can be
// batched.
func (m *Manager) Do(ctx context.Context, method string, fn func(ctx context.Context, v *vault.Vault) error) error {
	return m.do(ctx, method, func(ctx context.Context) error { return fn(ctx, m.vault) })
}

func (m *Manager) do(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := vault.EvalTime(ctx); !ok {
		ctx = vault.WithEvalTime(ctx, m.clock())
	}
	err := fn(ctx)
	metrics.ObserveCall(method, err)
	if err != nil {
		m.log.Warn("vault call failed",
			zap.String("method", method),
			zap.String("kind", model.ErrorKind(err)),
			zap.Error(err))
		return err
	}
	if err := m.save(ctx); err != nil {
		m.log.Error("failed to save checkpoint", zap.Error(err))
	}
	return nil
}

// save publishes the summary to metrics and the checkpoint file.
func (m *Manager) save(ctx context.Context) error {
	s := m.vault.Summary(ctx)
	metrics.ObserveSummary(s, s.EvaluatedAt)
	if m.filePath == "" {
		return nil
	}
	return SaveCheckpoint(m.filePath, &s)
}

// revalue brings every constituent's value to the evaluation instant on
// behalf of op, or the keeper when op is nil. Without either only the
// principal is revalued. Failures are left for the aggregating call to
// report.
func (m *Manager) revalue(ctx context.Context, op *vault.OperatorCap) {
	if op == nil {
		op = m.keeper
	}
	var err error
	if op == nil {
		_, err = m.vault.UpdatePrincipalValue(ctx)
	} else {
		err = m.vault.RefreshValues(ctx, op)
	}
	if err != nil {
		m.log.Debug("revaluation incomplete", zap.Error(err))
	}
}

func (m *Manager) recordRequest(evt *recorder.RequestEvent) {
	if err := m.recorder.RecordRequest(evt); err != nil {
		m.log.Error("record request", zap.Uint64("request_id", evt.RequestID), zap.Error(err))
	}
}

func (m *Manager) recordOperation(evt *recorder.OperationEvent) {
	if err := m.recorder.RecordOperation(evt); err != nil {
		m.log.Error("record operation", zap.Uint64("operation_id", evt.OperationID), zap.Error(err))
	}
}

func evalTime(ctx context.Context) time.Time {
	t, _ := vault.EvalTime(ctx)
	return t
}

// RefreshOracle pulls every configured feed into the price cache. It runs
// outside the call lock; the cache guards itself.
func (m *Manager) RefreshOracle(ctx context.Context) ([]collector.Result, error) {
	if m.collector == nil {
		return nil, nil
	}
	results, err := m.collector.Refresh(ctx, m.oracle, m.clock())
	for _, r := range results {
		metrics.ObserveOracleUpdate(r.Key, r.Entry.Price, r.Err)
	}
	return results, err
}

// Summary returns the vault summary at the current instant without
// revaluing.
func (m *Manager) Summary(ctx context.Context) model.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := vault.EvalTime(ctx); !ok {
		ctx = vault.WithEvalTime(ctx, m.clock())
	}
	return m.vault.Summary(ctx)
}

// ValueAges reports how old each constituent's value is.
func (m *Manager) ValueAges(ctx context.Context) map[string]time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := vault.EvalTime(ctx); !ok {
		ctx = vault.WithEvalTime(ctx, m.clock())
	}
	return m.vault.ValueAges(ctx)
}

// Snapshot revalues the vault, journals the summary and returns it.
func (m *Manager) Snapshot(ctx context.Context) (model.Summary, error) {
	var s model.Summary
	err := m.do(ctx, "Snapshot", func(ctx context.Context) error {
		m.revalue(ctx, nil)
		s = m.vault.Summary(ctx)
		return m.recorder.RecordSnapshot(&s)
	})
	return s, err
}

// UpdateValue revalues one key against its registered pool.
func (m *Manager) UpdateValue(ctx context.Context, op *vault.OperatorCap, key string) (val math.Int, err error) {
	err = m.do(ctx, "UpdateValue", func(ctx context.Context) error {
		val, err = m.vault.UpdateValue(ctx, op, key)
		return err
	})
	return val, err
}

// SubmitDeposit queues a deposit. A nil receiptID mints a new receipt.
func (m *Manager) SubmitDeposit(ctx context.Context, sender string, receiptID uuid.UUID, amount, expectedShares math.Int) (id uint64, rid uuid.UUID, err error) {
	err = m.do(ctx, "SubmitDeposit", func(ctx context.Context) error {
		if id, rid, err = m.vault.SubmitDeposit(ctx, sender, receiptID, amount, expectedShares); err != nil {
			return err
		}
		m.recordRequest(&recorder.RequestEvent{
			At: evalTime(ctx), RequestID: id, Kind: "DEPOSIT", Action: "SUBMIT",
			ReceiptID: rid.String(), Account: sender, Amount: amount, Shares: expectedShares,
		})
		return nil
	})
	return id, rid, err
}

// CancelDeposit refunds a pending deposit to its requester.
func (m *Manager) CancelDeposit(ctx context.Context, sender string, id uint64) (refund math.Int, err error) {
	err = m.do(ctx, "CancelDeposit", func(ctx context.Context) error {
		req, _ := m.vault.DepositRequest(id)
		if refund, err = m.vault.CancelDeposit(ctx, sender, id); err != nil {
			return err
		}
		m.recordRequest(&recorder.RequestEvent{
			At: evalTime(ctx), RequestID: id, Kind: "DEPOSIT", Action: "CANCEL",
			ReceiptID: req.ReceiptID.String(), Account: sender, Amount: refund,
		})
		return nil
	})
	return refund, err
}

// ExecuteDeposit revalues the vault and mints shares for a pending deposit
// at the same instant.
func (m *Manager) ExecuteDeposit(ctx context.Context, op *vault.OperatorCap, id uint64, maxShares math.Int) (res model.DepositResult, err error) {
	err = m.do(ctx, "ExecuteDeposit", func(ctx context.Context) error {
		req, _ := m.vault.DepositRequest(id)
		m.revalue(ctx, op)
		if res, err = m.vault.ExecuteDeposit(ctx, op, id, maxShares); err != nil {
			return err
		}
		m.recordRequest(&recorder.RequestEvent{
			At: evalTime(ctx), RequestID: id, Kind: "DEPOSIT", Action: "EXECUTE",
			ReceiptID: res.ReceiptID.String(), Account: req.Requester,
			Amount: res.Amount, Shares: res.Shares, Fee: res.Fee,
		})
		return nil
	})
	return res, err
}

// SubmitWithdraw queues a withdraw of shares from a receipt.
func (m *Manager) SubmitWithdraw(ctx context.Context, sender string, receiptID uuid.UUID, shares, expectedAmount math.Int, recipient string) (id uint64, err error) {
	err = m.do(ctx, "SubmitWithdraw", func(ctx context.Context) error {
		if id, err = m.vault.SubmitWithdraw(ctx, sender, receiptID, shares, expectedAmount, recipient); err != nil {
			return err
		}
		m.recordRequest(&recorder.RequestEvent{
			At: evalTime(ctx), RequestID: id, Kind: "WITHDRAW", Action: "SUBMIT",
			ReceiptID: receiptID.String(), Account: sender, Amount: expectedAmount, Shares: shares,
		})
		return nil
	})
	return id, err
}

// CancelWithdraw releases the shares of a pending withdraw.
func (m *Manager) CancelWithdraw(ctx context.Context, sender string, id uint64) (shares math.Int, err error) {
	err = m.do(ctx, "CancelWithdraw", func(ctx context.Context) error {
		req, _ := m.vault.WithdrawRequest(id)
		if shares, err = m.vault.CancelWithdraw(ctx, sender, id); err != nil {
			return err
		}
		m.recordRequest(&recorder.RequestEvent{
			At: evalTime(ctx), RequestID: id, Kind: "WITHDRAW", Action: "CANCEL",
			ReceiptID: req.ReceiptID.String(), Account: sender, Shares: shares,
		})
		return nil
	})
	return shares, err
}

// ExecuteWithdraw revalues the vault and burns shares for principal at the
// same instant.
func (m *Manager) ExecuteWithdraw(ctx context.Context, op *vault.OperatorCap, id uint64, maxAmountOut math.Int) (p model.Payout, err error) {
	err = m.do(ctx, "ExecuteWithdraw", func(ctx context.Context) error {
		m.revalue(ctx, op)
		if p, err = m.vault.ExecuteWithdraw(ctx, op, id, maxAmountOut); err != nil {
			return err
		}
		m.recordRequest(&recorder.RequestEvent{
			At: evalTime(ctx), RequestID: id, Kind: "WITHDRAW", Action: "EXECUTE",
			ReceiptID: p.ReceiptID.String(), Account: p.Recipient,
			Amount: p.Amount, Shares: p.Shares, Fee: p.Fee,
		})
		return nil
	})
	return p, err
}

// TransferReceipt hands a receipt to a new holder.
func (m *Manager) TransferReceipt(ctx context.Context, sender string, id uuid.UUID, to string) error {
	return m.do(ctx, "TransferReceipt", func(ctx context.Context) error {
		return m.vault.TransferReceipt(ctx, sender, id, to)
	})
}

// BeginOperation revalues the vault and starts an operation at the same
// instant.
func (m *Manager) BeginOperation(ctx context.Context, op *vault.OperatorCap, keys []string, principal math.Int) (custody *vault.Custody, err error) {
	err = m.do(ctx, "BeginOperation", func(ctx context.Context) error {
		m.revalue(ctx, op)
		if custody, err = m.vault.BeginOperation(ctx, op, keys, principal); err != nil {
			return err
		}
		evt := &recorder.OperationEvent{
			At: evalTime(ctx), OperationID: custody.OperationID, Operator: op.ID().String(),
			Action: "BEGIN", Keys: keys, Principal: principal,
		}
		if info := m.vault.Operation(); info != nil {
			evt.ValueBefore = info.ValueBefore
		}
		m.recordOperation(evt)
		return nil
	})
	return custody, err
}

// EndCustody returns the borrowed items and principal.
func (m *Manager) EndCustody(ctx context.Context, op *vault.OperatorCap, custody *vault.Custody) error {
	return m.do(ctx, "EndCustody", func(ctx context.Context) error {
		return m.vault.EndCustody(ctx, op, custody)
	})
}

// EnableValuation opens the valuation phase.
func (m *Manager) EnableValuation(ctx context.Context, op *vault.OperatorCap) error {
	return m.do(ctx, "EnableValuation", func(ctx context.Context) error {
		return m.vault.EnableValuation(ctx, op)
	})
}

// CompleteOperation revalues every constituent and completes the operation
// at the same instant, then journals the outcome.
func (m *Manager) CompleteOperation(ctx context.Context, op *vault.OperatorCap, expectedTotalShares math.Int) (res vault.OperationResult, err error) {
	err = m.do(ctx, "CompleteOperation", func(ctx context.Context) error {
		m.revalue(ctx, op)
		if res, err = m.vault.CompleteOperation(ctx, op, expectedTotalShares); err != nil {
			return err
		}
		m.recordOperation(&recorder.OperationEvent{
			At: evalTime(ctx), OperationID: res.OperationID, Operator: op.ID().String(),
			Action: "COMPLETE", ValueBefore: res.ValueBefore, ValueAfter: res.ValueAfter,
			Loss: res.Loss, EpochLoss: res.EpochLoss,
		})
		s := m.vault.Summary(ctx)
		if err := m.recorder.RecordSnapshot(&s); err != nil {
			m.log.Error("record snapshot", zap.Error(err))
		}
		if m.onOp != nil {
			m.onOp(res, false)
		}
		return nil
	})
	return res, err
}

// AbortOperation uses the admin escape hatch on a stuck operation.
func (m *Manager) AbortOperation(ctx context.Context, admin *vault.AdminCap) (res vault.OperationResult, err error) {
	err = m.do(ctx, "AbortOperation", func(ctx context.Context) error {
		if res, err = m.vault.AbortOperation(ctx, admin); err != nil {
			return err
		}
		m.recordOperation(&recorder.OperationEvent{
			At: evalTime(ctx), OperationID: res.OperationID, Operator: "admin",
			Action: "ABORT", ValueBefore: res.ValueBefore,
			Loss: res.Loss, EpochLoss: res.EpochLoss, WrittenOff: res.WrittenOff,
		})
		if m.onOp != nil {
			m.onOp(res, true)
		}
		return nil
	})
	return res, err
}

// RetrieveFees pays accumulated fees out to an operator.
func (m *Manager) RetrieveFees(ctx context.Context, op *vault.OperatorCap, amount math.Int) (out math.Int, err error) {
	err = m.do(ctx, "RetrieveFees", func(ctx context.Context) error {
		out, err = m.vault.RetrieveFees(ctx, op, amount)
		return err
	})
	return out, err
}

// OperationAlert describes an operation that has run too long.
type OperationAlert struct {
	Operation       model.OperationInfo
	Running         time.Duration
	EscapeHatchOpen bool
}

// CheckOperation reports the operation in flight once it has run for at
// least maxDuration.
func (m *Manager) CheckOperation(ctx context.Context, maxDuration time.Duration) *OperationAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := m.vault.Operation()
	if info == nil {
		return nil
	}
	now := m.clock()
	if t, ok := vault.EvalTime(ctx); ok {
		now = t
	}
	running := now.Sub(info.StartedAt)
	if running < maxDuration {
		return nil
	}
	return &OperationAlert{
		Operation:       *info,
		Running:         running,
		EscapeHatchOpen: running >= m.vault.Params().EscapeHatchDelay,
	}
}
