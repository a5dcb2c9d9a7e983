package fund

import (
	"context"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"YieldVault/internal/adaptor"
	"YieldVault/internal/registry"
	"YieldVault/internal/vault"
)

// SetPool registers or replaces the live reference to an external pool.
func (m *Manager) SetPool(ctx context.Context, admin *vault.AdminCap, pool adaptor.Pool) error {
	return m.do(ctx, "SetPool", func(context.Context) error {
		return m.vault.SetPool(admin, pool)
	})
}

// AddItem puts a new custody item under key.
func (m *Manager) AddItem(ctx context.Context, op *vault.OperatorCap, key string, item registry.Item) error {
	return m.do(ctx, "AddItem", func(ctx context.Context) error {
		return m.vault.AddItem(ctx, op, key, item)
	})
}

// RemoveItem takes an item out of custody for good.
func (m *Manager) RemoveItem(ctx context.Context, admin *vault.AdminCap, key string) (item registry.Item, err error) {
	err = m.do(ctx, "RemoveItem", func(ctx context.Context) error {
		item, err = m.vault.RemoveItem(ctx, admin, key)
		return err
	})
	return item, err
}

// SetOperatorFrozen freezes or unfreezes an operator.
func (m *Manager) SetOperatorFrozen(ctx context.Context, admin *vault.AdminCap, operator uuid.UUID, frozen bool) error {
	return m.do(ctx, "SetOperatorFrozen", func(ctx context.Context) error {
		return m.vault.SetOperatorFrozen(ctx, admin, operator, frozen)
	})
}

// SetEnabled toggles the vault between NORMAL and DISABLED.
func (m *Manager) SetEnabled(ctx context.Context, admin *vault.AdminCap, enabled bool) error {
	return m.do(ctx, "SetEnabled", func(ctx context.Context) error {
		return m.vault.SetEnabled(ctx, admin, enabled)
	})
}

// SetLossTolerance changes the epoch loss tolerance.
func (m *Manager) SetLossTolerance(ctx context.Context, admin *vault.AdminCap, bps uint64) error {
	return m.do(ctx, "SetLossTolerance", func(ctx context.Context) error {
		return m.vault.SetLossTolerance(ctx, admin, bps)
	})
}

// SetFees changes the deposit and withdraw fee rates.
func (m *Manager) SetFees(ctx context.Context, admin *vault.AdminCap, depositBps, withdrawBps uint64) error {
	return m.do(ctx, "SetFees", func(ctx context.Context) error {
		return m.vault.SetFees(ctx, admin, depositBps, withdrawBps)
	})
}

// SetLockingTimes changes the withdraw and cancel locking windows.
func (m *Manager) SetLockingTimes(ctx context.Context, admin *vault.AdminCap, forWithdraw, forCancel time.Duration) error {
	return m.do(ctx, "SetLockingTimes", func(ctx context.Context) error {
		return m.vault.SetLockingTimes(ctx, admin, forWithdraw, forCancel)
	})
}

// SetRewardRate stores the per-millisecond emission rate of a reward asset.
func (m *Manager) SetRewardRate(ctx context.Context, op *vault.OperatorCap, rewardAsset string, ratePerMs math.Int) error {
	return m.do(ctx, "SetRewardRate", func(ctx context.Context) error {
		return m.vault.SetRewardRate(ctx, op, rewardAsset, ratePerMs)
	})
}
