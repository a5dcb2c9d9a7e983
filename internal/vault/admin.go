package vault

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"YieldVault/internal/adaptor"
	"YieldVault/internal/calculator"
	"YieldVault/internal/model"
	"YieldVault/internal/registry"
)

// SetEnabled toggles NORMAL and DISABLED. It is refused mid-operation.
func (v *Vault) SetEnabled(_ context.Context, admin *AdminCap, enabled bool) error {
	if err := v.auth.CheckAdmin(admin); err != nil {
		return err
	}
	if err := v.requireNotDuringOperation(); err != nil {
		return err
	}
	if enabled {
		v.status = model.StatusNormal
	} else {
		v.status = model.StatusDisabled
	}
	v.log.Info("vault status set", zap.String("status", v.status.String()))
	return nil
}

// SetLossTolerance sets the epoch loss tolerance. It is refused mid-operation.
func (v *Vault) SetLossTolerance(_ context.Context, admin *AdminCap, bps uint64) error {
	if err := v.auth.CheckAdmin(admin); err != nil {
		return err
	}
	if err := v.requireNotDuringOperation(); err != nil {
		return err
	}
	next := v.params
	next.LossToleranceBps = bps
	if err := next.Validate(); err != nil {
		return err
	}
	v.params = next
	v.log.Info("loss tolerance set", zap.Uint64("bps", bps))
	return nil
}

// SetFees sets deposit and withdraw fee rates, each capped at MaxFeeBps.
func (v *Vault) SetFees(_ context.Context, admin *AdminCap, depositBps, withdrawBps uint64) error {
	if err := v.auth.CheckAdmin(admin); err != nil {
		return err
	}
	next := v.params
	next.DepositFeeBps, next.WithdrawFeeBps = depositBps, withdrawBps
	if err := next.Validate(); err != nil {
		return err
	}
	v.params = next
	v.log.Info("fees set", zap.Uint64("deposit_bps", depositBps), zap.Uint64("withdraw_bps", withdrawBps))
	return nil
}

// SetLockingTimes sets the withdraw lock after deposit and the cancel dwell time.
func (v *Vault) SetLockingTimes(_ context.Context, admin *AdminCap, forWithdraw, forCancel time.Duration) error {
	if err := v.auth.CheckAdmin(admin); err != nil {
		return err
	}
	next := v.params
	next.LockingTimeForWithdraw, next.LockingTimeForCancel = forWithdraw, forCancel
	if err := next.Validate(); err != nil {
		return err
	}
	v.params = next
	return nil
}

// CreateOperatorCap issues a new operator capability.
func (v *Vault) CreateOperatorCap(admin *AdminCap) (*OperatorCap, error) {
	return v.auth.CreateOperatorCap(admin)
}

// SetOperatorFrozen freezes or unfreezes an operator. An operation the
// operator already began is not aborted; its remaining privileged calls are
// refused for that operator.
func (v *Vault) SetOperatorFrozen(_ context.Context, admin *AdminCap, operator uuid.UUID, frozen bool) error {
	return v.auth.SetOperatorFrozen(admin, operator, frozen)
}

// RegisterAdaptor adds the adaptor for an item kind.
func (v *Vault) RegisterAdaptor(admin *AdminCap, a adaptor.Adaptor) error {
	if err := v.auth.CheckAdmin(admin); err != nil {
		return err
	}
	return v.adaptors.Register(a)
}

// AddItem puts a new custody item under key. Its kind must have an adaptor
// and the pool it is bound to, if any, must be registered.
func (v *Vault) AddItem(_ context.Context, op *OperatorCap, key string, item registry.Item) error {
	if err := v.auth.CheckOperator(op); err != nil {
		return err
	}
	if err := v.requireNotDuringOperation(); err != nil {
		return err
	}
	if key == model.PrincipalKey {
		return errorsmod.Wrapf(model.ErrInvalidArgument, "key %s is reserved", key)
	}
	if item == nil {
		return errorsmod.Wrap(model.ErrInvalidArgument, "nil item")
	}
	if _, err := v.adaptors.Get(item.Kind()); err != nil {
		return err
	}
	if _, err := v.poolFor(item); err != nil {
		return err
	}
	if err := v.registry.Put(key, item); err != nil {
		return err
	}
	v.log.Info("item added", zap.String("asset_key", key), zap.String("kind", item.Kind()))
	return nil
}

// RemoveItem takes an item out of custody for good.
func (v *Vault) RemoveItem(_ context.Context, admin *AdminCap, key string) (registry.Item, error) {
	if err := v.auth.CheckAdmin(admin); err != nil {
		return nil, err
	}
	if err := v.requireNotDuringOperation(); err != nil {
		return nil, err
	}
	item, err := v.registry.Take(key)
	if err != nil {
		return nil, err
	}
	delete(v.values, key)
	v.log.Info("item removed", zap.String("asset_key", key))
	return item, nil
}

// Item returns the item in custody under key.
func (v *Vault) Item(key string) (registry.Item, bool) {
	return v.registry.Get(key)
}

// Keys lists the keys in custody.
func (v *Vault) Keys() []string {
	return v.registry.Keys()
}

// RetrieveFees pays out accumulated fees to the operator.
func (v *Vault) RetrieveFees(_ context.Context, op *OperatorCap, amount math.Int) (math.Int, error) {
	if err := v.auth.CheckOperator(op); err != nil {
		return math.Int{}, err
	}
	if err := positive(amount, "fee amount"); err != nil {
		return math.Int{}, err
	}
	left, err := calculator.Sub(v.claimableFees, amount)
	if err != nil {
		return math.Int{}, errorsmod.Wrapf(model.ErrInvalidArgument, "retrieve %s fees, %s claimable", amount, v.claimableFees)
	}
	v.claimableFees = left
	v.log.Info("fees retrieved", zap.String("operator", op.ID().String()), zap.String("amount", amount.String()))
	return amount, nil
}

// SetRewardRate records the emission rate of a reward coin per millisecond.
func (v *Vault) SetRewardRate(_ context.Context, op *OperatorCap, rewardAsset string, ratePerMs math.Int) error {
	if err := v.auth.CheckOperator(op); err != nil {
		return err
	}
	if rewardAsset == "" {
		return errorsmod.Wrap(model.ErrInvalidArgument, "reward asset required")
	}
	if err := nonNegative(ratePerMs, "reward rate"); err != nil {
		return err
	}
	v.rewardRates[rewardAsset] = ratePerMs
	v.log.Info("reward rate set", zap.String("operator", op.ID().String()), zap.String("asset", rewardAsset), zap.String("rate", ratePerMs.String()))
	return nil
}

// RewardRates returns a copy of the reward rates.
func (v *Vault) RewardRates() map[string]math.Int {
	out := make(map[string]math.Int, len(v.rewardRates))
	for k, r := range v.rewardRates {
		out[k] = r
	}
	return out
}

// Status returns the vault status.
func (v *Vault) Status() model.Status { return v.status }

// TotalShares returns the outstanding shares.
func (v *Vault) TotalShares() math.Int { return v.totalShares }

// FreePrincipal returns principal held by the vault and not borrowed out.
func (v *Vault) FreePrincipal() math.Int { return v.freePrincipal }

// Summary is a point-in-time view of the vault. Fresh reports whether every
// constituent was valued at the evaluation instant; ShareRatio falls back to
// the last known values when it was not.
func (v *Vault) Summary(ctx context.Context) model.Summary {
	now := v.now(ctx)
	s := model.Summary{
		VaultID:            v.id.String(),
		Status:             v.status.String(),
		FreePrincipal:      v.freePrincipal,
		ClaimableFees:      v.claimableFees,
		TotalShares:        v.totalShares,
		LossToleranceBps:   v.params.LossToleranceBps,
		EpochLoss:          v.epoch.loss,
		EpochBaseValue:     v.epoch.baseValue,
		PendingDeposits:    len(v.deposits),
		PendingWithdrawals: len(v.withdrawals),
		Operation:          v.Operation(),
		EvaluatedAt:        now,
	}
	total, err := v.aggregate(now, nil)
	if err == nil {
		s.Fresh = true
	} else {
		total = v.lastKnownValue()
	}
	s.LastKnownValue = total
	if ratio, err := v.ratioFor(total); err == nil {
		s.ShareRatio = ratio
	} else {
		s.ShareRatio = math.ZeroInt()
	}
	for _, e := range v.values {
		if t := time.UnixMilli(e.updatedAt); t.After(s.UpdatedAt) {
			s.UpdatedAt = t
		}
	}
	return s
}

// ValueAges reports how old each constituent's value is at the evaluation
// instant. Keys never valued are reported with a negative age.
func (v *Vault) ValueAges(ctx context.Context) map[string]time.Duration {
	now := v.now(ctx)
	keys := v.constituents()
	out := make(map[string]time.Duration, len(keys))
	for _, k := range keys {
		e, ok := v.values[k]
		if !ok {
			out[k] = -1
			continue
		}
		out[k] = now.Sub(time.UnixMilli(e.updatedAt))
	}
	return out
}
