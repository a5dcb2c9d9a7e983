package vault

import (
	"context"
	"errors"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"go.uber.org/zap"

	"YieldVault/internal/calculator"
	"YieldVault/internal/model"
)

// UpdatePrincipalValue revalues the free principal at the evaluation instant.
// It reads only the oracle, so anyone may call it.
func (v *Vault) UpdatePrincipalValue(ctx context.Context) (math.Int, error) {
	now := v.now(ctx)
	val, err := v.oracle.Value(v.principalAsset, v.freePrincipal, now)
	if err != nil {
		return math.Int{}, err
	}
	v.setValue(model.PrincipalKey, val, now)
	return val, nil
}

// UpdateValue revalues the item under key through its adaptor, against the
// registered pool the item is bound to. During the valuation phase it also
// marks a borrowed key as freshly valued.
func (v *Vault) UpdateValue(ctx context.Context, op *OperatorCap, key string) (math.Int, error) {
	if err := v.auth.CheckOperator(op); err != nil {
		return math.Int{}, err
	}
	return v.updateValue(ctx, key)
}

func (v *Vault) updateValue(ctx context.Context, key string) (math.Int, error) {
	if key == model.PrincipalKey {
		return v.UpdatePrincipalValue(ctx)
	}
	if v.registry.InFlight(key) {
		return math.Int{}, errorsmod.Wrapf(model.ErrInvalidStatus, "asset %s is borrowed out", key)
	}
	item, ok := v.registry.Get(key)
	if !ok {
		return math.Int{}, errorsmod.Wrapf(model.ErrNotFound, "asset %s", key)
	}
	a, err := v.adaptors.Get(item.Kind())
	if err != nil {
		return math.Int{}, err
	}
	pool, err := v.poolFor(item)
	if err != nil {
		return math.Int{}, err
	}

	now := v.now(ctx)
	val, err := a.Valuate(ctx, item, pool, v.oracle.At(now))
	if err != nil {
		return math.Int{}, errorsmod.Wrapf(err, "valuate %s", key)
	}
	if err := nonNegative(val, "adaptor value"); err != nil {
		return math.Int{}, errorsmod.Wrapf(model.ErrInvariant, "adaptor %s returned invalid value for %s", a.Kind(), key)
	}
	v.setValue(key, val, now)
	return val, nil
}

// RefreshValues revalues the principal and every item in custody. Each key is
// an independent update.
func (v *Vault) RefreshValues(ctx context.Context, op *OperatorCap) error {
	if err := v.auth.CheckOperator(op); err != nil {
		return err
	}
	var errs []error
	if _, err := v.UpdatePrincipalValue(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, key := range v.registry.Keys() {
		if _, err := v.updateValue(ctx, key); err != nil {
			v.log.Warn("revalue failed", zap.String("asset_key", key), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (v *Vault) setValue(key string, val math.Int, now time.Time) {
	v.values[key] = valueEntry{value: val, updatedAt: now.UnixMilli()}
	if v.op != nil && v.op.phase == model.PhaseValuationEnabled && v.op.isBorrowed(key) {
		v.op.updated[key] = true
	}
}

// constituents lists every key whose value makes up the vault total,
// including keys currently borrowed out.
func (v *Vault) constituents() []string {
	keys := []string{model.PrincipalKey}
	keys = append(keys, v.registry.Keys()...)
	return append(keys, v.registry.BorrowedKeys()...)
}

// aggregate sums the constituent values, requiring each to have been taken
// exactly at now. Overrides replace stored entries for the listed keys.
func (v *Vault) aggregate(now time.Time, overrides map[string]math.Int) (math.Int, error) {
	ms := now.UnixMilli()
	total := math.ZeroInt()
	for _, key := range v.constituents() {
		val, ok := overrides[key]
		if !ok {
			e, found := v.values[key]
			if !found {
				return math.Int{}, errorsmod.Wrapf(model.ErrStale, "%s has never been valued", key)
			}
			if e.updatedAt != ms {
				return math.Int{}, errorsmod.Wrapf(model.ErrStale, "%s valued at %d, evaluating at %d", key, e.updatedAt, ms)
			}
			val = e.value
		}
		var err error
		if total, err = calculator.Add(total, val); err != nil {
			return math.Int{}, err
		}
	}
	return total, nil
}

// TotalUSDValue is the vault's value at the evaluation instant. It fails
// with ErrStale unless every constituent was valued at that instant.
func (v *Vault) TotalUSDValue(ctx context.Context) (math.Int, error) {
	return v.aggregate(v.now(ctx), nil)
}

// ShareRatio is total value per share at calculator.Decimals; 1.0 when no
// shares exist.
func (v *Vault) ShareRatio(ctx context.Context) (math.Int, error) {
	total, err := v.TotalUSDValue(ctx)
	if err != nil {
		return math.Int{}, err
	}
	return v.ratioFor(total)
}

func (v *Vault) ratioFor(total math.Int) (math.Int, error) {
	if v.totalShares.IsZero() {
		return calculator.One, nil
	}
	return calculator.MulDiv(total, calculator.One, v.totalShares)
}

// lastKnownValue sums stored values regardless of age.
func (v *Vault) lastKnownValue() math.Int {
	total := math.ZeroInt()
	for _, key := range v.constituents() {
		if e, ok := v.values[key]; ok {
			total = total.Add(e.value)
		}
	}
	return total
}
