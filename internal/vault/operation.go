package vault

import (
	"context"
	"sort"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"YieldVault/internal/calculator"
	"YieldVault/internal/model"
	"YieldVault/internal/registry"
)

// operation is the OperationLedger record of the operation in flight.
type operation struct {
	id           uint64
	operator     uuid.UUID
	phase        model.Phase
	startedAt    time.Time
	valueBefore  math.Int
	sharesBefore math.Int
	borrowed     []string
	principalOut math.Int
	// principalOutValue is principalOut priced at begin.
	principalOutValue math.Int
	updated           map[string]bool
}

func (o *operation) isBorrowed(key string) bool {
	i := sort.SearchStrings(o.borrowed, key)
	return i < len(o.borrowed) && o.borrowed[i] == key
}

func (o *operation) missing() []string {
	var out []string
	for _, k := range o.borrowed {
		if !o.updated[k] {
			out = append(out, k)
		}
	}
	return out
}

// Custody is what an operator holds between BeginOperation and EndCustody.
// Items must come back as the same objects; Principal is whatever principal
// the operator returns, which may differ from what was taken.
type Custody struct {
	OperationID uint64
	Items       map[string]registry.Item
	Principal   math.Int
}

// OperationResult summarises a completed or aborted operation.
type OperationResult struct {
	OperationID uint64
	ValueBefore math.Int
	ValueAfter  math.Int
	Loss        math.Int
	EpochLoss   math.Int
	WrittenOff  []string
}

// BeginOperation snapshots value and shares, moves the vault to
// DURING_OPERATION and hands the listed items plus principalAmount of free
// principal to the operator.
func (v *Vault) BeginOperation(ctx context.Context, op *OperatorCap, keys []string, principalAmount math.Int) (*Custody, error) {
	if err := v.auth.CheckOperator(op); err != nil {
		return nil, err
	}
	if err := v.requireStatus(model.StatusNormal); err != nil {
		return nil, err
	}
	if v.op != nil {
		return nil, errorsmod.Wrapf(model.ErrInvariant, "operation %d still recorded", v.op.id)
	}
	if err := nonNegative(principalAmount, "principal amount"); err != nil {
		return nil, err
	}
	if principalAmount.GT(v.freePrincipal) {
		return nil, errorsmod.Wrapf(model.ErrInvalidArgument, "borrow %s principal, %s free", principalAmount, v.freePrincipal)
	}

	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if key == model.PrincipalKey {
			return nil, errorsmod.Wrap(model.ErrInvalidArgument, "borrow principal through principalAmount")
		}
		if seen[key] {
			return nil, errorsmod.Wrapf(model.ErrInvalidArgument, "asset %s listed twice", key)
		}
		seen[key] = true
		item, ok := v.registry.Get(key)
		if !ok {
			return nil, errorsmod.Wrapf(model.ErrNotFound, "asset %s", key)
		}
		if _, err := v.adaptors.Get(item.Kind()); err != nil {
			return nil, errorsmod.Wrapf(err, "asset %s could never be revalued", key)
		}
	}
	if len(keys) == 0 && principalAmount.IsZero() {
		return nil, errorsmod.Wrap(model.ErrInvalidArgument, "operation borrows nothing")
	}

	now := v.now(ctx)
	valueBefore, err := v.aggregate(now, nil)
	if err != nil {
		return nil, errorsmod.Wrap(err, "pre-operation snapshot")
	}

	outValue := math.ZeroInt()
	if principalAmount.IsPositive() {
		if outValue, err = v.oracle.Value(v.principalAsset, principalAmount, now); err != nil {
			return nil, errorsmod.Wrap(err, "price borrowed principal")
		}
	}

	borrowed := append([]string(nil), keys...)
	if principalAmount.IsPositive() {
		borrowed = append(borrowed, model.PrincipalKey)
	}
	sort.Strings(borrowed)

	custody := &Custody{
		OperationID: v.nextOpID,
		Items:       make(map[string]registry.Item, len(keys)),
		Principal:   principalAmount,
	}
	for _, key := range keys {
		item, err := v.registry.BorrowOut(key)
		if err != nil {
			return nil, errorsmod.Wrapf(model.ErrInvariant, "borrow %s after validation: %v", key, err)
		}
		custody.Items[key] = item
	}

	v.rollEpoch(now, valueBefore)
	v.freePrincipal = v.freePrincipal.Sub(principalAmount)
	v.op = &operation{
		id:           v.nextOpID,
		operator:     op.ID(),
		phase:        model.PhaseAssetsBorrowed,
		startedAt:    now,
		valueBefore:  valueBefore,
		sharesBefore: v.totalShares,
		borrowed:     borrowed,
		principalOut: principalAmount,

		principalOutValue: outValue,
	}
	v.nextOpID++
	v.status = model.StatusDuringOperation

	v.log.Info("operation begun",
		zap.Uint64("operation_id", v.op.id),
		zap.String("operator", op.ID().String()),
		zap.Strings("borrowed", borrowed),
		zap.String("value_before", valueBefore.String()))
	return custody, nil
}

// rollEpoch starts a new accounting epoch when the current one has run out.
func (v *Vault) rollEpoch(now time.Time, base math.Int) {
	if v.epoch.start != 0 && now.Sub(time.UnixMilli(v.epoch.start)) < v.params.EpochDuration {
		return
	}
	v.epoch = epoch{start: now.UnixMilli(), loss: math.ZeroInt(), baseValue: base}
	v.log.Info("loss epoch started", zap.String("base_value", base.String()))
}

// EndCustody returns every borrowed item and the principal. Each item must be
// the exact object handed out by BeginOperation.
func (v *Vault) EndCustody(_ context.Context, op *OperatorCap, custody *Custody) error {
	if err := v.auth.CheckOperator(op); err != nil {
		return err
	}
	o, err := v.requirePhase(model.PhaseAssetsBorrowed)
	if err != nil {
		return err
	}
	if custody == nil || custody.OperationID != o.id {
		return errorsmod.Wrapf(model.ErrInvariant, "custody does not belong to operation %d", o.id)
	}
	if err := nonNegative(custody.Principal, "returned principal"); err != nil {
		return err
	}
	for key := range custody.Items {
		if !o.isBorrowed(key) || key == model.PrincipalKey {
			return errorsmod.Wrapf(model.ErrInvariant, "asset %s was not borrowed by operation %d", key, o.id)
		}
	}
	for _, key := range o.borrowed {
		if key == model.PrincipalKey {
			continue
		}
		item, ok := custody.Items[key]
		if !ok {
			return errorsmod.Wrapf(model.ErrInvariant, "asset %s not returned", key)
		}
		if err := v.registry.CheckReturn(key, item); err != nil {
			return err
		}
	}
	free, err := calculator.Add(v.freePrincipal, custody.Principal)
	if err != nil {
		return err
	}

	for _, key := range o.borrowed {
		if key == model.PrincipalKey {
			continue
		}
		if err := v.registry.ReturnIn(key, custody.Items[key]); err != nil {
			return errorsmod.Wrapf(model.ErrInvariant, "return %s after validation: %v", key, err)
		}
	}
	v.freePrincipal = free
	o.phase = model.PhaseAssetsReturned
	v.log.Info("custody returned",
		zap.Uint64("operation_id", o.id),
		zap.String("operator", op.ID().String()),
		zap.String("principal", custody.Principal.String()))
	return nil
}

// EnableValuation opens the valuation phase. From here every borrowed key
// must be revalued before CompleteOperation succeeds.
func (v *Vault) EnableValuation(_ context.Context, op *OperatorCap) error {
	if err := v.auth.CheckOperator(op); err != nil {
		return err
	}
	o, err := v.requirePhase(model.PhaseAssetsReturned)
	if err != nil {
		return err
	}
	o.phase = model.PhaseValuationEnabled
	o.updated = make(map[string]bool, len(o.borrowed))
	v.log.Info("valuation enabled", zap.Uint64("operation_id", o.id), zap.Strings("pending", o.borrowed))
	return nil
}

// CompleteOperation checks that every borrowed key was revalued, charges any
// loss against the epoch tolerance and returns the vault to NORMAL.
func (v *Vault) CompleteOperation(ctx context.Context, op *OperatorCap, expectedTotalShares math.Int) (OperationResult, error) {
	if err := v.auth.CheckOperator(op); err != nil {
		return OperationResult{}, err
	}
	o, err := v.requirePhase(model.PhaseValuationEnabled)
	if err != nil {
		return OperationResult{}, err
	}
	if missing := o.missing(); len(missing) > 0 {
		return OperationResult{}, errorsmod.Wrapf(model.ErrValuationIncomplete, "not revalued: %v", missing)
	}

	now := v.now(ctx)
	after, err := v.aggregate(now, nil)
	if err != nil {
		return OperationResult{}, err
	}
	loss := math.ZeroInt()
	if after.LT(o.valueBefore) {
		loss = o.valueBefore.Sub(after)
	}
	epochLoss, err := calculator.Add(v.epoch.loss, loss)
	if err != nil {
		return OperationResult{}, err
	}
	limit, err := calculator.BpsOf(v.epoch.baseValue, v.params.LossToleranceBps)
	if err != nil {
		return OperationResult{}, err
	}
	if epochLoss.GT(limit) {
		return OperationResult{}, errorsmod.Wrapf(model.ErrInvariant, "epoch loss %s exceeds tolerance %s (%d bps of %s)",
			epochLoss, limit, v.params.LossToleranceBps, v.epoch.baseValue)
	}
	if expectedTotalShares.IsNil() || !v.totalShares.Equal(expectedTotalShares) {
		return OperationResult{}, errorsmod.Wrapf(model.ErrInvariant, "total shares %s, expected %s", v.totalShares, expectedTotalShares)
	}

	o.phase = model.PhaseValuationComplete
	v.epoch.loss = epochLoss
	v.op = nil
	v.status = model.StatusNormal

	v.log.Info("operation completed",
		zap.Uint64("operation_id", o.id),
		zap.String("operator", op.ID().String()),
		zap.String("value_before", o.valueBefore.String()),
		zap.String("value_after", after.String()),
		zap.String("loss", loss.String()))
	return OperationResult{
		OperationID: o.id,
		ValueBefore: o.valueBefore,
		ValueAfter:  after,
		Loss:        loss,
		EpochLoss:   epochLoss,
	}, nil
}

// AbortOperation is the admin escape hatch for a vault stuck mid-operation.
// It is accepted only once the operation has run for EscapeHatchDelay.
// Unreturned items and principal are written off at their last known value
// and charged to the epoch without tolerance enforcement; returned items stay
// in custody but must be revalued.
func (v *Vault) AbortOperation(ctx context.Context, admin *AdminCap) (OperationResult, error) {
	if err := v.auth.CheckAdmin(admin); err != nil {
		return OperationResult{}, err
	}
	if v.status != model.StatusDuringOperation || v.op == nil {
		return OperationResult{}, errorsmod.Wrapf(model.ErrInvalidStatus, "vault is %s, no operation to abort", v.status)
	}
	o := v.op
	now := v.now(ctx)
	if ready := o.startedAt.Add(v.params.EscapeHatchDelay); now.Before(ready) {
		return OperationResult{}, errorsmod.Wrapf(model.ErrInvalidStatus, "escape hatch opens at %s", ready.UTC().Format(time.RFC3339))
	}

	lost := math.ZeroInt()
	var writtenOff []string
	for _, key := range o.borrowed {
		switch {
		case key == model.PrincipalKey:
			if o.phase != model.PhaseAssetsBorrowed || o.principalOut.IsZero() {
				continue
			}
			val, err := v.oracle.Value(v.principalAsset, o.principalOut, now)
			if err != nil {
				v.log.Warn("unreturned principal priced at begin value", zap.Error(err))
				val = o.principalOutValue
			}
			lost = lost.Add(val)
			writtenOff = append(writtenOff, key)
		case v.registry.InFlight(key):
			if _, err := v.registry.WriteOff(key); err != nil {
				return OperationResult{}, err
			}
			if e, ok := v.values[key]; ok {
				lost = lost.Add(e.value)
			}
			writtenOff = append(writtenOff, key)
		}
		if key != model.PrincipalKey {
			delete(v.values, key)
		}
	}
	// principal value is stale either way
	delete(v.values, model.PrincipalKey)

	v.epoch.loss = v.epoch.loss.Add(lost)
	v.op = nil
	v.status = model.StatusNormal

	v.log.Warn("operation aborted by admin",
		zap.Uint64("operation_id", o.id),
		zap.String("phase", o.phase.String()),
		zap.Strings("written_off", writtenOff),
		zap.String("loss", lost.String()))
	return OperationResult{
		OperationID: o.id,
		ValueBefore: o.valueBefore,
		Loss:        lost,
		EpochLoss:   v.epoch.loss,
		WrittenOff:  writtenOff,
	}, nil
}

func (v *Vault) requirePhase(want model.Phase) (*operation, error) {
	if v.status != model.StatusDuringOperation || v.op == nil {
		return nil, errorsmod.Wrapf(model.ErrInvalidStatus, "vault is %s, no operation in flight", v.status)
	}
	if v.op.phase != want {
		return nil, errorsmod.Wrapf(model.ErrInvalidStatus, "operation %d is %s, want %s", v.op.id, v.op.phase, want)
	}
	return v.op, nil
}

// Operation describes the operation in flight, or nil.
func (v *Vault) Operation() *model.OperationInfo {
	if v.op == nil {
		return nil
	}
	o := v.op
	info := &model.OperationInfo{
		ID:           o.id,
		Operator:     o.operator.String(),
		Phase:        o.phase.String(),
		StartedAt:    o.startedAt,
		BorrowedKeys: append([]string(nil), o.borrowed...),
		ValueBefore:  o.valueBefore,
		SharesBefore: o.sharesBefore,
	}
	for _, k := range o.borrowed {
		if o.updated[k] {
			info.UpdatedKeys = append(info.UpdatedKeys, k)
		}
	}
	return info
}
