package vault

import (
	"time"

	errorsmod "cosmossdk.io/errors"

	"YieldVault/internal/model"
)

// MaxFeeBps caps both the deposit and the withdraw fee.
const MaxFeeBps = 500

// Params are the admin-tunable vault parameters.
type Params struct {
	LossToleranceBps       uint64        `json:"loss_tolerance_bps"`
	DepositFeeBps          uint64        `json:"deposit_fee_bps"`
	WithdrawFeeBps         uint64        `json:"withdraw_fee_bps"`
	EpochDuration          time.Duration `json:"epoch_duration"`
	LockingTimeForWithdraw time.Duration `json:"locking_time_for_withdraw"`
	LockingTimeForCancel   time.Duration `json:"locking_time_for_cancel"`
	EscapeHatchDelay       time.Duration `json:"escape_hatch_delay"`
}

// DefaultParams returns conservative defaults: 0.1% epoch loss tolerance,
// no fees, daily epochs.
func DefaultParams() Params {
	return Params{
		LossToleranceBps:       10,
		EpochDuration:          24 * time.Hour,
		LockingTimeForWithdraw: 12 * time.Hour,
		LockingTimeForCancel:   5 * time.Minute,
		EscapeHatchDelay:       72 * time.Hour,
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.LossToleranceBps > model.BasisPoints {
		return errorsmod.Wrapf(model.ErrInvalidArgument, "loss tolerance %d bps exceeds %d", p.LossToleranceBps, model.BasisPoints)
	}
	if p.DepositFeeBps > MaxFeeBps || p.WithdrawFeeBps > MaxFeeBps {
		return errorsmod.Wrapf(model.ErrInvalidArgument, "fees %d/%d bps exceed cap %d", p.DepositFeeBps, p.WithdrawFeeBps, MaxFeeBps)
	}
	if p.EpochDuration <= 0 {
		return errorsmod.Wrap(model.ErrInvalidArgument, "epoch duration must be positive")
	}
	if p.LockingTimeForWithdraw < 0 || p.LockingTimeForCancel < 0 {
		return errorsmod.Wrap(model.ErrInvalidArgument, "locking times must not be negative")
	}
	if p.EscapeHatchDelay <= 0 {
		return errorsmod.Wrap(model.ErrInvalidArgument, "escape hatch delay must be positive")
	}
	return nil
}
