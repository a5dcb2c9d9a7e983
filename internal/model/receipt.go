package model

import (
	"cosmossdk.io/math"
	"github.com/google/uuid"
)

// ReceiptStatus reports whether a receipt has a request in flight.
type ReceiptStatus uint8

const (
	ReceiptNormal ReceiptStatus = iota
	ReceiptPendingDeposit
	ReceiptPendingWithdraw
)

func (s ReceiptStatus) String() string {
	switch s {
	case ReceiptNormal:
		return "NORMAL"
	case ReceiptPendingDeposit:
		return "PENDING_DEPOSIT"
	case ReceiptPendingWithdraw:
		return "PENDING_WITHDRAW"
	default:
		return "UNKNOWN"
	}
}

// Receipt is the depositor's bearer handle into the vault. Owner is the
// current holder; a receipt with a pending request cannot change hands, so
// the requester captured at submit is always the holder at cancel/execute.
type Receipt struct {
	ID                    uuid.UUID           `json:"id"`
	VaultID               uuid.UUID           `json:"vault_id"`
	Owner                 string              `json:"owner"`
	Status                ReceiptStatus       `json:"status"`
	Shares                math.Int            `json:"shares"`
	PendingDeposit        math.Int            `json:"pending_deposit"`
	PendingWithdrawShares math.Int            `json:"pending_withdraw_shares"`
	LastDepositAt         int64               `json:"last_deposit_at"`
	RewardSnapshot        map[string]math.Int `json:"reward_snapshot,omitempty"`
}

// TransferLocked reports whether the receipt is pinned to its owner.
func (r Receipt) TransferLocked() bool {
	return r.Status != ReceiptNormal
}

// AvailableShares are shares not already committed to a withdraw request.
func (r Receipt) AvailableShares() math.Int {
	return r.Shares.Sub(r.PendingWithdrawShares)
}
