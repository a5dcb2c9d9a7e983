package model

import (
	"time"

	"cosmossdk.io/math"
)

// OperationInfo is a read-only view of the operation in flight.
type OperationInfo struct {
	ID           uint64    `json:"id"`
	Operator     string    `json:"operator"`
	Phase        string    `json:"phase"`
	StartedAt    time.Time `json:"started_at"`
	BorrowedKeys []string  `json:"borrowed_keys"`
	UpdatedKeys  []string  `json:"updated_keys"`
	ValueBefore  math.Int  `json:"value_before"`
	SharesBefore math.Int  `json:"shares_before"`
}

// Summary is the checkpointed view of the vault.
type Summary struct {
	VaultID            string         `json:"vault_id"`
	Status             string         `json:"status"`
	FreePrincipal      math.Int       `json:"free_principal"`
	ClaimableFees      math.Int       `json:"claimable_fees"`
	TotalShares        math.Int       `json:"total_shares"`
	LastKnownValue     math.Int       `json:"last_known_value"`
	Fresh              bool           `json:"fresh"`
	ShareRatio         math.Int       `json:"share_ratio"`
	LossToleranceBps   uint64         `json:"loss_tolerance_bps"`
	EpochLoss          math.Int       `json:"epoch_loss"`
	EpochBaseValue     math.Int       `json:"epoch_base_value"`
	PendingDeposits    int            `json:"pending_deposits"`
	PendingWithdrawals int            `json:"pending_withdrawals"`
	Operation          *OperationInfo `json:"operation,omitempty"`
	EvaluatedAt        time.Time      `json:"evaluated_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}
