package model

import (
	"cosmossdk.io/math"
	"github.com/google/uuid"
)

// DepositRequest escrows principal until an operator executes or the
// requester cancels it.
type DepositRequest struct {
	ID             uint64    `json:"id"`
	VaultID        uuid.UUID `json:"vault_id"`
	ReceiptID      uuid.UUID `json:"receipt_id"`
	Requester      string    `json:"requester"`
	Amount         math.Int  `json:"amount"`
	ExpectedShares math.Int  `json:"expected_shares"`
	SubmittedAt    int64     `json:"submitted_at"`
}

// WithdrawRequest commits receipt shares to be burned for principal paid to
// Recipient.
type WithdrawRequest struct {
	ID             uint64    `json:"id"`
	VaultID        uuid.UUID `json:"vault_id"`
	ReceiptID      uuid.UUID `json:"receipt_id"`
	Requester      string    `json:"requester"`
	Recipient      string    `json:"recipient"`
	Shares         math.Int  `json:"shares"`
	ExpectedAmount math.Int  `json:"expected_amount"`
	SubmittedAt    int64     `json:"submitted_at"`
}

// DepositResult describes an executed deposit.
type DepositResult struct {
	RequestID uint64    `json:"request_id"`
	ReceiptID uuid.UUID `json:"receipt_id"`
	Amount    math.Int  `json:"amount"`
	Fee       math.Int  `json:"fee"`
	Shares    math.Int  `json:"shares"`
}

// Payout describes an executed withdraw; Amount is owed to Recipient.
type Payout struct {
	RequestID uint64    `json:"request_id"`
	ReceiptID uuid.UUID `json:"receipt_id"`
	Recipient string    `json:"recipient"`
	Shares    math.Int  `json:"shares"`
	Amount    math.Int  `json:"amount"`
	Fee       math.Int  `json:"fee"`
}
