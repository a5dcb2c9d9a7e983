package recorder

import (
	"time"

	"cosmossdk.io/math"

	"YieldVault/internal/model"
)

// OperationEvent records one step of an operation's lifecycle.
type OperationEvent struct {
	At          time.Time
	OperationID uint64
	Operator    string
	Action      string // "BEGIN", "COMPLETE" or "ABORT"
	Keys        []string
	Principal   math.Int
	ValueBefore math.Int
	ValueAfter  math.Int
	Loss        math.Int
	EpochLoss   math.Int
	WrittenOff  []string
}

// RequestEvent records a change to a deposit or withdraw request.
type RequestEvent struct {
	At        time.Time
	RequestID uint64
	Kind      string // "DEPOSIT" or "WITHDRAW"
	Action    string // "SUBMIT", "EXECUTE" or "CANCEL"
	ReceiptID string
	Account   string
	Amount    math.Int
	Shares    math.Int
	Fee       math.Int
}

// Recorder persists the vault's history for analysis.
type Recorder interface {
	RecordOperation(evt *OperationEvent) error
	RecordRequest(evt *RequestEvent) error
	RecordSnapshot(s *model.Summary) error
	Close() error
}
