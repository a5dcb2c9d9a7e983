package model

// Status is the vault-wide state.
type Status uint8

const (
	StatusNormal Status = iota
	StatusDuringOperation
	StatusDisabled
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "NORMAL"
	case StatusDuringOperation:
		return "DURING_OPERATION"
	case StatusDisabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

// Phase tracks a single operation through its multi-call lifecycle.
type Phase uint8

const (
	PhaseInit Phase = iota
	PhaseAssetsBorrowed
	PhaseAssetsReturned
	PhaseValuationEnabled
	PhaseValuationComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseAssetsBorrowed:
		return "ASSETS_BORROWED"
	case PhaseAssetsReturned:
		return "ASSETS_RETURNED"
	case PhaseValuationEnabled:
		return "VALUATION_ENABLED"
	case PhaseValuationComplete:
		return "VALUATION_COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// PrincipalKey is the value-table key of the vault's free principal balance.
const PrincipalKey = "principal"

// BasisPoints is the denominator for every bps-denominated parameter.
const BasisPoints = 10_000
