package model

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

// Codespace scopes every registered vault error.
const Codespace = "vault"

var (
	ErrUnauthorized        = errorsmod.Register(Codespace, 2, "unauthorized")
	ErrInvalidStatus       = errorsmod.Register(Codespace, 3, "invalid status for call")
	ErrStale               = errorsmod.Register(Codespace, 4, "stale value")
	ErrSlippage            = errorsmod.Register(Codespace, 5, "slippage bound violated")
	ErrValuationIncomplete = errorsmod.Register(Codespace, 6, "valuation incomplete")
	ErrInvariant           = errorsmod.Register(Codespace, 7, "invariant violated")
	ErrZeroPrice           = errorsmod.Register(Codespace, 8, "zero or unavailable price")
	ErrNotFound            = errorsmod.Register(Codespace, 9, "not found")
	ErrInvalidArgument     = errorsmod.Register(Codespace, 10, "invalid argument")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrUnauthorized, "authorization"},
	{ErrInvalidStatus, "state"},
	{ErrStale, "staleness"},
	{ErrSlippage, "slippage"},
	{ErrValuationIncomplete, "valuation_incomplete"},
	{ErrZeroPrice, "zero_price"},
	{ErrInvariant, "invariant"},
	{ErrNotFound, "not_found"},
	{ErrInvalidArgument, "invalid_argument"},
}

// ErrorKind maps an error onto its taxonomy label. Nil maps to "ok" and
// anything unregistered to "internal".
func ErrorKind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
