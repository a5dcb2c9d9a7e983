package calculator

import (
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"

	"YieldVault/internal/model"
)

// MaxDecimals bounds any native decimal count accepted from a feed or asset.
const MaxDecimals = 38

// Pow10 returns 10^n.
func Pow10(n uint8) math.Int {
	return math.NewIntFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil))
}

// Rescale converts v from `from` decimals to `to` decimals. Scaling up is
// exact; scaling down floors.
func Rescale(v math.Int, from, to uint8) (math.Int, error) {
	if from > MaxDecimals || to > MaxDecimals {
		return math.Int{}, errorsmod.Wrapf(model.ErrInvalidArgument, "decimals %d -> %d out of range", from, to)
	}
	switch {
	case from == to:
		if _, err := operand(v); err != nil {
			return math.Int{}, err
		}
		return v, nil
	case from < to:
		return MulDiv(v, Pow10(to-from), math.OneInt())
	default:
		return MulDiv(v, math.OneInt(), Pow10(from-to))
	}
}

// ValueOf prices amount units of an asset with assetDecimals native decimals
// at a Decimals-scaled USD price, returning a ValueDecimals-scaled value.
func ValueOf(amount, price math.Int, assetDecimals uint8) (math.Int, error) {
	scaled, err := Rescale(amount, assetDecimals, ValueDecimals)
	if err != nil {
		return math.Int{}, err
	}
	return MulD(scaled, price)
}

// AmountFor inverts ValueOf: the number of native units worth value at price.
func AmountFor(value, price math.Int, assetDecimals uint8) (math.Int, error) {
	if price.IsNil() || price.IsZero() {
		return math.Int{}, errorsmod.Wrap(model.ErrZeroPrice, "cannot convert value at zero price")
	}
	scaled, err := DivD(value, price)
	if err != nil {
		return math.Int{}, err
	}
	return Rescale(scaled, ValueDecimals, assetDecimals)
}
