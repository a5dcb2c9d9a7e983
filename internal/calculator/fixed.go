package calculator

import (
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"

	"YieldVault/internal/model"
)

// Decimals is the fixed-point scale of prices and share ratios.
const Decimals = 18

// ValueDecimals is the scale of every USD value held by the vault.
const ValueDecimals = 9

// One is 1.0 at Decimals scale.
var One = math.NewIntFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil))

// fromBig converts an intermediate result back into a bounded unsigned Int.
func fromBig(b *big.Int) (math.Int, error) {
	if b.Sign() < 0 {
		return math.Int{}, errorsmod.Wrap(model.ErrInvariant, "arithmetic underflow")
	}
	if b.BitLen() > math.MaxBitLen {
		return math.Int{}, errorsmod.Wrap(model.ErrInvariant, "arithmetic overflow")
	}
	return math.NewIntFromBigInt(b), nil
}

func operand(x math.Int) (*big.Int, error) {
	if x.IsNil() {
		return nil, errorsmod.Wrap(model.ErrInvariant, "uninitialised operand")
	}
	if x.IsNegative() {
		return nil, errorsmod.Wrap(model.ErrInvariant, "negative operand")
	}
	return x.BigInt(), nil
}

// Add returns a+b.
func Add(a, b math.Int) (math.Int, error) {
	x, err := operand(a)
	if err != nil {
		return math.Int{}, err
	}
	y, err := operand(b)
	if err != nil {
		return math.Int{}, err
	}
	return fromBig(x.Add(x, y))
}

// Sub returns a-b and rejects underflow.
func Sub(a, b math.Int) (math.Int, error) {
	x, err := operand(a)
	if err != nil {
		return math.Int{}, err
	}
	y, err := operand(b)
	if err != nil {
		return math.Int{}, err
	}
	return fromBig(x.Sub(x, y))
}

// MulDiv returns floor(a*b/c). The product is computed at full width so only
// the final result has to fit.
func MulDiv(a, b, c math.Int) (math.Int, error) {
	x, err := operand(a)
	if err != nil {
		return math.Int{}, err
	}
	y, err := operand(b)
	if err != nil {
		return math.Int{}, err
	}
	z, err := operand(c)
	if err != nil {
		return math.Int{}, err
	}
	if z.Sign() == 0 {
		return math.Int{}, errorsmod.Wrap(model.ErrInvariant, "division by zero")
	}
	x.Mul(x, y)
	return fromBig(x.Quo(x, z))
}

// MulD multiplies a by a Decimals-scaled factor.
func MulD(a, factor math.Int) (math.Int, error) {
	return MulDiv(a, factor, One)
}

// DivD divides a by b and returns a Decimals-scaled quotient.
func DivD(a, b math.Int) (math.Int, error) {
	return MulDiv(a, One, b)
}

// BpsOf returns floor(v*bps/10000).
func BpsOf(v math.Int, bps uint64) (math.Int, error) {
	return MulDiv(v, math.NewIntFromUint64(bps), math.NewInt(model.BasisPoints))
}

// Sum adds all values, failing on the first overflow.
func Sum(values ...math.Int) (math.Int, error) {
	total := math.ZeroInt()
	for _, v := range values {
		next, err := Add(total, v)
		if err != nil {
			return math.Int{}, err
		}
		total = next
	}
	return total, nil
}
