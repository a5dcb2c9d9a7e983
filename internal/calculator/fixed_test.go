package calculator

import (
	"errors"
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"YieldVault/internal/model"
)

func TestRescale_UpIsExact(t *testing.T) {
	// 1.234567 with 6 decimals -> 9 decimals
	got, err := Rescale(math.NewInt(1_234_567), 6, 9)
	require.NoError(t, err)
	assert.Equal(t, math.NewInt(1_234_567_000), got)
}

func TestRescale_DownFloors(t *testing.T) {
	// 1.999999999999999999 with 18 decimals -> 9 decimals floors to 1.999999999
	v, ok := math.NewIntFromString("1999999999999999999")
	require.True(t, ok)
	got, err := Rescale(v, 18, 9)
	require.NoError(t, err)
	assert.Equal(t, math.NewInt(1_999_999_999), got)

	// never rounds up, even one unit below the next step
	got, err = Rescale(math.NewInt(999_999_999), 18, 9)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestRescale_RejectsOutOfRangeDecimals(t *testing.T) {
	_, err := Rescale(math.NewInt(1), 40, 9)
	assert.True(t, errors.Is(err, model.ErrInvalidArgument))
}

func TestMulDiv(t *testing.T) {
	got, err := MulDiv(math.NewInt(10), math.NewInt(3), math.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, math.NewInt(7), got)

	_, err = MulDiv(math.NewInt(1), math.NewInt(1), math.ZeroInt())
	assert.True(t, errors.Is(err, model.ErrInvariant))
}

func TestMulDiv_WideIntermediate(t *testing.T) {
	// a*b exceeds 256 bits but the quotient fits
	a := Pow10(70)
	got, err := MulDiv(a, Pow10(10), Pow10(10))
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestArithmetic_OverflowAndUnderflow(t *testing.T) {
	_, err := MulDiv(Pow10(40), Pow10(40), math.OneInt())
	assert.True(t, errors.Is(err, model.ErrInvariant))

	_, err = Sub(math.NewInt(1), math.NewInt(2))
	assert.True(t, errors.Is(err, model.ErrInvariant))

	_, err = Add(math.NewInt(-1), math.NewInt(2))
	assert.True(t, errors.Is(err, model.ErrInvariant))
}

func TestValueOfAndAmountFor(t *testing.T) {
	// 1000 whole units of a 9-decimal asset at $2
	amount := math.NewInt(1000).Mul(Pow10(9))
	price := math.NewInt(2).Mul(One)
	value, err := ValueOf(amount, price, 9)
	require.NoError(t, err)
	assert.Equal(t, math.NewInt(2000).Mul(Pow10(ValueDecimals)), value)

	back, err := AmountFor(value, price, 9)
	require.NoError(t, err)
	assert.Equal(t, amount, back)

	_, err = AmountFor(value, math.ZeroInt(), 9)
	assert.True(t, errors.Is(err, model.ErrZeroPrice))
}

func TestBpsOf(t *testing.T) {
	got, err := BpsOf(math.NewInt(1_000_000), 10)
	require.NoError(t, err)
	assert.Equal(t, math.NewInt(1_000), got)
}
