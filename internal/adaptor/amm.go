package adaptor

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/google/uuid"

	"YieldVault/internal/calculator"
	"YieldVault/internal/model"
	"YieldVault/internal/registry"
)

// KindLiquidity is the item kind of an AMM liquidity position.
const KindLiquidity = "liquidity"

// LiquidityPool is the live state of a constant-product pool. Reserves are in
// each coin's native units.
type LiquidityPool struct {
	ID             string
	CoinA, CoinB   string
	ReserveA       math.Int
	ReserveB       math.Int
	TotalLiquidity math.Int
}

func (p *LiquidityPool) PoolID() string { return p.ID }

// SpotPrice is the price of one A in B, both reserves first brought to
// calculator.Decimals.
func (p *LiquidityPool) SpotPrice(decimalsA, decimalsB uint8) (math.Int, error) {
	a, err := calculator.Rescale(p.ReserveA, decimalsA, calculator.Decimals)
	if err != nil {
		return math.Int{}, err
	}
	b, err := calculator.Rescale(p.ReserveB, decimalsB, calculator.Decimals)
	if err != nil {
		return math.Int{}, err
	}
	if a.IsZero() {
		return math.Int{}, errorsmod.Wrapf(model.ErrInvariant, "pool %s has no %s reserve", p.ID, p.CoinA)
	}
	return calculator.DivD(b, a)
}

// LiquidityPosition is the vault's share of one pool.
type LiquidityPosition struct {
	id        uuid.UUID
	PoolID    string
	Liquidity math.Int
}

// NewLiquidityPosition creates a position bound to poolID.
func NewLiquidityPosition(poolID string, liquidity math.Int) *LiquidityPosition {
	return &LiquidityPosition{id: uuid.New(), PoolID: poolID, Liquidity: liquidity}
}

func (p *LiquidityPosition) ID() uuid.UUID { return p.id }
func (p *LiquidityPosition) Kind() string  { return KindLiquidity }

func (p *LiquidityPosition) BoundPool() string { return p.PoolID }

// AMMAdaptor values a liquidity position at oracle prices after checking the
// pool's spot price is within SlippageBps of the oracle's relative price.
type AMMAdaptor struct {
	SlippageBps uint64
}

func (AMMAdaptor) Kind() string { return KindLiquidity }

func (a AMMAdaptor) Valuate(_ context.Context, item registry.Item, pool Pool, prices PriceSource) (math.Int, error) {
	pos, err := itemAs[*LiquidityPosition](item, KindLiquidity)
	if err != nil {
		return math.Int{}, err
	}
	if err := checkPool(pos.PoolID, pool); err != nil {
		return math.Int{}, err
	}
	lp, err := poolAs[*LiquidityPool](pool, KindLiquidity)
	if err != nil {
		return math.Int{}, err
	}
	if err := a.checkSpot(lp, prices); err != nil {
		return math.Int{}, err
	}
	if lp.TotalLiquidity.IsZero() {
		return math.ZeroInt(), nil
	}
	if pos.Liquidity.GT(lp.TotalLiquidity) {
		return math.Int{}, errorsmod.Wrapf(model.ErrInvariant, "position liquidity exceeds pool %s total", lp.ID)
	}

	amountA, err := calculator.MulDiv(lp.ReserveA, pos.Liquidity, lp.TotalLiquidity)
	if err != nil {
		return math.Int{}, err
	}
	amountB, err := calculator.MulDiv(lp.ReserveB, pos.Liquidity, lp.TotalLiquidity)
	if err != nil {
		return math.Int{}, err
	}
	valueA, err := prices.Value(lp.CoinA, amountA)
	if err != nil {
		return math.Int{}, err
	}
	valueB, err := prices.Value(lp.CoinB, amountB)
	if err != nil {
		return math.Int{}, err
	}
	return calculator.Add(valueA, valueB)
}

// checkSpot compares the pool price with the oracle price of A in B. Both
// oracle prices are already canonical, so feeds with different native
// decimals compare correctly.
func (a AMMAdaptor) checkSpot(lp *LiquidityPool, prices PriceSource) error {
	priceA, err := prices.Price(lp.CoinA)
	if err != nil {
		return err
	}
	priceB, err := prices.Price(lp.CoinB)
	if err != nil {
		return err
	}
	if priceB.IsZero() {
		return errorsmod.Wrapf(model.ErrZeroPrice, "oracle price of %s is zero", lp.CoinB)
	}
	decA, err := prices.Decimals(lp.CoinA)
	if err != nil {
		return err
	}
	decB, err := prices.Decimals(lp.CoinB)
	if err != nil {
		return err
	}

	oracleRel, err := calculator.DivD(priceA, priceB)
	if err != nil {
		return err
	}
	spot, err := lp.SpotPrice(decA, decB)
	if err != nil {
		return err
	}

	diff := spot.Sub(oracleRel).Abs()
	limit, err := calculator.BpsOf(oracleRel, a.SlippageBps)
	if err != nil {
		return err
	}
	if diff.GT(limit) {
		return errorsmod.Wrapf(model.ErrSlippage, "pool %s spot %s deviates from oracle %s by more than %d bps",
			lp.ID, spot, oracleRel, a.SlippageBps)
	}
	return nil
}
