package adaptor

import (
	"context"
	"sort"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/google/uuid"

	"YieldVault/internal/calculator"
	"YieldVault/internal/model"
	"YieldVault/internal/registry"
)

// KindLending is the item kind of a lending market account.
const KindLending = "lending"

// LendingMarket is the live state of an external lending market. Indices are
// calculator.Decimals-scaled multipliers from scaled balance to native units.
type LendingMarket struct {
	ID          string
	SupplyIndex map[string]math.Int
	BorrowIndex map[string]math.Int
}

func (m *LendingMarket) PoolID() string { return m.ID }

// LendingAccount is the vault's account in one lending market. Balances are
// stored scaled, as the market reports them.
type LendingAccount struct {
	id       uuid.UUID
	MarketID string
	Supplied map[string]math.Int
	Borrowed map[string]math.Int
}

// NewLendingAccount creates an empty account bound to marketID.
func NewLendingAccount(marketID string) *LendingAccount {
	return &LendingAccount{
		id:       uuid.New(),
		MarketID: marketID,
		Supplied: make(map[string]math.Int),
		Borrowed: make(map[string]math.Int),
	}
}

func (a *LendingAccount) ID() uuid.UUID { return a.id }
func (a *LendingAccount) Kind() string  { return KindLending }

func (a *LendingAccount) BoundPool() string { return a.MarketID }

// LendingAdaptor values an account as supply minus debt, floored at zero.
type LendingAdaptor struct{}

func (LendingAdaptor) Kind() string { return KindLending }

func (LendingAdaptor) Valuate(_ context.Context, item registry.Item, pool Pool, prices PriceSource) (math.Int, error) {
	acct, err := itemAs[*LendingAccount](item, KindLending)
	if err != nil {
		return math.Int{}, err
	}
	if err := checkPool(acct.MarketID, pool); err != nil {
		return math.Int{}, err
	}
	market, err := poolAs[*LendingMarket](pool, KindLending)
	if err != nil {
		return math.Int{}, err
	}

	supply, err := sideValue(market.ID, acct.Supplied, market.SupplyIndex, prices)
	if err != nil {
		return math.Int{}, err
	}
	debt, err := sideValue(market.ID, acct.Borrowed, market.BorrowIndex, prices)
	if err != nil {
		return math.Int{}, err
	}
	if debt.GT(supply) {
		return math.ZeroInt(), nil
	}
	return calculator.Sub(supply, debt)
}

func sideValue(marketID string, scaled, index map[string]math.Int, prices PriceSource) (math.Int, error) {
	assets := make([]string, 0, len(scaled))
	for a := range scaled {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	total := math.ZeroInt()
	for _, asset := range assets {
		idx, ok := index[asset]
		if !ok || idx.IsNil() {
			return math.Int{}, errorsmod.Wrapf(model.ErrInvariant, "market %s has no index for %s", marketID, asset)
		}
		amount, err := calculator.MulD(scaled[asset], idx)
		if err != nil {
			return math.Int{}, err
		}
		v, err := prices.Value(asset, amount)
		if err != nil {
			return math.Int{}, err
		}
		if total, err = calculator.Add(total, v); err != nil {
			return math.Int{}, err
		}
	}
	return total, nil
}
