package adaptor

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/google/uuid"

	"YieldVault/internal/model"
	"YieldVault/internal/registry"
)

// KindBalance is the item kind of a plain token balance.
const KindBalance = "balance"

// Balance is an auxiliary token balance held by the vault.
type Balance struct {
	id     uuid.UUID
	Asset  string
	Amount math.Int
}

// NewBalance creates a balance item of asset.
func NewBalance(asset string, amount math.Int) *Balance {
	return &Balance{id: uuid.New(), Asset: asset, Amount: amount}
}

func (b *Balance) ID() uuid.UUID { return b.id }
func (b *Balance) Kind() string  { return KindBalance }

// BalanceAdaptor prices a balance at its oracle price.
type BalanceAdaptor struct{}

func (BalanceAdaptor) Kind() string { return KindBalance }

func (BalanceAdaptor) Valuate(_ context.Context, item registry.Item, pool Pool, prices PriceSource) (math.Int, error) {
	b, err := itemAs[*Balance](item, KindBalance)
	if err != nil {
		return math.Int{}, err
	}
	if pool != nil {
		return math.Int{}, errorsmod.Wrap(model.ErrInvalidArgument, "balances are valued without a pool")
	}
	return prices.Value(b.Asset, b.Amount)
}
