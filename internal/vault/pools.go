package vault

import (
	"sort"

	errorsmod "cosmossdk.io/errors"
	"go.uber.org/zap"

	"YieldVault/internal/adaptor"
	"YieldVault/internal/model"
	"YieldVault/internal/registry"
)

// SetPool registers or replaces the live reference to an external pool or
// market. Positions bound to its id are valued against this instance only.
func (v *Vault) SetPool(admin *AdminCap, pool adaptor.Pool) error {
	if err := v.auth.CheckAdmin(admin); err != nil {
		return err
	}
	if pool == nil || pool.PoolID() == "" {
		return errorsmod.Wrap(model.ErrInvalidArgument, "pool must have an id")
	}
	v.pools[pool.PoolID()] = pool
	v.log.Info("pool registered", zap.String("pool_id", pool.PoolID()))
	return nil
}

// Pool returns the registered pool with id.
func (v *Vault) Pool(id string) (adaptor.Pool, bool) {
	p, ok := v.pools[id]
	return p, ok
}

// PoolIDs lists the registered pools.
func (v *Vault) PoolIDs() []string {
	ids := make([]string, 0, len(v.pools))
	for id := range v.pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// poolFor resolves the registered pool an item is bound to, or nil for items
// valued without one.
func (v *Vault) poolFor(item registry.Item) (adaptor.Pool, error) {
	b, ok := item.(adaptor.Bound)
	if !ok {
		return nil, nil
	}
	p, ok := v.pools[b.BoundPool()]
	if !ok {
		return nil, errorsmod.Wrapf(model.ErrNotFound, "pool %s is not registered", b.BoundPool())
	}
	return p, nil
}
