// Package adaptor values custody items held in external protocols.
//
// Every adaptor returns a USD value at calculator.ValueDecimals and works
// on canonical oracle prices only. A position carries the identifier of the
// pool or market it was opened against and is valued only against that
// exact instance.
package adaptor

import (
	"context"
	"sort"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"

	"YieldVault/internal/model"
	"YieldVault/internal/registry"
)

// PriceSource is an oracle pinned to one evaluation instant.
type PriceSource interface {
	Price(key string) (math.Int, error)
	Value(key string, amount math.Int) (math.Int, error)
	Decimals(key string) (uint8, error)
}

// Pool is a live reference to an external pool or market.
type Pool interface {
	PoolID() string
}

// Bound is implemented by items opened against one pool or market. The vault
// values them only against the pool it has registered under that id.
type Bound interface {
	BoundPool() string
}

// Adaptor values one kind of custody item.
type Adaptor interface {
	Kind() string
	Valuate(ctx context.Context, item registry.Item, pool Pool, prices PriceSource) (math.Int, error)
}

// Set maps item kinds to their adaptor.
type Set struct {
	mu       sync.RWMutex
	adaptors map[string]Adaptor
}

// NewSet creates a set holding the given adaptors.
func NewSet(adaptors ...Adaptor) *Set {
	s := &Set{adaptors: make(map[string]Adaptor)}
	for _, a := range adaptors {
		s.adaptors[a.Kind()] = a
	}
	return s
}

// Register adds or replaces the adaptor for its kind.
func (s *Set) Register(a Adaptor) error {
	if a == nil || a.Kind() == "" {
		return errorsmod.Wrap(model.ErrInvalidArgument, "adaptor must have a kind")
	}
	s.mu.Lock()
	s.adaptors[a.Kind()] = a
	s.mu.Unlock()
	return nil
}

// Get returns the adaptor for kind.
func (s *Set) Get(kind string) (Adaptor, error) {
	s.mu.RLock()
	a, ok := s.adaptors[kind]
	s.mu.RUnlock()
	if !ok {
		return nil, errorsmod.Wrapf(model.ErrNotFound, "no adaptor for %s items", kind)
	}
	return a, nil
}

// Kinds lists the registered kinds.
func (s *Set) Kinds() []string {
	s.mu.RLock()
	kinds := make([]string, 0, len(s.adaptors))
	for k := range s.adaptors {
		kinds = append(kinds, k)
	}
	s.mu.RUnlock()
	sort.Strings(kinds)
	return kinds
}

func checkPool(want string, pool Pool) error {
	if pool == nil {
		return errorsmod.Wrapf(model.ErrInvalidArgument, "pool %s required", want)
	}
	if got := pool.PoolID(); got != want {
		return errorsmod.Wrapf(model.ErrInvariant, "position belongs to pool %s, got %s", want, got)
	}
	return nil
}

func itemAs[T registry.Item](item registry.Item, kind string) (T, error) {
	v, ok := item.(T)
	if !ok {
		var zero T
		return zero, errorsmod.Wrapf(model.ErrInvalidArgument, "%s adaptor cannot value %T", kind, item)
	}
	return v, nil
}

func poolAs[T Pool](pool Pool, kind string) (T, error) {
	v, ok := pool.(T)
	if !ok {
		var zero T
		return zero, errorsmod.Wrapf(model.ErrInvalidArgument, "%s adaptor cannot read pool %T", kind, pool)
	}
	return v, nil
}
