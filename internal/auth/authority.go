// Package auth issues operator capabilities and keeps the freeze table.
package auth

import (
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"YieldVault/internal/model"
)

// AdminCap authorises configuration changes. Only New creates one.
type AdminCap struct {
	id        uuid.UUID
	authority *Authority
}

// ID identifies the capability.
func (c *AdminCap) ID() uuid.UUID { return c.id }

// OperatorCap authorises custody moves and request execution. It cannot be
// destroyed; freezing is the only revocation.
type OperatorCap struct {
	id        uuid.UUID
	authority *Authority
}

// ID identifies the capability.
func (c *OperatorCap) ID() uuid.UUID { return c.id }

// Authority is the OperatorAuthority.
type Authority struct {
	mu        sync.RWMutex
	admin     *AdminCap
	operators map[uuid.UUID]*OperatorCap
	frozen    map[uuid.UUID]bool
	log       *zap.Logger
}

// New creates an authority and its single admin capability.
func New(log *zap.Logger) (*Authority, *AdminCap) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Authority{
		operators: make(map[uuid.UUID]*OperatorCap),
		frozen:    make(map[uuid.UUID]bool),
		log:       log,
	}
	a.admin = &AdminCap{id: uuid.New(), authority: a}
	return a, a.admin
}

// CheckAdmin verifies cap is this authority's admin capability.
func (a *Authority) CheckAdmin(cap *AdminCap) error {
	if cap == nil || cap != a.admin {
		return errorsmod.Wrap(model.ErrUnauthorized, "admin capability required")
	}
	return nil
}

// CreateOperatorCap issues a new operator capability.
func (a *Authority) CreateOperatorCap(admin *AdminCap) (*OperatorCap, error) {
	if err := a.CheckAdmin(admin); err != nil {
		return nil, err
	}
	cap := &OperatorCap{id: uuid.New(), authority: a}
	a.mu.Lock()
	a.operators[cap.id] = cap
	a.mu.Unlock()
	a.log.Info("operator capability issued", zap.String("operator", cap.id.String()))
	return cap, nil
}

// SetOperatorFrozen freezes or unfreezes an operator. Writes are last writer
// wins; an operation already in flight is not aborted.
func (a *Authority) SetOperatorFrozen(admin *AdminCap, operator uuid.UUID, frozen bool) error {
	if err := a.CheckAdmin(admin); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.operators[operator]; !ok {
		return errorsmod.Wrapf(model.ErrNotFound, "operator %s", operator)
	}
	if frozen {
		a.frozen[operator] = true
	} else {
		delete(a.frozen, operator)
	}
	a.log.Info("operator freeze updated", zap.String("operator", operator.String()), zap.Bool("frozen", frozen))
	return nil
}

// IsFrozen reports the freeze flag; an absent entry means not frozen.
func (a *Authority) IsFrozen(operator uuid.UUID) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frozen[operator]
}

// CheckOperator is the single gate every privileged vault call passes
// through first.
func (a *Authority) CheckOperator(cap *OperatorCap) error {
	if cap == nil {
		return errorsmod.Wrap(model.ErrUnauthorized, "operator capability required")
	}
	if cap.authority != a {
		return errorsmod.Wrapf(model.ErrUnauthorized, "operator %s belongs to another authority", cap.id)
	}
	a.mu.RLock()
	issued := a.operators[cap.id] == cap
	frozen := a.frozen[cap.id]
	a.mu.RUnlock()
	if !issued {
		return errorsmod.Wrapf(model.ErrUnauthorized, "operator %s was not issued here", cap.id)
	}
	if frozen {
		return errorsmod.Wrapf(model.ErrUnauthorized, "operator %s is frozen", cap.id)
	}
	return nil
}

// Operators lists issued operator ids with their freeze flag.
func (a *Authority) Operators() map[uuid.UUID]bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[uuid.UUID]bool, len(a.operators))
	for id := range a.operators {
		out[id] = a.frozen[id]
	}
	return out
}
