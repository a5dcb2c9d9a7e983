package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"YieldVault/internal/model"
)

func TestCheckOperator(t *testing.T) {
	a, admin := New(nil)
	op, err := a.CreateOperatorCap(admin)
	require.NoError(t, err)
	require.NoError(t, a.CheckOperator(op))

	require.ErrorIs(t, a.CheckOperator(nil), model.ErrUnauthorized)

	other, otherAdmin := New(nil)
	foreign, err := other.CreateOperatorCap(otherAdmin)
	require.NoError(t, err)
	require.ErrorIs(t, a.CheckOperator(foreign), model.ErrUnauthorized)

	forged := &OperatorCap{id: op.ID(), authority: a}
	require.ErrorIs(t, a.CheckOperator(forged), model.ErrUnauthorized)
}

func TestFreezeLastWriterWins(t *testing.T) {
	a, admin := New(nil)
	op, err := a.CreateOperatorCap(admin)
	require.NoError(t, err)
	assert.False(t, a.IsFrozen(op.ID()))

	require.NoError(t, a.SetOperatorFrozen(admin, op.ID(), true))
	require.ErrorIs(t, a.CheckOperator(op), model.ErrUnauthorized)
	require.NoError(t, a.SetOperatorFrozen(admin, op.ID(), true))
	require.NoError(t, a.SetOperatorFrozen(admin, op.ID(), false))
	require.NoError(t, a.CheckOperator(op))
	assert.Equal(t, map[uuid.UUID]bool{op.ID(): false}, a.Operators())
}

func TestAdminRequired(t *testing.T) {
	a, _ := New(nil)
	_, otherAdmin := New(nil)

	_, err := a.CreateOperatorCap(otherAdmin)
	require.ErrorIs(t, err, model.ErrUnauthorized)
	_, err = a.CreateOperatorCap(nil)
	require.ErrorIs(t, err, model.ErrUnauthorized)
	require.ErrorIs(t, a.SetOperatorFrozen(otherAdmin, uuid.New(), true), model.ErrUnauthorized)
}

func TestFreezeUnknownOperator(t *testing.T) {
	a, admin := New(nil)
	require.ErrorIs(t, a.SetOperatorFrozen(admin, uuid.New(), true), model.ErrNotFound)
}
