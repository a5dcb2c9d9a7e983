package registry

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"YieldVault/internal/model"
)

type coin struct {
	id     uuid.UUID
	amount int64
}

func (c *coin) ID() uuid.UUID { return c.id }
func (c *coin) Kind() string  { return "coin" }

type byValue struct{ id uuid.UUID }

func (b byValue) ID() uuid.UUID { return b.id }
func (b byValue) Kind() string  { return "value" }

func TestPutTakeContains(t *testing.T) {
	r := New()
	c := &coin{id: uuid.New(), amount: 10}

	require.NoError(t, r.Put("USDC", c))
	assert.True(t, r.Contains("USDC"))
	require.ErrorIs(t, r.Put("USDC", &coin{id: uuid.New()}), model.ErrInvariant)

	got, err := r.Take("USDC")
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.False(t, r.Contains("USDC"))

	_, err = r.Take("USDC")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestPutRejectsNonPointer(t *testing.T) {
	r := New()
	require.ErrorIs(t, r.Put("x", byValue{id: uuid.New()}), model.ErrInvalidArgument)
	require.ErrorIs(t, r.Put("x", nil), model.ErrInvalidArgument)
	var nilCoin *coin
	require.ErrorIs(t, r.Put("x", nilCoin), model.ErrInvalidArgument)
}

func TestBorrowReturnIdentity(t *testing.T) {
	r := New()
	orig := &coin{id: uuid.New(), amount: 1_000}
	require.NoError(t, r.Put("pos", orig))

	item, err := r.BorrowOut("pos")
	require.NoError(t, err)
	assert.True(t, r.InFlight("pos"))
	assert.False(t, r.Contains("pos"))
	require.ErrorIs(t, r.Put("pos", &coin{id: uuid.New()}), model.ErrInvariant)

	// Same id, different object: a drained copy must not be accepted.
	forged := &coin{id: orig.id, amount: 0}
	require.ErrorIs(t, r.ReturnIn("pos", forged), model.ErrInvariant)
	require.ErrorIs(t, r.ReturnIn("pos", &coin{id: uuid.New()}), model.ErrInvariant)
	assert.True(t, r.InFlight("pos"))

	// Mutated in place is still the same item.
	item.(*coin).amount = 1_100
	require.NoError(t, r.ReturnIn("pos", item))
	assert.False(t, r.InFlight("pos"))
	assert.True(t, r.Contains("pos"))

	require.ErrorIs(t, r.ReturnIn("pos", item), model.ErrInvariant)
}

func TestWriteOffAndKeys(t *testing.T) {
	r := New()
	require.NoError(t, r.Put("b", &coin{id: uuid.New()}))
	require.NoError(t, r.Put("a", &coin{id: uuid.New()}))
	assert.Equal(t, []string{"a", "b"}, r.Keys())

	_, err := r.BorrowOut("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, r.Keys())
	assert.Equal(t, []string{"b"}, r.BorrowedKeys())

	_, err = r.WriteOff("b")
	require.NoError(t, err)
	assert.Empty(t, r.BorrowedKeys())
	require.NoError(t, r.Put("b", &coin{id: uuid.New()}))

	_, err = r.WriteOff("a")
	require.ErrorIs(t, err, model.ErrNotFound)
}
