package orders

import (
	"context"
	"testing"

	"github.com/ariefcatur/custom-orders/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rowsTx is a Tx over a plain slice of rows that records lock order.
type rowsTx struct {
	Tx
	rows   map[string]Resource
	locked [][]ResourceKey
	writes int
}

func newRowsTx(rs ...Resource) *rowsTx {
	t := &rowsTx{rows: map[string]Resource{}}
	for _, r := range rs {
		t.rows[r.ID] = r
	}
	return t
}

func (t *rowsTx) LockResources(_ context.Context, keys []ResourceKey) (map[ResourceKey]Resource, error) {
	t.locked = append(t.locked, keys)
	out := map[ResourceKey]Resource{}
	for _, k := range keys {
		for _, r := range t.rows {
			if r.Key() == k {
				out[k] = r
			}
		}
	}
	return out, nil
}

func (t *rowsTx) AdjustResource(_ context.Context, id string, delta int) (Resource, error) {
	r := t.rows[id]
	r.Quantity += delta
	t.rows[id] = r
	t.writes++
	return r, nil
}

func red(q int) Resource { return Resource{ID: "red", Type: ResourceColor, Name: "RED", Quantity: q} }
func green(q int) Resource { return Resource{ID: "green", Type: ResourceColor, Name: "GREEN", Quantity: q} }
func cotton(q int) Resource { return Resource{ID: "cotton", Type: ResourceMaterial, Name: "COTTON", Quantity: q} }

func TestMoveNetsSameRow(t *testing.T) {
	tx := newRowsTx(red(2), cotton(2))
	l := NewLedger(tx)

	// 5 out, 4 back: only the delta of 1 has to be available
	changed, err := l.Move(context.Background(),
		[]Line{{Key: ColorKey(ColorRed), Amount: 5}},
		[]Line{{Key: ColorKey(ColorRed), Amount: 4}})
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, 1, tx.rows["red"].Quantity)
}

func TestMoveIsAllOrNothing(t *testing.T) {
	tx := newRowsTx(red(10), cotton(1))
	_, err := NewLedger(tx).Move(context.Background(), []Line{
		{Key: ColorKey(ColorRed), Amount: 3},
		{Key: MaterialKey(MaterialCotton), Amount: 3},
	}, nil)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Zero(t, tx.writes)
	assert.Equal(t, 10, tx.rows["red"].Quantity)
}

func TestMoveLocksInKeyOrder(t *testing.T) {
	tx := newRowsTx(red(10), green(10), cotton(10))
	_, err := NewLedger(tx).Move(context.Background(),
		[]Line{{Key: MaterialKey(MaterialCotton), Amount: 1}, {Key: ColorKey(ColorRed), Amount: 1}},
		[]Line{{Key: ColorKey(ColorGreen), Amount: 1}})
	require.NoError(t, err)
	require.Len(t, tx.locked, 1)
	assert.Equal(t, []ResourceKey{
		{Type: ResourceColor, Name: "GREEN"},
		{Type: ResourceColor, Name: "RED"},
		{Type: ResourceMaterial, Name: "COTTON"},
	}, tx.locked[0])
}

func TestMoveDropsCreditToMissingRow(t *testing.T) {
	tx := newRowsTx(cotton(0))
	changed, err := NewLedger(tx).Move(context.Background(), nil, []Line{
		{Key: ColorKey(ColorPink), Amount: 2},
		{Key: MaterialKey(MaterialCotton), Amount: 2},
	})
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, 2, tx.rows["cotton"].Quantity)
}

func TestMoveRejectsDebitOfMissingRow(t *testing.T) {
	tx := newRowsTx()
	err := NewLedger(tx).Debit(context.Background(), ColorKey(ColorPink), 1)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
}

func TestMoveRejectsNonPositiveAmounts(t *testing.T) {
	tx := newRowsTx(red(5))
	err := NewLedger(tx).Credit(context.Background(), ColorKey(ColorRed), 0)
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
	assert.Empty(t, tx.locked)
}

func TestLookup(t *testing.T) {
	l := NewLedger(newRowsTx(red(5)))
	r, err := l.Lookup(context.Background(), ColorKey(ColorRed))
	require.NoError(t, err)
	assert.Equal(t, 5, r.Quantity)

	_, err = l.Lookup(context.Background(), ColorKey(ColorBlue))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
