package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/custom-orders/internal/apperr"
	"github.com/ariefcatur/custom-orders/internal/auth"
	"github.com/ariefcatur/custom-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store, r orders.Resource) {
	t.Helper()
	require.NoError(t, s.InTx(context.Background(), func(tx orders.Tx) error {
		return tx.InsertResource(context.Background(), r)
	}))
}

func TestFailedTxLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, orders.Resource{ID: "r1", Type: orders.ResourceColor, Name: "RED", Quantity: 5})

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx orders.Tx) error {
		if _, err := tx.AdjustResource(ctx, "r1", -3); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, orders.Order{ID: "o1", Quantity: 3}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rs, err := s.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, 5, rs[0].Quantity)

	_, err = s.GetOrder(ctx, "o1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAdjustNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, orders.Resource{ID: "r1", Type: orders.ResourceMaterial, Name: "COTTON", Quantity: 1})

	err := s.InTx(ctx, func(tx orders.Tx) error {
		_, err := tx.AdjustResource(ctx, "r1", -2)
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
}

func TestResourceKeyUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, orders.Resource{ID: "r1", Type: orders.ResourceColor, Name: "RED", Quantity: 1})
	seed(t, s, orders.Resource{ID: "r2", Type: orders.ResourceColor, Name: "BLUE", Quantity: 1})

	err := s.InTx(ctx, func(tx orders.Tx) error {
		return tx.InsertResource(ctx, orders.Resource{ID: "r3", Type: orders.ResourceColor, Name: "RED"})
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	err = s.InTx(ctx, func(tx orders.Tx) error {
		return tx.UpdateResource(ctx, orders.Resource{ID: "r2", Type: orders.ResourceColor, Name: "RED"})
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// same name under another type is fine
	seed(t, s, orders.Resource{ID: "r4", Type: orders.ResourceMaterial, Name: "RED", Quantity: 1})
}

func TestListOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.InTx(ctx, func(tx orders.Tx) error {
		for i, id := range []string{"a", "b", "c"} {
			owner := "u1"
			if id == "b" {
				owner = "u2"
			}
			o := orders.Order{ID: id, OwnerID: owner, Quantity: 1, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
			if err := tx.InsertOrder(ctx, o); err != nil {
				return err
			}
		}
		return nil
	}))

	all, err := s.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	mine, err := s.ListOrdersByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "c", mine[0].ID)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := auth.User{ID: "u1", Email: "zoro@example.com", Username: "zoro"}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.ErrorIs(t, s.CreateUser(ctx, auth.User{ID: "u2", Email: "zoro@example.com"}), apperr.ErrConflict)

	got, err := s.UserByEmail(ctx, "zoro@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	_, err = s.UserByID(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCanceledContextSkipsTx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := New().InTx(ctx, func(orders.Tx) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
