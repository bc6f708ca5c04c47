package orders_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/custom-orders/internal/access"
	"github.com/ariefcatur/custom-orders/internal/apperr"
	"github.com/ariefcatur/custom-orders/internal/auth"
	"github.com/ariefcatur/custom-orders/internal/orders"
	"github.com/ariefcatur/custom-orders/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// POSTGRES_TEST_DSN must point at a disposable database: every test
// truncates the orders and resources tables.
type pgFixture struct {
	db    *pgxpool.Pool
	store *orders.PgStore
	svc   *orders.Service
	admin access.Identity
	user  access.Identity
}

func newPgFixture(t *testing.T) *pgFixture {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := postgres.Connect(ctx, dsn, postgres.PoolOptions{MaxConns: 16})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, postgres.Migrate(ctx, db))
	_, err = db.Exec(ctx, `TRUNCATE orders, resources`)
	require.NoError(t, err)

	users := &auth.UserRepo{DB: db}
	newUser := func(role access.Role) access.Identity {
		u := auth.User{
			ID:           uuid.NewString(),
			Username:     "pg-" + string(role),
			Email:        uuid.NewString() + "@example.com",
			PasswordHash: "x",
			Role:         role,
			IsActive:     true,
			CreatedAt:    time.Now().UTC(),
		}
		require.NoError(t, users.CreateUser(ctx, u))
		return u.Identity()
	}

	store := &orders.PgStore{DB: db}
	return &pgFixture{
		db:    db,
		store: store,
		svc:   orders.NewService(store, nil, nil, nil, "order-api-test"),
		admin: newUser(access.RoleAdmin),
		user:  newUser(access.RoleClient),
	}
}

func (f *pgFixture) stock(t *testing.T, typ orders.ResourceType, name string, qty int) orders.Resource {
	t.Helper()
	r, err := f.svc.CreateResource(context.Background(), f.admin, orders.ResourceInput{Type: string(typ), Name: name, Quantity: qty})
	require.NoError(t, err)
	return r
}

func (f *pgFixture) qty(t *testing.T, typ orders.ResourceType, name string) int {
	t.Helper()
	rs, err := f.store.ListResources(context.Background())
	require.NoError(t, err)
	for _, r := range rs {
		if r.Type == typ && r.Name == name {
			return r.Quantity
		}
	}
	t.Fatalf("resource %s/%s not found", typ, name)
	return 0
}

func TestPgConcurrentCreateNeverOverdraws(t *testing.T) {
	f := newPgFixture(t)
	const (
		capacity = 10
		perOrder = 3
		callers  = 12
	)
	f.stock(t, orders.ResourceColor, "black", capacity)
	f.stock(t, orders.ResourceMaterial, "mixed", 100)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, infeasible int
	var other []error
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateOrder(context.Background(), f.user, hoodie("black", "mixed", perOrder))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrOrderNotFeasible):
				infeasible++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, capacity/perOrder, ok)
	assert.Equal(t, callers-capacity/perOrder, infeasible)
	assert.Equal(t, capacity-ok*perOrder, f.qty(t, orders.ResourceColor, "BLACK"))
	assert.Equal(t, 100-ok*perOrder, f.qty(t, orders.ResourceMaterial, "MIXED"))

	list, err := f.svc.ListOrders(context.Background(), f.admin)
	require.NoError(t, err)
	assert.Len(t, list, ok)
}

func TestPgUpdateRollsBackOnShortResource(t *testing.T) {
	ctx := context.Background()
	f := newPgFixture(t)
	f.stock(t, orders.ResourceColor, "red", 10)
	f.stock(t, orders.ResourceColor, "pink", 2)
	f.stock(t, orders.ResourceMaterial, "cotton", 10)

	o, err := f.svc.CreateOrder(ctx, f.user, hoodie("red", "cotton", 3))
	require.NoError(t, err)

	_, err = f.svc.UpdateOrder(ctx, f.user, o.ID, hoodie("pink", "cotton", 3))
	assert.ErrorIs(t, err, apperr.ErrOrderNotFeasible)
	assert.Equal(t, 7, f.qty(t, orders.ResourceColor, "RED"))
	assert.Equal(t, 2, f.qty(t, orders.ResourceColor, "PINK"))
	assert.Equal(t, 7, f.qty(t, orders.ResourceMaterial, "COTTON"))

	got, err := f.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.ColorRed, got.Color)
	assert.Equal(t, 3, got.Quantity)

	updated, err := f.svc.UpdateOrder(ctx, f.user, o.ID, hoodie("red", "cotton", 5))
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Quantity)
	assert.Equal(t, 5, f.qty(t, orders.ResourceColor, "RED"))

	_, err = f.svc.DeleteOrder(ctx, f.user, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, f.qty(t, orders.ResourceColor, "RED"))
	assert.Equal(t, 10, f.qty(t, orders.ResourceMaterial, "COTTON"))
}

func TestPgConstraintErrorsMapToTaxonomy(t *testing.T) {
	ctx := context.Background()
	f := newPgFixture(t)
	red := f.stock(t, orders.ResourceColor, "red", 1)

	// unique (type, name)
	_, err := f.svc.CreateResource(ctx, f.admin, orders.ResourceInput{Type: "COLOR", Name: "Red", Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// quantity >= 0
	err = f.store.InTx(ctx, func(tx orders.Tx) error {
		_, err := tx.AdjustResource(ctx, red.ID, -2)
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, 1, f.qty(t, orders.ResourceColor, "RED"))

	// orders.user_id references users
	err = f.store.InTx(ctx, func(tx orders.Tx) error {
		now := time.Now().UTC()
		return tx.InsertOrder(ctx, orders.Order{
			ID: uuid.NewString(), Size: orders.SizeSmall, Color: orders.ColorRed, Design: orders.DesignGoingMerry,
			Material: orders.MaterialCotton, Quantity: 1, Status: orders.StatusPending,
			OwnerID: "nobody", CreatedAt: now, UpdatedAt: now,
		})
	})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	err = f.store.InTx(ctx, func(tx orders.Tx) error {
		return tx.UpdateOrder(ctx, orders.Order{ID: "missing", Status: orders.StatusPending, Quantity: 1})
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	err = f.store.InTx(ctx, func(tx orders.Tx) error { return tx.DeleteOrder(ctx, "missing") })
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	err = f.store.InTx(ctx, func(tx orders.Tx) error {
		return tx.UpdateResource(ctx, orders.Resource{ID: "missing", Type: orders.ResourceColor, Name: "GHOST"})
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.store.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPgRenameHeldResourceIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newPgFixture(t)
	red := f.stock(t, orders.ResourceColor, "red", 10)
	f.stock(t, orders.ResourceMaterial, "cotton", 10)

	_, err := f.svc.CreateOrder(ctx, f.user, hoodie("red", "cotton", 2))
	require.NoError(t, err)

	err = f.store.InTx(ctx, func(tx orders.Tx) error {
		n, err := tx.PendingOrdersHolding(ctx, orders.ColorKey(orders.ColorRed))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = tx.PendingOrdersHolding(ctx, orders.MaterialKey(orders.MaterialCotton))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateResource(ctx, f.admin, red.ID, orders.ResourceInput{Type: "COLOR", Name: "PINK", Quantity: 8})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}
