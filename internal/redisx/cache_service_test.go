package redisx

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/custom-orders/internal/access"
	"github.com/ariefcatur/custom-orders/internal/apperr"
	"github.com/ariefcatur/custom-orders/internal/memstore"
	"github.com/ariefcatur/custom-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	cacheAdmin  = access.Identity{UserID: "admin-1", Username: "nami", Role: access.RoleAdmin}
	cacheClient = access.Identity{UserID: "client-1", Username: "luffy", Role: access.RoleClient}
)

// slowReadStore runs between once, after the store read and before the cache fill,
// the window where a concurrent mutation can commit.
type slowReadStore struct {
	orders.Store
	once    sync.Once
	between func()
}

func (s *slowReadStore) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	o, err := s.Store.GetOrder(ctx, id)
	if s.between != nil {
		s.once.Do(s.between)
	}
	return o, err
}

func newCachedService(t *testing.T) (*orders.Service, *slowReadStore, func(id string)) {
	t.Helper()
	mr, rdb := newRedis(t)
	store := &slowReadStore{Store: memstore.New()}
	svc := orders.NewService(store, nil, NewOrderCache(rdb, nil), nil, "cache-test")

	var mu sync.Mutex
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Millisecond)
		return clock
	}

	ctx := context.Background()
	for _, in := range []orders.ResourceInput{
		{Type: "color", Name: "red", Quantity: 10},
		{Type: "material", Name: "cotton", Quantity: 10},
	} {
		_, err := svc.CreateResource(ctx, cacheAdmin, in)
		require.NoError(t, err)
	}
	evict := func(id string) { mr.Del(fmt.Sprintf(KeyOrder, id)) }
	return svc, store, evict
}

func TestCachedReadRacingStatusChangeServesCommittedOrder(t *testing.T) {
	ctx := context.Background()
	svc, store, evict := newCachedService(t)

	o, err := svc.CreateOrder(ctx, cacheClient, orders.OrderInput{Size: "small", Color: "red", Design: "going_merry", Material: "cotton", Quantity: 1})
	require.NoError(t, err)
	evict(o.ID)

	store.between = func() {
		_, err := svc.UpdateStatus(ctx, cacheAdmin, o.ID, "shipped")
		require.NoError(t, err)
	}
	stale, err := svc.GetOrder(ctx, cacheClient, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, stale.Status)

	got, err := svc.GetOrder(ctx, cacheClient, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, got.Status)
}

func TestCachedReadRacingDeleteDoesNotResurrect(t *testing.T) {
	ctx := context.Background()
	svc, store, evict := newCachedService(t)

	o, err := svc.CreateOrder(ctx, cacheClient, orders.OrderInput{Size: "small", Color: "red", Design: "going_merry", Material: "cotton", Quantity: 1})
	require.NoError(t, err)
	evict(o.ID)

	store.between = func() {
		_, err := svc.DeleteOrder(ctx, cacheClient, o.ID)
		require.NoError(t, err)
	}
	_, err = svc.GetOrder(ctx, cacheClient, o.ID)
	require.NoError(t, err)

	_, err = svc.GetOrder(ctx, cacheClient, o.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMutationsWriteThroughCache(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newCachedService(t)

	o, err := svc.CreateOrder(ctx, cacheClient, orders.OrderInput{Size: "small", Color: "red", Design: "going_merry", Material: "cotton", Quantity: 1})
	require.NoError(t, err)
	_, err = svc.UpdateOrder(ctx, cacheClient, o.ID, orders.OrderInput{Size: "small", Color: "red", Design: "going_merry", Material: "cotton", Quantity: 4})
	require.NoError(t, err)

	reads := 0
	store.between = func() { reads++ }
	got, err := svc.GetOrder(ctx, cacheClient, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Quantity)
	assert.Zero(t, reads)
}
