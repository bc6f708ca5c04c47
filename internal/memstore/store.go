// Package memstore is a process-local implementation of orders.Store and
// auth.UserStore. A transaction holds the store mutex for its whole run and
// works on a copy of the state, which replaces the live state only when the
// callback succeeds.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ariefcatur/custom-orders/internal/apperr"
	"github.com/ariefcatur/custom-orders/internal/auth"
	"github.com/ariefcatur/custom-orders/internal/orders"
)

type state struct {
	orders    map[string]orders.Order
	resources map[string]orders.Resource
}

func (s *state) clone() *state {
	c := &state{
		orders:    make(map[string]orders.Order, len(s.orders)),
		resources: make(map[string]orders.Resource, len(s.resources)),
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.resources {
		c.resources[k] = v
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	st    *state
	users map[string]auth.User
}

func New() *Store {
	return &Store{
		st: &state{
			orders:    map[string]orders.Order{},
			resources: map[string]orders.Resource{},
		},
		users: map[string]auth.User{},
	}
}

func (s *Store) InTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	return o, nil
}

func (s *Store) ListOrders(_ context.Context) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedOrders(s.st.orders, func(orders.Order) bool { return true }), nil
}

func (s *Store) ListOrdersByOwner(_ context.Context, ownerID string) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedOrders(s.st.orders, func(o orders.Order) bool { return o.OwnerID == ownerID }), nil
}

func (s *Store) ListResources(_ context.Context) ([]orders.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Resource, 0, len(s.st.resources))
	for _, r := range s.st.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// newest first, like the Postgres store
func sortedOrders(all map[string]orders.Order, keep func(orders.Order) bool) []orders.Order {
	out := make([]orders.Order, 0, len(all))
	for _, o := range all {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type tx struct{ st *state }

func (t *tx) LockResources(_ context.Context, keys []orders.ResourceKey) (map[orders.ResourceKey]orders.Resource, error) {
	want := make(map[orders.ResourceKey]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	out := make(map[orders.ResourceKey]orders.Resource, len(keys))
	for _, r := range t.st.resources {
		if want[r.Key()] {
			out[r.Key()] = r
		}
	}
	return out, nil
}

func (t *tx) LockResourceByID(_ context.Context, id string) (orders.Resource, error) {
	r, ok := t.st.resources[id]
	if !ok {
		return orders.Resource{}, fmt.Errorf("%w: resource %s", apperr.ErrNotFound, id)
	}
	return r, nil
}

func (t *tx) AdjustResource(_ context.Context, id string, delta int) (orders.Resource, error) {
	r, ok := t.st.resources[id]
	if !ok {
		return orders.Resource{}, fmt.Errorf("%w: resource %s", apperr.ErrNotFound, id)
	}
	if r.Quantity+delta < 0 {
		return orders.Resource{}, fmt.Errorf("%w: resource %s", apperr.ErrInsufficientStock, id)
	}
	r.Quantity += delta
	t.st.resources[id] = r
	return r, nil
}

func (t *tx) InsertResource(_ context.Context, r orders.Resource) error {
	if t.keyTaken(r.Key(), "") {
		return fmt.Errorf("%w: resource %s already exists", apperr.ErrConflict, r.Key())
	}
	t.st.resources[r.ID] = r
	return nil
}

func (t *tx) UpdateResource(_ context.Context, r orders.Resource) error {
	if _, ok := t.st.resources[r.ID]; !ok {
		return fmt.Errorf("%w: resource %s", apperr.ErrNotFound, r.ID)
	}
	if t.keyTaken(r.Key(), r.ID) {
		return fmt.Errorf("%w: resource %s already exists", apperr.ErrConflict, r.Key())
	}
	t.st.resources[r.ID] = r
	return nil
}

func (t *tx) keyTaken(k orders.ResourceKey, exceptID string) bool {
	for id, r := range t.st.resources {
		if id != exceptID && r.Key() == k {
			return true
		}
	}
	return false
}

func (t *tx) PendingOrdersHolding(_ context.Context, key orders.ResourceKey) (int, error) {
	n := 0
	for _, o := range t.st.orders {
		if o.Status == orders.StatusPending && o.Holds(key) {
			n++
		}
	}
	return n, nil
}

func (t *tx) GetOrderForUpdate(_ context.Context, id string) (orders.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	return o, nil
}

func (t *tx) InsertOrder(_ context.Context, o orders.Order) error {
	if _, ok := t.st.orders[o.ID]; ok {
		return fmt.Errorf("%w: order %s already exists", apperr.ErrConflict, o.ID)
	}
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) UpdateOrder(_ context.Context, o orders.Order) error {
	if _, ok := t.st.orders[o.ID]; !ok {
		return fmt.Errorf("%w: order %s", apperr.ErrNotFound, o.ID)
	}
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) DeleteOrder(_ context.Context, id string) error {
	if _, ok := t.st.orders[id]; !ok {
		return fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	delete(t.st.orders, id)
	return nil
}

func (s *Store) CreateUser(_ context.Context, u auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: user with email %s already exists", apperr.ErrConflict, u.Email)
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, fmt.Errorf("%w: user", apperr.ErrNotFound)
}

func (s *Store) UserByID(_ context.Context, id string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, fmt.Errorf("%w: user", apperr.ErrNotFound)
	}
	return u, nil
}

var (
	_ orders.Store   = (*Store)(nil)
	_ auth.UserStore = (*Store)(nil)
)
