package orders

import "context"

// Store is the durable order and ledger state. Every mutation goes through
// InTx; the transaction is committed only when fn returns nil.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	ListOrdersByOwner(ctx context.Context, ownerID string) ([]Order, error)
	ListResources(ctx context.Context) ([]Resource, error)
}

// Tx is the set of statements available inside one transaction. Lock*
// methods hold the returned rows until the transaction ends.
type Tx interface {
	// LockResources returns the rows that exist; missing keys are absent
	// from the map. Rows are locked in (type, name) order.
	LockResources(ctx context.Context, keys []ResourceKey) (map[ResourceKey]Resource, error)
	LockResourceByID(ctx context.Context, id string) (Resource, error)
	AdjustResource(ctx context.Context, id string, delta int) (Resource, error)
	InsertResource(ctx context.Context, r Resource) error
	UpdateResource(ctx context.Context, r Resource) error
	// PendingOrdersHolding counts pending orders that reserve stock on key.
	PendingOrdersHolding(ctx context.Context, key ResourceKey) (int, error)

	GetOrderForUpdate(ctx context.Context, id string) (Order, error)
	InsertOrder(ctx context.Context, o Order) error
	UpdateOrder(ctx context.Context, o Order) error
	DeleteOrder(ctx context.Context, id string) error
}
