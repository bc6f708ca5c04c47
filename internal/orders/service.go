package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/custom-orders/internal/access"
	"github.com/ariefcatur/custom-orders/internal/apperr"
	kafkax "github.com/ariefcatur/custom-orders/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher is satisfied by kafkax.Producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// Cache is an optional read-through cache for single orders. Reads fill it
// only when the key is absent; committed mutations overwrite it unless the
// entry is newer, and deletes leave a tombstone. A reader that loaded an
// order before a concurrent mutation therefore cannot put the old value back.
type Cache interface {
	GetOrder(ctx context.Context, id string) (Order, bool)
	FillOrder(ctx context.Context, o Order)
	StoreOrder(ctx context.Context, o Order)
	ForgetOrder(ctx context.Context, id string, at time.Time)
}

// Service is the feasibility and reservation engine. Every mutation runs
// the policy check, the ledger movement and the order write inside one
// Store transaction. Events and cache updates happen after commit.
type Service struct {
	Store     Store
	Publisher Publisher
	Cache     Cache
	Log       *zap.Logger
	Producer  string
	Now       func() time.Time
}

func NewService(store Store, pub Publisher, cache Cache, log *zap.Logger, producer string) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Store: store, Publisher: pub, Cache: cache, Log: log, Producer: producer, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) CreateOrder(ctx context.Context, who access.Identity, in OrderInput) (Order, error) {
	if err := access.RequireIdentity(who); err != nil {
		return Order{}, err
	}
	spec, err := ParseOrderSpec(in)
	if err != nil {
		return Order{}, err
	}

	var (
		created Order
		touched []Resource
	)
	err = s.Store.InTx(ctx, func(tx Tx) error {
		now := s.now()
		created = Order{
			ID:        uuid.NewString(),
			Status:    StatusPending,
			OwnerID:   who.UserID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		spec.apply(&created)

		moved, err := NewLedger(tx).Move(ctx, created.reservations(), nil)
		if err != nil {
			return notFeasible(err)
		}
		if err := tx.InsertOrder(ctx, created); err != nil {
			return err
		}
		touched = moved
		return nil
	})
	if err != nil {
		return Order{}, s.fail("create order", err)
	}

	s.storeCached(ctx, created)
	s.Log.Info("order created",
		zap.String("order_id", created.ID),
		zap.String("user_id", created.OwnerID),
		zap.String("color", string(created.Color)),
		zap.String("material", string(created.Material)),
		zap.Int("quantity", created.Quantity))
	s.emit(ctx, TopicOrderCreated, EventOrderCreated, created.ID, OrderCreatedPayload{
		OrderID:  created.ID,
		UserID:   created.OwnerID,
		Size:     created.Size,
		Color:    created.Color,
		Design:   created.Design,
		Material: created.Material,
		Quantity: created.Quantity,
	})
	s.emitAdjusted(ctx, touched, ReasonOrderCreated, created.ID)
	return created, nil
}

// UpdateOrder rewrites the customizable fields of a pending order. The old
// reservation is released and the new one taken in the same ledger move, so
// an unchanged resource is only moved by the quantity delta while a changed
// color or material credits the old row in full and debits the new row in
// full.
//
// The policy is checked before the input is parsed, so a caller that may not
// touch the order learns nothing about it from validation errors.
func (s *Service) UpdateOrder(ctx context.Context, who access.Identity, id string, in OrderInput) (Order, error) {
	if err := access.RequireIdentity(who); err != nil {
		return Order{}, err
	}

	var (
		before, after Order
		touched       []Resource
	)
	err := s.Store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := access.RequireWrite(who, cur.OwnerID); err != nil {
			return err
		}
		spec, err := ParseOrderSpec(in)
		if err != nil {
			return err
		}
		if !cur.Status.Mutable() {
			return fmt.Errorf("%w: order %s is %s", apperr.ErrNotPending, cur.ID, cur.Status)
		}

		next := cur
		spec.apply(&next)
		next.UpdatedAt = s.now()

		moved, err := NewLedger(tx).Move(ctx, next.reservations(), cur.reservations())
		if err != nil {
			return notFeasible(err)
		}
		if err := tx.UpdateOrder(ctx, next); err != nil {
			return err
		}
		before, after, touched = cur, next, moved
		return nil
	})
	if err != nil {
		return Order{}, s.fail("update order", err)
	}

	s.storeCached(ctx, after)
	s.Log.Info("order updated",
		zap.String("order_id", after.ID),
		zap.Int("previous_quantity", before.Quantity),
		zap.Int("quantity", after.Quantity))
	s.emit(ctx, TopicOrderUpdated, EventOrderUpdated, after.ID, OrderUpdatedPayload{
		OrderID:          after.ID,
		UserID:           after.OwnerID,
		Color:            after.Color,
		Material:         after.Material,
		Quantity:         after.Quantity,
		PreviousColor:    before.Color,
		PreviousMaterial: before.Material,
		PreviousQuantity: before.Quantity,
	})
	s.emitAdjusted(ctx, touched, ReasonOrderUpdated, after.ID)
	return after, nil
}

// UpdateStatus moves an order through its lifecycle. The ledger is not touched.
func (s *Service) UpdateStatus(ctx context.Context, who access.Identity, id, status string) (Order, error) {
	if err := access.RequireAdmin(who); err != nil {
		return Order{}, err
	}
	to, err := ParseStatus(status)
	if err != nil {
		return Order{}, err
	}

	var (
		from    Status
		updated Order
	)
	err = s.Store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = cur.Status
		cur.Status = to
		cur.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, cur); err != nil {
			return err
		}
		updated = cur
		return nil
	})
	if err != nil {
		return Order{}, s.fail("update order status", err)
	}

	s.storeCached(ctx, updated)
	s.Log.Info("order status changed",
		zap.String("order_id", updated.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	s.emit(ctx, TopicOrderStatusChanged, EventOrderStatusChanged, updated.ID, OrderStatusChangedPayload{
		OrderID:  updated.ID,
		From:     from,
		To:       to,
		Terminal: to.Terminal(),
	})
	return updated, nil
}

// DeleteOrder removes an order. A pending order still holds its reservation,
// which goes back to the ledger; past pending the stock counts as consumed.
func (s *Service) DeleteOrder(ctx context.Context, who access.Identity, id string) (Order, error) {
	var (
		deleted  Order
		touched  []Resource
		restored bool
	)
	err := s.Store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := access.RequireWrite(who, cur.OwnerID); err != nil {
			return err
		}
		if cur.Status == StatusPending {
			moved, err := NewLedger(tx).Move(ctx, nil, cur.reservations())
			if err != nil {
				return err
			}
			touched, restored = moved, true
		}
		if err := tx.DeleteOrder(ctx, cur.ID); err != nil {
			return err
		}
		deleted = cur
		return nil
	})
	if err != nil {
		return Order{}, s.fail("delete order", err)
	}

	if s.Cache != nil {
		s.Cache.ForgetOrder(ctx, deleted.ID, s.now())
	}
	s.Log.Info("order deleted",
		zap.String("order_id", deleted.ID),
		zap.String("status", string(deleted.Status)),
		zap.Bool("restored", restored))
	s.emit(ctx, TopicOrderDeleted, EventOrderDeleted, deleted.ID, OrderDeletedPayload{
		OrderID:  deleted.ID,
		UserID:   deleted.OwnerID,
		Status:   deleted.Status,
		Restored: restored,
	})
	s.emitAdjusted(ctx, touched, ReasonOrderDeleted, deleted.ID)
	return deleted, nil
}

func (s *Service) GetOrder(ctx context.Context, who access.Identity, id string) (Order, error) {
	o, err := s.loadOrder(ctx, id)
	if err != nil {
		return Order{}, s.fail("get order", err)
	}
	if err := access.RequireRead(who, o.OwnerID); err != nil {
		return Order{}, err
	}
	return o, nil
}

// ListOrders returns every order for an admin and the caller's own otherwise.
func (s *Service) ListOrders(ctx context.Context, who access.Identity) ([]Order, error) {
	if err := access.RequireIdentity(who); err != nil {
		return nil, err
	}
	var (
		list []Order
		err  error
	)
	if who.IsAdmin() {
		list, err = s.Store.ListOrders(ctx)
	} else {
		list, err = s.Store.ListOrdersByOwner(ctx, who.UserID)
	}
	if err != nil {
		return nil, s.fail("list orders", err)
	}
	return list, nil
}

func (s *Service) ListUserOrders(ctx context.Context, who access.Identity, userID string) ([]Order, error) {
	if err := access.RequireRead(who, userID); err != nil {
		return nil, err
	}
	list, err := s.Store.ListOrdersByOwner(ctx, userID)
	if err != nil {
		return nil, s.fail("list user orders", err)
	}
	return list, nil
}

func (s *Service) GetUserOrder(ctx context.Context, who access.Identity, userID, id string) (Order, error) {
	if err := access.RequireRead(who, userID); err != nil {
		return Order{}, err
	}
	o, err := s.loadOrder(ctx, id)
	if err != nil {
		return Order{}, s.fail("get user order", err)
	}
	if o.OwnerID != userID {
		return Order{}, fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	return o, nil
}

func (s *Service) ListResources(ctx context.Context, who access.Identity) ([]Resource, error) {
	if err := access.RequireAdmin(who); err != nil {
		return nil, err
	}
	list, err := s.Store.ListResources(ctx)
	if err != nil {
		return nil, s.fail("list resources", err)
	}
	return list, nil
}

func (s *Service) CreateResource(ctx context.Context, who access.Identity, in ResourceInput) (Resource, error) {
	if err := access.RequireAdmin(who); err != nil {
		return Resource{}, err
	}
	typ, name, err := parseResourceInput(in)
	if err != nil {
		return Resource{}, err
	}
	now := s.now()
	r := Resource{
		ID:        uuid.NewString(),
		Type:      typ,
		Name:      name,
		Quantity:  in.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.Store.InTx(ctx, func(tx Tx) error {
		return tx.InsertResource(ctx, r)
	})
	if err != nil {
		return Resource{}, s.fail("create resource", err)
	}
	s.Log.Info("resource created",
		zap.String("resource_id", r.ID),
		zap.String("key", r.Key().String()),
		zap.Int("quantity", r.Quantity))
	s.emitAdjusted(ctx, []Resource{r}, ReasonResourceCreated, "")
	return r, nil
}

func (s *Service) UpdateResource(ctx context.Context, who access.Identity, id string, in ResourceInput) (Resource, error) {
	if err := access.RequireAdmin(who); err != nil {
		return Resource{}, err
	}
	typ, name, err := parseResourceInput(in)
	if err != nil {
		return Resource{}, err
	}
	var updated Resource
	err = s.Store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.LockResourceByID(ctx, id)
		if err != nil {
			return err
		}
		// pending orders credit back to their key on update or delete
		if next := (ResourceKey{Type: typ, Name: name}); next != cur.Key() {
			n, err := tx.PendingOrdersHolding(ctx, cur.Key())
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: resource %s is reserved by %d pending orders", apperr.ErrConflict, cur.Key(), n)
			}
		}
		cur.Type = typ
		cur.Name = name
		cur.Quantity = in.Quantity
		cur.UpdatedAt = s.now()
		if err := tx.UpdateResource(ctx, cur); err != nil {
			return err
		}
		updated = cur
		return nil
	})
	if err != nil {
		return Resource{}, s.fail("update resource", err)
	}
	s.Log.Info("resource updated",
		zap.String("resource_id", updated.ID),
		zap.String("key", updated.Key().String()),
		zap.Int("quantity", updated.Quantity))
	s.emitAdjusted(ctx, []Resource{updated}, ReasonResourceUpdated, "")
	return updated, nil
}

func (s *Service) loadOrder(ctx context.Context, id string) (Order, error) {
	if s.Cache != nil {
		if o, ok := s.Cache.GetOrder(ctx, id); ok {
			return o, nil
		}
	}
	o, err := s.Store.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if s.Cache != nil {
		s.Cache.FillOrder(ctx, o)
	}
	return o, nil
}

func (s *Service) storeCached(ctx context.Context, o Order) {
	if s.Cache != nil {
		s.Cache.StoreOrder(ctx, o)
	}
}

// notFeasible turns a ledger stock failure into the order-level error.
func notFeasible(err error) error {
	if apperr.CategoryOf(err) == apperr.CategoryBadRequest {
		return fmt.Errorf("%w: %w", apperr.ErrOrderNotFeasible, err)
	}
	return err
}

// fail passes taxonomy errors through and hides everything else behind
// ErrInternal after logging it.
func (s *Service) fail(op string, err error) error {
	if apperr.Known(err) {
		return err
	}
	s.Log.Error(op+" failed", zap.Error(err))
	return fmt.Errorf("%w: %s: %w", apperr.ErrInternal, op, err)
}

func (s *Service) emit(ctx context.Context, topic, eventType, key string, payload any) {
	if s.Publisher == nil {
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EventVersion,
		OccurredAt:    s.now(),
		Producer:      s.Producer,
		TraceID:       TraceID(ctx),
		CorrelationID: key,
		Payload:       kafkax.MustMarshal(payload),
	}
	s.Publisher.Publish(topic, PartitionKey(key), kafkax.MustMarshal(env), kafkax.EventHeaders(eventType, EventVersion)...)
}

func (s *Service) emitAdjusted(ctx context.Context, rs []Resource, reason, orderID string) {
	for _, r := range rs {
		s.emit(ctx, TopicResourceAdjusted, EventResourceAdjusted, r.ID, ResourceAdjustedPayload{
			ResourceID: r.ID,
			Type:       r.Type,
			Name:       r.Name,
			Quantity:   r.Quantity,
			Reason:     reason,
			OrderID:    orderID,
		})
	}
}
