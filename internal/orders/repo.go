package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/custom-orders/internal/apperr"
	"github.com/ariefcatur/custom-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore keeps orders and the ledger in Postgres. Transactions run at
// read committed; contended rows are taken with SELECT ... FOR UPDATE.
type PgStore struct{ DB *pgxpool.Pool }

const (
	orderColumns    = `id, size, color, design, material, quantity, status, user_id, created_at, updated_at`
	resourceColumns = `id, type, name, quantity, created_at, updated_at`
)

func (s *PgStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PgStore) GetOrder(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	return o, orderErr(id, err)
}

func (s *PgStore) ListOrders(ctx context.Context) ([]Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *PgStore) ListOrdersByOwner(ctx context.Context, ownerID string) ([]Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *PgStore) ListResources(ctx context.Context) ([]Resource, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+resourceColumns+` FROM resources ORDER BY type, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) LockResources(ctx context.Context, keys []ResourceKey) (map[ResourceKey]Resource, error) {
	out := make(map[ResourceKey]Resource, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	conds := make([]string, 0, len(keys))
	args := make([]any, 0, 2*len(keys))
	for i, k := range keys {
		conds = append(conds, fmt.Sprintf("(type=$%d AND name=$%d)", 2*i+1, 2*i+2))
		args = append(args, string(k.Type), k.Name)
	}
	// ORDER BY keeps the lock order stable across concurrent reservations.
	rows, err := t.tx.Query(ctx, `SELECT `+resourceColumns+` FROM resources
		WHERE `+strings.Join(conds, " OR ")+`
		ORDER BY type, name FOR UPDATE`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out[r.Key()] = r
	}
	return out, rows.Err()
}

func (t *pgTx) LockResourceByID(ctx context.Context, id string) (Resource, error) {
	r, err := scanResource(t.tx.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Resource{}, fmt.Errorf("%w: resource %s", apperr.ErrNotFound, id)
	}
	return r, err
}

func (t *pgTx) AdjustResource(ctx context.Context, id string, delta int) (Resource, error) {
	r, err := scanResource(t.tx.QueryRow(ctx, `
		UPDATE resources SET quantity = quantity + $2, updated_at = now()
		WHERE id=$1
		RETURNING `+resourceColumns, id, delta))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Resource{}, fmt.Errorf("%w: resource %s", apperr.ErrNotFound, id)
	case postgres.IsCheckViolation(err):
		// quantity >= 0 constraint
		return Resource{}, fmt.Errorf("%w: resource %s", apperr.ErrInsufficientStock, id)
	}
	return r, err
}

func (t *pgTx) InsertResource(ctx context.Context, r Resource) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO resources(id, type, name, quantity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		r.ID, string(r.Type), r.Name, r.Quantity, r.CreatedAt, r.UpdatedAt)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("%w: resource %s already exists", apperr.ErrConflict, r.Key())
	}
	return err
}

func (t *pgTx) UpdateResource(ctx context.Context, r Resource) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE resources SET type=$2, name=$3, quantity=$4, updated_at=$5
		WHERE id=$1`,
		r.ID, string(r.Type), r.Name, r.Quantity, r.UpdatedAt)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("%w: resource %s already exists", apperr.ErrConflict, r.Key())
	}
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: resource %s", apperr.ErrNotFound, r.ID)
	}
	return nil
}

func (t *pgTx) PendingOrdersHolding(ctx context.Context, key ResourceKey) (int, error) {
	col := "color"
	if key.Type == ResourceMaterial {
		col = "material"
	}
	var n int
	err := t.tx.QueryRow(ctx, `SELECT count(*) FROM orders WHERE status=$1 AND upper(`+col+`)=$2`,
		string(StatusPending), key.Name).Scan(&n)
	return n, err
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	return o, orderErr(id, err)
}

func (t *pgTx) InsertOrder(ctx context.Context, o Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, string(o.Size), string(o.Color), string(o.Design), string(o.Material),
		o.Quantity, string(o.Status), o.OwnerID, o.CreatedAt, o.UpdatedAt)
	if postgres.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown user %s", apperr.ErrUnauthorized, o.OwnerID)
	}
	return err
}

func (t *pgTx) UpdateOrder(ctx context.Context, o Order) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET size=$2, color=$3, design=$4, material=$5, quantity=$6, status=$7, updated_at=$8
		WHERE id=$1`,
		o.ID, string(o.Size), string(o.Color), string(o.Design), string(o.Material),
		o.Quantity, string(o.Status), o.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: order %s", apperr.ErrNotFound, o.ID)
	}
	return nil
}

func (t *pgTx) DeleteOrder(ctx context.Context, id string) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	return nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var size, color, design, mat, status string
	err := row.Scan(&o.ID, &size, &color, &design, &mat, &o.Quantity, &status, &o.OwnerID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	o.Size, o.Color, o.Design, o.Material, o.Status = Size(size), Color(color), Design(design), Material(mat), Status(status)
	return o, nil
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanResource(row pgx.Row) (Resource, error) {
	var (
		r   Resource
		typ string
	)
	if err := row.Scan(&r.ID, &typ, &r.Name, &r.Quantity, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Resource{}, err
	}
	r.Type = ResourceType(typ)
	return r, nil
}

func orderErr(id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	return err
}

var _ Store = (*PgStore)(nil)
