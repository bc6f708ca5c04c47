package orders

import (
	"context"
	"fmt"
	"sort"

	"github.com/ariefcatur/custom-orders/internal/apperr"
)

// Line is one quantity movement against a ledger row.
type Line struct {
	Key    ResourceKey
	Amount int
}

// Ledger performs debit/credit over the resource rows of one transaction.
type Ledger struct{ tx Tx }

func NewLedger(tx Tx) *Ledger { return &Ledger{tx: tx} }

func (l *Ledger) Lookup(ctx context.Context, key ResourceKey) (Resource, error) {
	rows, err := l.tx.LockResources(ctx, []ResourceKey{key})
	if err != nil {
		return Resource{}, err
	}
	r, ok := rows[key]
	if !ok {
		return Resource{}, fmt.Errorf("%w: resource %s", apperr.ErrNotFound, key)
	}
	return r, nil
}

func (l *Ledger) Debit(ctx context.Context, key ResourceKey, amount int) error {
	_, err := l.Move(ctx, []Line{{Key: key, Amount: amount}}, nil)
	return err
}

func (l *Ledger) Credit(ctx context.Context, key ResourceKey, amount int) error {
	_, err := l.Move(ctx, nil, []Line{{Key: key, Amount: amount}})
	return err
}

type netMove struct {
	delta   int
	debited bool
}

// Move nets debits and credits per row, checks every debited row, and
// only then writes. A failed check leaves every row untouched. Credits to
// rows that no longer exist are dropped. Returns the rows it changed.
func (l *Ledger) Move(ctx context.Context, debits, credits []Line) ([]Resource, error) {
	nets := map[ResourceKey]*netMove{}
	var keys []ResourceKey
	add := func(line Line, sign int, debit bool) error {
		if line.Amount <= 0 {
			return fmt.Errorf("%w: ledger amount must be positive, got %d", apperr.ErrBadRequest, line.Amount)
		}
		n, ok := nets[line.Key]
		if !ok {
			n = &netMove{}
			nets[line.Key] = n
			keys = append(keys, line.Key)
		}
		n.delta += sign * line.Amount
		n.debited = n.debited || debit
		return nil
	}
	for _, d := range debits {
		if err := add(d, -1, true); err != nil {
			return nil, err
		}
	}
	for _, c := range credits {
		if err := add(c, 1, false); err != nil {
			return nil, err
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].Name < keys[j].Name
	})

	rows, err := l.tx.LockResources(ctx, keys)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		n := nets[k]
		r, ok := rows[k]
		switch {
		case !ok && n.debited:
			return nil, fmt.Errorf("%w: no %s resource", apperr.ErrInsufficientStock, k)
		case ok && r.Quantity+n.delta < 0:
			return nil, fmt.Errorf("%w: %s has %d, needs %d", apperr.ErrInsufficientStock, k, r.Quantity, -n.delta)
		}
	}

	changed := make([]Resource, 0, len(keys))
	for _, k := range keys {
		n := nets[k]
		r, ok := rows[k]
		if !ok || n.delta == 0 {
			continue
		}
		updated, err := l.tx.AdjustResource(ctx, r.ID, n.delta)
		if err != nil {
			return nil, err
		}
		changed = append(changed, updated)
	}
	return changed, nil
}
