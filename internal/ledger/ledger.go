// Package ledger implements the one operation every booking in the core
// ultimately goes through: the double-entry book_transaction primitive of
// spec §4.1. No other service mutates a balance directly.
package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stustapay/core/internal/accounts"
	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/models"
)

// Booking is one (source, target, amount, tax_name) instruction. Order
// Booker aggregates caller-supplied bookings into these before calling
// BookTransaction once per aggregated key (spec §4.2).
type Booking struct {
	SourceID    int64
	TargetID    int64
	Amount      models.Money
	TaxName     *string
	Description string
}

// BookTransaction atomically subtracts amount from source.balance, adds it
// to target.balance, and inserts the transaction row. Both accounts must
// already be locked with accounts.LockForUpdate by the caller within the
// same transaction (spec §5: order confirmation and close-out must hold
// row locks before calling the primitive).
//
// The primitive rounds no values; it fails InsufficientFunds if source is
// a private account and would go negative, NotFound if either account or
// the tax name is unknown.
func BookTransaction(ctx context.Context, tx pgx.Tx, orderID *int64, b Booking) (int64, error) {
	source, err := accounts.LockForUpdate(ctx, tx, b.SourceID)
	if err != nil {
		return 0, err
	}
	target, err := accounts.LockForUpdate(ctx, tx, b.TargetID)
	if err != nil {
		return 0, err
	}

	if b.TaxName != nil {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tax_rate WHERE name = $1)`, *b.TaxName).Scan(&exists); err != nil {
			return 0, fmt.Errorf("checking tax rate %q: %w", *b.TaxName, err)
		}
		if !exists {
			return 0, apierrors.NotFound("unknown tax rate %q", *b.TaxName)
		}
	}

	if source.Kind == models.AccountKindPrivate {
		resulting := source.Balance.Sub(b.Amount)
		if resulting.IsNegative() {
			return 0, apierrors.InsufficientFunds(b.Amount.Decimal.StringFixed(2), source.Balance.Decimal.StringFixed(2))
		}
	}

	if err := accounts.ApplyDelta(ctx, tx, source.ID, b.Amount.Neg()); err != nil {
		return 0, err
	}
	if err := accounts.ApplyDelta(ctx, tx, target.ID, b.Amount); err != nil {
		return 0, err
	}

	var txnID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO transaction (order_id, source_account, target_account, amount, tax_name, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		orderID, source.ID, target.ID, b.Amount.Decimal, b.TaxName, b.Description,
	).Scan(&txnID)
	if err != nil {
		return 0, fmt.Errorf("inserting transaction row: %w", err)
	}

	return txnID, nil
}

// Aggregate collapses a caller-supplied bookings map, keyed by
// (source, target, tax_name), into one Booking per key, matching the
// Order Booker's aggregation step (spec §4.2).
func Aggregate(bookings []Booking) []Booking {
	type key struct {
		source, target int64
		tax            string
	}
	agg := make(map[key]*Booking)
	order := make([]key, 0, len(bookings))
	for _, b := range bookings {
		tax := ""
		if b.TaxName != nil {
			tax = *b.TaxName
		}
		k := key{b.SourceID, b.TargetID, tax}
		if existing, ok := agg[k]; ok {
			existing.Amount = existing.Amount.Add(b.Amount)
			continue
		}
		copyB := b
		agg[k] = &copyB
		order = append(order, k)
	}
	out := make([]Booking, 0, len(order))
	for _, k := range order {
		out = append(out, *agg[k])
	}
	return out
}

// IsBalanced checks spec §4.2's invariant for caller-supplied transfer
// bookings: the signed sum across all involved accounts equals zero. Since every
// Booking already moves amount from source to target symmetrically, this
// always holds for the bookings themselves; the check exists to catch a
// caller who passed a self-booking (source == target) with nonzero
// amount, which nets to zero balance-wise but signals a construction bug.
func IsBalanced(bookings []Booking) bool {
	net := make(map[int64]models.Money)
	for _, b := range bookings {
		if b.SourceID == b.TargetID && !b.Amount.IsZero() {
			return false
		}
		net[b.SourceID] = net[b.SourceID].Sub(b.Amount)
		net[b.TargetID] = net[b.TargetID].Add(b.Amount)
	}
	for _, v := range net {
		if !v.IsZero() {
			return false
		}
	}
	return true
}
