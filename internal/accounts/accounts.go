// Package accounts models the reserved, migration-seeded accounts and
// provides the read/lock primitives every other service books through.
// Per spec §9's design note, the core never hard-codes these integers
// outside this module.
package accounts

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/models"
)

// Reserved account ids, see spec §3.
const (
	CashVaultID    int64 = -1
	CashEntryID    int64 = -2
	SumupID        int64 = -3
	ImbalanceID    int64 = -4
	VirtualTillID  int64 = -5
)

// Get reads a single account row, without locking it.
func Get(ctx context.Context, tx pgx.Tx, id int64) (models.Account, error) {
	var a models.Account
	err := tx.QueryRow(ctx, `
		SELECT id, node_id, kind, name, balance, voucher_balance, user_tag_id, restriction, cash_register_id, z_nr
		FROM account WHERE id = $1`, id).
		Scan(&a.ID, &a.NodeID, &a.Kind, &a.Name, &a.Balance, &a.VoucherBalance, &a.UserTagID, &a.Restriction, &a.CashRegisterID, &a.ZNr)
	if err == pgx.ErrNoRows {
		return models.Account{}, apierrors.NotFound("account %d not found", id)
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("fetching account %d: %w", id, err)
	}
	return a, nil
}

// LockForUpdate reads an account row with SELECT ... FOR UPDATE, as
// required by spec §5 for every path that mutates a balance (the ledger
// primitive, close-out).
func LockForUpdate(ctx context.Context, tx pgx.Tx, id int64) (models.Account, error) {
	var a models.Account
	err := tx.QueryRow(ctx, `
		SELECT id, node_id, kind, name, balance, voucher_balance, user_tag_id, restriction, cash_register_id, z_nr
		FROM account WHERE id = $1 FOR UPDATE`, id).
		Scan(&a.ID, &a.NodeID, &a.Kind, &a.Name, &a.Balance, &a.VoucherBalance, &a.UserTagID, &a.Restriction, &a.CashRegisterID, &a.ZNr)
	if err == pgx.ErrNoRows {
		return models.Account{}, apierrors.NotFound("account %d not found", id)
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("locking account %d: %w", id, err)
	}
	return a, nil
}

// LockManyForUpdate locks a set of accounts in a stable (ascending id)
// order to avoid deadlocks between concurrently booking requests that
// touch overlapping account sets (e.g. two sales both crediting the cash
// vault).
func LockManyForUpdate(ctx context.Context, tx pgx.Tx, ids []int64) (map[int64]models.Account, error) {
	unique := dedupeSorted(ids)
	out := make(map[int64]models.Account, len(unique))
	for _, id := range unique {
		a, err := LockForUpdate(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, nil
}

func dedupeSorted(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	// simple insertion sort; the sets involved are tiny (a handful of
	// accounts per order)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// ByUserTag resolves the private account bound to a user tag, if any.
func ByUserTag(ctx context.Context, tx pgx.Tx, tagID int64) (models.Account, error) {
	var a models.Account
	err := tx.QueryRow(ctx, `
		SELECT id, node_id, kind, name, balance, voucher_balance, user_tag_id, restriction, cash_register_id, z_nr
		FROM account WHERE user_tag_id = $1 AND kind = 'private'`, tagID).
		Scan(&a.ID, &a.NodeID, &a.Kind, &a.Name, &a.Balance, &a.VoucherBalance, &a.UserTagID, &a.Restriction, &a.CashRegisterID, &a.ZNr)
	if err == pgx.ErrNoRows {
		return models.Account{}, apierrors.NotFound("no account bound to tag %d", tagID)
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("resolving account for tag %d: %w", tagID, err)
	}
	return a, nil
}

// ApplyDelta adjusts an account's balance by delta (positive credits,
// negative debits). Callers must already hold the row lock (see
// LockForUpdate) — this is not itself atomic against concurrent readers.
func ApplyDelta(ctx context.Context, tx pgx.Tx, id int64, delta models.Money) error {
	_, err := tx.Exec(ctx, `UPDATE account SET balance = balance + $1 WHERE id = $2`, delta.Decimal, id)
	if err != nil {
		return fmt.Errorf("applying balance delta to account %d: %w", id, err)
	}
	return nil
}

// ApplyVoucherDelta adjusts an account's voucher balance by delta (negative
// to consume vouchers on a sale, spec §4.3). Callers must already hold the
// row lock (see LockForUpdate). Mirrors ApplyDelta's balance column update
// but for the separate voucher counter.
func ApplyVoucherDelta(ctx context.Context, tx pgx.Tx, id int64, delta models.Money) error {
	_, err := tx.Exec(ctx, `UPDATE account SET voucher_balance = voucher_balance + $1 WHERE id = $2`, delta.Decimal, id)
	if err != nil {
		return fmt.Errorf("applying voucher balance delta to account %d: %w", id, err)
	}
	return nil
}

// ForceZeroBalance sets an account's balance to exactly zero, used by the
// Cashier Shift Engine to rule out float drift after close-out (spec §4.4
// step 5).
func ForceZeroBalance(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `UPDATE account SET balance = 0 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("forcing zero balance on account %d: %w", id, err)
	}
	return nil
}

// DetachCashRegister clears a cashier account's cash_register_id.
func DetachCashRegister(ctx context.Context, tx pgx.Tx, cashierAccountID int64) error {
	_, err := tx.Exec(ctx, `UPDATE account SET cash_register_id = NULL WHERE id = $1`, cashierAccountID)
	if err != nil {
		return fmt.Errorf("detaching cash register from account %d: %w", cashierAccountID, err)
	}
	return nil
}

// BumpVirtualTillZNr increments the virtual till's close-out sequence
// counter (spec §4.4 step 5).
func BumpVirtualTillZNr(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `UPDATE account SET z_nr = z_nr + 1 WHERE id = $1`, VirtualTillID)
	if err != nil {
		return fmt.Errorf("bumping virtual till z_nr: %w", err)
	}
	return nil
}
