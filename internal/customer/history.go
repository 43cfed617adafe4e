package customer

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/models"
)

// OrderWithBon is the supplemented orders-with-bon feature from
// original_source/customer.py's get_orders_with_bon: a customer's order
// history annotated with whether its receipt has been rendered.
type OrderWithBon struct {
	Order        models.Order
	BonGenerated bool
}

func OrdersWithBon(ctx context.Context, tx pgx.Tx, customerAccountID int64) ([]OrderWithBon, error) {
	rows, err := tx.Query(ctx, `
		SELECT o.id, o.uuid, o.node_id, o.order_type, o.status, o.cashier_id, o.till_id,
		       o.customer_account_id, o.cash_register_id, o.booked_at, o.value_sum, o.value_tax, o.value_notax,
		       b.generated_at IS NOT NULL
		FROM orders o LEFT JOIN bon b ON b.order_id = o.id
		WHERE o.customer_account_id = $1
		ORDER BY o.booked_at DESC NULLS LAST`, customerAccountID)
	if err != nil {
		return nil, fmt.Errorf("fetching order history for account %d: %w", customerAccountID, err)
	}
	defer rows.Close()

	var out []OrderWithBon
	for rows.Next() {
		var o models.Order
		var bookedAt *time.Time
		var generated bool
		if err := rows.Scan(&o.ID, &o.UUID, &o.NodeID, &o.OrderType, &o.Status, &o.CashierID, &o.TillID,
			&o.CustomerAccountID, &o.CashRegisterID, &bookedAt, &o.ValueSum, &o.ValueTax, &o.ValueNoTax, &generated); err != nil {
			return nil, fmt.Errorf("scanning order history row: %w", err)
		}
		o.BookedAt = bookedAt
		out = append(out, OrderWithBon{Order: o, BonGenerated: generated})
	}
	return out, rows.Err()
}

// PayoutTransaction is the supplemented payout-transactions feature from
// original_source/customer.py's get_payout_transactions: the customer's
// own record of money that left their account outside the order flow
// (SEPA exit, donation exit).
type PayoutTransaction struct {
	TransactionID     int64
	Amount            models.Money
	BookedAt          time.Time
	TargetAccountName string
	TargetAccountKind models.AccountKind
}

func PayoutTransactions(ctx context.Context, tx pgx.Tx, customerAccountID int64) ([]PayoutTransaction, error) {
	rows, err := tx.Query(ctx, `
		SELECT t.id, t.amount, t.booked_at, a.name, a.kind
		FROM transaction t JOIN account a ON a.id = t.target_account
		WHERE t.order_id IS NULL AND t.source_account = $1
		  AND a.kind IN ('sepa_exit', 'donation_exit')
		ORDER BY t.booked_at DESC`, customerAccountID)
	if err != nil {
		return nil, fmt.Errorf("fetching payout transactions for account %d: %w", customerAccountID, err)
	}
	defer rows.Close()

	var out []PayoutTransaction
	for rows.Next() {
		var p PayoutTransaction
		if err := rows.Scan(&p.TransactionID, &p.Amount, &p.BookedAt, &p.TargetAccountName, &p.TargetAccountKind); err != nil {
			return nil, fmt.Errorf("scanning payout transaction row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Bon retrieves a generated receipt's raw bytes for a customer, rejecting
// access to another customer's order.
func Bon(ctx context.Context, tx pgx.Tx, customerAccountID, orderID int64) (mimeType string, content []byte, err error) {
	err = tx.QueryRow(ctx, `
		SELECT b.mime_type, b.content
		FROM bon b JOIN orders o ON o.id = b.order_id
		WHERE b.order_id = $1 AND o.customer_account_id = $2`, orderID, customerAccountID).
		Scan(&mimeType, &content)
	if err == pgx.ErrNoRows {
		return "", nil, apierrors.NotFound("bon for order %d not found", orderID)
	}
	if err != nil {
		return "", nil, fmt.Errorf("fetching bon for order %d: %w", orderID, err)
	}
	return mimeType, content, nil
}
