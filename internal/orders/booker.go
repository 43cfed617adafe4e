// Package orders implements the Order Booker (spec §4.2) and the Order
// Service state machine (spec §4.3), grounded on
// original_source/core/service/order.py's create_order/book_order/
// cancel_order and the hedging_service.go tx-per-request style.
package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/database"
	"github.com/stustapay/core/internal/ledger"
	"github.com/stustapay/core/internal/models"
)

// LineItemInput is a line item as submitted by a client, before tax and
// total computation.
type LineItemInput struct {
	ProductID int64
	Quantity  int64
	// Price overrides the product's price for free-price products; nil
	// means "use the product's fixed price".
	Price *models.Money
}

// CreateOrderParams is everything the Order Booker needs to persist a
// pending order and its line items.
type CreateOrderParams struct {
	UUID              uuid.UUID
	NodeID            int64
	OrderType         models.OrderType
	TillID            int64
	CashierID         int64
	CustomerAccountID *int64
	CashRegisterID    *int64
	ResolvedItems     []ResolvedLineItem
}

// ResolvedLineItem is a line item after the Order Service has resolved
// product, price, and tax rate.
type ResolvedLineItem struct {
	ProductID int64
	Quantity  int64
	Price     models.Money
	TaxName   string
	TaxRate   models.Money
}

// Booker is the low-level component of spec §4.2: it owns order id
// allocation, line item persistence, booking aggregation, and the
// Ledger Primitive calls. The Order Service is the only caller.
type Booker struct{}

func NewBooker() *Booker { return &Booker{} }

// FindByUUID implements the idempotency contract of spec §4.3: retries
// with the same client-supplied uuid return the existing order instead of
// creating a second one.
func (b *Booker) FindByUUID(ctx context.Context, tx pgx.Tx, orderUUID uuid.UUID) (*models.Order, error) {
	order, err := b.loadOrderByPredicate(ctx, tx, "uuid = $1", orderUUID)
	if err != nil {
		if apiErr, ok := apierrors.As(err); ok && apiErr.Kind == apierrors.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

// CreateOrder allocates an order id, writes the pending order row, and
// inserts its line items with a monotonically increasing item_id starting
// at 0 (spec §4.2).
func (b *Booker) CreateOrder(ctx context.Context, tx pgx.Tx, p CreateOrderParams) (*models.Order, error) {
	if existing, err := b.FindByUUID(ctx, tx, p.UUID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	var orderID int64
	err := tx.QueryRow(ctx, `
		INSERT INTO orders (uuid, node_id, order_type, status, cashier_id, till_id, customer_account_id, cash_register_id)
		VALUES ($1, $2, $3, 'pending', $4, $5, $6, $7)
		RETURNING id`,
		p.UUID, p.NodeID, p.OrderType, p.CashierID, p.TillID, p.CustomerAccountID, p.CashRegisterID,
	).Scan(&orderID)
	if err != nil {
		return nil, fmt.Errorf("inserting order: %w", err)
	}

	for itemID, li := range p.ResolvedItems {
		_, err := tx.Exec(ctx, `
			INSERT INTO line_item (order_id, item_id, product_id, quantity, price, tax_name, tax_rate)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			orderID, itemID, li.ProductID, li.Quantity, li.Price.Decimal, li.TaxName, li.TaxRate.Decimal,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting line item %d of order %d: %w", itemID, orderID, err)
		}
	}

	return b.loadOrderByPredicate(ctx, tx, "id = $1", orderID)
}

// BookOrder is the confirm step: it transitions pending -> done, invoking
// the Ledger Primitive once per aggregated booking key (spec §4.2, §4.3).
// bookings is the order-type-specific set synthesised by the Order
// Service; BookOrder is itself type-agnostic.
func (b *Booker) BookOrder(ctx context.Context, tx pgx.Tx, orderID int64, bookings []ledger.Booking) (*models.Order, error) {
	order, err := b.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, apierrors.AlreadyFinished(orderID)
	}

	for _, booking := range ledger.Aggregate(bookings) {
		if _, err := ledger.BookTransaction(ctx, tx, &orderID, booking); err != nil {
			return nil, err
		}
	}

	valueSum, valueTax, valueNoTax := sumLineItems(order.LineItems)
	now := time.Now()
	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = 'done', booked_at = $1, item_count = $2, value_sum = $3, value_tax = $4, value_notax = $5
		WHERE id = $6`,
		now, len(order.LineItems), valueSum.Decimal, valueTax.Decimal, valueNoTax.Decimal, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("finalizing order %d: %w", orderID, err)
	}

	if err := database.NotifyBon(ctx, tx, orderID); err != nil {
		return nil, err
	}

	return b.loadOrderByPredicate(ctx, tx, "id = $1", orderID)
}

// CancelOrder transitions pending -> cancelled with no ledger effect.
func (b *Booker) CancelOrder(ctx context.Context, tx pgx.Tx, orderID int64) (*models.Order, error) {
	order, err := b.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, apierrors.AlreadyFinished(orderID)
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status = 'cancelled' WHERE id = $1`, orderID); err != nil {
		return nil, fmt.Errorf("cancelling order %d: %w", orderID, err)
	}
	return b.loadOrderByPredicate(ctx, tx, "id = $1", orderID)
}

func (b *Booker) lockOrder(ctx context.Context, tx pgx.Tx, orderID int64) (*models.Order, error) {
	var o models.Order
	var bookedAt *time.Time
	err := tx.QueryRow(ctx, `
		SELECT id, uuid, node_id, order_type, status, cashier_id, till_id, customer_account_id,
		       cash_register_id, booked_at, value_sum, value_tax, value_notax
		FROM orders WHERE id = $1 FOR UPDATE`, orderID).
		Scan(&o.ID, &o.UUID, &o.NodeID, &o.OrderType, &o.Status, &o.CashierID, &o.TillID,
			&o.CustomerAccountID, &o.CashRegisterID, &bookedAt, &o.ValueSum, &o.ValueTax, &o.ValueNoTax)
	if err == pgx.ErrNoRows {
		return nil, apierrors.NotFound("order %d not found", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("locking order %d: %w", orderID, err)
	}
	o.BookedAt = bookedAt
	items, err := loadLineItems(ctx, tx, o.ID)
	if err != nil {
		return nil, err
	}
	o.LineItems = items
	return &o, nil
}

func (b *Booker) loadOrderByPredicate(ctx context.Context, tx pgx.Tx, predicate string, arg interface{}) (*models.Order, error) {
	var o models.Order
	var bookedAt *time.Time
	query := fmt.Sprintf(`
		SELECT id, uuid, node_id, order_type, status, cashier_id, till_id, customer_account_id,
		       cash_register_id, booked_at, value_sum, value_tax, value_notax
		FROM orders WHERE %s`, predicate)
	err := tx.QueryRow(ctx, query, arg).
		Scan(&o.ID, &o.UUID, &o.NodeID, &o.OrderType, &o.Status, &o.CashierID, &o.TillID,
			&o.CustomerAccountID, &o.CashRegisterID, &bookedAt, &o.ValueSum, &o.ValueTax, &o.ValueNoTax)
	if err == pgx.ErrNoRows {
		return nil, apierrors.NotFound("order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading order: %w", err)
	}
	o.BookedAt = bookedAt
	items, err := loadLineItems(ctx, tx, o.ID)
	if err != nil {
		return nil, err
	}
	o.LineItems = items
	return &o, nil
}

func loadLineItems(ctx context.Context, tx pgx.Tx, orderID int64) ([]models.LineItem, error) {
	rows, err := tx.Query(ctx, `
		SELECT order_id, item_id, product_id, quantity, price, tax_name, tax_rate
		FROM line_item WHERE order_id = $1 ORDER BY item_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("loading line items of order %d: %w", orderID, err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var li models.LineItem
		if err := rows.Scan(&li.OrderID, &li.ItemID, &li.ProductID, &li.Quantity, &li.Price, &li.TaxName, &li.TaxRate); err != nil {
			return nil, fmt.Errorf("scanning line item: %w", err)
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

// sumLineItems recomputes order.value_sum, value_tax, value_notax from the
// inserted line items (spec §4.2), matching testable property 3.
func sumLineItems(items []models.LineItem) (sum, tax, noTax models.Money) {
	sum, tax, noTax = models.Zero(), models.Zero(), models.Zero()
	for _, li := range items {
		total := li.TotalPrice()
		itemTax := li.TotalTax()
		sum = sum.Add(total)
		tax = tax.Add(itemTax)
		noTax = noTax.Add(total.Sub(itemTax))
	}
	return sum, tax, noTax
}
