// Package cashier implements the Cashier Shift Engine of spec §4.4:
// close_out_cashier's five-step orchestration, plus the supplemented
// get_cashier_shift_stats feature, grounded on
// original_source/core/service/cashier.py.
package cashier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stustapay/core/internal/accounts"
	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/ledger"
	"github.com/stustapay/core/internal/models"
	"github.com/stustapay/core/internal/orders"
)

// VirtualTillID is the reserved till the internal close-out money-transfer
// orders are booked against.
const VirtualTillID int64 = -1

// Cashier is the materialized view of a cashier's standing accounts,
// joined from usr/user_tag/account.
type Cashier struct {
	UserID           int64
	CashierAccountID int64
	CashRegisterID   *int64
}

// CloseOutRequest mirrors the distilled spec's CloseOut payload.
type CloseOutRequest struct {
	Comment                string
	ActualCashDrawerBalance models.Money
	ClosingOutUserID       int64
}

// CloseOutResult reports the imbalance discovered during close-out.
type CloseOutResult struct {
	CashierID int64
	Imbalance models.Money
}

// Engine orchestrates close-out through the Order Service so every
// internal leg is still a properly booked, auditable order.
type Engine struct {
	orders *orders.Service
}

func NewEngine(orderService *orders.Service) *Engine {
	return &Engine{orders: orderService}
}

// Get resolves a cashier's standing account and attached register.
func Get(ctx context.Context, tx pgx.Tx, userID int64) (Cashier, error) {
	var c Cashier
	err := tx.QueryRow(ctx, `
		SELECT a.id, a.cash_register_id
		FROM account a
		JOIN usr u ON u.tag_id = a.user_tag_id
		WHERE u.id = $1 AND a.kind = 'cashier'`, userID).
		Scan(&c.CashierAccountID, &c.CashRegisterID)
	if err == pgx.ErrNoRows {
		return Cashier{}, apierrors.NotFound("cashier %d has no cashier account", userID)
	}
	if err != nil {
		return Cashier{}, fmt.Errorf("fetching cashier %d: %w", userID, err)
	}
	c.UserID = userID
	return c, nil
}

// currentShiftStart finds the first order booked after the cashier's
// previous shift ended (or ever, if no shift exists yet).
func currentShiftStart(ctx context.Context, tx pgx.Tx, cashierID int64) (*time.Time, error) {
	var start *time.Time
	err := tx.QueryRow(ctx, `
		SELECT o.booked_at FROM orders o
		WHERE o.cashier_id = $1 AND o.booked_at > COALESCE(
			(SELECT cs.ended_at FROM cashier_shift cs WHERE cs.cashier_id = $1 ORDER BY cs.ended_at DESC LIMIT 1),
			'1970-01-01'::timestamptz
		)
		ORDER BY o.booked_at ASC LIMIT 1`, cashierID).Scan(&start)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("finding shift start for cashier %d: %w", cashierID, err)
	}
	return start, nil
}

// CloseOut runs the five steps of spec §4.4 inside the caller's
// transaction.
func (e *Engine) CloseOut(ctx context.Context, tx pgx.Tx, cashierID int64, req CloseOutRequest) (CloseOutResult, error) {
	c, err := Get(ctx, tx, cashierID)
	if err != nil {
		return CloseOutResult{}, err
	}
	if c.CashRegisterID == nil {
		return CloseOutResult{}, apierrors.InvalidArgument("cashier %d does not have a cash register assigned", cashierID)
	}

	var loggedIn bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM till WHERE active_user_id = $1)`, cashierID).Scan(&loggedIn); err != nil {
		return CloseOutResult{}, fmt.Errorf("checking till login state for cashier %d: %w", cashierID, err)
	}
	if loggedIn {
		return CloseOutResult{}, apierrors.InvalidArgument("cannot close out a cashier who is logged in at a terminal")
	}

	registerAccount, err := accounts.Get(ctx, tx, *c.CashRegisterID)
	if err != nil {
		return CloseOutResult{}, err
	}
	expected := registerAccount.Balance

	shiftStart, err := currentShiftStart(ctx, tx, cashierID)
	if err != nil {
		return CloseOutResult{}, err
	}
	if shiftStart == nil {
		return CloseOutResult{}, apierrors.InvalidArgument("the cashier did not start a shift, no orders were booked")
	}
	shiftEnd := time.Now()

	imbalance := computeImbalance(req.ActualCashDrawerBalance, expected)

	// Step 3a: move the register's accumulated cash into the virtual till.
	if _, err := e.orders.CreateMoneyTransfer(ctx, tx, orders.CreateMoneyTransferParams{
		UUID:      uuid.New(),
		NodeID:    registerAccount.NodeID,
		TillID:    VirtualTillID,
		CashierID: req.ClosingOutUserID,
		Bookings: []ledger.Booking{
			{SourceID: *c.CashRegisterID, TargetID: accounts.VirtualTillID, Amount: expected, Description: "close-out: register to virtual till"},
		},
	}); err != nil {
		return CloseOutResult{}, err
	}

	// Step 3b: book the counted actual balance to the cash vault.
	vaultOrder, err := e.orders.CreateMoneyTransfer(ctx, tx, orders.CreateMoneyTransferParams{
		UUID:      uuid.New(),
		NodeID:    registerAccount.NodeID,
		TillID:    VirtualTillID,
		CashierID: req.ClosingOutUserID,
		Bookings: []ledger.Booking{
			{SourceID: c.CashierAccountID, TargetID: accounts.CashVaultID, Amount: req.ActualCashDrawerBalance, Description: "close-out: actual balance to vault"},
		},
	})
	if err != nil {
		return CloseOutResult{}, err
	}

	// Step 3c: book the imbalance between the cashier account and IMBALANCE.
	imbalanceOrder, err := e.orders.CreateMoneyTransfer(ctx, tx, orders.CreateMoneyTransferParams{
		UUID:      uuid.New(),
		NodeID:    registerAccount.NodeID,
		TillID:    VirtualTillID,
		CashierID: req.ClosingOutUserID,
		Imbalance: true,
		Bookings: []ledger.Booking{
			{SourceID: c.CashierAccountID, TargetID: accounts.ImbalanceID, Amount: imbalance.Neg(), Description: "close-out: imbalance"},
		},
	})
	if err != nil {
		return CloseOutResult{}, err
	}

	// Step 4: persist the shift record.
	_, err = tx.Exec(ctx, `
		INSERT INTO cashier_shift (cashier_id, started_at, ended_at, expected_balance, actual_balance, comment,
		                           close_out_order_id, close_out_imbalance_order_id, closing_out_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		cashierID, *shiftStart, shiftEnd, expected.Decimal, req.ActualCashDrawerBalance.Decimal, req.Comment,
		vaultOrder.ID, imbalanceOrder.ID, req.ClosingOutUserID,
	)
	if err != nil {
		return CloseOutResult{}, fmt.Errorf("persisting cashier shift for cashier %d: %w", cashierID, err)
	}

	// Step 5: detach the register, bump z_nr, force the cashier balance to
	// exactly zero (rules out float drift).
	if err := accounts.DetachCashRegister(ctx, tx, c.CashierAccountID); err != nil {
		return CloseOutResult{}, err
	}
	if err := accounts.BumpVirtualTillZNr(ctx, tx); err != nil {
		return CloseOutResult{}, err
	}
	if err := accounts.ForceZeroBalance(ctx, tx, c.CashierAccountID); err != nil {
		return CloseOutResult{}, err
	}

	return CloseOutResult{CashierID: cashierID, Imbalance: imbalance}, nil
}

// computeImbalance is the pure core of close-out's step 2.
func computeImbalance(actual, expected models.Money) models.Money {
	return actual.Sub(expected)
}

// Stats implements the supplemented get_cashier_shift_stats feature: a
// per-product quantity breakdown for either the cashier's current
// (unclosed) shift or a specific past one.
func Stats(ctx context.Context, tx pgx.Tx, cashierID int64, shiftID *int64) (models.ShiftStats, error) {
	var start, end time.Time
	if shiftID == nil {
		s, err := currentShiftStart(ctx, tx, cashierID)
		if err != nil {
			return models.ShiftStats{}, err
		}
		if s == nil {
			return models.ShiftStats{}, apierrors.NotFound("cashier %d has no open shift", cashierID)
		}
		start = *s
		end = time.Now()
	} else {
		err := tx.QueryRow(ctx, `SELECT started_at, ended_at FROM cashier_shift WHERE cashier_id = $1 AND id = $2`, cashierID, *shiftID).
			Scan(&start, &end)
		if err == pgx.ErrNoRows {
			return models.ShiftStats{}, apierrors.NotFound("cashier shift %d not found", *shiftID)
		}
		if err != nil {
			return models.ShiftStats{}, fmt.Errorf("fetching cashier shift %d: %w", *shiftID, err)
		}
	}

	rows, err := tx.Query(ctx, `
		SELECT li.product_id, SUM(li.quantity)
		FROM line_item li JOIN orders o ON li.order_id = o.id
		WHERE o.cashier_id = $1 AND o.booked_at >= $2 AND o.booked_at <= $3
		GROUP BY li.product_id`, cashierID, start, end)
	if err != nil {
		return models.ShiftStats{}, fmt.Errorf("aggregating shift stats for cashier %d: %w", cashierID, err)
	}
	defer rows.Close()

	stats := models.ShiftStats{CashierID: cashierID, StartedAt: start, EndedAt: end}
	for rows.Next() {
		var p models.ShiftProductStat
		if err := rows.Scan(&p.ProductID, &p.Quantity); err != nil {
			return models.ShiftStats{}, fmt.Errorf("scanning shift stat row: %w", err)
		}
		stats.Products = append(stats.Products, p)
	}
	return stats, rows.Err()
}
