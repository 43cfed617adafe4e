package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/stustapay/core/internal/accounts"
	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/ledger"
	"github.com/stustapay/core/internal/models"
	"github.com/stustapay/core/internal/products"
)

// Service is the public façade of spec §4.3: create / confirm / cancel
// sales and top-ups, enforcing per-order-type preconditions before
// delegating to the Booker.
type Service struct {
	booker    *Booker
	products  *products.Registry
	voucherRate models.Money
}

func NewService(voucherRate models.Money) *Service {
	return &Service{booker: NewBooker(), products: products.New(), voucherRate: voucherRate}
}

// SaleLineItemInput is one requested line item of a sale order, before
// product resolution.
type SaleLineItemInput struct {
	ProductID int64
	Quantity  int64
	// Price is required for free-price products and forbidden for
	// fixed-price ones.
	Price *models.Money
}

type CreateSaleParams struct {
	UUID              uuid.UUID
	NodeID            int64
	TillID            int64
	CashierID         int64
	CustomerAccountID int64
	CustomerTagRestriction *string
	LineItems         []SaleLineItemInput
}

// CreateSale implements the "sale" branch of spec §4.3: resolves
// products, enforces the age restriction and funds checks, and writes the
// pending order + line items. Confirming it is a separate Confirm call.
func (s *Service) CreateSale(ctx context.Context, tx pgx.Tx, p CreateSaleParams) (*models.Order, error) {
	resolved := make([]ResolvedLineItem, 0, len(p.LineItems))
	var restrictedProducts []models.Product

	for _, li := range p.LineItems {
		if err := rejectMoneyDifferenceSale(li.ProductID); err != nil {
			return nil, err
		}
		product, err := s.products.Get(ctx, tx, li.ProductID)
		if err != nil {
			return nil, err
		}

		price, err := resolvePrice(product, li.Price)
		if err != nil {
			return nil, err
		}

		taxRate, err := fetchTaxRate(ctx, tx, product.TaxRateName)
		if err != nil {
			return nil, err
		}

		resolved = append(resolved, ResolvedLineItem{
			ProductID: product.ID,
			Quantity:  li.Quantity,
			Price:     price,
			TaxName:   product.TaxRateName,
			TaxRate:   taxRate,
		})
		restrictedProducts = append(restrictedProducts, product)
	}

	if restrictedIDs := products.RestrictedProductIDs(restrictedProducts, p.CustomerTagRestriction); len(restrictedIDs) > 0 {
		return nil, apierrors.AgeRestriction(restrictedIDs)
	}

	orderSum := models.Zero()
	for _, r := range resolved {
		total := models.LineItem{Price: r.Price, Quantity: r.Quantity}.TotalPrice()
		orderSum = orderSum.Add(total)
	}

	customer, err := accounts.Get(ctx, tx, p.CustomerAccountID)
	if err != nil {
		return nil, err
	}
	available := customer.Balance.Add(models.MoneyFromDecimal(customer.VoucherBalance.Decimal.Mul(s.voucherRate.Decimal)))
	if available.Decimal.LessThan(orderSum.Decimal) {
		return nil, apierrors.InsufficientFunds(orderSum.Decimal.StringFixed(2), available.Decimal.StringFixed(2))
	}

	return s.booker.CreateOrder(ctx, tx, CreateOrderParams{
		UUID:              p.UUID,
		NodeID:            p.NodeID,
		OrderType:         models.OrderTypeSale,
		TillID:            p.TillID,
		CashierID:         p.CashierID,
		CustomerAccountID: &p.CustomerAccountID,
		ResolvedItems:     resolved,
	})
}

// CreateTopUp covers topup_cash and topup_sumup (spec §4.3): exactly one
// TOP_UP line item with a positive price.
type CreateTopUpParams struct {
	UUID              uuid.UUID
	NodeID            int64
	TillID            int64
	CashierID         int64
	CustomerAccountID int64
	CashRegisterID    *int64
	Electronic        bool // true => topup_sumup, false => topup_cash
	Amount            models.Money
}

func (s *Service) CreateTopUp(ctx context.Context, tx pgx.Tx, p CreateTopUpParams) (*models.Order, error) {
	if err := validateTopUpAmount(p.Amount); err != nil {
		return nil, err
	}
	noTax, err := fetchTaxRate(ctx, tx, "none")
	if err != nil {
		return nil, err
	}

	orderType := models.OrderTypeTopupCash
	if p.Electronic {
		orderType = models.OrderTypeTopupSumup
	}

	return s.booker.CreateOrder(ctx, tx, CreateOrderParams{
		UUID:              p.UUID,
		NodeID:            p.NodeID,
		OrderType:         orderType,
		TillID:            p.TillID,
		CashierID:         p.CashierID,
		CustomerAccountID: &p.CustomerAccountID,
		CashRegisterID:    p.CashRegisterID,
		ResolvedItems: []ResolvedLineItem{{
			ProductID: models.ProductIDTopUp,
			Quantity:  1,
			Price:     p.Amount,
			TaxName:   "none",
			TaxRate:   noTax,
		}},
	})
}

// CreatePayOut books one PAY_OUT line item with a non-positive price,
// symmetric to topup_cash.
type CreatePayOutParams struct {
	UUID              uuid.UUID
	NodeID            int64
	TillID            int64
	CashierID         int64
	CustomerAccountID int64
	CashRegisterID    *int64
	Amount            models.Money // non-positive
}

func (s *Service) CreatePayOut(ctx context.Context, tx pgx.Tx, p CreatePayOutParams) (*models.Order, error) {
	if err := validatePayOutAmount(p.Amount); err != nil {
		return nil, err
	}
	noTax, err := fetchTaxRate(ctx, tx, "none")
	if err != nil {
		return nil, err
	}
	return s.booker.CreateOrder(ctx, tx, CreateOrderParams{
		UUID:              p.UUID,
		NodeID:            p.NodeID,
		OrderType:         models.OrderTypePayOut,
		TillID:            p.TillID,
		CashierID:         p.CashierID,
		CustomerAccountID: &p.CustomerAccountID,
		CashRegisterID:    p.CashRegisterID,
		ResolvedItems: []ResolvedLineItem{{
			ProductID: models.ProductIDPayOut,
			Quantity:  1,
			Price:     p.Amount,
			TaxName:   "none",
			TaxRate:   noTax,
		}},
	})
}

// CreateMoneyTransfer covers money_transfer and money_transfer_imbalance:
// the caller supplies bookings directly and the Order Booker only
// enforces the balance invariant (spec §4.3).
type CreateMoneyTransferParams struct {
	UUID      uuid.UUID
	NodeID    int64
	TillID    int64
	CashierID int64
	Imbalance bool
	Bookings  []ledger.Booking
}

func (s *Service) CreateMoneyTransfer(ctx context.Context, tx pgx.Tx, p CreateMoneyTransferParams) (*models.Order, error) {
	if !ledger.IsBalanced(p.Bookings) {
		return nil, apierrors.InvalidArgument("money transfer bookings are not balanced")
	}
	orderType := models.OrderTypeMoneyTransfer
	if p.Imbalance {
		orderType = models.OrderTypeMoneyTransferImbalance
	}
	order, err := s.booker.CreateOrder(ctx, tx, CreateOrderParams{
		UUID:      p.UUID,
		NodeID:    p.NodeID,
		OrderType: orderType,
		TillID:    p.TillID,
		CashierID: p.CashierID,
		ResolvedItems: []ResolvedLineItem{{
			ProductID: models.ProductIDMoneyTransfer,
			Quantity:  1,
			Price:     sumBookingAmounts(p.Bookings),
			TaxName:   "none",
			TaxRate:   models.Zero(),
		}},
	})
	if err != nil {
		return nil, err
	}
	return s.booker.BookOrder(ctx, tx, order.ID, p.Bookings)
}

// Confirm transitions an order from pending to done, synthesizing the
// order-type-specific bookings and invoking the Ledger Primitive through
// the Booker.
func (s *Service) Confirm(ctx context.Context, tx pgx.Tx, orderID int64) (*models.Order, error) {
	order, err := s.booker.loadOrderByPredicate(ctx, tx, "id = $1", orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, apierrors.AlreadyFinished(orderID)
	}

	bookings, err := s.synthesizeBookings(ctx, tx, *order)
	if err != nil {
		return nil, err
	}
	return s.booker.BookOrder(ctx, tx, orderID, bookings)
}

// Cancel transitions an order from pending to cancelled.
func (s *Service) Cancel(ctx context.Context, tx pgx.Tx, orderID int64) (*models.Order, error) {
	return s.booker.CancelOrder(ctx, tx, orderID)
}

// FindByUUID looks up an order by its client-supplied uuid, the idempotency
// key create_order retries are matched against. Returns (nil, nil) if no
// such order exists yet.
func (s *Service) FindByUUID(ctx context.Context, tx pgx.Tx, orderUUID uuid.UUID) (*models.Order, error) {
	order, err := s.booker.FindByUUID(ctx, tx, orderUUID)
	if err != nil {
		if apiErr, ok := apierrors.As(err); ok && apiErr.Kind == apierrors.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

func (s *Service) synthesizeBookings(ctx context.Context, tx pgx.Tx, order models.Order) ([]ledger.Booking, error) {
	switch order.OrderType {
	case models.OrderTypeSale:
		return s.synthesizeSaleBookings(ctx, tx, order)
	case models.OrderTypeTopupCash:
		return s.synthesizeCashTopUpBookings(order)
	case models.OrderTypeTopupSumup:
		return s.synthesizeSumupTopUpBookings(order)
	case models.OrderTypePayOut:
		return s.synthesizeCashTopUpBookings(order) // symmetric booking shape, opposite sign amount
	default:
		return nil, apierrors.Newf(apierrors.KindInternal, "order type %s must be confirmed by its own orchestrator", order.OrderType)
	}
}

// synthesizeSaleBookings implements: for each line item,
// (source = customer, target = product.target_account_id or default, tax)
// += line_item.total_price. Voucher-priced items additionally draw from
// the customer's voucher balance, and a returnable item's price is added
// without tax (spec §4.3).
func (s *Service) synthesizeSaleBookings(ctx context.Context, tx pgx.Tx, order models.Order) ([]ledger.Booking, error) {
	if order.CustomerAccountID == nil {
		return nil, apierrors.Newf(apierrors.KindInternal, "sale order %d has no customer account", order.ID)
	}
	customer, err := accounts.LockForUpdate(ctx, tx, *order.CustomerAccountID)
	if err != nil {
		return nil, err
	}
	voucherBalance := customer.VoucherBalance

	bookings := make([]ledger.Booking, 0, len(order.LineItems))
	for _, li := range order.LineItems {
		product, err := s.products.Get(ctx, tx, li.ProductID)
		if err != nil {
			return nil, err
		}

		voucherBalance, err = debitVoucherBalance(voucherBalance, product, li.Quantity)
		if err != nil {
			return nil, err
		}

		target := defaultSaleTargetAccount(product)
		taxName := saleLineItemTaxName(product, li.TaxName)
		bookings = append(bookings, ledger.Booking{
			SourceID:    *order.CustomerAccountID,
			TargetID:    target,
			Amount:      li.TotalPrice(),
			TaxName:     &taxName,
			Description: fmt.Sprintf("sale order %d item %d", order.ID, li.ItemID),
		})
	}

	if !voucherBalance.Decimal.Equal(customer.VoucherBalance.Decimal) {
		if err := accounts.ApplyVoucherDelta(ctx, tx, *order.CustomerAccountID, voucherBalance.Sub(customer.VoucherBalance)); err != nil {
			return nil, err
		}
	}

	return bookings, nil
}

// debitVoucherBalance applies a voucher-priced line item's draw against a
// running voucher balance (spec §4.3: "voucher-priced items additionally
// draw from the customer's voucher balance"). Products without
// price_in_vouchers leave the balance untouched. Rejects the order with
// InsufficientFunds rather than letting the balance go negative, the same
// guard the cash leg of the order gets from ledger.BookTransaction.
func debitVoucherBalance(balance models.Money, product models.Product, quantity int64) (models.Money, error) {
	if product.PriceInVouchers == nil {
		return balance, nil
	}
	spent := models.MoneyFromDecimal(decimal.NewFromInt(*product.PriceInVouchers * quantity))
	next := balance.Sub(spent)
	if next.Decimal.IsNegative() {
		return balance, apierrors.InsufficientFunds(spent.Decimal.String(), balance.Decimal.String())
	}
	return next, nil
}

// saleLineItemTaxName implements the other half of the same spec §4.3
// sentence: "a returnable item price is added without tax". Every other
// line item keeps its product's configured tax.
func saleLineItemTaxName(product models.Product, lineItemTaxName string) string {
	if product.IsReturnable {
		return "none"
	}
	return lineItemTaxName
}

// synthesizeCashTopUpBookings covers both topup_cash and pay_out, which
// spec §4.3 describes as symmetric: (CASH_VAULT -> customer) and
// (CASH_ENTRY -> cashier_account) for the same amount. A pay_out's amount
// is non-positive, which simply reverses the direction of both legs.
func (s *Service) synthesizeCashTopUpBookings(order models.Order) ([]ledger.Booking, error) {
	if order.CustomerAccountID == nil || len(order.LineItems) != 1 {
		return nil, apierrors.Newf(apierrors.KindInternal, "cash top-up/pay-out order %d malformed", order.ID)
	}
	amount := order.LineItems[0].Price
	noTax := "none"
	drawerAccountID, err := cashRegisterAccountID(order)
	if err != nil {
		return nil, err
	}
	return []ledger.Booking{
		{SourceID: accounts.CashVaultID, TargetID: *order.CustomerAccountID, Amount: amount, TaxName: &noTax, Description: fmt.Sprintf("order %d", order.ID)},
		{SourceID: accounts.CashEntryID, TargetID: drawerAccountID, Amount: amount, TaxName: &noTax, Description: fmt.Sprintf("order %d cashier drawer", order.ID)},
	}, nil
}

func (s *Service) synthesizeSumupTopUpBookings(order models.Order) ([]ledger.Booking, error) {
	if order.CustomerAccountID == nil || len(order.LineItems) != 1 {
		return nil, apierrors.Newf(apierrors.KindInternal, "sumup top-up order %d malformed", order.ID)
	}
	noTax := "none"
	return []ledger.Booking{
		{SourceID: accounts.SumupID, TargetID: *order.CustomerAccountID, Amount: order.LineItems[0].Price, TaxName: &noTax, Description: fmt.Sprintf("order %d", order.ID)},
	}, nil
}

// cashRegisterAccountID resolves the physical drawer account for an
// order's cashier. The data model notes the drawer balance is "referenced
// via cashier link" (spec §3) — the order carries that link directly.
func cashRegisterAccountID(order models.Order) (int64, error) {
	if order.CashRegisterID == nil {
		return 0, apierrors.Newf(apierrors.KindInternal, "order %d has no cash register attached", order.ID)
	}
	return *order.CashRegisterID, nil
}

// defaultSaleTargetAccount honors a product's explicit target_account_id
// (spec §3) and otherwise falls back to the cash vault, the sale revenue
// sink used by every non-voucher, non-discount product in the original
// implementation.
func defaultSaleTargetAccount(product models.Product) int64 {
	if product.TargetAccountID != nil {
		return *product.TargetAccountID
	}
	return accounts.CashVaultID
}

func sumBookingAmounts(bookings []ledger.Booking) models.Money {
	sum := models.Zero()
	for _, b := range bookings {
		if b.Amount.Decimal.IsPositive() {
			sum = sum.Add(b.Amount)
		}
	}
	return sum
}

func rejectMoneyDifferenceSale(productID int64) error {
	if productID == models.ProductIDMoneyDifference {
		return apierrors.InvalidArgument("MONEY_DIFFERENCE cannot be sold directly")
	}
	return nil
}

func validateTopUpAmount(amount models.Money) error {
	if !amount.Decimal.IsPositive() {
		return apierrors.InvalidArgument("top-up amount must be positive")
	}
	return nil
}

func validatePayOutAmount(amount models.Money) error {
	if amount.Decimal.IsPositive() {
		return apierrors.InvalidArgument("pay-out amount must be non-positive")
	}
	return nil
}

func resolvePrice(product models.Product, supplied *models.Money) (models.Money, error) {
	if product.FixedPrice {
		if supplied != nil {
			return models.Money{}, apierrors.InvalidArgument("product %d has a fixed price, price must not be supplied", product.ID)
		}
		if product.Price == nil {
			return models.Money{}, apierrors.Newf(apierrors.KindInternal, "fixed-price product %d has no price", product.ID)
		}
		return *product.Price, nil
	}
	if supplied == nil {
		return models.Money{}, apierrors.InvalidArgument("product %d has a free price, price is required", product.ID)
	}
	return *supplied, nil
}

func fetchTaxRate(ctx context.Context, tx pgx.Tx, name string) (models.Money, error) {
	var rate models.Money
	err := tx.QueryRow(ctx, `SELECT rate FROM tax_rate WHERE name = $1`, name).Scan(&rate)
	if err == pgx.ErrNoRows {
		return models.Money{}, apierrors.NotFound("unknown tax rate %q", name)
	}
	if err != nil {
		return models.Money{}, fmt.Errorf("fetching tax rate %q: %w", name, err)
	}
	return rate, nil
}
