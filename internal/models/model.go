package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountKind enumerates every account type the ledger understands.
type AccountKind string

const (
	AccountKindPrivate     AccountKind = "private"
	AccountKindCashier     AccountKind = "cashier"
	AccountKindCashRegister AccountKind = "cash_register"
	AccountKindCashVault   AccountKind = "cash_vault"
	AccountKindCashEntry   AccountKind = "cash_entry"
	AccountKindSumup       AccountKind = "sumup"
	AccountKindImbalance   AccountKind = "imbalance"
	AccountKindSepaExit    AccountKind = "sepa_exit"
	AccountKindDonationExit AccountKind = "donation_exit"
	AccountKindVirtualTill AccountKind = "virtual_till"
)

// Account is a row of the double-entry ledger's account table.
type Account struct {
	ID           int64
	NodeID       int64
	Kind         AccountKind
	Name         string
	Balance      Money
	UserTagID    *int64
	Restriction  *string
	VoucherBalance Money
	CashRegisterID *int64 // set on cashier accounts with an attached register
	ZNr          int64   // virtual till sequence counter, only meaningful on virtual_till accounts
}

// UserTag is an NFC chip. It may be bound to at most one private account and
// at most one user.
type UserTag struct {
	ID          int64
	NodeID      int64
	UID         uint64
	Pin         *string
	Restriction *string
}

// Privilege is a closed set of capabilities a role may carry.
type Privilege string

const (
	PrivilegeCashier               Privilege = "cashier"
	PrivilegeCashierManagement     Privilege = "cashier_management"
	PrivilegeTillManagement        Privilege = "till_management"
	PrivilegeUserManagement        Privilege = "user_management"
	PrivilegeProductManagement     Privilege = "product_management"
	PrivilegeTaxRateManagement     Privilege = "tax_rate_management"
	PrivilegeNodeAdministration    Privilege = "node_administration"
	PrivilegeTerminalLogin         Privilege = "terminal_login"
	PrivilegeSupervisedTerminalLogin Privilege = "supervised_terminal_login"
	PrivilegeConfigManagement      Privilege = "config_management"
)

type Role struct {
	ID         int64
	NodeID     int64
	Name       string
	Privileges []Privilege
}

func (r Role) HasPrivilege(p Privilege) bool {
	for _, have := range r.Privileges {
		if have == p {
			return true
		}
	}
	return false
}

type User struct {
	ID      int64
	NodeID  int64
	Login   string
	TagID   *int64
	RoleIDs []int64
}

// CurrentUser is the materialized view Till/Terminal login returns: the user
// plus the privileges of the role chosen at login time.
type CurrentUser struct {
	User       User
	Role       Role
	Privileges []Privilege
}

func (c CurrentUser) HasPrivilege(p Privilege) bool {
	for _, have := range c.Privileges {
		if have == p {
			return true
		}
	}
	return false
}

// Reserved product ids, see spec §3.
const (
	ProductIDDiscount        int64 = -1
	ProductIDTopUp           int64 = -2
	ProductIDPayOut          int64 = -3
	ProductIDMoneyTransfer   int64 = -4
	ProductIDMoneyDifference int64 = -5
)

type Product struct {
	ID              int64
	NodeID          int64
	Name            string
	Price           *Money
	FixedPrice      bool
	PriceInVouchers *int64
	TaxRateName     string
	Restrictions    []string
	IsLocked        bool
	IsReturnable    bool
	TargetAccountID *int64
}

type TaxRate struct {
	Name string
	Rate Money // e.g. 0.19 for 19%
}

type TillProfile struct {
	ID             int64
	NodeID         int64
	Name           string
	AllowedRoleIDs []int64
	AllowTopUp     bool
	AllowCashOut   bool
	AllowTicketSale bool
	ButtonIDs      []int64
}

// Till is the point-of-sale logical device; a Terminal is the physical
// device bound to it via registration_uuid/session_uuid.
type Till struct {
	ID                  int64
	NodeID              int64
	Name                string
	ActiveProfileID     int64
	ActiveUserID        *int64
	ActiveUserRoleID    *int64
	ActiveCashRegisterID *int64
	RegistrationUUID    *uuid.UUID
	SessionUUID         *uuid.UUID
}

type OrderType string

const (
	OrderTypeSale                   OrderType = "sale"
	OrderTypeTopupCash              OrderType = "topup_cash"
	OrderTypeTopupSumup             OrderType = "topup_sumup"
	OrderTypePayOut                 OrderType = "pay_out"
	OrderTypeMoneyTransfer          OrderType = "money_transfer"
	OrderTypeMoneyTransferImbalance OrderType = "money_transfer_imbalance"
	OrderTypeTicket                 OrderType = "ticket"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusDone      OrderStatus = "done"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type LineItem struct {
	OrderID    int64
	ItemID     int64 // stable within order, starts at 0
	ProductID  int64
	Quantity   int64
	Price      Money
	TaxName    string
	TaxRate    Money
}

// TotalPrice returns quantity*price.
func (li LineItem) TotalPrice() Money {
	return MoneyFromDecimal(li.Price.Decimal.Mul(decimal.NewFromInt(li.Quantity)))
}

// TotalTax returns total_price - total_price/(1+tax_rate).
func (li LineItem) TotalTax() Money {
	total := li.TotalPrice()
	divisor := decimal.NewFromInt(1).Add(li.TaxRate.Decimal)
	netOfTax := total.Decimal.Div(divisor)
	return MoneyFromDecimal(total.Decimal.Sub(netOfTax))
}

type Order struct {
	ID                int64
	UUID              uuid.UUID
	NodeID            int64
	OrderType         OrderType
	Status            OrderStatus
	CashierID         int64
	TillID            int64
	CustomerAccountID *int64
	CashRegisterID    *int64
	BookedAt          *time.Time
	LineItems         []LineItem
	ValueSum          Money
	ValueTax          Money
	ValueNoTax        Money
}

// Transaction is a ledger row, written only by the Ledger Primitive.
type Transaction struct {
	ID            int64
	OrderID       *int64
	SourceAccount int64
	TargetAccount int64
	Amount        Money
	TaxName       *string
	BookedAt      time.Time
	Description   string
}

type CashierShift struct {
	ID                       int64
	CashierID                int64
	StartedAt                time.Time
	EndedAt                  time.Time
	ExpectedBalance          Money
	ActualBalance            Money
	Comment                  string
	CloseOutOrderID          int64
	CloseOutImbalanceOrderID int64
	ClosingOutUserID         int64
}

// ShiftStats is the per-product quantity breakdown booked during a shift
// window; not named by the distilled spec but present in the original
// Python implementation's cashier service and exposed here too.
type ShiftStats struct {
	CashierID int64
	StartedAt time.Time
	EndedAt   time.Time
	Products  []ShiftProductStat
}

type ShiftProductStat struct {
	ProductID int64
	Quantity  int64
}

type CustomerInfo struct {
	CustomerAccountID int64
	IBAN              *string
	AccountName       *string
	Email             *string
	Donation          *Money
	DonateAll         bool
	HasEnteredInfo    bool
	PayoutRunID       *int64
	PayoutError       *string
	PayoutExport      bool
}

type PayoutRun struct {
	ID            int64
	CreatedAt     time.Time
	CreatedBy     int64
	ExecutionDate time.Time
	SetDoneAt     *time.Time
}

type Payout struct {
	CustomerAccountID int64
	IBAN              string
	AccountName       string
	Email             *string
	UserTagUID        uint64
	Balance           Money // account.balance - donation
}
