// Package auditlog records security-relevant events to the audit_log
// table: who did what to which resource, and whether it succeeded.
// Adapted from the teacher's internal/models/audit_log.go (the entry
// builder) and internal/utils/audit.go (the logger and its per-event
// helpers), merged into one package since nothing else consumed the
// entry type on its own.
package auditlog

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jackc/pgx/v5"
)

const (
	ActionOrderBooked            = "order_booked"
	ActionOrderCancelled         = "order_cancelled"
	ActionCashierClosedOut       = "cashier_closed_out"
	ActionProductUpdated         = "product_updated"
	ActionCustomerBankInfoUpdated = "customer_bank_info_updated"
	ActionCustomerLoggedIn       = "customer_logged_in"
	ActionTerminalRegistered     = "terminal_registered"
	ActionTerminalUserLoggedIn   = "terminal_user_logged_in"
	ActionAdminLoggedIn          = "admin_logged_in"
	ActionPayoutRunCreated       = "payout_run_created"
	ActionPayoutExported         = "payout_exported"
	ActionUnauthorizedAccess     = "unauthorized_access"
	ActionRateLimitExceeded      = "rate_limit_exceeded"
)

const (
	ResourceTypeOrder    = "order"
	ResourceTypeCashier  = "cashier"
	ResourceTypeProduct  = "product"
	ResourceTypeCustomer = "customer"
	ResourceTypeTerminal = "terminal"
	ResourceTypePayout   = "payout_run"
	ResourceTypeAdmin    = "admin_session"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is a builder for one audit_log row.
type Entry struct {
	ActorID      int64
	Action       string
	ResourceType string
	ResourceID   *int64
	IPAddress    *string
	UserAgent    *string
	Metadata     map[string]interface{}
	Status       string
	ErrorMessage *string
}

func NewEntry(actorID int64, action, resourceType string) *Entry {
	return &Entry{
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		Status:       StatusSuccess,
		Metadata:     make(map[string]interface{}),
	}
}

func (e *Entry) WithResourceID(id int64) *Entry {
	e.ResourceID = &id
	return e
}

func (e *Entry) WithIPAddress(ip string) *Entry {
	e.IPAddress = &ip
	return e
}

func (e *Entry) WithUserAgent(ua string) *Entry {
	e.UserAgent = &ua
	return e
}

func (e *Entry) WithMetadata(key string, value interface{}) *Entry {
	e.Metadata[key] = value
	return e
}

func (e *Entry) WithFailure(errorMessage string) *Entry {
	e.Status = StatusFailure
	e.ErrorMessage = &errorMessage
	return e
}

// Logger writes audit entries against whatever transaction the caller is
// already inside, so an audit row and the state change it describes
// commit or roll back together.
type Logger struct{}

func NewLogger() *Logger { return &Logger{} }

func (l *Logger) Log(ctx context.Context, tx pgx.Tx, entry *Entry) error {
	var metadataJSON []byte
	var err error
	if len(entry.Metadata) > 0 {
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO audit_log (
			actor_id, action, resource_type, resource_id,
			ip_address, user_agent, metadata, status, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ActorID, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.IPAddress, entry.UserAgent, metadataJSON, entry.Status, entry.ErrorMessage,
	)
	return err
}

// LogFromRequest fills in IP/user-agent from r before logging.
func (l *Logger) LogFromRequest(ctx context.Context, tx pgx.Tx, r *http.Request, entry *Entry) error {
	if ip := ClientIP(r); ip != "" {
		entry = entry.WithIPAddress(ip)
	}
	if ua := r.UserAgent(); ua != "" {
		entry = entry.WithUserAgent(ua)
	}
	entry = entry.WithMetadata("method", r.Method).WithMetadata("path", r.URL.Path)
	return l.Log(ctx, tx, entry)
}

func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// LogOrderBooked logs a completed order confirmation (spec §4.3).
func (l *Logger) LogOrderBooked(ctx context.Context, tx pgx.Tx, r *http.Request, cashierID, orderID int64, orderType string) error {
	entry := NewEntry(cashierID, ActionOrderBooked, ResourceTypeOrder).
		WithResourceID(orderID).
		WithMetadata("order_type", orderType)
	return l.LogFromRequest(ctx, tx, r, entry)
}

// LogCashierClosedOut logs a cashier shift close-out (spec §4.4).
func (l *Logger) LogCashierClosedOut(ctx context.Context, tx pgx.Tx, r *http.Request, closingOutUserID, cashierID int64, imbalance string) error {
	entry := NewEntry(closingOutUserID, ActionCashierClosedOut, ResourceTypeCashier).
		WithResourceID(cashierID).
		WithMetadata("imbalance", imbalance)
	return l.LogFromRequest(ctx, tx, r, entry)
}

// LogProductUpdated logs a successful product update, whichever
// attributes it changed.
func (l *Logger) LogProductUpdated(ctx context.Context, tx pgx.Tx, r *http.Request, actorID, productID int64) error {
	entry := NewEntry(actorID, ActionProductUpdated, ResourceTypeProduct).WithResourceID(productID)
	return l.LogFromRequest(ctx, tx, r, entry)
}

// LogCustomerBankInfoUpdated logs a successful update_customer_info call
// (spec §4.6).
func (l *Logger) LogCustomerBankInfoUpdated(ctx context.Context, tx pgx.Tx, r *http.Request, customerAccountID int64) error {
	entry := NewEntry(customerAccountID, ActionCustomerBankInfoUpdated, ResourceTypeCustomer).WithResourceID(customerAccountID)
	return l.LogFromRequest(ctx, tx, r, entry)
}

// LogPayoutRunCreated logs create_payout_run (spec §4.7).
func (l *Logger) LogPayoutRunCreated(ctx context.Context, tx pgx.Tx, createdBy, runID int64, scheduledCount int) error {
	entry := NewEntry(createdBy, ActionPayoutRunCreated, ResourceTypePayout).
		WithResourceID(runID).
		WithMetadata("scheduled_count", scheduledCount)
	return l.Log(ctx, tx, entry)
}

// LogUnauthorizedAccess logs a rejected request inside the transaction tx
// that the caller supplies.
func (l *Logger) LogUnauthorizedAccess(ctx context.Context, tx pgx.Tx, r *http.Request, actorID int64, reason string) error {
	entry := NewEntry(actorID, ActionUnauthorizedAccess, "security").WithFailure(reason)
	return l.LogFromRequest(ctx, tx, r, entry)
}

// LogRateLimitExceeded logs a rejected request due to rate limiting.
func (l *Logger) LogRateLimitExceeded(ctx context.Context, tx pgx.Tx, r *http.Request, actorID int64) error {
	entry := NewEntry(actorID, ActionRateLimitExceeded, "security")
	return l.LogFromRequest(ctx, tx, r, entry)
}
