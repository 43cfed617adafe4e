package api

import (
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/stustapay/core/internal/accounts"
	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/auditlog"
	"github.com/stustapay/core/internal/customer"
	"github.com/stustapay/core/internal/middleware"
	"github.com/stustapay/core/internal/models"
)

type customerLoginRequest struct {
	Pin string `json:"pin"`
}

func (d *Deps) customerLogin(w http.ResponseWriter, r *http.Request) {
	var req customerLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	account, err := d.Customer.LoginCustomer(r.Context(), t, req.Pin)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	token, err := d.Issuer.Issue(middleware.TokenKindCustomer, account.ID, "", d.JWT.CustomerSessionTTL)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	entry := auditlog.NewEntry(account.ID, auditlog.ActionCustomerLoggedIn, auditlog.ResourceTypeCustomer).WithResourceID(account.ID)
	if err := d.Audit.LogFromRequest(r.Context(), t, r, entry); err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"customer": account, "token": token})
}

func currentCustomerAccount(r *http.Request, t pgx.Tx) (models.Account, error) {
	id, ok := middleware.CustomerAccountID(r.Context())
	if !ok {
		return models.Account{}, apierrors.AccessDenied("no customer session")
	}
	return accounts.Get(r.Context(), t, id)
}

func (d *Deps) getCustomer(w http.ResponseWriter, r *http.Request) {
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	account, err := currentCustomerAccount(r, t)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

type orderWithBon struct {
	models.Order
	HasBon bool `json:"has_bon"`
}

func (d *Deps) customerOrdersWithBon(w http.ResponseWriter, r *http.Request) {
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	account, err := currentCustomerAccount(r, t)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	rows, err := t.Query(r.Context(), `
		SELECT o.id, o.uuid, o.node_id, o.order_type, o.status, o.cashier_id, o.till_id,
		       o.customer_account_id, o.cash_register_id, o.booked_at, o.value_sum, o.value_tax, o.value_notax,
		       b.order_id IS NOT NULL
		FROM orders o LEFT JOIN bon b ON b.order_id = o.id
		WHERE o.customer_account_id = $1 ORDER BY o.id DESC`, account.ID)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	defer rows.Close()
	var out []orderWithBon
	for rows.Next() {
		var o orderWithBon
		if err := rows.Scan(&o.ID, &o.UUID, &o.NodeID, &o.OrderType, &o.Status, &o.CashierID, &o.TillID,
			&o.CustomerAccountID, &o.CashRegisterID, &o.BookedAt, &o.ValueSum, &o.ValueTax, &o.ValueNoTax,
			&o.HasBon); err != nil {
			middleware.WriteAPIError(w, apierrors.Internal(err))
			return
		}
		out = append(out, o)
	}
	writeList(w, len(out), out)
}

func (d *Deps) customerPayoutInfo(w http.ResponseWriter, r *http.Request) {
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	account, err := currentCustomerAccount(r, t)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	info, err := customer.GetPayoutInfo(r.Context(), t, account.ID)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (d *Deps) customerBon(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	account, err := currentCustomerAccount(r, t)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	var ownerAccountID int64
	if err := t.QueryRow(r.Context(), `SELECT customer_account_id FROM orders WHERE id = $1`, id).Scan(&ownerAccountID); err != nil {
		if err == pgx.ErrNoRows {
			middleware.WriteAPIError(w, apierrors.NotFound("order %d not found", id))
			return
		}
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	if ownerAccountID != account.ID {
		middleware.WriteAPIError(w, apierrors.AccessDenied("bon does not belong to this customer"))
		return
	}
	var content []byte
	var mimeType string
	if err := t.QueryRow(r.Context(), `SELECT content, mime_type FROM bon WHERE order_id = $1`, id).Scan(&content, &mimeType); err != nil {
		if err == pgx.ErrNoRows || content == nil {
			middleware.WriteAPIError(w, apierrors.NotFound("bon for order %d not generated yet", id))
			return
		}
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

type updateCustomerInfoRequest struct {
	IBAN        string `json:"iban"`
	AccountName string `json:"account_name"`
	Email       string `json:"email"`
	Donation    string `json:"donation"`
}

func (d *Deps) updateCustomerInfo(w http.ResponseWriter, r *http.Request) {
	var req updateCustomerInfoRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	donation, parseErr := parseMoney(req.Donation)
	if parseErr != nil {
		middleware.WriteAPIError(w, parseErr)
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	account, err := currentCustomerAccount(r, t)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if err := d.Customer.UpdateCustomerInfo(r.Context(), t, account, customer.BankDetails{
		IBAN: req.IBAN, AccountName: req.AccountName, Email: req.Email, Donation: donation,
	}); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if err := d.Audit.LogCustomerBankInfoUpdated(r.Context(), t, r, account.ID); err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Deps) customerDonateAll(w http.ResponseWriter, r *http.Request) {
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	account, err := currentCustomerAccount(r, t)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if err := d.Customer.UpdateCustomerInfoDonateAll(r.Context(), t, account.ID); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if err := d.Audit.LogCustomerBankInfoUpdated(r.Context(), t, r, account.ID); err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
