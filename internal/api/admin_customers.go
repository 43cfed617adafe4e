package api

import (
	"net/http"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/middleware"
	"github.com/stustapay/core/internal/models"
)

type customerView struct {
	AccountID      int64        `json:"account_id"`
	Balance        models.Money `json:"balance"`
	VoucherBalance models.Money `json:"voucher_balance"`
	IBAN           *string      `json:"iban"`
	AccountName    *string      `json:"account_name"`
	Email          *string      `json:"email"`
	HasEnteredInfo bool         `json:"has_entered_info"`
	PayoutRunID    *int64       `json:"payout_run_id"`
}

func (d *Deps) listCustomers(w http.ResponseWriter, r *http.Request) {
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	rows, err := t.Query(r.Context(), `
		SELECT a.id, a.balance, a.voucher_balance, ci.iban, ci.account_name, ci.email,
		       ci.has_entered_info, ci.payout_run_id
		FROM account a LEFT JOIN customer_info ci ON ci.customer_account_id = a.id
		WHERE a.node_id = $1 AND a.kind = 'private' ORDER BY a.id`, currentNode(r))
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	defer rows.Close()
	var out []customerView
	for rows.Next() {
		var c customerView
		var hasEnteredInfo *bool
		if err := rows.Scan(&c.AccountID, &c.Balance, &c.VoucherBalance, &c.IBAN, &c.AccountName, &c.Email,
			&hasEnteredInfo, &c.PayoutRunID); err != nil {
			middleware.WriteAPIError(w, apierrors.Internal(err))
			return
		}
		if hasEnteredInfo != nil {
			c.HasEnteredInfo = *hasEnteredInfo
		}
		out = append(out, c)
	}
	writeList(w, len(out), out)
}
