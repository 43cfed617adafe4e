package api

import (
	"net/http"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/cashier"
	"github.com/stustapay/core/internal/middleware"
)

type cashierView struct {
	UserID           int64  `json:"user_id"`
	Login            string `json:"login"`
	CashierAccountID int64  `json:"cashier_account_id"`
	CashRegisterID   *int64 `json:"cash_register_id"`
}

func (d *Deps) listCashiers(w http.ResponseWriter, r *http.Request) {
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	rows, err := t.Query(r.Context(), `
		SELECT u.id, u.login, a.id, a.cash_register_id
		FROM usr u JOIN account a ON a.user_tag_id = u.tag_id AND a.kind = 'cashier'
		WHERE u.node_id = $1 ORDER BY u.id`, currentNode(r))
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	defer rows.Close()
	var out []cashierView
	for rows.Next() {
		var c cashierView
		if err := rows.Scan(&c.UserID, &c.Login, &c.CashierAccountID, &c.CashRegisterID); err != nil {
			middleware.WriteAPIError(w, apierrors.Internal(err))
			return
		}
		out = append(out, c)
	}
	writeList(w, len(out), out)
}

func (d *Deps) getCashierShiftStats(w http.ResponseWriter, r *http.Request) {
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
	stats, err := cashier.Stats(r.Context(), t, id, nil)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type closeOutRequest struct {
	Comment                 string `json:"comment"`
	ActualCashDrawerBalance string `json:"actual_cash_drawer_balance"`
}

func (d *Deps) closeOutCashier(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	var req closeOutRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	amount, parseErr := parseMoney(req.ActualCashDrawerBalance)
	if parseErr != nil {
		middleware.WriteAPIError(w, parseErr)
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	currentUser := mustCurrentUser(r)
	result, err := d.Cashiers.CloseOut(r.Context(), t, id, cashier.CloseOutRequest{
		Comment:                 req.Comment,
		ActualCashDrawerBalance: amount,
		ClosingOutUserID:        currentUser.User.ID,
	})
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if err := d.Audit.LogCashierClosedOut(r.Context(), t, r, currentUser.User.ID, id, result.Imbalance.StringFixed(2)); err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}
