package api

import (
	"net/http"
	"strconv"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/middleware"
	"github.com/stustapay/core/internal/models"
	"github.com/stustapay/core/internal/products"
)

func (d *Deps) listProducts(w http.ResponseWriter, r *http.Request) {
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	nodeID := currentNode(r)
	rows, err := t.Query(r.Context(), `
		SELECT id, node_id, name, price, fixed_price, price_in_vouchers, tax_rate_name,
		       restrictions, is_locked, is_returnable, target_account_id
		FROM product WHERE node_id = $1 ORDER BY id`, nodeID)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	defer rows.Close()

	var out []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.NodeID, &p.Name, &p.Price, &p.FixedPrice, &p.PriceInVouchers,
			&p.TaxRateName, &p.Restrictions, &p.IsLocked, &p.IsReturnable, &p.TargetAccountID); err != nil {
			middleware.WriteAPIError(w, apierrors.Internal(err))
			return
		}
		out = append(out, p)
	}
	writeList(w, len(out), out)
}

func (d *Deps) createProduct(w http.ResponseWriter, r *http.Request) {
	var p models.Product
	if err := decodeJSON(r, &p); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	p.NodeID = currentNode(r)
	if err := products.Validate(p); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	err = t.QueryRow(r.Context(), `
		INSERT INTO product (node_id, name, price, fixed_price, price_in_vouchers, tax_rate_name,
		                      restrictions, is_locked, is_returnable, target_account_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		p.NodeID, p.Name, p.Price, p.FixedPrice, p.PriceInVouchers, p.TaxRateName,
		p.Restrictions, p.IsLocked, p.IsReturnable, p.TargetAccountID).Scan(&p.ID)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (d *Deps) getProduct(w http.ResponseWriter, r *http.Request) {
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
	p, err := d.Products.Get(r.Context(), t, id)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (d *Deps) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	var req products.Update
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	p, err := d.Products.ApplyUpdate(r.Context(), t, id, req)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if err := d.Audit.LogProductUpdated(r.Context(), t, r, mustCurrentUser(r).User.ID, id); err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (d *Deps) deleteProduct(w http.ResponseWriter, r *http.Request) {
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
	tag, err := t.Exec(r.Context(), `DELETE FROM product WHERE id = $1`, id)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	if tag.RowsAffected() == 0 {
		middleware.WriteAPIError(w, apierrors.NotFound("product %d not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apierrors.InvalidArgument("invalid id %q", raw)
	}
	return id, nil
}

func mustCurrentUser(r *http.Request) models.CurrentUser {
	u, _ := middleware.CurrentUser(r.Context())
	return u
}
