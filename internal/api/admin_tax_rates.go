package api

import (
	"net/http"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/middleware"
	"github.com/stustapay/core/internal/models"
)

func (d *Deps) listTaxRates(w http.ResponseWriter, r *http.Request) {
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	rows, err := t.Query(r.Context(), `SELECT name, rate FROM tax_rate ORDER BY name`)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	defer rows.Close()

	var out []models.TaxRate
	for rows.Next() {
		var tr models.TaxRate
		if err := rows.Scan(&tr.Name, &tr.Rate); err != nil {
			middleware.WriteAPIError(w, apierrors.Internal(err))
			return
		}
		out = append(out, tr)
	}
	writeList(w, len(out), out)
}

func (d *Deps) createTaxRate(w http.ResponseWriter, r *http.Request) {
	var req models.TaxRate
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if req.Name == "" {
		middleware.WriteAPIError(w, apierrors.InvalidArgument("name is required"))
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if _, err := t.Exec(r.Context(), `INSERT INTO tax_rate (name, rate) VALUES ($1, $2)`, req.Name, req.Rate.Decimal); err != nil {
		middleware.WriteAPIError(w, apierrors.Conflict("tax rate %q already exists", req.Name))
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (d *Deps) updateTaxRate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req models.TaxRate
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	tag, err := t.Exec(r.Context(), `UPDATE tax_rate SET rate = $1 WHERE name = $2`, req.Rate.Decimal, name)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	if tag.RowsAffected() == 0 {
		middleware.WriteAPIError(w, apierrors.NotFound("tax rate %q not found", name))
		return
	}
	req.Name = name
	writeJSON(w, http.StatusOK, req)
}

func (d *Deps) deleteTaxRate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	tag, err := t.Exec(r.Context(), `DELETE FROM tax_rate WHERE name = $1`, name)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	if tag.RowsAffected() == 0 {
		middleware.WriteAPIError(w, apierrors.NotFound("tax rate %q not found", name))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
