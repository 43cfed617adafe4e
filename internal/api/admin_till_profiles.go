package api

import (
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/middleware"
	"github.com/stustapay/core/internal/models"
)

func (d *Deps) listTillProfiles(w http.ResponseWriter, r *http.Request) {
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	rows, err := t.Query(r.Context(), `
		SELECT id, node_id, name, allow_top_up, allow_cash_out, allow_ticket_sale
		FROM till_profile WHERE node_id = $1 ORDER BY id`, currentNode(r))
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	defer rows.Close()

	var out []models.TillProfile
	for rows.Next() {
		var p models.TillProfile
		if err := rows.Scan(&p.ID, &p.NodeID, &p.Name, &p.AllowTopUp, &p.AllowCashOut, &p.AllowTicketSale); err != nil {
			middleware.WriteAPIError(w, apierrors.Internal(err))
			return
		}
		p.AllowedRoleIDs = loadProfileRoleIDs(r, t, p.ID)
		out = append(out, p)
	}
	writeList(w, len(out), out)
}

func (d *Deps) createTillProfile(w http.ResponseWriter, r *http.Request) {
	var p models.TillProfile
	if err := decodeJSON(r, &p); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	p.NodeID = currentNode(r)
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	err = t.QueryRow(r.Context(), `
		INSERT INTO till_profile (node_id, name, allow_top_up, allow_cash_out, allow_ticket_sale)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.NodeID, p.Name, p.AllowTopUp, p.AllowCashOut, p.AllowTicketSale).Scan(&p.ID)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	for _, roleID := range p.AllowedRoleIDs {
		if _, err := t.Exec(r.Context(), `INSERT INTO till_profile_role (profile_id, role_id) VALUES ($1, $2)`, p.ID, roleID); err != nil {
			middleware.WriteAPIError(w, apierrors.Internal(err))
			return
		}
	}
	writeJSON(w, http.StatusCreated, p)
}

func (d *Deps) updateTillProfile(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	var p models.TillProfile
	if err := decodeJSON(r, &p); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	tag, err := t.Exec(r.Context(), `
		UPDATE till_profile SET name = $1, allow_top_up = $2, allow_cash_out = $3, allow_ticket_sale = $4
		WHERE id = $5`, p.Name, p.AllowTopUp, p.AllowCashOut, p.AllowTicketSale, id)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	if tag.RowsAffected() == 0 {
		middleware.WriteAPIError(w, apierrors.NotFound("till profile %d not found", id))
		return
	}
	p.ID = id
	writeJSON(w, http.StatusOK, p)
}

func (d *Deps) deleteTillProfile(w http.ResponseWriter, r *http.Request) {
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
	tag, err := t.Exec(r.Context(), `DELETE FROM till_profile WHERE id = $1`, id)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	if tag.RowsAffected() == 0 {
		middleware.WriteAPIError(w, apierrors.NotFound("till profile %d not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func loadProfileRoleIDs(r *http.Request, t pgx.Tx, profileID int64) []int64 {
	rows, err := t.Query(r.Context(), `SELECT role_id FROM till_profile_role WHERE profile_id = $1`, profileID)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if rows.Scan(&id) == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
