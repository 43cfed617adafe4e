package api

import (
	"net/http"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/middleware"
)

type tillRegister struct {
	ID     int64  `json:"id"`
	NodeID int64  `json:"node_id"`
	Name   string `json:"name"`
}

func (d *Deps) listTillRegisters(w http.ResponseWriter, r *http.Request) {
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	rows, err := t.Query(r.Context(), `SELECT id, node_id, name FROM till_register WHERE node_id = $1 ORDER BY id`, currentNode(r))
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	defer rows.Close()
	var out []tillRegister
	for rows.Next() {
		var reg tillRegister
		if err := rows.Scan(&reg.ID, &reg.NodeID, &reg.Name); err != nil {
			middleware.WriteAPIError(w, apierrors.Internal(err))
			return
		}
		out = append(out, reg)
	}
	writeList(w, len(out), out)
}

func (d *Deps) createTillRegister(w http.ResponseWriter, r *http.Request) {
	var req tillRegister
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	req.NodeID = currentNode(r)
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if err := t.QueryRow(r.Context(), `INSERT INTO till_register (node_id, name) VALUES ($1, $2) RETURNING id`,
		req.NodeID, req.Name).Scan(&req.ID); err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (d *Deps) deleteTillRegister(w http.ResponseWriter, r *http.Request) {
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
	tag, err := t.Exec(r.Context(), `DELETE FROM till_register WHERE id = $1`, id)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	if tag.RowsAffected() == 0 {
		middleware.WriteAPIError(w, apierrors.NotFound("till register %d not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tillRegisterStocking struct {
	ID        int64  `json:"id"`
	NodeID    int64  `json:"node_id"`
	Name      string `json:"name"`
	Euro200   int    `json:"euro200"`
	Euro100   int    `json:"euro100"`
	Euro50    int    `json:"euro50"`
	Euro20    int    `json:"euro20"`
	Euro10    int    `json:"euro10"`
	Euro5     int    `json:"euro5"`
	EuroCoins string `json:"euro_coins"`
	Total     string `json:"total"`
}

func (d *Deps) listTillRegisterStockings(w http.ResponseWriter, r *http.Request) {
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	rows, err := t.Query(r.Context(), `
		SELECT id, node_id, name, euro200, euro100, euro50, euro20, euro10, euro5, euro_coins, total
		FROM till_register_stocking WHERE node_id = $1 ORDER BY id`, currentNode(r))
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	defer rows.Close()
	var out []tillRegisterStocking
	for rows.Next() {
		var s tillRegisterStocking
		if err := rows.Scan(&s.ID, &s.NodeID, &s.Name, &s.Euro200, &s.Euro100, &s.Euro50, &s.Euro20,
			&s.Euro10, &s.Euro5, &s.EuroCoins, &s.Total); err != nil {
			middleware.WriteAPIError(w, apierrors.Internal(err))
			return
		}
		out = append(out, s)
	}
	writeList(w, len(out), out)
}

func (d *Deps) createTillRegisterStocking(w http.ResponseWriter, r *http.Request) {
	var s tillRegisterStocking
	if err := decodeJSON(r, &s); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	s.NodeID = currentNode(r)
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	err = t.QueryRow(r.Context(), `
		INSERT INTO till_register_stocking (node_id, name, euro200, euro100, euro50, euro20, euro10, euro5, euro_coins, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		s.NodeID, s.Name, s.Euro200, s.Euro100, s.Euro50, s.Euro20, s.Euro10, s.Euro5, s.EuroCoins, s.Total).Scan(&s.ID)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (d *Deps) deleteTillRegisterStocking(w http.ResponseWriter, r *http.Request) {
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
	tag, err := t.Exec(r.Context(), `DELETE FROM till_register_stocking WHERE id = $1`, id)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	if tag.RowsAffected() == 0 {
		middleware.WriteAPIError(w, apierrors.NotFound("till register stocking %d not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
