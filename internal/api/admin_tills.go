package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/middleware"
	"github.com/stustapay/core/internal/models"
	"github.com/stustapay/core/internal/till"
)

func (d *Deps) listTills(w http.ResponseWriter, r *http.Request) {
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	rows, err := t.Query(r.Context(), `
		SELECT id, node_id, name, active_profile_id, active_user_id, active_user_role_id,
		       active_cash_register_id, registration_uuid, session_uuid
		FROM till WHERE node_id = $1 ORDER BY id`, currentNode(r))
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	defer rows.Close()

	var out []models.Till
	for rows.Next() {
		var row models.Till
		if err := rows.Scan(&row.ID, &row.NodeID, &row.Name, &row.ActiveProfileID, &row.ActiveUserID,
			&row.ActiveUserRoleID, &row.ActiveCashRegisterID, &row.RegistrationUUID, &row.SessionUUID); err != nil {
			middleware.WriteAPIError(w, apierrors.Internal(err))
			return
		}
		out = append(out, row)
	}
	writeList(w, len(out), out)
}

type createTillRequest struct {
	Name            string `json:"name"`
	ActiveProfileID int64  `json:"active_profile_id"`
}

func (d *Deps) createTill(w http.ResponseWriter, r *http.Request) {
	var req createTillRequest
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
	registrationUUID := uuid.New()
	var id int64
	err = t.QueryRow(r.Context(), `
		INSERT INTO till (node_id, name, active_profile_id, registration_uuid)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		currentNode(r), req.Name, req.ActiveProfileID, registrationUUID).Scan(&id)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	writeJSON(w, http.StatusCreated, models.Till{
		ID: id, NodeID: currentNode(r), Name: req.Name,
		ActiveProfileID: req.ActiveProfileID, RegistrationUUID: &registrationUUID,
	})
}

func (d *Deps) getTill(w http.ResponseWriter, r *http.Request) {
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
	result, err := till.GetByID(r.Context(), t, id)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type updateTillRequest struct {
	Name            *string `json:"name"`
	ActiveProfileID *int64  `json:"active_profile_id"`
}

func (d *Deps) updateTill(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	var req updateTillRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	current, err := till.GetByID(r.Context(), t, id)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if req.Name != nil {
		current.Name = *req.Name
	}
	if req.ActiveProfileID != nil {
		current.ActiveProfileID = *req.ActiveProfileID
	}
	if _, err := t.Exec(r.Context(), `UPDATE till SET name = $1, active_profile_id = $2 WHERE id = $3`,
		current.Name, current.ActiveProfileID, id); err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (d *Deps) deleteTill(w http.ResponseWriter, r *http.Request) {
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
	tag, err := t.Exec(r.Context(), `DELETE FROM till WHERE id = $1`, id)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	if tag.RowsAffected() == 0 {
		middleware.WriteAPIError(w, apierrors.NotFound("till %d not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Deps) forceLogoutTill(w http.ResponseWriter, r *http.Request) {
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
	if err := till.LogoutUser(r.Context(), t, id); err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type switchTillRequest struct {
	ToTillID int64 `json:"to_till_id"`
}

func (d *Deps) switchTill(w http.ResponseWriter, r *http.Request) {
	fromID, err := parseID(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	var req switchTillRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if err := till.SwitchTill(r.Context(), t, fromID, req.ToTillID); err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// terminalRegistrationQR returns the raw registration_uuid a physical
// terminal encodes into its setup QR code; rendering the QR image itself
// is a frontend concern.
func (d *Deps) terminalRegistrationQR(w http.ResponseWriter, r *http.Request) {
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
	var registrationUUID *uuid.UUID
	if err := t.QueryRow(r.Context(), `SELECT registration_uuid FROM till WHERE id = $1`, id).Scan(&registrationUUID); err != nil {
		if err == pgx.ErrNoRows {
			middleware.WriteAPIError(w, apierrors.NotFound("till %d not found", id))
			return
		}
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	if registrationUUID == nil {
		middleware.WriteAPIError(w, apierrors.Conflict("till %d is already registered", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"registration_uuid": registrationUUID.String()})
}
