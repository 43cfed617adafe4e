package api

import (
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/auditlog"
	"github.com/stustapay/core/internal/middleware"
	"github.com/stustapay/core/internal/models"
)

type adminLoginRequest struct {
	Login string `json:"login"`
	Pin   string `json:"pin"`
}

// adminLogin authenticates an admin/backoffice user by login + the pin
// carried on their NFC tag, the same credential terminal logins check
// (usr.tag_id -> user_tag.pin), since no separate admin password store is
// part of the data model.
func (d *Deps) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	var userID int64
	var pin *string
	err = t.QueryRow(r.Context(), `
		SELECT u.id, ut.pin FROM usr u JOIN user_tag ut ON ut.id = u.tag_id WHERE u.login = $1`, req.Login).
		Scan(&userID, &pin)
	if err == pgx.ErrNoRows || pin == nil || !pinMatches(*pin, req.Pin) {
		middleware.WriteAPIError(w, apierrors.AccessDenied("invalid login or pin"))
		return
	}
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	token, err := d.Issuer.Issue(middleware.TokenKindAdmin, userID, "", d.JWT.AdminSessionTTL)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	entry := auditlog.NewEntry(userID, auditlog.ActionAdminLoggedIn, auditlog.ResourceTypeAdmin)
	if err := d.Audit.LogFromRequest(r.Context(), t, r, entry); err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "token": token})
}

func pinMatches(stored, supplied string) bool {
	return supplied == stored || strings.ToLower(supplied) == stored || strings.ToUpper(supplied) == stored
}

func (d *Deps) listUsers(w http.ResponseWriter, r *http.Request) {
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	rows, err := t.Query(r.Context(), `SELECT id, node_id, login, tag_id FROM usr WHERE node_id = $1 ORDER BY id`, currentNode(r))
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	defer rows.Close()
	var out []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.NodeID, &u.Login, &u.TagID); err != nil {
			middleware.WriteAPIError(w, apierrors.Internal(err))
			return
		}
		out = append(out, u)
	}
	writeList(w, len(out), out)
}

type createUserRequest struct {
	Login   string  `json:"login"`
	TagID   *int64  `json:"tag_id"`
	RoleIDs []int64 `json:"role_ids"`
}

func (d *Deps) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if req.Login == "" {
		middleware.WriteAPIError(w, apierrors.InvalidArgument("login is required"))
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	u := models.User{NodeID: currentNode(r), Login: req.Login, TagID: req.TagID, RoleIDs: req.RoleIDs}
	if err := t.QueryRow(r.Context(), `INSERT INTO usr (node_id, login, tag_id) VALUES ($1, $2, $3) RETURNING id`,
		u.NodeID, u.Login, u.TagID).Scan(&u.ID); err != nil {
		middleware.WriteAPIError(w, apierrors.Conflict("login %q already exists", u.Login))
		return
	}
	for _, roleID := range req.RoleIDs {
		if _, err := t.Exec(r.Context(), `INSERT INTO usr_role (user_id, role_id) VALUES ($1, $2)`, u.ID, roleID); err != nil {
			middleware.WriteAPIError(w, apierrors.Internal(err))
			return
		}
	}
	writeJSON(w, http.StatusCreated, u)
}

func (d *Deps) getUser(w http.ResponseWriter, r *http.Request) {
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
	user, err := loadUser(r.Context(), t, id)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.NotFound("user %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (d *Deps) deleteUser(w http.ResponseWriter, r *http.Request) {
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
	if _, err := t.Exec(r.Context(), `DELETE FROM usr_role WHERE user_id = $1`, id); err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	tag, err := t.Exec(r.Context(), `DELETE FROM usr WHERE id = $1`, id)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	if tag.RowsAffected() == 0 {
		middleware.WriteAPIError(w, apierrors.NotFound("user %d not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
