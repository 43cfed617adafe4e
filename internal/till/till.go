// Package till implements the Till/Terminal Runtime of spec §4.5: the
// registration handshake, the active-user/role session state machine, and
// switch_till/switch_terminal. Session identity caching is accelerated by
// an optional Redis client, grounded on the teacher's
// services/auth_storage.go revocation-cache pattern.
package till

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/models"
)

// SessionCache is the optional Redis-backed accelerator for
// session_uuid -> till_id lookups. A nil client degrades to DB-only
// (fail-open), matching middleware/auth.go's behavior when Redis is
// unavailable.
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionCache(client *redis.Client, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, ttl: ttl}
}

func (c *SessionCache) Get(ctx context.Context, sessionUUID uuid.UUID) (int64, bool) {
	if c.client == nil {
		return 0, false
	}
	val, err := c.client.Get(ctx, sessionKey(sessionUUID)).Result()
	if err != nil {
		return 0, false
	}
	var tillID int64
	if _, err := fmt.Sscanf(val, "%d", &tillID); err != nil {
		return 0, false
	}
	return tillID, true
}

func (c *SessionCache) Set(ctx context.Context, sessionUUID uuid.UUID, tillID int64) {
	if c.client == nil {
		return
	}
	_ = c.client.Set(ctx, sessionKey(sessionUUID), fmt.Sprintf("%d", tillID), c.ttl).Err()
}

func (c *SessionCache) Invalidate(ctx context.Context, sessionUUID uuid.UUID) {
	if c.client == nil {
		return
	}
	_ = c.client.Del(ctx, sessionKey(sessionUUID)).Err()
}

func sessionKey(sessionUUID uuid.UUID) string {
	return "till_session:" + sessionUUID.String()
}

// Runtime implements the Till/Terminal Runtime operations.
type Runtime struct {
	cache *SessionCache
}

func NewRuntime(cache *SessionCache) *Runtime {
	return &Runtime{cache: cache}
}

// RegisterTerminal consumes the one-shot registration_uuid and mints a
// fresh session_uuid, which becomes the terminal's bearer identity.
func (r *Runtime) RegisterTerminal(ctx context.Context, tx pgx.Tx, registrationUUID uuid.UUID) (models.Till, error) {
	var t models.Till
	err := tx.QueryRow(ctx, `
		SELECT id, node_id, name, active_profile_id, active_user_id, active_user_role_id, active_cash_register_id, registration_uuid, session_uuid
		FROM till WHERE registration_uuid = $1 FOR UPDATE`, registrationUUID).
		Scan(&t.ID, &t.NodeID, &t.Name, &t.ActiveProfileID, &t.ActiveUserID, &t.ActiveUserRoleID, &t.ActiveCashRegisterID, &t.RegistrationUUID, &t.SessionUUID)
	if err == pgx.ErrNoRows {
		return models.Till{}, apierrors.NotFound("no till offers registration uuid %s", registrationUUID)
	}
	if err != nil {
		return models.Till{}, fmt.Errorf("locking till by registration uuid: %w", err)
	}

	sessionUUID := uuid.New()
	_, err = tx.Exec(ctx, `
		UPDATE till SET registration_uuid = NULL, session_uuid = $1 WHERE id = $2`,
		sessionUUID, t.ID)
	if err != nil {
		return models.Till{}, fmt.Errorf("registering till %d: %w", t.ID, err)
	}

	t.RegistrationUUID = nil
	t.SessionUUID = &sessionUUID
	if r.cache != nil {
		r.cache.Set(ctx, sessionUUID, t.ID)
	}
	return t, nil
}

// LogoutTerminal reverts registered -> unregistered: clears the session,
// mints a fresh one-shot registration uuid.
func (r *Runtime) LogoutTerminal(ctx context.Context, tx pgx.Tx, tillID int64) (uuid.UUID, error) {
	var currentSession *uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT session_uuid FROM till WHERE id = $1 FOR UPDATE`, tillID).Scan(&currentSession); err != nil {
		if err == pgx.ErrNoRows {
			return uuid.UUID{}, apierrors.NotFound("till %d not found", tillID)
		}
		return uuid.UUID{}, fmt.Errorf("locking till %d: %w", tillID, err)
	}

	registrationUUID := uuid.New()
	_, err := tx.Exec(ctx, `
		UPDATE till SET registration_uuid = $1, session_uuid = NULL,
		                active_user_id = NULL, active_user_role_id = NULL
		WHERE id = $2`, registrationUUID, tillID)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("logging out till %d: %w", tillID, err)
	}
	if r.cache != nil && currentSession != nil {
		r.cache.Invalidate(ctx, *currentSession)
	}
	return registrationUUID, nil
}

// CheckUserLogin computes the roles the bearer may log in as: the
// intersection of (roles assigned to the tag's user), (roles allowed by
// the till's active profile), and (roles carrying terminal_login or
// supervised_terminal_login). If the candidate lacks terminal_login
// outright, the currently logged-in user must be a supervisor.
func CheckUserLogin(candidateRoles, profileRoles []models.Role, currentUser *models.CurrentUser) ([]models.Role, error) {
	profileAllowed := make(map[int64]bool, len(profileRoles))
	for _, r := range profileRoles {
		profileAllowed[r.ID] = true
	}

	var eligible []models.Role
	candidateHasTerminalLogin := false
	for _, role := range candidateRoles {
		if !profileAllowed[role.ID] {
			continue
		}
		if role.HasPrivilege(models.PrivilegeTerminalLogin) {
			candidateHasTerminalLogin = true
		}
		if role.HasPrivilege(models.PrivilegeTerminalLogin) || role.HasPrivilege(models.PrivilegeSupervisedTerminalLogin) {
			eligible = append(eligible, role)
		}
	}

	if !candidateHasTerminalLogin {
		if currentUser == nil || !currentUser.HasPrivilege(models.PrivilegeTerminalLogin) {
			return nil, apierrors.AccessDenied("supervisor required")
		}
	}

	return eligible, nil
}

// LoginUser writes active_user_id/active_user_role_id after the caller has
// verified role is one CheckUserLogin returned.
func LoginUser(ctx context.Context, tx pgx.Tx, tillID, userID, roleID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE till SET active_user_id = $1, active_user_role_id = $2 WHERE id = $3`,
		userID, roleID, tillID)
	if err != nil {
		return fmt.Errorf("logging in user %d on till %d: %w", userID, tillID, err)
	}
	return nil
}

// LogoutUser clears the active user/role. It serves both self-service and
// supervisor-forced logout; that distinction is an authorization check
// made by the caller before invoking this.
func LogoutUser(ctx context.Context, tx pgx.Tx, tillID int64) error {
	_, err := tx.Exec(ctx, `UPDATE till SET active_user_id = NULL, active_user_role_id = NULL WHERE id = $1`, tillID)
	if err != nil {
		return fmt.Errorf("logging out till %d: %w", tillID, err)
	}
	return nil
}

// SwitchTill rebinds a terminal to a different till by moving the source
// till's session identity to the target till and clearing it on the
// source; both switch_till and switch_terminal are privileged
// operations the caller must have already authorized.
func SwitchTill(ctx context.Context, tx pgx.Tx, fromTillID, toTillID int64) error {
	var session *uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT session_uuid FROM till WHERE id = $1 FOR UPDATE`, fromTillID).Scan(&session); err != nil {
		return fmt.Errorf("locking source till %d: %w", fromTillID, err)
	}
	if _, err := tx.Exec(ctx, `UPDATE till SET session_uuid = NULL WHERE id = $1`, fromTillID); err != nil {
		return fmt.Errorf("clearing source till %d session: %w", fromTillID, err)
	}
	if _, err := tx.Exec(ctx, `UPDATE till SET session_uuid = $1 WHERE id = $2`, session, toTillID); err != nil {
		return fmt.Errorf("assigning session to till %d: %w", toTillID, err)
	}
	return nil
}

// GetByID reads a till row without locking it.
func GetByID(ctx context.Context, tx pgx.Tx, id int64) (models.Till, error) {
	var t models.Till
	err := tx.QueryRow(ctx, `
		SELECT id, node_id, name, active_profile_id, active_user_id, active_user_role_id, active_cash_register_id, registration_uuid, session_uuid
		FROM till WHERE id = $1`, id).
		Scan(&t.ID, &t.NodeID, &t.Name, &t.ActiveProfileID, &t.ActiveUserID, &t.ActiveUserRoleID, &t.ActiveCashRegisterID, &t.RegistrationUUID, &t.SessionUUID)
	if err == pgx.ErrNoRows {
		return models.Till{}, apierrors.NotFound("till %d not found", id)
	}
	if err != nil {
		return models.Till{}, fmt.Errorf("fetching till %d: %w", id, err)
	}
	return t, nil
}
