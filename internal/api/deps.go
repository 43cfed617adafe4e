package api

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stustapay/core/internal/auditlog"
	"github.com/stustapay/core/internal/cashier"
	"github.com/stustapay/core/internal/config"
	"github.com/stustapay/core/internal/customer"
	"github.com/stustapay/core/internal/middleware"
	"github.com/stustapay/core/internal/models"
	"github.com/stustapay/core/internal/orders"
	"github.com/stustapay/core/internal/payout"
	"github.com/stustapay/core/internal/products"
	"github.com/stustapay/core/internal/till"
)

// Deps is the set of collaborators every handler closes over. Built once
// in cmd/server/main.go and threaded through the three router
// constructors.
type Deps struct {
	Pool       *pgxpool.Pool
	Issuer     *middleware.TokenIssuer
	Revocation *middleware.RevocationCache
	RateLimit  *middleware.KeyedRateLimiter
	Settings   *config.SettingsView
	JWT        config.JWT

	Orders   *orders.Service
	Cashiers *cashier.Engine
	Till     *till.Runtime
	Customer *customer.Service
	Payout   *payout.Service
	Products *products.Registry
	Audit    *auditlog.Logger
}

// loadUser resolves the full CurrentUser (role + privileges) for an
// admin session token's subject id, used by middleware.RequiresUser.
// Admin sessions don't carry a chosen role the way a till session does
// (models.Till.ActiveUserRoleID) — an admin user acts under every role
// it holds, so privileges are the union across all assigned roles.
func loadUser(ctx context.Context, tx pgx.Tx, userID int64) (models.CurrentUser, error) {
	var u models.User
	err := tx.QueryRow(ctx, `SELECT id, node_id, login, tag_id FROM usr WHERE id = $1`, userID).
		Scan(&u.ID, &u.NodeID, &u.Login, &u.TagID)
	if err == pgx.ErrNoRows {
		return models.CurrentUser{}, fmt.Errorf("user %d not found", userID)
	}
	if err != nil {
		return models.CurrentUser{}, fmt.Errorf("fetching user %d: %w", userID, err)
	}

	rows, err := tx.Query(ctx, `SELECT role_id FROM usr_role WHERE user_id = $1`, userID)
	if err != nil {
		return models.CurrentUser{}, fmt.Errorf("fetching roles for user %d: %w", userID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var roleID int64
		if err := rows.Scan(&roleID); err != nil {
			return models.CurrentUser{}, err
		}
		u.RoleIDs = append(u.RoleIDs, roleID)
	}
	if err := rows.Err(); err != nil {
		return models.CurrentUser{}, err
	}

	privSet := make(map[models.Privilege]struct{})
	var combined models.Role
	for _, roleID := range u.RoleIDs {
		role, err := loadRole(ctx, tx, roleID)
		if err != nil {
			return models.CurrentUser{}, err
		}
		if combined.ID == 0 {
			combined = role
		}
		for _, p := range role.Privileges {
			privSet[p] = struct{}{}
		}
	}
	privileges := make([]models.Privilege, 0, len(privSet))
	for p := range privSet {
		privileges = append(privileges, p)
	}

	return models.CurrentUser{User: u, Role: combined, Privileges: privileges}, nil
}

func loadRole(ctx context.Context, tx pgx.Tx, roleID int64) (models.Role, error) {
	var r models.Role
	if err := tx.QueryRow(ctx, `SELECT id, node_id, name FROM role WHERE id = $1`, roleID).
		Scan(&r.ID, &r.NodeID, &r.Name); err != nil {
		return models.Role{}, fmt.Errorf("fetching role %d: %w", roleID, err)
	}
	rows, err := tx.Query(ctx, `SELECT privilege FROM role_privilege WHERE role_id = $1`, roleID)
	if err != nil {
		return models.Role{}, fmt.Errorf("fetching privileges for role %d: %w", roleID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var p models.Privilege
		if err := rows.Scan(&p); err != nil {
			return models.Role{}, err
		}
		r.Privileges = append(r.Privileges, p)
	}
	return r, rows.Err()
}

