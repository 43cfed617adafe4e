package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stustapay/core/internal/accounts"
	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/auditlog"
	"github.com/stustapay/core/internal/middleware"
	"github.com/stustapay/core/internal/models"
	"github.com/stustapay/core/internal/orders"
	"github.com/stustapay/core/internal/till"
)

type registerTerminalRequest struct {
	RegistrationUUID string `json:"registration_uuid"`
}

func (d *Deps) registerTerminal(w http.ResponseWriter, r *http.Request) {
	var req registerTerminalRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	registrationUUID, err := uuid.Parse(req.RegistrationUUID)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.InvalidArgument("registration_uuid is not a valid uuid"))
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	result, err := d.Till.RegisterTerminal(r.Context(), t, registrationUUID)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	token, err := d.Issuer.Issue(middleware.TokenKindTerminal, result.ID, result.SessionUUID.String(), d.JWT.TerminalSessionTTL)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	entry := auditlog.NewEntry(result.ID, auditlog.ActionTerminalRegistered, auditlog.ResourceTypeTerminal).WithResourceID(result.ID)
	if err := d.Audit.LogFromRequest(r.Context(), t, r, entry); err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"till": result, "token": token})
}

// activeTill loads the till row the bearer token's claims identify.
func (d *Deps) activeTill(r *http.Request, t pgx.Tx) (models.Till, error) {
	claims, ok := middleware.TerminalSession(r.Context())
	if !ok {
		return models.Till{}, apierrors.AccessDenied("no terminal session")
	}
	return till.GetByID(r.Context(), t, claims.SubjectID)
}

// userIDAndRolesForTagUID resolves a user tag to its owning user id and the
// roles that user carries, via usr.tag_id -> usr_role -> role.
func userIDAndRolesForTagUID(r *http.Request, t pgx.Tx, uid uint64) (int64, []models.Role, error) {
	var tagID, userID int64
	if err := t.QueryRow(r.Context(), `SELECT id FROM user_tag WHERE uid = $1`, uid).Scan(&tagID); err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil, apierrors.NotFound("no user tag with uid %d", uid)
		}
		return 0, nil, apierrors.Internal(err)
	}
	if err := t.QueryRow(r.Context(), `SELECT id FROM usr WHERE tag_id = $1`, tagID).Scan(&userID); err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil, apierrors.NotFound("no user holds tag %d", tagID)
		}
		return 0, nil, apierrors.Internal(err)
	}
	user, err := loadUser(r.Context(), t, userID)
	if err != nil {
		return 0, nil, apierrors.Internal(err)
	}
	roles := make([]models.Role, 0, len(user.User.RoleIDs))
	for _, roleID := range user.User.RoleIDs {
		role, err := loadRole(r.Context(), t, roleID)
		if err != nil {
			return 0, nil, apierrors.Internal(err)
		}
		roles = append(roles, role)
	}
	return userID, roles, nil
}

func rolesForProfile(r *http.Request, t pgx.Tx, profileID int64) ([]models.Role, error) {
	roleIDs := loadProfileRoleIDs(r, t, profileID)
	roles := make([]models.Role, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		role, err := loadRole(r.Context(), t, roleID)
		if err != nil {
			return nil, apierrors.Internal(err)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

type checkLoginRequest struct {
	UserTagUID uint64 `json:"user_tag_uid"`
}

func (d *Deps) checkUserLogin(w http.ResponseWriter, r *http.Request) {
	var req checkLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	currentTill, err := d.activeTill(r, t)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	_, candidateRoles, err := userIDAndRolesForTagUID(r, t, req.UserTagUID)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	profileRoles, err := rolesForProfile(r, t, currentTill.ActiveProfileID)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	var currentUser *models.CurrentUser
	if currentTill.ActiveUserID != nil {
		u, err := loadUser(r.Context(), t, *currentTill.ActiveUserID)
		if err == nil {
			currentUser = &u
		}
	}
	eligible, err := till.CheckUserLogin(candidateRoles, profileRoles, currentUser)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eligible)
}

type terminalLoginRequest struct {
	UserTagUID uint64 `json:"user_tag_uid"`
	RoleID     int64  `json:"role_id"`
}

func (d *Deps) terminalUserLogin(w http.ResponseWriter, r *http.Request) {
	var req terminalLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	currentTill, err := d.activeTill(r, t)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	userID, _, err := userIDAndRolesForTagUID(r, t, req.UserTagUID)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if err := till.LoginUser(r.Context(), t, currentTill.ID, userID, req.RoleID); err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	entry := auditlog.NewEntry(userID, auditlog.ActionTerminalUserLoggedIn, auditlog.ResourceTypeTerminal).WithResourceID(currentTill.ID)
	if err := d.Audit.LogFromRequest(r.Context(), t, r, entry); err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Deps) terminalUserLogout(w http.ResponseWriter, r *http.Request) {
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	currentTill, err := d.activeTill(r, t)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if err := till.LogoutUser(r.Context(), t, currentTill.ID); err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// createOrderRequest is the Terminal API's unified order payload; which
// fields apply depends on order_type, mirroring orders.Service's own
// per-type Params structs. The uuid is the client-chosen idempotency key:
// retrying a create_order call with the same uuid returns the order
// already on file instead of booking a second one.
type createOrderRequest struct {
	UUID                   uuid.UUID              `json:"uuid"`
	OrderType              models.OrderType       `json:"order_type"`
	CustomerTagUID         *uint64                `json:"customer_tag_uid"`
	CustomerTagRestriction *string                `json:"customer_tag_restriction"`
	Amount                 *string                `json:"amount"`
	Electronic             bool                   `json:"electronic"`
	LineItems              []orderLineItemRequest `json:"line_items"`
}

type orderLineItemRequest struct {
	ProductID int64   `json:"product_id"`
	Quantity  int64   `json:"quantity"`
	Price     *string `json:"price"`
}

func (d *Deps) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	if existing, err := d.Orders.FindByUUID(r.Context(), t, req.UUID); err != nil {
		middleware.WriteAPIError(w, err)
		return
	} else if existing != nil {
		writeJSON(w, http.StatusOK, existing)
		return
	}

	currentTill, err := d.activeTill(r, t)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if currentTill.ActiveUserID == nil {
		middleware.WriteAPIError(w, apierrors.AccessDenied("no cashier logged in at this terminal"))
		return
	}
	cashierID := *currentTill.ActiveUserID

	var customerAccountID int64
	if req.CustomerTagUID != nil {
		acc, err := accountForTagUID(r, t, *req.CustomerTagUID)
		if err != nil {
			middleware.WriteAPIError(w, err)
			return
		}
		customerAccountID = acc.ID
	}

	var order *models.Order
	switch req.OrderType {
	case models.OrderTypeSale:
		lineItems := make([]orders.SaleLineItemInput, 0, len(req.LineItems))
		for _, li := range req.LineItems {
			input := orders.SaleLineItemInput{ProductID: li.ProductID, Quantity: li.Quantity}
			if li.Price != nil {
				price, err := parseMoney(*li.Price)
				if err != nil {
					middleware.WriteAPIError(w, err)
					return
				}
				input.Price = &price
			}
			lineItems = append(lineItems, input)
		}
		order, err = d.Orders.CreateSale(r.Context(), t, orders.CreateSaleParams{
			UUID: req.UUID, NodeID: currentTill.NodeID, TillID: currentTill.ID, CashierID: cashierID,
			CustomerAccountID: customerAccountID, CustomerTagRestriction: req.CustomerTagRestriction,
			LineItems: lineItems,
		})
	case models.OrderTypeTopupCash, models.OrderTypeTopupSumup:
		amount, perr := requireMoney(req.Amount)
		if perr != nil {
			middleware.WriteAPIError(w, perr)
			return
		}
		order, err = d.Orders.CreateTopUp(r.Context(), t, orders.CreateTopUpParams{
			UUID: req.UUID, NodeID: currentTill.NodeID, TillID: currentTill.ID, CashierID: cashierID,
			CustomerAccountID: customerAccountID, CashRegisterID: currentTill.ActiveCashRegisterID,
			Electronic: req.OrderType == models.OrderTypeTopupSumup, Amount: amount,
		})
	case models.OrderTypePayOut:
		amount, perr := requireMoney(req.Amount)
		if perr != nil {
			middleware.WriteAPIError(w, perr)
			return
		}
		order, err = d.Orders.CreatePayOut(r.Context(), t, orders.CreatePayOutParams{
			UUID: req.UUID, NodeID: currentTill.NodeID, TillID: currentTill.ID, CashierID: cashierID,
			CustomerAccountID: customerAccountID, CashRegisterID: currentTill.ActiveCashRegisterID, Amount: amount,
		})
	default:
		middleware.WriteAPIError(w, apierrors.InvalidArgument("unsupported order_type %q for terminal orders", req.OrderType))
		return
	}
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	order, err = d.Orders.Confirm(r.Context(), t, order.ID)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	if err := d.Audit.LogOrderBooked(r.Context(), t, r, cashierID, order.ID, string(order.OrderType)); err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func requireMoney(s *string) (models.Money, error) {
	if s == nil {
		return models.Money{}, apierrors.InvalidArgument("amount is required")
	}
	return parseMoney(*s)
}

func (d *Deps) cancelOrder(w http.ResponseWriter, r *http.Request) {
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
	order, err := d.Orders.Cancel(r.Context(), t, id)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (d *Deps) terminalConfig(w http.ResponseWriter, r *http.Request) {
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	currentTill, err := d.activeTill(r, t)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	settings, ok := d.Settings.ForNode(currentTill.NodeID)
	if !ok {
		middleware.WriteAPIError(w, apierrors.NotFound("no event settings for node %d", currentTill.NodeID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"till": currentTill, "settings": settings})
}

func parseTagUID(r *http.Request) (uint64, error) {
	raw := r.PathValue("tag_uid")
	uid, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apierrors.InvalidArgument("invalid tag_uid %q", raw)
	}
	return uid, nil
}

func (d *Deps) terminalCustomerLookup(w http.ResponseWriter, r *http.Request) {
	uid, err := parseTagUID(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	acc, err := accountForTagUID(r, t, uid)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func accountForTagUID(r *http.Request, t pgx.Tx, uid uint64) (models.Account, error) {
	var tagID int64
	if err := t.QueryRow(r.Context(), `SELECT id FROM user_tag WHERE uid = $1`, uid).Scan(&tagID); err != nil {
		if err == pgx.ErrNoRows {
			return models.Account{}, apierrors.NotFound("no user tag with uid %d", uid)
		}
		return models.Account{}, apierrors.Internal(err)
	}
	return accounts.ByUserTag(r.Context(), t, tagID)
}
