package api

import (
	"net/http"

	"github.com/stustapay/core/internal/middleware"
)

// chain applies middlewares outermost-first, matching the teacher's
// CORSMiddleware(AuthMiddleware(handler)) composition style.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// NewAdminRouter builds the Administration surface of spec §6: every
// route except POST /auth/login requires a user session, a db transaction,
// and node_id scoping; the login route runs in a db transaction only,
// behind the per-IP rate limit when one is configured.
func NewAdminRouter(d *Deps) http.Handler {
	mux := http.NewServeMux()

	requireAll := []func(http.Handler) http.Handler{
		middleware.WithDBTransaction(d.Pool, false),
		middleware.RequiresUser(d.Issuer, d.Revocation, loadUser),
		middleware.RequiresNode(nodeFromQuery),
	}
	wrap := func(h http.HandlerFunc) http.Handler {
		return chain(h, requireAll...)
	}
	loginOnly := []func(http.Handler) http.Handler{middleware.WithDBTransaction(d.Pool, false)}
	if d.RateLimit != nil {
		loginOnly = append(loginOnly, middleware.RateLimitByIP(d.RateLimit))
	}

	mux.Handle("POST /auth/login", chain(d.adminLogin, loginOnly...))

	mux.Handle("GET /tax-rates", wrap(d.listTaxRates))
	mux.Handle("POST /tax-rates", wrap(d.createTaxRate))
	mux.Handle("PUT /tax-rates/{name}", wrap(d.updateTaxRate))
	mux.Handle("DELETE /tax-rates/{name}", wrap(d.deleteTaxRate))

	mux.Handle("GET /products", wrap(d.listProducts))
	mux.Handle("POST /products", wrap(d.createProduct))
	mux.Handle("GET /products/{id}", wrap(d.getProduct))
	mux.Handle("PUT /products/{id}", wrap(d.updateProduct))
	mux.Handle("DELETE /products/{id}", wrap(d.deleteProduct))

	mux.Handle("GET /tills", wrap(d.listTills))
	mux.Handle("POST /tills", wrap(d.createTill))
	mux.Handle("GET /tills/{id}", wrap(d.getTill))
	mux.Handle("PUT /tills/{id}", wrap(d.updateTill))
	mux.Handle("DELETE /tills/{id}", wrap(d.deleteTill))
	mux.Handle("POST /tills/{id}/logout", wrap(d.forceLogoutTill))
	mux.Handle("POST /tills/{id}/switch", wrap(d.switchTill))

	mux.Handle("GET /terminals", wrap(d.listTills))
	mux.Handle("GET /terminals/{id}/registration-qr", wrap(d.terminalRegistrationQR))

	mux.Handle("GET /till_profiles", wrap(d.listTillProfiles))
	mux.Handle("POST /till_profiles", wrap(d.createTillProfile))
	mux.Handle("PUT /till_profiles/{id}", wrap(d.updateTillProfile))
	mux.Handle("DELETE /till_profiles/{id}", wrap(d.deleteTillProfile))

	mux.Handle("GET /till_registers", wrap(d.listTillRegisters))
	mux.Handle("POST /till_registers", wrap(d.createTillRegister))
	mux.Handle("DELETE /till_registers/{id}", wrap(d.deleteTillRegister))

	mux.Handle("GET /till_register_stockings", wrap(d.listTillRegisterStockings))
	mux.Handle("POST /till_register_stockings", wrap(d.createTillRegisterStocking))
	mux.Handle("DELETE /till_register_stockings/{id}", wrap(d.deleteTillRegisterStocking))

	mux.Handle("GET /config", wrap(d.getConfig))

	mux.Handle("GET /tse", wrap(d.listTSEDevices))
	mux.Handle("POST /tse", wrap(d.createTSEDevice))

	mux.Handle("GET /user", wrap(d.listUsers))
	mux.Handle("POST /user", wrap(d.createUser))
	mux.Handle("GET /user/{id}", wrap(d.getUser))
	mux.Handle("DELETE /user/{id}", wrap(d.deleteUser))

	mux.Handle("GET /cashiers", wrap(d.listCashiers))
	mux.Handle("GET /cashiers/{id}", wrap(d.getCashierShiftStats))
	mux.Handle("POST /cashiers/{id}/close-out", wrap(d.closeOutCashier))

	mux.Handle("GET /customers", wrap(d.listCustomers))

	return mux
}

// NewTerminalRouter builds the Terminal API surface of spec §6. The
// registration endpoint is unauthenticated (it consumes a one-shot
// registration uuid instead); everything else requires a valid terminal
// session.
func NewTerminalRouter(d *Deps) http.Handler {
	mux := http.NewServeMux()

	txOnly := []func(http.Handler) http.Handler{middleware.WithDBTransaction(d.Pool, false)}
	authed := []func(http.Handler) http.Handler{
		middleware.WithDBTransaction(d.Pool, false),
		middleware.RequiresTerminal(d.Issuer, d.Revocation),
	}
	if d.RateLimit != nil {
		authed = append(authed, middleware.RateLimitByTerminal(d.RateLimit))
	}

	mux.Handle("POST /auth/register_terminal", chain(d.registerTerminal, txOnly...))
	mux.Handle("POST /user/check-login", chain(d.checkUserLogin, authed...))
	mux.Handle("POST /user/login", chain(d.terminalUserLogin, authed...))
	mux.Handle("POST /user/logout", chain(d.terminalUserLogout, authed...))
	mux.Handle("POST /order", chain(d.createOrder, authed...))
	mux.Handle("POST /order/{id}/cancel", chain(d.cancelOrder, authed...))
	mux.Handle("GET /config", chain(d.terminalConfig, authed...))
	mux.Handle("GET /customer/{tag_uid}", chain(d.terminalCustomerLookup, authed...))

	return mux
}

// NewCustomerRouter builds the Customer Portal surface of spec §6. Login
// is rate-limited by IP since it is unauthenticated; every other route
// requires a customer session.
func NewCustomerRouter(d *Deps) http.Handler {
	mux := http.NewServeMux()

	loginChain := []func(http.Handler) http.Handler{middleware.WithDBTransaction(d.Pool, false)}
	if d.RateLimit != nil {
		loginChain = append(loginChain, middleware.RateLimitByIP(d.RateLimit))
	}
	authed := []func(http.Handler) http.Handler{
		middleware.WithDBTransaction(d.Pool, false),
		middleware.RequiresCustomer(d.Issuer, d.Revocation),
	}
	if d.RateLimit != nil {
		authed = append(authed, middleware.RateLimitByCustomer(d.RateLimit))
	}

	mux.Handle("POST /auth/login", chain(d.customerLogin, loginChain...))
	mux.Handle("GET /customer", chain(d.getCustomer, authed...))
	mux.Handle("GET /orders-with-bon", chain(d.customerOrdersWithBon, authed...))
	mux.Handle("GET /payout-info", chain(d.customerPayoutInfo, authed...))
	mux.Handle("GET /bon/{id}", chain(d.customerBon, authed...))
	mux.Handle("PUT /customer/info", chain(d.updateCustomerInfo, authed...))
	mux.Handle("POST /customer/donate-all", chain(d.customerDonateAll, authed...))

	return mux
}
