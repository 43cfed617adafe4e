// Package api wires the three HTTP surfaces of spec §6 (Administration,
// Terminal, Customer Portal) onto the service packages, using the shared
// middleware chain for transactions, authentication, and rate limiting.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/middleware"
	"github.com/stustapay/core/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeList writes a JSON array body and the Content-Range header spec §6
// requires on every list endpoint, naming the total row count.
func writeList(w http.ResponseWriter, count int, body interface{}) {
	w.Header().Set("Content-Range", fmt.Sprintf("%d", count))
	writeJSON(w, http.StatusOK, body)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierrors.InvalidArgument("malformed request body: %s", err.Error())
	}
	return nil
}

func tx(r *http.Request) (pgx.Tx, error) {
	t, err := middleware.Tx(r.Context())
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	return t, nil
}

func parseMoney(s string) (models.Money, error) {
	m, err := models.NewMoney(s)
	if err != nil {
		return models.Money{}, apierrors.InvalidArgument("%s", err.Error())
	}
	return m, nil
}
