package api

import (
	"net/http"
	"strconv"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/middleware"
)

// nodeFromQuery implements spec §9's requires_node decorator for the
// Administration surface: node_id is always a query parameter there.
func nodeFromQuery(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("node_id")
	if raw == "" {
		return 0, apierrors.InvalidArgument("node_id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apierrors.InvalidArgument("node_id must be an integer")
	}
	return id, nil
}

// currentNode reads the node id RequiresNode already validated and
// attached to the request context.
func currentNode(r *http.Request) int64 {
	id, _ := middleware.NodeID(r.Context())
	return id
}
