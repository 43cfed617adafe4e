package api

import (
	"net/http"

	"github.com/stustapay/core/internal/apierrors"
	"github.com/stustapay/core/internal/middleware"
)

// getConfig returns the per-event settings view spec §2 calls the
// "Config/Settings View". It is read-only here; settings themselves are
// static configuration, not a database-mutable resource (see
// config.SettingsView's doc comment).
func (d *Deps) getConfig(w http.ResponseWriter, r *http.Request) {
	settings, ok := d.Settings.ForNode(currentNode(r))
	if !ok {
		middleware.WriteAPIError(w, apierrors.NotFound("no event settings for node %d", currentNode(r)))
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type tseDevice struct {
	ID     int64  `json:"id"`
	NodeID int64  `json:"node_id"`
	Name   string `json:"name"`
	Serial string `json:"serial"`
	Status string `json:"status"`
}

// listTSEDevices and createTSEDevice back the administrative /tse
// listing only; the core never talks to the signing unit itself (the TSE
// adapter is an external collaborator per spec §6).
func (d *Deps) listTSEDevices(w http.ResponseWriter, r *http.Request) {
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	rows, err := t.Query(r.Context(), `SELECT id, node_id, name, serial, status FROM tse_device WHERE node_id = $1 ORDER BY id`, currentNode(r))
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	defer rows.Close()
	var out []tseDevice
	for rows.Next() {
		var dev tseDevice
		if err := rows.Scan(&dev.ID, &dev.NodeID, &dev.Name, &dev.Serial, &dev.Status); err != nil {
			middleware.WriteAPIError(w, apierrors.Internal(err))
			return
		}
		out = append(out, dev)
	}
	writeList(w, len(out), out)
}

func (d *Deps) createTSEDevice(w http.ResponseWriter, r *http.Request) {
	var dev tseDevice
	if err := decodeJSON(r, &dev); err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	dev.NodeID = currentNode(r)
	if dev.Status == "" {
		dev.Status = "active"
	}
	t, err := tx(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}
	err = t.QueryRow(r.Context(), `
		INSERT INTO tse_device (node_id, name, serial, status) VALUES ($1, $2, $3, $4) RETURNING id`,
		dev.NodeID, dev.Name, dev.Serial, dev.Status).Scan(&dev.ID)
	if err != nil {
		middleware.WriteAPIError(w, apierrors.Internal(err))
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}
