package handlers

import (
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleetfusion/internal/db"
	"github.com/ukydev/fleetfusion/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Controller is the simulator surface exposed over HTTP.
type Controller interface {
	Snapshot() models.Snapshot
	ExecuteFix() bool
	DismissOpportunity() bool
}

// ActionResponse reports whether an operator action changed anything.
type ActionResponse struct {
	Accepted bool `json:"accepted"`
}

// FleetHandler serves the simulator snapshot and operator actions.
type FleetHandler struct {
	ctrl Controller
}

// NewFleetHandler creates a handler bound to ctrl.
func NewFleetHandler(ctrl Controller) *FleetHandler {
	return &FleetHandler{ctrl: ctrl}
}

// Snapshot returns the current trucks, agent log and opportunity.
func (h *FleetHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

// Execute dispatches the relief for the active opportunity.
func (h *FleetHandler) Execute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	accepted := h.ctrl.ExecuteFix()
	log.WithField("accepted", accepted).Info("Arbitrage execution requested")
	writeJSON(w, http.StatusOK, ActionResponse{Accepted: accepted})
}

// Dismiss closes the active opportunity without acting on it.
func (h *FleetHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	accepted := h.ctrl.DismissOpportunity()
	log.WithField("accepted", accepted).Info("Arbitrage dismissal requested")
	writeJSON(w, http.StatusOK, ActionResponse{Accepted: accepted})
}

// Health reports liveness and the simulator phase.
func (h *FleetHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"phase":  string(h.ctrl.Snapshot().Phase),
	})
}

// ArchiveHandler lists agent events exported to MongoDB.
type ArchiveHandler struct {
	events db.EventCollection
}

// NewArchiveHandler creates a handler over the archived events.
func NewArchiveHandler(events db.EventCollection) *ArchiveHandler {
	return &ArchiveHandler{events: events}
}

// Events returns archived events newest first, optionally filtered by
// ?type= and capped by ?limit= (default 50).
func (h *ArchiveHandler) Events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := int64(50)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	filter := bson.M{}
	if typ := r.URL.Query().Get("type"); typ != "" {
		filter["type"] = typ
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cursor, err := h.events.FindEvents(r.Context(), filter, opts)
	if err != nil {
		log.WithError(err).Error("Failed to query archived events")
		http.Error(w, "Failed to query archive", http.StatusInternalServerError)
		return
	}
	defer cursor.Close(r.Context())

	events := []models.AgentEvent{}
	if err := cursor.All(r.Context(), &events); err != nil {
		log.WithError(err).Error("Failed to decode archived events")
		http.Error(w, "Failed to decode archive", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
