package api

import (
	"net/http"

	"github.com/stacklok/globalconf-client/internal/status"
	"github.com/stacklok/globalconf-client/internal/sync/coordinator"
	"github.com/stacklok/globalconf-client/internal/versions"
)

// Routes holds the admin handlers and their dependencies
type Routes struct {
	coordinator coordinator.Coordinator
	tracker     *status.Tracker
}

// NewRoutes creates a new Routes instance
func NewRoutes(coord coordinator.Coordinator, tracker *status.Tracker) *Routes {
	return &Routes{
		coordinator: coord,
		tracker:     tracker,
	}
}

// execute handles GET|POST /execute. It runs the configuration client now, or joins the run in
// progress, and returns the resulting diagnostics status.
func (rr *Routes) execute(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, rr.coordinator.Trigger(r.Context()), http.StatusOK)
}

// status handles GET /status
func (rr *Routes) status(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, rr.tracker.Get(), http.StatusOK)
}

// health handles GET /health
func (*Routes) health(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, HealthResponse{Status: "healthy"}, http.StatusOK)
}

// readiness handles GET /readiness. The daemon is ready once a configuration has been
// downloaded successfully at least once.
func (rr *Routes) readiness(w http.ResponseWriter, _ *http.Request) {
	current := rr.tracker.Get()
	if current.LastSuccess == nil {
		writeJSONResponse(w, ErrorResponse{
			Error:      "global configuration not downloaded yet: " + current.Description,
			ReturnCode: current.ReturnCode,
		}, http.StatusServiceUnavailable)
		return
	}
	writeJSONResponse(w, ReadinessResponse{Status: "ready"}, http.StatusOK)
}

// version handles GET /version
func (*Routes) version(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
