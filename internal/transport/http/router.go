// Package httptransport is the thin HTTP layer over the coordinator,
// reconciler, and linker. Handlers parse and validate transport inputs, then
// delegate; no business logic lives here.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custodia/internal/platform/middleware"
	"custodia/pkg/platform/httputil"
)

// NewRouter wires all public endpoints behind the shared middleware chain.
func NewRouter(
	registrations *RegistrationHandler,
	access *AccessHandler,
	cases *CaseHandler,
	logger *slog.Logger,
	requestTimeout time.Duration,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(requestTimeout))

	r.Post("/upload", registrations.handleUpload)

	r.Get("/evidence", access.handleAllEvidence)
	r.Get("/accessibleEvidence", access.handleAccessibleEvidence)
	r.Get("/evidence/{id}/access/{principal}", access.handleCheckAccess)
	r.Get("/evidence/{id}/{principal}", access.handleGetEvidence)
	r.Post("/grantAccess", access.handleGrantAccess)
	r.Post("/revokeAccess", access.handleRevokeAccess)
	r.Get("/logs/{id}", access.handleEventLog)
	r.Get("/roles/{principal}", access.handleGetRole)
	r.Post("/assignRole", access.handleAssignRole)

	r.Post("/createCase", cases.handleCreateCase)
	r.Get("/cases", cases.handleListCases)
	r.Get("/case/{id}", cases.handleGetCase)
	r.Post("/addEvidenceToCase", cases.handleAddEvidenceToCase)
	r.Get("/userEvidence", cases.handleUserEvidence)

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
