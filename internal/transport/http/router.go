// Package httptransport is the thin HTTP layer. Handlers delegate to the
// domain services and never embed business logic.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veridoc/pkg/platform/middleware/auth"
	"veridoc/pkg/platform/middleware/device"
)

// HealthChecker reports whether a backing resource is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps bundles everything the router needs. Nil optional fields disable
// their routes' extra behavior, not the routes themselves.
type Deps struct {
	Registry  RegistryService
	Grants    GrantService
	Verifier  Verifier
	Documents *DocumentsHandler

	JWTValidator auth.JWTValidator
	Logger       *slog.Logger

	// Health is checked by the readiness probe; nil entries are skipped.
	Health []HealthChecker
}

// NewRouter wires all public endpoints.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registryHandler := NewRegistryHandler(deps.Registry, logger)
	grantsHandler := NewGrantsHandler(deps.Grants, logger)
	verifyHandler := NewVerifyHandler(deps.Verifier, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(device.Capture)

	// authenticated citizen surface
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(deps.JWTValidator, logger))

		r.Post("/documents/register", registryHandler.handleRegisterDocument)
		r.Post("/transactions/record", registryHandler.handleRecordTransaction)
		r.Post("/documents/package", deps.Documents.handlePackage)
		r.Post("/documents/{hash}/retrieve", deps.Documents.handleRetrieve)

		r.Post("/grants", grantsHandler.handleIssue)
		r.Post("/grants/revoke", grantsHandler.handleRevoke)
		r.Get("/grants", grantsHandler.handleList)
	})

	// admin review surface
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(deps.JWTValidator, logger))
		r.Use(auth.RequireRole(logger, "admin"))

		r.Get("/reports", registryHandler.handleListReports)
		r.Post("/reports/{id}/resolve", registryHandler.handleResolveReport)
	})

	// capability-token surface, no JWT
	r.Post("/verify/status", verifyHandler.handleVerifyStatus)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthHandler(deps.Health))

	return r
}

func healthHandler(checks []HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Health(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unhealthy"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
