package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/infra/observability"
	"github.com/boddenberg/securebank-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Options carries router settings that come from configuration.
type Options struct {
	// ResetUniformResponse hides whether a forgot-password email is
	// registered.
	ResetUniformResponse bool
	// Checks are run by /healthz and /readyz, keyed by dependency name.
	Checks map[string]HealthCheck
}

// NewRouter creates the HTTP router with all routes and middleware.
// A nil service leaves its routes answering 503.
func NewRouter(authSvc *service.AuthService, bankSvc *service.BankingService, opts Options, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger, metrics))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(opts.Checks))
	r.Get("/readyz", readyzHandler(opts.Checks, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if authSvc == nil || bankSvc == nil {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "service unavailable")
			}))
			return
		}

		// =============================================
		// Authentication
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			// Public routes
			r.Post("/register", authRegisterHandler(authSvc, logger))
			r.Get("/confirm/{token}", authConfirmHandler(authSvc, logger))
			r.Post("/login", authLoginHandler(authSvc, logger))
			r.Post("/password/forgot", authForgotPasswordHandler(authSvc, opts.ResetUniformResponse, logger))
			r.Post("/password/reset/{token}", authResetPasswordHandler(authSvc, logger))

			// Protected routes
			r.Group(func(r chi.Router) {
				r.Use(SessionMiddleware(authSvc, logger))
				r.Post("/logout", authLogoutHandler(authSvc, logger))
				r.Put("/password", authChangePasswordHandler(authSvc, logger))
			})
		})

		// =============================================
		// Account (protected)
		// =============================================
		r.Route("/account", func(r chi.Router) {
			r.Use(SessionMiddleware(authSvc, logger))
			r.Get("/", accountSummaryHandler(bankSvc, logger))
			r.Get("/history", accountHistoryHandler(bankSvc, logger))
			r.Post("/deposit", depositHandler(bankSvc, logger))
			r.Post("/withdraw", withdrawHandler(bankSvc, logger))
			r.Post("/withdraw/verify", verifyWithdrawalHandler(bankSvc, logger))
		})

		// =============================================
		// Ops
		// =============================================
		r.Get("/ops/stats", opsStatsHandler(bankSvc, logger))
	})

	return r
}

// ============================================================
// Health — GET /healthz, GET /readyz
// ============================================================

func healthzHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := runChecks(r.Context(), checks)

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overallStatus = "degraded"
				break
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler(checks map[string]HealthCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, s := range runChecks(r.Context(), checks) {
			if s.Status != "healthy" {
				logger.Warn("not ready", zap.String("dependency", s.Name), zap.String("detail", s.Detail))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "dependency": s.Name})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func runChecks(ctx context.Context, checks map[string]HealthCheck) []domain.ServiceHealth {
	now := time.Now().Format(time.RFC3339)
	services := []domain.ServiceHealth{
		{Name: "securebank-api", Status: "healthy", LastChecked: now},
	}

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		start := time.Now()
		err := checks[name](checkCtx)
		cancel()

		sh := domain.ServiceHealth{
			Name:        name,
			Status:      "healthy",
			LatencyMs:   time.Since(start).Milliseconds(),
			LastChecked: now,
		}
		if err != nil {
			sh.Status = "unhealthy"
			sh.Detail = err.Error()
		}
		services = append(services, sh)
	}
	return services
}
