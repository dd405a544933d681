package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/credit-features-bfa-go/internal/domain"
	"github.com/boddenberg/credit-features-bfa-go/internal/infra/observability"
	"github.com/boddenberg/credit-features-bfa-go/internal/service"
)

var tracer = otel.Tracer("handler")

const defaultMaxBodyBytes = 1 << 20

// Options configure the HTTP surface.
type Options struct {
	// JWTSecret enables the bearer-token guard on /v1 when non-empty.
	JWTSecret      string
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc *service.Scoring, metrics *observability.Metrics, logger *zap.Logger, opts Options) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc))
	r.Get("/readyz", readyzHandler(svc))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if opts.JWTSecret != "" {
			r.Use(ServiceTokenMiddleware([]byte(opts.JWTSecret), logger))
		}

		if svc == nil {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "scoring service unavailable")
			}))
			return
		}

		// Feature derivation & prediction
		r.Post("/features", featuresHandler(svc, opts.MaxBodyBytes, logger))
		r.Post("/predict", predictHandler(svc, opts.MaxBodyBytes, logger))
		r.Post("/predict/batch", predictBatchHandler(svc, opts.MaxBodyBytes, logger))

		// Snapshot source
		r.Get("/customers/{customerId}/score", scoreCustomerHandler(svc, logger))
		r.Put("/customers/{customerId}/snapshot", saveSnapshotHandler(svc, opts.MaxBodyBytes, logger))

		r.Get("/metrics/scoring", scoringMetricsHandler(metrics))
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(svc *service.Scoring) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := domain.HealthStatus{
			Status:   "healthy",
			Services: []domain.ServiceHealth{{Name: "scorer-api", Status: "healthy"}},
		}
		if svc != nil {
			status = svc.Health(r.Context())
		}

		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}

func readyzHandler(svc *service.Scoring) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{
			"status":    "ready",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if svc != nil {
			body["model"] = svc.ModelName()
			body["backend"] = svc.Backend()
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func scoringMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetScoringSnapshot())
	}
}
