// Package app assembles the HTTP router and readiness checks.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/pitchpractice/pitchpractice/internal/adapter/httpserver"
	"github.com/pitchpractice/pitchpractice/internal/adapter/observability"
	"github.com/pitchpractice/pitchpractice/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	// Security & instrumentation middleware
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(cfg.RequestTimeout))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/v1", func(v1 chi.Router) {
		// Webhook sits outside the identity middleware: the processor signs
		// the payload instead of sending a bearer token.
		v1.Post("/billing/webhook", srv.WebhookHandler())

		v1.Group(func(api chi.Router) {
			api.Use(srv.IdentityMiddleware)

			// Mutating endpoints are rate limited per IP.
			api.Group(func(wr chi.Router) {
				wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))

				wr.Post("/rubrics", srv.CreateRubricHandler())
				wr.Post("/rubrics/parse", srv.ParseRubricHandler())

				wr.Post("/runs", srv.CreateRunHandler())
				wr.Post("/runs/{id}/audio", srv.UploadRunAudioHandler())
				wr.Post("/runs/{id}/chunks", srv.AddRunChunkHandler())
				wr.Post("/runs/{id}/transcribe", srv.TranscribeRunHandler())
				wr.Post("/runs/{id}/analyze", srv.AnalyzeRunHandler())
				wr.Post("/runs/{id}/claim", srv.ClaimRunHandler())

				wr.Post("/billing/checkout", srv.CheckoutHandler())
				wr.Post("/billing/sync", srv.SyncHandler())
			})

			// Read-only endpoints
			api.Get("/rubrics", srv.ListRubricsHandler())
			api.Get("/rubrics/{id}", srv.GetRubricHandler())
			api.Get("/runs/{id}", srv.GetRunHandler())
			api.Get("/runs/{id}/audio-url", srv.RunAudioURLHandler())
			api.Get("/billing/entitlement", srv.EntitlementHandler())
			api.Get("/billing/stats", srv.PlanStatsHandler())
		})
	})

	// Health and metrics
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })
	r.Get("/readyz", srv.ReadyzHandler())

	return httpserver.SecurityHeaders(r)
}
