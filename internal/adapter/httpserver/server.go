package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pitchpractice/pitchpractice/internal/config"
	"github.com/pitchpractice/pitchpractice/internal/domain"
	"github.com/pitchpractice/pitchpractice/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg          config.Config
	Rubrics      usecase.RubricService
	Runs         usecase.RunService
	Analyze      usecase.AnalyzeService
	Billing      usecase.BillingService
	WebhookParse WebhookParser
	DBCheck      func(ctx context.Context) error
	StorageCheck func(ctx context.Context) error
	AICheck      func(ctx context.Context) error
}

// WebhookParser verifies a payment webhook payload and extracts the checkout
// session when the event is a completed checkout.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (domain.CheckoutSession, bool, error)
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, rubrics usecase.RubricService, runs usecase.RunService, analyze usecase.AnalyzeService, billing usecase.BillingService, webhooks WebhookParser, dbCheck, storageCheck, aiCheck func(context.Context) error) *Server {
	return &Server{
		Cfg:          cfg,
		Rubrics:      rubrics,
		Runs:         runs,
		Analyze:      analyze,
		Billing:      billing,
		WebhookParse: webhooks,
		DBCheck:      dbCheck,
		StorageCheck: storageCheck,
		AICheck:      aiCheck,
	}
}

// ReadyzHandler returns a readiness handler that probes the database, object
// storage, and the AI provider.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		probes := []struct {
			name string
			fn   func(context.Context) error
		}{
			{"db", s.DBCheck},
			{"storage", s.StorageCheck},
			{"ai", s.AICheck},
		}
		checks := make([]check, 0, len(probes))
		ok := true
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			if err := p.fn(ctx); err != nil {
				checks = append(checks, check{Name: p.name, OK: false, Details: err.Error()})
				ok = false
			} else {
				checks = append(checks, check{Name: p.name, OK: true})
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
