package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pitchpractice/pitchpractice/internal/domain"
)

type checkoutRequest struct {
	Plan string `json:"plan" validate:"required"`
}

// CheckoutHandler opens a payment session for a purchasable plan.
func (s *Server) CheckoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		sess, err := s.Billing.StartCheckout(r.Context(), IdentityFrom(r), domain.Plan(req.Plan))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"checkout_session_id": sess.ID, "url": sess.URL})
	}
}

type syncRequest struct {
	CheckoutSessionID string `json:"checkout_session_id" validate:"required"`
}

// SyncHandler lets the client reconcile a checkout session after redirect,
// covering webhook delivery delays.
func (s *Server) SyncHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req syncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		plan, err := s.Billing.Sync(r.Context(), IdentityFrom(r), req.CheckoutSessionID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"plan": string(plan)})
	}
}

// WebhookHandler receives payment processor events. The raw body is needed
// for signature verification, so this handler bypasses JSON decoding.
func (s *Server) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: read body: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		sess, ok, err := s.WebhookParse.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if !ok {
			// Unhandled event types are acknowledged so the processor stops retrying.
			writeJSON(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
		if err := s.Billing.ApplyCheckoutSession(r.Context(), sess); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}

// EntitlementHandler reports the caller's effective plan.
func (s *Server) EntitlementHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plan, err := s.Billing.Effective(r.Context(), IdentityFrom(r), time.Now().UTC())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"plan": string(plan)})
	}
}

// PlanStatsHandler exposes entitlement counts per plan for ops tooling.
func (s *Server) PlanStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := s.Billing.PlanCounts(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"plans": counts})
	}
}
