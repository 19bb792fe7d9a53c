package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pitchpractice/pitchpractice/internal/adapter/observability"
	"github.com/pitchpractice/pitchpractice/internal/domain"
)

// daypassTTL bounds the daypass entitlement. Other plans do not expire here;
// the payment processor governs their lifecycle.
const daypassTTL = 24 * time.Hour

// BillingService handles checkout sessions and entitlement resolution.
type BillingService struct {
	Entitlements domain.EntitlementRepository
	Checkout     domain.CheckoutProvider
}

// NewBillingService constructs a BillingService with its dependencies.
func NewBillingService(ents domain.EntitlementRepository, checkout domain.CheckoutProvider) BillingService {
	return BillingService{Entitlements: ents, Checkout: checkout}
}

// StartCheckout opens a checkout session for a purchasable plan.
func (s BillingService) StartCheckout(ctx domain.Context, id domain.Identity, plan domain.Plan) (domain.CheckoutSession, error) {
	if !plan.Known() || plan == domain.PlanFree {
		return domain.CheckoutSession{}, fmt.Errorf("%w: plan %q is not purchasable", domain.ErrInvalidArgument, plan)
	}
	sess, err := s.Checkout.CreateCheckoutSession(ctx, plan, id)
	if err != nil {
		observability.CheckoutSessionsTotal.WithLabelValues(string(plan), "error").Inc()
		return domain.CheckoutSession{}, err
	}
	observability.CheckoutSessionsTotal.WithLabelValues(string(plan), "created").Inc()
	return sess, nil
}

// Sync fetches the checkout session from the processor and, when paid,
// records the entitlement. Safe to call repeatedly for the same session.
func (s BillingService) Sync(ctx domain.Context, id domain.Identity, checkoutSessionID string) (domain.Plan, error) {
	if checkoutSessionID == "" {
		return "", fmt.Errorf("%w: checkout session id required", domain.ErrInvalidArgument)
	}
	sess, err := s.Checkout.GetCheckoutSession(ctx, checkoutSessionID)
	if err != nil {
		return "", err
	}
	if sess.Paid {
		if err := s.ApplyCheckoutSession(ctx, sess); err != nil {
			return "", err
		}
	} else {
		slog.Info("checkout session not paid yet", slog.String("checkout_session_id", sess.ID))
	}
	return s.Effective(ctx, id, time.Now().UTC())
}

// ApplyCheckoutSession turns a paid checkout session into an entitlement.
// The upsert keys on the processor session id, so webhook delivery and
// client-driven sync converge on one row.
func (s BillingService) ApplyCheckoutSession(ctx domain.Context, sess domain.CheckoutSession) error {
	if !sess.Paid {
		return fmt.Errorf("%w: checkout session not paid", domain.ErrInvalidArgument)
	}
	e := domain.Entitlement{
		UserID:            sess.UserID,
		SessionID:         sess.SessionID,
		Plan:              sess.Plan,
		CheckoutSessionID: sess.ID,
		CreatedAt:         time.Now().UTC(),
	}
	if sess.Plan == domain.PlanDaypass {
		exp := time.Now().UTC().Add(daypassTTL)
		e.ExpiresAt = &exp
	}
	if err := s.Entitlements.UpsertByCheckoutSession(ctx, e); err != nil {
		observability.CheckoutSessionsTotal.WithLabelValues(string(sess.Plan), "error").Inc()
		return err
	}
	observability.CheckoutSessionsTotal.WithLabelValues(string(sess.Plan), "completed").Inc()
	slog.Info("entitlement recorded", slog.String("checkout_session_id", sess.ID), slog.String("plan", string(sess.Plan)))
	return nil
}

// Effective resolves the caller's plan: the highest-ranked active
// entitlement, defaulting to free.
func (s BillingService) Effective(ctx domain.Context, id domain.Identity, now time.Time) (domain.Plan, error) {
	ents, err := s.Entitlements.ListActive(ctx, id, now)
	if err != nil {
		return "", err
	}
	return domain.EffectivePlan(ents, now), nil
}

// PlanCounts aggregates entitlements per plan for the ops stats endpoint.
func (s BillingService) PlanCounts(ctx domain.Context) (map[domain.Plan]int64, error) {
	return s.Entitlements.CountByPlan(ctx)
}
