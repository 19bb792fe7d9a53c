// Package stripe implements the checkout provider port on Stripe Checkout.
package stripe

import (
	"encoding/json"
	"errors"
	"fmt"

	stripelib "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/pitchpractice/pitchpractice/internal/config"
	"github.com/pitchpractice/pitchpractice/internal/domain"
)

// Provider creates and inspects Stripe Checkout sessions. Plan and identity
// travel in session metadata so the webhook and the sync endpoint can both
// reconstruct the purchase.
type Provider struct {
	sc            *client.API
	cfg           config.Config
	webhookSecret string
}

// New constructs a Provider with the configured secret key.
func New(cfg config.Config) *Provider {
	sc := &client.API{}
	sc.Init(cfg.StripeSecretKey, nil)
	return &Provider{sc: sc, cfg: cfg, webhookSecret: cfg.StripeWebhookSecret}
}

func (p *Provider) priceFor(plan domain.Plan) (string, error) {
	switch plan {
	case domain.PlanDaypass:
		return p.cfg.StripePriceDaypass, nil
	case domain.PlanStarter:
		return p.cfg.StripePriceStarter, nil
	case domain.PlanCoach:
		return p.cfg.StripePriceCoach, nil
	default:
		return "", fmt.Errorf("%w: plan %q is not purchasable", domain.ErrInvalidArgument, plan)
	}
}

// CreateCheckoutSession opens a one-time payment session for the plan.
func (p *Provider) CreateCheckoutSession(ctx domain.Context, plan domain.Plan, id domain.Identity) (domain.CheckoutSession, error) {
	price, err := p.priceFor(plan)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	md := map[string]string{
		"plan":       string(plan),
		"session_id": id.SessionID,
	}
	if id.UserID != nil {
		md["user_id"] = *id.UserID
	}
	params := &stripelib.CheckoutSessionParams{
		Mode:       stripelib.String(string(stripelib.CheckoutSessionModePayment)),
		SuccessURL: stripelib.String(p.cfg.CheckoutSuccessURL),
		CancelURL:  stripelib.String(p.cfg.CheckoutCancelURL),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{Price: stripelib.String(price), Quantity: stripelib.Int64(1)},
		},
		Metadata: md,
	}
	params.Context = ctx
	sess, err := p.sc.CheckoutSessions.New(params)
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("op=stripe.create_session: %w", err)
	}
	return fromStripeSession(sess), nil
}

// GetCheckoutSession fetches a session by id for the manual sync path.
func (p *Provider) GetCheckoutSession(ctx domain.Context, sessionID string) (domain.CheckoutSession, error) {
	params := &stripelib.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := p.sc.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("op=stripe.get_session: %w", domainErr(err))
	}
	return fromStripeSession(sess), nil
}

// ParseWebhook verifies the signature and extracts the checkout session from
// a checkout.session.completed event. Other event types return ok=false.
func (p *Provider) ParseWebhook(payload []byte, signature string) (domain.CheckoutSession, bool, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return domain.CheckoutSession{}, false, fmt.Errorf("%w: webhook signature verification failed", domain.ErrInvalidArgument)
	}
	if event.Type != "checkout.session.completed" {
		return domain.CheckoutSession{}, false, nil
	}
	var sess stripelib.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return domain.CheckoutSession{}, false, fmt.Errorf("%w: malformed webhook payload", domain.ErrInvalidArgument)
	}
	return fromStripeSession(&sess), true, nil
}

func fromStripeSession(sess *stripelib.CheckoutSession) domain.CheckoutSession {
	out := domain.CheckoutSession{
		ID:   sess.ID,
		URL:  sess.URL,
		Paid: sess.PaymentStatus == stripelib.CheckoutSessionPaymentStatusPaid,
	}
	if sess.Metadata != nil {
		out.Plan = domain.Plan(sess.Metadata["plan"])
		out.SessionID = sess.Metadata["session_id"]
		if uid, ok := sess.Metadata["user_id"]; ok && uid != "" {
			out.UserID = &uid
		}
	}
	return out
}

func domainErr(err error) error {
	var stripeErr *stripelib.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
		return domain.ErrNotFound
	}
	return err
}
