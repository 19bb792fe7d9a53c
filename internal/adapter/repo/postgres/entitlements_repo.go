package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pitchpractice/pitchpractice/internal/domain"
)

// EntitlementRepo persists purchased plan entitlements.
type EntitlementRepo struct{ Pool PgxPool }

// NewEntitlementRepo constructs an EntitlementRepo with the given pool.
func NewEntitlementRepo(p PgxPool) *EntitlementRepo { return &EntitlementRepo{Pool: p} }

// UpsertByCheckoutSession records an entitlement keyed by the checkout
// session id. Replaying the same checkout session is a no-op update, so
// webhook delivery and manual sync can race safely.
func (r *EntitlementRepo) UpsertByCheckoutSession(ctx domain.Context, e domain.Entitlement) error {
	tracer := otel.Tracer("repo.entitlements")
	ctx, span := tracer.Start(ctx, "entitlements.UpsertByCheckoutSession")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "entitlements"),
	)
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO entitlements (id, user_id, session_id, plan, checkout_session_id, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (checkout_session_id) DO UPDATE SET
			user_id = COALESCE(entitlements.user_id, EXCLUDED.user_id),
			plan = EXCLUDED.plan,
			expires_at = EXCLUDED.expires_at`
	_, err := r.Pool.Exec(ctx, q, id, e.UserID, e.SessionID, e.Plan, e.CheckoutSessionID, e.ExpiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=entitlement.upsert: %w", err)
	}
	return nil
}

// ListActive returns unexpired entitlements belonging to the identity, by
// user id when authenticated and by anonymous session id otherwise.
func (r *EntitlementRepo) ListActive(ctx domain.Context, id domain.Identity, now time.Time) ([]domain.Entitlement, error) {
	tracer := otel.Tracer("repo.entitlements")
	ctx, span := tracer.Start(ctx, "entitlements.ListActive")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "entitlements"),
	)
	q := `SELECT id, user_id, session_id, plan, checkout_session_id, expires_at, created_at
		FROM entitlements
		WHERE (expires_at IS NULL OR expires_at > $3)
		AND (($1::text IS NOT NULL AND user_id = $1) OR ($1::text IS NULL AND session_id = $2))`
	rows, err := r.Pool.Query(ctx, q, id.UserID, id.SessionID, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("op=entitlement.list_active: %w", err)
	}
	defer rows.Close()
	var out []domain.Entitlement
	for rows.Next() {
		var e domain.Entitlement
		if err := rows.Scan(&e.ID, &e.UserID, &e.SessionID, &e.Plan, &e.CheckoutSessionID, &e.ExpiresAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=entitlement.list_active: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=entitlement.list_active: %w", err)
	}
	return out, nil
}

// CountByPlan returns entitlement counts per plan for ops dashboards.
func (r *EntitlementRepo) CountByPlan(ctx domain.Context) (map[domain.Plan]int64, error) {
	tracer := otel.Tracer("repo.entitlements")
	ctx, span := tracer.Start(ctx, "entitlements.CountByPlan")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "entitlements"),
	)
	q := `SELECT plan, COUNT(*) FROM entitlements GROUP BY plan`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=entitlement.count_by_plan: %w", err)
	}
	defer rows.Close()
	out := make(map[domain.Plan]int64)
	for rows.Next() {
		var plan string
		var n int64
		if err := rows.Scan(&plan, &n); err != nil {
			return nil, fmt.Errorf("op=entitlement.count_by_plan: %w", err)
		}
		out[domain.Plan(plan)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=entitlement.count_by_plan: %w", err)
	}
	return out, nil
}
