package domain

import "time"

// Plan is a paid feature tier.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanDaypass Plan = "daypass"
	PlanStarter Plan = "starter"
	PlanCoach   Plan = "coach"
)

// planRank is the total order over plans: coach > starter > daypass > free.
// Unknown plan values rank as free; defaulting down is deliberate product
// policy, not an error.
var planRank = map[Plan]int{
	PlanFree:    0,
	PlanDaypass: 1,
	PlanStarter: 2,
	PlanCoach:   3,
}

// Rank returns the plan's position in the priority order; unknown plans rank
// as free.
func (p Plan) Rank() int { return planRank[p] }

// Known reports whether p is one of the defined tiers.
func (p Plan) Known() bool { _, ok := planRank[p]; return ok }

// HigherPlan returns the plan that wins by priority.
func HigherPlan(a, b Plan) Plan {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Entitlement grants a user or anonymous session access to a plan,
// optionally time-limited.
type Entitlement struct {
	ID                string
	UserID            *string
	SessionID         string
	Plan              Plan
	CheckoutSessionID string
	ExpiresAt         *time.Time
	CreatedAt         time.Time
}

// Active reports whether the entitlement is in effect at the given time.
func (e Entitlement) Active(now time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

// EffectivePlan folds entitlements into the single plan that applies,
// defaulting to free.
func EffectivePlan(ents []Entitlement, now time.Time) Plan {
	plan := PlanFree
	for _, e := range ents {
		if e.Active(now) {
			plan = HigherPlan(plan, e.Plan)
		}
	}
	return plan
}
