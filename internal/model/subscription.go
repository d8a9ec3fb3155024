package model

import "time"

// Plan identifies a paid tier. PlanNone means the user has never
// subscribed; a cancelled subscription keeps its last plan.
type Plan string

const (
	PlanNone    Plan = "none"
	PlanStarter Plan = "starter"
	PlanStudio  Plan = "studio"
)

// SubscriptionStatus is the local billing status vocabulary. Stripe's
// statuses are mapped onto it in the service layer.
type SubscriptionStatus string

const (
	StatusNone      SubscriptionStatus = "none"
	StatusActive    SubscriptionStatus = "active"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// BillingInterval is the renewal cadence of a plan.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalAnnual  BillingInterval = "annual"
)

// Subscription is the per-user account record holding current credit
// balances and billing-cycle metadata. At most one row per user.
//
// Plan credits (CreditsRemaining/CreditsTotal) reset each cycle, subject
// to rollover. Overage credits are bought separately, never expire and
// never count toward the rollover cap. Total spendable is
// CreditsRemaining + OverageCredits.
//
// Balances are mutated only through the atomic repository operations;
// no other code path writes them.
type Subscription struct {
	ID                   string             `db:"id" json:"id"`
	UserID               string             `db:"user_id" json:"user_id"`
	Plan                 Plan               `db:"plan" json:"plan"`
	Status               SubscriptionStatus `db:"status" json:"status"`
	CreditsRemaining     int                `db:"credits_remaining" json:"credits_remaining"`
	CreditsTotal         int                `db:"credits_total" json:"credits_total"`
	OverageCredits       int                `db:"overage_credits" json:"overage_credits"`
	RevisionCreditsUsed  int                `db:"revision_credits_used" json:"revision_credits_used"`
	RevisionCreditsTotal int                `db:"revision_credits_total" json:"revision_credits_total"`
	BillingInterval      BillingInterval    `db:"billing_interval" json:"billing_interval"`
	RolloverCap          int                `db:"rollover_cap" json:"rollover_cap"`
	CurrentPeriodStart   time.Time          `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd     time.Time          `db:"current_period_end" json:"current_period_end"`
	StripeCustomerID     *string            `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string            `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	CreatedAt            time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updated_at"`
}

// SpendableCredits returns the total the user may spend right now.
func (s *Subscription) SpendableCredits() int {
	return s.CreditsRemaining + s.OverageCredits
}

// RevisionCreditsRemaining returns how many revision slots are left in
// the current cycle.
func (s *Subscription) RevisionCreditsRemaining() int {
	return s.RevisionCreditsTotal - s.RevisionCreditsUsed
}
