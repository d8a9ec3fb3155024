package service

import (
	"app/internal/config"
	"app/internal/model"
)

// PlanSpec is what a subscription price resolves to: the plan tier, its
// cycle credit allocation, the rollover cap and the revision quota.
type PlanSpec struct {
	Plan            model.Plan
	Interval        model.BillingInterval
	Credits         int
	RolloverCap     int
	RevisionCredits int
}

// CreditPack is what a one-time-payment price resolves to.
type CreditPack struct {
	Name                 string
	Credits              int
	RequiresSubscription bool
}

// Catalog maps Stripe price IDs onto plan and credit-pack definitions.
// An unmapped price is a configuration error: the reconciler logs it
// and drops the event without crediting anything.
type Catalog struct {
	plans  map[string]PlanSpec
	packs  map[string]CreditPack
	prices map[model.Plan]map[model.BillingInterval]string
}

// NewCatalog builds the catalog from the configured price IDs.
func NewCatalog(cfg *config.Config) *Catalog {
	c := &Catalog{
		plans:  map[string]PlanSpec{},
		packs:  map[string]CreditPack{},
		prices: map[model.Plan]map[model.BillingInterval]string{},
	}
	add := func(priceID string, spec PlanSpec) {
		if priceID == "" {
			return
		}
		c.plans[priceID] = spec
		if c.prices[spec.Plan] == nil {
			c.prices[spec.Plan] = map[model.BillingInterval]string{}
		}
		c.prices[spec.Plan][spec.Interval] = priceID
	}
	add(cfg.StripePriceStarterMonthly, PlanSpec{Plan: model.PlanStarter, Interval: model.IntervalMonthly, Credits: 10, RolloverCap: 5, RevisionCredits: 2})
	add(cfg.StripePriceStarterAnnual, PlanSpec{Plan: model.PlanStarter, Interval: model.IntervalAnnual, Credits: 120, RolloverCap: 10, RevisionCredits: 2})
	add(cfg.StripePriceStudioMonthly, PlanSpec{Plan: model.PlanStudio, Interval: model.IntervalMonthly, Credits: 30, RolloverCap: 15, RevisionCredits: 5})
	add(cfg.StripePriceStudioAnnual, PlanSpec{Plan: model.PlanStudio, Interval: model.IntervalAnnual, Credits: 360, RolloverCap: 30, RevisionCredits: 5})

	if cfg.StripePricePackSmall != "" {
		c.packs[cfg.StripePricePackSmall] = CreditPack{Name: "small", Credits: 5, RequiresSubscription: false}
	}
	if cfg.StripePricePackLarge != "" {
		c.packs[cfg.StripePricePackLarge] = CreditPack{Name: "large", Credits: 20, RequiresSubscription: true}
	}
	return c
}

// PlanByPrice resolves a subscription price ID.
func (c *Catalog) PlanByPrice(priceID string) (PlanSpec, bool) {
	spec, ok := c.plans[priceID]
	return spec, ok
}

// PackByPrice resolves a one-time-payment price ID.
func (c *Catalog) PackByPrice(priceID string) (CreditPack, bool) {
	pack, ok := c.packs[priceID]
	return pack, ok
}

// PlanSpecFor returns the catalog entry for a plan and interval.
func (c *Catalog) PlanSpecFor(plan model.Plan, interval model.BillingInterval) (PlanSpec, bool) {
	priceID, ok := c.prices[plan][interval]
	if !ok {
		return PlanSpec{}, false
	}
	return c.plans[priceID], true
}

// PriceForPlan returns the configured price ID for a plan and interval.
func (c *Catalog) PriceForPlan(plan model.Plan, interval model.BillingInterval) (string, bool) {
	priceID, ok := c.prices[plan][interval]
	return priceID, ok && priceID != ""
}

// statusFromStripe is the exhaustive mapping from Stripe's subscription
// status vocabulary onto the local one.
var statusFromStripe = map[string]model.SubscriptionStatus{
	"active":             model.StatusActive,
	"trialing":           model.StatusActive,
	"past_due":           model.StatusPastDue,
	"unpaid":             model.StatusPastDue,
	"incomplete":         model.StatusPastDue,
	"canceled":           model.StatusCancelled,
	"incomplete_expired": model.StatusCancelled,
	"paused":             model.StatusCancelled,
}

// MapStripeStatus maps a Stripe subscription status to the local enum.
// Unrecognized statuses default to active, matching the historical
// behavior; the second return value lets callers log the unmapped value.
func MapStripeStatus(status string) (model.SubscriptionStatus, bool) {
	if s, ok := statusFromStripe[status]; ok {
		return s, true
	}
	return model.StatusActive, false
}
