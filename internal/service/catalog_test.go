package service

import (
	"testing"

	"app/internal/config"
	"app/internal/model"
)

func testCatalogConfig() *config.Config {
	return &config.Config{
		StripePriceStarterMonthly: "price_starter_m",
		StripePriceStarterAnnual:  "price_starter_a",
		StripePriceStudioMonthly:  "price_studio_m",
		StripePriceStudioAnnual:   "price_studio_a",
		StripePricePackSmall:      "price_pack_small",
		StripePricePackLarge:      "price_pack_large",
	}
}

func TestCatalogPlanByPrice(t *testing.T) {
	c := NewCatalog(testCatalogConfig())

	spec, ok := c.PlanByPrice("price_starter_m")
	if !ok {
		t.Fatal("starter monthly price not resolved")
	}
	if spec.Plan != model.PlanStarter || spec.Credits != 10 || spec.RolloverCap != 5 || spec.RevisionCredits != 2 {
		t.Fatalf("unexpected starter monthly spec: %+v", spec)
	}

	spec, ok = c.PlanByPrice("price_studio_a")
	if !ok {
		t.Fatal("studio annual price not resolved")
	}
	if spec.Credits != 360 || spec.RolloverCap != 30 || spec.Interval != model.IntervalAnnual {
		t.Fatalf("unexpected studio annual spec: %+v", spec)
	}

	if _, ok := c.PlanByPrice("price_unknown"); ok {
		t.Fatal("unknown price should not resolve")
	}
}

func TestCatalogPackByPrice(t *testing.T) {
	c := NewCatalog(testCatalogConfig())

	pack, ok := c.PackByPrice("price_pack_small")
	if !ok || pack.Credits != 5 || pack.RequiresSubscription {
		t.Fatalf("unexpected small pack: %+v (ok=%v)", pack, ok)
	}
	pack, ok = c.PackByPrice("price_pack_large")
	if !ok || pack.Credits != 20 || !pack.RequiresSubscription {
		t.Fatalf("unexpected large pack: %+v (ok=%v)", pack, ok)
	}
}

func TestCatalogPriceForPlan(t *testing.T) {
	c := NewCatalog(testCatalogConfig())

	priceID, ok := c.PriceForPlan(model.PlanStudio, model.IntervalMonthly)
	if !ok || priceID != "price_studio_m" {
		t.Fatalf("got %q ok=%v", priceID, ok)
	}
	if _, ok := c.PriceForPlan(model.PlanNone, model.IntervalMonthly); ok {
		t.Fatal("plan none should have no price")
	}
}

// Unconfigured price IDs must not register empty-string mappings.
func TestCatalogSkipsEmptyPrices(t *testing.T) {
	c := NewCatalog(&config.Config{StripePriceStarterMonthly: "price_starter_m"})
	if _, ok := c.PlanByPrice(""); ok {
		t.Fatal("empty price id resolved to a plan")
	}
	if _, ok := c.PriceForPlan(model.PlanStudio, model.IntervalAnnual); ok {
		t.Fatal("unconfigured plan resolved to a price")
	}
}

func TestMapStripeStatus(t *testing.T) {
	cases := []struct {
		in        string
		want      model.SubscriptionStatus
		wantKnown bool
	}{
		{"active", model.StatusActive, true},
		{"trialing", model.StatusActive, true},
		{"past_due", model.StatusPastDue, true},
		{"unpaid", model.StatusPastDue, true},
		{"incomplete", model.StatusPastDue, true},
		{"canceled", model.StatusCancelled, true},
		{"incomplete_expired", model.StatusCancelled, true},
		{"paused", model.StatusCancelled, true},
		{"something_new", model.StatusActive, false},
	}
	for _, tc := range cases {
		got, known := MapStripeStatus(tc.in)
		if got != tc.want || known != tc.wantKnown {
			t.Errorf("MapStripeStatus(%q) = (%v, %v), want (%v, %v)", tc.in, got, known, tc.want, tc.wantKnown)
		}
	}
}
