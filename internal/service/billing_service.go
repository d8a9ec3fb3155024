package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// fallbackPeriod is used when the processor object carries no billing
// period bounds (legacy payload shapes).
const fallbackPeriod = 30 * 24 * time.Hour

// CheckoutCompletedEvent is a parsed checkout.session.completed event.
// Mode distinguishes subscription checkouts from one-time credit packs.
type CheckoutCompletedEvent struct {
	EventID              string
	UserID               string
	Mode                 string // "subscription" or "payment"
	PriceID              string
	StripeCustomerID     string
	StripeSubscriptionID string
	PeriodStart          time.Time // zero when absent from the payload
	PeriodEnd            time.Time
}

// SubscriptionUpdatedEvent is a parsed customer.subscription.updated event.
type SubscriptionUpdatedEvent struct {
	EventID           string
	UserID            string
	PriceID           string
	StripeStatus      string
	CancelAtPeriodEnd bool
	PeriodStart       time.Time
	PeriodEnd         time.Time
}

// InvoicePaidEvent is a parsed invoice.payment_succeeded event.
type InvoicePaidEvent struct {
	EventID       string
	UserID        string
	PriceID       string
	BillingReason string
	PeriodStart   time.Time
	PeriodEnd     time.Time
}

// BillingService is the event reconciler: it translates verified
// processor events into account-record transitions plus ledger entries.
// Each handler applies its whole effect in one store transaction keyed
// by the event id; duplicate deliveries are silent no-ops.
type BillingService interface {
	HandleCheckoutCompleted(ctx context.Context, ev CheckoutCompletedEvent) error
	HandleSubscriptionUpdated(ctx context.Context, ev SubscriptionUpdatedEvent) error
	HandleSubscriptionDeleted(ctx context.Context, eventID, userID string) error
	HandleInvoicePaid(ctx context.Context, ev InvoicePaidEvent) error
	HandleInvoiceFailed(ctx context.Context, eventID, userID string) error
}

type billingService struct {
	repo     repository.BillingRepository
	subRepo  repository.SubscriptionRepository
	userRepo repository.UserRepository
	catalog  *Catalog
	email    EmailService
	logger   zerolog.Logger
}

// NewBillingService creates a new BillingService with a scoped logger.
func NewBillingService(
	repo repository.BillingRepository,
	subRepo repository.SubscriptionRepository,
	userRepo repository.UserRepository,
	catalog *Catalog,
	email EmailService,
	logger zerolog.Logger,
) BillingService {
	return &billingService{
		repo:     repo,
		subRepo:  subRepo,
		userRepo: userRepo,
		catalog:  catalog,
		email:    email,
		logger:   logger.With().Str("service", "BillingService").Logger(),
	}
}

// periodOrFallback applies the fixed 30-day window when the processor
// object had no period fields.
func periodOrFallback(start, end time.Time) (time.Time, time.Time) {
	if start.IsZero() || end.IsZero() {
		now := time.Now().UTC()
		return now, now.Add(fallbackPeriod)
	}
	return start, end
}

func (s *billingService) HandleCheckoutCompleted(ctx context.Context, ev CheckoutCompletedEvent) error {
	if ev.Mode == "payment" {
		return s.handlePackPurchase(ctx, ev)
	}

	spec, ok := s.catalog.PlanByPrice(ev.PriceID)
	if !ok {
		// Configuration error, not a user error: nothing is credited
		// and the event is acknowledged so the processor stops retrying.
		s.logger.Error().Str("event_id", ev.EventID).Str("price_id", ev.PriceID).
			Msg("Checkout completed with unmapped price; dropping event without crediting")
		return nil
	}

	start, end := periodOrFallback(ev.PeriodStart, ev.PeriodEnd)
	err := s.repo.ActivateSubscription(ctx, ev.EventID, repository.ActivateSubscriptionParams{
		UserID:               ev.UserID,
		Plan:                 spec.Plan,
		Interval:             spec.Interval,
		Credits:              spec.Credits,
		RolloverCap:          spec.RolloverCap,
		RevisionCreditsTotal: spec.RevisionCredits,
		PeriodStart:          start,
		PeriodEnd:            end,
		StripeCustomerID:     ev.StripeCustomerID,
		StripeSubscriptionID: ev.StripeSubscriptionID,
	})
	if errors.Is(err, repository.ErrEventAlreadyProcessed) {
		s.logger.Info().Str("event_id", ev.EventID).Msg("Duplicate checkout event ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("activate subscription for user %s: %w", ev.UserID, err)
	}
	s.logger.Info().Str("user_id", ev.UserID).Str("plan", string(spec.Plan)).
		Int("credits", spec.Credits).Msg("Subscription activated")
	return nil
}

func (s *billingService) handlePackPurchase(ctx context.Context, ev CheckoutCompletedEvent) error {
	pack, ok := s.catalog.PackByPrice(ev.PriceID)
	if !ok {
		s.logger.Error().Str("event_id", ev.EventID).Str("price_id", ev.PriceID).
			Msg("One-time payment with unmapped price; dropping event without crediting")
		return nil
	}

	err := s.repo.AddOverageCredits(ctx, ev.EventID, repository.OverageParams{
		UserID:           ev.UserID,
		Credits:          pack.Credits,
		Description:      fmt.Sprintf("Purchased %s credit pack (%d credits)", pack.Name, pack.Credits),
		CreateWallet:     !pack.RequiresSubscription,
		StripeCustomerID: ev.StripeCustomerID,
	})
	switch {
	case errors.Is(err, repository.ErrEventAlreadyProcessed):
		s.logger.Info().Str("event_id", ev.EventID).Msg("Duplicate purchase event ignored")
		return nil
	case errors.Is(err, repository.ErrSubscriptionNotFound):
		// The pack requires a subscription the user does not have.
		// Retrying cannot fix this, so acknowledge and log loudly.
		s.logger.Error().Str("event_id", ev.EventID).Str("user_id", ev.UserID).
			Str("pack", pack.Name).Msg("Credit pack requires a subscription but none exists; dropping event")
		return nil
	case err != nil:
		return fmt.Errorf("add overage credits for user %s: %w", ev.UserID, err)
	}
	s.logger.Info().Str("user_id", ev.UserID).Int("credits", pack.Credits).Msg("Overage credits added")
	return nil
}

func (s *billingService) HandleSubscriptionUpdated(ctx context.Context, ev SubscriptionUpdatedEvent) error {
	status, known := MapStripeStatus(ev.StripeStatus)
	if !known {
		s.logger.Warn().Str("event_id", ev.EventID).Str("stripe_status", ev.StripeStatus).
			Msg("Unmapped Stripe subscription status; defaulting to active")
	}
	if ev.CancelAtPeriodEnd {
		status = model.StatusCancelled
	}

	spec, specKnown := s.catalog.PlanByPrice(ev.PriceID)
	if !specKnown {
		s.logger.Error().Str("event_id", ev.EventID).Str("price_id", ev.PriceID).
			Msg("Subscription updated with unmapped price; dropping event")
		return nil
	}

	// Plan change is detected against the stored record; a mid-cycle
	// switch forfeits unused credits (no proration, by policy).
	current, err := s.subRepo.GetSubscription(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("fetch subscription for update: %w", err)
	}
	if current == nil {
		// Out-of-order delivery: the checkout event may still be in
		// flight, so fail and let the processor redeliver.
		return fmt.Errorf("subscription update for user %s before activation: %w", ev.UserID, repository.ErrSubscriptionNotFound)
	}

	start, end := periodOrFallback(ev.PeriodStart, ev.PeriodEnd)
	err = s.repo.UpdateSubscription(ctx, ev.EventID, repository.UpdateSubscriptionParams{
		UserID:               ev.UserID,
		Status:               status,
		PeriodStart:          start,
		PeriodEnd:            end,
		PlanChanged:          current.Plan != spec.Plan || current.BillingInterval != spec.Interval,
		Plan:                 spec.Plan,
		Interval:             spec.Interval,
		Credits:              spec.Credits,
		RolloverCap:          spec.RolloverCap,
		RevisionCreditsTotal: spec.RevisionCredits,
	})
	if errors.Is(err, repository.ErrEventAlreadyProcessed) {
		s.logger.Info().Str("event_id", ev.EventID).Msg("Duplicate subscription update ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("update subscription for user %s: %w", ev.UserID, err)
	}
	return nil
}

func (s *billingService) HandleSubscriptionDeleted(ctx context.Context, eventID, userID string) error {
	err := s.repo.CancelSubscription(ctx, eventID, userID)
	if errors.Is(err, repository.ErrEventAlreadyProcessed) {
		s.logger.Info().Str("event_id", eventID).Msg("Duplicate subscription deletion ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("cancel subscription for user %s: %w", userID, err)
	}
	s.logger.Info().Str("user_id", userID).Msg("Subscription cancelled; balances left spendable")
	return nil
}

func (s *billingService) HandleInvoicePaid(ctx context.Context, ev InvoicePaidEvent) error {
	// Only cycle renewals grant here; the initial invoice's grant
	// already happened at checkout.
	if ev.BillingReason != "subscription_cycle" {
		s.logger.Debug().Str("event_id", ev.EventID).Str("billing_reason", ev.BillingReason).
			Msg("Invoice is not a cycle renewal; skipping")
		return nil
	}

	spec, ok := s.catalog.PlanByPrice(ev.PriceID)
	if !ok {
		s.logger.Error().Str("event_id", ev.EventID).Str("price_id", ev.PriceID).
			Msg("Renewal invoice with unmapped price; dropping event without crediting")
		return nil
	}

	start, end := periodOrFallback(ev.PeriodStart, ev.PeriodEnd)
	err := s.repo.ApplyRenewal(ctx, ev.EventID, repository.RenewalParams{
		UserID:      ev.UserID,
		PlanCredits: spec.Credits,
		PeriodStart: start,
		PeriodEnd:   end,
	})
	if errors.Is(err, repository.ErrEventAlreadyProcessed) {
		s.logger.Info().Str("event_id", ev.EventID).Msg("Duplicate renewal invoice ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply renewal for user %s: %w", ev.UserID, err)
	}
	s.logger.Info().Str("user_id", ev.UserID).Int("credits", spec.Credits).Msg("Billing cycle renewed")
	return nil
}

func (s *billingService) HandleInvoiceFailed(ctx context.Context, eventID, userID string) error {
	err := s.repo.MarkPastDue(ctx, eventID, userID)
	if errors.Is(err, repository.ErrEventAlreadyProcessed) {
		s.logger.Info().Str("event_id", eventID).Msg("Duplicate payment failure ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark past_due for user %s: %w", userID, err)
	}

	// The notice is best-effort and decoupled from the transaction:
	// its failure never fails or retries the webhook.
	s.notifyPaymentFailed(userID)
	return nil
}

func (s *billingService) notifyPaymentFailed(userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		user, err := s.userRepo.GetUserByID(ctx, userID)
		if err != nil || user == nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("Could not load user for payment-failed notice")
			return
		}
		if err := s.email.SendPaymentFailed(ctx, user.Email, user.Name); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("Payment-failed notice not sent")
		}
	}()
}
