package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"app/internal/config"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	billingsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeService owns the Stripe integration: checkout/portal sessions,
// customer records, and the inbound webhook. Webhook handling verifies
// the signature, parses the payload, fetches any supplementary Stripe
// data *before* any transaction, and hands a typed event to the
// reconciler.
type StripeService struct {
	cfg        *config.Config
	userRepo   repository.UserRepository
	eventRepo  repository.EventRepository
	billingSvc BillingService
	catalog    *Catalog
	logger     zerolog.Logger
}

// NewStripeService initializes the Stripe key and returns the service
// with a scoped logger.
func NewStripeService(cfg *config.Config, userRepo repository.UserRepository, eventRepo repository.EventRepository, billingSvc BillingService, catalog *Catalog, logger zerolog.Logger) *StripeService {
	stripe.Key = cfg.StripeSecretKey
	return &StripeService{
		cfg:        cfg,
		userRepo:   userRepo,
		eventRepo:  eventRepo,
		billingSvc: billingSvc,
		catalog:    catalog,
		logger:     logger.With().Str("service", "StripeService").Logger(),
	}
}

// getUserIDFromEvent resolves the user from webhook metadata, falling
// back to a customer-id lookup.
func (s *StripeService) getUserIDFromEvent(ctx context.Context, metadata map[string]string, customerID string) (string, error) {
	if userID, ok := metadata["user_id"]; ok && userID != "" {
		return userID, nil
	}
	if customerID == "" {
		return "", errors.New("cannot determine user: missing metadata and customer id")
	}
	s.logger.Warn().Str("stripe_customer_id", customerID).Msg("Missing user_id metadata; looking up user by customer ID")
	u, err := s.userRepo.GetUserByStripeCustomerID(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("failed to lookup user by Stripe customer ID: %w", err)
	}
	if u == nil {
		return "", fmt.Errorf("no user found for customer ID: %s", customerID)
	}
	return u.UserID, nil
}

// GetOrCreateCustomer ensures a Stripe Customer exists for a user.
func (s *StripeService) GetOrCreateCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	s.logger.Warn().Str("user_id", user.UserID).Msg("No Stripe customer ID found, creating customer as fallback")
	return s.CreateCustomer(ctx, user)
}

// CreateCustomer creates a new Stripe customer for a user.
func (s *StripeService) CreateCustomer(ctx context.Context, user *model.User) (string, error) {
	params := &stripe.CustomerParams{
		Email:    stripe.String(user.Email),
		Name:     stripe.String(user.Name),
		Metadata: map[string]string{"user_id": user.UserID},
	}
	cust, err := customerpkg.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to create Stripe customer")
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.userRepo.UpdateStripeCustomerID(ctx, user.UserID, cust.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to store stripe customer id")
		return "", fmt.Errorf("store stripe customer id: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession creates a subscription-mode Checkout session.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, userID string, plan model.Plan, interval model.BillingInterval) (string, error) {
	priceID, ok := s.catalog.PriceForPlan(plan, interval)
	if !ok {
		return "", fmt.Errorf("no price configured for plan %s (%s)", plan, interval)
	}
	customerID, err := s.customerForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	sessParams := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{{Price: stripe.String(priceID), Quantity: stripe.Int64(1)}},
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:         stripe.String(s.cfg.StripePortalReturnURL + "?status=success"),
		CancelURL:          stripe.String(s.cfg.StripePortalReturnURL + "?status=cancel"),
		Metadata:           map[string]string{"user_id": userID},
	}
	sess, err := checkoutsession.New(sessParams)
	if err != nil {
		s.logger.Error().Err(err).Str("price_id", priceID).Msg("Failed to create Stripe checkout session")
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreatePackCheckoutSession creates a one-time-payment Checkout session
// for a credit pack. The price id is carried in the session metadata so
// the webhook can resolve the pack without another API call.
func (s *StripeService) CreatePackCheckoutSession(ctx context.Context, userID, pack string) (string, error) {
	var priceID string
	switch pack {
	case "small":
		priceID = s.cfg.StripePricePackSmall
	case "large":
		priceID = s.cfg.StripePricePackLarge
	default:
		return "", fmt.Errorf("invalid credit pack: %s", pack)
	}
	if priceID == "" {
		return "", fmt.Errorf("no price configured for credit pack %s", pack)
	}
	customerID, err := s.customerForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	sessParams := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{{Price: stripe.String(priceID), Quantity: stripe.Int64(1)}},
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(s.cfg.StripePortalReturnURL + "?status=success"),
		CancelURL:          stripe.String(s.cfg.StripePortalReturnURL + "?status=cancel"),
		Metadata:           map[string]string{"user_id": userID, "price_id": priceID},
	}
	sess, err := checkoutsession.New(sessParams)
	if err != nil {
		s.logger.Error().Err(err).Str("price_id", priceID).Msg("Failed to create pack checkout session")
		return "", fmt.Errorf("create pack checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreatePortalSession creates a Stripe Customer Portal session.
func (s *StripeService) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if user == nil || user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", fmt.Errorf("no stripe customer for user: %s", userID)
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*user.StripeCustomerID),
		ReturnURL: stripe.String(s.cfg.StripePortalReturnURL),
	}
	sess, err := billingsession.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create Stripe billing portal session")
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *StripeService) customerForUser(ctx context.Context, userID string) (string, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if user == nil {
		return "", fmt.Errorf("user not found: %s", userID)
	}
	return s.GetOrCreateCustomer(ctx, user)
}

// HandleWebhook processes Stripe webhook events. 200 means accepted
// (including idempotent no-ops and dropped configuration errors);
// non-2xx makes Stripe retry with its own backoff.
func (s *StripeService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read Stripe webhook payload")
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sig, s.cfg.StripeWebhookSecret)
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for Stripe webhook")
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}
	s.logger.Info().Str("event_id", event.ID).Str("event_type", string(event.Type)).Msg("Stripe webhook received")

	ctx := r.Context()

	// Fast-path for redeliveries: skips the Stripe API fetches below.
	// Best-effort only; the transactional claim remains the authority.
	if done, err := s.eventRepo.IsProcessed(ctx, event.ID); err == nil && done {
		s.logger.Info().Str("event_id", event.ID).Msg("Event already processed; acknowledging redelivery")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"received": true})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		err = s.handleCheckoutCompleted(ctx, &event)
	case "customer.subscription.updated":
		err = s.handleSubscriptionUpdated(ctx, &event)
	case "customer.subscription.deleted":
		err = s.handleSubscriptionDeleted(ctx, &event)
	case "invoice.payment_succeeded":
		err = s.handleInvoicePaid(ctx, &event)
	case "invoice.payment_failed":
		err = s.handleInvoiceFailed(ctx, &event)
	default:
		s.logger.Warn().Str("event_type", string(event.Type)).Msg("Unhandled Stripe webhook event")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("event_id", event.ID).Str("event_type", string(event.Type)).
			Msg("Failed to process Stripe webhook event")
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"received": true})
}

func (s *StripeService) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) error {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return fmt.Errorf("invalid checkout.session payload: %w", err)
	}
	userID, err := s.getUserIDFromEvent(ctx, cs.Metadata, customerID(cs.Customer))
	if err != nil {
		return fmt.Errorf("identify user for checkout session: %w", err)
	}

	ev := CheckoutCompletedEvent{
		EventID:          event.ID,
		UserID:           userID,
		StripeCustomerID: customerID(cs.Customer),
	}

	if cs.Mode == stripe.CheckoutSessionModePayment {
		ev.Mode = "payment"
		ev.PriceID = cs.Metadata["price_id"]
		if ev.PriceID == "" {
			// Session not created by us; fall back to the line items.
			it := checkoutsession.ListLineItems(&stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(cs.ID)})
			for it.Next() {
				if li := it.LineItem(); li.Price != nil {
					ev.PriceID = li.Price.ID
					break
				}
			}
			if err := it.Err(); err != nil {
				return fmt.Errorf("list line items for session %s: %w", cs.ID, err)
			}
		}
		return s.billingSvc.HandleCheckoutCompleted(ctx, ev)
	}

	if cs.Subscription == nil || cs.Subscription.ID == "" {
		return fmt.Errorf("subscription-mode checkout session %s has no subscription", cs.ID)
	}

	// Fetch the full subscription for price and period details. This
	// happens before the reconciler's transaction opens.
	subObj, err := subscriptionpkg.Get(cs.Subscription.ID, nil)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", cs.Subscription.ID, err)
	}
	ev.Mode = "subscription"
	ev.StripeSubscriptionID = subObj.ID
	if len(subObj.Items.Data) == 0 || subObj.Items.Data[0].Price == nil {
		return fmt.Errorf("subscription %s has no priced items", subObj.ID)
	}
	item := subObj.Items.Data[0]
	ev.PriceID = item.Price.ID
	if item.CurrentPeriodStart > 0 && item.CurrentPeriodEnd > 0 {
		ev.PeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		ev.PeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
	}
	return s.billingSvc.HandleCheckoutCompleted(ctx, ev)
}

func (s *StripeService) handleSubscriptionUpdated(ctx context.Context, event *stripe.Event) error {
	var ss stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
		return fmt.Errorf("invalid customer.subscription.updated payload: %w", err)
	}
	userID, err := s.getUserIDFromEvent(ctx, ss.Metadata, customerID(ss.Customer))
	if err != nil {
		return fmt.Errorf("identify user for subscription %s: %w", ss.ID, err)
	}
	if len(ss.Items.Data) == 0 || ss.Items.Data[0].Price == nil {
		return fmt.Errorf("subscription %s has no priced items", ss.ID)
	}
	item := ss.Items.Data[0]

	ev := SubscriptionUpdatedEvent{
		EventID:           event.ID,
		UserID:            userID,
		PriceID:           item.Price.ID,
		StripeStatus:      string(ss.Status),
		CancelAtPeriodEnd: ss.CancelAtPeriodEnd,
	}
	if item.CurrentPeriodStart > 0 && item.CurrentPeriodEnd > 0 {
		ev.PeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		ev.PeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
	}
	return s.billingSvc.HandleSubscriptionUpdated(ctx, ev)
}

func (s *StripeService) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	var ss stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
		return fmt.Errorf("invalid customer.subscription.deleted payload: %w", err)
	}
	userID, err := s.getUserIDFromEvent(ctx, ss.Metadata, customerID(ss.Customer))
	if err != nil {
		return fmt.Errorf("identify user for subscription %s: %w", ss.ID, err)
	}
	return s.billingSvc.HandleSubscriptionDeleted(ctx, event.ID, userID)
}

func (s *StripeService) handleInvoicePaid(ctx context.Context, event *stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("invalid invoice.payment_succeeded payload: %w", err)
	}
	userID, err := s.getUserIDFromEvent(ctx, invoice.Metadata, customerID(invoice.Customer))
	if err != nil {
		return fmt.Errorf("identify user for invoice %s: %w", invoice.ID, err)
	}

	subID := invoiceSubscriptionID(&invoice)
	if subID == "" {
		s.logger.Info().Str("invoice_id", invoice.ID).Msg("Invoice has no subscription, skipping")
		return nil
	}

	// Price comes from the subscription object, fetched before the
	// reconciler's transaction.
	sub, err := subscriptionpkg.Get(subID, nil)
	if err != nil {
		return fmt.Errorf("fetch subscription %s for invoice: %w", subID, err)
	}
	if len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return fmt.Errorf("subscription %s has no priced items", subID)
	}

	ev := InvoicePaidEvent{
		EventID:       event.ID,
		UserID:        userID,
		PriceID:       sub.Items.Data[0].Price.ID,
		BillingReason: string(invoice.BillingReason),
	}
	if invoice.PeriodStart > 0 && invoice.PeriodEnd > 0 {
		ev.PeriodStart = time.Unix(invoice.PeriodStart, 0).UTC()
		ev.PeriodEnd = time.Unix(invoice.PeriodEnd, 0).UTC()
	}
	return s.billingSvc.HandleInvoicePaid(ctx, ev)
}

func (s *StripeService) handleInvoiceFailed(ctx context.Context, event *stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("invalid invoice.payment_failed payload: %w", err)
	}
	userID, err := s.getUserIDFromEvent(ctx, invoice.Metadata, customerID(invoice.Customer))
	if err != nil {
		return fmt.Errorf("identify user for invoice %s: %w", invoice.ID, err)
	}
	if invoiceSubscriptionID(&invoice) == "" {
		s.logger.Info().Str("invoice_id", invoice.ID).Msg("Failed invoice has no subscription, skipping")
		return nil
	}
	return s.billingSvc.HandleInvoiceFailed(ctx, event.ID, userID)
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func invoiceSubscriptionID(invoice *stripe.Invoice) string {
	if invoice.Lines != nil {
		for _, line := range invoice.Lines.Data {
			if line.Subscription != nil && line.Subscription.ID != "" {
				return line.Subscription.ID
			}
		}
	}
	return ""
}
