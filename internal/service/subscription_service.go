package service

import (
	"context"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// SubscriptionService is the read surface over the subscription record.
// All writes go through the webhook reconciler and the atomic credit
// operations.
type SubscriptionService interface {
	GetSubscription(ctx context.Context, userID string) (*model.Subscription, error)
	GetPlanSpec(ctx context.Context, userID string) (*PlanSpec, error)
}

type subscriptionService struct {
	repo    repository.SubscriptionRepository
	catalog *Catalog
	logger  zerolog.Logger
}

// NewSubscriptionService creates a new SubscriptionService with a scoped logger.
func NewSubscriptionService(repo repository.SubscriptionRepository, catalog *Catalog, logger zerolog.Logger) SubscriptionService {
	return &subscriptionService{
		repo:    repo,
		catalog: catalog,
		logger:  logger.With().Str("service", "SubscriptionService").Logger(),
	}
}

// GetSubscription returns the user's subscription regardless of status,
// or nil when the user never subscribed.
func (s *subscriptionService) GetSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch subscription")
		return nil, err
	}
	return sub, nil
}

// GetPlanSpec returns the catalog entry behind the user's current plan
// and interval, or nil for users without a subscription.
func (s *subscriptionService) GetPlanSpec(ctx context.Context, userID string) (*PlanSpec, error) {
	sub, err := s.GetSubscription(ctx, userID)
	if err != nil || sub == nil {
		return nil, err
	}
	spec, ok := s.catalog.PlanSpecFor(sub.Plan, sub.BillingInterval)
	if !ok {
		return nil, nil
	}
	return &spec, nil
}
