package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSubscriptionNotFound is returned when an operation expects an
// existing account record for the user and none exists.
var ErrSubscriptionNotFound = errors.New("subscription_not_found")

// subscriptionColumns is the canonical select list for subscription rows.
const subscriptionColumns = `
        id, user_id, plan, status,
        credits_remaining, credits_total, overage_credits,
        revision_credits_used, revision_credits_total,
        billing_interval, rollover_cap,
        current_period_start, current_period_end,
        stripe_customer_id, stripe_subscription_id,
        created_at, updated_at`

// SubscriptionRepository provides read access to account records.
// All balance mutations go through BillingRepository, CreditRepository
// and RevisionRepository so that every change is one transaction with
// its ledger entries.
type SubscriptionRepository interface {
	// GetSubscription returns the user's account record, or nil if the
	// user has never subscribed or bought credits.
	GetSubscription(ctx context.Context, userID string) (*model.Subscription, error)
}

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepository.
func NewSubscriptionRepo(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) GetSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1`
	sub, err := scanSubscription(r.pool.QueryRow(ctx, q, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch subscription for user %s: %w", userID, err)
	}
	return sub, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var s model.Subscription
	err := row.Scan(
		&s.ID, &s.UserID, &s.Plan, &s.Status,
		&s.CreditsRemaining, &s.CreditsTotal, &s.OverageCredits,
		&s.RevisionCreditsUsed, &s.RevisionCreditsTotal,
		&s.BillingInterval, &s.RolloverCap,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd,
		&s.StripeCustomerID, &s.StripeSubscriptionID,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// lockSubscription selects the user's subscription row FOR UPDATE inside
// the caller's transaction, serializing concurrent mutations of the same
// account at the store. Returns ErrSubscriptionNotFound if absent.
func lockSubscription(ctx context.Context, tx pgx.Tx, userID string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 FOR UPDATE`
	sub, err := scanSubscription(tx.QueryRow(ctx, q, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("lock subscription for user %s: %w", userID, err)
	}
	return sub, nil
}
