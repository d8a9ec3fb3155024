package repository

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivateSubscriptionParams describes a checkout-completed activation.
type ActivateSubscriptionParams struct {
	UserID               string
	Plan                 model.Plan
	Interval             model.BillingInterval
	Credits              int
	RolloverCap          int
	RevisionCreditsTotal int
	PeriodStart          time.Time
	PeriodEnd            time.Time
	StripeCustomerID     string
	StripeSubscriptionID string
}

// UpdateSubscriptionParams describes a subscription-updated transition.
type UpdateSubscriptionParams struct {
	UserID      string
	Status      model.SubscriptionStatus
	PeriodStart time.Time
	PeriodEnd   time.Time

	// PlanChanged signals a price switch: plan credits reset to the new
	// plan's allocation and old unused credits are forfeited (no
	// proration, by policy).
	PlanChanged          bool
	Plan                 model.Plan
	Interval             model.BillingInterval
	Credits              int
	RolloverCap          int
	RevisionCreditsTotal int
}

// OverageParams describes a one-time credit-pack purchase.
type OverageParams struct {
	UserID      string
	Credits     int
	Description string
	// CreateWallet creates a credits-only record (status cancelled,
	// plan none) when the user has no account record and the pack does
	// not require an active subscription.
	CreateWallet     bool
	StripeCustomerID string
}

// RenewalParams describes an invoice-paid cycle renewal.
type RenewalParams struct {
	UserID      string
	PlanCredits int
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// BillingRepository applies billing-event state transitions. Every
// method is one transaction: the idempotency claim, the account-record
// mutation and the ledger entries commit or roll back together. A
// duplicate delivery returns ErrEventAlreadyProcessed with no effects.
type BillingRepository interface {
	ActivateSubscription(ctx context.Context, eventID string, p ActivateSubscriptionParams) error
	AddOverageCredits(ctx context.Context, eventID string, p OverageParams) error
	UpdateSubscription(ctx context.Context, eventID string, p UpdateSubscriptionParams) error
	CancelSubscription(ctx context.Context, eventID, userID string) error
	ApplyRenewal(ctx context.Context, eventID string, p RenewalParams) error
	MarkPastDue(ctx context.Context, eventID, userID string) error
}

type billingRepo struct {
	pool *pgxpool.Pool
}

// NewBillingRepo creates a new BillingRepository.
func NewBillingRepo(pool *pgxpool.Pool) BillingRepository {
	return &billingRepo{pool: pool}
}

// inEventTx runs fn inside a transaction that has already claimed the
// event. Rollback on any error releases the claim so the processor's
// retry can reapply the whole event.
func (r *billingRepo) inEventTx(ctx context.Context, eventID, eventType string, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction for event %s: %w", eventID, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := claimEvent(ctx, tx, eventID, eventType); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit event %s: %w", eventID, err)
	}
	return nil
}

func (r *billingRepo) ActivateSubscription(ctx context.Context, eventID string, p ActivateSubscriptionParams) error {
	return r.inEventTx(ctx, eventID, "checkout.session.completed", func(tx pgx.Tx) error {
		sub, err := lockSubscription(ctx, tx, p.UserID)
		if err != nil && err != ErrSubscriptionNotFound {
			return err
		}

		var subID string
		if sub == nil {
			const insertQ = `
                INSERT INTO subscriptions
                    (user_id, plan, status, credits_remaining, credits_total,
                     revision_credits_used, revision_credits_total,
                     billing_interval, rollover_cap,
                     current_period_start, current_period_end,
                     stripe_customer_id, stripe_subscription_id)
                VALUES ($1, $2, 'active', $3, $3, 0, $4, $5, $6, $7, $8, $9, $10)
                RETURNING id
            `
			if err := tx.QueryRow(ctx, insertQ,
				p.UserID, p.Plan, p.Credits, p.RevisionCreditsTotal,
				p.Interval, p.RolloverCap, p.PeriodStart, p.PeriodEnd,
				p.StripeCustomerID, p.StripeSubscriptionID,
			).Scan(&subID); err != nil {
				return fmt.Errorf("create subscription for user %s: %w", p.UserID, err)
			}
		} else {
			// Existing record: plan switch in place. Unused credits
			// from the old plan are forfeited, mirrored by an expiry
			// entry so the ledger still explains the balance.
			subID = sub.ID
			const updateQ = `
                UPDATE subscriptions
                SET plan = $2, status = 'active',
                    credits_remaining = $3, credits_total = $3,
                    revision_credits_used = 0, revision_credits_total = $4,
                    billing_interval = $5, rollover_cap = $6,
                    current_period_start = $7, current_period_end = $8,
                    stripe_customer_id = $9, stripe_subscription_id = $10,
                    updated_at = NOW()
                WHERE user_id = $1
            `
			if _, err := tx.Exec(ctx, updateQ,
				p.UserID, p.Plan, p.Credits, p.RevisionCreditsTotal,
				p.Interval, p.RolloverCap, p.PeriodStart, p.PeriodEnd,
				p.StripeCustomerID, p.StripeSubscriptionID,
			); err != nil {
				return fmt.Errorf("update subscription for user %s: %w", p.UserID, err)
			}
			if sub.CreditsRemaining > 0 {
				if err := appendLedgerEntry(ctx, tx, p.UserID, &subID, -sub.CreditsRemaining, model.EntryExpiry,
					"Credits forfeited on plan change"); err != nil {
					return err
				}
			}
		}

		return appendLedgerEntry(ctx, tx, p.UserID, &subID, p.Credits, model.EntrySubscriptionGrant,
			fmt.Sprintf("Subscription activated: %s (%s)", p.Plan, p.Interval))
	})
}

func (r *billingRepo) AddOverageCredits(ctx context.Context, eventID string, p OverageParams) error {
	return r.inEventTx(ctx, eventID, "checkout.session.completed", func(tx pgx.Tx) error {
		sub, err := lockSubscription(ctx, tx, p.UserID)
		if err != nil {
			if err != ErrSubscriptionNotFound {
				return err
			}
			if !p.CreateWallet {
				return ErrSubscriptionNotFound
			}
			// Credits-only wallet: cancelled is the sentinel for "no
			// active plan, but has a balance".
			const walletQ = `
                INSERT INTO subscriptions
                    (user_id, plan, status, credits_remaining, credits_total,
                     current_period_start, current_period_end, stripe_customer_id)
                VALUES ($1, 'none', 'cancelled', 0, 0, NOW(), NOW(), $2)
                RETURNING id
            `
			var subID string
			if err := tx.QueryRow(ctx, walletQ, p.UserID, p.StripeCustomerID).Scan(&subID); err != nil {
				return fmt.Errorf("create credits wallet for user %s: %w", p.UserID, err)
			}
			sub = &model.Subscription{ID: subID, UserID: p.UserID}
		}

		const q = `
            UPDATE subscriptions
            SET overage_credits = overage_credits + $2, updated_at = NOW()
            WHERE user_id = $1
        `
		if _, err := tx.Exec(ctx, q, p.UserID, p.Credits); err != nil {
			return fmt.Errorf("add overage credits for user %s: %w", p.UserID, err)
		}
		return appendLedgerEntry(ctx, tx, p.UserID, &sub.ID, p.Credits, model.EntryPurchase, p.Description)
	})
}

func (r *billingRepo) UpdateSubscription(ctx context.Context, eventID string, p UpdateSubscriptionParams) error {
	return r.inEventTx(ctx, eventID, "customer.subscription.updated", func(tx pgx.Tx) error {
		sub, err := lockSubscription(ctx, tx, p.UserID)
		if err != nil {
			return err
		}

		if p.PlanChanged {
			const q = `
                UPDATE subscriptions
                SET plan = $2, status = $3,
                    credits_remaining = $4, credits_total = $4,
                    revision_credits_used = 0, revision_credits_total = $5,
                    billing_interval = $6, rollover_cap = $7,
                    current_period_start = $8, current_period_end = $9,
                    updated_at = NOW()
                WHERE user_id = $1
            `
			if _, err := tx.Exec(ctx, q,
				p.UserID, p.Plan, p.Status, p.Credits, p.RevisionCreditsTotal,
				p.Interval, p.RolloverCap, p.PeriodStart, p.PeriodEnd,
			); err != nil {
				return fmt.Errorf("apply plan change for user %s: %w", p.UserID, err)
			}
			if sub.CreditsRemaining > 0 {
				if err := appendLedgerEntry(ctx, tx, p.UserID, &sub.ID, -sub.CreditsRemaining, model.EntryExpiry,
					"Credits forfeited on plan change"); err != nil {
					return err
				}
			}
			return appendLedgerEntry(ctx, tx, p.UserID, &sub.ID, p.Credits, model.EntrySubscriptionGrant,
				fmt.Sprintf("Plan changed to %s (%s)", p.Plan, p.Interval))
		}

		const q = `
            UPDATE subscriptions
            SET status = $2,
                current_period_start = $3, current_period_end = $4,
                updated_at = NOW()
            WHERE user_id = $1
        `
		if _, err := tx.Exec(ctx, q, p.UserID, p.Status, p.PeriodStart, p.PeriodEnd); err != nil {
			return fmt.Errorf("update subscription status for user %s: %w", p.UserID, err)
		}
		return nil
	})
}

func (r *billingRepo) CancelSubscription(ctx context.Context, eventID, userID string) error {
	return r.inEventTx(ctx, eventID, "customer.subscription.deleted", func(tx pgx.Tx) error {
		// Balances stay as they are; existing credits remain spendable.
		// Only future renewal grants stop.
		const q = `
            UPDATE subscriptions
            SET status = 'cancelled', updated_at = NOW()
            WHERE user_id = $1
        `
		ct, err := tx.Exec(ctx, q, userID)
		if err != nil {
			return fmt.Errorf("cancel subscription for user %s: %w", userID, err)
		}
		if ct.RowsAffected() == 0 {
			return ErrSubscriptionNotFound
		}
		return nil
	})
}

func (r *billingRepo) ApplyRenewal(ctx context.Context, eventID string, p RenewalParams) error {
	return r.inEventTx(ctx, eventID, "invoice.payment_succeeded", func(tx pgx.Tx) error {
		sub, err := lockSubscription(ctx, tx, p.UserID)
		if err != nil {
			return err
		}

		res := model.Rollover(sub.CreditsRemaining, sub.RolloverCap)

		const q = `
            UPDATE subscriptions
            SET status = 'active',
                credits_remaining = $2, credits_total = $3,
                revision_credits_used = 0,
                current_period_start = $4, current_period_end = $5,
                updated_at = NOW()
            WHERE user_id = $1
        `
		if _, err := tx.Exec(ctx, q,
			p.UserID, p.PlanCredits+res.Rollover, p.PlanCredits, p.PeriodStart, p.PeriodEnd,
		); err != nil {
			return fmt.Errorf("apply renewal for user %s: %w", p.UserID, err)
		}

		// Ledger order is fixed: expiry, rollover, grant.
		if res.Expired > 0 {
			if err := appendLedgerEntry(ctx, tx, p.UserID, &sub.ID, -res.Expired, model.EntryExpiry,
				fmt.Sprintf("%d unused credits expired at renewal (cap %d)", res.Expired, sub.RolloverCap)); err != nil {
				return err
			}
		}
		if res.Rollover > 0 {
			if err := appendLedgerEntry(ctx, tx, p.UserID, &sub.ID, res.Rollover, model.EntryBonusRollover,
				fmt.Sprintf("%d unused credits rolled over", res.Rollover)); err != nil {
				return err
			}
		}
		return appendLedgerEntry(ctx, tx, p.UserID, &sub.ID, p.PlanCredits, model.EntrySubscriptionGrant,
			"New billing cycle credit allocation")
	})
}

func (r *billingRepo) MarkPastDue(ctx context.Context, eventID, userID string) error {
	return r.inEventTx(ctx, eventID, "invoice.payment_failed", func(tx pgx.Tx) error {
		const q = `
            UPDATE subscriptions
            SET status = 'past_due', updated_at = NOW()
            WHERE user_id = $1
        `
		ct, err := tx.Exec(ctx, q, userID)
		if err != nil {
			return fmt.Errorf("mark subscription past_due for user %s: %w", userID, err)
		}
		if ct.RowsAffected() == 0 {
			return ErrSubscriptionNotFound
		}
		return nil
	})
}
