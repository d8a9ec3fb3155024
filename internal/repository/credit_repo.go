package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInsufficientCredits is returned when a spend would exceed the
// user's total spendable balance. Nothing is mutated.
var ErrInsufficientCredits = errors.New("insufficient_credits")

// CreditRepository holds the atomic balance operations driven by user
// actions. SpendCredits is the only path that decreases balances for
// consumption; RefundCredits is the manual recovery path for confirmed
// technical failures.
type CreditRepository interface {
	// SpendCredits atomically checks and deducts amount from the user's
	// balance, plan credits before overage credits, and appends the
	// usage ledger entries. Returns the post-spend record, or
	// ErrInsufficientCredits with no mutation.
	SpendCredits(ctx context.Context, userID, videoID string, amount int, description string) (*model.Subscription, error)

	// RefundCredits credits the overage pool (refunded credits must not
	// expire with the cycle) and appends a refund ledger entry.
	RefundCredits(ctx context.Context, userID string, amount int, description string) (*model.Subscription, error)
}

type creditRepo struct {
	pool *pgxpool.Pool
}

// NewCreditRepo creates a new CreditRepository.
func NewCreditRepo(pool *pgxpool.Pool) CreditRepository {
	return &creditRepo{pool: pool}
}

func (r *creditRepo) SpendCredits(ctx context.Context, userID, videoID string, amount int, description string) (*model.Subscription, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("spend amount must be positive, got %d", amount)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin spend transaction for user %s: %w", userID, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// The row lock linearizes concurrent spends on the same account:
	// two requests competing for the last credit are serialized here
	// and the second one fails the balance check.
	sub, err := lockSubscription(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if sub.SpendableCredits() < amount {
		return nil, ErrInsufficientCredits
	}

	fromPlan := amount
	if fromPlan > sub.CreditsRemaining {
		fromPlan = sub.CreditsRemaining
	}
	fromOverage := amount - fromPlan

	const q = `
        UPDATE subscriptions
        SET credits_remaining = credits_remaining - $2,
            overage_credits = overage_credits - $3,
            updated_at = NOW()
        WHERE user_id = $1
    `
	if _, err := tx.Exec(ctx, q, userID, fromPlan, fromOverage); err != nil {
		return nil, fmt.Errorf("deduct credits for user %s: %w", userID, err)
	}

	// One usage entry per pool touched, so each pool's ledger sum
	// still reconciles with its balance.
	if fromPlan > 0 {
		if err := appendLedgerEntry(ctx, tx, userID, &sub.ID, -fromPlan, model.EntryUsage,
			fmt.Sprintf("%s (video %s)", description, videoID)); err != nil {
			return nil, err
		}
	}
	if fromOverage > 0 {
		if err := appendLedgerEntry(ctx, tx, userID, &sub.ID, -fromOverage, model.EntryUsage,
			fmt.Sprintf("%s (video %s, overage)", description, videoID)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit spend for user %s: %w", userID, err)
	}

	sub.CreditsRemaining -= fromPlan
	sub.OverageCredits -= fromOverage
	return sub, nil
}

func (r *creditRepo) RefundCredits(ctx context.Context, userID string, amount int, description string) (*model.Subscription, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("refund amount must be positive, got %d", amount)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin refund transaction for user %s: %w", userID, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	sub, err := lockSubscription(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	const q = `
        UPDATE subscriptions
        SET overage_credits = overage_credits + $2, updated_at = NOW()
        WHERE user_id = $1
    `
	if _, err := tx.Exec(ctx, q, userID, amount); err != nil {
		return nil, fmt.Errorf("refund credits for user %s: %w", userID, err)
	}
	if err := appendLedgerEntry(ctx, tx, userID, &sub.ID, amount, model.EntryRefund, description); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit refund for user %s: %w", userID, err)
	}

	sub.OverageCredits += amount
	return sub, nil
}
