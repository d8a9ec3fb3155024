package service

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// CreditSummary is the account-page view of a user's balances.
type CreditSummary struct {
	Plan                     model.Plan               `json:"plan"`
	Status                   model.SubscriptionStatus `json:"status"`
	CreditsRemaining         int                      `json:"credits_remaining"`
	CreditsTotal             int                      `json:"credits_total"`
	OverageCredits           int                      `json:"overage_credits"`
	SpendableCredits         int                      `json:"spendable_credits"`
	RevisionCreditsUsed      int                      `json:"revision_credits_used"`
	RevisionCreditsTotal     int                      `json:"revision_credits_total"`
	RevisionCreditsRemaining int                      `json:"revision_credits_remaining"`
	CurrentPeriodEnd         *time.Time               `json:"current_period_end,omitempty"`
}

// CreditService exposes balance reads and the spend/refund operations.
// The spend itself is atomic in the repository; CheckCredits is only an
// advisory read for the UI and never a substitute for the spend-time
// check.
type CreditService interface {
	CheckCredits(ctx context.Context, userID string, amount int) (bool, error)
	SpendCredits(ctx context.Context, userID, videoID string, amount int) (*model.Subscription, error)
	RefundCredits(ctx context.Context, userID string, amount int, reason string) (*model.Subscription, error)
	GetSummary(ctx context.Context, userID string) (*CreditSummary, error)
	ListLedger(ctx context.Context, userID string, limit int) ([]model.CreditLedgerEntry, error)
}

type creditService struct {
	creditRepo repository.CreditRepository
	subRepo    repository.SubscriptionRepository
	ledgerRepo repository.LedgerRepository
	logger     zerolog.Logger
}

func NewCreditService(creditRepo repository.CreditRepository, subRepo repository.SubscriptionRepository, ledgerRepo repository.LedgerRepository, logger zerolog.Logger) CreditService {
	return &creditService{
		creditRepo: creditRepo,
		subRepo:    subRepo,
		ledgerRepo: ledgerRepo,
		logger:     logger.With().Str("service", "CreditService").Logger(),
	}
}

// CheckCredits reports whether the user could afford a spend of the
// given size right now. The answer can be stale by the time the spend
// runs.
func (s *creditService) CheckCredits(ctx context.Context, userID string, amount int) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("invalid amount: %d", amount)
	}
	sub, err := s.subRepo.GetSubscription(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("fetch subscription: %w", err)
	}
	if sub == nil {
		return false, nil
	}
	return sub.SpendableCredits() >= amount, nil
}

// SpendCredits deducts credits for a video. Returns the post-spend
// subscription, or repository.ErrInsufficientCredits.
func (s *creditService) SpendCredits(ctx context.Context, userID, videoID string, amount int) (*model.Subscription, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("invalid amount: %d", amount)
	}
	sub, err := s.creditRepo.SpendCredits(ctx, userID, videoID, amount, fmt.Sprintf("video render (video %s)", videoID))
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Str("video_id", videoID).Int("amount", amount).
		Int("spendable_after", sub.SpendableCredits()).Msg("Credits spent")
	return sub, nil
}

// RefundCredits returns credits to the overage pool, typically after a
// failed render. Manual path, not driven by webhook events.
func (s *creditService) RefundCredits(ctx context.Context, userID string, amount int, reason string) (*model.Subscription, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("invalid amount: %d", amount)
	}
	sub, err := s.creditRepo.RefundCredits(ctx, userID, amount, reason)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Int("amount", amount).Str("reason", reason).Msg("Credits refunded")
	return sub, nil
}

// GetSummary returns the account-page balance view. Users without a
// subscription row get an all-zero summary with plan "none".
func (s *creditService) GetSummary(ctx context.Context, userID string) (*CreditSummary, error) {
	sub, err := s.subRepo.GetSubscription(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription: %w", err)
	}
	if sub == nil {
		return &CreditSummary{Plan: model.PlanNone, Status: model.StatusNone}, nil
	}
	summary := &CreditSummary{
		Plan:                     sub.Plan,
		Status:                   sub.Status,
		CreditsRemaining:         sub.CreditsRemaining,
		CreditsTotal:             sub.CreditsTotal,
		OverageCredits:           sub.OverageCredits,
		SpendableCredits:         sub.SpendableCredits(),
		RevisionCreditsUsed:      sub.RevisionCreditsUsed,
		RevisionCreditsTotal:     sub.RevisionCreditsTotal,
		RevisionCreditsRemaining: sub.RevisionCreditsRemaining(),
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		end := sub.CurrentPeriodEnd
		summary.CurrentPeriodEnd = &end
	}
	return summary, nil
}

func (s *creditService) ListLedger(ctx context.Context, userID string, limit int) ([]model.CreditLedgerEntry, error) {
	return s.ledgerRepo.ListEntries(ctx, userID, limit)
}
