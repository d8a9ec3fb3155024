package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

var (
	// ErrNoActiveSubscription means the user cannot submit revision
	// requests without an active plan.
	ErrNoActiveSubscription = errors.New("no active subscription")

	// ErrNotAdmin means the acting user lacks the admin role.
	ErrNotAdmin = errors.New("user is not an admin")

	// ErrVideoNotOwned means the video belongs to a different user.
	ErrVideoNotOwned = errors.New("video does not belong to user")

	// ErrDenialNotesTooShort means an admin tried to deny without a
	// usable explanation.
	ErrDenialNotesTooShort = errors.New("denial notes must be at least 10 characters")
)

const minDenialNotesLen = 10

// RevisionService runs the revision-credit request workflow. Submission
// does cheap advisory pre-checks; the authoritative quota and state
// checks happen under row locks inside the repository.
type RevisionService interface {
	Submit(ctx context.Context, userID, videoID, reason string) (*model.RevisionRequest, error)
	Approve(ctx context.Context, adminID, requestID string) (*model.RevisionRequest, error)
	Deny(ctx context.Context, adminID, requestID, notes string) (*model.RevisionRequest, error)
	Get(ctx context.Context, requestID string) (*model.RevisionRequest, error)
	ListPending(ctx context.Context, adminID string) ([]model.RevisionRequest, error)
}

type revisionService struct {
	revisionRepo repository.RevisionRepository
	subRepo      repository.SubscriptionRepository
	videoRepo    repository.VideoRepository
	userRepo     repository.UserRepository
	logger       zerolog.Logger
}

func NewRevisionService(revisionRepo repository.RevisionRepository, subRepo repository.SubscriptionRepository, videoRepo repository.VideoRepository, userRepo repository.UserRepository, logger zerolog.Logger) RevisionService {
	return &revisionService{
		revisionRepo: revisionRepo,
		subRepo:      subRepo,
		videoRepo:    videoRepo,
		userRepo:     userRepo,
		logger:       logger.With().Str("service", "RevisionService").Logger(),
	}
}

// Submit files a revision request for a video the user owns. The
// one-request-per-video rule is enforced by the database constraint,
// surfaced as repository.ErrDuplicateRequest. The quota check here is
// an early rejection for users with nothing left this cycle; the
// authoritative check happens again under lock at approval time.
func (s *revisionService) Submit(ctx context.Context, userID, videoID, reason string) (*model.RevisionRequest, error) {
	sub, err := s.subRepo.GetSubscription(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription: %w", err)
	}
	if sub == nil || sub.Status != model.StatusActive {
		return nil, ErrNoActiveSubscription
	}
	if sub.RevisionCreditsRemaining() <= 0 {
		return nil, repository.ErrRevisionQuotaExhausted
	}

	video, err := s.videoRepo.GetVideoByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video.UserID != userID {
		return nil, ErrVideoNotOwned
	}

	req := &model.RevisionRequest{
		UserID:  userID,
		VideoID: videoID,
		Reason:  strings.TrimSpace(reason),
		Status:  model.RevisionPending,
	}
	if err := s.revisionRepo.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Str("video_id", videoID).Str("request_id", req.ID).
		Msg("Revision request submitted")
	return req, nil
}

// Approve grants one revision credit through the atomic repository
// operation. The admin role is re-read immediately before the mutation
// rather than trusted from the token.
func (s *revisionService) Approve(ctx context.Context, adminID, requestID string) (*model.RevisionRequest, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	req, err := s.revisionRepo.ApproveRequest(ctx, requestID, adminID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("request_id", requestID).Str("admin_id", adminID).Str("user_id", req.UserID).
		Msg("Revision request approved")
	return req, nil
}

// Deny marks the request denied with the admin's notes. No balances
// change.
func (s *revisionService) Deny(ctx context.Context, adminID, requestID, notes string) (*model.RevisionRequest, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	notes = strings.TrimSpace(notes)
	if len(notes) < minDenialNotesLen {
		return nil, ErrDenialNotesTooShort
	}
	req, err := s.revisionRepo.DenyRequest(ctx, requestID, adminID, notes)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("request_id", requestID).Str("admin_id", adminID).Msg("Revision request denied")
	return req, nil
}

func (s *revisionService) Get(ctx context.Context, requestID string) (*model.RevisionRequest, error) {
	return s.revisionRepo.GetRequest(ctx, requestID)
}

func (s *revisionService) ListPending(ctx context.Context, adminID string) ([]model.RevisionRequest, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	return s.revisionRepo.ListPending(ctx)
}

func (s *revisionService) requireAdmin(ctx context.Context, adminID string) error {
	admin, err := s.userRepo.GetUserByID(ctx, adminID)
	if err != nil {
		return fmt.Errorf("fetch admin user: %w", err)
	}
	if admin == nil || !admin.IsAdmin() {
		return ErrNotAdmin
	}
	return nil
}
