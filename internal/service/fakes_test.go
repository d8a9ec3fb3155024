package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"app/internal/model"
	"app/internal/repository"
)

// fakeStore is an in-memory stand-in for the Postgres repositories. It
// reproduces their contracts: event claims and effects are atomic under
// one lock, a failed effect releases the claim, and balance checks
// happen under the same lock as the mutation.
type fakeStore struct {
	mu        sync.Mutex
	processed map[string]bool
	subs      map[string]*model.Subscription
	ledger    []model.CreditLedgerEntry
	nextID    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		processed: map[string]bool{},
		subs:      map[string]*model.Subscription{},
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

// applyEvent mirrors the repository's claim-inside-transaction rule.
func (f *fakeStore) applyEvent(eventID string, fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.processed[eventID] {
		return repository.ErrEventAlreadyProcessed
	}
	if err := fn(); err != nil {
		return err
	}
	f.processed[eventID] = true
	return nil
}

func (f *fakeStore) appendEntry(userID string, subID *string, amount int, entryType model.LedgerEntryType, description string) {
	f.ledger = append(f.ledger, model.CreditLedgerEntry{
		ID:             f.id("entry"),
		UserID:         userID,
		SubscriptionID: subID,
		Amount:         amount,
		Type:           entryType,
		Description:    description,
		CreatedAt:      time.Now(),
	})
}

func (f *fakeStore) entriesFor(userID string) []model.CreditLedgerEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CreditLedgerEntry
	for _, e := range f.ledger {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// SubscriptionRepository

func (f *fakeStore) GetSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[userID]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

// BillingRepository

func (f *fakeStore) ActivateSubscription(ctx context.Context, eventID string, p repository.ActivateSubscriptionParams) error {
	return f.applyEvent(eventID, func() error {
		sub, exists := f.subs[p.UserID]
		if !exists {
			sub = &model.Subscription{ID: f.id("sub"), UserID: p.UserID}
			f.subs[p.UserID] = sub
		} else if sub.CreditsRemaining > 0 {
			f.appendEntry(p.UserID, &sub.ID, -sub.CreditsRemaining, model.EntryExpiry, "Credits forfeited on plan change")
		}
		sub.Plan = p.Plan
		sub.Status = model.StatusActive
		sub.CreditsRemaining = p.Credits
		sub.CreditsTotal = p.Credits
		sub.RevisionCreditsUsed = 0
		sub.RevisionCreditsTotal = p.RevisionCreditsTotal
		sub.BillingInterval = p.Interval
		sub.RolloverCap = p.RolloverCap
		sub.CurrentPeriodStart = p.PeriodStart
		sub.CurrentPeriodEnd = p.PeriodEnd
		f.appendEntry(p.UserID, &sub.ID, p.Credits, model.EntrySubscriptionGrant,
			fmt.Sprintf("Subscription activated: %s (%s)", p.Plan, p.Interval))
		return nil
	})
}

func (f *fakeStore) AddOverageCredits(ctx context.Context, eventID string, p repository.OverageParams) error {
	return f.applyEvent(eventID, func() error {
		sub, exists := f.subs[p.UserID]
		if !exists {
			if !p.CreateWallet {
				return repository.ErrSubscriptionNotFound
			}
			sub = &model.Subscription{
				ID:     f.id("sub"),
				UserID: p.UserID,
				Plan:   model.PlanNone,
				Status: model.StatusCancelled,
			}
			f.subs[p.UserID] = sub
		}
		sub.OverageCredits += p.Credits
		f.appendEntry(p.UserID, &sub.ID, p.Credits, model.EntryPurchase, p.Description)
		return nil
	})
}

func (f *fakeStore) UpdateSubscription(ctx context.Context, eventID string, p repository.UpdateSubscriptionParams) error {
	return f.applyEvent(eventID, func() error {
		sub, exists := f.subs[p.UserID]
		if !exists {
			return repository.ErrSubscriptionNotFound
		}
		if p.PlanChanged {
			if sub.CreditsRemaining > 0 {
				f.appendEntry(p.UserID, &sub.ID, -sub.CreditsRemaining, model.EntryExpiry, "Credits forfeited on plan change")
			}
			sub.Plan = p.Plan
			sub.BillingInterval = p.Interval
			sub.CreditsRemaining = p.Credits
			sub.CreditsTotal = p.Credits
			sub.RevisionCreditsUsed = 0
			sub.RevisionCreditsTotal = p.RevisionCreditsTotal
			sub.RolloverCap = p.RolloverCap
			f.appendEntry(p.UserID, &sub.ID, p.Credits, model.EntrySubscriptionGrant,
				fmt.Sprintf("Plan changed to %s (%s)", p.Plan, p.Interval))
		}
		sub.Status = p.Status
		sub.CurrentPeriodStart = p.PeriodStart
		sub.CurrentPeriodEnd = p.PeriodEnd
		return nil
	})
}

func (f *fakeStore) CancelSubscription(ctx context.Context, eventID, userID string) error {
	return f.applyEvent(eventID, func() error {
		sub, exists := f.subs[userID]
		if !exists {
			return repository.ErrSubscriptionNotFound
		}
		sub.Status = model.StatusCancelled
		return nil
	})
}

func (f *fakeStore) ApplyRenewal(ctx context.Context, eventID string, p repository.RenewalParams) error {
	return f.applyEvent(eventID, func() error {
		sub, exists := f.subs[p.UserID]
		if !exists {
			return repository.ErrSubscriptionNotFound
		}
		res := model.Rollover(sub.CreditsRemaining, sub.RolloverCap)
		sub.Status = model.StatusActive
		sub.CreditsRemaining = p.PlanCredits + res.Rollover
		sub.CreditsTotal = p.PlanCredits
		sub.RevisionCreditsUsed = 0
		sub.CurrentPeriodStart = p.PeriodStart
		sub.CurrentPeriodEnd = p.PeriodEnd
		if res.Expired > 0 {
			f.appendEntry(p.UserID, &sub.ID, -res.Expired, model.EntryExpiry,
				fmt.Sprintf("%d unused credits expired at renewal (cap %d)", res.Expired, sub.RolloverCap))
		}
		if res.Rollover > 0 {
			f.appendEntry(p.UserID, &sub.ID, res.Rollover, model.EntryBonusRollover,
				fmt.Sprintf("%d unused credits rolled over", res.Rollover))
		}
		f.appendEntry(p.UserID, &sub.ID, p.PlanCredits, model.EntrySubscriptionGrant, "New billing cycle credit allocation")
		return nil
	})
}

func (f *fakeStore) MarkPastDue(ctx context.Context, eventID, userID string) error {
	return f.applyEvent(eventID, func() error {
		sub, exists := f.subs[userID]
		if !exists {
			return repository.ErrSubscriptionNotFound
		}
		sub.Status = model.StatusPastDue
		return nil
	})
}

// CreditRepository

func (f *fakeStore) SpendCredits(ctx context.Context, userID, videoID string, amount int, description string) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, exists := f.subs[userID]
	if !exists {
		return nil, repository.ErrSubscriptionNotFound
	}
	if sub.SpendableCredits() < amount {
		return nil, repository.ErrInsufficientCredits
	}
	fromPlan := amount
	if fromPlan > sub.CreditsRemaining {
		fromPlan = sub.CreditsRemaining
	}
	fromOverage := amount - fromPlan
	sub.CreditsRemaining -= fromPlan
	sub.OverageCredits -= fromOverage
	if fromPlan > 0 {
		f.appendEntry(userID, &sub.ID, -fromPlan, model.EntryUsage, description)
	}
	if fromOverage > 0 {
		f.appendEntry(userID, &sub.ID, -fromOverage, model.EntryUsage, description+" (overage)")
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeStore) RefundCredits(ctx context.Context, userID string, amount int, description string) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, exists := f.subs[userID]
	if !exists {
		return nil, repository.ErrSubscriptionNotFound
	}
	sub.OverageCredits += amount
	f.appendEntry(userID, &sub.ID, amount, model.EntryRefund, description)
	cp := *sub
	return &cp, nil
}

// LedgerRepository

func (f *fakeStore) ListEntries(ctx context.Context, userID string, limit int) ([]model.CreditLedgerEntry, error) {
	entries := f.entriesFor(userID)
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// fakeUserRepo is an in-memory UserRepository.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	f := &fakeUserRepo{users: map[string]*model.User{}}
	for _, u := range users {
		f.users[u.UserID] = u
	}
	return f
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.UserID] = u
	return nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		u.StripeCustomerID = &customerID
	}
	return nil
}

// fakeRevisionRepo is an in-memory RevisionRepository backed by the
// shared store for quota accounting.
type fakeRevisionRepo struct {
	store    *fakeStore
	requests map[string]*model.RevisionRequest
	byVideo  map[string]string
}

func newFakeRevisionRepo(store *fakeStore) *fakeRevisionRepo {
	return &fakeRevisionRepo{
		store:    store,
		requests: map[string]*model.RevisionRequest{},
		byVideo:  map[string]string{},
	}
}

func (f *fakeRevisionRepo) CreateRequest(ctx context.Context, req *model.RevisionRequest) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if _, exists := f.byVideo[req.VideoID]; exists {
		return repository.ErrDuplicateRequest
	}
	req.ID = f.store.id("rev")
	req.Status = model.RevisionPending
	req.RequestedAt = time.Now()
	cp := *req
	f.requests[req.ID] = &cp
	f.byVideo[req.VideoID] = req.ID
	return nil
}

func (f *fakeRevisionRepo) GetRequest(ctx context.Context, id string) (*model.RevisionRequest, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return nil, repository.ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (f *fakeRevisionRepo) ListPending(ctx context.Context) ([]model.RevisionRequest, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []model.RevisionRequest
	for _, req := range f.requests {
		if req.Status == model.RevisionPending {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (f *fakeRevisionRepo) ApproveRequest(ctx context.Context, requestID, adminID string) (*model.RevisionRequest, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	req, ok := f.requests[requestID]
	if !ok {
		return nil, repository.ErrRequestNotFound
	}
	if req.Status != model.RevisionPending {
		return nil, repository.ErrRequestNotPending
	}
	sub, ok := f.store.subs[req.UserID]
	if !ok {
		return nil, repository.ErrSubscriptionNotFound
	}
	if sub.RevisionCreditsUsed >= sub.RevisionCreditsTotal {
		return nil, repository.ErrRevisionQuotaExhausted
	}
	sub.RevisionCreditsUsed++
	now := time.Now()
	req.Status = model.RevisionApproved
	req.ReviewedBy = &adminID
	req.ReviewedAt = &now
	f.store.appendEntry(req.UserID, &sub.ID, 1, model.EntryRevisionGrant, "Revision request approved")
	cp := *req
	return &cp, nil
}

func (f *fakeRevisionRepo) DenyRequest(ctx context.Context, requestID, adminID, notes string) (*model.RevisionRequest, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	req, ok := f.requests[requestID]
	if !ok {
		return nil, repository.ErrRequestNotFound
	}
	if req.Status != model.RevisionPending {
		return nil, repository.ErrRequestNotPending
	}
	now := time.Now()
	req.Status = model.RevisionDenied
	req.ReviewedBy = &adminID
	req.ReviewedAt = &now
	req.AdminNotes = &notes
	cp := *req
	return &cp, nil
}

// fakeVideoRepo is an in-memory VideoRepository.
type fakeVideoRepo struct {
	mu     sync.Mutex
	videos map[string]*model.Video
	nextID int
}

func newFakeVideoRepo() *fakeVideoRepo {
	return &fakeVideoRepo{videos: map[string]*model.Video{}}
}

func (f *fakeVideoRepo) CreateVideo(ctx context.Context, v *model.Video) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	v.ID = fmt.Sprintf("video-%d", f.nextID)
	v.Status = model.VideoProcessing
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	cp := *v
	f.videos[v.ID] = &cp
	return nil
}

func (f *fakeVideoRepo) GetVideoByID(ctx context.Context, id string) (*model.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.videos[id]
	if !ok {
		return nil, repository.ErrVideoNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeVideoRepo) ListVideosByUser(ctx context.Context, userID string, limit int) ([]model.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Video
	for _, v := range f.videos {
		if v.UserID == userID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (f *fakeVideoRepo) DeleteVideo(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.videos, id)
	return nil
}

func (f *fakeVideoRepo) UpdateRenderStatus(ctx context.Context, videoID, executionID string, status model.VideoStatus, videoURL, thumbnailURL, errorMessage *string) (*model.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.videos[videoID]
	if !ok {
		return nil, repository.ErrVideoNotFound
	}
	if executionID != "" {
		if v.ExecutionID != nil && *v.ExecutionID != executionID {
			return nil, repository.ErrStaleRenderUpdate
		}
		v.ExecutionID = &executionID
	}
	v.Status = status
	if videoURL != nil {
		v.VideoURL = videoURL
	}
	if thumbnailURL != nil {
		v.ThumbnailURL = thumbnailURL
	}
	v.ErrorMessage = errorMessage
	v.UpdatedAt = time.Now()
	cp := *v
	return &cp, nil
}

// fakeEmailService records sent notices.
type fakeEmailService struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeEmailService) SendPaymentFailed(ctx context.Context, to, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	return nil
}

// fakePublisher records published render jobs and can be made to fail.
type fakePublisher struct {
	mu        sync.Mutex
	published [][]byte
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.published = append(f.published, payload)
	return fmt.Sprintf("msg-%d", len(f.published)), nil
}
