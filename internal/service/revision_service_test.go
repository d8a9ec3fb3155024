package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

type revisionFixture struct {
	store  *fakeStore
	videos *fakeVideoRepo
	users  *fakeUserRepo
	svc    RevisionService
}

// newRevisionFixture seeds an active subscriber ("user-1", 2 revision
// credits), their video "video-1", and an admin ("admin-1").
func newRevisionFixture(t *testing.T) *revisionFixture {
	t.Helper()
	store := newFakeStore()
	seedSubscription(store, "user-1", 10, 0)

	videos := newFakeVideoRepo()
	video := &model.Video{UserID: "user-1", Title: "Logo reveal", LogoPath: "logos/user-1/logo.png", TemplateID: "tpl-1"}
	if err := videos.CreateVideo(context.Background(), video); err != nil {
		t.Fatalf("seeding video failed: %v", err)
	}

	users := newFakeUserRepo(
		&model.User{UserID: "user-1", Name: "Ada", Email: "ada@example.com", Role: "user"},
		&model.User{UserID: "admin-1", Name: "Root", Email: "root@example.com", Role: model.RoleAdmin},
	)

	return &revisionFixture{
		store:  store,
		videos: videos,
		users:  users,
		svc:    NewRevisionService(newFakeRevisionRepo(store), store, videos, users, zerolog.Nop()),
	}
}

func TestRevisionSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path creates pending request", func(t *testing.T) {
		f := newRevisionFixture(t)
		req, err := f.svc.Submit(ctx, "user-1", "video-1", "  colors are off  ")
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if req.Status != model.RevisionPending {
			t.Errorf("got status %s, want pending", req.Status)
		}
		if req.Reason != "colors are off" {
			t.Errorf("reason not trimmed: %q", req.Reason)
		}
		// Submission alone never consumes quota.
		sub, _ := f.store.GetSubscription(ctx, "user-1")
		if sub.RevisionCreditsUsed != 0 {
			t.Errorf("submission consumed quota: %d", sub.RevisionCreditsUsed)
		}
	})

	t.Run("requires active subscription", func(t *testing.T) {
		f := newRevisionFixture(t)
		f.store.mu.Lock()
		f.store.subs["user-1"].Status = model.StatusCancelled
		f.store.mu.Unlock()

		if _, err := f.svc.Submit(ctx, "user-1", "video-1", "reason"); !errors.Is(err, ErrNoActiveSubscription) {
			t.Errorf("got %v, want ErrNoActiveSubscription", err)
		}
	})

	t.Run("rejects when quota exhausted", func(t *testing.T) {
		f := newRevisionFixture(t)
		f.store.mu.Lock()
		f.store.subs["user-1"].RevisionCreditsUsed = 2
		f.store.mu.Unlock()

		if _, err := f.svc.Submit(ctx, "user-1", "video-1", "reason"); !errors.Is(err, repository.ErrRevisionQuotaExhausted) {
			t.Errorf("got %v, want ErrRevisionQuotaExhausted", err)
		}
	})

	t.Run("rejects video owned by someone else", func(t *testing.T) {
		f := newRevisionFixture(t)
		seedSubscription(f.store, "user-2", 10, 0)

		if _, err := f.svc.Submit(ctx, "user-2", "video-1", "reason"); !errors.Is(err, ErrVideoNotOwned) {
			t.Errorf("got %v, want ErrVideoNotOwned", err)
		}
	})

	t.Run("rejects missing video", func(t *testing.T) {
		f := newRevisionFixture(t)
		if _, err := f.svc.Submit(ctx, "user-1", "video-404", "reason"); !errors.Is(err, repository.ErrVideoNotFound) {
			t.Errorf("got %v, want ErrVideoNotFound", err)
		}
	})

	t.Run("one open request per video", func(t *testing.T) {
		f := newRevisionFixture(t)
		if _, err := f.svc.Submit(ctx, "user-1", "video-1", "first"); err != nil {
			t.Fatalf("first submit failed: %v", err)
		}
		if _, err := f.svc.Submit(ctx, "user-1", "video-1", "second"); !errors.Is(err, repository.ErrDuplicateRequest) {
			t.Errorf("got %v, want ErrDuplicateRequest", err)
		}
	})
}

func TestRevisionApprove(t *testing.T) {
	ctx := context.Background()

	t.Run("approval consumes quota and grants a credit", func(t *testing.T) {
		f := newRevisionFixture(t)
		req, err := f.svc.Submit(ctx, "user-1", "video-1", "reason")
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}

		approved, err := f.svc.Approve(ctx, "admin-1", req.ID)
		if err != nil {
			t.Fatalf("Approve failed: %v", err)
		}
		if approved.Status != model.RevisionApproved {
			t.Errorf("got status %s, want approved", approved.Status)
		}
		if approved.ReviewedBy == nil || *approved.ReviewedBy != "admin-1" {
			t.Errorf("reviewed_by not recorded: %+v", approved)
		}

		sub, _ := f.store.GetSubscription(ctx, "user-1")
		if sub.RevisionCreditsUsed != 1 {
			t.Errorf("quota used = %d, want 1", sub.RevisionCreditsUsed)
		}
		entries := f.store.entriesFor("user-1")
		if len(entries) != 1 || entries[0].Type != model.EntryRevisionGrant || entries[0].Amount != 1 {
			t.Errorf("expected single +1 revision_grant entry, got %+v", entries)
		}
	})

	t.Run("non-admin cannot approve", func(t *testing.T) {
		f := newRevisionFixture(t)
		req, _ := f.svc.Submit(ctx, "user-1", "video-1", "reason")
		if _, err := f.svc.Approve(ctx, "user-1", req.ID); !errors.Is(err, ErrNotAdmin) {
			t.Errorf("got %v, want ErrNotAdmin", err)
		}
	})

	t.Run("terminal request cannot be re-reviewed", func(t *testing.T) {
		f := newRevisionFixture(t)
		req, _ := f.svc.Submit(ctx, "user-1", "video-1", "reason")
		if _, err := f.svc.Approve(ctx, "admin-1", req.ID); err != nil {
			t.Fatalf("Approve failed: %v", err)
		}
		if _, err := f.svc.Approve(ctx, "admin-1", req.ID); !errors.Is(err, repository.ErrRequestNotPending) {
			t.Errorf("second approve: got %v, want ErrRequestNotPending", err)
		}
		if _, err := f.svc.Deny(ctx, "admin-1", req.ID, "already approved, sorry"); !errors.Is(err, repository.ErrRequestNotPending) {
			t.Errorf("deny after approve: got %v, want ErrRequestNotPending", err)
		}
		// Quota stays at one despite the retries.
		sub, _ := f.store.GetSubscription(ctx, "user-1")
		if sub.RevisionCreditsUsed != 1 {
			t.Errorf("quota used = %d, want 1", sub.RevisionCreditsUsed)
		}
	})

	t.Run("quota exhausted at approval time", func(t *testing.T) {
		f := newRevisionFixture(t)
		req, _ := f.svc.Submit(ctx, "user-1", "video-1", "reason")
		// Quota fills between submission and review.
		f.store.mu.Lock()
		f.store.subs["user-1"].RevisionCreditsUsed = 2
		f.store.mu.Unlock()

		if _, err := f.svc.Approve(ctx, "admin-1", req.ID); !errors.Is(err, repository.ErrRevisionQuotaExhausted) {
			t.Errorf("got %v, want ErrRevisionQuotaExhausted", err)
		}
		// A failed approval leaves the request pending for later review.
		got, _ := f.svc.Get(ctx, req.ID)
		if got.Status != model.RevisionPending {
			t.Errorf("request status = %s, want pending", got.Status)
		}
	})

	t.Run("unknown request", func(t *testing.T) {
		f := newRevisionFixture(t)
		if _, err := f.svc.Approve(ctx, "admin-1", "rev-404"); !errors.Is(err, repository.ErrRequestNotFound) {
			t.Errorf("got %v, want ErrRequestNotFound", err)
		}
	})
}

func TestRevisionApproveConcurrentLastSlot(t *testing.T) {
	ctx := context.Background()
	f := newRevisionFixture(t)

	// Second video so two requests can be pending at once.
	video2 := &model.Video{UserID: "user-1", Title: "Second reveal", LogoPath: "logos/user-1/logo2.png", TemplateID: "tpl-1"}
	if err := f.videos.CreateVideo(ctx, video2); err != nil {
		t.Fatalf("seeding second video failed: %v", err)
	}
	reqA, err := f.svc.Submit(ctx, "user-1", "video-1", "tighten the timing")
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	reqB, err := f.svc.Submit(ctx, "user-1", video2.ID, "wrong background")
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}

	// One revision slot left; both approvals race for it.
	f.store.mu.Lock()
	f.store.subs["user-1"].RevisionCreditsUsed = 1
	f.store.mu.Unlock()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []string{reqA.ID, reqB.ID} {
		wg.Add(1)
		go func(requestID string) {
			defer wg.Done()
			_, err := f.svc.Approve(ctx, "admin-1", requestID)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	var approved, exhausted int
	for err := range errs {
		switch {
		case err == nil:
			approved++
		case errors.Is(err, repository.ErrRevisionQuotaExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected approval error: %v", err)
		}
	}
	if approved != 1 || exhausted != 1 {
		t.Fatalf("got %d approvals and %d quota rejections, want exactly 1 and 1", approved, exhausted)
	}

	sub, _ := f.store.GetSubscription(ctx, "user-1")
	if sub.RevisionCreditsUsed != 2 {
		t.Errorf("quota used = %d, want 2", sub.RevisionCreditsUsed)
	}
	entries := f.store.entriesFor("user-1")
	if len(entries) != 1 || entries[0].Type != model.EntryRevisionGrant {
		t.Errorf("expected exactly one revision_grant entry, got %+v", entries)
	}
}

func TestRevisionDeny(t *testing.T) {
	ctx := context.Background()

	t.Run("denial records notes and consumes nothing", func(t *testing.T) {
		f := newRevisionFixture(t)
		req, _ := f.svc.Submit(ctx, "user-1", "video-1", "reason")

		denied, err := f.svc.Deny(ctx, "admin-1", req.ID, "  out of scope for the plan  ")
		if err != nil {
			t.Fatalf("Deny failed: %v", err)
		}
		if denied.Status != model.RevisionDenied {
			t.Errorf("got status %s, want denied", denied.Status)
		}
		if denied.AdminNotes == nil || *denied.AdminNotes != "out of scope for the plan" {
			t.Errorf("notes not trimmed/recorded: %+v", denied.AdminNotes)
		}

		sub, _ := f.store.GetSubscription(ctx, "user-1")
		if sub.RevisionCreditsUsed != 0 {
			t.Errorf("denial consumed quota: %d", sub.RevisionCreditsUsed)
		}
		if entries := f.store.entriesFor("user-1"); len(entries) != 0 {
			t.Errorf("denial wrote %d ledger entries", len(entries))
		}
	})

	t.Run("notes too short", func(t *testing.T) {
		f := newRevisionFixture(t)
		req, _ := f.svc.Submit(ctx, "user-1", "video-1", "reason")
		if _, err := f.svc.Deny(ctx, "admin-1", req.ID, "   nope    "); !errors.Is(err, ErrDenialNotesTooShort) {
			t.Errorf("got %v, want ErrDenialNotesTooShort", err)
		}
	})

	t.Run("non-admin cannot deny", func(t *testing.T) {
		f := newRevisionFixture(t)
		req, _ := f.svc.Submit(ctx, "user-1", "video-1", "reason")
		if _, err := f.svc.Deny(ctx, "user-1", req.ID, "long enough notes"); !errors.Is(err, ErrNotAdmin) {
			t.Errorf("got %v, want ErrNotAdmin", err)
		}
	})
}

func TestRevisionListPending(t *testing.T) {
	ctx := context.Background()
	f := newRevisionFixture(t)
	req, _ := f.svc.Submit(ctx, "user-1", "video-1", "reason")

	pending, err := f.svc.ListPending(ctx, "admin-1")
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != req.ID {
		t.Errorf("got %+v, want the single pending request", pending)
	}

	if _, err := f.svc.ListPending(ctx, "user-1"); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("got %v, want ErrNotAdmin", err)
	}
}
