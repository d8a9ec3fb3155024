package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

type videoFixture struct {
	store     *fakeStore
	videos    *fakeVideoRepo
	publisher *fakePublisher
	svc       VideoService
}

func newVideoFixture(t *testing.T) *videoFixture {
	t.Helper()
	store := newFakeStore()
	videos := newFakeVideoRepo()
	publisher := &fakePublisher{}
	creditSvc := NewCreditService(store, store, store, zerolog.Nop())
	// No presign client: these tests never request URLs.
	svc := NewVideoService(videos, creditSvc, nil, "test-bucket", publisher, "render_jobs", zerolog.Nop())
	return &videoFixture{store: store, videos: videos, publisher: publisher, svc: svc}
}

func TestCreateVideoSpendsAndDispatches(t *testing.T) {
	f := newVideoFixture(t)
	seedSubscription(f.store, "user-1", 3, 0)
	ctx := context.Background()

	video, sub, err := f.svc.CreateVideo(ctx, "user-1", "Logo reveal", "logos/user-1/logo.png", "tpl-1")
	if err != nil {
		t.Fatalf("CreateVideo failed: %v", err)
	}
	if video.Status != model.VideoProcessing {
		t.Errorf("got status %s, want processing", video.Status)
	}
	if sub.CreditsRemaining != 2 {
		t.Errorf("got %d credits after create, want 2", sub.CreditsRemaining)
	}

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	if len(f.publisher.published) != 1 {
		t.Fatalf("got %d render jobs, want 1", len(f.publisher.published))
	}
	var job struct {
		VideoID    string `json:"video_id"`
		UserID     string `json:"user_id"`
		LogoPath   string `json:"logo_path"`
		TemplateID string `json:"template_id"`
	}
	if err := json.Unmarshal(f.publisher.published[0], &job); err != nil {
		t.Fatalf("render job payload is not JSON: %v", err)
	}
	if job.VideoID != video.ID || job.TemplateID != "tpl-1" {
		t.Errorf("unexpected render job payload: %+v", job)
	}
}

func TestCreateVideoInsufficientCreditsRemovesRecord(t *testing.T) {
	f := newVideoFixture(t)
	seedSubscription(f.store, "user-1", 0, 0)
	ctx := context.Background()

	_, _, err := f.svc.CreateVideo(ctx, "user-1", "Logo reveal", "logos/user-1/logo.png", "tpl-1")
	if !errors.Is(err, repository.ErrInsufficientCredits) {
		t.Fatalf("got %v, want ErrInsufficientCredits", err)
	}

	// The provisional record must not survive a failed spend.
	videos, _ := f.videos.ListVideosByUser(ctx, "user-1", 0)
	if len(videos) != 0 {
		t.Errorf("failed spend left %d video records", len(videos))
	}
	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	if len(f.publisher.published) != 0 {
		t.Errorf("failed spend dispatched %d render jobs", len(f.publisher.published))
	}
}

func TestCreateVideoPublishFailureKeepsVideo(t *testing.T) {
	f := newVideoFixture(t)
	seedSubscription(f.store, "user-1", 3, 0)
	f.publisher.err = errors.New("broker down")
	ctx := context.Background()

	// The credit is spent and the record kept; dispatch is retried out
	// of band.
	video, sub, err := f.svc.CreateVideo(ctx, "user-1", "Logo reveal", "logos/user-1/logo.png", "tpl-1")
	if err != nil {
		t.Fatalf("publish failure must not fail creation: %v", err)
	}
	if video == nil || sub.CreditsRemaining != 2 {
		t.Errorf("expected video and spent credit, got %+v / %+v", video, sub)
	}
}

func TestGetVideoOwnership(t *testing.T) {
	f := newVideoFixture(t)
	seedSubscription(f.store, "user-1", 3, 0)
	ctx := context.Background()

	video, _, err := f.svc.CreateVideo(ctx, "user-1", "Logo reveal", "logos/user-1/logo.png", "tpl-1")
	if err != nil {
		t.Fatalf("CreateVideo failed: %v", err)
	}

	if _, err := f.svc.GetVideo(ctx, "user-1", video.ID); err != nil {
		t.Errorf("owner read failed: %v", err)
	}
	if _, err := f.svc.GetVideo(ctx, "user-2", video.ID); !errors.Is(err, ErrVideoNotOwned) {
		t.Errorf("got %v, want ErrVideoNotOwned", err)
	}
	if _, err := f.svc.GetVideo(ctx, "user-1", "video-404"); !errors.Is(err, repository.ErrVideoNotFound) {
		t.Errorf("got %v, want ErrVideoNotFound", err)
	}
}

func TestHandleRenderCallback(t *testing.T) {
	ctx := context.Background()

	created := func(t *testing.T) (*videoFixture, *model.Video) {
		t.Helper()
		f := newVideoFixture(t)
		seedSubscription(f.store, "user-1", 3, 0)
		video, _, err := f.svc.CreateVideo(ctx, "user-1", "Logo reveal", "logos/user-1/logo.png", "tpl-1")
		if err != nil {
			t.Fatalf("CreateVideo failed: %v", err)
		}
		return f, video
	}

	strPtr := func(s string) *string { return &s }

	t.Run("completed callback stores asset paths", func(t *testing.T) {
		f, video := created(t)
		got, err := f.svc.HandleRenderCallback(ctx, video.ID, "exec-1", model.VideoCompleted,
			strPtr("videos/v.mp4"), strPtr("thumbs/t.jpg"), nil)
		if err != nil {
			t.Fatalf("callback failed: %v", err)
		}
		if got.Status != model.VideoCompleted || got.VideoURL == nil || *got.VideoURL != "videos/v.mp4" {
			t.Errorf("unexpected video after callback: %+v", got)
		}
	})

	t.Run("failed callback records error message", func(t *testing.T) {
		f, video := created(t)
		got, err := f.svc.HandleRenderCallback(ctx, video.ID, "exec-1", model.VideoFailed, nil, nil, strPtr("render timeout"))
		if err != nil {
			t.Fatalf("callback failed: %v", err)
		}
		if got.Status != model.VideoFailed || got.ErrorMessage == nil || *got.ErrorMessage != "render timeout" {
			t.Errorf("unexpected video after failed callback: %+v", got)
		}
	})

	t.Run("repeat with same execution id is idempotent", func(t *testing.T) {
		f, video := created(t)
		if _, err := f.svc.HandleRenderCallback(ctx, video.ID, "exec-1", model.VideoCompleted,
			strPtr("videos/v.mp4"), nil, nil); err != nil {
			t.Fatalf("first callback failed: %v", err)
		}
		if _, err := f.svc.HandleRenderCallback(ctx, video.ID, "exec-1", model.VideoCompleted,
			strPtr("videos/v.mp4"), nil, nil); err != nil {
			t.Fatalf("repeat callback should be a no-op, got %v", err)
		}
	})

	t.Run("stale execution id is rejected", func(t *testing.T) {
		f, video := created(t)
		if _, err := f.svc.HandleRenderCallback(ctx, video.ID, "exec-1", model.VideoCompleted,
			strPtr("videos/v.mp4"), nil, nil); err != nil {
			t.Fatalf("first callback failed: %v", err)
		}
		_, err := f.svc.HandleRenderCallback(ctx, video.ID, "exec-2", model.VideoFailed, nil, nil, strPtr("late worker"))
		if !errors.Is(err, repository.ErrStaleRenderUpdate) {
			t.Errorf("got %v, want ErrStaleRenderUpdate", err)
		}
	})

	t.Run("processing progress report claims the execution", func(t *testing.T) {
		f, video := created(t)
		got, err := f.svc.HandleRenderCallback(ctx, video.ID, "exec-1", model.VideoProcessing, nil, nil, nil)
		if err != nil {
			t.Fatalf("processing callback rejected: %v", err)
		}
		if got.Status != model.VideoProcessing || got.ExecutionID == nil || *got.ExecutionID != "exec-1" {
			t.Errorf("progress report did not claim the execution: %+v", got)
		}
		// The claimed execution finishes normally; a rival cannot.
		if _, err := f.svc.HandleRenderCallback(ctx, video.ID, "exec-1", model.VideoCompleted,
			strPtr("videos/v.mp4"), nil, nil); err != nil {
			t.Fatalf("completion by the claimed execution failed: %v", err)
		}
		if _, err := f.svc.HandleRenderCallback(ctx, video.ID, "exec-2", model.VideoFailed, nil, nil, nil); !errors.Is(err, repository.ErrStaleRenderUpdate) {
			t.Errorf("got %v, want ErrStaleRenderUpdate for rival execution", err)
		}
	})

	t.Run("callback without execution id keeps existing claim", func(t *testing.T) {
		f, video := created(t)
		if _, err := f.svc.HandleRenderCallback(ctx, video.ID, "exec-1", model.VideoProcessing, nil, nil, nil); err != nil {
			t.Fatalf("processing callback rejected: %v", err)
		}
		got, err := f.svc.HandleRenderCallback(ctx, video.ID, "", model.VideoCompleted, strPtr("videos/v.mp4"), nil, nil)
		if err != nil {
			t.Fatalf("callback without execution id rejected: %v", err)
		}
		if got.ExecutionID == nil || *got.ExecutionID != "exec-1" {
			t.Errorf("existing claim was disturbed: %+v", got.ExecutionID)
		}
	})

	t.Run("invalid status is rejected", func(t *testing.T) {
		f, video := created(t)
		if _, err := f.svc.HandleRenderCallback(ctx, video.ID, "exec-1", model.VideoStatus("queued"), nil, nil, nil); err == nil {
			t.Error("queued is not a valid callback status")
		}
	})

	t.Run("unknown video", func(t *testing.T) {
		f, _ := created(t)
		_, err := f.svc.HandleRenderCallback(ctx, "video-404", "exec-1", model.VideoCompleted, strPtr("v"), nil, nil)
		if !errors.Is(err, repository.ErrVideoNotFound) {
			t.Errorf("got %v, want ErrVideoNotFound", err)
		}
	})
}
