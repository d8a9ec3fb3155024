package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVideoNotFound is returned for an unknown video id.
var ErrVideoNotFound = errors.New("video_not_found")

// ErrStaleRenderUpdate is returned when a render callback carries an
// execution id that does not match the one stored on the video. The
// callback is a safe no-op.
var ErrStaleRenderUpdate = errors.New("stale_render_update")

const videoColumns = `
        id, user_id, title, logo_path, template_id, status,
        video_url, thumbnail_url, error_message, execution_id,
        created_at, updated_at`

// VideoRepository persists render jobs. Render-status updates are
// conditioned on the stored execution id being null or matching the
// incoming one, which makes repeated worker callbacks idempotent.
type VideoRepository interface {
	CreateVideo(ctx context.Context, v *model.Video) error
	GetVideoByID(ctx context.Context, id string) (*model.Video, error)
	ListVideosByUser(ctx context.Context, userID string, limit int) ([]model.Video, error)
	DeleteVideo(ctx context.Context, id string) error
	UpdateRenderStatus(ctx context.Context, videoID, executionID string, status model.VideoStatus, videoURL, thumbnailURL, errorMessage *string) (*model.Video, error)
}

type videoRepo struct {
	pool *pgxpool.Pool
}

// NewVideoRepo creates a new VideoRepository.
func NewVideoRepo(pool *pgxpool.Pool) VideoRepository {
	return &videoRepo{pool: pool}
}

func (r *videoRepo) CreateVideo(ctx context.Context, v *model.Video) error {
	const q = `
        INSERT INTO videos (user_id, title, logo_path, template_id, status)
        VALUES ($1, $2, $3, $4, 'processing')
        RETURNING id, status, created_at, updated_at
    `
	err := r.pool.QueryRow(ctx, q, v.UserID, v.Title, v.LogoPath, v.TemplateID).
		Scan(&v.ID, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create video for user %s: %w", v.UserID, err)
	}
	return nil
}

func (r *videoRepo) GetVideoByID(ctx context.Context, id string) (*model.Video, error) {
	q := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`
	v, err := scanVideo(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVideoNotFound
		}
		return nil, fmt.Errorf("fetch video %s: %w", id, err)
	}
	return v, nil
}

func (r *videoRepo) ListVideosByUser(ctx context.Context, userID string, limit int) ([]model.Video, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := `SELECT ` + videoColumns + ` FROM videos WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list videos for user %s: %w", userID, err)
	}
	defer rows.Close()

	var videos []model.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos for user %s: %w", userID, err)
	}
	return videos, nil
}

// DeleteVideo removes a video row. Only used to clean up after a
// failed creation flow, before any render job exists for the video.
func (r *videoRepo) DeleteVideo(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete video %s: %w", id, err)
	}
	return nil
}

// UpdateRenderStatus applies a worker callback. The WHERE clause is the
// idempotency rule: the first callback carrying an execution id claims
// it, repeats with the same id reapply harmlessly, and a different id
// against an already-claimed video changes nothing. Callbacks without
// an execution id skip the claim and leave any existing claim intact.
func (r *videoRepo) UpdateRenderStatus(ctx context.Context, videoID, executionID string, status model.VideoStatus, videoURL, thumbnailURL, errorMessage *string) (*model.Video, error) {
	const q = `
        UPDATE videos
        SET status = $3,
            execution_id = COALESCE(NULLIF($2, ''), execution_id),
            video_url = COALESCE($4, video_url),
            thumbnail_url = COALESCE($5, thumbnail_url),
            error_message = $6,
            updated_at = NOW()
        WHERE id = $1
          AND ($2 = '' OR execution_id IS NULL OR execution_id = $2)
        RETURNING ` + videoColumns + `
    `
	v, err := scanVideo(r.pool.QueryRow(ctx, q, videoID, executionID, status, videoURL, thumbnailURL, errorMessage))
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update render status for video %s: %w", videoID, err)
	}

	// No row matched: either the video is unknown or another execution
	// already owns it.
	if _, getErr := r.GetVideoByID(ctx, videoID); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStaleRenderUpdate
}

func scanVideo(row pgx.Row) (*model.Video, error) {
	var v model.Video
	err := row.Scan(
		&v.ID, &v.UserID, &v.Title, &v.LogoPath, &v.TemplateID, &v.Status,
		&v.VideoURL, &v.ThumbnailURL, &v.ErrorMessage, &v.ExecutionID,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
