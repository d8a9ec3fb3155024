package model

import "time"

// VideoStatus is the render lifecycle of a video.
type VideoStatus string

const (
	VideoProcessing VideoStatus = "processing"
	VideoCompleted  VideoStatus = "completed"
	VideoFailed     VideoStatus = "failed"
)

// Video represents one logo-animation render job. The credit spend
// happens at creation time; render success or failure never moves
// credits (confirmed technical failures are refunded manually).
//
// ExecutionID is the render worker's run identifier. Status callbacks
// only apply when the stored ExecutionID is null or matches the
// incoming one, which makes repeated callbacks safe no-ops.
type Video struct {
	ID           string      `db:"id" json:"id"`
	UserID       string      `db:"user_id" json:"user_id"`
	Title        string      `db:"title" json:"title"`
	LogoPath     string      `db:"logo_path" json:"logo_path"`
	TemplateID   string      `db:"template_id" json:"template_id"`
	Status       VideoStatus `db:"status" json:"status"`
	VideoURL     *string     `db:"video_url" json:"video_url,omitempty"`
	ThumbnailURL *string     `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	ErrorMessage *string     `db:"error_message" json:"error_message,omitempty"`
	ExecutionID  *string     `db:"execution_id" json:"execution_id,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}
