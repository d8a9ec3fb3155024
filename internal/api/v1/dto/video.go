package dto

import "time"

// LogoUploadRequest asks for a presigned upload URL for a logo asset.
type LogoUploadRequest struct {
	Filename string `json:"filename" validate:"required"`
}

// LogoUploadResponse carries the presigned PUT URL and the storage
// path to reference in the subsequent video creation call.
type LogoUploadResponse struct {
	LogoPath  string `json:"logo_path"`
	UploadURL string `json:"upload_url"`
}

// VideoCreateRequest creates a render job. The spend happens as part
// of this call.
type VideoCreateRequest struct {
	Title      string `json:"title" validate:"required,max=200"`
	LogoPath   string `json:"logo_path" validate:"required"`
	TemplateID string `json:"template_id" validate:"required"`
}

// VideoResponseDTO is returned for a single video.
type VideoResponseDTO struct {
	VideoID      string    `json:"video_id"`
	Title        string    `json:"title"`
	TemplateID   string    `json:"template_id"`
	Status       string    `json:"status"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// VideoCreateResponse is the creation result plus the post-spend
// balance for immediate UI feedback.
type VideoCreateResponse struct {
	Video            VideoResponseDTO `json:"video"`
	SpendableCredits int              `json:"spendable_credits"`
}

// PlaybackURLsResponse carries short-lived presigned GET URLs.
type PlaybackURLsResponse struct {
	VideoURL     string `json:"video_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// RenderCallbackRequest is the render worker's status report. The
// execution id is optional; when present the first report claims it.
type RenderCallbackRequest struct {
	VideoID       string  `json:"video_id" validate:"required"`
	ExecutionID   string  `json:"execution_id,omitempty"`
	Status        string  `json:"status" validate:"required,oneof=processing completed failed"`
	VideoPath     *string `json:"video_path,omitempty"`
	ThumbnailPath *string `json:"thumbnail_path,omitempty"`
	ErrorMessage  *string `json:"error_message,omitempty"`
}
