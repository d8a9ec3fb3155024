package dto

import "time"

// RevisionSubmitRequest files a revision request for a video.
type RevisionSubmitRequest struct {
	VideoID string `json:"video_id" validate:"required"`
	Reason  string `json:"reason" validate:"required,min=1,max=1000"`
}

// RevisionDenyRequest denies a pending request. Notes are mandatory
// and must carry a real explanation.
type RevisionDenyRequest struct {
	Notes string `json:"notes" validate:"required,min=10,max=1000"`
}

// RevisionResponseDTO is returned for a single revision request.
type RevisionResponseDTO struct {
	RequestID   string     `json:"request_id"`
	VideoID     string     `json:"video_id"`
	UserID      string     `json:"user_id"`
	Reason      string     `json:"reason"`
	Status      string     `json:"status"`
	AdminNotes  *string    `json:"admin_notes,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
}
