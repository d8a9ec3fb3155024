package model

import "time"

// RevisionStatus is the lifecycle state of a revision request.
// pending -> approved or pending -> denied; both are terminal.
type RevisionStatus string

const (
	RevisionPending  RevisionStatus = "pending"
	RevisionApproved RevisionStatus = "approved"
	RevisionDenied   RevisionStatus = "denied"
)

// RevisionRequest is a user's ask for one free revision of a video.
// At most one request per video, enforced by a unique constraint.
// Approval grants exactly one revision credit, atomically, only while
// the cycle's allocation is not exhausted.
type RevisionRequest struct {
	ID          string         `db:"id" json:"id"`
	UserID      string         `db:"user_id" json:"user_id"`
	VideoID     string         `db:"video_id" json:"video_id"`
	Reason      string         `db:"reason" json:"reason"`
	Status      RevisionStatus `db:"status" json:"status"`
	AdminNotes  *string        `db:"admin_notes" json:"admin_notes,omitempty"`
	ReviewedBy  *string        `db:"reviewed_by" json:"reviewed_by,omitempty"`
	RequestedAt time.Time      `db:"requested_at" json:"requested_at"`
	ReviewedAt  *time.Time     `db:"reviewed_at" json:"reviewed_at,omitempty"`
}

// IsTerminal reports whether the request can no longer transition.
func (r *RevisionRequest) IsTerminal() bool {
	return r.Status == RevisionApproved || r.Status == RevisionDenied
}
