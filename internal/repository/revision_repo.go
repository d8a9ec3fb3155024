package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrDuplicateRequest is returned when a revision request already
	// exists for the video, whatever its status.
	ErrDuplicateRequest = errors.New("duplicate_revision_request")
	// ErrRequestNotPending is returned when approving or denying a
	// request that has already reached a terminal state.
	ErrRequestNotPending = errors.New("revision_request_not_pending")
	// ErrRevisionQuotaExhausted is returned when the cycle's revision
	// allocation has no slot left.
	ErrRevisionQuotaExhausted = errors.New("revision_quota_exhausted")
	// ErrRequestNotFound is returned for an unknown request id.
	ErrRequestNotFound = errors.New("revision_request_not_found")
)

const revisionColumns = `
        id, user_id, video_id, reason, status,
        admin_notes, reviewed_by, requested_at, reviewed_at`

// RevisionRepository persists the revision-request state machine.
// Approve and Deny are single transactions; a request that is no longer
// pending fails cleanly with ErrRequestNotPending and no effects.
type RevisionRepository interface {
	CreateRequest(ctx context.Context, req *model.RevisionRequest) error
	GetRequest(ctx context.Context, id string) (*model.RevisionRequest, error)
	ListPending(ctx context.Context) ([]model.RevisionRequest, error)
	ApproveRequest(ctx context.Context, requestID, adminID string) (*model.RevisionRequest, error)
	DenyRequest(ctx context.Context, requestID, adminID, notes string) (*model.RevisionRequest, error)
}

type revisionRepo struct {
	pool *pgxpool.Pool
}

// NewRevisionRepo creates a new RevisionRepository.
func NewRevisionRepo(pool *pgxpool.Pool) RevisionRepository {
	return &revisionRepo{pool: pool}
}

// CreateRequest inserts a pending request. The one-request-per-video
// rule is the videos unique constraint, not an application check, so a
// concurrent duplicate submission loses at the store.
func (r *revisionRepo) CreateRequest(ctx context.Context, req *model.RevisionRequest) error {
	const q = `
        INSERT INTO revision_requests (user_id, video_id, reason)
        VALUES ($1, $2, $3)
        RETURNING id, status, requested_at
    `
	err := r.pool.QueryRow(ctx, q, req.UserID, req.VideoID, req.Reason).
		Scan(&req.ID, &req.Status, &req.RequestedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("create revision request for video %s: %w", req.VideoID, err)
	}
	return nil
}

func (r *revisionRepo) GetRequest(ctx context.Context, id string) (*model.RevisionRequest, error) {
	q := `SELECT ` + revisionColumns + ` FROM revision_requests WHERE id = $1`
	req, err := scanRevisionRequest(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("fetch revision request %s: %w", id, err)
	}
	return req, nil
}

func (r *revisionRepo) ListPending(ctx context.Context) ([]model.RevisionRequest, error) {
	q := `SELECT ` + revisionColumns + ` FROM revision_requests WHERE status = 'pending' ORDER BY requested_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list pending revision requests: %w", err)
	}
	defer rows.Close()

	var reqs []model.RevisionRequest
	for rows.Next() {
		req, err := scanRevisionRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan revision request: %w", err)
		}
		reqs = append(reqs, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending revision requests: %w", err)
	}
	return reqs, nil
}

// ApproveRequest re-checks the request state and the account's revision
// allocation under row locks, then moves one slot from available to
// used and marks the request approved, all in one transaction. Two
// concurrent approvals near the quota boundary cannot both succeed.
func (r *revisionRepo) ApproveRequest(ctx context.Context, requestID, adminID string) (*model.RevisionRequest, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin approve transaction for request %s: %w", requestID, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	req, err := lockRequest(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != model.RevisionPending {
		return nil, ErrRequestNotPending
	}

	sub, err := lockSubscription(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}
	if sub.RevisionCreditsUsed >= sub.RevisionCreditsTotal {
		return nil, ErrRevisionQuotaExhausted
	}

	const useQ = `
        UPDATE subscriptions
        SET revision_credits_used = revision_credits_used + 1, updated_at = NOW()
        WHERE user_id = $1
    `
	if _, err := tx.Exec(ctx, useQ, req.UserID); err != nil {
		return nil, fmt.Errorf("consume revision slot for user %s: %w", req.UserID, err)
	}

	const approveQ = `
        UPDATE revision_requests
        SET status = 'approved', reviewed_by = $2, reviewed_at = NOW()
        WHERE id = $1
        RETURNING ` + revisionColumns + `
    `
	req, err = scanRevisionRequest(tx.QueryRow(ctx, approveQ, requestID, adminID))
	if err != nil {
		return nil, fmt.Errorf("approve revision request %s: %w", requestID, err)
	}

	if err := appendLedgerEntry(ctx, tx, req.UserID, &sub.ID, 1, model.EntryRevisionGrant,
		fmt.Sprintf("Revision credit granted for video %s", req.VideoID)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit approval of request %s: %w", requestID, err)
	}
	return req, nil
}

func (r *revisionRepo) DenyRequest(ctx context.Context, requestID, adminID, notes string) (*model.RevisionRequest, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin deny transaction for request %s: %w", requestID, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	req, err := lockRequest(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != model.RevisionPending {
		return nil, ErrRequestNotPending
	}

	const q = `
        UPDATE revision_requests
        SET status = 'denied', admin_notes = $2, reviewed_by = $3, reviewed_at = NOW()
        WHERE id = $1
        RETURNING ` + revisionColumns + `
    `
	req, err = scanRevisionRequest(tx.QueryRow(ctx, q, requestID, notes, adminID))
	if err != nil {
		return nil, fmt.Errorf("deny revision request %s: %w", requestID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit denial of request %s: %w", requestID, err)
	}
	return req, nil
}

func lockRequest(ctx context.Context, tx pgx.Tx, requestID string) (*model.RevisionRequest, error) {
	q := `SELECT ` + revisionColumns + ` FROM revision_requests WHERE id = $1 FOR UPDATE`
	req, err := scanRevisionRequest(tx.QueryRow(ctx, q, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("lock revision request %s: %w", requestID, err)
	}
	return req, nil
}

func scanRevisionRequest(row pgx.Row) (*model.RevisionRequest, error) {
	var req model.RevisionRequest
	err := row.Scan(
		&req.ID, &req.UserID, &req.VideoID, &req.Reason, &req.Status,
		&req.AdminNotes, &req.ReviewedBy, &req.RequestedAt, &req.ReviewedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
