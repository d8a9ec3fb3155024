package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEventAlreadyProcessed is returned when a webhook event's idempotency
// claim finds an existing processed_events row. Callers treat it as a
// successful no-op, not a failure.
var ErrEventAlreadyProcessed = errors.New("event_already_processed")

// claimEvent inserts the event's idempotency record inside the caller's
// transaction. The insert-or-detect is a single statement so two
// concurrent deliveries of the same event cannot both claim it; the
// loser sees zero rows affected. Rolling back the transaction releases
// the claim, which keeps claim and effect one atomic unit.
func claimEvent(ctx context.Context, tx pgx.Tx, eventID, eventType string) error {
	const q = `
        INSERT INTO processed_events (event_id, event_type)
        VALUES ($1, $2)
        ON CONFLICT (event_id) DO NOTHING
    `
	ct, err := tx.Exec(ctx, q, eventID, eventType)
	if err != nil {
		return fmt.Errorf("claim event %s: %w", eventID, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrEventAlreadyProcessed
	}
	return nil
}

// EventRepository exposes read access to the processed-event log. The
// webhook entry point uses it to short-circuit redeliveries before any
// Stripe API calls; claims only happen inside billing transactions.
type EventRepository interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
}

type eventRepo struct {
	pool *pgxpool.Pool
}

// NewEventRepo creates a new EventRepository.
func NewEventRepo(pool *pgxpool.Pool) EventRepository {
	return &eventRepo{pool: pool}
}

func (r *eventRepo) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, q, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check processed event %s: %w", eventID, err)
	}
	return exists, nil
}
