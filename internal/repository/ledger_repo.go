package repository

import (
	"context"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRepository reads the append-only credit ledger. Writes happen
// only through appendLedgerEntry inside the atomic operations of the
// billing, credit and revision repositories, so a ledger row always
// commits together with the balance change it explains.
type LedgerRepository interface {
	ListEntries(ctx context.Context, userID string, limit int) ([]model.CreditLedgerEntry, error)
}

type ledgerRepo struct {
	pool *pgxpool.Pool
}

// NewLedgerRepo creates a new LedgerRepository.
func NewLedgerRepo(pool *pgxpool.Pool) LedgerRepository {
	return &ledgerRepo{pool: pool}
}

func (r *ledgerRepo) ListEntries(ctx context.Context, userID string, limit int) ([]model.CreditLedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `
        SELECT id, user_id, subscription_id, amount, type, description, created_at
        FROM credit_ledger
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries for user %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []model.CreditLedgerEntry
	for rows.Next() {
		var e model.CreditLedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.SubscriptionID, &e.Amount, &e.Type, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries for user %s: %w", userID, err)
	}
	return entries, nil
}

// appendLedgerEntry inserts one ledger row inside the caller's
// transaction. The ledger is append-only: no update or delete exists
// anywhere in this package.
func appendLedgerEntry(ctx context.Context, tx pgx.Tx, userID string, subscriptionID *string, amount int, entryType model.LedgerEntryType, description string) error {
	const q = `
        INSERT INTO credit_ledger (user_id, subscription_id, amount, type, description)
        VALUES ($1, $2, $3, $4, $5)
    `
	if _, err := tx.Exec(ctx, q, userID, subscriptionID, amount, entryType, description); err != nil {
		return fmt.Errorf("append %s ledger entry for user %s: %w", entryType, userID, err)
	}
	return nil
}
