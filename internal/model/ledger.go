package model

import "time"

// LedgerEntryType classifies a credit ledger entry.
type LedgerEntryType string

const (
	EntrySubscriptionGrant LedgerEntryType = "subscription_grant"
	EntryPurchase          LedgerEntryType = "purchase"
	EntryUsage             LedgerEntryType = "usage"
	EntryRefund            LedgerEntryType = "refund"
	EntryBonusRollover     LedgerEntryType = "bonus_rollover"
	EntryExpiry            LedgerEntryType = "expiry"
	EntryRevisionGrant     LedgerEntryType = "revision_grant"
)

// CreditLedgerEntry is one row of the append-only credit ledger: every
// balance change on a subscription is traceable to exactly one entry.
// Entries are never updated or deleted; corrections are new entries.
//
// Amount is signed: positive for grants, negative for consumption and
// expiry. Purchase and refund entries affect the overage pool; all
// other types affect the plan pool.
type CreditLedgerEntry struct {
	ID             string          `db:"id" json:"id"`
	UserID         string          `db:"user_id" json:"user_id"`
	SubscriptionID *string         `db:"subscription_id" json:"subscription_id,omitempty"`
	Amount         int             `db:"amount" json:"amount"`
	Type           LedgerEntryType `db:"type" json:"type"`
	Description    string          `db:"description" json:"description"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// ProcessedEvent records an external billing event that has been applied.
// The unique event_id row is the sole idempotency signal: a claim is an
// insert of this row inside the same transaction as the state change.
type ProcessedEvent struct {
	EventID    string    `db:"event_id" json:"event_id"`
	EventType  string    `db:"event_type" json:"event_type"`
	ReceivedAt time.Time `db:"received_at" json:"received_at"`
}
