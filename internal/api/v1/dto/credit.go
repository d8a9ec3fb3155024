package dto

import "time"

// CreditCheckResponse answers the advisory affordability check.
type CreditCheckResponse struct {
	Sufficient bool `json:"sufficient"`
	Amount     int  `json:"amount"`
}

// LedgerEntryResponseDTO is one audit-trail row.
type LedgerEntryResponseDTO struct {
	ID          string    `json:"id"`
	Amount      int       `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
