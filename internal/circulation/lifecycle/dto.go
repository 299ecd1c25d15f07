package lifecycle

import "time"

type CheckoutRequest struct {
	UserID string  `json:"user_id" binding:"required"`
	BookID int64   `json:"book_id" binding:"required"`
	Notes  *string `json:"notes,omitempty"`
}

// ReturnRequest identifies the loan by numeric id or ULID.
type ReturnRequest struct {
	RecordID   int64  `json:"record_id"`
	RecordULID string `json:"record_ulid"`
}

type SweepRequest struct {
	// "2006-01-02"; defaults to today.
	AsOf *string `json:"as_of,omitempty"`
	// Defaults to the configured daily rate.
	DailyRateCents *int64 `json:"daily_rate_cents,omitempty"`
}

type SweepResponse struct {
	AsOf              time.Time `json:"as_of"`
	Scanned           int       `json:"scanned"`
	FinesIssued       int       `json:"fines_issued"`
	AmountIssuedCents int64     `json:"amount_issued_cents"`
	Skipped           int       `json:"skipped"`
}
