package borrows

import (
	"database/sql"
	"time"

	"library-backend/internal/circulation"
)

// BorrowRecord status values persisted in borrow_records.status.
//
// OVERDUE exists in the enum for compatibility with imported data but is
// never written by this service: overdue-ness is derived at read time from
// an ACTIVE record's due date, so a late return needs no extra transition.
const (
	StatusActive    = "ACTIVE"
	StatusReturned  = "RETURNED"
	StatusOverdue   = "OVERDUE"
	StatusLost      = "LOST"
	StatusCancelled = "CANCELLED"
	StatusExtended  = "EXTENDED"
)

// BorrowRecord は borrow_records テーブルの1行を表す
type BorrowRecord struct {
	RecordID        int64
	RecordULID      string
	UserID          string
	BookID          int64
	BorrowDate      time.Time
	DueDate         time.Time
	ReturnDate      sql.NullTime
	Status          string
	FineAmountCents int64
	IsFinePaid      bool
	CheckedOutBy    sql.NullString
	CheckedInBy     sql.NullString
	Notes           sql.NullString
	CreatedAt       time.Time
}

// IsOverdue reports the derived overdue classification as of the given date.
func (r *BorrowRecord) IsOverdue(asOf time.Time) bool {
	return r.Status == StatusActive && circulation.DateOf(r.DueDate).Before(circulation.DateOf(asOf))
}

// DaysOverdue returns the whole days past due as of the given date, zero
// when not overdue.
func (r *BorrowRecord) DaysOverdue(asOf time.Time) int {
	if !r.IsOverdue(asOf) {
		return 0
	}
	return circulation.DaysBetween(r.DueDate, asOf)
}

type RecordFilter struct {
	UserID      *string
	BookID      *int64
	Status      *string
	OverdueOnly bool
	From        *time.Time
	To          *time.Time
}
