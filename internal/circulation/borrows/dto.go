package borrows

import "time"

type RecordResponse struct {
	RecordID        int64      `json:"record_id"`
	RecordULID      string     `json:"record_ulid"`
	UserID          string     `json:"user_id"`
	BookID          int64      `json:"book_id"`
	BorrowDate      time.Time  `json:"borrow_date"`
	DueDate         time.Time  `json:"due_date"`
	ReturnDate      *time.Time `json:"return_date,omitempty"`
	Status          string     `json:"status"`
	IsOverdue       bool       `json:"is_overdue"`
	DaysOverdue     int        `json:"days_overdue"`
	FineAmountCents int64      `json:"fine_amount_cents"`
	IsFinePaid      bool       `json:"is_fine_paid"`
	CheckedOutBy    *string    `json:"checked_out_by,omitempty"`
	CheckedInBy     *string    `json:"checked_in_by,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
}

type RecordListResponse struct {
	Items []RecordResponse `json:"items"`
	Total int64            `json:"total"`
}

type ActiveCountResponse struct {
	UserID      string `json:"user_id"`
	ActiveCount int    `json:"active_count"`
}

// ToResponse maps a record to its response shape; the derived overdue
// fields are computed against asOf, never read from storage.
func ToResponse(r *BorrowRecord, asOf time.Time) RecordResponse {
	resp := RecordResponse{
		RecordID:        r.RecordID,
		RecordULID:      r.RecordULID,
		UserID:          r.UserID,
		BookID:          r.BookID,
		BorrowDate:      r.BorrowDate,
		DueDate:         r.DueDate,
		Status:          r.Status,
		IsOverdue:       r.IsOverdue(asOf),
		DaysOverdue:     r.DaysOverdue(asOf),
		FineAmountCents: r.FineAmountCents,
		IsFinePaid:      r.IsFinePaid,
	}
	if r.ReturnDate.Valid {
		v := r.ReturnDate.Time
		resp.ReturnDate = &v
	}
	if r.CheckedOutBy.Valid {
		v := r.CheckedOutBy.String
		resp.CheckedOutBy = &v
	}
	if r.CheckedInBy.Valid {
		v := r.CheckedInBy.String
		resp.CheckedInBy = &v
	}
	if r.Notes.Valid {
		v := r.Notes.String
		resp.Notes = &v
	}
	return resp
}
