package fines

import "time"

type IssueFineRequest struct {
	UserID         string  `json:"user_id" binding:"required"`
	BorrowRecordID *int64  `json:"borrow_record_id,omitempty"`
	AmountCents    int64   `json:"amount_cents" binding:"required"`
	Type           string  `json:"type" binding:"required"`
	Reason         string  `json:"reason" binding:"required"`
	DueDate        *string `json:"due_date,omitempty"` // "2006-01-02"
}

type PayFineRequest struct {
	AmountCents int64 `json:"amount_cents" binding:"required"`
}

type FineResponse struct {
	FineID          int64      `json:"fine_id"`
	FineULID        string     `json:"fine_ulid"`
	UserID          string     `json:"user_id"`
	BorrowRecordID  *int64     `json:"borrow_record_id,omitempty"`
	AmountCents     int64      `json:"amount_cents"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	Reason          string     `json:"reason"`
	IssueDate       time.Time  `json:"issue_date"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	PaidAmountCents int64      `json:"paid_amount_cents"`
	RemainingCents  int64      `json:"remaining_amount_cents"`
	IsFullyPaid     bool       `json:"is_fully_paid"`
	IsOverdue       bool       `json:"is_overdue"`
	PaidDate        *time.Time `json:"paid_date,omitempty"`
	ProcessedBy     *string    `json:"processed_by,omitempty"`
}

type FineListResponse struct {
	Items []FineResponse `json:"items"`
	Total int64          `json:"total"`
}

type UnpaidTotalResponse struct {
	UserID           string `json:"user_id"`
	UnpaidTotalCents int64  `json:"unpaid_total_cents"`
}

// ToResponse maps a fine to its response shape; the derived amounts and
// overdue flag are computed against asOf, never read from storage.
func ToResponse(f *Fine, asOf time.Time) FineResponse {
	resp := FineResponse{
		FineID:          f.FineID,
		FineULID:        f.FineULID,
		UserID:          f.UserID,
		AmountCents:     f.AmountCents,
		Type:            f.Type,
		Status:          f.Status,
		Reason:          f.Reason,
		IssueDate:       f.IssueDate,
		PaidAmountCents: f.PaidAmountCents,
		RemainingCents:  f.RemainingCents(),
		IsFullyPaid:     f.IsFullyPaid(),
		IsOverdue:       f.IsOverdue(asOf),
	}
	if f.BorrowRecordID.Valid {
		v := f.BorrowRecordID.Int64
		resp.BorrowRecordID = &v
	}
	if f.DueDate.Valid {
		v := f.DueDate.Time
		resp.DueDate = &v
	}
	if f.PaidDate.Valid {
		v := f.PaidDate.Time
		resp.PaidDate = &v
	}
	if f.ProcessedBy.Valid {
		v := f.ProcessedBy.String
		resp.ProcessedBy = &v
	}
	return resp
}
