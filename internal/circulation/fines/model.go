package fines

import (
	"database/sql"
	"time"

	"library-backend/internal/circulation"
)

// Fine type values persisted in fines.type.
const (
	TypeOverdue  = "OVERDUE"
	TypeLostBook = "LOST_BOOK"
	TypeDamage   = "DAMAGE"
	TypeOther    = "OTHER"
)

// Fine status values persisted in fines.status.
const (
	StatusPending   = "PENDING"
	StatusPaid      = "PAID"
	StatusWaived    = "WAIVED"
	StatusCancelled = "CANCELLED"
)

// Fine は fines テーブルの1行を表す。金額はすべて整数セント。
type Fine struct {
	FineID          int64
	FineULID        string
	UserID          string
	BorrowRecordID  sql.NullInt64 // 貸出に紐付かない罰金（破損など）は NULL
	AmountCents     int64
	Type            string
	Status          string
	Reason          string
	IssueDate       time.Time
	DueDate         sql.NullTime
	PaidAmountCents int64
	PaidDate        sql.NullTime
	ProcessedBy     sql.NullString
	CreatedAt       time.Time
}

// RemainingCents is derived at read time, never persisted.
func (f *Fine) RemainingCents() int64 {
	return f.AmountCents - f.PaidAmountCents
}

func (f *Fine) IsFullyPaid() bool {
	return f.PaidAmountCents >= f.AmountCents
}

// IsOverdue: 支払期限超過かつ未払い
func (f *Fine) IsOverdue(asOf time.Time) bool {
	return f.Status == StatusPending &&
		f.DueDate.Valid &&
		circulation.DateOf(f.DueDate.Time).Before(circulation.DateOf(asOf))
}

func ValidType(t string) bool {
	switch t {
	case TypeOverdue, TypeLostBook, TypeDamage, TypeOther:
		return true
	}
	return false
}

type FineFilter struct {
	UserID         *string
	BorrowRecordID *int64
	Status         *string
	Type           *string
	OverdueOnly    bool
}
