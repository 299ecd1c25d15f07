package borrows

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBorrowRecord_IsOverdue(t *testing.T) {
	rec := BorrowRecord{
		Status:  StatusActive,
		DueDate: day(2024, 1, 15),
	}

	assert.False(t, rec.IsOverdue(day(2024, 1, 10)))
	assert.False(t, rec.IsOverdue(day(2024, 1, 15)), "due date itself is not overdue")
	assert.True(t, rec.IsOverdue(day(2024, 1, 16)))

	// ACTIVE 以外は期日超過扱いにならない
	for _, status := range []string{StatusReturned, StatusLost, StatusCancelled} {
		rec.Status = status
		assert.False(t, rec.IsOverdue(day(2024, 2, 1)), status)
	}
}

func TestBorrowRecord_IsOverdue_IgnoresTimeOfDay(t *testing.T) {
	rec := BorrowRecord{
		Status:  StatusActive,
		DueDate: time.Date(2024, 1, 15, 23, 0, 0, 0, time.UTC),
	}
	assert.False(t, rec.IsOverdue(time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC)))
	assert.True(t, rec.IsOverdue(time.Date(2024, 1, 16, 0, 30, 0, 0, time.UTC)))
}

func TestBorrowRecord_DaysOverdue(t *testing.T) {
	rec := BorrowRecord{
		Status:  StatusActive,
		DueDate: day(2024, 1, 1),
	}

	assert.Equal(t, 0, rec.DaysOverdue(day(2024, 1, 1)))
	assert.Equal(t, 1, rec.DaysOverdue(day(2024, 1, 2)))
	assert.Equal(t, 10, rec.DaysOverdue(day(2024, 1, 11)))

	rec.Status = StatusReturned
	assert.Equal(t, 0, rec.DaysOverdue(day(2024, 1, 11)))
}

func TestToResponse_DerivedFields(t *testing.T) {
	rec := &BorrowRecord{
		RecordID:   1,
		RecordULID: "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		UserID:     "u1",
		BookID:     2,
		BorrowDate: day(2023, 12, 18),
		DueDate:    day(2024, 1, 1),
		Status:     StatusActive,
	}

	resp := ToResponse(rec, day(2024, 1, 6))
	assert.True(t, resp.IsOverdue)
	assert.Equal(t, 5, resp.DaysOverdue)
	assert.Nil(t, resp.ReturnDate)
	assert.Nil(t, resp.CheckedInBy)

	onTime := ToResponse(rec, day(2023, 12, 25))
	assert.False(t, onTime.IsOverdue)
	assert.Equal(t, 0, onTime.DaysOverdue)
}
