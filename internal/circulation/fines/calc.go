package fines

import (
	"time"

	"library-backend/internal/circulation"
)

// CalculateOverdueFine returns the total overdue fine in cents for a loan
// due on dueDate as of asOf. Pure: dailyRateCents × whole days elapsed,
// clamped to zero for non-overdue input.
func CalculateOverdueFine(dueDate, asOf time.Time, dailyRateCents int64) int64 {
	days := circulation.DaysBetween(dueDate, asOf)
	if days <= 0 {
		return 0
	}
	return dailyRateCents * int64(days)
}
