package fines

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-backend/internal/circulation"
)

func TestBuild_OverdueDefaults(t *testing.T) {
	now := time.Date(2024, 1, 11, 15, 30, 0, 0, time.UTC)
	recID := int64(7)

	f := Build("ULID-1", "u1", &recID, 500, TypeOverdue, "overdue by 10 days", now, 30)

	assert.Equal(t, StatusPending, f.Status)
	assert.Equal(t, day(2024, 1, 11), f.IssueDate)
	require.True(t, f.BorrowRecordID.Valid)
	assert.Equal(t, int64(7), f.BorrowRecordID.Int64)
	require.True(t, f.DueDate.Valid)
	assert.Equal(t, day(2024, 2, 10), f.DueDate.Time)
	assert.Zero(t, f.PaidAmountCents)
}

func TestBuild_NonOverdueHasNoDueDate(t *testing.T) {
	now := day(2024, 1, 11)

	f := Build("ULID-2", "u1", nil, 2500, TypeLostBook, "replacement cost for lost book", now, 30)

	assert.False(t, f.DueDate.Valid)
	assert.False(t, f.BorrowRecordID.Valid)
	assert.Equal(t, int64(2500), f.RemainingCents())
}

func TestApplyPayment_PartialThenFull(t *testing.T) {
	now := day(2024, 3, 1)
	f := Build("ULID-3", "u1", nil, 2000, TypeOther, "test", now, 30)

	// 12.00 の一部入金では PENDING のまま
	require.NoError(t, applyPayment(f, 1200, now))
	assert.Equal(t, StatusPending, f.Status)
	assert.Equal(t, int64(800), f.RemainingCents())
	assert.False(t, f.IsFullyPaid())
	assert.False(t, f.PaidDate.Valid)

	// 残額 8.00 の入金で PAID になる
	later := day(2024, 3, 5)
	require.NoError(t, applyPayment(f, 800, later))
	assert.Equal(t, StatusPaid, f.Status)
	assert.Zero(t, f.RemainingCents())
	require.True(t, f.PaidDate.Valid)
	assert.Equal(t, later, f.PaidDate.Time)
}

func TestApplyPayment_ExactFull(t *testing.T) {
	now := day(2024, 3, 1)
	f := Build("ULID-4", "u1", nil, 500, TypeOverdue, "test", now, 30)

	require.NoError(t, applyPayment(f, 500, now))
	assert.Equal(t, StatusPaid, f.Status)
}

func TestApplyPayment_AlreadyPaid(t *testing.T) {
	now := day(2024, 3, 1)
	f := Build("ULID-5", "u1", nil, 500, TypeOverdue, "test", now, 30)
	require.NoError(t, applyPayment(f, 500, now))

	err := applyPayment(f, 100, now)
	assert.Equal(t, circulation.CodeAlreadyPaid, circulation.CodeOf(err))
	assert.Equal(t, int64(500), f.PaidAmountCents)
}

func TestApplyPayment_RejectsNonPositiveAmount(t *testing.T) {
	now := day(2024, 3, 1)
	f := Build("ULID-6", "u1", nil, 500, TypeOverdue, "test", now, 30)

	assert.Equal(t, circulation.CodeInvalidAmount, circulation.CodeOf(applyPayment(f, 0, now)))
	assert.Equal(t, circulation.CodeInvalidAmount, circulation.CodeOf(applyPayment(f, -100, now)))
	assert.Zero(t, f.PaidAmountCents)
}

func TestApplyPayment_RejectsOverpayment(t *testing.T) {
	now := day(2024, 3, 1)
	f := Build("ULID-7", "u1", nil, 500, TypeOverdue, "test", now, 30)
	require.NoError(t, applyPayment(f, 300, now))

	err := applyPayment(f, 300, now)
	assert.Equal(t, circulation.CodeOverPayment, circulation.CodeOf(err))

	// 拒否された支払いは状態を変えない
	assert.Equal(t, int64(300), f.PaidAmountCents)
	assert.Equal(t, StatusPending, f.Status)
}

func TestApplyPayment_RejectsSettledFines(t *testing.T) {
	now := day(2024, 3, 1)

	waived := Build("ULID-8", "u1", nil, 500, TypeOverdue, "test", now, 30)
	waived.Status = StatusWaived
	assert.Equal(t, circulation.CodeInvalidArgument, circulation.CodeOf(applyPayment(waived, 100, now)))

	cancelled := Build("ULID-9", "u1", nil, 500, TypeOverdue, "test", now, 30)
	cancelled.Status = StatusCancelled
	assert.Equal(t, circulation.CodeInvalidArgument, circulation.CodeOf(applyPayment(cancelled, 100, now)))
}

func TestFine_IsOverdue(t *testing.T) {
	f := Build("ULID-10", "u1", nil, 500, TypeOverdue, "test", day(2024, 1, 1), 30)

	assert.False(t, f.IsOverdue(day(2024, 1, 31)), "due date itself")
	assert.True(t, f.IsOverdue(day(2024, 2, 1)))

	paid := *f
	paid.Status = StatusPaid
	assert.False(t, paid.IsOverdue(day(2024, 2, 1)))
}
