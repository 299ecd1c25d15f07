package fines

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"library-backend/internal/circulation"
	"library-backend/internal/circulation/borrows"
	"library-backend/internal/platform/db"
)

type Service struct {
	db          *sql.DB
	store       *Store
	clock       circulation.Clock
	id          circulation.IDGen
	fineDueDays int
}

func NewService(sqldb *sql.DB, cfg db.CirculationConfig) *Service {
	return &Service{
		db:          sqldb,
		store:       NewStore(sqldb),
		clock:       circulation.RealClock{},
		id:          circulation.ULIDGen{},
		fineDueDays: cfg.FineDueDays,
	}
}

func (s *Service) Store() *Store { return s.store }

// Build assembles an unsaved fine with the issuance defaults applied:
// PENDING status, issue date now, and for OVERDUE fines a payment due date
// fineDueDays out. Shared with the orchestrator's return and sweep flows.
func Build(ulid, userID string, recordID *int64, amountCents int64, fineType, reason string, now time.Time, fineDueDays int) *Fine {
	f := &Fine{
		FineULID:    ulid,
		UserID:      userID,
		AmountCents: amountCents,
		Type:        fineType,
		Status:      StatusPending,
		Reason:      reason,
		IssueDate:   circulation.DateOf(now),
	}
	if recordID != nil {
		f.BorrowRecordID.Int64 = *recordID
		f.BorrowRecordID.Valid = true
	}
	if fineType == TypeOverdue {
		f.DueDate.Time = circulation.DateOf(now).AddDate(0, 0, fineDueDays)
		f.DueDate.Valid = true
	}
	return f
}

// Issue is the manual staff path; the sweep and the return flow issue their
// fines through IssueTx inside the orchestrator's transactions.
func (s *Service) Issue(ctx context.Context, req IssueFineRequest, processedBy string) (*FineResponse, error) {
	if req.AmountCents <= 0 {
		return nil, circulation.ErrInvalidAmount("amount_cents must be > 0")
	}
	if !ValidType(req.Type) {
		return nil, circulation.ErrInvalid("type must be OVERDUE, LOST_BOOK, DAMAGE or OTHER")
	}
	if req.Reason == "" {
		return nil, circulation.ErrInvalid("reason is required")
	}

	now := s.clock.Now()
	f := Build(s.id.NewULID(now), req.UserID, req.BorrowRecordID, req.AmountCents, req.Type, req.Reason, now, s.fineDueDays)
	if processedBy != "" {
		f.ProcessedBy.String = processedBy
		f.ProcessedBy.Valid = true
	}
	if req.DueDate != nil && *req.DueDate != "" {
		parsed, err := time.Parse("2006-01-02", *req.DueDate)
		if err != nil {
			return nil, circulation.ErrInvalid("invalid due_date format, expected YYYY-MM-DD")
		}
		f.DueDate.Time = parsed
		f.DueDate.Valid = true
	}

	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, q db.DBTX) error {
		if f.BorrowRecordID.Valid {
			rec, err := borrows.GetForUpdateTx(ctx, q, f.BorrowRecordID.Int64)
			if err != nil {
				return err
			}
			if rec.UserID != f.UserID {
				return circulation.ErrInvalid("fine user does not match the record's borrower")
			}
		}
		return IssueTx(ctx, q, f)
	})
	if err != nil {
		return nil, err
	}

	resp := ToResponse(f, now)
	return &resp, nil
}

// applyPayment validates and applies a payment to the in-memory fine.
// Pure with respect to storage so the reconciliation rules are testable on
// their own.
func applyPayment(f *Fine, amountCents int64, now time.Time) error {
	if f.Status == StatusPaid {
		return circulation.ErrAlreadyPaid("fine is already paid")
	}
	if f.Status == StatusWaived || f.Status == StatusCancelled {
		return circulation.ErrInvalid(fmt.Sprintf("fine is %s and cannot be paid", f.Status))
	}
	if amountCents <= 0 {
		return circulation.ErrInvalidAmount("payment amount must be > 0")
	}
	if amountCents > f.RemainingCents() {
		return circulation.ErrOverPayment(
			fmt.Sprintf("payment of %d exceeds remaining amount of %d", amountCents, f.RemainingCents()))
	}

	f.PaidAmountCents += amountCents
	if f.IsFullyPaid() {
		f.Status = StatusPaid
		f.PaidDate.Time = circulation.DateOf(now)
		f.PaidDate.Valid = true
	}
	return nil
}

func (s *Service) Pay(ctx context.Context, key string, req PayFineRequest, processedBy string) (*FineResponse, error) {
	fineID, err := s.resolveID(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var paid *Fine
	err = db.RunInTx(ctx, s.db, nil, func(ctx context.Context, q db.DBTX) error {
		f, err := GetForUpdateTx(ctx, q, fineID)
		if err != nil {
			return err
		}
		if err := applyPayment(f, req.AmountCents, now); err != nil {
			return err
		}
		if processedBy != "" {
			f.ProcessedBy.String = processedBy
			f.ProcessedBy.Valid = true
		}
		if err := ApplyPaymentTx(ctx, q, f); err != nil {
			return err
		}
		if f.Status == StatusPaid && f.BorrowRecordID.Valid {
			if err := s.settleRecordFlag(ctx, q, f.BorrowRecordID.Int64); err != nil {
				return err
			}
		}
		paid = f
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := ToResponse(paid, now)
	return &resp, nil
}

// Waive forgives an unpaid fine; the amount stays on the record's cached
// total as a trace of what was assessed.
func (s *Service) Waive(ctx context.Context, key string, processedBy string) (*FineResponse, error) {
	return s.settle(ctx, key, StatusWaived, processedBy)
}

// Cancel voids a fine entirely and removes its amount from the record's
// cached total.
func (s *Service) Cancel(ctx context.Context, key string, processedBy string) (*FineResponse, error) {
	return s.settle(ctx, key, StatusCancelled, processedBy)
}

func (s *Service) settle(ctx context.Context, key, status, processedBy string) (*FineResponse, error) {
	fineID, err := s.resolveID(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var settled *Fine
	err = db.RunInTx(ctx, s.db, nil, func(ctx context.Context, q db.DBTX) error {
		f, err := GetForUpdateTx(ctx, q, fineID)
		if err != nil {
			return err
		}
		if f.Status == StatusPaid {
			return circulation.ErrAlreadyPaid("fine is already paid")
		}
		if f.Status != StatusPending {
			return circulation.ErrInvalid(fmt.Sprintf("fine is already %s", f.Status))
		}

		if err := UpdateStatusTx(ctx, q, f.FineID, status, processedBy); err != nil {
			return err
		}
		f.Status = status
		if processedBy != "" {
			f.ProcessedBy.String = processedBy
			f.ProcessedBy.Valid = true
		}

		if f.BorrowRecordID.Valid {
			if status == StatusCancelled {
				if err := SubtractRecordCacheTx(ctx, q, f.BorrowRecordID.Int64, f.AmountCents); err != nil {
					return err
				}
			}
			if err := s.settleRecordFlag(ctx, q, f.BorrowRecordID.Int64); err != nil {
				return err
			}
		}
		settled = f
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := ToResponse(settled, now)
	return &resp, nil
}

// settleRecordFlag flips borrow_records.is_fine_paid once no attached fine
// is left PENDING.
func (s *Service) settleRecordFlag(ctx context.Context, q db.DBTX, recordID int64) error {
	n, err := CountUnsettledByRecordTx(ctx, q, recordID)
	if err != nil {
		return err
	}
	if n == 0 {
		return borrows.SetFinePaidTx(ctx, q, recordID, true)
	}
	return nil
}

func (s *Service) resolveID(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, circulation.ErrInvalid("id or ulid is required")
	}
	if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	f, err := s.store.GetByULID(ctx, key)
	if err != nil {
		return 0, err
	}
	return f.FineID, nil
}

func (s *Service) GetByKey(ctx context.Context, key string) (*FineResponse, error) {
	fineID, err := s.resolveID(ctx, key)
	if err != nil {
		return nil, err
	}
	f, err := s.store.GetByID(ctx, fineID)
	if err != nil {
		return nil, err
	}
	resp := ToResponse(f, s.clock.Now())
	return &resp, nil
}

func (s *Service) List(ctx context.Context, f FineFilter, p circulation.Page) (*FineListResponse, error) {
	now := s.clock.Now()
	items, total, err := s.store.List(ctx, f, p, now)
	if err != nil {
		return nil, err
	}

	out := FineListResponse{Total: total, Items: []FineResponse{}}
	for i := range items {
		out.Items = append(out.Items, ToResponse(&items[i], now))
	}
	return &out, nil
}

func (s *Service) TotalUnpaidByUser(ctx context.Context, userID string) (*UnpaidTotalResponse, error) {
	if userID == "" {
		return nil, circulation.ErrInvalid("user_id is required")
	}
	total, err := s.store.TotalUnpaidByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UnpaidTotalResponse{UserID: userID, UnpaidTotalCents: total}, nil
}
