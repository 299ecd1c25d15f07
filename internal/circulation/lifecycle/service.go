package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"library-backend/internal/catalog/books"
	"library-backend/internal/circulation"
	"library-backend/internal/circulation/borrows"
	"library-backend/internal/circulation/fines"
	"library-backend/internal/platform/db"
)

// Service sequences the operations that touch more than one of
// {catalog, borrow ledger, fine ledger}. Each mutation is one transaction:
// either every write lands or none does.
type Service struct {
	runTx   TxRunner
	catalog CatalogStore
	borrows BorrowStore
	fines   FineStore
	clock   circulation.Clock
	id      circulation.IDGen
	cfg     db.CirculationConfig
}

func NewService(sqldb *sql.DB, cfg db.CirculationConfig) *Service {
	return &Service{
		runTx:   sqlTxRunner(sqldb),
		catalog: sqlCatalog{},
		borrows: sqlBorrows{store: borrows.NewStore(sqldb)},
		fines:   sqlFines{},
		clock:   circulation.RealClock{},
		id:      circulation.ULIDGen{},
		cfg:     cfg,
	}
}

// runWithRetry retries a conflicted transaction exactly once before
// surfacing CONFLICT to the caller.
func (s *Service) runWithRetry(ctx context.Context, fn func(ctx context.Context, q db.DBTX) error) error {
	err := s.runTx(ctx, fn)
	if err == nil || !db.IsLockConflict(err) {
		return err
	}
	log.Printf("[INFO] lock conflict, retrying once: %v", err)
	if err = s.runTx(ctx, fn); err != nil && db.IsLockConflict(err) {
		return circulation.ErrConflict("operation conflicted with a concurrent update, please retry")
	}
	return err
}

// Checkout creates an ACTIVE loan and takes one copy out of availability.
// Lock order is user → book; the user lock serializes checkouts by the same
// user so the limit check and the insert share one atomic unit.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest, staffID string) (*borrows.RecordResponse, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, circulation.ErrInvalid("user_id is required")
	}
	if req.BookID <= 0 {
		return nil, circulation.ErrInvalid("book_id must be > 0")
	}

	now := s.clock.Now()
	var rec *borrows.BorrowRecord
	err := s.runWithRetry(ctx, func(ctx context.Context, q db.DBTX) error {
		limit, err := s.borrows.LockUserLimit(ctx, q, req.UserID)
		if err != nil {
			return err
		}
		active, err := s.borrows.CountActive(ctx, q, req.UserID)
		if err != nil {
			return err
		}
		if active >= limit {
			return circulation.ErrLimitExceeded(
				fmt.Sprintf("user has reached the maximum borrowing limit of %d", limit))
		}

		b, err := s.catalog.LockBook(ctx, q, req.BookID)
		if err != nil {
			return err
		}
		if b.Status != books.StatusAvailable && b.Status != books.StatusBorrowed {
			return circulation.ErrBookUnavailable(fmt.Sprintf("book is %s", b.Status))
		}
		if b.AvailableCopies <= 0 {
			return circulation.ErrBookUnavailable("no copies available")
		}

		// 最後の1冊が出たときだけ BORROWED に落とす
		newStatus := ""
		if b.AvailableCopies == 1 {
			newStatus = books.StatusBorrowed
		}
		if err := s.catalog.AdjustAvailability(ctx, q, b.BookID, -1, newStatus); err != nil {
			return err
		}

		rec = &borrows.BorrowRecord{
			RecordULID: s.id.NewULID(now),
			UserID:     req.UserID,
			BookID:     req.BookID,
			BorrowDate: circulation.DateOf(now),
			DueDate:    circulation.DateOf(now).AddDate(0, 0, s.cfg.LoanPeriodDays),
			Status:     borrows.StatusActive,
		}
		if staffID != "" {
			rec.CheckedOutBy = sql.NullString{String: staffID, Valid: true}
		}
		if req.Notes != nil && *req.Notes != "" {
			rec.Notes = sql.NullString{String: *req.Notes, Valid: true}
		}
		return s.borrows.Insert(ctx, q, rec)
	})
	if err != nil {
		return nil, err
	}

	resp := borrows.ToResponse(rec, now)
	return &resp, nil
}

// Return closes an ACTIVE loan, restores availability and, for a late
// return, issues the overdue fine against the return date rather than
// today's date.
func (s *Service) Return(ctx context.Context, req ReturnRequest, staffID string) (*borrows.RecordResponse, error) {
	recordID, err := s.resolveRecordID(ctx, req.RecordID, req.RecordULID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	returnDate := circulation.DateOf(now)
	var out borrows.RecordResponse
	err = s.runWithRetry(ctx, func(ctx context.Context, q db.DBTX) error {
		rec, err := s.borrows.GetForUpdate(ctx, q, recordID)
		if err != nil {
			return err
		}
		if rec.Status != borrows.StatusActive {
			return circulation.ErrNotActive(fmt.Sprintf("record is %s, not ACTIVE", rec.Status))
		}

		if err := s.borrows.MarkReturned(ctx, q, recordID, returnDate, staffID); err != nil {
			return err
		}

		b, err := s.catalog.LockBook(ctx, q, rec.BookID)
		if err != nil {
			return err
		}
		if b.AvailableCopies < b.TotalCopies {
			newStatus := ""
			if b.Status == books.StatusBorrowed {
				newStatus = books.StatusAvailable
			}
			if err := s.catalog.AdjustAvailability(ctx, q, b.BookID, 1, newStatus); err != nil {
				return err
			}
		}

		if circulation.DateOf(rec.DueDate).Before(returnDate) {
			issued, err := s.issueOverdueDelta(ctx, q, rec, returnDate, s.cfg.DailyFineRateCents, staffID)
			if err != nil {
				return err
			}
			if issued > 0 {
				rec.FineAmountCents += issued
				rec.IsFinePaid = false
			}
		}

		rec.Status = borrows.StatusReturned
		rec.ReturnDate = sql.NullTime{Time: returnDate, Valid: true}
		if staffID != "" {
			rec.CheckedInBy = sql.NullString{String: staffID, Valid: true}
		}
		out = borrows.ToResponse(rec, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkLost is terminal: the copy is presumed gone, availability is not
// restored, and a replacement-cost fine is issued.
func (s *Service) MarkLost(ctx context.Context, key string, staffID string) (*borrows.RecordResponse, error) {
	recordID, err := s.resolveRecordKey(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var out borrows.RecordResponse
	err = s.runWithRetry(ctx, func(ctx context.Context, q db.DBTX) error {
		rec, err := s.borrows.GetForUpdate(ctx, q, recordID)
		if err != nil {
			return err
		}
		if rec.Status != borrows.StatusActive {
			return circulation.ErrNotActive(fmt.Sprintf("record is %s, not ACTIVE", rec.Status))
		}

		if err := s.borrows.MarkLost(ctx, q, recordID); err != nil {
			return err
		}

		recID := rec.RecordID
		f := fines.Build(s.id.NewULID(now), rec.UserID, &recID, s.cfg.ReplacementCostCents,
			fines.TypeLostBook, "replacement cost for lost book", now, s.cfg.FineDueDays)
		if staffID != "" {
			f.ProcessedBy = sql.NullString{String: staffID, Valid: true}
		}
		if err := s.fines.Issue(ctx, q, f); err != nil {
			return err
		}

		rec.Status = borrows.StatusLost
		rec.FineAmountCents += f.AmountCents
		rec.IsFinePaid = false
		out = borrows.ToResponse(rec, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SweepOverdue scans ACTIVE loans past due and posts the incremental fine
// for newly elapsed days. Each record gets its own short transaction and is
// re-validated under lock, so a loan returned between the scan and the write
// is skipped, and a second sweep with the same asOf issues nothing.
func (s *Service) SweepOverdue(ctx context.Context, req SweepRequest) (*SweepResponse, error) {
	now := s.clock.Now()
	asOf := circulation.DateOf(now)
	if req.AsOf != nil && *req.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", *req.AsOf)
		if err != nil {
			return nil, circulation.ErrInvalid("invalid as_of format, expected YYYY-MM-DD")
		}
		asOf = circulation.DateOf(parsed)
	}

	rate := s.cfg.DailyFineRateCents
	if req.DailyRateCents != nil {
		if *req.DailyRateCents <= 0 {
			return nil, circulation.ErrInvalidAmount("daily_rate_cents must be > 0")
		}
		rate = *req.DailyRateCents
	}

	ids, err := s.borrows.ListOverdueActiveIDs(ctx, asOf)
	if err != nil {
		return nil, err
	}

	resp := &SweepResponse{AsOf: asOf, Scanned: len(ids)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var issued int64
		err := s.runTx(ctx, func(ctx context.Context, q db.DBTX) error {
			rec, err := s.borrows.GetForUpdate(ctx, q, id)
			if err != nil {
				return err
			}
			// 再検証: スキャン後に返却・紛失処理された貸出はスキップ
			if !rec.IsOverdue(asOf) {
				return nil
			}
			issued, err = s.issueOverdueDelta(ctx, q, rec, asOf, rate, "")
			return err
		})
		if err != nil {
			log.Printf("[WARN] overdue sweep: record %d: %v", id, err)
			resp.Skipped++
			continue
		}
		if issued > 0 {
			resp.FinesIssued++
			resp.AmountIssuedCents += issued
		}
	}
	return resp, nil
}

// issueOverdueDelta posts the difference between the expected overdue fine
// as of asOf and the OVERDUE total already on the record (the watermark).
// Zero or negative deltas issue nothing, which is what makes repeated
// sweeps and sweep-then-return sequences idempotent.
func (s *Service) issueOverdueDelta(ctx context.Context, q db.DBTX, rec *borrows.BorrowRecord, asOf time.Time, rateCents int64, staffID string) (int64, error) {
	expected := fines.CalculateOverdueFine(rec.DueDate, asOf, rateCents)
	if expected <= 0 {
		return 0, nil
	}
	posted, err := s.fines.SumPostedOverdue(ctx, q, rec.RecordID)
	if err != nil {
		return 0, err
	}
	delta := expected - posted
	if delta <= 0 {
		return 0, nil
	}

	days := circulation.DaysBetween(rec.DueDate, asOf)
	recID := rec.RecordID
	f := fines.Build(s.id.NewULID(s.clock.Now()), rec.UserID, &recID, delta, fines.TypeOverdue,
		fmt.Sprintf("overdue by %d days", days), s.clock.Now(), s.cfg.FineDueDays)
	if staffID != "" {
		f.ProcessedBy = sql.NullString{String: staffID, Valid: true}
	}
	if err := s.fines.Issue(ctx, q, f); err != nil {
		return 0, err
	}
	return delta, nil
}

func (s *Service) resolveRecordID(ctx context.Context, recordID int64, recordULID string) (int64, error) {
	if recordID > 0 {
		return recordID, nil
	}
	if recordULID != "" {
		return s.borrows.GetIDByULID(ctx, recordULID)
	}
	return 0, circulation.ErrInvalid("record_id or record_ulid is required")
}

func (s *Service) resolveRecordKey(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, circulation.ErrInvalid("id or ulid is required")
	}
	if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	return s.borrows.GetIDByULID(ctx, key)
}
