package lifecycle

import (
	"context"
	"database/sql"
	"time"

	"library-backend/internal/catalog/books"
	"library-backend/internal/circulation/borrows"
	"library-backend/internal/circulation/fines"
	"library-backend/internal/platform/db"
)

// TxRunner executes fn inside one atomic unit of work.
type TxRunner func(ctx context.Context, fn func(ctx context.Context, q db.DBTX) error) error

// The orchestrator talks to its collaborators through these narrow ports so
// the lifecycle rules stay testable without a database. The q handle ties
// every call to the orchestrator's transaction.

type CatalogStore interface {
	LockBook(ctx context.Context, q db.DBTX, bookID int64) (*books.Book, error)
	AdjustAvailability(ctx context.Context, q db.DBTX, bookID int64, delta int, newStatus string) error
}

type BorrowStore interface {
	LockUserLimit(ctx context.Context, q db.DBTX, userID string) (int, error)
	CountActive(ctx context.Context, q db.DBTX, userID string) (int, error)
	Insert(ctx context.Context, q db.DBTX, r *borrows.BorrowRecord) error
	GetForUpdate(ctx context.Context, q db.DBTX, recordID int64) (*borrows.BorrowRecord, error)
	MarkReturned(ctx context.Context, q db.DBTX, recordID int64, returnDate time.Time, checkedInBy string) error
	MarkLost(ctx context.Context, q db.DBTX, recordID int64) error
	GetIDByULID(ctx context.Context, ulid string) (int64, error)
	ListOverdueActiveIDs(ctx context.Context, asOf time.Time) ([]int64, error)
}

type FineStore interface {
	Issue(ctx context.Context, q db.DBTX, f *fines.Fine) error
	SumPostedOverdue(ctx context.Context, q db.DBTX, recordID int64) (int64, error)
}

// ---- SQL adapters ----

type sqlCatalog struct{}

func (sqlCatalog) LockBook(ctx context.Context, q db.DBTX, bookID int64) (*books.Book, error) {
	return books.LockRowTx(ctx, q, bookID)
}

func (sqlCatalog) AdjustAvailability(ctx context.Context, q db.DBTX, bookID int64, delta int, newStatus string) error {
	return books.AdjustAvailabilityTx(ctx, q, bookID, delta, newStatus)
}

type sqlBorrows struct{ store *borrows.Store }

func (a sqlBorrows) LockUserLimit(ctx context.Context, q db.DBTX, userID string) (int, error) {
	return borrows.LockUserLimitTx(ctx, q, userID)
}

func (a sqlBorrows) CountActive(ctx context.Context, q db.DBTX, userID string) (int, error) {
	return borrows.CountActiveByUserTx(ctx, q, userID)
}

func (a sqlBorrows) Insert(ctx context.Context, q db.DBTX, r *borrows.BorrowRecord) error {
	return borrows.InsertTx(ctx, q, r)
}

func (a sqlBorrows) GetForUpdate(ctx context.Context, q db.DBTX, recordID int64) (*borrows.BorrowRecord, error) {
	return borrows.GetForUpdateTx(ctx, q, recordID)
}

func (a sqlBorrows) MarkReturned(ctx context.Context, q db.DBTX, recordID int64, returnDate time.Time, checkedInBy string) error {
	return borrows.MarkReturnedTx(ctx, q, recordID, returnDate, checkedInBy)
}

func (a sqlBorrows) MarkLost(ctx context.Context, q db.DBTX, recordID int64) error {
	return borrows.MarkLostTx(ctx, q, recordID)
}

func (a sqlBorrows) GetIDByULID(ctx context.Context, ulid string) (int64, error) {
	r, err := a.store.GetByULID(ctx, ulid)
	if err != nil {
		return 0, err
	}
	return r.RecordID, nil
}

func (a sqlBorrows) ListOverdueActiveIDs(ctx context.Context, asOf time.Time) ([]int64, error) {
	return a.store.ListOverdueActiveIDs(ctx, asOf)
}

type sqlFines struct{}

func (sqlFines) Issue(ctx context.Context, q db.DBTX, f *fines.Fine) error {
	return fines.IssueTx(ctx, q, f)
}

func (sqlFines) SumPostedOverdue(ctx context.Context, q db.DBTX, recordID int64) (int64, error) {
	return fines.SumPostedOverdueTx(ctx, q, recordID)
}

func sqlTxRunner(sqldb *sql.DB) TxRunner {
	return func(ctx context.Context, fn func(ctx context.Context, q db.DBTX) error) error {
		return db.RunInTx(ctx, sqldb, nil, fn)
	}
}
