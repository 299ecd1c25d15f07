package borrows

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"library-backend/internal/circulation"
	"library-backend/internal/platform/db"
)

type Store struct {
	db *sql.DB
}

func NewStore(sqldb *sql.DB) *Store { return &Store{db: sqldb} }

const recordColumns = `record_id, record_ulid, user_id, book_id, borrow_date, due_date, return_date,
	status, fine_amount_cents, is_fine_paid, checked_out_by, checked_in_by, notes, created_at`

func scanRecord(row *sql.Row) (*BorrowRecord, error) {
	var r BorrowRecord
	err := row.Scan(
		&r.RecordID, &r.RecordULID, &r.UserID, &r.BookID, &r.BorrowDate, &r.DueDate, &r.ReturnDate,
		&r.Status, &r.FineAmountCents, &r.IsFinePaid, &r.CheckedOutBy, &r.CheckedInBy, &r.Notes, &r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, circulation.ErrNotFound("borrow record not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetByID(ctx context.Context, recordID int64) (*BorrowRecord, error) {
	q := fmt.Sprintf(`SELECT %s FROM borrow_records WHERE record_id = ?`, recordColumns)
	return scanRecord(s.db.QueryRowContext(ctx, q, recordID))
}

func (s *Store) GetByULID(ctx context.Context, ulid string) (*BorrowRecord, error) {
	q := fmt.Sprintf(`SELECT %s FROM borrow_records WHERE record_ulid = ?`, recordColumns)
	return scanRecord(s.db.QueryRowContext(ctx, q, ulid))
}

func (s *Store) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	return CountActiveByUserTx(ctx, s.db, userID)
}

// ListOverdueActiveIDs returns the ids of ACTIVE records past due as of the
// given date. The sweep re-locks and re-validates each record before fining,
// so this scan needs no locks of its own.
func (s *Store) ListOverdueActiveIDs(ctx context.Context, asOf time.Time) ([]int64, error) {
	const q = `
	SELECT record_id FROM borrow_records
	WHERE status = ? AND due_date < ?
	ORDER BY record_id`

	rows, err := s.db.QueryContext(ctx, q, StatusActive, circulation.DateOf(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) List(ctx context.Context, f RecordFilter, p circulation.Page, asOf time.Time) ([]BorrowRecord, int64, error) {
	p = p.Normalize()

	where := strings.Builder{}
	where.WriteString(` WHERE 1=1`)
	args := []any{}
	if f.UserID != nil {
		where.WriteString(` AND user_id = ?`)
		args = append(args, *f.UserID)
	}
	if f.BookID != nil {
		where.WriteString(` AND book_id = ?`)
		args = append(args, *f.BookID)
	}
	if f.Status != nil {
		where.WriteString(` AND status = ?`)
		args = append(args, *f.Status)
	}
	if f.OverdueOnly {
		// 延滞は導出値: ACTIVE かつ期限超過
		where.WriteString(` AND status = ? AND due_date < ?`)
		args = append(args, StatusActive, circulation.DateOf(asOf))
	}
	if f.From != nil {
		where.WriteString(` AND borrow_date >= ?`)
		args = append(args, *f.From)
	}
	if f.To != nil {
		where.WriteString(` AND borrow_date < ?`)
		args = append(args, *f.To)
	}

	order := "DESC"
	if p.Order == "asc" {
		order = "ASC"
	}
	q := fmt.Sprintf(`SELECT %s FROM borrow_records%s ORDER BY borrow_date %s, record_id %s LIMIT ? OFFSET ?`,
		recordColumns, where.String(), order, order)

	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []BorrowRecord
	for rows.Next() {
		var r BorrowRecord
		if err := rows.Scan(
			&r.RecordID, &r.RecordULID, &r.UserID, &r.BookID, &r.BorrowDate, &r.DueDate, &r.ReturnDate,
			&r.Status, &r.FineAmountCents, &r.IsFinePaid, &r.CheckedOutBy, &r.CheckedInBy, &r.Notes, &r.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	cq := `SELECT COUNT(*) FROM borrow_records` + where.String()
	if err := s.db.QueryRowContext(ctx, cq, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ---- Transactional functions ----
//
// These run against the caller's transaction so the limit check, the
// availability write and the record write commit or roll back together.

// LockUserLimitTx locks the user row and returns max_books_allowed. The row
// lock serializes concurrent checkouts by the same user; a bare COUNT cannot
// exclude an insert racing in a parallel transaction.
func LockUserLimitTx(ctx context.Context, q db.DBTX, userID string) (int, error) {
	const query = `SELECT max_books_allowed FROM users WHERE user_id = ? FOR UPDATE`
	var limit int
	if err := q.QueryRowContext(ctx, query, userID).Scan(&limit); err != nil {
		if err == sql.ErrNoRows {
			return 0, circulation.ErrNotFound("user not found")
		}
		return 0, err
	}
	return limit, nil
}

func CountActiveByUserTx(ctx context.Context, q db.DBTX, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM borrow_records WHERE user_id = ? AND status = ?`
	var n int
	if err := q.QueryRowContext(ctx, query, userID, StatusActive).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func GetForUpdateTx(ctx context.Context, q db.DBTX, recordID int64) (*BorrowRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM borrow_records WHERE record_id = ? FOR UPDATE`, recordColumns)
	var r BorrowRecord
	err := q.QueryRowContext(ctx, query, recordID).Scan(
		&r.RecordID, &r.RecordULID, &r.UserID, &r.BookID, &r.BorrowDate, &r.DueDate, &r.ReturnDate,
		&r.Status, &r.FineAmountCents, &r.IsFinePaid, &r.CheckedOutBy, &r.CheckedInBy, &r.Notes, &r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, circulation.ErrNotFound("borrow record not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func InsertTx(ctx context.Context, q db.DBTX, r *BorrowRecord) error {
	const query = `
	INSERT INTO borrow_records
	(record_ulid, user_id, book_id, borrow_date, due_date, status,
	 fine_amount_cents, is_fine_paid, checked_out_by, notes, created_at)
	VALUES
	(?, ?, ?, ?, ?, ?, 0, 0, ?, ?, NOW(6))`

	res, err := q.ExecContext(ctx, query,
		r.RecordULID, r.UserID, r.BookID,
		circulation.DateOf(r.BorrowDate), circulation.DateOf(r.DueDate),
		r.Status, r.CheckedOutBy, r.Notes,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	r.RecordID = id
	return nil
}

func MarkReturnedTx(ctx context.Context, q db.DBTX, recordID int64, returnDate time.Time, checkedInBy string) error {
	const query = `
	UPDATE borrow_records
	SET status = ?, return_date = ?, checked_in_by = ?
	WHERE record_id = ? AND status = ?`

	res, err := q.ExecContext(ctx, query,
		StatusReturned, circulation.DateOf(returnDate), checkedInBy, recordID, StatusActive,
	)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff != 1 {
		return circulation.ErrNotActive("record is not currently active")
	}
	return nil
}

// MarkLostTx is terminal: no return date is set and the copy counter is
// never restored for a lost record.
func MarkLostTx(ctx context.Context, q db.DBTX, recordID int64) error {
	const query = `UPDATE borrow_records SET status = ? WHERE record_id = ? AND status = ?`
	res, err := q.ExecContext(ctx, query, StatusLost, recordID, StatusActive)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff != 1 {
		return circulation.ErrNotActive("record is not currently active")
	}
	return nil
}

// AddFineAmountTx bumps the cached per-record fine total. Every fine issued
// against a record passes through here inside the issuing transaction, which
// keeps the cache equal to the sum of the attached fines.
func AddFineAmountTx(ctx context.Context, q db.DBTX, recordID int64, deltaCents int64) error {
	const query = `
	UPDATE borrow_records
	SET fine_amount_cents = fine_amount_cents + ?, is_fine_paid = 0
	WHERE record_id = ?`

	res, err := q.ExecContext(ctx, query, deltaCents, recordID)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff != 1 {
		return circulation.ErrNotFound("borrow record not found")
	}
	return nil
}

func SetFinePaidTx(ctx context.Context, q db.DBTX, recordID int64, paid bool) error {
	const query = `UPDATE borrow_records SET is_fine_paid = ? WHERE record_id = ?`
	_, err := q.ExecContext(ctx, query, paid, recordID)
	return err
}
