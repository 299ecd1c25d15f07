package fines

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

const fineColumns = `fine_id, fine_ulid, user_id, borrow_record_id, amount_cents, type, status,
	reason, issue_date, due_date, paid_amount_cents, paid_date, processed_by, created_at`

func scanFine(row *sql.Row) (*Fine, error) {
	var f Fine
	err := row.Scan(
		&f.FineID, &f.FineULID, &f.UserID, &f.BorrowRecordID, &f.AmountCents, &f.Type, &f.Status,
		&f.Reason, &f.IssueDate, &f.DueDate, &f.PaidAmountCents, &f.PaidDate, &f.ProcessedBy, &f.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, circulation.ErrNotFound("fine not found")
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) GetByID(ctx context.Context, fineID int64) (*Fine, error) {
	q := fmt.Sprintf(`SELECT %s FROM fines WHERE fine_id = ?`, fineColumns)
	return scanFine(s.db.QueryRowContext(ctx, q, fineID))
}

func (s *Store) GetByULID(ctx context.Context, ulid string) (*Fine, error) {
	q := fmt.Sprintf(`SELECT %s FROM fines WHERE fine_ulid = ?`, fineColumns)
	return scanFine(s.db.QueryRowContext(ctx, q, ulid))
}

// TotalUnpaidByUser: PENDING の (amount - paid) 合計
func (s *Store) TotalUnpaidByUser(ctx context.Context, userID string) (int64, error) {
	const q = `
	SELECT COALESCE(SUM(amount_cents - paid_amount_cents), 0)
	FROM fines
	WHERE user_id = ? AND status = ?`

	var total int64
	if err := s.db.QueryRowContext(ctx, q, userID, StatusPending).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) List(ctx context.Context, f FineFilter, p circulation.Page, asOf time.Time) ([]Fine, int64, error) {
	p = p.Normalize()

	where := strings.Builder{}
	where.WriteString(` WHERE 1=1`)
	args := []any{}
	if f.UserID != nil {
		where.WriteString(` AND user_id = ?`)
		args = append(args, *f.UserID)
	}
	if f.BorrowRecordID != nil {
		where.WriteString(` AND borrow_record_id = ?`)
		args = append(args, *f.BorrowRecordID)
	}
	if f.Status != nil {
		where.WriteString(` AND status = ?`)
		args = append(args, *f.Status)
	}
	if f.Type != nil {
		where.WriteString(` AND type = ?`)
		args = append(args, *f.Type)
	}
	if f.OverdueOnly {
		// 支払延滞も導出値: PENDING かつ支払期限超過
		where.WriteString(` AND status = ? AND due_date IS NOT NULL AND due_date < ?`)
		args = append(args, StatusPending, circulation.DateOf(asOf))
	}

	order := "DESC"
	if p.Order == "asc" {
		order = "ASC"
	}
	q := fmt.Sprintf(`SELECT %s FROM fines%s ORDER BY issue_date %s, fine_id %s LIMIT ? OFFSET ?`,
		fineColumns, where.String(), order, order)

	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Fine
	for rows.Next() {
		var f Fine
		if err := rows.Scan(
			&f.FineID, &f.FineULID, &f.UserID, &f.BorrowRecordID, &f.AmountCents, &f.Type, &f.Status,
			&f.Reason, &f.IssueDate, &f.DueDate, &f.PaidAmountCents, &f.PaidDate, &f.ProcessedBy, &f.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	cq := `SELECT COUNT(*) FROM fines` + where.String()
	if err := s.db.QueryRowContext(ctx, cq, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ---- Transactional functions ----

// IssueTx inserts the fine and, when it is attached to a borrow record,
// bumps that record's cached fine total in the same transaction.
func IssueTx(ctx context.Context, q db.DBTX, f *Fine) error {
	const query = `
	INSERT INTO fines
	(fine_ulid, user_id, borrow_record_id, amount_cents, type, status,
	 reason, issue_date, due_date, paid_amount_cents, processed_by, created_at)
	VALUES
	(?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, NOW(6))`

	var due any
	if f.DueDate.Valid {
		due = circulation.DateOf(f.DueDate.Time)
	}
	res, err := q.ExecContext(ctx, query,
		f.FineULID, f.UserID, f.BorrowRecordID, f.AmountCents, f.Type, f.Status,
		f.Reason, circulation.DateOf(f.IssueDate), due, f.ProcessedBy,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	f.FineID = id

	if f.BorrowRecordID.Valid {
		const cache = `
		UPDATE borrow_records
		SET fine_amount_cents = fine_amount_cents + ?, is_fine_paid = 0
		WHERE record_id = ?`
		cres, err := q.ExecContext(ctx, cache, f.AmountCents, f.BorrowRecordID.Int64)
		if err != nil {
			return err
		}
		aff, _ := cres.RowsAffected()
		if aff != 1 {
			return circulation.ErrNotFound("borrow record not found")
		}
	}
	return nil
}

func GetForUpdateTx(ctx context.Context, q db.DBTX, fineID int64) (*Fine, error) {
	query := fmt.Sprintf(`SELECT %s FROM fines WHERE fine_id = ? FOR UPDATE`, fineColumns)
	var f Fine
	err := q.QueryRowContext(ctx, query, fineID).Scan(
		&f.FineID, &f.FineULID, &f.UserID, &f.BorrowRecordID, &f.AmountCents, &f.Type, &f.Status,
		&f.Reason, &f.IssueDate, &f.DueDate, &f.PaidAmountCents, &f.PaidDate, &f.ProcessedBy, &f.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, circulation.ErrNotFound("fine not found")
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// SumPostedOverdueTx is the sweep watermark: the OVERDUE fine total already
// posted against a record. Cancelled fines no longer count toward it.
func SumPostedOverdueTx(ctx context.Context, q db.DBTX, recordID int64) (int64, error) {
	const query = `
	SELECT COALESCE(SUM(amount_cents), 0)
	FROM fines
	WHERE borrow_record_id = ? AND type = ? AND status <> ?`

	var sum int64
	if err := q.QueryRowContext(ctx, query, recordID, TypeOverdue, StatusCancelled).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

// ApplyPaymentTx writes back the payment fields computed by the service.
func ApplyPaymentTx(ctx context.Context, q db.DBTX, f *Fine) error {
	const query = `
	UPDATE fines
	SET paid_amount_cents = ?, status = ?, paid_date = ?, processed_by = ?
	WHERE fine_id = ?`

	var paidDate any
	if f.PaidDate.Valid {
		paidDate = circulation.DateOf(f.PaidDate.Time)
	}
	_, err := q.ExecContext(ctx, query, f.PaidAmountCents, f.Status, paidDate, f.ProcessedBy, f.FineID)
	return err
}

// UpdateStatusTx rewrites status only (waive / cancel).
func UpdateStatusTx(ctx context.Context, q db.DBTX, fineID int64, status string, processedBy string) error {
	const query = `UPDATE fines SET status = ?, processed_by = ? WHERE fine_id = ?`
	_, err := q.ExecContext(ctx, query, status, processedBy, fineID)
	return err
}

// CountUnsettledByRecordTx counts attached fines still awaiting payment.
// Zero means the record's is_fine_paid flag may flip to true.
func CountUnsettledByRecordTx(ctx context.Context, q db.DBTX, recordID int64) (int, error) {
	const query = `
	SELECT COUNT(*) FROM fines
	WHERE borrow_record_id = ? AND status = ?`

	var n int
	if err := q.QueryRowContext(ctx, query, recordID, StatusPending).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// SubtractRecordCacheTx removes a cancelled fine's amount from the record's
// cached total.
func SubtractRecordCacheTx(ctx context.Context, q db.DBTX, recordID int64, amountCents int64) error {
	const query = `
	UPDATE borrow_records
	SET fine_amount_cents = GREATEST(fine_amount_cents - ?, 0)
	WHERE record_id = ?`
	_, err := q.ExecContext(ctx, query, amountCents, recordID)
	return err
}
