package books

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"library-backend/internal/circulation"
	"library-backend/internal/platform/db"
)

type Store struct {
	db *sql.DB
}

func NewStore(sqldb *sql.DB) *Store { return &Store{db: sqldb} }

const bookColumns = `book_id, book_ulid, title, author, isbn, status, total_copies, available_copies, created_at`

func scanBook(row *sql.Row) (*Book, error) {
	var b Book
	err := row.Scan(
		&b.BookID, &b.BookULID, &b.Title, &b.Author, &b.ISBN,
		&b.Status, &b.TotalCopies, &b.AvailableCopies, &b.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, circulation.ErrNotFound("book not found")
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) Insert(ctx context.Context, b *Book) error {
	const q = `
	INSERT INTO books
	(book_ulid, title, author, isbn, status, total_copies, available_copies, created_at)
	VALUES
	(?, ?, ?, ?, ?, ?, ?, NOW(6))`

	res, err := s.db.ExecContext(ctx, q,
		b.BookULID, b.Title, b.Author, b.ISBN, b.Status, b.TotalCopies, b.AvailableCopies,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	b.BookID = id
	return nil
}

func (s *Store) GetByID(ctx context.Context, bookID int64) (*Book, error) {
	q := fmt.Sprintf(`SELECT %s FROM books WHERE book_id = ?`, bookColumns)
	return scanBook(s.db.QueryRowContext(ctx, q, bookID))
}

func (s *Store) GetByULID(ctx context.Context, ulid string) (*Book, error) {
	q := fmt.Sprintf(`SELECT %s FROM books WHERE book_ulid = ?`, bookColumns)
	return scanBook(s.db.QueryRowContext(ctx, q, ulid))
}

func (s *Store) UpdateStatus(ctx context.Context, bookID int64, status string) error {
	const q = `UPDATE books SET status = ? WHERE book_id = ?`
	res, err := s.db.ExecContext(ctx, q, status, bookID)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return circulation.ErrNotFound("book not found")
	}
	return nil
}

func (s *Store) List(ctx context.Context, f BookFilter, p circulation.Page) ([]Book, int64, error) {
	p = p.Normalize()

	where := strings.Builder{}
	where.WriteString(` WHERE 1=1`)
	args := []any{}
	if f.Status != nil {
		where.WriteString(` AND status = ?`)
		args = append(args, *f.Status)
	}
	if f.Title != nil {
		where.WriteString(` AND title LIKE ?`)
		args = append(args, "%"+*f.Title+"%")
	}

	order := "DESC"
	if p.Order == "asc" {
		order = "ASC"
	}
	q := fmt.Sprintf(`SELECT %s FROM books%s ORDER BY book_id %s LIMIT ? OFFSET ?`,
		bookColumns, where.String(), order)

	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(
			&b.BookID, &b.BookULID, &b.Title, &b.Author, &b.ISBN,
			&b.Status, &b.TotalCopies, &b.AvailableCopies, &b.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	cq := `SELECT COUNT(*) FROM books` + where.String()
	if err := s.db.QueryRowContext(ctx, cq, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ---- Transactional primitives ----
//
// The circulation core calls these inside its own transaction so the
// availability check and the counter write share one atomic unit.

// LockRowTx locks the book row and returns its current state.
func LockRowTx(ctx context.Context, q db.DBTX, bookID int64) (*Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books WHERE book_id = ? FOR UPDATE`, bookColumns)
	return scanBook(q.QueryRowContext(ctx, query, bookID))
}

// AdjustAvailabilityTx applies delta to available_copies and, when newStatus
// is non-empty, rewrites status in the same statement. The caller must hold
// the row lock and have validated the resulting counter range.
func AdjustAvailabilityTx(ctx context.Context, q db.DBTX, bookID int64, delta int, newStatus string) error {
	var (
		res sql.Result
		err error
	)
	if newStatus != "" {
		const query = `UPDATE books SET available_copies = available_copies + ?, status = ? WHERE book_id = ?`
		res, err = q.ExecContext(ctx, query, delta, newStatus, bookID)
	} else {
		const query = `UPDATE books SET available_copies = available_copies + ? WHERE book_id = ?`
		res, err = q.ExecContext(ctx, query, delta, bookID)
	}
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff != 1 {
		return circulation.ErrInternal("failed to update books.available_copies")
	}
	return nil
}
