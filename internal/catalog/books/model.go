package books

import (
	"database/sql"
	"time"
)

// Book status values persisted in books.status.
const (
	StatusAvailable   = "AVAILABLE"
	StatusBorrowed    = "BORROWED"
	StatusLost        = "LOST"
	StatusMaintenance = "MAINTENANCE"
)

// Book は books テーブルの1行を表す
type Book struct {
	BookID          int64
	BookULID        string
	Title           string
	Author          sql.NullString
	ISBN            sql.NullString
	Status          string
	TotalCopies     int
	AvailableCopies int
	CreatedAt       time.Time
}

// IsAvailable is derived at read time, never persisted.
func (b *Book) IsAvailable() bool {
	return b.Status == StatusAvailable && b.AvailableCopies > 0
}

type BookFilter struct {
	Status *string
	Title  *string
}
