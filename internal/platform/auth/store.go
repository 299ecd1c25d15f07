package auth

import (
	"context"
	"database/sql"
	"errors"
)

type User struct {
	ID              string
	Name            string
	PasswordHash    string
	Role            string
	MaxBooksAllowed int
	IsDisabled      bool
	CreatedAt       string
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) (int64, error)
	UpdateRole(ctx context.Context, id, role string, maxBooks int) (int64, error)
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) UserStore {
	return &Store{db: db}
}

func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	const q = `
SELECT user_id, name, password_hash, role, max_books_allowed, is_disabled, created_at
FROM users
WHERE user_id = ?
LIMIT 1
`
	var u User
	var isDisabledInt int
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&u.ID,
		&u.Name,
		&u.PasswordHash,
		&u.Role,
		&u.MaxBooksAllowed,
		&isDisabledInt,
		&u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if isDisabledInt != 0 {
		u.IsDisabled = true
	}
	return &u, nil
}

func (s *Store) Create(ctx context.Context, u *User) error {
	const q = `
INSERT INTO users (user_id, name, password_hash, role, max_books_allowed, is_disabled, created_at)
VALUES (?, ?, ?, ?, ?, 0, NOW(6))
`
	_, err := s.db.ExecContext(ctx, q, u.ID, u.Name, u.PasswordHash, u.Role, u.MaxBooksAllowed)
	return err
}

func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	const q = `DELETE FROM users WHERE user_id = ?`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) UpdateRole(ctx context.Context, id, role string, maxBooks int) (int64, error) {
	const q = `UPDATE users SET role = ?, max_books_allowed = ? WHERE user_id = ?`
	res, err := s.db.ExecContext(ctx, q, role, maxBooks, id)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}
