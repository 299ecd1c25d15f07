package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Roles understood by the circulation policy.
const (
	RoleMember    = "MEMBER"
	RoleLibrarian = "LIBRARIAN"
	RoleAdmin     = "ADMIN"
)

const (
	defaultMemberLimit = 5
	defaultStaffLimit  = 10
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	ErrInvalidRole   = errors.New("invalid role")
)

type Service struct {
	store    UserStore
	secret   []byte
	tokenTTL time.Duration
}

func NewService(db *sql.DB, secret []byte, tokenTTLHours int) *Service {
	return &Service{
		store:    NewStore(db),
		secret:   secret,
		tokenTTL: time.Duration(tokenTTLHours) * time.Hour,
	}
}

type AuthService interface {
	Login(ctx context.Context, id, password string) (string, error)
	Register(ctx context.Context, id, name, password, role string) error
	Delete(ctx context.Context, id string) error
	ChangeRole(ctx context.Context, id, role string) error
}

func (s *Service) Secret() []byte { return s.secret }

// DefaultBorrowLimit は役割ごとの貸出上限デフォルト値。
func DefaultBorrowLimit(role string) int {
	if role == RoleMember {
		return defaultMemberLimit
	}
	return defaultStaffLimit
}

func validRole(role string) bool {
	switch role {
	case RoleMember, RoleLibrarian, RoleAdmin:
		return true
	}
	return false
}

func (s *Service) Login(ctx context.Context, id, password string) (string, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", errors.New("authentication failed")
	}
	if u.IsDisabled {
		return "", errors.New("account disabled")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", errors.New("authentication failed")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  u.ID,
		"role": u.Role,
		"exp":  time.Now().Add(s.tokenTTL).Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

func (s *Service) Register(ctx context.Context, id, name, password, role string) error {
	if !validRole(role) {
		return ErrInvalidRole
	}

	exists, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if exists != nil {
		return ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return s.store.Create(ctx, &User{
		ID:              id,
		Name:            name,
		PasswordHash:    string(hash),
		Role:            role,
		MaxBooksAllowed: DefaultBorrowLimit(role),
		IsDisabled:      false,
	})
}

func (s *Service) Delete(ctx context.Context, id string) error {
	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ChangeRole switches the role and resets the borrow limit to the new
// role's default.
func (s *Service) ChangeRole(ctx context.Context, id, role string) error {
	if !validRole(role) {
		return ErrInvalidRole
	}

	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrNotFound
	}

	n, err := s.store.UpdateRole(ctx, id, role, DefaultBorrowLimit(role))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
