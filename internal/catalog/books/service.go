package books

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"library-backend/internal/circulation"
)

type Service struct {
	db    *sql.DB
	store *Store
	clock circulation.Clock
	id    circulation.IDGen
}

func NewService(sqldb *sql.DB) *Service {
	return &Service{
		db:    sqldb,
		store: NewStore(sqldb),
		clock: circulation.RealClock{},
		id:    circulation.ULIDGen{},
	}
}

func (s *Service) Store() *Store { return s.store }

func (s *Service) Create(ctx context.Context, req CreateBookRequest) (*BookResponse, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, circulation.ErrInvalid("title is required")
	}
	if req.TotalCopies <= 0 {
		return nil, circulation.ErrInvalid("total_copies must be > 0")
	}

	b := &Book{
		BookULID:        s.id.NewULID(s.clock.Now()),
		Title:           req.Title,
		Status:          StatusAvailable,
		TotalCopies:     req.TotalCopies,
		AvailableCopies: req.TotalCopies,
	}
	if req.Author != nil && *req.Author != "" {
		b.Author.String = *req.Author
		b.Author.Valid = true
	}
	if req.ISBN != nil && *req.ISBN != "" {
		b.ISBN.String = *req.ISBN
		b.ISBN.Valid = true
	}

	if err := s.store.Insert(ctx, b); err != nil {
		return nil, err
	}
	resp := toResponse(b)
	return &resp, nil
}

// GetByKey resolves a numeric book_id or a book_ulid, same dual lookup as
// the record endpoints.
func (s *Service) GetByKey(ctx context.Context, key string) (*BookResponse, error) {
	if key == "" {
		return nil, circulation.ErrInvalid("id or ulid is required")
	}

	var (
		b   *Book
		err error
	)
	if id, perr := strconv.ParseInt(key, 10, 64); perr == nil && id > 0 {
		b, err = s.store.GetByID(ctx, id)
	} else {
		b, err = s.store.GetByULID(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	resp := toResponse(b)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, f BookFilter, p circulation.Page) (*BookListResponse, error) {
	items, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return nil, err
	}

	out := BookListResponse{Total: total, Items: []BookResponse{}}
	for i := range items {
		out.Items = append(out.Items, toResponse(&items[i]))
	}
	return &out, nil
}

// SetStatus is the staff maintenance toggle. It does not touch the copy
// counters; circulation owns those.
func (s *Service) SetStatus(ctx context.Context, key string, status string) (*BookResponse, error) {
	switch status {
	case StatusAvailable, StatusMaintenance, StatusLost:
	default:
		return nil, circulation.ErrInvalid("status must be AVAILABLE, MAINTENANCE or LOST")
	}

	cur, err := s.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateStatus(ctx, cur.BookID, status); err != nil {
		return nil, err
	}
	return s.GetByKey(ctx, strconv.FormatInt(cur.BookID, 10))
}
