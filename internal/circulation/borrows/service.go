package borrows

import (
	"context"
	"database/sql"
	"strconv"

	"library-backend/internal/circulation"
)

// Service is the read-only query surface over borrow records. Mutations go
// through the lifecycle orchestrator, which owns the multi-entity
// transactions.
type Service struct {
	db    *sql.DB
	store *Store
	clock circulation.Clock
}

func NewService(sqldb *sql.DB) *Service {
	return &Service{
		db:    sqldb,
		store: NewStore(sqldb),
		clock: circulation.RealClock{},
	}
}

func (s *Service) Store() *Store { return s.store }

// GetByKey resolves a numeric record_id or a record_ulid.
func (s *Service) GetByKey(ctx context.Context, key string) (*RecordResponse, error) {
	if key == "" {
		return nil, circulation.ErrInvalid("id or ulid is required")
	}

	var (
		r   *BorrowRecord
		err error
	)
	if id, perr := strconv.ParseInt(key, 10, 64); perr == nil && id > 0 {
		r, err = s.store.GetByID(ctx, id)
	} else {
		r, err = s.store.GetByULID(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	resp := ToResponse(r, s.clock.Now())
	return &resp, nil
}

// ResolveID maps a numeric or ULID key to the record's primary key.
func (s *Service) ResolveID(ctx context.Context, key string) (int64, error) {
	if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	r, err := s.store.GetByULID(ctx, key)
	if err != nil {
		return 0, err
	}
	return r.RecordID, nil
}

func (s *Service) List(ctx context.Context, f RecordFilter, p circulation.Page) (*RecordListResponse, error) {
	now := s.clock.Now()
	items, total, err := s.store.List(ctx, f, p, now)
	if err != nil {
		return nil, err
	}

	out := RecordListResponse{Total: total, Items: []RecordResponse{}}
	for i := range items {
		out.Items = append(out.Items, ToResponse(&items[i], now))
	}
	return &out, nil
}

func (s *Service) ActiveCount(ctx context.Context, userID string) (*ActiveCountResponse, error) {
	if userID == "" {
		return nil, circulation.ErrInvalid("user_id is required")
	}
	n, err := s.store.CountActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ActiveCountResponse{UserID: userID, ActiveCount: n}, nil
}
