package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-backend/internal/catalog/books"
	"library-backend/internal/circulation"
	"library-backend/internal/circulation/borrows"
	"library-backend/internal/circulation/fines"
	"library-backend/internal/platform/db"
)

// memStore fakes the three collaborator ports over in-memory maps. Its tx
// runner holds one mutex for the duration of fn, standing in for the
// row-level locks the SQL adapters take.
type memStore struct {
	mu        sync.Mutex
	userLimit map[string]int
	books     map[int64]*books.Book
	records   map[int64]*borrows.BorrowRecord
	fines     map[int64]*fines.Fine

	nextRecordID int64
	nextFineID   int64
}

func newMemStore() *memStore {
	return &memStore{
		userLimit: make(map[string]int),
		books:     make(map[int64]*books.Book),
		records:   make(map[int64]*borrows.BorrowRecord),
		fines:     make(map[int64]*fines.Fine),
	}
}

func (m *memStore) runner() TxRunner {
	return func(ctx context.Context, fn func(ctx context.Context, q db.DBTX) error) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		return fn(ctx, nil)
	}
}

func (m *memStore) LockBook(ctx context.Context, q db.DBTX, bookID int64) (*books.Book, error) {
	b, ok := m.books[bookID]
	if !ok {
		return nil, circulation.ErrNotFound("book not found")
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) AdjustAvailability(ctx context.Context, q db.DBTX, bookID int64, delta int, newStatus string) error {
	b, ok := m.books[bookID]
	if !ok {
		return circulation.ErrNotFound("book not found")
	}
	b.AvailableCopies += delta
	if newStatus != "" {
		b.Status = newStatus
	}
	return nil
}

func (m *memStore) LockUserLimit(ctx context.Context, q db.DBTX, userID string) (int, error) {
	limit, ok := m.userLimit[userID]
	if !ok {
		return 0, circulation.ErrNotFound("user not found")
	}
	return limit, nil
}

func (m *memStore) CountActive(ctx context.Context, q db.DBTX, userID string) (int, error) {
	n := 0
	for _, r := range m.records {
		if r.UserID == userID && r.Status == borrows.StatusActive {
			n++
		}
	}
	return n, nil
}

func (m *memStore) Insert(ctx context.Context, q db.DBTX, r *borrows.BorrowRecord) error {
	m.nextRecordID++
	r.RecordID = m.nextRecordID
	cp := *r
	m.records[r.RecordID] = &cp
	return nil
}

func (m *memStore) GetForUpdate(ctx context.Context, q db.DBTX, recordID int64) (*borrows.BorrowRecord, error) {
	r, ok := m.records[recordID]
	if !ok {
		return nil, circulation.ErrNotFound("borrow record not found")
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) MarkReturned(ctx context.Context, q db.DBTX, recordID int64, returnDate time.Time, checkedInBy string) error {
	r, ok := m.records[recordID]
	if !ok || r.Status != borrows.StatusActive {
		return circulation.ErrNotActive("record is not currently active")
	}
	r.Status = borrows.StatusReturned
	r.ReturnDate.Time = returnDate
	r.ReturnDate.Valid = true
	r.CheckedInBy.String = checkedInBy
	r.CheckedInBy.Valid = checkedInBy != ""
	return nil
}

func (m *memStore) MarkLost(ctx context.Context, q db.DBTX, recordID int64) error {
	r, ok := m.records[recordID]
	if !ok || r.Status != borrows.StatusActive {
		return circulation.ErrNotActive("record is not currently active")
	}
	r.Status = borrows.StatusLost
	return nil
}

func (m *memStore) GetIDByULID(ctx context.Context, ulid string) (int64, error) {
	for _, r := range m.records {
		if r.RecordULID == ulid {
			return r.RecordID, nil
		}
	}
	return 0, circulation.ErrNotFound("borrow record not found")
}

func (m *memStore) ListOverdueActiveIDs(ctx context.Context, asOf time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, r := range m.records {
		if r.IsOverdue(asOf) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) Issue(ctx context.Context, q db.DBTX, f *fines.Fine) error {
	m.nextFineID++
	f.FineID = m.nextFineID
	cp := *f
	m.fines[f.FineID] = &cp

	if f.BorrowRecordID.Valid {
		r, ok := m.records[f.BorrowRecordID.Int64]
		if !ok {
			return circulation.ErrNotFound("borrow record not found")
		}
		r.FineAmountCents += f.AmountCents
		r.IsFinePaid = false
	}
	return nil
}

func (m *memStore) SumPostedOverdue(ctx context.Context, q db.DBTX, recordID int64) (int64, error) {
	var sum int64
	for _, f := range m.fines {
		if f.BorrowRecordID.Valid && f.BorrowRecordID.Int64 == recordID &&
			f.Type == fines.TypeOverdue && f.Status != fines.StatusCancelled {
			sum += f.AmountCents
		}
	}
	return sum, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDGen struct{ n int }

func (g *seqIDGen) NewULID(t time.Time) string {
	g.n++
	return fmt.Sprintf("TESTULID%018d", g.n)
}

func testConfig() db.CirculationConfig {
	return db.CirculationConfig{
		LoanPeriodDays:       14,
		FineDueDays:          30,
		DailyFineRateCents:   50,
		ReplacementCostCents: 2500,
	}
}

func newTestService(store *memStore, now time.Time) *Service {
	return &Service{
		runTx:   store.runner(),
		catalog: store,
		borrows: store,
		fines:   store,
		clock:   fixedClock{t: now},
		id:      &seqIDGen{},
		cfg:     testConfig(),
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func addBook(store *memStore, id int64, total, available int) {
	store.books[id] = &books.Book{
		BookID:          id,
		BookULID:        fmt.Sprintf("BOOKULID%018d", id),
		Title:           "test book",
		Status:          books.StatusAvailable,
		TotalCopies:     total,
		AvailableCopies: available,
	}
}

func addActiveRecord(store *memStore, id int64, userID string, bookID int64, borrowDate, dueDate time.Time) {
	store.records[id] = &borrows.BorrowRecord{
		RecordID:   id,
		RecordULID: fmt.Sprintf("RECULID%019d", id),
		UserID:     userID,
		BookID:     bookID,
		BorrowDate: borrowDate,
		DueDate:    dueDate,
		Status:     borrows.StatusActive,
	}
	if id > store.nextRecordID {
		store.nextRecordID = id
	}
}

func TestCheckout_LastCopy(t *testing.T) {
	now := date(2024, 3, 1)
	store := newMemStore()
	store.userLimit["u1"] = 5
	addBook(store, 1, 1, 1)

	svc := newTestService(store, now)
	res, err := svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", BookID: 1}, "staff-1")
	require.NoError(t, err)

	assert.Equal(t, borrows.StatusActive, res.Status)
	assert.Equal(t, date(2024, 3, 1), res.BorrowDate)
	assert.Equal(t, date(2024, 3, 15), res.DueDate)
	require.NotNil(t, res.CheckedOutBy)
	assert.Equal(t, "staff-1", *res.CheckedOutBy)

	b := store.books[1]
	assert.Equal(t, 0, b.AvailableCopies)
	assert.Equal(t, books.StatusBorrowed, b.Status)
}

func TestCheckout_MultiCopyKeepsAvailable(t *testing.T) {
	now := date(2024, 3, 1)
	store := newMemStore()
	store.userLimit["u1"] = 5
	addBook(store, 1, 3, 3)

	svc := newTestService(store, now)
	_, err := svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", BookID: 1}, "staff-1")
	require.NoError(t, err)

	b := store.books[1]
	assert.Equal(t, 2, b.AvailableCopies)
	assert.Equal(t, books.StatusAvailable, b.Status)
}

func TestCheckout_BookUnavailable(t *testing.T) {
	now := date(2024, 3, 1)
	store := newMemStore()
	store.userLimit["u1"] = 5
	store.userLimit["u2"] = 5
	addBook(store, 1, 1, 1)

	svc := newTestService(store, now)
	_, err := svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", BookID: 1}, "staff-1")
	require.NoError(t, err)

	_, err = svc.Checkout(context.Background(), CheckoutRequest{UserID: "u2", BookID: 1}, "staff-1")
	assert.Equal(t, circulation.CodeBookUnavailable, circulation.CodeOf(err))
	assert.Equal(t, 0, store.books[1].AvailableCopies)
	assert.Len(t, store.records, 1)
}

func TestCheckout_MaintenanceBookRejected(t *testing.T) {
	now := date(2024, 3, 1)
	store := newMemStore()
	store.userLimit["u1"] = 5
	addBook(store, 1, 2, 2)
	store.books[1].Status = books.StatusMaintenance

	svc := newTestService(store, now)
	_, err := svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", BookID: 1}, "staff-1")
	assert.Equal(t, circulation.CodeBookUnavailable, circulation.CodeOf(err))
}

func TestCheckout_LimitExceeded(t *testing.T) {
	now := date(2024, 3, 1)
	store := newMemStore()
	store.userLimit["u1"] = 5
	addBook(store, 10, 5, 5)
	for i := int64(1); i <= 5; i++ {
		addBook(store, i, 1, 0)
		addActiveRecord(store, i, "u1", i, date(2024, 2, 1), date(2024, 2, 15))
	}

	svc := newTestService(store, now)
	_, err := svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", BookID: 10}, "staff-1")
	assert.Equal(t, circulation.CodeLimitExceeded, circulation.CodeOf(err))

	// 拒否された操作は書籍・貸出のどちらにも副作用を残さない
	assert.Equal(t, 5, store.books[10].AvailableCopies)
	assert.Len(t, store.records, 5)
}

func TestCheckout_UnknownUser(t *testing.T) {
	store := newMemStore()
	addBook(store, 1, 1, 1)

	svc := newTestService(store, date(2024, 3, 1))
	_, err := svc.Checkout(context.Background(), CheckoutRequest{UserID: "nobody", BookID: 1}, "staff-1")
	assert.Equal(t, circulation.CodeNotFound, circulation.CodeOf(err))
}

func TestCheckout_ConcurrentSingleCopy(t *testing.T) {
	now := date(2024, 3, 1)
	store := newMemStore()
	addBook(store, 1, 3, 3)
	for i := 0; i < 10; i++ {
		store.userLimit[fmt.Sprintf("u%d", i)] = 5
	}

	svc := newTestService(store, now)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Checkout(context.Background(),
				CheckoutRequest{UserID: fmt.Sprintf("u%d", i), BookID: 1}, "staff-1")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, circulation.CodeBookUnavailable, circulation.CodeOf(err))
		}
	}
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 0, store.books[1].AvailableCopies)
	assert.Len(t, store.records, 3)
}

func TestCheckout_ConcurrentSameUserLimit(t *testing.T) {
	now := date(2024, 3, 1)
	store := newMemStore()
	store.userLimit["u1"] = 5
	for i := int64(1); i <= 10; i++ {
		addBook(store, i, 1, 1)
	}

	svc := newTestService(store, now)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Checkout(context.Background(),
				CheckoutRequest{UserID: "u1", BookID: int64(i + 1)}, "staff-1")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 5, succeeded)

	active, _ := store.CountActive(context.Background(), nil, "u1")
	assert.Equal(t, 5, active)
}

func TestReturn_OnTime(t *testing.T) {
	now := date(2024, 3, 10)
	store := newMemStore()
	addBook(store, 1, 1, 0)
	store.books[1].Status = books.StatusBorrowed
	addActiveRecord(store, 1, "u1", 1, date(2024, 3, 1), date(2024, 3, 15))

	svc := newTestService(store, now)
	res, err := svc.Return(context.Background(), ReturnRequest{RecordID: 1}, "staff-2")
	require.NoError(t, err)

	assert.Equal(t, borrows.StatusReturned, res.Status)
	require.NotNil(t, res.ReturnDate)
	assert.Equal(t, date(2024, 3, 10), *res.ReturnDate)
	require.NotNil(t, res.CheckedInBy)
	assert.Equal(t, "staff-2", *res.CheckedInBy)
	assert.Zero(t, res.FineAmountCents)

	b := store.books[1]
	assert.Equal(t, 1, b.AvailableCopies)
	assert.Equal(t, books.StatusAvailable, b.Status)
	assert.Empty(t, store.fines)
}

func TestReturn_LateIssuesFineForActualDays(t *testing.T) {
	// due 2024-01-01, returned 2024-01-11 (10 days late), rate 50 → 500
	now := date(2024, 1, 11)
	store := newMemStore()
	addBook(store, 1, 1, 0)
	store.books[1].Status = books.StatusBorrowed
	addActiveRecord(store, 1, "u1", 1, date(2023, 12, 18), date(2024, 1, 1))

	svc := newTestService(store, now)
	res, err := svc.Return(context.Background(), ReturnRequest{RecordID: 1}, "staff-2")
	require.NoError(t, err)

	assert.Equal(t, borrows.StatusReturned, res.Status)
	assert.Equal(t, int64(500), res.FineAmountCents)
	assert.False(t, res.IsFinePaid)
	assert.Equal(t, 1, store.books[1].AvailableCopies)

	require.Len(t, store.fines, 1)
	for _, f := range store.fines {
		assert.Equal(t, fines.TypeOverdue, f.Type)
		assert.Equal(t, fines.StatusPending, f.Status)
		assert.Equal(t, int64(500), f.AmountCents)
		assert.Equal(t, "overdue by 10 days", f.Reason)
		require.True(t, f.DueDate.Valid)
		assert.Equal(t, date(2024, 2, 10), f.DueDate.Time)
	}
}

func TestReturn_AfterSweepOnlyAddsDelta(t *testing.T) {
	// Swept 5 days overdue (250), returned 10 days overdue: the return adds
	// only the remaining 250.
	store := newMemStore()
	addBook(store, 1, 1, 0)
	store.books[1].Status = books.StatusBorrowed
	addActiveRecord(store, 1, "u1", 1, date(2023, 12, 18), date(2024, 1, 1))

	sweepSvc := newTestService(store, date(2024, 1, 6))
	sres, err := sweepSvc.SweepOverdue(context.Background(), SweepRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, sres.FinesIssued)
	assert.Equal(t, int64(250), sres.AmountIssuedCents)

	returnSvc := newTestService(store, date(2024, 1, 11))
	res, err := returnSvc.Return(context.Background(), ReturnRequest{RecordID: 1}, "staff-2")
	require.NoError(t, err)

	assert.Equal(t, int64(500), res.FineAmountCents)
	assert.Len(t, store.fines, 2)
}

func TestReturn_NotActive(t *testing.T) {
	now := date(2024, 3, 10)
	store := newMemStore()
	addBook(store, 1, 1, 1)
	addActiveRecord(store, 1, "u1", 1, date(2024, 3, 1), date(2024, 3, 15))
	store.records[1].Status = borrows.StatusReturned

	svc := newTestService(store, now)
	_, err := svc.Return(context.Background(), ReturnRequest{RecordID: 1}, "staff-2")
	assert.Equal(t, circulation.CodeNotActive, circulation.CodeOf(err))
}

func TestReturn_ByULID(t *testing.T) {
	now := date(2024, 3, 10)
	store := newMemStore()
	addBook(store, 1, 1, 0)
	store.books[1].Status = books.StatusBorrowed
	addActiveRecord(store, 1, "u1", 1, date(2024, 3, 1), date(2024, 3, 15))

	svc := newTestService(store, now)
	res, err := svc.Return(context.Background(),
		ReturnRequest{RecordULID: store.records[1].RecordULID}, "staff-2")
	require.NoError(t, err)
	assert.Equal(t, borrows.StatusReturned, res.Status)
}

func TestMarkLost(t *testing.T) {
	now := date(2024, 3, 10)
	store := newMemStore()
	addBook(store, 1, 2, 1)
	addActiveRecord(store, 1, "u1", 1, date(2024, 3, 1), date(2024, 3, 15))

	svc := newTestService(store, now)
	res, err := svc.MarkLost(context.Background(), "1", "staff-2")
	require.NoError(t, err)

	assert.Equal(t, borrows.StatusLost, res.Status)
	assert.Nil(t, res.ReturnDate)
	assert.Equal(t, int64(2500), res.FineAmountCents)

	// 紛失した1冊分の在庫は戻さない
	assert.Equal(t, 1, store.books[1].AvailableCopies)

	require.Len(t, store.fines, 1)
	for _, f := range store.fines {
		assert.Equal(t, fines.TypeLostBook, f.Type)
		assert.Equal(t, int64(2500), f.AmountCents)
	}
}

func TestMarkLost_NotActive(t *testing.T) {
	store := newMemStore()
	addBook(store, 1, 1, 1)
	addActiveRecord(store, 1, "u1", 1, date(2024, 3, 1), date(2024, 3, 15))
	store.records[1].Status = borrows.StatusLost

	svc := newTestService(store, date(2024, 3, 20))
	_, err := svc.MarkLost(context.Background(), "1", "staff-2")
	assert.Equal(t, circulation.CodeNotActive, circulation.CodeOf(err))
}

func TestSweepOverdue_Idempotent(t *testing.T) {
	store := newMemStore()
	addBook(store, 1, 1, 0)
	addActiveRecord(store, 1, "u1", 1, date(2023, 12, 18), date(2024, 1, 1))
	addActiveRecord(store, 2, "u2", 1, date(2024, 1, 1), date(2024, 1, 20))

	svc := newTestService(store, date(2024, 1, 6))
	res, err := svc.SweepOverdue(context.Background(), SweepRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 1, res.FinesIssued)
	assert.Equal(t, int64(250), res.AmountIssuedCents)

	// 同じ asOf での再実行は何も発行しない
	res2, err := svc.SweepOverdue(context.Background(), SweepRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, res2.FinesIssued)
	assert.Zero(t, res2.AmountIssuedCents)
	assert.Len(t, store.fines, 1)
	assert.Equal(t, int64(250), store.records[1].FineAmountCents)
}

func TestSweepOverdue_AdvancingDatePostsDeltaOnly(t *testing.T) {
	store := newMemStore()
	addBook(store, 1, 1, 0)
	addActiveRecord(store, 1, "u1", 1, date(2023, 12, 18), date(2024, 1, 1))

	first := newTestService(store, date(2024, 1, 6))
	res, err := first.SweepOverdue(context.Background(), SweepRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(250), res.AmountIssuedCents)

	second := newTestService(store, date(2024, 1, 9))
	res2, err := second.SweepOverdue(context.Background(), SweepRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(150), res2.AmountIssuedCents)

	assert.Equal(t, int64(400), store.records[1].FineAmountCents)
}

func TestSweepOverdue_SkipsReturnedBetweenScanAndFine(t *testing.T) {
	store := newMemStore()
	addBook(store, 1, 1, 0)
	addActiveRecord(store, 1, "u1", 1, date(2023, 12, 18), date(2024, 1, 1))

	svc := newTestService(store, date(2024, 1, 6))

	// スキャンとロックの間に返却が割り込むケース
	base := store.runner()
	scanned := false
	svc.runTx = func(ctx context.Context, fn func(ctx context.Context, q db.DBTX) error) error {
		if !scanned {
			scanned = true
			store.records[1].Status = borrows.StatusReturned
		}
		return base(ctx, fn)
	}

	res, err := svc.SweepOverdue(context.Background(), SweepRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 0, res.FinesIssued)
	assert.Empty(t, store.fines)
}

func TestSweepOverdue_ExplicitAsOfAndRate(t *testing.T) {
	store := newMemStore()
	addBook(store, 1, 1, 0)
	addActiveRecord(store, 1, "u1", 1, date(2023, 12, 18), date(2024, 1, 1))

	svc := newTestService(store, date(2024, 2, 1))
	asOf := "2024-01-04"
	rate := int64(100)
	res, err := svc.SweepOverdue(context.Background(), SweepRequest{AsOf: &asOf, DailyRateCents: &rate})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FinesIssued)
	assert.Equal(t, int64(300), res.AmountIssuedCents)
}

func TestSweepOverdue_RejectsBadInput(t *testing.T) {
	svc := newTestService(newMemStore(), date(2024, 1, 6))

	bad := "01-06-2024"
	_, err := svc.SweepOverdue(context.Background(), SweepRequest{AsOf: &bad})
	assert.Equal(t, circulation.CodeInvalidArgument, circulation.CodeOf(err))

	zero := int64(0)
	_, err = svc.SweepOverdue(context.Background(), SweepRequest{DailyRateCents: &zero})
	assert.Equal(t, circulation.CodeInvalidAmount, circulation.CodeOf(err))
}
