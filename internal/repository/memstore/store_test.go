package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/cinema-scheduling/internal/model"
	"github.com/iliyamo/cinema-scheduling/internal/repository"
)

func seeded() *Store {
	s := New()
	s.AddMovie(model.Movie{ID: 1, Title: "Arrival", DurationMin: 120, Categories: []string{"sci-fi", "drama"}})
	s.AddRoom(model.Room{ID: 1, Name: "Main", MaxSeats: 50})
	s.AddUser(model.User{ID: 1, Email: "a@example.com", Role: model.RoleCustomer})
	return s
}

func TestGetForUpdateNeedsTx(t *testing.T) {
	t.Parallel()
	s := seeded()

	_, err := s.Rooms().GetForUpdate(context.Background(), 1)
	if !errors.Is(err, repository.ErrNoTx) {
		t.Fatalf("expected ErrNoTx, got %v", err)
	}
}

func TestFailedTxIsRolledBack(t *testing.T) {
	t.Parallel()
	s := seeded()
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context) error {
		sc := &model.Screening{MovieID: 1, RoomID: 1, StartsAt: start, Price: 10}
		if err := s.Screenings().Create(ctx, sc); err != nil {
			return err
		}
		if err := s.Purchases().Create(ctx, &model.Purchase{ScreeningID: sc.ID, UserID: 1, Seats: 2, Status: model.StatusUnpaid}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	all, _ := s.Screenings().List(ctx, model.ScreeningFilter{})
	if len(all) != 0 {
		t.Fatalf("screening should be rolled back, got %d", len(all))
	}
	ps, _ := s.Purchases().List(ctx, model.PurchaseFilter{})
	if len(ps) != 0 {
		t.Fatalf("purchase should be rolled back, got %d", len(ps))
	}
}

func TestNestedTxJoinsOuter(t *testing.T) {
	t.Parallel()
	s := seeded()
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.Rooms().GetForUpdate(ctx, 1); err != nil {
			return err
		}
		// Re-locking the same room from a nested call must not block.
		return s.WithTx(ctx, func(ctx context.Context) error {
			_, err := s.Rooms().GetForUpdate(ctx, 1)
			return err
		})
	})
	if err != nil {
		t.Fatalf("nested tx: %v", err)
	}
}

func TestLocksSerializeTransactions(t *testing.T) {
	t.Parallel()
	s := seeded()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithTx(context.Background(), func(ctx context.Context) error {
				if _, err := s.Rooms().GetForUpdate(ctx, 1); err != nil {
					return err
				}
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected one holder at a time, saw %d", maxSeen)
	}
}

func TestLockHonoursContext(t *testing.T) {
	t.Parallel()
	s := seeded()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.WithTx(context.Background(), func(ctx context.Context) error {
			if _, err := s.Rooms().GetForUpdate(ctx, 1); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithTx(ctx, func(ctx context.Context) error {
		_, err := s.Rooms().GetForUpdate(ctx, 1)
		return err
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestTransitionStatusIsCompareAndSet(t *testing.T) {
	t.Parallel()
	s := seeded()
	ctx := context.Background()

	sc := &model.Screening{MovieID: 1, RoomID: 1, StartsAt: time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)}
	if err := s.Screenings().Create(ctx, sc); err != nil {
		t.Fatalf("create screening: %v", err)
	}
	p := &model.Purchase{ScreeningID: sc.ID, UserID: 1, Seats: 1, Status: model.StatusUnpaid}
	if err := s.Purchases().Create(ctx, p); err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	ok, err := s.Purchases().TransitionStatus(ctx, p.ID, model.StatusUnpaid, model.StatusPaid, time.Now())
	if err != nil || !ok {
		t.Fatalf("first transition: ok=%v err=%v", ok, err)
	}
	ok, err = s.Purchases().TransitionStatus(ctx, p.ID, model.StatusUnpaid, model.StatusCancelled, time.Now())
	if err != nil || ok {
		t.Fatalf("stale transition must not apply: ok=%v err=%v", ok, err)
	}
}

func TestSalesCarrySortedCategories(t *testing.T) {
	t.Parallel()
	s := seeded()
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)

	sc := &model.Screening{MovieID: 1, RoomID: 1, StartsAt: start, Price: 9}
	_ = s.Screenings().Create(ctx, sc)
	_ = s.Purchases().Create(ctx, &model.Purchase{ScreeningID: sc.ID, UserID: 1, Seats: 2, Status: model.StatusPaid})
	_ = s.Purchases().Create(ctx, &model.Purchase{ScreeningID: sc.ID, UserID: 1, Seats: 4, Status: model.StatusUnpaid})

	sales, err := s.Purchases().ListSales(ctx, start, start)
	if err != nil {
		t.Fatalf("sales: %v", err)
	}
	if len(sales) != 1 || sales[0].Amount() != 18 {
		t.Fatalf("expected one PAID sale worth 18, got %+v", sales)
	}
	if sales[0].Categories[0] != "drama" || sales[0].Categories[1] != "sci-fi" {
		t.Fatalf("categories should be sorted, got %v", sales[0].Categories)
	}
}
