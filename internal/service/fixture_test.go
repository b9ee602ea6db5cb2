package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/cinema-scheduling/internal/apperr"
	"github.com/iliyamo/cinema-scheduling/internal/clock"
	"github.com/iliyamo/cinema-scheduling/internal/model"
	"github.com/iliyamo/cinema-scheduling/internal/queue"
	"github.com/iliyamo/cinema-scheduling/internal/repository/memstore"
)

// Monday 2024-12-30 09:00 UTC.
var testNow = time.Date(2024, 12, 30, 9, 0, 0, 0, time.UTC)

const (
	movieArrival = 1 // 120 min, drama + sci-fi
	movieHeat    = 2 // 90 min, crime + drama

	roomMain  = 1 // 50 seats
	roomSmall = 2 // 10 seats

	adminID = 1
	aliceID = 2
	bobID   = 3
)

var (
	admin = model.Actor{UserID: adminID, Role: model.RoleAdmin}
	alice = model.Actor{UserID: aliceID, Role: model.RoleCustomer}
	bob   = model.Actor{UserID: bobID, Role: model.RoleCustomer}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.PurchaseEvent
}

func (p *recordingPublisher) PublishPurchaseEvent(_ context.Context, ev queue.PurchaseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	store  *memstore.Store
	clock  *clock.Fixed
	events *recordingPublisher
	sched  *SchedulingService
	res    *ReservationService
	stats  *StatisticsService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	store.AddMovie(model.Movie{ID: movieArrival, Title: "Arrival", DurationMin: 120, Categories: []string{"drama", "sci-fi"}})
	store.AddMovie(model.Movie{ID: movieHeat, Title: "Heat", DurationMin: 90, Categories: []string{"crime", "drama"}})
	store.AddRoom(model.Room{ID: roomMain, Name: "Main", MaxSeats: 50})
	store.AddRoom(model.Room{ID: roomSmall, Name: "Small", MaxSeats: 10})
	store.AddUser(model.User{ID: adminID, Email: "admin@example.com", Role: model.RoleAdmin})
	store.AddUser(model.User{ID: aliceID, Email: "alice@example.com", Role: model.RoleCustomer})
	store.AddUser(model.User{ID: bobID, Email: "bob@example.com", Role: model.RoleCustomer})

	repos := Repositories{
		Tx:         store,
		Movies:     store.Movies(),
		Rooms:      store.Rooms(),
		Users:      store.Users(),
		Screenings: store.Screenings(),
		Purchases:  store.Purchases(),
	}
	clk := clock.NewFixed(testNow)
	events := &recordingPublisher{}
	return &fixture{
		store:  store,
		clock:  clk,
		events: events,
		sched:  NewSchedulingService(repos, clk, time.UTC, nil),
		res:    NewReservationService(repos, clk, events, nil),
		stats:  NewStatisticsService(store.Purchases(), clk, time.UTC, nil),
	}
}

func (f *fixture) screening(t *testing.T, movieID, roomID uint64, start time.Time, price float64) *model.Screening {
	t.Helper()
	sc, err := f.sched.CreateScreening(context.Background(), ScreeningInput{
		MovieID: movieID, RoomID: roomID, StartsAt: start, Price: price,
	})
	if err != nil {
		t.Fatalf("create screening: %v", err)
	}
	return sc
}

func (f *fixture) purchase(t *testing.T, actor model.Actor, screeningID uint64, seats int) *model.Purchase {
	t.Helper()
	p, err := f.res.CreatePurchase(context.Background(), actor, PurchaseInput{ScreeningID: screeningID, Seats: seats})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	return p
}

func (f *fixture) paid(t *testing.T, actor model.Actor, screeningID uint64, seats int) *model.Purchase {
	t.Helper()
	p := f.purchase(t, actor, screeningID, seats)
	p, err := f.res.ConfirmPayment(context.Background(), actor, p.ID)
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	return p
}

func assertCode(t *testing.T, err error, kind apperr.Kind, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, got, err)
	}
	if got := apperr.CodeOf(err); got != code {
		t.Fatalf("expected code %s, got %s (%v)", code, got, err)
	}
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
