// Package service holds the scheduling, reservation and statistics
// engines.  Engines depend only on the small repository interfaces
// declared here; the MySQL repositories and the embedded store both
// satisfy them.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-scheduling/internal/model"
	"github.com/iliyamo/cinema-scheduling/internal/queue"
)

// TxRunner runs fn inside a transaction.  Locks taken through the
// GetForUpdate methods below are held until fn returns.  Nested calls
// join the outer transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MovieLookup resolves a movie, and with it the duration that fixes a
// screening's end.
type MovieLookup interface {
	GetByID(ctx context.Context, id uint64) (*model.Movie, error)
}

// RoomLookup resolves rooms and their seat capacity.
type RoomLookup interface {
	GetByID(ctx context.Context, id uint64) (*model.Room, error)
	// GetForUpdate loads the room and locks it for the rest of the
	// transaction.  Scheduling serializes on this lock.
	GetForUpdate(ctx context.Context, id uint64) (*model.Room, error)
}

// UserLookup checks that a purchase is made for a known, active user.
type UserLookup interface {
	Exists(ctx context.Context, id uint64) (bool, error)
}

// ScreeningRepository persists screenings.
type ScreeningRepository interface {
	Create(ctx context.Context, s *model.Screening) error
	Update(ctx context.Context, s *model.Screening) error
	// Delete removes the screening together with its CANCELLED
	// purchases.  It reports false when no row matched.
	Delete(ctx context.Context, id uint64) (bool, error)
	GetByID(ctx context.Context, id uint64) (*model.Screening, error)
	// GetForUpdate loads the screening and locks it for the rest of the
	// transaction.  Reservations serialize on this lock.
	GetForUpdate(ctx context.Context, id uint64) (*model.Screening, error)
	// FindOverlapping returns screenings in roomID whose interval
	// intersects [start, end), ignoring excludeID (0 ignores nothing).
	FindOverlapping(ctx context.Context, roomID uint64, start, end time.Time, excludeID uint64) ([]model.Screening, error)
	List(ctx context.Context, f model.ScreeningFilter) ([]model.Screening, error)
}

// PurchaseRepository persists purchases and serves the sales view.
type PurchaseRepository interface {
	Create(ctx context.Context, p *model.Purchase) error
	GetByID(ctx context.Context, id uint64) (*model.Purchase, error)
	// ReservedSeats sums seats of UNPAID and PAID purchases.
	ReservedSeats(ctx context.Context, screeningID uint64) (uint32, error)
	// TransitionStatus moves the purchase from `from` to `to` only if it
	// is currently in `from`.  It reports whether a row changed.
	TransitionStatus(ctx context.Context, id uint64, from, to model.PurchaseStatus, at time.Time) (bool, error)
	Delete(ctx context.Context, id uint64) (bool, error)
	List(ctx context.Context, f model.PurchaseFilter) ([]model.Purchase, error)
	SalesReader
}

// SalesReader loads PAID purchases whose screening starts within
// [from, to] (both inclusive).
type SalesReader interface {
	ListSales(ctx context.Context, from, to time.Time) ([]model.Sale, error)
}

// EventPublisher receives purchase lifecycle events after commit.
type EventPublisher interface {
	PublishPurchaseEvent(ctx context.Context, ev queue.PurchaseEvent) error
}

// Repositories bundles the collaborators shared by the engines.
type Repositories struct {
	Tx         TxRunner
	Movies     MovieLookup
	Rooms      RoomLookup
	Users      UserLookup
	Screenings ScreeningRepository
	Purchases  PurchaseRepository
}
