package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-scheduling/internal/apperr"
	"github.com/iliyamo/cinema-scheduling/internal/clock"
	"github.com/iliyamo/cinema-scheduling/internal/model"
	"github.com/iliyamo/cinema-scheduling/internal/queue"
	"github.com/iliyamo/cinema-scheduling/internal/repository"
	"github.com/iliyamo/cinema-scheduling/internal/ticket"
)

// PurchaseInput describes a purchase request.  A zero UserID means the
// actor buys for themselves.
type PurchaseInput struct {
	UserID      uint64
	ScreeningID uint64
	Seats       int
}

// ReservationService sells seats against screening capacity and drives
// the purchase status machine.
type ReservationService struct {
	repos  Repositories
	clock  clock.Clock
	events EventPublisher
	log    *zap.Logger
}

// NewReservationService wires the engine.  events may be nil, in which
// case no events are published.
func NewReservationService(repos Repositories, clk clock.Clock, events EventPublisher, log *zap.Logger) *ReservationService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReservationService{repos: repos, clock: clk, events: events, log: log.Named("reservation")}
}

// CreatePurchase reserves in.Seats seats on a screening that has not
// started yet.  Capacity and the time window are checked under the
// screening lock, right before the insert.
func (s *ReservationService) CreatePurchase(ctx context.Context, actor model.Actor, in PurchaseInput) (*model.Purchase, error) {
	if in.UserID == 0 {
		in.UserID = actor.UserID
	}
	details := map[string]any{}
	if in.Seats < 1 {
		details["seats"] = "must be at least 1"
	}
	if in.ScreeningID == 0 {
		details["screening_id"] = "required"
	}
	if in.UserID == 0 {
		details["user_id"] = "required"
	}
	if len(details) > 0 {
		return nil, apperr.Validation("invalid purchase", details)
	}
	if !actor.CanActFor(in.UserID) {
		return nil, apperr.Forbidden("cannot purchase on behalf of another user")
	}

	var (
		created   *model.Purchase
		screening *model.Screening
	)
	err := s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.repos.Users.Exists(ctx, in.UserID)
		if err != nil {
			return wrap(err, "check user")
		}
		if !ok {
			return apperr.NotFound("user", in.UserID)
		}

		sc, err := s.repos.Screenings.GetForUpdate(ctx, in.ScreeningID)
		if err != nil {
			return notFound(err, repository.ErrScreeningNotFound, "screening", in.ScreeningID)
		}
		now := s.clock.Now()
		if now.After(sc.StartsAt) {
			return apperr.TimeWindow("screening has already started").
				WithDetails(map[string]any{"screening_id": sc.ID, "starts_at": sc.StartsAt.UTC().Format(time.RFC3339)})
		}

		room, err := s.repos.Rooms.GetByID(ctx, sc.RoomID)
		if err != nil {
			return notFound(err, repository.ErrRoomNotFound, "room", sc.RoomID)
		}
		reserved, err := s.repos.Purchases.ReservedSeats(ctx, sc.ID)
		if err != nil {
			return wrap(err, "count reserved seats")
		}
		var remaining uint32
		if reserved < room.MaxSeats {
			remaining = room.MaxSeats - reserved
		}
		if int64(in.Seats) > int64(remaining) {
			return apperr.Capacity(in.Seats, remaining)
		}

		p := &model.Purchase{
			UserID:      in.UserID,
			ScreeningID: sc.ID,
			Seats:       uint32(in.Seats),
			Status:      model.StatusUnpaid,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repos.Purchases.Create(ctx, p); err != nil {
			return wrap(err, "create purchase")
		}
		created, screening = p, sc
		return nil
	})
	if err != nil {
		return nil, wrap(err, "create purchase")
	}

	s.log.Info("purchase created",
		zap.Uint64("purchase_id", created.ID),
		zap.Uint64("screening_id", created.ScreeningID),
		zap.Uint32("seats", created.Seats))
	s.publish(ctx, queue.EventPurchaseCreated, created, screening)
	return created, nil
}

// ConfirmPayment moves an UNPAID purchase to PAID.
func (s *ReservationService) ConfirmPayment(ctx context.Context, actor model.Actor, id uint64) (*model.Purchase, error) {
	return s.transition(ctx, actor, id, model.StatusPaid, queue.EventPurchasePaid)
}

// CancelPurchase moves an UNPAID purchase to CANCELLED, releasing its seats.
func (s *ReservationService) CancelPurchase(ctx context.Context, actor model.Actor, id uint64) (*model.Purchase, error) {
	return s.transition(ctx, actor, id, model.StatusCancelled, queue.EventPurchaseCancelled)
}

func (s *ReservationService) transition(ctx context.Context, actor model.Actor, id uint64, to model.PurchaseStatus, eventType string) (*model.Purchase, error) {
	var (
		updated   *model.Purchase
		screening *model.Screening
	)
	err := s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.repos.Purchases.GetByID(ctx, id)
		if err != nil {
			return notFound(err, repository.ErrPurchaseNotFound, "purchase", id)
		}
		if !actor.CanActFor(p.UserID) {
			return apperr.Forbidden("purchase belongs to another user")
		}
		if !p.Status.CanTransitionTo(to) {
			return apperr.InvalidState(string(p.Status))
		}

		now := s.clock.Now()
		ok, err := s.repos.Purchases.TransitionStatus(ctx, id, model.StatusUnpaid, to, now)
		if err != nil {
			return wrap(err, "update purchase status")
		}
		if !ok {
			// Lost a race: somebody else moved it first.  Report what it is now.
			cur, err := s.repos.Purchases.GetByID(ctx, id)
			if err != nil {
				return notFound(err, repository.ErrPurchaseNotFound, "purchase", id)
			}
			return apperr.InvalidState(string(cur.Status))
		}
		p.Status = to
		p.UpdatedAt = now
		updated = p

		if sc, err := s.repos.Screenings.GetByID(ctx, p.ScreeningID); err == nil {
			screening = sc
		}
		return nil
	})
	if err != nil {
		return nil, wrap(err, "update purchase status")
	}

	s.log.Info("purchase status changed",
		zap.Uint64("purchase_id", updated.ID),
		zap.String("status", string(updated.Status)))
	s.publish(ctx, eventType, updated, screening)
	return updated, nil
}

// DeletePurchase removes a purchase whatever its status.  Only admins
// may do this.
func (s *ReservationService) DeletePurchase(ctx context.Context, actor model.Actor, id uint64) error {
	if !actor.IsAdmin() {
		return apperr.Forbidden("only administrators can delete purchases")
	}
	var deleted *model.Purchase
	err := s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.repos.Purchases.GetByID(ctx, id)
		if err != nil {
			return notFound(err, repository.ErrPurchaseNotFound, "purchase", id)
		}
		ok, err := s.repos.Purchases.Delete(ctx, id)
		if err != nil {
			return wrap(err, "delete purchase")
		}
		if !ok {
			return apperr.NotFound("purchase", id)
		}
		deleted = p
		return nil
	})
	if err != nil {
		return wrap(err, "delete purchase")
	}
	s.log.Info("purchase deleted", zap.Uint64("purchase_id", id), zap.String("status", string(deleted.Status)))
	s.publish(ctx, queue.EventPurchaseDeleted, deleted, nil)
	return nil
}

// GetPurchase returns a purchase the actor may see.
func (s *ReservationService) GetPurchase(ctx context.Context, actor model.Actor, id uint64) (*model.Purchase, error) {
	p, err := s.repos.Purchases.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, repository.ErrPurchaseNotFound, "purchase", id)
	}
	if !actor.CanActFor(p.UserID) {
		// Do not reveal other users' purchase ids.
		return nil, apperr.NotFound("purchase", id)
	}
	return p, nil
}

// ListPurchasesByUser returns userID's purchases in every status,
// ordered by id.
func (s *ReservationService) ListPurchasesByUser(ctx context.Context, userID uint64, page model.Page) ([]model.Purchase, error) {
	return s.list(ctx, model.PurchaseFilter{UserID: userID}, page)
}

// ListPurchasesByScreening returns the purchases of one screening.
func (s *ReservationService) ListPurchasesByScreening(ctx context.Context, screeningID uint64, page model.Page) ([]model.Purchase, error) {
	return s.list(ctx, model.PurchaseFilter{ScreeningID: screeningID}, page)
}

// ListPurchasesByStatus returns purchases currently in status.
func (s *ReservationService) ListPurchasesByStatus(ctx context.Context, status model.PurchaseStatus, page model.Page) ([]model.Purchase, error) {
	return s.list(ctx, model.PurchaseFilter{Status: status}, page)
}

// ListAllPurchases returns every purchase, one page at a time.
func (s *ReservationService) ListAllPurchases(ctx context.Context, page model.Page) ([]model.Purchase, error) {
	return s.list(ctx, model.PurchaseFilter{}, page)
}

// ListPurchases combines the filters of the single-field listings.
func (s *ReservationService) ListPurchases(ctx context.Context, f model.PurchaseFilter) ([]model.Purchase, error) {
	return s.list(ctx, f, model.Page{Limit: f.Limit, Offset: f.Offset})
}

func (s *ReservationService) list(ctx context.Context, f model.PurchaseFilter, page model.Page) ([]model.Purchase, error) {
	f.Limit, f.Offset = page.Limit, page.Offset
	out, err := s.repos.Purchases.List(ctx, f)
	return out, wrap(err, "list purchases")
}

// publish sends an event after commit.  Failures are logged and never
// undo the committed change.
func (s *ReservationService) publish(ctx context.Context, eventType string, p *model.Purchase, sc *model.Screening) {
	if s.events == nil || p == nil {
		return
	}
	ev := queue.PurchaseEvent{
		EventID:     uuid.NewString(),
		Type:        eventType,
		PurchaseID:  p.ID,
		UserID:      p.UserID,
		ScreeningID: p.ScreeningID,
		Seats:       p.Seats,
		Status:      string(p.Status),
		OccurredAt:  queue.FormatTime(s.clock.Now()),
	}
	if sc != nil {
		ev.Amount = float64(p.Seats) * sc.Price
		ev.ScreeningStartsAt = queue.FormatTime(sc.StartsAt)
	}
	if err := s.events.PublishPurchaseEvent(ctx, ev); err != nil {
		s.log.Warn("publish purchase event failed",
			zap.String("type", eventType),
			zap.Uint64("purchase_id", p.ID),
			zap.Error(err))
	}
}

// Ticket returns the admission ticket of a PAID purchase.
func (s *ReservationService) Ticket(ctx context.Context, actor model.Actor, id uint64) (*ticket.Ticket, error) {
	p, err := s.GetPurchase(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if p.Status != model.StatusPaid {
		return nil, apperr.New(apperr.KindInvalidState, apperr.CodeNotPaid, "tickets are issued for paid purchases only").
			WithDetails(map[string]any{"current_status": string(p.Status)})
	}
	sc, err := s.repos.Screenings.GetByID(ctx, p.ScreeningID)
	if err != nil {
		return nil, notFound(err, repository.ErrScreeningNotFound, "screening", p.ScreeningID)
	}
	t := ticket.New(*p, *sc)
	return &t, nil
}
