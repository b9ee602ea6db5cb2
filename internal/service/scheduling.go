package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-scheduling/internal/apperr"
	"github.com/iliyamo/cinema-scheduling/internal/clock"
	"github.com/iliyamo/cinema-scheduling/internal/model"
	"github.com/iliyamo/cinema-scheduling/internal/repository"
)

// ScreeningInput carries the full set of mutable screening fields.
type ScreeningInput struct {
	MovieID  uint64
	RoomID   uint64
	StartsAt time.Time
	Price    float64
}

// MaxPrice is the largest price the screenings.price DECIMAL(10,2)
// column holds.
const MaxPrice = 99999999.99

// wholeCents reports whether v is the float nearest to a whole number
// of cents, which is what decoding "12.35" yields.
func wholeCents(v float64) bool {
	return math.Round(v*100)/100 == v
}

func (in ScreeningInput) validate() error {
	details := map[string]any{}
	if in.MovieID == 0 {
		details["movie_id"] = "required"
	}
	if in.RoomID == 0 {
		details["room_id"] = "required"
	}
	if in.StartsAt.IsZero() {
		details["starts_at"] = "required"
	}
	switch {
	case math.IsNaN(in.Price) || math.IsInf(in.Price, 0) || in.Price < 0:
		details["price"] = "must be a non-negative number"
	case in.Price > MaxPrice:
		details["price"] = fmt.Sprintf("must not exceed %.2f", MaxPrice)
	case !wholeCents(in.Price):
		details["price"] = "must have at most two decimal places"
	}
	if len(details) > 0 {
		return apperr.Validation("invalid screening", details)
	}
	return nil
}

// SchedulingService admits screenings into rooms without overlaps.
type SchedulingService struct {
	repos Repositories
	clock clock.Clock
	loc   *time.Location
	log   *zap.Logger
}

// NewSchedulingService wires the engine.  loc decides what "a date"
// means for ListScreeningsOnDate; nil means UTC.
func NewSchedulingService(repos Repositories, clk clock.Clock, loc *time.Location, log *zap.Logger) *SchedulingService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SchedulingService{repos: repos, clock: clk, loc: loc, log: log.Named("scheduling")}
}

// CreateScreening stores a new screening if its room is free for the
// whole running time of the movie.
func (s *SchedulingService) CreateScreening(ctx context.Context, in ScreeningInput) (*model.Screening, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	in.StartsAt = in.StartsAt.UTC().Truncate(time.Second)

	var created *model.Screening
	err := s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		movie, err := s.repos.Movies.GetByID(ctx, in.MovieID)
		if err != nil {
			return notFound(err, repository.ErrMovieNotFound, "movie", in.MovieID)
		}
		if _, err := s.repos.Rooms.GetForUpdate(ctx, in.RoomID); err != nil {
			return notFound(err, repository.ErrRoomNotFound, "room", in.RoomID)
		}
		if err := s.ensureRoomFree(ctx, in.RoomID, in.StartsAt, movie.Duration(), 0); err != nil {
			return err
		}

		now := s.clock.Now()
		sc := &model.Screening{
			MovieID:   in.MovieID,
			RoomID:    in.RoomID,
			StartsAt:  in.StartsAt,
			Price:     in.Price,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repos.Screenings.Create(ctx, sc); err != nil {
			return wrap(err, "create screening")
		}
		created = sc
		return nil
	})
	if err != nil {
		return nil, wrap(err, "create screening")
	}
	s.log.Info("screening created",
		zap.Uint64("screening_id", created.ID),
		zap.Uint64("room_id", created.RoomID),
		zap.Time("starts_at", created.StartsAt))
	return created, nil
}

// UpdateScreening replaces movie, room, start and price.  The conflict
// check ignores the screening itself.  Moving to a room smaller than the
// seats already held is rejected with CAPACITY_EXCEEDED.
func (s *SchedulingService) UpdateScreening(ctx context.Context, id uint64, in ScreeningInput) (*model.Screening, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	in.StartsAt = in.StartsAt.UTC().Truncate(time.Second)

	var updated *model.Screening
	err := s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.repos.Screenings.GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err, repository.ErrScreeningNotFound, "screening", id)
		}
		movie, err := s.repos.Movies.GetByID(ctx, in.MovieID)
		if err != nil {
			return notFound(err, repository.ErrMovieNotFound, "movie", in.MovieID)
		}
		room, err := s.repos.Rooms.GetForUpdate(ctx, in.RoomID)
		if err != nil {
			return notFound(err, repository.ErrRoomNotFound, "room", in.RoomID)
		}
		if err := s.ensureRoomFree(ctx, in.RoomID, in.StartsAt, movie.Duration(), id); err != nil {
			return err
		}
		if room.ID != current.RoomID {
			reserved, err := s.repos.Purchases.ReservedSeats(ctx, id)
			if err != nil {
				return wrap(err, "count reserved seats")
			}
			if reserved > room.MaxSeats {
				return apperr.New(apperr.KindCapacity, apperr.CodeCapacityExceeded,
					"target room is smaller than the seats already sold").
					WithDetails(map[string]any{"reserved": reserved, "max_seats": room.MaxSeats})
			}
		}

		next := *current
		next.MovieID = in.MovieID
		next.RoomID = in.RoomID
		next.StartsAt = in.StartsAt
		next.Price = in.Price
		next.UpdatedAt = s.clock.Now()
		if err := s.repos.Screenings.Update(ctx, &next); err != nil {
			return notFound(err, repository.ErrScreeningNotFound, "screening", id)
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, wrap(err, "update screening")
	}
	s.log.Info("screening updated",
		zap.Uint64("screening_id", updated.ID),
		zap.Uint64("room_id", updated.RoomID),
		zap.Time("starts_at", updated.StartsAt))
	return updated, nil
}

// DeleteScreening removes a screening.  It reports false when the
// screening does not exist.  While UNPAID or PAID purchases hold seats
// the delete is refused with SCREENING_HAS_PURCHASES; cancelled
// purchases are removed along with the screening.
func (s *SchedulingService) DeleteScreening(ctx context.Context, id uint64) (bool, error) {
	found := false
	err := s.repos.Tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.repos.Screenings.GetForUpdate(ctx, id); err != nil {
			if isNotFound(err) {
				return nil
			}
			return wrap(err, "load screening")
		}
		reserved, err := s.repos.Purchases.ReservedSeats(ctx, id)
		if err != nil {
			return wrap(err, "count reserved seats")
		}
		if reserved > 0 {
			return apperr.Conflict(apperr.CodeScreeningHasPurchases,
				"screening has active purchases; cancel or delete them first").
				WithDetails(map[string]any{"screening_id": id, "reserved": reserved})
		}
		found, err = s.repos.Screenings.Delete(ctx, id)
		return wrap(err, "delete screening")
	})
	if err != nil {
		return false, wrap(err, "delete screening")
	}
	if found {
		s.log.Info("screening deleted", zap.Uint64("screening_id", id))
	}
	return found, nil
}

// ensureRoomFree fails with SCHEDULE_CONFLICT when [start, start+d)
// intersects another screening in the room.  The caller must hold the
// room lock.
func (s *SchedulingService) ensureRoomFree(ctx context.Context, roomID uint64, start time.Time, d time.Duration, excludeID uint64) error {
	overlaps, err := s.repos.Screenings.FindOverlapping(ctx, roomID, start, start.Add(d), excludeID)
	if err != nil {
		return wrap(err, "find overlapping screenings")
	}
	if len(overlaps) == 0 {
		return nil
	}
	return apperr.Conflict(apperr.CodeScheduleConflict, "screening time overlaps with an existing screening").
		WithDetails(map[string]any{
			"room_id":                  roomID,
			"conflicting_screening_id": overlaps[0].ID,
			"conflicting_starts_at":    overlaps[0].StartsAt.UTC().Format(time.RFC3339),
		})
}

// ListScreenings returns every screening ordered by start time.
func (s *SchedulingService) ListScreenings(ctx context.Context) ([]model.Screening, error) {
	out, err := s.repos.Screenings.List(ctx, model.ScreeningFilter{})
	return out, wrap(err, "list screenings")
}

// GetScreening returns NOT_FOUND for an unknown id.
func (s *SchedulingService) GetScreening(ctx context.Context, id uint64) (*model.Screening, error) {
	sc, err := s.repos.Screenings.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, repository.ErrScreeningNotFound, "screening", id)
	}
	return sc, nil
}

// ListScreeningsOnDate returns screenings starting on the calendar day
// of date, evaluated in the service location.
func (s *SchedulingService) ListScreeningsOnDate(ctx context.Context, date time.Time) ([]model.Screening, error) {
	y, m, d := date.In(s.loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	out, err := s.repos.Screenings.List(ctx, model.ScreeningFilter{From: from.UTC(), To: from.AddDate(0, 0, 1).UTC()})
	return out, wrap(err, "list screenings on date")
}

// ListUpcomingScreenings returns screenings starting strictly after t.
func (s *SchedulingService) ListUpcomingScreenings(ctx context.Context, after time.Time) ([]model.Screening, error) {
	out, err := s.repos.Screenings.List(ctx, model.ScreeningFilter{After: after.UTC()})
	return out, wrap(err, "list upcoming screenings")
}

// Location is the zone used for calendar dates.
func (s *SchedulingService) Location() *time.Location { return s.loc }
