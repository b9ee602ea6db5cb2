package model

import "time"

// Screening is a scheduled showing of a movie in a room.  The slot it
// occupies is the half-open interval [StartsAt, StartsAt+movie duration);
// the end is never stored so a screening always reflects the movie's
// current running time.
//
// Fields:
//  ID        – primary key identifier.
//  MovieID   – movie being shown.
//  RoomID    – room hosting the screening.
//  StartsAt  – start time (UTC).
//  Price     – ticket price per seat; never negative.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Screening struct {
	ID        uint64    // screenings.id
	MovieID   uint64    // screenings.movie_id
	RoomID    uint64    // screenings.room_id
	StartsAt  time.Time // screenings.starts_at
	Price     float64   // screenings.price
	CreatedAt time.Time // screenings.created_at
	UpdatedAt time.Time // screenings.updated_at
}

// EndsAt returns the exclusive end of the screening for a movie of the
// given duration.
func (s Screening) EndsAt(d time.Duration) time.Time {
	return s.StartsAt.Add(d)
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect.  Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// ScreeningFilter narrows a screening listing.  Zero values disable the
// corresponding condition.  From is inclusive, To is exclusive and After
// is strict.
type ScreeningFilter struct {
	RoomID uint64
	From   time.Time
	To     time.Time
	After  time.Time
}
