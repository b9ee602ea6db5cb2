package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/cinema-scheduling/internal/model"
)

// ScreeningRepo manages persistence for screenings.  Times are stored
// as UTC DATETIME; the DSN sets parseTime=true&loc=UTC so they scan
// straight into time.Time.
type ScreeningRepo struct {
	db *sql.DB
}

// NewScreeningRepo constructs a ScreeningRepo over db.
func NewScreeningRepo(db *sql.DB) *ScreeningRepo {
	return &ScreeningRepo{db: db}
}

const screeningColumns = `s.id, s.movie_id, s.room_id, s.starts_at, s.price, s.created_at, s.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScreening(sc rowScanner, s *model.Screening) error {
	return sc.Scan(&s.ID, &s.MovieID, &s.RoomID, &s.StartsAt, &s.Price, &s.CreatedAt, &s.UpdatedAt)
}

// Create inserts s and assigns the generated id.
func (r *ScreeningRepo) Create(ctx context.Context, s *model.Screening) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO screenings (movie_id, room_id, starts_at, price, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.MovieID, s.RoomID, s.StartsAt.UTC(), s.Price, s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// Update overwrites every mutable column.  It returns
// ErrScreeningNotFound when the row is gone.
func (r *ScreeningRepo) Update(ctx context.Context, s *model.Screening) error {
	q := conn(ctx, r.db)
	res, err := q.ExecContext(ctx,
		`UPDATE screenings SET movie_id = ?, room_id = ?, starts_at = ?, price = ?, updated_at = ?
		 WHERE id = ?`,
		s.MovieID, s.RoomID, s.StartsAt.UTC(), s.Price, s.UpdatedAt.UTC(), s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// MySQL reports 0 affected rows when the values are unchanged, so
	// tell "missing" apart from "identical".
	var one int
	if err := q.QueryRowContext(ctx, `SELECT 1 FROM screenings WHERE id = ?`, s.ID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrScreeningNotFound
		}
		return err
	}
	return nil
}

// Delete removes the screening and its CANCELLED purchases.  Callers
// check for UNPAID/PAID purchases first; the foreign key rejects the
// delete if one slipped in.
func (r *ScreeningRepo) Delete(ctx context.Context, id uint64) (bool, error) {
	q := conn(ctx, r.db)
	if _, err := q.ExecContext(ctx,
		`DELETE FROM purchases WHERE screening_id = ? AND status = ?`, id, model.StatusCancelled); err != nil {
		return false, err
	}
	res, err := q.ExecContext(ctx, `DELETE FROM screenings WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetByID returns ErrScreeningNotFound when there is no matching row.
func (r *ScreeningRepo) GetByID(ctx context.Context, id uint64) (*model.Screening, error) {
	return r.getOne(ctx, conn(ctx, r.db), `SELECT `+screeningColumns+` FROM screenings s WHERE s.id = ?`, id)
}

// GetForUpdate locks the screening row until the transaction ends.
// Purchases for the screening queue up behind this lock.
func (r *ScreeningRepo) GetForUpdate(ctx context.Context, id uint64) (*model.Screening, error) {
	tx := txFrom(ctx)
	if tx == nil {
		return nil, ErrNoTx
	}
	return r.getOne(ctx, tx, `SELECT `+screeningColumns+` FROM screenings s WHERE s.id = ? FOR UPDATE`, id)
}

func (r *ScreeningRepo) getOne(ctx context.Context, q querier, query string, id uint64) (*model.Screening, error) {
	var s model.Screening
	if err := scanScreening(q.QueryRowContext(ctx, query, id), &s); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScreeningNotFound
		}
		return nil, err
	}
	return &s, nil
}

// FindOverlapping returns the screenings in roomID whose interval
// [starts_at, starts_at + duration) intersects [start, end).  The end
// of an existing screening is derived from its movie's duration, and
// the strict comparisons let back-to-back screenings touch.
func (r *ScreeningRepo) FindOverlapping(ctx context.Context, roomID uint64, start, end time.Time, excludeID uint64) ([]model.Screening, error) {
	const q = `SELECT ` + screeningColumns + `
	             FROM screenings s
	             JOIN movies m ON m.id = s.movie_id
	            WHERE s.room_id = ?
	              AND s.id <> ?
	              AND s.starts_at < ?
	              AND DATE_ADD(s.starts_at, INTERVAL m.duration_min MINUTE) > ?
	            ORDER BY s.starts_at ASC, s.id ASC`
	return r.query(ctx, q, roomID, excludeID, end.UTC(), start.UTC())
}

// List returns screenings matching f ordered by start time, then id.
func (r *ScreeningRepo) List(ctx context.Context, f model.ScreeningFilter) ([]model.Screening, error) {
	var (
		where []string
		args  []any
	)
	if f.RoomID != 0 {
		where = append(where, "s.room_id = ?")
		args = append(args, f.RoomID)
	}
	if !f.From.IsZero() {
		where = append(where, "s.starts_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "s.starts_at < ?")
		args = append(args, f.To.UTC())
	}
	if !f.After.IsZero() {
		where = append(where, "s.starts_at > ?")
		args = append(args, f.After.UTC())
	}
	q := `SELECT ` + screeningColumns + ` FROM screenings s`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY s.starts_at ASC, s.id ASC`
	return r.query(ctx, q, args...)
}

func (r *ScreeningRepo) query(ctx context.Context, q string, args ...any) ([]model.Screening, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Screening
	for rows.Next() {
		var s model.Screening
		if err := scanScreening(rows, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
