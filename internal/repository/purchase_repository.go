package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/cinema-scheduling/internal/model"
)

// PurchaseRepo manages persistence for purchases and the joined sale
// rows used by statistics.
type PurchaseRepo struct {
	db *sql.DB
}

// NewPurchaseRepo constructs a PurchaseRepo over db.
func NewPurchaseRepo(db *sql.DB) *PurchaseRepo {
	return &PurchaseRepo{db: db}
}

const purchaseColumns = `id, user_id, screening_id, seats, status, created_at, updated_at`

func scanPurchase(sc rowScanner, p *model.Purchase) error {
	return sc.Scan(&p.ID, &p.UserID, &p.ScreeningID, &p.Seats, &p.Status, &p.CreatedAt, &p.UpdatedAt)
}

// Create inserts p and assigns the generated id.
func (r *PurchaseRepo) Create(ctx context.Context, p *model.Purchase) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO purchases (user_id, screening_id, seats, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.UserID, p.ScreeningID, p.Seats, p.Status, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// GetByID returns ErrPurchaseNotFound when there is no matching row.
func (r *PurchaseRepo) GetByID(ctx context.Context, id uint64) (*model.Purchase, error) {
	var p model.Purchase
	err := scanPurchase(conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, id), &p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ReservedSeats sums the seats held by UNPAID and PAID purchases of a
// screening.  Called under the screening lock it is exact.
func (r *PurchaseRepo) ReservedSeats(ctx context.Context, screeningID uint64) (uint32, error) {
	var total uint32
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(seats), 0) FROM purchases WHERE screening_id = ? AND status IN (?, ?)`,
		screeningID, model.StatusUnpaid, model.StatusPaid,
	).Scan(&total)
	return total, err
}

// TransitionStatus is a compare-and-set on the status column.  Two
// concurrent confirmations of the same purchase cannot both succeed.
func (r *PurchaseRepo) TransitionStatus(ctx context.Context, id uint64, from, to model.PurchaseStatus, at time.Time) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE purchases SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, at.UTC(), id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete removes a purchase regardless of status.
func (r *PurchaseRepo) Delete(ctx context.Context, id uint64) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM purchases WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns purchases matching f ordered by id.
func (r *PurchaseRepo) List(ctx context.Context, f model.PurchaseFilter) ([]model.Purchase, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ScreeningID != 0 {
		where = append(where, "screening_id = ?")
		args = append(args, f.ScreeningID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	q := `SELECT ` + purchaseColumns + ` FROM purchases`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY id ASC`
	if f.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, max(f.Offset, 0))
	}

	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Purchase
	for rows.Next() {
		var p model.Purchase
		if err := scanPurchase(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListSales joins PAID purchases with their screening and movie for
// screenings starting within [from, to].
func (r *PurchaseRepo) ListSales(ctx context.Context, from, to time.Time) ([]model.Sale, error) {
	q := conn(ctx, r.db)
	rows, err := q.QueryContext(ctx,
		`SELECT p.id, s.id, m.id, m.title, p.seats, s.price, s.starts_at
		   FROM purchases p
		   JOIN screenings s ON s.id = p.screening_id
		   JOIN movies m ON m.id = s.movie_id
		  WHERE p.status = ?
		    AND s.starts_at >= ? AND s.starts_at <= ?
		  ORDER BY p.id ASC`,
		model.StatusPaid, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		sales    []model.Sale
		movieIDs []uint64
		seen     = map[uint64]bool{}
	)
	for rows.Next() {
		var s model.Sale
		if err := rows.Scan(&s.PurchaseID, &s.ScreeningID, &s.MovieID, &s.MovieTitle, &s.Seats, &s.Price, &s.StartsAt); err != nil {
			return nil, err
		}
		sales = append(sales, s)
		if !seen[s.MovieID] {
			seen[s.MovieID] = true
			movieIDs = append(movieIDs, s.MovieID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cats, err := loadCategories(ctx, q, movieIDs)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Categories = cats[sales[i].MovieID]
	}
	return sales, nil
}
