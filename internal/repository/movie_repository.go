package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/cinema-scheduling/internal/model"
)

// MovieRepo reads the movie catalogue.  Movies are maintained outside
// this service, so the repository is read-only.
type MovieRepo struct {
	db *sql.DB
}

// NewMovieRepo constructs a MovieRepo over db.
func NewMovieRepo(db *sql.DB) *MovieRepo {
	return &MovieRepo{db: db}
}

// GetByID loads a movie with its category names.  It returns
// ErrMovieNotFound when no row matches.
func (r *MovieRepo) GetByID(ctx context.Context, id uint64) (*model.Movie, error) {
	q := conn(ctx, r.db)
	var m model.Movie
	err := q.QueryRowContext(ctx,
		`SELECT id, title, duration_min FROM movies WHERE id = ?`, id,
	).Scan(&m.ID, &m.Title, &m.DurationMin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMovieNotFound
		}
		return nil, err
	}
	cats, err := loadCategories(ctx, q, []uint64{m.ID})
	if err != nil {
		return nil, err
	}
	m.Categories = cats[m.ID]
	return &m, nil
}

// List returns every movie ordered by title, then id.
func (r *MovieRepo) List(ctx context.Context) ([]model.Movie, error) {
	q := conn(ctx, r.db)
	rows, err := q.QueryContext(ctx, `SELECT id, title, duration_min FROM movies ORDER BY title ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		movies []model.Movie
		ids    []uint64
	)
	for rows.Next() {
		var m model.Movie
		if err := rows.Scan(&m.ID, &m.Title, &m.DurationMin); err != nil {
			return nil, err
		}
		movies = append(movies, m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	cats, err := loadCategories(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range movies {
		movies[i].Categories = cats[movies[i].ID]
	}
	return movies, nil
}

// loadCategories maps movie id -> sorted category names for the given
// movies in a single query.
func loadCategories(ctx context.Context, q querier, movieIDs []uint64) (map[uint64][]string, error) {
	out := make(map[uint64][]string, len(movieIDs))
	if len(movieIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(movieIDs)), ",")
	args := make([]any, len(movieIDs))
	for i, id := range movieIDs {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx,
		`SELECT mc.movie_id, c.name
		   FROM movie_categories mc
		   JOIN categories c ON c.id = mc.category_id
		  WHERE mc.movie_id IN (`+placeholders+`)
		  ORDER BY mc.movie_id ASC, c.name ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			movieID uint64
			name    string
		)
		if err := rows.Scan(&movieID, &name); err != nil {
			return nil, err
		}
		out[movieID] = append(out[movieID], name)
	}
	return out, rows.Err()
}
