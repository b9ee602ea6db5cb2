package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/cinema-scheduling/internal/model"
)

// RoomRepo reads screening rooms.  Besides plain lookups it offers the
// locking read the scheduling engine serializes on.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo constructs a RoomRepo over db.
func NewRoomRepo(db *sql.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

const roomColumns = `id, name, max_seats`

// GetByID returns ErrRoomNotFound when the room does not exist.
func (r *RoomRepo) GetByID(ctx context.Context, id uint64) (*model.Room, error) {
	return r.get(ctx, conn(ctx, r.db), `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
}

// GetForUpdate locks the room row until the surrounding transaction
// ends.  Two schedulers targeting the same room queue up here, so the
// overlap check that follows always sees the other's insert.
func (r *RoomRepo) GetForUpdate(ctx context.Context, id uint64) (*model.Room, error) {
	tx := txFrom(ctx)
	if tx == nil {
		return nil, ErrNoTx
	}
	return r.get(ctx, tx, `SELECT `+roomColumns+` FROM rooms WHERE id = ? FOR UPDATE`, id)
}

func (r *RoomRepo) get(ctx context.Context, q querier, query string, id uint64) (*model.Room, error) {
	var room model.Room
	if err := q.QueryRowContext(ctx, query, id).Scan(&room.ID, &room.Name, &room.MaxSeats); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

// List returns all rooms ordered by id.
func (r *RoomRepo) List(ctx context.Context) ([]model.Room, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rooms []model.Room
	for rows.Next() {
		var room model.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.MaxSeats); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
