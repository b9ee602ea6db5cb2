package model

// Room is a screening room.  MaxSeats bounds the number of seats that
// can be held (UNPAID or PAID) for any single screening in the room.
//
// Fields:
//  ID       – primary key identifier.
//  Name     – human readable label.
//  MaxSeats – seating capacity; always positive.
type Room struct {
	ID       uint64 // rooms.id
	Name     string // rooms.name
	MaxSeats uint32 // rooms.max_seats
}
