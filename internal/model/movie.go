package model

import "time"

// Movie is the catalogue entry a screening points at.  The scheduling
// core only needs its duration (to derive the screening interval) and
// its categories (for popularity statistics); everything else is
// informational.
//
// Fields:
//  ID          – primary key identifier.
//  Title       – display title.
//  DurationMin – running time in minutes; always positive.
//  Categories  – category names the movie belongs to (may be empty).
type Movie struct {
	ID          uint64   // movies.id
	Title       string   // movies.title
	DurationMin uint32   // movies.duration_min
	Categories  []string // movie_categories.category -> categories.name
}

// Duration returns the running time as a time.Duration.
func (m Movie) Duration() time.Duration {
	return time.Duration(m.DurationMin) * time.Minute
}
