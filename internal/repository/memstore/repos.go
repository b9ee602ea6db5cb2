package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/cinema-scheduling/internal/model"
	"github.com/iliyamo/cinema-scheduling/internal/repository"
)

var errNoTx = repository.ErrNoTx

// ---- movies ----

// MovieRepo reads the seeded catalogue.
type MovieRepo struct{ s *Store }

func (r *MovieRepo) GetByID(_ context.Context, id uint64) (*model.Movie, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.movies[id]
	if !ok {
		return nil, repository.ErrMovieNotFound
	}
	m.Categories = append([]string(nil), m.Categories...)
	return &m, nil
}

func (r *MovieRepo) List(_ context.Context) ([]model.Movie, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Movie, 0, len(r.s.movies))
	for _, id := range sortedIDs(r.s.movies) {
		m := r.s.movies[id]
		m.Categories = append([]string(nil), m.Categories...)
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// ---- rooms ----

// RoomRepo reads rooms; GetForUpdate takes the room's key lock.
type RoomRepo struct{ s *Store }

func (r *RoomRepo) GetByID(_ context.Context, id uint64) (*model.Room, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	room, ok := r.s.rooms[id]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return &room, nil
}

func (r *RoomRepo) GetForUpdate(ctx context.Context, id uint64) (*model.Room, error) {
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := r.s.lock(ctx, "room", id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *RoomRepo) List(_ context.Context) ([]model.Room, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Room, 0, len(r.s.rooms))
	for _, id := range sortedIDs(r.s.rooms) {
		out = append(out, r.s.rooms[id])
	}
	return out, nil
}

// ---- screenings ----

// ScreeningRepo stores screenings.  Writes inside WithTx are undone
// when the transaction fails.
type ScreeningRepo struct{ s *Store }

func (r *ScreeningRepo) Create(ctx context.Context, sc *model.Screening) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lastScreeningID++
	sc.ID = r.s.lastScreeningID
	r.s.screenings[sc.ID] = *sc
	id := sc.ID
	recordUndo(ctx, func() { delete(r.s.screenings, id) })
	return nil
}

func (r *ScreeningRepo) Update(ctx context.Context, sc *model.Screening) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.screenings[sc.ID]
	if !ok {
		return repository.ErrScreeningNotFound
	}
	r.s.screenings[sc.ID] = *sc
	recordUndo(ctx, func() { r.s.screenings[prev.ID] = prev })
	return nil
}

func (r *ScreeningRepo) Delete(ctx context.Context, id uint64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.screenings[id]
	if !ok {
		return false, nil
	}
	var removed []model.Purchase
	for pid, p := range r.s.purchases {
		if p.ScreeningID == id && p.Status == model.StatusCancelled {
			removed = append(removed, p)
			delete(r.s.purchases, pid)
		}
	}
	delete(r.s.screenings, id)
	recordUndo(ctx, func() {
		r.s.screenings[prev.ID] = prev
		for _, p := range removed {
			r.s.purchases[p.ID] = p
		}
	})
	return true, nil
}

func (r *ScreeningRepo) GetByID(_ context.Context, id uint64) (*model.Screening, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sc, ok := r.s.screenings[id]
	if !ok {
		return nil, repository.ErrScreeningNotFound
	}
	return &sc, nil
}

func (r *ScreeningRepo) GetForUpdate(ctx context.Context, id uint64) (*model.Screening, error) {
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := r.s.lock(ctx, "screening", id); err != nil {
		return nil, err
	}
	// Re-read: the row may have changed or vanished while we waited.
	return r.GetByID(ctx, id)
}

// FindOverlapping uses the same half-open test as MySQL: back-to-back
// screenings do not overlap.
func (r *ScreeningRepo) FindOverlapping(_ context.Context, roomID uint64, start, end time.Time, excludeID uint64) ([]model.Screening, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.Screening
	for _, sc := range r.s.screenings {
		if sc.RoomID != roomID || sc.ID == excludeID {
			continue
		}
		movie, ok := r.s.movies[sc.MovieID]
		if !ok {
			continue
		}
		if model.Overlaps(sc.StartsAt, sc.EndsAt(movie.Duration()), start, end) {
			out = append(out, sc)
		}
	}
	sortScreenings(out)
	return out, nil
}

func (r *ScreeningRepo) List(_ context.Context, f model.ScreeningFilter) ([]model.Screening, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.Screening
	for _, sc := range r.s.screenings {
		switch {
		case f.RoomID != 0 && sc.RoomID != f.RoomID:
			continue
		case !f.From.IsZero() && sc.StartsAt.Before(f.From):
			continue
		case !f.To.IsZero() && !sc.StartsAt.Before(f.To):
			continue
		case !f.After.IsZero() && !sc.StartsAt.After(f.After):
			continue
		}
		out = append(out, sc)
	}
	sortScreenings(out)
	return out, nil
}

func sortScreenings(s []model.Screening) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].StartsAt.Equal(s[j].StartsAt) {
			return s[i].StartsAt.Before(s[j].StartsAt)
		}
		return s[i].ID < s[j].ID
	})
}

// ---- purchases ----

// PurchaseRepo stores purchases and derives the sales view.
type PurchaseRepo struct{ s *Store }

func (r *PurchaseRepo) Create(ctx context.Context, p *model.Purchase) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.screenings[p.ScreeningID]; !ok {
		return repository.ErrScreeningNotFound
	}
	r.s.lastPurchaseID++
	p.ID = r.s.lastPurchaseID
	r.s.purchases[p.ID] = *p
	id := p.ID
	recordUndo(ctx, func() { delete(r.s.purchases, id) })
	return nil
}

func (r *PurchaseRepo) GetByID(_ context.Context, id uint64) (*model.Purchase, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.purchases[id]
	if !ok {
		return nil, repository.ErrPurchaseNotFound
	}
	return &p, nil
}

func (r *PurchaseRepo) ReservedSeats(_ context.Context, screeningID uint64) (uint32, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var total uint32
	for _, p := range r.s.purchases {
		if p.ScreeningID == screeningID && p.Status.HoldsSeats() {
			total += p.Seats
		}
	}
	return total, nil
}

// TransitionStatus changes the status only when it is still from.
func (r *PurchaseRepo) TransitionStatus(ctx context.Context, id uint64, from, to model.PurchaseStatus, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.purchases[id]
	if !ok || p.Status != from {
		return false, nil
	}
	prev := p
	p.Status = to
	p.UpdatedAt = at
	r.s.purchases[id] = p
	recordUndo(ctx, func() { r.s.purchases[prev.ID] = prev })
	return true, nil
}

func (r *PurchaseRepo) Delete(ctx context.Context, id uint64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.purchases[id]
	if !ok {
		return false, nil
	}
	delete(r.s.purchases, id)
	recordUndo(ctx, func() { r.s.purchases[prev.ID] = prev })
	return true, nil
}

func (r *PurchaseRepo) List(_ context.Context, f model.PurchaseFilter) ([]model.Purchase, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.Purchase
	for _, id := range sortedIDs(r.s.purchases) {
		p := r.s.purchases[id]
		switch {
		case f.UserID != 0 && p.UserID != f.UserID:
			continue
		case f.ScreeningID != 0 && p.ScreeningID != f.ScreeningID:
			continue
		case f.Status != "" && p.Status != f.Status:
			continue
		}
		out = append(out, p)
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *PurchaseRepo) ListSales(_ context.Context, from, to time.Time) ([]model.Sale, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []model.Sale
	for _, id := range sortedIDs(r.s.purchases) {
		p := r.s.purchases[id]
		if p.Status != model.StatusPaid {
			continue
		}
		sc, ok := r.s.screenings[p.ScreeningID]
		if !ok || sc.StartsAt.Before(from) || sc.StartsAt.After(to) {
			continue
		}
		movie := r.s.movies[sc.MovieID]
		cats := append([]string(nil), movie.Categories...)
		sort.Strings(cats)
		out = append(out, model.Sale{
			PurchaseID:  p.ID,
			ScreeningID: sc.ID,
			MovieID:     sc.MovieID,
			MovieTitle:  movie.Title,
			Categories:  cats,
			Seats:       p.Seats,
			Price:       sc.Price,
			StartsAt:    sc.StartsAt,
		})
	}
	return out, nil
}

// ---- users and tokens ----

// UserRepo stores accounts.  Emails are matched case-insensitively.
type UserRepo struct{ s *Store }

func (r *UserRepo) Create(ctx context.Context, email, passwordHash, role string) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return 0, repository.ErrEmailExists
		}
	}
	r.s.lastUserID++
	u := model.User{
		ID:           r.s.lastUserID,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
	}
	r.s.users[u.ID] = u
	recordUndo(ctx, func() { delete(r.s.users, u.ID) })
	return u.ID, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *UserRepo) GetByID(_ context.Context, id uint64) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (r *UserRepo) Exists(_ context.Context, id uint64) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	return ok && u.IsActive, nil
}

type tokenRow struct {
	userID    uint64
	expiresAt time.Time
	revoked   bool
}

// TokenRepo stores refresh token hashes.
type TokenRepo struct{ s *Store }

func (r *TokenRepo) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tokens[tokenHash] = tokenRow{userID: userID, expiresAt: exp}
	return nil
}

func (r *TokenRepo) ValidateRefresh(_ context.Context, tokenHash string, now time.Time) (uint64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tokens[tokenHash]
	if !ok || t.revoked || !now.Before(t.expiresAt) {
		return 0, repository.ErrTokenInvalid
	}
	return t.userID, nil
}

func (r *TokenRepo) RevokeByHash(_ context.Context, tokenHash string, _ time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tokens[tokenHash]; ok {
		t.revoked = true
		r.s.tokens[tokenHash] = t
	}
	return nil
}

func (r *TokenRepo) RevokeAllForUser(_ context.Context, userID uint64, _ time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for h, t := range r.s.tokens {
		if t.userID == userID {
			t.revoked = true
			r.s.tokens[h] = t
		}
	}
	return nil
}
