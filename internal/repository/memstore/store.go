// Package memstore is an embedded, in-process implementation of the
// repositories.  Serialization that MySQL gets from row locks is done
// here with mutexes keyed by room and screening id, held for the
// lifetime of a WithTx call.  Writes made inside a failed transaction
// are undone.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/iliyamo/cinema-scheduling/internal/model"
)

// Store holds every table in memory.  The zero value is not usable;
// call New.
type Store struct {
	mu sync.RWMutex

	movies     map[uint64]model.Movie
	rooms      map[uint64]model.Room
	users      map[uint64]model.User
	tokens     map[string]tokenRow
	screenings map[uint64]model.Screening
	purchases  map[uint64]model.Purchase

	lastUserID      uint64
	lastScreeningID uint64
	lastPurchaseID  uint64

	locks *keyedLocks
}

// New returns an empty store.
func New() *Store {
	return &Store{
		movies:     map[uint64]model.Movie{},
		rooms:      map[uint64]model.Room{},
		users:      map[uint64]model.User{},
		tokens:     map[string]tokenRow{},
		screenings: map[uint64]model.Screening{},
		purchases:  map[uint64]model.Purchase{},
		locks:      newKeyedLocks(),
	}
}

// AddMovie seeds the catalogue.  Categories are copied.
func (s *Store) AddMovie(m model.Movie) {
	m.Categories = append([]string(nil), m.Categories...)
	s.mu.Lock()
	s.movies[m.ID] = m
	s.mu.Unlock()
}

// AddRoom seeds a room.
func (s *Store) AddRoom(r model.Room) {
	s.mu.Lock()
	s.rooms[r.ID] = r
	s.mu.Unlock()
}

// AddUser seeds a user with a fixed id.  IsActive is forced on.
func (s *Store) AddUser(u model.User) {
	u.IsActive = true
	s.mu.Lock()
	s.users[u.ID] = u
	if u.ID > s.lastUserID {
		s.lastUserID = u.ID
	}
	s.mu.Unlock()
}

// Accessors returning the per-table repositories.
func (s *Store) Movies() *MovieRepo         { return &MovieRepo{s: s} }
func (s *Store) Rooms() *RoomRepo           { return &RoomRepo{s: s} }
func (s *Store) Users() *UserRepo           { return &UserRepo{s: s} }
func (s *Store) Tokens() *TokenRepo         { return &TokenRepo{s: s} }
func (s *Store) Screenings() *ScreeningRepo { return &ScreeningRepo{s: s} }
func (s *Store) Purchases() *PurchaseRepo   { return &PurchaseRepo{s: s} }

// ---- transactions ----

type txKey struct{}

type txState struct {
	held map[string]func()
	undo []func()
}

// WithTx runs fn as one unit.  Locks acquired through GetForUpdate are
// released when fn returns; if fn fails, writes it made are reverted in
// reverse order.  A nested call joins the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txOf(ctx) != nil {
		return fn(ctx)
	}
	tx := &txState{held: map[string]func(){}}
	defer func() {
		for _, release := range tx.held {
			release()
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func txOf(ctx context.Context) *txState {
	tx, _ := ctx.Value(txKey{}).(*txState)
	return tx
}

// lock acquires the keyed mutex for the current transaction.  Taking
// the same key twice in one transaction is a no-op.
func (s *Store) lock(ctx context.Context, kind string, id uint64) error {
	tx := txOf(ctx)
	if tx == nil {
		return errNoTx
	}
	key := kind + ":" + strconv.FormatUint(id, 10)
	if _, ok := tx.held[key]; ok {
		return nil
	}
	release, err := s.locks.acquire(ctx, key)
	if err != nil {
		return err
	}
	tx.held[key] = release
	return nil
}

// recordUndo registers a compensation for a write.  Must be called with
// s.mu held; the undo runs with s.mu held as well.
func recordUndo(ctx context.Context, fn func()) {
	if tx := txOf(ctx); tx != nil {
		tx.undo = append(tx.undo, fn)
	}
}

// ---- keyed locks ----

type lockEntry struct {
	ch   chan struct{}
	refs int
}

type keyedLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{entries: map[string]*lockEntry{}}
}

// acquire blocks until key is free or ctx is done.
func (k *keyedLocks) acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.drop(key, e)
		return nil, ctx.Err()
	}
	return func() {
		<-e.ch
		k.drop(key, e)
	}, nil
}

func (k *keyedLocks) drop(key string, e *lockEntry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}

func sortedIDs[V any](m map[uint64]V) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
