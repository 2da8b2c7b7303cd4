package store

import (
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/rickgao/drawsync/internal/model"
)

// snapshot is an immutable view of the store. Never modified after publish.
type snapshot struct {
	order []string
	byID  map[string]model.Entry
}

func emptySnapshot() *snapshot {
	return &snapshot{byID: make(map[string]model.Entry)}
}

func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		order: make([]string, len(s.order), len(s.order)+1),
		byID:  make(map[string]model.Entry, len(s.byID)+1),
	}
	copy(next.order, s.order)
	for k, v := range s.byID {
		next.byID[k] = v
	}
	return next
}

func (s *snapshot) entries() []model.Entry {
	out := make([]model.Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Store is the keyed ticket collection. The zero value is not usable; call New.
type Store struct {
	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot]
}

// New creates an empty Store.
func New() *Store {
	s := &Store{}
	s.snap.Store(emptySnapshot())
	return s
}

// Get returns the entry keyed by requestID.
func (s *Store) Get(requestID string) (model.Entry, bool) {
	e, ok := s.snap.Load().byID[requestID]
	return e, ok
}

// All returns the entries in display order (newest purchase first).
func (s *Store) All() []model.Entry {
	return s.snap.Load().entries()
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.snap.Load().order)
}

// Upsert inserts e or replaces the entry with the same RequestID in place.
// New entries are placed first.
func (s *Store) Upsert(e model.Entry) {
	e = e.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.Load().clone()
	if _, exists := next.byID[e.RequestID]; !exists {
		next.order = append([]string{e.RequestID}, next.order...)
	}
	next.byID[e.RequestID] = e
	s.snap.Store(next)
}

// Update applies fn to the entry keyed by requestID. Returns false when the
// entry does not exist. fn must not change RequestID; use Rekey for that.
func (s *Store) Update(requestID string, fn func(model.Entry) model.Entry) (model.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	old, ok := cur.byID[requestID]
	if !ok {
		return model.Entry{}, false
	}

	updated := fn(old).Normalize()
	updated.RequestID = requestID

	next := cur.clone()
	next.byID[requestID] = updated
	s.snap.Store(next)
	return updated, true
}

// Rekey moves the entry at oldID to newID, applying patch to it, in a single
// step. The entry keeps its position. If newID is already present (a
// snapshot indexed the ticket first), the existing entry is kept, enriched
// with the local entry's session fields, and oldID is dropped.
//
// Returns false when oldID does not exist.
func (s *Store) Rekey(oldID, newID string, patch func(model.Entry) model.Entry) (model.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	old, ok := cur.byID[oldID]
	if !ok {
		return model.Entry{}, false
	}
	if patch == nil {
		patch = func(e model.Entry) model.Entry { return e }
	}

	next := cur.clone()
	delete(next.byID, oldID)

	var moved model.Entry
	if existing, clash := cur.byID[newID]; clash && oldID != newID {
		moved = patch(existing.WithLocal(old))
		next.order = lo.Without(next.order, oldID)
	} else {
		moved = patch(old)
		next.order = lo.Map(next.order, func(id string, _ int) string {
			if id == oldID {
				return newID
			}
			return id
		})
	}
	moved.RequestID = newID
	moved = moved.Normalize()

	next.byID[newID] = moved
	s.snap.Store(next)
	return moved, true
}

// Replace swaps the full contents for entries, in the given order. When two
// entries share a RequestID the first one wins.
func (s *Store) Replace(entries []model.Entry) {
	s.Apply(func([]model.Entry) []model.Entry { return entries })
}

// Apply derives the full contents from the current entries and publishes
// the result as one step. It is the functional form used by the merger.
func (s *Store) Apply(fn func(current []model.Entry) []model.Entry) []model.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	derived := lo.UniqBy(fn(s.snap.Load().entries()), func(e model.Entry) string { return e.RequestID })

	next := &snapshot{
		order: make([]string, 0, len(derived)),
		byID:  make(map[string]model.Entry, len(derived)),
	}
	for i, e := range derived {
		e = e.Normalize()
		derived[i] = e
		next.order = append(next.order, e.RequestID)
		next.byID[e.RequestID] = e
	}
	s.snap.Store(next)
	return derived
}
