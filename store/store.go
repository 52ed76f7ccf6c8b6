// ABOUTME: Normalized in-memory entity store for leads, deals, projects, tasks, comments, and users
// ABOUTME: Single owner of all records; notifies subscribers after every change

package store

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/harperreed/pipedash/models"
)

// ChangeOp describes what happened to a table.
type ChangeOp string

const (
	ChangeUpsert  ChangeOp = "upsert"
	ChangeRemove  ChangeOp = "remove"
	ChangeReplace ChangeOp = "replace"
)

// Change is delivered to subscribers after a write. ID is uuid.Nil for ChangeReplace.
type Change struct {
	Kind    models.Kind
	ID      uuid.UUID
	Op      ChangeOp
	Version uint64
}

type table struct {
	rows map[uuid.UUID]models.Record
	seq  map[uuid.UUID]uint64
	next uint64
}

func newTable() *table {
	return &table{
		rows: map[uuid.UUID]models.Record{},
		seq:  map[uuid.UUID]uint64{},
	}
}

func (t *table) put(rec models.Record) {
	id := rec.EntityID()
	if _, ok := t.seq[id]; !ok {
		t.next++
		t.seq[id] = t.next
	}
	t.rows[id] = rec
}

// Store holds every entity record keyed by kind and id. Records are values:
// callers replace them through Upsert, never mutate them in place.
type Store struct {
	mu      sync.RWMutex
	tables  map[models.Kind]*table
	version uint64

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// New creates an empty store with one table per entity kind.
func New() *Store {
	tables := make(map[models.Kind]*table, len(models.Kinds))
	for _, k := range models.Kinds {
		tables[k] = newTable()
	}
	return &Store{
		tables: tables,
		subs:   map[int]func(Change){},
	}
}

func (s *Store) table(kind models.Kind) *table {
	t, ok := s.tables[kind]
	if !ok {
		t = newTable()
		s.tables[kind] = t
	}
	return t
}

// Upsert inserts or replaces rec.
func (s *Store) Upsert(rec models.Record) {
	s.mu.Lock()
	s.table(rec.EntityKind()).put(rec)
	s.version++
	ch := Change{Kind: rec.EntityKind(), ID: rec.EntityID(), Op: ChangeUpsert, Version: s.version}
	s.mu.Unlock()

	s.notify(ch)
}

// Remove deletes the record and returns the removed value.
func (s *Store) Remove(kind models.Kind, id uuid.UUID) (models.Record, bool) {
	s.mu.Lock()
	t := s.table(kind)
	rec, ok := t.rows[id]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	delete(t.rows, id)
	delete(t.seq, id)
	s.version++
	ch := Change{Kind: kind, ID: id, Op: ChangeRemove, Version: s.version}
	s.mu.Unlock()

	s.notify(ch)
	return rec, true
}

// Replace swaps the whole table for kind, as after a bulk fetch.
func (s *Store) Replace(kind models.Kind, records []models.Record) {
	s.mu.Lock()
	t := newTable()
	for _, rec := range records {
		if rec.EntityKind() != kind {
			continue
		}
		t.put(rec)
	}
	s.tables[kind] = t
	s.version++
	ch := Change{Kind: kind, Op: ChangeReplace, Version: s.version}
	s.mu.Unlock()

	s.notify(ch)
}

// Get returns the record for id, if present.
func (s *Store) Get(kind models.Kind, id uuid.UUID) (models.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[kind]
	if !ok {
		return nil, false
	}
	rec, ok := t.rows[id]
	return rec, ok
}

// List returns every record of kind in first-insertion order.
func (s *Store) List(kind models.Kind) []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[kind]
	if !ok {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return t.seq[ids[i]] < t.seq[ids[j]] })

	out := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.rows[id])
	}
	return out
}

// Len returns the number of records of kind.
func (s *Store) Len(kind models.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tables[kind]; ok {
		return len(t.rows)
	}
	return 0
}

// Version increases by one on every write.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe registers fn to run after every change. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(ch Change) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}
