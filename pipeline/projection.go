// ABOUTME: Reactive holder that rebuilds the board whenever the store or view settings change
// ABOUTME: Subscribers receive the fresh board after every recomputation

package pipeline

import (
	"sort"
	"sync"

	"github.com/harperreed/pipedash/models"
	"github.com/harperreed/pipedash/store"
)

// Projection keeps the current board for a store.
type Projection struct {
	store *store.Store

	mu      sync.RWMutex
	filter  Filter
	sort    Sort
	board   Board
	trash   []models.Lead
	summary []StageSummary

	subMu   sync.Mutex
	subs    map[int]func(Board)
	nextSub int

	unsubscribe func()
}

func NewProjection(s *store.Store) *Projection {
	p := &Projection{
		store: s,
		sort:  DefaultSort,
		subs:  map[int]func(Board){},
	}
	p.recompute()
	p.unsubscribe = s.Subscribe(func(ch store.Change) {
		switch ch.Kind {
		case models.KindLead, models.KindProject, models.KindDeal:
			p.recompute()
		}
	})
	return p
}

// Close detaches the projection from the store.
func (p *Projection) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
}

func (p *Projection) Board() Board {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.board
}

func (p *Projection) Trash() []models.Lead {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.trash
}

func (p *Projection) Summary() []StageSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.summary
}

func (p *Projection) Filter() Filter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filter
}

func (p *Projection) Sort() Sort {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sort
}

func (p *Projection) SetFilter(f Filter) {
	p.mu.Lock()
	p.filter = f
	p.mu.Unlock()
	p.recompute()
}

func (p *Projection) SetSort(s Sort) {
	p.mu.Lock()
	p.sort = s.normalized()
	p.mu.Unlock()
	p.recompute()
}

// Subscribe registers fn to receive every rebuilt board.
func (p *Projection) Subscribe(fn func(Board)) func() {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		delete(p.subs, id)
	}
}

func (p *Projection) recompute() {
	version := p.store.Version()
	leads := p.store.Leads()
	projects := p.store.Projects()
	deals := p.store.Deals()

	p.mu.Lock()
	if version < p.board.Version {
		// A newer snapshot already landed from another goroutine.
		p.mu.Unlock()
		return
	}
	board := Build(leads, projects, p.filter, p.sort)
	board.Version = version
	p.board = board
	p.trash = TrashList(leads, projects, p.filter, p.sort)
	p.summary = Summarize(leads, deals)
	p.mu.Unlock()

	p.subMu.Lock()
	ids := make([]int, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Board), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.subs[id])
	}
	p.subMu.Unlock()

	for _, fn := range fns {
		fn(board)
	}
}
