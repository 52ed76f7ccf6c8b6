// ABOUTME: Bounded FIFO set of recently accepted event ids
// ABOUTME: Oldest ids are evicted once capacity is reached

package stream

// DefaultRecentCapacity is how many event ids are remembered for dedup.
const DefaultRecentCapacity = 200

// RecentIDs remembers the last N ids. Not safe for concurrent use.
type RecentIDs struct {
	ring []string
	next int
	full bool
	set  map[string]struct{}
}

func NewRecentIDs(capacity int) *RecentIDs {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &RecentIDs{
		ring: make([]string, capacity),
		set:  make(map[string]struct{}, capacity),
	}
}

func (r *RecentIDs) Contains(id string) bool {
	_, ok := r.set[id]
	return ok
}

// Add records id and reports whether it was new.
func (r *RecentIDs) Add(id string) bool {
	if r.Contains(id) {
		return false
	}
	if r.full {
		delete(r.set, r.ring[r.next])
	}
	r.ring[r.next] = id
	r.set[id] = struct{}{}
	r.next++
	if r.next == len(r.ring) {
		r.next = 0
		r.full = true
	}
	return true
}

func (r *RecentIDs) Len() int {
	return len(r.set)
}
