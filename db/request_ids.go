package db

import "sync"

// DefaultRecentRequestIDs bounds the in-memory set of recently accepted
// packet request ids.
const DefaultRecentRequestIDs = 4096

// recentRequestIDs remembers the last N request ids handed to the sink, so
// re-delivery is caught while the first copy is still queued for the async
// writer. Older ids fall through to the unique index.
type recentRequestIDs struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	next  int
}

func newRecentRequestIDs(capacity int) *recentRequestIDs {
	if capacity <= 0 {
		capacity = DefaultRecentRequestIDs
	}
	return &recentRequestIDs{
		ids:   make(map[string]struct{}, capacity),
		order: make([]string, capacity),
	}
}

// claim records id and reports whether it was new.
func (s *recentRequestIDs) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return false
	}
	if old := s.order[s.next]; old != "" {
		delete(s.ids, old)
	}
	s.order[s.next] = id
	s.next = (s.next + 1) % len(s.order)
	s.ids[id] = struct{}{}
	return true
}

// release forgets id so a failed write can be retried.
func (s *recentRequestIDs) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
	for i, v := range s.order {
		if v == id {
			s.order[i] = ""
		}
	}
}
