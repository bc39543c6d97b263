package aggregator

import "time"

// SlidingWindow holds the timestamps of one signal type for rate computation.
// Rates are computed by prune-then-count, never by an incremental counter, so
// the result only depends on which entries are younger than the window.
//
// Not safe for concurrent use; the owning subject record's lock guards it.
type SlidingWindow struct {
	length     time.Duration
	maxEntries int
	times      []time.Time
}

// NewSlidingWindow creates a window of the given length. maxEntries is a
// memory ceiling applied after stale entries are pruned; it only bites when
// more than maxEntries events arrive within one window. maxEntries <= 0 means
// unbounded.
func NewSlidingWindow(length time.Duration, maxEntries int) *SlidingWindow {
	return &SlidingWindow{length: length, maxEntries: maxEntries}
}

// Add records an event at t, first dropping entries that have aged out of
// the window ending at t.
func (w *SlidingWindow) Add(t time.Time) {
	if len(w.times) > 0 && !w.times[0].After(t.Add(-w.length)) {
		w.Prune(t)
	}
	w.times = append(w.times, t)
	if w.maxEntries > 0 && len(w.times) > w.maxEntries {
		w.times = append(w.times[:0], w.times[len(w.times)-w.maxEntries:]...)
	}
}

// Prune drops every entry not strictly newer than now minus the window length.
func (w *SlidingWindow) Prune(now time.Time) {
	cutoff := now.Add(-w.length)
	kept := w.times[:0]
	for _, t := range w.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	// release references past the kept prefix
	for i := len(kept); i < len(w.times); i++ {
		w.times[i] = time.Time{}
	}
	w.times = kept
}

// Rate prunes stale entries and returns how many remain.
func (w *SlidingWindow) Rate(now time.Time) int {
	w.Prune(now)
	return len(w.times)
}

// CountAt returns the number of entries inside the window ending at now
// without mutating the window.
func (w *SlidingWindow) CountAt(now time.Time) int {
	cutoff := now.Add(-w.length)
	n := 0
	for _, t := range w.times {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, stale ones included.
func (w *SlidingWindow) Len() int {
	return len(w.times)
}

// Oldest returns the oldest stored entry.
func (w *SlidingWindow) Oldest() (time.Time, bool) {
	if len(w.times) == 0 {
		return time.Time{}, false
	}
	return w.times[0], true
}

// Length returns the window length.
func (w *SlidingWindow) Length() time.Duration {
	return w.length
}

// Reset drops every entry.
func (w *SlidingWindow) Reset() {
	w.times = nil
}
