package aggregator

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"cognitive_backend/core"
	"cognitive_backend/signals"
)

// Aggregator owns the records of every tracked subject.
//
// The subject map is guarded by an RWMutex that is held only long enough to
// look a record up; each record has its own mutex, so ingestion for one
// subject never waits on another subject and the idle sweep never blocks
// unrelated captures.
//
// Calls for a subject that is not tracked are silent no-ops that return false.
//
// Usage:
//
//	agg := aggregator.New(logger)
//	agg.Initialize("alice@example.com", sessionID)
//	agg.CaptureKeystroke("alice@example.com", signals.KeystrokePayload{Key: "a"})
//	snap, _ := agg.GetState("alice@example.com")
type Aggregator struct {
	mu       sync.RWMutex
	subjects map[string]*subjectRecord

	cfgMu sync.RWMutex
	cfg   Config

	now    core.Clock
	logger *zap.Logger

	obsMu     sync.RWMutex
	observers map[int]*subscription
	nextObsID int
	dropped   atomic.Int64
}

// subjectRecord is the mutable state of one subject. Every field is guarded
// by mu.
type subjectRecord struct {
	mu sync.Mutex

	subjectID string
	sessionID string
	createdAt time.Time
	updatedAt time.Time
	// baseline is the idle reference when no activity was ever seen:
	// creation time, or the last ClearSignals.
	baseline time.Time

	buffer  *CircularBuffer[signals.Signal]
	windows map[signals.Type]*SlidingWindow
	state   CurrentState
	total   int64

	lastKeystroke time.Time
	lastMouse     time.Time
	lastScroll    time.Time

	lastMouseX, lastMouseY float64
	hasMouse               bool
	lastScrollPct          float64
	hasScroll              bool

	// released is set by StopTracking; a capture that looked the record up
	// just before removal must not touch it afterwards.
	released bool
}

// windowedTypes are the signal types that keep a sliding window.
var windowedTypes = []signals.Type{
	signals.TypeKeystroke,
	signals.TypeMouseMovement,
	signals.TypeScrollDepth,
	signals.TypeAppSwitch,
}

// New creates an Aggregator with DefaultConfig and the system clock.
func New(logger *zap.Logger) *Aggregator {
	return NewWithConfig(DefaultConfig(), nil, logger)
}

// NewWithConfig creates an Aggregator. A nil clock means the system clock and
// a nil logger disables logging.
func NewWithConfig(cfg Config, clock core.Clock, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		subjects:  make(map[string]*subjectRecord),
		cfg:       cfg.withDefaults(),
		now:       clock.OrSystem(),
		logger:    logger,
		observers: make(map[int]*subscription),
	}
}

// Config returns a copy of the active configuration.
func (a *Aggregator) Config() Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	cfg := a.cfg
	cfg.WorkDomains = append([]string(nil), a.cfg.WorkDomains...)
	return cfg
}

// Reconfigure replaces the configuration. Thresholds (idle threshold, jitter
// limits, work domains) take effect on the next capture or sweep; buffer
// capacity and window sizes apply to subjects initialized afterwards.
func (a *Aggregator) Reconfigure(cfg Config) {
	cfg = cfg.withDefaults()
	a.cfgMu.Lock()
	a.cfg = cfg
	a.cfgMu.Unlock()

	a.logger.Info("Aggregator reconfigured",
		zap.Duration("idle_threshold", cfg.IdleThreshold),
		zap.Strings("work_domains", cfg.WorkDomains))
}

// Initialize starts tracking subjectID. It is idempotent: if the subject is
// already tracked the existing record (and its session id) is kept and false
// is returned.
func (a *Aggregator) Initialize(subjectID, sessionID string) bool {
	cfg := a.Config()

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.subjects[subjectID]; ok {
		return false
	}

	now := a.now()
	rec := &subjectRecord{
		subjectID: subjectID,
		sessionID: sessionID,
		createdAt: now,
		updatedAt: now,
		baseline:  now,
		buffer:    NewCircularBuffer[signals.Signal](cfg.BufferCapacity),
		windows:   make(map[signals.Type]*SlidingWindow, len(windowedTypes)),
		state:     initialState(),
	}
	for _, typ := range windowedTypes {
		rec.windows[typ] = NewSlidingWindow(cfg.RateWindow, cfg.MaxWindowEntries)
	}
	a.subjects[subjectID] = rec

	a.logger.Info("Subject tracking started",
		zap.String("subject_id", subjectID),
		zap.String("session_id", sessionID))
	return true
}

// IsTracked reports whether subjectID has a record.
func (a *Aggregator) IsTracked(subjectID string) bool {
	return a.lookup(subjectID) != nil
}

// Subjects returns the tracked subject ids, sorted.
func (a *Aggregator) Subjects() []string {
	a.mu.RLock()
	ids := make([]string, 0, len(a.subjects))
	for id := range a.subjects {
		ids = append(ids, id)
	}
	a.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// StopTracking releases the subject's record. Later calls for the subject are
// no-ops until it is initialized again. Returns false if it was not tracked.
func (a *Aggregator) StopTracking(subjectID string) bool {
	a.mu.Lock()
	rec, ok := a.subjects[subjectID]
	if ok {
		delete(a.subjects, subjectID)
	}
	a.mu.Unlock()

	if !ok {
		return false
	}

	rec.mu.Lock()
	rec.released = true
	total := rec.total
	rec.mu.Unlock()

	a.logger.Info("Subject tracking stopped",
		zap.String("subject_id", subjectID),
		zap.Int64("signals_captured", total))
	return true
}

// ClearSignals empties the subject's buffer, sliding windows and counters
// while keeping it tracked. Presence flags (focus, tab, visibility) are kept.
func (a *Aggregator) ClearSignals(subjectID string) bool {
	rec := a.lookup(subjectID)
	if rec == nil {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.released {
		return false
	}

	now := a.now()
	rec.buffer.Clear()
	for _, w := range rec.windows {
		w.Reset()
	}
	rec.total = 0
	rec.baseline = now
	rec.updatedAt = now
	rec.lastKeystroke, rec.lastMouse, rec.lastScroll = time.Time{}, time.Time{}, time.Time{}
	rec.hasMouse, rec.hasScroll = false, false

	rec.state.KeystrokeRate = 0
	rec.state.MouseMovement = 0
	rec.state.ScrollRate = 0
	rec.state.ScrollDepth = 0
	rec.state.AppSwitchCount = 0
	rec.state.IdleTimeMs = 0
	rec.state.IsIdle = false
	return true
}

// CaptureWindowFocus records whether the work window has focus.
func (a *Aggregator) CaptureWindowFocus(subjectID string, focused bool) bool {
	return a.capture(subjectID, func(rec *subjectRecord, now time.Time, _ Config) signals.Signal {
		rec.state.WindowFocus = focused
		meaning := signals.MeaningUnfocused
		if focused {
			meaning = signals.MeaningFocused
		}
		return signals.New(signals.TypeWindowFocus, now, focused, meaning, nil)
	})
}

// CaptureBrowserHidden records the browser tab's visibility.
func (a *Aggregator) CaptureBrowserHidden(subjectID string, hidden bool) bool {
	return a.capture(subjectID, func(rec *subjectRecord, now time.Time, _ Config) signals.Signal {
		rec.state.BrowserHidden = hidden
		meaning := signals.MeaningVisible
		if hidden {
			meaning = signals.MeaningHidden
		}
		return signals.New(signals.TypeBrowserHidden, now, hidden, meaning, nil)
	})
}

// CaptureKeystroke records one key press.
func (a *Aggregator) CaptureKeystroke(subjectID string, p signals.KeystrokePayload) bool {
	return a.capture(subjectID, func(rec *subjectRecord, now time.Time, _ Config) signals.Signal {
		rec.state.KeystrokeRate = rec.observe(signals.TypeKeystroke, now)
		rec.lastKeystroke = now
		rec.markActive()
		return signals.New(signals.TypeKeystroke, now, p.Key, signals.MeaningRealActivity, nil)
	})
}

// CaptureMouseMovement records one pointer event. Moves shorter than the
// jitter distance are kept as low_activity and do not reset idle time.
func (a *Aggregator) CaptureMouseMovement(subjectID string, p signals.MousePayload) bool {
	return a.capture(subjectID, func(rec *subjectRecord, now time.Time, cfg Config) signals.Signal {
		meaning := signals.MeaningRealActivity
		if p.Type != "click" && rec.hasMouse &&
			math.Hypot(p.X-rec.lastMouseX, p.Y-rec.lastMouseY) < cfg.MouseJitterPx {
			meaning = signals.MeaningLowActivity
		}
		rec.lastMouseX, rec.lastMouseY, rec.hasMouse = p.X, p.Y, true

		rec.state.MouseMovement = rec.observe(signals.TypeMouseMovement, now)
		if meaning == signals.MeaningRealActivity {
			rec.lastMouse = now
			rec.markActive()
		}

		var meta map[string]string
		if p.Type != "" {
			meta = map[string]string{"event": p.Type}
		}
		return signals.New(signals.TypeMouseMovement, now, p, meaning, meta)
	})
}

// CaptureScroll records a scroll position. Changes smaller than the scroll
// jitter are low_activity and do not reset idle time.
func (a *Aggregator) CaptureScroll(subjectID string, p signals.ScrollPayload) bool {
	return a.capture(subjectID, func(rec *subjectRecord, now time.Time, cfg Config) signals.Signal {
		meaning := signals.MeaningRealActivity
		if rec.hasScroll && math.Abs(p.Percentage-rec.lastScrollPct) < cfg.ScrollJitterPct {
			meaning = signals.MeaningLowActivity
		}
		rec.lastScrollPct, rec.hasScroll = p.Percentage, true

		rec.state.ScrollDepth = p.Percentage
		rec.state.ScrollRate = rec.observe(signals.TypeScrollDepth, now)
		if meaning == signals.MeaningRealActivity {
			rec.lastScroll = now
			rec.markActive()
		}

		var meta map[string]string
		if p.Direction != "" {
			meta = map[string]string{"direction": p.Direction}
		}
		return signals.New(signals.TypeScrollDepth, now, p.Percentage, meaning, meta)
	})
}

// CaptureTabActivity records the active browser tab. The subject is on task
// when the tab is active and its domain is a work domain.
func (a *Aggregator) CaptureTabActivity(subjectID string, p signals.TabPayload) bool {
	return a.capture(subjectID, func(rec *subjectRecord, now time.Time, cfg Config) signals.Signal {
		onTask := p.IsActive && isWorkDomain(cfg.WorkDomains, p.Domain)
		rec.state.TaskTabActive = onTask
		if p.IsActive {
			rec.state.ActiveURL = p.URL
			rec.state.ActiveDomain = p.Domain
		}

		meaning := signals.MeaningOffTask
		if onTask {
			meaning = signals.MeaningOnTask
		}
		meta := map[string]string{"url": p.URL, "domain": p.Domain}
		if p.Title != "" {
			meta["title"] = p.Title
		}
		return signals.New(signals.TypeTaskTabActive, now, p.IsActive, meaning, meta)
	})
}

// CaptureAppSwitch records a switch between desktop applications.
func (a *Aggregator) CaptureAppSwitch(subjectID string, p signals.AppSwitchPayload) bool {
	return a.capture(subjectID, func(rec *subjectRecord, now time.Time, _ Config) signals.Signal {
		rec.observe(signals.TypeAppSwitch, now)
		rec.state.AppSwitchCount++
		rec.state.CurrentApp = p.ToApp

		meta := map[string]string{"from_app": p.FromApp, "to_app": p.ToApp}
		if p.Reason != "" {
			meta["reason"] = p.Reason
		}
		return signals.New(signals.TypeAppSwitch, now, p.ToApp, signals.MeaningContextSwitch, meta)
	})
}

// CaptureEvent dispatches a decoded transport event to the matching capture
// method. Events with an unexpected payload type are ignored.
func (a *Aggregator) CaptureEvent(subjectID string, ev signals.Event) bool {
	switch p := ev.Payload.(type) {
	case signals.FocusPayload:
		return a.CaptureWindowFocus(subjectID, p.Focused)
	case signals.HiddenPayload:
		return a.CaptureBrowserHidden(subjectID, p.Hidden)
	case signals.KeystrokePayload:
		return a.CaptureKeystroke(subjectID, p)
	case signals.MousePayload:
		return a.CaptureMouseMovement(subjectID, p)
	case signals.ScrollPayload:
		return a.CaptureScroll(subjectID, p)
	case signals.TabPayload:
		return a.CaptureTabActivity(subjectID, p)
	case signals.AppSwitchPayload:
		return a.CaptureAppSwitch(subjectID, p)
	default:
		a.logger.Warn("Ignoring event with unsupported payload",
			zap.String("subject_id", subjectID),
			zap.String("type", string(ev.Type)))
		return false
	}
}

// GetState returns a snapshot of the subject. Pure read.
func (a *Aggregator) GetState(subjectID string) (Snapshot, bool) {
	rec := a.lookup(subjectID)
	if rec == nil {
		return Snapshot{}, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshot(), true
}

// GetSignals returns the buffered signals with start <= timestamp <= end,
// oldest first. A zero start or end leaves that side of the range open.
// Pure read.
func (a *Aggregator) GetSignals(subjectID string, start, end time.Time) ([]signals.Signal, bool) {
	rec := a.lookup(subjectID)
	if rec == nil {
		return nil, false
	}

	rec.mu.Lock()
	matched := rec.buffer.Filter(func(s signals.Signal) bool {
		if !start.IsZero() && s.Timestamp.Before(start) {
			return false
		}
		if !end.IsZero() && s.Timestamp.After(end) {
			return false
		}
		return true
	})
	rec.mu.Unlock()

	for i := range matched {
		matched[i] = matched[i].Clone()
	}
	return matched, true
}

// GetStatistics summarises the subject's history. Rates are counted at the
// current time without pruning the windows. Pure read.
func (a *Aggregator) GetStatistics(subjectID string) (Statistics, bool) {
	rec := a.lookup(subjectID)
	if rec == nil {
		return Statistics{}, false
	}

	now := a.now()

	rec.mu.Lock()
	defer rec.mu.Unlock()

	stats := Statistics{
		SubjectID:      subjectID,
		TotalCaptured:  rec.total,
		Buffered:       rec.buffer.Size(),
		BufferCapacity: rec.buffer.Capacity(),
		ByType:         make(map[signals.Type]int),
		ByMeaning:      make(map[signals.Meaning]int),
		KeystrokeRate:  rec.windows[signals.TypeKeystroke].CountAt(now),
		MouseRate:      rec.windows[signals.TypeMouseMovement].CountAt(now),
		ScrollRate:     rec.windows[signals.TypeScrollDepth].CountAt(now),
		AppSwitchCount: rec.state.AppSwitchCount,
		IdleTimeMs:     rec.state.IdleTimeMs,
		TrackedForMs:   now.Sub(rec.createdAt).Milliseconds(),
	}

	for _, s := range rec.buffer.GetAll() {
		stats.ByType[s.Type]++
		stats.ByMeaning[s.Meaning]++
	}
	if first, ok := rec.buffer.PeekOldest(); ok {
		stats.FirstSignalAt = timePtr(first.Timestamp)
	}
	if last, ok := rec.buffer.Peek(); ok {
		stats.LastSignalAt = timePtr(last.Timestamp)
	}
	return stats, true
}

// LiveProof returns the diagnostic dump for a subject: its snapshot, raw
// activity timestamps, window occupancy and the most recent signals. Pure read.
func (a *Aggregator) LiveProof(subjectID string, recent int) (LiveProof, bool) {
	rec := a.lookup(subjectID)
	if rec == nil {
		return LiveProof{}, false
	}
	if recent <= 0 {
		recent = 10
	}

	now := a.now()

	rec.mu.Lock()
	defer rec.mu.Unlock()

	proof := LiveProof{
		Snapshot:      rec.snapshot(),
		GeneratedAt:   now,
		LastKeystroke: timePtr(rec.lastKeystroke),
		LastMouse:     timePtr(rec.lastMouse),
		LastScroll:    timePtr(rec.lastScroll),
		LastActivity:  rec.lastActivity(),
		Windows:       make(map[string]WindowProof, len(rec.windows)),
	}
	for typ, w := range rec.windows {
		wp := WindowProof{
			LengthMs: w.Length().Milliseconds(),
			Stored:   w.Len(),
			InWindow: w.CountAt(now),
		}
		if oldest, ok := w.Oldest(); ok {
			wp.Oldest = timePtr(oldest)
		}
		proof.Windows[string(typ)] = wp
	}

	last := rec.buffer.GetLast(recent)
	proof.RecentSignals = make([]signals.Signal, len(last))
	for i, s := range last {
		proof.RecentSignals[i] = s.Clone()
	}
	return proof, true
}

// SweepIdle recomputes idle time and rates for every tracked subject and
// returns their snapshots. A subject is flagged idle once the time since its
// most recent keystroke, mouse or scroll activity (or, with none, since it was
// initialized or cleared) reaches the idle threshold. The transition to idle
// appends one idle_time signal and notifies observers.
//
// The sweep works on a copy of the subject list and locks one record at a
// time.
func (a *Aggregator) SweepIdle() []Snapshot {
	cfg := a.Config()

	a.mu.RLock()
	records := make([]*subjectRecord, 0, len(a.subjects))
	for _, rec := range a.subjects {
		records = append(records, rec)
	}
	a.mu.RUnlock()

	snapshots := make([]Snapshot, 0, len(records))
	for _, rec := range records {
		snap, ev, ok := a.sweepRecord(rec, cfg)
		if !ok {
			continue
		}
		snapshots = append(snapshots, snap)
		if ev != nil {
			a.publish(*ev)
		}
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].SubjectID < snapshots[j].SubjectID
	})
	return snapshots
}

func (a *Aggregator) sweepRecord(rec *subjectRecord, cfg Config) (Snapshot, *SignalEvent, bool) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.released {
		return Snapshot{}, nil, false
	}

	now := a.now()
	idle := now.Sub(rec.lastActivity())
	if idle < 0 {
		idle = 0
	}

	wasIdle := rec.state.IsIdle
	rec.state.IdleTimeMs = idle.Milliseconds()
	rec.state.IsIdle = idle >= cfg.IdleThreshold
	rec.state.KeystrokeRate = rec.windows[signals.TypeKeystroke].Rate(now)
	rec.state.MouseMovement = rec.windows[signals.TypeMouseMovement].Rate(now)
	rec.state.ScrollRate = rec.windows[signals.TypeScrollDepth].Rate(now)
	rec.windows[signals.TypeAppSwitch].Prune(now)

	var ev *SignalEvent
	if rec.state.IsIdle && !wasIdle {
		sig := signals.New(signals.TypeIdleTime, now,
			signals.IdlePayload{IdleMs: rec.state.IdleTimeMs}, signals.MeaningIdle, nil)
		rec.append(sig, now)
		ev = &SignalEvent{
			SubjectID: rec.subjectID,
			SessionID: rec.sessionID,
			Signal:    sig.Clone(),
			State:     rec.state,
		}
		a.logger.Debug("Subject went idle",
			zap.String("subject_id", rec.subjectID),
			zap.Int64("idle_ms", rec.state.IdleTimeMs))
	}
	return rec.snapshot(), ev, true
}

// capture is the shared ingestion path: look the subject up, mutate its record
// under the record lock, append the signal, then notify observers outside the
// lock.
func (a *Aggregator) capture(subjectID string, apply func(rec *subjectRecord, now time.Time, cfg Config) signals.Signal) bool {
	rec := a.lookup(subjectID)
	if rec == nil {
		a.logger.Debug("Ignoring signal for untracked subject", zap.String("subject_id", subjectID))
		return false
	}

	cfg := a.Config()

	rec.mu.Lock()
	if rec.released {
		rec.mu.Unlock()
		return false
	}
	now := a.now()
	sig := apply(rec, now, cfg)
	rec.append(sig, now)
	ev := SignalEvent{
		SubjectID: rec.subjectID,
		SessionID: rec.sessionID,
		Signal:    sig.Clone(),
		State:     rec.state,
	}
	rec.mu.Unlock()

	a.publish(ev)
	return true
}

func (a *Aggregator) lookup(subjectID string) *subjectRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.subjects[subjectID]
}

// observe adds now to the type's window and returns the pruned count.
func (r *subjectRecord) observe(typ signals.Type, now time.Time) int {
	w := r.windows[typ]
	w.Add(now)
	return w.Rate(now)
}

// markActive clears the idle flag after qualifying activity.
func (r *subjectRecord) markActive() {
	r.state.IdleTimeMs = 0
	r.state.IsIdle = false
}

func (r *subjectRecord) append(sig signals.Signal, now time.Time) {
	r.buffer.Push(sig)
	r.total++
	r.updatedAt = now
}

// lastActivity is the most recent of the last keystroke, mouse and scroll
// timestamps, or the baseline when there was none.
func (r *subjectRecord) lastActivity() time.Time {
	latest := r.baseline
	for _, t := range []time.Time{r.lastKeystroke, r.lastMouse, r.lastScroll} {
		if t.After(latest) {
			latest = t
		}
	}
	return latest
}

func (r *subjectRecord) snapshot() Snapshot {
	return Snapshot{
		SubjectID:   r.subjectID,
		SessionID:   r.sessionID,
		CreatedAt:   r.createdAt,
		UpdatedAt:   r.updatedAt,
		State:       r.state,
		SignalCount: r.buffer.Size(),
	}
}
