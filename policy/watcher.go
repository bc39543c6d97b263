package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces the burst of events editors produce on save.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a policy file when it changes on disk and hands each valid
// policy to OnChange. An invalid file is logged and the previous policy stays
// in force.
//
// The parent directory is watched rather than the file so that editors which
// save by rename (vim, most IDEs) keep triggering reloads.
//
// Usage:
//
//	w, err := policy.NewWatcher(path, logger, func(p *policy.Policy) {
//	    agg.Reconfigure(p.AggregatorConfig(agg.Config()))
//	    scorer.SetThresholds(p.Scoring)
//	})
//	if err != nil { ... }
//	go w.Run(ctx)
//	defer w.Close()
type Watcher struct {
	path     string
	onChange func(*Policy)
	logger   *zap.Logger
	debounce time.Duration

	fsw *fsnotify.Watcher

	mu      sync.RWMutex
	current *Policy
	reloads int
	failed  int

	closeOnce sync.Once
}

// NewWatcher loads path once and starts watching its directory. The initial
// load must succeed.
func NewWatcher(path string, logger *zap.Logger, onChange func(*Policy)) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("policy: failed to create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("policy: failed to watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		logger:   logger,
		debounce: DefaultDebounce,
		fsw:      fsw,
		current:  initial,
	}, nil
}

// Current returns the policy in force.
func (w *Watcher) Current() *Policy {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reloads returns the number of successful and failed reloads.
func (w *Watcher) Reloads() (ok, failed int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.reloads, w.failed
}

// Run processes file events until ctx is cancelled or Close is called.
func (w *Watcher) Run(ctx context.Context) {
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	w.logger.Info("Policy watcher started", zap.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Policy watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	p, err := Load(w.path)
	if err != nil {
		w.mu.Lock()
		w.failed++
		w.mu.Unlock()
		w.logger.Error("Policy reload rejected, keeping previous policy",
			zap.String("path", w.path), zap.Error(err))
		return
	}

	w.mu.Lock()
	w.current = p
	w.reloads++
	w.mu.Unlock()

	w.logger.Info("Policy reloaded", zap.String("path", w.path))
	if w.onChange != nil {
		w.onChange(p)
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}
