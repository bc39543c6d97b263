// Package aggregator keeps one in-memory record per tracked subject, ingests
// discrete activity signals into bounded buffers and sliding windows, and
// derives the subject's current state.
//
// The Aggregator is an explicit service object: create one with New or
// NewWithConfig and inject it where it is needed.
package aggregator

import (
	"strings"
	"time"
)

// Config holds the aggregator's tunables. Thresholds here are policy and are
// normally loaded from the policy file.
type Config struct {
	// BufferCapacity is the number of signals retained per subject.
	BufferCapacity int

	// RateWindow is the sliding-window length used for per-minute rates.
	RateWindow time.Duration

	// MaxWindowEntries is a memory ceiling for each sliding window. Stale
	// entries are pruned before it applies, so it must stay well above the
	// fastest real input rate times the window length.
	MaxWindowEntries int

	// IdleThreshold is how long without keystroke, mouse or scroll activity
	// before a subject is flagged idle.
	IdleThreshold time.Duration

	// SweepInterval is how often the IdleSweeper runs.
	SweepInterval time.Duration

	// MouseJitterPx is the minimum pointer travel for a move to count as
	// real activity.
	MouseJitterPx float64

	// ScrollJitterPct is the minimum change in scroll percentage for a
	// scroll to count as real activity.
	ScrollJitterPct float64

	// WorkDomains lists the domains considered on-task. Subdomains match.
	// An empty list treats every active tab as on-task.
	WorkDomains []string

	// ObserverBuffer is the default channel size for Subscribe.
	ObserverBuffer int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BufferCapacity:   100,
		RateWindow:       60 * time.Second,
		MaxWindowEntries: 100000,
		IdleThreshold:    120 * time.Second,
		SweepInterval:    30 * time.Second,
		MouseJitterPx:    3,
		ScrollJitterPct:  1,
		ObserverBuffer:   64,
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = d.BufferCapacity
	}
	if c.RateWindow <= 0 {
		c.RateWindow = d.RateWindow
	}
	if c.MaxWindowEntries <= 0 {
		c.MaxWindowEntries = d.MaxWindowEntries
	}
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = d.IdleThreshold
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.MouseJitterPx < 0 {
		c.MouseJitterPx = 0
	}
	if c.ScrollJitterPct < 0 {
		c.ScrollJitterPct = 0
	}
	if c.ObserverBuffer <= 0 {
		c.ObserverBuffer = d.ObserverBuffer
	}
	c.WorkDomains = normalizeDomains(c.WorkDomains)
	return c
}

func normalizeDomains(in []string) []string {
	var out []string
	for _, d := range in {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// isWorkDomain reports whether domain is, or is a subdomain of, a work domain.
func isWorkDomain(workDomains []string, domain string) bool {
	if len(workDomains) == 0 {
		return true
	}
	domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
	for _, wd := range workDomains {
		if domain == wd || strings.HasSuffix(domain, "."+wd) {
			return true
		}
	}
	return false
}
