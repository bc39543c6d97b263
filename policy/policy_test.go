package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cognitive_backend/agent"
	"cognitive_backend/aggregator"
	"cognitive_backend/core"
	"cognitive_backend/scoring"
)

func TestDefault_MatchesComponentDefaults(t *testing.T) {
	p := Default()
	if err := p.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}

	c := p.ClassifierConfig()
	want := agent.DefaultClassifierConfig()
	if c.ThinkingAfter != want.ThinkingAfter || c.IdleAfter != want.IdleAfter ||
		c.AwayAfter != want.AwayAfter || c.DeepFocusDwell != want.DeepFocusDwell {
		t.Errorf("ClassifierConfig() = %+v, want %+v", c, want)
	}

	a := p.AggregatorConfig(aggregator.DefaultConfig())
	if a.IdleThreshold != 120*time.Second || a.BufferCapacity != 100 || a.SweepInterval != 30*time.Second {
		t.Errorf("AggregatorConfig() = %+v", a)
	}

	if p.Scoring != scoring.DefaultThresholds() {
		t.Errorf("Scoring = %+v, want defaults", p.Scoring)
	}
}

func TestParse_OverridesKeepDefaults(t *testing.T) {
	doc := `
classifier:
  thinking_after_seconds: 5
focus:
  state_penalties:
    AWAY: 60
aggregator:
  idle_threshold_ms: 90000
  work_domains: [github.com, Jira.Example.com]
scoring:
  risk_high: 80
`
	p, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	c := p.ClassifierConfig()
	if c.ThinkingAfter != 5*time.Second {
		t.Errorf("ThinkingAfter = %v, want 5s", c.ThinkingAfter)
	}
	if c.IdleAfter != 60*time.Second {
		t.Errorf("IdleAfter = %v, want default 60s", c.IdleAfter)
	}

	f := p.FocusConfig()
	if f.StatePenalties[agent.StateAway] != 60 {
		t.Errorf("AWAY penalty = %d, want 60", f.StatePenalties[agent.StateAway])
	}
	if f.StatePenalties[agent.StateDistracted] != 30 {
		t.Errorf("DISTRACTED penalty = %d, want default 30", f.StatePenalties[agent.StateDistracted])
	}

	a := p.AggregatorConfig(aggregator.DefaultConfig())
	if a.IdleThreshold != 90*time.Second || len(a.WorkDomains) != 2 {
		t.Errorf("AggregatorConfig() = %+v", a)
	}

	if p.Scoring.RiskHighThreshold != 80 || p.Scoring.RiskMediumThreshold != 40 {
		t.Errorf("risk thresholds = %d/%d", p.Scoring.RiskHighThreshold, p.Scoring.RiskMediumThreshold)
	}
	if p.Scoring.IdleMs != 90000 {
		t.Errorf("Scoring.IdleMs = %d, want it to follow the aggregator (90000)", p.Scoring.IdleMs)
	}
}

func TestParse_IdleThresholdsAgree(t *testing.T) {
	doc := "aggregator:\n  idle_threshold_ms: 45000\nscoring:\n  idle_ms: 45000\n"
	p, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.Scoring.IdleMs != p.Aggregator.IdleThresholdMs {
		t.Errorf("idle thresholds = %d/%d", p.Scoring.IdleMs, p.Aggregator.IdleThresholdMs)
	}

	bad := Default()
	bad.Scoring.IdleMs = 1000
	if err := bad.Validate(); err == nil || !strings.Contains(err.Error(), "scoring.idle_ms") {
		t.Errorf("Validate() with split idle thresholds = %v", err)
	}
}

func TestParse_Empty(t *testing.T) {
	p, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Parse(\"\") error = %v", err)
	}
	if p.Classifier != Default().Classifier {
		t.Error("empty document should yield defaults")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown key", "classifer:\n  idle_after_seconds: 3\n", "field classifer not found"},
		{"threshold order", "classifier:\n  idle_after_seconds: 200\n", "thinking < idle < away"},
		{"weights sum", "scoring:\n  weights: {keystroke: 1}\n", "must sum to 1"},
		{"unknown state", "focus:\n  state_penalties: {NAPPING: 5}\n", "unknown state"},
		{"zero buffer", "aggregator:\n  buffer_capacity: 0\n", "buffer_capacity"},
		{"negative idle", "aggregator:\n  idle_threshold_ms: -1\n", "idle_threshold_ms"},
		{"split idle thresholds", "scoring:\n  idle_ms: 60000\n", "must equal aggregator.idle_threshold_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("empty path", func(t *testing.T) {
		p, err := Load("")
		if err != nil || p.Source != "" {
			t.Errorf("Load(\"\") = %+v, %v", p, err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"))
		if core.GetErrorCode(err) != core.ErrCodePolicyUnreadable {
			t.Errorf("Load() code = %q, want %q", core.GetErrorCode(err), core.ErrCodePolicyUnreadable)
		}
	})

	t.Run("invalid value keeps its code", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		os.WriteFile(path, []byte("aggregator:\n  buffer_capacity: -3\n"), 0o644)
		_, err := Load(path)
		if core.GetErrorCode(err) != core.ErrCodeInvalidValue {
			t.Errorf("Load() code = %q, want %q", core.GetErrorCode(err), core.ErrCodeInvalidValue)
		}
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "policy.yaml")
		os.WriteFile(path, []byte("scoring:\n  productive: 35\n"), 0o644)
		p, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if p.Source != path || p.Scoring.Productive != 35 {
			t.Errorf("Load() = source %q productive %d", p.Source, p.Scoring.Productive)
		}
	})
}
