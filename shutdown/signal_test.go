package shutdown

import (
	"os"
	"syscall"
	"testing"

	"cognitive_backend/core"
)

func TestSignalCounter_ForceOnSecond(t *testing.T) {
	forced := 0
	c := NewSignalCounter(2, func() { forced++ })

	if got := c.Observe(syscall.SIGTERM); got != 1 {
		t.Errorf("Observe() = %d, want 1", got)
	}
	if forced != 0 {
		t.Error("first signal should not force")
	}
	c.Observe(os.Interrupt)
	c.Observe(os.Interrupt)
	if forced != 1 {
		t.Errorf("forced = %d, want 1", forced)
	}
	if c.Count() != 3 {
		t.Errorf("Count() = %d, want 3", c.Count())
	}
	if got := c.ExitCode(); got != core.ExitCodeSIGTERM {
		t.Errorf("ExitCode() = %d, want %d (first signal)", got, core.ExitCodeSIGTERM)
	}
}

func TestSignalExitCode(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want int
	}{
		{nil, core.ExitCodeSuccess},
		{os.Interrupt, core.ExitCodeSIGINT},
		{syscall.SIGTERM, core.ExitCodeSIGTERM},
		{syscall.SIGHUP, core.ExitCodeError},
	}
	for _, tt := range tests {
		if got := SignalExitCode(tt.sig); got != tt.want {
			t.Errorf("SignalExitCode(%v) = %d, want %d", tt.sig, got, tt.want)
		}
	}
}
