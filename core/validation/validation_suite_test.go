package validation

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func pass(msg string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return msg, nil }
}

func fail(err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", err }
}

func TestStepStatusString(t *testing.T) {
	tests := map[StepStatus]string{
		StepPending:    "pending",
		StepRunning:    "running",
		StepPassed:     "passed",
		StepFailed:     "failed",
		StepWarning:    "warning",
		StepSkipped:    "skipped",
		StepStatus(42): "unknown",
	}
	for status, want := range tests {
		if got := status.String(); got != want {
			t.Errorf("StepStatus(%d).String() = %q, want %q", status, got, want)
		}
	}
}

func TestSuite_AllPass(t *testing.T) {
	var buf bytes.Buffer
	result := NewSuite("Server preflight").WithOutput(&buf).Run(context.Background(), []Check{
		{Name: "First", Run: pass("ok")},
		{Name: "Second", Run: pass("")},
	})

	if !result.Success {
		t.Fatalf("Success = false, want true")
	}
	if result.TotalSteps != 2 || result.PassedSteps != 2 || result.FailedSteps != 0 {
		t.Errorf("counts = %d/%d/%d, want 2/2/0", result.TotalSteps, result.PassedSteps, result.FailedSteps)
	}
	if err := result.GetFirstError(); err != nil {
		t.Errorf("GetFirstError() = %v, want nil", err)
	}

	out := buf.String()
	for _, want := range []string{"Server preflight", "First", "ok", "Second", "Preflight Passed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSuite_WarningDoesNotFail(t *testing.T) {
	warnErr := errors.New("server unreachable")
	result := NewSuite("Probe preflight").WithShowProgress(false).Run(context.Background(), []Check{
		{Name: "URL", Run: pass("")},
		{Name: "Health", Warn: true, Run: fail(warnErr)},
	})

	if !result.Success {
		t.Fatal("a warning failed the suite")
	}
	if result.Warnings != 1 {
		t.Errorf("Warnings = %d, want 1", result.Warnings)
	}
	if result.Steps[1].Status != StepWarning {
		t.Errorf("Health status = %s, want warning", result.Steps[1].Status)
	}
	if err := result.GetFirstError(); err != nil {
		t.Errorf("GetFirstError() = %v, want nil for warnings", err)
	}
	if errs := result.GetErrors(); len(errs) != 1 || !errors.Is(errs[0], warnErr) {
		t.Errorf("GetErrors() = %v, want [%v]", errs, warnErr)
	}
	if s := result.Summary(); !strings.Contains(s, "1 warnings") {
		t.Errorf("Summary() = %q, want warning count", s)
	}
}

func TestSuite_FailureContinuesByDefault(t *testing.T) {
	boom := errors.New("boom")
	ran := false
	result := NewSuite("t").WithShowProgress(false).Run(context.Background(), []Check{
		{Name: "Bad", Run: fail(boom)},
		{Name: "After", Run: func(context.Context) (string, error) { ran = true; return "", nil }},
	})

	if result.Success {
		t.Fatal("Success = true after a failed check")
	}
	if !ran {
		t.Error("later check did not run")
	}
	if !errors.Is(result.GetFirstError(), boom) {
		t.Errorf("GetFirstError() = %v, want %v", result.GetFirstError(), boom)
	}
	if s := result.Summary(); !strings.HasPrefix(s, "Preflight failed: 1/2 checks passed, 1 failed") {
		t.Errorf("Summary() = %q", s)
	}
}

func TestSuite_FailFastSkipsRemaining(t *testing.T) {
	var buf bytes.Buffer
	result := NewSuite("t").WithOutput(&buf).WithFailFast(true).Run(context.Background(), []Check{
		{Name: "Bad", Run: fail(errors.New("boom"))},
		{Name: "Skipped one", Run: func(context.Context) (string, error) {
			t.Error("check ran after fail-fast failure")
			return "", nil
		}},
	})

	if got := result.Steps[1].Status; got != StepSkipped {
		t.Errorf("second status = %s, want skipped", got)
	}
	if result.PassedSteps != 0 || result.FailedSteps != 1 {
		t.Errorf("passed/failed = %d/%d, want 0/1", result.PassedSteps, result.FailedSteps)
	}
	if out := buf.String(); !strings.Contains(out, "boom") || !strings.Contains(out, "Preflight Failed") {
		t.Errorf("output missing failure detail:\n%s", out)
	}
}

func TestSuite_CancelledContextSkips(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewSuite("t").WithShowProgress(false).Run(ctx, []Check{
		{Name: "Never", Run: func(context.Context) (string, error) {
			t.Error("check ran with a cancelled context")
			return "", nil
		}},
	})
	if result.Steps[0].Status != StepSkipped {
		t.Errorf("status = %s, want skipped", result.Steps[0].Status)
	}
	if !result.Success {
		t.Error("skipped checks should not fail the suite")
	}
}
