// Package validation runs the preflight checks printed before serve and
// probe start.
package validation

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// StepStatus is the outcome of one step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Check is one preflight step. Run returns a short detail message on success.
type Check struct {
	Name string
	// Warn downgrades a failure to a warning that does not fail the suite
	Warn bool
	Run  func(ctx context.Context) (string, error)
}

// ValidationStep is a completed check.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// SuiteResult summarises a run.
type SuiteResult struct {
	Steps       []ValidationStep
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// Suite runs checks in order with colored progress output.
//
// Usage:
//
//	result := validation.NewSuite("Server preflight").
//	    WithOutput(os.Stderr).
//	    Run(ctx, validation.ServeChecks(cfg))
//	if !result.Success {
//	    return result.GetFirstError()
//	}
type Suite struct {
	title        string
	output       io.Writer
	showProgress bool
	failFast     bool
}

// NewSuite creates a suite printing to stdout.
func NewSuite(title string) *Suite {
	return &Suite{title: title, output: os.Stdout, showProgress: true}
}

// WithOutput sets the progress writer.
func (s *Suite) WithOutput(w io.Writer) *Suite {
	s.output = w
	return s
}

// WithShowProgress enables or disables progress output.
func (s *Suite) WithShowProgress(show bool) *Suite {
	s.showProgress = show
	return s
}

// WithFailFast skips the remaining checks after the first failure.
func (s *Suite) WithFailFast(failFast bool) *Suite {
	s.failFast = failFast
	return s
}

// Run executes checks in order. A cancelled ctx skips the checks not yet
// started.
func (s *Suite) Run(ctx context.Context, checks []Check) SuiteResult {
	start := time.Now()
	steps := make([]ValidationStep, 0, len(checks))

	if s.showProgress {
		s.printHeader()
	}

	failed := false
	for _, check := range checks {
		if (failed && s.failFast) || ctx.Err() != nil {
			step := ValidationStep{Name: check.Name, Status: StepSkipped, Message: "skipped"}
			s.printStep(step)
			steps = append(steps, step)
			continue
		}
		step := s.runStep(ctx, check)
		failed = failed || step.Status == StepFailed
		steps = append(steps, step)
	}

	result := buildResult(steps, start)
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func (s *Suite) runStep(ctx context.Context, check Check) ValidationStep {
	if s.showProgress {
		fmt.Fprintf(s.output, "  ◌ %s...", check.Name)
	}

	begin := time.Now()
	msg, err := check.Run(ctx)
	step := ValidationStep{
		Name:    check.Name,
		Status:  StepPassed,
		Message: msg,
		Error:   err,
		Latency: time.Since(begin),
	}
	if err != nil {
		step.Status = StepFailed
		if check.Warn {
			step.Status = StepWarning
		}
	}

	s.printStep(step)
	return step
}

func buildResult(steps []ValidationStep, start time.Time) SuiteResult {
	result := SuiteResult{
		Steps:      steps,
		TotalSteps: len(steps),
		Duration:   time.Since(start),
		Success:    true,
	}
	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}
	return result
}

func (s *Suite) printHeader() {
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "━━━ %s ━━━\n", s.title)
	fmt.Fprintln(s.output)
}

func (s *Suite) printStep(step ValidationStep) {
	if !s.showProgress {
		return
	}

	var icon string
	var clr *color.Color
	switch step.Status {
	case StepPassed:
		icon, clr = "✓", color.New(color.FgGreen)
	case StepFailed:
		icon, clr = "✗", color.New(color.FgRed)
	case StepWarning:
		icon, clr = "!", color.New(color.FgYellow)
	case StepSkipped:
		icon, clr = "○", color.New(color.FgHiBlack)
	default:
		icon, clr = "?", color.New(color.FgWhite)
	}

	// overwrite the "running" line
	fmt.Fprint(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Error != nil && (step.Status == StepFailed || step.Status == StepWarning) {
		clr.Fprintf(s.output, "    └─ %s\n", step.Error)
	}
}

func (s *Suite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)
	dim := color.New(color.FgHiBlack)
	if result.Success {
		ok := color.New(color.FgGreen, color.Bold)
		ok.Fprint(s.output, "━━━ Preflight Passed ")
		dim.Fprintf(s.output, "(%d/%d checks passed in %v)", result.PassedSteps, result.TotalSteps, result.Duration.Round(time.Millisecond))
		ok.Fprintln(s.output, " ━━━")
	} else {
		bad := color.New(color.FgRed, color.Bold)
		bad.Fprint(s.output, "━━━ Preflight Failed ")
		dim.Fprintf(s.output, "(%d passed, %d failed)", result.PassedSteps, result.FailedSteps)
		bad.Fprintln(s.output, " ━━━")
	}
	fmt.Fprintln(s.output)
}

// GetErrors returns the errors of failed and warning steps.
func (r SuiteResult) GetErrors() []error {
	var errs []error
	for _, step := range r.Steps {
		if step.Error != nil {
			errs = append(errs, step.Error)
		}
	}
	return errs
}

// GetFirstError returns the error of the first failed step, ignoring
// warnings, or nil.
func (r SuiteResult) GetFirstError() error {
	for _, step := range r.Steps {
		if step.Status == StepFailed {
			return step.Error
		}
	}
	return nil
}

// Summary returns a one-line summary.
func (r SuiteResult) Summary() string {
	var sb strings.Builder
	if r.Success {
		sb.WriteString("Preflight passed: ")
	} else {
		sb.WriteString("Preflight failed: ")
	}
	fmt.Fprintf(&sb, "%d/%d checks passed", r.PassedSteps, r.TotalSteps)
	if r.FailedSteps > 0 {
		fmt.Fprintf(&sb, ", %d failed", r.FailedSteps)
	}
	if r.Warnings > 0 {
		fmt.Fprintf(&sb, ", %d warnings", r.Warnings)
	}
	fmt.Fprintf(&sb, " (took %v)", r.Duration.Round(time.Millisecond))
	return sb.String()
}
