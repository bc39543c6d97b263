package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cognitive_backend/core"
	"cognitive_backend/core/validation"
)

// runPreflight prints the checks to stderr and fails with the config exit
// code when one of them fails. Warnings are logged and ignored.
func runPreflight(ctx context.Context, cmd *cobra.Command, title string, checks []validation.Check, logger *zap.Logger) error {
	result := validation.NewSuite(title).
		WithOutput(cmd.ErrOrStderr()).
		Run(ctx, checks)

	for _, step := range result.Steps {
		if step.Status == validation.StepWarning {
			logger.Warn("Preflight warning", zap.String("check", step.Name), zap.Error(step.Error))
		}
	}
	if result.Success {
		logger.Debug(result.Summary())
		return nil
	}

	logger.Error(result.Summary())
	return &exitError{
		code: core.ExitCodeConfig,
		err:  fmt.Errorf("preflight failed: %w", result.GetFirstError()),
	}
}
