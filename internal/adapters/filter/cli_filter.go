package filter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/antispam/internal/core"
	"github.com/mikey/antispam/internal/stats"
)

// CliFilter classifies a single message and prints the verdict. It backs
// the command-line entry point.
type CliFilter struct {
	pipeline *core.Pipeline
	stats    *stats.Manager
	logger   *zap.Logger
	verbose  bool
}

// NewCliFilter creates a CLI filter. stats may be nil.
func NewCliFilter(pipeline *core.Pipeline, stats *stats.Manager, logger *zap.Logger, verbose bool) *CliFilter {
	return &CliFilter{
		pipeline: pipeline,
		stats:    stats,
		logger:   logger,
		verbose:  verbose,
	}
}

// ProcessEmail classifies one message and prints a report.
func (f *CliFilter) ProcessEmail(ctx context.Context, email *core.Email) (*core.Decision, error) {
	f.logger.Debug("Processing email", zap.String("sender", email.SenderEmail))

	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", email.SenderEmail)
	fmt.Printf("Subject: %s\n", email.Subject)
	fmt.Printf("Body length: %d bytes\n", len(email.Body))

	if f.verbose {
		preview := email.Body
		if len(preview) > 500 {
			preview = preview[:500] + "..."
		}
		fmt.Printf("\nBody preview:\n%s\n", preview)
	}

	start := time.Now()
	decision := f.pipeline.Classify(ctx, email)
	if f.stats != nil {
		f.stats.RecordDecision(decision)
	}

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Action: %s\n", decision.Action)
	fmt.Printf("Confidence: %.4f\n", decision.Confidence)
	fmt.Printf("Method: %s\n", decision.Method)
	fmt.Printf("Reason: %s\n", decision.Reason)
	fmt.Printf("Processing time: %v\n", time.Since(start))

	return decision, nil
}

// Start is a no-op for the CLI filter.
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter.
func (f *CliFilter) Stop() error {
	return nil
}
