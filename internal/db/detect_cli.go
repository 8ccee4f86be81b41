package db

import (
	"context"
	"fmt"
	"io"

	"github.com/banshee-data/countdown.report/internal/timer"
)

// DetectionCLI provides CLI operations for detection-result management.
// It wraps DetectionWorker and DB methods behind a testable interface
// for the `countdown-report detect` subcommand.
type DetectionCLI struct {
	DB           *DB
	Thresholds   timer.Thresholds
	ModelVersion string
	Output       io.Writer // where to write output (os.Stdout by default)
}

// NewDetectionCLI creates a new DetectionCLI instance.
func NewDetectionCLI(db *DB, thresholds timer.Thresholds, modelVersion string, output io.Writer) *DetectionCLI {
	return &DetectionCLI{
		DB:           db,
		Thresholds:   thresholds,
		ModelVersion: modelVersion,
		Output:       output,
	}
}

// Run performs one full-history detection pass and prints a summary.
func (c *DetectionCLI) Run(ctx context.Context) (*RunSummary, error) {
	worker := NewDetectionWorker(c.DB, c.Thresholds, c.ModelVersion)
	summary, err := worker.RunFullHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("detection run failed: %w", err)
	}
	if summary == nil {
		fmt.Fprintln(c.Output, "No segment data to analyse")
		return nil, nil
	}

	fmt.Fprintf(c.Output, "Detection run %s (%s)\n", summary.RunID, summary.ModelVersion)
	fmt.Fprintf(c.Output, "  observations: %d\n", summary.Observations)
	fmt.Fprintf(c.Output, "  groups:       %d\n", summary.Groups)
	fmt.Fprintf(c.Output, "  timers:       %d\n", summary.Timers)
	fmt.Fprintf(c.Output, "  duration:     %v\n", summary.Duration)
	return summary, nil
}

// Analyse shows classification statistics per model version.
func (c *DetectionCLI) Analyse(ctx context.Context) (*DetectionStats, error) {
	stats, err := c.DB.Stats(ctx, c.ModelVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to analyse groups: %w", err)
	}

	fmt.Fprintf(c.Output, "Detection Statistics\n")
	fmt.Fprintf(c.Output, "====================\n")
	fmt.Fprintf(c.Output, "Model version:     %s\n", c.ModelVersion)
	fmt.Fprintf(c.Output, "Total groups:      %d\n", stats.TotalGroups)
	fmt.Fprintf(c.Output, "Ratio test passed: %d\n", stats.DecreasingGroups)
	fmt.Fprintf(c.Output, "Mode test passed:  %d\n", stats.ModeGroups)
	fmt.Fprintf(c.Output, "Seconds gate:      %d\n", stats.GatedGroups)
	fmt.Fprintf(c.Output, "Confirmed timers:  %d\n", stats.ConfirmedTimers)
	fmt.Fprintf(c.Output, "Distinct sites:    %d\n", stats.TimerSites)

	counts, err := c.DB.ModelVersionCounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(counts) > 1 {
		fmt.Fprintf(c.Output, "\nBy model version:\n")
		for mv, n := range counts {
			fmt.Fprintf(c.Output, "  %-20s %d\n", mv, n)
		}
	}

	return stats, nil
}

// Delete removes all groups for a given model version.
// Returns the number of deleted groups.
func (c *DetectionCLI) Delete(ctx context.Context, modelVersion string) (int64, error) {
	deleted, err := c.DB.DeleteGroups(ctx, modelVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to delete groups: %w", err)
	}

	fmt.Fprintf(c.Output, "Deleted %d groups with model_version = %q\n", deleted, modelVersion)
	return deleted, nil
}

// Migrate deletes groups with fromVersion and rebuilds with toVersion.
func (c *DetectionCLI) Migrate(ctx context.Context, fromVersion, toVersion string) error {
	fmt.Fprintf(c.Output, "Migrating groups from %q to %q\n", fromVersion, toVersion)

	worker := NewDetectionWorker(c.DB, c.Thresholds, toVersion)
	if err := worker.MigrateModelVersion(ctx, fromVersion); err != nil {
		return fmt.Errorf("failed to migrate groups: %w", err)
	}

	fmt.Fprintf(c.Output, "Migration complete\n")
	return nil
}

// Rebuild deletes all groups for the current model version and rebuilds
// from full history.
func (c *DetectionCLI) Rebuild(ctx context.Context) error {
	fmt.Fprintf(c.Output, "Rebuilding groups with model_version = %q\n", c.ModelVersion)

	deleted, err := c.DB.DeleteGroups(ctx, c.ModelVersion)
	if err != nil {
		return fmt.Errorf("failed to delete existing groups: %w", err)
	}
	fmt.Fprintf(c.Output, "Deleted %d existing groups\n", deleted)

	if _, err := c.Run(ctx); err != nil {
		return fmt.Errorf("failed to rebuild groups: %w", err)
	}

	fmt.Fprintf(c.Output, "Rebuild complete\n")
	return nil
}

// PrintUsage prints the detect subcommand usage.
func (c *DetectionCLI) PrintUsage() {
	fmt.Fprintln(c.Output, "Usage: countdown-report detect <command> [options]")
	fmt.Fprintln(c.Output, "")
	fmt.Fprintln(c.Output, "Commands:")
	fmt.Fprintln(c.Output, "  run                          Run detection over the full segment log")
	fmt.Fprintln(c.Output, "  analyse                      Show classification statistics")
	fmt.Fprintln(c.Output, "  delete <model-version>       Delete all groups for a model version")
	fmt.Fprintln(c.Output, "  migrate <from> <to>          Migrate groups from one model version to another")
	fmt.Fprintln(c.Output, "  rebuild                      Delete current model version and rebuild from full history")
	fmt.Fprintln(c.Output, "")
}
