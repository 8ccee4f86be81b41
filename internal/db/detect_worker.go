package db

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/countdown.report/internal/monitoring"
	"github.com/banshee-data/countdown.report/internal/segment"
	"github.com/banshee-data/countdown.report/internal/timer"
	"github.com/banshee-data/countdown.report/internal/timeutil"
)

// DetectionWorker scans the segment log, groups observations into
// candidate elements and upserts classified groups into segment_groups.
// Designed to run periodically over the trailing window while a crawl
// is still appending, or once over full history for a finished crawl.
type DetectionWorker struct {
	DB           *DB
	Thresholds   timer.Thresholds
	ModelVersion string
	Interval     time.Duration // how often to run (e.g., 15m)
	Window       time.Duration // lookback window (e.g., 20m)
	Clock        timeutil.Clock
	StopChan     chan struct{}
}

// NewDetectionWorker returns a worker with the default schedule.
func NewDetectionWorker(db *DB, thresholds timer.Thresholds, modelVersion string) *DetectionWorker {
	return &DetectionWorker{
		DB:           db,
		Thresholds:   thresholds,
		ModelVersion: modelVersion,
		Interval:     15 * time.Minute,
		Window:       20 * time.Minute,
		Clock:        timeutil.RealClock{},
		StopChan:     make(chan struct{}),
	}
}

// Start runs the periodic worker loop in a goroutine.
func (w *DetectionWorker) Start() {
	go func() {
		ticker := w.Clock.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				if _, err := w.RunOnce(context.Background()); err != nil {
					monitoring.Logf("detection worker run error: %v", err)
				}
			case <-w.StopChan:
				return
			}
		}
	}()
}

// Stop requests the worker to stop.
func (w *DetectionWorker) Stop() {
	close(w.StopChan)
}

// RunSummary describes one detection pass.
type RunSummary struct {
	RunID        string
	ModelVersion string
	Observations int
	Groups       int
	Timers       int
	Duration     time.Duration
}

// RunOnce scans the last w.Window of segment log and upserts groups.
func (w *DetectionWorker) RunOnce(ctx context.Context) (*RunSummary, error) {
	now := w.Clock.Now().UTC()
	end := float64(now.Unix())
	start := float64(now.Add(-w.Window).Unix())

	return w.RunRange(ctx, start, end)
}

// RunFullHistory scans the full available segment log range and upserts
// groups. This is the normal mode for a completed crawl.
func (w *DetectionWorker) RunFullHistory(ctx context.Context) (*RunSummary, error) {
	start, end, ok, err := w.DB.ObservationRange(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		monitoring.Logf("detection worker full-history run skipped (no segment data)")
		return nil, nil
	}
	return w.RunRange(ctx, start, end)
}

// RunRange scans segments with time_stamp in [start, end] (unix seconds
// as float64), classifies the resulting groups and replaces any
// previously stored groups for the same model version whose observation
// span overlaps the range.
func (w *DetectionWorker) RunRange(ctx context.Context, start, end float64) (*RunSummary, error) {
	began := w.Clock.Now()

	obs, err := w.DB.LoadObservations(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load observations: %w", err)
	}

	// Grouping and classification are pure; only the upsert below needs
	// the transaction.
	groups := timer.BuildGroups(segment.Preprocess(obs))
	results := w.Thresholds.ClassifyGroups(groups)

	tx, err := w.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			// ErrTxDone means the transaction was already committed.
			monitoring.Logf("warning: failed to rollback transaction: %v", err)
		}
	}()

	// Delete overlapping groups with the same model_version before
	// inserting. This handles re-runs and window overlaps, preventing
	// stale duplicates from earlier passes over the same span.
	deleteQuery := `
		DELETE FROM segment_groups
		WHERE model_version = ?
		  AND (
			  (first_seen_unix BETWEEN ? AND ?)
			  OR (last_seen_unix BETWEEN ? AND ?)
			  OR (first_seen_unix <= ? AND last_seen_unix >= ?)
		  )
	`
	result, err := tx.ExecContext(ctx, deleteQuery,
		w.ModelVersion,
		start, end,
		start, end,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to delete overlapping groups: %w", err)
	}
	if deleted, _ := result.RowsAffected(); deleted > 0 {
		monitoring.Logf("detection worker: deleted %d overlapping %s groups in range [%v, %v]",
			deleted, w.ModelVersion, start, end)
	}

	runID := uuid.NewString()

	upsertStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segment_groups (
			group_key,
			model_version,
			run_id,
			site_url,
			visit_id,
			top,
			"left",
			inner_processed,
			node_id_count,
			distinct_seconds,
			observation_count,
			digit_sequence,
			first_seen_unix,
			last_seen_unix,
			mean_diff,
			stddev_diff,
			is_decreasing,
			is_decreasing_by_mode,
			seconds_gate,
			is_timer,
			created_at,
			updated_at
		) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, UNIXEPOCH('subsec'), UNIXEPOCH('subsec')
		)
		ON CONFLICT(group_key, model_version) DO UPDATE SET
			run_id = excluded.run_id,
			node_id_count = excluded.node_id_count,
			distinct_seconds = excluded.distinct_seconds,
			observation_count = excluded.observation_count,
			digit_sequence = excluded.digit_sequence,
			first_seen_unix = excluded.first_seen_unix,
			last_seen_unix = excluded.last_seen_unix,
			mean_diff = excluded.mean_diff,
			stddev_diff = excluded.stddev_diff,
			is_decreasing = excluded.is_decreasing,
			is_decreasing_by_mode = excluded.is_decreasing_by_mode,
			seconds_gate = excluded.seconds_gate,
			is_timer = excluded.is_timer,
			updated_at = UNIXEPOCH('subsec')
	`)
	if err != nil {
		return nil, err
	}
	defer upsertStmt.Close()

	timers := 0
	for _, r := range results {
		seqJSON, err := json.Marshal(r.DigitSequence)
		if err != nil {
			return nil, fmt.Errorf("failed to encode digit sequence: %w", err)
		}

		isTimer := r.Classification.IsTimer()
		if isTimer {
			timers++
		}

		if _, err := upsertStmt.ExecContext(ctx,
			groupKeyHash(r.Key, w.ModelVersion),
			w.ModelVersion,
			runID,
			r.SiteURL,
			r.Key.VisitID,
			r.Key.Top,
			r.Key.Left,
			r.Key.InnerProcessed,
			r.NodeIDCount,
			r.DistinctSeconds,
			r.Observations,
			string(seqJSON),
			unixFloat(r.FirstSeen),
			unixFloat(r.LastSeen),
			r.MeanDiff,
			r.StdDevDiff,
			r.Classification.IsDecreasing,
			r.Classification.IsDecreasingByMode,
			r.Classification.SecondsGate,
			isTimer,
		); err != nil {
			return nil, fmt.Errorf("failed to upsert group: %w", err)
		}
	}

	thresholdsJSON, err := json.Marshal(w.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("failed to encode thresholds: %w", err)
	}

	duration := w.Clock.Since(began)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO detection_runs (
			run_id, model_version, thresholds, range_start_unix, range_end_unix,
			observation_count, group_count, timer_count, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, w.ModelVersion, string(thresholdsJSON), start, end,
		len(obs), len(results), timers, duration.Milliseconds(),
	); err != nil {
		return nil, fmt.Errorf("failed to record detection run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &RunSummary{
		RunID:        runID,
		ModelVersion: w.ModelVersion,
		Observations: len(obs),
		Groups:       len(results),
		Timers:       timers,
		Duration:     duration,
	}, nil
}

// MigrateModelVersion replaces all groups from oldVersion with the
// worker's current ModelVersion by deleting old groups and re-running
// over full history.
func (w *DetectionWorker) MigrateModelVersion(ctx context.Context, oldVersion string) error {
	if oldVersion == w.ModelVersion {
		return fmt.Errorf("old and new model versions must differ (both are %q)", oldVersion)
	}

	monitoring.Logf("detection worker: migrating from %s to %s", oldVersion, w.ModelVersion)

	deleted, err := w.DB.DeleteGroups(ctx, oldVersion)
	if err != nil {
		return fmt.Errorf("failed to delete old version groups: %w", err)
	}
	monitoring.Logf("detection worker: deleted %d %s groups", deleted, oldVersion)

	_, err = w.RunFullHistory(ctx)
	return err
}

// groupKeyHash derives a stable identity for a group row from the
// structured grouping key plus the model version. The digit sequence is
// deliberately excluded so re-runs over a longer span update the same
// row rather than inserting a sibling.
func groupKeyHash(k segment.Key, modelVersion string) string {
	raw := fmt.Sprintf("%d|%.4f|%.4f|%s|%s", k.VisitID, k.Top, k.Left, k.InnerProcessed, modelVersion)
	return fmt.Sprintf("%x", sha1.Sum([]byte(raw)))
}
