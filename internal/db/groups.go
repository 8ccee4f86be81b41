package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// GroupRow is one grouped-and-classified segment element as persisted
// in segment_groups: the grouping key, the aggregates and the verdicts.
type GroupRow struct {
	GroupKey         string   `json:"group_key"`
	ModelVersion     string   `json:"model_version"`
	RunID            string   `json:"run_id"`
	SiteURL          string   `json:"site_url"`
	VisitID          int64    `json:"visit_id"`
	Top              float64  `json:"top"`
	Left             float64  `json:"left"`
	InnerProcessed   string   `json:"inner_processed"`
	NodeIDCount      int      `json:"node_id_count"`
	DistinctSeconds  int      `json:"distinct_seconds"`
	ObservationCount int      `json:"observation_count"`
	DigitSequence    []string `json:"digit_sequence"`
	FirstSeenUnix    float64  `json:"first_seen_unix"`
	LastSeenUnix     float64  `json:"last_seen_unix"`
	MeanDiff         float64  `json:"mean_diff"`
	StdDevDiff       float64  `json:"stddev_diff"`

	IsDecreasing       bool `json:"is_decreasing"`
	IsDecreasingByMode bool `json:"is_decreasing_by_mode"`
	SecondsGate        bool `json:"seconds_gate"`
	IsTimer            bool `json:"is_timer"`
}

// GroupFilter narrows ListGroups results.
type GroupFilter struct {
	SiteURL      string // exact match when non-empty
	ModelVersion string // exact match when non-empty
	OnlyTimers   bool   // confirmed timers only
	Limit        int    // 0 means no limit
	Offset       int
}

const groupColumns = `
	group_key, model_version, COALESCE(run_id, ''), site_url, visit_id, top, "left",
	inner_processed, node_id_count, distinct_seconds, observation_count,
	digit_sequence, first_seen_unix, last_seen_unix, mean_diff, stddev_diff,
	is_decreasing, is_decreasing_by_mode, seconds_gate, is_timer
`

func scanGroupRow(rows *sql.Rows) (GroupRow, error) {
	var g GroupRow
	var seqJSON string
	err := rows.Scan(
		&g.GroupKey, &g.ModelVersion, &g.RunID, &g.SiteURL, &g.VisitID, &g.Top, &g.Left,
		&g.InnerProcessed, &g.NodeIDCount, &g.DistinctSeconds, &g.ObservationCount,
		&seqJSON, &g.FirstSeenUnix, &g.LastSeenUnix, &g.MeanDiff, &g.StdDevDiff,
		&g.IsDecreasing, &g.IsDecreasingByMode, &g.SecondsGate, &g.IsTimer,
	)
	if err != nil {
		return g, err
	}
	if err := json.Unmarshal([]byte(seqJSON), &g.DigitSequence); err != nil {
		return g, fmt.Errorf("failed to decode digit sequence for %s: %w", g.GroupKey, err)
	}
	return g, nil
}

// ListGroups returns classified groups matching the filter, ordered by
// visit then position for stable paging.
func (db *DB) ListGroups(ctx context.Context, filter GroupFilter) ([]GroupRow, error) {
	var conds []string
	var args []any
	if filter.SiteURL != "" {
		conds = append(conds, "site_url = ?")
		args = append(args, filter.SiteURL)
	}
	if filter.ModelVersion != "" {
		conds = append(conds, "model_version = ?")
		args = append(args, filter.ModelVersion)
	}
	if filter.OnlyTimers {
		conds = append(conds, "is_timer = 1")
	}

	q := `SELECT ` + groupColumns + ` FROM segment_groups`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY visit_id, top, "left", inner_processed`
	if filter.Limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []GroupRow
	for rows.Next() {
		g, err := scanGroupRow(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return groups, nil
}

// TimerURLs returns the distinct site URLs of confirmed timers,
// deduplicated and sorted, for the manual-review export.
func (db *DB) TimerURLs(ctx context.Context, modelVersion string) ([]string, error) {
	q := `SELECT DISTINCT site_url FROM segment_groups WHERE is_timer = 1`
	var args []any
	if modelVersion != "" {
		q += ` AND model_version = ?`
		args = append(args, modelVersion)
	}
	q += ` ORDER BY site_url`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return urls, nil
}

// DetectionStats summarises the classified groups for a model version.
type DetectionStats struct {
	ModelVersion     string `json:"model_version"`
	TotalGroups      int64  `json:"total_groups"`
	DecreasingGroups int64  `json:"decreasing_groups"`
	ModeGroups       int64  `json:"mode_groups"`
	GatedGroups      int64  `json:"gated_groups"`
	ConfirmedTimers  int64  `json:"confirmed_timers"`
	TimerSites       int64  `json:"timer_sites"`
}

// Stats returns classification counts for a model version (or all
// versions when modelVersion is empty).
func (db *DB) Stats(ctx context.Context, modelVersion string) (*DetectionStats, error) {
	q := `
		SELECT
			COUNT(*),
			COALESCE(SUM(is_decreasing), 0),
			COALESCE(SUM(is_decreasing_by_mode), 0),
			COALESCE(SUM(seconds_gate), 0),
			COALESCE(SUM(is_timer), 0),
			COUNT(DISTINCT CASE WHEN is_timer = 1 THEN site_url END)
		FROM segment_groups
	`
	var args []any
	if modelVersion != "" {
		q += ` WHERE model_version = ?`
		args = append(args, modelVersion)
	}

	stats := &DetectionStats{ModelVersion: modelVersion}
	err := db.QueryRowContext(ctx, q, args...).Scan(
		&stats.TotalGroups,
		&stats.DecreasingGroups,
		&stats.ModeGroups,
		&stats.GatedGroups,
		&stats.ConfirmedTimers,
		&stats.TimerSites,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}

	return stats, nil
}

// DeleteGroups removes all groups for a model version, returning the
// number of deleted rows.
func (db *DB) DeleteGroups(ctx context.Context, modelVersion string) (int64, error) {
	result, err := db.ExecContext(ctx,
		`DELETE FROM segment_groups WHERE model_version = ?`,
		modelVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete groups: %w", err)
	}
	return result.RowsAffected()
}

// ModelVersionCounts returns the group count per model version.
func (db *DB) ModelVersionCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT model_version, COUNT(*) FROM segment_groups GROUP BY model_version`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by model version: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var mv string
		var n int64
		if err := rows.Scan(&mv, &n); err != nil {
			return nil, err
		}
		counts[mv] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}
