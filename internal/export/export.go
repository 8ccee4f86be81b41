// Package export writes classified segment groups as CSV report
// artifacts: the full grouped table for analysis, and the deduplicated
// confirmed-timer URL list for manual review.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/countdown.report/internal/db"
)

// GroupHeaders returns the column names of the full group table export.
func GroupHeaders() []string {
	return []string{
		"group_key", "model_version", "site_url", "visit_id", "top", "left",
		"inner_processed", "node_id_count", "distinct_seconds",
		"observation_count", "digit_sequence", "first_seen", "last_seen",
		"mean_diff", "stddev_diff",
		"is_decreasing", "is_decreasing_by_mode", "seconds_gate", "is_timer",
	}
}

// WriteGroups writes one CSV row per classified group. The digit
// sequence is joined with spaces so the column stays a single field.
func WriteGroups(w io.Writer, groups []db.GroupRow) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(GroupHeaders()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, g := range groups {
		row := []string{
			g.GroupKey,
			g.ModelVersion,
			g.SiteURL,
			strconv.FormatInt(g.VisitID, 10),
			fmt.Sprintf("%.4f", g.Top),
			fmt.Sprintf("%.4f", g.Left),
			g.InnerProcessed,
			strconv.Itoa(g.NodeIDCount),
			strconv.Itoa(g.DistinctSeconds),
			strconv.Itoa(g.ObservationCount),
			strings.Join(g.DigitSequence, " "),
			formatUnix(g.FirstSeenUnix),
			formatUnix(g.LastSeenUnix),
			fmt.Sprintf("%.4f", g.MeanDiff),
			fmt.Sprintf("%.4f", g.StdDevDiff),
			strconv.FormatBool(g.IsDecreasing),
			strconv.FormatBool(g.IsDecreasingByMode),
			strconv.FormatBool(g.SecondsGate),
			strconv.FormatBool(g.IsTimer),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write group row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteTimerURLs writes the confirmed-timer site URLs, one per row
// under a single header column. The input is expected deduplicated and
// sorted (TimerURLs returns it that way).
func WriteTimerURLs(w io.Writer, urls []string) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"site_url"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, u := range urls {
		if err := cw.Write([]string{u}); err != nil {
			return fmt.Errorf("failed to write URL row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Groups exports the full group table for a model version to w.
func Groups(ctx context.Context, database *db.DB, modelVersion string, w io.Writer) (int, error) {
	groups, err := database.ListGroups(ctx, db.GroupFilter{ModelVersion: modelVersion})
	if err != nil {
		return 0, fmt.Errorf("failed to list groups: %w", err)
	}
	if err := WriteGroups(w, groups); err != nil {
		return 0, err
	}
	return len(groups), nil
}

// TimerURLs exports the confirmed-timer URL list for a model version.
func TimerURLs(ctx context.Context, database *db.DB, modelVersion string, w io.Writer) (int, error) {
	urls, err := database.TimerURLs(ctx, modelVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to list timer URLs: %w", err)
	}
	if err := WriteTimerURLs(w, urls); err != nil {
		return 0, err
	}
	return len(urls), nil
}

func formatUnix(f float64) string {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC().Format(time.RFC3339Nano)
}
