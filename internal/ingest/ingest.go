// Package ingest loads crawl segment logs into the local database. It
// accepts JSONL (one observation object per line) or CSV with a header
// row, both carrying the segment-log columns. Rows missing required
// fields are rejected and counted without aborting the batch.
package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/countdown.report/internal/db"
	"github.com/banshee-data/countdown.report/internal/segment"
)

// maxLineBytes bounds a single JSONL line. Segment inner_text is page
// text, so lines can be long, but not megabytes long.
const maxLineBytes = 1 << 20

// maxReportedErrors caps how many per-row errors a Summary retains.
const maxReportedErrors = 10

// Summary describes the outcome of one ingestion batch.
type Summary struct {
	Accepted int
	Rejected int

	// Errors holds the first few per-row rejection reasons, for the CLI
	// to surface. Rejected is the authoritative count.
	Errors []string
}

func (s *Summary) reject(line int, err error) {
	s.Rejected++
	if len(s.Errors) < maxReportedErrors {
		s.Errors = append(s.Errors, fmt.Sprintf("row %d: %v", line, err))
	}
}

// row mirrors one segment-log record. Pointer fields distinguish absent
// from zero, so required-field checks work on sparse input.
type row struct {
	SiteURL   *string         `json:"site_url"`
	VisitID   *int64          `json:"visit_id"`
	NodeID    *int64          `json:"node_id"`
	Top       *float64        `json:"top"`
	Left      *float64        `json:"left"`
	Width     float64         `json:"width"`
	Height    float64         `json:"height"`
	InnerText *string         `json:"inner_text"`
	TimeStamp json.RawMessage `json:"time_stamp"`
}

func (r row) toObservation() (segment.Observation, error) {
	var missing []string
	if r.SiteURL == nil || *r.SiteURL == "" {
		missing = append(missing, "site_url")
	}
	if r.VisitID == nil {
		missing = append(missing, "visit_id")
	}
	if r.NodeID == nil {
		missing = append(missing, "node_id")
	}
	if r.Top == nil {
		missing = append(missing, "top")
	}
	if r.Left == nil {
		missing = append(missing, "left")
	}
	if r.InnerText == nil {
		missing = append(missing, "inner_text")
	}
	if len(r.TimeStamp) == 0 {
		missing = append(missing, "time_stamp")
	}
	if len(missing) > 0 {
		return segment.Observation{}, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}

	ts, err := parseTimestampJSON(r.TimeStamp)
	if err != nil {
		return segment.Observation{}, err
	}

	return segment.Observation{
		SiteURL:   *r.SiteURL,
		VisitID:   *r.VisitID,
		NodeID:    *r.NodeID,
		Top:       *r.Top,
		Left:      *r.Left,
		Width:     r.Width,
		Height:    r.Height,
		InnerText: *r.InnerText,
		Time:      ts,
	}, nil
}

// parseTimestampJSON accepts either a JSON string (RFC3339, or a quoted
// unix-seconds number) or a bare JSON number of unix seconds.
func parseTimestampJSON(raw json.RawMessage) (time.Time, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("invalid time_stamp: %w", err)
		}
		return ParseTimestamp(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return time.Time{}, fmt.Errorf("invalid time_stamp: %w", err)
	}
	return unixTime(f), nil
}

// ParseTimestamp parses an RFC3339 timestamp, falling back to unix
// seconds (integer or float) when the string is numeric.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("time_stamp %q is neither RFC3339 nor unix seconds", s)
	}
	return unixTime(f), nil
}

func unixTime(f float64) time.Time {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// ReadJSONL reads observations from r, one JSON object per line. Blank
// lines are skipped; malformed lines are rejected and counted.
func ReadJSONL(r io.Reader) ([]segment.Observation, Summary, error) {
	var obs []segment.Observation
	var summary Summary

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec row
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			summary.reject(lineNo, fmt.Errorf("invalid JSON: %w", err))
			continue
		}
		o, err := rec.toObservation()
		if err != nil {
			summary.reject(lineNo, err)
			continue
		}

		obs = append(obs, o)
		summary.Accepted++
	}
	if err := scanner.Err(); err != nil {
		return nil, summary, fmt.Errorf("failed to read input: %w", err)
	}

	return obs, summary, nil
}

// csvRequired lists the header columns the CSV input contract demands,
// matching the JSON field names. width and height are optional.
var csvRequired = []string{"site_url", "visit_id", "node_id", "top", "left", "inner_text", "time_stamp"}

// ReadCSV reads observations from CSV with a header row. Records whose
// fields fail to parse are rejected and counted.
func ReadCSV(r io.Reader) ([]segment.Observation, Summary, error) {
	var summary Summary

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // validated per record against the header

	header, err := cr.Read()
	if err != nil {
		return nil, summary, fmt.Errorf("failed to read CSV header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range csvRequired {
		if _, ok := col[name]; !ok {
			return nil, summary, fmt.Errorf("CSV header is missing required column %q", name)
		}
	}

	var obs []segment.Observation
	lineNo := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		lineNo++
		if err != nil {
			summary.reject(lineNo, err)
			continue
		}

		o, err := csvObservation(record, col)
		if err != nil {
			summary.reject(lineNo, err)
			continue
		}
		obs = append(obs, o)
		summary.Accepted++
	}

	return obs, summary, nil
}

func csvObservation(record []string, col map[string]int) (segment.Observation, error) {
	field := func(name string) (string, bool) {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}

	var o segment.Observation
	var err error

	siteURL, ok := field("site_url")
	if !ok || siteURL == "" {
		return o, fmt.Errorf("missing required field site_url")
	}
	o.SiteURL = siteURL

	for _, f := range []struct {
		name string
		dst  *int64
	}{
		{"visit_id", &o.VisitID},
		{"node_id", &o.NodeID},
	} {
		s, ok := field(f.name)
		if !ok || s == "" {
			return o, fmt.Errorf("missing required field %s", f.name)
		}
		if *f.dst, err = strconv.ParseInt(s, 10, 64); err != nil {
			return o, fmt.Errorf("invalid %s %q", f.name, s)
		}
	}

	for _, f := range []struct {
		name     string
		dst      *float64
		required bool
	}{
		{"top", &o.Top, true},
		{"left", &o.Left, true},
		{"width", &o.Width, false},
		{"height", &o.Height, false},
	} {
		s, ok := field(f.name)
		if !ok || s == "" {
			if f.required {
				return o, fmt.Errorf("missing required field %s", f.name)
			}
			continue
		}
		if *f.dst, err = strconv.ParseFloat(s, 64); err != nil {
			return o, fmt.Errorf("invalid %s %q", f.name, s)
		}
	}

	innerText, ok := field("inner_text")
	if !ok {
		return o, fmt.Errorf("missing required field inner_text")
	}
	o.InnerText = innerText

	ts, ok := field("time_stamp")
	if !ok || ts == "" {
		return o, fmt.Errorf("missing required field time_stamp")
	}
	if o.Time, err = ParseTimestamp(ts); err != nil {
		return o, err
	}

	return o, nil
}

// File ingests one segment-log file, choosing the format from its
// extension (.jsonl/.ndjson/.json or .csv), and inserts the accepted
// observations into the database.
func File(ctx context.Context, database *db.DB, path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var obs []segment.Observation
	var summary Summary
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".jsonl", ".ndjson", ".json":
		obs, summary, err = ReadJSONL(f)
	case ".csv":
		obs, summary, err = ReadCSV(f)
	default:
		return Summary{}, fmt.Errorf("unsupported segment log extension %q (want .jsonl, .ndjson, .json or .csv)", ext)
	}
	if err != nil {
		return summary, err
	}

	if err := database.InsertObservations(ctx, obs); err != nil {
		return summary, fmt.Errorf("failed to insert observations: %w", err)
	}
	return summary, nil
}
