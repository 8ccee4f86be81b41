package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/countdown.report/internal/db"
)

func TestWriteGroups(t *testing.T) {
	groups := []db.GroupRow{
		{
			GroupKey:           "abc123",
			ModelVersion:       "ratio-mode-v1",
			SiteURL:            "https://shop.example/sale",
			VisitID:            7,
			Top:                100,
			Left:               50,
			InnerProcessed:     "Ends in #:#",
			NodeIDCount:        1,
			DistinctSeconds:    10,
			ObservationCount:   10,
			DigitSequence:      []string{"0105", "0104", "0103"},
			FirstSeenUnix:      1700000000,
			LastSeenUnix:       1700000009,
			MeanDiff:           -1,
			StdDevDiff:         0,
			IsDecreasing:       true,
			IsDecreasingByMode: true,
			SecondsGate:        true,
			IsTimer:            true,
		},
	}

	var buf bytes.Buffer
	if err := WriteGroups(&buf, groups); err != nil {
		t.Fatalf("WriteGroups failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse output CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d records", len(records))
	}
	if diff := cmp.Diff(GroupHeaders(), records[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}

	row := records[1]
	if len(row) != len(GroupHeaders()) {
		t.Fatalf("row width %d does not match header width %d", len(row), len(GroupHeaders()))
	}
	want := map[int]string{
		0:  "abc123",
		2:  "https://shop.example/sale",
		3:  "7",
		6:  "Ends in #:#",
		10: "0105 0104 0103",
		11: "2023-11-14T22:13:20Z",
		18: "true",
	}
	for i, v := range want {
		if row[i] != v {
			t.Errorf("column %d (%s) = %q, want %q", i, GroupHeaders()[i], row[i], v)
		}
	}
}

func TestWriteGroupsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteGroups(&buf, nil); err != nil {
		t.Fatalf("WriteGroups failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Errorf("expected header only, got %d lines", len(lines))
	}
}

func TestWriteTimerURLs(t *testing.T) {
	urls := []string{
		"https://shop.example/sale",
		"https://tickets.example/checkout",
	}

	var buf bytes.Buffer
	if err := WriteTimerURLs(&buf, urls); err != nil {
		t.Fatalf("WriteTimerURLs failed: %v", err)
	}

	want := "site_url\nhttps://shop.example/sale\nhttps://tickets.example/checkout\n"
	if buf.String() != want {
		t.Errorf("output mismatch:\ngot  %q\nwant %q", buf.String(), want)
	}
}
