package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/countdown.report/internal/db"
	"github.com/banshee-data/countdown.report/internal/segment"
)

func TestReadJSONL(t *testing.T) {
	input := strings.Join([]string{
		`{"site_url":"https://a.example","visit_id":1,"node_id":10,"top":100,"left":50,"width":200,"height":24,"inner_text":"Ends in 01:05","time_stamp":1700000000}`,
		``,
		`{"site_url":"https://a.example","visit_id":1,"node_id":10,"top":100,"left":50,"inner_text":"Ends in 01:04","time_stamp":"2023-11-14T22:13:21Z"}`,
		`{"site_url":"https://a.example","visit_id":1,"node_id":10,"top":100,"inner_text":"no left","time_stamp":1700000002}`,
		`not json at all`,
	}, "\n")

	obs, summary, err := ReadJSONL(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadJSONL failed: %v", err)
	}
	if summary.Accepted != 2 || summary.Rejected != 2 {
		t.Errorf("expected 2 accepted / 2 rejected, got %+v", summary)
	}
	if len(summary.Errors) != 2 {
		t.Errorf("expected 2 recorded errors, got %v", summary.Errors)
	}

	want := []segment.Observation{
		{
			SiteURL: "https://a.example", VisitID: 1, NodeID: 10,
			Top: 100, Left: 50, Width: 200, Height: 24,
			InnerText: "Ends in 01:05",
			Time:      time.Unix(1700000000, 0).UTC(),
		},
		{
			SiteURL: "https://a.example", VisitID: 1, NodeID: 10,
			Top: 100, Left: 50,
			InnerText: "Ends in 01:04",
			Time:      time.Date(2023, 11, 14, 22, 13, 21, 0, time.UTC),
		},
	}
	if diff := cmp.Diff(want, obs); diff != "" {
		t.Errorf("observations mismatch (-want +got):\n%s", diff)
	}
}

func TestReadJSONLMissingFieldsAreCounted(t *testing.T) {
	// Every line is missing something; the batch must not abort.
	input := strings.Join([]string{
		`{"visit_id":1,"node_id":10,"top":1,"left":1,"inner_text":"x","time_stamp":1}`,
		`{"site_url":"https://a.example","node_id":10,"top":1,"left":1,"inner_text":"x","time_stamp":1}`,
		`{"site_url":"https://a.example","visit_id":1,"node_id":10,"top":1,"left":1,"inner_text":"x"}`,
	}, "\n")

	obs, summary, err := ReadJSONL(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadJSONL failed: %v", err)
	}
	if len(obs) != 0 {
		t.Errorf("expected no accepted observations, got %d", len(obs))
	}
	if summary.Rejected != 3 {
		t.Errorf("expected 3 rejected rows, got %d", summary.Rejected)
	}
	for i, want := range []string{"site_url", "visit_id", "time_stamp"} {
		if !strings.Contains(summary.Errors[i], want) {
			t.Errorf("error %d should name %s, got %q", i, want, summary.Errors[i])
		}
	}
}

func TestReadCSV(t *testing.T) {
	input := strings.Join([]string{
		"site_url,visit_id,node_id,top,left,width,height,inner_text,time_stamp",
		"https://a.example,1,10,100,50,200,24,Ends in 01:05,1700000000.5",
		"https://a.example,1,10,100,50,200,24,Ends in 01:04,2023-11-14T22:13:21Z",
		"https://a.example,not-a-number,10,100,50,200,24,broken,1700000002",
	}, "\n")

	obs, summary, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if summary.Accepted != 2 || summary.Rejected != 1 {
		t.Errorf("expected 2 accepted / 1 rejected, got %+v", summary)
	}
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs))
	}
	if obs[0].Time != time.Unix(1700000000, 500000000).UTC() {
		t.Errorf("unexpected fractional unix timestamp %v", obs[0].Time)
	}
	if obs[1].Time != time.Date(2023, 11, 14, 22, 13, 21, 0, time.UTC) {
		t.Errorf("unexpected RFC3339 timestamp %v", obs[1].Time)
	}
}

func TestReadCSVMissingHeaderColumn(t *testing.T) {
	input := "site_url,visit_id,node_id,top,left\nhttps://a.example,1,10,100,50\n"

	_, _, err := ReadCSV(strings.NewReader(input))
	if err == nil || !strings.Contains(err.Error(), "inner_text") {
		t.Errorf("expected missing-column error naming inner_text, got %v", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{"2023-11-14T22:13:20Z", time.Unix(1700000000, 0).UTC(), false},
		{"2023-11-14T23:13:20+01:00", time.Unix(1700000000, 0).UTC(), false},
		{"1700000000", time.Unix(1700000000, 0).UTC(), false},
		{"1700000000.25", time.Unix(1700000000, 250000000).UTC(), false},
		{"tomorrow", time.Time{}, true},
	}
	for _, tc := range tests {
		got, err := ParseTimestamp(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseTimestamp(%q): expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimestamp(%q) failed: %v", tc.input, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestFileJSONLIntoDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segments.jsonl")
	content := `{"site_url":"https://a.example","visit_id":1,"node_id":10,"top":100,"left":50,"inner_text":"Ends in 01:05","time_stamp":1700000000}
{"site_url":"https://a.example","visit_id":1,"node_id":10,"top":100,"left":50,"inner_text":"Ends in 01:04","time_stamp":1700000001}
{"bad":"row"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	database, err := db.NewDB(filepath.Join(dir, "segments.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	defer database.Close()

	summary, err := File(context.Background(), database, path)
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}
	if summary.Accepted != 2 || summary.Rejected != 1 {
		t.Errorf("expected 2 accepted / 1 rejected, got %+v", summary)
	}

	count, err := database.CountObservations(context.Background())
	if err != nil {
		t.Fatalf("CountObservations failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 stored observations, got %d", count)
	}
}

func TestFileUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segments.parquet")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := File(context.Background(), nil, path)
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("expected unsupported-extension error, got %v", err)
	}
}
