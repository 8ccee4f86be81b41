package db

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/countdown.report/internal/segment"
)

// newTestDB creates a migrated database in a per-test temp directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "segments.db")
	database, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() {
		if err := database.Close(); err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})
	return database
}

// countdownObservations produces n snapshots of a countdown element at
// one position, ticking down once per second from start.
func countdownObservations(siteURL string, visitID, nodeID int64, n int, from int, start time.Time) []segment.Observation {
	obs := make([]segment.Observation, 0, n)
	for i := 0; i < n; i++ {
		obs = append(obs, segment.Observation{
			SiteURL:   siteURL,
			VisitID:   visitID,
			NodeID:    nodeID,
			Top:       100,
			Left:      50,
			Width:     200,
			Height:    24,
			InnerText: countdownText(from - i),
			Time:      start.Add(time.Duration(i) * time.Second),
		})
	}
	return obs
}

func countdownText(seconds int) string {
	return fmt.Sprintf("Ends in %02d:%02d", seconds/60, seconds%60)
}

// seedObservations inserts obs and fails the test on error.
func seedObservations(t *testing.T, database *DB, obs []segment.Observation) {
	t.Helper()
	if err := database.InsertObservations(context.Background(), obs); err != nil {
		t.Fatalf("InsertObservations failed: %v", err)
	}
}
