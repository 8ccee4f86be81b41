package db

import (
	"path/filepath"
	"testing"
)

func TestMigrateUpAndDown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "segments.db")
	database, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer database.Close()

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if latest < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", latest)
	}

	if err := database.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	version, dirty, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("database should not be dirty after a clean MigrateUp")
	}
	if version != latest {
		t.Errorf("expected version %d after MigrateUp, got %d", latest, version)
	}

	// MigrateUp is idempotent.
	if err := database.MigrateUp(migrationsFS); err != nil {
		t.Errorf("repeated MigrateUp should be a no-op, got: %v", err)
	}

	if err := database.MigrateDown(migrationsFS); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, _, err = database.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != latest-1 {
		t.Errorf("expected version %d after MigrateDown, got %d", latest-1, version)
	}
}

func TestMigrateTo(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "segments.db")
	database, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer database.Close()

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	if err := database.MigrateTo(migrationsFS, 1); err != nil {
		t.Fatalf("MigrateTo(1) failed: %v", err)
	}
	version, _, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("expected version 1, got %d", version)
	}

	// Version 1 has the segments table but not the diff stat columns.
	var n int
	if err := database.QueryRow(`SELECT COUNT(*) FROM segments`).Scan(&n); err != nil {
		t.Errorf("segments table missing at version 1: %v", err)
	}
	if err := database.QueryRow(`SELECT COUNT(mean_diff) FROM segment_groups`).Scan(&n); err == nil {
		t.Error("mean_diff column should not exist at version 1")
	}
}

func TestMigrationStatus(t *testing.T) {
	database := newTestDB(t)

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	status, err := database.GetMigrationStatus(migrationsFS)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if exists, ok := status["schema_migrations_exists"].(bool); !ok || !exists {
		t.Errorf("expected schema_migrations_exists=true, got %v", status["schema_migrations_exists"])
	}
}
