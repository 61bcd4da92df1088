package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func writeCatalogFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}

	return path
}

func TestLoadConfig_MissingFileReturnsEmpty(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() failed for missing file: %v", err)
	}

	if len(cfg.Exercises) != 0 {
		t.Errorf("expected empty config, got %d exercises", len(cfg.Exercises))
	}
}

func TestLoadConfig_InvalidYAMLDegradesToEmpty(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := writeCatalogFile(t, "exercises: [not: valid: yaml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed for invalid yaml: %v", err)
	}

	if len(cfg.Exercises) != 0 {
		t.Errorf("expected empty config for invalid yaml, got %d exercises", len(cfg.Exercises))
	}
}

func TestLoadConfig_ParsesEntries(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := writeCatalogFile(t, `
exercises:
  - exercise_id: "b2c3d4e5-0000-4000-8000-000000000001"
    name: "Hip Thrust"
    muscle_category: "legs"
  - name: "Face Pull"
    muscle_category: "shoulders"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if len(cfg.Exercises) != 2 {
		t.Fatalf("parsed %d exercises, want 2", len(cfg.Exercises))
	}

	if cfg.Exercises[0].Name != "Hip Thrust" || cfg.Exercises[1].MuscleCategory != "shoulders" {
		t.Errorf("unexpected entries: %+v", cfg.Exercises)
	}
}

func TestEntries_DeterministicIDForUnnamedIDs(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := &Config{Exercises: []ConfigExercise{
		{Name: "Face Pull", MuscleCategory: "shoulders"},
		{ExerciseID: "not-a-uuid", Name: "Face Pull", MuscleCategory: "shoulders"},
		{Name: ""}, // skipped
	}}

	entries := cfg.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() = %d entries, want 2 (nameless skipped)", len(entries))
	}

	// Missing and malformed ids both derive the same deterministic id from
	// the name, so repeated startups upsert the same row.
	if entries[0].ExerciseID != entries[1].ExerciseID {
		t.Errorf("derived ids differ: %s vs %s", entries[0].ExerciseID, entries[1].ExerciseID)
	}

	if entries[0].ExerciseID == uuid.Nil {
		t.Error("derived id is nil")
	}
}

func TestEntries_KeepsExplicitID(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	explicit := "b2c3d4e5-0000-4000-8000-000000000001"
	cfg := &Config{Exercises: []ConfigExercise{
		{ExerciseID: explicit, Name: "Hip Thrust", MuscleCategory: "legs"},
	}}

	entries := cfg.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries() = %d entries, want 1", len(entries))
	}

	if entries[0].ExerciseID.String() != explicit {
		t.Errorf("ExerciseID = %s, want %s", entries[0].ExerciseID, explicit)
	}
}
