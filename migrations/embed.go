package main

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var embeddedMigrations embed.FS

// Migration filename format: 001_migration_name.up.sql or 001_migration_name.down.sql.
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

type (
	// EmbeddedMigration wraps the go:embed migration filesystem and validates
	// it at startup: filename format, up/down pairing and a gapless sequence
	// starting at 001. The filesystem is injectable for tests.
	EmbeddedMigration struct {
		fs fs.FS
	}

	// MigrationInfo contains parsed information about a migration file.
	MigrationInfo struct {
		Sequence  int
		Name      string
		Direction string // "up" or "down"
		Filename  string
	}
)

// NewEmbeddedMigration creates an EmbeddedMigration. Pass nil to use the
// default embedded migrations.
func NewEmbeddedMigration(filesystem fs.FS) *EmbeddedMigration {
	if filesystem == nil {
		filesystem = embeddedMigrations
	}

	return &EmbeddedMigration{fs: filesystem}
}

// FS returns the migration filesystem for the iofs source driver.
func (e *EmbeddedMigration) FS() fs.FS {
	return e.fs
}

// List returns all embedded migration files that conform to the naming
// standard, sorted lexicographically.
func (e *EmbeddedMigration) List() ([]string, error) {
	entries, err := fs.ReadDir(e.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		if filepath.Ext(filename) == ".sql" && migrationFilenameRegex.MatchString(filename) {
			files = append(files, filename)
		}
	}

	sort.Strings(files)

	return files, nil
}

// Validate checks the embedded migration set: at least one file, readable
// content, valid filenames, complete up/down pairs and no sequence gaps.
func (e *EmbeddedMigration) Validate() error {
	files, err := e.List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no embedded migration files found")
	}

	pairs := make(map[string]map[string]bool)
	sequences := make(map[int]bool)

	for _, file := range files {
		if _, err := fs.ReadFile(e.fs, file); err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		info, err := parseMigrationFilename(file)
		if err != nil {
			return err
		}

		key := fmt.Sprintf("%03d_%s", info.Sequence, info.Name)
		if pairs[key] == nil {
			pairs[key] = make(map[string]bool)
		}

		pairs[key][info.Direction] = true
		sequences[info.Sequence] = true
	}

	for key, directions := range pairs {
		if !directions["up"] {
			return fmt.Errorf("orphaned down migration: missing up migration for %s", key)
		}

		if !directions["down"] {
			return fmt.Errorf("orphaned up migration: missing down migration for %s", key)
		}
	}

	return validateSequence(sequences)
}

// MaxSequence returns the highest migration sequence number embedded in this
// binary, or 0 when none can be read.
func (e *EmbeddedMigration) MaxSequence() int {
	files, err := e.List()
	if err != nil {
		return 0
	}

	maxSeq := 0

	for _, file := range files {
		if info, err := parseMigrationFilename(file); err == nil && info.Sequence > maxSeq {
			maxSeq = info.Sequence
		}
	}

	return maxSeq
}

// parseMigrationFilename parses a migration filename into its components.
func parseMigrationFilename(filename string) (*MigrationInfo, error) {
	matches := migrationFilenameRegex.FindStringSubmatch(filename)
	if len(matches) != 4 {
		return nil, fmt.Errorf(
			"invalid migration filename format: %s (expected: 001_name.up.sql or 001_name.down.sql)",
			filename,
		)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid sequence number in filename %s: %w", filename, err)
	}

	return &MigrationInfo{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
	}, nil
}

// validateSequence ensures sequence numbers start at 1 with no gaps.
func validateSequence(sequences map[int]bool) error {
	var numbers []int
	for seq := range sequences {
		numbers = append(numbers, seq)
	}

	sort.Ints(numbers)

	if len(numbers) == 0 {
		return nil
	}

	if numbers[0] != 1 {
		return fmt.Errorf("migration sequence should start with 001, but found %03d", numbers[0])
	}

	for i := 1; i < len(numbers); i++ {
		if numbers[i] != numbers[i-1]+1 {
			return fmt.Errorf(
				"gap in migration sequence: expected %03d, found %03d",
				numbers[i-1]+1, numbers[i],
			)
		}
	}

	return nil
}
