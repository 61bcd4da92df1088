package catalog

import (
	"errors"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/repsync-io/repsync/internal/config"
)

// DefaultConfigPath is the default location for the catalog extension file.
const DefaultConfigPath = ".repsync-catalog.yaml"

// ConfigPathEnvVar is the environment variable name for a custom catalog path.
const ConfigPathEnvVar = "REPSYNC_CATALOG_PATH"

type (
	// Config holds catalog extensions loaded from a YAML file.
	Config struct {
		//nolint:tagliatelle // snake_case is intentional for YAML config files
		Exercises []ConfigExercise `yaml:"exercises"`
	}

	// ConfigExercise is one YAML catalog entry. ExerciseID is optional; when
	// absent a deterministic id is derived from the name so repeated startups
	// upsert the same row.
	ConfigExercise struct {
		ExerciseID     string `yaml:"exercise_id"`
		Name           string `yaml:"name"`
		MuscleCategory string `yaml:"muscle_category"`
	}
)

// LoadConfig loads catalog extensions from a YAML file at the given path.
//
// Behavior:
//   - Returns empty config (not error) if the file doesn't exist - extensions
//     are optional
//   - Returns empty config + logs warning if the YAML is invalid (graceful
//     degradation)
//   - Returns populated config on success
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Catalog file not found, continuing with seeded catalog",
				slog.String("path", path))

			return cfg, nil
		}

		slog.Warn("Failed to read catalog file, continuing with seeded catalog",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg, nil
	}

	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("Failed to parse catalog file, continuing with seeded catalog",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return &Config{}, nil
	}

	return cfg, nil
}

// LoadConfigFromEnv loads the catalog extension file from the path in
// REPSYNC_CATALOG_PATH, falling back to ".repsync-catalog.yaml".
func LoadConfigFromEnv() (*Config, error) {
	path := config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)

	return LoadConfig(path)
}

// Entries converts the YAML config into catalog exercises, skipping entries
// without a name. Missing or malformed ids are replaced with a deterministic
// UUID derived from the exercise name.
func (c *Config) Entries() []*Exercise {
	exercises := make([]*Exercise, 0, len(c.Exercises))

	for _, entry := range c.Exercises {
		if entry.Name == "" {
			slog.Warn("Skipping catalog entry without a name",
				slog.String("muscle_category", entry.MuscleCategory))

			continue
		}

		id, err := uuid.Parse(entry.ExerciseID)
		if entry.ExerciseID == "" || err != nil {
			id = uuid.NewSHA1(uuid.NameSpaceOID, []byte("repsync:exercise:"+entry.Name))
		}

		exercises = append(exercises, &Exercise{
			ExerciseID:     id,
			Name:           entry.Name,
			MuscleCategory: entry.MuscleCategory,
		})
	}

	return exercises
}
