// Package config loads the server configuration. Precedence, lowest
// to highest: built-in defaults, promptforge.yaml, PROMPTFORGE_*
// environment variables (double underscore separates nesting levels,
// e.g. PROMPTFORGE_BUDGET__TOKENS=4096).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ebarroso/promptforge/internal/pipeline"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "promptforge.yaml"

const envPrefix = "PROMPTFORGE_"

type Config struct {
	Workspace string        `koanf:"workspace"`
	Budget    BudgetConfig  `koanf:"budget"`
	Scope     ScopeConfig   `koanf:"scope"`
	Retry     RetryConfig   `koanf:"retry"`
	Storage   StorageConfig `koanf:"storage"`
	Vector    VectorConfig  `koanf:"vector"`
	Log       LogConfig     `koanf:"log"`
}

type BudgetConfig struct {
	Time   time.Duration `koanf:"time"`
	Tokens int           `koanf:"tokens"`
	Chunks int           `koanf:"chunks"`
	Files  int           `koanf:"files"`
}

type ScopeConfig struct {
	MaxFiles         int      `koanf:"max_files"`
	MaxLinesPerFile  int      `koanf:"max_lines_per_file"`
	AllowedFileTypes []string `koanf:"allowed_file_types"`
}

type RetryConfig struct {
	MaxAttempts  int     `koanf:"max_attempts"`
	NarrowFactor float64 `koanf:"narrow_factor"`
}

type StorageConfig struct {
	LessonsPath string        `koanf:"lessons_path"`
	IndexPath   string        `koanf:"index_path"` // empty means in-memory
	CachePath   string        `koanf:"cache_path"`
	CacheTTL    time.Duration `koanf:"cache_ttl"`
}

type VectorConfig struct {
	Threshold float64 `koanf:"threshold"`
}

type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

// Load reads configuration from path. A missing file is not an error;
// defaults and environment variables still apply. An empty path uses
// DefaultFile.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}

	k := koanf.New(".")

	for key, val := range defaults() {
		k.Set(key, val)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaults() map[string]any {
	return map[string]any{
		"workspace":                ".",
		"budget.time":              "30s",
		"budget.tokens":            8192,
		"budget.chunks":            16,
		"budget.files":             24,
		"scope.max_files":          10,
		"scope.max_lines_per_file": 200,
		"retry.max_attempts":       2,
		"retry.narrow_factor":      0.5,
		"storage.lessons_path":     ".promptforge/lessons.db",
		"storage.cache_path":       ".promptforge/doccache.db",
		"storage.cache_ttl":        "24h",
		"vector.threshold":         0.1,
		"log.level":                "info",
	}
}

func (c *Config) validate() error {
	if c.Budget.Time <= 0 {
		return fmt.Errorf("budget.time must be positive, got %s", c.Budget.Time)
	}
	if c.Budget.Tokens <= 0 || c.Budget.Chunks <= 0 || c.Budget.Files <= 0 {
		return fmt.Errorf("budget dimensions must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.NarrowFactor <= 0 || c.Retry.NarrowFactor >= 1 {
		return fmt.Errorf("retry.narrow_factor must be in (0, 1), got %g", c.Retry.NarrowFactor)
	}
	return nil
}

// PipelineBudget converts the budget section to the pipeline type.
func (c *Config) PipelineBudget() pipeline.Budget {
	return pipeline.Budget{
		Time:   c.Budget.Time,
		Tokens: c.Budget.Tokens,
		Chunks: c.Budget.Chunks,
		Files:  c.Budget.Files,
	}
}

// PipelineScope converts the scope section to the pipeline type.
func (c *Config) PipelineScope() pipeline.Scope {
	return pipeline.Scope{
		MaxFiles:         c.Scope.MaxFiles,
		MaxLinesPerFile:  c.Scope.MaxLinesPerFile,
		AllowedFileTypes: append([]string(nil), c.Scope.AllowedFileTypes...),
	}
}
