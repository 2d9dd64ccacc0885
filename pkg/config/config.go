// Package config handles loading and saving bw configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/bw/config.yaml
//   - Data:    ~/.local/share/bw/ (results folders, index database)
//
// BW_DATA_DIR overrides the data directory. Command-line flags override
// both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/breathwork/pkg/analysis"
	"github.com/vanderheijden86/breathwork/pkg/relabel"
)

// DataDirEnvVar overrides the data directory.
const DataDirEnvVar = "BW_DATA_DIR"

const appName = "bw"

// MergeConfig controls merge validation.
type MergeConfig struct {
	// AllowSpanning lets a merge cover unselected events; they are kept.
	AllowSpanning bool `yaml:"allow_spanning"`
}

// SegmentationConfig holds segmentation engine parameters.
type SegmentationConfig struct {
	ApneaThresholdFactor float64 `yaml:"apnea_threshold_factor,omitempty"`
}

// WatchConfig controls `bw watch`.
type WatchConfig struct {
	Debounce  time.Duration `yaml:"debounce,omitempty"`
	ForcePoll bool          `yaml:"force_poll,omitempty"`
}

// Config is the top-level configuration for bw.
type Config struct {
	DataDir       string                 `yaml:"data_dir,omitempty"`
	ResultsDir    string                 `yaml:"results_dir,omitempty"` // default <data_dir>/results
	Database      string                 `yaml:"database,omitempty"`    // default <data_dir>/index.db
	RelabelPolicy string                 `yaml:"relabel_policy,omitempty"`
	Merge         MergeConfig            `yaml:"merge,omitempty"`
	Segmentation  SegmentationConfig     `yaml:"segmentation,omitempty"`
	Scoring       analysis.ScoringConfig `yaml:"scoring,omitempty"`
	Watch         WatchConfig            `yaml:"watch,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:       DataDir(),
		RelabelPolicy: relabel.Alternating.String(),
		Segmentation: SegmentationConfig{
			ApneaThresholdFactor: 1.5,
		},
		Scoring: analysis.DefaultScoringConfig(),
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
	}
}

// ConfigDir returns the XDG config directory for bw.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}

// DataDir returns the data directory: BW_DATA_DIR if set, else the XDG
// data directory for bw.
func DataDir() string {
	if dir := os.Getenv(DataDirEnvVar); dir != "" {
		return expandHome(dir)
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", appName)
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path.
// Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	// Weights in the file replace the default set rather than adding to it.
	cfg.Scoring.Weights = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Scoring.Weights == nil {
		cfg.Scoring.Weights = analysis.DefaultScoringConfig().Weights
	}

	// The environment wins over the file.
	if dir := os.Getenv(DataDirEnvVar); dir != "" {
		cfg.DataDir = dir
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.ResultsDir = expandHome(cfg.ResultsDir)
	cfg.Database = expandHome(cfg.Database)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside an edit.
func (c Config) Validate() error {
	if _, err := relabel.ParsePolicy(c.RelabelPolicy); err != nil {
		return err
	}
	if c.Segmentation.ApneaThresholdFactor < 0 {
		return fmt.Errorf("segmentation.apnea_threshold_factor must not be negative")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return c.Scoring.Validate()
}

// Policy returns the parsed relabel policy, falling back to alternating.
func (c Config) Policy() relabel.Policy {
	p, err := relabel.ParsePolicy(c.RelabelPolicy)
	if err != nil {
		return relabel.Alternating
	}
	return p
}

// ResolvedResultsDir returns results_dir or <data_dir>/results.
func (c Config) ResolvedResultsDir() string {
	if c.ResultsDir != "" {
		return c.ResultsDir
	}
	return filepath.Join(c.DataDir, "results")
}

// ResolvedDatabase returns database or <data_dir>/index.db.
func (c Config) ResolvedDatabase() string {
	if c.Database != "" {
		return c.Database
	}
	return filepath.Join(c.DataDir, "index.db")
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// LoadScoringOverride reads a scoring override for recalc-scores. Files
// ending in .json are decoded as JSON, everything else as YAML. Only the
// fields present are set; the caller merges the result onto its defaults.
func LoadScoringOverride(path string) (*analysis.ScoringConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scoring override: %w", err)
	}
	var o analysis.ScoringConfig
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &o)
	} else {
		err = yaml.Unmarshal(data, &o)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing scoring override: %w", err)
	}
	return &o, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
