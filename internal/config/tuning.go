package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/countdown.report/internal/timer"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for detection tuning.
// Fields are pointers so a partial JSON file only overrides what it
// names; the Get* methods supply defaults for everything else.
type TuningConfig struct {
	// Classification thresholds
	MinNegativeUpdates *int     `json:"min_negative_updates,omitempty"`
	NegPosUpdateRatio  *float64 `json:"neg_pos_update_ratio,omitempty"`
	MinDistinctValues  *int     `json:"min_distinct_values,omitempty"`
	MinDistinctSeconds *int     `json:"min_distinct_seconds,omitempty"`

	// RolloverExclusions are diff values removed from the negative
	// count. The historical default {59, 5, 9} compares raw diffs and so
	// excludes nothing; set signed values to exclude for real.
	RolloverExclusions []int64 `json:"rollover_exclusions,omitempty"`

	// Detection worker params
	ModelVersion   *string `json:"model_version,omitempty"`
	DetectInterval *string `json:"detect_interval,omitempty"` // duration string like "15m"
	DetectWindow   *string `json:"detect_window,omitempty"`   // duration string like "20m"
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
// Use LoadTuningConfig to load actual values from a defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching the current directory and common parent
// directories. Panics if the file cannot be loaded; intended for test
// setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MinNegativeUpdates != nil && *c.MinNegativeUpdates < 1 {
		return fmt.Errorf("min_negative_updates must be at least 1, got %d", *c.MinNegativeUpdates)
	}
	if c.NegPosUpdateRatio != nil && *c.NegPosUpdateRatio <= 0 {
		return fmt.Errorf("neg_pos_update_ratio must be positive, got %f", *c.NegPosUpdateRatio)
	}
	if c.MinDistinctValues != nil && *c.MinDistinctValues < 1 {
		return fmt.Errorf("min_distinct_values must be at least 1, got %d", *c.MinDistinctValues)
	}
	if c.MinDistinctSeconds != nil && *c.MinDistinctSeconds < 1 {
		return fmt.Errorf("min_distinct_seconds must be at least 1, got %d", *c.MinDistinctSeconds)
	}
	if c.DetectInterval != nil && *c.DetectInterval != "" {
		if _, err := time.ParseDuration(*c.DetectInterval); err != nil {
			return fmt.Errorf("invalid detect_interval '%s': %w", *c.DetectInterval, err)
		}
	}
	if c.DetectWindow != nil && *c.DetectWindow != "" {
		if _, err := time.ParseDuration(*c.DetectWindow); err != nil {
			return fmt.Errorf("invalid detect_window '%s': %w", *c.DetectWindow, err)
		}
	}
	return nil
}

// GetMinNegativeUpdates returns the min_negative_updates value or the default.
func (c *TuningConfig) GetMinNegativeUpdates() int {
	if c.MinNegativeUpdates == nil {
		return 5
	}
	return *c.MinNegativeUpdates
}

// GetNegPosUpdateRatio returns the neg_pos_update_ratio value or the default.
func (c *TuningConfig) GetNegPosUpdateRatio() float64 {
	if c.NegPosUpdateRatio == nil {
		return 5
	}
	return *c.NegPosUpdateRatio
}

// GetMinDistinctValues returns the min_distinct_values value or the default.
func (c *TuningConfig) GetMinDistinctValues() int {
	if c.MinDistinctValues == nil {
		return 5
	}
	return *c.MinDistinctValues
}

// GetMinDistinctSeconds returns the min_distinct_seconds value or the default.
func (c *TuningConfig) GetMinDistinctSeconds() int {
	if c.MinDistinctSeconds == nil {
		return 5
	}
	return *c.MinDistinctSeconds
}

// GetRolloverExclusions returns the rollover_exclusions value or the default.
func (c *TuningConfig) GetRolloverExclusions() []int64 {
	if c.RolloverExclusions == nil {
		return []int64{59, 5, 9}
	}
	return c.RolloverExclusions
}

// GetModelVersion returns the model_version value or the default.
func (c *TuningConfig) GetModelVersion() string {
	if c.ModelVersion == nil || *c.ModelVersion == "" {
		return "ratio-mode-v1"
	}
	return *c.ModelVersion
}

// GetDetectInterval parses and returns the DetectInterval as a time.Duration.
func (c *TuningConfig) GetDetectInterval() time.Duration {
	if c.DetectInterval == nil || *c.DetectInterval == "" {
		return 15 * time.Minute
	}
	d, err := time.ParseDuration(*c.DetectInterval)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// GetDetectWindow parses and returns the DetectWindow as a time.Duration.
func (c *TuningConfig) GetDetectWindow() time.Duration {
	if c.DetectWindow == nil || *c.DetectWindow == "" {
		return 20 * time.Minute
	}
	d, err := time.ParseDuration(*c.DetectWindow)
	if err != nil {
		return 20 * time.Minute
	}
	return d
}

// Thresholds materialises the classification thresholds for the
// detector. The detector only ever sees this explicit value; nothing
// reads tuning globally.
func (c *TuningConfig) Thresholds() timer.Thresholds {
	return timer.Thresholds{
		MinNegativeUpdates: c.GetMinNegativeUpdates(),
		NegPosUpdateRatio:  c.GetNegPosUpdateRatio(),
		MinDistinctValues:  c.GetMinDistinctValues(),
		MinDistinctSeconds: c.GetMinDistinctSeconds(),
		RolloverExclusions: c.GetRolloverExclusions(),
	}
}
