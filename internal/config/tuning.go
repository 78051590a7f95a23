// Package config loads the JSON tuning file for the registration benchmark.
// All fields are pointers so that a partial file overrides only what it
// names; omitted fields keep the matcher defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/scanmatch.report/internal/ndt"
)

// TuningConfig represents the tuning parameters of the registration engine.
// The same schema is accepted on the command line (-tuning) and embedded in
// persisted run rows, so a stored run can be re-executed with the exact
// parameters that produced it.
type TuningConfig struct {
	OutlierRatio          *float64 `json:"outlier_ratio,omitempty"`
	Resolution            *float64 `json:"resolution,omitempty"`
	StepSize              *float64 `json:"step_size,omitempty"`
	TransformationEpsilon *float64 `json:"transformation_epsilon,omitempty"`
	MaxIterations         *int     `json:"max_iterations,omitempty"`

	// ColumnTranslationSeed selects the conventional last-column translation
	// seed instead of the historical off-row read. Only valid against
	// reference streams recorded the same way.
	ColumnTranslationSeed *bool `json:"column_translation_seed,omitempty"`
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and be under the max file size. Fields omitted from the
// JSON retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	if c.OutlierRatio != nil {
		if *c.OutlierRatio < 0 || *c.OutlierRatio >= 1 {
			return fmt.Errorf("outlier_ratio must be in [0, 1), got %f", *c.OutlierRatio)
		}
	}
	if c.Resolution != nil && *c.Resolution <= 0 {
		return fmt.Errorf("resolution must be positive, got %f", *c.Resolution)
	}
	if c.StepSize != nil && *c.StepSize <= 0 {
		return fmt.Errorf("step_size must be positive, got %f", *c.StepSize)
	}
	if c.TransformationEpsilon != nil && *c.TransformationEpsilon <= 0 {
		return fmt.Errorf("transformation_epsilon must be positive, got %f", *c.TransformationEpsilon)
	}
	if c.MaxIterations != nil && *c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be non-negative, got %d", *c.MaxIterations)
	}
	return nil
}

// MatcherOptions converts the set fields into matcher options.
func (c *TuningConfig) MatcherOptions() []ndt.Option {
	var opts []ndt.Option
	if c.OutlierRatio != nil {
		opts = append(opts, ndt.WithOutlierRatio(*c.OutlierRatio))
	}
	if c.Resolution != nil {
		opts = append(opts, ndt.WithResolution(*c.Resolution))
	}
	if c.StepSize != nil {
		opts = append(opts, ndt.WithStepSize(*c.StepSize))
	}
	if c.TransformationEpsilon != nil {
		opts = append(opts, ndt.WithTransformationEpsilon(*c.TransformationEpsilon))
	}
	if c.MaxIterations != nil {
		opts = append(opts, ndt.WithMaxIterations(*c.MaxIterations))
	}
	if c.ColumnTranslationSeed != nil && *c.ColumnTranslationSeed {
		opts = append(opts, ndt.WithColumnTranslationSeed())
	}
	return opts
}

// JSON serialises the config for persistence alongside run results.
func (c *TuningConfig) JSON() json.RawMessage {
	data, err := json.Marshal(c)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
