// Package config provides configuration loading and management for rmsf.
// It handles loading configuration from YAML files, provides default values
// and validates the record once before a run starts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"rmsf/internal/models"
)

// Distance scales accepted by Binning.Scale
const (
	ScaleLinear = "linear"
	ScaleLog10  = "log10"
)

// Aggregation policies accepted by Statistic.Policy
const (
	PolicySquared    = "squared"
	PolicyAbsolute   = "absolute"
	PolicyDifference = "difference"
)

// Noise corrections accepted by Statistic.NoiseCorrection
const (
	NoiseNone     = "none"
	NoiseSubtract = "subtract"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input rasters and mask parameters
	Input struct {
		// FaradayDepth is the path of the Faraday depth (RM) map
		FaradayDepth string `yaml:"faradayDepth"`

		// Error is the path of the RM error map
		Error string `yaml:"error"`

		// PolarizedIntensity is the optional path of the mask image
		PolarizedIntensity string `yaml:"polarizedIntensity"`

		// Threshold is the minimum polarized intensity of a valid pixel.
		// It is only used together with PolarizedIntensity.
		Threshold *float64 `yaml:"threshold"`

		// PixelList is an existing pixel table to bin instead of the rasters
		PixelList string `yaml:"pixelList"`
	} `yaml:"input"`

	// Dataset holds per-telescope conventions
	Dataset struct {
		// WrapRA adds 360 degrees to right ascensions below WrapBelow (WSRT data)
		WrapRA bool `yaml:"wrapRA"`

		// WrapBelow is the RA limit in degrees for WrapRA
		WrapBelow float64 `yaml:"wrapBelow"`
	} `yaml:"dataset"`

	// Binning parameters for the structure function
	Binning struct {
		// Start is the lower edge of the first bin
		Start float64 `yaml:"start"`

		// Count is the number of bins
		Count int `yaml:"count"`

		// Size is the width of one bin
		Size float64 `yaml:"size"`

		// Scale is "linear" (degrees) or "log10" (log10 of degrees)
		Scale string `yaml:"scale"`
	} `yaml:"binning"`

	// Statistic selects the pair statistic
	Statistic struct {
		// Policy is "squared", "absolute" or "difference"
		Policy string `yaml:"policy"`

		// NoiseCorrection is "subtract" or "none"
		NoiseCorrection string `yaml:"noiseCorrection"`
	} `yaml:"statistic"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many goroutines bin sample pairs
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Dir is the directory every output file is written to
		Dir string `yaml:"dir"`

		// MaskedImage is the file name of the masked Faraday depth map
		MaskedImage string `yaml:"maskedImage"`

		// MaskedError is the file name of the masked RM error map
		MaskedError string `yaml:"maskedError"`

		// PixelList is the file name of the valid pixel table
		PixelList string `yaml:"pixelList"`

		// BinTable is the file name of the binned structure function
		BinTable string `yaml:"binTable"`

		// Plot is the file name of the structure function plot
		Plot string `yaml:"plot"`

		// Reference is an optional reference curve overlaid on the plot
		Reference string `yaml:"reference"`

		// Quicklook is an optional PNG preview of the masked map
		Quicklook string `yaml:"quicklook"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Dataset.WrapRA = false
	cfg.Dataset.WrapBelow = 360

	// Log10 binning from 10^-2.5 to 10^-0.5 degrees
	cfg.Binning.Start = -2.5
	cfg.Binning.Count = 20
	cfg.Binning.Size = 0.1
	cfg.Binning.Scale = ScaleLog10

	cfg.Statistic.Policy = PolicySquared
	cfg.Statistic.NoiseCorrection = NoiseSubtract

	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Output.Dir = "."
	cfg.Output.MaskedImage = "maskedFD.FITS"
	cfg.Output.MaskedError = "maskedRMErrorMap.FITS"
	cfg.Output.PixelList = "validPixelList.txt"
	cfg.Output.BinTable = "plotPoints.txt"
	cfg.Output.Plot = "structureFunction.png"
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig reads a run configuration on top of the defaults. Keys missing
// from the file keep their default value; a missing file gives the defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rmsf config %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("rmsf config %s: %v: %w", configPath, err, models.ErrInvalidParameter)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML, creating the parent directory
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("rmsf config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding rmsf config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("rmsf config %s: %w", configPath, err)
	}
	return nil
}

// CreateDefaultConfigFile writes a template holding the default binning,
// statistic and output names; input paths are left empty
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// UsesThresholdMask reports whether both halves of the intensity mask are set
func (c *Config) UsesThresholdMask() bool {
	return c.Input.PolarizedIntensity != "" && c.Input.Threshold != nil
}

// OutputPath joins a configured output file name with the output directory.
// An empty name stays empty.
func (c *Config) OutputPath(name string) string {
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Output.Dir, name)
}

// Validate checks the record once, before any file is touched
func (c *Config) Validate() error {
	if c.Input.PixelList == "" {
		if c.Input.FaradayDepth == "" {
			return fmt.Errorf("faraday depth image was not specified: %w", models.ErrMissingInput)
		}
		if c.Input.Error == "" {
			return fmt.Errorf("an RM error map must be specified: %w", models.ErrMissingInput)
		}
	}
	if c.Binning.Count <= 0 {
		return fmt.Errorf("bin count %d must be positive: %w", c.Binning.Count, models.ErrInvalidParameter)
	}
	if !(c.Binning.Size > 0) {
		return fmt.Errorf("bin size %g must be positive: %w", c.Binning.Size, models.ErrInvalidParameter)
	}
	switch c.Binning.Scale {
	case ScaleLinear, ScaleLog10:
	default:
		return fmt.Errorf("unknown distance scale %q: %w", c.Binning.Scale, models.ErrInvalidParameter)
	}
	switch c.Statistic.Policy {
	case PolicySquared, PolicyAbsolute, PolicyDifference:
	default:
		return fmt.Errorf("unknown statistic policy %q: %w", c.Statistic.Policy, models.ErrInvalidParameter)
	}
	switch c.Statistic.NoiseCorrection {
	case NoiseNone, NoiseSubtract:
	default:
		return fmt.Errorf("unknown noise correction %q: %w", c.Statistic.NoiseCorrection, models.ErrInvalidParameter)
	}
	// zero or negative selects every available core
	if c.Processing.NumCores < 1 {
		c.Processing.NumCores = runtime.NumCPU()
	}
	return nil
}
