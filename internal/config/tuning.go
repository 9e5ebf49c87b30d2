// Package config loads the cleanup tuning parameters from JSON. Fields
// omitted from the file fall back to defaults chosen for face-scale depth
// camera scans, so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root tuning configuration. All fields are optional;
// the Get* accessors supply defaults for unset fields.
type TuningConfig struct {
	// Point-cloud cleaning params
	StatNeighbors    *int     `json:"stat_neighbors,omitempty"`
	StatStdRatio     *float64 `json:"stat_std_ratio,omitempty"`
	RadiusMinPoints  *int     `json:"radius_min_points,omitempty"`
	RadiusRadius     *float64 `json:"radius_radius,omitempty"`
	MinCleanedPoints *int     `json:"min_cleaned_points,omitempty"`

	// Reconstruction params
	NormalRadius       *float64 `json:"normal_radius,omitempty"`
	NormalMaxNeighbors *int     `json:"normal_max_neighbors,omitempty"`
	OrientNeighbors    *int     `json:"orient_neighbors,omitempty"`
	PoissonDepth       *int     `json:"poisson_depth,omitempty"`
	PoissonScale       *float64 `json:"poisson_scale,omitempty"`
	MaxGridResolution  *int     `json:"max_grid_resolution,omitempty"`
	DensityQuantile    *float64 `json:"density_quantile,omitempty"`

	// Mesh cleaning params
	SmoothIterations *int `json:"smooth_iterations,omitempty"`
	MaxHoleEdges     *int `json:"max_hole_edges,omitempty"`

	// Artifact retention params
	ArtifactRetention *string `json:"artifact_retention,omitempty"` // duration string like "15m"
	ReaperInterval    *string `json:"reaper_interval,omitempty"`    // duration string like "1m"
}

// Default tuning values. The outlier and reconstruction defaults match the
// parameters the service has always shipped with for TrueDepth face scans.
const (
	DefaultStatNeighbors      = 20
	DefaultStatStdRatio       = 2.0
	DefaultRadiusMinPoints    = 16
	DefaultRadiusRadius       = 0.05 // meters; 5cm for face scans
	DefaultMinCleanedPoints   = 1000
	DefaultNormalRadius       = 0.1
	DefaultNormalMaxNeighbors = 30
	DefaultOrientNeighbors    = 15
	DefaultPoissonDepth       = 9
	DefaultPoissonScale       = 1.1
	DefaultMaxGridResolution  = 128
	DefaultDensityQuantile    = 0.01
	DefaultSmoothIterations   = 5
	DefaultMaxHoleEdges       = 32
	DefaultArtifactRetention  = 15 * time.Minute
	DefaultReaperInterval     = time.Minute
)

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and be under 1MB. Fields omitted from the JSON retain
// their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
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
// DefaultConfigPath, searching upward from the current directory. Panics if
// the file cannot be found; intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that set fields hold sane values.
func (c *TuningConfig) Validate() error {
	positiveInts := []struct {
		name string
		v    *int
	}{
		{"stat_neighbors", c.StatNeighbors},
		{"radius_min_points", c.RadiusMinPoints},
		{"min_cleaned_points", c.MinCleanedPoints},
		{"normal_max_neighbors", c.NormalMaxNeighbors},
		{"orient_neighbors", c.OrientNeighbors},
		{"poisson_depth", c.PoissonDepth},
		{"max_grid_resolution", c.MaxGridResolution},
		{"smooth_iterations", c.SmoothIterations},
		{"max_hole_edges", c.MaxHoleEdges},
	}
	for _, p := range positiveInts {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, *p.v)
		}
	}

	positiveFloats := []struct {
		name string
		v    *float64
	}{
		{"stat_std_ratio", c.StatStdRatio},
		{"radius_radius", c.RadiusRadius},
		{"normal_radius", c.NormalRadius},
		{"poisson_scale", c.PoissonScale},
	}
	for _, p := range positiveFloats {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %g", p.name, *p.v)
		}
	}

	if c.DensityQuantile != nil && (*c.DensityQuantile < 0 || *c.DensityQuantile >= 1) {
		return fmt.Errorf("density_quantile must be in [0,1), got %g", *c.DensityQuantile)
	}
	if c.ArtifactRetention != nil && *c.ArtifactRetention != "" {
		if _, err := time.ParseDuration(*c.ArtifactRetention); err != nil {
			return fmt.Errorf("invalid artifact_retention '%s': %w", *c.ArtifactRetention, err)
		}
	}
	if c.ReaperInterval != nil && *c.ReaperInterval != "" {
		if _, err := time.ParseDuration(*c.ReaperInterval); err != nil {
			return fmt.Errorf("invalid reaper_interval '%s': %w", *c.ReaperInterval, err)
		}
	}
	return nil
}

func (c *TuningConfig) GetStatNeighbors() int {
	if c.StatNeighbors != nil {
		return *c.StatNeighbors
	}
	return DefaultStatNeighbors
}

func (c *TuningConfig) GetStatStdRatio() float64 {
	if c.StatStdRatio != nil {
		return *c.StatStdRatio
	}
	return DefaultStatStdRatio
}

func (c *TuningConfig) GetRadiusMinPoints() int {
	if c.RadiusMinPoints != nil {
		return *c.RadiusMinPoints
	}
	return DefaultRadiusMinPoints
}

func (c *TuningConfig) GetRadiusRadius() float64 {
	if c.RadiusRadius != nil {
		return *c.RadiusRadius
	}
	return DefaultRadiusRadius
}

func (c *TuningConfig) GetMinCleanedPoints() int {
	if c.MinCleanedPoints != nil {
		return *c.MinCleanedPoints
	}
	return DefaultMinCleanedPoints
}

func (c *TuningConfig) GetNormalRadius() float64 {
	if c.NormalRadius != nil {
		return *c.NormalRadius
	}
	return DefaultNormalRadius
}

func (c *TuningConfig) GetNormalMaxNeighbors() int {
	if c.NormalMaxNeighbors != nil {
		return *c.NormalMaxNeighbors
	}
	return DefaultNormalMaxNeighbors
}

func (c *TuningConfig) GetOrientNeighbors() int {
	if c.OrientNeighbors != nil {
		return *c.OrientNeighbors
	}
	return DefaultOrientNeighbors
}

func (c *TuningConfig) GetPoissonDepth() int {
	if c.PoissonDepth != nil {
		return *c.PoissonDepth
	}
	return DefaultPoissonDepth
}

func (c *TuningConfig) GetPoissonScale() float64 {
	if c.PoissonScale != nil {
		return *c.PoissonScale
	}
	return DefaultPoissonScale
}

func (c *TuningConfig) GetMaxGridResolution() int {
	if c.MaxGridResolution != nil {
		return *c.MaxGridResolution
	}
	return DefaultMaxGridResolution
}

func (c *TuningConfig) GetDensityQuantile() float64 {
	if c.DensityQuantile != nil {
		return *c.DensityQuantile
	}
	return DefaultDensityQuantile
}

func (c *TuningConfig) GetSmoothIterations() int {
	if c.SmoothIterations != nil {
		return *c.SmoothIterations
	}
	return DefaultSmoothIterations
}

func (c *TuningConfig) GetMaxHoleEdges() int {
	if c.MaxHoleEdges != nil {
		return *c.MaxHoleEdges
	}
	return DefaultMaxHoleEdges
}

func (c *TuningConfig) GetArtifactRetention() time.Duration {
	if c.ArtifactRetention != nil && *c.ArtifactRetention != "" {
		if d, err := time.ParseDuration(*c.ArtifactRetention); err == nil {
			return d
		}
	}
	return DefaultArtifactRetention
}

func (c *TuningConfig) GetReaperInterval() time.Duration {
	if c.ReaperInterval != nil && *c.ReaperInterval != "" {
		if d, err := time.ParseDuration(*c.ReaperInterval); err == nil {
			return d
		}
	}
	return DefaultReaperInterval
}
