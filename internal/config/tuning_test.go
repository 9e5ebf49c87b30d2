package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmptyConfigUsesDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetStatNeighbors(); got != DefaultStatNeighbors {
		t.Errorf("GetStatNeighbors() = %d, want %d", got, DefaultStatNeighbors)
	}
	if got := cfg.GetStatStdRatio(); got != DefaultStatStdRatio {
		t.Errorf("GetStatStdRatio() = %g, want %g", got, DefaultStatStdRatio)
	}
	if got := cfg.GetRadiusMinPoints(); got != DefaultRadiusMinPoints {
		t.Errorf("GetRadiusMinPoints() = %d, want %d", got, DefaultRadiusMinPoints)
	}
	if got := cfg.GetRadiusRadius(); got != DefaultRadiusRadius {
		t.Errorf("GetRadiusRadius() = %g, want %g", got, DefaultRadiusRadius)
	}
	if got := cfg.GetMinCleanedPoints(); got != DefaultMinCleanedPoints {
		t.Errorf("GetMinCleanedPoints() = %d, want %d", got, DefaultMinCleanedPoints)
	}
	if got := cfg.GetPoissonDepth(); got != DefaultPoissonDepth {
		t.Errorf("GetPoissonDepth() = %d, want %d", got, DefaultPoissonDepth)
	}
	if got := cfg.GetDensityQuantile(); got != DefaultDensityQuantile {
		t.Errorf("GetDensityQuantile() = %g, want %g", got, DefaultDensityQuantile)
	}
	if got := cfg.GetArtifactRetention(); got != 15*time.Minute {
		t.Errorf("GetArtifactRetention() = %v, want 15m", got)
	}
	if got := cfg.GetReaperInterval(); got != time.Minute {
		t.Errorf("GetReaperInterval() = %v, want 1m", got)
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.json")
	content := `{
		"stat_neighbors": 40,
		"poisson_depth": 7,
		"artifact_retention": "30m"
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}

	// Set fields override, unset fields keep defaults.
	if got := cfg.GetStatNeighbors(); got != 40 {
		t.Errorf("GetStatNeighbors() = %d, want 40", got)
	}
	if got := cfg.GetPoissonDepth(); got != 7 {
		t.Errorf("GetPoissonDepth() = %d, want 7", got)
	}
	if got := cfg.GetArtifactRetention(); got != 30*time.Minute {
		t.Errorf("GetArtifactRetention() = %v, want 30m", got)
	}
	if got := cfg.GetStatStdRatio(); got != DefaultStatStdRatio {
		t.Errorf("GetStatStdRatio() = %g, want default %g", got, DefaultStatStdRatio)
	}
	if got := cfg.GetRadiusRadius(); got != DefaultRadiusRadius {
		t.Errorf("GetRadiusRadius() = %g, want default %g", got, DefaultRadiusRadius)
	}
}

func TestLoadTuningConfigRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	writeFile := func(name, content string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
		return path
	}

	tests := []struct {
		name string
		path string
	}{
		{"wrong extension", writeFile("tuning.yaml", "{}")},
		{"missing file", filepath.Join(dir, "absent.json")},
		{"malformed json", writeFile("bad.json", "{not json")},
		{"negative neighbors", writeFile("neg.json", `{"stat_neighbors": -1}`)},
		{"zero radius", writeFile("zero.json", `{"radius_radius": 0}`)},
		{"quantile out of range", writeFile("quant.json", `{"density_quantile": 1.5}`)},
		{"bad retention", writeFile("ret.json", `{"artifact_retention": "soon"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadTuningConfig(tt.path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestValidateAcceptsEmptyConfig(t *testing.T) {
	if err := EmptyTuningConfig().Validate(); err != nil {
		t.Fatalf("Validate() on empty config: %v", err)
	}
}

func TestMustLoadDefaultConfigMatchesCodeDefaults(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	// The shipped defaults file must agree with the fallback constants so a
	// deployment with or without the file behaves identically.
	if got := cfg.GetStatNeighbors(); got != DefaultStatNeighbors {
		t.Errorf("defaults file stat_neighbors = %d, want %d", got, DefaultStatNeighbors)
	}
	if got := cfg.GetRadiusRadius(); got != DefaultRadiusRadius {
		t.Errorf("defaults file radius_radius = %g, want %g", got, DefaultRadiusRadius)
	}
	if got := cfg.GetPoissonDepth(); got != DefaultPoissonDepth {
		t.Errorf("defaults file poisson_depth = %d, want %d", got, DefaultPoissonDepth)
	}
	if got := cfg.GetSmoothIterations(); got != DefaultSmoothIterations {
		t.Errorf("defaults file smooth_iterations = %d, want %d", got, DefaultSmoothIterations)
	}
	if got := cfg.GetMaxHoleEdges(); got != DefaultMaxHoleEdges {
		t.Errorf("defaults file max_hole_edges = %d, want %d", got, DefaultMaxHoleEdges)
	}
}
