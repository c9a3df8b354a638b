// Package config provides configuration loading and access for the energy density run.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var (
	// ErrInvalidGeometry is returned when the grid or horizon cannot describe a point cloud.
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrInvalidDisplacement is returned when a displacement override names a point that does not exist.
	ErrInvalidDisplacement = errors.New("invalid displacement")
	// ErrInvalidMaterial is returned when the elastic constants give a non-positive micromodulus.
	ErrInvalidMaterial = errors.New("invalid material")
)

// Micromodulus modes.
const (
	MicromodulusHorizon      = "horizon"       // c = 6K / (π δ³), shared by all points
	MicromodulusFamilyVolume = "family_volume" // c_i = 18K / Σ V_j over the family of i
)

// Neighbor enumeration strategies.
const (
	NeighborsGrid       = "grid"
	NeighborsBruteForce = "brute_force"
)

// Config holds all run configuration parameters.
type Config struct {
	Domain       DomainConfig       `yaml:"domain"`
	Grid         GridConfig         `yaml:"grid"`
	Material     MaterialConfig     `yaml:"material"`
	Horizon      float64            `yaml:"horizon"`
	Displacement DisplacementConfig `yaml:"displacement"`
	Neighbors    NeighborsConfig    `yaml:"neighbors"`
	Run          RunConfig          `yaml:"run"`
	Output       OutputConfig       `yaml:"output"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// DomainConfig holds the rectangular extents of the body.
type DomainConfig struct {
	XMin float64 `yaml:"x_min"`
	XMax float64 `yaml:"x_max"`
	YMin float64 `yaml:"y_min"`
	YMax float64 `yaml:"y_max"`
}

// GridConfig holds point counts per axis and the per-point volume.
type GridConfig struct {
	NX     int     `yaml:"nx"`
	NY     int     `yaml:"ny"`
	Volume float64 `yaml:"volume"` // Volume carried by every point
}

// MaterialConfig holds elastic constants.
type MaterialConfig struct {
	YoungsModulus float64 `yaml:"youngs_modulus"`
	PoissonsRatio float64 `yaml:"poissons_ratio"`
	Micromodulus  string  `yaml:"micromodulus"` // horizon | family_volume
}

// DisplacementOverride assigns a displacement to a single point index.
type DisplacementOverride struct {
	Index int     `yaml:"index"`
	Value float64 `yaml:"value"`
}

// NoiseConfig describes a smooth synthetic displacement profile.
type NoiseConfig struct {
	Amplitude float64 `yaml:"amplitude"` // 0 disables the profile
	Scale     float64 `yaml:"scale"`     // Length scale of the noise features
	Seed      int64   `yaml:"seed"`
}

// DisplacementConfig holds the initial scalar displacement assignment.
// The noise profile is applied first; overrides win.
type DisplacementConfig struct {
	Overrides []DisplacementOverride `yaml:"overrides"`
	Noise     NoiseConfig            `yaml:"noise"`
}

// NeighborsConfig selects how horizon families are enumerated.
type NeighborsConfig struct {
	Strategy string `yaml:"strategy"` // grid | brute_force
}

// RunConfig holds parallel execution parameters.
type RunConfig struct {
	Workers   int `yaml:"workers"`    // 0 = GOMAXPROCS
	ChunkSize int `yaml:"chunk_size"` // Points handed to a worker per pull
}

// OutputConfig holds output destinations.
type OutputConfig struct {
	Path       string `yaml:"path"`        // Record file, created new
	SummaryDir string `yaml:"summary_dir"` // Config snapshot + summary.csv (empty = disabled)
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	N            int     // NX * NY
	DX, DY       float64 // Grid spacing
	BulkModulus  float64 // K = E / (3 - 6ν)
	Micromodulus float64 // c = 6K / (π δ³)
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.ComputeDerived()

	return cfg, nil
}

// ComputeDerived calculates values derived from the loaded config.
// Call it again after changing fields programmatically.
func (c *Config) ComputeDerived() {
	if c.Material.Micromodulus == "" {
		c.Material.Micromodulus = MicromodulusHorizon
	}
	if c.Neighbors.Strategy == "" {
		c.Neighbors.Strategy = NeighborsGrid
	}
	if c.Run.ChunkSize <= 0 {
		c.Run.ChunkSize = 64
	}

	c.Derived.N = c.Grid.NX * c.Grid.NY
	if c.Grid.NX > 0 {
		c.Derived.DX = (c.Domain.XMax - c.Domain.XMin) / float64(c.Grid.NX)
	}
	if c.Grid.NY > 0 {
		c.Derived.DY = (c.Domain.YMax - c.Domain.YMin) / float64(c.Grid.NY)
	}

	c.Derived.BulkModulus = c.Material.YoungsModulus / (3 - 6*c.Material.PoissonsRatio)
	c.Derived.Micromodulus = 6 * c.Derived.BulkModulus / (math.Pi * c.Horizon * c.Horizon * c.Horizon)
}

// Validate rejects configurations that cannot be run.
func (c *Config) Validate() error {
	if c.Grid.NX <= 0 || c.Grid.NY <= 0 {
		return fmt.Errorf("%w: grid counts must be positive, got nx=%d ny=%d", ErrInvalidGeometry, c.Grid.NX, c.Grid.NY)
	}
	if !(c.Horizon > 0) || math.IsInf(c.Horizon, 1) {
		return fmt.Errorf("%w: horizon must be positive, got %g", ErrInvalidGeometry, c.Horizon)
	}
	d := c.Domain
	if !isFinite(d.XMin) || !isFinite(d.XMax) || !isFinite(d.YMin) || !isFinite(d.YMax) {
		return fmt.Errorf("%w: domain [%g, %g] x [%g, %g] is not finite",
			ErrInvalidGeometry, d.XMin, d.XMax, d.YMin, d.YMax)
	}
	if d.XMax < d.XMin || d.YMax < d.YMin {
		return fmt.Errorf("%w: domain [%g, %g] x [%g, %g] is inverted",
			ErrInvalidGeometry, d.XMin, d.XMax, d.YMin, d.YMax)
	}
	if !isFinite(c.Derived.DX) || !isFinite(c.Derived.DY) {
		return fmt.Errorf("%w: grid spacing (%g, %g) is not finite", ErrInvalidGeometry, c.Derived.DX, c.Derived.DY)
	}
	if !(c.Grid.Volume > 0) || math.IsInf(c.Grid.Volume, 1) {
		return fmt.Errorf("%w: point volume must be positive and finite, got %g", ErrInvalidGeometry, c.Grid.Volume)
	}

	m := c.Material
	if !(m.YoungsModulus > 0) || math.IsInf(m.YoungsModulus, 1) {
		return fmt.Errorf("%w: Young's modulus must be positive and finite, got %g", ErrInvalidMaterial, m.YoungsModulus)
	}
	if !(m.PoissonsRatio < 0.5) || math.IsInf(m.PoissonsRatio, -1) {
		return fmt.Errorf("%w: Poisson's ratio must be below 0.5, got %g", ErrInvalidMaterial, m.PoissonsRatio)
	}
	if mu := c.Derived.Micromodulus; !isFinite(mu) || mu < 0 {
		return fmt.Errorf("%w: micromodulus %g is not a finite non-negative value", ErrInvalidMaterial, mu)
	}

	n := c.Grid.NX * c.Grid.NY
	for _, o := range c.Displacement.Overrides {
		if o.Index < 0 || o.Index >= n {
			return fmt.Errorf("%w: override index %d outside [0, %d)", ErrInvalidDisplacement, o.Index, n)
		}
		if !isFinite(o.Value) {
			return fmt.Errorf("%w: override %d has value %g", ErrInvalidDisplacement, o.Index, o.Value)
		}
	}
	if c.Displacement.Noise.Amplitude != 0 && !(c.Displacement.Noise.Scale > 0) {
		return fmt.Errorf("%w: noise scale must be positive, got %g", ErrInvalidDisplacement, c.Displacement.Noise.Scale)
	}

	switch c.Material.Micromodulus {
	case MicromodulusHorizon, MicromodulusFamilyVolume:
	default:
		return fmt.Errorf("unknown micromodulus mode %q", c.Material.Micromodulus)
	}
	switch c.Neighbors.Strategy {
	case NeighborsGrid, NeighborsBruteForce:
	default:
		return fmt.Errorf("unknown neighbor strategy %q", c.Neighbors.Strategy)
	}
	if c.Run.Workers < 0 {
		return fmt.Errorf("worker count must not be negative, got %d", c.Run.Workers)
	}

	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
