package sim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pthm-cable/freemesh/config"
	"github.com/pthm-cable/freemesh/systems"
	"github.com/pthm-cable/freemesh/telemetry"
)

// memSink collects records in memory.
type memSink struct {
	mu      sync.Mutex
	records []telemetry.Record
}

func (m *memSink) Append(r telemetry.Record) error {
	m.mu.Lock()
	m.records = append(m.records, r)
	m.mu.Unlock()
	return nil
}

// failSink rejects every append after the first n.
type failSink struct {
	mu sync.Mutex
	n  int
}

var errSinkBroken = errors.New("sink broken")

func (f *failSink) Append(telemetry.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n <= 0 {
		return errSinkBroken
	}
	f.n--
	return nil
}

func quietOptions(workers int) Options {
	return Options{
		Workers: workers,
		Logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
}

// referenceConfig is the 80x80 grid on [0,10]² with u[300] = 0.5.
func referenceConfig() *config.Config {
	cfg := config.Default()
	cfg.Horizon = 3
	cfg.Displacement.Overrides = []config.DisplacementOverride{{Index: 300, Value: 0.5}}
	cfg.ComputeDerived()
	return cfg
}

func runConfig(t *testing.T, cfg *config.Config, workers int) (*Simulation, *memSink) {
	t.Helper()
	s, err := New(cfg, quietOptions(workers))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	sink := &memSink{}
	if _, err := s.Run(context.Background(), sink); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	return s, sink
}

func TestTrivialGridZeroDisplacement(t *testing.T) {
	cfg := config.Default()
	cfg.Grid.NX, cfg.Grid.NY = 2, 2
	cfg.Horizon = 5
	cfg.Displacement.Overrides = nil
	cfg.ComputeDerived()

	s, sink := runConfig(t, cfg, 1)

	c := 6 * 175 / (math.Pi * 125)
	for i, w := range s.Energy() {
		if math.Abs(w-c) > 1e-12 {
			t.Errorf("W[%d] = %v, want c = %v", i, w, c)
		}
	}
	if len(sink.records) != 4 {
		t.Errorf("records = %d, want 4", len(sink.records))
	}
}

func TestGridIndexOrdering(t *testing.T) {
	cfg := config.Default()
	cfg.Grid.NX, cfg.Grid.NY = 3, 4
	cfg.Displacement.Overrides = nil
	cfg.ComputeDerived()

	s, err := New(cfg, quietOptions(1))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	store := s.Store()
	dx, dy := 10.0/3, 10.0/4
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			p := store.Position(i*4 + j)
			if math.Abs(p.X-dx*float64(i)) > 1e-12 || math.Abs(p.Y-dy*float64(j)) > 1e-12 {
				t.Errorf("point %d at (%v, %v), want (%v, %v)", i*4+j, p.X, p.Y, dx*float64(i), dy*float64(j))
			}
		}
	}
}

func TestSinglePerturbedPoint(t *testing.T) {
	cfg := referenceConfig()
	s, _ := runConfig(t, cfg, 0)

	base := referenceConfig()
	base.Displacement.Overrides = nil
	unperturbed, _ := runConfig(t, base, 0)

	store := s.Store()
	p300 := store.Position(300)
	for i, w := range s.Energy() {
		if w <= 0 {
			t.Fatalf("W[%d] = %v, want > 0", i, w)
		}
		d := systems.BondLength(store, i, 300)
		w0 := unperturbed.Energy()[i]
		switch {
		case i == 300:
			// Bonds of the moved point itself shorten or stretch, so only a change is guaranteed
			if w == w0 {
				t.Errorf("W[300] = %v, want different from unperturbed", w)
			}
		case d <= cfg.Horizon:
			if !(w > w0) {
				t.Errorf("W[%d] = %v at distance %v from %v, want > unperturbed %v", i, w, d, p300, w0)
			}
		default:
			if w != w0 {
				t.Errorf("W[%d] = %v outside horizon of 300, want unperturbed %v", i, w, w0)
			}
		}
	}
}

func TestHorizonBelowSpacing(t *testing.T) {
	cfg := referenceConfig()
	cfg.Horizon = 0.05
	cfg.ComputeDerived()

	s, _ := runConfig(t, cfg, 0)
	for i, w := range s.Energy() {
		if w != 0 {
			t.Fatalf("W[%d] = %v, want 0", i, w)
		}
	}
}

func TestOutputLineCount(t *testing.T) {
	cfg := referenceConfig()
	path := filepath.Join(t.TempDir(), "raw_data.txt")

	sink, err := telemetry.CreateRecordSink(path)
	if err != nil {
		t.Fatalf("CreateRecordSink error: %v", err)
	}
	s, err := New(cfg, quietOptions(4))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, err := s.Run(context.Background(), sink); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	records, err := telemetry.ReadRecordFile(path)
	if err != nil {
		t.Fatalf("ReadRecordFile error: %v", err)
	}
	if len(records) != 6400 {
		t.Fatalf("lines = %d, want 6400", len(records))
	}

	// Every point appears once with its own energy
	telemetry.SortRecords(records)
	for k := 1; k < len(records); k++ {
		a, b := records[k-1], records[k]
		if a.X == b.X && a.Y == b.Y {
			t.Fatalf("duplicate point (%v, %v)", a.X, a.Y)
		}
	}
}

func TestDeterministicPerIndex(t *testing.T) {
	first, _ := runConfig(t, referenceConfig(), 0)
	second, _ := runConfig(t, referenceConfig(), 0)

	if first.Energy()[300] != second.Energy()[300] {
		t.Errorf("W[300] differs across runs: %v vs %v", first.Energy()[300], second.Energy()[300])
	}
}

func TestSerialMatchesParallel(t *testing.T) {
	cfg := referenceConfig()
	cfg.Grid.NX, cfg.Grid.NY = 30, 30
	cfg.Horizon = 1.2
	cfg.Displacement.Noise = config.NoiseConfig{Amplitude: 0.2, Scale: 3, Seed: 7}
	cfg.ComputeDerived()

	serial, _ := runConfig(t, cfg, 1)
	parallel, sink := runConfig(t, cfg, 8)

	if len(sink.records) != 900 {
		t.Fatalf("records = %d, want 900", len(sink.records))
	}
	for i := range serial.Energy() {
		if serial.Energy()[i] != parallel.Energy()[i] {
			t.Fatalf("W[%d]: serial %v != parallel %v", i, serial.Energy()[i], parallel.Energy()[i])
		}
	}
}

func TestStrategiesAgree(t *testing.T) {
	cfg := referenceConfig()
	cfg.Grid.NX, cfg.Grid.NY = 20, 20
	cfg.Horizon = 1.5
	cfg.Displacement.Overrides = []config.DisplacementOverride{{Index: 55, Value: 0.3}}
	cfg.ComputeDerived()

	grid, _ := runConfig(t, cfg, 2)

	cfg.Neighbors.Strategy = config.NeighborsBruteForce
	brute, _ := runConfig(t, cfg, 2)

	for i := range grid.Energy() {
		if grid.Energy()[i] != brute.Energy()[i] {
			t.Fatalf("W[%d]: grid %v != brute force %v", i, grid.Energy()[i], brute.Energy()[i])
		}
	}
}

func TestRunResultStats(t *testing.T) {
	cfg := config.Default()
	cfg.Grid.NX, cfg.Grid.NY = 2, 2
	cfg.Horizon = 5
	cfg.Displacement.Overrides = nil
	cfg.ComputeDerived()

	s, err := New(cfg, quietOptions(1))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	res, err := s.Run(context.Background(), &memSink{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	c := 6 * 175 / (math.Pi * 125)
	if res.Field.Count != 4 || res.Field.Nonzero != 4 {
		t.Errorf("count/nonzero = %d/%d, want 4/4", res.Field.Count, res.Field.Nonzero)
	}
	if math.Abs(res.Field.Total-4*c) > 1e-9 {
		t.Errorf("total = %v, want %v", res.Field.Total, 4*c)
	}
	if _, ok := res.Perf.Phases[telemetry.PhaseKernel]; !ok {
		t.Error("perf stats missing kernel phase")
	}
}

func TestInvalidGeometryRejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"zero nx", func(c *config.Config) { c.Grid.NX = 0 }},
		{"zero ny", func(c *config.Config) { c.Grid.NY = 0 }},
		{"zero horizon", func(c *config.Config) { c.Horizon = 0 }},
		{"infinite x_max", func(c *config.Config) { c.Domain.XMax = math.Inf(1) }},
		{"NaN y_min", func(c *config.Config) { c.Domain.YMin = math.NaN() }},
		{"zero volume", func(c *config.Config) { c.Grid.Volume = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Grid.NX, cfg.Grid.NY = 4, 4
			cfg.Displacement.Overrides = nil
			tt.mutate(cfg)
			_, err := New(cfg, quietOptions(1))
			if !errors.Is(err, config.ErrInvalidGeometry) {
				t.Errorf("New() error = %v, want ErrInvalidGeometry", err)
			}
		})
	}
}

func TestInvalidMaterialRejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"poisson above half", func(c *config.Config) { c.Material.PoissonsRatio = 0.6 }},
		{"negative youngs modulus", func(c *config.Config) { c.Material.YoungsModulus = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Grid.NX, cfg.Grid.NY = 2, 2
			cfg.Horizon = 5
			cfg.Displacement.Overrides = nil
			tt.mutate(cfg)
			_, err := New(cfg, quietOptions(1))
			if !errors.Is(err, config.ErrInvalidMaterial) {
				t.Errorf("New() error = %v, want ErrInvalidMaterial", err)
			}
		})
	}
}

func TestNonFiniteEnergyAborts(t *testing.T) {
	cfg := config.Default()
	cfg.Grid.NX, cfg.Grid.NY = 10, 10
	cfg.Horizon = 2
	// s² overflows for every bond of point 0
	cfg.Displacement.Overrides = []config.DisplacementOverride{{Index: 0, Value: 1e200}}

	s, err := New(cfg, quietOptions(2))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	_, err = s.Run(context.Background(), &memSink{})
	if !errors.Is(err, systems.ErrNonFiniteEnergy) {
		t.Errorf("Run() error = %v, want ErrNonFiniteEnergy", err)
	}
}

func TestSinkErrorAborts(t *testing.T) {
	cfg := referenceConfig()
	cfg.Grid.NX, cfg.Grid.NY = 20, 20
	cfg.Displacement.Overrides = nil
	cfg.ComputeDerived()

	for _, workers := range []int{1, 4} {
		s, err := New(cfg, quietOptions(workers))
		if err != nil {
			t.Fatalf("New error: %v", err)
		}
		_, err = s.Run(context.Background(), &failSink{n: 10})
		if !errors.Is(err, errSinkBroken) {
			t.Errorf("workers=%d: Run() error = %v, want errSinkBroken", workers, err)
		}
	}
}

func TestRunCancelled(t *testing.T) {
	cfg := referenceConfig()
	s, err := New(cfg, quietOptions(4))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Run(ctx, &memSink{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestExistingSinkPathRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw_data.txt")
	if err := os.WriteFile(path, []byte("keep\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := telemetry.CreateRecordSink(path); !errors.Is(err, telemetry.ErrSinkAlreadyExists) {
		t.Errorf("CreateRecordSink() error = %v, want ErrSinkAlreadyExists", err)
	}
}
