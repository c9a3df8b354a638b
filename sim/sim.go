// Package sim drives a single energy density evaluation: it builds the point
// cloud, indexes horizon families and evaluates every point in parallel.
package sim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pthm-cable/freemesh/config"
	"github.com/pthm-cable/freemesh/systems"
	"github.com/pthm-cable/freemesh/telemetry"
)

// Sink receives one record per evaluated point. Append may be called from
// several goroutines at once.
type Sink interface {
	Append(r telemetry.Record) error
}

// Options configures a simulation beyond the loaded config.
type Options struct {
	Workers int          // Overrides run.workers when > 0
	Logger  *slog.Logger // Defaults to slog.Default()
}

// Result summarizes a finished run.
type Result struct {
	Field telemetry.FieldStats
	Perf  telemetry.PerfStats
}

// Simulation holds the immutable point cloud and the energy field of a run.
type Simulation struct {
	cfg    *config.Config
	logger *slog.Logger

	store  *systems.Store
	kernel *systems.Kernel
	energy []float64

	parallel *parallelState
	perf     *telemetry.PerfCollector
}

// New validates the config, builds the point cloud and its neighbor index.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	cfg.ComputeDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Run.Workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}

	s := &Simulation{
		cfg:      cfg,
		logger:   logger,
		parallel: newParallelState(workers, cfg.Run.ChunkSize),
		perf:     telemetry.NewPerfCollector(),
	}

	s.perf.StartRun()
	s.perf.StartPhase(telemetry.PhaseBuild)
	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.energy = make([]float64, store.Len())

	s.perf.StartPhase(telemetry.PhaseNeighbor)
	var finder systems.NeighborFinder
	switch cfg.Neighbors.Strategy {
	case config.NeighborsBruteForce:
		finder = systems.NewBruteForce(store)
	default:
		finder = systems.NewSpatialGrid(store, cfg.Horizon)
	}

	mode := systems.MicromodulusHorizon
	if cfg.Material.Micromodulus == config.MicromodulusFamilyVolume {
		mode = systems.MicromodulusFamilyVolume
	}
	s.kernel = systems.NewKernel(store, finder, systems.KernelParams{
		Horizon:      cfg.Horizon,
		BulkModulus:  cfg.Derived.BulkModulus,
		Micromodulus: cfg.Derived.Micromodulus,
		Mode:         mode,
	})

	logger.Info("point cloud built",
		"points", store.Len(),
		"nx", cfg.Grid.NX,
		"ny", cfg.Grid.NY,
		"horizon", cfg.Horizon,
		"strategy", cfg.Neighbors.Strategy,
		"micromodulus", cfg.Material.Micromodulus,
		"workers", s.parallel.numWorkers,
	)

	return s, nil
}

// buildStore spawns the grid in an ECS world, applies the displacement
// assignment and snapshots it into a dense store.
func buildStore(cfg *config.Config) (*systems.Store, error) {
	pw := newPointWorld()
	pw.spawnGrid(cfg.Grid.NX, cfg.Grid.NY,
		cfg.Domain.XMin, cfg.Domain.YMin,
		cfg.Derived.DX, cfg.Derived.DY,
		cfg.Grid.Volume)

	noise := cfg.Displacement.Noise
	if noise.Amplitude != 0 {
		pw.applyProfile(systems.NewNoiseProfile(noise.Seed, noise.Amplitude, noise.Scale))
	}
	for _, o := range cfg.Displacement.Overrides {
		pw.setDisplacement(o.Index, o.Value)
	}

	store, err := pw.snapshot()
	if err != nil {
		return nil, fmt.Errorf("building point cloud: %w", err)
	}
	return store, nil
}

// Run evaluates the energy density of every point and appends one record
// per point to sink. Record order is unspecified when running in parallel.
// The first kernel or sink error aborts the run. Call Run once per Simulation.
func (s *Simulation) Run(ctx context.Context, sink Sink) (Result, error) {
	n := len(s.energy)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.perf.StartPhase(telemetry.PhaseKernel)
	var err error
	if n < parallelThreshold || s.parallel.numWorkers == 1 {
		err = s.computeChunk(0, n, &s.parallel.scratches[0], sink)
	} else {
		err = s.computeParallel(ctx, sink)
	}
	if err != nil {
		s.perf.EndRun()
		return Result{}, err
	}

	s.perf.StartPhase(telemetry.PhaseSummary)
	field := telemetry.ComputeFieldStats(s.energy)
	s.perf.EndRun()

	res := Result{Field: field, Perf: s.perf.Stats(n)}
	s.logger.Info("energy field", "stats", res.Field)
	s.logger.Info("perf", "stats", res.Perf)
	return res, nil
}

// Energy returns the energy field indexed by point index.
// Valid after a successful Run.
func (s *Simulation) Energy() []float64 {
	return s.energy
}

// Store returns the immutable point cloud.
func (s *Simulation) Store() *systems.Store {
	return s.store
}

// Workers returns the resolved worker count.
func (s *Simulation) Workers() int {
	return s.parallel.numWorkers
}
