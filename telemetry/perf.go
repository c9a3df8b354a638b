package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for a run.
const (
	PhaseBuild    = "build"    // ECS point cloud, displacement profile, snapshot
	PhaseNeighbor = "neighbor" // spatial index construction
	PhaseKernel   = "kernel"   // parallel energy evaluation + sink appends
	PhaseSummary  = "summary"  // statistics and summary output
)

// PerfCollector tracks wall-clock time per phase of a run.
// It is not safe for concurrent use; the driver owns it.
type PerfCollector struct {
	runStart   time.Time
	phaseStart time.Time
	lastPhase  string
	phases     map[string]time.Duration
	total      time.Duration
}

// NewPerfCollector creates a new performance collector.
func NewPerfCollector() *PerfCollector {
	return &PerfCollector{phases: make(map[string]time.Duration)}
}

// StartRun begins timing a run and discards earlier measurements.
func (p *PerfCollector) StartRun() {
	p.runStart = time.Now()
	p.phases = make(map[string]time.Duration)
	p.lastPhase = ""
	p.total = 0
}

// StartPhase begins timing a specific phase, ending the previous one.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.phases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndRun finishes the final phase and records the total.
func (p *PerfCollector) EndRun() {
	now := time.Now()
	if p.lastPhase != "" {
		p.phases[p.lastPhase] += now.Sub(p.phaseStart)
		p.lastPhase = ""
	}
	p.total = now.Sub(p.runStart)
}

// PerfStats holds timing of a finished run.
type PerfStats struct {
	Total           time.Duration
	Phases          map[string]time.Duration
	PhasePct        map[string]float64
	PointsPerSecond float64 // Kernel throughput
}

// Stats computes phase percentages and kernel throughput for n points.
func (p *PerfCollector) Stats(n int) PerfStats {
	s := PerfStats{
		Total:    p.total,
		Phases:   make(map[string]time.Duration, len(p.phases)),
		PhasePct: make(map[string]float64, len(p.phases)),
	}
	for phase, d := range p.phases {
		s.Phases[phase] = d
		if p.total > 0 {
			s.PhasePct[phase] = float64(d) / float64(p.total) * 100
		}
	}
	if k := p.phases[PhaseKernel]; k > 0 {
		s.PointsPerSecond = float64(n) / k.Seconds()
	}
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Duration("total", s.Total),
		slog.Float64("points_per_sec", s.PointsPerSecond),
	}
	for _, phase := range []string{PhaseBuild, PhaseNeighbor, PhaseKernel, PhaseSummary} {
		if d, ok := s.Phases[phase]; ok {
			attrs = append(attrs,
				slog.Int64(phase+"_ms", d.Milliseconds()),
				slog.Float64(phase+"_pct", s.PhasePct[phase]),
			)
		}
	}
	return slog.GroupValue(attrs...)
}
