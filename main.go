package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/pthm-cable/freemesh/config"
	"github.com/pthm-cable/freemesh/sim"
	"github.com/pthm-cable/freemesh/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	outputPath := flag.String("output", "", "Record file to create (empty = use config)")
	summaryDir := flag.String("summary-dir", "", "Directory for config snapshot and summary.csv (empty = use config)")
	workers := flag.Int("workers", 0, "Worker goroutines (0 = use config)")
	logPath := flag.String("log", "", "Write logs to this file instead of stdout")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger, closeLog, err := newLogger(*logPath)
	if err != nil {
		slog.Error("failed to open log file", "path", *logPath, "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(*configPath, *outputPath, *summaryDir, *workers, logger); err != nil {
		slog.Error("run failed", "error", err)
		closeLog()
		os.Exit(1)
	}
	closeLog()
}

// newLogger returns a JSON logger writing to path, or to stdout if path is
// empty. The returned close function must run before the process exits.
func newLogger(path string) (*slog.Logger, func() error, error) {
	if path == "" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil)), func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewJSONHandler(f, nil)), f.Close, nil
}

func run(configPath, outputPath, summaryDir string, workers int, logger *slog.Logger) error {
	// Initialize config before anything else
	if err := config.Init(configPath); err != nil {
		return err
	}
	cfg := config.Cfg()

	if outputPath != "" {
		cfg.Output.Path = outputPath
	}
	if summaryDir != "" {
		cfg.Output.SummaryDir = summaryDir
	}

	s, err := sim.New(cfg, sim.Options{Workers: workers, Logger: logger})
	if err != nil {
		return err
	}

	sink, err := telemetry.CreateRecordSink(cfg.Output.Path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("starting run", "output", cfg.Output.Path, "workers", s.Workers())
	res, err := s.Run(ctx, sink)
	if closeErr := sink.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	logger.Info("records written", "path", cfg.Output.Path, "count", sink.Count())

	om, err := telemetry.NewOutputManager(cfg.Output.SummaryDir)
	if err != nil {
		return err
	}
	if err := om.WriteConfig(cfg); err != nil {
		return err
	}
	if err := om.WriteSummary(telemetry.RunSummary{
		NX:           cfg.Grid.NX,
		NY:           cfg.Grid.NY,
		Horizon:      cfg.Horizon,
		Micromodulus: cfg.Material.Micromodulus,
		Strategy:     cfg.Neighbors.Strategy,
		Workers:      s.Workers(),
		ElapsedMS:    res.Perf.Total.Milliseconds(),
		KernelMS:     res.Perf.Phases[telemetry.PhaseKernel].Milliseconds(),
		FieldStats:   res.Field,
	}); err != nil {
		return err
	}
	if om != nil {
		logger.Info("summary written", "dir", om.Dir())
	}

	return nil
}
