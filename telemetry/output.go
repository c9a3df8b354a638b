package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/freemesh/config"
)

// RunSummary is one row of summary.csv.
type RunSummary struct {
	NX           int     `csv:"nx"`
	NY           int     `csv:"ny"`
	Horizon      float64 `csv:"horizon"`
	Micromodulus string  `csv:"micromodulus"`
	Strategy     string  `csv:"strategy"`
	Workers      int     `csv:"workers"`
	ElapsedMS    int64   `csv:"elapsed_ms"`
	KernelMS     int64   `csv:"kernel_ms"`
	FieldStats
}

// OutputManager writes run artifacts next to the record file.
type OutputManager struct {
	dir string
}

// NewOutputManager creates the summary directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating summary directory: %w", err)
	}
	return &OutputManager{dir: dir}, nil
}

// WriteConfig saves the effective configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteSummary writes summary.csv with a header and a single row.
func (om *OutputManager) WriteSummary(s RunSummary) error {
	if om == nil {
		return nil
	}

	f, err := os.Create(filepath.Join(om.dir, "summary.csv"))
	if err != nil {
		return fmt.Errorf("creating summary.csv: %w", err)
	}
	defer f.Close()

	if err := gocsv.Marshal([]RunSummary{s}, f); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return f.Close()
}

// Dir returns the summary directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}
