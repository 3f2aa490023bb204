package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/talgya/creatures/internal/config"
)

// OutputManager writes per-tick and per-type CSV logs.
type OutputManager struct {
	dir       string
	tickFile  *os.File
	typesFile *os.File

	tickHeaderWritten  bool
	typesHeaderWritten bool
}

// NewOutputManager creates the output directory and its CSV files.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	f, err := os.Create(filepath.Join(dir, "ticks.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating ticks.csv: %w", err)
	}
	om.tickFile = f

	f, err = os.Create(filepath.Join(dir, "types.csv"))
	if err != nil {
		om.tickFile.Close()
		return nil, fmt.Errorf("creating types.csv: %w", err)
	}
	om.typesFile = f

	return om, nil
}

// Dir returns the output directory.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// WriteConfig saves the run configuration as YAML next to the CSV files.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteTick appends a row to ticks.csv.
func (om *OutputManager) WriteTick(rec TickRecord) error {
	if om == nil {
		return nil
	}

	records := []TickRecord{rec}
	if !om.tickHeaderWritten {
		if err := gocsv.Marshal(records, om.tickFile); err != nil {
			return fmt.Errorf("writing ticks: %w", err)
		}
		om.tickHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.tickFile); err != nil {
		return fmt.Errorf("writing ticks: %w", err)
	}
	return nil
}

// WriteTypes appends rows to types.csv.
func (om *OutputManager) WriteTypes(records []TypeRecord) error {
	if om == nil || len(records) == 0 {
		return nil
	}

	if !om.typesHeaderWritten {
		if err := gocsv.Marshal(records, om.typesFile); err != nil {
			return fmt.Errorf("writing types: %w", err)
		}
		om.typesHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.typesFile); err != nil {
		return fmt.Errorf("writing types: %w", err)
	}
	return nil
}

// Close flushes and closes all files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	for _, f := range []*os.File{om.tickFile, om.typesFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
