package export

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/itohio/gocal/pkg/config"
	"github.com/itohio/gocal/pkg/session"
	"gopkg.in/yaml.v3"
)

// ErrExport wraps every storage failure.
var ErrExport = errors.New("export failed")

// Sidecar is the metadata file written next to the CSV.
type Sidecar struct {
	Session    session.Metadata `yaml:"session"`
	ExportedAt time.Time        `yaml:"exported_at"`
	Rows       int              `yaml:"rows"`
	Trials     int              `yaml:"trials"`
	Files      []string         `yaml:"files"`
}

// Exporter writes a frozen session log to the output directory.
type Exporter struct {
	dir        string
	dateFormat string
	window     int
	plot       bool
	metadata   bool
	now        func() time.Time
}

// New creates an Exporter from configuration.
func New(cfg *config.Config) *Exporter {
	return &Exporter{
		dir:        cfg.Session.OutputDir,
		dateFormat: cfg.Export.DateFormat,
		window:     cfg.Measurement.RollingWindow,
		plot:       cfg.Export.Plot,
		metadata:   cfg.Export.Metadata,
		now:        time.Now,
	}
}

// Export writes {base}.csv and, when enabled, the plots and {base}.yaml.
// It returns the paths written.
func (e *Exporter) Export(frozen *session.Frozen, meta session.Metadata) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create output dir: %w", ErrExport, err)
	}

	dual := meta.Dual()
	rows := Build(frozen.Rows(), dual, e.window)
	base := filepath.Join(e.dir, meta.FileBase(e.dateFormat))

	var files []string

	csvPath := base + ".csv"
	if err := writeFile(csvPath, rows, dual); err != nil {
		return files, fmt.Errorf("%w: %w", ErrExport, err)
	}
	files = append(files, csvPath)

	if e.plot && len(rows) > 0 {
		path := base + ".png"
		if err := WritePlot(path, "Cooling Power", "Cooling Power", rows, func(r Row) float64 { return r.Value }); err != nil {
			return files, fmt.Errorf("%w: %w", ErrExport, err)
		}
		files = append(files, path)

		if dual {
			path = base + "_temperature.png"
			if err := WritePlot(path, "Temperature", "Temperature (°C)", rows, func(r Row) float64 { return r.FilteredTemp }); err != nil {
				return files, fmt.Errorf("%w: %w", ErrExport, err)
			}
			files = append(files, path)
		}
	}

	if e.metadata {
		path := base + ".yaml"
		sc := Sidecar{
			Session:    meta,
			ExportedAt: e.now(),
			Rows:       len(rows),
			Trials:     len(trials(rows)),
			Files:      relative(e.dir, files),
		}
		if err := writeSidecar(path, sc); err != nil {
			return files, fmt.Errorf("%w: %w", ErrExport, err)
		}
		files = append(files, path)
	}

	log.Printf("export: wrote %d rows to %s", len(rows), csvPath)
	return files, nil
}

func writeFile(path string, rows []Row, dual bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	if err := WriteCSV(f, rows, dual); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeSidecar(path string, sc Sidecar) error {
	data, err := yaml.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func relative(dir string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if rel, err := filepath.Rel(dir, p); err == nil {
			out[i] = rel
		} else {
			out[i] = p
		}
	}
	return out
}
