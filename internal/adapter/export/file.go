package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/signalatlas/vibe-etl/internal/domain"
)

// FileExporter writes the gzipped data layers to a local directory.
// It implements pipeline.Exporter.
type FileExporter struct {
	dir        string
	resolution int
	logger     *slog.Logger
	clock      clockwork.Clock
}

// NewFileExporter creates a FileExporter targeting dir.
func NewFileExporter(dir string, resolution int, logger *slog.Logger) *FileExporter {
	return &FileExporter{
		dir:        dir,
		resolution: resolution,
		logger:     logger,
		clock:      clockwork.NewRealClock(),
	}
}

// SetClock swaps the generation timestamp source. Tests inject a fake clock.
func (e *FileExporter) SetClock(c clockwork.Clock) {
	e.clock = c
}

func (e *FileExporter) Name() string { return "file" }

// Export builds all layers and writes each as <name>.gz under the export
// directory. Partially written batches are not cleaned up; every run rewrites
// every layer.
func (e *FileExporter) Export(_ context.Context, result domain.AggregateResult) error {
	layers, err := BuildLayers(result, e.resolution, e.clock.Now())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	start := time.Now()
	for _, layer := range layers {
		compressed, err := Compress(layer.Data)
		if err != nil {
			return fmt.Errorf("compress %s: %w", layer.Name, err)
		}

		path := filepath.Join(e.dir, layer.Name+".gz")
		if err := os.WriteFile(path, compressed, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}

		e.logger.Info("layer written",
			"path", path,
			"raw_bytes", len(layer.Data),
			"compressed_bytes", len(compressed),
		)
	}

	e.logger.Info("file export complete", "layers", len(layers), "duration", time.Since(start))
	return nil
}
