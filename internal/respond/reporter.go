package respond

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"logwarden/internal/detect"
	"logwarden/internal/intel"
)

// JSONReporter renders incident reports as JSON artifacts in a report
// directory. When an enricher is wired in, each unique source address in the
// report carries geo and ownership context.
type JSONReporter struct {
	dir      string
	enricher *intel.Enricher
	logger   *zap.Logger
	now      func() time.Time
}

type incidentReport struct {
	ID          string             `json:"id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Detections  []detect.Detection `json:"detections"`
	Sources     []intel.IPInfo     `json:"sources,omitempty"`
}

// NewJSONReporter builds a reporter writing under dir. The enricher is
// optional.
func NewJSONReporter(dir string, enricher *intel.Enricher, logger *zap.Logger) *JSONReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONReporter{
		dir:      dir,
		enricher: enricher,
		logger:   logger,
		now:      time.Now,
	}
}

// Report writes one report artifact covering the batch and returns its path.
func (r *JSONReporter) Report(ctx context.Context, dets []detect.Detection) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report dir: %w", err)
	}

	report := incidentReport{
		ID:          uuid.NewString(),
		GeneratedAt: r.now().UTC(),
		Detections:  dets,
		Sources:     r.enrichSources(ctx, dets),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("incident_report_%s.json", report.ID))
	tmp, err := os.CreateTemp(r.dir, ".report-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp report: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("writing temp report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("closing temp report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("placing report: %w", err)
	}
	return path, nil
}

// enrichSources looks up context for each unique source address in the
// batch. Lookup failures degrade to bare records inside the enricher.
func (r *JSONReporter) enrichSources(ctx context.Context, dets []detect.Detection) []intel.IPInfo {
	if r.enricher == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var sources []intel.IPInfo
	for _, det := range dets {
		if _, ok := seen[det.IP]; ok {
			continue
		}
		seen[det.IP] = struct{}{}
		sources = append(sources, r.enricher.Lookup(ctx, det.IP))
	}
	return sources
}
