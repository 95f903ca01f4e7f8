// Package pipeline wires the analysis stages together: parse, normalize,
// detect, correlate, respond. The CLI and the HTTP server both drive the
// pipeline rather than the stages directly.
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"logwarden/internal/correlate"
	"logwarden/internal/detect"
	"logwarden/internal/observability"
	"logwarden/internal/parse"
	"logwarden/internal/respond"
)

// Sink receives analysis results as they are produced. Implementations must
// be safe for concurrent use.
type Sink interface {
	RecordDetections(dets []detect.Detection)
	RecordIncidents(incidents []correlate.Incident)
}

// Summary totals one analysis run.
type Summary struct {
	Lines      int                  `json:"lines"`
	Detections int                  `json:"detections"`
	Incidents  []correlate.Incident `json:"incidents"`
	Blocked    int                  `json:"blocked"`
	Alerted    int                  `json:"alerted"`
	Suppressed int                  `json:"suppressed"`
	ReportPath string               `json:"report_path,omitempty"`
}

// Pipeline runs log lines through detection, correlation, and response.
type Pipeline struct {
	engine       *detect.Engine
	correlator   *correlate.Engine
	orchestrator *respond.Orchestrator
	metrics      *observability.Metrics
	sink         Sink
	logger       *zap.Logger
}

// New assembles a pipeline. Metrics and sink may be nil.
func New(engine *detect.Engine, correlator *correlate.Engine, orchestrator *respond.Orchestrator,
	metrics *observability.Metrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		engine:       engine,
		correlator:   correlator,
		orchestrator: orchestrator,
		metrics:      metrics,
		logger:       logger,
	}
}

// SetSink attaches a results sink. Call before the pipeline starts running.
func (p *Pipeline) SetSink(sink Sink) {
	p.sink = sink
}

// AnalyzeFile runs the batch pipeline over a whole log file. The response
// run-scope is reset first, so the file gets its own report.
func (p *Pipeline) AnalyzeFile(ctx context.Context, path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading log file: %w", err)
	}

	p.orchestrator.ResetRun()

	entries := parse.Lines(lines)
	normalized := parse.NormalizeAll(entries)
	detections := p.engine.AnalyzeBatch(normalized)
	incidents := p.correlator.Correlate(detections)

	p.countLines(len(lines))
	p.countDetections(detections)
	p.countIncidents(incidents)
	if p.sink != nil {
		p.sink.RecordDetections(detections)
		p.sink.RecordIncidents(incidents)
	}

	summary := &Summary{
		Lines:      len(lines),
		Detections: len(detections),
		Incidents:  incidents,
	}
	for _, out := range p.orchestrator.HandleBatch(ctx, detections) {
		p.countOutcome(out, summary)
	}

	p.logger.Info("analysis run complete",
		zap.String("path", path),
		zap.Int("lines", summary.Lines),
		zap.Int("detections", summary.Detections),
		zap.Int("incidents", len(summary.Incidents)),
		zap.Int("blocked", summary.Blocked),
		zap.Int("suppressed", summary.Suppressed))
	return summary, nil
}

// ProcessLine runs the live pipeline over one tailed line and returns its
// detections. The run-scope is not reset; live mode shares one run.
func (p *Pipeline) ProcessLine(ctx context.Context, line string) []detect.Detection {
	entry := parse.Line(line)
	if entry.Raw == "" {
		return nil
	}
	p.countLines(1)

	detections := p.engine.AnalyzeEntry(parse.Normalize(entry))
	if len(detections) == 0 {
		return nil
	}

	p.countDetections(detections)
	if p.sink != nil {
		p.sink.RecordDetections(detections)
	}
	for _, out := range p.orchestrator.HandleBatch(ctx, detections) {
		p.countOutcome(out, nil)
	}
	return detections
}

func (p *Pipeline) countLines(n int) {
	if p.metrics != nil {
		p.metrics.LinesParsed.Add(float64(n))
	}
}

func (p *Pipeline) countDetections(dets []detect.Detection) {
	if p.metrics == nil {
		return
	}
	for _, det := range dets {
		p.metrics.DetectionsTotal.WithLabelValues(det.Rule, string(det.Severity)).Inc()
	}
}

func (p *Pipeline) countIncidents(incidents []correlate.Incident) {
	if p.metrics == nil {
		return
	}
	for _, inc := range incidents {
		p.metrics.IncidentsTotal.WithLabelValues(inc.Type).Inc()
	}
}

func (p *Pipeline) countOutcome(out respond.Outcome, summary *Summary) {
	if summary != nil {
		if out.Blocked {
			summary.Blocked++
		}
		if out.Alerted {
			summary.Alerted++
		}
		if out.Suppressed {
			summary.Suppressed++
		}
		if out.ReportPath != "" {
			summary.ReportPath = out.ReportPath
		}
	}
	if p.metrics == nil {
		return
	}
	if out.Blocked {
		p.metrics.BlocksTotal.Inc()
	}
	if out.Alerted {
		p.metrics.AlertsTotal.Inc()
	}
	if out.Suppressed {
		p.metrics.DedupSuppressed.Inc()
	}
	if out.ReportPath != "" {
		p.metrics.ReportsTotal.Inc()
	}
}
