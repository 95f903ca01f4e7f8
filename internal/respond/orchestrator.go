// Package respond drives the response side of the pipeline: deduplicated,
// policy-gated blocking, alerting, and report generation for detections.
// Every side effect is delegated to a collaborator; the orchestrator only
// decides whether each one fires.
package respond

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"logwarden/internal/detect"
)

// DefaultDedupTTL is how long an identical detection suppresses repeats.
const DefaultDedupTTL = 10 * time.Minute

// Blocker enforces an address block. Implementations must be safe for
// concurrent use.
type Blocker interface {
	Block(ctx context.Context, det detect.Detection) error
}

// Alerter delivers a notification for a batch of detections.
type Alerter interface {
	Alert(ctx context.Context, dets []detect.Detection) error
}

// Reporter renders an incident-report artifact and returns its path.
type Reporter interface {
	Report(ctx context.Context, dets []detect.Detection) (string, error)
}

// Config is the response policy.
type Config struct {
	AutoBlock          bool          `yaml:"auto_block"`
	RequireIOCForBlock bool          `yaml:"require_ioc_for_block"`
	AlertsEnabled      bool          `yaml:"alerts_enabled"`
	AlertOnAll         bool          `yaml:"alert_on_all"`
	DedupTTL           time.Duration `yaml:"dedup_ttl"`
	ReportDir          string        `yaml:"report_dir"`
}

// DefaultConfig returns the conservative response policy: nothing enforced,
// nothing sent, detections only deduplicated and reported.
func DefaultConfig() Config {
	return Config{
		AutoBlock:          false,
		RequireIOCForBlock: true,
		AlertsEnabled:      false,
		AlertOnAll:         false,
		DedupTTL:           DefaultDedupTTL,
		ReportDir:          "reports",
	}
}

type dedupKey struct {
	ip       string
	rule     string
	severity detect.Severity
}

// Outcome summarizes what the orchestrator did for one detection.
type Outcome struct {
	Suppressed bool
	Blocked    bool
	Alerted    bool
	ReportPath string
}

// Orchestrator is the single entry point for acting on detections. It is
// safe to invoke concurrently and repeatedly for the same logical event;
// the dedup table guarantees side effects fire at most once per TTL.
type Orchestrator struct {
	cfg      Config
	blocker  Blocker
	alerter  Alerter
	reporter Reporter
	logger   *zap.Logger

	mu       sync.Mutex
	seen     map[dedupKey]time.Time
	reported bool

	now func() time.Time
}

// NewOrchestrator wires the response policy to its collaborators. Any
// collaborator may be nil, which disables that step.
func NewOrchestrator(cfg Config, blocker Blocker, alerter Alerter, reporter Reporter, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = DefaultDedupTTL
	}
	return &Orchestrator{
		cfg:      cfg,
		blocker:  blocker,
		alerter:  alerter,
		reporter: reporter,
		logger:   logger,
		seen:     make(map[dedupKey]time.Time),
		now:      time.Now,
	}
}

// ResetRun clears the one-report-per-run latch. Callers invoke it at the
// start of each analysis run; the dedup table deliberately survives.
func (o *Orchestrator) ResetRun() {
	o.mu.Lock()
	o.reported = false
	o.mu.Unlock()
}

// HandleDetection evaluates one detection against the response policy.
// A detection identical to one seen within the dedup TTL returns with
// Suppressed set and no side effects. Step failures are logged per step
// and never prevent the remaining steps from running.
func (o *Orchestrator) HandleDetection(ctx context.Context, det detect.Detection) Outcome {
	if o.remember(det) {
		o.logger.Debug("detection suppressed by dedup",
			zap.String("ip", det.IP), zap.String("rule", det.Rule))
		return Outcome{Suppressed: true}
	}

	var out Outcome

	if o.shouldBlock(det) {
		if err := o.blocker.Block(ctx, det); err != nil {
			o.logger.Error("block step failed",
				zap.String("ip", det.IP), zap.Error(err))
		} else {
			out.Blocked = true
		}
	}

	if o.shouldAlert(det) {
		if err := o.alerter.Alert(ctx, []detect.Detection{det}); err != nil {
			o.logger.Error("alert step failed",
				zap.String("ip", det.IP), zap.Error(err))
		} else {
			out.Alerted = true
		}
	}

	if o.claimReport() {
		path, err := o.reporter.Report(ctx, []detect.Detection{det})
		if err != nil {
			o.logger.Error("report step failed", zap.Error(err))
			o.releaseReport()
		} else {
			out.ReportPath = path
			o.logger.Info("incident report written", zap.String("path", path))
		}
	}

	return out
}

// HandleBatch runs HandleDetection over a batch and returns per-detection
// outcomes in order.
func (o *Orchestrator) HandleBatch(ctx context.Context, dets []detect.Detection) []Outcome {
	outcomes := make([]Outcome, 0, len(dets))
	for _, det := range dets {
		outcomes = append(outcomes, o.HandleDetection(ctx, det))
	}
	return outcomes
}

// remember evicts expired dedup entries, then atomically checks and records
// the detection's key. It returns true when the detection is a repeat.
func (o *Orchestrator) remember(det detect.Detection) bool {
	key := dedupKey{ip: det.IP, rule: det.Rule, severity: det.Severity}
	now := o.now()

	o.mu.Lock()
	defer o.mu.Unlock()

	for k, t := range o.seen {
		if now.Sub(t) > o.cfg.DedupTTL {
			delete(o.seen, k)
		}
	}
	if _, ok := o.seen[key]; ok {
		return true
	}
	o.seen[key] = now
	return false
}

func (o *Orchestrator) shouldBlock(det detect.Detection) bool {
	if !o.cfg.AutoBlock || o.blocker == nil {
		return false
	}
	if o.cfg.RequireIOCForBlock {
		return det.Severity == detect.SeverityCritical && det.IOCHit
	}
	return det.Severity == detect.SeverityCritical
}

func (o *Orchestrator) shouldAlert(det detect.Detection) bool {
	if !o.cfg.AlertsEnabled || o.alerter == nil {
		return false
	}
	if o.cfg.AlertOnAll {
		return true
	}
	return det.Severity.Rank() >= detect.SeverityHigh.Rank()
}

// claimReport takes the run's report latch. The first caller per run wins.
func (o *Orchestrator) claimReport() bool {
	if o.reporter == nil {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.reported {
		return false
	}
	o.reported = true
	return true
}

// releaseReport returns the latch after a failed report attempt so the next
// detection in the run can retry.
func (o *Orchestrator) releaseReport() {
	o.mu.Lock()
	o.reported = false
	o.mu.Unlock()
}
