package respond

import (
	"context"
	"errors"
	"testing"
	"time"

	"logwarden/internal/detect"
)

type fakeBlocker struct {
	calls int
	err   error
}

func (f *fakeBlocker) Block(ctx context.Context, det detect.Detection) error {
	f.calls++
	return f.err
}

type fakeAlerter struct {
	calls   int
	batches [][]detect.Detection
	err     error
}

func (f *fakeAlerter) Alert(ctx context.Context, dets []detect.Detection) error {
	f.calls++
	f.batches = append(f.batches, dets)
	return f.err
}

type fakeReporter struct {
	calls int
	err   error
}

func (f *fakeReporter) Report(ctx context.Context, dets []detect.Detection) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "/tmp/report.json", nil
}

func criticalDetection(ip string) detect.Detection {
	return detect.Detection{
		Rule:     "SQL Injection",
		Severity: detect.SeverityCritical,
		IP:       ip,
		IOCHit:   true,
	}
}

func permissivePolicy() Config {
	return Config{
		AutoBlock:          true,
		RequireIOCForBlock: false,
		AlertsEnabled:      true,
		AlertOnAll:         true,
		DedupTTL:           DefaultDedupTTL,
	}
}

// =============================================================================
// Deduplication Tests
// =============================================================================

// TestHandleDetection_DedupSuppressesRepeats verifies an identical detection
// inside the TTL produces no side effects the second time.
func TestHandleDetection_DedupSuppressesRepeats(t *testing.T) {
	blocker := &fakeBlocker{}
	alerter := &fakeAlerter{}
	o := NewOrchestrator(permissivePolicy(), blocker, alerter, nil, nil)

	det := criticalDetection("203.0.113.9")
	first := o.HandleDetection(context.Background(), det)
	second := o.HandleDetection(context.Background(), det)

	if first.Suppressed {
		t.Error("first detection should not be suppressed")
	}
	if !second.Suppressed {
		t.Error("repeat detection should be suppressed")
	}
	if blocker.calls != 1 || alerter.calls != 1 {
		t.Errorf("blocker=%d alerter=%d calls, want 1 each", blocker.calls, alerter.calls)
	}
}

// TestHandleDetection_DedupRespectsKeyFields verifies detections differing in
// any key field are not suppressed against each other.
func TestHandleDetection_DedupRespectsKeyFields(t *testing.T) {
	blocker := &fakeBlocker{}
	o := NewOrchestrator(permissivePolicy(), blocker, nil, nil, nil)

	base := criticalDetection("203.0.113.9")
	otherIP := base
	otherIP.IP = "203.0.113.10"
	otherRule := base
	otherRule.Rule = "Command Injection"

	o.HandleDetection(context.Background(), base)
	if out := o.HandleDetection(context.Background(), otherIP); out.Suppressed {
		t.Error("different ip should not be suppressed")
	}
	if out := o.HandleDetection(context.Background(), otherRule); out.Suppressed {
		t.Error("different rule should not be suppressed")
	}
	if blocker.calls != 3 {
		t.Errorf("blocker calls = %d, want 3", blocker.calls)
	}
}

// TestHandleDetection_DedupTTLExpiry verifies entries older than the TTL are
// evicted so the detection fires again.
func TestHandleDetection_DedupTTLExpiry(t *testing.T) {
	blocker := &fakeBlocker{}
	o := NewOrchestrator(permissivePolicy(), blocker, nil, nil, nil)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return current }

	det := criticalDetection("203.0.113.9")
	o.HandleDetection(context.Background(), det)

	current = current.Add(11 * time.Minute)
	out := o.HandleDetection(context.Background(), det)

	if out.Suppressed {
		t.Error("detection past the TTL should fire again")
	}
	if blocker.calls != 2 {
		t.Errorf("blocker calls = %d, want 2", blocker.calls)
	}
}

// =============================================================================
// Policy Tests
// =============================================================================

// TestHandleDetection_BlockPolicy verifies the auto-block gating rules.
func TestHandleDetection_BlockPolicy(t *testing.T) {
	tests := []struct {
		name       string
		autoBlock  bool
		requireIOC bool
		severity   detect.Severity
		iocHit     bool
		wantBlock  bool
	}{
		{"disabled never blocks", false, false, detect.SeverityCritical, true, false},
		{"critical blocks", true, false, detect.SeverityCritical, false, true},
		{"high never blocks", true, false, detect.SeverityHigh, true, false},
		{"ioc required and confirmed", true, true, detect.SeverityCritical, true, true},
		{"ioc required but absent", true, true, detect.SeverityCritical, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocker := &fakeBlocker{}
			cfg := Config{AutoBlock: tt.autoBlock, RequireIOCForBlock: tt.requireIOC}
			o := NewOrchestrator(cfg, blocker, nil, nil, nil)

			out := o.HandleDetection(context.Background(), detect.Detection{
				Rule:     "SQL Injection",
				Severity: tt.severity,
				IP:       "203.0.113.9",
				IOCHit:   tt.iocHit,
			})

			if out.Blocked != tt.wantBlock {
				t.Errorf("Blocked = %v, want %v", out.Blocked, tt.wantBlock)
			}
		})
	}
}

// TestHandleDetection_AlertPolicy verifies alerting fires for High/Critical
// by default and for everything under the alert-all flag.
func TestHandleDetection_AlertPolicy(t *testing.T) {
	tests := []struct {
		name      string
		enabled   bool
		alertAll  bool
		severity  detect.Severity
		wantAlert bool
	}{
		{"disabled never alerts", false, true, detect.SeverityCritical, false},
		{"critical alerts", true, false, detect.SeverityCritical, true},
		{"high alerts", true, false, detect.SeverityHigh, true},
		{"medium stays quiet", true, false, detect.SeverityMedium, false},
		{"alert-all covers low", true, true, detect.SeverityLow, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerter := &fakeAlerter{}
			cfg := Config{AlertsEnabled: tt.enabled, AlertOnAll: tt.alertAll}
			o := NewOrchestrator(cfg, nil, alerter, nil, nil)

			out := o.HandleDetection(context.Background(), detect.Detection{
				Rule:     "Scanner User-Agent",
				Severity: tt.severity,
				IP:       "203.0.113.9",
			})

			if out.Alerted != tt.wantAlert {
				t.Errorf("Alerted = %v, want %v", out.Alerted, tt.wantAlert)
			}
		})
	}
}

// =============================================================================
// Report Latch Tests
// =============================================================================

// TestHandleDetection_OneReportPerRun verifies only the first detection in a
// run triggers a report and ResetRun re-arms the latch.
func TestHandleDetection_OneReportPerRun(t *testing.T) {
	reporter := &fakeReporter{}
	o := NewOrchestrator(Config{}, nil, nil, reporter, nil)

	for i, ip := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		out := o.HandleDetection(context.Background(), criticalDetection(ip))
		if i == 0 && out.ReportPath == "" {
			t.Error("first detection should produce a report")
		}
		if i > 0 && out.ReportPath != "" {
			t.Errorf("detection %d should not produce a report", i)
		}
	}
	if reporter.calls != 1 {
		t.Errorf("reporter calls = %d, want 1", reporter.calls)
	}

	o.ResetRun()
	if out := o.HandleDetection(context.Background(), criticalDetection("203.0.113.4")); out.ReportPath == "" {
		t.Error("new run should produce a report again")
	}
}

// TestHandleDetection_ReportRetriesAfterFailure verifies a failed report
// releases the latch so the next detection can retry.
func TestHandleDetection_ReportRetriesAfterFailure(t *testing.T) {
	reporter := &fakeReporter{err: errors.New("disk full")}
	o := NewOrchestrator(Config{}, nil, nil, reporter, nil)

	o.HandleDetection(context.Background(), criticalDetection("203.0.113.1"))
	reporter.err = nil
	out := o.HandleDetection(context.Background(), criticalDetection("203.0.113.2"))

	if out.ReportPath == "" {
		t.Error("report should retry after a failed attempt")
	}
	if reporter.calls != 2 {
		t.Errorf("reporter calls = %d, want 2", reporter.calls)
	}
}

// =============================================================================
// Failure Isolation Tests
// =============================================================================

// TestHandleDetection_StepFailureIsolation verifies a failing block step does
// not prevent alerting or reporting.
func TestHandleDetection_StepFailureIsolation(t *testing.T) {
	blocker := &fakeBlocker{err: errors.New("enforcement unavailable")}
	alerter := &fakeAlerter{}
	reporter := &fakeReporter{}
	o := NewOrchestrator(permissivePolicy(), blocker, alerter, reporter, nil)

	out := o.HandleDetection(context.Background(), criticalDetection("203.0.113.9"))

	if out.Blocked {
		t.Error("failed block should not be reported as blocked")
	}
	if !out.Alerted {
		t.Error("alert step should still run after a block failure")
	}
	if out.ReportPath == "" {
		t.Error("report step should still run after a block failure")
	}
}

// TestHandleBatch_OrderedOutcomes verifies batch handling returns one outcome
// per detection in input order.
func TestHandleBatch_OrderedOutcomes(t *testing.T) {
	o := NewOrchestrator(Config{}, nil, nil, nil, nil)

	dets := []detect.Detection{
		criticalDetection("203.0.113.1"),
		criticalDetection("203.0.113.1"), // repeat of the first
		criticalDetection("203.0.113.2"),
	}
	outcomes := o.HandleBatch(context.Background(), dets)

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	if outcomes[0].Suppressed || !outcomes[1].Suppressed || outcomes[2].Suppressed {
		t.Errorf("suppression pattern = %v %v %v, want false true false",
			outcomes[0].Suppressed, outcomes[1].Suppressed, outcomes[2].Suppressed)
	}
}
