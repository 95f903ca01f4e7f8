// Package correlate groups per-source detections inside a sliding time
// window and raises composite incidents. Correlation only: no blocking, no
// alerting, no response logic.
package correlate

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"logwarden/internal/detect"
	"logwarden/internal/parse"
)

// DefaultWindow is the trailing span within which detections from one
// address count as part of the same behavioral pattern.
const DefaultWindow = 5 * time.Minute

// Incident is a composite finding built from detections sharing a source
// address within the correlation window.
type Incident struct {
	ID           string             `json:"id"`
	IP           string             `json:"ip"`
	Type         string             `json:"type"`
	Severity     detect.Severity    `json:"severity"`
	Count        int                `json:"count"`
	IOCConfirmed bool               `json:"ioc_confirmed"`
	Evidence     []detect.Detection `json:"evidence"`
}

// Engine correlates detection batches. It aggregates references to its
// inputs and never mutates them.
type Engine struct {
	window time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine builds a correlator with the given trailing window; a
// non-positive window falls back to the default.
func NewEngine(window time.Duration, logger *zap.Logger) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{window: window, logger: logger, now: time.Now}
}

// Correlate groups detections by source address and evaluates the incident
// patterns for each group's in-window events.
func (e *Engine) Correlate(detections []detect.Detection) []Incident {
	if len(detections) == 0 {
		return nil
	}

	byIP := make(map[string][]detect.Detection)
	for _, d := range detections {
		ip := d.IP
		if ip == "" {
			ip = parse.Unknown
		}
		byIP[ip] = append(byIP[ip], d)
	}

	// Deterministic output order across runs.
	ips := make([]string, 0, len(byIP))
	for ip := range byIP {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	now := e.now()

	var incidents []Incident
	for _, ip := range ips {
		events := byIP[ip]
		sort.SliceStable(events, func(i, j int) bool {
			ti, _ := parseTime(events[i].Time, now)
			tj, _ := parseTime(events[j].Time, now)
			return ti.Before(tj)
		})
		recent := e.filterWindow(events, now)
		incidents = append(incidents, e.analyzeIP(ip, recent)...)
	}

	if len(incidents) > 0 {
		e.logger.Info("correlation complete",
			zap.Int("detections", len(detections)),
			zap.Int("incidents", len(incidents)))
	}
	return incidents
}

// filterWindow keeps events inside the trailing window measured from the
// latest event. If the window boundary cannot be parsed the whole group is
// treated as in-window: evidence is never dropped on a parse error.
func (e *Engine) filterWindow(events []detect.Detection, now time.Time) []detect.Detection {
	if len(events) == 0 {
		return nil
	}

	latest, ok := parseTime(events[len(events)-1].Time, now)
	if !ok {
		return events
	}
	cutoff := latest.Add(-e.window)

	filtered := make([]detect.Detection, 0, len(events))
	for _, ev := range events {
		t, ok := parseTime(ev.Time, now)
		if !ok || !t.Before(cutoff) {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}

// timeLayouts covers ISO-8601 variants and the Apache access-log shape.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/Jan/2006:15:04:05 -0700",
	"02/Jan/2006:15:04:05",
}

// parseTime is best-effort and never fails: the sentinel or an unparseable
// value yields now with ok=false.
func parseTime(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == parse.Unknown {
		return now, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return now, false
}

// analyzeIP evaluates the four incident patterns independently; all may fire
// for one address.
func (e *Engine) analyzeIP(ip string, events []detect.Detection) []Incident {
	if len(events) == 0 {
		return nil
	}

	var incidents []Incident

	var failedLogins, scannerHits, criticalHits []detect.Detection
	for _, ev := range events {
		if strings.Contains(ev.Rule, "Failed Login") {
			failedLogins = append(failedLogins, ev)
		}
		if strings.Contains(ev.Rule, "Scanner") {
			scannerHits = append(scannerHits, ev)
		}
		if ev.Severity == detect.SeverityCritical {
			criticalHits = append(criticalHits, ev)
		}
	}

	if len(failedLogins) >= 5 {
		incidents = append(incidents, e.incident(ip,
			"Brute Force Login Attack", detect.SeverityHigh, failedLogins))
	}

	if len(scannerHits) > 0 && len(criticalHits) > 0 {
		evidence := append(append([]detect.Detection{}, scannerHits...), criticalHits...)
		inc := e.incident(ip,
			"Reconnaissance Followed by Exploitation", detect.SeverityCritical, evidence)
		inc.IOCConfirmed = anyIOCHit(criticalHits)
		incidents = append(incidents, inc)
	}

	if len(criticalHits) >= 3 {
		incidents = append(incidents, e.incident(ip,
			"Repeated Critical Attack Attempts", detect.SeverityCritical, criticalHits))
	}

	if len(events) >= 10 {
		incidents = append(incidents, e.incident(ip,
			"High Volume Suspicious Activity", detect.SeverityMedium, events))
	}

	return incidents
}

func (e *Engine) incident(ip, incidentType string, severity detect.Severity, evidence []detect.Detection) Incident {
	return Incident{
		ID:           uuid.NewString(),
		IP:           ip,
		Type:         incidentType,
		Severity:     severity,
		Count:        len(evidence),
		IOCConfirmed: anyIOCHit(evidence),
		Evidence:     evidence,
	}
}

func anyIOCHit(detections []detect.Detection) bool {
	for _, d := range detections {
		if d.IOCHit {
			return true
		}
	}
	return false
}
