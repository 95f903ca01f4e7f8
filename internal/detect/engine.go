// Package detect matches normalized log entries against indicator rules and
// assigns SOC severity, escalating on threat-intelligence confirmation.
package detect

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"logwarden/internal/parse"
)

// iocOnlyRule names the synthetic detection emitted when reputation alone
// implicates a source address.
const iocOnlyRule = "Threat Intelligence Match"

const iocOnlyPayload = "N/A (IP Reputation Match)"

// Detection is a single rule hit against one log entry. Detections are
// immutable once produced.
type Detection struct {
	ID       string   `json:"id"`
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	IP       string   `json:"ip"`
	Time     string   `json:"time"`
	Payload  string   `json:"payload"`
	Raw      string   `json:"raw"`
	IOCHit   bool     `json:"ioc_hit"`
}

// ReputationChecker answers whether an address is known malicious. Lookups
// must be side-effect free; detection treats any doubt as a miss.
type ReputationChecker interface {
	IsMalicious(ip string) bool
}

// Engine applies the compiled rule set to normalized entries. The reputation
// checker is injected so a single shared intelligence cache backs both
// detection and response.
type Engine struct {
	rules      []Rule
	reputation ReputationChecker
	logger     *zap.Logger
}

// NewEngine builds a detection engine over the default rule set.
func NewEngine(reputation ReputationChecker, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		rules:      DefaultRules(),
		reputation: reputation,
		logger:     logger,
	}
}

// Rules exposes the compiled rule table for listing.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// AnalyzeEntry evaluates every rule against one normalized entry, emitting at
// most one detection per rule. Reputation escalates matched severities one
// level; a reputation hit with no rule match yields a single synthetic
// Critical detection.
func (e *Engine) AnalyzeEntry(entry parse.NormalizedEntry) []Detection {
	payload := entry.NormalizedRequest
	if payload == "" {
		payload = entry.NormalizedRaw
	}

	ip := entry.IP
	if ip == "" {
		ip = parse.Unknown
	}
	ts := entry.Time
	if ts == "" {
		ts = parse.Unknown
	}

	iocHit := false
	if e.reputation != nil && ip != parse.Unknown {
		iocHit = e.reputation.IsMalicious(ip)
	}

	var detections []Detection
	if payload != "" {
		for _, rule := range e.rules {
			if !rule.Pattern.MatchString(payload) {
				continue
			}
			severity := BaseSeverity(rule.Name)
			if iocHit {
				severity = Escalate(severity)
			}
			detections = append(detections, Detection{
				ID:       uuid.NewString(),
				Rule:     rule.Name,
				Severity: severity,
				IP:       ip,
				Time:     ts,
				Payload:  payload,
				Raw:      entry.Raw,
				IOCHit:   iocHit,
			})
		}
	}

	// Reputation evidence alone is actionable.
	if iocHit && len(detections) == 0 {
		detections = append(detections, Detection{
			ID:       uuid.NewString(),
			Rule:     iocOnlyRule,
			Severity: SeverityCritical,
			IP:       ip,
			Time:     ts,
			Payload:  iocOnlyPayload,
			Raw:      entry.Raw,
			IOCHit:   true,
		})
	}

	if len(detections) > 0 {
		e.logger.Debug("entry analyzed",
			zap.String("ip", ip),
			zap.Int("detections", len(detections)),
			zap.Bool("ioc_hit", iocHit))
	}
	return detections
}

// AnalyzeBatch applies AnalyzeEntry to each entry and concatenates the
// results. No state crosses entries.
func (e *Engine) AnalyzeBatch(entries []parse.NormalizedEntry) []Detection {
	var all []Detection
	for _, entry := range entries {
		all = append(all, e.AnalyzeEntry(entry)...)
	}
	return all
}
