package detect

// Severity is the analyst-facing classification of a detection.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank orders severities for comparison; unknown values rank lowest.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Valid reports whether s is one of the four defined levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// threatSeverity maps rule names to their base severity. Unmapped names
// default to Low so unknown detections never crash classification.
var threatSeverity = map[string]Severity{
	// Immediate action, auto-block eligible.
	"SQL Injection":                       SeverityCritical,
	"SQLi - Tautology / OR 1=1":           SeverityCritical,
	"Command Injection / Shell":           SeverityCritical,
	"Sensitive File Access":               SeverityCritical,
	"SSRF / Internal Resource Access":     SeverityCritical,
	"Serialized Object Detected (Java)":   SeverityCritical,
	"Serialized Object Detected (Python)": SeverityCritical,
	"Serialized Object Detected (.NET)":   SeverityCritical,
	"Malicious Package Download":          SeverityCritical,
	"CI/CD Script Execution":              SeverityCritical,
	"Unexpected Build Dependency Fetch":   SeverityCritical,

	// High risk, analyst investigation required.
	"XSS":                           SeverityHigh,
	"XSS - Advanced Payloads":       SeverityHigh,
	"Credential Stuffing Probe":     SeverityHigh,
	"Unauthorized Admin Access":     SeverityHigh,
	"Plaintext Credential Exposure": SeverityHigh,

	// Suspicious, context and correlation needed.
	"IDOR / Object Access Violation":       SeverityMedium,
	"Brute Force Attempt":                  SeverityMedium,
	"Sensitive Data Over HTTP":             SeverityMedium,
	"Debug / Error Exposure":               SeverityMedium,
	"API Rate Abuse / Resource Exhaustion": SeverityMedium,
	"Unhandled Exception Exposure":         SeverityMedium,
	"Directory Traversal":                  SeverityMedium,

	// Informational baseline noise; escalated via correlation.
	"Failed Login":                    SeverityLow,
	"Weak Crypto Indicator":           SeverityLow,
	"Excessive Data Exposure":         SeverityLow,
	"Repeated Error Without Alerting": SeverityLow,
	"Discovery / Recon Probes":        SeverityLow,
}

// BaseSeverity returns the static severity for a rule name, defaulting to Low.
func BaseSeverity(rule string) Severity {
	if s, ok := threatSeverity[rule]; ok {
		return s
	}
	return SeverityLow
}

// Escalate raises a severity one level on reputation confirmation. Critical
// is the ceiling; an invalid input is returned unchanged.
func Escalate(s Severity) Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	case SeverityHigh, SeverityCritical:
		return SeverityCritical
	default:
		return s
	}
}
