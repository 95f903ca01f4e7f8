package detect

import "regexp"

// Rule is a named, case-insensitive pattern whose match in log text is a
// weak indicator of a specific attack technique, not proof of exploitation.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// ruleSpec keeps the ordered source-of-truth table compact; patterns are
// compiled once in DefaultRules.
type ruleSpec struct {
	name    string
	pattern string
}

// OWASP-aligned indicator rules, evaluated in order.
var ruleSpecs = []ruleSpec{
	// Injection (SQL, OS, template).
	{"SQL Injection", `(\bunion\s+select\b|\bselect\s+\*\b|\bdrop\s+table\b|\binsert\s+into\b|--|\bor\b\s+.+?=.+?)`},
	{"SQLi - Tautology / OR 1=1", `(\bor\b\s*1\s*=\s*1|'?\s*or\s*'?\s*1'\s*=\s*'1|\bunion\b.*\bselect\b)`},
	{"Command Injection / Shell", `(\|\||&&|` + "`" + `|\$\(|\b(cmd|exec|system)\s*=|\bwget\b|\bcurl\b)`},

	// Cross-site scripting.
	{"XSS", `(<script\b|javascript:|onerror\s*=|onload\s*=)`},
	{"XSS - Advanced Payloads", `(<svg\b|<iframe\b|document\.cookie|window\.location)`},

	// Broken access control / IDOR.
	{"IDOR / Object Access Violation", `(/api/[^ ]*/\d+|\b(id|user|account)\s*=\s*\d+)`},
	{"Unauthorized Admin Access", `(/admin\b|/wp-admin\b|/manager/html)`},

	// Authentication failures.
	{"Failed Login", `(failed\s+login|invalid\s+password|authentication\s+failure|\b401\b)`},
	{"Credential Stuffing Probe", `(\b(username|login|user)\b.{1,80}\b(password|pass|pwd)\b)`},
	{"Brute Force Attempt", `(login).*?\b(401|403)\b`},

	// Security misconfiguration.
	{"Sensitive File Access", `(/etc/passwd|/etc/shadow|\.env\b|\.git/|config\.php|web\.config)`},
	{"Debug / Error Exposure", `(stack\s+trace|exception|traceback|fatal\s+error)`},

	// Cryptographic failures (log indicators).
	{"Plaintext Credential Exposure", `(password\s*=|passwd\s*=|secret\s*=|api[_-]?key\s*=)`},
	{"Weak Crypto Indicator", `\b(md5|sha1|des|rc4)\b`},
	{"Sensitive Data Over HTTP", `(http://).*?(token|password|session)`},

	// Insecure deserialization.
	{"Serialized Object Detected (Java)", `(rO0AB|java\.io\.ObjectInputStream)`},
	{"Serialized Object Detected (Python)", `(pickle\.loads|__reduce__)`},
	{"Serialized Object Detected (.NET)", `(BinaryFormatter|ObjectStateFormatter)`},

	// Server-side request forgery.
	{"SSRF / Internal Resource Access", `(http://(127\.0\.0\.1|localhost|169\.254\.169\.254|0\.0\.0\.0))`},

	// Supply chain attack indicators.
	{"Malicious Package Download", `(pip\s+install|npm\s+install|curl|wget).*?(github\.com|raw\.githubusercontent\.com)`},
	{"CI/CD Script Execution", `(bash\s+-c|powershell\s+-enc|sh\s+-c)`},
	{"Unexpected Build Dependency Fetch", `(package\.json|requirements\.txt).*?(http|https)`},

	// API resource abuse.
	{"API Rate Abuse / Resource Exhaustion", `(/api/).*?\b(429|too\s+many\s+requests)\b`},
	{"Excessive Data Exposure", `\?.{300,}`},

	// Logging and monitoring failures (meta).
	{"Repeated Error Without Alerting", `\b(500|502|503|504)\b`},

	// Exception handling failures.
	{"Unhandled Exception Exposure", `\b(NullPointerException|IndexError|KeyError|ValueError)\b`},
}

// DefaultRules compiles the built-in indicator rule set. Patterns are
// case-insensitive; compilation of the built-in table cannot fail.
func DefaultRules() []Rule {
	rules := make([]Rule, 0, len(ruleSpecs))
	for _, spec := range ruleSpecs {
		rules = append(rules, Rule{
			Name:    spec.name,
			Pattern: regexp.MustCompile(`(?i)` + spec.pattern),
		})
	}
	return rules
}
