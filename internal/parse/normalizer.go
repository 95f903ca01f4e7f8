package parse

import (
	"html"
	"net/url"
	"strings"
	"unicode"
)

const (
	// maxNormalizedLen caps decoded payloads to bound memory and regex cost.
	maxNormalizedLen = 2000
	halfNormalized   = maxNormalizedLen / 2

	elisionMarker = "..."

	// maxDecodeDepth bounds recursive decoding; triple-encoded payloads
	// (e.g. %2527) resolve within this budget.
	maxDecodeDepth = 3
)

// NormalizedEntry is a ParsedEntry plus decoded, case-folded copies of its
// text fields. The embedded entry is never modified.
type NormalizedEntry struct {
	ParsedEntry

	NormalizedRequest string `json:"normalized_request"`
	NormalizedRaw     string `json:"normalized_raw"`
}

// Normalize produces a detection-ready view of a parsed entry. The request
// and raw fields are independently decoded, stripped of control characters,
// lower-cased, and length-capped. The operation is idempotent.
func Normalize(entry ParsedEntry) NormalizedEntry {
	return NormalizedEntry{
		ParsedEntry:       entry,
		NormalizedRequest: normalizeField(entry.Request),
		NormalizedRaw:     normalizeField(entry.Raw),
	}
}

// NormalizeAll normalizes a batch of parsed entries.
func NormalizeAll(entries []ParsedEntry) []NormalizedEntry {
	out := make([]NormalizedEntry, len(entries))
	for i, e := range entries {
		out[i] = Normalize(e)
	}
	return out
}

func normalizeField(s string) string {
	s = recursiveDecode(s)
	s = stripControlChars(s)
	s = strings.ToLower(s)
	return capLength(s)
}

// recursiveDecode unwraps URL and HTML entity encoding until a fixed point
// or the depth budget is reached. A malformed escape sequence stops decoding
// for the field; the last good value is kept.
func recursiveDecode(s string) string {
	current := s
	for i := 0; i < maxDecodeDepth; i++ {
		decoded, err := url.QueryUnescape(current)
		if err != nil {
			break
		}
		decoded = html.UnescapeString(decoded)
		if decoded == current {
			break
		}
		current = decoded
	}
	return current
}

func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, s)
}

// capLength keeps the head and tail of oversized payloads, joined by an
// elision marker so evidence from both ends survives.
func capLength(s string) string {
	r := []rune(s)
	if len(r) <= maxNormalizedLen {
		return s
	}
	return string(r[:halfNormalized]) + elisionMarker + string(r[len(r)-halfNormalized:])
}
