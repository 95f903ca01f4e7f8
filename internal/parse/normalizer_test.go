package parse

import (
	"strings"
	"testing"
)

// =============================================================================
// Decoding Tests
// =============================================================================

// TestNormalize_RecursiveDecoding verifies multi-layer URL encoding is
// unwrapped within the iteration budget (%2527 -> %27 -> ').
func TestNormalize_RecursiveDecoding(t *testing.T) {
	entry := Normalize(ParsedEntry{Request: "GET /?q=%2527 HTTP/1.1"})

	if !strings.Contains(entry.NormalizedRequest, "'") {
		t.Errorf("double-encoded quote should decode to ', got %q", entry.NormalizedRequest)
	}
}

// TestNormalize_HTMLEntities verifies HTML entity decoding participates in
// the recursive decode loop.
func TestNormalize_HTMLEntities(t *testing.T) {
	entry := Normalize(ParsedEntry{Request: "&lt;script&gt;alert(1)&lt;/script&gt;"})

	if !strings.Contains(entry.NormalizedRequest, "<script>") {
		t.Errorf("entities should decode, got %q", entry.NormalizedRequest)
	}
}

// TestNormalize_MalformedEscapeKeepsField verifies that a broken escape
// sequence stops decoding without failing the entry.
func TestNormalize_MalformedEscapeKeepsField(t *testing.T) {
	entry := Normalize(ParsedEntry{Request: "GET /%zz/broken"})

	if entry.NormalizedRequest != "get /%zz/broken" {
		t.Errorf("malformed escape should keep the field as-is (lower-cased), got %q", entry.NormalizedRequest)
	}
}

// =============================================================================
// Cleaning Tests
// =============================================================================

// TestNormalize_StripsControlChars verifies non-printable characters are
// removed from normalized fields.
func TestNormalize_StripsControlChars(t *testing.T) {
	entry := Normalize(ParsedEntry{Request: "GET\x00 /a\x07dmin\x1b[0m"})

	if strings.ContainsAny(entry.NormalizedRequest, "\x00\x07\x1b") {
		t.Errorf("control characters should be stripped, got %q", entry.NormalizedRequest)
	}
	if !strings.Contains(entry.NormalizedRequest, "admin") {
		t.Errorf("printable content should survive, got %q", entry.NormalizedRequest)
	}
}

// TestNormalize_LowerCases verifies case folding.
func TestNormalize_LowerCases(t *testing.T) {
	entry := Normalize(ParsedEntry{Request: "SELECT * FROM Users"})

	if entry.NormalizedRequest != "select * from users" {
		t.Errorf("got %q", entry.NormalizedRequest)
	}
}

// TestNormalize_LengthCap verifies oversized payloads keep head and tail
// joined by the elision marker.
func TestNormalize_LengthCap(t *testing.T) {
	head := strings.Repeat("a", 1500)
	tail := strings.Repeat("z", 1500)
	entry := Normalize(ParsedEntry{Raw: head + tail})

	got := entry.NormalizedRaw
	if len(got) != halfNormalized*2+len(elisionMarker) {
		t.Fatalf("capped length = %d, want %d", len(got), halfNormalized*2+len(elisionMarker))
	}
	if !strings.HasPrefix(got, "aaa") || !strings.HasSuffix(got, "zzz") {
		t.Error("head and tail should both be preserved")
	}
	if !strings.Contains(got, elisionMarker) {
		t.Error("elision marker missing")
	}
}

// =============================================================================
// Invariant Tests
// =============================================================================

// TestNormalize_Idempotent verifies normalizing an already-normalized payload
// produces the same result.
func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"GET /?q=%2527 HTTP/1.1",
		"&lt;svg onload=alert(1)&gt;",
		strings.Repeat("A%20B", 900), // forces the length cap
		"plain text, nothing special",
	}

	for _, in := range inputs {
		once := Normalize(ParsedEntry{Request: in, Raw: in})
		twice := Normalize(ParsedEntry{
			Request: once.NormalizedRequest,
			Raw:     once.NormalizedRaw,
		})

		if twice.NormalizedRequest != once.NormalizedRequest {
			t.Errorf("request not idempotent for %.40q", in)
		}
		if twice.NormalizedRaw != once.NormalizedRaw {
			t.Errorf("raw not idempotent for %.40q", in)
		}
	}
}

// TestNormalize_OriginalUntouched verifies normalization never mutates the
// parsed fields it was given.
func TestNormalize_OriginalUntouched(t *testing.T) {
	parsed := ParsedEntry{
		IP:      "10.0.0.1",
		Request: "GET /INDEX%2ehtml",
		Raw:     "ORIGINAL LINE",
	}
	entry := Normalize(parsed)

	if entry.Request != "GET /INDEX%2ehtml" || entry.Raw != "ORIGINAL LINE" {
		t.Errorf("embedded entry changed: %+v", entry.ParsedEntry)
	}
}
