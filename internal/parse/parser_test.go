package parse

import (
	"strings"
	"testing"
)

// =============================================================================
// Combined Log Format Tests
// =============================================================================

// TestLine_CombinedLogFormat verifies that a standard Apache/Nginx combined
// log line is split into its structured fields.
func TestLine_CombinedLogFormat(t *testing.T) {
	line := `127.0.0.1 - - [10/Oct/2000:13:55:36 -0700] "GET /etc/passwd HTTP/1.1" 403`

	entry := Line(line)

	if entry.IP != "127.0.0.1" {
		t.Errorf("ip = %q, want 127.0.0.1", entry.IP)
	}
	if entry.Time != "10/Oct/2000:13:55:36 -0700" {
		t.Errorf("time = %q, want bracketed timestamp", entry.Time)
	}
	if entry.Request != "GET /etc/passwd HTTP/1.1" {
		t.Errorf("request = %q, want quoted request line", entry.Request)
	}
	if entry.Status != "403" {
		t.Errorf("status = %q, want 403", entry.Status)
	}
	if entry.Raw != line {
		t.Errorf("raw should be preserved verbatim, got %q", entry.Raw)
	}
}

// TestLine_CombinedLogWithBody verifies that trailing fields after the status
// code do not break parsing.
func TestLine_CombinedLogWithBody(t *testing.T) {
	entry := Line(`192.168.1.50 - - [11/Nov/2021:08:00:01 +0000] "POST /login HTTP/1.1" 200 2326`)

	if entry.IP != "192.168.1.50" {
		t.Errorf("ip = %q", entry.IP)
	}
	if entry.Status != "200" {
		t.Errorf("status = %q", entry.Status)
	}
}

// =============================================================================
// Fallback Parsing Tests
// =============================================================================

// TestLine_SyslogFallback verifies that lines without the combined-log shape
// still yield IP and timestamp tokens found anywhere in the line.
func TestLine_SyslogFallback(t *testing.T) {
	entry := Line("2023-04-01 12:30:45 sshd: failed login from 203.0.113.9 port 22")

	if entry.IP != "203.0.113.9" {
		t.Errorf("ip = %q, want 203.0.113.9", entry.IP)
	}
	if entry.Time != "2023-04-01 12:30:45" {
		t.Errorf("time = %q, want extracted timestamp", entry.Time)
	}
	if entry.Status != Unknown {
		t.Errorf("status = %q, want %q", entry.Status, Unknown)
	}
}

// TestLine_NoExtractableFields verifies the Unknown sentinel is used when
// neither an IP nor a timestamp token appears.
func TestLine_NoExtractableFields(t *testing.T) {
	entry := Line("completely freeform text with no structure")

	if entry.IP != Unknown {
		t.Errorf("ip = %q, want %q", entry.IP, Unknown)
	}
	if entry.Time != Unknown {
		t.Errorf("time = %q, want %q", entry.Time, Unknown)
	}
	if entry.Raw == "" {
		t.Error("raw should carry the original line")
	}
}

// TestLine_RequestTruncation verifies the fallback request field is capped
// at 200 characters.
func TestLine_RequestTruncation(t *testing.T) {
	entry := Line("x" + strings.Repeat("A", 500))

	if got := len(entry.Request); got != 200 {
		t.Errorf("request length = %d, want 200", got)
	}
	if len(entry.Raw) != 501 {
		t.Errorf("raw should not be truncated, got length %d", len(entry.Raw))
	}
}

// TestLine_EmptyInput verifies empty and whitespace-only lines yield a
// zero-value entry instead of an error.
func TestLine_EmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n"} {
		entry := Line(input)
		if entry != (ParsedEntry{}) {
			t.Errorf("Line(%q) = %+v, want zero value", input, entry)
		}
	}
}

// TestLines_SkipsBlanks verifies batch parsing drops blank lines.
func TestLines_SkipsBlanks(t *testing.T) {
	entries := Lines([]string{"", "10.0.0.1 hit", "  "})

	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].IP != "10.0.0.1" {
		t.Errorf("ip = %q", entries[0].IP)
	}
}
