// Package parse turns raw log lines into structured, detection-ready entries.
// Parsing extracts fields and preserves the original evidence; it performs no
// detection of its own.
package parse

import (
	"regexp"
	"strings"
)

// Unknown is the sentinel value for fields that could not be extracted.
const Unknown = "UNKNOWN"

// maxFallbackRequestLen bounds the free-text request field when a line does
// not match a known log format.
const maxFallbackRequestLen = 200

// ParsedEntry is a structured view of a single log line. Raw always carries
// the original line untouched.
type ParsedEntry struct {
	IP      string `json:"ip"`
	Time    string `json:"time"`
	Request string `json:"request"`
	Status  string `json:"status"`
	Raw     string `json:"raw"`
}

// Apache/Nginx combined log format:
// 127.0.0.1 - - [10/Oct/2000:13:55:36 -0700] "GET /foo HTTP/1.1" 200 2326
var combinedLogPattern = regexp.MustCompile(
	`(\d{1,3}(?:\.\d{1,3}){3})\s+-\s+-\s+\[([^\]]+)\]\s+"([^"]+)"\s+(\d{3})`,
)

// Fallback patterns for syslog-like and free-form application logs.
var (
	ipPattern   = regexp.MustCompile(`\d{1,3}(?:\.\d{1,3}){3}`)
	timePattern = regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}[ T]\d{2}:\d{2}:\d{2}`)
)

// Line parses a single raw log line into structured fields. It never fails:
// unextractable fields fall back to the Unknown sentinel and empty input
// yields a zero-value entry.
func Line(line string) ParsedEntry {
	line = strings.TrimSpace(line)
	if line == "" {
		return ParsedEntry{}
	}

	if m := combinedLogPattern.FindStringSubmatch(line); m != nil {
		return ParsedEntry{
			IP:      m[1],
			Time:    m[2],
			Request: m[3],
			Status:  m[4],
			Raw:     line,
		}
	}

	entry := ParsedEntry{
		IP:      Unknown,
		Time:    Unknown,
		Request: line,
		Status:  Unknown,
		Raw:     line,
	}
	if m := ipPattern.FindString(line); m != "" {
		entry.IP = m
	}
	if m := timePattern.FindString(line); m != "" {
		entry.Time = m
	}
	// Hard truncation keeps pathological lines out of downstream matching.
	if r := []rune(entry.Request); len(r) > maxFallbackRequestLen {
		entry.Request = string(r[:maxFallbackRequestLen])
	}
	return entry
}

// Lines parses a batch of raw lines, skipping blanks.
func Lines(lines []string) []ParsedEntry {
	entries := make([]ParsedEntry, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, Line(line))
	}
	return entries
}
