package respond

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// =============================================================================
// Guard Tests
// =============================================================================

// TestFirewallBlock_RefusesUnsafeAddresses verifies private, loopback, and
// unknown addresses are never blocked.
func TestFirewallBlock_RefusesUnsafeAddresses(t *testing.T) {
	tests := []struct {
		name string
		ip   string
	}{
		{"unknown sentinel", "UNKNOWN"},
		{"empty", ""},
		{"loopback", "127.0.0.1"},
		{"rfc1918", "192.168.1.5"},
		{"link local", "169.254.0.1"},
	}

	f := NewFirewall(FirewallConfig{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := criticalDetection(tt.ip)
			if err := f.Block(context.Background(), det); err == nil {
				t.Errorf("Block(%q) should be refused", tt.ip)
			}
			if f.IsBlocked(tt.ip) {
				t.Errorf("%q should not appear in the ledger", tt.ip)
			}
		})
	}
}

// =============================================================================
// Ledger Tests
// =============================================================================

// TestFirewallBlock_WritesLedgerEntry verifies a block produces a complete
// audit entry on disk.
func TestFirewallBlock_WritesLedgerEntry(t *testing.T) {
	ledgerPath := filepath.Join(t.TempDir(), "blocked_ips.json")
	f := NewFirewall(FirewallConfig{LedgerPath: ledgerPath}, nil)

	if err := f.Block(context.Background(), criticalDetection("203.0.113.9")); err != nil {
		t.Fatalf("Block failed: %v", err)
	}

	data, err := os.ReadFile(ledgerPath)
	if err != nil {
		t.Fatalf("ledger should be written: %v", err)
	}
	ledger := make(map[string]LedgerEntry)
	if err := json.Unmarshal(data, &ledger); err != nil {
		t.Fatalf("ledger should be valid JSON: %v", err)
	}

	entry, ok := ledger["203.0.113.9"]
	if !ok {
		t.Fatal("blocked address missing from ledger")
	}
	if entry.BlockedAt == "" {
		t.Error("blocked_at should be set")
	}
	if entry.RuleName != "SQL Injection" {
		t.Errorf("rule_name = %q, want %q", entry.RuleName, "SQL Injection")
	}
	if !entry.IOCConfirmed {
		t.Error("ioc_confirmed should carry the detection's reputation flag")
	}
	if entry.OS != runtime.GOOS {
		t.Errorf("os = %q, want %q", entry.OS, runtime.GOOS)
	}
	if runtime.GOOS != "windows" && entry.Method != "audit-only" {
		t.Errorf("method = %q, want audit-only off windows", entry.Method)
	}
}

// TestFirewallBlock_NeverBlocksTwice verifies an already-ledgered address is
// a no-op, including across restarts.
func TestFirewallBlock_NeverBlocksTwice(t *testing.T) {
	ledgerPath := filepath.Join(t.TempDir(), "blocked_ips.json")
	f := NewFirewall(FirewallConfig{LedgerPath: ledgerPath}, nil)

	det := criticalDetection("203.0.113.9")
	if err := f.Block(context.Background(), det); err != nil {
		t.Fatalf("first Block failed: %v", err)
	}
	if err := f.Block(context.Background(), det); err != nil {
		t.Fatalf("repeat Block should be a no-op, got %v", err)
	}
	if got := len(f.Blocked()); got != 1 {
		t.Errorf("ledger has %d entries, want 1", got)
	}

	// Fresh instance over the same ledger file.
	restarted := NewFirewall(FirewallConfig{LedgerPath: ledgerPath}, nil)
	if !restarted.IsBlocked("203.0.113.9") {
		t.Error("ledger entry should survive a restart")
	}
	if err := restarted.Block(context.Background(), det); err != nil {
		t.Fatalf("Block after restart should be a no-op, got %v", err)
	}
	if got := len(restarted.Blocked()); got != 1 {
		t.Errorf("ledger has %d entries after restart, want 1", got)
	}
}

// TestFirewall_CorruptLedgerStartsEmpty verifies an unreadable ledger does
// not prevent construction.
func TestFirewall_CorruptLedgerStartsEmpty(t *testing.T) {
	ledgerPath := filepath.Join(t.TempDir(), "blocked_ips.json")
	if err := os.WriteFile(ledgerPath, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := NewFirewall(FirewallConfig{LedgerPath: ledgerPath}, nil)
	if got := len(f.Blocked()); got != 0 {
		t.Errorf("ledger has %d entries, want 0", got)
	}
}
