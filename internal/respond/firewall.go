package respond

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"logwarden/internal/detect"
	"logwarden/internal/intel"
	"logwarden/internal/parse"
)

const windowsBlockRuleFormat = "logwarden block %s"

// LedgerEntry is one audited block, keyed by address in the ledger file.
type LedgerEntry struct {
	BlockedAt    string `json:"blocked_at"`
	Reason       string `json:"reason"`
	IOCConfirmed bool   `json:"ioc_confirmed"`
	OS           string `json:"os"`
	Method       string `json:"method"`
	RuleName     string `json:"rule_name"`
}

// FirewallConfig configures the block enforcer.
type FirewallConfig struct {
	LedgerPath string `yaml:"ledger_path"`
}

// Firewall blocks addresses at the host firewall where the platform supports
// it (netsh on Windows) and records every block in an append-only JSON
// ledger. On other platforms it runs audit-only: ledger entries are written
// but no OS rule is installed. An address already in the ledger is never
// blocked twice, across restarts included.
type Firewall struct {
	ledgerPath string
	logger     *zap.Logger

	mu     sync.Mutex
	ledger map[string]LedgerEntry

	now      func() time.Time
	startCmd func(name string, args ...string) error
}

// NewFirewall loads the existing ledger, treating a missing or unreadable
// file as empty.
func NewFirewall(cfg FirewallConfig, logger *zap.Logger) *Firewall {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Firewall{
		ledgerPath: cfg.LedgerPath,
		logger:     logger,
		ledger:     make(map[string]LedgerEntry),
		now:        time.Now,
		startCmd:   startCommand,
	}
	f.loadLedger()
	return f
}

// Block enforces a block for the detection's source address. Private,
// loopback, and unknown addresses are refused. Enforcement is best effort;
// the ledger entry is written regardless so the block is never retried.
func (f *Firewall) Block(ctx context.Context, det detect.Detection) error {
	ip := det.IP
	if ip == "" || ip == parse.Unknown {
		return fmt.Errorf("refusing to block unknown address")
	}
	if intel.IsPrivateAddr(ip) {
		return fmt.Errorf("refusing to block private or loopback address %s", ip)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.ledger[ip]; ok {
		f.logger.Debug("address already blocked", zap.String("ip", ip))
		return nil
	}

	method := "audit-only"
	if runtime.GOOS == "windows" {
		method = "netsh"
		ruleName := fmt.Sprintf(windowsBlockRuleFormat, ip)
		if err := f.startCmd("netsh", "advfirewall", "firewall", "add", "rule",
			"name="+ruleName, "dir=in", "action=block", "remoteip="+ip); err != nil {
			f.logger.Warn("firewall command failed to start",
				zap.String("ip", ip), zap.Error(err))
			method = "audit-only"
		}
	}

	entry := LedgerEntry{
		BlockedAt:    f.now().UTC().Format(time.RFC3339),
		Reason:       "automated response: " + det.Rule,
		IOCConfirmed: det.IOCHit,
		OS:           runtime.GOOS,
		Method:       method,
		RuleName:     det.Rule,
	}
	f.ledger[ip] = entry

	if err := f.saveLedger(); err != nil {
		f.logger.Warn("block ledger save failed", zap.Error(err))
	}

	f.logger.Info("address blocked",
		zap.String("ip", ip),
		zap.String("method", method),
		zap.String("rule", det.Rule),
		zap.Bool("ioc_confirmed", det.IOCHit))
	return nil
}

// IsBlocked reports whether the address already has a ledger entry.
func (f *Firewall) IsBlocked(ip string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ledger[ip]
	return ok
}

// Blocked returns a copy of the ledger.
func (f *Firewall) Blocked() map[string]LedgerEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]LedgerEntry, len(f.ledger))
	for ip, entry := range f.ledger {
		out[ip] = entry
	}
	return out
}

func (f *Firewall) loadLedger() {
	if f.ledgerPath == "" {
		return
	}
	data, err := os.ReadFile(f.ledgerPath)
	if err != nil {
		if !os.IsNotExist(err) {
			f.logger.Warn("block ledger unreadable", zap.Error(err))
		}
		return
	}
	ledger := make(map[string]LedgerEntry)
	if err := json.Unmarshal(data, &ledger); err != nil {
		f.logger.Warn("block ledger invalid", zap.Error(err))
		return
	}
	f.ledger = ledger
	f.logger.Info("block ledger loaded", zap.Int("entries", len(ledger)))
}

// saveLedger writes the full ledger through a temp file and rename. Entries
// are only ever added, never removed. Callers hold f.mu.
func (f *Firewall) saveLedger() error {
	if f.ledgerPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.ledgerPath), 0o755); err != nil {
		return fmt.Errorf("creating ledger dir: %w", err)
	}
	data, err := json.MarshalIndent(f.ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.ledgerPath), ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, f.ledgerPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing ledger: %w", err)
	}
	return nil
}

// startCommand launches an enforcement command without waiting for it. The
// process is reaped in the background so a slow command never stalls the
// detection path.
func startCommand(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
