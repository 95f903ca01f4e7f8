package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"logwarden/internal/parse"
)

const (
	ipinfoURLFormat = "https://ipinfo.io/%s/json"

	defaultEnrichTimeout   = 3 * time.Second
	defaultEnrichCacheSize = 5000
)

// EnricherConfig configures IP geo/ownership enrichment.
type EnricherConfig struct {
	Enabled    bool          `yaml:"enabled"`
	CachePath  string        `yaml:"cache_path"`
	MaxEntries int           `yaml:"max_entries"`
	Timeout    time.Duration `yaml:"timeout"`
}

// IPInfo is the enrichment record for one address.
type IPInfo struct {
	IP       string `json:"ip"`
	City     string `json:"city,omitempty"`
	Region   string `json:"region,omitempty"`
	Country  string `json:"country,omitempty"`
	Org      string `json:"org,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Private  bool   `json:"private,omitempty"`
}

// Enricher looks up public-address context for reporting. Lookups are
// cache-first with a bounded LRU; private and sentinel addresses resolve
// locally without any network call.
type Enricher struct {
	enabled   bool
	cache     *lru.Cache[string, IPInfo]
	cachePath string
	client    *http.Client
	logger    *zap.Logger

	fileMu sync.Mutex
}

// NewEnricher builds an enricher and warms its cache from disk.
func NewEnricher(cfg EnricherConfig, logger *zap.Logger) (*Enricher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultEnrichCacheSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultEnrichTimeout
	}

	cache, err := lru.New[string, IPInfo](cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("creating enrichment cache: %w", err)
	}

	e := &Enricher{
		enabled:   cfg.Enabled,
		cache:     cache,
		cachePath: cfg.CachePath,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}
	e.loadCache()
	return e, nil
}

// Lookup returns enrichment for an address. It degrades to a bare record on
// any failure; the caller never sees an error from the enrichment path.
func (e *Enricher) Lookup(ctx context.Context, ip string) IPInfo {
	if ip == "" || ip == parse.Unknown {
		return IPInfo{IP: ip}
	}

	if IsPrivateAddr(ip) {
		return IPInfo{IP: ip, Private: true, Org: "Private / Reserved Range"}
	}

	if info, ok := e.cache.Get(ip); ok {
		return info
	}

	if !e.enabled {
		return IPInfo{IP: ip}
	}

	info, err := e.fetch(ctx, ip)
	if err != nil {
		e.logger.Debug("ip enrichment failed", zap.String("ip", ip), zap.Error(err))
		return IPInfo{IP: ip}
	}

	e.cache.Add(ip, info)
	e.persistCache()
	return info
}

func (e *Enricher) fetch(ctx context.Context, ip string) (IPInfo, error) {
	url := fmt.Sprintf(ipinfoURLFormat, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return IPInfo{}, fmt.Errorf("creating enrichment request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return IPInfo{}, fmt.Errorf("fetching enrichment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return IPInfo{}, fmt.Errorf("enrichment returned status %d", resp.StatusCode)
	}

	var info IPInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return IPInfo{}, fmt.Errorf("decoding enrichment: %w", err)
	}
	info.IP = ip
	return info, nil
}

// IsPrivateAddr reports whether ip is private, loopback, link-local, or
// otherwise non-routable. Unparseable addresses are treated as private so
// they are never sent to external services.
func IsPrivateAddr(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return true
	}
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified()
}

func (e *Enricher) loadCache() {
	if e.cachePath == "" {
		return
	}
	data, err := os.ReadFile(e.cachePath)
	if err != nil {
		return
	}
	var entries map[string]IPInfo
	if err := json.Unmarshal(data, &entries); err != nil {
		e.logger.Warn("enrichment cache invalid", zap.Error(err))
		return
	}
	for ip, info := range entries {
		e.cache.Add(ip, info)
	}
}

// persistCache snapshots the LRU to disk, best effort, atomic write.
func (e *Enricher) persistCache() {
	if e.cachePath == "" {
		return
	}
	e.fileMu.Lock()
	defer e.fileMu.Unlock()

	entries := make(map[string]IPInfo, e.cache.Len())
	for _, ip := range e.cache.Keys() {
		if info, ok := e.cache.Peek(ip); ok {
			entries[ip] = info
		}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return
	}

	if err := os.MkdirAll(filepath.Dir(e.cachePath), 0o755); err != nil {
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(e.cachePath), ".enrich-*.tmp")
	if err != nil {
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err == nil && tmp.Close() == nil {
		_ = os.Rename(tmpName, e.cachePath)
	} else {
		tmp.Close()
		os.Remove(tmpName)
	}
}
