// Package intel maintains a locally cached set of known-malicious addresses,
// refreshed from external feeds under strict throttling. Detection-time
// lookups are pure in-memory membership checks and never touch the network.
package intel

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"logwarden/internal/parse"
)

const (
	// DefaultThrottle is the minimum interval between successful feed
	// refreshes regardless of caller frequency.
	DefaultThrottle = time.Hour

	defaultFetchTimeout = 6 * time.Second

	userAgent = "logwarden-intel/1.0"
)

// DefaultFeeds is the built-in feed set: stable community blocklists.
func DefaultFeeds() map[string]string {
	return map[string]string{
		"firehol_level1": "https://raw.githubusercontent.com/firehol/blocklist-ipsets/master/firehol_level1.netset",
	}
}

// Config configures the reputation engine.
type Config struct {
	CachePath string            `yaml:"cache_path"`
	Feeds     map[string]string `yaml:"feeds"`
	Throttle  time.Duration     `yaml:"throttle"`
	Timeout   time.Duration     `yaml:"timeout"`
}

// cacheFile is the persisted reputation snapshot. last_updated is epoch
// seconds for compatibility with external consumers of the artifact.
type cacheFile struct {
	IOCs        []string `json:"iocs"`
	LastUpdated float64  `json:"last_updated"`
}

// Engine owns the reputation set. Updates replace the whole set atomically,
// so concurrent readers always observe a consistent snapshot.
type Engine struct {
	mu          sync.RWMutex
	iocs        map[string]struct{}
	lastUpdated time.Time

	updateMu sync.Mutex // collapses concurrent refresh attempts

	cachePath string
	feeds     map[string]string
	throttle  time.Duration
	client    *http.Client
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine builds a reputation engine and loads the persisted cache. A
// missing or corrupt cache file is treated as empty, never as an error.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Throttle <= 0 {
		cfg.Throttle = DefaultThrottle
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if len(cfg.Feeds) == 0 {
		cfg.Feeds = DefaultFeeds()
	}

	e := &Engine{
		iocs:      make(map[string]struct{}),
		cachePath: cfg.CachePath,
		feeds:     cfg.Feeds,
		throttle:  cfg.Throttle,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
		now:       time.Now,
	}
	e.loadCache()
	return e
}

// IsMalicious reports set membership for an address. O(1), no I/O; the
// Unknown sentinel is never malicious.
func (e *Engine) IsMalicious(ip string) bool {
	if ip == "" || ip == parse.Unknown {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.iocs[ip]
	return ok
}

// Size returns the current set cardinality.
func (e *Engine) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.iocs)
}

// LastUpdated returns the time of the last successful refresh.
func (e *Engine) LastUpdated() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastUpdated
}

// Update refreshes the set from the configured feeds. A call within the
// throttle interval of the previous successful refresh is a silent no-op.
// Fetch failures leave the previous set untouched; they are logged and never
// propagated to the analysis path.
func (e *Engine) Update(ctx context.Context) {
	e.updateMu.Lock()
	defer e.updateMu.Unlock()

	e.mu.RLock()
	sinceLast := e.now().Sub(e.lastUpdated)
	e.mu.RUnlock()
	if sinceLast < e.throttle {
		e.logger.Debug("reputation refresh throttled",
			zap.Duration("since_last", sinceLast))
		return
	}

	e.logger.Info("refreshing reputation feeds", zap.Int("feeds", len(e.feeds)))

	collected := make(map[string]struct{})
	for name, url := range e.feeds {
		n, err := e.fetchFeed(ctx, url, collected)
		if err != nil {
			e.logger.Warn("reputation feed failed",
				zap.String("feed", name), zap.Error(err))
			continue
		}
		e.logger.Info("reputation feed loaded",
			zap.String("feed", name), zap.Int("entries", n))
	}

	if len(collected) == 0 {
		e.mu.RLock()
		kept := len(e.iocs)
		e.mu.RUnlock()
		e.logger.Warn("no reputation data fetched, keeping cached set",
			zap.Int("entries", kept))
		return
	}

	now := e.now()
	e.mu.Lock()
	e.iocs = collected
	e.lastUpdated = now
	e.mu.Unlock()

	if err := e.saveCache(collected, now); err != nil {
		e.logger.Warn("reputation cache save failed", zap.Error(err))
	}
}

// fetchFeed downloads one newline-delimited feed, stripping blanks and
// '#' comments, and merges entries into dst.
func (e *Engine) fetchFeed(ctx context.Context, url string, dst map[string]struct{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("creating feed request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	count := 0
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		dst[line] = struct{}{}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("reading feed body: %w", err)
	}
	return count, nil
}

// loadCache restores the persisted snapshot. The cache artifact is untrusted
// and possibly absent; anything unreadable means starting empty.
func (e *Engine) loadCache() {
	if e.cachePath == "" {
		return
	}
	data, err := os.ReadFile(e.cachePath)
	if err != nil {
		if !os.IsNotExist(err) {
			e.logger.Warn("reputation cache unreadable", zap.Error(err))
		}
		return
	}

	var cached cacheFile
	if err := json.Unmarshal(data, &cached); err != nil {
		e.logger.Warn("reputation cache invalid", zap.Error(err))
		return
	}

	set := make(map[string]struct{}, len(cached.IOCs))
	for _, ioc := range cached.IOCs {
		set[ioc] = struct{}{}
	}

	e.mu.Lock()
	e.iocs = set
	if cached.LastUpdated > 0 {
		sec := int64(cached.LastUpdated)
		nsec := int64((cached.LastUpdated - float64(sec)) * float64(time.Second))
		e.lastUpdated = time.Unix(sec, nsec)
	}
	e.mu.Unlock()

	e.logger.Info("reputation cache loaded", zap.Int("entries", len(set)))
}

// saveCache writes the snapshot through a temp file and rename, so a crash
// mid-write never corrupts the live cache.
func (e *Engine) saveCache(set map[string]struct{}, updated time.Time) error {
	if e.cachePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(e.cachePath), 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	iocs := make([]string, 0, len(set))
	for ioc := range set {
		iocs = append(iocs, ioc)
	}
	data, err := json.MarshalIndent(cacheFile{
		IOCs:        iocs,
		LastUpdated: float64(updated.UnixNano()) / float64(time.Second),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(e.cachePath), ".reputation-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp cache: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp cache: %w", err)
	}
	if err := os.Rename(tmpName, e.cachePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming cache: %w", err)
	}

	e.logger.Info("reputation cache saved", zap.Int("entries", len(iocs)))
	return nil
}
