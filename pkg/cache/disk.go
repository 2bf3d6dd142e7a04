package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/restakelabs/restakex/pkg/utils"
	"go.uber.org/zap"
)

// entryMeta is the in-memory index record for one persisted entry.
type entryMeta struct {
	CreatedAt  int64
	TTLSeconds int64
	Size       int64
}

// envelope is the on-disk entry format: payload plus the expiry bookkeeping.
// created_at + ttl_seconds is the expiry instant.
type envelope struct {
	Key        string          `json:"key"`
	CreatedAt  int64           `json:"created_at"`
	TTLSeconds int64           `json:"ttl_seconds"`
	Payload    json.RawMessage `json:"payload"`
}

// DiskCache persists entries one file per key under <dir>/<namespace>/.
// Expired entries are evicted lazily on the next Get or an explicit Sweep;
// the per-namespace size bound is checked opportunistically on Put, evicting
// oldest entries by created-at first.
type DiskCache struct {
	logger   *zap.Logger
	dir      string
	maxBytes int64

	// now is injectable so tests can simulate clock advance.
	now func() time.Time

	// mu serializes writes (put, evict, clear, sweep); gets are lock-free
	// against the index. The outer map is built once in NewDiskCache and never
	// written again, so lock-free reads of c.index[ns] are safe; all mutation
	// goes through the per-namespace xsync maps.
	mu    sync.Mutex
	index map[Namespace]*xsync.Map[string, entryMeta]
}

// NewDiskCache opens (creating if needed) a disk cache rooted at dir and
// rebuilds the entry index from whatever is already persisted there.
// Environment:
//   - CACHE_DIR: cache directory (default ".cache")
//   - CACHE_MAX_MB: per-namespace soft size bound in MiB (default 1000)
func NewDiskCache(logger *zap.Logger, dir string) (*DiskCache, error) {
	if dir == "" {
		dir = utils.Env("CACHE_DIR", ".cache")
	}
	maxBytes := utils.EnvInt64("CACHE_MAX_MB", 1000) << 20

	c := &DiskCache{
		logger:   logger.With(zap.String("component", "disk_cache"), zap.String("dir", dir)),
		dir:      dir,
		maxBytes: maxBytes,
		now:      time.Now,
		index:    make(map[Namespace]*xsync.Map[string, entryMeta], len(Namespaces)),
	}

	for _, ns := range Namespaces {
		if err := os.MkdirAll(c.namespaceDir(ns), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir for %s: %w", ns, err)
		}
		c.index[ns] = xsync.NewMap[string, entryMeta]()
		c.rebuildIndex(ns)
	}

	c.logger.Info("Disk cache ready", zap.Int64("max_bytes_per_namespace", maxBytes))
	return c, nil
}

// SetClock overrides the cache clock. Tests only.
func (c *DiskCache) SetClock(now func() time.Time) { c.now = now }

func (c *DiskCache) namespaceDir(ns Namespace) string {
	return filepath.Join(c.dir, string(ns))
}

func (c *DiskCache) entryPath(ns Namespace, key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.namespaceDir(ns), hex.EncodeToString(sum[:])+".json")
}

// rebuildIndex scans a namespace directory and re-admits every readable
// envelope. Unreadable files are removed: a corrupt entry is a miss, never an
// error.
func (c *DiskCache) rebuildIndex(ns Namespace) {
	entries, err := os.ReadDir(c.namespaceDir(ns))
	if err != nil {
		c.logger.Warn("Unable to scan cache namespace", zap.String("namespace", string(ns)), zap.Error(err))
		return
	}
	for _, dirEntry := range entries {
		if dirEntry.IsDir() || filepath.Ext(dirEntry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(c.namespaceDir(ns), dirEntry.Name())
		env, size, readErr := readEnvelope(path)
		if readErr != nil {
			c.logger.Warn("Dropping unreadable cache entry", zap.String("path", path), zap.Error(readErr))
			_ = os.Remove(path)
			continue
		}
		c.index[ns].Store(env.Key, entryMeta{CreatedAt: env.CreatedAt, TTLSeconds: env.TTLSeconds, Size: size})
	}
}

// Get implements Store.
func (c *DiskCache) Get(_ context.Context, ns Namespace, key string, out any) bool {
	idx, ok := c.index[ns]
	if !ok {
		return false
	}
	meta, ok := idx.Load(key)
	if !ok {
		return false
	}

	if c.now().Unix() >= meta.CreatedAt+meta.TTLSeconds {
		c.evict(ns, key, meta.CreatedAt)
		return false
	}

	env, _, err := readEnvelope(c.entryPath(ns, key))
	if err != nil {
		c.logger.Warn("Cache entry unreadable, treating as miss",
			zap.String("namespace", string(ns)), zap.String("key", key), zap.Error(err))
		c.evict(ns, key, meta.CreatedAt)
		return false
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		c.logger.Warn("Cache payload corrupt, treating as miss",
			zap.String("namespace", string(ns)), zap.String("key", key), zap.Error(err))
		c.evict(ns, key, meta.CreatedAt)
		return false
	}
	return true
}

// Put implements Store.
func (c *DiskCache) Put(_ context.Context, ns Namespace, key string, value any, ttl time.Duration) {
	idx, ok := c.index[ns]
	if !ok {
		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Unable to encode cache payload",
			zap.String("namespace", string(ns)), zap.String("key", key), zap.Error(err))
		return
	}

	env := envelope{
		Key:        key,
		CreatedAt:  c.now().Unix(),
		TTLSeconds: int64(ttl / time.Second),
		Payload:    payload,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		c.logger.Warn("Unable to encode cache envelope", zap.String("key", key), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.entryPath(ns, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		c.logger.Warn("Unable to persist cache entry", zap.String("path", path), zap.Error(err))
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		c.logger.Warn("Unable to persist cache entry", zap.String("path", path), zap.Error(err))
		_ = os.Remove(tmp)
		return
	}

	idx.Store(key, entryMeta{CreatedAt: env.CreatedAt, TTLSeconds: env.TTLSeconds, Size: int64(len(raw))})
	c.enforceSizeBound(ns)
}

// Stats implements Store. It reports physical occupancy: entries past their
// TTL but not yet swept still count until a Get or Sweep removes them.
func (c *DiskCache) Stats(_ context.Context) (map[Namespace]NamespaceStats, error) {
	out := make(map[Namespace]NamespaceStats, len(c.index))
	for ns, idx := range c.index {
		var stats NamespaceStats
		idx.Range(func(_ string, meta entryMeta) bool {
			stats.Count++
			stats.TotalSizeBytes += meta.Size
			return true
		})
		out[ns] = stats
	}
	return out, nil
}

// Clear implements Store.
func (c *DiskCache) Clear(_ context.Context, ns Namespace) error {
	targets := Namespaces
	if ns != "" {
		if !ns.Valid() {
			return fmt.Errorf("unknown cache namespace %q", ns)
		}
		targets = []Namespace{ns}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, target := range targets {
		if err := os.RemoveAll(c.namespaceDir(target)); err != nil {
			return fmt.Errorf("clear namespace %s: %w", target, err)
		}
		if err := os.MkdirAll(c.namespaceDir(target), 0o755); err != nil {
			return fmt.Errorf("recreate namespace %s: %w", target, err)
		}
		// Clear in place: replacing the map value would race with lock-free
		// readers of c.index.
		c.index[target].Clear()
	}
	return nil
}

// Sweep implements Store: removes every entry past its expiry instant.
func (c *DiskCache) Sweep(_ context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().Unix()
	evicted := 0
	for ns, idx := range c.index {
		var stale []string
		idx.Range(func(key string, meta entryMeta) bool {
			if now >= meta.CreatedAt+meta.TTLSeconds {
				stale = append(stale, key)
			}
			return true
		})
		for _, key := range stale {
			_ = os.Remove(c.entryPath(ns, key))
			idx.Delete(key)
			evicted++
		}
	}
	if evicted > 0 {
		c.logger.Debug("Cache sweep complete", zap.Int("evicted", evicted))
	}
	return evicted
}

// Close implements Store. The disk cache holds no open handles.
func (c *DiskCache) Close() error { return nil }

// evict removes one entry from disk and the index. createdAt is the entry the
// caller observed; a Put refreshing the key between the caller's check and the
// lock leaves the fresh entry untouched.
func (c *DiskCache) evict(ns Namespace, key string, createdAt int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta, ok := c.index[ns].Load(key)
	if !ok || meta.CreatedAt != createdAt {
		return
	}
	_ = os.Remove(c.entryPath(ns, key))
	c.index[ns].Delete(key)
}

// enforceSizeBound drops oldest-written entries until the namespace is back
// under the soft bound. Caller holds mu. Write-time ordering, not access
// time: there is no access tracking.
func (c *DiskCache) enforceSizeBound(ns Namespace) {
	idx := c.index[ns]

	type aged struct {
		key  string
		meta entryMeta
	}
	var entries []aged
	var total int64
	idx.Range(func(key string, meta entryMeta) bool {
		entries = append(entries, aged{key: key, meta: meta})
		total += meta.Size
		return true
	})
	if total <= c.maxBytes {
		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].meta.CreatedAt < entries[j].meta.CreatedAt })
	for _, entry := range entries {
		if total <= c.maxBytes {
			break
		}
		_ = os.Remove(c.entryPath(ns, entry.key))
		idx.Delete(entry.key)
		total -= entry.meta.Size
		c.logger.Debug("Evicted cache entry for size bound",
			zap.String("namespace", string(ns)), zap.String("key", entry.key))
	}
}

func readEnvelope(path string) (*envelope, int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, 0, err
	}
	if env.Key == "" {
		return nil, 0, fmt.Errorf("envelope missing key")
	}
	return &env, int64(len(raw)), nil
}
