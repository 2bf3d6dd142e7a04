package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) *DiskCache {
	t.Helper()
	logger := zap.NewNop()
	c, err := NewDiskCache(logger, t.TempDir())
	require.NoError(t, err)
	return c
}

func TestDiskCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	c.Put(ctx, NamespaceRPC, "block:latest", payload{Name: "head", Count: 42}, time.Minute)

	var got payload
	require.True(t, c.Get(ctx, NamespaceRPC, "block:latest", &got))
	assert.Equal(t, "head", got.Name)
	assert.Equal(t, 42, got.Count)

	// Same key in a different namespace is a distinct entry
	var miss payload
	assert.False(t, c.Get(ctx, NamespacePrices, "block:latest", &miss))
}

func TestDiskCacheMissOnUnknownKey(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	var out string
	assert.False(t, c.Get(ctx, NamespacePrices, "nope", &out))
}

func TestDiskCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	base := time.Unix(1_700_000_000, 0)
	c.SetClock(func() time.Time { return base })

	c.Put(ctx, NamespacePrices, "steth", "3200.55", 10*time.Minute)

	var out string
	require.True(t, c.Get(ctx, NamespacePrices, "steth", &out))
	assert.Equal(t, "3200.55", out)

	// One second before expiry: still fresh
	c.SetClock(func() time.Time { return base.Add(10*time.Minute - time.Second) })
	require.True(t, c.Get(ctx, NamespacePrices, "steth", &out))

	// At the expiry instant the entry is stale and gets evicted
	c.SetClock(func() time.Time { return base.Add(10 * time.Minute) })
	assert.False(t, c.Get(ctx, NamespacePrices, "steth", &out))

	// The lazy eviction removed it physically too
	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats[NamespacePrices].Count)
}

func TestDiskCacheOverwriteResetsTTL(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	base := time.Unix(1_700_000_000, 0)
	c.SetClock(func() time.Time { return base })
	c.Put(ctx, NamespaceRPC, "k", "v1", time.Minute)

	// Re-put half way through the original TTL
	c.SetClock(func() time.Time { return base.Add(30 * time.Second) })
	c.Put(ctx, NamespaceRPC, "k", "v2", time.Minute)

	// Past the original expiry but within the refreshed one
	c.SetClock(func() time.Time { return base.Add(80 * time.Second) })
	var out string
	require.True(t, c.Get(ctx, NamespaceRPC, "k", &out))
	assert.Equal(t, "v2", out)
}

func TestDiskCacheStatsCountExpiredUnswept(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	base := time.Unix(1_700_000_000, 0)
	c.SetClock(func() time.Time { return base })
	c.Put(ctx, NamespaceContracts, "decimals:0xabc", 18, time.Minute)

	// Expired but never read nor swept: still physically present
	c.SetClock(func() time.Time { return base.Add(time.Hour) })
	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[NamespaceContracts].Count)
	assert.Greater(t, stats[NamespaceContracts].TotalSizeBytes, int64(0))

	// Sweep removes it
	assert.Equal(t, 1, c.Sweep(ctx))
	stats, err = c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats[NamespaceContracts].Count)
}

func TestDiskCacheSweepKeepsFreshEntries(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	base := time.Unix(1_700_000_000, 0)
	c.SetClock(func() time.Time { return base })
	c.Put(ctx, NamespaceRPC, "stale", "a", time.Minute)
	c.Put(ctx, NamespaceRPC, "fresh", "b", time.Hour)

	c.SetClock(func() time.Time { return base.Add(10 * time.Minute) })
	assert.Equal(t, 1, c.Sweep(ctx))

	var out string
	assert.True(t, c.Get(ctx, NamespaceRPC, "fresh", &out))
	assert.False(t, c.Get(ctx, NamespaceRPC, "stale", &out))
}

func TestDiskCacheClearSingleNamespace(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	c.Put(ctx, NamespaceRPC, "a", 1, time.Hour)
	c.Put(ctx, NamespacePrices, "b", 2, time.Hour)

	require.NoError(t, c.Clear(ctx, NamespacePrices))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[NamespaceRPC].Count)
	assert.Equal(t, 0, stats[NamespacePrices].Count)
}

func TestDiskCacheClearAll(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	c.Put(ctx, NamespaceRPC, "a", 1, time.Hour)
	c.Put(ctx, NamespacePrices, "b", 2, time.Hour)
	c.Put(ctx, NamespaceContracts, "c", 3, time.Hour)

	require.NoError(t, c.Clear(ctx, ""))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	for _, ns := range Namespaces {
		assert.Equal(t, 0, stats[ns].Count)
	}

	// Clearing an empty namespace is a no-op, not an error
	require.NoError(t, c.Clear(ctx, NamespaceRPC))
}

func TestDiskCacheClearKeepsIndexIdentity(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	c.Put(ctx, NamespaceRPC, "k", "v", time.Hour)

	// Lock-free readers hold references into c.index, so Clear must empty the
	// per-namespace map in place rather than swap it out.
	idx := c.index[NamespaceRPC]
	require.NoError(t, c.Clear(ctx, NamespaceRPC))
	assert.Same(t, idx, c.index[NamespaceRPC])

	var out string
	assert.False(t, c.Get(ctx, NamespaceRPC, "k", &out))

	// The cache stays usable through the same index
	c.Put(ctx, NamespaceRPC, "k", "v2", time.Hour)
	require.True(t, c.Get(ctx, NamespaceRPC, "k", &out))
	assert.Equal(t, "v2", out)
}

func TestDiskCacheConcurrentReadersDuringClear(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	c.Put(ctx, NamespaceRPC, "k", "v", time.Hour)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			var out string
			_ = c.Get(ctx, NamespaceRPC, "k", &out)
			_, _ = c.Stats(ctx)
		}
	}()

	for i := 0; i < 100; i++ {
		require.NoError(t, c.Clear(ctx, NamespaceRPC))
		c.Put(ctx, NamespaceRPC, "k", "v", time.Hour)
	}
	close(stop)
	wg.Wait()

	var out string
	require.True(t, c.Get(ctx, NamespaceRPC, "k", &out))
	assert.Equal(t, "v", out)
}

func TestDiskCacheEvictSkipsRefreshedEntry(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	base := time.Unix(1_700_000_000, 0)
	c.SetClock(func() time.Time { return base })
	c.Put(ctx, NamespaceRPC, "k", "old", time.Minute)

	staleMeta, ok := c.index[NamespaceRPC].Load("k")
	require.True(t, ok)

	// A refresh lands between a reader's expiry check and its eviction
	c.SetClock(func() time.Time { return base.Add(time.Hour) })
	c.Put(ctx, NamespaceRPC, "k", "new", time.Minute)

	c.evict(NamespaceRPC, "k", staleMeta.CreatedAt)

	var out string
	require.True(t, c.Get(ctx, NamespaceRPC, "k", &out))
	assert.Equal(t, "new", out)
}

func TestDiskCacheClearUnknownNamespace(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	assert.Error(t, c.Clear(ctx, Namespace("bogus")))
}

func TestDiskCacheCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	c.Put(ctx, NamespaceRPC, "chain:id", uint64(1), time.Hour)

	// Mangle the file behind the cache's back
	path := c.entryPath(NamespaceRPC, "chain:id")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var out uint64
	assert.False(t, c.Get(ctx, NamespaceRPC, "chain:id", &out))

	// The corrupt entry was evicted
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDiskCacheRebuildIndex(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	dir := t.TempDir()

	first, err := NewDiskCache(logger, dir)
	require.NoError(t, err)
	first.Put(ctx, NamespacePrices, "eigen", "4.20", time.Hour)

	// A second cache over the same directory sees the persisted entry
	second, err := NewDiskCache(logger, dir)
	require.NoError(t, err)

	var out string
	require.True(t, second.Get(ctx, NamespacePrices, "eigen", &out))
	assert.Equal(t, "4.20", out)
}

func TestDiskCacheRebuildDropsGarbageFiles(t *testing.T) {
	logger := zap.NewNop()
	dir := t.TempDir()

	nsDir := filepath.Join(dir, string(NamespaceRPC))
	require.NoError(t, os.MkdirAll(nsDir, 0o755))
	garbage := filepath.Join(nsDir, "deadbeef.json")
	require.NoError(t, os.WriteFile(garbage, []byte("???"), 0o644))

	_, err := NewDiskCache(logger, dir)
	require.NoError(t, err)

	_, statErr := os.Stat(garbage)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDiskCacheSizeBoundEvictsOldest(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	c, err := NewDiskCache(logger, t.TempDir())
	require.NoError(t, err)
	// Roughly two entries worth of room
	c.maxBytes = 300

	base := time.Unix(1_700_000_000, 0)
	clock := base
	c.SetClock(func() time.Time { return clock })

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = 'x'
	}

	c.Put(ctx, NamespaceRPC, "oldest", string(payload), time.Hour)
	clock = clock.Add(time.Second)
	c.Put(ctx, NamespaceRPC, "middle", string(payload), time.Hour)
	clock = clock.Add(time.Second)
	c.Put(ctx, NamespaceRPC, "newest", string(payload), time.Hour)

	var out string
	assert.False(t, c.Get(ctx, NamespaceRPC, "oldest", &out), "oldest entry should be evicted first")
	assert.True(t, c.Get(ctx, NamespaceRPC, "newest", &out))
}

func TestParseNamespace(t *testing.T) {
	ns, err := ParseNamespace("prices")
	require.NoError(t, err)
	assert.Equal(t, NamespacePrices, ns)

	_, err = ParseNamespace("sessions")
	assert.Error(t, err)
}
