// Package cache shields slow or rate-limited external data sources (chain
// RPC, price APIs) behind a TTL key/value cache. The cache is an optimization,
// never a source of truth: any failure inside it degrades to a miss.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Namespace is a cache class. The set is closed; requests against an unknown
// namespace are input errors, not silently ignored.
type Namespace string

const (
	NamespaceRPC       Namespace = "rpc"
	NamespacePrices    Namespace = "prices"
	NamespaceContracts Namespace = "contracts"
)

// Namespaces lists every cache class.
var Namespaces = []Namespace{NamespaceRPC, NamespacePrices, NamespaceContracts}

// Valid reports whether ns is a known cache class.
func (n Namespace) Valid() bool {
	switch n {
	case NamespaceRPC, NamespacePrices, NamespaceContracts:
		return true
	}
	return false
}

// ParseNamespace validates a namespace supplied by a caller.
func ParseNamespace(s string) (Namespace, error) {
	ns := Namespace(s)
	if !ns.Valid() {
		return "", fmt.Errorf("unknown cache namespace %q", s)
	}
	return ns, nil
}

// NamespaceStats reports physical occupancy of one cache class. Entries that
// are logically expired but not yet swept still count: stats report what is on
// disk, not what a Get would return.
type NamespaceStats struct {
	Count          int   `json:"count"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// Store is the cache contract every outbound gateway call goes through.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get decodes the cached value under (ns, key) into out and reports
	// whether it was present and fresh. Never errors on a miss; stale or
	// corrupt entries are evicted and treated as misses.
	Get(ctx context.Context, ns Namespace, key string, out any) bool

	// Put persists value under (ns, key) with a fresh created-at and the given
	// TTL, overwriting any prior entry. Write failures are logged and
	// swallowed.
	Put(ctx context.Context, ns Namespace, key string, value any, ttl time.Duration)

	// Stats enumerates persisted entries per namespace.
	Stats(ctx context.Context) (map[Namespace]NamespaceStats, error)

	// Clear removes every entry in ns, or in all namespaces when ns is empty.
	// Clearing an empty namespace is a no-op.
	Clear(ctx context.Context, ns Namespace) error

	// Sweep removes expired entries and returns how many were evicted.
	Sweep(ctx context.Context) int

	// Close releases any resources held by the cache.
	Close() error
}
