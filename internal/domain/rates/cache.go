package rates

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"mercatus/internal/core/currency"
)

const (
	// DefaultSnapshotTTL bounds how long a cached snapshot may serve reads.
	DefaultSnapshotTTL = 60 * time.Second

	// DefaultConversionTTL bounds cached conversion results. Keys embed the
	// rate version, so a rate update implicitly invalidates them; the TTL
	// just bounds memory.
	DefaultConversionTTL = 30 * time.Second

	// conversionKeyScale quantizes amounts in conversion cache keys.
	conversionKeyScale = 6
)

// Cache is the in-memory, TTL-bounded cache in front of the rate store,
// plus a short-lived cache of computed conversion results.
//
// It is an explicit injected object, not an ambient global: tests construct
// it with a frozen clock for deterministic expiry. Read-mostly: many
// concurrent readers, a single writer on refresh.
type Cache struct {
	snapshotTTL   time.Duration
	conversionTTL time.Duration
	now           func() time.Time

	mu         sync.RWMutex
	snapshot   *Snapshot
	snapshotAt time.Time

	convMu      sync.RWMutex
	conversions map[string]conversionEntry
}

type conversionEntry struct {
	conv     Conversion
	storedAt time.Time
}

// CacheOption customizes cache construction.
type CacheOption func(*Cache)

// WithClock injects a clock (tests).
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithTTLs overrides the snapshot and conversion TTLs.
func WithTTLs(snapshot, conversion time.Duration) CacheOption {
	return func(c *Cache) {
		c.snapshotTTL = snapshot
		c.conversionTTL = conversion
	}
}

// NewCache creates a cache with production defaults.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		snapshotTTL:   DefaultSnapshotTTL,
		conversionTTL: DefaultConversionTTL,
		now:           time.Now,
		conversions:   make(map[string]conversionEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the cached snapshot if it is younger than the TTL.
func (c *Cache) Snapshot() (*Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return nil, false
	}
	if c.now().Sub(c.snapshotAt) >= c.snapshotTTL {
		return nil, false
	}
	return c.snapshot, true
}

// StoreSnapshot replaces the cached snapshot.
func (c *Cache) StoreSnapshot(snap *Snapshot) {
	c.mu.Lock()
	c.snapshot = snap
	c.snapshotAt = c.now()
	c.mu.Unlock()
}

// Invalidate drops the cached snapshot and all conversion results.
// Called on rate update; concurrent readers fall through to the store on
// their next read.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()

	c.convMu.Lock()
	c.conversions = make(map[string]conversionEntry)
	c.convMu.Unlock()
}

// conversionKey builds the cache key. The rate version is part of the key,
// so entries computed against a superseded snapshot are simply never hit
// again and age out via TTL; no explicit invalidation is required.
func conversionKey(from, to currency.Code, amount decimal.Decimal, version string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s", from, to, amount.Round(conversionKeyScale).StringFixed(conversionKeyScale), version)
	return b.String()
}

// Conversion looks up a cached conversion result.
func (c *Cache) Conversion(from, to currency.Code, amount decimal.Decimal, version string) (Conversion, bool) {
	key := conversionKey(from, to, amount, version)

	c.convMu.RLock()
	entry, ok := c.conversions[key]
	c.convMu.RUnlock()

	if !ok || c.now().Sub(entry.storedAt) >= c.conversionTTL {
		return Conversion{}, false
	}
	return entry.conv, true
}

// StoreConversion caches a conversion result, opportunistically evicting
// expired entries so the map stays bounded under TTL.
func (c *Cache) StoreConversion(from, to currency.Code, amount decimal.Decimal, version string, conv Conversion) {
	key := conversionKey(from, to, amount, version)
	now := c.now()

	c.convMu.Lock()
	for k, e := range c.conversions {
		if now.Sub(e.storedAt) >= c.conversionTTL {
			delete(c.conversions, k)
		}
	}
	c.conversions[key] = conversionEntry{conv: conv, storedAt: now}
	c.convMu.Unlock()
}
