/*
cache.go - Read-cache abstraction and invalidation keys

PURPOSE:
  Lot listing and lot detail responses may be served from a
  time-bounded cache. This file defines the capability interface the
  engine depends on and the key scheme it evicts.

INVALIDATION POLICY:
  Any successful occupy/vacate (and any admin lot mutation) evicts the
  lot's listing entry and its detail entry synchronously, before the
  triggering request returns. Nothing else invalidates; staleness is
  otherwise bounded by the TTL (default 60s).

  The cache is an optimization only. Every eviction or lookup failure
  degrades to a store read; ledger correctness never depends on it.

IMPLEMENTATIONS:
  - cache/redis.go:  Redis-backed (production)
  - cache/memory.go: In-process TTL map (tests, single-node dev)
*/
package parking

import (
	"context"
	"fmt"
	"time"
)

// DefaultCacheTTL bounds staleness of cached lot views.
const DefaultCacheTTL = 60 * time.Second

// Cache is a TTL'd read cache. Get unmarshals into dest and reports
// whether the key was present.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Cache keys for lot views.
const LotListingKey = "lot_listing"

// LotDetailKey returns the cache key for a single lot's detail view.
func LotDetailKey(id LotID) string {
	return fmt.Sprintf("lot_detail:%s", id)
}

// NopCache satisfies Cache without storing anything. Used when no
// cache backend is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, string, any) (bool, error) { return false, nil }
func (NopCache) Set(context.Context, string, any, time.Duration) error { return nil }
func (NopCache) Delete(context.Context, ...string) error { return nil }
