// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package settingscache is the read-through cache used for resolved
// settings. Values are populated on first read and stay until explicitly
// removed; concurrent readers of a missing key share one population.
package settingscache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// PopulateFunc computes the value for a missing key.
type PopulateFunc[V any] func(ctx context.Context) (V, error)

// Cache is a string-keyed read-through cache.
//
// Every key carries a generation that Remove advances. A population only
// stores its result if the generation it started under is still current,
// so a slow populate that straddles a Remove cannot resurrect the removed
// value for later readers.
type Cache[V any] struct {
	name  string
	ttl   time.Duration
	items *ttlcache.Cache[string, V]
	group singleflight.Group

	mu    sync.Mutex
	gens  map[string]uint64
	epoch uint64
}

// New creates a cache. A ttl <= 0 means entries never expire and are only
// dropped by Remove.
func New[V any](name string, ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	items := ttlcache.New(
		ttlcache.WithTTL[string, V](ttl),
		ttlcache.WithDisableTouchOnHit[string, V](),
	)
	if ttl > 0 {
		go items.Start()
	}
	return &Cache[V]{
		name:  name,
		ttl:   ttl,
		items: items,
		gens:  make(map[string]uint64),
	}
}

// Close stops the expiry goroutine, if any.
func (c *Cache[V]) Close() {
	c.items.Stop()
}

// ReadThrough returns the cached value for key, or calls populate, stores
// its result, and returns it. Concurrent callers for the same missing key
// wait for a single populate call and all receive its result. Errors are
// returned to every waiter and nothing is stored.
func (c *Cache[V]) ReadThrough(ctx context.Context, key string, populate PopulateFunc[V]) (V, error) {
	if item := c.items.Get(key); item != nil {
		recordLookup(ctx, c.name, true)
		return item.Value(), nil
	}
	recordLookup(ctx, c.name, false)

	epoch, gen := c.generation(key)
	flight := key + "#" + strconv.FormatUint(epoch, 10) + "." + strconv.FormatUint(gen, 10)
	v, err, _ := c.group.Do(flight, func() (any, error) {
		if item := c.items.Get(key); item != nil {
			return item.Value(), nil
		}
		recordPopulate(ctx, c.name)
		val, err := populate(ctx)
		if err != nil {
			return val, err
		}
		c.mu.Lock()
		if c.epoch == epoch && c.gens[key] == gen {
			c.items.Set(key, val, ttlcache.DefaultTTL)
		}
		c.mu.Unlock()
		return val, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Get returns the cached value without populating.
func (c *Cache[V]) Get(key string) (V, bool) {
	if item := c.items.Get(key); item != nil {
		return item.Value(), true
	}
	var zero V
	return zero, false
}

// Remove evicts key. The next ReadThrough populates it again.
func (c *Cache[V]) Remove(key string) {
	c.mu.Lock()
	c.gens[key]++
	c.items.Delete(key)
	c.mu.Unlock()
}

// Clear evicts every key.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.epoch++
	clear(c.gens)
	c.items.DeleteAll()
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	return c.items.Len()
}

func (c *Cache[V]) generation(key string) (uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch, c.gens[key]
}
