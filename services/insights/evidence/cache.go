// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
)

// Cache limits.
const (
	MinCacheTTL       = 10 * time.Second
	DefaultCacheTTL   = 10 * time.Minute
	DefaultMaxEntries = 512

	// NoScenario is the scenario hash of a request without a scenario.
	NoScenario = "none"

	keyDelimiter = "|"
)

// CacheKey identifies one evidence pack.
type CacheKey struct {
	DatasetID        string
	RecommendationID string
	QueryHash        string
	ScenarioHash     string
	Version          string
	Horizon          int
	Sensitive        bool
}

// String joins the key parts. The recommendation id is lowercased and
// trimmed and an empty scenario hash becomes NoScenario.
func (k CacheKey) String() string {
	scenario := k.ScenarioHash
	if scenario == "" {
		scenario = NoScenario
	}
	return strings.Join([]string{
		k.DatasetID,
		strings.ToLower(strings.TrimSpace(k.RecommendationID)),
		k.QueryHash,
		scenario,
		k.Version,
		strconv.Itoa(k.Horizon),
		strconv.FormatBool(k.Sensitive),
	}, keyDelimiter)
}

// ScenarioHash fingerprints a scenario definition as the first 16 hex
// characters of the SHA-256 of its JSON encoding.
func ScenarioHash(s *datatypes.Scenario) string {
	if s == nil {
		return NoScenario
	}
	data, err := json.Marshal(s)
	if err != nil {
		return NoScenario
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// cacheSlot holds one key's entry. The slot mutex serializes the
// read-then-decide-then-write sequence for that key only.
type cacheSlot struct {
	mu       sync.Mutex
	data     []byte
	storedAt time.Time
}

// CacheOptions configures Cache.
type CacheOptions struct {
	// TTL is the entry lifetime. Values below MinCacheTTL are raised to it.
	// Default: 10 minutes
	TTL time.Duration

	// MaxEntries bounds the number of stored packs.
	// Default: 512
	MaxEntries int

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// CacheOption is a functional option for configuring Cache.
type CacheOption func(*CacheOptions)

// WithTTL sets the entry lifetime.
func WithTTL(d time.Duration) CacheOption {
	return func(o *CacheOptions) {
		if d > 0 {
			o.TTL = d
		}
	}
}

// WithMaxEntries sets the entry bound.
func WithMaxEntries(n int) CacheOption {
	return func(o *CacheOptions) {
		if n > 0 {
			o.MaxEntries = n
		}
	}
}

// WithClock replaces the clock, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(o *CacheOptions) {
		if now != nil {
			o.Now = now
		}
	}
}

// Cache stores finished evidence packs by key with a TTL.
//
// # Description
//
// Packs are stored serialized, so every Get decodes a fresh copy and a
// caller can never mutate a cached pack. Expired entries are evicted when
// read. When MaxEntries is reached, expired entries are swept and then the
// oldest entry is dropped.
//
// # Thread Safety
//
// Safe for concurrent use. Each key has its own lock; unrelated keys never
// contend.
type Cache struct {
	slots   sync.Map // string -> *cacheSlot
	size    atomic.Int64
	options CacheOptions

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewCache creates an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	options := CacheOptions{
		TTL:        DefaultCacheTTL,
		MaxEntries: DefaultMaxEntries,
		Now:        time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.TTL < MinCacheTTL {
		options.TTL = MinCacheTTL
	}
	return &Cache{options: options}
}

// TTL returns the effective entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.options.TTL
}

// Get returns a copy of the pack stored under key.
//
// # Outputs
//
//   - *datatypes.EvidencePack: A fresh copy, or nil on a miss.
//   - bool: True on a hit.
func (c *Cache) Get(key CacheKey) (*datatypes.EvidencePack, bool) {
	k := key.String()
	v, ok := c.slots.Load(k)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	slot := v.(*cacheSlot)

	slot.mu.Lock()
	if slot.data == nil {
		slot.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	if c.expired(slot) {
		c.dropLocked(k, slot)
		slot.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	data := slot.data
	slot.mu.Unlock()

	var pack datatypes.EvidencePack
	if err := json.Unmarshal(data, &pack); err != nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return &pack, true
}

// Put stores a copy of pack under key, replacing any previous entry.
func (c *Cache) Put(key CacheKey, pack *datatypes.EvidencePack) error {
	if pack == nil {
		return fmt.Errorf("cache put: nil evidence pack")
	}
	data, err := json.Marshal(pack)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}

	k := key.String()
	var isNew bool
	for {
		v, _ := c.slots.LoadOrStore(k, &cacheSlot{})
		slot := v.(*cacheSlot)

		slot.mu.Lock()
		// An expired read may have unlinked this slot since it was loaded.
		if cur, ok := c.slots.Load(k); !ok || cur != slot {
			slot.mu.Unlock()
			continue
		}
		isNew = slot.data == nil
		slot.data = data
		slot.storedAt = c.options.Now()
		slot.mu.Unlock()
		break
	}

	if isNew && c.size.Add(1) > int64(c.options.MaxEntries) {
		c.shrink(k)
	}
	return nil
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	return int(c.size.Load())
}

// CacheStats contains statistics about the cache.
type CacheStats struct {
	Entries   int
	Hits      int64
	Misses    int64
	Evictions int64
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

func (c *Cache) expired(slot *cacheSlot) bool {
	return c.options.Now().Sub(slot.storedAt) > c.options.TTL
}

// dropLocked empties a slot. The caller holds slot.mu.
func (c *Cache) dropLocked(k string, slot *cacheSlot) {
	slot.data = nil
	c.slots.CompareAndDelete(k, slot)
	c.size.Add(-1)
	c.evictions.Add(1)
}

// shrink sweeps expired entries and then drops the oldest entries until the
// cache is back within MaxEntries. The entry under keep is never dropped.
func (c *Cache) shrink(keep string) {
	c.slots.Range(func(k, v any) bool {
		slot := v.(*cacheSlot)
		slot.mu.Lock()
		if slot.data != nil && c.expired(slot) {
			c.dropLocked(k.(string), slot)
		}
		slot.mu.Unlock()
		return true
	})

	for c.size.Load() > int64(c.options.MaxEntries) {
		oldestKey := ""
		var oldest *cacheSlot
		var oldestAt time.Time
		c.slots.Range(func(k, v any) bool {
			if k.(string) == keep {
				return true
			}
			slot := v.(*cacheSlot)
			slot.mu.Lock()
			at, live := slot.storedAt, slot.data != nil
			slot.mu.Unlock()
			if live && (oldest == nil || at.Before(oldestAt)) {
				oldestKey, oldest, oldestAt = k.(string), slot, at
			}
			return true
		})
		if oldest == nil {
			return
		}
		oldest.mu.Lock()
		if oldest.data != nil {
			c.dropLocked(oldestKey, oldest)
		}
		oldest.mu.Unlock()
	}
}
