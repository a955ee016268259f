package data

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

const cacheShards = 16

// CachedSource memoizes full page reads of a slower bar source. Strategy
// lookups through FetchOHLCV tend to re-request the same range every tick;
// against a REST-backed source each of those would be a network round trip.
type CachedSource struct {
	source BarSource
	maxAge time.Duration
	shards [cacheShards]*barShard
}

type barShard struct {
	mu    sync.RWMutex
	items map[string]barEntry
}

type barEntry struct {
	bars      []Candle
	updatedAt time.Time
}

// NewCachedSource wraps source; entries older than maxAge are refetched
// (0 means entries never expire).
func NewCachedSource(source BarSource, maxAge time.Duration) *CachedSource {
	c := &CachedSource{source: source, maxAge: maxAge}
	for i := range c.shards {
		c.shards[i] = &barShard{items: make(map[string]barEntry)}
	}
	return c
}

func (c *CachedSource) shard(key string) *barShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%cacheShards]
}

func rangeKey(symbol string, timeframeMin int, startTime, endTime int64) string {
	return fmt.Sprintf("%s|%d|%d|%d", symbol, timeframeMin, startTime, endTime)
}

func (c *CachedSource) Bars(ctx context.Context, symbol string, timeframeMin int, startTime, endTime int64) (Cursor, error) {
	key := rangeKey(symbol, timeframeMin, startTime, endTime)
	shard := c.shard(key)

	shard.mu.RLock()
	entry, ok := shard.items[key]
	shard.mu.RUnlock()
	if ok && (c.maxAge <= 0 || time.Since(entry.updatedAt) < c.maxAge) {
		return &sliceCursor{rows: entry.bars}, nil
	}

	cur, err := c.source.Bars(ctx, symbol, timeframeMin, startTime, endTime)
	if err != nil {
		return nil, err
	}
	var bars []Candle
	for {
		candle, ok, err := cur.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		bars = append(bars, candle)
	}

	shard.mu.Lock()
	shard.items[key] = barEntry{bars: bars, updatedAt: time.Now()}
	shard.mu.Unlock()
	return &sliceCursor{rows: bars}, nil
}

// Len reports cached ranges across all shards.
func (c *CachedSource) Len() int {
	var total int
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}

// Cleanup drops entries older than maxAge and reports how many were removed.
func (c *CachedSource) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	var removed int
	for _, shard := range c.shards {
		shard.mu.Lock()
		for key, entry := range shard.items {
			if entry.updatedAt.Before(cutoff) {
				delete(shard.items, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}
