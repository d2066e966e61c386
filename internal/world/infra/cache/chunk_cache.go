package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"LandVerse/internal/protocol"
)

const (
	defaultTTL     = 5 * time.Minute
	defaultMaxCost = 1 << 20
)

// ChunkCache 以地块数为 cost，MaxCost 约等于能缓存的地块总数。
type ChunkCache struct {
	c   *ristretto.Cache[string, *protocol.Chunk]
	ttl time.Duration
}

func NewChunkCache(maxCost int64, ttl time.Duration) (*ChunkCache, error) {
	if maxCost <= 0 {
		maxCost = defaultMaxCost
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	// 按平均每块 100 地块估算条目数，计数器取 10 倍
	counters := max(maxCost/100*10, 1000)
	c, err := ristretto.NewCache(&ristretto.Config[string, *protocol.Chunk]{
		NumCounters: counters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ChunkCache{c: c, ttl: ttl}, nil
}

func (c *ChunkCache) Get(key string) (*protocol.Chunk, bool) {
	return c.c.Get(key)
}

func (c *ChunkCache) Set(key string, ch *protocol.Chunk) {
	if ch == nil {
		return
	}
	cost := int64(len(ch.Lands))
	if cost == 0 {
		cost = 1
	}
	c.c.SetWithTTL(key, ch, cost, c.ttl)
	c.c.Wait()
}

func (c *ChunkCache) Del(key string) {
	c.c.Del(key)
}

func (c *ChunkCache) Close() {
	c.c.Close()
}
