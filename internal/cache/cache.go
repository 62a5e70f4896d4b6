// Package cache stores serialized retrieval results in Redis keyed by the
// full retrieval request (query terms, k, model, PRF flag), so different
// model configurations never collide. A singleflight group collapses
// concurrent misses for the same key into one computation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/syscred/evidence-engine/internal/analyzer"
	"github.com/syscred/evidence-engine/internal/retriever"
	"github.com/syscred/evidence-engine/pkg/config"
	pkgredis "github.com/syscred/evidence-engine/pkg/redis"
)

const keyPrefix = "evidence:"

type ResultCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(client *pkgredis.Client, cfg config.RedisConfig) *ResultCache {
	return &ResultCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "result-cache"),
	}
}

func (c *ResultCache) Get(ctx context.Context, query string, opts retriever.Options) (*retriever.Result, bool) {
	key := c.buildKey(query, opts)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			c.misses.Add(1)
			return nil, false
		}
		c.logger.Error("cache get failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	var result retriever.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", query, "key", key)
	return &result, true
}

func (c *ResultCache) Set(ctx context.Context, query string, opts retriever.Options, result *retriever.Result) {
	key := c.buildKey(query, opts)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	query string,
	opts retriever.Options,
	computeFn func() (*retriever.Result, error),
) (*retriever.Result, bool, error) {
	if result, ok := c.Get(ctx, query, opts); ok {
		return result, true, nil
	}
	key := c.buildKey(query, opts)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.Get(ctx, query, opts); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, opts, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*retriever.Result), false, nil
}

// Invalidate removes every cached result. Called after an index rebuild so
// stale rankings never outlive the corpus that produced them.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	pattern := keyPrefix + "*"
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey hashes the normalised term multiset plus every retrieval option,
// so semantically equal queries share an entry regardless of word order.
func (c *ResultCache) buildKey(query string, opts retriever.Options) string {
	terms := analyzer.Normalize(query)
	sort.Strings(terms)
	raw := fmt.Sprintf("%s|k=%d|model=%s|prf=%t",
		strings.Join(terms, ","), opts.K, opts.Model, opts.UsePRF)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
