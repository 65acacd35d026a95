package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DedupCache = (*DedupCache)(nil)

const dedupPrefix = "sercha:ingest:"

// addChunk bounds the members sent in one SADD.
const addChunk = 500

// DedupCache keeps persisted fingerprints in one Redis set per collection.
type DedupCache struct {
	client *redis.Client
}

// NewDedupCache creates a Redis-backed dedup cache.
func NewDedupCache(client *redis.Client) *DedupCache {
	return &DedupCache{client: client}
}

// Key returns the set key of a collection.
func Key(collection string) string {
	return dedupPrefix + collection
}

// Contains reports whether the id is in the collection set.
func (c *DedupCache) Contains(ctx context.Context, collection, id string) (bool, error) {
	ok, err := c.client.SIsMember(ctx, Key(collection), id).Result()
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return ok, nil
}

// Add adds ids to the collection set.
func (c *DedupCache) Add(ctx context.Context, collection string, ids ...string) error {
	for start := 0; start < len(ids); start += addChunk {
		end := min(start+addChunk, len(ids))
		members := make([]any, 0, end-start)
		for _, id := range ids[start:end] {
			members = append(members, id)
		}
		if err := c.client.SAdd(ctx, Key(collection), members...).Err(); err != nil {
			return fmt.Errorf("dedup add: %w", err)
		}
	}
	return nil
}

// Remove deletes ids from the collection set.
func (c *DedupCache) Remove(ctx context.Context, collection string, ids ...string) error {
	for start := 0; start < len(ids); start += addChunk {
		end := min(start+addChunk, len(ids))
		members := make([]any, 0, end-start)
		for _, id := range ids[start:end] {
			members = append(members, id)
		}
		if err := c.client.SRem(ctx, Key(collection), members...).Err(); err != nil {
			return fmt.Errorf("dedup remove: %w", err)
		}
	}
	return nil
}

// Close closes the client.
func (c *DedupCache) Close() error {
	return c.client.Close()
}
