package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenCache fronts a DuplicateIndex with a Redis set of recently seen
// URLs. A cache hit saves a database round trip; a cache error only
// degrades to the slower path. Errors from the backing index still
// propagate, because wrongly admitting a duplicate corrupts the
// uniqueness invariant downstream.
type SeenCache struct {
	client *redis.Client
	next   DuplicateIndex
	prefix string
	ttl    time.Duration
}

// NewSeenCache wraps next with a Redis cache.
func NewSeenCache(client *redis.Client, next DuplicateIndex, prefix string, ttl time.Duration) *SeenCache {
	if prefix == "" {
		prefix = "job:seen"
	}
	if ttl == 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &SeenCache{
		client: client,
		next:   next,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Exists checks the cache first, then the backing index.
func (s *SeenCache) Exists(ctx context.Context, url string) (bool, error) {
	key := s.makeKey(url)

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		log.Printf("Seen-cache lookup failed for %s, falling back to store: %v", url, err)
	} else if n > 0 {
		return true, nil
	}

	found, err := s.next.Exists(ctx, url)
	if err != nil {
		return false, fmt.Errorf("duplicate index: %w", err)
	}

	if found {
		if err := s.client.Set(ctx, key, 1, s.ttl).Err(); err != nil {
			log.Printf("Seen-cache set failed for %s: %v", url, err)
		}
	}
	return found, nil
}

// MarkSeen records a URL in the cache after a successful store.
func (s *SeenCache) MarkSeen(ctx context.Context, url string) {
	if err := s.client.Set(ctx, s.makeKey(url), 1, s.ttl).Err(); err != nil {
		log.Printf("Seen-cache mark failed for %s: %v", url, err)
	}
}

func (s *SeenCache) makeKey(url string) string {
	h := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%s:%s", s.prefix, hex.EncodeToString(h[:16]))
}

var _ DuplicateIndex = (*SeenCache)(nil)
