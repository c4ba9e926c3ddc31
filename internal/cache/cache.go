package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrKeyNotFound is returned by Get when the key is absent or expired.
var ErrKeyNotFound = errors.New("key not found")

// IsKeyNotFound reports whether err is a cache miss.
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// CacheService defines the cache operations the session engine uses: a
// short-TTL exam metadata cache and result storage for the downstream
// results view.
type CacheService interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
}

// MetadataKey is the cache key for exam metadata by slug.
func MetadataKey(examSlug string) string {
	return fmt.Sprintf("exam:meta:%s", examSlug)
}

// ResultKey is the cache key for a finalized result by session id.
func ResultKey(sessionID string) string {
	return fmt.Sprintf("exam:result:%s", sessionID)
}
