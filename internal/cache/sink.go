package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/medecole/examsession/internal/models"
)

// DefaultResultTTL bounds how long a finalized result stays readable for the
// downstream results view.
const DefaultResultTTL = 24 * time.Hour

// ResultSink stores finalized results under a session-scoped key so a
// downstream results view can pick them up without a process-wide mutable
// slot.
type ResultSink struct {
	cache CacheService
	ttl   time.Duration
}

// NewResultSink creates a result sink on top of a cache. A non-positive ttl
// falls back to DefaultResultTTL.
func NewResultSink(cache CacheService, ttl time.Duration) *ResultSink {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &ResultSink{cache: cache, ttl: ttl}
}

// Put stores the result keyed by its session id.
func (s *ResultSink) Put(ctx context.Context, result *models.ExamResult) error {
	if result == nil || result.SessionID == "" {
		return fmt.Errorf("result sink requires a session-scoped result")
	}
	return s.cache.Set(ctx, ResultKey(result.SessionID), result, s.ttl)
}

// Load reads a stored result back, if present.
func (s *ResultSink) Load(ctx context.Context, sessionID string) (*models.ExamResult, error) {
	var result models.ExamResult
	if err := s.cache.Get(ctx, ResultKey(sessionID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
