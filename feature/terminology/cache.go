package terminology

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"termsync/feature/terminology/models"
)

// FlatCache holds one flatten result of a collection.
type FlatCache struct {
	Result *models.FlattenResult

	// Built is when the result was produced.
	Built time.Time

	// TTL is how long the result is served.
	TTL time.Duration
}

// IsExpired reports whether the cached result is too old to serve.
func (c *FlatCache) IsExpired() bool {
	if c.TTL == 0 {
		return true
	}
	return time.Since(c.Built) > c.TTL
}

// cacheStore keeps flatten results keyed by collection root.
type cacheStore struct {
	mu     sync.RWMutex
	caches map[string]*FlatCache
	sf     singleflight.Group
}

func newCacheStore() *cacheStore {
	return &cacheStore{caches: make(map[string]*FlatCache)}
}

// getOrBuild returns the cached result for key, building it once when the
// entry is missing or expired. Concurrent callers share one build.
func (s *cacheStore) getOrBuild(ctx context.Context, key string, ttl time.Duration, build func(context.Context) (*models.FlattenResult, error)) (*models.FlattenResult, error) {
	s.mu.RLock()
	cached, ok := s.caches[key]
	s.mu.RUnlock()
	if ok && !cached.IsExpired() {
		return cached.Result, nil
	}

	v, err, _ := s.sf.Do(key, func() (any, error) {
		s.mu.RLock()
		cached, ok := s.caches[key]
		s.mu.RUnlock()
		if ok && !cached.IsExpired() {
			return cached.Result, nil
		}

		res, err := build(ctx)
		if err != nil {
			return nil, err
		}
		if ttl > 0 {
			s.mu.Lock()
			s.caches[key] = &FlatCache{Result: res, Built: time.Now(), TTL: ttl}
			s.mu.Unlock()
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.FlattenResult), nil
}

func (s *cacheStore) invalidate(key string) {
	s.mu.Lock()
	delete(s.caches, key)
	s.mu.Unlock()
}
