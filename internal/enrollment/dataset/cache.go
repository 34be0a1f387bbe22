package dataset

import (
	"context"
	"sync"
	"time"

	apperrors "enrollment-chat/internal/common/errors"
	"enrollment-chat/internal/common/logger"
	"enrollment-chat/internal/common/metrics"
)

// Cache owns the current dataset snapshot and its load time, reloading
// through the Loader once the TTL elapses. A reload failure past the TTL
// serves the previous snapshot and logs a warning; only when no snapshot has
// ever loaded does a failure surface as DATASET_UNAVAILABLE.
type Cache struct {
	loader Loader
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time

	mu       sync.Mutex
	snapshot *Dataset
}

// NewCache creates a snapshot cache. A non-positive ttl reloads on every call.
func NewCache(loader Loader, ttl time.Duration, log logger.Logger) *Cache {
	return &Cache{
		loader: loader,
		ttl:    ttl,
		logger: log.With(map[string]interface{}{"component": "dataset-cache"}),
		now:    time.Now,
	}
}

// GetOrReload returns the current snapshot, reloading it first if the TTL has
// elapsed or nothing is loaded yet. Concurrent callers serialize so the
// loader runs at most once per expiry.
func (c *Cache) GetOrReload(ctx context.Context) (*Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot != nil && c.now().Sub(c.snapshot.LoadedAt()) <= c.ttl {
		return c.snapshot, nil
	}

	rows, err := c.loader.Load(ctx)
	if err != nil {
		metrics.DatasetReloads.WithLabelValues("error").Inc()
		if c.snapshot != nil {
			c.logger.Warn("dataset reload failed, serving previous snapshot", map[string]interface{}{
				"error":    err.Error(),
				"loadedAt": c.snapshot.LoadedAt(),
			})
			return c.snapshot, nil
		}
		return nil, apperrors.NewDatasetUnavailableError(err)
	}

	c.snapshot = New(rows, c.now())
	metrics.DatasetReloads.WithLabelValues("success").Inc()
	c.logger.Info("dataset snapshot loaded", map[string]interface{}{
		"rows": c.snapshot.Len(),
	})
	return c.snapshot, nil
}

// Invalidate drops the current snapshot so the next call reloads.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()
}
