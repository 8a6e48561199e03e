// Package cache keeps the latest snapshot of a collection in memory and
// refreshes it whenever the collection's key is signalled.
package cache

import (
	"context"
	"sync"

	"opd/opd-service/internal/datasync"
	"opd/opd-service/internal/repository"

	"github.com/rs/zerolog"
)

type Cache[T any] struct {
	coll   repository.Collection[T]
	svc    *datasync.Service
	logger zerolog.Logger

	mu       sync.RWMutex
	items    []T
	loaded   bool
	revision uint64
}

func New[T any](s *datasync.Service, coll repository.Collection[T], logger zerolog.Logger) *Cache[T] {
	return &Cache[T]{
		coll:   coll,
		svc:    s,
		logger: logger.With().Str("key", coll.Key()).Logger(),
	}
}

// Start subscribes to the collection key and refreshes on every signal until
// ctx is done. The subscription is registered before Start returns.
func (c *Cache[T]) Start(ctx context.Context) {
	updates := c.svc.Subscribe(ctx, c.coll.Key())
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("initial load failed")
	}
	go func() {
		for range updates {
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("refresh failed, keeping previous snapshot")
			}
		}
	}()
}

// Refresh reloads the snapshot from the durable store. On error the previous
// snapshot is kept.
func (c *Cache[T]) Refresh(ctx context.Context) error {
	items, revision, err := c.coll.AllAt(ctx)
	if err != nil {
		return err
	}
	if !c.install(items, revision) {
		c.logger.Debug().Uint64("revision", revision).Msg("older snapshot ignored")
	}
	return nil
}

// Replace installs a snapshot the caller has just committed at revision.
func (c *Cache[T]) Replace(items []T, revision uint64) {
	c.install(items, revision)
}

// install keeps whichever snapshot has the higher revision, so installs that
// arrive out of commit order cannot roll the cache back.
func (c *Cache[T]) install(items []T, revision uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded && revision < c.revision {
		return false
	}
	c.items = items
	c.loaded = true
	c.revision = revision
	return true
}

// Snapshot returns a copy of the current items, loading them on first use.
func (c *Cache[T]) Snapshot(ctx context.Context) ([]T, error) {
	c.mu.RLock()
	if c.loaded {
		items := clone(c.items)
		c.mu.RUnlock()
		return items, nil
	}
	c.mu.RUnlock()
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.items), nil
}

func clone[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}
