// Package derived holds the single media artifact rendered from the current
// still, such as its Ken Burns video.
package derived

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"frameart/internal/domain"
)

// ErrStaleArtifact is returned when the still changed while its artifact was
// being built. The artifact is discarded.
var ErrStaleArtifact = fmt.Errorf("%w: source still replaced during build", domain.ErrRenderFailed)

// BuildFunc renders an artifact for a still.
type BuildFunc func(ctx context.Context, asset domain.CompliantAsset) (domain.DerivedArtifact, error)

type Options struct {
	// OnEvict receives artifacts dropped by Invalidate, e.g. to delete files.
	OnEvict func(domain.DerivedArtifact)
}

// Cache is a single-slot cache keyed by still identity. It never hands out
// an artifact whose Source differs from the current still.
type Cache struct {
	mu      sync.Mutex
	current domain.AssetID
	held    *domain.DerivedArtifact
	onEvict func(domain.DerivedArtifact)
	group   singleflight.Group
}

func New(opts Options) *Cache {
	return &Cache{onEvict: opts.OnEvict}
}

// Invalidate records id as the current still and drops a held artifact built
// from anything else.
func (c *Cache) Invalidate(id domain.AssetID) {
	c.mu.Lock()
	c.current = id
	var evicted *domain.DerivedArtifact
	if c.held != nil && c.held.Source != id {
		evicted = c.held
		c.held = nil
	}
	c.mu.Unlock()

	if evicted != nil && c.onEvict != nil {
		c.onEvict(*evicted)
	}
}

// Current returns the held artifact when it matches the current still.
func (c *Cache) Current() (domain.DerivedArtifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held == nil || c.held.Source != c.current || c.current.IsZero() {
		return domain.DerivedArtifact{}, false
	}
	return *c.held, true
}

// CurrentSource returns the identity the cache is keyed to.
func (c *Cache) CurrentSource() domain.AssetID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// GetOrBuild returns the artifact for asset, building it with build when the
// slot is empty. asset must be the current still. Concurrent callers for the
// same still share one build. Failures store nothing and wrap
// domain.ErrRenderFailed.
func (c *Cache) GetOrBuild(ctx context.Context, asset domain.CompliantAsset, build BuildFunc) (domain.DerivedArtifact, error) {
	id := asset.ID()
	if id.IsZero() {
		return domain.DerivedArtifact{}, fmt.Errorf("%w: no current still", domain.ErrRenderFailed)
	}

	c.mu.Lock()
	if c.current != id {
		c.mu.Unlock()
		return domain.DerivedArtifact{}, ErrStaleArtifact
	}
	if c.held != nil && c.held.Source == id {
		art := *c.held
		c.mu.Unlock()
		return art, nil
	}
	c.mu.Unlock()

	ch := c.group.DoChan(fmt.Sprintf("%d/%s", id.Seq, id.Hash), func() (any, error) {
		art, err := build(context.WithoutCancel(ctx), asset)
		if err != nil {
			if errors.Is(err, domain.ErrRenderFailed) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrRenderFailed, err)
		}
		art.Source = id

		c.mu.Lock()
		stale := c.current != id
		if !stale {
			c.held = &art
		}
		c.mu.Unlock()

		if stale {
			if c.onEvict != nil {
				c.onEvict(art)
			}
			return nil, ErrStaleArtifact
		}
		return art, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.DerivedArtifact{}, res.Err
		}
		return res.Val.(domain.DerivedArtifact), nil
	case <-ctx.Done():
		return domain.DerivedArtifact{}, ctx.Err()
	}
}
