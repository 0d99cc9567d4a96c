// Package observability lets the binary attach instrumentation to render runs
// and tile caching without the libraries depending on a metrics backend.
//
// Hooks default to no-ops. Register implementations once at startup:
//
//	observability.SetRenderHooks(myHooks)
//
// and the runner reports through them:
//
//	observability.Render().OnBlockStart(ctx, rank, block)
package observability

import (
	"context"
	"sync"
	"time"
)

// RenderHooks receives events from a node's render loop.
type RenderHooks interface {
	OnBlockStart(ctx context.Context, rank, block int)
	OnBlockComplete(ctx context.Context, rank, block int, duration time.Duration, err error)
	OnRunComplete(ctx context.Context, rank, blocks int, duration time.Duration, err error)
}

// CacheHooks receives events from the tile cache.
type CacheHooks interface {
	OnCacheHit(ctx context.Context, backend string)
	OnCacheMiss(ctx context.Context, backend string)
	OnCacheSet(ctx context.Context, backend string, size int)
}

// NoopRenderHooks is a no-op implementation of RenderHooks.
type NoopRenderHooks struct{}

func (NoopRenderHooks) OnBlockStart(context.Context, int, int)                          {}
func (NoopRenderHooks) OnBlockComplete(context.Context, int, int, time.Duration, error) {}
func (NoopRenderHooks) OnRunComplete(context.Context, int, int, time.Duration, error)   {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

var (
	renderHooks RenderHooks = NoopRenderHooks{}
	cacheHooks  CacheHooks  = NoopCacheHooks{}
	hooksMu     sync.RWMutex
)

// SetRenderHooks registers render hooks. Nil is ignored.
func SetRenderHooks(h RenderHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		renderHooks = h
	}
}

// SetCacheHooks registers cache hooks. Nil is ignored.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// Render returns the registered render hooks.
func Render() RenderHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return renderHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Reset restores the no-op defaults.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	renderHooks = NoopRenderHooks{}
	cacheHooks = NoopCacheHooks{}
}
