package observability

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// LogHooks reports render and cache events to a logger at debug level.
type LogHooks struct {
	Logger *log.Logger
}

func (h LogHooks) OnBlockStart(_ context.Context, rank, block int) {
	h.Logger.Debug("block started", "rank", rank, "block", block)
}

func (h LogHooks) OnBlockComplete(_ context.Context, rank, block int, d time.Duration, err error) {
	if err != nil {
		h.Logger.Debug("block failed", "rank", rank, "block", block, "err", err)
		return
	}
	h.Logger.Debug("block finished", "rank", rank, "block", block, "took", d)
}

func (h LogHooks) OnRunComplete(_ context.Context, rank, blocks int, d time.Duration, err error) {
	h.Logger.Debug("run finished", "rank", rank, "blocks", blocks, "took", d, "err", err)
}

func (h LogHooks) OnCacheHit(_ context.Context, backend string) {
	h.Logger.Debug("cache hit", "backend", backend)
}

func (h LogHooks) OnCacheMiss(_ context.Context, backend string) {
	h.Logger.Debug("cache miss", "backend", backend)
}

func (h LogHooks) OnCacheSet(_ context.Context, backend string, size int) {
	h.Logger.Debug("cache set", "backend", backend, "bytes", size)
}

var (
	_ RenderHooks = LogHooks{}
	_ CacheHooks  = LogHooks{}
)
