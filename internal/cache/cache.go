// Package cache stores encoded tiles for the HTTP server.
//
// Backends:
//   - none:  NullCache, never stores anything
//   - file:  FileCache, JSON entries with expiry under a directory
//   - redis: RedisCache, for servers sharing one cache
//   - mongo: MongoCache, tiles kept in a MongoDB collection
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Cache is a byte store with optional expiry.
type Cache interface {
	// Get returns the value and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string // none|file|redis|mongo
	Dir     string // file
	Addr    string // redis address or mongo URI
	DB      int    // redis database
	TTL     time.Duration
}

// Open creates the backend named in cfg.
func Open(ctx context.Context, cfg Config) (Cache, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "none":
		return NewNullCache(), nil
	case "file":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("file cache needs a directory")
		}
		c, err := NewFileCache(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "redis":
		c, err := NewRedisCache(ctx, cfg.Addr, cfg.DB)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "mongo":
		c, err := NewMongoCache(ctx, cfg.Addr, "julia", "tiles")
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown cache backend: %q", cfg.Backend)
}

// Name returns the backend name used in hooks and logs.
func Name(c Cache) string {
	switch c.(type) {
	case *FileCache:
		return "file"
	case *RedisCache:
		return "redis"
	case *MongoCache:
		return "mongo"
	}
	return "none"
}
