package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}
	data, hit, err := c.Get(ctx, "key")
	if err != nil || hit || data != nil {
		t.Errorf("Get = %v, %v, %v; want miss", data, hit, err)
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	defer c.Close()

	if _, hit, _ := c.Get(ctx, "missing"); hit {
		t.Error("expected miss for unknown key")
	}

	if err := c.Set(ctx, "k", []byte("tile"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, hit, err := c.Get(ctx, "k")
	if err != nil || !hit || string(data) != "tile" {
		t.Errorf("Get = %q, %v, %v", data, hit, err)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expected miss after Delete")
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())

	if err := c.Set(ctx, "k", []byte("x"), time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry should miss")
	}
}

func TestFileCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	_ = c.Set(ctx, "k", []byte("x"), 0)

	if err := os.WriteFile(c.path("k"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, hit, err := c.Get(ctx, "k"); hit || err != nil {
		t.Errorf("corrupt entry: hit=%v err=%v, want clean miss", hit, err)
	}
}

func TestTileKey(t *testing.T) {
	type params struct{ C float64 }
	k1 := TileKey(params{C: 0.1}, 1, 0, 0, "png")
	k2 := TileKey(params{C: 0.1}, 1, 0, 0, "png")
	if k1 != k2 {
		t.Error("TileKey should be deterministic")
	}

	others := []string{
		TileKey(params{C: 0.2}, 1, 0, 0, "png"),
		TileKey(params{C: 0.1}, 2, 0, 0, "png"),
		TileKey(params{C: 0.1}, 1, 0, 1, "png"),
		TileKey(params{C: 0.1}, 1, 0, 0, "bmp"),
	}
	for _, o := range others {
		if o == k1 {
			t.Errorf("key collision: %s", o)
		}
	}
	if len(Hash([]byte("hello"))) != 64 {
		t.Error("Hash should be 64 hex chars")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	c, err := Open(ctx, Config{Backend: "none"})
	if err != nil || Name(c) != "none" {
		t.Errorf("Open(none) = %T, %v", c, err)
	}
	c, err = Open(ctx, Config{Backend: "file", Dir: t.TempDir()})
	if err != nil || Name(c) != "file" {
		t.Errorf("Open(file) = %T, %v", c, err)
	}
	if _, err := Open(ctx, Config{Backend: "file"}); err == nil {
		t.Error("file backend without a directory should fail")
	}
	if _, err := Open(ctx, Config{Backend: "memcached"}); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestNetworkBackendsUnreachable(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"redis", Config{Backend: "redis", Addr: "127.0.0.1:1"}},
		{"mongo", Config{Backend: "mongo", Addr: "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200&connectTimeoutMS=200"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			c, err := Open(ctx, tt.cfg)
			if err == nil {
				c.Close()
				t.Fatalf("Open(%s) at an unreachable address succeeded", tt.name)
			}
			if c != nil {
				t.Errorf("Open(%s) returned a cache alongside error %v", tt.name, err)
			}
		})
	}
}

func TestRedisCacheConnectError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := NewRedisCache(ctx, "127.0.0.1:1", 0)
	if err == nil || c != nil {
		t.Fatalf("NewRedisCache = %v, %v; want connect error", c, err)
	}
	if !strings.Contains(err.Error(), "connect redis 127.0.0.1:1") {
		t.Errorf("error %q does not name the address", err)
	}
}

func TestMongoCacheConnectError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := NewMongoCache(ctx, "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200", "julia", "tiles")
	if err == nil || c != nil {
		t.Fatalf("NewMongoCache = %v, %v; want connect error", c, err)
	}
	if _, err := NewMongoCache(ctx, "not-a-uri", "julia", "tiles"); err == nil {
		t.Error("invalid URI should fail")
	}
}
