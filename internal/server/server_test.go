package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/kiesman99/julia/internal/api"
	"github.com/kiesman99/julia/internal/cache"
	"github.com/kiesman99/julia/internal/observability"
	"github.com/kiesman99/julia/pkg/fractal"
	"github.com/kiesman99/julia/pkg/tile"
)

func testConfig() Config {
	return Config{
		Geometry:  tile.Geometry{Width: 32, Height: 32, BlockWidth: 16, BlockHeight: 16},
		Window:    tile.PlaneWindow{MinR: -2, MaxR: 2, MinI: -2, MaxI: 2},
		Params:    fractal.Params{CReal: -0.8, CImag: 0.156, MaxIterations: 100, Mode: fractal.RGB},
		Algorithm: fractal.Parallel,
		Logger:    log.New(io.Discard),
	}
}

// Test server setup
func setupTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	apiServer, err := NewServer("2.0.0-test", cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	server := httptest.NewServer(NewRouter(apiServer, 30*time.Second))
	t.Cleanup(server.Close)
	return server
}

func decodeError(t *testing.T, resp *http.Response) api.ErrorResponse {
	t.Helper()
	var e api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return e
}

func TestHealthEndpoint(t *testing.T) {
	server := setupTestServer(t, testConfig())

	resp, err := http.Get(server.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", ct)
	}

	var healthResp api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if healthResp.Status != api.Healthy {
		t.Errorf("Expected status 'healthy', got %s", healthResp.Status)
	}
	if healthResp.Version == nil || *healthResp.Version != "2.0.0-test" {
		t.Errorf("Expected version '2.0.0-test', got %v", healthResp.Version)
	}
	if healthResp.Uptime == nil || *healthResp.Uptime < 0 {
		t.Errorf("Expected valid uptime, got %v", healthResp.Uptime)
	}
	if time.Since(healthResp.Timestamp) > time.Minute {
		t.Errorf("Timestamp seems too old: %v", healthResp.Timestamp)
	}
}

func TestTileEndpoint_MatchesDirectRender(t *testing.T) {
	cfg := testConfig()
	server := setupTestServer(t, cfg)

	resp, err := http.Get(server.URL + "/api/v1/tiles/1/1/0")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 200, got %d. Body: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected Content-Type image/png, got %s", ct)
	}
	if _, err := uuid.Parse(resp.Header.Get("X-Request-ID")); err != nil {
		t.Errorf("X-Request-ID %q is not a uuid", resp.Header.Get("X-Request-ID"))
	}

	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatalf("Failed to decode PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 16 {
		t.Fatalf("tile is %dx%d, want 16x16", b.Dx(), b.Dy())
	}

	// row 1, column 0 is block 2
	want, _ := tile.NewPixelBuffer(16, 16)
	r, _ := fractal.NewRenderer(fractal.Sequential)
	if err := r.RenderBlock(context.Background(), cfg.Geometry.Bounds(cfg.Window, 2), cfg.Params, want); err != nil {
		t.Fatal(err)
	}
	for j := 0; j < 16; j++ {
		for i := 0; i < 16; i++ {
			pr, pg, pb, _ := img.At(i, j).RGBA()
			wr, wg, wb := want.At(i, j)
			if byte(pr>>8) != wr || byte(pg>>8) != wg || byte(pb>>8) != wb {
				t.Fatalf("pixel (%d,%d) differs from direct render", i, j)
			}
		}
	}
}

func TestTileEndpoint_Pyramid(t *testing.T) {
	server := setupTestServer(t, testConfig())

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"whole image at zoom 0", "/tiles/0/0/0", http.StatusOK, ""},
		{"native level", "/tiles/1/1/1", http.StatusOK, ""},
		{"finer level", "/tiles/2/3/3", http.StatusOK, ""},
		{"row past the grid", "/tiles/1/2/0", http.StatusNotFound, api.TILENOTFOUND},
		{"column past the grid", "/tiles/0/0/1", http.StatusNotFound, api.TILENOTFOUND},
		{"negative row", "/tiles/1/-1/0", http.StatusNotFound, api.TILENOTFOUND},
		{"zoom out of range", "/tiles/31/0/0", http.StatusBadRequest, api.VALIDATIONERROR},
		{"non-numeric zoom", "/tiles/abc/0/0", http.StatusBadRequest, api.VALIDATIONERROR},
		{"unknown format", "/tiles/1/0/0?format=gif", http.StatusBadRequest, api.VALIDATIONERROR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(server.URL + "/api/v1" + tt.path)
			if err != nil {
				t.Fatalf("Failed to make request: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				body, _ := io.ReadAll(resp.Body)
				t.Fatalf("Expected status %d, got %d. Body: %s", tt.wantStatus, resp.StatusCode, body)
			}
			if tt.wantCode == "" {
				return
			}
			if e := decodeError(t, resp); e.Error != tt.wantCode {
				t.Errorf("Expected error %s, got %s (%s)", tt.wantCode, e.Error, e.Message)
			}
		})
	}
}

func TestTileEndpoint_BMP(t *testing.T) {
	server := setupTestServer(t, testConfig())

	resp, err := http.Get(server.URL + "/api/v1/tiles/1/0/0?format=bmp")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/bmp" {
		t.Errorf("Expected Content-Type image/bmp, got %s", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(body, []byte("BM")) {
		t.Errorf("body is not a BMP file")
	}
}

type countingCacheHooks struct {
	observability.NoopCacheHooks
	mu     sync.Mutex
	hits   int
	misses int
}

func (h *countingCacheHooks) OnCacheHit(context.Context, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hits++
}

func (h *countingCacheHooks) OnCacheMiss(context.Context, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.misses++
}

func TestTileEndpoint_Cache(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	cfg := testConfig()
	cfg.Cache = fc

	hooks := &countingCacheHooks{}
	observability.SetCacheHooks(hooks)
	defer observability.Reset()

	server := setupTestServer(t, cfg)

	var bodies [2][]byte
	for i, want := range []string{"MISS", "HIT"} {
		resp, err := http.Get(server.URL + "/api/v1/tiles/1/0/1")
		if err != nil {
			t.Fatalf("Failed to make request: %v", err)
		}
		bodies[i], _ = io.ReadAll(resp.Body)
		resp.Body.Close()

		if got := resp.Header.Get("X-Cache"); got != want {
			t.Errorf("request %d: X-Cache = %q, want %q", i, got, want)
		}
	}
	if !bytes.Equal(bodies[0], bodies[1]) {
		t.Error("cached tile differs from the rendered one")
	}
	if hooks.hits != 1 || hooks.misses != 1 {
		t.Errorf("hits=%d misses=%d, want 1 and 1", hooks.hits, hooks.misses)
	}
}

func TestAssignmentsEndpoint(t *testing.T) {
	server := setupTestServer(t, testConfig())

	resp, err := http.Get(server.URL + "/api/v1/assignments?nodes=3")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var got api.AssignmentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	want := []api.NodeAssignment{
		{Rank: 0, First: 0, Last: 0, Blocks: 1},
		{Rank: 1, First: 1, Last: 1, Blocks: 1},
		{Rank: 2, First: 2, Last: 3, Blocks: 2},
	}
	if got.TotalBlocks != 4 || got.Zoom != 1 || got.BlocksPerLine != 2 || len(got.Assignments) != 3 {
		t.Fatalf("unexpected response %+v", got)
	}
	for i := range want {
		if got.Assignments[i] != want[i] {
			t.Errorf("assignment %d = %+v, want %+v", i, got.Assignments[i], want[i])
		}
	}
}

func TestAssignmentsEndpoint_Errors(t *testing.T) {
	server := setupTestServer(t, testConfig())

	tests := []struct {
		name     string
		query    string
		wantCode string
	}{
		{"more nodes than blocks", "?nodes=5", api.CONFIGURATIONERROR},
		{"zero nodes", "?nodes=0", api.CONFIGURATIONERROR},
		{"missing nodes", "", api.VALIDATIONERROR},
		{"non-numeric nodes", "?nodes=many", api.VALIDATIONERROR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(server.URL + "/api/v1/assignments" + tt.query)
			if err != nil {
				t.Fatalf("Failed to make request: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", resp.StatusCode)
			}
			if e := decodeError(t, resp); e.Error != tt.wantCode {
				t.Errorf("Expected error %s, got %s", tt.wantCode, e.Error)
			}
		})
	}
}

func TestCORSHeaders(t *testing.T) {
	server := setupTestServer(t, testConfig())

	req, err := http.NewRequest("OPTIONS", server.URL+"/api/v1/tiles/0/0/0", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 for OPTIONS, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected Access-Control-Allow-Origin '*', got %q", got)
	}
}

func TestNewServerRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"indivisible width", func(c *Config) { c.Geometry.Width = 40 }},
		{"zoom not power of two", func(c *Config) { c.Geometry.Width = 48 }},
		{"inverted window", func(c *Config) { c.Window.MinI, c.Window.MaxI = 1, -1 }},
		{"unknown algorithm", func(c *Config) { c.Algorithm = "gpu" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := NewServer("test", cfg); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
