package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/kiesman99/julia/internal/api"
	"github.com/kiesman99/julia/internal/cache"
	"github.com/kiesman99/julia/internal/observability"
	errs "github.com/kiesman99/julia/pkg/errors"
	"github.com/kiesman99/julia/pkg/fractal"
	"github.com/kiesman99/julia/pkg/tile"
)

// Config is the render configuration every tile is served from
type Config struct {
	Geometry  tile.Geometry
	Window    tile.PlaneWindow
	Params    fractal.Params
	Algorithm fractal.Algorithm
	Cache     cache.Cache
	CacheTTL  time.Duration
	Logger    *log.Logger
}

// Server implements api.ServerInterface
type Server struct {
	startTime time.Time
	version   string
	cfg       Config
	renderer  fractal.Renderer
	backend   string
}

// NewServer validates cfg and creates a server. A nil cache disables caching.
func NewServer(version string, cfg Config) (*Server, error) {
	if err := cfg.Geometry.Validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Geometry.Zoom(); err != nil {
		return nil, err
	}
	if err := cfg.Window.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	renderer, err := fractal.NewRenderer(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewNullCache()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Server{
		startTime: time.Now(),
		version:   version,
		cfg:       cfg,
		renderer:  renderer,
		backend:   cache.Name(cfg.Cache),
	}, nil
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}
	s.writeJSON(w, http.StatusOK, response)
}

// GetAssignments reports which blocks each of params.Nodes ranks would own
func (s *Server) GetAssignments(w http.ResponseWriter, r *http.Request, params api.GetAssignmentsParams) {
	requestID := generateRequestID()
	w.Header().Set("X-Request-ID", requestID)

	g := s.cfg.Geometry
	all, err := tile.PartitionAll(g, params.Nodes)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, api.CONFIGURATIONERROR,
			errs.UserMessage(err), &requestID, map[string]interface{}{"nodes": params.Nodes})
		return
	}
	zoom, _ := g.Zoom()

	response := api.AssignmentsResponse{
		Nodes:         params.Nodes,
		Zoom:          zoom,
		BlocksPerLine: g.BlocksPerLine(),
		TotalBlocks:   g.TotalBlocks(),
		Assignments:   make([]api.NodeAssignment, len(all)),
	}
	for rank, a := range all {
		response.Assignments[rank] = api.NodeAssignment{
			Rank:   rank,
			First:  a.First,
			Last:   a.Last,
			Blocks: a.Len(),
		}
	}
	s.writeJSON(w, http.StatusOK, response)
}

// tileParams is everything besides the identity that changes a tile's bytes
type tileParams struct {
	Geometry  tile.Geometry    `json:"geometry"`
	Window    tile.PlaneWindow `json:"window"`
	CReal     float64          `json:"c_real"`
	CImag     float64          `json:"c_imag"`
	Iter      int              `json:"iterations"`
	ColorMode string           `json:"color_mode"`
}

// GetTile renders (or serves from cache) the tile z/row/column
func (s *Server) GetTile(w http.ResponseWriter, r *http.Request, z int, row int, column int, params api.GetTileParams) {
	requestID := generateRequestID()
	w.Header().Set("X-Request-ID", requestID)
	ctx := r.Context()
	logger := s.cfg.Logger.With("request_id", requestID)

	var name string
	if params.Format != nil {
		name = string(*params.Format)
	}
	format, err := tile.ParseFormat(name)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, api.VALIDATIONERROR,
			errs.UserMessage(err), &requestID, map[string]interface{}{"field": "format"})
		return
	}

	id := tile.Identity{Zoom: z, Row: row, Column: column}
	var block int
	g, err := s.cfg.Geometry.AtZoom(z)
	if err == nil {
		block, err = g.Locate(id)
	}
	if err != nil {
		s.handleTileError(w, err, &requestID)
		return
	}

	key := cache.TileKey(tileParams{
		Geometry:  s.cfg.Geometry,
		Window:    s.cfg.Window,
		CReal:     s.cfg.Params.CReal,
		CImag:     s.cfg.Params.CImag,
		Iter:      s.cfg.Params.MaxIterations,
		ColorMode: s.cfg.Params.Mode.String(),
	}, z, row, column, format.String())

	hooks := observability.Cache()
	data, ok, err := s.cfg.Cache.Get(ctx, key)
	if err != nil {
		logger.Warn("cache read failed", "backend", s.backend, "err", err)
		ok = false
	}
	if ok {
		hooks.OnCacheHit(ctx, s.backend)
		s.writeTile(w, format, data, "HIT")
		return
	}
	hooks.OnCacheMiss(ctx, s.backend)

	buf, err := tile.NewPixelBuffer(g.BlockWidth, g.BlockHeight)
	if err != nil {
		s.handleTileError(w, err, &requestID)
		return
	}
	if err := s.renderer.RenderBlock(ctx, g.Bounds(s.cfg.Window, block), s.cfg.Params, buf); err != nil {
		s.handleTileError(w, err, &requestID)
		return
	}
	data, err = tile.EncodeBytes(buf, format)
	if err != nil {
		s.handleTileError(w, err, &requestID)
		return
	}
	logger.Debug("tile rendered", "tile", id.String(), "block", block, "bytes", len(data))

	if err := s.cfg.Cache.Set(ctx, key, data, s.cfg.CacheTTL); err != nil {
		logger.Warn("cache write failed", "backend", s.backend, "err", err)
	} else {
		hooks.OnCacheSet(ctx, s.backend, len(data))
	}
	s.writeTile(w, format, data, "MISS")
}

func (s *Server) writeTile(w http.ResponseWriter, format tile.Format, data []byte, cacheStatus string) {
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Cache", cacheStatus)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.cfg.Logger.Error("Error writing response", "err", err)
	}
}

// handleTileError maps coded errors to HTTP responses
func (s *Server) handleTileError(w http.ResponseWriter, err error, requestID *string) {
	switch errs.GetCode(err) {
	case errs.ErrCodeNotFound:
		s.writeErrorResponse(w, http.StatusNotFound, api.TILENOTFOUND, errs.UserMessage(err), requestID, nil)
	case errs.ErrCodeInvalidInput:
		s.writeErrorResponse(w, http.StatusBadRequest, api.VALIDATIONERROR, errs.UserMessage(err), requestID, nil)
	case errs.ErrCodeEncoding, errs.ErrCodeResource:
		s.writeErrorResponse(w, http.StatusInternalServerError, api.RENDERERROR, errs.UserMessage(err), requestID, nil)
	default:
		s.cfg.Logger.Error("tile request failed", "request_id", *requestID, "err", err)
		s.writeErrorResponse(w, http.StatusInternalServerError, api.INTERNALERROR,
			"Internal server error", requestID, nil)
	}
}

// ParamErrorHandler turns parameter binding failures into validation errors
func (s *Server) ParamErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	requestID := generateRequestID()
	w.Header().Set("X-Request-ID", requestID)
	s.writeErrorResponse(w, http.StatusBadRequest, api.VALIDATIONERROR, err.Error(), &requestID, nil)
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string, details map[string]interface{}) {
	response := api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}
	if details != nil {
		response.Details = &details
	}
	s.writeJSON(w, statusCode, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.cfg.Logger.Error("Error encoding response", "err", err)
	}
}

func generateRequestID() string {
	return uuid.NewString()
}
