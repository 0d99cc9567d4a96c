// Package api defines the HTTP contract of the tile server: request and
// response models, the ServerInterface implemented by internal/server, and
// the chi wrapper that binds path and query parameters.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// Defines values for HealthResponseStatus.
const (
	Healthy   HealthResponseStatus = "healthy"
	Unhealthy HealthResponseStatus = "unhealthy"
)

// Defines values for GetTileParamsFormat.
const (
	Png GetTileParamsFormat = "png"
	Bmp GetTileParamsFormat = "bmp"
	Raw GetTileParamsFormat = "raw"
)

// Error codes returned in ErrorResponse.Error.
const (
	VALIDATIONERROR    = "VALIDATION_ERROR"
	CONFIGURATIONERROR = "CONFIGURATION_ERROR"
	TILENOTFOUND       = "TILE_NOT_FOUND"
	RENDERERROR        = "RENDER_ERROR"
	INTERNALERROR      = "INTERNAL_ERROR"
)

// HealthResponseStatus defines model for HealthResponse.Status.
type HealthResponseStatus string

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status    HealthResponseStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
	Uptime    *int                 `json:"uptime,omitempty"`
	Version   *string              `json:"version,omitempty"`
}

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Error     string                  `json:"error"`
	Message   string                  `json:"message"`
	RequestId *string                 `json:"request_id,omitempty"`
	Details   *map[string]interface{} `json:"details,omitempty"`
}

// NodeAssignment defines model for NodeAssignment.
type NodeAssignment struct {
	Rank   int `json:"rank"`
	First  int `json:"first"`
	Last   int `json:"last"`
	Blocks int `json:"blocks"`
}

// AssignmentsResponse defines model for AssignmentsResponse.
type AssignmentsResponse struct {
	Nodes         int              `json:"nodes"`
	Zoom          int              `json:"zoom"`
	BlocksPerLine int              `json:"blocks_per_line"`
	TotalBlocks   int              `json:"total_blocks"`
	Assignments   []NodeAssignment `json:"assignments"`
}

// GetTileParamsFormat defines parameters for GetTile.
type GetTileParamsFormat string

// GetTileParams defines parameters for GetTile.
type GetTileParams struct {
	Format *GetTileParamsFormat `form:"format,omitempty" json:"format,omitempty"`
}

// GetAssignmentsParams defines parameters for GetAssignments.
type GetAssignmentsParams struct {
	Nodes int `form:"nodes" json:"nodes"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Health check
	// (GET /health)
	GetHealth(w http.ResponseWriter, r *http.Request)
	// Block assignment of every rank
	// (GET /assignments)
	GetAssignments(w http.ResponseWriter, r *http.Request, params GetAssignmentsParams)
	// Render one tile
	// (GET /tiles/{z}/{row}/{column})
	GetTile(w http.ResponseWriter, r *http.Request, z int, row int, column int, params GetTileParams)
}

// MiddlewareFunc wraps a single operation handler.
type MiddlewareFunc func(http.Handler) http.Handler

// ServerInterfaceWrapper converts raw requests into ServerInterface calls.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

// GetHealth operation middleware
func (siw *ServerInterfaceWrapper) GetHealth(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetHealth(w, r)
	}))
	siw.serve(handler, w, r)
}

// GetAssignments operation middleware
func (siw *ServerInterfaceWrapper) GetAssignments(w http.ResponseWriter, r *http.Request) {
	var params GetAssignmentsParams

	if paramValue := r.URL.Query().Get("nodes"); paramValue == "" {
		siw.ErrorHandlerFunc(w, r, &RequiredParamError{ParamName: "nodes"})
		return
	}
	err := runtime.BindQueryParameter("form", true, true, "nodes", r.URL.Query(), &params.Nodes)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "nodes", Err: err})
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetAssignments(w, r, params)
	}))
	siw.serve(handler, w, r)
}

// GetTile operation middleware
func (siw *ServerInterfaceWrapper) GetTile(w http.ResponseWriter, r *http.Request) {
	var err error

	var z int
	err = runtime.BindStyledParameterWithOptions("simple", "z", chi.URLParam(r, "z"), &z,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "z", Err: err})
		return
	}

	var row int
	err = runtime.BindStyledParameterWithOptions("simple", "row", chi.URLParam(r, "row"), &row,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "row", Err: err})
		return
	}

	var column int
	err = runtime.BindStyledParameterWithOptions("simple", "column", chi.URLParam(r, "column"), &column,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "column", Err: err})
		return
	}

	var params GetTileParams
	err = runtime.BindQueryParameter("form", true, false, "format", r.URL.Query(), &params.Format)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "format", Err: err})
		return
	}

	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetTile(w, r, z, row, column, params)
	}))
	siw.serve(handler, w, r)
}

func (siw *ServerInterfaceWrapper) serve(handler http.Handler, w http.ResponseWriter, r *http.Request) {
	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}
	handler.ServeHTTP(w, r)
}

// InvalidParamFormatError is reported when a parameter cannot be bound.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// RequiredParamError is reported when a required query parameter is missing.
type RequiredParamError struct {
	ParamName string
}

func (e *RequiredParamError) Error() string {
	return fmt.Sprintf("Query argument %s is required, but not found", e.ParamName)
}

// ChiServerOptions configures HandlerWithOptions.
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// Handler creates http.Handler with routing matching the API.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

// HandlerWithOptions registers the API routes on options.BaseRouter (or a
// new router) under options.BaseURL.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health", wrapper.GetHealth)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/assignments", wrapper.GetAssignments)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/tiles/{z}/{row}/{column}", wrapper.GetTile)
	})

	return r
}
