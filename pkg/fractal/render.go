package fractal

import (
	"context"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	errs "github.com/kiesman99/julia/pkg/errors"
	"github.com/kiesman99/julia/pkg/tile"
)

// Params are the per-run inputs shared by every block
type Params struct {
	CReal         float64
	CImag         float64
	MaxIterations int
	Mode          ColorMode
}

// Validate checks the iteration ceiling
func (p Params) Validate() error {
	if p.MaxIterations < 0 {
		return errs.Configuration("iterations must not be negative (got %d)", p.MaxIterations)
	}
	return nil
}

// Renderer fills a block's pixel buffer
type Renderer interface {
	RenderBlock(ctx context.Context, b tile.Bounds, p Params, buf *tile.PixelBuffer) error
}

// Algorithm names a renderer variant
type Algorithm string

const (
	Sequential Algorithm = "sequential"
	Parallel   Algorithm = "parallel"
)

// ParseAlgorithm accepts the variant names and their short aliases
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential", "seq", "leg", "":
		return Sequential, nil
	case "parallel", "par", "omp":
		return Parallel, nil
	case "mpi":
		return "", errs.Configuration("algorithm %q is not implemented, use --nodes/--rank for multi-node runs", s)
	}
	return "", errs.Configuration("unknown algorithm: %q (sequential|parallel)", s)
}

// NewRenderer returns the renderer for a variant
func NewRenderer(a Algorithm) (Renderer, error) {
	switch a {
	case Sequential:
		return sequential{}, nil
	case Parallel:
		return parallel{limit: runtime.GOMAXPROCS(0)}, nil
	}
	return nil, errs.Configuration("unknown algorithm: %q", a)
}

type sequential struct{}

func (sequential) RenderBlock(ctx context.Context, b tile.Bounds, p Params, buf *tile.PixelBuffer) error {
	stepR, stepI := steps(b, buf)
	for j := 0; j < buf.Height; j++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		renderRow(b, p, buf, j, stepR, stepI)
	}
	return nil
}

// parallel fans rows out over a bounded set of goroutines. Each row owns a
// disjoint slice of the buffer.
type parallel struct {
	limit int
}

func (r parallel) RenderBlock(ctx context.Context, b tile.Bounds, p Params, buf *tile.PixelBuffer) error {
	stepR, stepI := steps(b, buf)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.limit, 1))
	for j := 0; j < buf.Height; j++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			renderRow(b, p, buf, j, stepR, stepI)
			return nil
		})
	}
	return g.Wait()
}

// steps returns the plane distance between neighbouring pixels. A degenerate
// axis gives a zero step.
func steps(b tile.Bounds, buf *tile.PixelBuffer) (float64, float64) {
	return (b.MaxR - b.MinR) / float64(buf.Width), (b.MaxI - b.MinI) / float64(buf.Height)
}

func renderRow(b tile.Bounds, p Params, buf *tile.PixelBuffer, j int, stepR, stepI float64) {
	pI := b.MinI + stepI*float64(j)
	row := buf.Row(j)
	for i := 0; i < buf.Width; i++ {
		pR := b.MinR + stepR*float64(i)
		res := Iterate(pR, pI, p.CReal, p.CImag, p.MaxIterations)
		row[3*i], row[3*i+1], row[3*i+2] = Colorize(res, p.MaxIterations, p.Mode)
	}
}
