// Package render drives a node's share of a tiled Julia render: it
// partitions the image, renders each owned block and hands it to a tile
// writer.
package render

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/kiesman99/julia/internal/logging"
	"github.com/kiesman99/julia/internal/manifest"
	"github.com/kiesman99/julia/internal/observability"
	errs "github.com/kiesman99/julia/pkg/errors"
	"github.com/kiesman99/julia/pkg/fractal"
	"github.com/kiesman99/julia/pkg/tile"
)

// Job is everything a node needs to render its blocks
type Job struct {
	Geometry  tile.Geometry
	Window    tile.PlaneWindow
	Params    fractal.Params
	Algorithm fractal.Algorithm
	Format    tile.Format
	OutputDir string
	Rank      int
	Nodes     int
}

// Validate checks the job before any output is produced
func (j Job) Validate() error {
	if err := j.Geometry.Validate(); err != nil {
		return err
	}
	if _, err := j.Geometry.Zoom(); err != nil {
		return err
	}
	if err := j.Window.Validate(); err != nil {
		return err
	}
	return j.Params.Validate()
}

// Runner renders jobs
type Runner struct {
	logger *log.Logger
	host   string
	writer tile.Writer
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the logger. Without it the logger carried by the run's
// context is used.
func WithLogger(l *log.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithHost overrides the host name reported in logs and manifests
func WithHost(h string) Option {
	return func(r *Runner) { r.host = h }
}

// WithWriter replaces the file writer. The writer must be safe for
// concurrent use when the runner is used with RunAll.
func WithWriter(w tile.Writer) Option {
	return func(r *Runner) { r.writer = w }
}

// NewRunner creates a runner
func NewRunner(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.host == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		r.host = host
	}
	return r
}

// Run renders every block assigned to job.Rank. Any failure aborts the run.
// A manifest is written to job.OutputDir when it is set.
func (r *Runner) Run(ctx context.Context, job Job) (*manifest.Manifest, error) {
	start := time.Now()
	m, err := r.run(ctx, job, start)
	blocks := 0
	if m != nil {
		blocks = len(m.Tiles)
	}
	observability.Render().OnRunComplete(ctx, job.Rank, blocks, time.Since(start), err)
	return m, err
}

func (r *Runner) run(ctx context.Context, job Job, start time.Time) (*manifest.Manifest, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	g := job.Geometry

	assignment, err := tile.Partition(g, job.Rank, job.Nodes)
	if err != nil {
		return nil, err
	}
	renderer, err := fractal.NewRenderer(job.Algorithm)
	if err != nil {
		return nil, err
	}
	pool, err := tile.NewBufferPool(g.BlockWidth, g.BlockHeight)
	if err != nil {
		return nil, err
	}

	writer := r.writer
	if writer == nil {
		fw, err := tile.NewFileWriter(job.OutputDir, job.Format)
		if err != nil {
			return nil, err
		}
		writer = fw
	}

	logger := r.logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	logger = logger.With("rank", job.Rank, "host", r.host)
	progress := logging.NewProgress(logger)
	logger.Infof("Dividing the (%dx%d) image in %d blocks of (%dx%d)",
		g.Width, g.Height, g.TotalBlocks(), g.BlockWidth, g.BlockHeight)
	logger.Infof("Node %d, %d total nodes, taking care of blocks %d to %d (%d blocks assigned)",
		job.Rank, job.Nodes, assignment.First, assignment.Last, assignment.Len())

	bounds := assignment.Bounds(g, job.Window)
	for j, b := range bounds {
		logger.Debug("block bounds", "block", assignment.First+j,
			"minR", b.MinR, "maxR", b.MaxR, "minI", b.MinI, "maxI", b.MaxI)
	}

	m := &manifest.Manifest{
		RunID:      manifest.NewRunID(),
		Host:       r.host,
		Rank:       job.Rank,
		Nodes:      job.Nodes,
		StartedAt:  start,
		Geometry:   g,
		Window:     job.Window,
		Constant:   manifest.Constant{Real: job.Params.CReal, Imag: job.Params.CImag},
		Iterations: job.Params.MaxIterations,
		ColorMode:  job.Params.Mode.String(),
		Algorithm:  string(job.Algorithm),
		Format:     job.Format.String(),
		Assignment: assignment,
	}

	ext := job.Format.Ext()
	for j, b := range bounds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		block := assignment.First + j
		id, err := g.Address(block)
		if err != nil {
			return nil, err
		}
		if err := r.renderBlock(ctx, job, renderer, pool, writer, block, id, b); err != nil {
			return nil, fmt.Errorf("block %d (%s): %w", block, id, err)
		}

		logger.Debug("Task done", "task", j, "block", block, "row", id.Row, "column", id.Column)
		m.Add(block, id, id.Filename(ext))
	}
	m.FinishedAt = time.Now()

	if job.OutputDir != "" {
		path, err := m.Write(job.OutputDir)
		if err != nil {
			return nil, errs.Wrap(errs.ErrCodeEncoding, err, "write manifest")
		}
		logger.Debug("manifest written", "path", path)
	}

	progress.Done(fmt.Sprintf("Rendered %d tiles", len(m.Tiles)))
	return m, nil
}

// renderBlock owns buf from Get until the writer has returned
func (r *Runner) renderBlock(ctx context.Context, job Job, renderer fractal.Renderer, pool *tile.BufferPool,
	writer tile.Writer, block int, id tile.Identity, b tile.Bounds) (err error) {
	hooks := observability.Render()
	hooks.OnBlockStart(ctx, job.Rank, block)
	started := time.Now()
	defer func() {
		hooks.OnBlockComplete(ctx, job.Rank, block, time.Since(started), err)
	}()

	buf := pool.Get()
	defer pool.Put(buf)

	if err := renderer.RenderBlock(ctx, b, job.Params, buf); err != nil {
		return err
	}
	return writer.WriteTile(id, buf)
}

// RunAll renders every rank of job.Nodes concurrently in this process. The
// manifests are returned in rank order.
func (r *Runner) RunAll(ctx context.Context, job Job) ([]*manifest.Manifest, error) {
	if job.Nodes < 1 {
		return nil, errs.Configuration("node count must be at least 1 (got %d)", job.Nodes)
	}
	// Validate every rank first so a bad configuration produces no tiles.
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if _, err := tile.PartitionAll(job.Geometry, job.Nodes); err != nil {
		return nil, err
	}

	out := make([]*manifest.Manifest, job.Nodes)
	g, ctx := errgroup.WithContext(ctx)
	for rank := 0; rank < job.Nodes; rank++ {
		g.Go(func() error {
			node := job
			node.Rank = rank
			m, err := r.Run(ctx, node)
			if err != nil {
				return fmt.Errorf("rank %d: %w", rank, err)
			}
			out[rank] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
