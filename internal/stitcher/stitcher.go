// Package stitcher assembles the tiles of a finished render back into the
// full image, using the per-rank manifests to find them.
package stitcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/kiesman99/julia/internal/logging"
	"github.com/kiesman99/julia/internal/manifest"
	errs "github.com/kiesman99/julia/pkg/errors"
	"github.com/kiesman99/julia/pkg/tile"
)

// Options contains all stitching parameters
type Options struct {
	Dir          string      // directory holding the tiles and manifest-*.toml
	Output       string      // file to write the assembled image to
	Format       tile.Format // format of Output
	AllowPartial bool        // leave missing tiles black instead of failing
}

// Result describes the assembled image
type Result struct {
	Width   int
	Height  int
	Tiles   int
	Missing []tile.Identity
}

// MissingTilesError reports blocks that no manifest accounts for
type MissingTilesError struct {
	Missing []tile.Identity
	Total   int
}

func (e *MissingTilesError) Error() string {
	return fmt.Sprintf("%d of %d tiles missing (first %s)", len(e.Missing), e.Total, e.Missing[0])
}

// Stitcher reads tiles from disk
type Stitcher struct {
	logger *log.Logger
}

// New creates a stitcher. A nil logger means the context's logger.
func New(logger *log.Logger) *Stitcher {
	return &Stitcher{logger: logger}
}

// Stitch performs the stitching operation
func (s *Stitcher) Stitch(ctx context.Context, opts Options) (*Result, error) {
	logger := s.logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	progress := logging.NewProgress(logger)

	if strings.TrimSpace(opts.Output) == "" {
		return nil, errs.Configuration("output file is required")
	}
	manifests, err := loadManifests(opts.Dir)
	if err != nil {
		return nil, err
	}
	first := manifests[0]
	for _, m := range manifests[1:] {
		if field := differsFrom(first, m); field != "" {
			return nil, errs.Configuration("manifests of rank %d and rank %d come from different renders (%s differs)",
				first.Rank, m.Rank, field)
		}
	}
	g := first.Geometry
	if err := g.Validate(); err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidInput, err, "manifest of rank %d", first.Rank)
	}
	if _, err := g.Zoom(); err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidInput, err, "manifest of rank %d", first.Rank)
	}

	// Check size limits
	full, err := tile.NewPixelBuffer(g.Width, g.Height)
	if err != nil {
		return nil, err
	}

	type source struct {
		entry  manifest.Entry
		format tile.Format
	}
	found := make(map[int]source, g.TotalBlocks())
	for _, m := range manifests {
		format, err := tile.ParseFormat(m.Format)
		if err != nil {
			return nil, fmt.Errorf("manifest of rank %d: %w", m.Rank, err)
		}
		for _, e := range m.Tiles {
			block, err := g.Locate(tile.Identity{Zoom: e.Zoom, Row: e.Row, Column: e.Col})
			if err != nil || block != e.Block {
				return nil, errs.New(errs.ErrCodeInvalidInput, "manifest of rank %d lists %s as block %d",
					m.Rank, e.File, e.Block)
			}
			found[e.Block] = source{entry: e, format: format}
		}
	}

	var missing []tile.Identity
	for block := 0; block < g.TotalBlocks(); block++ {
		if _, ok := found[block]; ok {
			continue
		}
		id, err := g.Address(block)
		if err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}
	if len(missing) > 0 {
		if !opts.AllowPartial {
			return nil, &MissingTilesError{Missing: missing, Total: g.TotalBlocks()}
		}
		logger.Warn("Tiles missing, leaving them black", "missing", len(missing), "total", g.TotalBlocks())
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	var mu sync.Mutex
	placed := 0
	for _, src := range found {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := placeTile(full, g, filepath.Join(opts.Dir, src.entry.File), src.entry, src.format); err != nil {
				return err
			}
			mu.Lock()
			placed++
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if err := writeImage(opts.Output, full, opts.Format); err != nil {
		return nil, err
	}
	progress.Done(fmt.Sprintf("Stitched %d tiles into %s", placed, opts.Output),
		"width", g.Width, "height", g.Height)

	return &Result{Width: g.Width, Height: g.Height, Tiles: placed, Missing: missing}, nil
}

// differsFrom names the first render setting on which a and b disagree, or
// returns "" when both belong to the same render
func differsFrom(a, b *manifest.Manifest) string {
	switch {
	case a.Geometry != b.Geometry:
		return "geometry"
	case a.Nodes != b.Nodes:
		return "nodes"
	case a.Window != b.Window:
		return "window"
	case a.Constant != b.Constant:
		return "constant"
	case a.Iterations != b.Iterations:
		return "iterations"
	case a.ColorMode != b.ColorMode:
		return "color_mode"
	}
	return ""
}

// loadManifests reads every manifest-*.toml in dir, ordered by rank
func loadManifests(dir string) ([]*manifest.Manifest, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "manifest-*.toml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errs.New(errs.ErrCodeNotFound, "no manifests in %s", dir)
	}
	out := make([]*manifest.Manifest, 0, len(paths))
	for _, p := range paths {
		m, err := manifest.Read(p)
		if err != nil {
			return nil, errs.Wrap(errs.ErrCodeInvalidInput, err, "read %s", filepath.Base(p))
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

// placeTile copies one decoded tile into its block of the full image. Blocks
// are disjoint so concurrent calls never touch the same bytes.
func placeTile(full *tile.PixelBuffer, g tile.Geometry, path string, e manifest.Entry, format tile.Format) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.Wrap(errs.ErrCodeNotFound, err, "tile %s", e.File)
	}
	defer f.Close()

	img, err := tile.Decode(f, format)
	if err != nil {
		return errs.Wrap(errs.ErrCodeInvalidInput, err, "decode tile %s", e.File)
	}
	if img.Width != g.BlockWidth || img.Height != g.BlockHeight {
		return errs.New(errs.ErrCodeInvalidInput, "wrong tile size for %s: got %dx%d, expected %dx%d",
			e.File, img.Width, img.Height, g.BlockWidth, g.BlockHeight)
	}

	xoff := e.Col * g.BlockWidth * 3
	for j := 0; j < img.Height; j++ {
		dst := full.Row(e.Row*g.BlockHeight + j)
		copy(dst[xoff:xoff+g.BlockWidth*3], img.Row(j))
	}
	return nil
}

// writeImage encodes buf to path, creating parent directories as needed
func writeImage(path string, buf *tile.PixelBuffer, format tile.Format) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.ErrCodeEncoding, err, "create output directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.ErrCodeEncoding, err, "create %s", path)
	}
	if err := tile.Encode(f, buf, format); err != nil {
		f.Close()
		return errs.Wrap(errs.ErrCodeEncoding, err, "encode %s", path)
	}
	return f.Close()
}
