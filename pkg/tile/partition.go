package tile

import (
	"math"
	"math/bits"

	errs "github.com/kiesman99/julia/pkg/errors"
)

// Validate checks that the image divides evenly into blocks
func (g Geometry) Validate() error {
	if g.BlockWidth <= 0 || g.BlockHeight <= 0 {
		return errs.Configuration("block size cannot be 0 (got %dx%d)", g.BlockWidth, g.BlockHeight)
	}
	if g.Width <= 0 || g.Height <= 0 {
		return errs.Configuration("image size must be positive (got %dx%d)", g.Width, g.Height)
	}
	if g.Width%g.BlockWidth != 0 || g.Height%g.BlockHeight != 0 {
		return errs.Configuration("image size %dx%d is not a multiple of the block size %dx%d",
			g.Width, g.Height, g.BlockWidth, g.BlockHeight)
	}
	return nil
}

// BlocksPerLine returns the number of blocks in one row of the image
func (g Geometry) BlocksPerLine() int {
	return g.Width / g.BlockWidth
}

// BlocksPerColumn returns the number of block rows
func (g Geometry) BlocksPerColumn() int {
	return g.Height / g.BlockHeight
}

// TotalBlocks returns the number of blocks covering the image
func (g Geometry) TotalBlocks() int {
	return g.BlocksPerLine() * g.BlocksPerColumn()
}

// Validate rejects windows with non-finite or inverted edges. A zero-width
// axis is allowed: every pixel on it then maps to the same coordinate.
func (w PlaneWindow) Validate() error {
	for _, v := range []float64{w.MinR, w.MaxR, w.MinI, w.MaxI} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.Configuration("plane window has a non-finite edge: %+v", w)
		}
	}
	if w.MaxR < w.MinR || w.MaxI < w.MinI {
		return errs.Configuration("plane window is inverted: %+v", w)
	}
	return nil
}

// Partition computes the blocks owned by rank out of nodes. Blocks are split
// evenly and the remainder of the division goes to the last rank.
func Partition(g Geometry, rank, nodes int) (Assignment, error) {
	if err := g.Validate(); err != nil {
		return Assignment{}, err
	}
	if nodes < 1 {
		return Assignment{}, errs.Configuration("node count must be at least 1 (got %d)", nodes)
	}
	if rank < 0 || rank >= nodes {
		return Assignment{}, errs.Configuration("rank %d out of range for %d nodes", rank, nodes)
	}

	total := g.TotalBlocks()
	perNode := total / nodes
	if perNode == 0 {
		return Assignment{}, errs.Configuration("%d blocks cannot be shared by %d nodes", total, nodes)
	}

	a := Assignment{
		First: perNode * rank,
		Last:  perNode*(rank+1) - 1,
	}
	if total%nodes != 0 && rank == nodes-1 {
		a.Last = total - 1
	}
	return a, nil
}

// PartitionAll returns the assignment of every rank, in rank order
func PartitionAll(g Geometry, nodes int) ([]Assignment, error) {
	if nodes < 1 {
		return nil, errs.Configuration("node count must be at least 1 (got %d)", nodes)
	}
	out := make([]Assignment, nodes)
	for rank := range out {
		a, err := Partition(g, rank, nodes)
		if err != nil {
			return nil, err
		}
		out[rank] = a
	}
	return out, nil
}

// Bounds returns the plane sub-rectangle of block i
func (g Geometry) Bounds(w PlaneWindow, i int) Bounds {
	perLine := g.BlocksPerLine()
	blockX := i % perLine
	blockY := i / perLine

	rangR := (w.MaxR - w.MinR) / float64(g.Width)
	rangI := (w.MaxI - w.MinI) / float64(g.Height)

	return Bounds{
		MinR: w.MinR + rangR*float64(blockX*g.BlockWidth),
		MaxR: w.MinR + rangR*float64((blockX+1)*g.BlockWidth),
		MinI: w.MinI + rangI*float64(blockY*g.BlockHeight),
		MaxI: w.MinI + rangI*float64((blockY+1)*g.BlockHeight),
	}
}

// Bounds precomputes the bounds of every owned block, indexed by local offset
func (a Assignment) Bounds(g Geometry, w PlaneWindow) []Bounds {
	out := make([]Bounds, a.Len())
	for j := range out {
		out[j] = g.Bounds(w, a.First+j)
	}
	return out
}

// Zoom returns log2(width/blockWidth). The ratio must be a power of two.
func (g Geometry) Zoom() (int, error) {
	if err := g.Validate(); err != nil {
		return 0, err
	}
	perLine := g.BlocksPerLine()
	if perLine&(perLine-1) != 0 {
		return 0, errs.Configuration("%d blocks per line is not a power of two, zoom is undefined", perLine)
	}
	return bits.TrailingZeros(uint(perLine)), nil
}

// Address converts a global block index into its tile identity
func (g Geometry) Address(i int) (Identity, error) {
	zoom, err := g.Zoom()
	if err != nil {
		return Identity{}, err
	}
	if i < 0 || i >= g.TotalBlocks() {
		return Identity{}, errs.New(errs.ErrCodeNotFound, "block %d outside [0,%d)", i, g.TotalBlocks())
	}
	perLine := g.BlocksPerLine()
	return Identity{Zoom: zoom, Row: i / perLine, Column: i % perLine}, nil
}

// Locate is the inverse of Address: it returns the block index of id
func (g Geometry) Locate(id Identity) (int, error) {
	zoom, err := g.Zoom()
	if err != nil {
		return 0, err
	}
	if id.Zoom != zoom {
		return 0, errs.New(errs.ErrCodeNotFound, "tile %s is not at zoom %d", id, zoom)
	}
	if id.Row < 0 || id.Row >= g.BlocksPerColumn() || id.Column < 0 || id.Column >= g.BlocksPerLine() {
		return 0, errs.New(errs.ErrCodeNotFound, "tile %s outside the %dx%d block grid",
			id, g.BlocksPerLine(), g.BlocksPerColumn())
	}
	return id.Index(g.BlocksPerLine()), nil
}

// AtZoom rescales the geometry to pyramid level z, keeping the block size and
// the aspect ratio of the block grid.
func (g Geometry) AtZoom(z int) (Geometry, error) {
	zoom, err := g.Zoom()
	if err != nil {
		return Geometry{}, err
	}
	if z < 0 || z > 30 {
		return Geometry{}, errs.New(errs.ErrCodeInvalidInput, "zoom %d out of range [0,30]", z)
	}
	cols := 1 << z
	rows := g.BlocksPerColumn() * cols
	if rows%(1<<zoom) != 0 {
		return Geometry{}, errs.New(errs.ErrCodeNotFound, "zoom %d does not split the %d block rows evenly",
			z, g.BlocksPerColumn())
	}
	rows >>= zoom
	return Geometry{
		Width:       cols * g.BlockWidth,
		Height:      rows * g.BlockHeight,
		BlockWidth:  g.BlockWidth,
		BlockHeight: g.BlockHeight,
	}, nil
}
