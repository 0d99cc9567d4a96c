package tile

import (
	"fmt"
	"strings"

	errs "github.com/kiesman99/julia/pkg/errors"
)

// Format selects the tile encoding
type Format int

// Output format constants
const (
	FormatPNG Format = iota
	FormatBMP
	FormatRaw
)

// ParseFormat maps a format name to its constant
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png", "":
		return FormatPNG, nil
	case "bmp":
		return FormatBMP, nil
	case "raw", "zst":
		return FormatRaw, nil
	}
	return 0, errs.Configuration("unknown tile format: %q (png|bmp|raw)", s)
}

func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatBMP:
		return "bmp"
	case FormatRaw:
		return "raw"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Ext returns the file extension, without the leading dot
func (f Format) Ext() string {
	switch f {
	case FormatBMP:
		return "bmp"
	case FormatRaw:
		return "rgb.zst"
	}
	return "png"
}

// ContentType returns the MIME type served for the format
func (f Format) ContentType() string {
	switch f {
	case FormatBMP:
		return "image/bmp"
	case FormatRaw:
		return "application/zstd"
	}
	return "image/png"
}

// Geometry holds the pixel dimensions of the full image and of one block
type Geometry struct {
	Width       int `toml:"width" json:"width"`
	Height      int `toml:"height" json:"height"`
	BlockWidth  int `toml:"block_width" json:"block_width"`
	BlockHeight int `toml:"block_height" json:"block_height"`
}

// PlaneWindow is the rectangle of the complex plane mapped onto the image
type PlaneWindow struct {
	MinR float64 `toml:"min_r" json:"min_r"`
	MaxR float64 `toml:"max_r" json:"max_r"`
	MinI float64 `toml:"min_i" json:"min_i"`
	MaxI float64 `toml:"max_i" json:"max_i"`
}

// Bounds is the plane sub-rectangle covered by one block
type Bounds struct {
	MinR, MaxR, MinI, MaxI float64
}

// Assignment is the inclusive range of global block indices owned by one node
type Assignment struct {
	First int `toml:"first" json:"first"`
	Last  int `toml:"last" json:"last"`
}

// Len returns the number of blocks in the assignment
func (a Assignment) Len() int {
	return a.Last - a.First + 1
}

// Contains reports whether block index i belongs to the assignment
func (a Assignment) Contains(i int) bool {
	return i >= a.First && i <= a.Last
}

// Identity addresses one tile in the zoom/row/column pyramid
type Identity struct {
	Zoom   int `toml:"zoom" json:"zoom"`
	Row    int `toml:"row" json:"row"`
	Column int `toml:"column" json:"column"`
}

// Index reconstructs the row-major block index
func (id Identity) Index(blocksPerLine int) int {
	return id.Row*blocksPerLine + id.Column
}

// Filename returns "<zoom>-<row>-<column>.<ext>"
func (id Identity) Filename(ext string) string {
	return fmt.Sprintf("%d-%d-%d.%s", id.Zoom, id.Row, id.Column, ext)
}

func (id Identity) String() string {
	return fmt.Sprintf("%d/%d/%d", id.Zoom, id.Row, id.Column)
}
