package tile

import (
	"sync"

	errs "github.com/kiesman99/julia/pkg/errors"
)

// MaxBlockPixels caps the size of a single block buffer
const MaxBlockPixels = 10000 * 10000

// PixelBuffer is a row-major RGB buffer for one block, top row first
type PixelBuffer struct {
	Pix    []byte
	Width  int
	Height int
}

// NewPixelBuffer allocates a buffer of 3*width*height bytes
func NewPixelBuffer(width, height int) (*PixelBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, errs.Configuration("pixel buffer needs positive dimensions (got %dx%d)", width, height)
	}
	if int64(width)*int64(height) > MaxBlockPixels {
		return nil, errs.New(errs.ErrCodeResource, "block of %dx%d pixels is too big", width, height)
	}
	return &PixelBuffer{
		Pix:    make([]byte, 3*width*height),
		Width:  width,
		Height: height,
	}, nil
}

// Offset returns the index of the red byte of pixel (i, j)
func (b *PixelBuffer) Offset(i, j int) int {
	return 3 * (j*b.Width + i)
}

// Set writes one pixel
func (b *PixelBuffer) Set(i, j int, r, g, bl byte) {
	o := b.Offset(i, j)
	b.Pix[o] = r
	b.Pix[o+1] = g
	b.Pix[o+2] = bl
}

// At reads one pixel
func (b *PixelBuffer) At(i, j int) (r, g, bl byte) {
	o := b.Offset(i, j)
	return b.Pix[o], b.Pix[o+1], b.Pix[o+2]
}

// Row returns the bytes of row j
func (b *PixelBuffer) Row(j int) []byte {
	return b.Pix[3*j*b.Width : 3*(j+1)*b.Width]
}

// BufferPool hands out block-sized buffers. A buffer taken with Get belongs
// to its caller until it is returned with Put, and Put clears it.
type BufferPool struct {
	width, height int
	pool          sync.Pool
}

// NewBufferPool creates a pool for blocks of the given size
func NewBufferPool(width, height int) (*BufferPool, error) {
	// Allocate once up front so size errors surface before rendering starts.
	first, err := NewPixelBuffer(width, height)
	if err != nil {
		return nil, err
	}
	p := &BufferPool{width: width, height: height}
	p.pool.New = func() any {
		return &PixelBuffer{
			Pix:    make([]byte, 3*width*height),
			Width:  width,
			Height: height,
		}
	}
	p.pool.Put(first)
	return p, nil
}

// Get acquires a buffer
func (p *BufferPool) Get() *PixelBuffer {
	return p.pool.Get().(*PixelBuffer)
}

// Put resets b and returns it to the pool
func (p *BufferPool) Put(b *PixelBuffer) {
	if b == nil || b.Width != p.width || b.Height != p.height {
		return
	}
	clear(b.Pix)
	p.pool.Put(b)
}
