package tile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/image/bmp"

	errs "github.com/kiesman99/julia/pkg/errors"
)

// Writer receives every finished block. The buffer is only valid for the
// duration of the call.
type Writer interface {
	WriteTile(id Identity, buf *PixelBuffer) error
}

// rawMagic prefixes the decompressed payload of a raw tile
var rawMagic = [4]byte{'J', 'R', 'G', 'B'}

// FileWriter writes tiles as "<zoom>-<row>-<column>.<ext>" files under Dir
type FileWriter struct {
	Dir    string
	Format Format
}

// NewFileWriter creates the output directory and returns a writer for it
func NewFileWriter(dir string, format Format) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.Wrap(errs.ErrCodeEncoding, err, "create output directory %s", dir)
	}
	return &FileWriter{Dir: dir, Format: format}, nil
}

// Path returns the file a tile is written to
func (fw *FileWriter) Path(id Identity) string {
	return filepath.Join(fw.Dir, id.Filename(fw.Format.Ext()))
}

// WriteTile encodes into a temporary file and renames it into place, so a
// tile file is either complete or absent.
func (fw *FileWriter) WriteTile(id Identity, buf *PixelBuffer) error {
	path := fw.Path(id)

	tmp, err := os.CreateTemp(fw.Dir, ".tile-*")
	if err != nil {
		return errs.Wrap(errs.ErrCodeEncoding, err, "create %s", path)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, buf, fw.Format); err != nil {
		tmp.Close()
		return errs.Wrap(errs.ErrCodeEncoding, err, "encode %s", path)
	}
	// CreateTemp uses 0600; tiles are meant to be served
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return errs.Wrap(errs.ErrCodeEncoding, err, "chmod %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.ErrCodeEncoding, err, "close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errs.Wrap(errs.ErrCodeEncoding, err, "rename into %s", path)
	}
	return nil
}

// Encode serializes buf in the given format
func Encode(w io.Writer, buf *PixelBuffer, format Format) error {
	if len(buf.Pix) != 3*buf.Width*buf.Height {
		return fmt.Errorf("buffer holds %d bytes, want %d for %dx%d",
			len(buf.Pix), 3*buf.Width*buf.Height, buf.Width, buf.Height)
	}

	switch format {
	case FormatPNG:
		return png.Encode(w, toRGBA(buf))
	case FormatBMP:
		// bmp stores rows bottom-up; the encoder flips them.
		return bmp.Encode(w, toRGBA(buf))
	case FormatRaw:
		return encodeRaw(w, buf)
	}
	return fmt.Errorf("unsupported format %s", format)
}

// EncodeBytes is Encode into a byte slice
func EncodeBytes(buf *PixelBuffer, format Format) ([]byte, error) {
	var out bytes.Buffer
	if err := Encode(&out, buf, format); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// toRGBA expands the RGB buffer into an opaque image
func toRGBA(buf *PixelBuffer) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	for k, d := 0, 0; k < len(buf.Pix); k, d = k+3, d+4 {
		img.Pix[d] = buf.Pix[k]
		img.Pix[d+1] = buf.Pix[k+1]
		img.Pix[d+2] = buf.Pix[k+2]
		img.Pix[d+3] = 255
	}
	return img
}

func encodeRaw(w io.Writer, buf *PixelBuffer) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}

	var header [12]byte
	copy(header[:4], rawMagic[:])
	binary.BigEndian.PutUint32(header[4:8], uint32(buf.Width))
	binary.BigEndian.PutUint32(header[8:12], uint32(buf.Height))

	if _, err := enc.Write(header[:]); err != nil {
		enc.Close()
		return err
	}
	if _, err := enc.Write(buf.Pix); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// DecodeRaw reads a tile written in the raw format
func DecodeRaw(r io.Reader) (*PixelBuffer, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var header [12]byte
	if _, err := io.ReadFull(dec, header[:]); err != nil {
		return nil, fmt.Errorf("read raw header: %w", err)
	}
	if !bytes.Equal(header[:4], rawMagic[:]) {
		return nil, fmt.Errorf("not a raw tile")
	}
	width := int(binary.BigEndian.Uint32(header[4:8]))
	height := int(binary.BigEndian.Uint32(header[8:12]))

	buf, err := NewPixelBuffer(width, height)
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(dec, buf.Pix); err != nil {
		return nil, fmt.Errorf("read raw pixels: %w", err)
	}
	return buf, nil
}

// Decode reads a tile in any of the supported formats
func Decode(r io.Reader, format Format) (*PixelBuffer, error) {
	var img image.Image
	var err error
	switch format {
	case FormatRaw:
		return DecodeRaw(r)
	case FormatPNG:
		img, err = png.Decode(r)
	case FormatBMP:
		img, err = bmp.Decode(r)
	default:
		return nil, fmt.Errorf("unsupported format %s", format)
	}
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	buf, err := NewPixelBuffer(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	for j := 0; j < b.Dy(); j++ {
		for i := 0; i < b.Dx(); i++ {
			r, g, bl, _ := img.At(b.Min.X+i, b.Min.Y+j).RGBA()
			buf.Set(i, j, byte(r>>8), byte(g>>8), byte(bl>>8))
		}
	}
	return buf, nil
}
