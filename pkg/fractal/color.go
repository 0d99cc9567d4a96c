package fractal

import (
	"math"
	"strings"

	errs "github.com/kiesman99/julia/pkg/errors"
)

// ColorMode selects the palette
type ColorMode int

const (
	RGB ColorMode = iota
	Greyscale
)

// ParseColorMode maps "rgb" / "grey" to a ColorMode
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rgb", "color", "colour", "":
		return RGB, nil
	case "grey", "gray", "greyscale", "grayscale":
		return Greyscale, nil
	}
	return 0, errs.Configuration("unknown colour mode: %q (rgb|grey)", s)
}

func (m ColorMode) String() string {
	if m == Greyscale {
		return "grey"
	}
	return "rgb"
}

// greyFloor is the darkest level an escaping pixel can get; black is
// reserved for the interior.
const greyFloor = 32

// Colorize maps an escape result to a pixel. Interior points are black in
// both modes and no escape count is.
func Colorize(res Result, ceiling int, mode ColorMode) (r, g, b byte) {
	if !res.Escaped {
		return 0, 0, 0
	}

	t := 0.0
	if ceiling > 0 {
		t = math.Min(float64(res.N)/float64(ceiling), 1)
	}

	if mode == Greyscale {
		v := byte(greyFloor + math.Round(t*(255-greyFloor)))
		return v, v, v
	}
	// sqrt spreads the few low counts that cover most of the plane.
	return hsv(math.Sqrt(t)*0.85, 1, 1)
}

// hsv converts a colour with s, v in [0,1] and h in [0,1) to RGB bytes
func hsv(h, s, v float64) (byte, byte, byte) {
	h = math.Mod(h, 1)
	i := int(h * 6)
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	case 5:
		r, g, b = v, p, q
	}
	return byte(math.Round(r * 255)), byte(math.Round(g * 255)), byte(math.Round(b * 255))
}
