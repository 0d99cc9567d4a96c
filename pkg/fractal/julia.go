// Package fractal computes Julia-set escape times and turns them into pixels.
//
// The evaluator and the colour mapper are pure functions of their inputs, so
// any pixel can be computed independently of its neighbours and of the order
// in which a block is walked.
package fractal

// escapeRadius2 is the squared bailout radius |z| > 2
const escapeRadius2 = 4.0

// Result is the outcome of iterating one point: either the step at which the
// orbit left the escape radius, or Interior when it never did.
type Result struct {
	N       int
	Escaped bool
}

// Interior is the result for points that stay bounded
var Interior = Result{}

// EscapedAt returns the result for an orbit that escaped at step n
func EscapedAt(n int) Result {
	return Result{N: n, Escaped: true}
}

// Iterate applies z = z^2 + c starting from z0 = (zr, zi) and returns the
// first n in [0, maxIterations] with |z_n| > 2. A negative ceiling allows no
// iterations.
func Iterate(zr, zi, cr, ci float64, maxIterations int) Result {
	for n := 0; ; n++ {
		zr2, zi2 := zr*zr, zi*zi
		if zr2+zi2 > escapeRadius2 {
			return EscapedAt(n)
		}
		if n >= maxIterations {
			return Interior
		}
		zi = 2*zr*zi + ci
		zr = zr2 - zi2 + cr
	}
}
