// Package stats provides the online and batch statistics used by the
// analysis engines: a Welford accumulator, fixed-range histograms, Shannon
// entropy, moving filters, and linear regression. All arithmetic is Q15.16
// fixed point.
package stats

import "github.com/herlein/rflab/pkg/fixed"

// Welford is a numerically stable online mean/variance accumulator.
// Unlike a naive sum-of-squares pass, the incremental update does not
// cancel catastrophically on long integer streams.
type Welford struct {
	n    uint32
	mean fixed.Fixed
	m2   fixed.Fixed
	min  fixed.Fixed
	max  fixed.Fixed
}

// NewWelford returns an empty accumulator.
func NewWelford() *Welford {
	w := &Welford{}
	w.Reset()
	return w
}

// Reset clears the accumulator.
func (w *Welford) Reset() {
	w.n = 0
	w.mean = 0
	w.m2 = 0
	w.min = fixed.Max
	w.max = fixed.Min
}

// Add folds a sample into the accumulator.
func (w *Welford) Add(x fixed.Fixed) {
	w.n++

	if x < w.min {
		w.min = x
	}
	if x > w.max {
		w.max = x
	}

	delta := x - w.mean
	w.mean += delta.DivInt(int32(w.n))
	delta2 := x - w.mean
	w.m2 += delta.Mul(delta2)
}

// N returns the number of samples seen.
func (w *Welford) N() uint32 { return w.n }

// Mean returns the running mean.
func (w *Welford) Mean() fixed.Fixed { return w.mean }

// Variance returns the sample variance (n-1 denominator), or 0 with fewer
// than two samples.
func (w *Welford) Variance() fixed.Fixed {
	if w.n < 2 {
		return 0
	}
	return w.m2.DivInt(int32(w.n - 1))
}

// StdDev returns the sample standard deviation.
func (w *Welford) StdDev() fixed.Fixed {
	return fixed.Sqrt(w.Variance())
}

// Min returns the smallest sample seen, or fixed.Max when empty.
func (w *Welford) Min() fixed.Fixed { return w.min }

// Max returns the largest sample seen, or fixed.Min when empty.
func (w *Welford) Max() fixed.Fixed { return w.max }
