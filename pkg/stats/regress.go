package stats

import "github.com/herlein/rflab/pkg/fixed"

// MaxRegressionSamples bounds regression storage
const MaxRegressionSamples = 1000

// LinearRegression accumulates (x, y) points and fits y = slope*x +
// intercept by least squares. Points beyond MaxRegressionSamples are
// silently dropped.
type LinearRegression struct {
	x           [MaxRegressionSamples]fixed.Fixed
	y           [MaxRegressionSamples]fixed.Fixed
	n           uint32
	slope       fixed.Fixed
	intercept   fixed.Fixed
	rSquared    fixed.Fixed
	correlation fixed.Fixed
}

// NewLinearRegression returns an empty regression.
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

// Reset clears all accumulated points.
func (r *LinearRegression) Reset() {
	*r = LinearRegression{}
}

// AddPoint records one observation.
func (r *LinearRegression) AddPoint(x, y fixed.Fixed) {
	if r.n >= MaxRegressionSamples {
		return
	}
	r.x[r.n] = x
	r.y[r.n] = y
	r.n++
}

// N returns the number of recorded points.
func (r *LinearRegression) N() uint32 { return r.n }

// Fit computes slope, intercept, r-squared and the correlation
// coefficient. With fewer than two points the fit is left at zero.
func (r *LinearRegression) Fit() {
	if r.n < 2 {
		return
	}
	n := int32(r.n)

	var meanX, meanY fixed.Fixed
	for i := int32(0); i < n; i++ {
		meanX += r.x[i]
		meanY += r.y[i]
	}
	meanX = meanX.DivInt(n)
	meanY = meanY.DivInt(n)

	var num, den fixed.Fixed
	for i := int32(0); i < n; i++ {
		dx := r.x[i] - meanX
		dy := r.y[i] - meanY
		num += dx.Mul(dy)
		den += dx.Mul(dx)
	}

	if den != 0 {
		r.slope = num.Div(den)
		r.intercept = meanY - r.slope.Mul(meanX)
	}

	var ssRes, ssTot fixed.Fixed
	for i := int32(0); i < n; i++ {
		res := r.y[i] - r.Predict(r.x[i])
		tot := r.y[i] - meanY
		ssRes += res.Mul(res)
		ssTot += tot.Mul(tot)
	}

	if ssTot != 0 {
		r.rSquared = fixed.One - ssRes.Div(ssTot)
	}

	r.correlation = fixed.Sqrt(r.rSquared)
	if num < 0 {
		r.correlation = -r.correlation
	}
}

// Predict returns the fitted value for x.
func (r *LinearRegression) Predict(x fixed.Fixed) fixed.Fixed {
	return r.intercept + r.slope.Mul(x)
}

// Slope returns the fitted slope.
func (r *LinearRegression) Slope() fixed.Fixed { return r.slope }

// Intercept returns the fitted intercept.
func (r *LinearRegression) Intercept() fixed.Fixed { return r.intercept }

// RSquared returns the coefficient of determination.
func (r *LinearRegression) RSquared() fixed.Fixed { return r.rSquared }

// Correlation returns the signed correlation coefficient.
func (r *LinearRegression) Correlation() fixed.Fixed { return r.correlation }
