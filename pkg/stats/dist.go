package stats

import "github.com/herlein/rflab/pkg/fixed"

// Abramowitz & Stegun erf approximation coefficients in Q15.16
var (
	erfA1 = fixed.FromFloat(0.254829592)
	erfA2 = fixed.FromFloat(-0.284496736)
	erfA3 = fixed.FromFloat(1.421413741)
	erfA4 = fixed.FromFloat(-1.453152027)
	erfA5 = fixed.FromFloat(1.061405429)
	erfP  = fixed.FromFloat(0.3275911)

	sqrt2   = fixed.FromFloat(1.414213562)
	sqrt2Pi = fixed.FromFloat(2.506628275)
)

// Erf returns the error function using the Abramowitz & Stegun
// polynomial approximation.
func Erf(x fixed.Fixed) fixed.Fixed {
	sign := fixed.One
	if x < 0 {
		sign = -fixed.One
		x = -x
	}

	t := fixed.One.Div(fixed.One + erfP.Mul(x))
	t2 := t.Mul(t)
	t3 := t2.Mul(t)
	t4 := t3.Mul(t)
	t5 := t4.Mul(t)

	poly := erfA1.Mul(t) + erfA2.Mul(t2) + erfA3.Mul(t3) + erfA4.Mul(t4) + erfA5.Mul(t5)
	y := fixed.One - poly.Mul(fixed.Exp(-x.Mul(x)))

	return sign.Mul(y)
}

// Erfc returns the complementary error function 1 - erf(x).
func Erfc(x fixed.Fixed) fixed.Fixed {
	return fixed.One - Erf(x)
}

// NormalCDF returns the cumulative distribution of a normal with the
// given mean and standard deviation. A zero deviation degenerates to a
// step function.
func NormalCDF(x, mean, stdDev fixed.Fixed) fixed.Fixed {
	if stdDev == 0 {
		if x < mean {
			return 0
		}
		return fixed.One
	}

	z := (x - mean).Div(stdDev)
	return (Erf(z.Div(sqrt2)) + fixed.One).Mul(fixed.Half)
}

// NormalPDF returns the density of a normal with the given mean and
// standard deviation. A zero deviation yields 0.
func NormalPDF(x, mean, stdDev fixed.Fixed) fixed.Fixed {
	if stdDev == 0 {
		return 0
	}

	d := x - mean
	exponent := -d.Mul(d).Div(fixed.Two.Mul(stdDev.Mul(stdDev)))
	return fixed.Exp(exponent).Div(stdDev.Mul(sqrt2Pi))
}
