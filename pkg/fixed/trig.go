package fixed

import "math"

// sinLUT holds 256 Q15.16 sine samples covering [0, 2*pi). The table is
// filled once at package init; the trig hot paths are pure integer lookups
// with linear interpolation.
var sinLUT [256]Fixed

func init() {
	for i := range sinLUT {
		sinLUT[i] = FromFloat(math.Sin(2 * math.Pi * float64(i) / 256))
	}
}

// lutScale maps an angle in [0, 2*pi) to a table index: 256/(2*pi) in Q15.16
const lutScale = 2670177

// Sin returns the sine of x (radians) via table lookup with linear
// interpolation. The angle is wrapped into [0, 2*pi) first.
func Sin(x Fixed) Fixed {
	for x < 0 {
		x += TwoPi
	}
	for x >= TwoPi {
		x -= TwoPi
	}

	idx := x.Mul(lutScale)
	i := idx.Int() & 0xFF
	frac := idx.Frac()

	v0 := sinLUT[i]
	v1 := sinLUT[(i+1)&0xFF]
	return v0 + (v1 - v0).Mul(frac)
}

// Cos returns the cosine of x: cos(x) = sin(x + pi/2).
func Cos(x Fixed) Fixed {
	return Sin(x + HalfPi)
}

// Tan returns the tangent of x. Where cos(x) is zero the result saturates
// to Max.
func Tan(x Fixed) Fixed {
	c := Cos(x)
	if c == 0 {
		return Max
	}
	return Sin(x).Div(c)
}

// Asin returns the arcsine via the odd-polynomial approximation
// x + x^3/6, with the input clamped to [-1, 1].
func Asin(x Fixed) Fixed {
	x = Clamp(x, -One, One)
	x3 := x.Mul(x).Mul(x)
	return x + x3.Div(FromInt(6))
}

// Acos returns the arccosine: acos(x) = pi/2 - asin(x).
func Acos(x Fixed) Fixed {
	return HalfPi - Asin(x)
}

// Atan returns the arctangent using the series x - x^3/3 + x^5/5 for
// |x| <= 1 and the identity atan(x) = pi/2 - atan(1/x) beyond.
func Atan(x Fixed) Fixed {
	neg := x < 0
	if neg {
		x = -x
	}

	var r Fixed
	if x <= One {
		x2 := x.Mul(x)
		x3 := x2.Mul(x)
		x5 := x3.Mul(x2)
		r = x - x3.Div(FromInt(3)) + x5.Div(FromInt(5))
	} else {
		r = HalfPi - Atan(One.Div(x))
	}

	if neg {
		return -r
	}
	return r
}

// Atan2 returns the four-quadrant arctangent of y/x. Both arguments zero
// returns 0.
func Atan2(y, x Fixed) Fixed {
	if x == 0 {
		if y > 0 {
			return HalfPi
		}
		if y < 0 {
			return -HalfPi
		}
		return 0
	}

	r := Atan(y.Div(x))
	if x < 0 {
		if y >= 0 {
			r += Pi
		} else {
			r -= Pi
		}
	}
	return r
}
