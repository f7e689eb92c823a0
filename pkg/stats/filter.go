package stats

import "github.com/herlein/rflab/pkg/fixed"

// Filter order limits
const (
	MaxFIROrder = 8
	MaxIIROrder = 4
)

// FIRFilter is a direct-form FIR filter with a statically sized history
// ring.
type FIRFilter struct {
	coeffs  [MaxFIROrder]fixed.Fixed
	history [MaxFIROrder]fixed.Fixed
	order   uint8
	index   uint8
}

// NewFIRFilter returns a filter with the given coefficients. Orders above
// MaxFIROrder are truncated.
func NewFIRFilter(coeffs []fixed.Fixed) *FIRFilter {
	f := &FIRFilter{}
	order := len(coeffs)
	if order > MaxFIROrder {
		order = MaxFIROrder
	}
	f.order = uint8(order)
	copy(f.coeffs[:], coeffs[:order])
	return f
}

// Process feeds one sample and returns the filter output.
func (f *FIRFilter) Process(input fixed.Fixed) fixed.Fixed {
	if f.order == 0 {
		return input
	}

	f.history[f.index] = input
	f.index = (f.index + 1) % f.order

	var out fixed.Fixed
	for i := uint8(0); i < f.order; i++ {
		idx := (f.index + f.order - 1 - i) % f.order
		out += f.coeffs[i].Mul(f.history[idx])
	}
	return out
}

// IIRFilter is a direct-form IIR filter with statically sized state.
type IIRFilter struct {
	aCoeffs  [MaxIIROrder]fixed.Fixed
	bCoeffs  [MaxIIROrder]fixed.Fixed
	xHistory [MaxIIROrder]fixed.Fixed
	yHistory [MaxIIROrder]fixed.Fixed
	order    uint8
	index    uint8
}

// NewIIRFilter returns a filter with the given feedback (a) and
// feedforward (b) coefficients. Orders above MaxIIROrder are truncated.
func NewIIRFilter(a, b []fixed.Fixed) *IIRFilter {
	f := &IIRFilter{}
	order := len(a)
	if len(b) < order {
		order = len(b)
	}
	if order > MaxIIROrder {
		order = MaxIIROrder
	}
	f.order = uint8(order)
	copy(f.aCoeffs[:], a[:order])
	copy(f.bCoeffs[:], b[:order])
	return f
}

// Process feeds one sample and returns the filter output:
// y[n] = (b0*x[n] + b1*x[n-1] + ... - a1*y[n-1] - ...) / a0.
func (f *IIRFilter) Process(input fixed.Fixed) fixed.Fixed {
	if f.order == 0 {
		return input
	}

	f.xHistory[f.index] = input

	var out fixed.Fixed
	for i := uint8(0); i < f.order; i++ {
		idx := (f.index + f.order - i) % f.order
		out += f.bCoeffs[i].Mul(f.xHistory[idx])
	}
	for i := uint8(1); i < f.order; i++ {
		idx := (f.index + f.order - i) % f.order
		out -= f.aCoeffs[i].Mul(f.yHistory[idx])
	}

	if f.aCoeffs[0] != 0 {
		out = out.Div(f.aCoeffs[0])
	}

	f.yHistory[f.index] = out
	f.index = (f.index + 1) % f.order
	return out
}

// MovingAverage is a simple boxcar average over a fixed window.
type MovingAverage struct {
	buffer [MaxFIROrder]fixed.Fixed
	size   uint8
	index  uint8
	filled uint8
}

// NewMovingAverage returns an averager over a window of the given size,
// clamped to MaxFIROrder.
func NewMovingAverage(size uint8) *MovingAverage {
	if size == 0 {
		size = 1
	}
	if size > MaxFIROrder {
		size = MaxFIROrder
	}
	return &MovingAverage{size: size}
}

// Update feeds one sample and returns the mean of the window.
func (m *MovingAverage) Update(v fixed.Fixed) fixed.Fixed {
	m.buffer[m.index] = v
	m.index = (m.index + 1) % m.size
	if m.filled < m.size {
		m.filled++
	}

	var sum fixed.Fixed
	for i := uint8(0); i < m.size; i++ {
		sum += m.buffer[i]
	}
	return sum.DivInt(int32(m.size))
}
