package stats

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/herlein/rflab/pkg/fixed"
)

func TestWelfordOneToTen(t *testing.T) {
	w := NewWelford()
	for i := int32(1); i <= 10; i++ {
		w.Add(fixed.FromInt(i))
	}

	assert.Equal(t, uint32(10), w.N())
	assert.InDelta(t, 5.5, w.Mean().Float(), 0.1)
	assert.InDelta(t, 9.166, w.Variance().Float(), 0.5)
	assert.Equal(t, fixed.FromInt(1), w.Min())
	assert.Equal(t, fixed.FromInt(10), w.Max())
}

func TestWelfordAgainstGonum(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	w := NewWelford()
	floats := make([]float64, 0, 200)

	// Keep n*variance inside the Q15.16 range of the m2 accumulator
	for i := 0; i < 200; i++ {
		v := rng.Float64()*10 - 5
		floats = append(floats, v)
		w.Add(fixed.FromFloat(v))
	}

	mean, variance := stat.MeanVariance(floats, nil)
	assert.InDelta(t, mean, w.Mean().Float(), 0.05)
	assert.InDelta(t, variance, w.Variance().Float(), variance/20+0.1)
}

func TestWelfordFewSamples(t *testing.T) {
	w := NewWelford()
	assert.Equal(t, fixed.Fixed(0), w.Variance())
	w.Add(fixed.FromInt(42))
	assert.Equal(t, fixed.Fixed(0), w.Variance())
	assert.Equal(t, fixed.FromInt(42), w.Mean())
}

func TestHistogramInvariants(t *testing.T) {
	h := NewHistogram(10, 0, fixed.FromInt(100))

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 1000; i++ {
		h.Add(fixed.FromInt(int32(rng.Intn(101))))
	}

	// Sum of bins equals total, peak bin holds peak count
	var sum uint32
	for i := uint16(0); i < h.NumBins(); i++ {
		sum += h.Bin(i)
	}
	assert.Equal(t, h.Total(), sum)
	assert.Equal(t, h.Bin(h.PeakBin()), h.PeakCount())
}

func TestHistogramRejectsOutOfRange(t *testing.T) {
	h := NewHistogram(4, 0, fixed.FromInt(10))
	assert.False(t, h.Add(fixed.FromInt(-1)))
	assert.False(t, h.Add(fixed.FromInt(11)))
	assert.True(t, h.Add(fixed.FromInt(10)))
	assert.Equal(t, uint32(1), h.Total())
}

func TestHistogramPercentileAndMedian(t *testing.T) {
	h := NewHistogram(10, 0, fixed.FromInt(100))
	for i := int32(0); i < 100; i++ {
		h.Add(fixed.FromInt(i))
	}

	assert.Equal(t, uint16(4), h.Percentile(50))
	assert.InDelta(t, 45.0, h.Median().Float(), 1.0)
	assert.InDelta(t, float64(h.PeakBin()*10+5), h.Mode().Float(), 1.0)
}

func TestShannonEntropyBands(t *testing.T) {
	// Uniform random bytes approach 8 bits/byte
	rng := rand.New(rand.NewSource(11))
	random := make([]byte, 1000)
	for i := range random {
		random[i] = byte(rng.Intn(256))
	}
	assert.Greater(t, ShannonEntropy(random).Float(), 7.0)

	// Constant data has near-zero entropy
	constant := make([]byte, 1000)
	for i := range constant {
		constant[i] = 0x42
	}
	assert.Less(t, ShannonEntropy(constant).Float(), 0.1)

	// Sixteen near-equiprobable values: about 4 bits/byte
	structured := make([]byte, 1000)
	for i := range structured {
		structured[i] = byte(i % 16)
	}
	h := ShannonEntropy(structured).Float()
	assert.Greater(t, h, 3.0)
	assert.Less(t, h, 5.0)
}

func TestShannonEntropyEmpty(t *testing.T) {
	assert.Equal(t, fixed.Fixed(0), ShannonEntropy(nil))
}

func TestBatchStats(t *testing.T) {
	data := []fixed.Fixed{
		fixed.FromInt(4), fixed.FromInt(8), fixed.FromInt(6),
		fixed.FromInt(2), fixed.FromInt(10),
	}

	assert.Equal(t, fixed.FromInt(6), Mean(data))
	assert.Equal(t, fixed.FromInt(8), Range(data))
	assert.Equal(t, fixed.FromInt(6), Median(data))
	assert.InDelta(t, 10.0, Variance(data).Float(), 0.2)
}

func TestMedianEven(t *testing.T) {
	data := []fixed.Fixed{fixed.FromInt(1), fixed.FromInt(3), fixed.FromInt(2), fixed.FromInt(4)}
	assert.InDelta(t, 2.5, Median(data).Float(), 0.01)
	// Input order preserved
	assert.Equal(t, fixed.FromInt(1), data[0])
}

func TestCorrelation(t *testing.T) {
	x := make([]fixed.Fixed, 20)
	y := make([]fixed.Fixed, 20)
	inv := make([]fixed.Fixed, 20)
	for i := range x {
		x[i] = fixed.FromInt(int32(i))
		y[i] = fixed.FromInt(int32(2 * i))
		inv[i] = fixed.FromInt(int32(-i))
	}

	assert.InDelta(t, 1.0, Correlation(x, y).Float(), 0.05)
	assert.InDelta(t, -1.0, Correlation(x, inv).Float(), 0.05)
}

func TestLinearRegression(t *testing.T) {
	r := NewLinearRegression()
	// y = 3x + 2
	for i := int32(0); i < 20; i++ {
		r.AddPoint(fixed.FromInt(i), fixed.FromInt(3*i+2))
	}
	r.Fit()

	assert.InDelta(t, 3.0, r.Slope().Float(), 0.05)
	assert.InDelta(t, 2.0, r.Intercept().Float(), 0.5)
	assert.InDelta(t, 1.0, r.RSquared().Float(), 0.05)
	assert.InDelta(t, 23.0, r.Predict(fixed.FromInt(7)).Float(), 0.5)
}

func TestLinearRegressionUnderfilled(t *testing.T) {
	r := NewLinearRegression()
	r.AddPoint(fixed.One, fixed.One)
	r.Fit()
	assert.Equal(t, fixed.Fixed(0), r.Slope())
}

func TestFIRFilterDC(t *testing.T) {
	// 4-tap boxcar: DC gain of one once the ring is warm
	quarter := fixed.FromFloat(0.25)
	f := NewFIRFilter([]fixed.Fixed{quarter, quarter, quarter, quarter})

	var out fixed.Fixed
	for i := 0; i < 16; i++ {
		out = f.Process(fixed.FromInt(8))
	}
	assert.InDelta(t, 8.0, out.Float(), 0.05)
}

func TestIIRFilterPassthrough(t *testing.T) {
	// y[n] = x[n] with a0 = 1
	f := NewIIRFilter(
		[]fixed.Fixed{fixed.One, 0},
		[]fixed.Fixed{fixed.One, 0},
	)
	out := f.Process(fixed.FromInt(5))
	assert.InDelta(t, 5.0, out.Float(), 0.01)
}

func TestMovingAverage(t *testing.T) {
	m := NewMovingAverage(4)
	m.Update(fixed.FromInt(4))
	m.Update(fixed.FromInt(8))
	m.Update(fixed.FromInt(4))
	out := m.Update(fixed.FromInt(8))
	assert.InDelta(t, 6.0, out.Float(), 0.01)
}

func TestErfBounds(t *testing.T) {
	assert.InDelta(t, 0.0, Erf(0).Float(), 0.01)
	assert.InDelta(t, 0.8427, Erf(fixed.One).Float(), 0.05)
	assert.InDelta(t, -0.8427, Erf(-fixed.One).Float(), 0.05)
	assert.InDelta(t, 1.0, Erf(fixed.FromInt(3)).Float(), 0.05)
}

func TestNormalCDF(t *testing.T) {
	require.InDelta(t, 0.5, NormalCDF(0, 0, fixed.One).Float(), 0.02)
	assert.Greater(t, NormalCDF(fixed.One, 0, fixed.One).Float(), 0.7)
	// Degenerate deviation is a step function
	assert.Equal(t, fixed.One, NormalCDF(fixed.One, 0, 0))
	assert.Equal(t, fixed.Fixed(0), NormalCDF(-fixed.One, 0, 0))
}
