package stats

import "github.com/herlein/rflab/pkg/fixed"

// MaxBins is the histogram resolution limit
const MaxBins = 256

// Histogram is a fixed-range linear histogram with compile-time bin
// storage. Out-of-range samples are rejected, not clamped.
type Histogram struct {
	bins      [MaxBins]uint32
	numBins   uint16
	minVal    fixed.Fixed
	maxVal    fixed.Fixed
	binWidth  fixed.Fixed
	total     uint32
	peakBin   uint16
	peakCount uint32
}

// NewHistogram returns a histogram with numBins bins (clamped to MaxBins)
// covering [minVal, maxVal]. A degenerate range gets a bin width of one.
func NewHistogram(numBins uint16, minVal, maxVal fixed.Fixed) *Histogram {
	h := &Histogram{}
	h.Init(numBins, minVal, maxVal)
	return h
}

// Init re-initializes the histogram in place.
func (h *Histogram) Init(numBins uint16, minVal, maxVal fixed.Fixed) {
	*h = Histogram{}
	if numBins == 0 {
		numBins = 1
	}
	if numBins > MaxBins {
		numBins = MaxBins
	}
	h.numBins = numBins
	h.minVal = minVal
	h.maxVal = maxVal
	h.binWidth = (maxVal - minVal).DivInt(int32(numBins))
	if h.binWidth == 0 {
		h.binWidth = fixed.One
	}
}

// Add records a sample. It reports false for out-of-range values, which
// are discarded.
func (h *Histogram) Add(v fixed.Fixed) bool {
	if v < h.minVal || v > h.maxVal {
		return false
	}

	bin := uint16(int32(v-h.minVal) / int32(h.binWidth))
	if bin >= h.numBins {
		bin = h.numBins - 1
	}

	h.bins[bin]++
	h.total++

	if h.bins[bin] > h.peakCount {
		h.peakCount = h.bins[bin]
		h.peakBin = bin
	}
	return true
}

// Bin returns the count in bin i.
func (h *Histogram) Bin(i uint16) uint32 {
	if i >= h.numBins {
		return 0
	}
	return h.bins[i]
}

// NumBins returns the configured bin count.
func (h *Histogram) NumBins() uint16 { return h.numBins }

// Total returns the number of accepted samples.
func (h *Histogram) Total() uint32 { return h.total }

// PeakBin returns the index of the fullest bin.
func (h *Histogram) PeakBin() uint16 { return h.peakBin }

// PeakCount returns the count of the fullest bin.
func (h *Histogram) PeakCount() uint32 { return h.peakCount }

// BinWidth returns the width of each bin.
func (h *Histogram) BinWidth() fixed.Fixed { return h.binWidth }

// Percentile returns the index of the smallest bin whose cumulative count
// reaches total*p/100.
func (h *Histogram) Percentile(p uint8) uint16 {
	target := h.total * uint32(p) / 100
	var cumulative uint32
	for i := uint16(0); i < h.numBins; i++ {
		cumulative += h.bins[i]
		if cumulative >= target {
			return i
		}
	}
	return h.numBins - 1
}

// Mode returns the center value of the fullest bin.
func (h *Histogram) Mode() fixed.Fixed {
	return h.binCenter(h.peakBin)
}

// Median returns the center value of the 50th-percentile bin.
func (h *Histogram) Median() fixed.Fixed {
	return h.binCenter(h.Percentile(50))
}

func (h *Histogram) binCenter(bin uint16) fixed.Fixed {
	return h.minVal + fixed.Fixed(int32(h.binWidth)*int32(bin)) + h.binWidth.DivInt(2)
}
