package protocol

import (
	"log/slog"

	"github.com/herlein/rflab/pkg/signal"
)

// Engine accumulates pulses and frames and runs the inference pipeline on
// demand. It is not safe for concurrent use; the core facade serializes
// access.
type Engine struct {
	pulses     [MaxPulses]signal.Pulse
	pulseCount uint16

	frames     [MaxFrames]signal.Frame
	frameCount uint16

	markHist  WidthHistogram
	spaceHist WidthHistogram

	clusters     [MaxClusters]PulseCluster
	clusterCount uint8

	hypothesis Hypothesis
	analyzed   bool

	log *slog.Logger
}

// NewEngine returns an empty inference engine. A nil logger falls back to
// slog.Default.
func NewEngine(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log}
}

// AddPulse records one pulse. Pulses beyond capacity are silently
// dropped; the caller detects saturation via PulseCount.
func (e *Engine) AddPulse(p signal.Pulse) {
	if e.pulseCount >= MaxPulses {
		return
	}
	e.pulses[e.pulseCount] = p
	e.pulseCount++
}

// AddFrame records one frame sample.
func (e *Engine) AddFrame(f *signal.Frame) {
	if e.frameCount >= MaxFrames {
		return
	}
	e.frames[e.frameCount] = *f
	e.frameCount++
}

// PulseCount returns the number of buffered pulses.
func (e *Engine) PulseCount() uint16 { return e.pulseCount }

// FrameCount returns the number of buffered frames.
func (e *Engine) FrameCount() uint16 { return e.frameCount }

// Reset drops all accumulated data and the current hypothesis.
func (e *Engine) Reset() {
	log := e.log
	*e = Engine{log: log}
}

// Hypothesis returns a copy of the last completed hypothesis. Before any
// analysis it is zeroed.
func (e *Engine) Hypothesis() Hypothesis {
	return e.hypothesis
}

// Confidence returns the overall confidence of the last analysis.
func (e *Engine) Confidence() uint8 {
	return e.hypothesis.OverallConfidence
}

// Analyzed reports whether a pipeline run has completed.
func (e *Engine) Analyzed() bool { return e.analyzed }

// Analyze executes the full inference pipeline. It requires at least
// MinPulsesForAnalysis pulses or MinFramesForAnalysis frames; otherwise
// the prior hypothesis is left untouched.
func (e *Engine) Analyze() error {
	if e.pulseCount < MinPulsesForAnalysis && e.frameCount < MinFramesForAnalysis {
		return ErrInsufficientData
	}

	e.buildHistograms()
	e.clusterPulses()
	e.detectModulation()
	e.detectEncoding()
	e.analyzeTiming()
	e.detectPreamble()
	e.estimateFrameStructure()
	e.finalizeHypothesis()

	e.analyzed = true
	e.log.Debug("protocol analysis complete",
		"modulation", e.hypothesis.Modulation.String(),
		"encoding", e.hypothesis.Encoding.String(),
		"confidence", e.hypothesis.OverallConfidence)
	return nil
}

// buildHistograms fills the mark and space pulse-width histograms with
// linear binning between the observed extremes per polarity.
func (e *Engine) buildHistograms() {
	e.markHist = WidthHistogram{}
	e.spaceHist = WidthHistogram{}

	minMark, maxMark := uint16(0xFFFF), uint16(0)
	minSpace, maxSpace := uint16(0xFFFF), uint16(0)

	for i := uint16(0); i < e.pulseCount; i++ {
		w := e.pulses[i].WidthUs
		if e.pulses[i].Level == 1 {
			if w < minMark {
				minMark = w
			}
			if w > maxMark {
				maxMark = w
			}
		} else {
			if w < minSpace {
				minSpace = w
			}
			if w > maxSpace {
				maxSpace = w
			}
		}
	}

	initHist(&e.markHist, minMark, maxMark)
	initHist(&e.spaceHist, minSpace, maxSpace)

	for i := uint16(0); i < e.pulseCount; i++ {
		if e.pulses[i].Level == 1 {
			e.markHist.add(e.pulses[i].WidthUs)
		} else {
			e.spaceHist.add(e.pulses[i].WidthUs)
		}
	}
}

func initHist(h *WidthHistogram, minW, maxW uint16) {
	if minW > maxW {
		// No pulses of this polarity observed
		minW, maxW = 0, 0
	}

	r := maxW - minW
	numBins := r
	if numBins > MaxBins {
		numBins = MaxBins
	}
	if numBins == 0 {
		numBins = 1
	}

	h.NumBins = numBins
	h.MinWidthUs = minW
	h.MaxWidthUs = maxW
	if r > 0 {
		h.BinWidthUs = r / numBins
	}
	if h.BinWidthUs == 0 {
		h.BinWidthUs = 1
	}
}

func (h *WidthHistogram) add(w uint16) {
	bin := (w - h.MinWidthUs) / h.BinWidthUs
	if bin >= h.NumBins {
		bin = h.NumBins - 1
	}
	h.Bins[bin]++
	h.Total++
	if h.Bins[bin] > h.PeakCount {
		h.PeakCount = h.Bins[bin]
		h.PeakBin = bin
	}
}

// clusterPulses detects up to MaxClusters peaks in the mark histogram:
// bins strictly above both neighbors and above total/20.
func (e *Engine) clusterPulses() {
	e.clusterCount = 0
	if e.markHist.Total < 10 {
		return
	}

	floor := uint16(e.markHist.Total / 20)
	for i := uint16(1); i+1 < e.markHist.NumBins && e.clusterCount < MaxClusters; i++ {
		prev := e.markHist.Bins[i-1]
		curr := e.markHist.Bins[i]
		next := e.markHist.Bins[i+1]

		if curr > prev && curr > next && curr > floor {
			e.clusters[e.clusterCount] = PulseCluster{
				CenterUs: e.markHist.MinWidthUs + i*e.markHist.BinWidthUs,
				SpreadUs: e.markHist.BinWidthUs * 2,
				Count:    curr,
				Symbol:   e.clusterCount,
			}
			e.clusterCount++
		}
	}

	e.log.Debug("pulse clusters detected", "count", e.clusterCount)
}

// detectModulation classifies the modulation. OOK takes precedence over
// FSK over ASK when the predicates overlap.
func (e *Engine) detectModulation() {
	h := &e.hypothesis

	switch {
	case e.pulseCount >= MinPulsesForAnalysis && e.longPulseCount() > uint32(e.pulseCount)/3:
		h.Modulation = ModulationOOK
		if e.checkOOK() {
			h.ModulationConfidence = 90
		} else {
			h.ModulationConfidence = 50
		}
	case e.clusterCount >= 2:
		h.Modulation = ModulationFSK
		h.ModulationConfidence = 85
	case e.pulseCount >= MinPulsesForAnalysis:
		h.Modulation = ModulationASK
		if e.clusterCount == 1 {
			h.ModulationConfidence = 80
		} else {
			h.ModulationConfidence = 50
		}
	default:
		h.Modulation = ModulationUnknown
		h.ModulationConfidence = 30
	}
}

func (e *Engine) longPulseCount() uint32 {
	var n uint32
	for i := uint16(0); i < e.pulseCount; i++ {
		if e.pulses[i].WidthUs > ookWidthThresholdUs {
			n++
		}
	}
	return n
}

// checkOOK confirms OOK by an asymmetric mark/space duty ratio of at
// least 2:1 either way.
func (e *Engine) checkOOK() bool {
	var totalMark, totalSpace uint32
	var markN, spaceN uint32

	for i := uint16(0); i < e.pulseCount; i++ {
		if e.pulses[i].Level == 1 {
			totalMark += uint32(e.pulses[i].WidthUs)
			markN++
		} else {
			totalSpace += uint32(e.pulses[i].WidthUs)
			spaceN++
		}
	}

	if markN == 0 || spaceN == 0 {
		return false
	}

	avgMark := totalMark / markN
	avgSpace := totalSpace / spaceN
	return avgSpace > avgMark*2 || avgMark > avgSpace*2
}

// detectEncoding classifies the bit encoding from frames and pulse
// transitions.
func (e *Engine) detectEncoding() {
	h := &e.hypothesis

	switch {
	case e.frameCount < MinFramesForAnalysis:
		h.Encoding = EncodingUnknown
		h.EncodingConfidence = 40
	case e.checkManchester():
		h.Encoding = EncodingManchester
		h.EncodingConfidence = 85
	case e.checkPWM():
		h.Encoding = EncodingPWM
		h.EncodingConfidence = 80
	case e.checkMiller():
		h.Encoding = EncodingMiller
		h.EncodingConfidence = 60
	default:
		h.Encoding = EncodingNRZ
		h.EncodingConfidence = 70
	}
}

// checkManchester looks for the near-half transition rate that a
// transition in every bit cell produces: rate in [0.4, 0.6].
func (e *Engine) checkManchester() bool {
	if e.pulseCount < 20 {
		return false
	}

	var transitions uint32
	for i := uint16(1); i < e.pulseCount; i++ {
		if e.pulses[i].Level != e.pulses[i-1].Level {
			transitions++
		}
	}

	total := uint32(e.pulseCount - 1)
	return transitions*10 >= total*4 && transitions*10 <= total*6
}

// checkPWM looks for exactly two pulse populations with a width ratio of
// roughly 2:1 (in [1.8, 2.2] or its reciprocal).
func (e *Engine) checkPWM() bool {
	if e.clusterCount < 2 {
		return false
	}

	w1 := uint32(e.clusters[0].CenterUs)
	w2 := uint32(e.clusters[1].CenterUs)
	if w1 == 0 || w2 == 0 {
		return false
	}

	return (w1*10 >= w2*18 && w1*10 <= w2*22) ||
		(w2*10 >= w1*18 && w2*10 <= w1*22)
}

// checkMiller is a heuristic hook; Miller detection needs transition
// phase tracking that the base pipeline does not do.
func (e *Engine) checkMiller() bool {
	return false
}

// analyzeTiming derives the symbol period and baud rate, scoring the
// confidence by timing spread.
func (e *Engine) analyzeTiming() {
	h := &e.hypothesis

	h.SymbolPeriodUs = e.estimateSymbolPeriod()
	if h.SymbolPeriodUs > 0 {
		h.BaudRate = 1000000 / uint32(h.SymbolPeriodUs)
	}

	_, _, mean, stdDev := e.timingStats()
	switch {
	case mean > 0 && stdDev < mean/10:
		h.TimingConfidence = 90
	case mean > 0 && stdDev < mean/5:
		h.TimingConfidence = 70
	default:
		h.TimingConfidence = 50
	}
}

// estimateSymbolPeriod uses the smallest cluster center as the base
// symbol period.
func (e *Engine) estimateSymbolPeriod() uint16 {
	if e.clusterCount == 0 {
		return 0
	}
	period := uint16(0xFFFF)
	for i := uint8(0); i < e.clusterCount; i++ {
		if e.clusters[i].CenterUs < period {
			period = e.clusters[i].CenterUs
		}
	}
	return period
}

func (e *Engine) timingStats() (minW, maxW, mean, stdDev uint16) {
	if e.pulseCount == 0 {
		return 0, 0, 0, 0
	}

	minW = 0xFFFF
	var sum uint32
	for i := uint16(0); i < e.pulseCount; i++ {
		w := e.pulses[i].WidthUs
		if w < minW {
			minW = w
		}
		if w > maxW {
			maxW = w
		}
		sum += uint32(w)
	}
	mean = uint16(sum / uint32(e.pulseCount))

	var varSum uint64
	for i := uint16(0); i < e.pulseCount; i++ {
		d := int64(e.pulses[i].WidthUs) - int64(mean)
		varSum += uint64(d * d)
	}
	stdDev = uint16(isqrt64(varSum / uint64(e.pulseCount)))
	return minW, maxW, mean, stdDev
}

// detectPreamble scans for the longest byte-aligned common prefix across
// all frames.
func (e *Engine) detectPreamble() {
	h := &e.hypothesis
	h.PreamblePattern = 0
	h.PreambleLengthBits = 0

	if e.frameCount < MinFramesForAnalysis {
		return
	}

	minLen := e.frames[0].Length
	for i := uint16(1); i < e.frameCount; i++ {
		if e.frames[i].Length < minLen {
			minLen = e.frames[i].Length
		}
	}

	var prefixBytes uint8
	for b := uint8(0); b < minLen; b++ {
		first := e.frames[0].Data[b]
		same := true
		for i := uint16(1); i < e.frameCount; i++ {
			if e.frames[i].Data[b] != first {
				same = false
				break
			}
		}
		if !same {
			break
		}
		prefixBytes++
	}

	h.PreambleLengthBits = uint16(prefixBytes) * 8
	if prefixBytes > 0 {
		pattern := uint16(e.frames[0].Data[0]) << 8
		if prefixBytes > 1 {
			pattern |= uint16(e.frames[0].Data[1])
		}
		h.PreamblePattern = pattern
	}
}

// estimateFrameStructure derives payload and checksum lengths from the
// average frame length.
func (e *Engine) estimateFrameStructure() {
	h := &e.hypothesis

	if e.frameCount == 0 {
		h.StructureConfidence = 40
		return
	}

	var totalLen uint32
	for i := uint16(0); i < e.frameCount; i++ {
		totalLen += uint32(e.frames[i].Length)
	}
	avgLen := uint8(totalLen / uint32(e.frameCount))

	if avgLen > 4 {
		h.ChecksumLengthBits = 16
	} else {
		h.ChecksumLengthBits = 8
	}

	payload := int16(avgLen) - int16(h.PreambleLengthBits/8)
	switch {
	case payload > 3:
		payload -= 2
	case payload > 2:
		payload--
	}
	if payload < 0 {
		payload = 0
	}
	h.PayloadLengthBits = uint16(payload) * 8

	h.TotalFrameBits = h.PreambleLengthBits + h.PayloadLengthBits + h.ChecksumLengthBits

	switch {
	case e.frameCount >= 10:
		h.StructureConfidence = 80
	case e.frameCount >= 5:
		h.StructureConfidence = 60
	default:
		h.StructureConfidence = 40
	}
}

// finalizeHypothesis fills the symbol alphabet and the overall
// confidence.
func (e *Engine) finalizeHypothesis() {
	h := &e.hypothesis

	h.NumSymbols = e.clusterCount
	short, long := uint16(0xFFFF), uint16(0)
	for i := uint8(0); i < e.clusterCount && i < MaxSymbols; i++ {
		c := e.clusters[i]
		name := "SYM"
		switch i {
		case 0:
			name = "SHORT"
		case 1:
			name = "LONG"
		}
		h.Symbols[i] = Symbol{
			WidthUs:     c.CenterUs,
			ToleranceUs: c.SpreadUs,
			Value:       i,
			Name:        name,
		}
		if c.CenterUs < short {
			short = c.CenterUs
		}
		if c.CenterUs > long {
			long = c.CenterUs
		}
	}
	if e.clusterCount > 0 {
		h.ShortPulseUs = short
		h.LongPulseUs = long
	}

	h.OverallConfidence = uint8((uint16(h.ModulationConfidence) +
		uint16(h.EncodingConfidence) +
		uint16(h.TimingConfidence) +
		uint16(h.StructureConfidence)) / 4)
}

// QuickAnalyze produces a rough single-frame hypothesis for real-time
// display. Confidence is capped low.
func QuickAnalyze(frame *signal.Frame) Hypothesis {
	var h Hypothesis

	if frame.RSSIDBm < -80 {
		h.Modulation = ModulationOOK
		h.ModulationConfidence = 60
	} else {
		h.Modulation = ModulationASK
		h.ModulationConfidence = 50
	}

	if frame.DurationUs > 0 && frame.Length > 0 {
		h.BaudRate = uint32(frame.Length) * 8 * 1000000 / frame.DurationUs
	}

	h.OverallConfidence = 40
	return h
}

// isqrt64 is an integer square root over a 64-bit radicand.
func isqrt64(v uint64) uint32 {
	var result uint64
	bit := uint64(1) << 62
	for bit > v {
		bit >>= 2
	}
	for bit != 0 {
		if v >= result+bit {
			v -= result + bit
			result = result>>1 + bit
		} else {
			result >>= 1
		}
		bit >>= 2
	}
	return uint32(result)
}
