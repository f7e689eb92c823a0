package fingerprint

import (
	"log/slog"

	"github.com/herlein/rflab/pkg/signal"
)

// State is the capture state machine position.
type State uint8

// Capture states
const (
	StateIdle State = iota
	StateSampling
	StateAnalyzing
	StateMatching
	StateLearning
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSampling:
		return "SAMPLING"
	case StateAnalyzing:
		return "ANALYZING"
	case StateMatching:
		return "MATCHING"
	case StateLearning:
		return "LEARNING"
	default:
		return "UNKNOWN"
	}
}

// Engine is the fingerprint capture and matching engine. It is not safe
// for concurrent use; the core facade serializes access.
type Engine struct {
	state          State
	learning       bool
	learningName   string
	framesCaptured uint32
	lastFrameTS    uint32

	intervals     [SampleCount]uint32
	intervalCount uint16

	symbolTimings [SampleCount]uint32
	symbolCount   uint16

	rssiEnvelope    [EnvelopeSize]byte
	rssiSamples     [MaxSlopeSamples]uint8
	rssiSampleCount uint16

	symbolPeriodHint uint16

	current Fingerprint

	table    DeviceTable
	temporal [MaxDevices]TemporalRecord
	tempN    uint8

	log *slog.Logger
}

// NewEngine returns an idle engine. A nil logger falls back to
// slog.Default.
func NewEngine(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log}
}

// State returns the current state machine position.
func (e *Engine) State() State {
	return e.state
}

// Start begins a capture, discarding any previous capture state.
func (e *Engine) Start() {
	e.resetCapture()
	e.state = StateSampling
	e.log.Info("fingerprint capture started")
}

// StartLearning begins a capture that will be stored under the given
// device name once analysis completes.
func (e *Engine) StartLearning(name string) error {
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	e.resetCapture()
	e.state = StateLearning
	e.learning = true
	e.learningName = name
	e.log.Info("fingerprint learning started", "device", name)
	return nil
}

// Stop returns the engine to idle. Snapshot reports false while idle, so
// a fingerprint completed before Stop is no longer returned.
func (e *Engine) Stop() {
	e.state = StateIdle
	e.learning = false
	e.log.Info("fingerprint capture stopped")
}

// IsCapturing reports whether frames are currently being sampled.
func (e *Engine) IsCapturing() bool {
	return e.state == StateSampling || e.state == StateLearning
}

func (e *Engine) resetCapture() {
	e.framesCaptured = 0
	e.lastFrameTS = 0
	e.intervalCount = 0
	e.symbolCount = 0
	e.rssiSampleCount = 0
	e.rssiEnvelope = [EnvelopeSize]byte{}
	e.current = Fingerprint{}
	e.learning = false
	e.learningName = ""
}

// ProcessFrame folds one frame into the capture. Outside of sampling the
// frame is ignored.
func (e *Engine) ProcessFrame(frame *signal.Frame) {
	if !e.IsCapturing() {
		return
	}

	now := frame.TimestampUs

	if e.lastFrameTS > 0 {
		interval := now - e.lastFrameTS
		if e.intervalCount < SampleCount {
			e.intervals[e.intervalCount] = interval
			e.intervalCount++
		}
	}
	e.lastFrameTS = now

	if e.symbolCount < SampleCount {
		if frame.Length > 0 {
			e.symbolTimings[e.symbolCount] = frame.DurationUs / uint32(frame.Length)
			e.symbolCount++
		} else if e.symbolPeriodHint > 0 {
			e.symbolTimings[e.symbolCount] = uint32(e.symbolPeriodHint)
			e.symbolCount++
		}
	}

	e.rssiEnvelope[e.framesCaptured%EnvelopeSize] = uint8(int32(frame.RSSIDBm) + 128)
	e.framesCaptured++

	if e.framesCaptured >= SampleCount {
		e.finishCapture()
	}
}

// Finish forces analysis of a partial capture, as when the host stops
// sampling early.
func (e *Engine) Finish() {
	if !e.IsCapturing() {
		return
	}
	e.finishCapture()
}

func (e *Engine) finishCapture() {
	wasLearning := e.learning
	name := e.learningName

	e.state = StateAnalyzing
	e.generate()
	e.state = StateMatching

	e.log.Info("fingerprint capture complete",
		"frames", e.framesCaptured, "intervals", e.intervalCount)

	if wasLearning {
		if id, err := e.AddDevice(&e.current, name); err != nil {
			e.log.Warn("learned device not stored", "device", name, "err", err)
		} else {
			e.log.Info("learned device stored", "device", name, "id", id)
		}
		e.learning = false
		e.learningName = ""
	}
}

// SetSymbolPeriodHint supplies the protocol engine's symbol-period
// estimate, used for frames whose own symbol timing cannot be derived.
func (e *Engine) SetSymbolPeriodHint(periodUs uint16) {
	e.symbolPeriodHint = periodUs
}

// ProcessRSSISample records one high-rate RSSI sample for slope analysis.
func (e *Engine) ProcessRSSISample(rssi uint8, timestampUs uint32) {
	if !e.IsCapturing() {
		return
	}
	if e.rssiSampleCount < MaxSlopeSamples {
		e.rssiSamples[e.rssiSampleCount] = rssi
		e.rssiSampleCount++
	}
}

// generate runs all analyses and seals the fingerprint.
func (e *Engine) generate() {
	e.analyzeTimingDrift()
	e.analyzeSlopes()
	e.analyzeClockStability()
	e.current.RSSISignature = e.rssiEnvelope
	e.current.Seal()
}

func (e *Engine) analyzeTimingDrift() {
	if e.intervalCount < 10 {
		return
	}
	mean, variance, _ := summarize(e.intervals[:e.intervalCount])
	e.current.DriftMean = mean
	e.current.DriftVariance = variance
}

func (e *Engine) analyzeSlopes() {
	if e.rssiSampleCount < 10 {
		return
	}

	var totalRise, totalFall uint32
	var riseN, fallN uint16

	for i := uint16(1); i < e.rssiSampleCount; i++ {
		diff := int16(e.rssiSamples[i]) - int16(e.rssiSamples[i-1])
		if diff > 0 {
			totalRise += uint32(diff)
			riseN++
		} else if diff < 0 {
			totalFall += uint32(-diff)
			fallN++
		}
	}

	if riseN > 0 {
		e.current.RiseTimeAvg = uint16(totalRise / uint32(riseN))
	}
	if fallN > 0 {
		e.current.FallTimeAvg = uint16(totalFall / uint32(fallN))
	}
}

func (e *Engine) analyzeClockStability() {
	if e.symbolCount < 10 {
		return
	}

	mean, _, stdDev := summarize(e.symbolTimings[:e.symbolCount])
	if mean == 0 {
		return
	}

	ppm := uint64(stdDev) * 1000000 / uint64(mean)
	if ppm > 255 {
		ppm = 255
	}
	e.current.ClockStabilityPPM = uint8(ppm)
}

// summarize computes population mean, variance and standard deviation of
// a uint32 sample in pure integer arithmetic.
func summarize(data []uint32) (mean, variance, stdDev uint32) {
	if len(data) == 0 {
		return 0, 0, 0
	}

	var sum uint64
	for _, v := range data {
		sum += uint64(v)
	}
	mean = uint32(sum / uint64(len(data)))

	var varSum uint64
	for _, v := range data {
		d := int64(v) - int64(mean)
		varSum += uint64(d * d)
	}
	variance = uint32(varSum / uint64(len(data)))
	stdDev = isqrt64(uint64(variance))
	return mean, variance, stdDev
}

// Progress returns capture completion in percent. Outside of sampling it
// reports 100.
func (e *Engine) Progress() uint8 {
	if !e.IsCapturing() {
		return 100
	}
	p := e.framesCaptured * 100 / SampleCount
	if p > 100 {
		p = 100
	}
	return uint8(p)
}

// Snapshot copies the completed fingerprint into out. It reports false
// unless the engine is analyzing or matching: before a capture completes
// and after Stop.
func (e *Engine) Snapshot(out *Fingerprint) bool {
	if e.state != StateMatching && e.state != StateAnalyzing {
		return false
	}
	*out = e.current
	return true
}

// Match scans the device table for the closest fingerprint. On a match at
// or above ConfidenceLow the device's temporal record is updated and ok
// is true.
func (e *Engine) Match(fp *Fingerprint) (confidence uint8, deviceID uint16, ok bool) {
	var best uint8
	var bestID uint16

	for i := uint16(0); i < e.table.count; i++ {
		c := Similarity(fp, &e.table.entries[i].Fingerprint)
		if c > best {
			best = c
			bestID = i
		}
	}

	if best < ConfidenceLow {
		return best, 0, false
	}

	e.table.touch(bestID, e.lastFrameTS)
	e.updateTemporal(bestID, fp)
	return best, bestID, true
}

// AddDevice stores a fingerprint under a name and returns the new id.
func (e *Engine) AddDevice(fp *Fingerprint, name string) (uint16, error) {
	id, err := e.table.Add(fp, name, e.lastFrameTS)
	if err != nil {
		return 0, err
	}
	e.log.Info("device added", "id", id, "device", name)
	return id, nil
}

// RemoveDevice deletes a device from the table.
func (e *Engine) RemoveDevice(id uint16) error {
	return e.table.Remove(id)
}

// Device returns a copy of the table entry for id.
func (e *Engine) Device(id uint16) (DeviceEntry, error) {
	return e.table.Get(id)
}

// DeviceCount returns the number of known devices.
func (e *Engine) DeviceCount() uint16 {
	return e.table.Count()
}

func (e *Engine) updateTemporal(deviceID uint16, fp *Fingerprint) {
	var rec *TemporalRecord
	for i := uint8(0); i < e.tempN; i++ {
		if e.temporal[i].DeviceID == deviceID {
			rec = &e.temporal[i]
			break
		}
	}

	if rec == nil {
		if e.tempN >= MaxDevices {
			return
		}
		rec = &e.temporal[e.tempN]
		e.tempN++
		rec.DeviceID = deviceID
		rec.FirstSeen = e.lastFrameTS
		rec.Baseline = *fp
	}

	rec.History[rec.HistoryCount%HistoryDepth] = *fp
	rec.HistoryCount++
	rec.LastSeen = e.lastFrameTS
	rec.MatchCount++

	distance := EuclideanDistance(&rec.Baseline, fp)
	magnitude := distance / 100
	if magnitude > 100 {
		magnitude = 100
	}
	rec.DriftMagnitude = uint8(magnitude)
	rec.DriftDetected = magnitude > driftThresholdPercent

	if rec.DriftDetected {
		e.log.Warn("temporal drift detected",
			"device", deviceID, "magnitude", rec.DriftMagnitude)
	}
}

// CheckDrift reports the temporal drift of a device relative to its
// baseline fingerprint.
func (e *Engine) CheckDrift(deviceID uint16, current *Fingerprint) (magnitude uint8, detected bool) {
	for i := uint8(0); i < e.tempN; i++ {
		rec := &e.temporal[i]
		if rec.DeviceID != deviceID {
			continue
		}

		distance := EuclideanDistance(&rec.Baseline, current)
		m := distance / 100
		if m > 100 {
			m = 100
		}
		rec.DriftMagnitude = uint8(m)
		rec.DriftDetected = m > driftThresholdPercent
		return rec.DriftMagnitude, rec.DriftDetected
	}
	return 0, false
}

// TemporalRecordFor returns a copy of the temporal record for a device.
func (e *Engine) TemporalRecordFor(deviceID uint16) (TemporalRecord, bool) {
	for i := uint8(0); i < e.tempN; i++ {
		if e.temporal[i].DeviceID == deviceID {
			return e.temporal[i], true
		}
	}
	return TemporalRecord{}, false
}

// DetectCounterfeit compares a fingerprint against the claimed device and
// every other known device. When some other device matches better than
// the claimed one, the result is 0, indicating a probable forgery;
// otherwise it is the confidence against the claimed device.
func (e *Engine) DetectCounterfeit(fp *Fingerprint, claimedName string) uint8 {
	claimedID, err := e.table.FindByName(claimedName)
	if err != nil {
		return 0
	}

	claimed := Similarity(fp, &e.table.entries[claimedID].Fingerprint)

	var bestOther uint8
	for i := uint16(0); i < e.table.count; i++ {
		if i == claimedID {
			continue
		}
		if c := Similarity(fp, &e.table.entries[i].Fingerprint); c > bestOther {
			bestOther = c
		}
	}

	if bestOther > claimed {
		e.log.Warn("counterfeit indicated",
			"claimed", claimedName, "claimed_confidence", claimed, "other_confidence", bestOther)
		return 0
	}
	return claimed
}

// Reset returns the engine to a fresh idle state, clearing the device
// table and temporal records.
func (e *Engine) Reset() {
	log := e.log
	*e = Engine{log: log}
}
