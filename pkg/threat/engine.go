package threat

import (
	"log/slog"

	"github.com/herlein/rflab/pkg/fixed"
	"github.com/herlein/rflab/pkg/signal"
	"github.com/herlein/rflab/pkg/stats"
)

// State tracks analysis progress.
type State uint8

// Analysis states
const (
	StateIdle State = iota
	StateCollecting
	StateAnalyzingCRC
	StateAssessing
	StateComplete
)

// Engine collects frame payloads and assesses them on demand. It is not
// safe for concurrent use; the core facade serializes access.
type Engine struct {
	state State

	payloads    [MaxFrames][MaxPayload]byte
	payloadLens [MaxFrames]uint8
	frameCount  uint16

	byteFreq   [256]uint32
	totalBytes uint32

	staticMask  [MaxPayload]byte
	staticRatio uint8

	preambleLen uint8
	preamble    uint32

	crcFound bool
	crcIndex int8
	crcPos   uint8

	rollingDetected bool
	rollingPos      uint8
	rollingLen      uint8

	replayDetected bool
	replayIndices  [MaxReplayIndices]uint16
	replayCount    uint8

	entropyPerByte fixed.Fixed

	assessment Assessment

	log *slog.Logger
}

// NewEngine returns an idle threat engine. A nil logger falls back to
// slog.Default.
func NewEngine(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log, crcIndex: -1}
}

// State returns the analysis state.
func (e *Engine) State() State { return e.state }

// StartAnalysis clears collected data and begins collecting frames.
func (e *Engine) StartAnalysis() {
	log := e.log
	*e = Engine{log: log, crcIndex: -1}
	e.state = StateCollecting
	e.log.Info("threat analysis started")
}

// StopAnalysis returns the engine to idle, keeping collected results.
func (e *Engine) StopAnalysis() {
	e.state = StateIdle
}

// Reset clears all collected data and returns the engine to idle.
func (e *Engine) Reset() {
	log := e.log
	*e = Engine{log: log, crcIndex: -1}
}

// IsAnalyzing reports whether the engine has left idle: collecting,
// assessing, or holding a completed assessment.
func (e *Engine) IsAnalyzing() bool {
	return e.state != StateIdle
}

// FrameCount returns the number of collected payloads.
func (e *Engine) FrameCount() uint16 { return e.frameCount }

// AddFrame collects one frame's payload. Frames beyond capacity are
// silently dropped.
func (e *Engine) AddFrame(f *signal.Frame) {
	e.AddPayload(f.Payload())
}

// AddPayload collects one raw payload.
func (e *Engine) AddPayload(data []byte) {
	if e.frameCount >= MaxFrames {
		return
	}

	n := len(data)
	if n > MaxPayload {
		n = MaxPayload
	}

	idx := e.frameCount
	copy(e.payloads[idx][:], data[:n])
	e.payloadLens[idx] = uint8(n)
	e.frameCount++

	for _, b := range data[:n] {
		e.byteFreq[b]++
		e.totalBytes++
	}
}

// Entropy returns the Shannon entropy of the aggregated byte frequencies
// in bits per byte.
func (e *Engine) Entropy() fixed.Fixed {
	e.entropyPerByte = stats.EntropyFromCounts(&e.byteFreq, e.totalBytes)
	return e.entropyPerByte
}

// detectStaticPatterns builds the per-bit static mask over the common
// payload length and derives the static ratio.
func (e *Engine) detectStaticPatterns() {
	if e.frameCount < 2 {
		return
	}

	minLen := e.payloadLens[0]
	for i := uint16(1); i < e.frameCount; i++ {
		if e.payloadLens[i] < minLen {
			minLen = e.payloadLens[i]
		}
	}
	if minLen == 0 {
		return
	}

	for i := uint8(0); i < minLen; i++ {
		e.staticMask[i] = 0xFF
	}

	for f := uint16(1); f < e.frameCount; f++ {
		for b := uint8(0); b < minLen; b++ {
			diff := e.payloads[0][b] ^ e.payloads[f][b]
			e.staticMask[b] &^= diff
		}
	}

	var staticBits uint32
	for i := uint8(0); i < minLen; i++ {
		staticBits += uint32(popcount8(e.staticMask[i]))
	}

	totalBits := uint32(minLen) * 8
	e.staticRatio = uint8(staticBits * 100 / totalBits)
}

// StaticRatio returns the percentage of bit positions that never changed.
func (e *Engine) StaticRatio() uint8 { return e.staticRatio }

// StaticMask returns the per-bit static mask over the common payload
// prefix. A set bit never changed across the observed frames.
func (e *Engine) StaticMask() []byte {
	return e.staticMask[:]
}

// detectPreamble finds the longest common byte prefix, up to
// maxPreambleBytes.
func (e *Engine) detectPreamble() {
	if e.frameCount < 2 {
		return
	}

	for length := uint8(1); length <= maxPreambleBytes; length++ {
		match := true
		for i := uint16(1); i < e.frameCount; i++ {
			if e.payloadLens[i] < length || e.payloadLens[0] < length {
				match = false
				break
			}
			if string(e.payloads[0][:length]) != string(e.payloads[i][:length]) {
				match = false
				break
			}
		}
		if !match {
			break
		}

		e.preambleLen = length
		e.preamble = 0
		for i := uint8(0); i < length; i++ {
			e.preamble = e.preamble<<8 | uint32(e.payloads[0][i])
		}
	}
}

// analyzeCRC tries every table polynomial at trailing positions of each
// frame; a polynomial matching more than 80% of frames is declared the
// frame checksum.
func (e *Engine) analyzeCRC() {
	e.state = StateAnalyzingCRC
	if e.frameCount < minFramesForCRC {
		return
	}

	for p := range crcTable {
		poly := &crcTable[p]
		var matches uint16
		var foundPos uint8

		for i := uint16(0); i < e.frameCount; i++ {
			length := e.payloadLens[i]
			if length < 3 {
				continue
			}

			// Try CRC positions from len-2 down to len-4; a checksum
			// at position zero would leave no data
			for off := uint8(2); off <= 4 && off < length; off++ {
				pos := length - off
				if e.testCRC(e.payloads[i][:], length, pos, poly) {
					matches++
					foundPos = pos
					break
				}
			}
		}

		if matches > e.frameCount*8/10 {
			e.crcFound = true
			e.crcIndex = int8(p)
			e.crcPos = foundPos
			e.log.Info("checksum detected", "crc", poly.Name, "position", foundPos)
			break
		}
	}
}

// testCRC checks whether the bytes at pos match the CRC of the bytes
// before it. Only 8- and 16-bit widths are searchable.
func (e *Engine) testCRC(data []byte, length, pos uint8, poly *CRCPolynomial) bool {
	switch poly.Width {
	case 8:
		if pos+1 > length {
			return false
		}
		crc := CRC8(data[:pos], uint8(poly.Polynomial), uint8(poly.Init))
		return crc == data[pos]
	case 16:
		if pos+2 > length {
			return false
		}
		crc := CRC16(data[:pos], uint16(poly.Polynomial), uint16(poly.Init))
		return byte(crc>>8) == data[pos] && byte(crc) == data[pos+1]
	default:
		return false
	}
}

// DetectedCRC returns the matched polynomial and checksum position, if
// any.
func (e *Engine) DetectedCRC() (CRCPolynomial, uint8, bool) {
	if !e.crcFound || e.crcIndex < 0 {
		return CRCPolynomial{}, 0, false
	}
	return crcTable[e.crcIndex], e.crcPos, true
}

// detectRollingCode scans byte positions for 32-bit windows that change
// every frame without being trivially sequential or periodic. It needs at
// least EntropyHistorySize frames.
func (e *Engine) detectRollingCode() {
	if e.frameCount < EntropyHistorySize {
		return
	}

	minLen := e.payloadLens[0]

	for pos := uint8(0); pos+4 <= minLen; pos++ {
		var values [EntropyHistorySize]uint32
		var count uint16

		for i := uint16(0); i < e.frameCount && count < EntropyHistorySize; i++ {
			if pos+4 > e.payloadLens[i] {
				continue
			}
			v := uint32(e.payloads[i][pos])<<24 |
				uint32(e.payloads[i][pos+1])<<16 |
				uint32(e.payloads[i][pos+2])<<8 |
				uint32(e.payloads[i][pos+3])
			values[count] = v
			count++
		}

		if count < 10 {
			continue
		}

		if isSequential(values[:count]) {
			continue
		}

		if sequencePassesRandomness(values[:count]) {
			e.rollingDetected = true
			e.rollingPos = pos
			e.rollingLen = 4
			e.log.Info("rolling code detected", "position", pos)
			return
		}
	}
}

// isSequential reports whether every step is -1, 0 or +1.
func isSequential(values []uint32) bool {
	for i := 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		if d != 0 && d != 1 && d != 0xFFFFFFFF {
			return false
		}
	}
	return true
}

// sequencePassesRandomness rejects sequences that repeat with any single
// period.
func sequencePassesRandomness(values []uint32) bool {
	for period := 1; period <= len(values)/2; period++ {
		repeating := true
		for i := period; i < len(values); i++ {
			if values[i] != values[i%period] {
				repeating = false
				break
			}
		}
		if repeating {
			return false
		}
	}
	return true
}

// RollingCode returns the detected rolling-code field, if any.
func (e *Engine) RollingCode() (pos, length uint8, ok bool) {
	return e.rollingPos, e.rollingLen, e.rollingDetected
}

// detectReplay collects indices of byte-identical frames.
func (e *Engine) detectReplay() {
	e.replayDetected = false
	e.replayCount = 0

	for i := uint16(0); i < e.frameCount; i++ {
		for j := i + 1; j < e.frameCount; j++ {
			if e.payloadLens[i] != e.payloadLens[j] {
				continue
			}
			n := e.payloadLens[i]
			if string(e.payloads[i][:n]) == string(e.payloads[j][:n]) {
				e.replayDetected = true
				if e.replayCount < MaxReplayIndices {
					e.replayIndices[e.replayCount] = i
					e.replayCount++
				}
				break
			}
		}
	}
}

// ReplayIndices returns the indices of frames observed more than once.
func (e *Engine) ReplayIndices() []uint16 {
	return e.replayIndices[:e.replayCount]
}

// IsUnique reports whether a payload has not been observed before.
func (e *Engine) IsUnique(data []byte) bool {
	for i := uint16(0); i < e.frameCount; i++ {
		n := e.payloadLens[i]
		if int(n) != len(data) {
			continue
		}
		if string(e.payloads[i][:n]) == string(data) {
			return false
		}
	}
	return true
}

// Assess runs every analysis and produces the composite assessment.
func (e *Engine) Assess() Assessment {
	e.state = StateAssessing

	e.Entropy()
	e.detectStaticPatterns()
	e.detectPreamble()
	e.analyzeCRC()
	e.detectRollingCode()
	e.detectReplay()

	score := e.vulnerabilityScore()

	e.assessment = Assessment{
		Level:              levelForScore(score),
		VulnerabilityScore: score,
		EntropyBits:        entropyBits(e.entropyPerByte),
		HasChecksum:        e.crcFound,
		HasRollingCode:     e.rollingDetected,
		IsStatic:           e.staticRatio > 80,
		StaticRatio:        e.staticRatio,
	}

	e.state = StateComplete
	e.log.Info("threat assessment complete",
		"level", e.assessment.Level.String(),
		"score", e.assessment.VulnerabilityScore)
	return e.assessment
}

// Snapshot copies the last assessment into out, reporting false when no
// assessment has completed.
func (e *Engine) Snapshot(out *Assessment) bool {
	if e.state != StateComplete {
		*out = Assessment{}
		return false
	}
	*out = e.assessment
	return true
}

// vulnerabilityScore composes the additive 0-1000 score.
func (e *Engine) vulnerabilityScore() uint16 {
	var score uint32

	// Low entropy: up to 300 points, 75 per missing bit below 4
	four := fixed.FromInt(4)
	if e.entropyPerByte < four {
		deficit := four - e.entropyPerByte
		score += uint32(deficit.Mul(fixed.FromInt(75)).Int())
	}

	// Static frames: up to 250 points
	score += uint32(e.staticRatio) * 250 / 100

	// Missing integrity and freshness protections
	if !e.crcFound {
		score += 200
	}
	if !e.rollingDetected {
		score += 150
	}
	if e.replayDetected {
		score += 100
	}

	if score > 1000 {
		score = 1000
	}
	return uint16(score)
}

// entropyBits scales entropy per byte onto the assessment's compact
// field.
func entropyBits(perByte fixed.Fixed) uint8 {
	bits := perByte.Mul(fixed.FromInt(8)).Int()
	if bits < 0 {
		bits = 0
	}
	if bits > 255 {
		bits = 255
	}
	return uint8(bits)
}

// QuickAssess classifies a single frame without touching engine state:
// very low entropy or a uniform payload is High risk, moderate entropy is
// Medium, anything else Low.
func QuickAssess(frame *signal.Frame) Assessment {
	var result Assessment

	payload := frame.Payload()
	entropy := stats.ShannonEntropy(payload)
	result.EntropyBits = entropyBits(entropy)

	uniform := len(payload) > 0
	for _, b := range payload {
		if b != payload[0] {
			uniform = false
			break
		}
	}

	if uniform {
		result.IsStatic = true
		result.StaticRatio = 100
	}

	switch {
	case entropy < fixed.FromInt(2) || uniform:
		result.Level = LevelHigh
		result.VulnerabilityScore = ScoreHigh
	case entropy < fixed.FromInt(4):
		result.Level = LevelMedium
		result.VulnerabilityScore = ScoreMedium
	default:
		result.Level = LevelLow
		result.VulnerabilityScore = ScoreLow
	}

	return result
}
