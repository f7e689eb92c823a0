package threat

import (
	"fmt"
	"strings"
)

// Field is a run of fully static bytes within the payload.
type Field struct {
	Position uint8
	Length   uint8
}

// FindFixedFields returns runs of fully static bytes discovered by the
// static-pattern analysis, up to the capacity of out. Assess (or
// detectStaticPatterns) must have run first.
func (e *Engine) FindFixedFields(out []Field) int {
	if e.frameCount < 2 || len(out) == 0 {
		return 0
	}

	minLen := e.payloadLens[0]
	for i := uint16(1); i < e.frameCount; i++ {
		if e.payloadLens[i] < minLen {
			minLen = e.payloadLens[i]
		}
	}

	n := 0
	inField := false
	var start uint8

	for b := uint8(0); b < minLen && n < len(out); b++ {
		if e.staticMask[b] == 0xFF {
			if !inField {
				start = b
				inField = true
			}
			continue
		}
		if inField {
			out[n] = Field{Position: start, Length: b - start}
			n++
			inField = false
		}
	}

	if inField && n < len(out) {
		out[n] = Field{Position: start, Length: minLen - start}
		n++
	}

	return n
}

// Report renders the last assessment as the fixed-format analysis report.
func (e *Engine) Report() string {
	a := &e.assessment

	var b strings.Builder
	b.WriteString("RF THREAT ANALYSIS REPORT\n")
	b.WriteString("========================\n\n")
	fmt.Fprintf(&b, "Risk Level: %s\n", a.Level)
	fmt.Fprintf(&b, "Vulnerability Score: %d/1000\n\n", a.VulnerabilityScore)

	b.WriteString("ENTROPY ANALYSIS:\n")
	fmt.Fprintf(&b, "  Entropy per byte: %d.%02d bits\n",
		e.entropyPerByte.Int(), e.entropyPerByte.Frac()*100/65536)
	fmt.Fprintf(&b, "  Total entropy: %d bits\n\n", a.EntropyBits)

	b.WriteString("PATTERN ANALYSIS:\n")
	fmt.Fprintf(&b, "  Static ratio: %d%%\n", a.StaticRatio)
	fmt.Fprintf(&b, "  Preamble length: %d bytes\n", e.preambleLen)
	fmt.Fprintf(&b, "  Fixed preamble: 0x%04X\n\n", e.preamble)

	b.WriteString("SECURITY FEATURES:\n")
	fmt.Fprintf(&b, "  Checksum/CRC: %s\n", yesNo(a.HasChecksum))
	fmt.Fprintf(&b, "  Rolling code: %s\n", yesNo(a.HasRollingCode))
	fmt.Fprintf(&b, "  Replay vulnerable: %s\n\n", yesNo(e.replayDetected))

	b.WriteString("RECOMMENDATION:\n")
	fmt.Fprintf(&b, "  %s\n", recommendation(a.Level))

	return b.String()
}

// ReportInto copies the report into buf, truncating at its capacity, and
// returns the number of bytes written.
func (e *Engine) ReportInto(buf []byte) int {
	return copy(buf, e.Report())
}

func yesNo(v bool) string {
	if v {
		return "YES"
	}
	return "NO"
}

func recommendation(l Level) string {
	switch l {
	case LevelCritical:
		return "CRITICAL: Device is highly vulnerable to replay attacks"
	case LevelHigh:
		return "HIGH: Implement rolling code or encryption immediately"
	case LevelMedium:
		return "MEDIUM: Consider adding authentication mechanisms"
	default:
		return "LOW: Device has basic security measures in place"
	}
}
