// Package capture is the radio front-end collaborator: it reads
// demodulated pulse records from a CC1111-based USB dongle and hands them
// to the analysis core. The core itself never touches hardware; this
// package is the only one that does.
package capture

import (
	"errors"

	"github.com/herlein/rflab/pkg/signal"
)

// USB identifiers for the CC1111 dongle
const (
	VendorID  = 0x1D50
	ProductID = 0x605B

	// Bulk endpoint number used by the pulse-stream firmware
	EndpointNum = 5
)

// PulseRecordSize is the on-wire size of one pulse record: level (1),
// width in us (2, big-endian), timestamp in us (4, big-endian).
const PulseRecordSize = 7

// Package errors
var (
	// ErrNoDevice indicates no dongle was found on the bus
	ErrNoDevice = errors.New("capture: no device found")

	// ErrBadRecord indicates a malformed pulse record in the stream
	ErrBadRecord = errors.New("capture: malformed pulse record")
)

// ParsePulseRecords decodes complete pulse records from a raw endpoint
// read into out. It returns the number of pulses decoded and the number
// of bytes consumed; a trailing partial record is left unconsumed for
// the next read.
func ParsePulseRecords(out []signal.Pulse, data []byte) (pulses, consumed int, err error) {
	n := 0
	in := 0

	for in+PulseRecordSize <= len(data) && n < len(out) {
		level := data[in]
		if level > 1 {
			return n, in, ErrBadRecord
		}

		width := uint16(data[in+1])<<8 | uint16(data[in+2])
		if width < signal.MinPulseWidthUs {
			return n, in, ErrBadRecord
		}

		ts := uint32(data[in+3])<<24 | uint32(data[in+4])<<16 |
			uint32(data[in+5])<<8 | uint32(data[in+6])

		out[n] = signal.Pulse{Level: level, WidthUs: width, TimestampUs: ts}
		n++
		in += PulseRecordSize
	}

	return n, in, nil
}

// CrystalHz is the CC1111 crystal frequency
const CrystalHz = 24000000

// CalcFreqRegs calculates the FREQ2/FREQ1/FREQ0 register values for a
// carrier frequency: FREQ = freq_hz * 2^16 / f_xtal.
func CalcFreqRegs(freqHz uint32) (freq2, freq1, freq0 uint8) {
	num := uint32(uint64(freqHz) * 65536 / CrystalHz)
	return uint8(num >> 16), uint8(num >> 8), uint8(num)
}

// IsValidFrequency checks a frequency against the CC1111 bands.
func IsValidFrequency(freq uint32) bool {
	switch {
	case freq >= 300000000 && freq <= 348000000:
		return true
	case freq >= 387000000 && freq <= 464000000:
		return true
	case freq >= 779000000 && freq <= 928000000:
		return true
	default:
		return false
	}
}
