package compress

import "github.com/herlein/rflab/pkg/signal"

// maxLevelRun bounds a packed level run; each run byte is
// (run_length << 1) | level
const maxLevelRun = 127

// maxPulses bounds a single encoded sequence, matching the capture buffer
const maxPulses = 4096

// PulseEncode packs a pulse sequence: a big-endian uint16 count, the
// Delta16-coded width stream, then level runs packed one per byte. It
// returns the number of bytes written. Timestamps are not persisted.
func PulseEncode(dst []byte, pulses []signal.Pulse) (int, error) {
	if len(pulses) == 0 {
		return 0, nil
	}
	if len(pulses) > maxPulses {
		pulses = pulses[:maxPulses]
	}
	if len(dst) < 2 {
		return 0, ErrShortBuffer
	}

	count := uint16(len(pulses))
	dst[0] = byte(count >> 8)
	dst[1] = byte(count)
	out := 2

	var widths [maxPulses]uint16
	for i, p := range pulses {
		widths[i] = p.WidthUs
	}

	n, err := Delta16Encode(dst[out:], widths[:count])
	if err != nil {
		return 0, err
	}
	out += n

	level := pulses[0].Level & 1
	run := 1
	for _, p := range pulses[1:] {
		if p.Level&1 == level && run < maxLevelRun {
			run++
			continue
		}
		if out >= len(dst) {
			return 0, ErrShortBuffer
		}
		dst[out] = byte(run<<1) | level
		out++
		level = p.Level & 1
		run = 1
	}

	if out >= len(dst) {
		return 0, ErrShortBuffer
	}
	dst[out] = byte(run<<1) | level
	out++

	return out, nil
}

// PulseDecode reverses PulseEncode. Decoded pulses carry zero timestamps;
// widths and levels round-trip exactly. It returns the number of pulses
// written to dst.
func PulseDecode(dst []signal.Pulse, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	if len(src) < 2 {
		return 0, ErrCorrupt
	}

	count := int(uint16(src[0])<<8 | uint16(src[1]))
	if count > len(dst) {
		count = len(dst)
	}
	if count > maxPulses {
		count = maxPulses
	}
	in := 2

	var widths [maxPulses]uint16
	n, consumed, err := Delta16Decode(widths[:count], src[in:])
	if err != nil {
		return 0, err
	}
	if n < count {
		return 0, ErrCorrupt
	}
	in += consumed

	idx := 0
	for idx < count && in < len(src) {
		packed := src[in]
		in++
		run := int(packed >> 1)
		level := packed & 1

		for i := 0; i < run && idx < count; i++ {
			dst[idx] = signal.Pulse{
				Level:   level,
				WidthUs: widths[idx],
			}
			idx++
		}
	}

	if idx < count {
		return 0, ErrCorrupt
	}
	return idx, nil
}
