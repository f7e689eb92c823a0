// Package compress implements the persistence codecs for captured signal
// data: byte-wise delta coding, 16-bit delta coding for pulse widths,
// run-length coding, and the combined pulse-sequence codec. All encoders
// write into caller-provided buffers and never allocate.
package compress

import "errors"

// Codec errors
var (
	// ErrShortBuffer indicates the destination buffer is too small for
	// the encoded or decoded output
	ErrShortBuffer = errors.New("compress: destination buffer too small")

	// ErrCorrupt indicates the input stream is truncated or malformed
	ErrCorrupt = errors.New("compress: corrupt input stream")
)

// Algorithm selects a codec for the adaptive paths.
type Algorithm uint8

// Supported algorithms
const (
	AlgorithmNone Algorithm = iota
	AlgorithmDelta
	AlgorithmRLE
)

// String returns the algorithm name.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmDelta:
		return "delta"
	case AlgorithmRLE:
		return "rle"
	default:
		return "unknown"
	}
}

// deltaEscape marks a wide delta in the byte streams
const deltaEscape = 0x80

// delta16Escape32 marks a 32-bit delta in the 16-bit stream
const delta16Escape32 = 0x81

// DeltaEncode delta-codes src into dst: the first byte verbatim, then one
// signed byte per sample when the delta fits [-127, 127], otherwise the
// 0x80 escape followed by a big-endian int16 delta. It returns the number
// of bytes written.
func DeltaEncode(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	if len(dst) < 1 {
		return 0, ErrShortBuffer
	}

	dst[0] = src[0]
	out := 1
	last := int16(src[0])

	for _, b := range src[1:] {
		delta := int16(b) - last

		if delta >= -127 && delta <= 127 {
			if out+1 > len(dst) {
				return 0, ErrShortBuffer
			}
			dst[out] = byte(delta)
			out++
		} else {
			if out+3 > len(dst) {
				return 0, ErrShortBuffer
			}
			dst[out] = deltaEscape
			dst[out+1] = byte(delta >> 8)
			dst[out+2] = byte(delta)
			out += 3
		}

		last = int16(b)
	}

	return out, nil
}

// DeltaDecode reverses DeltaEncode. It returns the number of bytes written
// to dst.
func DeltaDecode(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	if len(dst) < 1 {
		return 0, ErrShortBuffer
	}

	last := int16(src[0])
	dst[0] = byte(last)
	out := 1
	in := 1

	for in < len(src) {
		b := src[in]
		in++

		var delta int16
		if b == deltaEscape {
			if in+2 > len(src) {
				return 0, ErrCorrupt
			}
			delta = int16(uint16(src[in])<<8 | uint16(src[in+1]))
			in += 2
		} else {
			delta = int16(int8(b))
		}

		last += delta
		if out >= len(dst) {
			return 0, ErrShortBuffer
		}
		dst[out] = byte(last)
		out++
	}

	return out, nil
}

// Delta16Encode delta-codes 16-bit samples into dst: the first sample as a
// big-endian uint16, then variable-length deltas (one signed byte, 0x80
// plus int16, or 0x81 plus int32). It returns the number of bytes written.
func Delta16Encode(dst []byte, src []uint16) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	if len(dst) < 2 {
		return 0, ErrShortBuffer
	}

	dst[0] = byte(src[0] >> 8)
	dst[1] = byte(src[0])
	out := 2
	last := int32(src[0])

	for _, v := range src[1:] {
		delta := int32(v) - last

		switch {
		case delta >= -127 && delta <= 127:
			if out+1 > len(dst) {
				return 0, ErrShortBuffer
			}
			dst[out] = byte(delta)
			out++
		case delta >= -32768 && delta <= 32767:
			if out+3 > len(dst) {
				return 0, ErrShortBuffer
			}
			dst[out] = deltaEscape
			dst[out+1] = byte(delta >> 8)
			dst[out+2] = byte(delta)
			out += 3
		default:
			if out+5 > len(dst) {
				return 0, ErrShortBuffer
			}
			dst[out] = delta16Escape32
			dst[out+1] = byte(delta >> 24)
			dst[out+2] = byte(delta >> 16)
			dst[out+3] = byte(delta >> 8)
			dst[out+4] = byte(delta)
			out += 5
		}

		last = int32(v)
	}

	return out, nil
}

// Delta16Decode reverses Delta16Encode. It returns the number of samples
// written to dst and the number of source bytes consumed.
func Delta16Decode(dst []uint16, src []byte) (samples, consumed int, err error) {
	if len(src) == 0 {
		return 0, 0, nil
	}
	if len(src) < 2 {
		return 0, 0, ErrCorrupt
	}
	if len(dst) < 1 {
		return 0, 0, ErrShortBuffer
	}

	last := int32(uint16(src[0])<<8 | uint16(src[1]))
	dst[0] = uint16(last)
	out := 1
	in := 2

	for in < len(src) && out < len(dst) {
		b := src[in]
		in++

		var delta int32
		switch b {
		case deltaEscape:
			if in+2 > len(src) {
				return 0, 0, ErrCorrupt
			}
			delta = int32(int16(uint16(src[in])<<8 | uint16(src[in+1])))
			in += 2
		case delta16Escape32:
			if in+4 > len(src) {
				return 0, 0, ErrCorrupt
			}
			delta = int32(uint32(src[in])<<24 | uint32(src[in+1])<<16 |
				uint32(src[in+2])<<8 | uint32(src[in+3]))
			in += 4
		default:
			delta = int32(int8(b))
		}

		last += delta
		dst[out] = uint16(last)
		out++
	}

	return out, in, nil
}
