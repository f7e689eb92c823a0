package compress

// RLE framing constants
const (
	rleMarker = 0x00
	rleEscape = 0x01
	rleMinRun = 3
	rleMaxRun = 255
)

// RLEEncode run-length-codes src into dst. Runs of three or more bytes
// emit the triple (0x00, run length, symbol); a literal 0x00 emits the
// escape (0x00, 0x01, 0x00); every other byte passes through. It returns
// the number of bytes written.
func RLEEncode(dst, src []byte) (int, error) {
	in := 0
	out := 0

	for in < len(src) {
		symbol := src[in]
		run := 1
		for in+run < len(src) && src[in+run] == symbol && run < rleMaxRun {
			run++
		}

		if run >= rleMinRun {
			if out+3 > len(dst) {
				return 0, ErrShortBuffer
			}
			dst[out] = rleMarker
			dst[out+1] = byte(run)
			dst[out+2] = symbol
			out += 3
			in += run
		} else {
			need := 1
			if symbol == rleMarker {
				need = 3
			}
			if out+need > len(dst) {
				return 0, ErrShortBuffer
			}
			if symbol == rleMarker {
				dst[out] = rleMarker
				dst[out+1] = rleEscape
				dst[out+2] = rleMarker
				out += 3
			} else {
				dst[out] = symbol
				out++
			}
			in++
		}
	}

	return out, nil
}

// RLEDecode reverses RLEEncode, reconstructing the input byte-exact. It
// returns the number of bytes written to dst.
func RLEDecode(dst, src []byte) (int, error) {
	in := 0
	out := 0

	for in < len(src) {
		b := src[in]
		in++

		if b != rleMarker {
			if out >= len(dst) {
				return 0, ErrShortBuffer
			}
			dst[out] = b
			out++
			continue
		}

		if in >= len(src) {
			return 0, ErrCorrupt
		}
		next := src[in]
		in++

		if next == rleEscape {
			// Escaped literal
			if in >= len(src) {
				return 0, ErrCorrupt
			}
			if out >= len(dst) {
				return 0, ErrShortBuffer
			}
			dst[out] = src[in]
			in++
			out++
			continue
		}

		// Run of next copies of the following symbol
		if in >= len(src) {
			return 0, ErrCorrupt
		}
		symbol := src[in]
		in++

		if out+int(next) > len(dst) {
			return 0, ErrShortBuffer
		}
		for i := 0; i < int(next); i++ {
			dst[out] = symbol
			out++
		}
	}

	return out, nil
}

// SelectAlgorithm picks the better of delta and RLE coding on a bounded
// sample of the data, falling back to none when neither earns its keep.
func SelectAlgorithm(sample []byte) Algorithm {
	if len(sample) == 0 {
		return AlgorithmNone
	}
	if len(sample) > 256 {
		sample = sample[:256]
	}

	var buf [1024]byte

	deltaLen, err := DeltaEncode(buf[:], sample)
	if err != nil {
		deltaLen = len(sample) * 3
	}
	rleLen, err := RLEEncode(buf[:], sample)
	if err != nil {
		rleLen = len(sample) * 3
	}

	// RLE must come in at or under five sixths of the raw size to be worth
	// the escape risk.
	// Delta never shrinks a byte stream, but a stream it codes without
	// escapes is smooth enough that delta is the right persisted form.
	if rleLen <= len(sample)*5/6 {
		return AlgorithmRLE
	}
	if deltaLen <= len(sample) {
		return AlgorithmDelta
	}
	return AlgorithmNone
}
