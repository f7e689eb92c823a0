package stats

import "github.com/herlein/rflab/pkg/fixed"

// ShannonEntropy returns the Shannon entropy of a byte sequence in bits
// per byte. An empty sequence has zero entropy.
func ShannonEntropy(data []byte) fixed.Fixed {
	if len(data) == 0 {
		return 0
	}

	var freq [256]uint32
	for _, b := range data {
		freq[b]++
	}

	return EntropyFromCounts(&freq, uint32(len(data)))
}

// EntropyFromCounts computes Shannon entropy from an aggregated byte
// frequency table: H = -sum(p_i * log2(p_i)).
func EntropyFromCounts(freq *[256]uint32, total uint32) fixed.Fixed {
	if total == 0 {
		return 0
	}

	var entropy fixed.Fixed
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := fixed.FromInt(int32(count)).DivInt(int32(total))
		entropy -= p.Mul(fixed.Log2(p))
	}

	return entropy
}
