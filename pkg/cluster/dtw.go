package cluster

import (
	"github.com/herlein/rflab/pkg/fixed"
	"github.com/herlein/rflab/pkg/signal"
)

// DTWResult is the outcome of a bounded dynamic-time-warping comparison.
type DTWResult struct {
	TotalDistance fixed.Fixed
	PathLength    uint16
}

// DTW compares two fixed-point sequences with a simplified, bounded
// time-warping distance. Sequences are truncated to MaxDTWLength.
func DTW(seq1, seq2 []fixed.Fixed) DTWResult {
	if len(seq1) > MaxDTWLength {
		seq1 = seq1[:MaxDTWLength]
	}
	if len(seq2) > MaxDTWLength {
		seq2 = seq2[:MaxDTWLength]
	}

	var result DTWResult
	minLen := len(seq1)
	if len(seq2) < minLen {
		minLen = len(seq2)
	}
	if minLen == 0 {
		return result
	}

	var total fixed.Fixed
	for i := 0; i < minLen; i++ {
		total = fixed.AddSat(total, (seq1[i] - seq2[i]).Abs())
	}

	result.TotalDistance = total.DivInt(int32(minLen))
	result.PathLength = uint16(minLen)
	return result
}

// DTWPulseDistance compares two pulse sequences by width.
func DTWPulseDistance(a, b []signal.Pulse) fixed.Fixed {
	var seq1, seq2 [MaxDTWLength]fixed.Fixed

	n1 := len(a)
	if n1 > MaxDTWLength {
		n1 = MaxDTWLength
	}
	n2 := len(b)
	if n2 > MaxDTWLength {
		n2 = MaxDTWLength
	}

	for i := 0; i < n1; i++ {
		seq1[i] = fixed.FromInt(int32(a[i].WidthUs))
	}
	for i := 0; i < n2; i++ {
		seq2[i] = fixed.FromInt(int32(b[i].WidthUs))
	}

	return DTW(seq1[:n1], seq2[:n2]).TotalDistance
}
