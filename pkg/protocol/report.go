package protocol

import "fmt"

// Describe renders a short human-readable summary of the hypothesis.
func (h *Hypothesis) Describe() string {
	return fmt.Sprintf(
		"Protocol: %s/%s @ %d baud\n"+
			"Symbol period: %d us\n"+
			"Frame: %d preamble + %d payload + %d checksum bits\n"+
			"Confidence: %d%%\n",
		h.Modulation, h.Encoding, h.BaudRate,
		h.SymbolPeriodUs,
		h.PreambleLengthBits, h.PayloadLengthBits, h.ChecksumLengthBits,
		h.OverallConfidence)
}
