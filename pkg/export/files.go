package export

import (
	"fmt"
	"os"

	"github.com/herlein/rflab/pkg/compress"
	"github.com/herlein/rflab/pkg/fingerprint"
	"github.com/herlein/rflab/pkg/signal"
)

// SaveFingerprint writes a fingerprint file: the binary record followed
// by the null-terminated device name.
func SaveFingerprint(path string, fp *fingerprint.Fingerprint, name string) error {
	var buf [64]byte
	n, err := fingerprint.EncodeFile(buf[:], fp, name)
	if err != nil {
		return fmt.Errorf("failed to encode fingerprint: %w", err)
	}

	if err := os.WriteFile(path, buf[:n], 0644); err != nil {
		return fmt.Errorf("failed to write fingerprint file: %w", err)
	}
	return nil
}

// LoadFingerprint reads a fingerprint file written by SaveFingerprint.
func LoadFingerprint(path string) (fingerprint.Fingerprint, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fingerprint.Fingerprint{}, "", fmt.Errorf("failed to read fingerprint file: %w", err)
	}
	return fingerprint.DecodeFile(data)
}

// SavePulseBlob writes a pulse sequence in the persisted codec layout.
func SavePulseBlob(path string, pulses []signal.Pulse) error {
	// Worst case: 2-byte header, 5 bytes per width delta, 1 run byte each
	buf := make([]byte, 2+len(pulses)*6)
	n, err := compress.PulseEncode(buf, pulses)
	if err != nil {
		return fmt.Errorf("failed to encode pulse sequence: %w", err)
	}

	if err := os.WriteFile(path, buf[:n], 0644); err != nil {
		return fmt.Errorf("failed to write pulse blob: %w", err)
	}
	return nil
}

// LoadPulseBlob reads a pulse blob written by SavePulseBlob.
func LoadPulseBlob(path string) ([]signal.Pulse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pulse blob: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	pulses := make([]signal.Pulse, 4096)
	n, err := compress.PulseDecode(pulses, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode pulse blob: %w", err)
	}
	return pulses[:n], nil
}

// SaveReport writes a threat report text file.
func SaveReport(path, report string) error {
	if err := os.WriteFile(path, []byte(report), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
