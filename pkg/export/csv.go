// Package export implements the storage and telemetry collaborators of
// the analysis core: CSV frame logs, fingerprint and pulse-blob files,
// threat report files, and an MQTT result publisher. Nothing here runs in
// an analysis hot path.
package export

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/herlein/rflab/pkg/signal"
)

// csvHeader is the fixed frame-log column set
var csvHeader = []string{"timestamp_us", "frequency_hz", "rssi_dbm", "data_hex"}

// WriteFramesCSV writes one row per frame in the exporter contract
// layout: timestamp_us, frequency_hz, rssi_dbm, data_hex.
func WriteFramesCSV(w io.Writer, frames []signal.Frame) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range frames {
		f := &frames[i]
		row := []string{
			fmt.Sprintf("%d", f.TimestampUs),
			fmt.Sprintf("%d", f.FrequencyHz),
			fmt.Sprintf("%d", f.RSSIDBm),
			hex.EncodeToString(f.Payload()),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// SaveFramesCSV writes the frame log to a file.
func SaveFramesCSV(path string, frames []signal.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	return WriteFramesCSV(file, frames)
}
