// rflab-analyze runs the analysis core over a captured session: a pulse
// blob and an optional frame CSV, producing a protocol hypothesis, a
// threat report, and optional exports.
package main

import (
	"encoding/csv"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/herlein/rflab/pkg/export"
	"github.com/herlein/rflab/pkg/fingerprint"
	"github.com/herlein/rflab/pkg/protocol"
	"github.com/herlein/rflab/pkg/rflab"
	"github.com/herlein/rflab/pkg/signal"
)

var (
	pulsesIn  = flag.String("pulses", "", "Input pulse blob (.psq)")
	framesIn  = flag.String("frames", "", "Input frame CSV (timestamp_us,frequency_hz,rssi_dbm,data_hex)")
	csvOut    = flag.String("csv", "", "Write frames back out as CSV")
	reportOut = flag.String("report", "", "Write the threat report to a file")
	fprOut    = flag.String("fpr", "", "Write the derived fingerprint to a file")
	devName   = flag.String("name", "device", "Device name stored in the fingerprint file")
	verbose   = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Offline RF signal analyzer\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -pulses capture.psq                  # Infer the protocol\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -frames frames.csv -report out.txt   # Assess the frame population\n", os.Args[0])
	}
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if *pulsesIn == "" && *framesIn == "" {
		return fmt.Errorf("at least one of -pulses or -frames is required")
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := rflab.DefaultConfig()
	cfg.Logger = logger
	core, err := rflab.New(cfg)
	if err != nil {
		return err
	}
	defer core.Close()

	core.StartThreatAnalysis()
	core.StartFingerprinting()

	if *pulsesIn != "" {
		pulses, err := export.LoadPulseBlob(*pulsesIn)
		if err != nil {
			return err
		}
		fmt.Printf("Loaded %d pulses from %s\n", len(pulses), *pulsesIn)

		for _, p := range pulses {
			if err := core.OnPulse(p.Level, p.WidthUs, p.TimestampUs); err != nil {
				return err
			}
		}
	}

	var frameCount int
	if *framesIn != "" {
		frames, err := readFrameCSV(*framesIn)
		if err != nil {
			return err
		}
		frameCount = len(frames)
		fmt.Printf("Loaded %d frames from %s\n", frameCount, *framesIn)

		for i := range frames {
			f := &frames[i]
			if err := core.OnFrame(f.TimestampUs, f.DurationUs, f.RSSIDBm,
				f.FrequencyHz, f.Payload(), 0, 0); err != nil {
				return err
			}
		}
	}

	// Protocol inference
	if err := core.AnalyzeProtocol(); err != nil {
		fmt.Printf("Protocol inference skipped: %v\n", err)
	} else {
		var h protocol.Hypothesis
		core.SnapshotHypothesis(&h)
		fmt.Println()
		fmt.Print(h.Describe())
	}

	// Threat assessment
	if frameCount > 0 {
		if _, err := core.AssessThreat(); err != nil {
			return err
		}

		buf := make([]byte, 2048)
		n := core.ThreatReport(buf)
		fmt.Println()
		fmt.Print(string(buf[:n]))

		if *reportOut != "" {
			if err := export.SaveReport(*reportOut, string(buf[:n])); err != nil {
				return err
			}
			fmt.Printf("Report written to %s\n", *reportOut)
		}
	}

	// Fingerprint
	core.StopFingerprinting()
	var fp fingerprint.Fingerprint
	if core.SnapshotFingerprint(&fp) && *fprOut != "" {
		if err := export.SaveFingerprint(*fprOut, &fp, *devName); err != nil {
			return err
		}
		fmt.Printf("Fingerprint written to %s\n", *fprOut)
	}

	// CSV re-export
	if *csvOut != "" && frameCount > 0 {
		frames := make([]signal.Frame, rflab.MaxFrames)
		n := core.CopyFrames(frames)
		if err := export.SaveFramesCSV(*csvOut, frames[:n]); err != nil {
			return err
		}
		fmt.Printf("Frames written to %s\n", *csvOut)
	}

	return nil
}

// readFrameCSV parses the exporter-contract frame CSV layout.
func readFrameCSV(path string) ([]signal.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame CSV: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	var frames []signal.Frame
	header := true

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read frame CSV: %w", err)
		}
		if header {
			header = false
			continue
		}
		if len(row) < 4 {
			return nil, fmt.Errorf("frame CSV row has %d columns, want 4", len(row))
		}

		ts, err := strconv.ParseUint(row[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad timestamp %q: %w", row[0], err)
		}
		freq, err := strconv.ParseUint(row[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad frequency %q: %w", row[1], err)
		}
		rssi, err := strconv.ParseInt(row[2], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("bad rssi %q: %w", row[2], err)
		}
		data, err := hex.DecodeString(row[3])
		if err != nil {
			return nil, fmt.Errorf("bad data %q: %w", row[3], err)
		}
		if len(data) > signal.MaxFrameData {
			data = data[:signal.MaxFrameData]
		}

		f := signal.Frame{
			TimestampUs: uint32(ts),
			DurationUs:  uint32(len(data)) * 500,
			RSSIDBm:     int16(rssi),
			FrequencyHz: uint32(freq),
			Length:      uint8(len(data)),
		}
		copy(f.Data[:], data)
		frames = append(frames, f)
	}

	return frames, nil
}
