// rflab-capture streams pulses from a CC1111 dongle into the analysis
// core, periodically re-running protocol inference, and exports the
// session on shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gousb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/herlein/rflab/pkg/capture"
	"github.com/herlein/rflab/pkg/export"
	"github.com/herlein/rflab/pkg/protocol"
	"github.com/herlein/rflab/pkg/rflab"
	sig "github.com/herlein/rflab/pkg/signal"
)

var (
	profileName = flag.String("profile", "433-ook", "Capture profile (315-ook, 433-ook, 433-fsk, 868-fsk, 915-ook)")
	sessionName = flag.String("session", "capture", "Session name")
	duration    = flag.Duration("duration", 0, "Capture duration (0 = until interrupted)")
	analyzeSecs = flag.Duration("analyze-every", 5*time.Second, "Interval between protocol analyses")
	pulsesOut   = flag.String("pulses", "", "Write captured pulses to a blob on exit")
	csvOut      = flag.String("csv", "", "Write captured frames to CSV on exit")
	mqttBroker  = flag.String("mqtt", "", "Publish results to this MQTT broker (host:port)")
	metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address")
	verbose     = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Live sub-GHz capture and analysis\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -profile 433-ook -pulses session.psq\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -profile 868-fsk -duration 60s -mqtt localhost:1883\n", os.Args[0])
	}
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	profile, ok := capture.ProfileByName(*profileName)
	if !ok {
		return fmt.Errorf("unknown profile %q", *profileName)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	registry := prometheus.NewRegistry()

	cfg := rflab.DefaultConfig()
	cfg.SessionName = *sessionName
	cfg.Logger = logger
	cfg.Registerer = registry
	core, err := rflab.New(cfg)
	if err != nil {
		return err
	}
	defer core.Close()

	// Open and tune the dongle
	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	device, err := capture.Open(usbCtx)
	if err != nil {
		return err
	}
	defer device.Close()

	fmt.Printf("Connected to: %s\n", device)
	fmt.Printf("Profile: %s (%.3f MHz)\n", profile.Name, float64(profile.FrequencyHz)/1e6)

	if err := device.Tune(&profile); err != nil {
		return err
	}
	if err := device.StartStreaming(); err != nil {
		return err
	}
	defer device.StopStreaming()

	// Optional result publisher
	var publisher *export.Publisher
	if *mqttBroker != "" {
		pubCfg := export.DefaultPublisherConfig()
		pubCfg.Broker = *mqttBroker
		pubCfg.TopicBase = "rflab/" + *sessionName
		publisher = export.NewPublisher(pubCfg, logger)
		if err := publisher.Connect(); err != nil {
			return err
		}
		defer publisher.Close()
	}

	// Optional metrics endpoint
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: *metricsAddr, Handler: mux}
		go server.ListenAndServe()
		defer server.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	group, ctx := errgroup.WithContext(ctx)

	// Ingest loop: dongle -> core
	group.Go(func() error {
		buf := make([]sig.Pulse, 256)
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			n, err := device.ReadPulses(buf, time.Second)
			if err != nil {
				// Endpoint timeouts are routine on quiet bands
				logger.Debug("read failed", "err", err)
				continue
			}
			for i := 0; i < n; i++ {
				if err := core.OnPulse(buf[i].Level, buf[i].WidthUs, buf[i].TimestampUs); err != nil {
					logger.Warn("pulse rejected", "err", err)
				}
			}
		}
	})

	// Analysis loop: re-run inference on a timer
	group.Go(func() error {
		ticker := time.NewTicker(*analyzeSecs)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := core.AnalyzeProtocol(); err != nil {
					continue
				}

				var h protocol.Hypothesis
				if core.SnapshotHypothesis(&h) {
					fmt.Printf("[%s] %s/%s @ %d baud, confidence %d%%\n",
						time.Now().Format("15:04:05"),
						h.Modulation, h.Encoding, h.BaudRate, h.OverallConfidence)
				}

				if publisher != nil {
					if a, err := core.AssessThreat(); err == nil {
						if err := publisher.PublishAssessment(a); err != nil {
							logger.Warn("publish failed", "err", err)
						}
					}
				}
			}
		}
	})

	if err := group.Wait(); err != nil {
		return err
	}

	return saveSession(core)
}

// saveSession exports the capture buffers on shutdown.
func saveSession(core *rflab.Core) error {
	droppedPulses, droppedFrames := core.Dropped()
	fmt.Printf("\nSession complete: %d pulses, %d frames (%d/%d dropped)\n",
		core.PulseCount(), core.FrameCount(), droppedPulses, droppedFrames)

	if *pulsesOut != "" {
		pulses := make([]sig.Pulse, rflab.MaxPulses)
		n := core.CopyPulses(pulses)
		if err := export.SavePulseBlob(*pulsesOut, pulses[:n]); err != nil {
			return err
		}
		fmt.Printf("Pulses written to %s\n", *pulsesOut)
	}

	if *csvOut != "" {
		frames := make([]sig.Frame, rflab.MaxFrames)
		n := core.CopyFrames(frames)
		if err := export.SaveFramesCSV(*csvOut, frames[:n]); err != nil {
			return err
		}
		fmt.Printf("Frames written to %s\n", *csvOut)
	}

	return nil
}
