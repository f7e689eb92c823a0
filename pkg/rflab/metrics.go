package rflab

import "github.com/prometheus/client_golang/prometheus"

// Metrics contains the core's instrumentation: ingest volume, buffer
// saturation, and analysis activity.
type Metrics struct {
	PulsesIngested prometheus.Counter
	FramesIngested prometheus.Counter
	RSSISamples    prometheus.Counter
	PulsesDropped  prometheus.Counter
	FramesDropped  prometheus.Counter

	AnalysesRun      *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
}

// NewMetrics creates the core metrics and registers them when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PulsesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rflab",
			Subsystem: "ingest",
			Name:      "pulses_total",
			Help:      "Total number of pulses accepted by the core",
		}),
		FramesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rflab",
			Subsystem: "ingest",
			Name:      "frames_total",
			Help:      "Total number of frames accepted by the core",
		}),
		RSSISamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rflab",
			Subsystem: "ingest",
			Name:      "rssi_samples_total",
			Help:      "Total number of RSSI samples accepted by the core",
		}),
		PulsesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rflab",
			Subsystem: "ingest",
			Name:      "pulses_dropped_total",
			Help:      "Pulses dropped because the capture buffer was full",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rflab",
			Subsystem: "ingest",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped because the capture buffer was full",
		}),
		AnalysesRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rflab",
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Analysis executions by engine",
		}, []string{"engine"}),
		AnalysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rflab",
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Analysis duration by engine",
			Buckets:   prometheus.DefBuckets,
		}, []string{"engine"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PulsesIngested, m.FramesIngested, m.RSSISamples,
			m.PulsesDropped, m.FramesDropped,
			m.AnalysesRun, m.AnalysisDuration,
		)
	}

	return m
}
