// Package rflab is the analysis core facade: it owns the capture buffers
// and the engine lifecycles, serializes the ingest and analyze surfaces
// behind one mutex, and copies out point-in-time consistent snapshots.
package rflab

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/herlein/rflab/pkg/cluster"
	"github.com/herlein/rflab/pkg/fingerprint"
	"github.com/herlein/rflab/pkg/protocol"
	"github.com/herlein/rflab/pkg/signal"
	"github.com/herlein/rflab/pkg/threat"
)

// Session identifies one capture run.
type Session struct {
	ID        uuid.UUID
	Name      string
	StartedAt time.Time
}

// Core owns the capture buffers and analysis engines. The ingest surface
// (OnPulse, OnFrame, OnRSSISample) and the analyze/query surface share
// one core-wide mutex. Ingest operations are constant-time per event with
// two exceptions inside OnFrame: the frame that completes a fingerprint
// capture runs the fingerprint analysis, and every ReclusterInterval-th
// accepted clustering point re-runs streaming k-means, both under the
// mutex.
type Core struct {
	mu  sync.Mutex
	cfg Config

	session Session

	pulses        [MaxPulses]signal.Pulse
	pulseCount    uint16
	pulsesDropped uint32

	frames        [MaxFrames]signal.Frame
	frameCount    uint16
	framesDropped uint32

	fingerprints *fingerprint.Engine
	proto        *protocol.Engine
	threats      *threat.Engine
	streaming    *cluster.Streaming

	metrics *Metrics
	healthy bool
	log     *slog.Logger
}

// New creates a core with all engines idle and all buffers empty. The
// configuration is validated; nil falls back to defaults.
func New(cfg *Config) (*Core, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	c := &Core{
		cfg: *cfg,
		session: Session{
			ID:        uuid.New(),
			Name:      cfg.SessionName,
			StartedAt: time.Now(),
		},
		fingerprints: fingerprint.NewEngine(log),
		proto:        protocol.NewEngine(log),
		threats:      threat.NewEngine(log),
		streaming:    cluster.NewStreaming(cfg.StreamingK),
		metrics:      NewMetrics(cfg.Registerer),
		healthy:      true,
		log:          log,
	}

	log.Info("core initialized",
		"session", c.session.ID.String(), "name", c.session.Name,
		"pulse_capacity", cfg.PulseCapacity)
	return c, nil
}

// Session returns the capture session identity.
func (c *Core) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Healthy reports false once the core has detected internal corruption.
// Once false it stays false until Reset.
func (c *Core) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy
}

// --- Ingest surface ---

// OnPulse ingests one demodulated pulse. Out-of-range input is rejected;
// pulses beyond the configured capacity are dropped and counted.
func (c *Core) OnPulse(level uint8, widthUs uint16, timestampUs uint32) error {
	if level > 1 || widthUs < signal.MinPulseWidthUs {
		return ErrInvalidPulse
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := signal.Pulse{Level: level, WidthUs: widthUs, TimestampUs: timestampUs}

	if c.pulseCount >= c.cfg.PulseCapacity {
		c.pulsesDropped++
		c.metrics.PulsesDropped.Inc()
		return nil
	}

	c.pulses[c.pulseCount] = p
	c.pulseCount++
	c.proto.AddPulse(p)
	c.metrics.PulsesIngested.Inc()
	return nil
}

// OnFrame ingests one reconstructed frame and fans it out to the
// fingerprinting, protocol, threat and streaming-clustering engines.
func (c *Core) OnFrame(timestampUs, durationUs uint32, rssiDBm int16,
	frequencyHz uint32, data []byte, pulseStart, pulseCount uint16) error {
	if len(data) > signal.MaxFrameData {
		return ErrInvalidFrame
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	frame := signal.Frame{
		TimestampUs: timestampUs,
		DurationUs:  durationUs,
		RSSIDBm:     rssiDBm,
		FrequencyHz: frequencyHz,
		Length:      uint8(len(data)),
		PulseStart:  pulseStart,
		PulseCount:  pulseCount,
	}
	copy(frame.Data[:], data)

	if c.frameCount >= MaxFrames {
		c.framesDropped++
		c.metrics.FramesDropped.Inc()
	} else {
		c.frames[c.frameCount] = frame
		c.frameCount++
	}

	c.fingerprints.ProcessFrame(&frame)
	c.proto.AddFrame(&frame)
	c.threats.AddFrame(&frame)

	var features [1]cluster.Point
	if cluster.ExtractFrameFeatures(&frame, features[:]) > 0 {
		c.streaming.Add(features[0])
	}

	c.metrics.FramesIngested.Inc()
	return nil
}

// OnRSSISample ingests one high-rate RSSI sample for slope analysis.
func (c *Core) OnRSSISample(rssi uint8, timestampUs uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fingerprints.ProcessRSSISample(rssi, timestampUs)
	c.metrics.RSSISamples.Inc()
}

// PulseCount returns the number of buffered pulses.
func (c *Core) PulseCount() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pulseCount
}

// FrameCount returns the number of buffered frames.
func (c *Core) FrameCount() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameCount
}

// Dropped returns the saturation counters for pulses and frames.
func (c *Core) Dropped() (pulses, frames uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pulsesDropped, c.framesDropped
}

// CopyPulses copies buffered pulses into dst and returns the count.
func (c *Core) CopyPulses(dst []signal.Pulse) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copy(dst, c.pulses[:c.pulseCount])
}

// CopyFrames copies buffered frames into dst and returns the count.
func (c *Core) CopyFrames(dst []signal.Frame) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copy(dst, c.frames[:c.frameCount])
}

// --- Fingerprinting control ---

// StartFingerprinting begins a fingerprint capture.
func (c *Core) StartFingerprinting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fingerprints.Start()
}

// StartLearning begins a capture stored under the given device name.
func (c *Core) StartLearning(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fingerprints.StartLearning(name)
}

// StopFingerprinting ends sampling. A partial capture is analyzed rather
// than discarded, leaving the completed fingerprint queryable; stopping
// an engine that was not sampling idles it, after which
// SnapshotFingerprint reports false.
func (c *Core) StopFingerprinting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fingerprints.IsCapturing() {
		c.fingerprints.Finish()
		return
	}
	c.fingerprints.Stop()
}

// FingerprintProgress returns capture completion in percent.
func (c *Core) FingerprintProgress() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fingerprints.Progress()
}

// SnapshotFingerprint copies the completed fingerprint into out.
func (c *Core) SnapshotFingerprint(out *fingerprint.Fingerprint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fingerprints.Snapshot(out)
}

// MatchFingerprint scans the device table for the closest device.
func (c *Core) MatchFingerprint(fp *fingerprint.Fingerprint) (confidence uint8, deviceID uint16, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fingerprints.Match(fp)
}

// AddDevice stores a fingerprint in the device table under a name.
func (c *Core) AddDevice(fp *fingerprint.Fingerprint, name string) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fingerprints.AddDevice(fp, name)
}

// RemoveDevice deletes a device from the table.
func (c *Core) RemoveDevice(id uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fingerprints.RemoveDevice(id)
}

// Device returns a copy of a device table entry.
func (c *Core) Device(id uint16) (fingerprint.DeviceEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fingerprints.Device(id)
}

// DeviceCount returns the number of known devices.
func (c *Core) DeviceCount() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fingerprints.DeviceCount()
}

// DetectCounterfeit checks a fingerprint against a claimed identity.
func (c *Core) DetectCounterfeit(fp *fingerprint.Fingerprint, claimedName string) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fingerprints.DetectCounterfeit(fp, claimedName)
}

// --- Protocol inference control ---

// AnalyzeProtocol executes the inference pipeline over accumulated
// pulses and frames.
func (c *Core) AnalyzeProtocol() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.healthy {
		return ErrNotHealthy
	}

	start := time.Now()
	err := c.proto.Analyze()
	c.metrics.AnalysesRun.WithLabelValues("protocol").Inc()
	c.metrics.AnalysisDuration.WithLabelValues("protocol").Observe(time.Since(start).Seconds())

	// Feed the inferred symbol period to fingerprinting for frames
	// whose own timing cannot be derived
	if err == nil {
		if h := c.proto.Hypothesis(); h.SymbolPeriodUs > 0 {
			c.fingerprints.SetSymbolPeriodHint(h.SymbolPeriodUs)
		}
	}
	return err
}

// SnapshotHypothesis copies the last protocol hypothesis into out,
// reporting false when no analysis has completed.
func (c *Core) SnapshotHypothesis(out *protocol.Hypothesis) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.proto.Analyzed() {
		*out = protocol.Hypothesis{}
		return false
	}
	*out = c.proto.Hypothesis()
	return true
}

// --- Threat control ---

// StartThreatAnalysis clears threat state and begins collecting.
func (c *Core) StartThreatAnalysis() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threats.StartAnalysis()
}

// StopThreatAnalysis stops collecting without discarding results.
func (c *Core) StopThreatAnalysis() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threats.StopAnalysis()
}

// AssessThreat runs the full threat analysis.
func (c *Core) AssessThreat() (threat.Assessment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.healthy {
		return threat.Assessment{}, ErrNotHealthy
	}

	start := time.Now()
	a := c.threats.Assess()
	c.metrics.AnalysesRun.WithLabelValues("threat").Inc()
	c.metrics.AnalysisDuration.WithLabelValues("threat").Observe(time.Since(start).Seconds())
	return a, nil
}

// SnapshotAssessment copies the last threat assessment into out.
func (c *Core) SnapshotAssessment(out *threat.Assessment) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threats.Snapshot(out)
}

// ThreatReport renders the threat report into buf and returns the bytes
// written.
func (c *Core) ThreatReport(buf []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threats.ReportInto(buf)
}

// QuickAssess classifies a single frame without disturbing engine state.
// It returns a zero assessment when disabled by configuration.
func (c *Core) QuickAssess(frame *signal.Frame) threat.Assessment {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cfg.QuickAssessEnabled {
		return threat.Assessment{}
	}
	return threat.QuickAssess(frame)
}

// --- Clustering control ---

// RunClustering runs k-means over a caller-owned dataset.
func (c *Core) RunClustering(data *cluster.Dataset, k uint8) (cluster.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.healthy {
		return cluster.Result{}, ErrNotHealthy
	}

	start := time.Now()
	result := cluster.KMeans(data, k)
	c.metrics.AnalysesRun.WithLabelValues("clustering").Inc()
	c.metrics.AnalysisDuration.WithLabelValues("clustering").Observe(time.Since(start).Seconds())

	if result.K > cluster.MaxK {
		c.healthy = false
		c.log.Error("clustering result exceeds cluster limit", "k", result.K)
		return cluster.Result{}, ErrNotHealthy
	}
	return result, nil
}

// FindOptimalK selects the best cluster count by silhouette score.
func (c *Core) FindOptimalK(data *cluster.Dataset, kMin, kMax uint8) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cluster.FindOptimalK(data, kMin, kMax)
}

// SnapshotClusters copies the last streaming re-clustering into out.
func (c *Core) SnapshotClusters(out *cluster.Result) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := c.streaming.Result()
	if result.K == 0 {
		*out = cluster.Result{}
		return false
	}
	*out = result
	return true
}

// --- Lifecycle ---

// Reset returns every engine to idle with empty state, keeping the
// session identity and configuration.
func (c *Core) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pulseCount = 0
	c.frameCount = 0
	c.pulsesDropped = 0
	c.framesDropped = 0
	c.fingerprints.Reset()
	c.proto.Reset()
	c.threats.Reset()
	c.streaming.Reset()
	c.healthy = true

	c.log.Info("core reset", "session", c.session.ID.String())
}

// Close tears the core down. All buffers are released with the value;
// engines end idle.
func (c *Core) Close() {
	c.Reset()
	c.log.Info("core closed", "session", c.session.ID.String())
}
